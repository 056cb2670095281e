// Package catalog lists the remote audio objects eligible for one
// transcription run: it pages through the origin container and filters each
// entry against the name pattern, the owner filters, the prior-failure set,
// and the already-transcribed cache.
package catalog

import (
	"context"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Azure-Samples/tayra/internal/blobstore"
	"github.com/Azure-Samples/tayra/internal/types"
)

// audioExtensions is the fixed allow-list of transcodable recordings.
var audioExtensions = map[string]struct{}{
	".mp3": {},
	".wav": {},
	".ogg": {},
}

// Reader walks the blob listing and yields accepted objects. One Reader
// serves one run: the transcribed-cache memoization is scoped to its
// lifetime.
type Reader struct {
	blobs  blobstore.Store
	failed map[string]struct{}
	log    *logrus.Entry

	// checked memoizes per cache-key whether a finished transcription
	// artifact already exists, so repeated listings of sibling blobs do not
	// trigger duplicate remote lookups.
	checked map[string]bool
}

func NewReader(blobs blobstore.Store, failed map[string]struct{}, log *logrus.Entry) *Reader {
	return &Reader{
		blobs:   blobs,
		failed:  failed,
		log:     log,
		checked: make(map[string]bool),
	}
}

// Walk lists the origin container page by page and calls fn for every object
// that passes the filters. fn returning an error stops the walk and
// propagates the error unchanged. A listing-page failure is fatal to the walk;
// pagination errors are not treated as transient.
func (r *Reader) Walk(ctx context.Context, filter types.JobFilter, fn func(types.AudioObject) error) error {
	pager := r.blobs.List(filter.OriginContainer, filter.Prefix(), filter.ResultsPerPage)
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page {
			if !r.accept(ctx, obj, filter) {
				continue
			}
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) accept(ctx context.Context, obj types.AudioObject, filter types.JobFilter) bool {
	if _, ok := audioExtensions[strings.ToLower(path.Ext(obj.Key))]; !ok {
		r.log.WithField("blob", obj.Key).Warn("skipping blob: not an audio file")
		return false
	}

	if filter.ManagerName != "" && !strings.Contains(obj.Key, filter.ManagerName) {
		r.log.WithField("blob", obj.Key).WithField("manager", filter.ManagerName).
			Warn("skipping blob: outside manager filter")
		return false
	}
	if filter.SpecialistName != "" && !strings.Contains(obj.Key, filter.SpecialistName) {
		r.log.WithField("blob", obj.Key).WithField("specialist", filter.SpecialistName).
			Warn("skipping blob: outside specialist filter")
		return false
	}

	key := types.CacheKey(obj.Key)
	if filter.OnlyFailed {
		if _, ok := r.failed[key]; !ok {
			r.log.WithField("blob", obj.Key).Warn("skipping blob: not in failed set")
			return false
		}
	}

	if filter.UseCache && r.alreadyTranscribed(ctx, key, filter.DestinationContainer) {
		r.log.WithField("blob", obj.Key).Info("skipping blob: already transcribed")
		return false
	}

	return true
}

// alreadyTranscribed checks the destination container for a finished
// transcription artifact. Lookup failures count as a cache miss: the blob is
// retranscribed rather than dropped.
func (r *Reader) alreadyTranscribed(ctx context.Context, cacheKey, destinationContainer string) bool {
	if exists, ok := r.checked[cacheKey]; ok {
		return exists
	}
	artifact := cacheKey + "/transcription.txt"
	_, err := r.blobs.Download(ctx, destinationContainer, artifact)
	exists := err == nil
	if err != nil {
		r.log.WithField("artifact", artifact).WithField("error", err.Error()).
			Warn("no cached transcription found")
	}
	r.checked[cacheKey] = exists
	return exists
}
