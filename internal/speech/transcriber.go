package speech

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Azure-Samples/tayra/internal/blobstore"
	"github.com/Azure-Samples/tayra/internal/types"
)

// sasExpiry is how long the speech service can read the source audio. Batch
// jobs fetch the content shortly after submission; one hour covers queueing.
const sasExpiry = 60 * time.Minute

// BlobTranscriber transcribes one blob: it mints a time-boxed signed read URL
// for the audio object and hands it to the speech client.
type BlobTranscriber struct {
	Client    *Client
	Blobs     blobstore.Store
	Container string
	Log       *logrus.Entry
}

// Transcribe produces the TranscriptionOutcome for one audio object. Errors
// are reserved for unrecoverable failures; every recoverable condition comes
// back as a short-call outcome.
func (t *BlobTranscriber) Transcribe(ctx context.Context, obj types.AudioObject) (types.TranscriptionOutcome, error) {
	start := time.Now()
	log := t.Log.WithField("blob", obj.Key)
	log.Info("transcribing blob")

	outcome := types.TranscriptionOutcome{Key: obj.Key, Size: obj.Size}

	signedURL, err := t.Blobs.SignedURL(t.Container, obj.Key, sasExpiry)
	if err != nil {
		log.WithField("error", err.Error()).Error("unable to generate signed url")
		outcome.Text = types.ShortCallText
		outcome.ShortReason = types.ReasonSASFailed
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	result, err := t.Client.Transcribe(ctx, displayName(obj.Key), signedURL)
	if err != nil {
		return types.TranscriptionOutcome{}, err
	}

	outcome.Text = result.Text
	outcome.ShortReason = result.ShortReason
	outcome.Duration = time.Since(start)
	log.WithField("duration", outcome.Duration.String()).Info("transcription finished")
	return outcome, nil
}

func displayName(blobKey string) string {
	base := path.Base(blobKey)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return "tayra-" + stem
}
