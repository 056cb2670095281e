// Package pipeline owns one transcription run: it loads the prior-failure
// set, walks the filtered catalog, dispatches fixed-size groups under the
// concurrency limit, merges every outcome into the document store, and
// publishes the run summary plus the buffered log as artifacts.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Azure-Samples/tayra/internal/blobstore"
	"github.com/Azure-Samples/tayra/internal/catalog"
	"github.com/Azure-Samples/tayra/internal/dispatch"
	"github.com/Azure-Samples/tayra/internal/logger"
	"github.com/Azure-Samples/tayra/internal/types"
)

// errLimitReached stops the catalog walk once the run-level item limit has
// been satisfied. Never escapes Run.
var errLimitReached = errors.New("pipeline: item limit reached")

// Merger persists one transcription outcome into the record hierarchy.
type Merger interface {
	Merge(ctx context.Context, outcome types.TranscriptionOutcome) error
}

// FailedSetSource loads the cache keys of previously failed transcriptions.
type FailedSetSource interface {
	FailedKeys(ctx context.Context) (map[string]struct{}, error)
}

// Coordinator wires the catalog reader, dispatcher, and merger together for
// one run at a time.
type Coordinator struct {
	blobs      blobstore.Store
	docs       FailedSetSource
	dispatcher *dispatch.Dispatcher
	merger     Merger
	log        *logrus.Entry
	buffer     *logger.Buffer

	now func() time.Time
}

func NewCoordinator(
	blobs blobstore.Store,
	docs FailedSetSource,
	dispatcher *dispatch.Dispatcher,
	merger Merger,
	log *logrus.Entry,
	buffer *logger.Buffer,
) *Coordinator {
	return &Coordinator{
		blobs:      blobs,
		docs:       docs,
		dispatcher: dispatcher,
		merger:     merger,
		log:        log,
		buffer:     buffer,
		now:        time.Now,
	}
}

// Run executes the whole pipeline for one JobFilter. A RunSummary comes back
// even when the run fails partway; artifact publication is attempted
// unconditionally so the buffered log is never lost.
func (c *Coordinator) Run(ctx context.Context, filter types.JobFilter) (summary *types.RunSummary, err error) {
	filter = withDefaults(filter)

	start := c.now().UTC()
	c.log.WithField("manager", filter.ManagerName).WithField("specialist", filter.SpecialistName).
		Info("running transcription job")
	c.log.WithField("container", filter.OriginContainer).WithField("limit", filter.Limit).
		WithField("concurrency", filter.Concurrency).Info("starting transcription process")

	summary = &types.RunSummary{StartedAtUTC: start}
	processed := 0

	defer func() {
		end := c.now().UTC()
		summary.FinishedAtUTC = end
		elapsed := end.Sub(start)
		summary.Duration = elapsed.Seconds()
		summary.DurationHuman = elapsed.Round(time.Second).String()
		summary.ProcessedFiles = processed

		c.log.WithField("processed", processed).WithField("duration", summary.DurationHuman).
			Info("job finished")

		if pubErr := c.publish(ctx, filter, summary); pubErr != nil {
			c.log.WithField("error", pubErr.Error()).Error("failed to publish run artifacts")
			if err == nil {
				err = pubErr
			}
		}
	}()

	failed, err := c.docs.FailedKeys(ctx)
	if err != nil {
		return summary, fmt.Errorf("load failed transcriptions: %w", err)
	}
	c.log.WithField("failed_keys", len(failed)).Info("loaded failed transcription set")

	reader := catalog.NewReader(c.blobs, failed, c.log)
	grouper := dispatch.NewGrouper(filter.BatchSize)

	handleGroup := func(group []types.AudioObject) error {
		if len(group) == 0 {
			return nil
		}
		outcomes, groupErr := c.dispatcher.ProcessGroup(ctx, group)
		if groupErr != nil {
			return groupErr
		}
		for _, outcome := range outcomes {
			savingStart := c.now()
			if mergeErr := c.merger.Merge(ctx, outcome); mergeErr != nil {
				return fmt.Errorf("save transcription %s: %w", outcome.Key, mergeErr)
			}
			summary.Transcriptions = append(summary.Transcriptions, types.TranscriptionMeta{
				FileName:              outcome.Key,
				FileSize:              outcome.Size,
				TranscriptionDuration: outcome.Duration.Seconds(),
				SavingDuration:        c.now().Sub(savingStart).Seconds(),
				ShortReason:           outcome.ShortReason,
			})
		}
		return nil
	}

	walkErr := reader.Walk(ctx, filter, func(obj types.AudioObject) error {
		processed++
		if group := grouper.Add(obj); group != nil {
			if groupErr := handleGroup(group); groupErr != nil {
				return groupErr
			}
		}
		// The limit is checked at group boundaries: a partial group that
		// crossed the limit is still dispatched in full before stopping.
		if filter.Limit > 0 && processed >= filter.Limit {
			if groupErr := handleGroup(grouper.Flush()); groupErr != nil {
				return groupErr
			}
			return errLimitReached
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errLimitReached) {
		return summary, walkErr
	}

	// Trailing partial group at end of input.
	if groupErr := handleGroup(grouper.Flush()); groupErr != nil {
		return summary, groupErr
	}
	return summary, nil
}

// publish uploads the run summary and the buffered log excerpt to the
// destination container.
func (c *Coordinator) publish(ctx context.Context, filter types.JobFilter, summary *types.RunSummary) error {
	runStamp := fmt.Sprintf("%d", c.now().Unix())
	metadataBlob := fmt.Sprintf("metadata-%s.json", runStamp)
	logBlob := fmt.Sprintf("logs-%s.txt", runStamp)
	summary.LogBlob = logBlob

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := c.blobs.Upload(ctx, filter.DestinationContainer, metadataBlob, payload); err != nil {
		return err
	}

	logData := ""
	if c.buffer != nil {
		logData = c.buffer.String()
	}
	if err := c.blobs.Upload(ctx, filter.DestinationContainer, logBlob, []byte(logData)); err != nil {
		return err
	}

	c.log.WithField("metadata_blob", metadataBlob).WithField("log_blob", logBlob).
		Info("run artifacts uploaded")
	return nil
}

func withDefaults(filter types.JobFilter) types.JobFilter {
	if filter.BatchSize < 1 {
		filter.BatchSize = dispatch.DefaultBatchSize
	}
	if filter.ResultsPerPage < 1 {
		filter.ResultsPerPage = int32(filter.BatchSize)
	}
	if filter.Concurrency < 1 {
		filter.Concurrency = 10
	}
	return filter
}
