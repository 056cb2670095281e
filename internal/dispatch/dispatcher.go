// Package dispatch groups audio objects into fixed-size batches and runs each
// batch's transcriptions under a bounded concurrency limit. Groups execute
// strictly one after another; items inside a group run in parallel and the
// first unrecoverable error cancels its siblings and fails the group.
package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Azure-Samples/tayra/internal/types"
)

// DefaultBatchSize matches the page size of the origin listing.
const DefaultBatchSize = 50

// Transcriber turns one audio object into a transcription outcome.
type Transcriber interface {
	Transcribe(ctx context.Context, obj types.AudioObject) (types.TranscriptionOutcome, error)
}

// Grouper buffers objects into fixed-size groups. Add returns a full group
// exactly when the buffer reaches the configured size; Flush drains whatever
// remains at end of input.
type Grouper struct {
	size int
	buf  []types.AudioObject
}

func NewGrouper(size int) *Grouper {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Grouper{size: size, buf: make([]types.AudioObject, 0, size)}
}

func (g *Grouper) Add(obj types.AudioObject) []types.AudioObject {
	g.buf = append(g.buf, obj)
	if len(g.buf) < g.size {
		return nil
	}
	return g.Flush()
}

func (g *Grouper) Flush() []types.AudioObject {
	if len(g.buf) == 0 {
		return nil
	}
	group := g.buf
	g.buf = make([]types.AudioObject, 0, g.size)
	return group
}

// Pending returns the number of buffered objects not yet dispatched.
func (g *Grouper) Pending() int {
	return len(g.buf)
}

// Dispatcher executes one group at a time.
type Dispatcher struct {
	transcriber Transcriber
	concurrency int
	log         *logrus.Entry
}

func NewDispatcher(transcriber Transcriber, concurrency int, log *logrus.Entry) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{transcriber: transcriber, concurrency: concurrency, log: log}
}

// ProcessGroup transcribes every object of one group concurrently, capped at
// the dispatcher's concurrency limit. All-or-nothing: the first error cancels
// the in-flight siblings and fails the whole group. On success the returned
// outcomes are positionally aligned with the input.
func (d *Dispatcher) ProcessGroup(ctx context.Context, group []types.AudioObject) ([]types.TranscriptionOutcome, error) {
	if len(group) == 0 {
		return nil, nil
	}
	d.log.WithField("group_size", len(group)).WithField("concurrency", d.concurrency).
		Info("dispatching transcription group")

	outcomes := make([]types.TranscriptionOutcome, len(group))
	eg, groupCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)

	for i, obj := range group {
		i, obj := i, obj
		eg.Go(func() error {
			outcome, err := d.transcriber.Transcribe(groupCtx, obj)
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", obj.Key, err)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
