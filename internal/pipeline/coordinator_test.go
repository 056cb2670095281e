package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure-Samples/tayra/internal/blobstore"
	"github.com/Azure-Samples/tayra/internal/dispatch"
	"github.com/Azure-Samples/tayra/internal/logger"
	"github.com/Azure-Samples/tayra/internal/merge"
	"github.com/Azure-Samples/tayra/internal/types"
)

type fakePager struct {
	pages [][]types.AudioObject
	index int
}

func (p *fakePager) More() bool { return p.index < len(p.pages) }

func (p *fakePager) Next(ctx context.Context) ([]types.AudioObject, error) {
	page := p.pages[p.index]
	p.index++
	return page, nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	pages   [][]types.AudioObject
	uploads map[string][]byte
}

func newFakeBlobStore(objs ...types.AudioObject) *fakeBlobStore {
	return &fakeBlobStore{
		pages:   [][]types.AudioObject{objs},
		uploads: map[string][]byte{},
	}
}

func (f *fakeBlobStore) List(container, prefix string, pageSize int32) blobstore.Pager {
	return &fakePager{pages: f.pages}
}

func (f *fakeBlobStore) Download(ctx context.Context, container, key string) ([]byte, error) {
	return nil, errors.New("blob not found")
}

func (f *fakeBlobStore) Upload(ctx context.Context, container, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[container+"/"+key] = data
	return nil
}

func (f *fakeBlobStore) SignedURL(container, key string, expiry time.Duration) (string, error) {
	return "https://example/" + key, nil
}

func (f *fakeBlobStore) upload(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, data := range f.uploads {
		if strings.Contains(key, name) {
			return data, true
		}
	}
	return nil, false
}

type fakeDocs struct {
	failed map[string]struct{}
	err    error
}

func (f *fakeDocs) FailedKeys(ctx context.Context) (map[string]struct{}, error) {
	return f.failed, f.err
}

type fakeTranscriber struct {
	mu      sync.Mutex
	calls   []string
	failKey string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, obj types.AudioObject) (types.TranscriptionOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, obj.Key)
	f.mu.Unlock()
	if obj.Key == f.failKey {
		return types.TranscriptionOutcome{}, errors.New("speech service unreachable")
	}
	return types.TranscriptionOutcome{
		Key:      obj.Key,
		Text:     "transcript of " + obj.Key,
		Size:     obj.Size,
		Duration: time.Second,
	}, nil
}

// mergeStore backs a real Merger with an in-memory manager map.
type mergeStore struct {
	mu       sync.Mutex
	managers map[string]*types.ManagerRecord
}

func newMergeStore() *mergeStore {
	return &mergeStore{managers: map[string]*types.ManagerRecord{}}
}

func (s *mergeStore) FindManager(ctx context.Context, name string) (*types.ManagerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.managers[name]
	if !ok {
		return nil, nil
	}
	clone := *record
	clone.Assistants = append([]types.SpecialistRecord(nil), record.Assistants...)
	for i := range clone.Assistants {
		clone.Assistants[i].Transcriptions = append(
			[]types.TranscriptionLeaf(nil), record.Assistants[i].Transcriptions...)
	}
	return &clone, nil
}

func (s *mergeStore) InsertManager(ctx context.Context, record *types.ManagerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.managers[record.Name]; ok {
		return errors.New("duplicate")
	}
	s.managers[record.Name] = record
	return nil
}

func (s *mergeStore) ReplaceManager(ctx context.Context, record *types.ManagerRecord, priorRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.managers[record.Name]
	if !ok || current.Revision != priorRevision {
		return errors.New("revision mismatch")
	}
	s.managers[record.Name] = record
	return nil
}

type recordingMerger struct {
	mu       sync.Mutex
	outcomes []types.TranscriptionOutcome
}

func (m *recordingMerger) Merge(ctx context.Context, outcome types.TranscriptionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

func calls(n int) []types.AudioObject {
	objs := make([]types.AudioObject, n)
	for i := range objs {
		objs[i] = types.AudioObject{Key: fmt.Sprintf("ACME/JOHN/call-%d.mp3", i), Size: 2048}
	}
	return objs
}

func newTestCoordinator(blobs *fakeBlobStore, docs *fakeDocs, tr dispatch.Transcriber, merger Merger) *Coordinator {
	log, buf := logger.NewBuffered()
	c := NewCoordinator(blobs, docs, dispatch.NewDispatcher(tr, 10, log.Entry), merger, log.Entry, buf)
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return stamp }
	return c
}

func TestRunTranscribesAndMergesHierarchy(t *testing.T) {
	// Three recordings under the same manager and specialist come out as one
	// manager document with one specialist holding three valid leaves.
	blobs := newFakeBlobStore(calls(3)...)
	store := newMergeStore()
	merger := merge.NewMerger(store, logger.New().Entry)
	c := newTestCoordinator(blobs, &fakeDocs{}, &fakeTranscriber{}, merger)

	summary, err := c.Run(context.Background(), types.JobFilter{DestinationContainer: "transcripts"})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.ProcessedFiles != 3 {
		t.Errorf("ProcessedFiles = %d, want 3", summary.ProcessedFiles)
	}
	if len(summary.Transcriptions) != 3 {
		t.Errorf("got %d summary entries, want 3", len(summary.Transcriptions))
	}

	manager := store.managers["ACME"]
	if manager == nil {
		t.Fatal("manager document not created")
	}
	if len(manager.Assistants) != 1 {
		t.Fatalf("got %d specialists, want 1", len(manager.Assistants))
	}
	leaves := manager.Assistants[0].Transcriptions
	if len(leaves) != 3 {
		t.Fatalf("got %d leaves, want 3", len(leaves))
	}
	for _, leaf := range leaves {
		if leaf.IsValidCall != types.ValidCallYes {
			t.Errorf("leaf %s IsValidCall = %q", leaf.Filename, leaf.IsValidCall)
		}
	}
}

func TestRunHonorsLimitAtGroupBoundary(t *testing.T) {
	// Limit 3 with batch size 2: the second group is flushed as a partial as
	// soon as the limit is crossed, and the remaining catalog is not walked.
	blobs := newFakeBlobStore(calls(5)...)
	tr := &fakeTranscriber{}
	merger := &recordingMerger{}
	c := newTestCoordinator(blobs, &fakeDocs{}, tr, merger)

	summary, err := c.Run(context.Background(), types.JobFilter{
		DestinationContainer: "transcripts",
		Limit:                3,
		BatchSize:            2,
	})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.ProcessedFiles != 3 {
		t.Errorf("ProcessedFiles = %d, want 3", summary.ProcessedFiles)
	}
	if len(tr.calls) != 3 {
		t.Errorf("transcribed %d items, want 3", len(tr.calls))
	}
	if len(merger.outcomes) != 3 {
		t.Errorf("merged %d items, want 3", len(merger.outcomes))
	}
}

func TestRunFlushesTrailingPartialGroup(t *testing.T) {
	blobs := newFakeBlobStore(calls(5)...)
	merger := &recordingMerger{}
	c := newTestCoordinator(blobs, &fakeDocs{}, &fakeTranscriber{}, merger)

	if _, err := c.Run(context.Background(), types.JobFilter{
		DestinationContainer: "transcripts",
		BatchSize:            3,
	}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(merger.outcomes) != 5 {
		t.Errorf("merged %d items, want all 5", len(merger.outcomes))
	}
}

func TestRunPublishesArtifacts(t *testing.T) {
	blobs := newFakeBlobStore(calls(2)...)
	c := newTestCoordinator(blobs, &fakeDocs{}, &fakeTranscriber{}, &recordingMerger{})

	summary, err := c.Run(context.Background(), types.JobFilter{DestinationContainer: "transcripts"})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	payload, ok := blobs.upload("metadata-")
	if !ok {
		t.Fatal("metadata artifact not uploaded")
	}
	var stored types.RunSummary
	if err := json.Unmarshal(payload, &stored); err != nil {
		t.Fatalf("metadata artifact is not a run summary: %v", err)
	}
	if stored.ProcessedFiles != 2 || len(stored.Transcriptions) != 2 {
		t.Errorf("stored summary = %+v", stored)
	}

	logData, ok := blobs.upload("logs-")
	if !ok {
		t.Fatal("log artifact not uploaded")
	}
	if !strings.Contains(string(logData), "starting transcription process") {
		t.Errorf("log artifact missing buffered entries: %q", logData)
	}
	if !strings.HasPrefix(summary.LogBlob, "logs-") || !strings.HasSuffix(summary.LogBlob, ".txt") {
		t.Errorf("LogBlob = %q", summary.LogBlob)
	}
}

func TestRunPublishesArtifactsOnFailure(t *testing.T) {
	// Even a run that dies while loading the failed set leaves its log behind.
	blobs := newFakeBlobStore(calls(1)...)
	docs := &fakeDocs{err: errors.New("document store unavailable")}
	c := newTestCoordinator(blobs, docs, &fakeTranscriber{}, &recordingMerger{})

	summary, err := c.Run(context.Background(), types.JobFilter{DestinationContainer: "transcripts"})
	if err == nil {
		t.Fatal("Run() should fail when the failed set cannot be loaded")
	}
	if summary == nil {
		t.Fatal("Run() must return a summary even on failure")
	}
	if _, ok := blobs.upload("logs-"); !ok {
		t.Error("log artifact should be uploaded on failure")
	}
}

func TestRunStopsOnGroupFailure(t *testing.T) {
	blobs := newFakeBlobStore(calls(3)...)
	tr := &fakeTranscriber{failKey: "ACME/JOHN/call-1.mp3"}
	c := newTestCoordinator(blobs, &fakeDocs{}, tr, &recordingMerger{})

	_, err := c.Run(context.Background(), types.JobFilter{DestinationContainer: "transcripts"})
	if err == nil {
		t.Fatal("Run() should propagate a group failure")
	}
	if !strings.Contains(err.Error(), "call-1.mp3") {
		t.Errorf("error %q should name the failing blob", err)
	}
}

func TestRunOnlyFailedUsesFailedSet(t *testing.T) {
	blobs := newFakeBlobStore(
		types.AudioObject{Key: "ACME/JOHN/failed.mp3"},
		types.AudioObject{Key: "ACME/JOHN/ok.mp3"},
	)
	docs := &fakeDocs{failed: map[string]struct{}{"ACME/JOHN/failed": {}}}
	merger := &recordingMerger{}
	c := newTestCoordinator(blobs, docs, &fakeTranscriber{}, merger)

	if _, err := c.Run(context.Background(), types.JobFilter{
		DestinationContainer: "transcripts",
		OnlyFailed:           true,
	}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(merger.outcomes) != 1 || merger.outcomes[0].Key != "ACME/JOHN/failed.mp3" {
		t.Errorf("merged = %+v, want only the previously failed blob", merger.outcomes)
	}
}
