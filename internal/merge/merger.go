// Package merge folds transcription outcomes into the manager → specialist →
// transcription hierarchy held in the document store.
package merge

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Azure-Samples/tayra/internal/docstore"
	"github.com/Azure-Samples/tayra/internal/types"
)

// ErrShallowKey is returned when a blob key does not carry the two leading
// path segments the hierarchy is derived from.
var ErrShallowKey = errors.New("merge: blob key has fewer than two path segments")

// maxConflictRetries bounds the read-merge-write cycle under contention on
// one manager document.
const maxConflictRetries = 5

// Store is the document-store surface the merger consumes.
type Store interface {
	FindManager(ctx context.Context, name string) (*types.ManagerRecord, error)
	InsertManager(ctx context.Context, record *types.ManagerRecord) error
	ReplaceManager(ctx context.Context, record *types.ManagerRecord, priorRevision int64) error
}

// Merger appends transcription leaves to their owning manager documents.
// Each outcome is merged exactly once; re-merging the same outcome appends a
// second leaf by design (deduplication is by id, not content).
type Merger struct {
	store Store
	log   *logrus.Entry
}

func NewMerger(store Store, log *logrus.Entry) *Merger {
	return &Merger{store: store, log: log}
}

// OwnerNames derives the manager and specialist names from the first two
// path segments of a blob key, case-normalized to upper.
func OwnerNames(blobKey string) (manager, specialist string, err error) {
	segments := strings.Split(strings.TrimSuffix(blobKey, path.Ext(blobKey)), "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrShallowKey, blobKey)
	}
	return strings.ToUpper(segments[0]), strings.ToUpper(segments[1]), nil
}

// Merge finds or creates the owning manager/specialist records and appends a
// new transcription leaf. The write is conditional on the revision that was
// read; on conflict the whole read-merge-write cycle restarts, so a
// concurrent sibling's append is never silently discarded.
func (m *Merger) Merge(ctx context.Context, outcome types.TranscriptionOutcome) error {
	managerName, specialistName, err := OwnerNames(outcome.Key)
	if err != nil {
		return err
	}
	leaf := newLeaf(outcome)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		manager, err := m.store.FindManager(ctx, managerName)
		if err != nil {
			return err
		}

		if manager == nil {
			record := newManager(managerName, specialistName, leaf)
			err = m.store.InsertManager(ctx, record)
			if errors.Is(err, docstore.ErrConflict) {
				continue // another writer created the manager first
			}
			if err != nil {
				return err
			}
			m.log.WithField("transcription", leaf.ID).WithField("manager", managerName).
				Info("transcription saved")
			return nil
		}

		priorRevision := manager.Revision
		if specialist := manager.Specialist(specialistName); specialist != nil {
			specialist.Transcriptions = append(specialist.Transcriptions, leaf)
		} else {
			manager.Assistants = append(manager.Assistants, newSpecialist(specialistName, leaf))
		}
		manager.Revision = priorRevision + 1

		err = m.store.ReplaceManager(ctx, manager, priorRevision)
		if errors.Is(err, docstore.ErrConflict) {
			m.log.WithField("manager", managerName).WithField("attempt", attempt+1).
				Warn("manager document changed underneath merge; retrying")
			continue
		}
		if err != nil {
			return err
		}
		m.log.WithField("transcription", leaf.ID).WithField("manager", managerName).
			Info("transcription saved")
		return nil
	}
	return fmt.Errorf("merge %s: gave up after %d conflicts", outcome.Key, maxConflictRetries)
}

func newLeaf(outcome types.TranscriptionOutcome) types.TranscriptionLeaf {
	validity := types.ValidCallYes
	failureReason := ""
	if !outcome.Valid() {
		validity = types.ValidCallNo
		failureReason = outcome.ShortReason
	}

	metadata := map[string]interface{}{
		"file_name":              strings.ReplaceAll(strings.ToLower(outcome.Key), " ", "_"),
		"file_size":              outcome.Size,
		"transcription_duration": outcome.Duration.Seconds(),
	}
	if failureReason != "" {
		metadata["short_reason"] = failureReason
	}

	return types.TranscriptionLeaf{
		ID:            uuid.New().String(),
		Filename:      outcome.Key,
		Transcription: outcome.Text,
		IsValidCall:   validity,
		FailureReason: failureReason,
		Metadata:      metadata,
	}
}

func newSpecialist(name string, leaf types.TranscriptionLeaf) types.SpecialistRecord {
	return types.SpecialistRecord{
		ID:             uuid.New().String(),
		Name:           name,
		Role:           "Specialist",
		Transcriptions: []types.TranscriptionLeaf{leaf},
	}
}

func newManager(name, specialistName string, leaf types.TranscriptionLeaf) *types.ManagerRecord {
	return &types.ManagerRecord{
		ID:         uuid.New().String(),
		Name:       name,
		Role:       "Manager",
		Assistants: []types.SpecialistRecord{newSpecialist(specialistName, leaf)},
		Revision:   1,
	}
}
