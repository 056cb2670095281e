package types

import (
	"path"
	"strings"
	"time"
)

// ShortCallText is stored as the transcript body whenever a recording could not
// produce a usable transcription (too short, not answered, rejected by the
// speech service).
const ShortCallText = "Call too short or not answered."

// Failure reason codes recorded on invalid transcriptions.
const (
	ReasonEmptyAudio      = "empty_audio_file"
	ReasonInvalidAudio    = "invalid_audio_file"
	ReasonLengthExceeded  = "length_exceeded"
	ReasonBatchFailed     = "batch_failed"
	ReasonTimeout         = "timeout"
	ReasonEmptyTranscript = "empty_transcript"
	ReasonMissingJobURL   = "missing_location"
	ReasonSASFailed       = "sas_generation_failed"
)

// Validity markers for a stored transcription.
const (
	ValidCallYes = "YES"
	ValidCallNo  = "NO"
)

// AudioObject is one remote audio recording, as reported by the blob listing.
type AudioObject struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// JobFilter carries every knob for one transcription run. Supplied once by the
// caller and treated as immutable afterwards.
type JobFilter struct {
	OriginContainer      string `json:"origin_container"`
	DestinationContainer string `json:"destination_container"`
	ManagerName          string `json:"manager_name,omitempty"`
	SpecialistName       string `json:"specialist_name,omitempty"`
	Limit                int    `json:"limit"`
	OnlyFailed           bool   `json:"only_failed"`
	UseCache             bool   `json:"use_cache"`
	Concurrency          int    `json:"concurrency"`
	BatchSize            int    `json:"batch_size"`
	ResultsPerPage       int32  `json:"results_per_page"`
}

// Prefix returns the listing prefix implied by the manager/specialist filters,
// e.g. "ACME/" or "ACME/JOHN/". Empty when no manager filter is set.
func (f JobFilter) Prefix() string {
	if f.ManagerName == "" {
		return ""
	}
	p := f.ManagerName + "/"
	if f.SpecialistName != "" {
		p += f.SpecialistName + "/"
	}
	return p
}

// TranscriptionOutcome is the result of transcribing one audio object. A
// non-empty ShortReason marks the sentinel "short or invalid call" path; Text
// then holds ShortCallText rather than a real transcript.
type TranscriptionOutcome struct {
	Key         string        `json:"key"`
	Text        string        `json:"text"`
	ShortReason string        `json:"short_reason,omitempty"`
	Size        int64         `json:"size"`
	Duration    time.Duration `json:"duration"`
}

// Valid reports whether the outcome carries a real transcript.
func (o TranscriptionOutcome) Valid() bool {
	return o.ShortReason == ""
}

// TranscriptionLeaf is one transcribed call as persisted inside a
// SpecialistRecord. Never mutated after the merge that created it.
type TranscriptionLeaf struct {
	ID            string                 `json:"id" bson:"id"`
	Filename      string                 `json:"filename" bson:"filename"`
	Transcription string                 `json:"transcription" bson:"transcription"`
	IsValidCall   string                 `json:"is_valid_call" bson:"is_valid_call"`
	FailureReason string                 `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	Metadata      map[string]interface{} `json:"metadata" bson:"metadata"`
}

// SpecialistRecord groups the transcriptions of one specialist. The list is
// append-only; insertion order is transcription order.
type SpecialistRecord struct {
	ID             string              `json:"id" bson:"id"`
	Name           string              `json:"name" bson:"name"`
	Role           string              `json:"role" bson:"role"`
	Transcriptions []TranscriptionLeaf `json:"transcriptions" bson:"transcriptions"`
}

// ManagerRecord is the document-store aggregate root: one document per manager
// name. Revision is bumped on every merge so concurrent writers can detect
// that they read a stale copy.
type ManagerRecord struct {
	ID         string             `json:"id" bson:"id"`
	Name       string             `json:"name" bson:"name"`
	Role       string             `json:"role" bson:"role"`
	Assistants []SpecialistRecord `json:"assistants" bson:"assistants"`
	Revision   int64              `json:"revision" bson:"revision"`
}

// Specialist returns the specialist with the given name, or nil.
func (m *ManagerRecord) Specialist(name string) *SpecialistRecord {
	for i := range m.Assistants {
		if m.Assistants[i].Name == name {
			return &m.Assistants[i]
		}
	}
	return nil
}

// TranscriptionMeta is the per-item entry accumulated into the run summary.
type TranscriptionMeta struct {
	FileName              string  `json:"file_name"`
	FileSize              int64   `json:"file_size"`
	TranscriptionDuration float64 `json:"transcription_duration"`
	SavingDuration        float64 `json:"saving_duration"`
	ShortReason           string  `json:"short_reason,omitempty"`
}

// RunSummary is written once at the end of a pipeline run and uploaded next to
// the buffered run log.
type RunSummary struct {
	StartedAtUTC   time.Time           `json:"started_at_utc"`
	FinishedAtUTC  time.Time           `json:"finished_at_utc"`
	Duration       float64             `json:"transcription_duration"`
	DurationHuman  string              `json:"transcription_duration_human"`
	ProcessedFiles int                 `json:"processed_files"`
	Transcriptions []TranscriptionMeta `json:"transcriptions"`
	LogBlob        string              `json:"log_blob"`
}

// CacheKey derives the identifier used by the failed-set and the transcribed
// cache: the last three path segments of the blob key, extension stripped.
// Keys shallower than three segments keep every segment they have.
func CacheKey(blobKey string) string {
	trimmed := strings.TrimSuffix(blobKey, path.Ext(blobKey))
	segments := strings.Split(trimmed, "/")
	if len(segments) > 3 {
		segments = segments[len(segments)-3:]
	}
	return strings.Join(segments, "/")
}
