package types

import "testing"

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"deep path keeps last three segments", "root/ACME/JOHN/call-1.mp3", "ACME/JOHN/call-1"},
		{"exactly three segments", "ACME/JOHN/call-1.wav", "ACME/JOHN/call-1"},
		{"two segments kept as is", "ACME/call-1.ogg", "ACME/call-1"},
		{"single segment", "call-1.mp3", "call-1"},
		{"no extension", "ACME/JOHN/call-1", "ACME/JOHN/call-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheKey(tt.key); got != tt.want {
				t.Errorf("CacheKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestJobFilterPrefix(t *testing.T) {
	tests := []struct {
		name   string
		filter JobFilter
		want   string
	}{
		{"no filters", JobFilter{}, ""},
		{"manager only", JobFilter{ManagerName: "ACME"}, "ACME/"},
		{"manager and specialist", JobFilter{ManagerName: "ACME", SpecialistName: "JOHN"}, "ACME/JOHN/"},
		{"specialist without manager is ignored", JobFilter{SpecialistName: "JOHN"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Prefix(); got != tt.want {
				t.Errorf("Prefix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranscriptionOutcomeValid(t *testing.T) {
	valid := TranscriptionOutcome{Key: "a.mp3", Text: "hello"}
	if !valid.Valid() {
		t.Error("outcome without short reason should be valid")
	}
	short := TranscriptionOutcome{Key: "a.mp3", Text: ShortCallText, ShortReason: ReasonTimeout}
	if short.Valid() {
		t.Error("outcome with short reason should not be valid")
	}
}

func TestManagerRecordSpecialist(t *testing.T) {
	m := ManagerRecord{
		Assistants: []SpecialistRecord{
			{Name: "JOHN"},
			{Name: "MARY"},
		},
	}
	if s := m.Specialist("MARY"); s == nil || s.Name != "MARY" {
		t.Fatalf("Specialist(MARY) = %v", s)
	}
	if s := m.Specialist("NOBODY"); s != nil {
		t.Fatalf("Specialist(NOBODY) = %v, want nil", s)
	}

	// The returned pointer must alias the record so appends stick.
	s := m.Specialist("JOHN")
	s.Transcriptions = append(s.Transcriptions, TranscriptionLeaf{ID: "t1"})
	if len(m.Assistants[0].Transcriptions) != 1 {
		t.Error("append through Specialist pointer did not mutate the record")
	}
}
