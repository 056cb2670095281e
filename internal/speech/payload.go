package speech

// Wire types for the batch transcription API.

type jobPayload struct {
	DisplayName string        `json:"displayName"`
	Description string        `json:"description"`
	ContentUrls []string      `json:"contentUrls"`
	Model       *modelRef     `json:"model,omitempty"`
	Properties  jobProperties `json:"properties"`
	Locale      string        `json:"locale"`
}

type jobProperties struct {
	Diarization                diarizationSettings     `json:"diarization"`
	WordLevelTimestampsEnabled bool                    `json:"wordLevelTimestampsEnabled"`
	ProfanityFilterMode        string                  `json:"profanityFilterMode"`
	TimeToLiveHours            int                     `json:"timeToLiveHours"`
	LanguageIdentification     *languageIdentification `json:"languageIdentification,omitempty"`
}

type diarizationSettings struct {
	Enabled         bool `json:"enabled"`
	MaxSpeakerCount int  `json:"maxSpeakerCount"`
}

type languageIdentification struct {
	CandidateLocales []string `json:"candidateLocales"`
	Mode             string   `json:"mode"`
}

type modelRef struct {
	Self string `json:"self"`
}

// jobState is the polled job document. Running/NotStarted keep the poll loop
// going; Succeeded and Failed are terminal.
type jobState struct {
	Status string    `json:"status"`
	Model  *modelRef `json:"model,omitempty"`
	Links  struct {
		Files string `json:"files"`
	} `json:"links"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type filesManifest struct {
	Values []manifestEntry `json:"values"`
}

type manifestEntry struct {
	Kind  string `json:"kind"`
	Links struct {
		ContentURL string `json:"contentUrl"`
	} `json:"links"`
	ContentURL string `json:"contentUrl"`
}

type transcriptPayload struct {
	CombinedRecognizedPhrases []struct {
		Display string `json:"display"`
	} `json:"combinedRecognizedPhrases"`
}
