package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the full environment surface of the transcription engine. It is
// built once at startup and handed to the components that need it; nothing
// reads the environment after Load returns.
type Config struct {
	// Azure Storage
	StorageConnectionString string

	// Speech service
	SpeechEndpoint       string
	SpeechKey            string
	SpeechAPIVersion     string
	SpeechProfanityMode  string
	SpeechWordTimestamps bool
	SpeechDiarization    bool
	SpeechBaseModel      string
	SpeechLocales        []string

	// Document store
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Job defaults, overridable per run via flags
	OriginContainer      string
	DestinationContainer string
	ManagerName          string
	SpecialistName       string
	Limit                int
	OnlyFailed           bool
	UseCache             bool
	Concurrency          int
	BatchSize            int
	ResultsPerPage       int
}

// Load reads the configuration from the environment. Call godotenv.Load
// beforehand if a .env file should participate.
func Load() Config {
	return Config{
		StorageConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),

		SpeechEndpoint:       strings.TrimRight(os.Getenv("AI_SPEECH_URL"), "/"),
		SpeechKey:            os.Getenv("AI_SPEECH_KEY"),
		SpeechAPIVersion:     envOr("AI_SPEECH_API_VERSION", "2025-10-15"),
		SpeechProfanityMode:  envOr("SPEECH_PROFANITY_MODE", "Masked"),
		SpeechWordTimestamps: envBool("SPEECH_WORD_TIMESTAMPS", true),
		SpeechDiarization:    envBool("SPEECH_DIARIZATION", false),
		SpeechBaseModel:      os.Getenv("CHANGE_BASE_MODEL"),
		SpeechLocales:        envList("SPEECH_LOCALES", []string{"en-US", "es-MX"}),

		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   envOr("COSMOS_DB_TRANSCRIPTION", "tayradb"),
		MongoCollection: envOr("CONTAINER_NAME", "transcriptions"),

		OriginContainer:      envOr("TRANSCRIPTION_ORIGIN_CONTAINER", "audio-files"),
		DestinationContainer: envOr("TRANSCRIPTION_DESTINATION_CONTAINER", "transcripts"),
		ManagerName:          os.Getenv("TRANSCRIPTION_MANAGER_NAME"),
		SpecialistName:       os.Getenv("TRANSCRIPTION_SPECIALIST_NAME"),
		Limit:                envInt("TRANSCRIPTION_LIMIT", -1),
		OnlyFailed:           envBool("TRANSCRIPTION_ONLY_FAILED", false),
		UseCache:             envBool("TRANSCRIPTION_USE_CACHE", false),
		Concurrency:          envInt("TRANSCRIPTION_SEMAPHORES", 10),
		BatchSize:            envInt("TRANSCRIPTION_BATCH_SIZE", 50),
		ResultsPerPage:       envInt("TRANSCRIPTION_RESULTS_PER_PAGE", 50),
	}
}

// Validate checks the settings that every run needs; job knobs have usable
// defaults and are not validated here.
func (c Config) Validate() error {
	if c.StorageConnectionString == "" {
		return fmt.Errorf("AZURE_STORAGE_CONNECTION_STRING is required")
	}
	if c.SpeechEndpoint == "" {
		return fmt.Errorf("AI_SPEECH_URL is required")
	}
	if c.SpeechKey == "" {
		return fmt.Errorf("AI_SPEECH_KEY is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("TRANSCRIPTION_SEMAPHORES must be at least 1, got %d", c.Concurrency)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("TRANSCRIPTION_BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func envList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
