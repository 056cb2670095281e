package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure-Samples/tayra/internal/blobstore"
	"github.com/Azure-Samples/tayra/internal/logger"
	"github.com/Azure-Samples/tayra/internal/types"
)

type stubStore struct {
	url string
	err error
}

func (s *stubStore) List(container, prefix string, pageSize int32) blobstore.Pager { return nil }

func (s *stubStore) Download(ctx context.Context, container, key string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStore) Upload(ctx context.Context, container, key string, data []byte) error {
	return nil
}

func (s *stubStore) SignedURL(container, key string, expiry time.Duration) (string, error) {
	return s.url, s.err
}

func TestBlobTranscriberSignedURLFailureIsShortCall(t *testing.T) {
	// A blob we cannot sign still yields an outcome; the run moves on.
	tr := &BlobTranscriber{
		Blobs:     &stubStore{err: errors.New("sas signing failed")},
		Container: "audio-files",
		Log:       logger.New().Entry,
	}

	outcome, err := tr.Transcribe(context.Background(), types.AudioObject{Key: "ACME/JOHN/call-1.mp3", Size: 512})
	if err != nil {
		t.Fatalf("Transcribe() = %v", err)
	}
	if outcome.ShortReason != types.ReasonSASFailed {
		t.Errorf("ShortReason = %q, want %q", outcome.ShortReason, types.ReasonSASFailed)
	}
	if outcome.Text != types.ShortCallText {
		t.Errorf("Text = %q, want sentinel", outcome.Text)
	}
	if outcome.Key != "ACME/JOHN/call-1.mp3" || outcome.Size != 512 {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestBlobTranscriberEndToEnd(t *testing.T) {
	svc := &speechService{transcript: []string{"full transcript"}}
	srv := svc.server(t)
	client, _ := newTestClient(srv.URL)

	tr := &BlobTranscriber{
		Client:    client,
		Blobs:     &stubStore{url: "https://signed/audio.mp3"},
		Container: "audio-files",
		Log:       logger.New().Entry,
	}

	outcome, err := tr.Transcribe(context.Background(), types.AudioObject{Key: "ACME/JOHN/call-1.mp3", Size: 2048})
	if err != nil {
		t.Fatalf("Transcribe() = %v", err)
	}
	if outcome.Text != "full transcript" || outcome.ShortReason != "" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"ACME/JOHN/call-1.mp3", "tayra-call-1"},
		{"call.wav", "tayra-call"},
		{"a/b/c/deep recording.ogg", "tayra-deep recording"},
	}
	for _, tt := range tests {
		if got := displayName(tt.key); got != tt.want {
			t.Errorf("displayName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
