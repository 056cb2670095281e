package logger

import (
	"strings"
	"sync"
	"testing"
)

func TestBufferCapturesEntries(t *testing.T) {
	log, buf := NewBuffered()

	log.WithField("blob", "ACME/JOHN/a.mp3").Info("transcribing blob")
	log.Warn("skipping blob")

	out := buf.String()
	if !strings.Contains(out, "transcribing blob") {
		t.Errorf("buffer missing info entry: %q", out)
	}
	if !strings.Contains(out, "skipping blob") {
		t.Errorf("buffer missing warn entry: %q", out)
	}
	if !strings.Contains(out, "ACME/JOHN/a.mp3") {
		t.Errorf("buffer missing field value: %q", out)
	}
}

func TestBufferConcurrentWrites(t *testing.T) {
	log, buf := NewBuffered()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("concurrent entry")
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "concurrent entry"); got != 20 {
		t.Errorf("captured %d entries, want 20", got)
	}
}
