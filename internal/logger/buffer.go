package logger

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
)

// Buffer is a logrus hook that accumulates formatted log lines in memory.
// Appends are a mutex-guarded in-memory write and never block on IO, so the
// hook cannot stall a run. The captured excerpt is read back with String once
// the run finishes (or fails).
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer

	formatter logrus.Formatter
}

func NewBuffer() *Buffer {
	return &Buffer{
		formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			DisableColors:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		},
	}
}

// Levels implements logrus.Hook. Every level is captured; the artifact should
// mirror what streamed to stdout.
func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (b *Buffer) Fire(entry *logrus.Entry) error {
	line, err := b.formatter.Format(entry)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.buf.Write(line)
	b.mu.Unlock()
	return nil
}

// String returns everything captured so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Len returns the number of captured bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
