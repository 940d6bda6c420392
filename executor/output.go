package executor

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
)

// lineWriter splits interpreter stdout into lines, logging each one as it
// completes. A trailing partial line is kept until flush.
//
// Once the lines seen reach limit bytes, newline included, everything after
// is dropped and truncated is set. A non-positive limit keeps everything.
type lineWriter struct {
	logger    *zap.Logger
	limit     int
	size      int
	buf       bytes.Buffer
	lines     []string
	truncated bool
	mu        sync.Mutex
}

func newLineWriter(logger *zap.Logger, limit int) *lineWriter {
	return &lineWriter{logger: logger, limit: limit}
}

func (w *lineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.truncated {
		return len(data), nil
	}
	w.buf.Write(data)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		if !w.emit(line[:i], i+1) {
			return len(data), nil
		}
	}
	if w.limit > 0 && w.size+w.buf.Len() > w.limit {
		w.drop()
	}
	return len(data), nil
}

// emit records a line of n raw bytes, or drops the rest of the output when
// it does not fit.
func (w *lineWriter) emit(line string, n int) bool {
	if w.limit > 0 && w.size+n > w.limit {
		w.drop()
		return false
	}
	w.size += n
	line = trimCR(line)
	w.lines = append(w.lines, line)
	w.logger.Info("interpreter output", zap.String("line", line))
	return true
}

func (w *lineWriter) drop() {
	w.truncated = true
	w.buf.Reset()
	w.logger.Warn("interpreter output truncated", zap.Int("limit", w.limit))
}

// flush emits a final line that had no terminating newline and returns all
// lines seen.
func (w *lineWriter) flush() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 && !w.truncated {
		w.emit(w.buf.String(), w.buf.Len())
		w.buf.Reset()
	}
	return w.lines
}

func trimCR(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\r' {
		return s[:n-1]
	}
	return s
}

// limitedBuffer keeps the first limit bytes written to it and silently drops
// the rest. A non-positive limit keeps everything.
type limitedBuffer struct {
	limit     int
	buf       bytes.Buffer
	truncated bool
	mu        sync.Mutex
}

func (b *limitedBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()
	if b.limit > 0 && room < len(data) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(data[:room])
		}
		return len(data), nil
	}
	b.buf.Write(data)
	return len(data), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
