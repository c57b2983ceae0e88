// Package telemetry bridges OpenTelemetry spans to the run renderer.
package telemetry

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultSizeLimit is the buffered size that triggers delivery (4KB).
	DefaultSizeLimit = 4096
	// DefaultTimeLimit is the longest complete lines wait before delivery.
	DefaultTimeLimit = 50 * time.Millisecond
	// MaxLineLength is the longest partial line held back. Longer output
	// without a newline is delivered as it is.
	MaxLineLength = 64 * 1024
)

var errBatcherClosed = errors.New("job output is closed")

// LineBatcher collects the output of one job and delivers it in whole lines,
// so a line printed under the job prefix is never split between deliveries.
// Complete lines go out once the size limit is reached or the time limit
// passes. The unterminated tail stays buffered until its newline arrives,
// it outgrows MaxLineLength, or the batcher is closed.
type LineBatcher struct {
	sizeLimit int
	timeLimit time.Duration
	deliver   func([]byte)

	mu     sync.Mutex
	buffer bytes.Buffer
	timer  *time.Timer
	closed bool
}

// NewLineBatcher returns a LineBatcher handing whole lines to deliver.
// Non-positive limits select the defaults.
func NewLineBatcher(sizeLimit int, timeLimit time.Duration, deliver func([]byte)) *LineBatcher {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	return &LineBatcher{sizeLimit: sizeLimit, timeLimit: timeLimit, deliver: deliver}
}

// Write buffers p. It never blocks on the consumer for longer than one delivery.
func (b *LineBatcher) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errBatcherClosed
	}
	b.buffer.Write(p)

	switch {
	case b.buffer.Len() >= b.sizeLimit:
		b.deliverLinesLocked()
	case b.timer == nil && bytes.IndexByte(p, '\n') >= 0:
		// Complete lines are waiting; deliver them within the time limit.
		b.timer = time.AfterFunc(b.timeLimit, b.tick)
	}
	return len(p), nil
}

// Close delivers everything still buffered, including an unterminated tail.
func (b *LineBatcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.stopTimerLocked()
	if b.buffer.Len() > 0 {
		b.emitLocked(b.buffer.Len())
	}
	return nil
}

func (b *LineBatcher) tick() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timer = nil
	if !b.closed {
		b.deliverLinesLocked()
	}
}

// deliverLinesLocked hands on every complete line. mu must be held.
func (b *LineBatcher) deliverLinesLocked() {
	b.stopTimerLocked()

	end := bytes.LastIndexByte(b.buffer.Bytes(), '\n') + 1
	if end == 0 && b.buffer.Len() >= MaxLineLength {
		end = b.buffer.Len()
	}
	if end > 0 {
		b.emitLocked(end)
	}
}

func (b *LineBatcher) emitLocked(n int) {
	data := bytes.Clone(b.buffer.Next(n))
	if b.deliver != nil {
		b.deliver(data)
	}
}

func (b *LineBatcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
