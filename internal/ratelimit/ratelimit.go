// Package ratelimit provides a token-bucket limiter used to cap the
// throughput of direct FTP transfers.
package ratelimit

import (
	"io"
	"sync"
	"time"
)

// Limiter is a token bucket measured in bytes. A nil *Limiter is valid
// and imposes no limit, so callers can wire it unconditionally.
type Limiter struct {
	rate    float64 // bytes per second, also the bucket capacity
	tokens  float64
	updated time.Time
	mu      sync.Mutex
}

// New returns a limiter allowing bytesPerSecond sustained throughput,
// with up to one second of burst. Non-positive rates return nil.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{
		rate:    float64(bytesPerSecond),
		tokens:  float64(bytesPerSecond),
		updated: time.Now(),
	}
}

// take consumes n tokens, sleeping as needed. Waits are capped at one
// second per call so a huge n cannot stall a transfer indefinitely.
func (l *Limiter) take(n int) {
	if l == nil || n <= 0 {
		return
	}

	need := float64(n)

	l.mu.Lock()
	l.refill()
	if l.tokens >= need {
		l.tokens -= need
		l.mu.Unlock()
		return
	}
	wait := time.Duration((need - l.tokens) / l.rate * float64(time.Second))
	l.mu.Unlock()

	if wait > time.Second {
		wait = time.Second
	}
	time.Sleep(wait)

	l.mu.Lock()
	l.refill()
	if l.tokens >= need {
		l.tokens -= need
	} else {
		l.tokens = 0
	}
	l.mu.Unlock()
}

// refill credits tokens for elapsed time. Caller holds the mutex.
func (l *Limiter) refill() {
	now := time.Now()
	l.tokens += now.Sub(l.updated).Seconds() * l.rate
	if l.tokens > l.rate {
		l.tokens = l.rate
	}
	l.updated = now
}

type reader struct {
	r io.Reader
	l *Limiter
}

// NewReader wraps r so reads drain the limiter. A nil limiter returns r
// unchanged.
func NewReader(r io.Reader, l *Limiter) io.Reader {
	if l == nil {
		return r
	}
	return &reader{r: r, l: l}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Small chunks keep the pacing accurate.
	const chunk = 8 * 1024
	n := len(p)
	if n > chunk {
		n = chunk
	}

	r.l.take(n)
	return r.r.Read(p[:n])
}

type writer struct {
	w io.Writer
	l *Limiter
}

// NewWriter wraps w so writes drain the limiter. A nil limiter returns w
// unchanged.
func NewWriter(w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	return &writer{w: w, l: l}
}

func (w *writer) Write(p []byte) (int, error) {
	const chunk = 64 * 1024

	written := 0
	for written < len(p) {
		n := len(p) - written
		if n > chunk {
			n = chunk
		}

		w.l.take(n)

		wrote, err := w.w.Write(p[written : written+n])
		written += wrote
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
