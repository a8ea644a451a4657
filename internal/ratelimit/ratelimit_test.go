package ratelimit

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestNew_NonPositiveRate(t *testing.T) {
	t.Parallel()

	if l := New(0); l != nil {
		t.Errorf("New(0) = %v, want nil", l)
	}
	if l := New(-1); l != nil {
		t.Errorf("New(-1) = %v, want nil", l)
	}
}

func TestNilLimiterPassthrough(t *testing.T) {
	t.Parallel()

	r := strings.NewReader("data")
	if got := NewReader(r, nil); got != io.Reader(r) {
		t.Error("NewReader with nil limiter should return the reader unchanged")
	}

	var buf bytes.Buffer
	if got := NewWriter(&buf, nil); got != io.Writer(&buf) {
		t.Error("NewWriter with nil limiter should return the writer unchanged")
	}

	var l *Limiter
	l.take(100) // must not panic
}

func TestReaderIntegrity(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("abcdefgh"), 4096)
	r := NewReader(bytes.NewReader(content), New(1<<30))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("read %d bytes, want %d and identical content", len(got), len(content))
	}
}

func TestWriterIntegrity(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("01234567"), 32*1024)

	var buf bytes.Buffer
	w := NewWriter(&buf, New(1<<30))

	n, err := w.Write(content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(content) {
		t.Errorf("Write returned %d, want %d", n, len(content))
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Error("written content does not match input")
	}
}

func TestTakeWithinBurst(t *testing.T) {
	t.Parallel()

	l := New(1 << 20)

	start := time.Now()
	l.take(1024)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("take within burst slept %v", elapsed)
	}
}

func TestTakePaces(t *testing.T) {
	t.Parallel()

	l := New(10 * 1024)
	l.take(10 * 1024) // drain the initial burst

	start := time.Now()
	l.take(5 * 1024) // half the rate, should wait roughly half a second
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("take slept only %v, expected pacing delay", elapsed)
	}
}
