package ratelimit_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hoangsonww/ed2k/internal/ratelimit"
)

func TestNilLimiterPassesThrough(t *testing.T) {
	l := ratelimit.NewLimiter(0)
	if l != nil {
		t.Fatalf("expected nil limiter for zero rate")
	}
	src := bytes.NewReader([]byte("abc"))
	if r := l.Reader(context.Background(), src); r != io.Reader(src) {
		t.Fatalf("nil limiter should return the reader unchanged")
	}
}

func TestReaderDeliversSameBytes(t *testing.T) {
	data := make([]byte, 300*1024)
	rand.Read(data)

	// high enough to finish quickly, low enough that chunks get capped
	l := ratelimit.NewLimiter(64 << 20)
	got, err := io.ReadAll(l.Reader(context.Background(), bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("throttled reader altered data")
	}
}

func TestReaderThrottles(t *testing.T) {
	// 4 KiB/s with a 4 KiB burst: reading 8 KiB needs about one second
	l := ratelimit.NewLimiter(4096)
	start := time.Now()
	if _, err := io.Copy(io.Discard, l.Reader(context.Background(), bytes.NewReader(make([]byte, 8192)))); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Fatalf("expected throttling, finished in %s", elapsed)
	}
}

func TestReaderStopsOnCancel(t *testing.T) {
	l := ratelimit.NewLimiter(1024)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := io.Copy(io.Discard, l.Reader(ctx, bytes.NewReader(make([]byte, 1<<20))))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
