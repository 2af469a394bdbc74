package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter caps the aggregate read throughput of all readers it wraps.
// A nil *Limiter does not limit anything.
type Limiter struct {
	limiter *rate.Limiter
	burst   int
}

// NewLimiter creates a limiter allowing bytesPerSec bytes per second. It
// returns nil when bytesPerSec <= 0.
func NewLimiter(bytesPerSec int64) *Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := 64 * 1024
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burst:   burst,
	}
}

// Reader wraps r so that reads wait for the limiter. Waiting stops with
// ctx's error when ctx is done.
func (l *Limiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, l: l}
}

type reader struct {
	ctx context.Context
	r   io.Reader
	l   *Limiter
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) > r.l.burst {
		p = p[:r.l.burst]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.l.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
