// Package pipeline hashes many files on a fixed number of workers and
// reports the results in input order.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hoangsonww/ed2k/ed2k"
	"github.com/hoangsonww/ed2k/internal/cache"
	apperrors "github.com/hoangsonww/ed2k/internal/errors"
	"github.com/hoangsonww/ed2k/internal/monitoring"
	"github.com/hoangsonww/ed2k/internal/ratelimit"
)

// Result is the outcome for one input path. Exactly one of Link and Err is
// set.
type Result struct {
	Index    int
	Path     string
	Link     *ed2k.Link
	Err      error
	Cached   bool
	Duration time.Duration
}

type Options struct {
	Mode ed2k.Mode
	// Threads <= 0 means runtime.GOMAXPROCS(0).
	Threads    int
	BufferSize int

	// optional
	Cache   *cache.Store
	Limiter *ratelimit.Limiter
	Metrics *monitoring.Metrics
	Logger  *monitoring.Logger
}

type job struct {
	index int
	path  string
}

type Pool struct {
	opts Options
	hash func(ctx context.Context, j job) Result
}

func NewPool(opts Options) *Pool {
	if opts.Metrics == nil {
		opts.Metrics = monitoring.GetMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = monitoring.GetLogger()
	}
	p := &Pool{opts: opts}
	p.hash = p.hashFile
	return p
}

// Workers returns the number of workers used for n jobs.
func (p *Pool) Workers(n int) int {
	workers := p.opts.Threads
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	return workers
}

// Run hashes paths and calls emit once per dispatched path, in the order of
// paths, from the calling goroutine. Failures are reported through
// Result.Err and do not stop other paths. Once ctx is done no further paths
// are dispatched; paths already dispatched still complete and are emitted,
// and Run returns ctx's error.
func (p *Pool) Run(ctx context.Context, paths []string, emit func(Result)) error {
	if len(paths) == 0 {
		return nil
	}
	workers := p.Workers(len(paths))
	p.opts.Logger.WithFields(map[string]interface{}{
		"files":   len(paths),
		"workers": workers,
		"mode":    p.opts.Mode.String(),
	}).Debug("Starting hash pool")

	jobs := make(chan job)
	results := make(chan Result, workers)

	var wg errgroup.Group
	for i := 0; i < workers; i++ {
		wg.Go(func() error {
			for j := range jobs {
				results <- p.hash(ctx, j)
			}
			return nil
		})
	}

	wg.Go(func() error {
		defer close(jobs)
		for i, path := range paths {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- job{index: i, path: path}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	go func() {
		_ = wg.Wait()
		close(results)
	}()

	order := NewReorderer[Result]()
	for res := range results {
		for _, r := range order.Push(res.Index, res) {
			emit(r)
		}
	}

	return ctx.Err()
}

func (p *Pool) hashFile(ctx context.Context, j job) Result {
	start := time.Now()
	res := Result{Index: j.index, Path: j.path}
	logger := p.opts.Logger.WithField("path", j.path)

	link, cached, err := p.hashPath(ctx, j.path, logger)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		p.opts.Metrics.RecordFileFailed()
		logger.WithError(err).Debug("Hashing failed")
		return res
	}

	res.Link = link
	res.Cached = cached
	if !cached {
		p.opts.Metrics.RecordFileHashed(uint64(link.Size), res.Duration)
	}
	logger.WithFields(map[string]interface{}{
		"size":     link.Size,
		"cached":   cached,
		"duration": res.Duration.Seconds(),
	}).Debug("Hashed file")
	return res
}

func (p *Pool) hashPath(ctx context.Context, path string, logger *monitoring.Logger) (*ed2k.Link, bool, error) {
	f, info, err := ed2k.OpenFile(path)
	if err != nil {
		return nil, false, apperrors.Classify(err)
	}
	defer f.Close()

	if p.opts.Cache != nil {
		d, ok, err := p.opts.Cache.Lookup(path, info, p.opts.Mode)
		if err != nil {
			logger.WithError(err).Warn("Cache lookup failed")
		}
		p.opts.Metrics.RecordCacheLookup(ok)
		if ok {
			return ed2k.FileLink(path, info, d), true, nil
		}
	}

	d, _, err := ed2k.HashReader(p.opts.Limiter.Reader(ctx, f), p.opts.Mode, p.opts.BufferSize)
	if err != nil {
		return nil, false, apperrors.Classify(err)
	}

	if p.opts.Cache != nil {
		if err := p.opts.Cache.Put(path, info, p.opts.Mode, d); err != nil {
			logger.WithError(err).Warn("Failed to store digest in cache")
		}
	}
	return ed2k.FileLink(path, info, d), false, nil
}
