package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hoangsonww/ed2k/ed2k"
	"github.com/hoangsonww/ed2k/internal/cache"
	apperrors "github.com/hoangsonww/ed2k/internal/errors"
	"github.com/hoangsonww/ed2k/internal/monitoring"
	"github.com/hoangsonww/ed2k/internal/persistence"
)

func quietLogger() *monitoring.Logger {
	return monitoring.NewLogger("error", "text", io.Discard)
}

func TestReordererPermutations(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		n := 1 + rnd.Intn(40)
		r := NewReorderer[int]()
		var got []int
		for _, i := range rnd.Perm(n) {
			got = append(got, r.Push(i, i)...)
		}

		want := make([]int, n)
		for i := range want {
			want[i] = i
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round %d: (-want +got):\n%s", round, diff)
		}
		if r.Pending() != 0 || r.Next() != n {
			t.Fatalf("round %d: pending=%d next=%d", round, r.Pending(), r.Next())
		}
	}
}

func TestReordererIgnoresDuplicates(t *testing.T) {
	r := NewReorderer[string]()
	if out := r.Push(1, "b"); len(out) != 0 {
		t.Fatalf("index 1 released before 0: %v", out)
	}
	if out := r.Push(1, "x"); len(out) != 0 {
		t.Fatalf("duplicate released: %v", out)
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Push(0, "a")); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if out := r.Push(0, "again"); len(out) != 0 {
		t.Fatalf("released index pushed again: %v", out)
	}
}

func TestRunEmitsInInputOrder(t *testing.T) {
	paths := make([]string, 30)
	for i := range paths {
		paths[i] = fmt.Sprintf("file-%02d", i)
	}

	p := NewPool(Options{Threads: 8, Logger: quietLogger(), Metrics: monitoring.NewMetrics()})
	var mu sync.Mutex
	active := 0
	maxActive := 0
	p.hash = func(ctx context.Context, j job) Result {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		// later inputs finish first
		time.Sleep(time.Duration(len(paths)-j.index) * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return Result{Index: j.index, Path: j.path}
	}

	var got []string
	if err := p.Run(context.Background(), paths, func(r Result) {
		got = append(got, r.Path)
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff(paths, got); diff != "" {
		t.Fatalf("results out of order (-want +got):\n%s", diff)
	}
	if maxActive > 8 {
		t.Fatalf("%d concurrent jobs with 8 threads", maxActive)
	}
}

func TestWorkers(t *testing.T) {
	p := NewPool(Options{Threads: 4, Logger: quietLogger()})
	if got := p.Workers(2); got != 2 {
		t.Errorf("Workers(2) = %d, want 2", got)
	}
	if got := p.Workers(10); got != 4 {
		t.Errorf("Workers(10) = %d, want 4", got)
	}
	p = NewPool(Options{Logger: quietLogger()})
	if got := p.Workers(1 << 20); got < 1 {
		t.Errorf("default workers = %d", got)
	}
}

func TestRunHashesFiles(t *testing.T) {
	dir := t.TempDir()
	foo := filepath.Join(dir, "foobar")
	os.WriteFile(foo, []byte("foobar"), 0644)
	empty := filepath.Join(dir, "empty")
	os.WriteFile(empty, nil, 0644)
	missing := filepath.Join(dir, "missing")

	metrics := monitoring.NewMetrics()
	p := NewPool(Options{Mode: ed2k.Current, Threads: 2, Logger: quietLogger(), Metrics: metrics})

	var results []Result
	err := p.Run(context.Background(), []string{foo, missing, dir, empty}, func(r Result) {
		results = append(results, r)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}

	if results[0].Err != nil || results[0].Link.String() != "ed2k://|file|foobar|6|547aefd231dcbaac398625718336f143|/" {
		t.Errorf("foobar: %+v", results[0])
	}
	if apperrors.GetErrorCode(results[1].Err) != apperrors.ErrCodeFileNotFound {
		t.Errorf("missing: expected FILE_NOT_FOUND, got %v", results[1].Err)
	}
	if apperrors.GetErrorCode(results[2].Err) != apperrors.ErrCodeNotRegularFile {
		t.Errorf("dir: expected NOT_REGULAR_FILE, got %v", results[2].Err)
	}
	if results[3].Err != nil || results[3].Link.Digest.String() != "31d6cfe0d16ae931b73c59d7e0c089c0" {
		t.Errorf("empty: %+v", results[3])
	}

	if metrics.FilesHashed.Load() != 2 || metrics.FilesFailed.Load() != 2 || metrics.BytesHashed.Load() != 6 {
		t.Errorf("metrics: hashed=%d failed=%d bytes=%d",
			metrics.FilesHashed.Load(), metrics.FilesFailed.Load(), metrics.BytesHashed.Load())
	}
}

func TestRunAgreesWithHashFile(t *testing.T) {
	dir := t.TempDir()
	foo := filepath.Join(dir, "foobar")
	os.WriteFile(foo, []byte("foobar"), 0644)
	paths := []string{foo, filepath.Join(dir, "missing"), dir}

	p := NewPool(Options{Mode: ed2k.Legacy, Threads: 3, Logger: quietLogger(), Metrics: monitoring.NewMetrics()})
	var results []Result
	if err := p.Run(context.Background(), paths, func(r Result) { results = append(results, r) }); err != nil {
		t.Fatalf("run: %v", err)
	}

	for i, path := range paths {
		link, err := ed2k.HashFile(path, ed2k.Legacy)
		r := results[i]
		if err != nil {
			want := apperrors.Classify(err)
			if r.Err == nil || r.Err.Error() != want.Error() || apperrors.GetErrorCode(r.Err) != want.Code {
				t.Errorf("%s: pool error %v, library error %v", path, r.Err, want)
			}
			continue
		}
		if r.Err != nil || *r.Link != *link {
			t.Errorf("%s: pool %+v, library %+v", path, r, link)
		}
	}
	if !errors.Is(results[2].Err, ed2k.ErrNotRegularFile) {
		t.Errorf("directory error does not wrap ed2k.ErrNotRegularFile: %v", results[2].Err)
	}
}

func TestRunUsesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fox")
	os.WriteFile(path, []byte("The quick brown fox jumps over the lazy dog"), 0644)

	db, err := persistence.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	store, err := cache.New(db, 16)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	metrics := monitoring.NewMetrics()
	p := NewPool(Options{Mode: ed2k.Legacy, Threads: 1, Cache: store, Logger: quietLogger(), Metrics: metrics})

	var first, second Result
	p.Run(context.Background(), []string{path}, func(r Result) { first = r })
	p.Run(context.Background(), []string{path}, func(r Result) { second = r })

	if first.Err != nil || first.Cached {
		t.Fatalf("first run: %+v", first)
	}
	if second.Err != nil || !second.Cached {
		t.Fatalf("second run not served from cache: %+v", second)
	}
	if first.Link.String() != second.Link.String() {
		t.Fatalf("cached link %s != %s", second.Link, first.Link)
	}
	if second.Link.Digest.String() != "1bee69a46ba811185c194762abaeae90" {
		t.Fatalf("unexpected digest %s", second.Link.Digest)
	}
	if metrics.CacheHits.Load() != 1 || metrics.CacheMisses.Load() != 1 {
		t.Fatalf("cache metrics hits=%d misses=%d", metrics.CacheHits.Load(), metrics.CacheMisses.Load())
	}
}

func TestRunStopsDispatchOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(Options{Threads: 1, Logger: quietLogger()})
	p.hash = func(ctx context.Context, j job) Result {
		if j.index == 0 {
			cancel()
		}
		return Result{Index: j.index, Path: j.path}
	}

	var got []int
	err := p.Run(ctx, []string{"a", "b", "c", "d", "e"}, func(r Result) {
		got = append(got, r.Index)
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) == 0 || got[0] != 0 {
		t.Fatalf("dispatched job was not emitted: %v", got)
	}
	// at most one job can be in flight past the cancel with one worker
	if len(got) > 2 {
		t.Fatalf("dispatch continued after cancel: %v", got)
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("emitted out of order: %v", got)
		}
	}
}
