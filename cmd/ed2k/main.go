package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/hoangsonww/ed2k/config"
	"github.com/hoangsonww/ed2k/ed2k"
	"github.com/hoangsonww/ed2k/internal/cache"
	apperrors "github.com/hoangsonww/ed2k/internal/errors"
	"github.com/hoangsonww/ed2k/internal/manifest"
	"github.com/hoangsonww/ed2k/internal/monitoring"
	"github.com/hoangsonww/ed2k/internal/persistence"
	"github.com/hoangsonww/ed2k/internal/pipeline"
	"github.com/hoangsonww/ed2k/internal/ratelimit"
	"github.com/hoangsonww/ed2k/internal/shutdown"
)

func init() {
	// don't import `go.uber.org/automaxprocs` to disable the log output
	_, _ = maxprocs.Set()
}

// errFilesFailed is returned when at least one input could not be hashed.
// The individual failures have already been reported.
var errFilesFailed = errors.New("some files could not be hashed")

type options struct {
	cfgFile   string
	legacy    bool
	threads   int
	cache     bool
	cachePath string
	maxRate   int64
	manifest  string
	stats     bool
	logLevel  string
	logFormat string
}

func main() {
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(context.Background())
	if err != nil {
		if !errors.Is(err, errFilesFailed) {
			fmt.Fprintf(os.Stderr, "ed2k: %v\n", err)
		}
		os.Exit(apperrors.ExitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ed2k [flags] FILE...",
		Short: "Print eD2k links for files",
		Long: `
ed2k hashes each FILE with the eD2k chunked MD4 algorithm and prints one
ed2k://|file|... link per file, in argument order.
`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return apperrors.NewUsageError("at least one FILE is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(cmd, opts, args, stdout, stderr)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperrors.WrapError(apperrors.ErrCodeUsage, "invalid arguments", err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.cfgFile, "config", "c", "", "path to config file")
	pf.StringVar(&opts.cachePath, "cache-path", "", "digest cache database (default <user cache dir>/ed2k/cache.db)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	f := root.Flags()
	f.BoolVarP(&opts.legacy, "legacy", "l", false, "use the legacy hash for files that end on a block boundary")
	f.IntVarP(&opts.threads, "num-threads", "t", 0, "number of files hashed in parallel (default GOMAXPROCS)")
	f.BoolVar(&opts.cache, "cache", false, "reuse digests of unchanged files")
	f.Int64Var(&opts.maxRate, "max-rate", 0, "limit total read rate in bytes per second")
	f.StringVar(&opts.manifest, "manifest", "", "write a JSON lines manifest (.gz and .zst are compressed)")
	f.BoolVar(&opts.stats, "stats", false, "print a run summary to stderr")

	root.AddCommand(
		newCacheCmd(opts, stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

// loadConfig reads the config file (or defaults) and applies the flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.cfgFile != "" {
		cfg, err = config.Load(opts.cfgFile)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("legacy") {
		cfg.Hashing.Legacy = opts.legacy
	}
	if flags.Changed("num-threads") {
		if opts.threads < 1 {
			return nil, apperrors.NewUsageError(fmt.Sprintf("--num-threads must be >= 1, got %d", opts.threads))
		}
		cfg.Hashing.Threads = opts.threads
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = opts.cache
	}
	if flags.Changed("cache-path") {
		cfg.Cache.Path = opts.cachePath
	}
	if flags.Changed("max-rate") {
		cfg.Hashing.MaxBytesPerSec = opts.maxRate
	}
	if flags.Changed("manifest") {
		cfg.Output.Manifest = opts.manifest
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeUsage, "invalid flags", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config, stderr io.Writer) *monitoring.Logger {
	logger := monitoring.NewLogger(cfg.Logging.Level, cfg.Logging.Format, stderr)
	monitoring.SetGlobalLogger(logger)
	return logger
}

func openCache(cfg *config.Config) (*cache.Store, *persistence.DB, error) {
	db, err := persistence.Open(cfg.Cache.Path)
	if err != nil {
		return nil, nil, apperrors.WrapError(apperrors.ErrCodeCacheUnavailable,
			fmt.Sprintf("open cache %s", cfg.Cache.Path), err)
	}
	store, err := cache.New(db, cfg.Cache.LRUSize)
	if err != nil {
		db.Close()
		return nil, nil, apperrors.WrapError(apperrors.ErrCodeCacheUnavailable, "create cache", err)
	}
	return store, db, nil
}

func runHash(cmd *cobra.Command, opts *options, paths []string, stdout, stderr io.Writer) error {
	start := time.Now()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, stderr)
	metrics := monitoring.NewMetrics()
	mode := ed2k.ModeFor(cfg.Hashing.Legacy)

	poolOpts := pipeline.Options{
		Mode:       mode,
		Threads:    cfg.Hashing.Threads,
		BufferSize: cfg.Hashing.BufferSize,
		Limiter:    ratelimit.NewLimiter(cfg.Hashing.MaxBytesPerSec),
		Metrics:    metrics,
		Logger:     logger,
	}

	mgr := shutdown.NewManager(30 * time.Second)
	ctx, stop := mgr.WatchSignals(cmd.Context())
	defer stop()

	if cfg.Cache.Enabled {
		store, db, err := openCache(cfg)
		if err != nil {
			logger.WithError(err).Warn("Digest cache unavailable, hashing without it")
		} else {
			poolOpts.Cache = store
			mgr.RegisterHook("close-cache", 90, 10*time.Second, func(context.Context) error {
				return db.Close()
			})
		}
	}

	var mw *manifest.Writer
	if cfg.Output.Manifest != "" {
		mw, err = manifest.Create(cfg.Output.Manifest, cfg.Output.CompressionLevel)
		if err != nil {
			mgr.Shutdown()
			return err
		}
		mgr.RegisterHook("close-manifest", 10, 10*time.Second, func(context.Context) error {
			return mw.Close()
		})
	}

	failed := 0
	var manifestErr error
	runErr := pipeline.NewPool(poolOpts).Run(ctx, paths, func(r pipeline.Result) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(stderr, "ed2k: %s: %v\n", r.Path, r.Err)
		} else {
			fmt.Fprintln(stdout, r.Link)
		}
		if mw != nil && manifestErr == nil {
			manifestErr = mw.Write(manifestRecord(r, mode))
		}
	})

	if err := mgr.Shutdown(); err != nil && manifestErr == nil {
		manifestErr = err
	}

	if opts.stats {
		metrics.WriteSummary(stderr, time.Since(start))
	}

	switch {
	case runErr != nil:
		return runErr
	case manifestErr != nil:
		return manifestErr
	case failed > 0:
		return errFilesFailed
	}
	return nil
}

func manifestRecord(r pipeline.Result, mode ed2k.Mode) manifest.Record {
	rec := manifest.Record{
		Path:   r.Path,
		Legacy: mode == ed2k.Legacy,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
		return rec
	}
	rec.Name = r.Link.Name
	rec.Size = r.Link.Size
	rec.Ed2k = r.Link.Digest.String()
	rec.Link = r.Link.String()
	return rec
}
