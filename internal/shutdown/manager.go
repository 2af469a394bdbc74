package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/hoangsonww/ed2k/internal/monitoring"
)

// Hook represents a cleanup function to run on shutdown
type Hook struct {
	Name     string
	Priority int // Lower priority runs first
	Func     func(context.Context) error
	Timeout  time.Duration
}

// Manager cancels a run on SIGINT or SIGTERM and runs cleanup hooks once
// the run is over, whether it was interrupted or not.
type Manager struct {
	mu      sync.Mutex
	hooks   []*Hook
	timeout time.Duration
	logger  *monitoring.Logger

	once sync.Once
	err  error
}

// NewManager creates a new shutdown manager. timeout bounds all hooks
// together.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		logger:  monitoring.GetLogger(),
	}
}

// RegisterHook registers a shutdown hook
func (m *Manager) RegisterHook(name string, priority int, timeout time.Duration, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, &Hook{
		Name:     name,
		Priority: priority,
		Func:     fn,
		Timeout:  timeout,
	})
	sort.SliceStable(m.hooks, func(i, j int) bool {
		return m.hooks[i].Priority < m.hooks[j].Priority
	})

	m.logger.WithFields(map[string]interface{}{
		"hook":     name,
		"priority": priority,
	}).Debug("Shutdown hook registered")
}

// WatchSignals returns a context that is canceled when the process receives
// SIGINT or SIGTERM. The returned stop function releases the signal handler.
func (m *Manager) WatchSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-signals:
			m.logger.WithField("signal", sig.String()).Warn("Received signal, finishing files already started")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(signals)
		cancel()
	}
}

// Shutdown runs the hooks in priority order and returns their combined
// errors. Later calls return the result of the first.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.err = m.runHooks()
	})
	return m.err
}

func (m *Manager) runHooks() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	hooks := make([]*Hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	var errs []error
	for _, hook := range hooks {
		logger := m.logger.WithField("hook", hook.Name)

		hookCtx, hookCancel := context.WithTimeout(ctx, hook.Timeout)
		done := make(chan error, 1)
		go func(h *Hook) {
			done <- h.Func(hookCtx)
		}(hook)

		select {
		case err := <-done:
			if err != nil {
				logger.WithError(err).Error("Shutdown hook failed")
				errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			} else {
				logger.Debug("Shutdown hook completed")
			}
		case <-hookCtx.Done():
			logger.Warn("Shutdown hook timeout")
			errs = append(errs, fmt.Errorf("%s: timeout", hook.Name))
		}

		hookCancel()
	}

	return errors.Join(errs...)
}
