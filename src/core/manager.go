package core

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	ErrStarted    = errors.New("core: manager already started")
	ErrAddStarted = errors.New("core: cannot add modules after start")
)

// Module is a long-running part of the service: the HTTP server, the
// background refresher.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager starts modules in order and stops them in reverse.
type Manager struct {
	modules []Module
	log     *zap.Logger
	mu      sync.Mutex
	started bool
}

func NewManager(log *zap.Logger, mods ...Module) *Manager {
	return &Manager{modules: mods, log: log.Named("core")}
}

func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAddStarted
	}
	m.modules = append(m.modules, mod)
	return nil
}

// Start starts every module. When one fails, the ones already running are
// stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrStarted
	}

	started := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if mod == nil {
			continue
		}
		if err := mod.Start(ctx); err != nil {
			m.log.Error("module failed to start", zap.String("module", mod.Name()), zap.Error(err))
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return &StartError{Module: mod.Name(), Err: err}
		}
		m.log.Info("module started", zap.String("module", mod.Name()))
		started = append(started, mod)
	}

	m.started = true
	return nil
}

func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.modules) - 1; i >= 0; i-- {
		if mod := m.modules[i]; mod != nil {
			mod.Stop(ctx)
			m.log.Info("module stopped", zap.String("module", mod.Name()))
		}
	}
	m.started = false
}

// Run starts the modules, blocks until ctx ends or SIGINT/SIGTERM arrives,
// then stops them within shutdownTimeout.
func (m *Manager) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.log.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	m.Stop(shutCtx)
	return nil
}

type StartError struct {
	Module string
	Err    error
}

func (e *StartError) Error() string { return "module " + e.Module + " failed: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }
