// Package service runs the blink service: a worker goroutine that owns the
// IPC endpoint and the strip, and the lifecycle that starts and stops it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lautenbacher.net/blinkd/controller"
	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc"
)

const DefaultRetryDelay = 100 * time.Millisecond

var (
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotRunning     = errors.New("service not running")
	ErrNilStrip       = errors.New("strip is nil")
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EndpointFactory opens a fresh endpoint. It is called on the worker
// goroutine once per Start.
type EndpointFactory func() (ipc.Endpoint, error)

type Options struct {
	// Name is the well-known name registered on the endpoint.
	Name string
	// Path is the object path the dispatcher is published under.
	Path string
	// RetryDelay is the pause after a transport error. Zero means
	// DefaultRetryDelay.
	RetryDelay time.Duration
	// Hook, if set, sees every handled call.
	Hook DispatchHook
}

// Service owns at most one worker at a time. Start and Stop may be called
// from any goroutine; they are serialized.
type Service struct {
	opts    Options
	connect EndpointFactory

	lifecycle sync.Mutex
	state     atomic.Int32
	alive     atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(opts Options, connect EndpointFactory) *Service {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Service{opts: opts, connect: connect}
}

func (s *Service) State() State {
	return State(s.state.Load())
}

// Alive reports whether the worker is dispatching calls.
func (s *Service) Alive() bool {
	return s.alive.Load()
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
	serviceState.Set(float64(st))
}

// Start hands strip to a new worker and returns once the name is registered
// and the object published. On error the worker has already exited and the
// strip belongs to the caller again.
func (s *Service) Start(strip device.Strip) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != Stopped {
		return ErrAlreadyRunning
	}
	if strip == nil {
		return ErrNilStrip
	}

	s.setState(Starting)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})
	go s.run(ctx, strip, ready, done)

	if err := <-ready; err != nil {
		cancel()
		<-done
		s.setState(Stopped)
		serviceStarts.WithLabelValues("error").Inc()
		slog.Error("Failed to start service", "name", s.opts.Name, "error", err)
		return err
	}

	s.cancel = cancel
	s.done = done
	serviceStarts.WithLabelValues("ok").Inc()
	slog.Info("Service started", "name", s.opts.Name, "path", s.opts.Path)
	return nil
}

// Stop cancels the worker and waits for it to exit. A call that is being
// handled completes first.
func (s *Service) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.done == nil {
		return ErrNotRunning
	}

	s.setState(Stopping)
	s.alive.Store(false)
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.setState(Stopped)
	slog.Info("Service stopped", "name", s.opts.Name)
	return nil
}

func (s *Service) run(ctx context.Context, strip device.Strip, ready chan<- error, done chan<- struct{}) {
	defer close(done)

	ep, err := s.connect()
	if err != nil {
		ready <- fmt.Errorf("%w: failed to connect: %w", ipc.ErrRegistration, err)
		return
	}
	defer func() {
		if err := ep.Close(); err != nil {
			slog.Warn("Failed to close endpoint", "error", err)
		}
	}()

	if err := ep.RegisterName(s.opts.Name); err != nil {
		ready <- ensureWrapped(err, ipc.ErrRegistration)
		return
	}
	dispatcher := NewDispatcher(controller.New(strip), s.opts.Hook)
	if err := ep.Publish(s.opts.Path, dispatcher); err != nil {
		ready <- ensureWrapped(err, ipc.ErrPublish)
		return
	}

	s.alive.Store(true)
	s.setState(Running)
	ready <- nil

	s.loop(ctx, ep)
}

func (s *Service) loop(ctx context.Context, ep ipc.Endpoint) {
	for s.alive.Load() {
		err := ep.DispatchNext(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, ipc.ErrClosed):
			slog.Error("Endpoint closed while running", "name", s.opts.Name)
			s.alive.Store(false)
			return
		default:
			dispatchErrors.Inc()
			slog.Error("Failed to dispatch call", "error", err, "retry", s.opts.RetryDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.RetryDelay):
			}
		}
	}
}

func ensureWrapped(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
