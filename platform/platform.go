// Package platform provides the time and scheduling substrate that agent
// containers run on.
//
// Two implementations are provided. RealTime passes straight through to the
// wall clock and standard timers. DiscreteEvent owns a virtual clock that only
// advances once every container reports that all of its agents are idle, so
// computation is instantaneous relative to simulated time.
//
//	p := platform.NewDiscreteEvent()
//	c := agent.NewContainer(p)
//	c.Add("ticker", agent.NewAgent(agent.WithInit(setup)))
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	<-p.Done()
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyRunning is returned when Start is called on a running platform
	ErrAlreadyRunning = errors.New("platform already running")

	// ErrShutdown is returned when Start is called on a platform that has been shut down
	ErrShutdown = errors.New("platform shut down")
)

// Container is the view a Platform has of a container of agents.
type Container interface {
	// Name returns the container name, used for logging.
	Name() string

	// Init spawns the agents of the container and returns once every agent
	// has completed its init hook and reports idle.
	Init(ctx context.Context) error

	// Start releases the initialized agents into the running state.
	Start(ctx context.Context) error

	// Shutdown stops every agent and waits until all have terminated.
	Shutdown(ctx context.Context) error

	// IsIdle reports whether every agent in the container is idle.
	IsIdle() bool
}

// Platform is the time source and delayed-callback scheduler shared by the
// containers it owns.
type Platform interface {
	// CurrentTimeMillis returns the platform time in milliseconds.
	CurrentTimeMillis() int64

	// NanoTime returns a monotonic platform time in nanoseconds.
	NanoTime() int64

	// Schedule arranges for task to run once the platform time reaches now+delay.
	// Tasks must not block.
	Schedule(task func(), delay time.Duration)

	// Idle is called by a container whenever all of its agents become idle.
	Idle()

	// Delay blocks the calling goroutine for d of platform time. It must not be
	// called from an agent goroutine.
	Delay(d time.Duration)

	// AddContainer attaches a container to the platform.
	AddContainer(c Container)

	// Containers returns the attached containers in the order they were added.
	Containers() []Container

	// Start initializes and then starts every container.
	Start(ctx context.Context) error

	// Shutdown shuts every container down and marks the platform stopped.
	Shutdown(ctx context.Context) error

	// IsRunning reports whether the platform has been started and not shut down.
	IsRunning() bool

	// Done is closed once the platform has shut down.
	Done() <-chan struct{}
}

// Config contains options shared by the platform implementations
type Config struct {
	// Logger receives platform lifecycle logs
	// Default: slog.Default()
	Logger *slog.Logger

	// Speed throttles the discrete-event clock to Speed simulated seconds per
	// real second (DiscreteEvent only, 0 = as fast as possible)
	// Default: 0
	Speed float64

	// TimeOffset shifts the reported platform time. For RealTime it is added
	// to the wall clock, for DiscreteEvent it is the initial virtual time.
	// Default: 0
	TimeOffset time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Logger: slog.Default(),
	}
}

// Option is a functional option for configuring a platform
type Option func(*Config)

// WithLogger sets the platform logger
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// WithSpeed sets the discrete-event speed multiplier
func WithSpeed(speed float64) Option {
	return func(cfg *Config) {
		cfg.Speed = speed
	}
}

// WithTimeOffset sets the platform time offset
func WithTimeOffset(offset time.Duration) Option {
	return func(cfg *Config) {
		cfg.TimeOffset = offset
	}
}

const (
	stateNew = iota
	stateRunning
	stateShutdown
)

// base holds the container bookkeeping common to both platforms.
type base struct {
	cfg    *Config
	logger *slog.Logger

	mu         sync.Mutex
	containers []Container
	state      int
	done       chan struct{}
}

func newBase(kind string, opts []Option) base {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return base{
		cfg:    cfg,
		logger: cfg.Logger.With("platform", kind),
		done:   make(chan struct{}),
	}
}

// AddContainer attaches a container to the platform
func (b *base) AddContainer(c Container) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.containers = append(b.containers, c)
}

// Containers returns the attached containers
func (b *base) Containers() []Container {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Container, len(b.containers))
	copy(out, b.containers)
	return out
}

// IsRunning reports whether the platform is running
func (b *base) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateRunning
}

// Done is closed once the platform has shut down
func (b *base) Done() <-chan struct{} {
	return b.done
}

func (b *base) start(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case stateRunning:
		b.mu.Unlock()
		return ErrAlreadyRunning
	case stateShutdown:
		b.mu.Unlock()
		return ErrShutdown
	}
	b.state = stateRunning
	containers := make([]Container, len(b.containers))
	copy(containers, b.containers)
	b.mu.Unlock()

	for _, c := range containers {
		if err := c.Init(ctx); err != nil {
			return fmt.Errorf("init container %s: %w", c.Name(), err)
		}
	}
	for _, c := range containers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start container %s: %w", c.Name(), err)
		}
	}
	b.logger.Info("Platform started", "containers", len(containers))
	return nil
}

func (b *base) shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.state != stateRunning {
		if b.state == stateNew {
			b.state = stateShutdown
			close(b.done)
		}
		b.mu.Unlock()
		return nil
	}
	b.state = stateShutdown
	containers := make([]Container, len(b.containers))
	copy(containers, b.containers)
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range containers {
		g.Go(func() error {
			if err := c.Shutdown(gctx); err != nil {
				return fmt.Errorf("shutdown container %s: %w", c.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	close(b.done)

	if err != nil {
		b.logger.Error("Platform shutdown incomplete", "error", err)
		return err
	}
	b.logger.Info("Platform stopped")
	return nil
}

func (b *base) allIdle() bool {
	for _, c := range b.Containers() {
		if !c.IsIdle() {
			return false
		}
	}
	return true
}
