// Package agentrt assembles a runnable agent system from configuration: it
// picks the platform, builds the container, creates the configured agents
// through registered factories and wires logging, tracing, metrics and the
// optional Redis relay.
//
//	agentrt.Register("thermostat", func(cfg config.AgentConfig) ([]agent.Option, error) {
//	    period, err := cfg.GetDuration("period", time.Second)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return []agent.Option{agent.WithInit(func(a *agent.Agent) {
//	        a.Add(agent.NewTicker(period, sample))
//	    })}, nil
//	})
//	if err := agentrt.Run("agents.yaml"); err != nil {
//	    log.Fatal(err)
//	}
package agentrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/internal/logging"
	tracing "github.com/aixgo-dev/agentrt/internal/observability"
	"github.com/aixgo-dev/agentrt/pkg/config"
	"github.com/aixgo-dev/agentrt/pkg/observability"
	"github.com/aixgo-dev/agentrt/pkg/relay"
	"github.com/aixgo-dev/agentrt/platform"
)

// ShutdownTimeout bounds the graceful shutdown performed by Run
const ShutdownTimeout = 30 * time.Second

// FactoryFunc turns the configuration of one agent into the options its agent
// is built with. The runtime adds type, seed and queue size from the
// configuration itself.
type FactoryFunc func(cfg config.AgentConfig) ([]agent.Option, error)

// Registry maps agent types to factories
type Registry struct {
	factories map[string]FactoryFunc
	mu        sync.RWMutex
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry (useful for testing)
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FactoryFunc),
	}
}

// Register installs factory for typ, replacing any previous one
func (r *Registry) Register(typ string, factory FactoryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = factory
}

// Factory returns the factory registered for typ
func (r *Registry) Factory(typ string) (FactoryFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Types returns the registered agent types in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Register registers a factory with the default registry
func Register(typ string, factory FactoryFunc) {
	defaultRegistry.Register(typ, factory)
}

// Types returns the agent types known to the default registry
func Types() []string {
	return defaultRegistry.Types()
}

// Runtime is a platform, its container and the configured agents
type Runtime struct {
	cfg      *config.Config
	registry *Registry
	logger   *slog.Logger

	platform  platform.Platform
	container *agent.Container
	relay     *relay.Redis
	health    *observability.HealthChecker
	server    *observability.Server
}

// Option configures a Runtime
type Option func(*Runtime)

// WithRegistry uses r instead of the default registry
func WithRegistry(r *Registry) Option {
	return func(rt *Runtime) { rt.registry = r }
}

// WithLogger uses l instead of building a logger from the logging section
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// New builds a runtime from cfg. A nil cfg means config.Default(). Agents
// are created and registered but nothing runs until Run.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rt := &Runtime{cfg: cfg, registry: defaultRegistry}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		l, err := logging.New(logging.Config{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			NoColor: cfg.Logging.NoColor,
		})
		if err != nil {
			return nil, err
		}
		rt.logger = l
	}

	popts := []platform.Option{
		platform.WithLogger(rt.logger),
		platform.WithTimeOffset(cfg.Platform.TimeOffset.Duration),
	}
	switch cfg.Platform.Type {
	case config.PlatformDiscrete:
		rt.platform = platform.NewDiscreteEvent(append(popts, platform.WithSpeed(cfg.Platform.Speed))...)
	default:
		rt.platform = platform.NewRealTime(popts...)
	}
	rt.logger = logging.WithClock(rt.logger, rt.platform.CurrentTimeMillis)

	copts := []agent.ContainerOption{
		agent.WithName(cfg.Container.Name),
		agent.WithAutoClone(cfg.Container.AutoClone),
		agent.WithContainerLogger(rt.logger),
	}
	if cfg.Container.QueueSize != nil {
		copts = append(copts, agent.WithDefaultQueueSize(*cfg.Container.QueueSize))
	}
	if cfg.Relay.Type == "redis" {
		r, err := relay.New(relay.Config{
			Addr:         cfg.Relay.Addr,
			Password:     cfg.Relay.Password,
			DB:           cfg.Relay.DB,
			Prefix:       cfg.Relay.Prefix,
			SyncInterval: cfg.Relay.SyncInterval.Duration,
			Logger:       rt.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect relay: %w", err)
		}
		rt.relay = r
		copts = append(copts, agent.WithRelay(r))
	}
	rt.container = agent.NewContainer(rt.platform, copts...)
	if rt.relay != nil {
		rt.relay.Bind(rt.container)
	}

	for _, ac := range cfg.Agents {
		if err := rt.addAgent(ac); err != nil {
			rt.closeRelay()
			return nil, err
		}
	}

	rt.health = observability.NewHealthChecker()
	rt.health.RegisterCheck(observability.RunningCheck("platform", rt.platform.IsRunning))
	rt.health.RegisterCheck(observability.RunningCheck("container", rt.container.IsRunning))
	if cfg.Observability.MetricsPort > 0 {
		observability.InitMetrics()
		rt.server = observability.NewServer(cfg.Observability.MetricsPort, rt.health)
	}
	return rt, nil
}

func (rt *Runtime) addAgent(ac config.AgentConfig) error {
	factory, ok := rt.registry.Factory(ac.Type)
	if !ok {
		return fmt.Errorf("agent %s: unknown type %q", ac.Name, ac.Type)
	}
	opts, err := factory(ac)
	if err != nil {
		return fmt.Errorf("agent %s: %w", ac.Name, err)
	}

	base := []agent.Option{agent.WithType(ac.Type)}
	if ac.Seed != nil {
		base = append(base, agent.WithSeed(*ac.Seed))
	}
	if ac.QueueSize != nil {
		base = append(base, agent.WithQueueSize(*ac.QueueSize))
	}
	a := agent.NewAgent(append(base, opts...)...)
	if _, err := rt.container.Add(ac.Name, a); err != nil {
		return err
	}

	for _, s := range ac.Services {
		if err := a.RegisterService(s); err != nil {
			return fmt.Errorf("agent %s: %w", ac.Name, err)
		}
	}
	for _, t := range ac.Topics {
		if err := a.Subscribe(agent.Topic(t)); err != nil {
			return fmt.Errorf("agent %s: %w", ac.Name, err)
		}
	}
	rt.logger.Debug("Agent created", "agent", ac.Name, "type", ac.Type)
	return nil
}

// Config returns the configuration the runtime was built from
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Platform returns the runtime platform
func (rt *Runtime) Platform() platform.Platform { return rt.platform }

// Container returns the runtime container
func (rt *Runtime) Container() *agent.Container { return rt.container }

// Logger returns the clock-stamped runtime logger
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Health returns the runtime health checker
func (rt *Runtime) Health() *observability.HealthChecker { return rt.health }

// Run starts the runtime and blocks until ctx is cancelled, the configured
// run time has elapsed, or a discrete platform runs out of events. It then
// shuts everything down.
func (rt *Runtime) Run(ctx context.Context) error {
	tcfg := rt.cfg.Observability.Tracing
	if err := tracing.Init(tracing.Config{
		ServiceName:  tcfg.ServiceName,
		Enabled:      tcfg.Exporter != "none",
		ExporterType: tcfg.Exporter,
		OTLPEndpoint: tcfg.Endpoint,
		Logger:       rt.logger,
	}); err != nil {
		rt.logger.Warn("Tracing unavailable", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := new(errgroup.Group)
	if rt.server != nil {
		g.Go(func() error {
			rt.logger.Info("Serving metrics and health", "port", rt.cfg.Observability.MetricsPort)
			if err := rt.server.Start(); err != nil {
				cancel()
				return fmt.Errorf("observability server: %w", err)
			}
			return nil
		})
	}

	if d := rt.cfg.Platform.RunFor.Duration; d > 0 {
		// a discrete run must stop inside the driver, otherwise the clock
		// keeps advancing until the shutdown below catches up
		if sim, ok := rt.platform.(*platform.DiscreteEvent); ok {
			sim.Schedule(sim.Halt, d)
		} else {
			rt.platform.Schedule(cancel, d)
		}
	}
	if rt.relay != nil {
		if err := rt.relay.Start(runCtx); err != nil {
			cancel()
			return errors.Join(fmt.Errorf("start relay: %w", err), rt.stop(g))
		}
	}
	if err := rt.platform.Start(runCtx); err != nil {
		cancel()
		return errors.Join(fmt.Errorf("start platform: %w", err), rt.stop(g))
	}
	rt.logger.Info("Runtime started",
		"platform", rt.cfg.Platform.Type,
		"container", rt.container.Name(),
		"agents", rt.container.Len(),
	)

	select {
	case <-runCtx.Done():
	case <-rt.platform.Done():
	}
	return rt.stop(g)
}

// stop shuts the platform, relay, observability server and tracing down
// and waits for background work
func (rt *Runtime) stop(g *errgroup.Group) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := rt.platform.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	rt.closeRelay()
	if rt.server != nil {
		if err := rt.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := tracing.Shutdown(ctx); err != nil {
		rt.logger.Warn("Tracing shutdown failed", "error", err)
	}
	rt.logger.Info("Runtime stopped", "t_end", rt.platform.CurrentTimeMillis())
	return errors.Join(errs...)
}

func (rt *Runtime) closeRelay() {
	if rt.relay == nil {
		return
	}
	if err := rt.relay.Close(); err != nil {
		rt.logger.Warn("Relay close failed", "error", err)
	}
}

// Run loads the configuration at configPath, builds a runtime from the
// default registry and runs it until SIGINT or SIGTERM.
func Run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rt.Run(ctx)
}

// Missing returns the configured agent types that have no registered
// factory in r
func Missing(cfg *config.Config, r *Registry) []string {
	if r == nil {
		r = defaultRegistry
	}
	var missing []string
	for _, ac := range cfg.Agents {
		if _, ok := r.Factory(ac.Type); !ok && !slices.Contains(missing, ac.Type) {
			missing = append(missing, ac.Type)
		}
	}
	return missing
}
