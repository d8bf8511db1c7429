package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	tracing "github.com/aixgo-dev/agentrt/internal/observability"
	"github.com/aixgo-dev/agentrt/pkg/observability"
	"github.com/aixgo-dev/agentrt/platform"
)

// DefaultContainerName is used when no name is configured
const DefaultContainerName = "main"

// pollInterval paces the Init and Shutdown barriers
const pollInterval = 10 * time.Millisecond

// Container is the registry and router for a group of agents sharing one
// platform. It tracks which agents are idle so the platform can tell when
// the whole group is quiescent.
type Container struct {
	name      string
	platform  platform.Platform
	logger    *slog.Logger
	autoClone bool
	queueSize int
	relay     Relay

	mu          sync.RWMutex
	agents      map[string]*Agent
	order       []*Agent
	topics      map[string][]*Agent
	services    map[string][]AgentID
	initialized bool
	started     bool
	running     bool

	// idle bookkeeping, shared with agent workers and the platform driver
	idleMu sync.Mutex
	idle   map[*Agent]struct{}
	live   int
}

var _ platform.Container = (*Container)(nil)

// ContainerOption configures a Container
type ContainerOption func(*Container)

// WithName sets the container name
func WithName(name string) ContainerOption {
	return func(c *Container) { c.name = name }
}

// WithAutoClone makes the container deep copy every message before it is
// queued at a recipient
func WithAutoClone(enabled bool) ContainerOption {
	return func(c *Container) { c.autoClone = enabled }
}

// WithDefaultQueueSize sets the queue capacity of agents that do not set
// their own. 0 means unbounded.
func WithDefaultQueueSize(n int) ContainerOption {
	return func(c *Container) { c.queueSize = n }
}

// WithContainerLogger sets the container logger
func WithContainerLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) { c.logger = l }
}

// WithRelay installs an external relay
func WithRelay(r Relay) ContainerOption {
	return func(c *Container) { c.relay = r }
}

// NewContainer creates a container and attaches it to p
func NewContainer(p platform.Platform, opts ...ContainerOption) *Container {
	c := &Container{
		name:      DefaultContainerName,
		platform:  p,
		queueSize: DefaultQueueSize,
		agents:    make(map[string]*Agent),
		topics:    make(map[string][]*Agent),
		services:  make(map[string][]AgentID),
		idle:      make(map[*Agent]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("container", c.name)
	p.AddContainer(c)
	return c
}

// Name returns the container name
func (c *Container) Name() string { return c.name }

// Platform returns the platform the container runs on
func (c *Container) Platform() platform.Platform { return c.platform }

// Add registers a under name. Agents added after the container started are
// spawned and released immediately.
func (c *Container) Add(name string, a *Agent) (AgentID, error) {
	if name == "" {
		return AgentID{}, fmt.Errorf("%w: empty agent name", ErrInvalidName)
	}

	c.mu.Lock()
	if a.container != nil {
		c.mu.Unlock()
		return AgentID{}, fmt.Errorf("%w: %s", ErrAgentAlreadyAdded, name)
	}
	if _, exists := c.agents[name]; exists {
		c.mu.Unlock()
		return AgentID{}, fmt.Errorf("%w: %s", ErrAgentAlreadyRegistered, name)
	}
	a.bind(c, name, c.queueSize)
	c.agents[name] = a
	c.order = append(c.order, a)
	spawn := c.initialized
	if c.started {
		a.started = true
	}
	c.mu.Unlock()

	c.idleMu.Lock()
	c.live++
	c.idleMu.Unlock()

	if spawn {
		go a.run()
	}
	a.logger.Debug("Agent added", "type", a.typ)
	return a.id, nil
}

// Init spawns one worker per agent in registration order and waits until
// every agent has run its init hook and parked.
func (c *Container) Init(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "container.init", map[string]any{"container": c.name})
	defer span.End()

	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, c.name)
	}
	c.initialized = true
	c.running = true
	agents := slices.Clone(c.order)
	c.mu.Unlock()

	for _, a := range agents {
		go a.run()
	}
	if err := c.await(ctx, c.IsIdle); err != nil {
		span.SetError(err)
		return fmt.Errorf("init container %s: %w", c.name, err)
	}
	c.logger.Info("Container initialized", "agents", len(agents))
	return nil
}

// Start releases every initialized agent into RUNNING
func (c *Container) Start(ctx context.Context) error {
	_, span := tracing.StartSpan(ctx, "container.start", map[string]any{"container": c.name})
	defer span.End()

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInitialized, c.name)
	}
	if !c.IsIdle() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentsNotIdle, c.name)
	}
	c.started = true
	agents := slices.Clone(c.order)
	c.mu.Unlock()

	for _, a := range agents {
		a.release()
	}
	c.logger.Info("Container started", "agents", len(agents))
	return nil
}

// Shutdown stops every agent and waits until all have finished. Agents
// added while shutting down are stopped too.
func (c *Container) Shutdown(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "container.shutdown", map[string]any{"container": c.name})
	defer span.End()

	c.mu.Lock()
	if !c.initialized {
		c.running = false
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.await(ctx, func() bool {
		agents := c.snapshot()
		for _, a := range agents {
			a.Stop()
		}
		return len(agents) == 0
	})

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if err != nil {
		span.SetError(err)
		return fmt.Errorf("shutdown container %s: %w", c.name, err)
	}
	c.logger.Info("Container stopped")
	return nil
}

// await polls cond until it holds or ctx is done
func (c *Container) await(ctx context.Context, cond func() bool) error {
	if cond() {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// Kill stops the agent with the given id
func (c *Container) Kill(id AgentID) error {
	a := c.Agent(id)
	if a == nil {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.Stop()
	return nil
}

// Send routes msg to its recipient. Topic messages reach every current
// subscriber, and a subscriber whose copy cannot be cloned is skipped and
// reported in the returned error; direct messages reach exactly one agent. Messages that cannot
// be resolved locally are offered to the relay.
func (c *Container) Send(msg *Message) error {
	return c.send(msg, true)
}

// SendLocal routes msg without consulting the relay
func (c *Container) SendLocal(msg *Message) error {
	return c.send(msg, false)
}

func (c *Container) send(msg *Message, relay bool) error {
	if !c.IsRunning() {
		return fmt.Errorf("%w: %s", ErrContainerNotRunning, c.name)
	}
	observability.RecordMessageSent(c.name, msg.Perf.String())

	if msg.Recipient.IsTopic {
		c.mu.RLock()
		subs := slices.Clone(c.topics[msg.Recipient.Name])
		c.mu.RUnlock()
		// a failed clone drops the copy for that subscriber only
		var errs []error
		for _, a := range subs {
			if err := c.deliver(a, msg); err != nil {
				observability.RecordUndeliverable(c.name)
				c.logger.Warn("Dropped topic message for subscriber",
					"topic", msg.Recipient.Name,
					"agent", a.ID().Name,
					"error", err,
				)
				errs = append(errs, err)
			}
		}
		if relay {
			c.forward(msg)
		}
		return errors.Join(errs...)
	}

	c.mu.RLock()
	a := c.agents[msg.Recipient.Name]
	c.mu.RUnlock()
	if a != nil {
		return c.deliver(a, msg)
	}
	if relay && c.forward(msg) {
		return nil
	}
	observability.RecordUndeliverable(c.name)
	return fmt.Errorf("%w: %s", ErrAgentNotFound, msg.Recipient)
}

func (c *Container) deliver(a *Agent, msg *Message) error {
	if c.autoClone {
		clone, err := msg.Clone()
		if err != nil {
			return err
		}
		msg = clone
	}
	a.Deliver(msg)
	return nil
}

func (c *Container) forward(msg *Message) bool {
	if c.relay == nil {
		return false
	}
	_, span := tracing.StartSpan(context.Background(), "container.relay", map[string]any{
		"container": c.name,
		"recipient": msg.Recipient.String(),
	})
	defer span.End()
	ok := c.relay.Forward(msg)
	span.SetAttribute("forwarded", ok)
	return ok
}

// Subscribe adds a to the subscribers of topic
func (c *Container) Subscribe(topic AgentID, a *Agent) error {
	if !topic.IsTopic {
		return fmt.Errorf("%w: %s", ErrNotTopic, topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.topics[topic.Name]
	if !slices.Contains(subs, a) {
		c.topics[topic.Name] = append(subs, a)
	}
	return nil
}

// Unsubscribe removes a from the subscribers of topic
func (c *Container) Unsubscribe(topic AgentID, a *Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribeLocked(topic.Name, a)
}

func (c *Container) unsubscribeLocked(topic string, a *Agent) {
	subs := slices.DeleteFunc(c.topics[topic], func(s *Agent) bool { return s == a })
	if len(subs) == 0 {
		delete(c.topics, topic)
		return
	}
	c.topics[topic] = subs
}

// Subscribers returns the identifiers of the local subscribers of topic
func (c *Container) Subscribers(topic AgentID) []AgentID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := c.topics[topic.Name]
	ids := make([]AgentID, 0, len(subs))
	for _, a := range subs {
		ids = append(ids, a.id.bare())
	}
	return ids
}

// RegisterService records id as a provider of service
func (c *Container) RegisterService(service string, id AgentID) error {
	if service == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidName)
	}
	id = id.bare()
	c.mu.Lock()
	defer c.mu.Unlock()
	providers := c.services[service]
	if !slices.ContainsFunc(providers, id.Equal) {
		c.services[service] = append(providers, id)
	}
	return nil
}

// DeregisterService removes id from the providers of service
func (c *Container) DeregisterService(service string, id AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deregisterLocked(service, id)
}

func (c *Container) deregisterLocked(service string, id AgentID) {
	providers := slices.DeleteFunc(c.services[service], id.Equal)
	if len(providers) == 0 {
		delete(c.services, service)
		return
	}
	c.services[service] = providers
}

// AgentForService returns the first provider of service, local providers
// first
func (c *Container) AgentForService(service string) (AgentID, bool) {
	ids := c.AgentsForService(service)
	if len(ids) == 0 {
		return AgentID{}, false
	}
	return ids[0], true
}

// AgentsForService returns the local providers of service in registration
// order followed by those known to the relay
func (c *Container) AgentsForService(service string) []AgentID {
	c.mu.RLock()
	ids := slices.Clone(c.services[service])
	c.mu.RUnlock()
	if c.relay != nil {
		ids = append(ids, c.relay.AgentsForService(service)...)
	}
	return ids
}

// ContainsAgent reports whether id is a local agent or known to the relay
func (c *Container) ContainsAgent(id AgentID) bool {
	if c.Agent(id) != nil {
		return true
	}
	return c.relay != nil && c.relay.ContainsAgent(id)
}

// Agents returns the local agents in registration order followed by those
// known to the relay
func (c *Container) Agents() []AgentID {
	ids := c.LocalAgents()
	if c.relay != nil {
		ids = append(ids, c.relay.Agents()...)
	}
	return ids
}

// LocalAgents returns the local agents in registration order
func (c *Container) LocalAgents() []AgentID {
	agents := c.snapshot()
	ids := make([]AgentID, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.id.bare())
	}
	return ids
}

// LocalServices returns a copy of the local service directory
func (c *Container) LocalServices() map[string][]AgentID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]AgentID, len(c.services))
	for service, ids := range c.services {
		out[service] = slices.Clone(ids)
	}
	return out
}

// Agent returns the local agent addressed by id, or nil
func (c *Container) Agent(id AgentID) *Agent {
	if id.IsTopic {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agents[id.Name]
}

// Len returns the number of registered agents
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// IsRunning reports whether the container accepts messages
func (c *Container) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// IsIdle reports whether every live agent is idle
func (c *Container) IsIdle() bool {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	return len(c.idle) == c.live
}

func (c *Container) snapshot() []*Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// reportIdle is called by an agent worker, with the agent locked, as it
// suspends
func (c *Container) reportIdle(a *Agent) {
	c.idleMu.Lock()
	c.idle[a] = struct{}{}
	n := len(c.idle)
	all := n == c.live
	c.idleMu.Unlock()

	observability.SetIdleAgents(c.name, n)
	if all {
		c.platform.Idle()
	}
}

// reportBusy is called, with the agent locked, when a suspended agent is woken
func (c *Container) reportBusy(a *Agent) {
	c.idleMu.Lock()
	delete(c.idle, a)
	n := len(c.idle)
	c.idleMu.Unlock()

	observability.SetIdleAgents(c.name, n)
}

// remove unregisters a finished agent together with its subscriptions and
// services
func (c *Container) remove(a *Agent) {
	c.mu.Lock()
	if c.agents[a.id.Name] == a {
		delete(c.agents, a.id.Name)
	}
	c.order = slices.DeleteFunc(c.order, func(x *Agent) bool { return x == a })
	for topic := range c.topics {
		c.unsubscribeLocked(topic, a)
	}
	for service := range c.services {
		c.deregisterLocked(service, a.id)
	}
	c.mu.Unlock()

	c.idleMu.Lock()
	delete(c.idle, a)
	c.live--
	n := len(c.idle)
	all := n == c.live
	c.idleMu.Unlock()

	observability.SetIdleAgents(c.name, n)
	if all {
		c.platform.Idle()
	}
}
