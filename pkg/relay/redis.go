// Package relay connects containers running in separate processes through
// Redis. Each container publishes its agent and service directory under a
// shared key prefix and receives forwarded messages on its own channel.
// Topic messages are broadcast to every container.
//
// Message content crosses the wire as JSON, so receivers see the generic
// JSON decoding of whatever the sender put in Content.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aixgo-dev/agentrt/agent"
)

// DefaultPrefix is the key prefix used when none is configured
const DefaultPrefix = "agentrt:"

// ErrClosed is returned by operations on a closed relay
var ErrClosed = errors.New("relay closed")

// Config holds Redis relay configuration.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix shared by every container of a deployment
	// (default: "agentrt:").
	Prefix string
	// SyncInterval is how often the local directory is republished
	// (default: 5s).
	SyncInterval time.Duration
	// Timeout bounds each Redis round trip made on behalf of a container
	// (default: 2s).
	Timeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Redis is an agent.Relay backed by Redis pub/sub.
type Redis struct {
	client  *redis.Client
	prefix  string
	sync    time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.RWMutex
	container *agent.Container
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

var _ agent.Relay = (*Redis)(nil)

// envelope is the wire form of an agent.Message
type envelope struct {
	Origin    string          `json:"origin"`
	ID        string          `json:"id"`
	Perf      string          `json:"perf"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Topic     bool            `json:"topic,omitempty"`
	InReplyTo string          `json:"in_reply_to,omitempty"`
	SentAt    int64           `json:"sent_at"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// New connects to Redis and returns an unbound relay.
func New(cfg Config) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(client, cfg), nil
}

// NewFromClient creates a relay from an existing client. Addr and
// credentials in cfg are ignored.
func NewFromClient(client *redis.Client, cfg Config) *Redis {
	r := &Redis{
		client:  client,
		prefix:  cfg.Prefix,
		sync:    cfg.SyncInterval,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if r.prefix == "" {
		r.prefix = DefaultPrefix
	}
	if r.sync <= 0 {
		r.sync = 5 * time.Second
	}
	if r.timeout <= 0 {
		r.timeout = 2 * time.Second
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Key helpers
func (r *Redis) containersKey() string { return r.prefix + "containers" }

func (r *Redis) directoryKey(name string) string { return r.prefix + "dir:" + name }

func (r *Redis) inboxChannel(name string) string { return r.prefix + "inbox:" + name }

func (r *Redis) topicsChannel() string { return r.prefix + "topics" }

const (
	agentsField  = "agents"
	serviceField = "svc:"
)

// Bind attaches the local container. It must be called before Start, and
// the container must have been created with agent.WithRelay(r).
func (r *Redis) Bind(c *agent.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.container = c
	r.logger = r.logger.With("container", c.Name())
}

// Start publishes the local directory, subscribes to the container inbox and
// the topic channel, and keeps the directory fresh until Close.
func (r *Redis) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	c := r.container
	r.mu.Unlock()
	if c == nil {
		return errors.New("relay is not bound to a container")
	}

	if err := r.Sync(ctx); err != nil {
		return err
	}

	pubsub := r.client.Subscribe(ctx, r.inboxChannel(c.Name()), r.topicsChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.pubsub = pubsub
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.loop(loopCtx, c, pubsub.Channel(), done)
	r.logger.Info("Relay started", "prefix", r.prefix)
	return nil
}

func (r *Redis) loop(ctx context.Context, c *agent.Container, msgs <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.sync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sync(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("Directory sync failed", "error", err)
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			r.receive(c, m.Payload)
		}
	}
}

func (r *Redis) receive(c *agent.Container, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("Dropping malformed relay message", "error", err)
		return
	}
	if env.Topic && env.Origin == c.Name() {
		return
	}
	msg, err := env.message()
	if err != nil {
		r.logger.Warn("Dropping malformed relay message", "id", env.ID, "error", err)
		return
	}
	if err := c.SendLocal(msg); err != nil && !env.Topic {
		r.logger.Warn("Relayed message undeliverable", "id", env.ID, "recipient", env.Recipient, "error", err)
	}
}

// Sync republishes the local agents and services.
func (r *Redis) Sync(ctx context.Context) error {
	c := r.bound()
	if c == nil {
		return errors.New("relay is not bound to a container")
	}

	fields := map[string]any{}
	agents, err := json.Marshal(names(c.LocalAgents()))
	if err != nil {
		return err
	}
	fields[agentsField] = agents
	for service, ids := range c.LocalServices() {
		data, err := json.Marshal(names(ids))
		if err != nil {
			return err
		}
		fields[serviceField+service] = data
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	key := r.directoryKey(c.Name())
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.containersKey(), c.Name())
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// Forward publishes msg to the container hosting its recipient, or to every
// container for topic messages.
func (r *Redis) Forward(msg *agent.Message) bool {
	c := r.bound()
	if c == nil || r.isClosed() {
		return false
	}

	channel := r.topicsChannel()
	if !msg.Recipient.IsTopic {
		host, ok := r.hostOf(msg.Recipient.Name)
		if !ok {
			return false
		}
		channel = r.inboxChannel(host)
	}

	env, err := newEnvelope(c.Name(), msg)
	if err != nil {
		r.logger.Warn("Cannot relay message", "id", msg.ID, "error", err)
		return false
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Warn("Cannot relay message", "id", msg.ID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		r.logger.Warn("Relay publish failed", "channel", channel, "error", err)
		return false
	}
	return true
}

// AgentsForService returns the remote providers of service, grouped by
// container name.
func (r *Redis) AgentsForService(service string) []agent.AgentID {
	return r.lookup(serviceField + service)
}

// ContainsAgent reports whether a remote container hosts id
func (r *Redis) ContainsAgent(id agent.AgentID) bool {
	if id.IsTopic {
		return false
	}
	_, ok := r.hostOf(id.Name)
	return ok
}

// Agents returns every remote agent, grouped by container name
func (r *Redis) Agents() []agent.AgentID {
	return r.lookup(agentsField)
}

// Close withdraws the local directory and stops receiving.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	c, pubsub, cancel, done := r.container, r.pubsub, r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	var errs []error
	if pubsub != nil {
		errs = append(errs, pubsub.Close())
	}
	if c != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		pipe := r.client.TxPipeline()
		pipe.SRem(ctx, r.containersKey(), c.Name())
		pipe.Del(ctx, r.directoryKey(c.Name()))
		_, err := pipe.Exec(ctx)
		errs = append(errs, err)
	}
	errs = append(errs, r.client.Close())
	return errors.Join(errs...)
}

func (r *Redis) bound() *agent.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.container
}

func (r *Redis) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// remotes returns the other registered containers in name order
func (r *Redis) remotes(ctx context.Context) ([]string, error) {
	all, err := r.client.SMembers(ctx, r.containersKey()).Result()
	if err != nil {
		return nil, err
	}
	self := ""
	if c := r.bound(); c != nil {
		self = c.Name()
	}
	all = slices.DeleteFunc(all, func(n string) bool { return n == self })
	slices.Sort(all)
	return all, nil
}

func (r *Redis) lookup(field string) []agent.AgentID {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	containers, err := r.remotes(ctx)
	if err != nil {
		r.logger.Warn("Directory lookup failed", "error", err)
		return nil
	}
	var ids []agent.AgentID
	for _, name := range containers {
		raw, err := r.client.HGet(ctx, r.directoryKey(name), field).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			r.logger.Warn("Directory lookup failed", "remote", name, "error", err)
			continue
		}
		var agents []string
		if err := json.Unmarshal([]byte(raw), &agents); err != nil {
			continue
		}
		for _, a := range agents {
			ids = append(ids, agent.AgentID{Name: a})
		}
	}
	return ids
}

func (r *Redis) hostOf(name string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	containers, err := r.remotes(ctx)
	if err != nil {
		r.logger.Warn("Directory lookup failed", "error", err)
		return "", false
	}
	for _, host := range containers {
		raw, err := r.client.HGet(ctx, r.directoryKey(host), agentsField).Result()
		if err != nil {
			continue
		}
		var agents []string
		if err := json.Unmarshal([]byte(raw), &agents); err != nil {
			continue
		}
		if slices.Contains(agents, name) {
			return host, true
		}
	}
	return "", false
}

func newEnvelope(origin string, msg *agent.Message) (*envelope, error) {
	env := &envelope{
		Origin:    origin,
		ID:        msg.ID,
		Perf:      msg.Perf.String(),
		Sender:    msg.Sender.Name,
		Recipient: msg.Recipient.Name,
		Topic:     msg.Recipient.IsTopic,
		InReplyTo: msg.InReplyTo,
		SentAt:    msg.SentAt,
	}
	if msg.Content != nil {
		data, err := json.Marshal(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
		env.Content = data
	}
	return env, nil
}

func (e *envelope) message() (*agent.Message, error) {
	perf, err := agent.ParsePerformative(e.Perf)
	if err != nil {
		return nil, err
	}
	msg := &agent.Message{
		ID:        e.ID,
		Perf:      perf,
		Recipient: agent.AgentID{Name: e.Recipient, IsTopic: e.Topic},
		Sender:    agent.AgentID{Name: e.Sender},
		InReplyTo: e.InReplyTo,
		SentAt:    e.SentAt,
	}
	if len(e.Content) > 0 {
		if err := json.Unmarshal(e.Content, &msg.Content); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
	}
	return msg, nil
}

func names(ids []agent.AgentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}
