package agent

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"golang.org/x/time/rate"

	"github.com/aixgo-dev/agentrt/pkg/observability"
	"github.com/aixgo-dev/agentrt/platform"
)

// Forever makes Receive and Request wait without a deadline
const Forever time.Duration = -1

// Agent is an autonomous unit with its own message queue and behaviors,
// driven by one dedicated goroutine for its whole life.
//
// An Agent is created with NewAgent and bound to a container with
// Container.Add. Its hooks and behaviors run on the worker goroutine;
// Receive and Request may only be called there.
type Agent struct {
	id        AgentID
	typ       string
	container *Container
	platform  platform.Platform
	logger    *slog.Logger

	initHook     func(*Agent)
	shutdownHook func(*Agent)
	dieHook      func(*Agent, error)
	stateHook    func(*Agent, AgentState)

	queueSize int
	seed      uint64
	seeded    bool
	rng       *rand.Rand

	state    atomic.Int32
	worker   atomic.Int64
	overflow rate.Sometimes

	// guarded by mu
	mu            sync.Mutex
	cond          *sync.Cond
	queue         *MessageQueue
	pending       []Behavior
	msgArrived    bool
	wakePending   bool
	idle          bool
	started       bool
	stopRequested bool
	savedState    AgentState

	// owned by the worker
	active  []Behavior
	blocked []Behavior

	done chan struct{}
}

var _ Messenger = (*Agent)(nil)

// Option configures an Agent
type Option func(*Agent)

// WithInit sets the hook run on the worker before the agent starts
func WithInit(fn func(a *Agent)) Option {
	return func(a *Agent) { a.initHook = fn }
}

// WithShutdown sets the hook run on the worker once the agent is finishing
func WithShutdown(fn func(a *Agent)) Option {
	return func(a *Agent) { a.shutdownHook = fn }
}

// WithDie sets the hook receiving a fault that terminated the agent. The
// default logs it.
func WithDie(fn func(a *Agent, err error)) Option {
	return func(a *Agent) { a.dieHook = fn }
}

// WithStateHook sets a callback invoked on every lifecycle transition. It
// runs on the worker with the agent locked and must only read State.
func WithStateHook(fn func(a *Agent, s AgentState)) Option {
	return func(a *Agent) { a.stateHook = fn }
}

// WithQueueSize sets the agent queue capacity, overriding the container default
func WithQueueSize(n int) Option {
	return func(a *Agent) { a.queueSize = n }
}

// WithSeed seeds the agent random source. Without it the seed is derived
// from the agent name, so runs are reproducible.
func WithSeed(seed uint64) Option {
	return func(a *Agent) {
		a.seed = seed
		a.seeded = true
	}
}

// WithType sets the agent type carried by its identifier
func WithType(typ string) Option {
	return func(a *Agent) { a.typ = typ }
}

// WithLogger sets the agent logger. The default derives from the container
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates an agent ready to be added to a container
func NewAgent(opts ...Option) *Agent {
	a := &Agent{
		queueSize: -1,
		done:      make(chan struct{}),
		overflow:  rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	a.cond = sync.NewCond(&a.mu)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent identifier. Its Send and Request helpers send on
// behalf of this agent.
func (a *Agent) ID() AgentID { return a.id }

// Name returns the agent name
func (a *Agent) Name() string { return a.id.Name }

// State returns the current lifecycle state
func (a *Agent) State() AgentState { return AgentState(a.state.Load()) }

// Container returns the owning container
func (a *Agent) Container() *Container { return a.container }

// Platform returns the platform of the owning container
func (a *Agent) Platform() platform.Platform { return a.platform }

// Logger returns the agent logger
func (a *Agent) Logger() *slog.Logger { return a.logger }

// Done is closed once the agent has finished
func (a *Agent) Done() <-chan struct{} { return a.done }

// Rand returns the agent's seeded random source. It must only be used from
// the worker goroutine.
func (a *Agent) Rand() *rand.Rand { return a.rng }

// CurrentTimeMillis returns the platform time in milliseconds
func (a *Agent) CurrentTimeMillis() int64 { return a.platform.CurrentTimeMillis() }

// NanoTime returns the platform monotonic time in nanoseconds
func (a *Agent) NanoTime() int64 { return a.platform.NanoTime() }

// Add schedules a behavior on the agent. OnStart runs on the worker before
// the behavior's first action. Adding a behavior that is still attached to an
// agent, or that finished and was not Reset since, panics.
func (a *Agent) Add(b Behavior) Behavior {
	if err := b.base().attach(a); err != nil {
		panic(fmt.Errorf("agent %s: add %T: %w", a.id.Name, b, err))
	}
	a.mu.Lock()
	a.pending = append(a.pending, b)
	a.wakeLocked()
	a.mu.Unlock()
	return b
}

// QueueLen returns the number of messages waiting in the queue
func (a *Agent) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.Len()
}

// Deliver queues msg and wakes the agent. It is the entry point for
// containers and external transports.
func (a *Agent) Deliver(msg *Message) {
	a.mu.Lock()
	dropped := a.queue.Add(msg)
	limit := a.queue.Limit()
	a.msgArrived = true
	a.wakeLocked()
	a.mu.Unlock()

	observability.RecordMessageDelivered(a.id.Name)
	if dropped != nil {
		observability.RecordMessageDropped(a.id.Name)
		a.overflow.Do(func() {
			a.logger.Warn("Message queue full, dropping oldest message",
				"limit", limit, "dropped_id", dropped.ID)
		})
	}
}

// Wake makes a suspended agent re-run its scheduler. A suspended agent is
// reported busy to its container before Wake returns.
func (a *Agent) Wake() {
	a.mu.Lock()
	a.wakeLocked()
	a.mu.Unlock()
}

func (a *Agent) wakeLocked() {
	a.wakePending = true
	if a.idle && a.started {
		a.idle = false
		a.container.reportBusy(a)
	}
	a.cond.Broadcast()
}

// Stop asks the agent to finish. The current action completes, then the
// shutdown hook runs. Stop is idempotent and may be called from any
// goroutine.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopRequested {
		return
	}
	a.stopRequested = true
	if a.idle {
		a.idle = false
		a.container.reportBusy(a)
	}
	a.cond.Broadcast()
}

func (a *Agent) stopping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopRequested
}

// bind is called by the container when the agent is added
func (a *Agent) bind(c *Container, name string, queueSize int) {
	a.container = c
	a.platform = c.platform
	a.id = AgentID{Name: name, Type: a.typ}
	a.id.owner = a
	if a.logger == nil {
		a.logger = c.logger.With("agent", name)
	}
	if a.queueSize >= 0 {
		queueSize = a.queueSize
	}
	a.queue = NewMessageQueue(queueSize)
	if !a.seeded {
		h := fnv.New64a()
		_, _ = h.Write([]byte(name))
		a.seed = h.Sum64()
	}
	a.rng = rand.New(rand.NewPCG(a.seed, a.seed^0x9e3779b97f4a7c15))
}

func (a *Agent) setState(s AgentState) {
	old := AgentState(a.state.Swap(int32(s)))
	if old == s {
		return
	}
	from, to := old.String(), s.String()
	if old == stateNone {
		from = ""
	}
	if s == StateFinished {
		to = ""
	}
	observability.RecordStateChange(from, to)
	if a.stateHook != nil {
		a.stateHook(a, s)
	}
}

func (a *Agent) schedule(task func(), delay time.Duration) {
	a.platform.Schedule(task, delay)
}

func (a *Agent) checkWorker(op string) {
	if goid.Get() != a.worker.Load() {
		panic(fmt.Errorf("%w: %s.%s", ErrNotOnWorker, a.id.Name, op))
	}
}

// run is the body of the worker goroutine
func (a *Agent) run() {
	a.worker.Store(goid.Get())
	defer close(a.done)

	if err := a.live(); err != nil {
		observability.RecordAgentDeath(a.id.Name)
		a.die(err)
	}

	a.setState(StateFinishing)
	a.safely("shutdown", func() {
		if a.shutdownHook != nil {
			a.shutdownHook(a)
		}
	})
	a.setState(StateFinished)
	a.container.remove(a)
	a.logger.Debug("Agent finished")
}

// live runs init and the scheduler loop, converting a panic into an error
func (a *Agent) live() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()

	a.setState(StateInit)
	if a.initHook != nil {
		a.initHook(a)
	}
	if !a.awaitStart() {
		return nil
	}
	a.setState(StateRunning)

	for !a.stopping() {
		if !a.step() {
			a.suspend()
		}
	}
	return nil
}

func (a *Agent) die(err error) {
	a.logger.Error("Agent terminated by fault", "error", err)
	if a.dieHook != nil {
		a.safely("die", func() { a.dieHook(a, err) })
	}
}

func (a *Agent) safely(hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Agent hook panicked", "hook", hook, "panic", r)
		}
	}()
	fn()
}

// awaitStart parks the agent after init until the container releases it.
// It reports false when the agent was stopped first.
func (a *Agent) awaitStart() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for !a.started && !a.stopRequested {
		if !a.idle {
			a.idle = true
			a.container.reportIdle(a)
		}
		a.cond.Wait()
	}
	if a.idle {
		a.idle = false
		a.container.reportBusy(a)
	}
	return !a.stopRequested
}

func (a *Agent) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	if a.idle {
		a.idle = false
		a.container.reportBusy(a)
	}
	a.cond.Broadcast()
}

// suspend blocks the worker until it is woken or stopped. A running agent
// becomes IDLE while suspended and returns to its prior state on waking.
func (a *Agent) suspend() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for !a.wakePending && !a.stopRequested {
		if !a.idle {
			if a.State() == StateRunning {
				a.savedState = StateRunning
				a.setState(StateIdle)
			}
			a.idle = true
			a.container.reportIdle(a)
		}
		a.cond.Wait()
	}
	a.wakePending = false
	if a.idle {
		a.idle = false
		a.container.reportBusy(a)
	}
	if a.savedState != stateNone {
		a.setState(a.savedState)
		a.savedState = stateNone
	}
}

// step runs one scheduling turn and reports whether any work was done
func (a *Agent) step() bool {
	a.mu.Lock()
	arrived := a.msgArrived
	a.msgArrived = false
	var started Behavior
	if len(a.pending) > 0 {
		started = a.pending[0]
		a.pending[0] = nil
		a.pending = a.pending[1:]
	}
	a.mu.Unlock()

	if arrived {
		a.active = append(a.active, a.blocked...)
		clear(a.blocked)
		a.blocked = a.blocked[:0]
	} else {
		kept := a.blocked[:0]
		for _, b := range a.blocked {
			if b.base().IsBlocked() {
				kept = append(kept, b)
			} else {
				a.active = append(a.active, b)
			}
		}
		clear(a.blocked[len(kept):])
		a.blocked = kept
	}

	if started != nil {
		observability.RecordBehaviorStarted(a.id.Name)
		started.OnStart()
		a.settle(started)
		return true
	}

	if len(a.active) == 0 {
		return false
	}
	i := a.next()
	b := a.active[i]
	a.active = slices.Delete(a.active, i, i+1)

	b.base().clearBlocked()
	begin := time.Now()
	b.Action()
	observability.RecordAction(a.id.Name, time.Since(begin))

	if b.Done() {
		b.OnEnd()
		b.base().detach()
		observability.RecordBehaviorCompleted(a.id.Name)
		return true
	}
	a.settle(b)
	return true
}

// settle files b under blocked or active according to its flag
func (a *Agent) settle(b Behavior) {
	if b.base().IsBlocked() {
		a.blocked = append(a.blocked, b)
	} else {
		a.active = append(a.active, b)
	}
}

// next picks the index of the behavior to run: the first filtered message
// behavior, otherwise the head of the run queue
func (a *Agent) next() int {
	for i, b := range a.active {
		if f, ok := b.(interface{ filtered() bool }); ok && f.filtered() {
			return i
		}
	}
	return 0
}

func (a *Agent) dequeue(f Filter) *Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.Get(f)
}
