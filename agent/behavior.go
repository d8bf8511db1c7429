package agent

import (
	"sync"
	"time"
)

// Behavior is a resumable unit of cooperative work run by an Agent.
//
// Once added to an agent, OnStart is called, then Action is called
// repeatedly while Done reports false, and finally OnEnd. Behaviors of one
// agent never run concurrently. Implementations embed BehaviorBase, which
// supplies the blocking protocol and default hooks.
type Behavior interface {
	OnStart()
	Action()
	Done() bool
	OnEnd()

	// Reset prepares a finished behavior to be added again.
	Reset()

	base() *BehaviorBase
}

// BehaviorBase carries the blocked flag and owner of a behavior. Its methods
// may be called from any goroutine.
type BehaviorBase struct {
	mu       sync.Mutex
	agent    *Agent
	blocked  bool
	finished bool

	// armed timer: deadline in platform nanoseconds, gen identifies the
	// current callback so stale ones are ignored
	armed    bool
	deadline int64
	gen      uint64
}

func (b *BehaviorBase) base() *BehaviorBase { return b }

// OnStart does nothing by default
func (b *BehaviorBase) OnStart() {}

// OnEnd does nothing by default
func (b *BehaviorBase) OnEnd() {}

// Agent returns the owning agent, or nil when detached
func (b *BehaviorBase) Agent() *Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agent
}

// Block removes the behavior from the runnable set until Restart is called.
// Any pending BlockFor timer is disarmed.
func (b *BehaviorBase) Block() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked = true
	b.disarm()
}

// BlockFor blocks the behavior for d of platform time, or until an earlier
// Restart. Durations are rounded up to whole milliseconds.
func (b *BehaviorBase) BlockFor(d time.Duration) {
	a := b.Agent()
	if a == nil {
		b.Block()
		return
	}
	b.blockUntil(a, a.NanoTime()+quantize(d).Nanoseconds())
}

// blockUntil blocks until the platform nanosecond clock reaches deadline.
// Blocking again to an already armed deadline reuses the pending timer.
func (b *BehaviorBase) blockUntil(a *Agent, deadline int64) {
	b.mu.Lock()
	b.blocked = true
	if b.armed && b.deadline == deadline {
		b.mu.Unlock()
		return
	}
	b.gen++
	gen := b.gen
	b.armed = true
	b.deadline = deadline
	b.mu.Unlock()

	a.schedule(func() { b.expire(gen) }, time.Duration(deadline-a.NanoTime()))
}

func (b *BehaviorBase) expire(gen uint64) {
	b.mu.Lock()
	if !b.armed || b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.armed = false
	b.mu.Unlock()
	b.Restart()
}

// Restart unblocks the behavior and wakes its agent. It is idempotent and
// invalidates any pending BlockFor timer.
func (b *BehaviorBase) Restart() {
	b.mu.Lock()
	wasBlocked := b.blocked
	b.blocked = false
	b.disarm()
	a := b.agent
	b.mu.Unlock()

	if wasBlocked && a != nil {
		a.Wake()
	}
}

// IsBlocked reports whether the behavior is blocked
func (b *BehaviorBase) IsBlocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked
}

// Reset clears the blocked state and any pending timer. A finished behavior
// must be Reset before it can be added to an agent again.
func (b *BehaviorBase) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked = false
	b.finished = false
	b.disarm()
}

func (b *BehaviorBase) disarm() {
	if b.armed {
		b.armed = false
		b.gen++
	}
}

// clearBlocked drops the blocked flag before an action while leaving the
// timer armed, so a behavior re-blocking to the same deadline keeps it.
func (b *BehaviorBase) clearBlocked() {
	b.mu.Lock()
	b.blocked = false
	b.mu.Unlock()
}

func (b *BehaviorBase) attach(a *Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.agent != nil:
		return ErrBehaviorAttached
	case b.finished:
		return ErrBehaviorFinished
	}
	b.agent = a
	return nil
}

// detach releases a finished behavior from its agent
func (b *BehaviorBase) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agent = nil
	b.finished = true
	b.disarm()
}

// quantize rounds d up to the millisecond resolution of platform time
func quantize(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if r := d % time.Millisecond; r != 0 {
		d += time.Millisecond - r
	}
	return d
}
