package platform

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/aixgo-dev/agentrt/pkg/observability"
)

// DiscreteEvent is a platform with a virtual clock. Time only moves forward
// once every container is idle, at which point the clock jumps straight to
// the next pending event. When no events remain, or after Halt, the platform
// shuts itself down.
type DiscreteEvent struct {
	base

	mu     sync.Mutex
	cond   *sync.Cond
	now    int64
	seq    uint64
	events eventQueue
	halted bool
}

var _ Platform = (*DiscreteEvent)(nil)

// NewDiscreteEvent creates a discrete-event platform with its clock at the
// configured time offset (0 by default)
func NewDiscreteEvent(opts ...Option) *DiscreteEvent {
	p := &DiscreteEvent{
		base: newBase("discrete", opts),
	}
	p.now = p.cfg.TimeOffset.Milliseconds()
	p.cond = sync.NewCond(&p.mu)
	return p
}

// CurrentTimeMillis returns the virtual time in milliseconds
func (p *DiscreteEvent) CurrentTimeMillis() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// NanoTime returns the virtual time in nanoseconds
func (p *DiscreteEvent) NanoTime() int64 {
	return p.CurrentTimeMillis() * int64(time.Millisecond)
}

// Schedule queues task to fire at now+delay on the virtual clock. The clock
// has millisecond resolution, so delays round up to the next millisecond.
func (p *DiscreteEvent) Schedule(task func(), delay time.Duration) {
	p.schedule(task, delay, false)
}

func (p *DiscreteEvent) schedule(task func(), delay time.Duration, passive bool) {
	var ms int64
	if delay > 0 {
		ms = int64((delay + time.Millisecond - 1) / time.Millisecond)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	heap.Push(&p.events, &event{at: p.now + ms, seq: p.seq, task: task, passive: passive})
}

// Idle wakes the event loop so it can re-check whether time may advance
func (p *DiscreteEvent) Idle() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Delay blocks the caller until the virtual clock has advanced by d. The
// release is a passive event: it wakes only the caller, never an agent.
// Delay returns early if the platform shuts down first.
func (p *DiscreteEvent) Delay(d time.Duration) {
	released := make(chan struct{})
	p.schedule(func() { close(released) }, d, true)
	select {
	case <-released:
	case <-p.Done():
	}
}

// Halt freezes the virtual clock at its current time. Events already due
// still fire, and once every container is idle again the platform shuts
// down. It is safe to call from a scheduled task, so
//
//	p.Schedule(p.Halt, runFor)
//
// bounds a simulation to exactly runFor of virtual time.
func (p *DiscreteEvent) Halt() {
	p.mu.Lock()
	p.halted = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Pending returns the number of queued events
func (p *DiscreteEvent) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events.Len()
}

// Start initializes and starts every container, then starts the event loop
func (p *DiscreteEvent) Start(ctx context.Context) error {
	if err := p.start(ctx); err != nil {
		return err
	}
	go p.run()
	return nil
}

// Shutdown shuts every container down and stops the event loop
func (p *DiscreteEvent) Shutdown(ctx context.Context) error {
	err := p.shutdown(ctx)
	p.Idle()
	return err
}

func (p *DiscreteEvent) run() {
	throttledTo := int64(-1)
	for {
		p.mu.Lock()
		for p.IsRunning() && !p.allIdle() {
			p.cond.Wait()
		}
		if !p.IsRunning() {
			p.mu.Unlock()
			return
		}

		next := p.events.peek()
		if next == nil || (p.halted && next.at > p.now) {
			now, halted := p.now, p.halted
			p.mu.Unlock()
			if halted {
				p.logger.Info("Simulation halted", "t_ms", now)
			} else {
				p.logger.Info("No pending events, stopping simulation", "t_ms", now)
			}
			if err := p.Shutdown(context.Background()); err != nil {
				p.logger.Error("Simulation shutdown failed", "error", err)
			}
			return
		}

		if next.at > p.now {
			if p.cfg.Speed > 0 && throttledTo < next.at {
				wait := time.Duration(float64(next.at-p.now) / p.cfg.Speed * float64(time.Millisecond))
				throttledTo = next.at
				p.mu.Unlock()
				select {
				case <-time.After(wait):
				case <-p.Done():
				}
				continue
			}
			p.now = next.at
			observability.SetVirtualTime(p.now)
		}

		var due []*event
		for ev := p.events.peek(); ev != nil && ev.at <= p.now; ev = p.events.peek() {
			due = append(due, heap.Pop(&p.events).(*event))
		}
		p.mu.Unlock()

		for _, ev := range due {
			p.fire(ev)
		}
	}
}

func (p *DiscreteEvent) fire(ev *event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Scheduled task panicked", "panic", r, "t_ms", ev.at)
		}
	}()
	if ev.passive {
		observability.RecordSimEvent("passive")
	} else {
		observability.RecordSimEvent("agent")
	}
	ev.task()
}
