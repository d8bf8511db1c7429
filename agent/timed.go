package agent

import (
	"sync/atomic"
	"time"
)

// Waker fires its callback once, no earlier than delay after it started
type Waker struct {
	BehaviorBase
	delay    time.Duration
	fn       func(*Waker)
	deadline int64
	fired    bool
}

// NewWaker creates a behavior that calls fn once after delay
func NewWaker(delay time.Duration, fn func(*Waker)) *Waker {
	return &Waker{delay: delay, fn: fn}
}

func (w *Waker) OnStart() {
	a := w.Agent()
	w.deadline = a.NanoTime() + quantize(w.delay).Nanoseconds()
	w.blockUntil(a, w.deadline)
}

func (w *Waker) Action() {
	if w.fired {
		return
	}
	a := w.Agent()
	if a.NanoTime() < w.deadline {
		w.blockUntil(a, w.deadline)
		return
	}
	w.fired = true
	w.fn(w)
}

func (w *Waker) Done() bool { return w.fired }

func (w *Waker) Reset() {
	w.BehaviorBase.Reset()
	w.fired = false
}

// Ticker fires its callback every period. When the next tick time has
// already passed, it is reset to now+period instead of firing a burst of
// catch-up ticks.
type Ticker struct {
	BehaviorBase
	period  time.Duration
	fn      func(*Ticker)
	next    int64
	ticks   int
	stopped atomic.Bool
}

// NewTicker creates a behavior calling fn every period
func NewTicker(period time.Duration, fn func(*Ticker)) *Ticker {
	return &Ticker{period: quantize(period), fn: fn}
}

func (t *Ticker) OnStart() {
	a := t.Agent()
	t.next = a.NanoTime() + t.period.Nanoseconds()
	t.blockUntil(a, t.next)
}

func (t *Ticker) Action() {
	if t.stopped.Load() {
		return
	}
	a := t.Agent()
	now := a.NanoTime()
	if now < t.next {
		t.blockUntil(a, t.next)
		return
	}
	t.ticks++
	t.fn(t)
	if t.stopped.Load() {
		return
	}
	t.next += t.period.Nanoseconds()
	if t.next <= now {
		t.next = now + t.period.Nanoseconds()
	}
	t.blockUntil(a, t.next)
}

func (t *Ticker) Done() bool { return t.stopped.Load() }

// Stop ends the ticker after its current or next action
func (t *Ticker) Stop() {
	t.stopped.Store(true)
	t.Restart()
}

// Ticks returns how many times the callback has fired
func (t *Ticker) Ticks() int { return t.ticks }

// Period returns the tick period
func (t *Ticker) Period() time.Duration { return t.period }

func (t *Ticker) Reset() {
	t.BehaviorBase.Reset()
	t.stopped.Store(false)
	t.ticks = 0
}

// Poisson fires its callback with exponentially distributed gaps of the
// given mean, drawn from the owning agent's random source, producing arrivals
// at rate 1/mean.
type Poisson struct {
	BehaviorBase
	mean    time.Duration
	fn      func(*Poisson)
	next    int64
	ticks   int
	stopped atomic.Bool
}

// NewPoisson creates a Poisson arrival process with the given mean interval
func NewPoisson(mean time.Duration, fn func(*Poisson)) *Poisson {
	return &Poisson{mean: mean, fn: fn}
}

func (p *Poisson) OnStart() {
	a := p.Agent()
	p.next = a.NanoTime() + p.draw(a)
	p.blockUntil(a, p.next)
}

func (p *Poisson) Action() {
	if p.stopped.Load() {
		return
	}
	a := p.Agent()
	now := a.NanoTime()
	if now < p.next {
		p.blockUntil(a, p.next)
		return
	}
	p.ticks++
	p.fn(p)
	if p.stopped.Load() {
		return
	}
	p.next = now + p.draw(a)
	p.blockUntil(a, p.next)
}

func (p *Poisson) draw(a *Agent) int64 {
	gap := time.Duration(a.Rand().ExpFloat64() * float64(p.mean))
	return quantize(gap).Nanoseconds()
}

func (p *Poisson) Done() bool { return p.stopped.Load() }

// Stop ends the process after its current or next action
func (p *Poisson) Stop() {
	p.stopped.Store(true)
	p.Restart()
}

// Ticks returns how many arrivals have fired
func (p *Poisson) Ticks() int { return p.ticks }

func (p *Poisson) Reset() {
	p.BehaviorBase.Reset()
	p.stopped.Store(false)
	p.ticks = 0
}

// Backoff fires its callback after a delay. The callback may call Backoff to
// try again later instead of completing.
type Backoff struct {
	BehaviorBase
	initial  time.Duration
	fn       func(*Backoff)
	deadline int64
	attempts int
	retry    bool
	done     bool
}

// NewBackoff creates a behavior that calls fn after initial
func NewBackoff(initial time.Duration, fn func(*Backoff)) *Backoff {
	return &Backoff{initial: initial, fn: fn}
}

func (b *Backoff) OnStart() {
	b.arm(b.initial)
}

func (b *Backoff) Action() {
	if b.done {
		return
	}
	a := b.Agent()
	if a.NanoTime() < b.deadline {
		b.blockUntil(a, b.deadline)
		return
	}
	b.attempts++
	b.retry = false
	b.fn(b)
	if !b.retry {
		b.done = true
	}
}

// Backoff reschedules the callback d from now. Only meaningful from inside
// the callback.
func (b *Backoff) Backoff(d time.Duration) {
	b.retry = true
	b.arm(d)
}

func (b *Backoff) arm(d time.Duration) {
	a := b.Agent()
	b.deadline = a.NanoTime() + quantize(d).Nanoseconds()
	b.blockUntil(a, b.deadline)
}

// Attempts returns how many times the callback has fired
func (b *Backoff) Attempts() int { return b.attempts }

func (b *Backoff) Done() bool { return b.done }

func (b *Backoff) Reset() {
	b.BehaviorBase.Reset()
	b.done = false
	b.retry = false
	b.attempts = 0
}
