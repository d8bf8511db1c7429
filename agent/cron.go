package agent

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Cron fires its callback at the times described by a cron expression,
// evaluated in UTC against platform time. Under a discrete-event platform
// the schedule follows the virtual clock.
//
// Expressions use the standard five fields with an optional leading seconds
// field, or descriptors such as "@hourly" and "@every 90s".
type Cron struct {
	BehaviorBase
	spec     string
	schedule cron.Schedule
	fn       func(*Cron)
	next     int64 // platform ms of the next firing
	ticks    int
	stopped  atomic.Bool
}

// NewCron parses spec and creates a behavior calling fn on that schedule
func NewCron(spec string, fn func(*Cron)) (*Cron, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return &Cron{spec: spec, schedule: sched, fn: fn}, nil
}

func (c *Cron) OnStart() {
	c.plan(c.Agent())
}

func (c *Cron) Action() {
	if c.stopped.Load() {
		return
	}
	a := c.Agent()
	if a.CurrentTimeMillis() < c.next {
		c.wait(a)
		return
	}
	c.ticks++
	c.fn(c)
	if !c.stopped.Load() {
		c.plan(a)
	}
}

func (c *Cron) plan(a *Agent) {
	now := time.UnixMilli(a.CurrentTimeMillis()).UTC()
	next := c.schedule.Next(now)
	if next.IsZero() {
		c.stopped.Store(true)
		return
	}
	c.next = next.UnixMilli()
	c.wait(a)
}

func (c *Cron) wait(a *Agent) {
	remaining := time.Duration(c.next-a.CurrentTimeMillis()) * time.Millisecond
	c.BlockFor(remaining)
}

func (c *Cron) Done() bool { return c.stopped.Load() }

// Stop ends the schedule after the current or next action
func (c *Cron) Stop() {
	c.stopped.Store(true)
	c.Restart()
}

// Next returns the platform time in milliseconds of the next firing
func (c *Cron) Next() int64 { return c.next }

// Ticks returns how many times the callback has fired
func (c *Cron) Ticks() int { return c.ticks }

// Spec returns the cron expression
func (c *Cron) Spec() string { return c.spec }

func (c *Cron) Reset() {
	c.BehaviorBase.Reset()
	c.stopped.Store(false)
	c.ticks = 0
}
