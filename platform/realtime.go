package platform

import (
	"context"
	"time"
)

// RealTime is a platform driven by the wall clock.
type RealTime struct {
	base
	epoch time.Time
}

var _ Platform = (*RealTime)(nil)

// NewRealTime creates a real-time platform
func NewRealTime(opts ...Option) *RealTime {
	return &RealTime{
		base:  newBase("realtime", opts),
		epoch: time.Now(),
	}
}

// CurrentTimeMillis returns the wall clock time plus the configured offset
func (p *RealTime) CurrentTimeMillis() int64 {
	return time.Now().Add(p.cfg.TimeOffset).UnixMilli()
}

// NanoTime returns monotonic nanoseconds since the platform was created
func (p *RealTime) NanoTime() int64 {
	return time.Since(p.epoch).Nanoseconds() + p.cfg.TimeOffset.Nanoseconds()
}

// Schedule runs task on its own goroutine after delay
func (p *RealTime) Schedule(task func(), delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Scheduled task panicked", "panic", r)
			}
		}()
		task()
	})
}

// Idle is a no-op: real time advances regardless of agent activity
func (p *RealTime) Idle() {}

// Delay sleeps for d
func (p *RealTime) Delay(d time.Duration) {
	time.Sleep(d)
}

// Start initializes and starts every container
func (p *RealTime) Start(ctx context.Context) error {
	return p.start(ctx)
}

// Shutdown shuts every container down
func (p *RealTime) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
