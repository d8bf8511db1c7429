package agent

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/agentrt/platform"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newSim(opts ...ContainerOption) (*platform.DiscreteEvent, *Container) {
	p := platform.NewDiscreteEvent(platform.WithLogger(quietLogger()))
	c := NewContainer(p, append([]ContainerOption{WithContainerLogger(quietLogger())}, opts...)...)
	return p, c
}

func newRealTime(opts ...ContainerOption) (*platform.RealTime, *Container) {
	p := platform.NewRealTime(platform.WithLogger(quietLogger()))
	c := NewContainer(p, append([]ContainerOption{WithContainerLogger(quietLogger())}, opts...)...)
	return p, c
}

// runSim starts a discrete-event platform and waits for it to run dry
func runSim(t *testing.T, p *platform.DiscreteEvent) {
	t.Helper()
	require.NoError(t, p.Start(context.Background()))
	select {
	case <-p.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("simulation did not finish")
	}
}

func mustAdd(t *testing.T, c *Container, name string, a *Agent) *Agent {
	t.Helper()
	_, err := c.Add(name, a)
	require.NoError(t, err)
	return a
}

func withBehaviors(bs ...func(a *Agent) Behavior) Option {
	return WithInit(func(a *Agent) {
		for _, b := range bs {
			a.Add(b(a))
		}
	})
}

func waitDone(t *testing.T, a *Agent) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("agent %s did not finish", a.Name())
	}
}

type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}
