package agent

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mitchellh/copystructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_AddValidation(t *testing.T) {
	_, c := newSim()
	_, other := newSim()

	a := NewAgent()
	id, err := c.Add("a", a)
	require.NoError(t, err)
	assert.Equal(t, "a", id.Name)

	_, err = c.Add("a", NewAgent())
	assert.ErrorIs(t, err, ErrAgentAlreadyRegistered)

	_, err = c.Add("", NewAgent())
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = other.Add("b", a)
	assert.ErrorIs(t, err, ErrAgentAlreadyAdded)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, DefaultContainerName, c.Name())
}

func TestContainer_LifecycleMisuse(t *testing.T) {
	_, c := newRealTime(WithName("ops"))
	mustAdd(t, c, "a", NewAgent())
	ctx := context.Background()

	assert.ErrorIs(t, c.Send(NewMessage(AgentID{Name: "a"}, Inform, nil)), ErrContainerNotRunning)
	assert.ErrorIs(t, c.Start(ctx), ErrNotInitialized)

	require.NoError(t, c.Init(ctx))
	assert.True(t, c.IsIdle())
	assert.True(t, c.IsRunning())
	assert.ErrorIs(t, c.Init(ctx), ErrAlreadyInitialized)

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsRunning())
	assert.Zero(t, c.Len())
}

func TestContainer_InitBarrier(t *testing.T) {
	p, c := newRealTime()
	var inited atomic.Int32
	var runningEarly atomic.Bool

	for _, name := range []string{"a", "b", "c", "d"} {
		mustAdd(t, c, name, NewAgent(
			WithInit(func(a *Agent) {
				time.Sleep(20 * time.Millisecond)
				inited.Add(1)
				a.Add(NewOneShot(func(*OneShot) {
					if inited.Load() != 4 {
						runningEarly.Store(true)
					}
				}))
			}),
		))
	}
	require.NoError(t, p.Start(t.Context()))
	assert.Equal(t, int32(4), inited.Load())
	require.NoError(t, p.Shutdown(t.Context()))
	assert.False(t, runningEarly.Load())
}

func TestContainer_Topics(t *testing.T) {
	p, c := newSim()
	var got recorder[string]
	listener := func(a *Agent) Behavior {
		return NewMessageBehavior(nil, func(_ *MessageBehavior, m *Message) {
			got.add(a.Name() + ":" + m.Content.(string))
		})
	}

	for _, name := range []string{"l1", "l2"} {
		mustAdd(t, c, name, NewAgent(
			WithInit(func(a *Agent) {
				assert.NoError(t, a.Subscribe(a.Topic("news")))
				a.Add(listener(a))
			}),
		))
	}
	mustAdd(t, c, "l3", NewAgent(withBehaviors(listener)))
	mustAdd(t, c, "pub", NewAgent(withBehaviors(func(a *Agent) Behavior {
		return NewWaker(10*time.Millisecond, func(*Waker) {
			assert.NoError(t, a.Topic("news").Send(Inform, "extra"))
			assert.NoError(t, a.Topic("empty").Send(Inform, "void"))
		})
	})))
	runSim(t, p)

	assert.ElementsMatch(t, []string{"l1:extra", "l2:extra"}, got.all())
}

func TestContainer_SubscribeRequiresTopic(t *testing.T) {
	_, c := newSim()
	a := mustAdd(t, c, "a", NewAgent())

	assert.ErrorIs(t, a.Subscribe(AgentID{Name: "news"}), ErrNotTopic)
	require.NoError(t, a.Subscribe(Topic("news")))
	require.NoError(t, a.Subscribe(Topic("news")))
	assert.Len(t, c.Subscribers(Topic("news")), 1)

	a.Unsubscribe(Topic("news"))
	assert.Empty(t, c.Subscribers(Topic("news")))
}

func TestContainer_Services(t *testing.T) {
	_, c := newSim()
	a := mustAdd(t, c, "a", NewAgent())
	b := mustAdd(t, c, "b", NewAgent())

	require.NoError(t, a.RegisterService("weather"))
	require.NoError(t, b.RegisterService("weather"))
	require.NoError(t, b.RegisterService("weather"))
	assert.Error(t, a.RegisterService(""))

	ids := c.AgentsForService("weather")
	require.Len(t, ids, 2)
	assert.Equal(t, "a", ids[0].Name)
	assert.Equal(t, "b", ids[1].Name)

	id, ok := b.AgentForService("weather")
	require.True(t, ok)
	assert.Equal(t, "a", id.Name)

	a.DeregisterService("weather")
	id, ok = c.AgentForService("weather")
	require.True(t, ok)
	assert.Equal(t, "b", id.Name)

	_, ok = c.AgentForService("traffic")
	assert.False(t, ok)
}

func TestContainer_ServiceRequest(t *testing.T) {
	p, c := newSim()
	var answer recorder[any]

	mustAdd(t, c, "oracle", NewAgent(WithInit(func(a *Agent) {
		assert.NoError(t, a.RegisterService("answers"))
		a.Add(NewMessageBehavior(ByPerformative(QueryIf), func(_ *MessageBehavior, m *Message) {
			_ = a.Reply(m, Confirm, 42)
		}))
	})))
	mustAdd(t, c, "asker", NewAgent(withBehaviors(func(a *Agent) Behavior {
		return NewOneShot(func(*OneShot) {
			id, ok := a.AgentForService("answers")
			if !assert.True(t, ok) {
				return
			}
			if reply := id.Request(QueryIf, "meaning", time.Second); reply != nil {
				answer.add(reply.Content)
			}
		})
	})))
	runSim(t, p)

	assert.Equal(t, []any{42}, answer.all())
}

func TestContainer_RemovalClearsDirectory(t *testing.T) {
	p, c := newSim()
	a := mustAdd(t, c, "short", NewAgent(
		WithInit(func(a *Agent) {
			_ = a.RegisterService("tmp")
			_ = a.Subscribe(a.Topic("t"))
			a.Add(NewWaker(10*time.Millisecond, func(*Waker) { a.Stop() }))
		}),
	))
	runSim(t, p)

	waitDone(t, a)
	assert.Empty(t, c.AgentsForService("tmp"))
	assert.Empty(t, c.Subscribers(Topic("t")))
	assert.False(t, c.ContainsAgent(AgentID{Name: "short"}))
}

func TestContainer_Kill(t *testing.T) {
	p, c := newRealTime()
	a := mustAdd(t, c, "victim", NewAgent(withBehaviors(func(a *Agent) Behavior {
		return NewMessageBehavior(nil, func(*MessageBehavior, *Message) {})
	})))
	mustAdd(t, c, "bystander", NewAgent())
	require.NoError(t, p.Start(t.Context()))
	defer func() { _ = p.Shutdown(t.Context()) }()

	require.NoError(t, c.Kill(AgentID{Name: "victim"}))
	waitDone(t, a)
	assert.Eventually(t, func() bool { return !c.ContainsAgent(a.ID()) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"bystander"}, names(c.Agents()))
	assert.ErrorIs(t, c.Kill(AgentID{Name: "victim"}), ErrAgentNotFound)
}

func TestContainer_AddAfterStart(t *testing.T) {
	p, c := newRealTime()
	require.NoError(t, p.Start(t.Context()))
	defer func() { _ = p.Shutdown(t.Context()) }()

	ran := make(chan AgentState, 1)
	a := NewAgent(withBehaviors(func(a *Agent) Behavior {
		return NewOneShot(func(*OneShot) { ran <- a.State() })
	}))
	mustAdd(t, c, "late", a)

	select {
	case s := <-ran:
		assert.Equal(t, StateRunning, s)
	case <-time.After(5 * time.Second):
		t.Fatal("late agent did not run")
	}
}

func TestContainer_Shutdown(t *testing.T) {
	p, c := newRealTime()
	var shutdowns atomic.Int32
	agents := make([]*Agent, 5)
	for i := range agents {
		agents[i] = mustAdd(t, c, string(rune('a'+i)), NewAgent(
			WithShutdown(func(*Agent) { shutdowns.Add(1) }),
			withBehaviors(func(a *Agent) Behavior {
				return NewCyclic(func(b *Cyclic) { b.BlockFor(time.Hour) })
			}),
		))
	}
	require.NoError(t, p.Start(t.Context()))
	require.NoError(t, p.Shutdown(t.Context()))

	<-p.Done()
	assert.Equal(t, int32(5), shutdowns.Load())
	for _, a := range agents {
		assert.Equal(t, StateFinished, a.State())
	}
	assert.Zero(t, c.Len())
	assert.False(t, c.IsRunning())
}

func TestContainer_ShutdownTimeout(t *testing.T) {
	p, c := newRealTime()
	release := make(chan struct{})
	mustAdd(t, c, "stuck", NewAgent(withBehaviors(func(a *Agent) Behavior {
		return NewOneShot(func(*OneShot) { <-release })
	})))
	require.NoError(t, p.Start(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	err := c.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, c.Shutdown(t.Context()))
}

type payload struct {
	Readings []int
}

func TestContainer_AutoClone(t *testing.T) {
	for _, clone := range []bool{false, true} {
		t.Run(map[bool]string{false: "shared", true: "cloned"}[clone], func(t *testing.T) {
			p, c := newSim(WithAutoClone(clone))
			sent := &payload{Readings: []int{1, 2, 3}}
			var got recorder[*payload]

			mustAdd(t, c, "rx", NewAgent(withBehaviors(func(a *Agent) Behavior {
				return NewMessageBehavior(nil, func(_ *MessageBehavior, m *Message) { got.add(m.Content.(*payload)) })
			})))
			mustAdd(t, c, "tx", NewAgent(withBehaviors(func(a *Agent) Behavior {
				return NewOneShot(func(*OneShot) { _ = a.AgentFor("rx").Send(Inform, sent) })
			})))
			runSim(t, p)

			msgs := got.all()
			require.Len(t, msgs, 1)
			if clone {
				assert.NotSame(t, sent, msgs[0])
				assert.Equal(t, sent.Readings, msgs[0].Readings)
			} else {
				assert.Same(t, sent, msgs[0])
			}
		})
	}
}

var errBrittle = errors.New("brittle part refused to copy")

// brittle refuses to be deep copied while its shared failure budget lasts
type brittle struct {
	failures *atomic.Int32
}

type envelope struct {
	Part brittle
}

func init() {
	copystructure.Copiers[reflect.TypeOf(brittle{})] = func(v any) (any, error) {
		b := v.(brittle)
		if b.failures.Add(-1) >= 0 {
			return nil, errBrittle
		}
		return b, nil
	}
}

func TestContainer_TopicCloneFailureSkipsOnlyThatSubscriber(t *testing.T) {
	p, c := newSim(WithAutoClone(true))
	var got recorder[string]
	var sendErr error

	for _, name := range []string{"l1", "l2", "l3"} {
		mustAdd(t, c, name, NewAgent(
			WithInit(func(a *Agent) {
				assert.NoError(t, a.Subscribe(a.Topic("news")))
				a.Add(NewMessageBehavior(nil, func(_ *MessageBehavior, m *Message) {
					assert.IsType(t, &envelope{}, m.Content)
					got.add(a.Name())
				}))
			}),
		))
	}
	mustAdd(t, c, "pub", NewAgent(withBehaviors(func(a *Agent) Behavior {
		return NewWaker(10*time.Millisecond, func(*Waker) {
			failures := &atomic.Int32{}
			failures.Store(1)
			sendErr = a.Topic("news").Send(Inform, &envelope{Part: brittle{failures: failures}})
		})
	})))
	runSim(t, p)

	require.ErrorIs(t, sendErr, errBrittle)
	assert.Len(t, got.all(), 2, "remaining subscribers still receive the message")
}

type fakeRelay struct {
	mu        sync.Mutex
	forwarded []*Message
	accept    bool
}

func (r *fakeRelay) Forward(msg *Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarded = append(r.forwarded, msg)
	return r.accept
}

func (r *fakeRelay) AgentsForService(service string) []AgentID {
	if service == "remote-svc" {
		return []AgentID{{Name: "far"}}
	}
	return nil
}

func (r *fakeRelay) ContainsAgent(id AgentID) bool { return id.Name == "far" }

func (r *fakeRelay) Agents() []AgentID { return []AgentID{{Name: "far"}} }

func TestContainer_Relay(t *testing.T) {
	relay := &fakeRelay{accept: true}
	_, c := newRealTime(WithRelay(relay))
	a := mustAdd(t, c, "near", NewAgent())
	require.NoError(t, a.RegisterService("remote-svc"))
	require.NoError(t, c.Init(t.Context()))
	require.NoError(t, c.Start(t.Context()))
	defer func() { _ = c.Shutdown(context.Background()) }()

	assert.NoError(t, c.Send(NewMessage(AgentID{Name: "far"}, Inform, nil)))
	assert.ErrorIs(t, c.SendLocal(NewMessage(AgentID{Name: "far"}, Inform, nil)), ErrAgentNotFound)
	assert.NoError(t, c.Send(NewMessage(Topic("news"), Inform, nil)))
	assert.NoError(t, c.Send(NewMessage(AgentID{Name: "near"}, Inform, nil)))

	relay.mu.Lock()
	assert.Len(t, relay.forwarded, 2, "unresolved direct message and topic message")
	relay.mu.Unlock()

	assert.Equal(t, []string{"near", "far"}, names(c.AgentsForService("remote-svc")))
	assert.True(t, c.ContainsAgent(AgentID{Name: "far"}))
	assert.True(t, c.ContainsAgent(AgentID{Name: "near"}))
	assert.False(t, c.ContainsAgent(Topic("near")))
	assert.Equal(t, []string{"near", "far"}, names(c.Agents()))

	relay.accept = false
	assert.ErrorIs(t, c.Send(NewMessage(AgentID{Name: "nowhere"}, Inform, nil)), ErrAgentNotFound)
}

func names(ids []AgentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}
