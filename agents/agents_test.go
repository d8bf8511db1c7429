package agents

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

// sink records every message delivered to agents of type "test-sink"
type sink struct {
	mu   sync.Mutex
	msgs []*agent.Message
	at   []int64
}

func newSink() *sink {
	s := &sink{}
	agentrt.Register("test-sink", func(config.AgentConfig) ([]agent.Option, error) {
		return []agent.Option{agent.WithInit(func(a *agent.Agent) {
			a.Add(agent.NewMessageBehavior(nil, func(_ *agent.MessageBehavior, m *agent.Message) {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.msgs = append(s.msgs, m)
				s.at = append(s.at, a.CurrentTimeMillis())
			}))
		})}, nil
	})
	return s
}

func (s *sink) received() ([]*agent.Message, []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*agent.Message(nil), s.msgs...), append([]int64(nil), s.at...)
}

func run(t *testing.T, doc string, opts ...agentrt.Option) {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	if len(opts) == 0 {
		opts = []agentrt.Option{agentrt.WithLogger(slog.New(slog.DiscardHandler))}
	}
	rt, err := agentrt.New(cfg, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, ctx.Err(), "run timed out")
}

func TestBuiltinTypesRegistered(t *testing.T) {
	types := agentrt.Types()
	for _, typ := range []string{"aggregator", "echo", "logger", "producer", "scheduler"} {
		assert.Contains(t, types, typ)
	}
}

func TestProducerToAggregator(t *testing.T) {
	s := newSink()
	run(t, `
platform:
  type: discrete
  run_for: 3s
agents:
  - name: source
    type: producer
    seed: 7
    params: {topic: samples, interval: 100ms, count: 5, min: 10, max: 20}
  - name: stats
    type: aggregator
    topics: [samples]
    params: {topic: summaries, window: 1s}
  - name: out
    type: test-sink
    topics: [summaries]
`)

	msgs, at := s.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, []int64{1000}, at)

	sum, ok := msgs[0].Content.(Summary)
	require.True(t, ok, "unexpected content %T", msgs[0].Content)
	assert.Equal(t, 5, sum.Count)
	assert.Equal(t, int64(1000), sum.End)
	assert.GreaterOrEqual(t, sum.Min, 10.0)
	assert.Less(t, sum.Max, 20.0)
	assert.GreaterOrEqual(t, sum.Mean, sum.Min)
	assert.LessOrEqual(t, sum.Mean, sum.Max)
	assert.Equal(t, "stats", msgs[0].Sender.Name)
}

func TestProducerSeedIsDeterministic(t *testing.T) {
	values := func() []float64 {
		s := newSink()
		run(t, `
platform:
  type: discrete
  run_for: 10s
agents:
  - name: source
    type: producer
    seed: 42
    params: {to: out, mean: 50ms, count: 4}
  - name: out
    type: test-sink
`)
		msgs, _ := s.received()
		var vs []float64
		for _, m := range msgs {
			vs = append(vs, m.Content.(Sample).Value)
		}
		return vs
	}

	first := values()
	require.Len(t, first, 4)
	assert.Equal(t, first, values())
}

func TestEcho(t *testing.T) {
	replies := make(chan *agent.Message, 4)
	agentrt.Register("test-asker", func(config.AgentConfig) ([]agent.Option, error) {
		return []agent.Option{agent.WithInit(func(a *agent.Agent) {
			a.Add(agent.NewOneShot(func(*agent.OneShot) {
				id, ok := a.AgentForService("echo")
				if !assert.True(t, ok) {
					return
				}
				_ = a.Send(agent.NewMessage(id, agent.Request, "hello"))
				_ = a.Send(agent.NewMessage(id, agent.CFP, "bids?"))
				_ = a.Send(agent.NewMessage(id, agent.Inform, "fyi"))
			}))
			a.Add(agent.NewMessageBehavior(nil, func(_ *agent.MessageBehavior, m *agent.Message) {
				replies <- m
			}))
		})}, nil
	})

	run(t, `
platform:
  type: discrete
agents:
  - {name: echo, type: echo, services: [echo]}
  - {name: asker, type: test-asker}
`)
	close(replies)

	var got []string
	for m := range replies {
		got = append(got, m.Perf.String()+":"+m.Content.(string))
		assert.NotEmpty(t, m.InReplyTo)
	}
	assert.Equal(t, []string{"INFORM:hello", "NOT_UNDERSTOOD:CFP"}, got)
}

func TestScheduler(t *testing.T) {
	s := newSink()
	run(t, `
platform:
  type: discrete
  run_for: 3500ms
agents:
  - name: clock
    type: scheduler
    params: {to: out, cron: "@every 1s", content: tick, performative: inform}
  - name: out
    type: test-sink
`)

	msgs, at := s.received()
	assert.Equal(t, []int64{1000, 2000, 3000}, at)
	for _, m := range msgs {
		assert.Equal(t, agent.Inform, m.Perf)
		assert.Equal(t, "tick", m.Content)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	run(t, `
platform:
  type: discrete
  run_for: 150s
agents:
  - name: audit
    type: logger
    topics: [alerts]
    params: {level: warn}
  - name: alarm
    type: scheduler
    params: {topic: alerts, cron: "@every 1m", content: overheat}
`, agentrt.WithLogger(l))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Message received"))
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "content=overheat")
	assert.Contains(t, out, "performative=REQUEST")
}

func TestParamValidation(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		params map[string]any
	}{
		{"no output", "producer", map[string]any{}},
		{"two outputs", "producer", map[string]any{"topic": "a", "to": "b"}},
		{"bad performative", "producer", map[string]any{"topic": "a", "performative": "shout"}},
		{"bad interval", "producer", map[string]any{"topic": "a", "interval": "soon"}},
		{"zero interval", "producer", map[string]any{"topic": "a", "interval": "0s"}},
		{"max below min", "producer", map[string]any{"topic": "a", "min": 5, "max": 1}},
		{"aggregator without output", "aggregator", map[string]any{}},
		{"bad window", "aggregator", map[string]any{"topic": "a", "window": 3}},
		{"bad cron", "scheduler", map[string]any{"topic": "a", "cron": "every tuesday"}},
		{"bad level", "logger", map[string]any{"level": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builtin(t, tt.typ)(config.AgentConfig{Name: "x", Type: tt.typ, Params: tt.params})
			assert.Error(t, err)
		})
	}
}

func builtin(t *testing.T, typ string) agentrt.FactoryFunc {
	t.Helper()
	switch typ {
	case "producer":
		return newProducer
	case "aggregator":
		return newAggregator
	case "scheduler":
		return newScheduler
	case "logger":
		return newLogger
	}
	t.Fatalf("no builtin %q", typ)
	return nil
}

func TestNumeric(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(4), 4, true},
		{Sample{Value: 5}, 5, true},
		{&Sample{Value: 6}, 6, true},
		{map[string]any{"value": 7}, 7, true},
		{map[string]any{"other": 7}, 0, false},
		{"8", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := numeric(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
