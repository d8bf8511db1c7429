package agents

import (
	"math"
	"time"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

// Summary is the content an aggregator emits at the end of each window
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	// End is the platform time in milliseconds at which the window closed
	End int64 `json:"end"`
}

type window struct {
	count    int
	sum      float64
	min, max float64
}

func (w *window) add(v float64) {
	if w.count == 0 {
		w.min, w.max = v, v
	}
	w.count++
	w.sum += v
	w.min = math.Min(w.min, v)
	w.max = math.Max(w.max, v)
}

func (w *window) summary(end int64) Summary {
	return Summary{Count: w.count, Mean: w.sum / float64(w.count), Min: w.min, Max: w.max, End: end}
}

func init() {
	agentrt.Register("aggregator", newAggregator)
}

// newAggregator builds an agent that collects numeric INFORM content and
// sends a Summary every "window" (default 1s). Empty windows are skipped.
func newAggregator(cfg config.AgentConfig) ([]agent.Option, error) {
	out, err := outputFrom(&cfg)
	if err != nil {
		return nil, err
	}
	period, err := cfg.GetDuration("window", time.Second)
	if err != nil {
		return nil, err
	}

	return []agent.Option{agent.WithInit(func(a *agent.Agent) {
		var w window
		a.Add(agent.NewMessageBehavior(agent.ByPerformative(agent.Inform), func(_ *agent.MessageBehavior, m *agent.Message) {
			if v, ok := numeric(m.Content); ok {
				w.add(v)
				return
			}
			a.Logger().Debug("Ignoring non-numeric sample", "from", m.Sender.String())
		}))
		a.Add(agent.NewTicker(period, func(*agent.Ticker) {
			if w.count == 0 {
				return
			}
			s := w.summary(a.CurrentTimeMillis())
			w = window{}
			if err := out.send(a, agent.Inform, s); err != nil {
				a.Logger().Warn("Summary not sent", "error", err)
			}
		}))
	})}, nil
}

// numeric extracts a sample value from message content. It accepts plain
// numbers, Samples and maps with a "value" entry.
func numeric(content any) (float64, bool) {
	switch v := content.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case Sample:
		return v.Value, true
	case *Sample:
		return v.Value, v != nil
	case map[string]any:
		return numeric(v["value"])
	}
	return 0, false
}
