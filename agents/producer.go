package agents

import (
	"fmt"
	"time"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

// Sample is the content a producer emits
type Sample struct {
	Seq   int     `json:"seq"`
	Value float64 `json:"value"`
}

// producerParams is the parsed configuration of a producer agent
type producerParams struct {
	out      output
	perf     agent.Performative
	interval time.Duration
	mean     time.Duration
	min, max float64
	count    int
}

func init() {
	agentrt.Register("producer", newProducer)
}

// newProducer builds a producer. With "mean" set it emits on a Poisson
// schedule, otherwise every "interval" (default 1s). Values are drawn
// uniformly from [min, max) using the agent's seeded source, and the agent
// stops its schedule after "count" samples when count is positive.
func newProducer(cfg config.AgentConfig) ([]agent.Option, error) {
	p, err := parseProducer(&cfg)
	if err != nil {
		return nil, err
	}
	return []agent.Option{agent.WithInit(func(a *agent.Agent) {
		seq := 0
		emit := func(stop func()) {
			seq++
			s := Sample{Seq: seq, Value: p.min + a.Rand().Float64()*(p.max-p.min)}
			if err := p.out.send(a, p.perf, s); err != nil {
				a.Logger().Warn("Sample not sent", "seq", seq, "error", err)
			}
			if p.count > 0 && seq >= p.count {
				stop()
			}
		}
		if p.mean > 0 {
			a.Add(agent.NewPoisson(p.mean, func(b *agent.Poisson) { emit(b.Stop) }))
			return
		}
		a.Add(agent.NewTicker(p.interval, func(b *agent.Ticker) { emit(b.Stop) }))
	})}, nil
}

func parseProducer(cfg *config.AgentConfig) (producerParams, error) {
	var p producerParams
	var err error
	if p.out, err = outputFrom(cfg); err != nil {
		return p, err
	}
	if p.perf, err = performativeParam(cfg, agent.Inform); err != nil {
		return p, err
	}
	if p.interval, err = cfg.GetDuration("interval", time.Second); err != nil {
		return p, err
	}
	if p.mean, err = cfg.GetDuration("mean", 0); err != nil {
		return p, err
	}
	if p.interval <= 0 || p.mean < 0 {
		return p, fmt.Errorf("producer schedule must be positive")
	}
	if err := cfg.UnmarshalParam("min", &p.min); err != nil {
		return p, err
	}
	p.max = 1
	if err := cfg.UnmarshalParam("max", &p.max); err != nil {
		return p, err
	}
	if p.max < p.min {
		return p, fmt.Errorf("producer max %v is below min %v", p.max, p.min)
	}
	p.count = cfg.GetInt("count", 0)
	return p, nil
}
