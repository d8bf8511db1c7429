package agents

import (
	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

func init() {
	agentrt.Register("scheduler", newScheduler)
}

// newScheduler builds an agent that sends the "content" param to its output
// on the "cron" schedule, for example "@every 5m" or "0 */2 * * *".
func newScheduler(cfg config.AgentConfig) ([]agent.Option, error) {
	out, err := outputFrom(&cfg)
	if err != nil {
		return nil, err
	}
	perf, err := performativeParam(&cfg, agent.Request)
	if err != nil {
		return nil, err
	}
	content, _ := cfg.Param("content")

	spec := cfg.GetString("cron", "@hourly")
	// parse up front so a bad spec fails New instead of the agent
	if _, err := agent.NewCron(spec, func(*agent.Cron) {}); err != nil {
		return nil, err
	}

	return []agent.Option{agent.WithInit(func(a *agent.Agent) {
		c, _ := agent.NewCron(spec, func(c *agent.Cron) {
			if err := out.send(a, perf, content); err != nil {
				a.Logger().Warn("Scheduled send failed", "spec", c.Spec(), "error", err)
			}
		})
		a.Add(c)
	})}, nil
}
