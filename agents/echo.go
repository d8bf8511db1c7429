package agents

import (
	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

func init() {
	agentrt.Register("echo", newEcho)
}

// newEcho builds an agent that answers every REQUEST with an INFORM holding
// the request content and every other performative except INFORM with
// NOT_UNDERSTOOD.
func newEcho(config.AgentConfig) ([]agent.Option, error) {
	return []agent.Option{agent.WithInit(func(a *agent.Agent) {
		a.Add(agent.NewMessageBehavior(nil, func(_ *agent.MessageBehavior, m *agent.Message) {
			var err error
			switch m.Perf {
			case agent.Request:
				err = a.Reply(m, agent.Inform, m.Content)
			case agent.Inform, agent.NotUnderstood:
				return
			default:
				err = a.Reply(m, agent.NotUnderstood, m.Perf.String())
			}
			if err != nil {
				a.Logger().Warn("Reply failed", "to", m.Sender.String(), "error", err)
			}
		}))
	})}, nil
}
