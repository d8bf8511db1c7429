package agents

import (
	"context"
	"log/slog"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/internal/logging"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

func init() {
	agentrt.Register("logger", newLogger)
}

// newLogger builds an agent that logs every message it receives at the
// level given by the "level" param (default info). Subscriptions come from
// the agent's topics.
func newLogger(cfg config.AgentConfig) ([]agent.Option, error) {
	level, err := logging.ParseLevel(cfg.GetString("level", "info"))
	if err != nil {
		return nil, err
	}
	return []agent.Option{agent.WithInit(func(a *agent.Agent) {
		a.Add(agent.NewMessageBehavior(nil, func(_ *agent.MessageBehavior, m *agent.Message) {
			a.Logger().Log(context.Background(), level, "Message received",
				slog.String("from", m.Sender.String()),
				slog.String("to", m.Recipient.String()),
				slog.String("performative", m.Perf.String()),
				slog.Any("content", m.Content),
				slog.Int64("sent_at", m.SentAt),
			)
		}))
	})}, nil
}
