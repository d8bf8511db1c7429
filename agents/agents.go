// Package agents provides the built-in agent types. Importing it registers
// them with the default agentrt registry:
//
//	producer    emits seeded random samples on a ticker or Poisson schedule
//	logger      logs every message it receives
//	echo        answers REQUEST messages with an INFORM carrying the same content
//	aggregator  summarises numeric samples over a fixed window
//	scheduler   sends a fixed message on a cron schedule
//
// Agents that produce output take exactly one destination parameter:
// "topic", "to" (an agent name) or "service".
package agents

import (
	"errors"
	"fmt"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

// ErrNoProvider is returned when an output service has no provider
var ErrNoProvider = errors.New("no provider for service")

// output is the destination an agent sends its results to
type output struct {
	topic   string
	to      string
	service string
}

func outputFrom(cfg *config.AgentConfig) (output, error) {
	o := output{
		topic:   cfg.GetString("topic", ""),
		to:      cfg.GetString("to", ""),
		service: cfg.GetString("service", ""),
	}
	n := 0
	for _, s := range []string{o.topic, o.to, o.service} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return o, fmt.Errorf("exactly one of the topic, to and service params is required, got %d", n)
	}
	return o, nil
}

func (o output) resolve(a *agent.Agent) (agent.AgentID, error) {
	switch {
	case o.topic != "":
		return agent.Topic(o.topic), nil
	case o.service != "":
		id, ok := a.AgentForService(o.service)
		if !ok {
			return agent.AgentID{}, fmt.Errorf("%w %q", ErrNoProvider, o.service)
		}
		return id, nil
	default:
		return agent.AgentID{Name: o.to}, nil
	}
}

func (o output) send(a *agent.Agent, perf agent.Performative, content any) error {
	id, err := o.resolve(a)
	if err != nil {
		return err
	}
	return a.Send(agent.NewMessage(id, perf, content))
}

func performativeParam(cfg *config.AgentConfig, def agent.Performative) (agent.Performative, error) {
	s := cfg.GetString("performative", "")
	if s == "" {
		return def, nil
	}
	return agent.ParsePerformative(s)
}
