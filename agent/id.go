package agent

import (
	"errors"
	"strings"
	"time"
)

// Messenger is anything able to send on behalf of an agent. *Agent
// implements it; AgentID uses it for its fluent helpers.
type Messenger interface {
	Send(msg *Message) error
	Request(msg *Message, timeout time.Duration) *Message
}

// AgentID addresses an agent or a topic.
//
// Two identifiers are the same entity when Name and IsTopic match; Type and
// the messenger back-reference are ignored. Use Equal rather than == to
// compare them.
type AgentID struct {
	Name    string
	IsTopic bool
	Type    string

	owner Messenger
}

// Topic returns the identifier of the topic with the given name
func Topic(name string) AgentID {
	return AgentID{Name: name, IsTopic: true}
}

// Equal reports whether both identifiers address the same entity
func (id AgentID) Equal(other AgentID) bool {
	return id.Name == other.Name && id.IsTopic == other.IsTopic
}

// IsZero reports whether the identifier is unset
func (id AgentID) IsZero() bool {
	return id.Name == ""
}

// Topic returns the topic namespace of this identifier. With no arguments it
// is the topic sharing the agent's name; otherwise the parts are appended as
// dot-separated sub-topics.
func (id AgentID) Topic(sub ...string) AgentID {
	name := id.Name
	if len(sub) > 0 {
		name += "." + strings.Join(sub, ".")
	}
	return AgentID{Name: name, IsTopic: true, owner: id.owner}
}

// Send sends a new message with the given performative and content to id on
// behalf of the agent that produced the identifier
func (id AgentID) Send(perf Performative, content any) error {
	if id.owner == nil {
		return errors.New("agent id has no messenger")
	}
	return id.owner.Send(NewMessage(id, perf, content))
}

// Request sends a new message to id and waits up to timeout for the reply.
// It returns nil when the identifier has no messenger or no reply arrived.
func (id AgentID) Request(perf Performative, content any, timeout time.Duration) *Message {
	if id.owner == nil {
		return nil
	}
	return id.owner.Request(NewMessage(id, perf, content), timeout)
}

func (id AgentID) String() string {
	if id.IsTopic {
		return "#" + id.Name
	}
	return id.Name
}

func (id AgentID) withOwner(m Messenger) AgentID {
	id.owner = m
	return id
}

func (id AgentID) bare() AgentID {
	id.owner = nil
	return id
}
