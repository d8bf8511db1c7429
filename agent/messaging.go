package agent

import (
	"fmt"
	"strings"
	"time"
)

// Send stamps msg with this agent as sender, the current platform time and,
// if missing, a fresh ID, then routes it through the container. It may be
// called from any goroutine.
func (a *Agent) Send(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("agent %s: nil message", a.id.Name)
	}
	if a.container == nil {
		return ErrNoContainer
	}
	msg.Sender = a.id.bare()
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	msg.SentAt = a.CurrentTimeMillis()
	return a.container.Send(msg)
}

// Receive returns the oldest queued message matching filter (nil matches
// all). With a zero timeout it does not wait; with Forever it waits without a
// deadline; otherwise it waits up to timeout of platform time. It returns nil
// on timeout or as soon as the agent is stopping.
//
// Receive suspends the whole agent, so sibling behaviors do not run while it
// waits. It panics with ErrNotOnWorker when called off the worker goroutine.
func (a *Agent) Receive(filter Filter, timeout time.Duration) *Message {
	a.checkWorker("Receive")
	if msg := a.dequeue(filter); msg != nil {
		return msg
	}
	if timeout == 0 || a.stopping() {
		return nil
	}

	deadline := int64(-1)
	if timeout > 0 {
		wait := quantize(timeout)
		deadline = a.NanoTime() + wait.Nanoseconds()
		a.schedule(a.Wake, wait)
	}
	for {
		a.suspend()
		if msg := a.dequeue(filter); msg != nil {
			return msg
		}
		if a.stopping() {
			return nil
		}
		if deadline >= 0 && a.NanoTime() >= deadline {
			return nil
		}
	}
}

// Request sends msg and waits up to timeout for a reply whose InReplyTo is
// msg.ID. It returns nil when sending fails or no reply arrives in time.
func (a *Agent) Request(msg *Message, timeout time.Duration) *Message {
	a.checkWorker("Request")
	if err := a.Send(msg); err != nil {
		a.logger.Warn("Request not sent", "recipient", msg.Recipient.String(), "error", err)
		return nil
	}
	return a.Receive(ByInReplyTo(msg.ID), timeout)
}

// Reply sends a reply to msg
func (a *Agent) Reply(msg *Message, perf Performative, content any) error {
	return a.Send(NewReply(msg, perf, content))
}

// AgentFor returns an identifier for the named agent whose helpers send on
// behalf of this agent
func (a *Agent) AgentFor(name string) AgentID {
	return AgentID{Name: name, owner: a}
}

// Topic returns the identifier of the topic formed by joining parts with dots
func (a *Agent) Topic(parts ...string) AgentID {
	return AgentID{Name: strings.Join(parts, "."), IsTopic: true, owner: a}
}

// Subscribe adds this agent to the subscribers of topic
func (a *Agent) Subscribe(topic AgentID) error {
	return a.container.Subscribe(topic, a)
}

// Unsubscribe removes this agent from the subscribers of topic
func (a *Agent) Unsubscribe(topic AgentID) {
	a.container.Unsubscribe(topic, a)
}

// RegisterService advertises this agent as a provider of service
func (a *Agent) RegisterService(service string) error {
	return a.container.RegisterService(service, a.id)
}

// DeregisterService withdraws this agent as a provider of service
func (a *Agent) DeregisterService(service string) {
	a.container.DeregisterService(service, a.id)
}

// AgentForService returns a provider of service
func (a *Agent) AgentForService(service string) (AgentID, bool) {
	id, ok := a.container.AgentForService(service)
	return id.withOwner(a), ok
}

// AgentsForService returns every known provider of service
func (a *Agent) AgentsForService(service string) []AgentID {
	ids := a.container.AgentsForService(service)
	for i := range ids {
		ids[i] = ids[i].withOwner(a)
	}
	return ids
}
