package agent

import "slices"

// Filter selects messages from an agent queue
type Filter interface {
	Match(msg *Message) bool
}

// FilterFunc adapts a function to the Filter interface
type FilterFunc func(msg *Message) bool

// Match calls f(msg)
func (f FilterFunc) Match(msg *Message) bool {
	return f(msg)
}

// ByInReplyTo matches replies to the message with the given ID
func ByInReplyTo(id string) Filter {
	return FilterFunc(func(m *Message) bool { return m.InReplyTo == id })
}

// ByPerformative matches any of the given performatives
func ByPerformative(perfs ...Performative) Filter {
	return FilterFunc(func(m *Message) bool { return slices.Contains(perfs, m.Perf) })
}

// BySender matches messages from the given agent
func BySender(id AgentID) Filter {
	return FilterFunc(func(m *Message) bool { return m.Sender.Equal(id) })
}

// And matches messages accepted by every filter
func And(filters ...Filter) Filter {
	return FilterFunc(func(m *Message) bool {
		for _, f := range filters {
			if !f.Match(m) {
				return false
			}
		}
		return true
	})
}
