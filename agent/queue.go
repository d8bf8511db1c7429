package agent

import "slices"

// DefaultQueueSize is the queue capacity used when none is configured
const DefaultQueueSize = 256

// MessageQueue is a bounded FIFO of messages. When full, adding a message
// drops the oldest one. A limit of 0 means unbounded.
//
// MessageQueue is not safe for concurrent use; an Agent guards its own queue.
type MessageQueue struct {
	limit int
	msgs  []*Message
}

// NewMessageQueue creates a queue holding at most limit messages
func NewMessageQueue(limit int) *MessageQueue {
	return &MessageQueue{limit: max(limit, 0)}
}

// Add appends msg and returns the message dropped to make room, if any
func (q *MessageQueue) Add(msg *Message) (dropped *Message) {
	if q.limit > 0 && len(q.msgs) >= q.limit {
		dropped = q.msgs[0]
		q.msgs = slices.Delete(q.msgs, 0, 1)
	}
	q.msgs = append(q.msgs, msg)
	return dropped
}

// Get removes and returns the oldest message matching f, or nil. A nil
// filter matches everything.
func (q *MessageQueue) Get(f Filter) *Message {
	for i, m := range q.msgs {
		if f == nil || f.Match(m) {
			q.msgs = slices.Delete(q.msgs, i, i+1)
			return m
		}
	}
	return nil
}

// Len returns the number of queued messages
func (q *MessageQueue) Len() int {
	return len(q.msgs)
}

// Limit returns the capacity, 0 meaning unbounded
func (q *MessageQueue) Limit() int {
	return q.limit
}

// SetLimit changes the capacity, dropping the oldest messages that no longer
// fit. It returns the number dropped.
func (q *MessageQueue) SetLimit(limit int) int {
	q.limit = max(limit, 0)
	if q.limit == 0 || len(q.msgs) <= q.limit {
		return 0
	}
	n := len(q.msgs) - q.limit
	q.msgs = slices.Delete(q.msgs, 0, n)
	return n
}

// Clear drops every queued message
func (q *MessageQueue) Clear() {
	clear(q.msgs)
	q.msgs = q.msgs[:0]
}
