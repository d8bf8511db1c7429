package agent

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
)

// Message is the unit of communication between agents.
//
// Messages are shared by reference between sender and receiver unless the
// container clones on delivery. A sender must not mutate a message after
// sending it.
type Message struct {
	// ID is unique and time sortable, generated once.
	ID string

	Perf      Performative
	Recipient AgentID

	// Sender is overwritten by Agent.Send.
	Sender AgentID

	// InReplyTo correlates a reply with the ID of the message it answers.
	InReplyTo string

	// SentAt is the platform time in milliseconds, 0 until sent.
	SentAt int64

	Content any
}

// NewMessage creates a message for recipient with a fresh ID
func NewMessage(recipient AgentID, perf Performative, content any) *Message {
	return &Message{
		ID:        newMessageID(),
		Perf:      perf,
		Recipient: recipient,
		Content:   content,
	}
}

// NewReply creates a reply to msg addressed to its sender
func NewReply(msg *Message, perf Performative, content any) *Message {
	reply := NewMessage(msg.Sender, perf, content)
	reply.InReplyTo = msg.ID
	return reply
}

// Clone returns a copy of m whose Content is deep copied
func (m *Message) Clone() (*Message, error) {
	c := *m
	if m.Content != nil {
		content, err := copystructure.Copy(m.Content)
		if err != nil {
			return nil, fmt.Errorf("clone message %s: %w", m.ID, err)
		}
		c.Content = content
	}
	return &c, nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s %s->%s id=%s", m.Perf, m.Sender, m.Recipient, m.ID)
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
