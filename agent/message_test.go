package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentID_Equality(t *testing.T) {
	plain := AgentID{Name: "sensor", Type: "thermo"}
	assert.True(t, plain.Equal(AgentID{Name: "sensor"}))
	assert.False(t, plain.Equal(Topic("sensor")))
	assert.True(t, Topic("sensor").Equal(plain.Topic()))
	assert.True(t, AgentID{}.IsZero())
}

func TestAgentID_SubTopics(t *testing.T) {
	id := AgentID{Name: "plant"}
	sub := id.Topic("boiler", "temp")
	assert.True(t, sub.IsTopic)
	assert.Equal(t, "plant.boiler.temp", sub.Name)
	assert.Equal(t, "#plant.boiler.temp", sub.String())
	assert.Equal(t, "plant", id.String())
}

func TestAgentID_HelpersWithoutMessenger(t *testing.T) {
	id := AgentID{Name: "orphan"}
	assert.Error(t, id.Send(Inform, nil))
	assert.Nil(t, id.Request(Request, nil, 0))
}

func TestPerformative(t *testing.T) {
	assert.Equal(t, "REQUEST", Request.String())
	assert.Equal(t, "NOT_UNDERSTOOD", NotUnderstood.String())
	assert.Equal(t, "CANCEL", Cancel.String())
	assert.Equal(t, "Performative(42)", Performative(42).String())

	p, err := ParsePerformative("query_if")
	require.NoError(t, err)
	assert.Equal(t, QueryIf, p)

	_, err = ParsePerformative("SHOUT")
	assert.Error(t, err)
}

func TestNewMessage(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		m := NewMessage(AgentID{Name: "rx"}, Inform, nil)
		require.NotEmpty(t, m.ID)
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		assert.Zero(t, m.SentAt)
	}
}

func TestNewReply(t *testing.T) {
	req := NewMessage(AgentID{Name: "server"}, Request, "ping")
	req.Sender = AgentID{Name: "client"}

	reply := NewReply(req, Inform, "pong")
	assert.Equal(t, req.ID, reply.InReplyTo)
	assert.True(t, reply.Recipient.Equal(AgentID{Name: "client"}))
	assert.NotEqual(t, req.ID, reply.ID)
	assert.True(t, ByInReplyTo(req.ID).Match(reply))
}

type reading struct {
	Values []float64
	Meta   map[string]string
}

func TestMessage_Clone(t *testing.T) {
	orig := NewMessage(AgentID{Name: "rx"}, Inform, &reading{
		Values: []float64{1, 2},
		Meta:   map[string]string{"unit": "C"},
	})

	clone, err := orig.Clone()
	require.NoError(t, err)
	assert.Equal(t, orig.ID, clone.ID)
	require.NotSame(t, orig.Content, clone.Content)

	orig.Content.(*reading).Values[0] = 99
	orig.Content.(*reading).Meta["unit"] = "F"
	got := clone.Content.(*reading)
	assert.Equal(t, []float64{1, 2}, got.Values)
	assert.Equal(t, "C", got.Meta["unit"])

	empty, err := NewMessage(AgentID{}, Cancel, nil).Clone()
	require.NoError(t, err)
	assert.Nil(t, empty.Content)
}

func TestFilters(t *testing.T) {
	m := NewMessage(AgentID{Name: "rx"}, Propose, nil)
	m.Sender = AgentID{Name: "tx"}

	assert.True(t, BySender(AgentID{Name: "tx"}).Match(m))
	assert.False(t, BySender(AgentID{Name: "other"}).Match(m))
	assert.True(t, ByPerformative(CFP, Propose).Match(m))
	assert.True(t, And(BySender(AgentID{Name: "tx"}), ByPerformative(Propose)).Match(m))
	assert.False(t, And(BySender(AgentID{Name: "tx"}), ByPerformative(CFP)).Match(m))
}

func TestAgentState_String(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "FINISHING", StateFinishing.String())
	assert.Equal(t, "FINISHED", StateFinished.String())
	assert.Equal(t, "NONE", stateNone.String())
}
