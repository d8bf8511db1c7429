package agent

// Relay lets an external layer, such as a replication or network bridge,
// extend a container beyond its local agents.
//
// Forward is offered every relayable message the container cannot resolve
// locally and every topic message, and reports whether it took the message.
// The query methods are appended to the container's local directory answers.
type Relay interface {
	Forward(msg *Message) bool
	AgentsForService(service string) []AgentID
	ContainsAgent(id AgentID) bool
	Agents() []AgentID
}
