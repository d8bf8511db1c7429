package agent

// AgentState is a step of the agent lifecycle:
// INIT → RUNNING → (IDLE → RUNNING)* → FINISHING → FINISHED.
type AgentState int32

const (
	stateNone AgentState = iota
	StateInit
	StateIdle
	StateRunning
	StateFinishing
	StateFinished
)

func (s AgentState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateFinishing:
		return "FINISHING"
	case StateFinished:
		return "FINISHED"
	default:
		return "NONE"
	}
}
