package agent

import "errors"

var (
	// ErrNotOnWorker is raised (as a panic value) when Receive or Request is
	// called from a goroutine other than the agent's own worker
	ErrNotOnWorker = errors.New("called off the agent worker goroutine")

	// ErrAgentNotFound is returned when a direct recipient cannot be resolved
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentAlreadyRegistered is returned when adding an agent with a duplicate name
	ErrAgentAlreadyRegistered = errors.New("agent already registered")

	// ErrAgentAlreadyAdded is returned when adding an agent that already belongs to a container
	ErrAgentAlreadyAdded = errors.New("agent already belongs to a container")

	// ErrInvalidName is returned for empty agent or service names
	ErrInvalidName = errors.New("invalid name")

	// ErrNotTopic is returned when a subscription target is not a topic identifier
	ErrNotTopic = errors.New("identifier is not a topic")

	// ErrNoContainer is returned when an agent that was never added tries to send
	ErrNoContainer = errors.New("agent has no container")

	// ErrContainerNotRunning is returned when sending through a container that is not running
	ErrContainerNotRunning = errors.New("container not running")

	// ErrNotInitialized is returned when Start is called before Init
	ErrNotInitialized = errors.New("container not initialized")

	// ErrAlreadyInitialized is returned when Init is called twice
	ErrAlreadyInitialized = errors.New("container already initialized")

	// ErrAgentsNotIdle is returned when Start finds agents that have not parked after init
	ErrAgentsNotIdle = errors.New("agents not idle")

	// ErrUnknownState is returned when an FSM transition names an unregistered state
	ErrUnknownState = errors.New("unknown FSM state")

	// ErrBehaviorAttached is raised (as a panic value) when adding a behavior
	// that already belongs to an agent
	ErrBehaviorAttached = errors.New("behavior already attached")

	// ErrBehaviorFinished is raised (as a panic value) when adding a finished
	// behavior that has not been Reset
	ErrBehaviorFinished = errors.New("behavior finished and not reset")

	// ErrPanic wraps a value recovered from a panicking behavior or hook
	ErrPanic = errors.New("agent panicked")
)
