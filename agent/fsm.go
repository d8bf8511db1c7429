package agent

import "fmt"

// FinalState is the built-in terminal state entered by FSM.Terminate
const FinalState = "FINAL"

// State is one named state of an FSM. Every hook is optional. A state
// without an Action blocks the FSM until a transition is requested through
// Trigger or the FSM is restarted.
type State struct {
	Name    string
	OnEnter func(f *FSM)
	Action  func(f *FSM)
	OnExit  func(f *FSM)
	OnEvent func(f *FSM, event string, info any)
}

// FSM is a behavior hosting a finite-state machine. The first state added is
// the initial state.
//
// Transitions requested with SetNextState, ReenterState or Terminate are
// deferred: they are applied at the start of the FSM's next action, calling
// OnExit of the old state and then OnEnter of the new one.
type FSM struct {
	BehaviorBase
	states  map[string]*State
	initial *State
	current *State
	next    *State
	done    bool
}

// NewFSM creates a state machine with the given states
func NewFSM(states ...*State) *FSM {
	f := &FSM{states: map[string]*State{
		FinalState: {Name: FinalState},
	}}
	for _, s := range states {
		f.AddState(s)
	}
	return f
}

// AddState registers s, replacing any state with the same name
func (f *FSM) AddState(s *State) *FSM {
	f.states[s.Name] = s
	if f.initial == nil {
		f.initial = s
	}
	return f
}

// OnStart enters the initial state
func (f *FSM) OnStart() {
	if f.initial == nil {
		f.done = true
		return
	}
	f.enter(f.initial)
}

func (f *FSM) Action() {
	if f.done {
		return
	}
	if f.next != nil {
		target := f.next
		f.next = nil
		f.exit(f.current)
		f.enter(target)
		if f.done {
			return
		}
	}
	if f.current.Action != nil {
		f.current.Action(f)
		return
	}
	if f.next == nil {
		f.Block()
	}
}

func (f *FSM) Done() bool { return f.done }

// CurrentState returns the name of the active state
func (f *FSM) CurrentState() string {
	if f.current == nil {
		return ""
	}
	return f.current.Name
}

// SetNextState requests a transition to the named state
func (f *FSM) SetNextState(name string) error {
	s, ok := f.states[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, name)
	}
	f.next = s
	return nil
}

// ReenterState requests that the current state be exited and entered again
func (f *FSM) ReenterState() {
	f.next = f.current
}

// Terminate requests a transition to FinalState, which completes the FSM
func (f *FSM) Terminate() {
	f.next = f.states[FinalState]
}

// Trigger dispatches an event to the current state's OnEvent hook and
// restarts the FSM so a resulting transition is applied promptly. It must
// be called from the owning agent's worker.
func (f *FSM) Trigger(event string, info any) {
	if f.current != nil && f.current.OnEvent != nil {
		f.current.OnEvent(f, event, info)
	}
	f.Restart()
}

func (f *FSM) Reset() {
	f.BehaviorBase.Reset()
	f.current = nil
	f.next = nil
	f.done = false
}

func (f *FSM) enter(s *State) {
	f.current = s
	if s.OnEnter != nil {
		s.OnEnter(f)
	}
	if s.Name == FinalState {
		f.done = true
	}
}

func (f *FSM) exit(s *State) {
	if s != nil && s.OnExit != nil {
		s.OnExit(f)
	}
}
