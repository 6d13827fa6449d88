package launcher

import "fmt"

// State is a supervised process's position in the escalation sequence.
type State int

const (
	Running State = iota
	TerminateRequested
	KillRequested
	Exited
	Unkillable
)

var stateNames = [...]string{"running", "terminate_requested", "kill_requested", "exited", "unkillable"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Exited || s == Unkillable }

// allowed lists legal next states; escalation only moves forward.
var allowed = map[State][]State{
	Running:            {TerminateRequested, Exited},
	TerminateRequested: {KillRequested, Exited},
	KillRequested:      {Exited, Unkillable},
}

type machine struct {
	state   State
	history []State
}

func newMachine() *machine { return &machine{state: Running, history: []State{Running}} }

func (m *machine) to(next State) error {
	for _, s := range allowed[m.state] {
		if s == next {
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("launcher: illegal transition %s -> %s", m.state, next)
}
