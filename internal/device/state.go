package device

import (
	"strings"

	"github.com/looplab/fsm"
)

// State is the connection state of a device. The numeric values are carried
// in DeviceStatus pushes.
type State uint8

// Device states.
const (
	StateUnknown     State = 0
	StateOffline     State = 1
	StateConnecting  State = 2
	StateOnline      State = 3
	StateWorking     State = 4
	StateError       State = 5
	StateInitialized State = 6
)

var stateNames = [...]string{
	StateUnknown:     "UNKNOWN",
	StateOffline:     "OFFLINE",
	StateConnecting:  "CONNECTING",
	StateOnline:      "ONLINE",
	StateWorking:     "WORKING",
	StateError:       "ERROR",
	StateInitialized: "INITIALIZED",
}

// String returns the upper-case state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// ParseState resolves a state name, case-insensitively.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), true
		}
	}
	return StateUnknown, false
}

// IsOnline reports whether the state accepts commands.
func (s State) IsOnline() bool { return s == StateOnline || s == StateWorking }

// transitions lists the valid targets of each state.
var transitions = map[State][]State{
	StateUnknown:     {StateInitialized},
	StateInitialized: {StateOffline, StateConnecting},
	StateOffline:     {StateConnecting, StateError},
	StateConnecting:  {StateOnline, StateOffline, StateError},
	StateOnline:      {StateWorking, StateOffline, StateError},
	StateWorking:     {StateOnline, StateOffline, StateError},
	StateError:       {StateOffline, StateInitialized},
}

// CanTransition reports whether from -> to is in the transition table.
// A transition to the same state is always allowed as a no-op.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// eventName is the fsm event that moves the machine into target.
func eventName(target State) string {
	return "to_" + strings.ToLower(target.String())
}

// stateFromName maps an fsm state name back to a State.
func stateFromName(name string) State {
	s, _ := ParseState(name)
	return s
}

// newMachine builds the state machine with one event per target state.
//
// Parameters:
//   - initial: Starting state
//   - callbacks: fsm callbacks (enter_state, leave_state)
//
// Returns:
//   - *fsm.FSM: Machine whose events enforce the transition table
func newMachine(initial State, callbacks fsm.Callbacks) *fsm.FSM {
	sources := make(map[State][]string)
	for from, targets := range transitions {
		for _, to := range targets {
			sources[to] = append(sources[to], from.String())
		}
	}

	events := make([]fsm.EventDesc, 0, len(sources))
	for to, src := range sources {
		events = append(events, fsm.EventDesc{
			Name: eventName(to),
			Src:  src,
			Dst:  to.String(),
		})
	}

	return fsm.NewFSM(initial.String(), events, callbacks)
}
