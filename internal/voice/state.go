package voice

import (
	"fmt"
	"time"

	"hospital-assistant/pkg"
)

// State is the position of a call in the turn-taking state machine.
type State int

const (
	Greeting State = iota
	MainLoop
	AwaitingLoginPhone
	AwaitingOTP
	Goodbye
)

var stateNames = [...]string{
	Greeting:           "greeting",
	MainLoop:           "main_loop",
	AwaitingLoginPhone: "awaiting_login_phone",
	AwaitingOTP:        "awaiting_otp",
	Goodbye:            "goodbye",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal next states. Re-prompting keeps a call in its
// current state, which is always allowed.
var transitions = map[State][]State{
	Greeting:           {MainLoop, Goodbye},
	MainLoop:           {AwaitingLoginPhone, Goodbye},
	AwaitingLoginPhone: {AwaitingOTP, MainLoop, Goodbye},
	AwaitingOTP:        {MainLoop, Goodbye},
	Goodbye:            nil,
}

// CanTransition reports whether a call in s may move to next.
func (s State) CanTransition(next State) bool {
	if s == next {
		return s != Goodbye
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Call is the per-call turn state, mirrored from the linked session for the
// identity fields.
type Call struct {
	ID          string
	SessionID   string
	State       State
	From        string
	LoginPhone  string
	Level       pkg.IdentityLevel
	Verified    bool
	PatientID   int64
	PatientName string
	Turns       int
	// Misses counts consecutive empty or unintelligible turns.
	Misses     int
	StartedAt  time.Time
	LastActive time.Time
}
