// Package flow defines the value types of the onboarding conversation:
// states, events, transition payloads and the persisted snapshot format.
// All behavior lives in the engine's actions; these are plain data.
package flow

// State represents a trainee's position in the onboarding flow.
type State string

const (
	StateNew            State = "NEW"
	StateAskingQ1       State = "ASKING_Q1"
	StateAskingQ2       State = "ASKING_Q2"
	StateAskingQ3       State = "ASKING_Q3"
	StateLicenseAgreed  State = "LICENSE_AGREED"
	StateVerifyingLogin State = "VERIFYING_LOGIN"
	// StateOnboarded is terminal for the conversation phase. Task
	// progression continues outside the state machine.
	StateOnboarded State = "ONBOARDED"
)

func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known onboarding states.
func (s State) IsValid() bool {
	switch s {
	case StateNew, StateAskingQ1, StateAskingQ2, StateAskingQ3,
		StateLicenseAgreed, StateVerifyingLogin, StateOnboarded:
		return true
	default:
		return false
	}
}

// Event represents a recognized trigger for a state transition.
type Event string

const (
	EventStartQ1        Event = "START_Q1"
	EventStartQ2        Event = "START_Q2"
	EventStartQ3        Event = "START_Q3"
	EventLicenseConsent Event = "LICENSE_CONSENT"
	EventLoginSubmitted Event = "LOGIN_SUBMITTED"
	EventLoginConfirmed Event = "LOGIN_CONFIRMED"
	EventLoginRejected  Event = "LOGIN_REJECTED"
)

func (e Event) String() string {
	return string(e)
}
