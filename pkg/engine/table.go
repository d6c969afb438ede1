package engine

import (
	"fmt"

	"traineebot/pkg/flow"
)

// transitionKey identifies one edge of the onboarding flow.
type transitionKey struct {
	From  flow.State
	Event flow.Event
}

// transition is the target state plus the ordered list of action
// identifiers fired when the edge is taken.
type transition struct {
	To      flow.State
	Actions []string
}

// transitionTable is the explicit edge map of the onboarding flow. Keying
// by (source, event) makes the table deterministic by construction: a pair
// either resolves to exactly one entry or the event is illegal.
//
//nolint:gochecknoglobals // the flow is fixed at compile time
var transitionTable = map[transitionKey]transition{
	{flow.StateNew, flow.EventStartQ1}:                  {flow.StateAskingQ1, []string{actionAskFirstQuestion}},
	{flow.StateAskingQ1, flow.EventStartQ2}:             {flow.StateAskingQ2, []string{actionRecordAnswer1}},
	{flow.StateAskingQ2, flow.EventStartQ3}:             {flow.StateAskingQ3, []string{actionRecordAnswer2}},
	{flow.StateAskingQ3, flow.EventLicenseConsent}:      {flow.StateLicenseAgreed, []string{actionRecordAnswer3}},
	{flow.StateLicenseAgreed, flow.EventLoginSubmitted}: {flow.StateVerifyingLogin, []string{actionVerifyLogin}},
	{flow.StateVerifyingLogin, flow.EventLoginConfirmed}: {flow.StateOnboarded, []string{
		actionBindGitLogin, actionAnnounceTrainee, actionSendFirstTask,
	}},
	{flow.StateVerifyingLogin, flow.EventLoginRejected}: {flow.StateLicenseAgreed, []string{actionAskLoginAgain}},
}

// validateTable checks the table at startup: every target state is known,
// every action identifier resolves, and every (state, event) pair the
// dispatcher can produce has exactly one entry.
func validateTable(actions map[string]Action) error {
	for key, tr := range transitionTable {
		if !key.From.IsValid() {
			return fmt.Errorf("transition from unknown state %q", key.From)
		}
		if !tr.To.IsValid() {
			return fmt.Errorf("transition %s -> %q targets unknown state", key.From, tr.To)
		}
		if len(tr.Actions) == 0 {
			return fmt.Errorf("transition (%s, %s) has no bound actions", key.From, key.Event)
		}
		for _, name := range tr.Actions {
			if _, ok := actions[name]; !ok {
				return fmt.Errorf("transition (%s, %s) references unknown action %q", key.From, key.Event, name)
			}
		}
	}

	// The pairs the dispatcher dispatches. Each must resolve.
	dispatched := []transitionKey{
		{flow.StateNew, flow.EventStartQ1},
		{flow.StateAskingQ1, flow.EventStartQ2},
		{flow.StateAskingQ2, flow.EventStartQ3},
		{flow.StateAskingQ3, flow.EventLicenseConsent},
		{flow.StateLicenseAgreed, flow.EventLoginSubmitted},
		{flow.StateVerifyingLogin, flow.EventLoginConfirmed},
		{flow.StateVerifyingLogin, flow.EventLoginRejected},
	}
	for _, key := range dispatched {
		if _, ok := transitionTable[key]; !ok {
			return fmt.Errorf("dispatcher pair (%s, %s) has no transition table entry", key.From, key.Event)
		}
	}
	return nil
}
