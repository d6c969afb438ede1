// Package dispatch translates raw chat messages into onboarding events.
// The dispatcher owns no state of its own: it reads the trainee's current
// snapshot, decides which event (if any) the message means, and hands the
// event to the engine. Everything durable lives behind the engine.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"traineebot/pkg/engine"
	"traineebot/pkg/flow"
	"traineebot/pkg/logx"
	"traineebot/pkg/messages"
	"traineebot/pkg/messenger"
)

// Dispatcher maps inbound private messages to state machine events.
type Dispatcher struct {
	engine    *engine.Engine
	messenger messenger.Messenger
	logger    *logx.Logger
}

// NewDispatcher creates a dispatcher over the given engine and messenger.
func NewDispatcher(eng *engine.Engine, msgr messenger.Messenger) *Dispatcher {
	return &Dispatcher{
		engine:    eng,
		messenger: msgr,
		logger:    logx.NewLogger("dispatch"),
	}
}

// HandleMessage processes one private message from a trainee. The message
// is interpreted against the trainee's current state; messages that mean
// nothing in the current state get a gentle nudge, never an error.
func (d *Dispatcher) HandleMessage(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Restart the flow from scratch on explicit request, whatever the
	// current state.
	if strings.EqualFold(text, "/reset") {
		return d.engine.Reset(ctx, userID)
	}

	snap, err := d.engine.Snapshot(userID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot for %s: %w", userID, err)
	}

	d.logger.Debug("message from %s in state %s: %q", userID, snap.State, text)

	switch snap.State {
	case flow.StateNew:
		return d.handleKickoff(ctx, userID, text)
	case flow.StateAskingQ1:
		return d.apply(ctx, userID, flow.EventStartQ2, flow.NewQuestionPayload(userID, text, userID))
	case flow.StateAskingQ2:
		return d.apply(ctx, userID, flow.EventStartQ3, flow.NewQuestionPayload(userID, text, userID))
	case flow.StateAskingQ3:
		return d.apply(ctx, userID, flow.EventLicenseConsent, flow.NewQuestionPayload(userID, text, userID))
	case flow.StateLicenseAgreed:
		return d.apply(ctx, userID, flow.EventLoginSubmitted, flow.NewVerificationPayload(userID, text))
	case flow.StateVerifyingLogin:
		return d.handleConfirmation(ctx, userID, text, snap)
	case flow.StateOnboarded:
		// Onboarded trainees talk to humans now, not to the bot.
		return nil
	default:
		d.logger.Warn("trainee %s in unknown state %s, ignoring message", userID, snap.State)
		return nil
	}
}

// handleKickoff waits for the trainee to say they are ready.
func (d *Dispatcher) handleKickoff(ctx context.Context, userID, text string) error {
	if !strings.EqualFold(text, "ready") {
		d.messenger.SendPrivate(userID, messages.NotThatMessage)
		return nil
	}
	return d.apply(ctx, userID, flow.EventStartQ1, flow.NewSinglePayload(userID))
}

// handleConfirmation interprets the yes/no answer to the profile check.
// The verification payload stashed at submission time carries the login
// being confirmed, so the trainee's "yes" needs no re-parsing.
func (d *Dispatcher) handleConfirmation(ctx context.Context, userID, text string, snap *flow.Snapshot) error {
	stashed := snap.Vars.LastPayload
	if stashed == nil || stashed.Kind != flow.PayloadVerification {
		d.logger.Warn("trainee %s confirming with no stashed verification payload", userID)
		d.messenger.SendPrivate(userID, messages.NotThatMessage)
		return nil
	}

	switch strings.ToLower(text) {
	case "yes":
		return d.apply(ctx, userID, flow.EventLoginConfirmed, *stashed)
	case "no":
		return d.apply(ctx, userID, flow.EventLoginRejected, *stashed)
	default:
		d.messenger.SendPrivate(userID, messages.NotThatMessage)
		return nil
	}
}

func (d *Dispatcher) apply(ctx context.Context, userID string, event flow.Event, payload flow.Payload) error {
	accepted, err := d.engine.Apply(ctx, userID, event, payload)
	if err != nil {
		return fmt.Errorf("failed to apply %s for %s: %w", event, userID, err)
	}
	if !accepted {
		d.logger.Debug("event %s for %s not accepted", event, userID)
	}
	return nil
}
