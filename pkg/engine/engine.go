// Package engine owns the per-trainee onboarding state machine: it loads
// persisted instances, applies events through an explicit transition
// table, fires the bound actions and commits the result. A transition
// either commits fully or leaves the pre-transition snapshot in place.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"traineebot/pkg/eventlog"
	"traineebot/pkg/flow"
	"traineebot/pkg/logx"
	"traineebot/pkg/messages"
	"traineebot/pkg/messenger"
	"traineebot/pkg/store"
)

// Engine applies events to trainee state machine instances.
type Engine struct {
	deps     *Deps
	actions  map[string]Action
	eventLog *eventlog.Writer // optional
	logger   *logx.Logger

	// Per-trainee serialization: one in-flight apply per id, different
	// trainees fully parallel. Not a single global lock.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// New creates an engine over the given dependency bundle. The transition
// table is validated at startup; a malformed table is a programming error
// surfaced before any event is accepted.
func New(deps *Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if deps.Messenger == nil {
		return nil, fmt.Errorf("engine requires a messenger")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("engine requires a directory client")
	}
	if deps.Logger == nil {
		deps.Logger = logx.NewLogger("engine")
	}

	actions := actionRegistry()
	if err := validateTable(actions); err != nil {
		return nil, fmt.Errorf("invalid transition table: %w", err)
	}

	return &Engine{
		deps:    deps,
		actions: actions,
		logger:  deps.Logger,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// SetEventLog attaches a transition audit log.
func (e *Engine) SetEventLog(w *eventlog.Writer) {
	e.eventLog = w
}

// lockFor returns the mutex serializing one trainee's transitions.
func (e *Engine) lockFor(userID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[userID] = mu
	}
	return mu
}

// Snapshot returns the trainee's current snapshot, synthesizing a fresh
// NEW instance for a never-seen id without persisting it.
func (e *Engine) Snapshot(userID string) (*flow.Snapshot, error) {
	snap, err := e.deps.Store.LoadSnapshot(userID)
	if errors.Is(err, store.ErrNotFound) {
		return flow.NewSnapshot(userID, e.deps.Config.Chat.DefaultMentor), nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Apply loads the trainee's instance, applies the event if it is legal
// from the current state, fires the bound actions in declaration order
// and commits the post-transition snapshot. It reports whether the
// transition was accepted.
//
// An illegal event is a no-op: the persisted snapshot is untouched and no
// error is returned. A recoverable condition inside an action (directory
// miss) likewise abandons the transition without error. Only persistence
// failures and programmer errors (malformed payload) propagate.
func (e *Engine) Apply(ctx context.Context, userID string, event flow.Event, payload flow.Payload) (bool, error) {
	mu := e.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	started := time.Now()

	snap, err := e.Snapshot(userID)
	if err != nil {
		return false, fmt.Errorf("failed to load instance for %s: %w", userID, err)
	}

	key := transitionKey{From: snap.State, Event: event}
	tr, ok := transitionTable[key]
	if !ok {
		e.logger.Debug("Event %s illegal in state %s for %s", event, snap.State, userID)
		if e.deps.Metrics != nil {
			e.deps.Metrics.IncRejected(snap.State.String(), event.String())
		}
		e.logDecision(userID, snap.State, snap.State, event, false)
		return false, nil
	}

	// Work on a copy so an abandoned transition leaves the loaded
	// snapshot untouched.
	work := snap.Clone()
	work.Vars.LastPayload = &payload

	for _, name := range tr.Actions {
		if err := e.actions[name](ctx, e.deps, work); err != nil {
			if errors.Is(err, errCancelTransition) {
				e.logger.Debug("Transition (%s, %s) canceled by %s for %s", snap.State, event, name, userID)
				e.logDecision(userID, snap.State, snap.State, event, false)
				return false, nil
			}
			return false, fmt.Errorf("action %s failed on (%s, %s): %w", name, snap.State, event, err)
		}
	}

	work.State = tr.To
	if err := e.deps.Store.SaveSnapshot(userID, work); err != nil {
		// Nothing committed: the trainee's next message retries from
		// the last committed state.
		return false, fmt.Errorf("failed to commit transition (%s -> %s) for %s: %w", snap.State, tr.To, userID, err)
	}

	e.logger.Info("Transition %s: %s -> %s on %s", userID, snap.State, tr.To, event)
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveTransition(snap.State.String(), tr.To.String(), event.String(), time.Since(started))
		if tr.To == flow.StateOnboarded {
			e.deps.Metrics.IncOnboarded()
		}
	}
	e.logDecision(userID, snap.State, tr.To, event, true)
	return true, nil
}

// Reset creates or resets the trainee to a fresh NEW instance and sends
// the welcome plus the rules block message.
func (e *Engine) Reset(_ context.Context, userID string) error {
	mu := e.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := e.deps.Store.CreateOrReset(userID, e.deps.Config.Chat.DefaultMentor); err != nil {
		return fmt.Errorf("failed to reset %s: %w", userID, err)
	}

	e.deps.Messenger.SendPrivate(userID, messages.Welcome)
	e.deps.Messenger.SendBlocks(userID,
		messenger.NewBlockMessage(messages.RulesRich, messages.RulesPlain))
	return nil
}

func (e *Engine) logDecision(userID string, from, to flow.State, event flow.Event, accepted bool) {
	if e.eventLog == nil {
		return
	}
	entry := eventlog.NewEntry(userID, from.String(), to.String(), event.String(), accepted)
	if err := e.eventLog.Write(entry); err != nil {
		e.logger.Warn("Failed to write event log entry: %v", err)
	}
}
