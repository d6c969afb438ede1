package engine

import (
	"context"
	"errors"
	"fmt"

	"traineebot/pkg/config"
	"traineebot/pkg/flow"
	"traineebot/pkg/github"
	"traineebot/pkg/logx"
	"traineebot/pkg/messages"
	"traineebot/pkg/messenger"
	"traineebot/pkg/metrics"
	"traineebot/pkg/store"
)

// Deps is the explicit dependency bundle actions close over. Passing it
// in, rather than injecting fields, keeps the engine deterministic and
// unit-testable without a container.
type Deps struct {
	Store     *store.TraineeStore
	Messenger messenger.Messenger
	Directory github.Directory
	Config    config.Config
	Metrics   *metrics.Recorder // optional
	Logger    *logx.Logger
}

// Action is one side-effecting procedure bound to a transition edge. It
// runs against the working snapshot before the target state is committed.
//
// Returning errCancelTransition abandons the transition without an error:
// the action has already told the trainee what to do, state stays put.
// Any other error is fatal to the request and nothing is committed.
type Action func(ctx context.Context, d *Deps, snap *flow.Snapshot) error

// errCancelTransition abandons the in-flight transition on a recoverable
// condition (directory miss, unreachable directory, claimed login).
var errCancelTransition = errors.New("transition canceled")

// Action identifiers bound in the transition table.
const (
	actionAskFirstQuestion = "ask_first_question"
	actionRecordAnswer1    = "record_answer_1"
	actionRecordAnswer2    = "record_answer_2"
	actionRecordAnswer3    = "record_answer_3"
	actionVerifyLogin      = "verify_login"
	actionBindGitLogin     = "bind_git_login"
	actionAnnounceTrainee  = "announce_trainee"
	actionSendFirstTask    = "send_first_task"
	actionAskLoginAgain    = "ask_login_again"
)

// actionRegistry maps identifiers to implementations.
func actionRegistry() map[string]Action {
	return map[string]Action{
		actionAskFirstQuestion: askFirstQuestion,
		actionRecordAnswer1:    recordAnswer(1, messages.SecondQuestion),
		actionRecordAnswer2:    recordAnswer(2, messages.ThirdQuestion),
		actionRecordAnswer3:    recordAnswer(3, messages.AskGitLogin),
		actionVerifyLogin:      verifyLogin,
		actionBindGitLogin:     bindGitLogin,
		actionAnnounceTrainee:  announceTrainee,
		actionSendFirstTask:    sendFirstTask,
		actionAskLoginAgain:    askLoginAgain,
	}
}

// askFirstQuestion records the kickoff payload and asks question one.
func askFirstQuestion(_ context.Context, d *Deps, snap *flow.Snapshot) error {
	if _, err := requirePayload(snap, flow.PayloadSingle); err != nil {
		return err
	}
	d.Messenger.SendPrivate(snap.Vars.UserID, messages.FirstQuestion)
	return nil
}

// recordAnswer stores the answer to question n and sends the next prompt.
func recordAnswer(n int, nextPrompt string) Action {
	return func(_ context.Context, d *Deps, snap *flow.Snapshot) error {
		payload, err := requirePayload(snap, flow.PayloadQuestion)
		if err != nil {
			return err
		}
		if err := d.Store.RecordAnswer(snap.Vars.UserID, n, payload.Answer); err != nil {
			return fmt.Errorf("failed to record answer %d: %w", n, err)
		}
		d.Messenger.SendPrivate(snap.Vars.UserID, nextPrompt)
		return nil
	}
}

// verifyLogin resolves the claimed GitHub login. Found: cache the profile
// URL and ask the trainee to confirm. Not found or unreachable: tell the
// trainee and abandon the transition, state unchanged.
func verifyLogin(ctx context.Context, d *Deps, snap *flow.Snapshot) error {
	payload, err := requirePayload(snap, flow.PayloadVerification)
	if err != nil {
		return err
	}

	profile, err := d.Directory.ResolveUser(ctx, payload.GitLogin)
	if errors.Is(err, github.ErrUserNotFound) {
		d.Messenger.SendPrivate(snap.Vars.UserID, messages.LoginNotFound)
		return errCancelTransition
	}
	if err != nil {
		d.Logger.Warn("Directory lookup for %q failed: %v", payload.GitLogin, err)
		if d.Metrics != nil {
			d.Metrics.IncExternalError("github", "lookup")
		}
		d.Messenger.SendPrivate(snap.Vars.UserID, messages.VerificationUnavailable)
		return errCancelTransition
	}

	snap.Vars.ProfileURL = profile.HTMLURL
	d.Messenger.SendPrivate(snap.Vars.UserID, profile.HTMLURL)
	d.Messenger.SendPrivate(snap.Vars.UserID, messages.ConfirmProfile)
	return nil
}

// bindGitLogin persists the verified login, then attempts the team
// mutation. The login is saved before the mutation so a retry can skip
// straight to the team add. A failed team add does not block the
// transition: the trainee is told to contact an admin instead.
func bindGitLogin(ctx context.Context, d *Deps, snap *flow.Snapshot) error {
	payload, err := requirePayload(snap, flow.PayloadVerification)
	if err != nil {
		return err
	}

	// The login must not already belong to another trainee.
	if existing, err := d.Store.FindByGitLogin(payload.GitLogin); err == nil && existing.UserID != snap.Vars.UserID {
		d.Messenger.SendPrivate(snap.Vars.UserID, messages.LoginAlreadyClaimed)
		return errCancelTransition
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check login ownership: %w", err)
	}

	if err := d.Store.SetGitLogin(snap.Vars.UserID, payload.GitLogin); err != nil {
		// A concurrent claim can slip past the lookup above; the unique
		// constraint catches it and the loser takes the same reply path.
		if errors.Is(err, store.ErrLoginTaken) {
			d.Messenger.SendPrivate(snap.Vars.UserID, messages.LoginAlreadyClaimed)
			return errCancelTransition
		}
		return fmt.Errorf("failed to persist git login: %w", err)
	}

	team := d.Config.GitHub.TraineesTeam
	if err := d.Directory.AddTeamMember(ctx, team, payload.GitLogin); err != nil {
		d.Logger.Error("Failed to add %s to team %s: %v", payload.GitLogin, team, err)
		if d.Metrics != nil {
			d.Metrics.IncExternalError("github", "team_add")
		}
		snap.Vars.TeamAddFailed = true
		d.Messenger.SendBlocks(snap.Vars.UserID,
			messenger.NewBlockMessage(messages.ContactAdmin, messages.ContactAdmin))
	}
	return nil
}

// announceTrainee posts the new trainee and their answers to the general
// channel. Skipped when the team mutation failed.
func announceTrainee(_ context.Context, d *Deps, snap *flow.Snapshot) error {
	if snap.Vars.TeamAddFailed {
		return nil
	}
	payload, err := requirePayload(snap, flow.PayloadVerification)
	if err != nil {
		return err
	}

	trainee, err := d.Store.GetTrainee(snap.Vars.UserID)
	if err != nil {
		return fmt.Errorf("failed to load trainee for announcement: %w", err)
	}

	name := d.Messenger.DisplayName(snap.Vars.UserID)
	text := fmt.Sprintf("%s - %s\nAnswers on questions:\n1. %s;\n2. %s;\n3. %s.",
		name, payload.GitLogin,
		trainee.FirstAnswer, trainee.SecondAnswer, trainee.ThirdAnswer)
	d.Messenger.PostToChannel(d.Config.Chat.GeneralChannel, text)
	return nil
}

// sendFirstTask sends the first-task block message. Skipped when the team
// mutation failed: the contact-admin reply already went out.
func sendFirstTask(_ context.Context, d *Deps, snap *flow.Snapshot) error {
	if snap.Vars.TeamAddFailed {
		return nil
	}
	d.Messenger.SendBlocks(snap.Vars.UserID,
		messenger.NewBlockMessage(messages.FirstTaskRich, messages.FirstTaskPlain))
	return nil
}

// askLoginAgain prompts for the login after a rejected verification.
func askLoginAgain(_ context.Context, d *Deps, snap *flow.Snapshot) error {
	d.Messenger.SendPrivate(snap.Vars.UserID, messages.AskLoginAgain)
	return nil
}

// requirePayload returns the stashed payload, failing hard when its shape
// does not match the transition being fired. That mismatch is a
// programmer error, not user input.
func requirePayload(snap *flow.Snapshot, kind flow.PayloadKind) (*flow.Payload, error) {
	p := snap.Vars.LastPayload
	if p == nil {
		return nil, fmt.Errorf("no payload stashed for %s transition", kind)
	}
	if p.Kind != kind {
		return nil, fmt.Errorf("malformed payload: got %s, want %s", p.Kind, kind)
	}
	return p, nil
}
