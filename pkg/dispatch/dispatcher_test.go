package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traineebot/pkg/config"
	"traineebot/pkg/engine"
	"traineebot/pkg/flow"
	"traineebot/pkg/github"
	"traineebot/pkg/messages"
	"traineebot/pkg/messenger"
	"traineebot/pkg/store"
)

type recordingMessenger struct {
	mu       sync.Mutex
	privates []string
	blocks   []string
	channels []string
}

func (m *recordingMessenger) SendPrivate(userID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privates = append(m.privates, userID+"|"+text)
}

func (m *recordingMessenger) SendBlocks(userID string, msg messenger.BlockMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, userID+"|"+msg.Text())
}

func (m *recordingMessenger) PostToChannel(channel, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel+"|"+text)
}

func (m *recordingMessenger) DisplayName(userID string) string {
	return "Trainee " + userID
}

func (m *recordingMessenger) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.privates) == 0 {
		return ""
	}
	return m.privates[len(m.privates)-1]
}

type stubDirectory struct {
	users       map[string]string // login -> profile URL
	failTeamAdd bool
	failLookup  bool
}

func (d *stubDirectory) ResolveUser(_ context.Context, login string) (*github.Profile, error) {
	if d.failLookup {
		return nil, fmt.Errorf("directory unavailable")
	}
	url, ok := d.users[login]
	if !ok {
		return nil, fmt.Errorf("%w: %s", github.ErrUserNotFound, login)
	}
	return &github.Profile{Login: login, HTMLURL: url}, nil
}

func (d *stubDirectory) AddTeamMember(_ context.Context, _, _ string) error {
	if d.failTeamAdd {
		return fmt.Errorf("team add failed")
	}
	return nil
}

func newTestDispatcher(t *testing.T, dir *stubDirectory) (*Dispatcher, *store.TraineeStore, *recordingMessenger) {
	t.Helper()

	db, err := store.InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	st := store.NewTraineeStore(db)
	msgr := &recordingMessenger{}
	eng, err := engine.New(&engine.Deps{
		Store:     st,
		Messenger: msgr,
		Directory: dir,
		Config: config.Config{
			GitHub: config.GitHubConfig{Org: "community", TraineesTeam: "trainees"},
			Chat:   config.ChatConfig{GeneralChannel: "general", DefaultMentor: "NO_MENTOR"},
		},
	})
	require.NoError(t, err)

	return NewDispatcher(eng, msgr), st, msgr
}

func say(t *testing.T, d *Dispatcher, userID, text string) {
	t.Helper()
	require.NoError(t, d.HandleMessage(context.Background(), userID, text))
}

func stateOf(t *testing.T, d *Dispatcher, userID string) flow.State {
	t.Helper()
	snap, err := d.engine.Snapshot(userID)
	require.NoError(t, err)
	return snap.State
}

func TestKickoffRequiresReady(t *testing.T) {
	d, _, msgr := newTestDispatcher(t, &stubDirectory{})

	say(t, d, "U1", "hello there")
	assert.Equal(t, flow.StateNew, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.NotThatMessage, msgr.last())

	// Case-insensitive match.
	say(t, d, "U1", "READY")
	assert.Equal(t, flow.StateAskingQ1, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.FirstQuestion, msgr.last())
}

func TestFullConversation(t *testing.T) {
	dir := &stubDirectory{users: map[string]string{"octocat": "https://github.com/octocat"}}
	d, st, msgr := newTestDispatcher(t, dir)

	say(t, d, "U1", "ready")
	say(t, d, "U1", "I want to learn Go")
	say(t, d, "U1", "About two hours a day")
	say(t, d, "U1", "I agree")
	assert.Equal(t, flow.StateLicenseAgreed, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.AskGitLogin, msgr.last())

	say(t, d, "U1", "octocat")
	assert.Equal(t, flow.StateVerifyingLogin, stateOf(t, d, "U1"))
	assert.True(t, strings.Contains(msgr.last(), messages.ConfirmProfile))

	say(t, d, "U1", "yes")
	assert.Equal(t, flow.StateOnboarded, stateOf(t, d, "U1"))

	trainee, err := st.GetTrainee("U1")
	require.NoError(t, err)
	require.True(t, trainee.HasGitLogin())
	assert.Equal(t, "octocat", *trainee.GitLogin)
	assert.Equal(t, "I want to learn Go", trainee.FirstAnswer)

	require.Len(t, msgr.channels, 1)
	assert.Contains(t, msgr.channels[0], "Trainee U1")
	assert.Contains(t, msgr.channels[0], "octocat")
}

func TestUnknownLoginStaysPut(t *testing.T) {
	d, _, msgr := newTestDispatcher(t, &stubDirectory{users: map[string]string{}})

	say(t, d, "U1", "ready")
	say(t, d, "U1", "a1")
	say(t, d, "U1", "a2")
	say(t, d, "U1", "agree")
	say(t, d, "U1", "no-such-user")

	assert.Equal(t, flow.StateLicenseAgreed, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.LoginNotFound, msgr.last())

	// The trainee can just try again.
	say(t, d, "U1", "still-missing")
	assert.Equal(t, flow.StateLicenseAgreed, stateOf(t, d, "U1"))
}

func TestRejectedProfileAsksAgain(t *testing.T) {
	dir := &stubDirectory{users: map[string]string{"octocat": "https://github.com/octocat"}}
	d, _, msgr := newTestDispatcher(t, dir)

	say(t, d, "U1", "ready")
	say(t, d, "U1", "a1")
	say(t, d, "U1", "a2")
	say(t, d, "U1", "agree")
	say(t, d, "U1", "octocat")
	require.Equal(t, flow.StateVerifyingLogin, stateOf(t, d, "U1"))

	say(t, d, "U1", "no")
	assert.Equal(t, flow.StateLicenseAgreed, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.AskLoginAgain, msgr.last())
}

func TestConfirmationNeedsYesOrNo(t *testing.T) {
	dir := &stubDirectory{users: map[string]string{"octocat": "https://github.com/octocat"}}
	d, _, msgr := newTestDispatcher(t, dir)

	say(t, d, "U1", "ready")
	say(t, d, "U1", "a1")
	say(t, d, "U1", "a2")
	say(t, d, "U1", "agree")
	say(t, d, "U1", "octocat")

	say(t, d, "U1", "maybe")
	assert.Equal(t, flow.StateVerifyingLogin, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.NotThatMessage, msgr.last())

	say(t, d, "U1", "YES")
	assert.Equal(t, flow.StateOnboarded, stateOf(t, d, "U1"))
}

func TestTeamOutageGetsContactAdmin(t *testing.T) {
	dir := &stubDirectory{
		users:       map[string]string{"octocat": "https://github.com/octocat"},
		failTeamAdd: true,
	}
	d, st, msgr := newTestDispatcher(t, dir)

	say(t, d, "U1", "ready")
	say(t, d, "U1", "a1")
	say(t, d, "U1", "a2")
	say(t, d, "U1", "agree")
	say(t, d, "U1", "octocat")
	say(t, d, "U1", "yes")

	assert.Equal(t, flow.StateOnboarded, stateOf(t, d, "U1"))
	trainee, err := st.GetTrainee("U1")
	require.NoError(t, err)
	assert.True(t, trainee.HasGitLogin())

	require.NotEmpty(t, msgr.blocks)
	assert.Contains(t, msgr.blocks[len(msgr.blocks)-1], messages.ContactAdmin)
	assert.Empty(t, msgr.channels, "no success announcement on a failed team add")
}

func TestOnboardedMessagesIgnored(t *testing.T) {
	dir := &stubDirectory{users: map[string]string{"octocat": "https://github.com/octocat"}}
	d, _, msgr := newTestDispatcher(t, dir)

	say(t, d, "U1", "ready")
	say(t, d, "U1", "a1")
	say(t, d, "U1", "a2")
	say(t, d, "U1", "agree")
	say(t, d, "U1", "octocat")
	say(t, d, "U1", "yes")
	require.Equal(t, flow.StateOnboarded, stateOf(t, d, "U1"))

	before := len(msgr.privates)
	say(t, d, "U1", "hello again")
	assert.Equal(t, before, len(msgr.privates))
	assert.Equal(t, flow.StateOnboarded, stateOf(t, d, "U1"))
}

func TestEmptyAndBlankMessagesIgnored(t *testing.T) {
	d, _, msgr := newTestDispatcher(t, &stubDirectory{})

	say(t, d, "U1", "")
	say(t, d, "U1", "   ")
	assert.Empty(t, msgr.privates)
	assert.Equal(t, flow.StateNew, stateOf(t, d, "U1"))
}

func TestResetCommandRestartsFlow(t *testing.T) {
	d, _, msgr := newTestDispatcher(t, &stubDirectory{})

	say(t, d, "U1", "ready")
	say(t, d, "U1", "my first answer")
	require.Equal(t, flow.StateAskingQ2, stateOf(t, d, "U1"))

	say(t, d, "U1", "/reset")
	assert.Equal(t, flow.StateNew, stateOf(t, d, "U1"))
	assert.Equal(t, "U1|"+messages.Welcome, msgr.last())
}
