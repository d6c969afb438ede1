package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a trainee record does not exist. For a
// never-seen chat user id this is the normal "new trainee" signal, not a
// failure.
var ErrNotFound = errors.New("trainee not found")

// ErrLoginTaken is returned when a git login is already bound to another
// trainee. Recoverable: the loser of a concurrent claim gets told the
// login is taken, same as if the lookup had seen it first.
var ErrLoginTaken = errors.New("git login already taken")

// Trainee is one stored trainee record: chat-platform identity, optional
// verified GitHub login, the serialized state machine snapshot and the
// progress counters the leaderboard reads.
type Trainee struct {
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	UserID         string    `json:"user_id"`
	GitLogin       *string   `json:"git_login,omitempty"`
	Snapshot       []byte    `json:"snapshot"`
	FirstAnswer    string    `json:"first_answer,omitempty"`
	SecondAnswer   string    `json:"second_answer,omitempty"`
	ThirdAnswer    string    `json:"third_answer,omitempty"`
	CompletedTasks int       `json:"completed_tasks"`
	BonusPoints    int       `json:"bonus_points"`
}

// HasGitLogin reports whether a verified login has been bound.
func (t *Trainee) HasGitLogin() bool {
	return t.GitLogin != nil && *t.GitLogin != ""
}
