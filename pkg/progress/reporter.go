// Package progress derives the trainee leaderboard from stored records.
// Rows are computed on demand, never cached: the store is the single
// source of truth for counters and snapshots.
package progress

import (
	"fmt"
	"strings"

	"traineebot/pkg/flow"
	"traineebot/pkg/logx"
	"traineebot/pkg/messenger"
	"traineebot/pkg/store"
)

// Row is one leaderboard line for a trainee.
type Row struct {
	UserID         string     `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	GitLogin       string     `json:"git_login,omitempty"`
	State          flow.State `json:"state"`
	CompletedTasks int        `json:"completed_tasks"`
	BonusPoints    int        `json:"bonus_points"`
}

// Reporter builds and posts progress reports.
type Reporter struct {
	store     *store.TraineeStore
	messenger messenger.Messenger
	logger    *logx.Logger
}

// NewReporter creates a reporter over the given store and messenger.
func NewReporter(st *store.TraineeStore, msgr messenger.Messenger) *Reporter {
	return &Reporter{
		store:     st,
		messenger: msgr,
		logger:    logx.NewLogger("progress"),
	}
}

// Leaderboard returns all trainees ordered by completed tasks, then bonus
// points, then user id. A record with an undecodable snapshot still gets a
// row; its state is reported as unknown rather than dropping the trainee.
func (r *Reporter) Leaderboard() ([]Row, error) {
	trainees, err := r.store.ListTrainees()
	if err != nil {
		return nil, fmt.Errorf("failed to list trainees: %w", err)
	}

	rows := make([]Row, 0, len(trainees))
	for _, tr := range trainees {
		row := Row{
			UserID:         tr.UserID,
			DisplayName:    r.messenger.DisplayName(tr.UserID),
			CompletedTasks: tr.CompletedTasks,
			BonusPoints:    tr.BonusPoints,
		}
		if tr.GitLogin != nil {
			row.GitLogin = *tr.GitLogin
		}
		if snap, err := flow.DecodeSnapshot(tr.Snapshot); err != nil {
			r.logger.Warn("undecodable snapshot for %s: %v", tr.UserID, err)
			row.State = "UNKNOWN"
		} else {
			row.State = snap.State
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FormatReport renders rows as the plain-text report posted to chat.
func FormatReport(rows []Row) string {
	if len(rows) == 0 {
		return "No trainees yet."
	}

	var b strings.Builder
	b.WriteString("Trainee progress:\n")
	for i, row := range rows {
		name := row.DisplayName
		if row.GitLogin != "" {
			name = fmt.Sprintf("%s (%s)", name, row.GitLogin)
		}
		fmt.Fprintf(&b, "%d. %s: %d tasks, %d bonus points [%s]\n",
			i+1, name, row.CompletedTasks, row.BonusPoints, row.State)
	}
	return strings.TrimRight(b.String(), "\n")
}

// PostReport posts the current leaderboard to the given channel.
func (r *Reporter) PostReport(channel string) error {
	rows, err := r.Leaderboard()
	if err != nil {
		return err
	}
	r.messenger.PostToChannel(channel, FormatReport(rows))
	return nil
}
