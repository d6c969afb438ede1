package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"traineebot/pkg/flow"
	"traineebot/pkg/logx"
)

// TraineeStore provides the load/save contract over trainee records. It is
// the only shared mutable resource in the system; all access goes through
// these methods.
type TraineeStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewTraineeStore creates a store over an initialized database.
func NewTraineeStore(db *sql.DB) *TraineeStore {
	return &TraineeStore{
		db:     db,
		logger: logx.NewLogger("store"),
	}
}

// LoadSnapshot returns the persisted snapshot for a trainee, or ErrNotFound
// for a never-seen id (normal for a new trainee, not an error condition).
func (s *TraineeStore) LoadSnapshot(userID string) (*flow.Snapshot, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT snapshot FROM trainees WHERE user_id = ?`, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", userID, err)
	}

	snap, err := flow.DecodeSnapshot(blob)
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot for %s: %w", userID, err)
	}
	return snap, nil
}

// SaveSnapshot persists a trainee's snapshot, creating the record on first
// contact. Saving the same snapshot twice is idempotent.
func (s *TraineeStore) SaveSnapshot(userID string, snap *flow.Snapshot) error {
	blob, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", userID, err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO trainees (user_id, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, userID, blob, now, now); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", userID, err)
	}
	return nil
}

// CreateOrReset writes a fresh NEW snapshot for the trainee, zeroing the
// recorded answers and progress counters but keeping the same key. Used on
// first contact and for the reset command.
func (s *TraineeStore) CreateOrReset(userID, mentor string) (*flow.Snapshot, error) {
	snap := flow.NewSnapshot(userID, mentor)
	blob, err := snap.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode fresh snapshot for %s: %w", userID, err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO trainees (user_id, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			git_login = NULL,
			completed_tasks = 0,
			bonus_points = 0,
			first_answer = '',
			second_answer = '',
			third_answer = '',
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, userID, blob, now, now); err != nil {
		return nil, fmt.Errorf("failed to reset trainee %s: %w", userID, err)
	}

	s.logger.Info("Reset trainee %s to fresh state", userID)
	return snap, nil
}

// GetTrainee returns the full trainee record.
func (s *TraineeStore) GetTrainee(userID string) (*Trainee, error) {
	query := `
		SELECT user_id, git_login, snapshot, completed_tasks, bonus_points,
		       first_answer, second_answer, third_answer, created_at, updated_at
		FROM trainees WHERE user_id = ?
	`
	return s.scanTrainee(s.db.QueryRow(query, userID))
}

// FindByGitLogin returns the trainee holding the given verified login.
func (s *TraineeStore) FindByGitLogin(gitLogin string) (*Trainee, error) {
	query := `
		SELECT user_id, git_login, snapshot, completed_tasks, bonus_points,
		       first_answer, second_answer, third_answer, created_at, updated_at
		FROM trainees WHERE git_login = ?
	`
	return s.scanTrainee(s.db.QueryRow(query, gitLogin))
}

func (s *TraineeStore) scanTrainee(row *sql.Row) (*Trainee, error) {
	t := &Trainee{}
	err := row.Scan(
		&t.UserID, &t.GitLogin, &t.Snapshot, &t.CompletedTasks, &t.BonusPoints,
		&t.FirstAnswer, &t.SecondAnswer, &t.ThirdAnswer, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trainee: %w", err)
	}
	return t, nil
}

// SetGitLogin binds a verified GitHub login to the trainee. The unique
// constraint on git_login rejects a login already claimed by someone else;
// that case surfaces as ErrLoginTaken so callers can treat it the same as
// a claim seen up front.
func (s *TraineeStore) SetGitLogin(userID, gitLogin string) error {
	res, err := s.db.Exec(
		`UPDATE trainees SET git_login = ?, updated_at = ? WHERE user_id = ?`,
		gitLogin, time.Now().UTC(), userID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrLoginTaken, gitLogin)
		}
		return fmt.Errorf("failed to set git login for %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAnswer stores the trainee's answer to question n (1-based).
func (s *TraineeStore) RecordAnswer(userID string, n int, answer string) error {
	var column string
	switch n {
	case 1:
		column = "first_answer"
	case 2:
		column = "second_answer"
	case 3:
		column = "third_answer"
	default:
		return fmt.Errorf("no answer column for question %d", n)
	}

	query := fmt.Sprintf(`UPDATE trainees SET %s = ?, updated_at = ? WHERE user_id = ?`, column)
	res, err := s.db.Exec(query, answer, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to record answer %d for %s: %w", n, userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCompletedTask increments the task-progress counter.
func (s *TraineeStore) AddCompletedTask(userID string) error {
	return s.addToCounter(userID, "completed_tasks", 1)
}

// AddBonusPoints adds points to the bonus counter.
func (s *TraineeStore) AddBonusPoints(userID string, points int) error {
	if points < 0 {
		return fmt.Errorf("bonus points must be non-negative, got %d", points)
	}
	return s.addToCounter(userID, "bonus_points", points)
}

func (s *TraineeStore) addToCounter(userID, column string, delta int) error {
	query := fmt.Sprintf(`UPDATE trainees SET %s = %s + ?, updated_at = ? WHERE user_id = ?`, column, column)
	res, err := s.db.Exec(query, delta, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update %s for %s: %w", column, userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrainees returns all trainee records ordered by progress: completed
// tasks first, bonus points as tie-breaker.
func (s *TraineeStore) ListTrainees() ([]*Trainee, error) {
	query := `
		SELECT user_id, git_login, snapshot, completed_tasks, bonus_points,
		       first_answer, second_answer, third_answer, created_at, updated_at
		FROM trainees
		ORDER BY completed_tasks DESC, bonus_points DESC, user_id ASC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trainees: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var trainees []*Trainee
	for rows.Next() {
		t := &Trainee{}
		if err := rows.Scan(
			&t.UserID, &t.GitLogin, &t.Snapshot, &t.CompletedTasks, &t.BonusPoints,
			&t.FirstAnswer, &t.SecondAnswer, &t.ThirdAnswer, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trainee row: %w", err)
		}
		trainees = append(trainees, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trainee row iteration failed: %w", err)
	}
	return trainees, nil
}
