package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"traineebot/pkg/flow"
)

// Helper to create a fresh database for each test.
func createTestStore(t *testing.T) *TraineeStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return NewTraineeStore(db)
}

func TestLoadSnapshotNotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LoadSnapshot("U-never-seen")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unseen id, got %v", err)
	}
}

func TestSnapshotSaveLoadRoundTrip(t *testing.T) {
	s := createTestStore(t)

	payload := flow.NewQuestionPayload("U1", "answer text", "U1")
	snap := flow.NewSnapshot("U1", "NO_MENTOR")
	snap.State = flow.StateAskingQ2
	snap.Vars.LastPayload = &payload

	if err := s.SaveSnapshot("U1", snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := s.LoadSnapshot("U1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if got.State != snap.State {
		t.Errorf("expected state %s, got %s", snap.State, got.State)
	}
	if got.Vars.UserID != snap.Vars.UserID || got.Vars.TaskNumber != snap.Vars.TaskNumber ||
		got.Vars.Mentor != snap.Vars.Mentor || got.Vars.ProfileURL != snap.Vars.ProfileURL {
		t.Errorf("extended vars did not round-trip: want %+v, got %+v", snap.Vars, got.Vars)
	}
	if got.Vars.LastPayload == nil || *got.Vars.LastPayload != *snap.Vars.LastPayload {
		t.Errorf("stashed payload did not round-trip: want %+v, got %+v", snap.Vars.LastPayload, got.Vars.LastPayload)
	}
}

func TestSaveSnapshotIsIdempotent(t *testing.T) {
	s := createTestStore(t)

	snap := flow.NewSnapshot("U1", "NO_MENTOR")
	if err := s.SaveSnapshot("U1", snap); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	first, err := s.GetTrainee("U1")
	if err != nil {
		t.Fatalf("GetTrainee failed: %v", err)
	}

	if err := s.SaveSnapshot("U1", snap); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	second, err := s.GetTrainee("U1")
	if err != nil {
		t.Fatalf("GetTrainee failed: %v", err)
	}

	if !bytes.Equal(first.Snapshot, second.Snapshot) {
		t.Error("saving the same snapshot twice changed the stored blob")
	}
	if second.CompletedTasks != first.CompletedTasks || second.BonusPoints != first.BonusPoints {
		t.Error("saving the same snapshot twice changed the counters")
	}
}

func TestCreateOrResetKeepsKeyClearsProgress(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.CreateOrReset("U1", "NO_MENTOR"); err != nil {
		t.Fatalf("CreateOrReset failed: %v", err)
	}
	if err := s.SetGitLogin("U1", "octocat"); err != nil {
		t.Fatalf("SetGitLogin failed: %v", err)
	}
	if err := s.RecordAnswer("U1", 1, "first"); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}
	if err := s.AddCompletedTask("U1"); err != nil {
		t.Fatalf("AddCompletedTask failed: %v", err)
	}

	snap, err := s.CreateOrReset("U1", "NO_MENTOR")
	if err != nil {
		t.Fatalf("second CreateOrReset failed: %v", err)
	}
	if snap.State != flow.StateNew {
		t.Errorf("expected fresh snapshot in NEW, got %s", snap.State)
	}

	trainee, err := s.GetTrainee("U1")
	if err != nil {
		t.Fatalf("GetTrainee failed: %v", err)
	}
	if trainee.HasGitLogin() {
		t.Error("reset should clear the git login")
	}
	if trainee.CompletedTasks != 0 || trainee.BonusPoints != 0 {
		t.Error("reset should zero the progress counters")
	}
	if trainee.FirstAnswer != "" {
		t.Error("reset should clear recorded answers")
	}
}

func TestGitLoginUniqueness(t *testing.T) {
	s := createTestStore(t)

	for _, id := range []string{"U1", "U2"} {
		if _, err := s.CreateOrReset(id, "NO_MENTOR"); err != nil {
			t.Fatalf("CreateOrReset(%s) failed: %v", id, err)
		}
	}

	if err := s.SetGitLogin("U1", "octocat"); err != nil {
		t.Fatalf("SetGitLogin(U1) failed: %v", err)
	}
	if err := s.SetGitLogin("U2", "octocat"); !errors.Is(err, ErrLoginTaken) {
		t.Fatalf("expected ErrLoginTaken for duplicate git login, got %v", err)
	}

	found, err := s.FindByGitLogin("octocat")
	if err != nil {
		t.Fatalf("FindByGitLogin failed: %v", err)
	}
	if found.UserID != "U1" {
		t.Errorf("expected octocat bound to U1, got %s", found.UserID)
	}
}

func TestFindByGitLoginNotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FindByGitLogin("nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordAnswers(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.CreateOrReset("U1", "NO_MENTOR"); err != nil {
		t.Fatalf("CreateOrReset failed: %v", err)
	}

	answers := []string{"about rules", "about tasks", "I agree"}
	for i, a := range answers {
		if err := s.RecordAnswer("U1", i+1, a); err != nil {
			t.Fatalf("RecordAnswer(%d) failed: %v", i+1, err)
		}
	}

	trainee, err := s.GetTrainee("U1")
	if err != nil {
		t.Fatalf("GetTrainee failed: %v", err)
	}
	if trainee.FirstAnswer != answers[0] || trainee.SecondAnswer != answers[1] || trainee.ThirdAnswer != answers[2] {
		t.Errorf("answers not recorded correctly: %+v", trainee)
	}

	if err := s.RecordAnswer("U1", 4, "nope"); err == nil {
		t.Error("expected error for out-of-range question number")
	}
}

func TestCountersRejectMissingTrainee(t *testing.T) {
	s := createTestStore(t)

	if err := s.AddCompletedTask("U-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetGitLogin("U-missing", "octocat"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTraineesOrdering(t *testing.T) {
	s := createTestStore(t)

	setup := []struct {
		id     string
		tasks  int
		points int
	}{
		{"U-low", 1, 0},
		{"U-high", 3, 5},
		{"U-mid", 3, 2},
	}
	for _, tc := range setup {
		if _, err := s.CreateOrReset(tc.id, "NO_MENTOR"); err != nil {
			t.Fatalf("CreateOrReset(%s) failed: %v", tc.id, err)
		}
		for i := 0; i < tc.tasks; i++ {
			if err := s.AddCompletedTask(tc.id); err != nil {
				t.Fatalf("AddCompletedTask(%s) failed: %v", tc.id, err)
			}
		}
		if tc.points > 0 {
			if err := s.AddBonusPoints(tc.id, tc.points); err != nil {
				t.Fatalf("AddBonusPoints(%s) failed: %v", tc.id, err)
			}
		}
	}

	trainees, err := s.ListTrainees()
	if err != nil {
		t.Fatalf("ListTrainees failed: %v", err)
	}
	if len(trainees) != 3 {
		t.Fatalf("expected 3 trainees, got %d", len(trainees))
	}

	wantOrder := []string{"U-high", "U-mid", "U-low"}
	for i, want := range wantOrder {
		if trainees[i].UserID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, trainees[i].UserID)
		}
	}
}

func TestSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", CurrentSchemaVersion, version)
	}

	// Re-initialization must be a no-op.
	db2, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("re-initialization failed: %v", err)
	}
	defer db2.Close()
}
