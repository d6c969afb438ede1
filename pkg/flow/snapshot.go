package flow

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the current persisted snapshot format version.
// Bump it whenever the Snapshot or Vars layout changes shape.
const SnapshotVersion = 1

// Vars is the small bag of named extended variables that survives across
// event boundaries. Unlike a transition payload, vars are persisted.
type Vars struct {
	UserID     string `json:"user_id"`
	TaskNumber int    `json:"task_number"`
	Mentor     string `json:"mentor"`

	// LastPayload is the payload stashed by the most recent dispatched
	// event, so the bound actions can read it after event routing.
	LastPayload *Payload `json:"last_payload,omitempty"`

	// ProfileURL caches the GitHub profile resolved during login
	// submission so confirmation does not query the directory again.
	ProfileURL string `json:"profile_url,omitempty"`

	// TeamAddFailed signals between the actions of a single transition
	// that the team mutation failed. Never persisted.
	TeamAddFailed bool `json:"-"`
}

// Snapshot is the serialized, resumable form of one trainee's state
// machine instance: current state plus extended variables, with an
// explicit format version for schema evolution.
type Snapshot struct {
	Version int   `json:"version"`
	State   State `json:"state"`
	Vars    Vars  `json:"vars"`
}

// NewSnapshot creates the fresh snapshot for a first-contact trainee:
// state NEW, first task, no mentor assigned yet.
func NewSnapshot(userID, mentor string) *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		State:   StateNew,
		Vars: Vars{
			UserID:     userID,
			TaskNumber: 1,
			Mentor:     mentor,
		},
	}
}

// Clone returns a deep copy so an in-flight transition can be abandoned
// without mutating the loaded snapshot.
func (s *Snapshot) Clone() *Snapshot {
	cp := *s
	if s.Vars.LastPayload != nil {
		p := *s.Vars.LastPayload
		cp.Vars.LastPayload = &p
	}
	return &cp
}

// Encode serializes the snapshot to its persisted JSON form.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a persisted snapshot and checks its format
// version and state against the known enumerations.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", s.Version, SnapshotVersion)
	}
	if !s.State.IsValid() {
		return nil, fmt.Errorf("unknown snapshot state %q", s.State)
	}
	return &s, nil
}
