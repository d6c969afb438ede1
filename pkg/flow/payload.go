package flow

// PayloadKind tags the three payload shapes carried through a transition.
type PayloadKind string

const (
	// PayloadSingle carries just the trainee id and kicks off the
	// question sequence.
	PayloadSingle PayloadKind = "single"
	// PayloadQuestion carries a free-text answer plus the target-question
	// context.
	PayloadQuestion PayloadKind = "question"
	// PayloadVerification carries a claimed GitHub login.
	PayloadVerification PayloadKind = "verification"
)

// Payload is the immutable data carried through a single transition. It is
// written once by the dispatcher, stashed into the snapshot's extended
// variables across the event boundary and read by the bound actions.
type Payload struct {
	Kind   PayloadKind `json:"kind"`
	UserID string      `json:"user_id"`

	// Question fields.
	Answer string `json:"answer,omitempty"`
	Target string `json:"target,omitempty"`

	// Verification fields.
	GitLogin string `json:"git_login,omitempty"`
}

// NewSinglePayload creates a payload for the conversation kickoff.
func NewSinglePayload(userID string) Payload {
	return Payload{Kind: PayloadSingle, UserID: userID}
}

// NewQuestionPayload creates a payload recording an answer for target.
func NewQuestionPayload(userID, answer, target string) Payload {
	return Payload{Kind: PayloadQuestion, UserID: userID, Answer: answer, Target: target}
}

// NewVerificationPayload creates a payload carrying a claimed GitHub login.
func NewVerificationPayload(userID, gitLogin string) Payload {
	return Payload{Kind: PayloadVerification, UserID: userID, GitLogin: gitLogin}
}
