// Package messenger abstracts outbound chat delivery. The engine treats
// sends as fire-and-forget: delivery failures are logged by the
// implementation and never surface as engine errors.
package messenger

// BlockMessage is a structured message with a platform-specific rich
// payload and a plain-text fallback for platforms without block rendering.
type BlockMessage struct {
	Rich     string
	Fallback string
}

// NewBlockMessage pairs a rich variant with its plain-text fallback.
func NewBlockMessage(rich, fallback string) BlockMessage {
	return BlockMessage{Rich: rich, Fallback: fallback}
}

// Text returns the best text available for plain delivery.
func (b BlockMessage) Text() string {
	if b.Fallback != "" {
		return b.Fallback
	}
	return b.Rich
}

// Messenger sends messages to trainees and channels.
type Messenger interface {
	// SendPrivate sends a plain private text to the given chat user id.
	SendPrivate(userID, text string)

	// SendBlocks sends a structured block-style message to the user.
	SendBlocks(userID string, msg BlockMessage)

	// PostToChannel posts text to a named channel.
	PostToChannel(channel, text string)

	// DisplayName resolves a chat user id to a human-readable name.
	// Falls back to the raw id when the platform cannot resolve it.
	DisplayName(userID string) string
}
