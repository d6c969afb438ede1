package messenger

import (
	"traineebot/pkg/logx"
)

// LogMessenger writes every outbound message to the log instead of a chat
// platform. Used for local runs without Slack credentials.
type LogMessenger struct {
	logger *logx.Logger
}

// NewLogMessenger creates a log-only messenger.
func NewLogMessenger() *LogMessenger {
	return &LogMessenger{logger: logx.NewLogger("messenger")}
}

func (m *LogMessenger) SendPrivate(userID, text string) {
	m.logger.Info("DM -> %s: %s", userID, text)
}

func (m *LogMessenger) SendBlocks(userID string, msg BlockMessage) {
	m.logger.Info("DM (blocks) -> %s: %s", userID, msg.Text())
}

func (m *LogMessenger) PostToChannel(channel, text string) {
	m.logger.Info("#%s: %s", channel, text)
}

func (m *LogMessenger) DisplayName(userID string) string {
	return userID
}
