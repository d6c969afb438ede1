// Package slack is the Slack implementation of messenger.Messenger plus a
// Socket Mode listener for inbound direct messages. Outbound delivery goes
// through the Web API with the bot token; the inbound socket is opened
// with the app-level token via apps.connections.open.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"traineebot/pkg/logx"
	"traineebot/pkg/messenger"
)

const (
	apiBase        = "https://slack.com/api"
	reconnectDelay = 3 * time.Second
	writeTimeout   = 10 * time.Second
)

// MessageHandler receives one inbound private message.
type MessageHandler func(ctx context.Context, userID, text string)

// Client is a Slack messenger with a Socket Mode event loop.
type Client struct {
	appToken string
	botToken string
	http     *http.Client
	logger   *logx.Logger

	nameMu sync.Mutex
	names  map[string]string

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewClient creates a Slack client from an app-level token (xapp-) and a
// bot token (xoxb-).
func NewClient(appToken, botToken string) *Client {
	return &Client{
		appToken: appToken,
		botToken: botToken,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logx.NewLogger("slack"),
		names:    make(map[string]string),
	}
}

// apiCall posts a JSON body to a Web API method with the bot token and
// decodes the envelope into out (which may be nil).
func (c *Client) apiCall(method string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", method, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(http.MethodPost, apiBase+"/"+method, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	raw := json.NewDecoder(resp.Body)
	var buf json.RawMessage
	if err := raw.Decode(&buf); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s envelope: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s returned error: %s", method, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(buf, out); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", method, err)
		}
	}
	return nil
}

// SendPrivate sends a plain DM. Failures are logged, not returned.
func (c *Client) SendPrivate(userID, text string) {
	body := map[string]any{"channel": userID, "text": text}
	if err := c.apiCall("chat.postMessage", body, nil); err != nil {
		c.logger.Error("Failed to DM %s: %v", userID, err)
	}
}

// SendBlocks sends a markdown section block with a plain-text fallback.
func (c *Client) SendBlocks(userID string, msg messenger.BlockMessage) {
	body := map[string]any{
		"channel": userID,
		"text":    msg.Text(),
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": msg.Rich},
			},
		},
	}
	if err := c.apiCall("chat.postMessage", body, nil); err != nil {
		c.logger.Error("Failed to send blocks to %s: %v", userID, err)
	}
}

// PostToChannel posts text to a channel by name or id.
func (c *Client) PostToChannel(channel, text string) {
	body := map[string]any{"channel": channel, "text": text}
	if err := c.apiCall("chat.postMessage", body, nil); err != nil {
		c.logger.Error("Failed to post to #%s: %v", channel, err)
	}
}

// DisplayName resolves and caches the user's display name via users.info.
func (c *Client) DisplayName(userID string) string {
	c.nameMu.Lock()
	if name, ok := c.names[userID]; ok {
		c.nameMu.Unlock()
		return name
	}
	c.nameMu.Unlock()

	var resp struct {
		User struct {
			RealName string `json:"real_name"`
			Profile  struct {
				DisplayName string `json:"display_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.apiCall("users.info?user="+url.QueryEscape(userID), nil, &resp); err != nil {
		c.logger.Warn("Failed to resolve name for %s: %v", userID, err)
		return userID
	}

	name := resp.User.Profile.DisplayName
	if name == "" {
		name = resp.User.RealName
	}
	if name == "" {
		name = userID
	}

	c.nameMu.Lock()
	c.names[userID] = name
	c.nameMu.Unlock()
	return name
}

// openSocket requests a Socket Mode URL and dials it.
func (c *Client) openSocket(ctx context.Context) (*websocket.Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/apps.connections.open", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build connections.open request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.appToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connections.open request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var open struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		return nil, fmt.Errorf("failed to decode connections.open response: %w", err)
	}
	if !open.OK {
		return nil, fmt.Errorf("connections.open returned error: %s", open.Error)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, open.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial socket %s: %w", open.URL, err)
	}
	return conn, nil
}

// envelope is the Socket Mode frame wrapper.
type envelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// eventPayload is the Events API subset the bot cares about.
type eventPayload struct {
	Event struct {
		Type        string `json:"type"`
		ChannelType string `json:"channel_type"`
		User        string `json:"user"`
		Text        string `json:"text"`
		BotID       string `json:"bot_id"`
	} `json:"event"`
}

// Run connects the Socket Mode listener and blocks until ctx is canceled,
// reconnecting after transient failures. Inbound direct messages are
// passed to handler; everything else is acknowledged and dropped.
func (c *Client) Run(ctx context.Context, handler MessageHandler) error {
	for {
		if err := c.runOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Socket connection lost: %v, reconnecting in %s", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context, handler MessageHandler) error {
	conn, err := c.openSocket(ctx)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("Socket Mode connected")
	return c.serveConn(ctx, conn, handler)
}

// serveConn reads envelopes off an established socket until the connection
// fails, Slack requests a reconnect, or ctx is canceled.
func (c *Client) serveConn(ctx context.Context, conn *websocket.Conn, handler MessageHandler) error {
	defer func() {
		_ = conn.Close()
	}()

	// Closing the connection unblocks ReadMessage on shutdown. The done
	// channel stops the watcher when this connection ends, so reconnects
	// do not accumulate watchers.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("socket read failed: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Undecodable socket frame: %v", err)
			continue
		}

		if env.EnvelopeID != "" {
			c.ack(conn, env.EnvelopeID)
		}

		switch env.Type {
		case "events_api":
			// Handled off the read loop: one trainee's slow directory
			// lookup must not hold up everyone else's frames. The engine
			// serializes per trainee.
			go c.handleEvent(ctx, env.Payload, handler)
		case "disconnect":
			// Slack asks clients to reconnect; close and redial.
			return fmt.Errorf("server requested disconnect")
		case "hello":
			// Connection established.
		default:
			c.logger.Debug("Ignoring socket frame type %q", env.Type)
		}
	}
}

// ack confirms receipt of an envelope so Slack does not redeliver it.
func (c *Client) ack(conn *websocket.Conn, envelopeID string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	ackMsg := map[string]string{"envelope_id": envelopeID}
	if err := conn.WriteJSON(ackMsg); err != nil {
		c.logger.Warn("Failed to ack envelope %s: %v", envelopeID, err)
	}
}

// handleEvent filters for human direct messages and dispatches them.
func (c *Client) handleEvent(ctx context.Context, payload json.RawMessage, handler MessageHandler) {
	var ev eventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.logger.Warn("Undecodable events_api payload: %v", err)
		return
	}
	if ev.Event.Type != "message" || ev.Event.ChannelType != "im" {
		return
	}
	// Drop the bot's own messages echoed back on the socket.
	if ev.Event.BotID != "" || ev.Event.User == "" {
		return
	}
	handler(ctx, ev.Event.User, ev.Event.Text)
}
