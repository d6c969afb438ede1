// Package github provides the external directory operations the bot needs:
// resolving a user by login and managing trainee team membership. All
// operations go through the gh CLI, which runs on the host as pure API
// calls.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"traineebot/pkg/logx"
)

// ErrUserNotFound is returned when the directory has no user with the
// claimed login. Recoverable: the trainee is asked to resend the login.
var ErrUserNotFound = errors.New("github user not found")

// Profile is a resolved GitHub user.
type Profile struct {
	Login   string `json:"login"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// Directory is the subset of GitHub operations the onboarding flow uses.
// Implemented by Client; faked in tests.
type Directory interface {
	// ResolveUser looks up a user by login name.
	ResolveUser(ctx context.Context, login string) (*Profile, error)

	// AddTeamMember adds a user to a team in the configured org.
	// Adding an already-present member is a no-op, not an error.
	AddTeamMember(ctx context.Context, team, login string) error
}

// runner executes a gh invocation. Swapped out in tests.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// Client provides GitHub directory operations via the gh CLI.
type Client struct {
	org     string
	logger  *logx.Logger
	timeout time.Duration
	run     runner
}

// NewClient creates a client scoped to the given organization.
func NewClient(org string) *Client {
	c := &Client{
		org:     org,
		logger:  logx.NewLogger("github"),
		timeout: 30 * time.Second,
	}
	c.run = c.runGh
	return c
}

// WithTimeout returns a client with the specified per-call timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	cp := *c
	cp.timeout = timeout
	return &cp
}

// Org returns the configured organization.
func (c *Client) Org() string {
	return c.org
}

// ResolveUser looks up a GitHub user by login. A 404 from the API maps to
// ErrUserNotFound; every other failure (including timeout) is an I/O error.
func (c *Client) ResolveUser(ctx context.Context, login string) (*Profile, error) {
	output, err := c.run(ctx, "api", fmt.Sprintf("users/%s", login))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, login)
		}
		return nil, fmt.Errorf("failed to resolve user %s: %w", login, err)
	}

	var profile Profile
	if err := json.Unmarshal(output, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse user %s: %w", login, err)
	}
	if profile.HTMLURL == "" {
		profile.HTMLURL = fmt.Sprintf("https://github.com/%s", profile.Login)
	}
	return &profile, nil
}

// AddTeamMember adds a user to the named team in the client's org. The
// underlying membership PUT is idempotent: re-adding a member succeeds.
func (c *Client) AddTeamMember(ctx context.Context, team, login string) error {
	endpoint := fmt.Sprintf("orgs/%s/teams/%s/memberships/%s", c.org, team, login)
	if _, err := c.run(ctx, "api", "-X", "PUT", endpoint); err != nil {
		return fmt.Errorf("failed to add %s to team %s/%s: %w", login, c.org, team, err)
	}
	c.logger.Info("Added %s to team %s/%s", login, c.org, team)
	return nil
}

// runGh executes a gh command with the client's timeout.
func (c *Client) runGh(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Executing: gh %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		c.logger.Debug("Command failed: %v, output: %s", err, string(output))
		return nil, fmt.Errorf("gh command failed: %w\nOutput: %s", err, string(output))
	}
	return output, nil
}

// isNotFound detects a 404 in gh's error output.
func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "HTTP 404") || strings.Contains(msg, "Not Found")
}
