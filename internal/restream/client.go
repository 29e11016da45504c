package restream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/singleflight"

	"github.com/restream-tools/restreamctl/internal/auth"
	"github.com/restream-tools/restreamctl/internal/executor"
	"github.com/restream-tools/restreamctl/internal/store"
)

// Client is the credentialed entry point to the Restream REST API. It
// loads the session from a TokenStore before every call, refreshes it
// through the negotiator when it is about to expire, and hands the
// request to the retrying executor.
type Client struct {
	exec       *executor.Executor
	negotiator *auth.Negotiator
	tokens     store.TokenStore

	refreshGroup singleflight.Group
}

// NewClient wires a client from its three collaborators. Nothing is
// resolved implicitly; callers decide where tokens live and how requests
// are executed.
func NewClient(exec *executor.Executor, negotiator *auth.Negotiator, tokens store.TokenStore) *Client {
	return &Client{
		exec:       exec,
		negotiator: negotiator,
		tokens:     tokens,
	}
}

// Negotiator exposes the OAuth negotiator for interactive login flows.
func (c *Client) Negotiator() *auth.Negotiator { return c.negotiator }

// CompleteLogin exchanges an authorization code and persists the
// resulting session.
func (c *Client) CompleteLogin(ctx context.Context, code, redirectURI, codeVerifier string) (*auth.TokenRecord, error) {
	record, err := c.negotiator.ExchangeCode(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}
	if err = c.tokens.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return record, nil
}

// Logout drops the stored session. It is not an error to log out twice.
func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.Clear(ctx)
}

// AccessToken returns a currently valid access token, refreshing the
// session first when it is about to expire. Monitors receive their token
// at construction time and never refresh mid-connection.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.ensureToken(ctx)
}

// ensureToken returns an access token that is good for at least the
// expiry skew window. Concurrent callers holding the same expired token
// share a single refresh round trip, and that round trip outlives the
// caller that happened to start it.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	record, err := c.tokens.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if record == nil {
		return "", &AuthenticationError{Message: "no stored session, login required"}
	}
	if !record.Expired() {
		return record.AccessToken, nil
	}
	if !record.CanRefresh() {
		if clearErr := c.tokens.Clear(ctx); clearErr != nil {
			log.Warnf("failed to clear expired session: %v", clearErr)
		}
		return "", &AuthenticationError{Message: "session expired and no refresh token is available, login required"}
	}

	token, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		// The flight is shared by every coalesced waiter, so cancelling
		// the caller that started it must not fail the rest or tear down
		// the stored session. The executor's timeout still bounds it.
		return c.refreshSession(context.WithoutCancel(ctx), record.RefreshToken)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refreshSession trades the refresh token for a new session and persists
// it. A rejected refresh ends the session so the next call reports a
// clean login-required state instead of retrying a dead token.
func (c *Client) refreshSession(ctx context.Context, refreshToken string) (string, error) {
	record, err := c.negotiator.RefreshToken(ctx, refreshToken)
	if err != nil {
		if clearErr := c.tokens.Clear(ctx); clearErr != nil {
			log.Warnf("failed to clear rejected session: %v", clearErr)
		}
		return "", err
	}
	// The service may omit the refresh token when it does not rotate it.
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}
	if err = c.tokens.Save(ctx, record); err != nil {
		return "", fmt.Errorf("persist refreshed session: %w", err)
	}
	return record.AccessToken, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	return c.exec.Do(ctx, executor.Request{
		Method:       http.MethodGet,
		Path:         path,
		Query:        query,
		AuthRequired: true,
		Token:        token,
	}, out)
}

// getPublic hits endpoints that are served without credentials.
func (c *Client) getPublic(ctx context.Context, path string, out any) error {
	return c.exec.Do(ctx, executor.Request{
		Method: http.MethodGet,
		Path:   path,
	}, out)
}

func (c *Client) patch(ctx context.Context, path string, body []byte, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	return c.exec.Do(ctx, executor.Request{
		Method:       http.MethodPatch,
		Path:         path,
		Body:         body,
		AuthRequired: true,
		Token:        token,
	}, out)
}

// Profile returns the authenticated account profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.get(ctx, "/user/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Platforms lists every streaming platform the service can publish to.
// The endpoint is public and works without a session.
func (c *Client) Platforms(ctx context.Context) ([]Platform, error) {
	var out []Platform
	if err := c.getPublic(ctx, "/platform/all", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IngestServers lists the RTMP ingest locations. Public endpoint.
func (c *Client) IngestServers(ctx context.Context) ([]IngestServer, error) {
	var out []IngestServer
	if err := c.getPublic(ctx, "/server/all", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListChannels returns all channels of the account.
func (c *Client) ListChannels(ctx context.Context) ([]ChannelSummary, error) {
	var out []ChannelSummary
	if err := c.get(ctx, "/user/channel/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetChannel returns one channel in its detailed shape.
func (c *Client) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	var out Channel
	if err := c.get(ctx, fmt.Sprintf("/user/channel/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetChannelActive toggles whether a channel receives the stream.
func (c *Client) SetChannelActive(ctx context.Context, id int64, active bool) error {
	body, err := sjson.SetBytes([]byte(`{}`), "active", active)
	if err != nil {
		return fmt.Errorf("build channel patch: %w", err)
	}
	return c.patch(ctx, fmt.Sprintf("/user/channel/%d", id), body, nil)
}

// GetChannelMeta returns the title and description shown on a channel.
func (c *Client) GetChannelMeta(ctx context.Context, id int64) (*ChannelMeta, error) {
	var out ChannelMeta
	if err := c.get(ctx, fmt.Sprintf("/user/channel-meta/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChannelMeta sets the channel title and, when non-empty, its
// description.
func (c *Client) UpdateChannelMeta(ctx context.Context, id int64, title, description string) error {
	body, err := sjson.SetBytes([]byte(`{}`), "title", title)
	if err != nil {
		return fmt.Errorf("build channel meta patch: %w", err)
	}
	if description != "" {
		if body, err = sjson.SetBytes(body, "description", description); err != nil {
			return fmt.Errorf("build channel meta patch: %w", err)
		}
	}
	return c.patch(ctx, fmt.Sprintf("/user/channel-meta/%d", id), body, nil)
}

// GetEvent returns one stream event by id.
func (c *Client) GetEvent(ctx context.Context, id string) (*StreamEvent, error) {
	var out StreamEvent
	if err := c.get(ctx, fmt.Sprintf("/user/events/%s", url.PathEscape(id)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpcomingEvents lists events that are scheduled but not started.
func (c *Client) UpcomingEvents(ctx context.Context) ([]StreamEvent, error) {
	var out []StreamEvent
	if err := c.get(ctx, "/user/events/upcoming", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InProgressEvents lists events that are currently live.
func (c *Client) InProgressEvents(ctx context.Context) ([]StreamEvent, error) {
	var out []StreamEvent
	if err := c.get(ctx, "/user/events/in-progress", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventsHistory returns one page of finished events. Page numbering
// starts at 1.
func (c *Client) EventsHistory(ctx context.Context, page, limit int) (*EventsHistory, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	var out EventsHistory
	if err := c.get(ctx, "/user/events/history", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamKey returns the account-wide RTMP key.
func (c *Client) StreamKey(ctx context.Context) (*StreamKey, error) {
	var out StreamKey
	if err := c.get(ctx, "/user/streamKey", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventStreamKey returns the RTMP key bound to a single event.
func (c *Client) EventStreamKey(ctx context.Context, eventID string) (*StreamKey, error) {
	var out StreamKey
	if err := c.get(ctx, fmt.Sprintf("/user/events/%s/streamKey", url.PathEscape(eventID)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
