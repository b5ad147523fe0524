// Package twitchapi contains the Twitch Helix and OAuth helpers used by the
// live-channel pipeline: token introspection, user lookup, and the paginated
// stream/channel/category listings.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultHelixURL = "https://api.twitch.tv/helix"
	defaultOAuthURL = "https://id.twitch.tv"

	// requestTimeout bounds every call so a stalled Helix response cannot wedge
	// a poll cycle.
	requestTimeout = 15 * time.Second
)

// ErrUnauthorized marks a 401 response. Callers treat it as a destroyed
// session, unlike transient network or 5xx failures.
var ErrUnauthorized = errors.New("twitch: unauthorized")

// TokenSource supplies the current user access token for bearer-authenticated calls.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the Helix API with a user access token.
type Client struct {
	ClientID    string
	TokenSource TokenSource
	HTTPClient  *http.Client

	// HelixURL/OAuthURL override the live endpoints in tests.
	HelixURL string
	OAuthURL string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: requestTimeout}
}

func (c *Client) helixURL() string {
	if c.HelixURL != "" {
		return c.HelixURL
	}
	return defaultHelixURL
}

func (c *Client) oauthURL() string {
	if c.OAuthURL != "" {
		return c.OAuthURL
	}
	return defaultOAuthURL
}

// ValidateResult is the token-introspection response.
type ValidateResult struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// Validate introspects a user access token against id.twitch.tv. A 401 yields
// ErrUnauthorized; other failures are transient and leave session state to the
// caller.
func (c *Client) Validate(ctx context.Context, token string) (*ValidateResult, error) {
	if token == "" {
		return nil, fmt.Errorf("token empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oauthURL()+"/oauth2/validate", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+token)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("validate token: %w", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("validate token failed: %s: %s", resp.Status, string(b))
	}
	var res ValidateResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// User is a Helix user record.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	Email           string `json:"email"`
	CreatedAt       string `json:"created_at"`
}

// GetUsers looks up users by id. With no ids it returns the user owning the
// bearer token (the authenticated viewer).
func (c *Client) GetUsers(ctx context.Context, ids ...string) ([]User, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.getHelix(ctx, "/users", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// getHelix performs a bearer-authenticated GET against the Helix API and
// decodes the JSON body into out.
func (c *Client) getHelix(ctx context.Context, path string, query url.Values, out interface{}) error {
	tok, err := c.TokenSource(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return fmt.Errorf("%s: no access token: %w", path, ErrUnauthorized)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.helixURL()+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", path, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s request failed: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
