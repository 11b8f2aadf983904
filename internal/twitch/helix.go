// Package twitch contains the small set of Helix calls needed to cut clips:
// user id resolution, live status, clip creation and the authenticated user.
// Every call takes the caller's credentials; the client itself only holds
// transport settings.
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultHelixURL = "https://api.twitch.tv/helix"

	// DefaultRedirectURI has no listener behind it. The browser shows a
	// connection error, but the address bar keeps the token in its
	// #access_token fragment for the user to save into token.txt.
	DefaultRedirectURI = "http://localhost"

	ScopeClipsEdit = "clips:edit"
)

var (
	// ErrMissingCredentials is returned before any request is made when the
	// client id or the bearer token is empty.
	ErrMissingCredentials = errors.New("twitch credentials not configured")
	ErrMissingClientID    = fmt.Errorf("%w: client id is empty", ErrMissingCredentials)
	ErrMissingToken       = fmt.Errorf("%w: bearer token is empty", ErrMissingCredentials)

	ErrNotFound  = errors.New("not found")
	ErrNoEditURL = errors.New("no edit url returned")
)

// Credentials is the pair attached to every Helix request.
type Credentials struct {
	ClientID    string
	BearerToken string
}

func (c Credentials) validate() error {
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	if c.BearerToken == "" {
		return ErrMissingToken
	}
	return nil
}

// APIError is the error body Helix returns with non-2xx responses.
type APIError struct {
	Status  int    `json:"status"`
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("twitch api: %d %s", e.Status, e.Kind)
	}
	return fmt.Sprintf("twitch api: %d %s: %s", e.Status, e.Kind, e.Message)
}

type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// ClipResult is what Helix returns right after a clip is requested.
type ClipResult struct {
	ID      string `json:"id"`
	EditURL string `json:"edit_url"`
}

// ClipInfo describes an existing clip.
type ClipInfo struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	BroadcasterName string  `json:"broadcaster_name"`
	CreatorName     string  `json:"creator_name"`
	CreatedAt       string  `json:"created_at"`
	ViewCount       int     `json:"view_count"`
	Duration        float64 `json:"duration"`
}

// Client talks to Helix. The zero value uses the public endpoints and http.DefaultClient.
type Client struct {
	BaseURL     string
	RedirectURI string
	HTTPClient  *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultHelixURL
}

// do sends an authenticated request and decodes the JSON body into out.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, q url.Values, out any) error {
	if err := creds.validate(); err != nil {
		return err
	}
	u := c.baseURL() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Client-Id", creds.ClientID)
	req.Header.Set("Authorization", "Bearer "+creds.BearerToken)

	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[WARN] failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{}
		if jerr := json.Unmarshal(b, apiErr); jerr != nil || apiErr.Kind == "" {
			apiErr.Kind = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(b))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// ResolveBroadcastID looks up the user id for a channel login.
// It returns ErrNotFound when no such user exists.
func (c *Client) ResolveBroadcastID(ctx context.Context, creds Credentials, login string) (string, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "/users", url.Values{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 || body.Data[0].ID == "" {
		return "", fmt.Errorf("user %q: %w", login, ErrNotFound)
	}
	return body.Data[0].ID, nil
}

// IsLive reports whether the channel currently has a running stream.
func (c *Client) IsLive(ctx context.Context, creds Credentials, login string) (bool, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return false, fmt.Errorf("login empty")
	}
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "/streams", url.Values{"user_login": {login}}, &body); err != nil {
		return false, err
	}
	return len(body.Data) > 0, nil
}

// CreateClip asks Twitch to cut a clip of the live broadcast. The channel
// must be live; Twitch rejects clips of offline channels.
func (c *Client) CreateClip(ctx context.Context, creds Credentials, broadcastID string) (ClipResult, error) {
	if broadcastID == "" {
		return ClipResult{}, fmt.Errorf("broadcast id empty")
	}
	var body struct {
		Data []ClipResult `json:"data"`
	}
	if err := c.do(ctx, creds, http.MethodPost, "/clips", url.Values{"broadcaster_id": {broadcastID}}, &body); err != nil {
		return ClipResult{}, err
	}
	if len(body.Data) == 0 || body.Data[0].EditURL == "" {
		return ClipResult{}, ErrNoEditURL
	}
	return body.Data[0], nil
}

// CurrentUser returns the user the bearer token belongs to.
func (c *Client) CurrentUser(ctx context.Context, creds Credentials) (User, error) {
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "/users", nil, &body); err != nil {
		return User{}, err
	}
	if len(body.Data) == 0 {
		return User{}, fmt.Errorf("current user: %w", ErrNotFound)
	}
	return body.Data[0], nil
}

// GetClip fetches details of an existing clip.
func (c *Client) GetClip(ctx context.Context, creds Credentials, id string) (ClipInfo, error) {
	if id == "" {
		return ClipInfo{}, fmt.Errorf("clip id empty")
	}
	var body struct {
		Data []ClipInfo `json:"data"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "/clips", url.Values{"id": {id}}, &body); err != nil {
		return ClipInfo{}, err
	}
	if len(body.Data) == 0 {
		// freshly created clips take a few seconds to show up
		return ClipInfo{}, fmt.Errorf("clip %q: %w", id, ErrNotFound)
	}
	return body.Data[0], nil
}

// ChatPopoutURL is the browser address of the channel's popout chat.
func ChatPopoutURL(channel string) string {
	return "https://www.twitch.tv/popout/" + url.PathEscape(strings.TrimSpace(channel)) + "/chat?popout="
}
