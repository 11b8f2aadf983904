package twitch

import (
	"golang.org/x/oauth2"
	twitchoauth "golang.org/x/oauth2/twitch"
)

// AuthURL builds the implicit-grant authorization URL. The browser is sent
// there; Twitch redirects back with the token in the URL fragment, which the
// user pastes into the app or drops into the token file.
func (c *Client) AuthURL(creds Credentials) (string, error) {
	if creds.ClientID == "" {
		return "", ErrMissingClientID
	}
	redirect := c.RedirectURI
	if redirect == "" {
		redirect = DefaultRedirectURI
	}
	cfg := oauth2.Config{
		ClientID:    creds.ClientID,
		Endpoint:    twitchoauth.Endpoint,
		RedirectURL: redirect,
		Scopes:      []string{ScopeClipsEdit},
	}
	return cfg.AuthCodeURL("", oauth2.SetAuthURLParam("response_type", "token")), nil
}
