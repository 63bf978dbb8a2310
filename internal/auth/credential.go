package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// TasksScope is the only scope the sync needs on the target account.
const TasksScope = "https://www.googleapis.com/auth/tasks"

// GoogleTokenURL is the default token endpoint used for refresh exchanges.
const GoogleTokenURL = "https://oauth2.googleapis.com/token"

// Credential is everything needed to act on behalf of one user.
// It is issued by the (external) authorization flow and persisted by the caller.
type Credential struct {
	AccessToken  string    `yaml:"access_token,omitempty"`
	RefreshToken string    `yaml:"refresh_token,omitempty"`
	ClientID     string    `yaml:"client_id,omitempty"`
	ClientSecret string    `yaml:"client_secret,omitempty"`
	Scopes       []string  `yaml:"scopes,omitempty"`
	Expiry       time.Time `yaml:"expiry,omitempty"`
}

// Token returns the credential as an oauth2 bearer token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// WithToken returns a copy of c carrying the access token, refresh token and
// expiry of token. An empty refresh token in token keeps the existing one.
func (c Credential) WithToken(token *oauth2.Token) Credential {
	updated := c
	updated.Scopes = append([]string(nil), c.Scopes...)
	updated.AccessToken = token.AccessToken
	updated.Expiry = token.Expiry
	if token.RefreshToken != "" {
		updated.RefreshToken = token.RefreshToken
	}
	return updated
}

// WithClient fills in the OAuth client id/secret when the credential has none.
func (c Credential) WithClient(clientID, clientSecret string) Credential {
	if c.ClientID != "" {
		return c
	}
	updated := c
	updated.ClientID = clientID
	updated.ClientSecret = clientSecret
	return updated
}

// scopes returns the credential's scopes, defaulting to the tasks scope.
func (c Credential) scopes() []string {
	if len(c.Scopes) == 0 {
		return []string{TasksScope}
	}
	return c.Scopes
}

// SameToken reports whether c and other hold the same access token, refresh
// token and expiry.
func (c Credential) SameToken(other Credential) bool {
	return c.AccessToken == other.AccessToken &&
		c.RefreshToken == other.RefreshToken &&
		c.Expiry.Equal(other.Expiry)
}
