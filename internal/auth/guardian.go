package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrAuthExpired marks an error as an authorization rejection by the
	// target service. Service adapters may wrap it; Google API 401s are
	// recognised without it.
	ErrAuthExpired = errors.New("authorization expired or invalid")

	// ErrAuthFailed means the credential could not be made valid.
	ErrAuthFailed = errors.New("authorization failed")
)

// Operation is the unit of work run under a live session. The HTTP client
// sends the current access token as a bearer token and never refreshes it on
// its own.
type Operation func(ctx context.Context, client *http.Client) error

// Guardian runs operations with a valid access token, refreshing it at most
// once per call.
type Guardian struct {
	tokenURL   string
	httpClient *http.Client
	verbose    bool
}

// NewGuardian creates a Guardian that exchanges refresh tokens at tokenURL.
// httpClient is used both for token exchanges and as the transport base for
// sessions; nil uses a client with a 30 second timeout.
func NewGuardian(tokenURL string, httpClient *http.Client, verbose bool) *Guardian {
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Guardian{
		tokenURL:   tokenURL,
		httpClient: httpClient,
		verbose:    verbose,
	}
}

// WithValidSession runs op with cred's access token. If op fails with an
// authorization error and a refresh token is available, the token is
// refreshed and op is retried exactly once.
//
// The returned credential is the one the caller should persist. It differs from
// cred only if a refresh happened, and it is returned even when op ultimately
// fails.
func (g *Guardian) WithValidSession(ctx context.Context, cred Credential, op Operation) (Credential, error) {
	current := cred

	// Nothing to present yet; the first attempt could only fail.
	if current.AccessToken == "" {
		refreshed, err := g.refresh(ctx, current)
		if err != nil {
			return cred, err
		}
		current = refreshed
		return current, g.finalAttempt(ctx, current, op)
	}

	err := op(ctx, g.sessionClient(current))
	if err == nil {
		return current, nil
	}
	if !IsAuthError(err) {
		return current, err
	}

	if g.verbose {
		log.Printf("DEBUG: access token rejected, refreshing: %v", err)
	}

	refreshed, rerr := g.refresh(ctx, current)
	if rerr != nil {
		return current, rerr
	}
	return refreshed, g.finalAttempt(ctx, refreshed, op)
}

// finalAttempt runs op with no further refresh. An authorization error here
// is terminal.
func (g *Guardian) finalAttempt(ctx context.Context, cred Credential, op Operation) error {
	err := op(ctx, g.sessionClient(cred))
	if err != nil && IsAuthError(err) {
		return fmt.Errorf("%w: rejected after refresh: %w", ErrAuthFailed, err)
	}
	return err
}

// refresh exchanges the refresh token for a new access token.
func (g *Guardian) refresh(ctx context.Context, cred Credential) (Credential, error) {
	if cred.RefreshToken == "" {
		return cred, fmt.Errorf("%w: no refresh token available", ErrAuthFailed)
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Scopes:       cred.scopes(),
		Endpoint: oauth2.Endpoint{
			TokenURL:  g.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// Only the refresh token is handed over so the source always exchanges it.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return cred, fmt.Errorf("%w: failed to refresh access token: %w", ErrAuthFailed, err)
	}

	if g.verbose {
		log.Printf("DEBUG: access token refreshed, expires %s", token.Expiry.Format(time.RFC3339))
	}

	return cred.WithToken(token), nil
}

// sessionClient returns an HTTP client that presents cred's access token.
func (g *Guardian) sessionClient(cred Credential) *http.Client {
	return &http.Client{
		Timeout: g.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(cred.Token()),
			Base:   g.httpClient.Transport,
		},
	}
}

// IsAuthError reports whether err is an authorization rejection that a token
// refresh could fix.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized
	}
	return false
}
