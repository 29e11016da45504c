package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/restream-tools/restreamctl/internal/executor"
)

// OAuth endpoints of the Restream authorization service.
const (
	AuthorizeURL = "https://api.restream.io/oauth/authorize"
	TokenURL     = "https://api.restream.io/oauth/token"
)

// Credentials identify the registered OAuth application. An empty
// ClientSecret selects the public-client PKCE path.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Negotiator drives the authorization code and refresh grants. Endpoint
// fields default to the public Restream service and may be pointed at test
// servers.
type Negotiator struct {
	AuthorizeEndpoint string
	TokenEndpoint     string

	creds Credentials
	exec  *executor.Executor
}

// NewNegotiator creates a Negotiator that submits its token requests
// through exec, so transient failures during login share the standard
// retry policy.
func NewNegotiator(creds Credentials, exec *executor.Executor) *Negotiator {
	return &Negotiator{
		AuthorizeEndpoint: AuthorizeURL,
		TokenEndpoint:     TokenURL,
		creds:             creds,
		exec:              exec,
	}
}

// BuildAuthorizationURL constructs the browser-facing authorization URL.
// The scope list is space-joined before encoding; state and pkce are
// optional. No network call is made.
func (n *Negotiator) BuildAuthorizationURL(redirectURI string, scopes []string, state string, pkce *PKCECodes) (string, error) {
	if n.creds.ClientID == "" {
		return "", &executor.AuthenticationError{Message: "client id is not configured"}
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {n.creds.ClientID},
		"redirect_uri":  {redirectURI},
		"scope":         {strings.Join(scopes, " ")},
	}
	if state != "" {
		params.Set("state", state)
	}
	if pkce != nil {
		params.Set("code_challenge", pkce.CodeChallenge)
		params.Set("code_challenge_method", "S256")
	}

	return fmt.Sprintf("%s?%s", n.AuthorizeEndpoint, params.Encode()), nil
}

// ExchangeCode redeems an authorization code for tokens. The PKCE verifier
// is the preferred proof; a configured client secret is the confidential
// fallback when no verifier is supplied.
func (n *Negotiator) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenRecord, error) {
	if n.creds.ClientID == "" {
		return nil, &executor.AuthenticationError{Message: "client id is not configured"}
	}

	data := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {n.creds.ClientID},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	switch {
	case codeVerifier != "":
		data.Set("code_verifier", codeVerifier)
	case n.creds.ClientSecret != "":
		data.Set("client_secret", n.creds.ClientSecret)
	default:
		return nil, &executor.AuthenticationError{
			Message: "code exchange requires a PKCE verifier or a client secret",
		}
	}

	return n.postToken(ctx, data, "code exchange")
}

// RefreshToken obtains a new access token from a refresh token, including
// the client secret when one is configured.
func (n *Negotiator) RefreshToken(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	if n.creds.ClientID == "" {
		return nil, &executor.AuthenticationError{Message: "client id is not configured"}
	}
	if refreshToken == "" {
		return nil, &executor.AuthenticationError{Message: "refresh token is required"}
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {n.creds.ClientID},
		"refresh_token": {refreshToken},
	}
	if n.creds.ClientSecret != "" {
		data.Set("client_secret", n.creds.ClientSecret)
	}

	return n.postToken(ctx, data, "token refresh")
}

// postToken submits a form to the token endpoint and converts any failure
// into an AuthenticationError with the cause chained for diagnostics.
func (n *Negotiator) postToken(ctx context.Context, form url.Values, op string) (*TokenRecord, error) {
	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
	}

	err := n.exec.Do(ctx, executor.Request{
		Method: http.MethodPost,
		Path:   n.TokenEndpoint,
		Form:   form,
	}, &tokenResp)
	if err != nil {
		var apiErr *executor.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = fmt.Sprintf("status %d", apiErr.StatusCode)
			}
			return nil, &executor.AuthenticationError{
				Message: fmt.Sprintf("%s failed: %s", op, msg),
				Err:     err,
			}
		}
		return nil, &executor.AuthenticationError{Message: op + " failed", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return nil, &executor.AuthenticationError{Message: op + " returned no access token"}
	}

	record := &TokenRecord{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
	}
	if tokenResp.ExpiresIn > 0 {
		record.ExpiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return record, nil
}
