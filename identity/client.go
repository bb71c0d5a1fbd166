// Package identity signs users in against the Identity Toolkit REST API. It
// only relays credentials; token issuance and password checks stay remote.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"socialsync/remote"
)

// DefaultBaseURL is the public Identity Toolkit endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// DefaultSecureTokenURL is the public token refresh endpoint.
const DefaultSecureTokenURL = "https://securetoken.googleapis.com/v1"

// GoogleProvider is the provider id for Google sign-in.
const GoogleProvider = "google.com"

// Credentials is what a successful sign-in returns.
type Credentials struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	PhotoURL     string `json:"photoUrl"`
	ExpiresIn    string `json:"expiresIn"`
	IsNewUser    bool   `json:"isNewUser"`
}

type Client struct {
	baseURL    string
	tokenURL   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenURL:   DefaultSecureTokenURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// WithSecureTokenURL points Refresh at another token endpoint. An empty url
// keeps the current one.
func (c *Client) WithSecureTokenURL(tokenURL string) *Client {
	if tokenURL != "" {
		c.tokenURL = strings.TrimRight(tokenURL, "/")
	}
	return c
}

// SignInWithPassword checks email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Credentials, error) {
	return c.call(ctx, "signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

// SignUp creates an email and password account.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Credentials, error) {
	return c.call(ctx, "signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

// SignInWithIdp exchanges a provider id token, e.g. a Google credential, for
// an account session. The account is created on first use.
func (c *Client) SignInWithIdp(ctx context.Context, providerID, idToken, requestURI string) (*Credentials, error) {
	if requestURI == "" {
		requestURI = "http://localhost"
	}
	postBody := url.Values{}
	postBody.Set("id_token", idToken)
	postBody.Set("providerId", providerID)

	return c.call(ctx, "signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          requestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	})
}

// refreshResponse is the securetoken reply, which uses snake_case keys.
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// Refresh trades a refresh token for a new ID token. A revoked or expired
// refresh token comes back as a 400 *remote.Error.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	endpoint := fmt.Sprintf("%s/token?key=%s", c.tokenURL, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: refresh: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("identity request",
		zap.String("method", "refresh"),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remote.FromResponse(resp)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("identity: decode refresh response: %w", err)
	}
	if body.IDToken == "" || body.UserID == "" {
		return nil, errors.New("identity: response carries no token")
	}
	return &Credentials{
		IDToken:      body.IDToken,
		RefreshToken: body.RefreshToken,
		LocalID:      body.UserID,
		ExpiresIn:    body.ExpiresIn,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, payload any) (*Credentials, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/accounts:%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: %s: %w", method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("identity request",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remote.FromResponse(resp)
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("identity: decode %s response: %w", method, err)
	}
	if creds.IDToken == "" || creds.LocalID == "" {
		return nil, errors.New("identity: response carries no token")
	}
	return &creds, nil
}
