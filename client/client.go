package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	sk "github.com/panyam/secretkeeper"
)

// DefaultCookieName is the session cookie a default server sets
const DefaultCookieName = "secretkeeper_session"

var (
	// ErrNotLoggedIn is returned when there is no session for the server or the
	// server no longer accepts it
	ErrNotLoggedIn = errors.New("not logged in")

	ErrNotFound = errors.New("not found")
)

// APIError is a failed response from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed: HTTP %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrNotLoggedIn
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// AccountInfo is the signed in account as the server describes it
type AccountInfo struct {
	ID          string   `json:"id"`
	Username    string   `json:"username,omitempty"`
	Providers   []string `json:"providers"`
	HasPassword bool     `json:"has_password"`
	SecretCount int      `json:"secret_count"`
}

// Client is an HTTP client bound to one server and its stored session
type Client struct {
	mu            sync.Mutex
	serverURL     string
	store         SessionStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	cookieName    string
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithCookieName sets the session cookie name the server uses
func WithCookieName(name string) ClientOption {
	return func(c *Client) {
		c.cookieName = name
	}
}

// WithHTTPClient copies the timeout of client and wraps its transport
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
	}
}

// WithTransport sets the base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// NewClient creates a client for serverURL using sessions from store
func NewClient(serverURL string, store SessionStore, opts ...ClientOption) *Client {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &Client{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		cookieName:    DefaultCookieName,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &SessionTransport{Base: c.baseTransport, Session: c.currentSession}
	c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// ServerURL returns the normalized server URL
func (c *Client) ServerURL() string {
	return c.serverURL
}

// Session returns the stored session for this server, if any
func (c *Client) Session() (*ServerSession, error) {
	return c.store.GetSession(c.serverURL)
}

func (c *Client) currentSession() *ServerSession {
	s, err := c.store.GetSession(c.serverURL)
	if err != nil || s == nil || s.IsExpired() {
		return nil
	}
	return s
}

// IsLoggedIn is true if a session that has not expired is stored
func (c *Client) IsLoggedIn() bool {
	return c.currentSession() != nil
}

// Login signs in with a local account and stores the session
func (c *Client) Login(ctx context.Context, username, password string) (*ServerSession, error) {
	return c.authenticate(ctx, "/login", username, password)
}

// Register creates a local account, which also signs it in
func (c *Client) Register(ctx context.Context, username, password string) (*ServerSession, error) {
	return c.authenticate(ctx, "/register", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (*ServerSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// a stale cookie must not ride along, so skip the session transport
	resp, err := (&http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var result struct {
		Account AccountInfo `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			cookie = ck
		}
	}
	if cookie == nil {
		return nil, fmt.Errorf("server did not start a session (no %s cookie)", c.cookieName)
	}

	session := &ServerSession{
		CookieName: c.cookieName,
		Token:      cookie.Value,
		AccountID:  result.Account.ID,
		Username:   result.Account.Username,
		ExpiresAt:  cookie.Expires,
		CreatedAt:  time.Now(),
	}
	if err := c.store.SetSession(c.serverURL, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save sessions: %w", err)
	}
	return session, nil
}

// Logout ends the session on the server (best effort) and forgets it locally
func (c *Client) Logout(ctx context.Context) error {
	if c.IsLoggedIn() {
		err := c.do(ctx, http.MethodPost, "/logout", nil, nil)
		if err != nil && !errors.Is(err, ErrNotLoggedIn) {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveSession(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

// Account returns the signed in account
func (c *Client) Account(ctx context.Context) (*AccountInfo, error) {
	var out struct {
		Account AccountInfo `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, "/account", nil, &out); err != nil {
		return nil, err
	}
	return &out.Account, nil
}

// ListSecrets returns the account's secrets in insertion order
func (c *Client) ListSecrets(ctx context.Context) ([]sk.Secret, error) {
	var out struct {
		Secrets []sk.Secret `json:"secrets"`
	}
	if err := c.do(ctx, http.MethodGet, "/secrets", nil, &out); err != nil {
		return nil, err
	}
	return out.Secrets, nil
}

// GetSecret returns one secret by id
func (c *Client) GetSecret(ctx context.Context, id string) (*sk.Secret, error) {
	var out struct {
		Secret sk.Secret `json:"secret"`
	}
	if err := c.do(ctx, http.MethodGet, "/secrets/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Secret, nil
}

// CreateSecret appends a secret and returns it with its new id
func (c *Client) CreateSecret(ctx context.Context, text string) (*sk.Secret, error) {
	var out struct {
		Secret sk.Secret `json:"secret"`
	}
	if err := c.do(ctx, http.MethodPost, "/secrets", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out.Secret, nil
}

// UpdateSecret replaces the text of a secret
func (c *Client) UpdateSecret(ctx context.Context, id, text string) (*sk.Secret, error) {
	var out struct {
		Secret sk.Secret `json:"secret"`
	}
	if err := c.do(ctx, http.MethodPut, "/secrets/"+url.PathEscape(id), map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out.Secret, nil
}

// DeleteSecret removes a secret
func (c *Client) DeleteSecret(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/secrets/"+url.PathEscape(id), nil, nil)
}

// do sends an authenticated JSON request and decodes the response into out
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	// plain text errors leave Message empty
	_ = json.Unmarshal(data, apiErr)
	return apiErr
}
