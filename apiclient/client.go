// Package apiclient talks to the waitlist platform REST API: credential
// exchange, token validation and the few read endpoints the admin tools need.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/tablewait/waitlist-admin/auth"
	"github.com/tablewait/waitlist-admin/internal/logctx"
)

// DefaultBaseURL is the API root of a local development backend.
const DefaultBaseURL = "http://localhost:8080/api"

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

var jsonMediaType = contenttype.NewMediaType("application/json")

var (
	// ErrBadCredentials matches login failures caused by the credentials.
	ErrBadCredentials = errors.New("apiclient: bad credentials")
	// ErrUnexpectedContentType is returned when a response body is not JSON.
	ErrUnexpectedContentType = errors.New("apiclient: unexpected content type")
	// ErrNoSession is returned by authenticated calls without a bearer token.
	ErrNoSession = errors.New("apiclient: no session")
)

// APIError is a non-2xx response.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("apiclient: %d: %s", e.Status, e.Message)
}

// Session supplies the bearer token for authenticated calls and is told when
// the API rejects it. *session.Manager implements it.
type Session interface {
	Token() string
	HandleUnauthorized(ctx context.Context) error
}

// Client is safe for concurrent use once Bind has been called.
type Client struct {
	base    string
	http    *http.Client
	log     *slog.Logger
	session Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute http(s)", baseURL)
	}

	c := &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bind attaches the session whose token authenticated calls carry. It must
// be called before the client is shared between goroutines.
func (c *Client) Bind(s Session) {
	c.session = s
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	Token    string `json:"token"`
	Type     string `json:"type"`
	Username string `json:"username"`
	Roles    string `json:"roles"`
}

// Login exchanges creds for a token. Rejected credentials yield an error
// matching both ErrBadCredentials and *APIError.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: creds}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %w", ErrBadCredentials, apiErr)
		}
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("apiclient: login response without token")
	}
	return &out, nil
}

// Authenticate implements session.Authenticator.
func (c *Client) Authenticate(ctx context.Context, creds auth.Credentials) (string, error) {
	resp, err := c.Login(ctx, creds)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// CheckTokenValidity asks the API whether token is valid. A 401 or 403 is a
// negative answer, not an error, and does not end the bound session.
func (c *Client) CheckTokenValidity(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/validate", bearer: token}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return out.Valid, nil
}

// Business is a business as listed by the API.
type Business struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Address            string `json:"address,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	Capacity           int    `json:"capacity,omitempty"`
	AverageServiceTime int    `json:"averageServiceTime,omitempty"`
	IsActive           bool   `json:"isActive"`
}

// Profile is the authenticated user's profile.
type Profile struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"role"`
	Business *Business `json:"business,omitempty"`
	IsActive bool      `json:"isActive"`
}

// Profile fetches the current user's profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/profile", authenticated: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBusinesses returns the active businesses visible to the session.
func (c *Client) ListBusinesses(ctx context.Context) ([]Business, error) {
	var out []Business
	if err := c.do(ctx, request{method: http.MethodGet, path: "/business", authenticated: true}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Business{}
	}
	return out, nil
}

type request struct {
	method string
	path   string
	body   any
	// bearer overrides the bound session's token.
	bearer string
	// authenticated calls use the session token and report 401s to it.
	authenticated bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	reqID := uuid.NewString()
	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{RequestID: reqID, Method: r.method, Path: r.path})

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.base+r.path, body)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer := r.bearer
	if bearer == "" && r.authenticated {
		if c.session != nil {
			bearer = c.session.Token()
		}
		if bearer == "" {
			return ErrNoSession
		}
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "api.request.failed", slog.String("err", err.Error()))
		return fmt.Errorf("apiclient: %s %s: %w", r.method, r.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("apiclient: read response: %w", err)
	}
	c.log.DebugContext(ctx, "api.request.done",
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp, raw), RequestID: reqID}
		if resp.StatusCode == http.StatusUnauthorized && r.authenticated && r.bearer == "" && c.session != nil {
			if herr := c.session.HandleUnauthorized(ctx); herr != nil {
				c.log.WarnContext(ctx, "api.unauthorized.handler_failed", slog.String("err", herr.Error()))
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return fmt.Errorf("apiclient: %s %s: empty response body", r.method, r.path)
		}
		return nil
	}
	if !isJSON(resp) {
		return fmt.Errorf("%w: %q", ErrUnexpectedContentType, resp.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

func isJSON(resp *http.Response) bool {
	probe := &http.Request{Header: http.Header{"Content-Type": resp.Header.Values("Content-Type")}}
	mt, err := contenttype.GetMediaType(probe)
	return err == nil && mt.Matches(jsonMediaType)
}

func errorMessage(resp *http.Response, raw []byte) string {
	if len(raw) == 0 || !isJSON(resp) {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

var _ auth.ValidityChecker = (*Client)(nil)
