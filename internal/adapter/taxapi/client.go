package taxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/jwt"
)

const maxBodyBytes = 8 << 20

// Credentials identify one TaxBandits API account.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserToken    string
	Sandbox      bool
}

// Endpoints are the base URLs of one environment.
type Endpoints struct {
	OAuthURL string
	APIURL   string
}

// Requester issues authenticated API calls and decodes the JSON response into out.
type Requester interface {
	Request(ctx context.Context, method, path string, body, out any) error
}

// Do issues an authenticated call and returns the response decoded as T.
func Do[T any](ctx context.Context, r Requester, method, path string, body any) (T, error) {
	var out T
	if err := r.Request(ctx, method, path, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Client is the authenticated TaxBandits client. It owns the OAuth exchange and the
// access token cache; one Client exists per set of credentials.
type Client struct {
	creds      Credentials
	sandboxEP  Endpoints
	liveEP     Endpoints
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *zap.Logger
	tracer     trace.Tracer

	mu         sync.RWMutex
	sandbox    bool
	generation uint64
	token      *AccessToken
}

var _ Requester = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock injects the clock used for token expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSandboxEndpoints overrides the sandbox base URLs.
func WithSandboxEndpoints(ep Endpoints) Option {
	return func(c *Client) { c.sandboxEP = ep }
}

// WithProductionEndpoints overrides the production base URLs.
func WithProductionEndpoints(ep Endpoints) Option {
	return func(c *Client) { c.liveEP = ep }
}

// NewClient constructs a Client for the given credentials.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		sandbox:    creds.Sandbox,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("github.com/smallbiznis/valora-filing/internal/adapter/taxapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasCredentials reports whether client id, secret, and user token are all present.
func (c *Client) HasCredentials() bool {
	return strings.TrimSpace(c.creds.ClientID) != "" &&
		strings.TrimSpace(c.creds.ClientSecret) != "" &&
		strings.TrimSpace(c.creds.UserToken) != ""
}

// IsAuthenticated reports whether a cached token exists and has not reached its expiry.
func (c *Client) IsAuthenticated() bool {
	_, ok := c.cachedToken()
	return ok
}

// Sandbox reports the active environment.
func (c *Client) Sandbox() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sandbox
}

// SetEnvironment switches base URLs and discards any cached token, since sandbox and
// production tokens are not interchangeable.
func (c *Client) SetEnvironment(sandbox bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sandbox = sandbox
	c.generation++
	c.token = nil
}

// Authenticate performs the OAuth exchange and caches the resulting token.
func (c *Client) Authenticate(ctx context.Context) (AccessToken, error) {
	ctx, span := c.tracer.Start(ctx, "taxapi.Authenticate")
	defer span.End()

	c.mu.RLock()
	generation := c.generation
	endpoints := c.endpointsLocked()
	c.mu.RUnlock()

	token, err := c.exchange(ctx, endpoints)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authenticate")
		c.logger.Warn("taxapi authentication failed", zap.Error(err))
		return AccessToken{}, err
	}

	c.mu.Lock()
	if c.generation == generation {
		c.token = &token
	}
	c.mu.Unlock()

	c.logger.Debug("taxapi authenticated",
		zap.Bool("sandbox", c.Sandbox()),
		zap.Time("expires_at", token.ExpiresAt),
	)
	return token, nil
}

func (c *Client) exchange(ctx context.Context, endpoints Endpoints) (AccessToken, error) {
	header, err := jwt.NewSigner(c.creds.ClientID, c.creds.ClientSecret, c.creds.UserToken).Sign(c.clock.Now())
	if err != nil {
		return AccessToken{}, &AuthenticationError{Reason: err.Error()}
	}
	payload, err := sonic.Marshal(authRequest{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		UserToken:    c.creds.UserToken,
	})
	if err != nil {
		return AccessToken{}, fmt.Errorf("encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.OAuthURL, bytes.NewReader(payload))
	if err != nil {
		return AccessToken{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authentication", header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AccessToken{}, &NetworkError{Op: "authenticate", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return AccessToken{}, &NetworkError{Op: "read auth response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AccessToken{}, &AuthenticationError{HTTPStatus: resp.StatusCode, Reason: reasonPhrase(resp)}
	}

	var env authEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return AccessToken{}, &AuthenticationError{HTTPStatus: resp.StatusCode, Reason: "decode token response: " + err.Error()}
	}
	if env.StatusCode != http.StatusOK {
		name := strings.TrimSpace(env.StatusName)
		if name == "" {
			name = fmt.Sprintf("StatusCode %d", env.StatusCode)
		}
		return AccessToken{}, &AuthenticationError{HTTPStatus: resp.StatusCode, Reason: env.StatusMessage, StatusName: name}
	}
	if strings.TrimSpace(env.AccessToken) == "" {
		return AccessToken{}, &AuthenticationError{HTTPStatus: resp.StatusCode, Reason: "empty access token"}
	}

	issued := c.clock.Now()
	return AccessToken{
		Value:     env.AccessToken,
		TokenType: env.TokenType,
		ExpiresAt: issued.Add(time.Duration(env.ExpiresIn)*time.Second - RefreshBuffer),
	}, nil
}

// Request ensures a valid token, issues the call, and decodes a 2xx JSON body into out.
// A 401 discards the cached token and is returned as *UnauthorizedError; the call is not
// retried, so the next Request re-authenticates.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "taxapi.Request", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("taxapi.path", path),
	))
	defer span.End()

	err := c.do(ctx, method, path, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request")
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := encodeBody(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	c.mu.RLock()
	target := joinURL(c.endpointsLocked().APIURL, path)
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Op: "read " + path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidate()
		c.logger.Warn("taxapi token rejected, cache cleared", zap.String("path", path))
		return &UnauthorizedError{Path: path}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return parseRemoteError(resp, raw)
	}

	if err := decodeBody(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) ensureToken(ctx context.Context) (AccessToken, error) {
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}
	return c.Authenticate(ctx)
}

func (c *Client) cachedToken() (AccessToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil || !c.token.ValidAt(c.clock.Now()) {
		return AccessToken{}, false
	}
	return *c.token, true
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func (c *Client) endpointsLocked() Endpoints {
	if c.sandbox {
		return c.sandboxEP
	}
	return c.liveEP
}

func parseRemoteError(resp *http.Response, raw []byte) *RemoteError {
	out := &RemoteError{HTTPStatus: resp.StatusCode, Errors: []APIError{}}

	var env errorEnvelope
	if len(raw) > 0 && sonic.Unmarshal(raw, &env) == nil {
		out.StatusName = strings.TrimSpace(env.StatusName)
		for _, e := range env.Errors {
			out.Errors = append(out.Errors, APIError{ID: e.ID, Name: e.Name, Message: e.Message})
		}
	}
	if out.StatusName == "" {
		out.StatusName = reasonPhrase(resp)
	}
	return out
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return sonic.Marshal(body)
	}
}

func decodeBody(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = append(json.RawMessage(nil), raw...)
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, out)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func reasonPhrase(resp *http.Response) string {
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
