package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/sessionkit/core/logger"
	"github.com/dmitrymomot/sessionkit/core/session"
)

// Endpoint paths consumed by the client.
const (
	EndpointLogin        = "/auth/login"
	EndpointAuthorize    = "/auth/authorize"
	EndpointSubscription = "/subscription/status"
	EndpointAudit        = "/audit/events"
)

const (
	// DefaultTimeout bounds every API request.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody limits how much of an error payload is retained.
	maxErrorBody = 8 * 1024
)

// Client talks to the session authority. It owns the outbound bearer
// attachment: SetToken/ClearToken swap it atomically, and every request
// reads the current value, so the attachment always moves in lockstep
// with the session's token.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger

	token atomic.Value // string
	hooks atomic.Pointer[hooksRef]
}

type hooksRef struct {
	h Hooks
}

var _ session.API = (*Client)(nil)

// ClientOption configures the client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	log        *slog.Logger
	timeout    time.Duration
	billable   []string
}

// WithHTTPClient supplies a preconfigured http.Client. Its transport is
// wrapped by the response interceptor.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithClientLogger configures structured logging.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBillableEndpoints marks request paths that consume the account's
// call budget; a successful call to one schedules an entitlement
// re-sync through the hooks.
func WithBillableEndpoints(paths ...string) ClientOption {
	return func(o *clientOptions) {
		o.billable = append(o.billable, paths...)
	}
}

// New creates a client for the given base URL and installs the response
// interceptor on its transport. Hooks are bound separately (BindHooks)
// because the session manager that implements them needs the client
// first.
func New(baseURL string, opts ...ClientOption) *Client {
	o := &clientOptions{
		log:     logger.Noop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		hc.Timeout = o.timeout
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		log:     o.log,
	}
	c.token.Store("")

	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = newInterceptor(base, c.currentHooks, o.billable, o.log)

	return c
}

// BindHooks wires the reaction sink (normally the session manager).
// Until it is called, status reactions are dropped.
func (c *Client) BindHooks(h Hooks) {
	c.hooks.Store(&hooksRef{h: h})
}

func (c *Client) currentHooks() Hooks {
	ref := c.hooks.Load()
	if ref == nil {
		return nil
	}
	return ref.h
}

// Transport exposes the intercepted round tripper so application
// requests can share the session reactions (auth failures, quota
// signals, billable accounting) with the client's own calls.
func (c *Client) Transport() http.RoundTripper {
	return c.http.Transport
}

// SetToken attaches the bearer token to all subsequent requests.
func (c *Client) SetToken(token string) {
	c.token.Store(token)
}

// ClearToken removes the bearer attachment.
func (c *Client) ClearToken() {
	c.token.Store("")
}

// Login exchanges credentials. An account the server explicitly reports
// as inactive yields LoginResponse.Inactive without error, whether the
// server answers with a payload flag or an error code.
func (c *Client) Login(ctx context.Context, identifier, secret string) (session.LoginResponse, error) {
	req := loginRequest{Identifier: identifier, Secret: secret}

	var payload loginPayload
	if err := c.do(ctx, http.MethodPost, EndpointLogin, req, &payload); err != nil {
		if statusErr, ok := asStatusError(err); ok && statusErr.Code == codeAccountInactive {
			return session.LoginResponse{Inactive: true}, nil
		}
		return session.LoginResponse{}, err
	}

	user := session.User{
		ID:              payload.User.ID,
		DisplayName:     payload.User.DisplayName,
		Email:           payload.User.Email,
		Roles:           payload.User.Roles,
		Active:          payload.User.Active == nil || *payload.User.Active,
		CanUseAPI:       payload.User.CanUseAPI,
		CanBatchProcess: payload.User.CanBatchProcess,
		Subscription:    payload.User.Subscription,
	}
	if payload.Subscription != nil {
		sub := *payload.Subscription
		user.Subscription = &sub
	}

	return session.LoginResponse{
		Token: payload.Token,
		User:  user,
		// Only an explicit active=false or the account_inactive error
		// code marks the account inactive; an omitted field does not.
		Inactive: payload.User.Active != nil && !*payload.User.Active,
		ExpUnix:  payload.Exp,
	}, nil
}

// Authorize confirms the current token and returns fresh identity data.
func (c *Client) Authorize(ctx context.Context) (session.AuthorizeResponse, error) {
	var payload authorizePayload
	if err := c.do(ctx, http.MethodGet, EndpointAuthorize, nil, &payload); err != nil {
		return session.AuthorizeResponse{}, err
	}

	return session.AuthorizeResponse{
		ID:              payload.ID,
		DisplayName:     payload.DisplayName,
		Email:           payload.Email,
		Roles:           payload.Roles,
		Active:          payload.Active,
		CanUseAPI:       payload.CanUseAPI,
		CanBatchProcess: payload.CanBatchProcess,
		Subscription:    payload.Subscription,
		ExpUnix:         payload.Exp,
	}, nil
}

// SubscriptionStatus fetches the current entitlement snapshot.
func (c *Client) SubscriptionStatus(ctx context.Context) (session.Subscription, error) {
	var sub session.Subscription
	if err := c.do(ctx, http.MethodGet, EndpointSubscription, nil, &sub); err != nil {
		return session.Subscription{}, err
	}
	return sub, nil
}

// Audit delivers an event to the audit sink. Callers treat it as
// best-effort; the method itself still reports failures.
func (c *Client) Audit(ctx context.Context, event session.AuditEvent) error {
	return c.do(ctx, http.MethodPost, EndpointAudit, event, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authapi: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("authapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, _ := c.token.Load().(string); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authapi: %s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.log.Debug("api exchange",
		logger.Component("authapi"),
		logger.Endpoint(path),
		logger.Status(resp.StatusCode),
		logger.Elapsed(start))

	if resp.StatusCode >= 400 {
		return newStatusError(path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authapi: decode %s response: %w", path, err)
	}
	return nil
}
