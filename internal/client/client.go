// Package client is a typed Go client for the voxafi JSON API. The signed-in
// session lives in an auth.State so callers can react to sign-in and
// sign-out.
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
	"strconv"
	"strings"
	"time"

	"voxafi/internal/auth"
	"voxafi/internal/core"
	"voxafi/internal/services"
)

// ErrSignedOut is returned by calls that need a session when none is set.
var ErrSignedOut = errors.New("not signed in")

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is match auth.ErrInvalidToken on 401 replies.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return auth.ErrInvalidToken
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
	state   *auth.State
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		state:   auth.NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State exposes the session holder.
func (c *Client) State() *auth.State { return c.state }

// Close stops session subscriptions.
func (c *Client) Close() { c.state.Close() }

type credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

// Register creates an account and signs in. A provider that requires email
// confirmation returns auth.ErrConfirmationPending and leaves the state
// signed out.
func (c *Client) Register(ctx context.Context, email, password, confirm string) error {
	if err := auth.ValidateRegistration(email, password, confirm); err != nil {
		return err
	}
	var sess auth.Session
	status, err := c.do(ctx, http.MethodPost, "/api/auth/register", credentials{email, password, confirm}, &sess)
	if err != nil {
		return err
	}
	if status == http.StatusAccepted {
		return auth.ErrConfirmationPending
	}
	c.state.Set(sess)
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	var sess auth.Session
	if _, err := c.do(ctx, http.MethodPost, "/api/auth/login", credentials{Email: email, Password: password}, &sess); err != nil {
		return err
	}
	c.state.Set(sess)
	return nil
}

// Logout signs out on the server and clears the local session either way.
func (c *Client) Logout(ctx context.Context) error {
	defer c.state.Clear()
	if c.state.Current() == nil {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	return err
}

func (c *Client) AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	var tx core.Transaction
	_, err := c.do(ctx, http.MethodPost, "/api/transactions", in, &tx)
	return tx, err
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/transactions/"+url.PathEscape(id), nil, nil)
	return err
}

// TransactionsByMonth lists one zero-based month.
func (c *Client) TransactionsByMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	q := url.Values{"year": {strconv.Itoa(year)}, "month": {strconv.Itoa(month)}}
	var txs []core.Transaction
	_, err := c.do(ctx, http.MethodGet, "/api/transactions?"+q.Encode(), nil, &txs)
	return txs, err
}

func (c *Client) MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	q := url.Values{"year": {strconv.Itoa(year)}, "month": {strconv.Itoa(month)}, "detail": {"full"}}
	var ov core.MonthOverview
	_, err := c.do(ctx, http.MethodGet, "/api/summary/month?"+q.Encode(), nil, &ov)
	return ov, err
}

func (c *Client) Dashboard(ctx context.Context) (services.Dashboard, error) {
	var d services.Dashboard
	_, err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &d)
	return d, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !strings.HasPrefix(path, "/api/auth/register") && !strings.HasPrefix(path, "/api/auth/login") {
		sess := c.state.Current()
		if sess == nil {
			return 0, ErrSignedOut
		}
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		if resp.StatusCode == http.StatusUnauthorized && c.state.Current() != nil {
			c.state.Clear()
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
