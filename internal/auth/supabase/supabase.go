// Package supabase authenticates users against Supabase Auth (GoTrue).
package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"

	"voxafi/internal/auth"
)

type Provider struct {
	client *supabase.Client
}

func New(url, key string) (*Provider, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Register(_ context.Context, email, password string) (auth.Session, error) {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return auth.Session{}, err
	}
	resp, err := p.client.Auth.Signup(types.SignupRequest{
		Email:    auth.NormalizeEmail(email),
		Password: password,
	})
	if err != nil {
		if isStatus(err, 422) || strings.Contains(err.Error(), "already registered") {
			return auth.Session{}, auth.ErrEmailTaken
		}
		return auth.Session{}, fmt.Errorf("signup: %w", err)
	}
	if resp.Session.AccessToken == "" {
		return auth.Session{}, auth.ErrConfirmationPending
	}
	return toSession(resp.Session), nil
}

// Login uses the GoTrue client directly; the supabase.Client helper would
// swap the shared client's token to the signed-in user.
func (p *Provider) Login(_ context.Context, email, password string) (auth.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	resp, err := p.client.Auth.SignInWithEmailPassword(auth.NormalizeEmail(email), password)
	if err != nil {
		if isStatus(err, 400) {
			return auth.Session{}, auth.ErrInvalidCredentials
		}
		return auth.Session{}, fmt.Errorf("sign in: %w", err)
	}
	return toSession(resp.Session), nil
}

func (p *Provider) Logout(_ context.Context, accessToken string) error {
	if err := p.client.Auth.WithToken(accessToken).Logout(); err != nil {
		if isStatus(err, 401) || isStatus(err, 403) {
			return auth.ErrInvalidToken
		}
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (p *Provider) Verify(_ context.Context, accessToken string) (auth.Session, error) {
	if accessToken == "" {
		return auth.Session{}, auth.ErrInvalidToken
	}
	resp, err := p.client.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		if isStatus(err, 401) || isStatus(err, 403) {
			return auth.Session{}, auth.ErrInvalidToken
		}
		return auth.Session{}, fmt.Errorf("get user: %w", err)
	}
	return auth.Session{
		AccessToken: accessToken,
		User:        auth.User{ID: resp.User.ID.String(), Email: resp.User.Email},
	}, nil
}

func toSession(s types.Session) auth.Session {
	sess := auth.Session{
		AccessToken: s.AccessToken,
		User:        auth.User{ID: s.User.ID.String(), Email: s.User.Email},
	}
	if s.ExpiresAt > 0 {
		sess.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return sess
}

// isStatus matches the "response status code N" errors gotrue-go returns.
func isStatus(err error, code int) bool {
	return strings.Contains(err.Error(), fmt.Sprintf("response status code %d", code))
}
