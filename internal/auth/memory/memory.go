package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"voxafi/internal/auth"
)

type account struct {
	id   string
	hash []byte
}

// Provider keeps accounts and sessions in process memory. Passwords are
// stored as bcrypt hashes.
type Provider struct {
	mu       sync.Mutex
	accounts map[string]account // by normalized email
	sessions map[string]auth.Session
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

type Option func(*Provider)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func New(ttl time.Duration, opts ...Option) *Provider {
	p := &Provider{
		accounts: make(map[string]account),
		sessions: make(map[string]auth.Session),
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Register(_ context.Context, email, password string) (auth.Session, error) {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return auth.Session{}, err
	}
	key := auth.NormalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return auth.Session{}, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[key]; ok {
		return auth.Session{}, auth.ErrEmailTaken
	}
	acc := account{id: uuid.NewString(), hash: hash}
	p.accounts[key] = acc
	return p.issueLocked(auth.User{ID: acc.id, Email: key})
}

func (p *Provider) Login(_ context.Context, email, password string) (auth.Session, error) {
	key := auth.NormalizeEmail(email)
	p.mu.Lock()
	acc, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return auth.Session{}, auth.ErrInvalidCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueLocked(auth.User{ID: acc.id, Email: key})
}

func (p *Provider) Logout(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[accessToken]; !ok {
		return auth.ErrInvalidToken
	}
	delete(p.sessions, accessToken)
	return nil
}

func (p *Provider) Verify(_ context.Context, accessToken string) (auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[accessToken]
	if !ok {
		return auth.Session{}, auth.ErrInvalidToken
	}
	if sess.Expired(p.now()) {
		delete(p.sessions, accessToken)
		return auth.Session{}, auth.ErrInvalidToken
	}
	return sess, nil
}

// CleanExpired drops expired sessions and returns how many were removed.
func (p *Provider) CleanExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	removed := 0
	for tok, sess := range p.sessions {
		if sess.Expired(now) {
			delete(p.sessions, tok)
			removed++
		}
	}
	return removed
}

func (p *Provider) issueLocked(user auth.User) (auth.Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return auth.Session{}, fmt.Errorf("generate token: %w", err)
	}
	sess := auth.Session{
		AccessToken: hex.EncodeToString(buf),
		User:        user,
	}
	if p.ttl > 0 {
		sess.ExpiresAt = p.now().Add(p.ttl)
	}
	p.sessions[sess.AccessToken] = sess
	return sess, nil
}
