// Package auth is the boundary to the external authentication collaborator.
// The core only ever asks who is signed in, borrows a bearer credential,
// and requests a silent refresh; the actual OAuth/token-exchange flow is
// someone else's problem.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"readlater/internal/domain"
)

// ErrNoCredentials is returned when no identity is configured or signed in.
var ErrNoCredentials = errors.New("no credentials available")

// Provider exposes the authenticated identity and its credential. A nil
// Provider resolved at startup means sync is unconfigured; callers check
// once instead of re-probing on every operation.
type Provider interface {
	// IsAuthenticated reports whether an identity is currently signed in.
	IsAuthenticated() bool
	// CurrentIdentity returns the signed-in identity, or nil.
	CurrentIdentity() *domain.Identity
	// OnAuthChange registers a callback fired on sign-in and sign-out.
	OnAuthChange(fn func(*domain.Identity))
	// Token returns the current bearer credential.
	Token(ctx context.Context) (string, error)
	// RefreshToken silently exchanges the credential for a fresh one.
	// Called at most once per failed write before the session degrades.
	RefreshToken(ctx context.Context) error
}

// Credentials is an opaque bearer token plus its expiry.
type Credentials struct {
	Token     string
	ExpiresAt time.Time
}

// RefreshFunc exchanges the old credential for a new one.
type RefreshFunc func(ctx context.Context, old Credentials) (Credentials, error)

// StaticProvider holds a configured identity and credential and delegates
// refresh to an injected exchange function. It is the wiring used when
// credentials come from configuration rather than an interactive flow.
type StaticProvider struct {
	mu        sync.Mutex
	identity  *domain.Identity
	creds     Credentials
	refresh   RefreshFunc
	listeners []func(*domain.Identity)
}

// NewStaticProvider builds a provider for a pre-established identity.
func NewStaticProvider(identity domain.Identity, creds Credentials, refresh RefreshFunc) *StaticProvider {
	return &StaticProvider{
		identity: &identity,
		creds:    creds,
		refresh:  refresh,
	}
}

// IsAuthenticated implements Provider.
func (p *StaticProvider) IsAuthenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity != nil
}

// CurrentIdentity implements Provider.
func (p *StaticProvider) CurrentIdentity() *domain.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// OnAuthChange implements Provider.
func (p *StaticProvider) OnAuthChange(fn func(*domain.Identity)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Token implements Provider.
func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity == nil || p.creds.Token == "" {
		return "", ErrNoCredentials
	}
	return p.creds.Token, nil
}

// RefreshToken implements Provider.
func (p *StaticProvider) RefreshToken(ctx context.Context) error {
	p.mu.Lock()
	refresh := p.refresh
	old := p.creds
	p.mu.Unlock()

	if refresh == nil {
		return ErrNoCredentials
	}

	fresh, err := refresh(ctx, old)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.creds = fresh
	p.mu.Unlock()
	return nil
}

// SignOut drops the identity and notifies listeners.
func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	p.identity = nil
	p.creds = Credentials{}
	listeners := append([]func(*domain.Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
}
