// Package identity issues and persists the anonymous voter token.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/arena/pkg/logger"
)

// Key is the fixed local storage key holding the voter token.
const Key = "arena_voter_id"

// KV is the persisted key/value store holding the token.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Provider returns a stable voter token, creating it on first use.
// Tokens are never rotated automatically.
type Provider struct {
	mu     sync.Mutex
	kv     KV
	id     string
	newID  func() string
	logger logger.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithGenerator overrides token generation.
func WithGenerator(gen func() string) Option {
	return func(p *Provider) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// New creates a Provider persisting to kv.
func New(kv KV, opts ...Option) *Provider {
	p := &Provider{
		kv:     kv,
		newID:  uuid.NewString,
		logger: logger.Get().Named("identity"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns the persisted token, creating and storing a new one when
// none exists.
func (p *Provider) Acquire(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}
	v, ok, err := p.kv.Get(ctx, Key)
	if err != nil {
		return "", fmt.Errorf("read voter id: %w", err)
	}
	if ok && strings.TrimSpace(v) != "" {
		p.id = v
		return p.id, nil
	}
	return p.issueLocked(ctx)
}

// Current returns the token loaded by Acquire, or "" before that.
func (p *Provider) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Reset discards the current token and issues a new one.
func (p *Provider) Reset(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.kv.Delete(ctx, Key); err != nil {
		return "", fmt.Errorf("clear voter id: %w", err)
	}
	old := p.id
	p.id = ""
	id, err := p.issueLocked(ctx)
	if err != nil {
		return "", err
	}
	p.logger.Info(ctx, "voter id reset", logger.String("previous", old), logger.String("current", id))
	return id, nil
}

func (p *Provider) issueLocked(ctx context.Context) (string, error) {
	id := p.newID()
	if err := p.kv.Set(ctx, Key, id, 0); err != nil {
		return "", fmt.Errorf("persist voter id: %w", err)
	}
	p.id = id
	p.logger.Debug(ctx, "voter id issued", logger.String("voter_id", id))
	return id, nil
}
