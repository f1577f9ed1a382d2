// Package registry maps short block link tokens to remote task ids.
//
// Every mutation goes through Mint, which serializes counter increments and
// makes each new mapping durable before it becomes resolvable.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/tasklink/internal/apperr"
)

// Snapshot is the persisted state of the registry.
type Snapshot struct {
	Lookup  map[string]string
	Counter int
}

// Persister loads and stores registry state.
type Persister interface {
	// LoadRegistry returns the persisted mapping and counter.
	LoadRegistry(ctx context.Context) (Snapshot, error)
	// RecordMint durably stores one new mapping together with the counter
	// value that produced it.
	RecordMint(ctx context.Context, token, remoteID string, counter int) error
}

// Registry is safe for concurrent use.
type Registry struct {
	persister Persister
	prefix    func() string

	mu      sync.RWMutex
	lookup  map[string]string
	counter int
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrefix replaces the random token prefix generator.
func WithPrefix(fn func() string) Option {
	return func(r *Registry) {
		r.prefix = fn
	}
}

// Open loads the registry from p.
func Open(ctx context.Context, p Persister, opts ...Option) (*Registry, error) {
	snap, err := p.LoadRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load: %w", err)
	}
	r := &Registry{
		persister: p,
		prefix:    randomPrefix,
		lookup:    make(map[string]string, len(snap.Lookup)),
		counter:   snap.Counter,
	}
	for k, v := range snap.Lookup {
		r.lookup[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Mint creates a new token for remoteID and persists it before returning.
// When persistence fails the token is discarded, but the counter value it
// consumed is not handed out again by this process.
func (r *Registry) Mint(ctx context.Context, remoteID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	token := fmt.Sprintf("%s%05d", r.prefix(), r.counter)
	if _, taken := r.lookup[token]; taken {
		return "", fmt.Errorf("registry: token %s: %w", token, apperr.ErrAlreadyExists)
	}

	if err := r.persister.RecordMint(ctx, token, remoteID, r.counter); err != nil {
		return "", fmt.Errorf("registry: persist %s: %w", token, err)
	}
	r.lookup[token] = remoteID
	return token, nil
}

// Resolve returns the remote id for token.
func (r *Registry) Resolve(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.lookup[token]
	return id, ok
}

// Counter returns the number of tokens minted so far.
func (r *Registry) Counter() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counter
}

// Len returns the number of known tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lookup)
}

// randomPrefix returns four lowercase hex characters.
func randomPrefix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}
