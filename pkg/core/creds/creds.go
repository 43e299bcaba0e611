// Package creds gates conversation features on the presence of service API
// keys and persists them in a simple key-value store.
package creds

import (
	"strings"
	"sync"

	"github.com/parley-ai/parley/pkg/core"
)

// Store is the persistent key-value store backing the gate. Keys are service
// names; values are secrets.
type Store interface {
	// Get returns the stored value and whether it was present.
	Get(name string) (string, bool)

	// Set persists a value.
	Set(name, value string) error
}

// Service-name keys under which the secrets are stored.
const (
	KeyCompletion = "openai_api_key"
	KeySynthesis  = "elevenlabs_api_key"
)

// Credentials holds the secrets required before a conversation turn may start.
type Credentials struct {
	CompletionKey string
	SynthesisKey  string
}

// Gate exposes whether required API credentials are present and blocks
// dependent operations until they are. Presence is binary and synchronous.
type Gate struct {
	store Store
}

// NewGate creates a gate over the given store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Present reports whether both service keys are available.
func (g *Gate) Present() bool {
	_, err := g.Get()
	return err == nil
}

// Get returns the credentials, or a missing-credentials error if either key
// is absent.
func (g *Gate) Get() (Credentials, error) {
	completion, ok := g.store.Get(KeyCompletion)
	if !ok || strings.TrimSpace(completion) == "" {
		return Credentials{}, core.NewMissingCredentialsError("completion service key is not set")
	}
	synthesis, ok := g.store.Get(KeySynthesis)
	if !ok || strings.TrimSpace(synthesis) == "" {
		return Credentials{}, core.NewMissingCredentialsError("synthesis service key is not set")
	}
	return Credentials{CompletionKey: completion, SynthesisKey: synthesis}, nil
}

// Set persists both keys.
func (g *Gate) Set(c Credentials) error {
	if err := g.store.Set(KeyCompletion, c.CompletionKey); err != nil {
		return err
	}
	return g.store.Set(KeySynthesis, c.SynthesisKey)
}

// MapStore is an in-memory Store for tests and ephemeral sessions.
type MapStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMapStore creates an empty in-memory store.
func NewMapStore() *MapStore {
	return &MapStore{values: make(map[string]string)}
}

// Get returns the stored value and whether it was present.
func (s *MapStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores a value.
func (s *MapStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}
