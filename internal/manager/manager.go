package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"chatd/internal/engine"
	"chatd/internal/events"
	"chatd/internal/generation"
	"chatd/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	runner       *generation.Runner
	err          string
	registry     []types.Model
	defaultModel string

	// loadMu serializes loads so two switches never race on the handle.
	loadMu sync.Mutex

	loader     engine.Loader
	maxTokens  int
	unloadWait time.Duration
	publisher  events.Publisher

	startTime  time.Time
	loadsTotal atomic.Uint64
	opSeq      atomic.Uint64
}

// Ready reports whether a model is loaded and can serve sessions.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.runner != nil
}

// ListModels returns a copy of the registry.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// SetRegistry replaces the registry, e.g. after rescanning the models dir.
func (m *Manager) SetRegistry(reg []types.Model) {
	m.mu.Lock()
	m.registry = append([]types.Model(nil), reg...)
	m.mu.Unlock()
}

// DefaultModel returns the configured default model id.
func (m *Manager) DefaultModel() string { return m.defaultModel }
