package manager

import (
	"context"

	"chatd/internal/engine"
	"chatd/internal/generation"
)

// Start begins a generation session on the loaded model. It returns
// engine.ErrModelNotLoaded when no model is ready.
func (m *Manager) Start(ctx context.Context, req generation.Request) (*generation.Session, error) {
	m.mu.RLock()
	r := m.runner
	m.mu.RUnlock()
	if r == nil {
		return nil, engine.ErrModelNotLoaded
	}
	return r.Start(ctx, req)
}

// Busy reports whether a session currently holds the model.
func (m *Manager) Busy() bool {
	m.mu.RLock()
	r := m.runner
	m.mu.RUnlock()
	return r != nil && r.Busy()
}
