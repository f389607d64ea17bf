package manager

import (
	"chatd/internal/events"
)

// Unload releases the loaded model. The running session, if any, is given up
// to the unload timeout to finish before the handle is closed.
func (m *Manager) Unload() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.mu.RLock()
	var id string
	if m.cur != nil {
		id = m.cur.ID
	}
	m.mu.RUnlock()
	old := m.detach(StateUnloaded)
	if old == nil {
		return nil
	}
	m.publisher.Publish(events.Event{Name: "unload_start", Subject: id})
	m.closeRunner(old)
	m.publisher.Publish(events.Event{Name: "unload_done", Subject: id})
	return nil
}

// Close unloads the model.
func (m *Manager) Close() error { return m.Unload() }
