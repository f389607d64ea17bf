package manager

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"chatd/internal/common/fsutil"
	"chatd/internal/engine"
	"chatd/internal/events"
	"chatd/internal/generation"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

// resolve maps an id (registry ID/name, or a path to a .gguf file) to a
// model. Empty means the default model.
func (m *Manager) resolve(id string) (types.Model, error) {
	if id == "" {
		id = m.defaultModel
		if id == "" {
			return types.Model{}, ErrModelNotFound("(unspecified)")
		}
	}
	m.mu.RLock()
	mdl, ok := registry.Find(m.registry, id)
	m.mu.RUnlock()
	if ok {
		return mdl, nil
	}
	if strings.ContainsRune(id, filepath.Separator) || strings.HasSuffix(strings.ToLower(id), ".gguf") {
		p, err := fsutil.ExpandHome(id)
		if err != nil {
			return types.Model{}, err
		}
		if fsutil.PathExists(p) {
			return types.Model{ID: filepath.Base(p), Name: filepath.Base(p), Path: p}, nil
		}
	}
	return types.Model{}, ErrModelNotFound(id)
}

// EnsureModel makes id the loaded model, unloading the current one first.
// It is a no-op when id is already loaded. Loading blocks until the handle
// is open or ctx ends.
func (m *Manager) EnsureModel(ctx context.Context, id string) error {
	mdl, err := m.resolve(id)
	if err != nil {
		return err
	}
	if m.loader == nil {
		return engine.ErrDependencyUnavailable("no model loader configured")
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.RLock()
	same := m.state == StateReady && m.cur != nil && m.cur.Path == mdl.Path
	m.mu.RUnlock()
	if same {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	old := m.detach(StateLoading)
	m.closeRunner(old)
	m.publisher.Publish(events.Event{Name: "load_start", Subject: mdl.ID, Fields: map[string]any{"path": mdl.Path}})

	start := time.Now()
	h, err := m.load(ctx, mdl.Path)
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		zlog.Error().Err(err).Str("model", mdl.ID).Msg("model load failed")
		m.publisher.Publish(events.Event{Name: "load_error", Subject: mdl.ID, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	r := generation.NewRunner(h, m.maxTokens)
	m.mu.Lock()
	m.runner = r
	m.cur = &ModelInfo{ID: mdl.ID, Path: mdl.Path, LoadedAt: time.Now()}
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	m.loadsTotal.Add(1)
	zlog.Info().
		Str("model", mdl.ID).
		Int("context", h.ContextSize()).
		Int("max_tokens", r.MaxTokens()).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	m.publisher.Publish(events.Event{Name: "load_done", Subject: mdl.ID, Fields: map[string]any{"ms": time.Since(start).Milliseconds()}})
	return nil
}

// load runs the loader off the caller's goroutine so ctx can abandon a slow
// load; a handle that arrives after ctx ended is closed.
func (m *Manager) load(ctx context.Context, path string) (engine.Handle, error) {
	type result struct {
		h   engine.Handle
		err error
	}
	ch := make(chan result, 1)
	go func() {
		h, err := m.loader.Load(path)
		ch <- result{h: h, err: err}
	}()
	select {
	case r := <-ch:
		if r.err == nil && r.h == nil {
			return nil, errors.New("loader returned no handle")
		}
		return r.h, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && r.h != nil {
				_ = r.h.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// detach removes the current runner and moves to state next.
func (m *Manager) detach(next State) *generation.Runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.runner
	m.runner = nil
	m.cur = nil
	m.state = next
	m.err = ""
	return old
}

// closeRunner cancels the running session and waits (bounded by the unload
// timeout) for it to release the handle, then closes it. Past the timeout the
// runner closes the handle once the session finally returns.
func (m *Manager) closeRunner(r *generation.Runner) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.unloadWait)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			zlog.Warn().Dur("waited", m.unloadWait).Msg("session still running; model closes when it ends")
			return
		}
		zlog.Warn().Err(err).Msg("model close")
	}
}
