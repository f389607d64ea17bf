package manager

import (
	"time"

	"chatd/internal/common/fsutil"
	"chatd/internal/engine"
	"chatd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err}
	if m.cur != nil {
		c := *m.cur
		s.CurrentModel = &c
	}
	return s
}

// Status builds the model part of the /status response.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		State:          string(m.state),
		Error:          m.err,
		LlamaBuilt:     engine.LlamaBuilt(),
		MaxTokens:      m.maxTokens,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		LoadsTotal:     m.loadsTotal.Load(),
	}
	if m.cur != nil {
		resp.Model = &types.ModelInfo{ID: m.cur.ID, Path: m.cur.Path}
	}
	if m.runner != nil {
		resp.MaxTokens = m.runner.MaxTokens()
	}
	return resp
}

// SanityReport describes runtime checks for the native dependency and the
// default model.
type SanityReport struct {
	LlamaBuilt   bool   `json:"llama_built"`
	DefaultModel string `json:"default_model,omitempty"`
	ModelPath    string `json:"model_path,omitempty"`
	ModelFound   bool   `json:"model_found"`
	Error        string `json:"error,omitempty"`
}

// SanityCheck validates that the runtime is compiled in and the default model
// resolves to a file. It does not mutate state.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{LlamaBuilt: engine.LlamaBuilt(), DefaultModel: m.defaultModel}
	mdl, err := m.resolve("")
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.ModelPath = mdl.Path
	r.ModelFound = fsutil.PathExists(mdl.Path)
	if !r.ModelFound {
		r.Error = "model file missing"
	} else if !r.LlamaBuilt {
		r.Error = "built without the llama tag"
	}
	return r
}
