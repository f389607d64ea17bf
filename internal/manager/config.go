package manager

import (
	"time"

	"chatd/internal/engine"
	"chatd/internal/events"
	"chatd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxTokens     = 512
	defaultUnloadTimeout = 30 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Registry     []types.Model
	DefaultModel string
	// Loader opens model files. Required.
	Loader engine.Loader
	// MaxTokens is the per-session cursor budget; it is clamped to the
	// model's context window.
	MaxTokens int
	// UnloadTimeout bounds how long Unload waits for the running session.
	UnloadTimeout time.Duration
	Publisher     events.Publisher
}

// New constructs a Manager from Config. No model is loaded until
// EnsureModel or Switch is called.
func New(cfg Config) *Manager {
	m := &Manager{
		state:        StateUnloaded,
		registry:     append([]types.Model(nil), cfg.Registry...),
		defaultModel: cfg.DefaultModel,
		loader:       cfg.Loader,
		maxTokens:    cfg.MaxTokens,
		unloadWait:   cfg.UnloadTimeout,
		publisher:    events.OrNop(cfg.Publisher),
		startTime:    time.Now(),
	}
	if m.maxTokens <= 0 {
		m.maxTokens = defaultMaxTokens
	}
	if m.unloadWait <= 0 {
		m.unloadWait = defaultUnloadTimeout
	}
	return m
}
