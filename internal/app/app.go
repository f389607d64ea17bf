// Package app assembles a running chat service from a Config: model
// registry and manager, transcript store, prompt assembly and the chat
// orchestrator.
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"chatd/internal/chat"
	"chatd/internal/config"
	"chatd/internal/engine"
	"chatd/internal/events"
	"chatd/internal/generation"
	"chatd/internal/httpapi"
	"chatd/internal/manager"
	"chatd/internal/prompt"
	"chatd/internal/registry"
	"chatd/internal/transcript"
)

// App owns the long-lived components. Close releases them in reverse order.
type App struct {
	Config config.Config
	Models *manager.Manager
	Chats  *chat.Orchestrator
	Store  transcript.Store
}

// Options carries the collaborators that differ between production and tests.
type Options struct {
	// Loader opens model files; nil uses the llama loader built from Config.
	Loader    engine.Loader
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// New validates cfg, scans the models directory and opens the transcript
// store. No model is loaded; call LoadDefault or Models.Switch.
func New(cfg config.Config, opts Options) (*App, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger

	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("model scan failed; registry empty")
		reg = nil
	}
	defaultModel := cfg.DefaultModel
	if cfg.ModelPath != "" {
		defaultModel = cfg.ModelPath
	}
	loader := opts.Loader
	if loader == nil {
		loader = engine.NewLlamaLoader(engine.Options{
			ContextSize: cfg.ContextSize,
			Threads:     cfg.Threads,
			GPULayers:   cfg.GPULayers,
		})
	}
	pub := events.OrNop(opts.Publisher)

	models := manager.New(manager.Config{
		Registry:     reg,
		DefaultModel: defaultModel,
		Loader:       loader,
		MaxTokens:    cfg.MaxTokens,
		Publisher:    pub,
	})

	store, err := transcript.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	stop, holdback := prompt.StopSequences()
	chats, err := chat.New(chat.Config{
		Store:     store,
		Prompt:    prompt.New(cfg.ContextTurns, cfg.SystemPrompt),
		Generator: models,
		Chat:      cfg.DefaultChat,
		Params:    Params(cfg),
		Stop:      stop,
		Holdback:  holdback,
		MaxTokens: cfg.MaxTokens,
		Publisher: pub,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info().
		Int("models", len(reg)).
		Str("default_model", defaultModel).
		Str("store", cfg.Store.Driver).
		Str("chat", chats.Name()).
		Msg("chatd ready")
	return &App{Config: cfg, Models: models, Chats: chats, Store: store}, nil
}

// Params maps the sampling section of cfg.
func Params(cfg config.Config) generation.Params {
	p := generation.DefaultParams()
	if cfg.Temperature > 0 {
		p.Temperature = cfg.Temperature
	}
	if cfg.TopK > 0 {
		p.TopK = cfg.TopK
	}
	if cfg.TopP > 0 {
		p.TopP = cfg.TopP
	}
	p.Seed = cfg.Seed
	return p
}

// LoadDefault blocks until the default model is loaded.
func (a *App) LoadDefault(ctx context.Context) error {
	return a.Models.EnsureModel(ctx, "")
}

// Rescan rereads the models directory into the registry. The loaded model
// is untouched.
func (a *App) Rescan() (int, error) {
	reg, err := registry.LoadDir(a.Config.ModelsDir)
	if err != nil {
		return 0, err
	}
	a.Models.SetRegistry(reg)
	return len(reg), nil
}

// Handler returns the HTTP API over the app's components.
func (a *App) Handler() http.Handler {
	httpapi.SetMaxBodyBytes(a.Config.MaxBodyBytes)
	httpapi.SetCORSOptions(a.Config.CORS.Enabled, a.Config.CORS.Origins, nil, nil)
	return httpapi.NewMux(a.Models, a.Chats)
}

// Close cancels the running turn, unloads the model and closes the store.
func (a *App) Close() error {
	return errors.Join(a.Chats.Close(), a.Models.Close(), a.Store.Close())
}
