package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatd/internal/app"
	"chatd/internal/chat"
	"chatd/internal/config"
	"chatd/internal/events"
	"chatd/internal/generation"
	"chatd/internal/httpapi"
	"chatd/internal/manager"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath  string
	logFormat   string
	corsOrigins string
	// flags holds values given on the command line or through CHATD_*;
	// zero fields fall through to the config file and then to defaults.
	flags config.Config

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Local chat over a GGUF model with persistent transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve()
			if err != nil {
				return err
			}
			o.cfg = cfg
			o.log = newLogger(cfg.LogLevel, o.logFormat, cmd.ErrOrStderr())
			installLogger(o.log)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", envStr("CHATD_CONFIG", ""), "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&o.flags.LogLevel, "log-level", envStr("CHATD_LOG_LEVEL", ""), "Log level: debug|info|warn|error")
	pf.StringVar(&o.logFormat, "log-format", envStr("CHATD_LOG_FORMAT", "console"), "Log format: console|json")
	pf.StringVar(&o.flags.ModelsDir, "models-dir", envStr("CHATD_MODELS_DIR", ""), "Directory scanned for *.gguf models (default ~/models/llm)")
	pf.StringVar(&o.flags.DefaultModel, "model", envStr("CHATD_MODEL", ""), "Model to load: registry ID, name, or a .gguf path")
	pf.StringVar(&o.flags.Store.Driver, "store", envStr("CHATD_STORE", ""), "Transcript store: json|sqlite")
	pf.StringVar(&o.flags.Store.Path, "store-path", envStr("CHATD_STORE_PATH", ""), "Transcript directory (json) or database file (sqlite)")
	pf.StringVar(&o.flags.DefaultChat, "chat", envStr("CHATD_CHAT", ""), "Chat opened at startup (default Chat)")
	pf.IntVar(&o.flags.ContextSize, "ctx-size", envInt("CHATD_CTX_SIZE", 0), "Model context window in tokens (default 2048)")
	pf.IntVar(&o.flags.Threads, "threads", envInt("CHATD_THREADS", 0), "Inference threads (default 4)")
	pf.IntVar(&o.flags.GPULayers, "gpu-layers", envInt("CHATD_GPU_LAYERS", 0), "Layers offloaded to the GPU")
	pf.IntVar(&o.flags.MaxTokens, "max-tokens", envInt("CHATD_MAX_TOKENS", 0), "Token budget per turn, prompt included (default 512)")
	pf.Float32Var(&o.flags.Temperature, "temperature", envFloat32("CHATD_TEMPERATURE", 0), "Sampling temperature (default 0.7)")
	pf.IntVar(&o.flags.TopK, "top-k", envInt("CHATD_TOP_K", 0), "Top-k sampling (default 40)")
	pf.Float32Var(&o.flags.TopP, "top-p", envFloat32("CHATD_TOP_P", 0), "Top-p sampling (default 0.9)")
	pf.IntVar(&o.flags.Seed, "seed", envInt("CHATD_SEED", 0), "Sampling seed (0 picks one)")
	pf.IntVar(&o.flags.ContextTurns, "context-turns", envInt("CHATD_CONTEXT_TURNS", 0), "Exchanges of history kept in the prompt (default 3)")
	pf.StringVar(&o.flags.SystemPrompt, "system-prompt", envStr("CHATD_SYSTEM_PROMPT", ""), "Preamble placed before the chat history")

	root.AddCommand(
		newServeCmd(o),
		newChatCmd(o),
		newChatsCmd(o),
		newModelsCmd(o),
		newVersionCmd(),
	)
	return root
}

// resolve layers flags over the config file over defaults.
func (o *rootOptions) resolve() (config.Config, error) {
	var base config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		base = loaded
	}
	over := o.flags
	if o.corsOrigins != "" {
		over.CORS.Origins = splitCSV(o.corsOrigins)
	}
	cfg := base.Overlay(over).WithDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *rootOptions) openApp() (*app.App, error) {
	return app.New(o.cfg, app.Options{
		Publisher: events.LogPublisher{Logger: o.log},
		Logger:    o.log,
	})
}

func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func installLogger(l zerolog.Logger) {
	httpapi.SetLogger(l)
	httpapi.SetDefaultLogLevel(levelName(l.GetLevel()))
	manager.SetLogger(l)
	chat.SetLogger(l)
	generation.SetLogger(l)
}

// levelName maps a zerolog level onto the HTTP layer's request log levels.
func levelName(l zerolog.Level) string {
	switch {
	case l <= zerolog.DebugLevel:
		return "debug"
	case l == zerolog.InfoLevel:
		return "info"
	default:
		return "error"
	}
}
