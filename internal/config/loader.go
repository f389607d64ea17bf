package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects the transcript backend.
type StoreConfig struct {
	// Driver is "json" (a directory of <chat>.json files) or "sqlite".
	Driver string `json:"driver" yaml:"driver" toml:"driver"`
	Path   string `json:"path" yaml:"path" toml:"path"`
}

// CORSConfig enables cross-origin access to the HTTP API.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath    string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers   int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`

	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP        float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	Seed        int     `json:"seed" yaml:"seed" toml:"seed"`

	ContextTurns int    `json:"context_turns" yaml:"context_turns" toml:"context_turns"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`

	Store       StoreConfig `json:"store" yaml:"store" toml:"store"`
	DefaultChat string      `json:"default_chat" yaml:"default_chat" toml:"default_chat"`

	CORS         CORSConfig `json:"cors" yaml:"cors" toml:"cors"`
	LogLevel     string     `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes int64      `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// Defaults.
const (
	DefaultAddr         = ":8080"
	DefaultModelsDir    = "~/models/llm"
	DefaultContextSize  = 2048
	DefaultThreads      = 4
	DefaultMaxTokens    = 512
	DefaultTemperature  = 0.7
	DefaultTopK         = 40
	DefaultTopP         = 0.9
	DefaultContextTurns = 3
	DefaultStoreDriver  = "json"
	DefaultStorePath    = "~/.chatd/chats"
	DefaultChat         = "Chat"
	DefaultLogLevel     = "info"
	DefaultMaxBodyBytes = 1 << 20
)

// Default returns a fully populated configuration.
func Default() Config { return Config{}.WithDefaults() }

// WithDefaults fills every unspecified field.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.ContextSize <= 0 {
		c.ContextSize = DefaultContextSize
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	if c.ContextTurns <= 0 {
		c.ContextTurns = DefaultContextTurns
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Path == "" {
		if strings.EqualFold(c.Store.Driver, "sqlite") {
			c.Store.Path = "~/.chatd/chatd.db"
		} else {
			c.Store.Path = DefaultStorePath
		}
	}
	if c.DefaultChat == "" {
		c.DefaultChat = DefaultChat
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Overlay returns c with every specified (non-zero) field of o applied.
// CORS is taken from o when o enables it.
func (c Config) Overlay(o Config) Config {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setF32 := func(dst *float32, v float32) {
		if v != 0 {
			*dst = v
		}
	}
	setStr(&c.Addr, o.Addr)
	setStr(&c.ModelPath, o.ModelPath)
	setStr(&c.ModelsDir, o.ModelsDir)
	setStr(&c.DefaultModel, o.DefaultModel)
	setInt(&c.ContextSize, o.ContextSize)
	setInt(&c.Threads, o.Threads)
	setInt(&c.GPULayers, o.GPULayers)
	setInt(&c.MaxTokens, o.MaxTokens)
	setF32(&c.Temperature, o.Temperature)
	setInt(&c.TopK, o.TopK)
	setF32(&c.TopP, o.TopP)
	setInt(&c.Seed, o.Seed)
	setInt(&c.ContextTurns, o.ContextTurns)
	setStr(&c.SystemPrompt, o.SystemPrompt)
	setStr(&c.Store.Driver, o.Store.Driver)
	setStr(&c.Store.Path, o.Store.Path)
	setStr(&c.DefaultChat, o.DefaultChat)
	setStr(&c.LogLevel, o.LogLevel)
	if o.MaxBodyBytes != 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	if o.CORS.Enabled {
		c.CORS.Enabled = true
		if len(o.CORS.Origins) > 0 {
			c.CORS.Origins = append([]string(nil), o.CORS.Origins...)
		}
	}
	return c
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("store.driver must be json or sqlite, got %q", c.Store.Driver)
	}
	if c.TopP > 1 {
		return fmt.Errorf("top_p must be in (0,1], got %v", c.TopP)
	}
	if c.ContextSize > 0 && c.MaxTokens > c.ContextSize {
		return fmt.Errorf("max_tokens (%d) exceeds context_size (%d)", c.MaxTokens, c.ContextSize)
	}
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
