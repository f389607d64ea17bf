package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatd/internal/chat"
	"chatd/internal/config"
	"chatd/internal/engine"
	"chatd/internal/transcript"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestResolve_FlagsOverFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatd.yaml")
	if err := os.WriteFile(path, []byte("addr: \":1\"\ntop_k: 10\nstore:\n  driver: sqlite\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	o := &rootOptions{configPath: path, corsOrigins: "http://a, http://b"}
	o.flags.TopK = 20
	o.flags.CORS.Enabled = true
	cfg, err := o.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":1" || cfg.TopK != 20 || cfg.MaxTokens != config.DefaultMaxTokens {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Store.Driver != "sqlite" || !strings.HasSuffix(cfg.Store.Path, "chatd.db") {
		t.Fatalf("store=%+v", cfg.Store)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.Origins) != 2 {
		t.Fatalf("cors=%+v", cfg.CORS)
	}

	bad := &rootOptions{}
	bad.flags.Store.Driver = "postgres"
	if _, err := bad.resolve(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestChatsCommands(t *testing.T) {
	dir := t.TempDir()
	st, err := transcript.NewFileStore(dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := st.Save("Chat", []chat.Message{chat.NewUserMessage("hi"), chat.NewAssistantMessage()}); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := runCLI(t, "--store-path", dir, "chats", "list")
	if err != nil || out != "Chat\t2\n" {
		t.Fatalf("list out=%q err=%v", out, err)
	}
	out, err = runCLI(t, "--store-path", dir, "chats", "dup", "Chat")
	if err != nil || strings.TrimSpace(out) != "Chat-copy" {
		t.Fatalf("dup out=%q err=%v", out, err)
	}
	if _, err := runCLI(t, "--store-path", dir, "chats", "delete", "Chat-copy"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := runCLI(t, "--store-path", dir, "chats", "delete", "Chat-copy"); !transcript.IsChatNotFound(err) {
		t.Fatalf("expected chat not found, got %v", err)
	}
	if _, err := runCLI(t, "--store-path", dir, "chats"); err == nil {
		t.Fatal("bare chats must ask for a subcommand")
	}
}

func TestModelsCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.Q4_K_M.gguf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCLI(t, "--models-dir", dir, "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "tiny.Q4_K_M.gguf") || !strings.Contains(out, "Q4_K_M") {
		t.Fatalf("out=%q", out)
	}
}

func TestModelsCheck(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.Q4_K_M.gguf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCLI(t, "--models-dir", dir, "--model", "tiny.Q4_K_M.gguf",
		"--store-path", t.TempDir(), "models", "--check")
	if !strings.Contains(out, `"model_found": true`) {
		t.Fatalf("out=%q", out)
	}
	if engine.LlamaBuilt() != (err == nil) {
		t.Fatalf("llama built=%v err=%v", engine.LlamaBuilt(), err)
	}

	_, err = runCLI(t, "--models-dir", dir, "--model", "absent.gguf",
		"--store-path", t.TempDir(), "models", "--check")
	if err == nil {
		t.Fatal("expected a failing check for an unknown model")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil || !strings.HasPrefix(out, "chatd dev") {
		t.Fatalf("out=%q err=%v", out, err)
	}
}
