package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatd/internal/chat"
	"chatd/internal/config"
	"chatd/internal/engine/enginetest"
	"chatd/internal/events"
	"chatd/internal/manager"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testConfig(t *testing.T, driver string) config.Config {
	t.Helper()
	models := t.TempDir()
	if err := os.WriteFile(filepath.Join(models, "tiny.Q4_K_M.gguf"), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	store := filepath.Join(t.TempDir(), "chats")
	if driver == "sqlite" {
		store += ".db"
	}
	return config.Config{
		ModelsDir:    models,
		DefaultModel: "tiny.Q4_K_M.gguf",
		Store:        config.StoreConfig{Driver: driver, Path: store},
	}
}

func TestNew_TurnRoundTrip(t *testing.T) {
	for _, driver := range []string{"json", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ld := &enginetest.Loader{Handle: enginetest.Script("world", "!")}
			pub := events.NewMemoryPublisher()
			a, err := New(testConfig(t, driver), Options{Loader: ld, Publisher: pub})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer a.Close()
			if a.Models.Ready() {
				t.Fatal("model loaded before LoadDefault")
			}
			if err := a.LoadDefault(testCtx(t)); err != nil {
				t.Fatalf("load: %v", err)
			}
			if paths := ld.Paths(); len(paths) != 1 || filepath.Base(paths[0]) != "tiny.Q4_K_M.gguf" {
				t.Fatalf("loaded paths=%v", paths)
			}

			turn, err := a.Chats.Send("hello")
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			reply, err := turn.Wait()
			if err != nil || reply.Text != "world!" {
				t.Fatalf("reply=%+v err=%v", reply, err)
			}
			msgs, ok, err := a.Store.Load(chat.DefaultChat)
			if err != nil || !ok || len(msgs) != 2 {
				t.Fatalf("stored=%v ok=%v err=%v", msgs, ok, err)
			}
			if names := pub.Names(); len(names) == 0 || names[0] != "load_start" {
				t.Fatalf("events=%v", names)
			}
		})
	}
}

func TestNew_MissingModelsDirStillStarts(t *testing.T) {
	cfg := testConfig(t, "json")
	cfg.ModelsDir = filepath.Join(t.TempDir(), "absent")
	a, err := New(cfg, Options{Loader: &enginetest.Loader{Handle: enginetest.Script()}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if len(a.Models.ListModels()) != 0 {
		t.Fatal("expected an empty registry")
	}
	if err := a.LoadDefault(testCtx(t)); !manager.IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestRescan(t *testing.T) {
	cfg := testConfig(t, "json")
	a, err := New(cfg, Options{Loader: &enginetest.Loader{Handle: enginetest.Script()}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if err := os.WriteFile(filepath.Join(cfg.ModelsDir, "other.Q8_0.gguf"), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	n, err := a.Rescan()
	if err != nil || n != 2 || len(a.Models.ListModels()) != 2 {
		t.Fatalf("rescan n=%d err=%v models=%v", n, err, a.Models.ListModels())
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "postgres")
	if _, err := New(cfg, Options{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestParams(t *testing.T) {
	p := Params(config.Config{Temperature: 0.2, TopK: 5, Seed: 9})
	if p.Temperature != 0.2 || p.TopK != 5 || p.Seed != 9 || p.TopP != 0.9 {
		t.Fatalf("params=%+v", p)
	}
}
