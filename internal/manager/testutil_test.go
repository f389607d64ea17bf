package manager

import (
	"context"
	"testing"
	"time"

	"chatd/internal/engine"
	"chatd/internal/engine/enginetest"
	"chatd/internal/events"
	"chatd/pkg/types"
)

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func newTestManager(t *testing.T, h *enginetest.Handle) (*Manager, *enginetest.Loader, *events.MemoryPublisher) {
	t.Helper()
	ld := &enginetest.Loader{Handle: h}
	pub := events.NewMemoryPublisher()
	m := New(Config{
		Registry:      []types.Model{{ID: "m1.gguf", Name: "m1", Path: "/models/m1.gguf"}, {ID: "m2.gguf", Name: "m2", Path: "/models/m2.gguf"}},
		DefaultModel:  "m1.gguf",
		Loader:        ld,
		UnloadTimeout: time.Second,
		Publisher:     pub,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, ld, pub
}

// blockingLoader blocks until release is closed.
type blockingLoader struct {
	release chan struct{}
	h       *enginetest.Handle
}

func (b blockingLoader) Load(string) (engine.Handle, error) {
	<-b.release
	return b.h, nil
}
