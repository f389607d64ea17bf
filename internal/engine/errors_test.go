package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorHelpers(t *testing.T) {
	nf := fmt.Errorf("load: %w", ErrModelNotFound("/m.gguf"))
	if !IsModelNotFound(nf) {
		t.Fatalf("expected wrapped not-found to match")
	}
	if IsModelCorrupted(nf) {
		t.Fatalf("not-found must not look corrupted")
	}
	cause := errors.New("bad magic")
	bad := ErrModelCorrupted("/m.gguf", cause)
	if !IsModelCorrupted(bad) || !errors.Is(bad, cause) {
		t.Fatalf("expected corrupted error to wrap its cause: %v", bad)
	}
	if !IsDependencyUnavailable(ErrDependencyUnavailable("x")) {
		t.Fatalf("expected dependency unavailable")
	}
}

func TestStubLoaderWithoutLlamaTag(t *testing.T) {
	if LlamaBuilt() {
		t.Skip("llama runtime compiled in")
	}
	_, err := NewLlamaLoader(Options{}).Load("/does/not/matter.gguf")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.ContextSize != DefaultContextSize || o.Threads != DefaultThreads {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	o = Options{ContextSize: 512, Threads: 2}.withDefaults()
	if o.ContextSize != 512 || o.Threads != 2 {
		t.Fatalf("explicit values overridden: %+v", o)
	}
}
