package generation

import (
	"context"
	"sync"

	"chatd/internal/engine"
)

// Runner owns an engine.Handle and admits at most one Session at a time. The
// slot is released only after the session has reset the handle, so a new
// session never observes cache state left by the previous one.
type Runner struct {
	handle    engine.Handle
	maxTokens int

	// slot has capacity 1: the single in-flight generation.
	slot chan struct{}

	mu     sync.Mutex
	closed bool
	active *Session
}

// NewRunner wraps h. maxTokens bounds the cache cursor of each session; zero
// or a value beyond the context window is clamped to the context window.
func NewRunner(h engine.Handle, maxTokens int) *Runner {
	ctxSize := h.ContextSize()
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if ctxSize > 0 && maxTokens > ctxSize {
		maxTokens = ctxSize
	}
	return &Runner{handle: h, maxTokens: maxTokens, slot: make(chan struct{}, 1)}
}

// MaxTokens is the cursor budget applied when a Request does not set one.
func (r *Runner) MaxTokens() int { return r.maxTokens }

// Busy reports whether a session currently holds the handle.
func (r *Runner) Busy() bool { return len(r.slot) > 0 }

// acquire waits for the in-flight slot. Returns a release func.
func (r *Runner) acquire(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case r.slot <- struct{}{}:
		return func() { <-r.slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start waits until the handle is free and begins a session for req. The
// session runs until EOS, the token budget, the stop predicate, cancellation
// (Session.Cancel or ctx) or an engine failure.
func (r *Runner) Start(ctx context.Context, req Request) (*Session, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, engine.ErrModelNotLoaded
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if req.MaxTokens <= 0 || req.MaxTokens > r.maxTokens {
		req.MaxTokens = r.maxTokens
	}
	s := newSession(r.handle, req)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		release()
		return nil, engine.ErrModelNotLoaded
	}
	r.active = s
	r.mu.Unlock()
	go s.run(ctx, func() {
		r.mu.Lock()
		if r.active == s {
			r.active = nil
		}
		r.mu.Unlock()
		release()
	})
	return s, nil
}

// generate runs a session to completion and returns its result; the
// concatenated fragments equal Result.Text.
func (r *Runner) generate(ctx context.Context, req Request) (Result, error) {
	s, err := r.Start(ctx, req)
	if err != nil {
		return Result{Reason: ReasonFailed}, err
	}
	for range s.Fragments() {
	}
	return s.Wait()
}

// Close cancels the in-flight session, waits for it to release the handle and
// closes the handle. When ctx ends first the handle is closed in the
// background as soon as the session lets go, and ctx's error is returned.
// Later Start calls fail with engine.ErrModelNotLoaded.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	active := r.active
	r.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
	release, err := r.acquire(ctx)
	if err != nil {
		go r.closeWhenIdle()
		return err
	}
	defer release()
	return r.handle.Close()
}

func (r *Runner) closeWhenIdle() {
	release, err := r.acquire(context.Background())
	if err != nil {
		return
	}
	defer release()
	if err := r.handle.Close(); err != nil {
		zlog.Warn().Err(err).Msg("generation: deferred close failed")
	}
}
