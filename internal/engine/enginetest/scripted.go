// Package enginetest provides an in-memory engine.Handle for tests. The
// handle replays a fixed script of pieces, records every call and flags any
// concurrent use.
package enginetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"chatd/internal/engine"
)

// EOS is the end-of-sequence token of a scripted handle.
const EOS engine.Token = -1

// Handle replays Pieces one per Sample call and then returns EOS.
// Tokenize maps every byte of the prompt to one token so prompt length is
// predictable in tests.
type Handle struct {
	Pieces [][]byte
	Ctx    int

	TokenizeErr error
	// DecodeErrAt fails the Nth Decode call (1-based, the prompt batch is
	// call 1). Zero disables.
	DecodeErrAt int
	DecodeErr   error
	// Gate, when set, is received from before every Sample so tests can step
	// the loop one token at a time.
	Gate chan struct{}
	// Sampled, when set, receives the index of each scripted piece as it is
	// sampled (non-blocking).
	Sampled chan int

	mu        sync.Mutex
	next      int
	cursor    int
	decodes   int
	resets    int
	closed    bool
	prompts   []string
	positions []int
	params    []engine.SampleParams

	busy       atomic.Int32
	violations atomic.Int32
}

// Script builds a Handle that emits each string as one piece.
func Script(pieces ...string) *Handle {
	h := &Handle{}
	for _, p := range pieces {
		h.Pieces = append(h.Pieces, []byte(p))
	}
	return h
}

func (h *Handle) enter() func() {
	if h.busy.Add(1) != 1 {
		h.violations.Add(1)
	}
	return func() { h.busy.Add(-1) }
}

func (h *Handle) Tokenize(text string, addBOS bool) ([]engine.Token, error) {
	defer h.enter()()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, engine.ErrModelNotLoaded
	}
	if h.TokenizeErr != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTokenizationFailed, h.TokenizeErr)
	}
	h.prompts = append(h.prompts, text)
	toks := make([]engine.Token, 0, len(text)+1)
	if addBOS {
		toks = append(toks, 1)
	}
	for i := 0; i < len(text); i++ {
		toks = append(toks, engine.Token(text[i]))
	}
	return toks, nil
}

func (h *Handle) Decode(tokens []engine.Token, startPos int) error {
	defer h.enter()()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return engine.ErrModelNotLoaded
	}
	h.decodes++
	if h.DecodeErrAt > 0 && h.decodes == h.DecodeErrAt {
		err := h.DecodeErr
		if err == nil {
			err = errors.New("scripted failure")
		}
		return fmt.Errorf("%w: %v", engine.ErrDecodeFailed, err)
	}
	if startPos != h.cursor {
		return fmt.Errorf("%w: position %d, cache at %d", engine.ErrDecodeFailed, startPos, h.cursor)
	}
	h.positions = append(h.positions, startPos)
	h.cursor += len(tokens)
	return nil
}

func (h *Handle) Sample(params engine.SampleParams) (engine.Token, error) {
	if h.Gate != nil {
		<-h.Gate
	}
	defer h.enter()()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, engine.ErrModelNotLoaded
	}
	if h.cursor == 0 {
		return 0, fmt.Errorf("%w: sample before prompt decode", engine.ErrDecodeFailed)
	}
	h.params = append(h.params, params)
	if h.next >= len(h.Pieces) {
		return EOS, nil
	}
	idx := h.next
	h.next++
	if h.Sampled != nil {
		select {
		case h.Sampled <- idx:
		default:
		}
	}
	return engine.Token(idx), nil
}

func (h *Handle) IsEOS(tok engine.Token) bool { return tok == EOS }

func (h *Handle) TokenBytes(tok engine.Token) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tok < 0 || int(tok) >= len(h.Pieces) {
		return nil
	}
	return h.Pieces[tok]
}

func (h *Handle) ContextSize() int {
	if h.Ctx > 0 {
		return h.Ctx
	}
	return engine.DefaultContextSize
}

// Reset clears the cache position and rewinds the script so the handle can
// serve the next request.
func (h *Handle) Reset() error {
	defer h.enter()()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resets++
	h.cursor = 0
	h.next = 0
	h.decodes = 0
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Resets returns how many times Reset was called.
func (h *Handle) Resets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets
}

// Cursor returns the current cache position.
func (h *Handle) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Prompts returns every prompt passed to Tokenize.
func (h *Handle) Prompts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.prompts...)
}

// LastPrompt returns the most recent prompt, or "".
func (h *Handle) LastPrompt() string {
	p := h.Prompts()
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Positions returns the start positions of every successful Decode call.
func (h *Handle) Positions() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.positions...)
}

// Params returns the sampling parameters seen by Sample.
func (h *Handle) Params() []engine.SampleParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]engine.SampleParams(nil), h.params...)
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Violations counts calls that overlapped another call.
func (h *Handle) Violations() int { return int(h.violations.Load()) }

// Text returns the concatenation of all scripted pieces.
func (h *Handle) Text() string {
	var b strings.Builder
	for _, p := range h.Pieces {
		b.Write(p)
	}
	return b.String()
}

// Loader hands out a fixed Handle, or Err when set.
type Loader struct {
	Handle engine.Handle
	Err    error

	mu    sync.Mutex
	paths []string
}

func (l *Loader) Load(path string) (engine.Handle, error) {
	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Handle, nil
}

// Paths returns every path passed to Load.
func (l *Loader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}
