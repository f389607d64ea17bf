//go:build llama

package engine

import (
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"chatd/internal/common/fsutil"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// eosToken is handed out once the runtime stops producing pieces.
const eosToken Token = -1

type llamaLoader struct{ opts Options }

// NewLlamaLoader returns a Loader backed by go-llama.cpp.
func NewLlamaLoader(opts Options) Loader { return &llamaLoader{opts: opts.withDefaults()} }

func (l *llamaLoader) Load(path string) (Handle, error) {
	if strings.TrimSpace(path) == "" || !fsutil.PathExists(path) {
		return nil, ErrModelNotFound(path)
	}
	mo := []llama.ModelOption{llama.SetContext(l.opts.ContextSize)}
	if l.opts.GPULayers != 0 {
		mo = append(mo, llama.SetGPULayers(l.opts.GPULayers))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, ErrModelCorrupted(path, err)
	}
	return &llamaHandle{model: m, opts: l.opts, pieces: make(map[Token][]byte)}, nil
}

// llamaHandle adapts the go-llama.cpp callback API to the step contract.
// go-llama.cpp only exposes a blocking Predict that reports each piece through
// a callback, so a prediction runs in its own goroutine and the callback parks
// after every piece until the caller decodes the sampled token (or resets).
// Tokens handed out by Sample are ids into the pieces table, not vocabulary ids.
type llamaHandle struct {
	model *llama.LLama
	opts  Options

	promptText string
	prompt     []Token
	pending    bool // prompt decoded, prediction not started yet

	run    *predictRun
	next   Token
	pieces map[Token][]byte
	last   Token
}

type predictRun struct {
	pieces   chan string
	resume   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
	err      error
}

func (r *predictRun) halt() { r.stopOnce.Do(func() { close(r.stop) }) }

func (h *llamaHandle) Tokenize(text string, addBOS bool) ([]Token, error) {
	if h.model == nil {
		return nil, ErrModelNotLoaded
	}
	_, ids, err := h.model.TokenizeString(text, llama.SetThreads(h.opts.Threads))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenizationFailed, err)
	}
	toks := make([]Token, len(ids))
	for i, id := range ids {
		toks[i] = Token(id)
	}
	h.promptText = text
	h.prompt = toks
	return toks, nil
}

func (h *llamaHandle) Decode(tokens []Token, startPos int) error {
	if h.model == nil {
		return ErrModelNotLoaded
	}
	if startPos == 0 {
		if !sameTokens(tokens, h.prompt) {
			return fmt.Errorf("%w: prompt batch must come from Tokenize", ErrDecodeFailed)
		}
		h.pending = true
		return nil
	}
	if h.run == nil || len(tokens) != 1 || tokens[0] != h.last {
		return fmt.Errorf("%w: unexpected token at position %d", ErrDecodeFailed, startPos)
	}
	select {
	case h.run.resume <- struct{}{}:
		return nil
	case <-h.run.finished:
		if h.run.err != nil {
			return fmt.Errorf("%w: %v", ErrDecodeFailed, h.run.err)
		}
		return nil
	}
}

func (h *llamaHandle) Sample(params SampleParams) (Token, error) {
	if h.model == nil {
		return 0, ErrModelNotLoaded
	}
	if h.pending {
		h.pending = false
		h.start(params)
	}
	if h.run == nil {
		return eosToken, nil
	}
	select {
	case piece := <-h.run.pieces:
		tok := h.next
		h.next++
		h.pieces[tok] = []byte(piece)
		h.last = tok
		return tok, nil
	case <-h.run.finished:
		if h.run.err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDecodeFailed, h.run.err)
		}
		return eosToken, nil
	}
}

func (h *llamaHandle) start(params SampleParams) {
	r := &predictRun{
		pieces:   make(chan string),
		resume:   make(chan struct{}),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	h.run = r
	h.model.SetTokenCallback(func(piece string) bool {
		select {
		case r.pieces <- piece:
		case <-r.stop:
			return false
		}
		select {
		case <-r.resume:
			return true
		case <-r.stop:
			return false
		}
	})
	po := predictOptions(params, h.opts)
	text := h.promptText
	go func() {
		defer close(r.finished)
		_, err := h.model.Predict(text, po...)
		r.err = err
	}()
}

func (h *llamaHandle) IsEOS(tok Token) bool { return tok == eosToken }

func (h *llamaHandle) TokenBytes(tok Token) []byte { return h.pieces[tok] }

func (h *llamaHandle) ContextSize() int { return h.opts.ContextSize }

func (h *llamaHandle) Reset() error {
	if h.run != nil {
		h.run.halt()
		<-h.run.finished
		h.run = nil
	}
	h.pending = false
	h.prompt = nil
	h.promptText = ""
	h.pieces = make(map[Token][]byte)
	h.next = 0
	return nil
}

func (h *llamaHandle) Close() error {
	_ = h.Reset()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

func sameTokens(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts sampling params into go-llama.cpp options. The token
// limit is the whole context; the caller enforces its own budget.
func predictOptions(p SampleParams, o Options) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(o.ContextSize),
		llama.SetThreads(o.Threads),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(p.Temperature, llama.DefaultOptions.Temperature)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	return po
}
