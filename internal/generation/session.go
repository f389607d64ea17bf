package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatd/internal/engine"
)

// Phase is the position of a session in its state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseDecoding
	PhaseSampling
	PhaseStopped
	PhaseCancelled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	case PhaseDecoding:
		return "decoding"
	case PhaseSampling:
		return "sampling"
	case PhaseStopped:
		return "stopped"
	case PhaseCancelled:
		return "cancelled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one in-flight generation. Fragments arrive on an unbuffered
// channel in generation order; the channel is closed when the session ends.
// A Session is not restartable.
type Session struct {
	handle engine.Handle
	req    Request

	frags      chan string
	cancelCh   chan struct{}
	cancelOnce sync.Once
	cancelled  atomic.Bool
	phase      atomic.Int32
	done       chan struct{}

	// owned by the run goroutine until done is closed
	cursor  int
	decoded int
	start   time.Time
	pending []byte
	text    strings.Builder
	emitted int

	res Result
	err error
}

func newSession(h engine.Handle, req Request) *Session {
	return &Session{
		handle:   h,
		req:      req,
		frags:    make(chan string),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Fragments streams output text. Consumers concatenate fragments in order.
func (s *Session) Fragments() <-chan string { return s.frags }

// Cancel asks the loop to stop. It is observed at the next iteration (at most
// one decode step later) or while a fragment is waiting to be delivered.
// Cancellation is a clean stop, not an error.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancelled.Store(true)
		close(s.cancelCh)
	})
}

// Done is closed after the handle has been reset and released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Phase returns the current state.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Wait blocks until the session ends. The error is non-nil only for failed
// sessions (errors.Is engine.ErrTokenizationFailed / ErrDecodeFailed) or when
// ctx ended the session.
func (s *Session) Wait() (Result, error) {
	<-s.done
	return s.res, s.err
}

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

func (s *Session) run(ctx context.Context, release func()) {
	s.start = time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.err = fmt.Errorf("%w: panic: %v", engine.ErrDecodeFailed, r)
			s.res.Reason = ReasonFailed
			s.setPhase(PhaseFailed)
		}
		s.res.Decoded = s.decoded
		s.res.Elapsed = time.Since(s.start)
		if s.res.Reason != ReasonStop && s.res.Reason != ReasonLength {
			s.res.Text = s.text.String()[:s.emitted]
		}
		if err := s.handle.Reset(); err != nil {
			zlog.Warn().Err(err).Msg("generation: reset failed")
		}
		release()
		close(s.frags)
		observe(s.res)
		zlog.Debug().
			Str("reason", string(s.res.Reason)).
			Int("prompt_tokens", s.res.PromptTokens).
			Int("decoded", s.res.Decoded).
			Dur("elapsed", s.res.Elapsed).
			Float64("tok_per_sec", s.res.TokensPerSecond()).
			Msg("generation end")
		close(s.done)
	}()

	s.setPhase(PhaseInitializing)
	if err := s.init(); err != nil {
		s.fail(err)
		return
	}
	if s.cursor >= s.req.MaxTokens {
		s.finish(ctx, ReasonLength)
		return
	}

	params := s.req.Params.engine()
	for {
		if s.cancelled.Load() || ctx.Err() != nil {
			s.cancel(ctx)
			return
		}

		s.setPhase(PhaseSampling)
		tok, err := s.handle.Sample(params)
		if err != nil {
			s.fail(wrapDecode(err))
			return
		}
		if s.handle.IsEOS(tok) {
			s.finish(ctx, ReasonStop)
			return
		}
		if s.cursor >= s.req.MaxTokens {
			s.finish(ctx, ReasonLength)
			return
		}

		stop, ok := s.accept(ctx, s.handle.TokenBytes(tok))
		if !ok {
			s.cancel(ctx)
			return
		}
		if stop {
			s.res.Reason = ReasonStop
			s.setPhase(PhaseStopped)
			return
		}

		s.setPhase(PhaseDecoding)
		if err := s.handle.Decode([]engine.Token{tok}, s.cursor); err != nil {
			s.fail(wrapDecode(err))
			return
		}
		s.cursor++
		s.decoded++
	}
}

// init tokenizes the prompt and decodes it in one batch at positions 0..n-1.
func (s *Session) init() error {
	toks, err := s.handle.Tokenize(s.req.Prompt, true)
	if err != nil {
		if !errors.Is(err, engine.ErrTokenizationFailed) {
			err = fmt.Errorf("%w: %v", engine.ErrTokenizationFailed, err)
		}
		return err
	}
	if len(toks) == 0 {
		return fmt.Errorf("%w: empty prompt", engine.ErrTokenizationFailed)
	}
	s.res.PromptTokens = len(toks)
	if len(toks) >= s.req.MaxTokens {
		s.cursor = len(toks)
		return nil
	}
	s.setPhase(PhaseDecoding)
	if err := s.handle.Decode(toks, 0); err != nil {
		return wrapDecode(err)
	}
	s.cursor = len(toks)
	return nil
}

// accept appends a raw piece and emits whatever output became final. It
// reports stop when the stop predicate matched, and ok=false when the session
// was cancelled while delivering.
func (s *Session) accept(ctx context.Context, piece []byte) (stop, ok bool) {
	s.pending = append(s.pending, piece...)
	n := completePrefix(s.pending)
	if n == 0 {
		return false, true
	}
	s.text.Write(s.pending[:n])
	s.pending = append(s.pending[:0], s.pending[n:]...)

	full := s.text.String()
	if s.req.Stop != nil {
		if at, hit := s.req.Stop(full); hit {
			if at < s.emitted {
				at = s.emitted
			}
			if at > len(full) {
				at = len(full)
			}
			s.res.Text = full[:at]
			return true, s.emit(ctx, full[s.emitted:at], at)
		}
	}
	hold := 0
	if s.req.Holdback != nil {
		hold = s.req.Holdback(full[s.emitted:])
	}
	limit := runeFloor(full, len(full)-hold)
	if limit <= s.emitted {
		return false, true
	}
	return false, s.emit(ctx, full[s.emitted:limit], limit)
}

// finish flushes held-back bytes (including an incomplete trailing sequence)
// and ends the session normally.
func (s *Session) finish(ctx context.Context, reason Reason) {
	s.res.Reason = reason
	s.setPhase(PhaseStopped)
	if len(s.pending) > 0 {
		s.text.Write(s.pending)
		s.pending = nil
	}
	full := s.text.String()
	end := len(full)
	if s.req.Stop != nil {
		if at, hit := s.req.Stop(full); hit && at >= s.emitted && at < end {
			end = at
			s.res.Reason = ReasonStop
		}
	}
	s.res.Text = full[:end]
	if end > s.emitted {
		if !s.emit(ctx, full[s.emitted:end], end) {
			s.res.Reason = ReasonCancelled
			s.setPhase(PhaseCancelled)
		}
	}
}

func (s *Session) emit(ctx context.Context, frag string, upto int) bool {
	if frag == "" {
		s.emitted = upto
		return true
	}
	select {
	case s.frags <- frag:
		s.emitted = upto
		return true
	case <-s.cancelCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) cancel(ctx context.Context) {
	s.res.Reason = ReasonCancelled
	s.setPhase(PhaseCancelled)
	// An explicit Cancel is a clean stop; a dead parent context is reported.
	if !s.cancelled.Load() && ctx.Err() != nil {
		s.err = ctx.Err()
	}
}

func (s *Session) fail(err error) {
	s.res.Reason = ReasonFailed
	s.setPhase(PhaseFailed)
	s.err = err
	zlog.Error().Err(err).Int("cursor", s.cursor).Msg("generation failed")
}

func wrapDecode(err error) error {
	if errors.Is(err, engine.ErrDecodeFailed) || errors.Is(err, engine.ErrModelNotLoaded) {
		return err
	}
	return fmt.Errorf("%w: %v", engine.ErrDecodeFailed, err)
}
