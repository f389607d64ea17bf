package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"chatd/internal/generation"
)

// Turn is one user input and the assistant reply being generated for it.
type Turn struct {
	chat    string
	user    Message
	replyID string

	ctx    context.Context
	stop   context.CancelFunc
	cancel atomic.Bool

	mu   sync.Mutex
	sess *generation.Session

	done  chan struct{}
	reply Message
	res   generation.Result
	err   error
}

func newTurn(parent context.Context, chat string, user Message, replyID string) *Turn {
	ctx, stop := context.WithCancel(parent)
	return &Turn{
		chat:    chat,
		user:    user,
		replyID: replyID,
		ctx:     ctx,
		stop:    stop,
		done:    make(chan struct{}),
	}
}

// Chat is the name of the chat the turn belongs to.
func (t *Turn) Chat() string { return t.chat }

// UserMessage returns the user message that started the turn.
func (t *Turn) UserMessage() Message { return t.user }

// ReplyID is the ID of the assistant message being generated.
func (t *Turn) ReplyID() string { return t.replyID }

// Cancel stops generation at the next token. The partial reply is kept.
func (t *Turn) Cancel() {
	if t.cancel.Swap(true) {
		return
	}
	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()
	if sess != nil {
		sess.Cancel()
	}
	t.stop()
}

func (t *Turn) cancelled() bool { return t.cancel.Load() }

func (t *Turn) attach(s *generation.Session) {
	t.mu.Lock()
	t.sess = s
	t.mu.Unlock()
	if t.cancelled() {
		s.Cancel()
	}
}

// Done is closed once the reply is final and, on success, persisted.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Wait returns the final assistant message. The error is non-nil when
// generation failed or the exchange could not be saved.
func (t *Turn) Wait() (Message, error) {
	<-t.done
	return t.reply, t.err
}

// Result returns the generation summary. Valid after Done.
func (t *Turn) Result() generation.Result {
	<-t.done
	return t.res
}
