package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"chatd/internal/events"
	"chatd/internal/generation"
)

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Store     TranscriptStore
	Prompt    PromptBuilder
	Generator Generator
	// Chat is the chat opened by New; DefaultChat when empty.
	Chat string

	Params   generation.Params
	Stop     generation.StopFunc
	Holdback generation.HoldFunc
	// MaxTokens bounds each session; zero uses the generator's budget.
	MaxTokens int

	Publisher events.Publisher
}

// Orchestrator owns the active conversation. All mutation of the history
// happens under mu; readers receive copies.
type Orchestrator struct {
	store  TranscriptStore
	prompt PromptBuilder
	gen    Generator
	cfg    Config
	pub    events.Publisher
	hub    *hub

	base     context.Context
	shutdown context.CancelFunc

	mu        sync.Mutex
	name      string
	msgs      []Message
	turn      *Turn
	switching bool
	closed    bool
}

// New loads cfg.Chat from the store and returns an idle orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil || cfg.Prompt == nil || cfg.Generator == nil {
		return nil, errors.New("chat: store, prompt builder and generator are required")
	}
	if cfg.Chat == "" {
		cfg.Chat = DefaultChat
	}
	if err := ValidateName(cfg.Chat); err != nil {
		return nil, err
	}
	msgs, _, err := cfg.Store.Load(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("chat: load %q: %w", cfg.Chat, err)
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    cfg.Store,
		prompt:   cfg.Prompt,
		gen:      cfg.Generator,
		cfg:      cfg,
		pub:      events.OrNop(cfg.Publisher),
		hub:      newHub(),
		base:     base,
		shutdown: shutdown,
		name:     cfg.Chat,
		msgs:     msgs,
	}, nil
}

// Name returns the active chat name.
func (o *Orchestrator) Name() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.name
}

// Messages returns a copy of the active history.
func (o *Orchestrator) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneMessages(o.msgs)
}

// InFlight is 1 while a turn is running, else 0.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turn != nil {
		return 1
	}
	return 0
}

// Snapshot returns the current view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe returns a stream of snapshots, starting with the current one.
// The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, unsub := o.hub.subscribe()
	if !o.closed {
		o.hub.seed(ch, o.snapshotLocked())
	}
	return ch, unsub
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{Chat: o.name, Messages: cloneMessages(o.msgs)}
	if o.turn != nil {
		s.InFlight = 1
	}
	return s
}

func (o *Orchestrator) publishLocked() { o.hub.publish(o.snapshotLocked()) }

// Send appends text as a user message and starts generating the reply.
// Blank input is ignored and returns (nil, nil). While another turn runs,
// Send returns ErrBusy.
func (o *Orchestrator) Send(text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.turn != nil || o.switching {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	user := NewUserMessage(text)
	reply := NewAssistantMessage()
	o.msgs = append(o.msgs, user)
	prompt := o.prompt.Build(o.msgs)
	o.msgs = append(o.msgs, reply)
	t := newTurn(o.base, o.name, user, reply.ID)
	o.turn = t
	o.publishLocked()
	o.mu.Unlock()

	zlog.Debug().Str("chat", t.chat).Str("prompt", prompt).Msg("turn start")
	o.pub.Publish(events.Event{Name: "turn_start", Subject: t.chat, Fields: map[string]any{"reply_id": reply.ID}})

	req := generation.Request{
		Prompt:    prompt,
		Params:    o.cfg.Params,
		Stop:      o.cfg.Stop,
		Holdback:  o.cfg.Holdback,
		MaxTokens: o.cfg.MaxTokens,
	}
	go o.run(t, req)
	return t, nil
}

// Cancel asks the active turn, if any, to stop.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	t := o.turn
	o.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

func (o *Orchestrator) run(t *Turn, req generation.Request) {
	defer close(t.done)
	defer t.stop()

	sess, err := o.gen.Start(t.ctx, req)
	if err != nil {
		res := generation.Result{Reason: generation.ReasonFailed}
		if t.cancelled() && errors.Is(err, context.Canceled) {
			res.Reason, err = generation.ReasonCancelled, nil
		}
		o.finalize(t, res, err)
		return
	}
	t.attach(sess)
	for frag := range sess.Fragments() {
		o.apply(t, frag)
	}
	res, err := sess.Wait()
	if err != nil && t.cancelled() && errors.Is(err, context.Canceled) {
		err = nil
	}
	o.finalize(t, res, err)
}

func (o *Orchestrator) indexLocked(id string) int {
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// apply appends one fragment to the reply, replacing it in place.
func (o *Orchestrator) apply(t *Turn, frag string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.indexLocked(t.replyID)
	if i < 0 {
		return
	}
	m := o.msgs[i]
	if err := m.Append(frag); err != nil {
		zlog.Warn().Err(err).Str("chat", t.chat).Msg("fragment dropped")
		return
	}
	o.msgs[i] = m
	o.publishLocked()
}

func (o *Orchestrator) finalize(t *Turn, res generation.Result, genErr error) {
	t.res = res
	tps := generation.TokensPerSecond(res.Decoded, res.Elapsed)

	o.mu.Lock()
	var reply Message
	if i := o.indexLocked(t.replyID); i >= 0 {
		reply = o.msgs[i]
		if genErr != nil {
			_ = reply.Fail()
		} else {
			_ = reply.Finish(res.Elapsed.Seconds(), tps)
		}
		o.msgs[i] = reply
		o.publishLocked()
	}
	o.mu.Unlock()

	t.reply = reply
	t.err = genErr
	if genErr != nil {
		zlog.Error().Err(genErr).Str("chat", t.chat).Msg("turn failed")
	} else {
		zlog.Info().
			Str("chat", t.chat).
			Str("reason", string(res.Reason)).
			Int("tokens", res.Decoded).
			Float64("seconds", res.Elapsed.Seconds()).
			Float64("tok_per_sec", tps).
			Msg("turn complete")
		if err := o.store.Save(t.chat, []Message{t.user, reply}); err != nil {
			zlog.Error().Err(err).Str("chat", t.chat).Msg("save transcript")
			t.err = fmt.Errorf("chat: save %q: %w", t.chat, err)
		}
	}

	o.mu.Lock()
	if o.turn == t {
		o.turn = nil
	}
	o.publishLocked()
	o.mu.Unlock()

	fields := map[string]any{"reason": string(res.Reason), "tokens": res.Decoded, "tok_per_sec": tps}
	if genErr != nil {
		fields["error"] = genErr.Error()
	}
	o.pub.Publish(events.Event{Name: "turn_end", Subject: t.chat, Fields: fields})
}

// SwitchChat makes name the active chat. The running turn, if any, is
// cancelled and fully torn down (reply finalized and saved) before the new
// history is loaded. Switching to the active chat is a no-op.
func (o *Orchestrator) SwitchChat(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if name == o.name {
		o.mu.Unlock()
		return nil
	}
	if o.switching {
		o.mu.Unlock()
		return ErrBusy
	}
	o.switching = true
	t := o.turn
	o.mu.Unlock()

	if t != nil {
		t.Cancel()
		<-t.Done()
	}
	msgs, _, err := o.store.Load(name)

	o.mu.Lock()
	o.switching = false
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("chat: load %q: %w", name, err)
	}
	prev := o.name
	o.name = name
	o.msgs = msgs
	o.publishLocked()
	o.mu.Unlock()

	o.pub.Publish(events.Event{Name: "chat_switch", Subject: name, Fields: map[string]any{"from": prev, "messages": len(msgs)}})
	return nil
}

// Clear empties the active chat, in memory and in the store.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.turn != nil || o.switching {
		return ErrBusy
	}
	if err := o.store.Clear(o.name); err != nil {
		return err
	}
	o.msgs = nil
	o.publishLocked()
	o.pub.Publish(events.Event{Name: "chat_clear", Subject: o.name})
	return nil
}

// ClearChat empties name. Clearing the active chat behaves like Clear.
func (o *Orchestrator) ClearChat(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	o.mu.Lock()
	active := name == o.name
	o.mu.Unlock()
	if active {
		return o.Clear()
	}
	if err := o.store.Clear(name); err != nil {
		return err
	}
	o.pub.Publish(events.Event{Name: "chat_clear", Subject: name})
	return nil
}

// History returns the messages of name: the live history for the active
// chat, the stored transcript otherwise.
func (o *Orchestrator) History(name string) ([]Message, bool, error) {
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	o.mu.Lock()
	if name == o.name {
		msgs := cloneMessages(o.msgs)
		o.mu.Unlock()
		return msgs, true, nil
	}
	o.mu.Unlock()
	return o.store.Load(name)
}

// ListChats returns the stored chat names.
func (o *Orchestrator) ListChats() ([]string, error) { return o.store.List() }

// DeleteChat removes a stored chat. Deleting the active chat also empties
// the in-memory history.
func (o *Orchestrator) DeleteChat(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	active := name == o.name
	if active && (o.turn != nil || o.switching) {
		return ErrBusy
	}
	if err := o.store.Delete(name); err != nil {
		return err
	}
	if active {
		o.msgs = nil
		o.publishLocked()
	}
	o.pub.Publish(events.Event{Name: "chat_delete", Subject: name})
	return nil
}

// DuplicateChat copies a stored chat and returns the new name.
func (o *Orchestrator) DuplicateChat(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dup, err := o.store.Duplicate(name)
	if err != nil {
		return "", err
	}
	o.pub.Publish(events.Event{Name: "chat_duplicate", Subject: name, Fields: map[string]any{"copy": dup}})
	return dup, nil
}

// Close cancels the running turn, waits for it and closes all
// subscriptions. Later calls return ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	t := o.turn
	o.mu.Unlock()
	if t != nil {
		t.Cancel()
		<-t.Done()
	}
	o.shutdown()
	o.hub.close()
	return nil
}
