package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"chatd/internal/chat"
	"chatd/internal/engine"
	"chatd/internal/generation"
	"chatd/pkg/types"
)

// send starts a turn on the addressed chat and streams the reply as NDJSON:
// one TokenLine per fragment, then a FinalLine.
func (a *api) send(w http.ResponseWriter, r *http.Request) {
	var req types.SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !a.models.Ready() {
		writeError(w, engine.ErrModelNotLoaded)
		return
	}
	name := a.chatName(r)
	if name != a.chats.Name() {
		if a.chats.Snapshot().InFlight > 0 {
			writeError(w, chat.ErrBusy)
			return
		}
		if err := a.chats.SwitchChat(name); err != nil {
			writeError(w, err)
			return
		}
	}

	sub, unsubscribe := a.chats.Subscribe()
	defer unsubscribe()
	turn, err := a.chats.Send(req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	if turn == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	lvl := requestLogLevel(r)
	logger := zlog.With().Str("chat", turn.Chat()).Str("message_id", turn.ReplyID()).Logger()
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		logger = logger.With().Str("request_id", rid).Logger()
	}
	start := time.Now()
	if lvl >= LevelInfo {
		logger.Info().Str("path", r.URL.Path).Msg("turn start")
	}

	if turnTimeout > 0 {
		timer := time.AfterFunc(turnTimeout, turn.Cancel)
		defer timer.Stop()
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	writer := io.Writer(w)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{log: logger})
	}
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	enc := json.NewEncoder(writer)
	sent := 0
	emit := func(text string) {
		if len(text) <= sent {
			return
		}
		_ = enc.Encode(types.TokenLine{Token: text[sent:]})
		sent = len(text)
		flush()
	}

	done := ctx.Done()
	for {
		select {
		case snap, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			emit(replyText(snap, turn.ReplyID()))
		case <-done:
			// Client gone or server shutting down.
			turn.Cancel()
			done = nil
		case <-turn.Done():
			reply, err := turn.Wait()
			emit(reply.Text)
			final := finalLine(reply, turn.Result(), err)
			_ = enc.Encode(final)
			flush()
			if lvl >= LevelInfo {
				logTurnEnd(logger, final, time.Since(start), err)
			}
			return
		}
	}
}

func replyText(s chat.Snapshot, id string) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].ID == id {
			return s.Messages[i].Text
		}
	}
	return ""
}

func finalLine(reply chat.Message, res generation.Result, err error) types.FinalLine {
	reason := res.Reason
	if err != nil && reason == "" {
		reason = generation.ReasonFailed
	}
	out := types.FinalLine{
		Done:         true,
		MessageID:    reply.ID,
		Content:      reply.Text,
		FinishReason: string(reason),
		Usage: types.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.Decoded,
			Seconds:          res.Elapsed.Seconds(),
			TokensPerSecond:  reply.TokensPerSecond,
		},
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func logTurnEnd(l zerolog.Logger, f types.FinalLine, dur time.Duration, err error) {
	ev := l.Info()
	if err != nil {
		ev = l.Error().Err(err)
	}
	ev.Str("reason", f.FinishReason).
		Int("tokens", f.Usage.CompletionTokens).
		Float64("tok_sec", f.Usage.TokensPerSecond).
		Dur("dur", dur).
		Msg("turn end")
}
