package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"chatd/internal/chat"
	"chatd/internal/engine/enginetest"
	"chatd/pkg/types"
)

func TestE2E_LoadModelThenChat(t *testing.T) {
	cfg := testConfig(t, "json", "alpha.Q4_K_M.gguf", "beta.gguf")
	srv, _, ld := newServer(t, cfg, enginetest.Script("world", "!"))

	if resp, _ := httpGet(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before load=%d", resp.StatusCode)
	}
	resp, body := httpPostJSON(t, srv.URL+"/chats/active/messages", []byte(`{"text":"hello"}`))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("send before load=%d body=%s", resp.StatusCode, body)
	}

	_, body = httpGet(t, srv.URL+"/models")
	var models types.ModelsResponse
	_ = json.Unmarshal(body, &models)
	if len(models.Models) != 2 {
		t.Fatalf("models=%+v", models)
	}

	resp, body = httpPostJSON(t, srv.URL+"/models/load", []byte(`{"model":"alpha.Q4_K_M.gguf"}`))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("load status=%d body=%s", resp.StatusCode, body)
	}
	st := waitReady(t, srv.URL)
	if st.Model == nil || st.Model.ID != "alpha.Q4_K_M.gguf" || len(ld.Paths()) != 1 {
		t.Fatalf("status=%+v paths=%v", st, ld.Paths())
	}

	text, final := send(t, srv.URL, "active", "hello")
	if text != "world!" || final.Content != "world!" || final.FinishReason != "stop" {
		t.Fatalf("text=%q final=%+v", text, final)
	}

	_, body = httpGet(t, srv.URL+"/chats/Chat")
	var snap chat.Snapshot
	_ = json.Unmarshal(body, &snap)
	if len(snap.Messages) != 2 || snap.Messages[0].Text != "hello" || snap.Messages[1].State.Kind != chat.StatePredicted {
		t.Fatalf("history=%+v", snap.Messages)
	}

	resp, _ = httpPostJSON(t, srv.URL+"/models/load", []byte(`{"model":"gamma.gguf"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown model status=%d", resp.StatusCode)
	}
}

func TestE2E_BusyReturns429(t *testing.T) {
	cfg := testConfig(t, "json", "alpha.gguf")
	cfg.DefaultModel = "alpha.gguf"
	h := enginetest.Script("a", "b")
	gate := make(chan struct{})
	h.Gate = gate
	srv, a, _ := newServer(t, cfg, h)
	if err := a.LoadDefault(t.Context()); err != nil {
		t.Fatalf("load: %v", err)
	}

	first := make(chan []byte, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/chats/active/messages", "application/json", strings.NewReader(`{"text":"first"}`))
		if err != nil {
			first <- nil
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		first <- b
	}()
	// The first token proves the turn holds the generator.
	gate <- struct{}{}
	resp, body := httpPostJSON(t, srv.URL+"/chats/active/messages", []byte(`{"text":"second"}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second send status=%d body=%s", resp.StatusCode, body)
	}
	close(gate)
	b := <-first
	if !strings.Contains(string(b), `"content":"ab"`) {
		t.Fatalf("first stream=%s", b)
	}
}

func TestE2E_ChatsPersistAcrossRestart(t *testing.T) {
	for _, driver := range []string{"json", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(t, driver, "alpha.gguf")
			cfg.DefaultModel = "alpha.gguf"

			srv, a, _ := newServer(t, cfg, enginetest.Script("ok"))
			if err := a.LoadDefault(t.Context()); err != nil {
				t.Fatalf("load: %v", err)
			}
			send(t, srv.URL, "active", "in the default chat")
			send(t, srv.URL, "Travel", "in travel")
			resp, body := httpDo(t, http.MethodPut, srv.URL+"/chats/active", []byte(`{"name":"Chat"}`))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("switch status=%d body=%s", resp.StatusCode, body)
			}
			srv.Close()
			_ = a.Close()

			srv2, _, _ := newServer(t, cfg, enginetest.Script())
			_, body = httpGet(t, srv2.URL+"/chats/")
			var list types.ChatsResponse
			_ = json.Unmarshal(body, &list)
			if strings.Join(list.Chats, ",") != "Chat,Travel" || list.Active != "Chat" {
				t.Fatalf("chats=%+v", list)
			}
			_, body = httpGet(t, srv2.URL+"/chats/Travel")
			var snap chat.Snapshot
			_ = json.Unmarshal(body, &snap)
			if len(snap.Messages) != 2 || snap.Messages[0].Text != "in travel" || snap.Messages[1].Text != "ok" {
				t.Fatalf("travel=%+v", snap.Messages)
			}
		})
	}
}

func TestE2E_PromptKeepsRecentTurns(t *testing.T) {
	cfg := testConfig(t, "json", "alpha.gguf")
	cfg.DefaultModel = "alpha.gguf"
	h := enginetest.Script("r")
	srv, a, _ := newServer(t, cfg, h)
	if err := a.LoadDefault(t.Context()); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 1; i <= 5; i++ {
		send(t, srv.URL, "active", fmt.Sprintf("question %02d", i))
	}
	p := h.LastPrompt()
	if strings.Contains(p, "question 01") {
		t.Fatalf("prompt kept the oldest exchange:\n%s", p)
	}
	for i := 2; i <= 5; i++ {
		if !strings.Contains(p, fmt.Sprintf("user: question %02d\n", i)) {
			t.Fatalf("prompt lost question %02d:\n%s", i, p)
		}
	}
	if !strings.HasSuffix(p, "user: question 05\nassistant:") {
		t.Fatalf("prompt must end with the cue:\n%s", p)
	}
}
