package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatd/internal/app"
	"chatd/internal/config"
	"chatd/internal/engine/enginetest"
	"chatd/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with empty .gguf files
// and returns the directory path and the list of model IDs (filenames).
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// newServer wires the full stack over a scripted engine handle.
func newServer(t *testing.T, cfg config.Config, h *enginetest.Handle) (*httptest.Server, *app.App, *enginetest.Loader) {
	t.Helper()
	ld := &enginetest.Loader{Handle: h}
	a, err := app.New(cfg, app.Options{Loader: ld})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close()
	})
	return srv, a, ld
}

func httpDo(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	return httpDo(t, http.MethodGet, url, nil)
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	return httpDo(t, http.MethodPost, url, payload)
}

// waitReady polls /status until the model is ready.
func waitReady(t *testing.T, base string) types.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, body := httpGet(t, base+"/status")
		var st types.StatusResponse
		if err := json.Unmarshal(body, &st); err != nil {
			t.Fatalf("status json: %v", err)
		}
		if st.State == "ready" {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("model not ready: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// send posts text to chat and decodes the NDJSON stream.
func send(t *testing.T, base, chatName, text string) (string, types.FinalLine) {
	t.Helper()
	payload, _ := json.Marshal(types.SendRequest{Text: text})
	resp, body := httpPostJSON(t, base+"/chats/"+chatName+"/messages", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status=%d body=%s", resp.StatusCode, body)
	}
	var b strings.Builder
	var final types.FinalLine
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.Contains(line, []byte(`"done"`)) {
			if err := json.Unmarshal(line, &final); err != nil {
				t.Fatalf("final: %v", err)
			}
			continue
		}
		var tl types.TokenLine
		if err := json.Unmarshal(line, &tl); err != nil {
			t.Fatalf("token: %v", err)
		}
		b.WriteString(tl.Token)
	}
	return b.String(), final
}

func testConfig(t *testing.T, driver string, models ...string) config.Config {
	t.Helper()
	dir, _ := createTempModelsDir(t, models...)
	path := t.TempDir()
	if driver == "sqlite" {
		path = filepath.Join(path, "chatd.db")
	}
	return config.Config{ModelsDir: dir, Store: config.StoreConfig{Driver: driver, Path: path}}
}
