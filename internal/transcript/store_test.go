package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"chatd/internal/chat"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := Open(DriverJSON, filepath.Join(dir, "chats"))
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	db, err := Open(DriverSQLite, filepath.Join(dir, "db", "chatd.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = fs.Close()
		_ = db.Close()
	})
	return map[string]Store{"json": fs, "sqlite": db}
}

func exchange(q, a string) []chat.Message {
	u := chat.NewUserMessage(q)
	r := chat.NewAssistantMessage()
	r.Header = "assistant"
	_ = r.Append(a)
	_ = r.Finish(1.25, 10)
	return []chat.Message{u, r}
}

func TestStore_SaveAppendsAndLoads(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if msgs, found, err := s.Load("Chat"); err != nil || found || len(msgs) != 0 {
				t.Fatalf("missing chat: msgs=%v found=%v err=%v", msgs, found, err)
			}
			first := exchange("hi", "hello")
			second := exchange("how are you?", "fine")
			if err := s.Save("Chat", first); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := s.Save("Chat", second); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, found, err := s.Load("Chat")
			if err != nil || !found {
				t.Fatalf("load: found=%v err=%v", found, err)
			}
			want := append(append([]chat.Message{}, first...), second...)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("history (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_ClearKeepsChat(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Save("A", exchange("q", "a"))
			if err := s.Clear("A"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			msgs, found, err := s.Load("A")
			if err != nil || !found || len(msgs) != 0 {
				t.Fatalf("after clear: msgs=%v found=%v err=%v", msgs, found, err)
			}
			names, _ := s.List()
			if diff := cmp.Diff([]string{"A"}, names); diff != "" {
				t.Fatalf("list:\n%s", diff)
			}
		})
	}
}

func TestStore_DeleteAndDuplicate(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			orig := exchange("q", "a")
			_ = s.Save("A", orig)
			dup, err := s.Duplicate("A")
			if err != nil || dup != "A-copy" {
				t.Fatalf("dup=%q err=%v", dup, err)
			}
			again, _ := s.Duplicate("A")
			if again != "A-copy-2" {
				t.Fatalf("second copy=%q", again)
			}
			got, _, _ := s.Load(dup)
			if diff := cmp.Diff(orig, got); diff != "" {
				t.Fatalf("copy differs:\n%s", diff)
			}
			// the copy is independent
			_ = s.Save(dup, exchange("more", "text"))
			if a, _, _ := s.Load("A"); len(a) != 2 {
				t.Fatalf("original changed: %d messages", len(a))
			}

			if err := s.Delete("A"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.Delete("A"); !IsChatNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
			if _, err := s.Duplicate("missing"); !IsChatNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
			names, _ := s.List()
			if diff := cmp.Diff([]string{"A-copy", "A-copy-2"}, names); diff != "" {
				t.Fatalf("list:\n%s", diff)
			}
		})
	}
}

func TestStore_RejectsBadNames(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save("../escape", nil); !chat.IsInvalidName(err) {
				t.Fatalf("expected invalid name, got %v", err)
			}
			if _, _, err := s.Load(""); !chat.IsInvalidName(err) {
				t.Fatalf("expected invalid name, got %v", err)
			}
			// hidden names would be saved but never listed
			if err := s.Save(".notes", nil); !chat.IsInvalidName(err) {
				t.Fatalf("expected invalid name, got %v", err)
			}
		})
	}
}

func TestFileStore_ReadsLegacyTranscript(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"id":"1","sender":"user","state":{"type":"typed"},"text":"hi","tok_sec":0},` +
		`{"id":"2","sender":"system","state":{"type":"predicted","totalSecond":0},"text":"hey","tok_sec":4.2}]`
	if err := os.WriteFile(filepath.Join(dir, "Old.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	msgs, found, err := s.Load("Old")
	if err != nil || !found || len(msgs) != 2 {
		t.Fatalf("msgs=%v found=%v err=%v", msgs, found, err)
	}
	if msgs[1].Sender != chat.SenderAssistant || msgs[1].TokensPerSecond != 4.2 {
		t.Fatalf("legacy reply=%+v", msgs[1])
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "Bad.json"), []byte("{not json"), 0o644)
	s, _ := NewFileStore(dir)
	if _, _, err := s.Load("Bad"); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := s.Save("Bad", exchange("q", "a")); err == nil {
		t.Fatalf("save must not overwrite a corrupt transcript")
	}
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	msgs := exchange("q", "a")
	msgs[0].CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Save("Chat", msgs); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, found, err := s2.Load("Chat")
	if err != nil || !found {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(msgs, got); diff != "" {
		t.Fatalf("reloaded (-want +got):\n%s", diff)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}
