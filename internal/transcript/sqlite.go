package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatd/internal/chat"
	"chatd/internal/common/fsutil"
)

// SQLiteStore keeps all chats in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "chatd.db"
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("transcript: ensure directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return fmt.Errorf("transcript: configure database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			name TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			chat TEXT NOT NULL,
			id TEXT NOT NULL,
			sender TEXT NOT NULL,
			state TEXT NOT NULL,
			total_seconds REAL NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			tok_sec REAL NOT NULL DEFAULT 0,
			header TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat, seq);
	`); err != nil {
		return fmt.Errorf("transcript: create tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) exists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, name string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) Load(name string) ([]chat.Message, bool, error) {
	if err := chat.ValidateName(name); err != nil {
		return nil, false, err
	}
	ctx := context.Background()
	found, err := s.exists(ctx, s.db, name)
	if err != nil || !found {
		return nil, false, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, state, total_seconds, text, tok_sec, header, created_at
		FROM messages WHERE chat = ? ORDER BY seq`, name)
	if err != nil {
		return nil, true, fmt.Errorf("transcript: query %s: %w", name, err)
	}
	defer rows.Close()
	var out []chat.Message
	for rows.Next() {
		var (
			m       chat.Message
			sender  string
			state   string
			total   float64
			created int64
		)
		if err := rows.Scan(&m.ID, &sender, &state, &total, &m.Text, &m.TokensPerSecond, &m.Header, &created); err != nil {
			return nil, true, err
		}
		m.Sender = decodeSender(sender)
		m.State = decodeState(state, total)
		if created != 0 {
			m.CreatedAt = time.Unix(0, created).UTC()
		}
		out = append(out, m)
	}
	return out, true, rows.Err()
}

func decodeSender(s string) chat.Sender {
	if s == string(chat.SenderUser) {
		return chat.SenderUser
	}
	return chat.SenderAssistant
}

func decodeState(kind string, total float64) chat.State {
	switch k := chat.StateKind(kind); k {
	case chat.StateTyped, chat.StatePredicting, chat.StateError:
		return chat.State{Kind: k}
	case chat.StatePredicted:
		return chat.State{Kind: k, TotalSeconds: total}
	default:
		return chat.State{Kind: chat.StateNone}
	}
}

func ensureChat(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO chats (name, created_at) VALUES (?, ?)`, name, time.Now().UnixNano())
	return err
}

func (s *SQLiteStore) Save(name string, msgs []chat.Message) error {
	if err := chat.ValidateName(name); err != nil {
		return err
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ensureChat(ctx, tx, name); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (chat, id, sender, state, total_seconds, text, tok_sec, header, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range msgs {
		kind := m.State.Kind
		if kind == "" {
			kind = chat.StateNone
		}
		var created int64
		if !m.CreatedAt.IsZero() {
			created = m.CreatedAt.UnixNano()
		}
		if _, err := stmt.ExecContext(ctx, name, m.ID, string(m.Sender), string(kind), m.State.TotalSeconds, m.Text, m.TokensPerSecond, m.Header, created); err != nil {
			return fmt.Errorf("transcript: insert message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Clear(name string) error {
	if err := chat.ValidateName(name); err != nil {
		return err
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ensureChat(ctx, tx, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM chats ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(name string) error {
	if err := chat.ValidateName(name); err != nil {
		return err
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound(name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Duplicate(name string) (string, error) {
	if err := chat.ValidateName(name); err != nil {
		return "", err
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	found, err := s.exists(ctx, tx, name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrChatNotFound(name)
	}
	dup, err := copyName(name, func(n string) (bool, error) { return s.exists(ctx, tx, n) })
	if err != nil {
		return "", err
	}
	if err := ensureChat(ctx, tx, dup); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (chat, id, sender, state, total_seconds, text, tok_sec, header, created_at)
		SELECT ?, id, sender, state, total_seconds, text, tok_sec, header, created_at
		FROM messages WHERE chat = ? ORDER BY seq`, dup, name); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return dup, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
