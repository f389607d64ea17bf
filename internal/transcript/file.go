package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"chatd/internal/chat"
	"chatd/internal/common/fsutil"
)

const fileExt = ".json"

// FileStore keeps each chat as a JSON array of messages in Dir.
type FileStore struct {
	Dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed. A leading ~ is expanded.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("transcript: directory is required")
	}
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(name string) string { return filepath.Join(s.Dir, name+fileExt) }

func (s *FileStore) read(name string) ([]chat.Message, bool, error) {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var msgs []chat.Message
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &msgs); err != nil {
			return nil, true, fmt.Errorf("transcript: decode %s: %w", s.path(name), err)
		}
	}
	return msgs, true, nil
}

func (s *FileStore) write(name string, msgs []chat.Message) error {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	b, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWriteFile(s.path(name), b, 0o644)
}

func (s *FileStore) Load(name string) ([]chat.Message, bool, error) {
	if err := chat.ValidateName(name); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(name)
}

func (s *FileStore) Save(name string, msgs []chat.Message) error {
	if err := chat.ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _, err := s.read(name)
	if err != nil {
		return err
	}
	return s.write(name, append(cur, msgs...))
}

func (s *FileStore) Clear(name string) error {
	if err := chat.ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(name, nil)
}

func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasSuffix(n, fileExt) || strings.HasPrefix(n, ".") {
			continue
		}
		out = append(out, strings.TrimSuffix(n, fileExt))
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) Delete(name string) error {
	if err := chat.ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrChatNotFound(name)
		}
		return err
	}
	return nil
}

func (s *FileStore) Duplicate(name string) (string, error) {
	if err := chat.ValidateName(name); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, found, err := s.read(name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrChatNotFound(name)
	}
	dup, err := copyName(name, func(n string) (bool, error) {
		return fsutil.PathExists(s.path(n)), nil
	})
	if err != nil {
		return "", err
	}
	if err := s.write(dup, msgs); err != nil {
		return "", err
	}
	return dup, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
