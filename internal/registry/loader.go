package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// GGUFScanner builds a registry from *.gguf files in a directory.
type GGUFScanner struct{}

func NewGGUFScanner() GGUFScanner { return GGUFScanner{} }

// Scan lists *.gguf files (case-insensitive) in dir, sorted by ID. ID is the
// full filename; Path is absolute; Quant is guessed from the filename; size
// and modification time come from the directory entry.
func (GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.Model{
			ID:    name,
			Name:  strings.TrimSuffix(name, filepath.Ext(name)),
			Path:  filepath.Join(abs, name),
			Quant: guessQuant(name),
		}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
			m.Modified = info.ModTime()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with a GGUFScanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// Find returns the model whose ID or Name equals id.
func Find(models []types.Model, id string) (types.Model, bool) {
	for _, m := range models {
		if m.ID == id || m.Name == id {
			return m, true
		}
	}
	return types.Model{}, false
}

// guessQuant picks a quantization tag like Q4_K_M or F16 out of a filename.
func guessQuant(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.FieldsFunc(stem, func(r rune) bool { return r == '.' || r == '-' })
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.ToUpper(parts[i])
		if len(p) >= 2 && (p[0] == 'Q' || p[0] == 'F') && p[1] >= '0' && p[1] <= '9' {
			return p
		}
	}
	return ""
}
