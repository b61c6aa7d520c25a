package corpus

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// NormalizeQuestion lowercases q, trims it and collapses inner whitespace.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// ChatStore reads and writes the question to answer mapping. It is safe for
// concurrent use within a process.
type ChatStore struct {
	mu   sync.Mutex
	path string
}

// NewChatStore returns a store for the JSON object at path.
func NewChatStore(path string) *ChatStore {
	return &ChatStore{path: path}
}

// answer accepts either a string or a list of strings; older corpora stored
// several answers per question and the first one wins.
type answer string

func (a *answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = answer(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*a = answer(list[0])
	}
	return nil
}

// Load returns the stored examples keyed by normalised question. A missing
// or malformed file yields an empty map.
func (s *ChatStore) Load() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out
	}
	if err != nil {
		slog.Warn("reading chat corpus", "path", s.path, "error", err)
		return out
	}
	var raw map[string]answer
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("malformed chat corpus, starting empty", "path", s.path, "error", err)
		return out
	}
	for q, a := range raw {
		key := NormalizeQuestion(q)
		if key == "" || a == "" {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = string(a)
		}
	}
	return out
}

// Save overwrites the file with examples.
func (s *ChatStore) Save(examples map[string]string) error {
	if examples == nil {
		examples = map[string]string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path, examples)
}
