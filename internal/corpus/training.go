// Package corpus stores the labelled training corpus and the chat
// question/answer corpus as JSON files.
package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// TrainingSet is the classification corpus. Texts[i] carries Labels[i].
type TrainingSet struct {
	Texts  []string `json:"texts"`
	Labels []string `json:"labels"`
}

// Len returns the number of examples.
func (s TrainingSet) Len() int { return len(s.Texts) }

// DistinctLabels returns the number of different labels.
func (s TrainingSet) DistinctLabels() int {
	seen := make(map[string]struct{}, len(s.Labels))
	for _, l := range s.Labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// TrainingStore reads and writes a TrainingSet at a fixed path. Every write
// replaces the whole file. It is safe for concurrent use within a process.
type TrainingStore struct {
	mu   sync.Mutex
	path string
}

// NewTrainingStore returns a store for the JSON document at path.
func NewTrainingStore(path string) *TrainingStore {
	return &TrainingStore{path: path}
}

// Load returns the stored corpus. A missing or malformed file yields an empty
// set; malformed files are logged.
func (s *TrainingStore) Load() TrainingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *TrainingStore) load() TrainingSet {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return TrainingSet{}
	}
	if err != nil {
		slog.Warn("reading training corpus", "path", s.path, "error", err)
		return TrainingSet{}
	}
	var set TrainingSet
	if err := json.Unmarshal(data, &set); err != nil {
		slog.Warn("malformed training corpus, starting empty", "path", s.path, "error", err)
		return TrainingSet{}
	}
	if len(set.Texts) != len(set.Labels) {
		slog.Warn("training corpus texts and labels differ in length, starting empty",
			"path", s.path, "texts", len(set.Texts), "labels", len(set.Labels))
		return TrainingSet{}
	}
	return set
}

// Append adds one example and rewrites the file. Duplicates are kept.
func (s *TrainingStore) Append(text, label string) error {
	return s.AppendMany([]string{text}, []string{label})
}

// AppendMany adds several examples with one rewrite.
func (s *TrainingStore) AppendMany(texts, labels []string) error {
	if len(texts) != len(labels) {
		return fmt.Errorf("appending examples: %d texts but %d labels", len(texts), len(labels))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.load()
	set.Texts = append(set.Texts, texts...)
	set.Labels = append(set.Labels, labels...)
	return s.save(set)
}

// Save overwrites the file with set.
func (s *TrainingStore) Save(set TrainingSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(set)
}

func (s *TrainingStore) save(set TrainingSet) error {
	if set.Texts == nil {
		set.Texts = []string{}
	}
	if set.Labels == nil {
		set.Labels = []string{}
	}
	return writeJSON(s.path, set)
}

// writeJSON replaces path with the indented encoding of v via a temp file
// in the same directory, so readers see either the old or the new document.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating corpus directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
