// Package chat answers free-text questions from a corpus of question/answer
// pairs: exact matches first, then the most similar known question.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/parrot/internal/artifact"
	"github.com/kalambet/parrot/internal/corpus"
	"github.com/kalambet/parrot/internal/neighbors"
	"github.com/kalambet/parrot/internal/vectorizer"
)

var (
	// ErrEmptyExample is returned when a question or answer is blank.
	ErrEmptyExample = errors.New("question and answer must not be empty")
	// ErrNoExamples is returned when training on an empty corpus.
	ErrNoExamples = errors.New("no chat examples to train on")
)

// DefaultFallback is returned when no answer is close enough.
const DefaultFallback = "Я не знаю, что ответить. Научите меня!"

// DefaultThreshold is the largest nearest-neighbour distance, exclusive, at
// which a similar question's answer is used.
const DefaultThreshold = 0.8

// Options configure a Responder.
type Options struct {
	ModelPath  string
	Threshold  float64
	Fallback   string
	Vectorizer vectorizer.Options
}

// DefaultOptions returns the 0.8 distance threshold and the default fallback.
// Document frequency pruning is disabled so a corpus with a single question
// still yields a vocabulary.
func DefaultOptions(modelPath string) Options {
	vo := vectorizer.DefaultOptions()
	vo.MaxDF = 1
	return Options{
		ModelPath:  modelPath,
		Threshold:  DefaultThreshold,
		Fallback:   DefaultFallback,
		Vectorizer: vo,
	}
}

// Kind tags how a response was produced.
type Kind int

const (
	// KindExact means the normalised query is a stored question.
	KindExact Kind = iota
	// KindSimilar means the nearest stored question is within the threshold.
	KindSimilar
	// KindFallback means nothing matched closely enough, or the model is
	// missing; Answer is the fallback sentence.
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindSimilar:
		return "similar"
	case KindFallback:
		return "fallback"
	}
	return "invalid"
}

// Response is the result of Respond.
type Response struct {
	Kind     Kind
	Answer   string
	Question string  // matched question, empty for fallback
	Distance float64 // nearest-neighbour distance, zero for exact matches
}

type model struct {
	vec       *vectorizer.Vectorizer
	index     *neighbors.Index
	trainedAt time.Time
}

type payload struct {
	Vectorizer vectorizer.State
	Entries    []neighbors.Entry
}

// Status summarises the responder.
type Status struct {
	IsTrained     bool      `json:"is_trained"`
	Examples      int       `json:"examples_count"`
	IndexedCount  int       `json:"indexed_count"`
	VocabSize     int       `json:"vocab_size"`
	TrainedAt     time.Time `json:"trained_at,omitzero"`
	DistanceLimit float64   `json:"distance_threshold"`
}

// Responder holds the example corpus and the similarity model. It is safe
// for concurrent use.
type Responder struct {
	opts  Options
	store *corpus.ChatStore

	trainMu sync.Mutex

	mu       sync.RWMutex
	examples map[string]string
	model    *model
}

// New loads the corpus and any saved model.
func New(opts Options, store *corpus.ChatStore) *Responder {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}
	r := &Responder{
		opts:     opts,
		store:    store,
		examples: store.Load(),
	}
	if o := r.Load(); o.OK() {
		slog.Info("chat model loaded", "path", opts.ModelPath, "saved_at", o.SavedAt)
	}
	return r
}

func (r *Responder) fingerprint() string {
	return vectorizer.New(r.opts.Vectorizer).Fingerprint()
}

// AddExample stores a question/answer pair and persists the corpus. It
// reports false without error when the normalised question already exists;
// the first answer is kept.
func (r *Responder) AddExample(question, answer string) (bool, error) {
	key := corpus.NormalizeQuestion(question)
	answer = strings.TrimSpace(answer)
	if key == "" || answer == "" {
		return false, ErrEmptyExample
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.examples[key]; ok {
		return false, nil
	}
	r.examples[key] = answer
	if err := r.store.Save(r.examples); err != nil {
		delete(r.examples, key)
		return false, fmt.Errorf("saving chat example: %w", err)
	}
	return true, nil
}

// Examples returns a copy of the corpus.
func (r *Responder) Examples() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.examples))
	for q, a := range r.examples {
		out[q] = a
	}
	return out
}

// Train fits the similarity model over every stored question and persists
// it. The previous model stays in place on failure.
func (r *Responder) Train(ctx context.Context) error {
	r.trainMu.Lock()
	defer r.trainMu.Unlock()

	examples := r.Examples()
	if len(examples) == 0 {
		return ErrNoExamples
	}
	questions := make([]string, 0, len(examples))
	for q := range examples {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	vec := vectorizer.New(r.opts.Vectorizer)
	if err := vec.Fit(ctx, questions); err != nil {
		return fmt.Errorf("fitting chat vectorizer: %w", err)
	}
	vecs, err := vec.TransformBatch(ctx, questions)
	if err != nil {
		return err
	}
	entries := make([]neighbors.Entry, len(questions))
	for i, q := range questions {
		entries[i] = neighbors.Entry{Question: q, Answer: examples[q], Vector: vecs[i]}
	}

	p := payload{Vectorizer: vec.State(), Entries: entries}
	if err := artifact.Save(r.opts.ModelPath, artifact.KindChat, r.fingerprint(), p); err != nil {
		return fmt.Errorf("saving chat model: %w", err)
	}

	m := &model{vec: vec, index: neighbors.Build(entries), trainedAt: time.Now().UTC()}
	r.mu.Lock()
	r.model = m
	r.mu.Unlock()

	slog.Info("chat model trained", "questions", len(questions), "vocabulary", vec.VocabularySize())
	return nil
}

// Respond answers query. It never fails; anything that goes wrong yields the
// fallback response.
func (r *Responder) Respond(query string) (resp Response) {
	fallback := Response{Kind: KindFallback, Answer: r.opts.Fallback}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("chat response failed", "error", rec)
			resp = fallback
		}
	}()

	key := corpus.NormalizeQuestion(query)
	r.mu.RLock()
	answer, exact := r.examples[key]
	m := r.model
	r.mu.RUnlock()

	if exact {
		return Response{Kind: KindExact, Answer: answer, Question: key}
	}
	if m == nil || key == "" {
		return fallback
	}

	matches := m.index.Nearest(m.vec.Transform(key), 1)
	if len(matches) == 0 {
		return fallback
	}
	best := matches[0]
	slog.Debug("chat nearest question", "query", key, "question", best.Question, "distance", best.Distance)
	if best.Distance < r.opts.Threshold {
		return Response{Kind: KindSimilar, Answer: best.Answer, Question: best.Question, Distance: best.Distance}
	}
	fallback.Distance = best.Distance
	return fallback
}

// GetResponse returns only the answer text of Respond.
func (r *Responder) GetResponse(query string) string {
	return r.Respond(query).Answer
}

// Load replaces the similarity model with the persisted one. A failed load
// leaves the responder without a model; exact matches keep working.
func (r *Responder) Load() artifact.Outcome {
	var p payload
	o := artifact.Load(r.opts.ModelPath, artifact.KindChat, r.fingerprint(), &p)

	var m *model
	if o.OK() {
		vec, err := vectorizer.FromState(p.Vectorizer)
		if err != nil {
			o = artifact.Outcome{Status: artifact.StatusCorrupt, Err: err}
		} else {
			m = &model{vec: vec, index: neighbors.Build(p.Entries), trainedAt: o.SavedAt}
		}
	}
	if !o.OK() && o.Status != artifact.StatusMissing {
		slog.Error("loading chat model", "path", r.opts.ModelPath, "status", o.Status, "error", o.Err)
	}

	r.mu.Lock()
	r.model = m
	r.mu.Unlock()
	return o
}

// Status reports corpus size and model state.
func (r *Responder) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Status{Examples: len(r.examples), DistanceLimit: r.opts.Threshold}
	if r.model != nil {
		s.IsTrained = true
		s.IndexedCount = r.model.index.Len()
		s.VocabSize = r.model.vec.VocabularySize()
		s.TrainedAt = r.model.trainedAt
	}
	return s
}
