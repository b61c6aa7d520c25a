// Package classifier maps free text to one of a set of learned labels using
// TF-IDF features and a random forest.
package classifier

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
	"github.com/kalambet/parrot/internal/forest"
	"github.com/kalambet/parrot/internal/vectorizer"
)

var (
	// ErrInsufficientData is returned when the corpus is too small or has too
	// few distinct labels to train on.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrLengthMismatch is returned when texts and labels differ in length.
	ErrLengthMismatch = errors.New("texts and labels differ in length")
	// ErrEmptyExample is returned when a training example has no text or label.
	ErrEmptyExample = errors.New("text and label must not be empty")
)

// Options configure an Engine.
type Options struct {
	ModelPath   string
	MinExamples int
	MinLabels   int
	Vectorizer  vectorizer.Options
	Forest      forest.Options
}

// DefaultOptions requires 20 examples across at least 2 labels.
func DefaultOptions(modelPath string) Options {
	return Options{
		ModelPath:   modelPath,
		MinExamples: 20,
		MinLabels:   2,
		Vectorizer:  vectorizer.DefaultOptions(),
		Forest:      forest.DefaultOptions(),
	}
}

// model is an immutable trained snapshot. It is swapped as a whole.
type model struct {
	vec       *vectorizer.Vectorizer
	forest    *forest.Forest
	labels    []string // index to label, sorted
	trainedAt time.Time
}

// payload is the persisted form of a model.
type payload struct {
	Vectorizer vectorizer.State
	Forest     forest.Forest
	Labels     []string
}

// Status summarises the engine for administrators.
type Status struct {
	IsTrained  bool      `json:"is_trained"`
	NumClasses int       `json:"num_classes"`
	VocabSize  int       `json:"vocab_size"`
	Examples   int       `json:"examples_count"`
	Labels     []string  `json:"labels"`
	TrainedAt  time.Time `json:"trained_at,omitzero"`
}

// Engine owns the current model and the training corpus. It is safe for
// concurrent use: predictions read a snapshot while training builds a new
// model outside the lock and swaps it in on success.
type Engine struct {
	opts  Options
	store *corpus.TrainingStore

	trainMu sync.Mutex

	mu    sync.RWMutex
	model *model
}

// New creates an engine backed by store and loads a previously saved model
// if one exists.
func New(opts Options, store *corpus.TrainingStore) *Engine {
	if opts.MinExamples < 1 {
		opts.MinExamples = DefaultOptions("").MinExamples
	}
	if opts.MinLabels < 2 {
		opts.MinLabels = 2
	}
	e := &Engine{opts: opts, store: store}
	if o := e.Load(); o.Status == artifact.StatusLoaded {
		slog.Info("classifier model loaded", "path", opts.ModelPath, "saved_at", o.SavedAt)
	}
	return e
}

func (e *Engine) fingerprint() string {
	return vectorizer.New(e.opts.Vectorizer).Fingerprint()
}

// Train fits a new model on texts and labels, persists it, and makes it
// current. On any failure the previous model stays in place.
func (e *Engine) Train(ctx context.Context, texts, labels []string) error {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	if len(texts) != len(labels) {
		return fmt.Errorf("%w: %d texts, %d labels", ErrLengthMismatch, len(texts), len(labels))
	}
	if len(texts) < e.opts.MinExamples {
		return fmt.Errorf("%w: %d examples, need at least %d", ErrInsufficientData, len(texts), e.opts.MinExamples)
	}
	index := labelIndex(labels)
	if len(index) < e.opts.MinLabels {
		return fmt.Errorf("%w: %d distinct labels, need at least %d", ErrInsufficientData, len(index), e.opts.MinLabels)
	}

	start := time.Now()
	vec := vectorizer.New(e.opts.Vectorizer)
	if err := vec.Fit(ctx, texts); err != nil {
		return fmt.Errorf("fitting vectorizer: %w", err)
	}
	vecs, err := vec.TransformBatch(ctx, texts)
	if err != nil {
		return err
	}
	dim := vec.VocabularySize()
	x := make([][]float64, len(vecs))
	for i, v := range vecs {
		x[i] = v.Dense(dim)
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = sortedPosition(index, l)
	}

	f, err := forest.Fit(ctx, x, y, len(index), e.opts.Forest)
	if err != nil {
		return fmt.Errorf("fitting forest: %w", err)
	}

	m := &model{vec: vec, forest: f, labels: index, trainedAt: time.Now().UTC()}
	p := payload{Vectorizer: vec.State(), Forest: *f, Labels: index}
	if err := artifact.Save(e.opts.ModelPath, artifact.KindClassifier, e.fingerprint(), p); err != nil {
		return fmt.Errorf("saving classifier model: %w", err)
	}

	e.mu.Lock()
	e.model = m
	e.mu.Unlock()

	slog.Info("classifier trained",
		"examples", len(texts),
		"labels", len(index),
		"vocabulary", dim,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// TrainFromCorpus trains on the stored corpus.
func (e *Engine) TrainFromCorpus(ctx context.Context) error {
	set := e.store.Load()
	return e.Train(ctx, set.Texts, set.Labels)
}

// labelIndex returns the distinct labels in lexicographic order. A label's
// position is its class index.
func labelIndex(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func sortedPosition(index []string, label string) int {
	return sort.SearchStrings(index, label)
}

// Predict classifies text. It never fails; problems are reported through the
// returned Prediction.
func (e *Engine) Predict(text string) (p Prediction) {
	e.mu.RLock()
	m := e.model
	e.mu.RUnlock()

	if m == nil {
		return Prediction{Kind: KindUntrained}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("prediction failed", "error", r)
			p = Prediction{Kind: KindError, Reason: fmt.Sprint(r)}
		}
	}()

	known := knownWords(m.vec, text)
	if len(known) == 0 {
		return Prediction{Kind: KindUnknown, Reason: ReasonNoKnownWords}
	}
	x := m.vec.Transform(strings.Join(known, " "))
	if x.IsZero() {
		return Prediction{Kind: KindUnknown, Reason: ReasonZeroVector}
	}

	class := m.forest.Predict(x.At)
	if class < 0 || class >= len(m.labels) {
		slog.Error("prediction out of label range", "class", class, "labels", len(m.labels))
		return Prediction{Kind: KindError, Reason: "class index out of range"}
	}
	slog.Debug("prediction", "known_words", known, "label", m.labels[class])
	return Prediction{Kind: KindLabel, Label: m.labels[class]}
}

// knownWords keeps the whitespace-separated words of text that contain at
// least one vocabulary token.
func knownWords(vec *vectorizer.Vectorizer, text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		for _, tok := range vec.Analyze(w) {
			if vec.Contains(tok) {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// AddTrainingData appends one example to the corpus. It does not retrain.
func (e *Engine) AddTrainingData(text, label string) error {
	text, label = strings.TrimSpace(text), strings.TrimSpace(label)
	if text == "" || label == "" {
		return ErrEmptyExample
	}
	if err := e.store.Append(text, label); err != nil {
		return fmt.Errorf("adding training data: %w", err)
	}
	return nil
}

// AddTrainingBatch appends several examples with a single write. Texts and
// labels are trimmed as in AddTrainingData; nothing is written if any
// example is blank.
func (e *Engine) AddTrainingBatch(texts, labels []string) error {
	if len(texts) != len(labels) {
		return fmt.Errorf("%w: %d texts, %d labels", ErrLengthMismatch, len(texts), len(labels))
	}
	cleanTexts := make([]string, len(texts))
	cleanLabels := make([]string, len(labels))
	for i := range texts {
		cleanTexts[i] = strings.TrimSpace(texts[i])
		cleanLabels[i] = strings.TrimSpace(labels[i])
		if cleanTexts[i] == "" || cleanLabels[i] == "" {
			return fmt.Errorf("example %d: %w", i, ErrEmptyExample)
		}
	}
	if err := e.store.AppendMany(cleanTexts, cleanLabels); err != nil {
		return fmt.Errorf("adding training data: %w", err)
	}
	return nil
}

// TrainingData returns the stored corpus.
func (e *Engine) TrainingData() corpus.TrainingSet {
	return e.store.Load()
}

// Sample returns the first n corpus rows, or all of them when the corpus is
// shorter. n <= 0 yields an empty set.
func (e *Engine) Sample(n int) corpus.TrainingSet {
	set := e.store.Load()
	n = max(0, min(n, set.Len()))
	return corpus.TrainingSet{
		Texts:  append([]string{}, set.Texts[:n]...),
		Labels: append([]string{}, set.Labels[:n]...),
	}
}

// Labels returns the label index of the current model in index order, or nil
// when untrained.
func (e *Engine) Labels() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return nil
	}
	return append([]string(nil), e.model.labels...)
}

// Load replaces the current model with the persisted one. Any failure
// leaves the engine untrained.
func (e *Engine) Load() artifact.Outcome {
	var p payload
	o := artifact.Load(e.opts.ModelPath, artifact.KindClassifier, e.fingerprint(), &p)

	var m *model
	if o.OK() {
		var err error
		m, err = restore(p)
		if err != nil {
			o = artifact.Outcome{Status: artifact.StatusCorrupt, Err: err}
		} else {
			m.trainedAt = o.SavedAt
		}
	}

	switch o.Status {
	case artifact.StatusLoaded, artifact.StatusMissing:
	default:
		slog.Error("loading classifier model", "path", e.opts.ModelPath, "status", o.Status, "error", o.Err)
	}

	e.mu.Lock()
	if o.OK() {
		e.model = m
	} else {
		e.model = nil
	}
	e.mu.Unlock()
	return o
}

func restore(p payload) (*model, error) {
	vec, err := vectorizer.FromState(p.Vectorizer)
	if err != nil {
		return nil, err
	}
	f := p.Forest
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("classifier model: %w", err)
	}
	if len(p.Labels) != f.NumClasses {
		return nil, fmt.Errorf("classifier model: %d labels for %d classes", len(p.Labels), f.NumClasses)
	}
	if f.NumFeatures != vec.VocabularySize() {
		return nil, fmt.Errorf("classifier model: forest expects %d features, vocabulary has %d", f.NumFeatures, vec.VocabularySize())
	}
	return &model{vec: vec, forest: &f, labels: p.Labels}, nil
}

// Status reports whether a model is loaded along with corpus statistics.
func (e *Engine) Status() Status {
	e.mu.RLock()
	m := e.model
	e.mu.RUnlock()

	set := e.store.Load()
	s := Status{Examples: set.Len()}
	if m != nil {
		s.IsTrained = true
		s.NumClasses = len(m.labels)
		s.VocabSize = m.vec.VocabularySize()
		s.Labels = append([]string(nil), m.labels...)
		s.TrainedAt = m.trainedAt
	}
	return s
}
