// Package vectorizer turns free text into TF-IDF weighted bag-of-n-gram
// vectors.
package vectorizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoDocuments is returned when Fit receives no texts.
	ErrNoDocuments = errors.New("no documents to fit")
	// ErrEmptyVocabulary is returned when document frequency pruning or
	// stop words leave no terms.
	ErrEmptyVocabulary = errors.New("empty vocabulary; documents may contain only stop words")
	// ErrNotFitted is returned by operations that need a vocabulary.
	ErrNotFitted = errors.New("vectorizer is not fitted")
)

// DefaultStopWords are removed before n-grams are formed.
var DefaultStopWords = []string{"это", "все", "такие", "тоже", "очень"}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Options control tokenization and vocabulary pruning.
type Options struct {
	MinN      int
	MaxN      int
	MinDF     int
	MaxDF     float64 // ratio of documents; terms above it are dropped
	StopWords []string
}

// DefaultOptions returns unigrams through trigrams, min_df 1, max_df 0.95 and
// the Russian stop word list.
func DefaultOptions() Options {
	return Options{
		MinN:      1,
		MaxN:      3,
		MinDF:     1,
		MaxDF:     0.95,
		StopWords: append([]string(nil), DefaultStopWords...),
	}
}

// Vectorizer is a TF-IDF transformer. It is not safe to Fit concurrently with
// other calls; a fitted Vectorizer is safe for concurrent Transform.
type Vectorizer struct {
	opts  Options
	stop  map[string]struct{}
	vocab map[string]int
	idf   []float64
}

// New creates an unfitted vectorizer.
func New(opts Options) *Vectorizer {
	if opts.MinN < 1 {
		opts.MinN = 1
	}
	if opts.MaxN < opts.MinN {
		opts.MaxN = opts.MinN
	}
	if opts.MinDF < 1 {
		opts.MinDF = 1
	}
	if opts.MaxDF <= 0 || opts.MaxDF > 1 {
		opts.MaxDF = 1
	}
	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Vectorizer{opts: opts, stop: stop}
}

// Options returns the configuration the vectorizer was built with.
func (v *Vectorizer) Options() Options { return v.opts }

// Fitted reports whether a vocabulary has been learned.
func (v *Vectorizer) Fitted() bool { return len(v.vocab) > 0 }

// VocabularySize returns the number of learned terms.
func (v *Vectorizer) VocabularySize() int { return len(v.vocab) }

// Contains reports whether term is in the learned vocabulary.
func (v *Vectorizer) Contains(term string) bool {
	_, ok := v.vocab[term]
	return ok
}

// Analyze lowercases text and returns its word tokens with stop words removed.
func (v *Vectorizer) Analyze(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, skip := v.stop[t]; skip {
			continue
		}
		out = append(out, t)
	}
	return out
}

// terms returns every n-gram of text in the configured range.
func (v *Vectorizer) terms(text string) []string {
	tokens := v.Analyze(text)
	var out []string
	for n := v.opts.MinN; n <= v.opts.MaxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// Fit learns the vocabulary and inverse document frequencies from texts,
// replacing any previous state.
func (v *Vectorizer) Fit(ctx context.Context, texts []string) error {
	if len(texts) == 0 {
		return ErrNoDocuments
	}

	df := make(map[string]int)
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, term := range v.terms(text) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	n := len(texts)
	maxCount := v.opts.MaxDF * float64(n)
	kept := make([]string, 0, len(df))
	for term, count := range df {
		if count < v.opts.MinDF || float64(count) > maxCount {
			continue
		}
		kept = append(kept, term)
	}
	if len(kept) == 0 {
		return ErrEmptyVocabulary
	}
	sort.Strings(kept)

	vocab := make(map[string]int, len(kept))
	idf := make([]float64, len(kept))
	for i, term := range kept {
		vocab[term] = i
		idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	v.vocab = vocab
	v.idf = idf

	slog.Debug("vectorizer fitted", "documents", n, "terms", len(df), "vocabulary", len(kept))
	return nil
}

// Transform returns the L2-normalised TF-IDF vector of text. Terms outside the
// vocabulary contribute nothing, so the result may be the zero vector.
func (v *Vectorizer) Transform(text string) Vector {
	if !v.Fitted() {
		return Vector{}
	}
	counts := make(map[int]float64)
	for _, term := range v.terms(text) {
		if idx, ok := v.vocab[term]; ok {
			counts[idx]++
		}
	}
	vec := Vector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)

	var sum float64
	for _, idx := range vec.Indices {
		w := counts[idx] * v.idf[idx]
		vec.Values = append(vec.Values, w)
		sum += w * w
	}
	if sum > 0 {
		norm := math.Sqrt(sum)
		for i := range vec.Values {
			vec.Values[i] /= norm
		}
	}
	return vec
}

// TransformBatch transforms texts concurrently, preserving order.
func (v *Vectorizer) TransformBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if !v.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([]Vector, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range texts {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = v.Transform(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transforming batch: %w", err)
	}
	return out, nil
}

// Fingerprint identifies the tokenization configuration. Persisted models
// built with a different fingerprint cannot be reused.
func (v *Vectorizer) Fingerprint() string {
	stop := append([]string(nil), v.opts.StopWords...)
	sort.Strings(stop)
	h := sha256.New()
	fmt.Fprintf(h, "ngram=%d-%d;min_df=%d;max_df=%g;token=%s;stop=%s",
		v.opts.MinN, v.opts.MaxN, v.opts.MinDF, v.opts.MaxDF, tokenRe.String(), strings.Join(stop, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
