package vectorizer

import "fmt"

// State is the serialisable form of a fitted vectorizer.
type State struct {
	Options Options
	Terms   []string // ordered by feature index
	IDF     []float64
}

// State exports the fitted vocabulary.
func (v *Vectorizer) State() State {
	terms := make([]string, len(v.vocab))
	for term, idx := range v.vocab {
		terms[idx] = term
	}
	return State{
		Options: v.opts,
		Terms:   terms,
		IDF:     append([]float64(nil), v.idf...),
	}
}

// FromState restores a vectorizer from exported state.
func FromState(s State) (*Vectorizer, error) {
	if len(s.Terms) != len(s.IDF) {
		return nil, fmt.Errorf("vectorizer state: %d terms but %d idf weights", len(s.Terms), len(s.IDF))
	}
	v := New(s.Options)
	v.vocab = make(map[string]int, len(s.Terms))
	for i, term := range s.Terms {
		if _, dup := v.vocab[term]; dup {
			return nil, fmt.Errorf("vectorizer state: duplicate term %q", term)
		}
		v.vocab[term] = i
	}
	v.idf = append([]float64(nil), s.IDF...)
	return v, nil
}
