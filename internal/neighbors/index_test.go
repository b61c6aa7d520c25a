package neighbors

import (
	"math"
	"testing"

	"github.com/kalambet/parrot/internal/vectorizer"
)

func vec(pairs ...float64) vectorizer.Vector {
	var v vectorizer.Vector
	for i := 0; i < len(pairs); i += 2 {
		v.Indices = append(v.Indices, int(pairs[i]))
		v.Values = append(v.Values, pairs[i+1])
	}
	return v
}

func TestNearest_OrdersByDistance(t *testing.T) {
	idx := Build([]Entry{
		{Question: "a", Answer: "A", Vector: vec(0, 1)},
		{Question: "b", Answer: "B", Vector: vec(1, 1)},
		{Question: "c", Answer: "C", Vector: vec(0, 0.6, 1, 0.8)},
	})

	got := idx.Nearest(vec(1, 1), 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Question != "b" || got[0].Distance > 1e-9 {
		t.Errorf("first = %q at %f, want b at 0", got[0].Question, got[0].Distance)
	}
	if got[1].Question != "c" {
		t.Errorf("second = %q, want c", got[1].Question)
	}
	if want := math.Sqrt(2); math.Abs(got[2].Distance-want) > 1e-9 {
		t.Errorf("orthogonal unit vectors distance = %f, want %f", got[2].Distance, want)
	}
}

func TestNearest_TopK(t *testing.T) {
	idx := Build([]Entry{
		{Question: "a", Vector: vec(0, 1)},
		{Question: "b", Vector: vec(1, 1)},
	})
	got := idx.Nearest(vec(0, 1), 1)
	if len(got) != 1 || got[0].Question != "a" {
		t.Fatalf("Nearest = %+v, want [a]", got)
	}
}

func TestNearest_TieKeepsInsertionOrder(t *testing.T) {
	idx := Build([]Entry{
		{Question: "first", Vector: vec(0, 1)},
		{Question: "second", Vector: vec(0, 1)},
	})
	got := idx.Nearest(vec(0, 1), 1)
	if got[0].Question != "first" {
		t.Errorf("tie winner = %q, want first", got[0].Question)
	}
}

func TestNearest_ZeroQuery(t *testing.T) {
	idx := Build([]Entry{{Question: "a", Vector: vec(0, 1)}})
	got := idx.Nearest(vectorizer.Vector{}, 1)
	if len(got) != 1 || math.Abs(got[0].Distance-1) > 1e-9 {
		t.Errorf("zero query distance = %+v, want 1", got)
	}
}

func TestNearest_Empty(t *testing.T) {
	if got := Build(nil).Nearest(vec(0, 1), 1); got != nil {
		t.Errorf("Nearest on empty index = %+v, want nil", got)
	}
}
