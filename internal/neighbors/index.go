// Package neighbors provides brute-force nearest-neighbour search over sparse
// TF-IDF vectors.
package neighbors

import (
	"container/heap"
	"math"
	"sort"

	"github.com/kalambet/parrot/internal/vectorizer"
)

// Entry is an indexed question with its answer.
type Entry struct {
	Question string
	Answer   string
	Vector   vectorizer.Vector
}

// Match is a search hit. Distance is Euclidean.
type Match struct {
	Entry
	Distance float64
}

// Index holds entries and their precomputed squared norms.
type Index struct {
	entries []Entry
	sqNorms []float64
}

// Build creates an index over entries.
func Build(entries []Entry) *Index {
	idx := &Index{
		entries: append([]Entry(nil), entries...),
		sqNorms: make([]float64, len(entries)),
	}
	for i, e := range idx.entries {
		n := e.Vector.Norm()
		idx.sqNorms[i] = n * n
	}
	return idx
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Nearest returns up to k entries closest to query, nearest first. Ties keep
// insertion order.
func (idx *Index) Nearest(query vectorizer.Vector, k int) []Match {
	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}
	qn := query.Norm()
	qsq := qn * qn

	h := &matchHeap{}
	heap.Init(h)
	for i, e := range idx.entries {
		d := distance(qsq, idx.sqNorms[i], vectorizer.Dot(query, e.Vector))
		if h.Len() < k {
			heap.Push(h, candidate{pos: i, dist: d})
		} else if d < (*h)[0].dist {
			(*h)[0] = candidate{pos: i, dist: d}
			heap.Fix(h, 0)
		}
	}

	out := make([]candidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].dist == out[b].dist {
			return out[a].pos < out[b].pos
		}
		return out[a].dist < out[b].dist
	})

	matches := make([]Match, len(out))
	for i, c := range out {
		matches[i] = Match{Entry: idx.entries[c.pos], Distance: c.dist}
	}
	return matches
}

// distance derives ||a-b|| from squared norms and the inner product.
func distance(aSq, bSq, dot float64) float64 {
	d := aSq + bSq - 2*dot
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d)
}

type candidate struct {
	pos  int
	dist float64
}

// matchHeap is a max-heap on distance so the worst of the current top-K sits
// at the root.
type matchHeap []candidate

func (h matchHeap) Len() int { return len(h) }
func (h matchHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].pos > h[j].pos
	}
	return h[i].dist > h[j].dist
}
func (h matchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
