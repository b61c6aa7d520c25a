package forest

import (
	"math"
	"math/rand/v2"
	"sort"
)

const leaf = -1

// Tree is a binary decision tree stored as flat arrays. Node 0 is the root.
// For internal nodes Feature >= 0 and samples with x[Feature] <= Threshold go
// Left. Leaves carry a normalised class distribution in Value.
type Tree struct {
	Feature   []int
	Threshold []float64
	Left      []int
	Right     []int
	Value     [][]float64
}

func (t *Tree) addNode() int {
	t.Feature = append(t.Feature, leaf)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, leaf)
	t.Right = append(t.Right, leaf)
	t.Value = append(t.Value, nil)
	return len(t.Feature) - 1
}

// Leaf returns the class distribution of the leaf x falls into.
func (t *Tree) Leaf(x func(int) float64) []float64 {
	node := 0
	for t.Feature[node] != leaf {
		if x(t.Feature[node]) <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(node int) int
	walk = func(node int) int {
		if t.Feature[node] == leaf {
			return 0
		}
		return 1 + max(walk(t.Left[node]), walk(t.Right[node]))
	}
	if len(t.Feature) == 0 {
		return 0
	}
	return walk(0)
}

// builder grows one tree on a weighted sample.
type builder struct {
	x           [][]float64
	y           []int
	w           []float64 // per-sample weight; zero means out of bag
	numClasses  int
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
	tree        *Tree
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *builder) distribution(samples []int) ([]float64, float64) {
	dist := make([]float64, b.numClasses)
	var total float64
	for _, s := range samples {
		dist[b.y[s]] += b.w[s]
		total += b.w[s]
	}
	return dist, total
}

func gini(dist []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	sum := 1.0
	for _, c := range dist {
		p := c / total
		sum -= p * p
	}
	return sum
}

func (b *builder) grow(samples []int, depth int) int {
	node := b.tree.addNode()
	dist, total := b.distribution(samples)

	impurity := gini(dist, total)
	if depth >= b.maxDepth || len(samples) < 2 || impurity == 0 {
		b.setLeaf(node, dist, total)
		return node
	}

	best, ok := b.bestSplit(samples, impurity, total)
	if !ok {
		b.setLeaf(node, dist, total)
		return node
	}

	var left, right []int
	for _, s := range samples {
		if b.x[s][best.feature] <= best.threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	b.tree.Feature[node] = best.feature
	b.tree.Threshold[node] = best.threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

func (b *builder) setLeaf(node int, dist []float64, total float64) {
	if total > 0 {
		for i := range dist {
			dist[i] /= total
		}
	}
	b.tree.Value[node] = dist
}

// bestSplit draws candidate features in random order and evaluates them until
// maxFeatures non-constant ones have been tried. Constant features do not
// count toward the budget.
func (b *builder) bestSplit(samples []int, parentImpurity, total float64) (split, bool) {
	numFeatures := len(b.x[samples[0]])
	order := b.rng.Perm(numFeatures)

	best := split{feature: -1}
	tried := 0
	vals := make([]float64, len(samples))
	idx := make([]int, len(samples))

	for _, f := range order {
		if tried >= b.maxFeatures {
			break
		}
		for i, s := range samples {
			vals[i] = b.x[s][f]
			idx[i] = i
		}
		sort.Slice(idx, func(a, c int) bool { return vals[idx[a]] < vals[idx[c]] })
		if vals[idx[0]] == vals[idx[len(idx)-1]] {
			continue
		}
		tried++

		leftDist := make([]float64, b.numClasses)
		rightDist, _ := b.distribution(samples)
		var leftTotal float64
		rightTotal := total

		for k := 0; k < len(idx)-1; k++ {
			s := samples[idx[k]]
			leftDist[b.y[s]] += b.w[s]
			rightDist[b.y[s]] -= b.w[s]
			leftTotal += b.w[s]
			rightTotal -= b.w[s]

			cur, next := vals[idx[k]], vals[idx[k+1]]
			if cur == next {
				continue
			}
			if leftTotal <= 0 || rightTotal <= 0 {
				continue
			}
			child := (leftTotal*gini(leftDist, leftTotal) + rightTotal*gini(rightDist, rightTotal)) / total
			gain := parentImpurity - child
			if gain > best.gain+1e-12 {
				threshold := cur + (next-cur)/2
				if threshold == next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, gain: gain}
			}
		}
	}
	if best.feature < 0 || math.IsNaN(best.gain) {
		return best, false
	}
	return best, true
}
