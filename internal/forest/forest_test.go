package forest

import (
	"context"
	"errors"
	"testing"
)

func row(vals ...float64) func(int) float64 {
	return func(i int) float64 { return vals[i] }
}

// separable: feature 0 marks class 0, feature 1 marks class 1.
func separable() ([][]float64, []int) {
	var x [][]float64
	var y []int
	for i := range 10 {
		noise := float64(i%3) * 0.01
		x = append(x, []float64{1, 0, noise})
		y = append(y, 0)
		x = append(x, []float64{0, 1, noise})
		y = append(y, 1)
	}
	return x, y
}

func TestFit_SeparableData(t *testing.T) {
	x, y := separable()
	opts := DefaultOptions()
	opts.Trees = 25
	f, err := Fit(context.Background(), x, y, 2, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got := f.Predict(row(1, 0, 0)); got != 0 {
		t.Errorf("Predict(class 0 row) = %d, want 0", got)
	}
	if got := f.Predict(row(0, 1, 0)); got != 1 {
		t.Errorf("Predict(class 1 row) = %d, want 1", got)
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFit_Deterministic(t *testing.T) {
	x, y := separable()
	opts := DefaultOptions()
	opts.Trees = 10
	a, err := Fit(context.Background(), x, y, 2, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fit(context.Background(), x, y, 2, opts)
	if err != nil {
		t.Fatal(err)
	}
	pa, pb := a.PredictProba(row(0.5, 0.5, 0)), b.PredictProba(row(0.5, 0.5, 0))
	for c := range pa {
		if pa[c] != pb[c] {
			t.Fatalf("proba differs between identical fits: %v vs %v", pa, pb)
		}
	}
}

func TestFit_RespectsMaxDepth(t *testing.T) {
	var x [][]float64
	var y []int
	for i := range 64 {
		x = append(x, []float64{float64(i)})
		y = append(y, i%2)
	}
	opts := DefaultOptions()
	opts.Trees = 5
	opts.MaxDepth = 3
	f, err := Fit(context.Background(), x, y, 2, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := range f.Trees {
		if d := f.Trees[i].Depth(); d > 3 {
			t.Errorf("tree %d depth = %d, want <= 3", i, d)
		}
	}
}

func TestFit_InvalidInput(t *testing.T) {
	cases := []struct {
		name string
		x    [][]float64
		y    []int
	}{
		{"empty", nil, nil},
		{"length mismatch", [][]float64{{1}}, []int{0, 1}},
		{"ragged", [][]float64{{1}, {1, 2}}, []int{0, 1}},
		{"label out of range", [][]float64{{1}}, []int{5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Fit(context.Background(), tc.x, tc.y, 2, DefaultOptions())
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFit_Cancelled(t *testing.T) {
	x, y := separable()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Fit(ctx, x, y, 2, DefaultOptions()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestClassWeights_Balanced(t *testing.T) {
	w := classWeights([]int{0, 0, 0, 1}, 2, true)
	// n / (k * count): 4/(2*3) and 4/(2*1)
	if w[0] < 0.666 || w[0] > 0.667 || w[1] != 2 {
		t.Errorf("weights = %v", w)
	}
}

func TestValidate_RejectsBrokenTree(t *testing.T) {
	f := &Forest{NumClasses: 2, NumFeatures: 1, Trees: []Tree{{
		Feature:   []int{0},
		Threshold: []float64{0.5},
		Left:      []int{-1},
		Right:     []int{-1},
		Value:     [][]float64{nil},
	}}}
	if err := f.Validate(); err == nil {
		t.Error("expected validation error for split node without children")
	}
}
