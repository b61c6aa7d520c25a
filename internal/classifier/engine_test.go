package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kalambet/parrot/internal/artifact"
	"github.com/kalambet/parrot/internal/corpus"
)

var (
	greetings = []string{
		"привет", "здравствуй", "добрый день", "хай", "приветствую", "здравствуйте",
		"добрый вечер", "доброе утро", "привет друг", "здорово", "салют", "хеллоу",
	}
	farewells = []string{
		"пока", "до свидания", "увидимся", "прощай", "до встречи", "всего доброго",
		"пока друг", "до завтра", "счастливо", "бывай", "до скорого", "хорошего дня",
	}
)

func scenario() (texts, labels []string) {
	for _, g := range greetings {
		texts = append(texts, g)
		labels = append(labels, "greeting")
	}
	for _, f := range farewells {
		texts = append(texts, f)
		labels = append(labels, "farewell")
	}
	return texts, labels
}

func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	opts := DefaultOptions(filepath.Join(dir, "model", "model.bin"))
	opts.Forest.Trees = 60
	return New(opts, corpus.NewTrainingStore(filepath.Join(dir, "training_data.json")))
}

func trainedEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	e := newTestEngine(t, dir)
	texts, labels := scenario()
	if err := e.Train(context.Background(), texts, labels); err != nil {
		t.Fatalf("Train: %v", err)
	}
	return e
}

func TestPredict_Untrained(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	p := e.Predict("привет")
	if p.Kind != KindUntrained {
		t.Fatalf("Kind = %s, want untrained", p.Kind)
	}
	if p.String() != MessageUntrained {
		t.Errorf("String = %q, want %q", p.String(), MessageUntrained)
	}
}

func TestTrainAndPredict_GreetingsScenario(t *testing.T) {
	e := trainedEngine(t, t.TempDir())

	cases := map[string]string{
		"привет":      "greeting",
		"Привет!":     "greeting",
		"добрый день": "greeting",
		"пока":        "farewell",
		"до свидания": "farewell",
	}
	for text, want := range cases {
		p := e.Predict(text)
		if p.Kind != KindLabel || p.Label != want {
			t.Errorf("Predict(%q) = %+v, want label %q", text, p, want)
		}
	}
}

func TestPredict_UnknownWords(t *testing.T) {
	e := trainedEngine(t, t.TempDir())

	for _, text := range []string{"абракадабра", "", "   ", "это очень"} {
		p := e.Predict(text)
		if p.Kind != KindUnknown {
			t.Errorf("Predict(%q).Kind = %s, want unknown", text, p.Kind)
		}
		if p.String() != MessageUnknown {
			t.Errorf("Predict(%q).String = %q, want %q", text, p.String(), MessageUnknown)
		}
	}

	p := e.Predict("абракадабра привет")
	if p.Kind != KindLabel || p.Label != "greeting" {
		t.Errorf("unknown words should be dropped before classifying, got %+v", p)
	}
}

func TestTrain_InsufficientData(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	texts, labels := scenario()

	err := e.Train(context.Background(), texts[:5], labels[:5])
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("few examples: error = %v, want ErrInsufficientData", err)
	}

	single := make([]string, len(texts))
	for i := range single {
		single[i] = "greeting"
	}
	if err := e.Train(context.Background(), texts, single); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("one label: error = %v, want ErrInsufficientData", err)
	}

	if err := e.Train(context.Background(), texts, labels[:3]); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("mismatch: error = %v, want ErrLengthMismatch", err)
	}

	if e.Status().IsTrained {
		t.Error("failed training must not mark the engine trained")
	}
}

func TestTrain_FailureKeepsPreviousModel(t *testing.T) {
	e := trainedEngine(t, t.TempDir())
	before := e.Status()

	texts, labels := scenario()
	if err := e.Train(context.Background(), texts[:3], labels[:3]); err == nil {
		t.Fatal("expected training failure")
	}

	after := e.Status()
	if !after.IsTrained || after.VocabSize != before.VocabSize || after.NumClasses != before.NumClasses {
		t.Errorf("status changed after failed train: before %+v, after %+v", before, after)
	}
	if p := e.Predict("привет"); p.Label != "greeting" {
		t.Errorf("Predict after failed train = %+v", p)
	}
}

func TestTrain_SaveFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions(filepath.Join(blocker, "model.bin"))
	opts.Forest.Trees = 5
	e := New(opts, corpus.NewTrainingStore(filepath.Join(dir, "t.json")))

	texts, labels := scenario()
	if err := e.Train(context.Background(), texts, labels); err == nil {
		t.Fatal("expected error when the model cannot be saved")
	}
	if e.Status().IsTrained {
		t.Error("engine should stay untrained when persisting fails")
	}
}

func TestStatus_SortedLabelIndex(t *testing.T) {
	e := trainedEngine(t, t.TempDir())
	s := e.Status()
	if !s.IsTrained || s.NumClasses != 2 || s.VocabSize == 0 {
		t.Fatalf("Status = %+v", s)
	}
	if s.Labels[0] != "farewell" || s.Labels[1] != "greeting" {
		t.Errorf("Labels = %v, want lexicographic order", s.Labels)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	trained := trainedEngine(t, dir)

	reloaded := newTestEngine(t, dir)
	if !reloaded.Status().IsTrained {
		t.Fatal("fresh engine should load the saved model")
	}
	inputs := append(append([]string{}, greetings...), farewells...)
	inputs = append(inputs, "абракадабра", "привет пока", "добрый")
	for _, text := range inputs {
		a, b := trained.Predict(text), reloaded.Predict(text)
		if a != b {
			t.Errorf("Predict(%q): trained %+v, reloaded %+v", text, a, b)
		}
	}
}

func TestLoad_CorruptArtifactLeavesUntrained(t *testing.T) {
	dir := t.TempDir()
	e := trainedEngine(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "model", "model.bin"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := e.Load()
	if o.Status != artifact.StatusCorrupt {
		t.Errorf("Load status = %s, want corrupt", o.Status)
	}
	if p := e.Predict("привет"); p.Kind != KindUntrained {
		t.Errorf("Predict after failed load = %+v, want untrained", p)
	}
}

func TestLoad_IncompatibleConfiguration(t *testing.T) {
	dir := t.TempDir()
	trainedEngine(t, dir)

	opts := DefaultOptions(filepath.Join(dir, "model", "model.bin"))
	opts.Vectorizer.MaxN = 1
	e := New(opts, corpus.NewTrainingStore(filepath.Join(dir, "training_data.json")))
	if e.Status().IsTrained {
		t.Error("model fitted with another vectorizer configuration must not load")
	}
	if o := e.Load(); o.Status != artifact.StatusIncompatible {
		t.Errorf("Load status = %s, want incompatible", o.Status)
	}
}

func TestAddTrainingData_AndTrainFromCorpus(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	texts, labels := scenario()
	for i := range texts {
		if err := e.AddTrainingData(texts[i], labels[i]); err != nil {
			t.Fatalf("AddTrainingData: %v", err)
		}
	}
	if err := e.AddTrainingData(texts[0], labels[0]); err != nil {
		t.Fatalf("duplicate AddTrainingData: %v", err)
	}
	if err := e.AddTrainingData(" ", "greeting"); !errors.Is(err, ErrEmptyExample) {
		t.Errorf("blank text error = %v, want ErrEmptyExample", err)
	}

	if got := e.Status().Examples; got != len(texts)+1 {
		t.Errorf("Examples = %d, want %d (duplicates kept)", got, len(texts)+1)
	}
	if err := e.TrainFromCorpus(context.Background()); err != nil {
		t.Fatalf("TrainFromCorpus: %v", err)
	}
	if p := e.Predict("пока"); p.Label != "farewell" {
		t.Errorf("Predict = %+v", p)
	}
}

func TestPredict_ConcurrentWithTrain(t *testing.T) {
	e := trainedEngine(t, t.TempDir())
	texts, labels := scenario()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if p := e.Predict("привет"); p.Kind != KindLabel {
					t.Errorf("Predict during retrain = %+v", p)
					return
				}
			}
		}()
	}
	if err := e.Train(context.Background(), texts, labels); err != nil {
		t.Errorf("Train: %v", err)
	}
	wg.Wait()
}

func TestAddTrainingData_Concurrent(t *testing.T) {
	e := newTestEngine(t, t.TempDir())

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			label := "greeting"
			if i%2 == 1 {
				label = "farewell"
			}
			errs <- e.AddTrainingData(fmt.Sprintf("пример %d", i), label)
		}()
	}
	// Readers race with the writers and must never see a torn corpus.
	for range n {
		if got := e.TrainingData().Len(); got > n {
			t.Fatalf("corpus grew past %d: %d", n, got)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddTrainingData: %v", err)
		}
	}

	if got := e.TrainingData().Len(); got != n {
		t.Errorf("TrainingData().Len() = %d, want %d", got, n)
	}
}

func TestAddTrainingBatch_TrimsExamples(t *testing.T) {
	e := newTestEngine(t, t.TempDir())

	if err := e.AddTrainingBatch([]string{" привет ", "пока"}, []string{"greeting ", "\tfarewell"}); err != nil {
		t.Fatal(err)
	}
	set := e.TrainingData()
	if set.Texts[0] != "привет" || set.Labels[0] != "greeting" || set.Labels[1] != "farewell" {
		t.Errorf("stored = %+v, want trimmed values", set)
	}
	if set.DistinctLabels() != 2 {
		t.Errorf("distinct labels = %d, want 2", set.DistinctLabels())
	}

	err := e.AddTrainingBatch([]string{"ok", "  "}, []string{"a", "b"})
	if !errors.Is(err, ErrEmptyExample) {
		t.Errorf("blank text: err = %v, want ErrEmptyExample", err)
	}
	if err := e.AddTrainingBatch([]string{"ok"}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("length mismatch: err = %v, want ErrLengthMismatch", err)
	}
	if got := e.TrainingData().Len(); got != 2 {
		t.Errorf("rejected batches must not be written; len = %d", got)
	}
}

func TestSample(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	texts, labels := scenario()
	if err := e.AddTrainingBatch(texts, labels); err != nil {
		t.Fatal(err)
	}

	s := e.Sample(3)
	if s.Len() != 3 || s.Texts[0] != texts[0] || s.Labels[2] != labels[2] {
		t.Errorf("Sample(3) = %+v", s)
	}
	if got := e.Sample(1000).Len(); got != len(texts) {
		t.Errorf("Sample(1000).Len() = %d, want %d", got, len(texts))
	}
	if got := e.Sample(0).Len(); got != 0 {
		t.Errorf("Sample(0).Len() = %d, want 0", got)
	}
}

func TestLabels(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	if got := e.Labels(); got != nil {
		t.Errorf("untrained Labels() = %v, want nil", got)
	}

	e = trainedEngine(t, t.TempDir())
	got := e.Labels()
	if len(got) != 2 || got[0] != "farewell" || got[1] != "greeting" {
		t.Fatalf("Labels() = %v", got)
	}
	got[0] = "mutated"
	if e.Labels()[0] != "farewell" {
		t.Error("Labels() must return a copy")
	}
}
