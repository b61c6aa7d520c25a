package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalambet/parrot/internal/corpus"
)

func newTestResponder(t *testing.T, dir string) *Responder {
	t.Helper()
	return New(
		DefaultOptions(filepath.Join(dir, "model", "chat_model.bin")),
		corpus.NewChatStore(filepath.Join(dir, "chat_data.json")),
	)
}

func mustAdd(t *testing.T, r *Responder, q, a string) {
	t.Helper()
	added, err := r.AddExample(q, a)
	if err != nil || !added {
		t.Fatalf("AddExample(%q) = %v, %v", q, added, err)
	}
}

func seeded(t *testing.T, dir string) *Responder {
	t.Helper()
	r := newTestResponder(t, dir)
	mustAdd(t, r, "Как дела", "Отлично!")
	mustAdd(t, r, "как тебя зовут", "Меня зовут Попугай")
	mustAdd(t, r, "что ты умеешь", "Отвечать на вопросы")
	if err := r.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	return r
}

func TestExactMatch_WithoutTraining(t *testing.T) {
	r := newTestResponder(t, t.TempDir())
	mustAdd(t, r, "Как Дела", "Хорошо")

	for _, q := range []string{"как дела", "КАК ДЕЛА", "  как   дела  "} {
		resp := r.Respond(q)
		if resp.Kind != KindExact || resp.Answer != "Хорошо" {
			t.Errorf("Respond(%q) = %+v, want exact Хорошо", q, resp)
		}
	}
}

func TestAddExample_Duplicate(t *testing.T) {
	r := newTestResponder(t, t.TempDir())
	mustAdd(t, r, "привет", "Здравствуй")

	added, err := r.AddExample("ПРИВЕТ ", "Хай")
	if err != nil {
		t.Fatalf("AddExample: %v", err)
	}
	if added {
		t.Error("duplicate question should not be added")
	}
	if got := r.GetResponse("привет"); got != "Здравствуй" {
		t.Errorf("GetResponse = %q, want first answer", got)
	}
}

func TestAddExample_Empty(t *testing.T) {
	r := newTestResponder(t, t.TempDir())
	for _, pair := range [][2]string{{"", "a"}, {"  ", "a"}, {"q", ""}, {"q", "   "}} {
		if _, err := r.AddExample(pair[0], pair[1]); !errors.Is(err, ErrEmptyExample) {
			t.Errorf("AddExample(%q, %q) error = %v, want ErrEmptyExample", pair[0], pair[1], err)
		}
	}
}

func TestAddExample_PersistsAndSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	mustAdd(t, newTestResponder(t, dir), "пока", "До встречи")

	r := newTestResponder(t, dir)
	if got := r.GetResponse("Пока"); got != "До встречи" {
		t.Errorf("GetResponse after restart = %q", got)
	}
}

func TestAddExample_SaveFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(DefaultOptions(filepath.Join(dir, "m.bin")), corpus.NewChatStore(filepath.Join(blocker, "chat.json")))

	if _, err := r.AddExample("привет", "хай"); err == nil {
		t.Fatal("expected save error")
	}
	if len(r.Examples()) != 0 {
		t.Error("failed save must not leave the example in memory")
	}
}

func TestTrain_Empty(t *testing.T) {
	r := newTestResponder(t, t.TempDir())
	if err := r.Train(context.Background()); !errors.Is(err, ErrNoExamples) {
		t.Errorf("Train error = %v, want ErrNoExamples", err)
	}
}

func TestTrain_SingleQuestion(t *testing.T) {
	r := newTestResponder(t, t.TempDir())
	mustAdd(t, r, "как дела", "Хорошо")
	if err := r.Train(context.Background()); err != nil {
		t.Fatalf("Train with one question: %v", err)
	}
	if resp := r.Respond("как дела?"); resp.Kind != KindSimilar {
		t.Errorf("Respond = %+v, want similar", resp)
	}
}

func TestRespond_Similar(t *testing.T) {
	r := seeded(t, t.TempDir())

	resp := r.Respond("как дела?")
	if resp.Kind != KindSimilar || resp.Answer != "Отлично!" {
		t.Fatalf("Respond = %+v, want similar Отлично!", resp)
	}
	if resp.Question != "как дела" || resp.Distance >= DefaultThreshold {
		t.Errorf("matched %q at %f", resp.Question, resp.Distance)
	}

	if got := r.GetResponse("привет, как дела"); got != "Отлично!" {
		t.Errorf("GetResponse with extra unknown word = %q", got)
	}
}

func TestRespond_Fallback(t *testing.T) {
	r := seeded(t, t.TempDir())
	resp := r.Respond("какая завтра погода")
	if resp.Kind != KindFallback || resp.Answer != DefaultFallback {
		t.Errorf("Respond = %+v, want fallback", resp)
	}
	if r.GetResponse("") != DefaultFallback {
		t.Error("empty query should fall back")
	}
}

func TestRespond_ThresholdIsExclusive(t *testing.T) {
	dir := t.TempDir()
	seeded(t, dir)

	opts := DefaultOptions(filepath.Join(dir, "model", "chat_model.bin"))
	opts.Threshold = 1e-9
	r := New(opts, corpus.NewChatStore(filepath.Join(dir, "chat_data.json")))

	if resp := r.Respond("как дела?"); resp.Kind != KindSimilar {
		t.Errorf("identical vector should match, got %+v", resp)
	}
	if resp := r.Respond("как тебя"); resp.Kind != KindFallback {
		t.Errorf("partial match beyond tiny threshold should fall back, got %+v", resp)
	}
}

func TestRespond_UntrainedFallsBack(t *testing.T) {
	r := newTestResponder(t, t.TempDir())
	mustAdd(t, r, "как дела", "Хорошо")
	if resp := r.Respond("как дела?"); resp.Kind != KindFallback {
		t.Errorf("untrained non-exact query = %+v, want fallback", resp)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	trained := seeded(t, dir)
	reloaded := newTestResponder(t, dir)

	if !reloaded.Status().IsTrained {
		t.Fatal("fresh responder should load the saved model")
	}
	for _, q := range []string{"как дела?", "как тебя", "что умеешь", "погода"} {
		a, b := trained.Respond(q), reloaded.Respond(q)
		if a != b {
			t.Errorf("Respond(%q): trained %+v, reloaded %+v", q, a, b)
		}
	}
}

func TestLoad_CorruptKeepsExactMatches(t *testing.T) {
	dir := t.TempDir()
	r := seeded(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "model", "chat_model.bin"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if o := r.Load(); o.OK() {
		t.Fatal("expected load failure")
	}
	if r.Status().IsTrained {
		t.Error("responder should be untrained after failed load")
	}
	if got := r.GetResponse("как дела"); got != "Отлично!" {
		t.Errorf("exact match after failed load = %q", got)
	}
}

func TestStatus(t *testing.T) {
	r := seeded(t, t.TempDir())
	s := r.Status()
	if !s.IsTrained || s.Examples != 3 || s.IndexedCount != 3 || s.VocabSize == 0 {
		t.Errorf("Status = %+v", s)
	}
}
