package assistant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalambet/parrot/internal/chat"
	"github.com/kalambet/parrot/internal/classifier"
	"github.com/kalambet/parrot/internal/corpus"
	"github.com/kalambet/parrot/internal/storage"
	"github.com/kalambet/parrot/internal/training"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	copts := classifier.DefaultOptions(filepath.Join(dir, "model.bin"))
	copts.Forest.Trees = 30
	cls := classifier.New(copts, corpus.NewTrainingStore(filepath.Join(dir, "training_data.json")))
	responder := chat.New(chat.DefaultOptions(filepath.Join(dir, "chat_model.bin")), corpus.NewChatStore(filepath.Join(dir, "chat_data.json")))
	return New(cls, responder, store, store), store
}

const seedYAML = `
examples:
  - {text: привет, label: greeting}
  - {text: здравствуй, label: greeting}
  - {text: добрый день, label: greeting}
  - {text: хай, label: greeting}
  - {text: приветствую, label: greeting}
  - {text: здравствуйте, label: greeting}
  - {text: добрый вечер, label: greeting}
  - {text: доброе утро, label: greeting}
  - {text: салют, label: greeting}
  - {text: здорово, label: greeting}
  - {text: пока, label: farewell}
  - {text: до свидания, label: farewell}
  - {text: увидимся, label: farewell}
  - {text: прощай, label: farewell}
  - {text: до встречи, label: farewell}
  - {text: всего доброго, label: farewell}
  - {text: до завтра, label: farewell}
  - {text: счастливо, label: farewell}
  - {text: бывай, label: farewell}
  - {text: до скорого, label: farewell}
chat:
  - {question: Как дела, answer: Отлично!}
  - {question: как дела, answer: Дубль}
  - {question: кто ты, answer: Попугай}
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportSeedTrainAndPredict(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.ImportSeed(writeSeed(t))
	if err != nil {
		t.Fatalf("ImportSeed: %v", err)
	}
	if res.Examples != 20 || res.ChatAdded != 2 || res.ChatSkipped != 1 {
		t.Errorf("SeedResult = %+v", res)
	}

	if p := svc.Predict("привет"); p.Kind != classifier.KindUntrained {
		t.Errorf("Predict before training = %+v", p)
	}
	if err := svc.TrainClassifier(context.Background()); err != nil {
		t.Fatalf("TrainClassifier: %v", err)
	}
	if p := svc.Predict("пока"); p.Label != "farewell" {
		t.Errorf("Predict = %+v", p)
	}
	if got := svc.Respond("КАК ДЕЛА").Answer; got != "Отлично!" {
		t.Errorf("Respond = %q", got)
	}

	st := svc.Status()
	if !st.Classifier.IsTrained || st.Classifier.Examples != 20 || st.Chat.Examples != 2 {
		t.Errorf("Status = %+v", st)
	}
}

func TestUnresolvedQueries(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ImportSeed(writeSeed(t)); err != nil {
		t.Fatal(err)
	}
	if err := svc.TrainClassifier(context.Background()); err != nil {
		t.Fatal(err)
	}

	svc.Predict("абракадабра")
	svc.Predict("привет")
	svc.Respond("какая погода")
	svc.Respond("кто ты")

	got, err := svc.Unresolved(10)
	if err != nil {
		t.Fatalf("Unresolved: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	queries := map[string]string{}
	for _, i := range got {
		queries[i.Query] = i.Outcome
	}
	if queries["абракадабра"] != "unknown" || queries["какая погода"] != "fallback" {
		t.Errorf("unresolved = %v", queries)
	}

	if err := svc.Resolve(got[0].ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if again, _ := svc.Unresolved(10); len(again) != 1 {
		t.Errorf("after resolve len = %d, want 1", len(again))
	}
}

func TestRequestTraining_RunsThroughWorker(t *testing.T) {
	svc, store := newTestService(t)
	if _, err := svc.AddExample("как дела", "Хорошо"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RequestTraining(training.JobTrainChat, "admin"); err != nil {
		t.Fatalf("RequestTraining: %v", err)
	}
	w := training.NewWorker(store, training.TrainerFunc(svc.TrainClassifier), training.TrainerFunc(svc.TrainChat), 0)
	if done, err := w.RunOnce(context.Background()); err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	if !svc.Status().Chat.IsTrained {
		t.Error("chat model should be trained by the worker")
	}
}

func TestRequestTraining_NoQueue(t *testing.T) {
	dir := t.TempDir()
	cls := classifier.New(classifier.DefaultOptions(filepath.Join(dir, "m.bin")), corpus.NewTrainingStore(filepath.Join(dir, "t.json")))
	responder := chat.New(chat.DefaultOptions(filepath.Join(dir, "c.bin")), corpus.NewChatStore(filepath.Join(dir, "c.json")))
	svc := New(cls, responder, nil, nil)

	if _, err := svc.RequestTraining(training.JobTrainChat, ""); !errors.Is(err, ErrNoQueue) {
		t.Errorf("error = %v, want ErrNoQueue", err)
	}
	svc.Predict("x")
	if got, err := svc.Unresolved(5); err != nil || got != nil {
		t.Errorf("Unresolved without log = %v, %v", got, err)
	}
}

func TestImportFile(t *testing.T) {
	svc, _ := newTestService(t)
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("привет\nздравствуй\n\nхай\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := svc.ImportFile(path, "greeting")
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 3 {
		t.Errorf("imported %d, want 3", n)
	}
	set := svc.TrainingData()
	if set.Len() != 3 || set.Labels[2] != "greeting" {
		t.Errorf("corpus = %+v", set)
	}
}
