package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestTrainingStore_MissingFileIsEmpty(t *testing.T) {
	s := NewTrainingStore(filepath.Join(t.TempDir(), "training_data.json"))
	if got := s.Load(); got.Len() != 0 {
		t.Errorf("Len = %d, want 0", got.Len())
	}
}

func TestTrainingStore_MalformedFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_data.json")
	for _, content := range []string{"{not json", `{"texts":["a"],"labels":[]}`} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := NewTrainingStore(path).Load(); got.Len() != 0 {
			t.Errorf("Load(%q).Len = %d, want 0", content, got.Len())
		}
	}
}

func TestTrainingStore_AppendKeepsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "training_data.json")
	s := NewTrainingStore(path)
	for range 2 {
		if err := s.Append("привет", "greeting"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append("пока", "farewell"); err != nil {
		t.Fatal(err)
	}

	set := s.Load()
	if set.Len() != 3 {
		t.Fatalf("Len = %d, want 3", set.Len())
	}
	if set.DistinctLabels() != 2 {
		t.Errorf("DistinctLabels = %d, want 2", set.DistinctLabels())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"привет"`) {
		t.Errorf("file should store unescaped UTF-8, got %s", raw)
	}
	if !strings.Contains(string(raw), "\n  \"texts\"") {
		t.Errorf("file should be indented by two spaces, got %s", raw)
	}
}

func TestTrainingStore_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	s := NewTrainingStore(filepath.Join(dir, "training_data.json"))

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(fmt.Sprintf("text %d", i), "label"); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := s.Load().Len(); got != n {
		t.Errorf("Len = %d, want %d", got, n)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the corpus file, found %d entries", len(entries))
	}
}

func TestChatStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat_data.json")
	s := NewChatStore(path)
	if err := s.Save(map[string]string{"как дела": "хорошо"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("mode = %o, want 644", perm)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Errorf("expected only the corpus file, found %d entries", len(entries))
	}
}

func TestTrainingStore_AppendManyLengthMismatch(t *testing.T) {
	s := NewTrainingStore(filepath.Join(t.TempDir(), "t.json"))
	if err := s.AppendMany([]string{"a"}, nil); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestNormalizeQuestion(t *testing.T) {
	cases := map[string]string{
		"  Как Дела ":   "как дела",
		"как\tдела\n":   "как дела",
		"КАК    ДЕЛА":   "как дела",
		"":              "",
		"   ":           "",
	}
	for in, want := range cases {
		if got := NormalizeQuestion(in); got != want {
			t.Errorf("NormalizeQuestion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChatStore_RoundTripAndLegacyLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_data.json")
	legacy := `{"Привет": ["Здравствуй!", "Хай"], "как дела": "Отлично"}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewChatStore(path)
	got := s.Load()
	if got["привет"] != "Здравствуй!" {
		t.Errorf("legacy list answer = %q, want first element", got["привет"])
	}
	if got["как дела"] != "Отлично" {
		t.Errorf("answer = %q", got["как дела"])
	}

	got["пока"] = "До встречи"
	if err := s.Save(got); err != nil {
		t.Fatal(err)
	}
	if again := s.Load(); len(again) != 3 || again["пока"] != "До встречи" {
		t.Errorf("after save: %v", again)
	}
}

func TestChatStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_data.json")
	if err := os.WriteFile(path, []byte("[1,2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := NewChatStore(path).Load(); len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
}

func TestExtractLines_TextAndHTML(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "greetings.txt")
	if err := os.WriteFile(txt, []byte("привет\n\n  здравствуй  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := ExtractLines(txt)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[1] != "здравствуй" {
		t.Errorf("txt lines = %q", lines)
	}

	page := filepath.Join(dir, "page.html")
	doc := `<html><head><title>t</title></head><body><p>добрый день</p><script>var x;</script><div>хай</div></body></html>`
	if err := os.WriteFile(page, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err = ExtractLines(page)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "добрый день" || lines[1] != "хай" {
		t.Errorf("html lines = %q", lines)
	}
}

func TestExtractLines_Unsupported(t *testing.T) {
	if _, err := ExtractLines("corpus.docx"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestReadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `
examples:
  - text: привет
    label: greeting
  - text: пока
    label: farewell
chat:
  - question: Как дела?
    answer: Хорошо!
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSeed(path)
	if err != nil {
		t.Fatalf("ReadSeed: %v", err)
	}
	if len(got.Examples) != 2 || got.Examples[1].Label != "farewell" {
		t.Errorf("examples = %+v", got.Examples)
	}
	if len(got.Chat) != 1 || got.Chat[0].Answer != "Хорошо!" {
		t.Errorf("chat = %+v", got.Chat)
	}
}

func TestReadSeed_RejectsIncompleteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte("examples:\n  - text: привет\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSeed(path); err == nil {
		t.Error("expected error for example without label")
	}
}
