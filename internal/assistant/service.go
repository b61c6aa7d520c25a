// Package assistant ties the classifier, the chat responder, the interaction
// log and the training queue into the single handle every surface uses.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/parrot/internal/chat"
	"github.com/kalambet/parrot/internal/classifier"
	"github.com/kalambet/parrot/internal/corpus"
	"github.com/kalambet/parrot/internal/storage"
	"github.com/kalambet/parrot/internal/training"
)

// ErrNoQueue is returned by RequestTraining when no job queue is configured.
var ErrNoQueue = errors.New("training queue not configured")

// UnresolvedOutcomes are the outcomes listed for admins to follow up on.
var UnresolvedOutcomes = []string{
	classifier.KindUnknown.String(),
	chat.KindFallback.String(),
}

// InteractionLog records answered queries.
type InteractionLog interface {
	SaveInteraction(i storage.Interaction) error
	UnresolvedQueries(outcomes []string, limit int) ([]storage.Interaction, error)
	MarkResolved(id string) error
}

// Status combines both subsystems.
type Status struct {
	Classifier classifier.Status `json:"classifier"`
	Chat       chat.Status       `json:"chat"`
}

// Service is safe for concurrent use.
type Service struct {
	classifier *classifier.Engine
	chat       *chat.Responder
	log        InteractionLog    // optional
	queue      training.Enqueuer // optional
}

// New creates a Service. log and queue may be nil.
func New(cls *classifier.Engine, responder *chat.Responder, log InteractionLog, queue training.Enqueuer) *Service {
	return &Service{classifier: cls, chat: responder, log: log, queue: queue}
}

// Predict classifies text and records the interaction.
func (s *Service) Predict(text string) classifier.Prediction {
	p := s.classifier.Predict(text)
	s.record(storage.Interaction{
		Mode:     storage.ModePredict,
		Query:    text,
		Outcome:  p.Kind.String(),
		Response: p.String(),
		Detail:   p.Reason,
	})
	return p
}

// Respond answers a chat query and records the interaction.
func (s *Service) Respond(query string) chat.Response {
	r := s.chat.Respond(query)
	detail := ""
	if r.Kind != chat.KindExact {
		detail = "distance=" + strconv.FormatFloat(r.Distance, 'f', 3, 64)
	}
	s.record(storage.Interaction{
		Mode:     storage.ModeChat,
		Query:    query,
		Outcome:  r.Kind.String(),
		Response: r.Answer,
		Detail:   detail,
	})
	return r
}

func (s *Service) record(i storage.Interaction) {
	if s.log == nil {
		return
	}
	i.ID = uuid.New().String()
	i.CreatedAt = time.Now().UTC()
	if err := s.log.SaveInteraction(i); err != nil {
		slog.Warn("recording interaction", "mode", i.Mode, "error", err)
	}
}

// TrainClassifier retrains the classifier from its corpus.
func (s *Service) TrainClassifier(ctx context.Context) error {
	return s.classifier.TrainFromCorpus(ctx)
}

// TrainChat retrains the chat similarity model.
func (s *Service) TrainChat(ctx context.Context) error {
	return s.chat.Train(ctx)
}

// RequestTraining enqueues a background training job and returns its ID.
func (s *Service) RequestTraining(jobType, requestedBy string) (string, error) {
	if s.queue == nil {
		return "", ErrNoQueue
	}
	return training.Enqueue(s.queue, jobType, requestedBy)
}

// AddTrainingData appends a labelled example to the classifier corpus.
func (s *Service) AddTrainingData(text, label string) error {
	return s.classifier.AddTrainingData(text, label)
}

// KnowsLabel reports whether the current classifier model can predict label.
func (s *Service) KnowsLabel(label string) bool {
	label = strings.TrimSpace(label)
	for _, l := range s.classifier.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

// TrainingSample returns the first n classifier corpus rows.
func (s *Service) TrainingSample(n int) corpus.TrainingSet {
	return s.classifier.Sample(n)
}

// TrainingData returns the classifier corpus.
func (s *Service) TrainingData() corpus.TrainingSet {
	return s.classifier.TrainingData()
}

// AddExample adds a chat question/answer pair.
func (s *Service) AddExample(question, answer string) (bool, error) {
	return s.chat.AddExample(question, answer)
}

// ChatExamples returns the chat corpus.
func (s *Service) ChatExamples() map[string]string {
	return s.chat.Examples()
}

// Status reports both subsystems.
func (s *Service) Status() Status {
	return Status{Classifier: s.classifier.Status(), Chat: s.chat.Status()}
}

// Unresolved lists recent queries that got no useful answer.
func (s *Service) Unresolved(limit int) ([]storage.Interaction, error) {
	if s.log == nil {
		return nil, nil
	}
	return s.log.UnresolvedQueries(UnresolvedOutcomes, limit)
}

// Resolve removes an interaction from the unresolved list.
func (s *Service) Resolve(id string) error {
	if s.log == nil {
		return storage.ErrNotFound
	}
	return s.log.MarkResolved(id)
}

// ImportFile adds every non-empty line of the document at path as a
// training example with label. It returns the number of examples added.
func (s *Service) ImportFile(path, label string) (int, error) {
	lines, err := corpus.ExtractLines(path)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, nil
	}
	labels := make([]string, len(lines))
	for i := range labels {
		labels[i] = label
	}
	if err := s.classifier.AddTrainingBatch(lines, labels); err != nil {
		return 0, fmt.Errorf("importing %s: %w", path, err)
	}
	return len(lines), nil
}

// SeedResult counts what ImportSeed added.
type SeedResult struct {
	Examples    int `json:"examples"`
	ChatAdded   int `json:"chat_added"`
	ChatSkipped int `json:"chat_skipped"`
}

// ImportSeed loads a YAML seed into both corpora. Chat questions that
// already exist are skipped.
func (s *Service) ImportSeed(path string) (SeedResult, error) {
	seed, err := corpus.ReadSeed(path)
	if err != nil {
		return SeedResult{}, err
	}
	var res SeedResult
	if len(seed.Examples) > 0 {
		texts := make([]string, len(seed.Examples))
		labels := make([]string, len(seed.Examples))
		for i, ex := range seed.Examples {
			texts[i], labels[i] = ex.Text, ex.Label
		}
		if err := s.classifier.AddTrainingBatch(texts, labels); err != nil {
			return res, fmt.Errorf("importing examples: %w", err)
		}
		res.Examples = len(texts)
	}
	for _, c := range seed.Chat {
		added, err := s.chat.AddExample(c.Question, c.Answer)
		if err != nil {
			return res, fmt.Errorf("importing chat example %q: %w", c.Question, err)
		}
		if added {
			res.ChatAdded++
		} else {
			res.ChatSkipped++
		}
	}
	return res, nil
}
