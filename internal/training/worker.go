// Package training runs model retraining in the background from the SQLite
// job queue.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/parrot/internal/chat"
	"github.com/kalambet/parrot/internal/classifier"
	"github.com/kalambet/parrot/internal/storage"
	"github.com/kalambet/parrot/internal/vectorizer"
)

// Job types handled by the worker.
const (
	JobTrainClassifier = "train_classifier"
	JobTrainChat       = "train_chat"
)

// JobTypes lists every job type the worker claims.
var JobTypes = []string{JobTrainClassifier, JobTrainChat}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	Enqueuer
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	AbandonJob(id string, errMsg string) error
}

// Trainer retrains one model from its stored corpus.
type Trainer interface {
	Train(ctx context.Context) error
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context) error

func (f TrainerFunc) Train(ctx context.Context) error { return f(ctx) }

type payload struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Enqueue schedules a training job of jobType and returns its ID.
func Enqueue(store Enqueuer, jobType, requestedBy string) (string, error) {
	if jobType != JobTrainClassifier && jobType != JobTrainChat {
		return "", fmt.Errorf("unknown training job type %q", jobType)
	}
	body, err := json.Marshal(payload{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	id := uuid.New().String()
	if err := store.EnqueueJob(storage.Job{ID: id, Type: jobType, PayloadJSON: string(body), MaxAttempts: 2}); err != nil {
		return "", fmt.Errorf("enqueueing %s: %w", jobType, err)
	}
	return id, nil
}

// Worker processes training jobs from the queue.
type Worker struct {
	store    JobStore
	trainers map[string]Trainer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, cls, responder Trainer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store: store,
		trainers: map[string]Trainer{
			JobTrainClassifier: cls,
			JobTrainChat:       responder,
		},
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single training job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(JobTypes)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	start := time.Now()
	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("training job failed", "job_id", job.ID, "type", job.Type, "error", err)
		fail := w.store.FailJob
		if retryPointless(err) {
			fail = w.store.AbandonJob
		}
		if failErr := fail(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("training job completed", "job_id", job.ID, "type", job.Type, "duration", time.Since(start).Round(time.Millisecond))
	return true, nil
}

// retryPointless reports errors that depend only on the corpus contents,
// which a retry will see unchanged.
func retryPointless(err error) bool {
	return errors.Is(err, classifier.ErrInsufficientData) ||
		errors.Is(err, chat.ErrNoExamples) ||
		errors.Is(err, vectorizer.ErrEmptyVocabulary)
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	trainer, ok := w.trainers[job.Type]
	if !ok || trainer == nil {
		return fmt.Errorf("no trainer for job type %q", job.Type)
	}
	if p.RequestedBy != "" {
		w.logger.Debug("training requested", "job_id", job.ID, "by", p.RequestedBy, "at", p.RequestedAt)
	}
	return trainer.Train(ctx)
}
