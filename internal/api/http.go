package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/parrot/internal/assistant"
	"github.com/kalambet/parrot/internal/chat"
	"github.com/kalambet/parrot/internal/classifier"
	"github.com/kalambet/parrot/internal/storage"
	"github.com/kalambet/parrot/internal/training"
)

const maxBodySize = 1 << 20 // 1MB

type PredictRequest struct {
	Text string `json:"text"`
}

type PredictResponse struct {
	Kind    string `json:"kind"`
	Label   string `json:"label,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type TrainingDataRequest struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// ImportRequest names a file readable by the server process.
type ImportRequest struct {
	Path  string `json:"path"`
	Label string `json:"label,omitempty"`
}

type ChatExampleRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type RespondRequest struct {
	Query string `json:"query"`
}

type RespondResponse struct {
	Kind     string  `json:"kind"`
	Answer   string  `json:"answer"`
	Question string  `json:"question,omitempty"`
	Distance float64 `json:"distance"`
}

type InteractionView struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Mode      string `json:"mode"`
	Query     string `json:"query"`
	Outcome   string `json:"outcome"`
	Response  string `json:"response"`
	Detail    string `json:"detail,omitempty"`
}

// NewHandler returns the HTTP API. Everything except /health requires the
// bearer token.
func NewHandler(svc *assistant.Service, token string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))

		r.Post("/predict", handlePredict(svc))
		r.Post("/train", handleTrain(svc, training.JobTrainClassifier))
		r.Get("/training-data", handleListTrainingData(svc))
		r.Post("/training-data", handleAddTrainingData(svc))
		r.Post("/training-data/import", handleImportFile(svc))
		r.Post("/seed", handleImportSeed(svc))
		r.Get("/status", handleStatus(svc))

		r.Get("/chat/examples", handleListChatExamples(svc))
		r.Post("/chat/examples", handleAddChatExample(svc))
		r.Post("/chat/train", handleTrain(svc, training.JobTrainChat))
		r.Post("/chat/respond", handleRespond(svc))

		r.Get("/interactions/unresolved", handleUnresolved(svc))
		r.Post("/interactions/{id}/resolve", handleResolve(svc))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handlePredict(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PredictRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p := svc.Predict(req.Text)
		writeJSON(w, http.StatusOK, PredictResponse{
			Kind:    p.Kind.String(),
			Label:   p.Label,
			Reason:  p.Reason,
			Message: p.String(),
		})
	}
}

// handleTrain trains synchronously, or enqueues a job of jobType when
// ?async=true.
func handleTrain(svc *assistant.Service, jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
			id, err := svc.RequestTraining(jobType, "api")
			if errors.Is(err, assistant.ErrNoQueue) {
				httpError(w, http.StatusServiceUnavailable, "api_error", "background training not available")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue training: %v", err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "queued"})
			return
		}

		var err error
		if jobType == training.JobTrainChat {
			err = svc.TrainChat(r.Context())
		} else {
			err = svc.TrainClassifier(r.Context())
		}
		switch {
		case errors.Is(err, classifier.ErrInsufficientData), errors.Is(err, chat.ErrNoExamples):
			httpError(w, http.StatusUnprocessableEntity, "insufficient_data", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "training failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// handleListTrainingData returns the whole corpus, or its first ?limit=n rows.
func handleListTrainingData(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n := parseIntParam(r, "limit", 0, 0); n > 0 {
			writeJSON(w, http.StatusOK, svc.TrainingSample(n))
			return
		}
		writeJSON(w, http.StatusOK, svc.TrainingData())
	}
}

func handleAddTrainingData(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrainingDataRequest
		if !decodeBody(w, r, &req) {
			return
		}
		err := svc.AddTrainingData(req.Text, req.Label)
		if errors.Is(err, classifier.ErrEmptyExample) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text and label are required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save training data: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":             true,
			"examples_count": svc.TrainingData().Len(),
			"new_label":      !svc.KnowsLabel(req.Label),
		})
	}
}

func handleImportFile(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Path == "" || strings.TrimSpace(req.Label) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path and label are required")
			return
		}
		n, err := svc.ImportFile(req.Path, req.Label)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "import_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"added": n})
	}
}

func handleImportSeed(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path is required")
			return
		}
		res, err := svc.ImportSeed(req.Path)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "import_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleStatus(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

func handleListChatExamples(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ChatExamples())
	}
}

func handleAddChatExample(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatExampleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		added, err := svc.AddExample(req.Question, req.Answer)
		if errors.Is(err, chat.ErrEmptyExample) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and answer are required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save chat example: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"added": added})
	}
}

func handleRespond(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RespondRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp := svc.Respond(req.Query)
		writeJSON(w, http.StatusOK, RespondResponse{
			Kind:     resp.Kind.String(),
			Answer:   resp.Answer,
			Question: resp.Question,
			Distance: resp.Distance,
		})
	}
}

func handleUnresolved(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		items, err := svc.Unresolved(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		out := make([]InteractionView, len(items))
		for i, it := range items {
			out[i] = interactionView(it)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleResolve(svc *assistant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := svc.Resolve(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	}
}

func interactionView(it storage.Interaction) InteractionView {
	return InteractionView{
		ID:        it.ID,
		CreatedAt: it.CreatedAt.Format(time.RFC3339),
		Mode:      it.Mode,
		Query:     it.Query,
		Outcome:   it.Outcome,
		Response:  it.Response,
		Detail:    it.Detail,
	}
}

func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
