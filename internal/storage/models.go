package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction modes.
const (
	ModePredict = "predict"
	ModeChat    = "chat"
)

// Interaction is one query answered by the classifier or the responder.
// Outcome is the result kind ("label", "unknown", "exact", "fallback", ...);
// Detail holds a reason or distance for admins.
type Interaction struct {
	ID        string
	CreatedAt time.Time
	Mode      string
	Query     string
	Outcome   string
	Response  string
	Detail    string
	Resolved  bool
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// interactionRow and jobRow mirror table columns; timestamps are RFC 3339
// text.
type interactionRow struct {
	ID        string `db:"id"`
	CreatedAt string `db:"created_at"`
	Mode      string `db:"mode"`
	Query     string `db:"query"`
	Outcome   string `db:"outcome"`
	Response  string `db:"response"`
	Detail    string `db:"detail"`
	Resolved  bool   `db:"resolved"`
}

func (r interactionRow) toInteraction() (Interaction, error) {
	t, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return Interaction{}, err
	}
	return Interaction{
		ID:        r.ID,
		CreatedAt: t,
		Mode:      r.Mode,
		Query:     r.Query,
		Outcome:   r.Outcome,
		Response:  r.Response,
		Detail:    r.Detail,
		Resolved:  r.Resolved,
	}, nil
}

type jobRow struct {
	ID          string  `db:"id"`
	Type        string  `db:"type"`
	PayloadJSON string  `db:"payload_json"`
	Status      string  `db:"status"`
	Attempts    int     `db:"attempts"`
	MaxAttempts int     `db:"max_attempts"`
	RunAfter    string  `db:"run_after"`
	CreatedAt   string  `db:"created_at"`
	UpdatedAt   string  `db:"updated_at"`
	LastError   *string `db:"last_error"`
}

func (r jobRow) toJob() (Job, error) {
	j := Job{
		ID:          r.ID,
		Type:        r.Type,
		PayloadJSON: r.PayloadJSON,
		Status:      r.Status,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
	}
	if r.LastError != nil {
		j.LastError = *r.LastError
	}
	var err error
	if j.RunAfter, err = time.Parse(time.RFC3339, r.RunAfter); err != nil {
		return Job{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, r.CreatedAt); err != nil {
		return Job{}, err
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, r.UpdatedAt); err != nil {
		return Job{}, err
	}
	return j, nil
}
