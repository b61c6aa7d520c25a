// Package artifact persists trained models as opaque blobs and reports load
// outcomes as values instead of failing.
package artifact

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	magic         = "parrot-model"
	formatVersion = 1
)

// Kind names the subsystem an artifact belongs to.
type Kind string

const (
	// KindClassifier is the vectorizer plus random forest and label index.
	KindClassifier Kind = "classifier"
	// KindChat is the vectorizer plus nearest-neighbour index.
	KindChat Kind = "chat"
)

// Status classifies the result of Load.
type Status int

const (
	// StatusLoaded means the payload decoded and was accepted.
	StatusLoaded Status = iota
	// StatusMissing means no file exists at the path.
	StatusMissing
	// StatusCorrupt means the file could not be decoded.
	StatusCorrupt
	// StatusIncompatible means the file decoded but has another kind,
	// format version or configuration fingerprint.
	StatusIncompatible
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusMissing:
		return "missing"
	case StatusCorrupt:
		return "corrupt"
	case StatusIncompatible:
		return "incompatible"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is the result of loading an artifact. Err is nil only when Status
// is StatusLoaded.
type Outcome struct {
	Status  Status
	SavedAt time.Time
	Err     error
}

// OK reports whether the artifact was loaded.
func (o Outcome) OK() bool { return o.Status == StatusLoaded }

type envelope struct {
	Magic       string
	Version     int
	Kind        Kind
	Fingerprint string
	SavedAt     time.Time
	Payload     []byte
}

// Save encodes payload and replaces the file at path. The write goes to a
// temporary sibling first so readers never observe a partial file.
func Save(path string, kind Kind, fingerprint string, payload any) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	env := envelope{
		Magic:       magic,
		Version:     formatVersion,
		Kind:        kind,
		Fingerprint: fingerprint,
		SavedAt:     time.Now().UTC(),
		Payload:     body.Bytes(),
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(env); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s artifact: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s artifact: %w", kind, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s artifact: %w", kind, err)
	}
	return nil
}

// Load decodes the artifact at path into dst. It never panics; every failure
// is reported through the returned Outcome.
func Load(path string, kind Kind, fingerprint string, dst any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusCorrupt, Err: fmt.Errorf("decoding %s artifact: %v", kind, r)}
		}
	}()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Outcome{Status: StatusMissing, Err: err}
	}
	if err != nil {
		return Outcome{Status: StatusCorrupt, Err: fmt.Errorf("opening %s artifact: %w", kind, err)}
	}
	defer f.Close()

	var env envelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return Outcome{Status: StatusCorrupt, Err: fmt.Errorf("decoding %s artifact: %w", kind, err)}
	}
	if env.Magic != magic {
		return Outcome{Status: StatusCorrupt, Err: fmt.Errorf("%s: not a model artifact", path)}
	}
	if env.Version != formatVersion || env.Kind != kind || env.Fingerprint != fingerprint {
		return Outcome{
			Status: StatusIncompatible,
			Err: fmt.Errorf("artifact is %s v%d (%s), want %s v%d (%s)",
				env.Kind, env.Version, env.Fingerprint, kind, formatVersion, fingerprint),
		}
	}
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(dst); err != nil {
		return Outcome{Status: StatusCorrupt, Err: fmt.Errorf("decoding %s payload: %w", kind, err)}
	}
	return Outcome{Status: StatusLoaded, SavedAt: env.SavedAt}
}
