package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
)

// Evidence is a structured artifact written by the integration layer for
// high-impact tasks; consumed only by external collaborators (GLOSSARY).
type Evidence struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	Category   string    `json:"category"`
	Selection  string    `json:"selection"`
	Strategy   string    `json:"strategy"`
	Reason     string    `json:"reason"`
	HighImpact bool      `json:"high_impact"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EvidenceWriter persists one Evidence artifact per call, atomically, to a
// directory keyed by artifact id so concurrent high-impact tasks never
// collide on a single file.
type EvidenceWriter struct {
	dir string
}

// NewEvidenceWriter constructs an EvidenceWriter rooted at dir.
func NewEvidenceWriter(dir string) *EvidenceWriter {
	return &EvidenceWriter{dir: dir}
}

// Write persists ev, assigning an id and timestamp if unset, and returns
// the final Evidence. A writer with an empty dir is a no-op sink, useful
// for tests and for deployments that disable evidence capture.
func (w *EvidenceWriter) Write(ev Evidence) (Evidence, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now()
	}
	if w.dir == "" {
		return ev, nil
	}
	path := w.dir + "/" + ev.ID + ".json"
	if err := atomicfile.WriteJSON(path, ev); err != nil {
		return Evidence{}, err
	}
	return ev, nil
}
