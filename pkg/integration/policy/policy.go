// Package policy reads and writes the policy review queue
// (`~/.opencode/policy-review-queue.json`, §6 External Interfaces) and
// evaluates the eval-gate thresholds an external policy-authoring tool
// checks before promoting a proposed routing policy. The control plane
// itself carries no embedded policy engine beyond ordered strategy
// dispatch; this package exists only far enough to make that external
// boundary testable.
package policy

import (
	"os"
	"sort"
	"time"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
)

// Status is the lifecycle state of a queued review item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Item is one entry of the policy review queue.
type Item struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	DecidedAt time.Time `json:"decided_at,omitempty"`
}

// queueFile is the persisted `policy-review-queue.json` shape.
type queueFile struct {
	Items []Item `json:"items"`
}

// Queue is an in-memory, optionally persisted view of the policy review
// queue.
type Queue struct {
	path  string
	items []Item
}

// NewQueue constructs a Queue backed by path (empty disables persistence).
func NewQueue(path string) *Queue {
	return &Queue{path: path}
}

// Load reads the queue file, tolerating its absence.
func (q *Queue) Load() error {
	if q.path == "" {
		return nil
	}
	var f queueFile
	if err := atomicfile.ReadJSON(q.path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	q.items = f.Items
	return nil
}

// Enqueue appends item and persists the queue.
func (q *Queue) Enqueue(item Item) error {
	q.items = append(q.items, item)
	return q.persist()
}

// Decide transitions the item with id to status, recording decidedAt, and
// persists the queue. A missing id is a no-op.
func (q *Queue) Decide(id string, status Status, decidedAt time.Time) error {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Status = status
			q.items[i].DecidedAt = decidedAt
		}
	}
	return q.persist()
}

// Items returns a copy of the current queue contents.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) persist() error {
	if q.path == "" {
		return nil
	}
	return atomicfile.WriteJSON(q.path, queueFile{Items: q.items})
}

// P95AgeHours computes the p95 age, in hours, of items still pending as of
// now. It returns 0 when the queue has no pending items.
func (q *Queue) P95AgeHours(now time.Time) float64 {
	var ages []float64
	for _, it := range q.items {
		if it.Status != StatusPending {
			continue
		}
		ages = append(ages, now.Sub(it.CreatedAt).Hours())
	}
	if len(ages) == 0 {
		return 0
	}
	sort.Float64s(ages)
	idx := int(float64(len(ages)-1) * 0.95)
	return ages[idx]
}

// SLOExceeded reports whether the pending queue's p95 age exceeds
// sloHours (OPENCODE_POLICY_REVIEW_P95_SLO_HOURS).
func (q *Queue) SLOExceeded(now time.Time, sloHours float64) bool {
	if sloHours <= 0 {
		return false
	}
	return q.P95AgeHours(now) > sloHours
}

// EvalGateResult is the outcome of checking a proposed policy against the
// eval-gate thresholds.
type EvalGateResult struct {
	Pass            bool
	ScoreDelta      float64
	AcceptanceRatio float64
	Reasons         []string
}

// EvaluateGate checks scoreDelta and acceptanceRatio (a percent, 0-100)
// against minDelta (OPENCODE_POLICY_EVAL_MIN_DELTA) and
// minAcceptanceRatio (OPENCODE_POLICY_SIM_MIN_ACCEPTANCE_RATIO). Both
// checks must pass for the gate to pass.
func EvaluateGate(scoreDelta, acceptanceRatio, minDelta, minAcceptanceRatio float64) EvalGateResult {
	res := EvalGateResult{Pass: true, ScoreDelta: scoreDelta, AcceptanceRatio: acceptanceRatio}
	if scoreDelta < minDelta {
		res.Pass = false
		res.Reasons = append(res.Reasons, "score delta below minimum")
	}
	if acceptanceRatio < minAcceptanceRatio {
		res.Pass = false
		res.Reasons = append(res.Reasons, "simulation acceptance ratio below minimum")
	}
	return res
}
