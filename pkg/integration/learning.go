// Package integration implements the Integration layer: it enriches tasks
// with a quota signal before Strategy Orchestrator dispatch, persists the
// learning channel that future strategy scores draw on, writes evidence
// artifacts for high-impact tasks, and classifies external provider health
// probes (§2 Composition, GLOSSARY).
package integration

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
)

// AntiPattern is a labeled failure signature stored by the learning
// subsystem and consumed as a strategy-scoring signal (GLOSSARY).
type AntiPattern struct {
	Label      string    `json:"label"`
	Task       string    `json:"task"`
	Strategy   string    `json:"strategy"`
	DetectedAt time.Time `json:"detected_at"`
}

// Adaptation records a recent change the learning subsystem made to its
// own scoring in response to observed outcomes.
type Adaptation struct {
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// evolutionEngine is the `evolutionEngine` object of the skill-rl.json
// shape (§6 External interfaces).
type evolutionEngine struct {
	FailureCount      int64         `json:"failure_count"`
	SuccessCount      int64         `json:"success_count"`
	FailureHistory    []AntiPattern `json:"failure_history"`
	RecentAdaptations []Adaptation  `json:"recent_adaptations"`
}

// skillBank is the `skillBank` object of the skill-rl.json shape.
type skillBank struct {
	General      []string `json:"general"`
	TaskSpecific []string `json:"taskSpecific"`
}

// learningFile is the full persisted document
// (`~/.opencode/skill-rl.json`, §6 External interfaces).
type learningFile struct {
	SkillBank       skillBank       `json:"skillBank"`
	EvolutionEngine evolutionEngine `json:"evolutionEngine"`
}

// maxFailureHistory bounds the retained anti-pattern history so the file
// doesn't grow unbounded across a long process lifetime.
const maxFailureHistory = 200

// LearningChannel persists outcomes from failed strategy selections and
// derives per-strategy penalty scores that feed back into
// strategy.RoutingContext.LearningPenalty (§2 Composition: "failures feed
// a learning channel that influences future strategy scores").
type LearningChannel struct {
	path string

	mu   sync.Mutex
	data learningFile
}

// NewLearningChannel constructs a LearningChannel backed by path (empty
// disables persistence).
func NewLearningChannel(path string) *LearningChannel {
	return &LearningChannel{path: path, data: learningFile{
		SkillBank: skillBank{General: []string{}, TaskSpecific: []string{}},
	}}
}

// Load reads the persisted learning file, tolerating its absence.
func (l *LearningChannel) Load() error {
	if l.path == "" {
		return nil
	}
	var f learningFile
	if err := atomicfile.ReadJSON(l.path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if f.SkillBank.General != nil || f.SkillBank.TaskSpecific != nil {
		l.data = f
	}
	return nil
}

// RecordSuccess increments the success counter.
func (l *LearningChannel) RecordSuccess(ctx context.Context) {
	l.mu.Lock()
	l.data.EvolutionEngine.SuccessCount++
	snapshot := l.data
	l.mu.Unlock()
	l.persist(snapshot)
}

// RecordFailure increments the failure counter, appends an AntiPattern to
// the bounded history, and records an Adaptation describing the penalty
// this failure will apply going forward.
func (l *LearningChannel) RecordFailure(ctx context.Context, pattern AntiPattern, adaptation string) {
	l.mu.Lock()
	l.data.EvolutionEngine.FailureCount++
	l.data.EvolutionEngine.FailureHistory = append(l.data.EvolutionEngine.FailureHistory, pattern)
	if n := len(l.data.EvolutionEngine.FailureHistory); n > maxFailureHistory {
		l.data.EvolutionEngine.FailureHistory = l.data.EvolutionEngine.FailureHistory[n-maxFailureHistory:]
	}
	if adaptation != "" {
		l.data.EvolutionEngine.RecentAdaptations = append(l.data.EvolutionEngine.RecentAdaptations,
			Adaptation{Description: adaptation, AppliedAt: pattern.DetectedAt})
	}
	snapshot := l.data
	l.mu.Unlock()
	l.persist(snapshot)
}

// PenaltyFor computes a learning penalty in [0,1] for strategyName from
// its recent failure share in FailureHistory. The penalty is designed to
// be embedded in a Selection's `reason` field via the
// `learning:<penalty>` tag (§4.3 "Reason strings").
func (l *LearningChannel) PenaltyFor(strategyName string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.data.EvolutionEngine.FailureHistory
	if len(history) == 0 {
		return 0
	}
	var matches int
	window := history
	if len(window) > 50 {
		window = window[len(window)-50:]
	}
	for _, p := range window {
		if p.Strategy == strategyName {
			matches++
		}
	}
	return float64(matches) / float64(len(window))
}

func (l *LearningChannel) persist(snapshot learningFile) {
	if l.path == "" {
		return
	}
	_ = atomicfile.WriteJSON(l.path, snapshot)
}
