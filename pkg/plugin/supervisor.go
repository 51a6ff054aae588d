package plugin

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
)

// stateFile is the schema-versioned on-disk shape for the plugin lifecycle
// store (§6 External interfaces: "~/.opencode/plugin-runtime-state.json").
type stateFile struct {
	SchemaVersion string            `json:"schema_version"`
	Plugins       map[string]Record `json:"plugins"`
}

// Supervisor evaluates plugin Samples against the §4.5 rules and persists
// the resulting Record map atomically after each cycle.
type Supervisor struct {
	path                string
	quarantineThreshold int
	bus                 hooks.Bus
	logger              telemetry.Logger
	clock               func() time.Time

	mu      sync.Mutex
	records map[string]Record

	cron *cron.Cron
}

// NewSupervisor constructs a Supervisor. path is the atomic JSON store; an
// empty path disables persistence.
func NewSupervisor(path string, quarantineThreshold int, bus hooks.Bus, logger telemetry.Logger, clock func() time.Time) *Supervisor {
	if quarantineThreshold <= 0 {
		quarantineThreshold = 2
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Supervisor{
		path:                path,
		quarantineThreshold: quarantineThreshold,
		bus:                 bus,
		logger:              logger,
		clock:               clock,
		records:             make(map[string]Record),
	}
}

// Load reads the persisted lifecycle state, tolerating its absence.
func (s *Supervisor) Load() error {
	if s.path == "" {
		return nil
	}
	var f stateFile
	if err := atomicfile.ReadJSON(s.path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, rec := range f.Plugins {
		s.records[name] = rec
	}
	return nil
}

// Evaluate runs one evaluation cycle over samples, applying the §4.5 rules
// to each, updating the in-memory map, and persisting the full map
// atomically (§4.5 Persistence). It returns the new record for each
// sampled plugin, in the order samples was given.
func (s *Supervisor) Evaluate(ctx context.Context, samples []Sample) []Record {
	out := make([]Record, 0, len(samples))

	s.mu.Lock()
	for _, sample := range samples {
		prior := s.records[sample.Name]
		next := evaluate(s.quarantineThreshold, sample, prior)
		next.LastSeen = s.clock()
		s.records[sample.Name] = next
		out = append(out, next)

		if prior.Name == "" || prior.Status != next.Status || prior.Quarantine != next.Quarantine || prior.ReasonCode != next.ReasonCode {
			s.publish(ctx, next)
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return out
}

// Get returns the current record for name and whether one exists.
func (s *Supervisor) Get(name string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	return rec, ok
}

// All returns a copy of every current plugin record.
func (s *Supervisor) All() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Supervisor) snapshotLocked() map[string]Record {
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

func (s *Supervisor) persist(snapshot map[string]Record) {
	if s.path == "" {
		return
	}
	if err := atomicfile.WriteJSON(s.path, stateFile{SchemaVersion: "1.1.0", Plugins: snapshot}); err != nil {
		s.logger.Warn(context.Background(), "plugin state persist failed", "path", s.path, "error", err)
	}
}

func (s *Supervisor) publish(ctx context.Context, rec Record) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, hooks.Event{
		Type:    hooks.EventPluginTransition,
		Name:    rec.Name,
		To:      string(rec.Status),
		Reason:  rec.TransitionReason,
		Payload: rec,
	})
}

// StartScheduler runs a recurring evaluation cycle on cronExpr (standard
// five-field cron syntax), calling sample to gather fresh Samples at each
// tick. It is an optional convenience for deployments that want the
// Supervisor to drive its own polling loop instead of being called
// externally; most callers instead invoke Evaluate directly from their own
// scheduler.
func (s *Supervisor) StartScheduler(ctx context.Context, cronExpr string, sample func(ctx context.Context) []Sample) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(cronExpr, func() {
		s.Evaluate(ctx, sample(ctx))
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	s.cron = c
	return c, nil
}

// StopScheduler stops a scheduler started with StartScheduler, waiting for
// any in-flight evaluation to finish.
func (s *Supervisor) StopScheduler() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
