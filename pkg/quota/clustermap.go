package quota

import (
	"context"
	"strconv"

	"goa.design/pulse/rmap"
)

// clusterMap is the subset of rmap.Map the cluster coordinator needs,
// mirroring the teacher's adaptive-rate-limiter cluster adapter shape so a
// fake implementation can drive the same code path in tests without a
// live Redis-backed Pulse map.
type clusterMap interface {
	Get(key string) (string, bool)
	SetIfNotExists(ctx context.Context, key, value string) (bool, error)
	TestAndSet(ctx context.Context, key, test, value string) (string, error)
}

type rmapClusterMap struct{ m *rmap.Map }

func (c *rmapClusterMap) Get(key string) (string, bool) { return c.m.Get(key) }
func (c *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return c.m.SetIfNotExists(ctx, key, value)
}
func (c *rmapClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	return c.m.TestAndSet(ctx, key, test, value)
}

// ClusterCoordinator optionally shares a provider's rotator dead/cooldown
// key counts across processes via a Pulse replicated map (§1 Non-goals
// rules out multi-node *orchestration*, but a read-mostly shared counter
// for rotator-risk composition is a narrower, opt-in capability this type
// makes available without the Manager itself depending on any network
// client — the Manager always computes from local state unless a
// coordinator is explicitly attached).
type ClusterCoordinator struct {
	m   clusterMap
	key string
}

// NewClusterCoordinator wraps m for providerID's rotator key. A nil m
// yields a coordinator whose methods are no-ops, so attaching one is
// always safe even when Pulse/Redis isn't configured.
func NewClusterCoordinator(m *rmap.Map, providerID string) *ClusterCoordinator {
	var cm clusterMap
	if m != nil {
		cm = &rmapClusterMap{m: m}
	}
	return newClusterCoordinator(cm, "quota:rotator:"+providerID)
}

func newClusterCoordinator(m clusterMap, key string) *ClusterCoordinator {
	return &ClusterCoordinator{m: m, key: key}
}

// PublishRisk best-effort shares the locally computed rotator risk so
// other processes reading the same key observe it too. A seed write wins
// on first use; later calls only record intent via TestAndSet and ignore
// losing races, since risk is advisory signal, not a source of truth.
func (c *ClusterCoordinator) PublishRisk(ctx context.Context, risk float64) error {
	if c.m == nil {
		return nil
	}
	encoded := strconv.FormatFloat(risk, 'f', -1, 64)
	if cur, ok := c.m.Get(c.key); !ok {
		_, err := c.m.SetIfNotExists(ctx, c.key, encoded)
		return err
	} else {
		_, err := c.m.TestAndSet(ctx, c.key, cur, encoded)
		return err
	}
}

// SharedRisk returns the last risk value published by any process for
// this provider, or false if none has been published (or no coordinator
// is attached).
func (c *ClusterCoordinator) SharedRisk() (float64, bool) {
	if c.m == nil {
		return 0, false
	}
	v, ok := c.m.Get(c.key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
