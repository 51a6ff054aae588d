package quota

import (
	"context"
	"sync"
	"testing"
)

// fakeClusterMap is an in-memory stand-in for *rmap.Map, letting the
// cluster coordinator be exercised without a live Redis-backed Pulse map.
type fakeClusterMap struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeClusterMap() *fakeClusterMap {
	return &fakeClusterMap{values: make(map[string]string)}
}

func (f *fakeClusterMap) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.values[key]
	if cur == test {
		f.values[key] = value
	}
	return cur, nil
}

func TestClusterCoordinatorPublishAndReadRisk(t *testing.T) {
	ctx := context.Background()
	fm := newFakeClusterMap()
	c := newClusterCoordinator(fm, "quota:rotator:anthropic")

	if _, ok := c.SharedRisk(); ok {
		t.Fatalf("want no shared risk before the first publish")
	}
	if err := c.PublishRisk(ctx, 0.25); err != nil {
		t.Fatal(err)
	}
	risk, ok := c.SharedRisk()
	if !ok || risk != 0.25 {
		t.Fatalf("want published risk 0.25, got %f (ok=%v)", risk, ok)
	}

	if err := c.PublishRisk(ctx, 0.5); err != nil {
		t.Fatal(err)
	}
	risk, ok = c.SharedRisk()
	if !ok || risk != 0.5 {
		t.Fatalf("want updated risk 0.5, got %f (ok=%v)", risk, ok)
	}
}

func TestClusterCoordinatorNilMapIsNoop(t *testing.T) {
	c := newClusterCoordinator(nil, "key")
	if err := c.PublishRisk(context.Background(), 0.9); err != nil {
		t.Fatalf("want nil-map coordinator to no-op, got %v", err)
	}
	if _, ok := c.SharedRisk(); ok {
		t.Fatalf("want no shared risk from a nil-map coordinator")
	}
}
