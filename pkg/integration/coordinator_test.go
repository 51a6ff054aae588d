package integration

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/opencode-ai/controlplane/pkg/circuitbreaker"
	"github.com/opencode-ai/controlplane/pkg/quota"
	"github.com/opencode-ai/controlplane/pkg/strategy"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *quota.Manager) {
	t.Helper()
	qm := quota.NewManager("", nil, nil, nil)
	reg := strategy.NewRegistry(strategy.Func{
		PriorityValue: 10,
		NameValue:     "primary",
		SelectFn: func(ctx context.Context, task strategy.Task, rctx strategy.RoutingContext) (*strategy.Selection, error) {
			return &strategy.Selection{ModelID: "gpt-primary"}, nil
		},
	})
	orch := strategy.NewOrchestrator(reg, strategy.NewHealthTracker("", 3, 0, nil), nil, nil)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Settings{}, nil, nil)
	learning := NewLearningChannel("")
	evidence := NewEvidenceWriter("")

	c := NewCoordinator(qm, orch, breakers, learning, evidence, nil, nil)
	return c, qm
}

func TestRouteTaskSuccessRecordsDecisionAndLearning(t *testing.T) {
	ctx := context.Background()
	c, qm := newTestCoordinator(t)

	task := strategy.Task{ID: "t1", Category: "code"}
	out := c.RouteTask(ctx, task, []string{"primary"}, func(ctx context.Context, sel strategy.Selection) error {
		return nil
	})
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Selection.ModelID != "gpt-primary" {
		t.Fatalf("want gpt-primary, got %q", out.Selection.ModelID)
	}

	decisions := qm.Decisions()
	if len(decisions) != 1 || decisions[0].TaskID != "t1" {
		t.Fatalf("want one logged decision for t1, got %+v", decisions)
	}
	if c.Learning.PenaltyFor("primary") != 0 {
		t.Fatalf("want zero penalty after success")
	}
}

func TestRouteTaskFailurePenalizesStrategy(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t)

	task := strategy.Task{ID: "t2", Category: "code"}
	out := c.RouteTask(ctx, task, []string{"primary"}, func(ctx context.Context, sel strategy.Selection) error {
		return errors.New("boom")
	})
	if out.Err == nil {
		t.Fatalf("want error propagated from provider call")
	}
	if c.Learning.PenaltyFor("primary") == 0 {
		t.Fatalf("want nonzero penalty for primary after a recorded failure")
	}
}

func TestRouteTaskHighImpactWritesEvidence(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t)
	dir := t.TempDir()
	c.Evidence = NewEvidenceWriter(dir)
	c.HighImpact = func(strategy.Task) bool { return true }

	task := strategy.Task{ID: "t3", Category: "code"}
	out := c.RouteTask(ctx, task, []string{"primary"}, func(ctx context.Context, sel strategy.Selection) error {
		return nil
	})
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("want one evidence file written, got %d", len(entries))
	}
}

func TestRouteTaskNoSelectionIsReported(t *testing.T) {
	ctx := context.Background()
	qm := quota.NewManager("", nil, nil, nil)
	reg := strategy.NewRegistry() // no strategies registered
	orch := strategy.NewOrchestrator(reg, strategy.NewHealthTracker("", 3, 0, nil), nil, nil)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Settings{}, nil, nil)
	c := NewCoordinator(qm, orch, breakers, NewLearningChannel(""), NewEvidenceWriter(""), nil, nil)

	out := c.RouteTask(ctx, strategy.Task{ID: "t4"}, nil, func(ctx context.Context, sel strategy.Selection) error {
		t.Fatalf("provider call should not run when no strategy matched")
		return nil
	})
	if out.Err == nil {
		t.Fatalf("want an error when orchestration yields strategy:none")
	}
}
