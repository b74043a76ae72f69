package orchestrator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shipyardci/shipyard/internal/config"
)

func newTestIngress(t *testing.T, projects map[string]config.ProjectConfig) *Ingress {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry(projects)
	executor := NewExecutor(NewResolver(), nil, nil, logger)
	queue := NewQueueManager(registry, executor, logger)
	return NewIngress(registry, queue, NewResolver())
}

func longRunningProject() config.ProjectConfig {
	return config.ProjectConfig{
		AllowMultiBuild: true,
		MaxPendingBuild: 2,
		UniqueBuildKey:  "job",
		Build: config.BuildConfig{
			Commands: []config.CommandConfig{{Shell: "sleep 1", SendToSock: true}},
		},
	}
}

// TestIngressDedupInQueue mirrors spec §8 scenario S3.
func TestIngressDedupInQueue(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": longRunningProject()})

	r1, err := ing.Submit("p", map[string]any{"job": "X"}, nil)
	if err != nil || r1.State != StateBuilding {
		t.Fatalf("first submit: %+v, %v", r1, err)
	}
	r2, err := ing.Submit("p", map[string]any{"job": "Y"}, nil)
	if err != nil || r2.State != StateBuilding {
		t.Fatalf("second submit: %+v, %v", r2, err)
	}
	r3, err := ing.Submit("p", map[string]any{"job": "X"}, nil)
	if err != nil {
		t.Fatalf("third submit error: %v", err)
	}
	if r3.State != StateAlready {
		t.Errorf("expected third submit to be 'already', got %v", r3.State)
	}
}

// TestIngressQueueFull mirrors spec §8 scenario S4.
func TestIngressQueueFull(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": longRunningProject()})

	for _, job := range []string{"A", "B", "C"} {
		if _, err := ing.Submit("p", map[string]any{"job": job}, nil); err != nil {
			t.Fatalf("submit %s: %v", job, err)
		}
	}

	r, err := ing.Submit("p", map[string]any{"job": "D"}, nil)
	if err != nil {
		t.Fatalf("submit D: %v", err)
	}
	if r.State != StateFull {
		t.Errorf("expected 'full', got %v (queue_length=%d)", r.State, r.QueueLength)
	}
	if r.QueueLength != 2 {
		t.Errorf("expected queue_length=2, got %d", r.QueueLength)
	}
}

// TestIngressAbortQueued mirrors spec §8 scenario S5: aborting a build
// that never started removes it from the queue without spawning a shell.
func TestIngressAbortQueued(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": longRunningProject()})

	if _, err := ing.Submit("p", map[string]any{"job": "running"}, nil); err != nil {
		t.Fatalf("submit running: %v", err)
	}
	if _, err := ing.Submit("p", map[string]any{"job": "Q"}, nil); err != nil {
		t.Fatalf("submit Q: %v", err)
	}

	ps, _ := ing.Project("p")
	if got := ps.QueueLength(); got != 1 {
		t.Fatalf("expected Q still queued, queue length = %d", got)
	}

	r, err := ing.Abort("p", "Q")
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if r.State != StateAborted {
		t.Errorf("expected 'aborted', got %v", r.State)
	}
	if got := ps.QueueLength(); got != 0 {
		t.Errorf("expected Q removed from queue, queue length = %d", got)
	}
}

func TestIngressAbortNotFound(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": longRunningProject()})

	r, err := ing.Abort("p", "nonexistent")
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if r.State != StateNotFound {
		t.Errorf("expected 'not_found', got %v", r.State)
	}
}

func TestIngressMissingUniqueKey(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": longRunningProject()})

	r, err := ing.Submit("p", map[string]any{"not_job": "X"}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.State != StateMissing {
		t.Errorf("expected 'missing', got %v", r.State)
	}
}

func TestIngressAlreadyRunningWhenMultiBuildDisabled(t *testing.T) {
	proj := longRunningProject()
	proj.AllowMultiBuild = false
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": proj})

	first, err := ing.Submit("p", map[string]any{"job": "A"}, nil)
	if err != nil || first.State != StateBuilding {
		t.Fatalf("first submit: %+v, %v", first, err)
	}

	second, err := ing.Submit("p", map[string]any{"job": "B"}, nil)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.State != StateAlreadyRunning {
		t.Errorf("expected 'already_running', got %v", second.State)
	}
	if second.SocketToken != first.SocketToken {
		t.Errorf("expected echoed socket token %q, got %q", first.SocketToken, second.SocketToken)
	}
}

func TestIngressUnknownProject(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{})
	if _, err := ing.Submit("missing", nil, nil); err != ErrUnknownProject {
		t.Errorf("expected ErrUnknownProject, got %v", err)
	}
}

// TestIngressStatusAndWorkerDrain verifies the project's worker actually
// runs the submitted build to completion and Status reflects it.
func TestIngressStatusAndWorkerDrain(t *testing.T) {
	proj := config.ProjectConfig{
		AllowMultiBuild: true,
		MaxPendingBuild: 2,
		UniqueBuildKey:  "job",
		Build: config.BuildConfig{
			Commands: []config.CommandConfig{{Shell: "true", SendToSock: true}},
		},
	}
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": proj})

	if _, err := ing.Submit("p", map[string]any{"job": "A"}, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ps, _ := ing.Project("p")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(ps.History()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	history := ps.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Status != StatusSuccess {
		t.Errorf("expected Success, got %v", history[0].Status)
	}

	status, err := ing.Status("p")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.IsBuilding {
		t.Error("expected IsBuilding=false after drain")
	}
}
