package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/shipyardci/shipyard/internal/config"
)

// TestIngressSubscribeLateJoin mirrors spec §8 scenario S6: a subscriber
// attaching mid-build first sees history replay, then live frames,
// without duplicating the already-replayed "mid" line.
func TestIngressSubscribeLateJoin(t *testing.T) {
	proj := config.ProjectConfig{
		AllowMultiBuild: true,
		MaxPendingBuild: 1,
		UniqueBuildKey:  "job",
		Build: config.BuildConfig{
			Commands: []config.CommandConfig{
				{Shell: "sleep 1; echo mid; sleep 1", SendToSock: true},
			},
		},
	}
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": proj})

	submit, err := ing.Submit("p", map[string]any{"job": "A"}, nil)
	if err != nil || submit.State != StateBuilding {
		t.Fatalf("submit: %+v, %v", submit, err)
	}

	time.Sleep(300 * time.Millisecond)

	sub, err := ing.Subscribe("p", submit.SocketToken)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Detach()

	foundStarted := false
	for _, f := range sub.History {
		if strings.Contains(f.Message, "Build started") {
			foundStarted = true
		}
	}
	if !foundStarted {
		t.Error("expected history replay to include 'Build started'")
	}

	deadline := time.Now().Add(3 * time.Second)
	midCount := 0
	for time.Now().Before(deadline) {
		select {
		case data := <-sub.Live:
			if strings.Contains(string(data), `"mid"`) {
				midCount++
			}
			if strings.Contains(string(data), "shutdown") {
				deadline = time.Now()
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if midCount == 0 {
		t.Error("expected at least one live frame containing 'mid'")
	}
}

func TestIngressSubscribeRejectsWrongToken(t *testing.T) {
	proj := longRunningProject()
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": proj})

	if _, err := ing.Submit("p", map[string]any{"job": "A"}, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := ing.Subscribe("p", "wrong-token"); err != ErrNoMatchingBuild {
		t.Errorf("expected ErrNoMatchingBuild, got %v", err)
	}
}

func TestIngressSubscribeRejectsWhenNoCurrentBuild(t *testing.T) {
	proj := longRunningProject()
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": proj})

	if _, err := ing.Subscribe("p", "anything"); err != ErrNoMatchingBuild {
		t.Errorf("expected ErrNoMatchingBuild, got %v", err)
	}
}

func TestIngressResolveReturnFields(t *testing.T) {
	ing := newTestIngress(t, map[string]config.ProjectConfig{"p": longRunningProject()})
	fields := map[string]string{"status_field": "%status%", "branch": "branch"}
	resolved := ing.ResolveReturnFields(fields, map[string]any{"branch": "main"}, "TOK", StateBuilding)

	if resolved["status_field"] != "building" {
		t.Errorf("status_field = %q, want building", resolved["status_field"])
	}
	if resolved["branch"] != "main" {
		t.Errorf("branch = %q, want main", resolved["branch"])
	}
}
