package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shipyardci/shipyard/internal/config"
	"github.com/shipyardci/shipyard/internal/orchestrator"
)

func TestOpen_MemoryBackendIsNoop(t *testing.T) {
	s, err := Open(config.HistoryConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if err := s.Record(context.Background(), orchestrator.BuildResult{}); err != nil {
		t.Errorf("expected noop Record to succeed, got %v", err)
	}
	results, err := s.Load(context.Background(), "anything")
	if err != nil {
		t.Errorf("expected noop Load to succeed, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no history from noop store, got %d", len(results))
	}
}

func TestOpen_EmptyBackendDefaultsToMemory(t *testing.T) {
	s, err := Open(config.HistoryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if _, ok := s.(noopStore); !ok {
		t.Errorf("expected noopStore for empty backend, got %T", s)
	}
}

func TestOpen_UnknownBackendErrors(t *testing.T) {
	if _, err := Open(config.HistoryConfig{Backend: "bogus"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

// fakeStore is an in-memory stand-in implementing Store, used to test
// Replay without a real database.
type fakeStore struct {
	byProject map[string][]orchestrator.BuildResult
}

func (f *fakeStore) Record(ctx context.Context, result orchestrator.BuildResult) error {
	return nil
}

func (f *fakeStore) Load(ctx context.Context, projectName string) ([]orchestrator.BuildResult, error) {
	return f.byProject[projectName], nil
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Close() error { return nil }

func TestReplay_PopulatesProjectHistory(t *testing.T) {
	registry := orchestrator.NewRegistry(map[string]config.ProjectConfig{"demo": {}})

	archived := orchestrator.BuildResult{
		ID:          uuid.New(),
		ProjectName: "demo",
		UniqueID:    "job-1",
		Status:      orchestrator.StatusSuccess,
		CompletedAt: time.Now().AddDate(0, 0, -1),
	}
	fake := &fakeStore{byProject: map[string][]orchestrator.BuildResult{"demo": {archived}}}

	if err := Replay(context.Background(), fake, registry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := registry.Get("demo").History()
	if len(history) != 1 {
		t.Fatalf("expected 1 replayed history entry, got %d", len(history))
	}
	if history[0].UniqueID != "job-1" {
		t.Errorf("expected unique_id 'job-1', got %q", history[0].UniqueID)
	}
}
