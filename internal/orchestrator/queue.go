package orchestrator

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shipyardci/shipyard/internal/metrics"
)

// State is one of the literal status strings the HTTP ingress surface
// returns to clients, per spec §6.
type State string

const (
	StateUnauthorized            State = "unauthorized"
	StateMissing                 State = "missing"
	StateAlreadyRunning          State = "already_running"
	StateAlreadyRunningOtherProj State = "already_running_other_project"
	StateAlready                 State = "already"
	StateFull                    State = "full"
	StateBuilding                State = "building"
	StateAborted                 State = "aborted"
	StateNotFound                State = "not_found"
	StateSuccess                 State = "success"
)

// SubmitResult is the Ingress.Submit response per spec §4.E.
type SubmitResult struct {
	State       State
	BuildID     uuid.UUID
	SocketToken string
	QueueLength int
}

// CurrentInfo describes the running BuildProcess in a Status response.
type CurrentInfo struct {
	ID          uuid.UUID
	Status      Status
	CurrentStep int
	TotalSteps  int
	SocketToken string
}

// StatusResult is the Ingress.Status response per spec §4.E.
type StatusResult struct {
	IsBuilding  bool
	QueueLength int
	Current     *CurrentInfo
}

// AbortResult is the Ingress.Abort response per spec §4.E.
type AbortResult struct {
	State State
}

// QueueManager is the per-project singleton worker and admission
// controller described in spec §4.D. One QueueManager serves every
// project in the Registry; the worker goroutine it spawns per project is
// the only place commands actually run.
type QueueManager struct {
	registry   *Registry
	executor   *Executor
	logger     *slog.Logger
	onComplete func(BuildResult)
}

// NewQueueManager builds a QueueManager over registry, running builds
// through executor.
func NewQueueManager(registry *Registry, executor *Executor, logger *slog.Logger) *QueueManager {
	return &QueueManager{registry: registry, executor: executor, logger: logger}
}

// SetOnComplete registers a callback invoked with every finished build's
// result, after it has been appended to the project's in-memory history.
// Used to archive results to a durable store without the orchestrator
// package depending on one.
func (q *QueueManager) SetOnComplete(fn func(BuildResult)) {
	q.onComplete = fn
}

// Submit implements the admission table in spec §4.D: extracts the
// project's unique_build_key from payload, checks for conflicts with the
// running or queued build, enforces maxPending, and otherwise enqueues a
// new BuildRequest and (if idle) spawns the project's worker.
func (q *QueueManager) Submit(ps *ProjectState, payload map[string]any, files map[string]string) SubmitResult {
	if !hasRequiredFields(payload, ps.Cfg.API.Build.RequiredFields) {
		metrics.QueueRejectedTotal.WithLabelValues(ps.Name, string(StateMissing)).Inc()
		return SubmitResult{State: StateMissing}
	}

	uniqueID := coerceString(payload[ps.Cfg.UniqueBuildKey])
	if uniqueID == "" {
		metrics.QueueRejectedTotal.WithLabelValues(ps.Name, string(StateMissing)).Inc()
		return SubmitResult{State: StateMissing}
	}

	ps.mu.Lock()

	if !ps.Cfg.AllowMultiBuild && ps.current != nil {
		token := ps.current.SocketToken
		ps.mu.Unlock()
		metrics.QueueRejectedTotal.WithLabelValues(ps.Name, string(StateAlreadyRunning)).Inc()
		return SubmitResult{State: StateAlreadyRunning, SocketToken: token}
	}

	if ps.current != nil && ps.current.UniqueID == uniqueID {
		token := ps.current.SocketToken
		ps.mu.Unlock()
		metrics.QueueRejectedTotal.WithLabelValues(ps.Name, string(StateAlready)).Inc()
		return SubmitResult{State: StateAlready, SocketToken: token}
	}
	for _, req := range ps.queue {
		if req.UniqueID == uniqueID {
			token := req.SocketToken
			ps.mu.Unlock()
			metrics.QueueRejectedTotal.WithLabelValues(ps.Name, string(StateAlready)).Inc()
			return SubmitResult{State: StateAlready, SocketToken: token}
		}
	}

	maxPending := ps.Cfg.MaxPendingBuild
	if maxPending == 0 {
		maxPending = 10
	}
	if len(ps.queue) >= maxPending {
		qlen := len(ps.queue)
		ps.mu.Unlock()
		metrics.QueueRejectedTotal.WithLabelValues(ps.Name, string(StateFull)).Inc()
		return SubmitResult{State: StateFull, QueueLength: qlen}
	}

	req := &BuildRequest{
		ID:          uuid.New(),
		ProjectName: ps.Name,
		UniqueID:    uniqueID,
		Payload:     payload,
		Files:       files,
		CreatedAt:   time.Now(),
		SocketToken: GenerateSocketToken(),
	}
	ps.queue = append(ps.queue, req)
	needsWorker := !ps.workerAlive
	if needsWorker {
		ps.workerAlive = true
	}
	qlen := len(ps.queue)
	ps.mu.Unlock()

	metrics.QueueDepth.WithLabelValues(ps.Name).Set(float64(qlen))

	if needsWorker {
		go q.runWorker(ps)
	}

	return SubmitResult{State: StateBuilding, BuildID: req.ID, SocketToken: req.SocketToken, QueueLength: qlen}
}

// runWorker is the singleton per-project drain loop from spec §4.D: pop,
// run to completion, repeat until the queue is empty, then clear
// workerAlive and exit. A fresh Submit that finds workerAlive cleared
// will spawn a new one.
func (q *QueueManager) runWorker(ps *ProjectState) {
	for {
		ps.mu.Lock()
		if ps.current != nil {
			// Defensive: singleton invariant should make this
			// unreachable.
			ps.mu.Unlock()
			return
		}
		if len(ps.queue) == 0 {
			ps.workerAlive = false
			ps.mu.Unlock()
			return
		}
		req := ps.queue[0]
		ps.queue = ps.queue[1:]
		qlen := len(ps.queue)

		build, ctx := NewBuildProcess(*req, len(ps.Cfg.Build.Commands))
		bus := NewLogBus(build.ID, ps.Name)
		ps.current = build
		ps.currentBus = bus
		ps.mu.Unlock()

		metrics.QueueDepth.WithLabelValues(ps.Name).Set(float64(qlen))

		result := q.executor.Run(ctx, build, bus, ps.Cfg)

		ps.mu.Lock()
		ps.current = nil
		ps.currentBus = nil
		ps.mu.Unlock()

		ps.appendHistory(result)
		if q.onComplete != nil {
			q.onComplete(result)
		}
	}
}

// Status implements Ingress.Status.
func (q *QueueManager) Status(ps *ProjectState) StatusResult {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	result := StatusResult{IsBuilding: ps.current != nil, QueueLength: len(ps.queue)}
	if ps.current != nil {
		result.Current = &CurrentInfo{
			ID:          ps.current.ID,
			Status:      ps.current.GetStatus(),
			CurrentStep: ps.current.GetCurrentStep(),
			TotalSteps:  ps.current.TotalSteps,
			SocketToken: ps.current.SocketToken,
		}
	}
	return result
}

// Abort implements Ingress.Abort: queue entries are removed atomically
// with no process ever spawned; a running build is canceled via its own
// BuildProcess token rather than a shared flag (see REDESIGN, types.go).
func (q *QueueManager) Abort(ps *ProjectState, uniqueID string) AbortResult {
	ps.mu.Lock()

	for i, req := range ps.queue {
		if req.UniqueID == uniqueID {
			ps.queue = append(ps.queue[:i], ps.queue[i+1:]...)
			ps.mu.Unlock()
			return AbortResult{State: StateAborted}
		}
	}

	var toCancel *BuildProcess
	if ps.current != nil && ps.current.UniqueID == uniqueID {
		toCancel = ps.current
	}
	ps.mu.Unlock()

	if toCancel != nil {
		toCancel.Abort()
		return AbortResult{State: StateAborted}
	}
	return AbortResult{State: StateNotFound}
}

// hasRequiredFields reports whether payload sets every field the build
// endpoint declares as required. A leading "$" on a declared field name
// is trimmed before comparison, matching the original config's
// convention of writing required fields as "$field".
func hasRequiredFields(payload map[string]any, required []string) bool {
	for _, field := range required {
		name := strings.TrimPrefix(field, "$")
		if _, ok := payload[name]; !ok {
			return false
		}
	}
	return true
}
