// Package orchestrator implements the build orchestration core: the
// resolver, log bus, executor, and per-project queue manager that sit
// beneath the HTTP ingress layer.
package orchestrator

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel classifies a BuildLog record.
type LogLevel string

const (
	LogInfo    LogLevel = "Info"
	LogWarning LogLevel = "Warning"
	LogError   LogLevel = "Error"
	LogSuccess LogLevel = "Success"
)

// Status is the lifecycle state of a BuildProcess.
type Status string

const (
	StatusQueued  Status = "Queued"
	StatusRunning Status = "Running"
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusAborted Status = "Aborted"
)

// BuildLog is one immutable log record emitted during a build.
type BuildLog struct {
	Timestamp time.Time `json:"timestamp"`
	Step      int       `json:"step"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Command   string    `json:"command,omitempty"`
}

// BuildRequest is what Submit creates: a pending build not yet dequeued.
type BuildRequest struct {
	ID          uuid.UUID
	ProjectName string
	UniqueID    string
	Payload     map[string]any
	Files       map[string]string
	CreatedAt   time.Time
	SocketToken string
}

// BuildProcess is the live form of a BuildRequest once dequeued by the
// project's worker. Exactly zero or one may exist per project at a time.
type BuildProcess struct {
	BuildRequest

	mu          sync.Mutex
	Status      Status
	CurrentStep int
	TotalSteps  int
	StartedAt   time.Time
	Logs        []BuildLog

	cancel context.CancelFunc
}

// NewBuildProcess promotes a BuildRequest to a running BuildProcess,
// minting the per-build cancellation token that Abort later signals.
// This is the REDESIGN adopted in place of the single shared abort flag:
// each build owns its own token rather than a server-wide cell.
func NewBuildProcess(req BuildRequest, totalSteps int) (*BuildProcess, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &BuildProcess{
		BuildRequest: req,
		Status:       StatusRunning,
		TotalSteps:   totalSteps,
		StartedAt:    time.Now(),
		cancel:       cancel,
	}, ctx
}

// Abort cancels this build's context. Safe to call multiple times.
func (b *BuildProcess) Abort() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AppendLog appends a log record, enforcing the monotone-step invariant
// by clamping Step to the highest step seen so far.
func (b *BuildProcess) AppendLog(log BuildLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.Logs); n > 0 && log.Step < b.Logs[n-1].Step {
		log.Step = b.Logs[n-1].Step
	}
	b.Logs = append(b.Logs, log)
	b.CurrentStep = log.Step
}

// LogsSnapshot returns a copy of the logs appended so far, safe to hand
// to a late-joining subscriber without racing the executor.
func (b *BuildProcess) LogsSnapshot() []BuildLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BuildLog, len(b.Logs))
	copy(out, b.Logs)
	return out
}

// SetStatus transitions the build to a terminal status.
func (b *BuildProcess) SetStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = s
}

// GetStatus reads the current status.
func (b *BuildProcess) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Status
}

// GetCurrentStep reads the step of the most recently appended log,
// guarded the same as AppendLog's write to avoid racing the executor.
func (b *BuildProcess) GetCurrentStep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CurrentStep
}

// BuildResult is the archival form of a completed BuildProcess.
type BuildResult struct {
	ID              uuid.UUID       `json:"id"`
	ProjectName     string          `json:"project_name"`
	UniqueID        string          `json:"unique_id"`
	Status          Status          `json:"status"`
	Logs            []BuildLog      `json:"logs"`
	Payload         map[string]any  `json:"payload"`
	SocketToken     string          `json:"socket_token"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// ToResult snapshots a finished BuildProcess into its archival form.
func (b *BuildProcess) ToResult(completedAt time.Time) BuildResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	logs := make([]BuildLog, len(b.Logs))
	copy(logs, b.Logs)
	return BuildResult{
		ID:              b.ID,
		ProjectName:     b.ProjectName,
		UniqueID:        b.UniqueID,
		Status:          b.Status,
		Logs:            logs,
		Payload:         b.Payload,
		SocketToken:     b.SocketToken,
		StartedAt:       b.StartedAt,
		CompletedAt:     completedAt,
		DurationSeconds: completedAt.Sub(b.StartedAt).Seconds(),
	}
}

// tokenAlphabet is used to mint socket tokens; spec requires a 32-char
// alphanumeric string, not a UUID.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSocketToken mints a 32-char alphanumeric token, unique per
// BuildRequest, and the sole credential for subscribing to its log stream.
func GenerateSocketToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a degraded but still unpredictable seed rather than panicking.
		for i := range buf {
			buf[i] = byte(time.Now().UnixNano() >> uint(i%8))
		}
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf)
}
