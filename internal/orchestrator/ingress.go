package orchestrator

import (
	"errors"
)

// ErrUnknownProject is returned by Ingress methods when the caller names
// a project absent from the Registry.
var ErrUnknownProject = errors.New("unknown project")

// LogFrame is one replayed historical log record, shaped for the
// WebSocket history-replay array frame (spec §4.B/§6).
type LogFrame struct {
	Type    string   `json:"type"`
	BuildID string   `json:"build_id"`
	Step    int      `json:"step"`
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
	Time    string   `json:"timestamp"`
	Command string   `json:"command,omitempty"`
}

// SubscribeResult carries everything Subscribe needs to hand a WebSocket
// handler: the history to replay immediately, then a live channel plus a
// detach function.
type SubscribeResult struct {
	History []LogFrame
	Live    <-chan []byte
	Detach  func()
}

// Ingress implements the four operations the HTTP layer invokes against
// the core, per spec §4.E: Submit, Status, Abort, Subscribe. It is the
// only entry point handlers call into the orchestrator through.
type Ingress struct {
	registry *Registry
	queue    *QueueManager
	resolver *Resolver
}

// NewIngress composes the Registry and QueueManager into the Ingress
// Contract surface.
func NewIngress(registry *Registry, queue *QueueManager, resolver *Resolver) *Ingress {
	return &Ingress{registry: registry, queue: queue, resolver: resolver}
}

// Resolver exposes the shared resolver so handlers can expand
// return-field templates against a Submit/Status response.
func (i *Ingress) Resolver() *Resolver {
	return i.resolver
}

// Project resolves a project name to its state, or ErrUnknownProject.
func (i *Ingress) Project(name string) (*ProjectState, error) {
	ps := i.registry.Get(name)
	if ps == nil {
		return nil, ErrUnknownProject
	}
	return ps, nil
}

// Submit enqueues a build for the named project, per spec §4.D/§4.E.
func (i *Ingress) Submit(projectName string, payload map[string]any, files map[string]string) (SubmitResult, error) {
	ps, err := i.Project(projectName)
	if err != nil {
		return SubmitResult{}, err
	}
	return i.queue.Submit(ps, payload, files), nil
}

// Status reports the named project's queue and current build, per
// spec §4.E.
func (i *Ingress) Status(projectName string) (StatusResult, error) {
	ps, err := i.Project(projectName)
	if err != nil {
		return StatusResult{}, err
	}
	return i.queue.Status(ps), nil
}

// Abort cancels a queued or running build by its uniqueId, per spec §4.D.
func (i *Ingress) Abort(projectName, uniqueID string) (AbortResult, error) {
	ps, err := i.Project(projectName)
	if err != nil {
		return AbortResult{}, err
	}
	return i.queue.Abort(ps, uniqueID), nil
}

// Subscribe attaches to the named project's currently-running build, per
// spec §4.E: rejects when no build is running or when token does not
// match its socketToken. History is snapshotted before the live channel
// is attached, so a late subscriber never misses a record outright
// between replay and live-attach, at the acceptable cost (per the
// lossy-but-ordered contract in §4.B) of seeing the rare record twice.
func (i *Ingress) Subscribe(projectName, token string) (*SubscribeResult, error) {
	ps, err := i.Project(projectName)
	if err != nil {
		return nil, err
	}

	current, bus := ps.Current()
	if current == nil || bus == nil || current.SocketToken != token {
		return nil, ErrNoMatchingBuild
	}

	history := current.LogsSnapshot()
	frames := make([]LogFrame, len(history))
	for idx, l := range history {
		frames[idx] = LogFrame{
			Type:    "log",
			BuildID: current.ID.String(),
			Step:    l.Step,
			Level:   l.Level,
			Message: l.Message,
			Time:    l.Timestamp.Format(rfc3339Milli),
			Command: l.Command,
		}
	}

	live, detach := bus.Subscribe()
	return &SubscribeResult{History: frames, Live: live, Detach: detach}, nil
}

// ErrNoMatchingBuild is returned by Subscribe when no current build
// exists for the project or the supplied token does not match it.
var ErrNoMatchingBuild = errors.New("no matching build for subscribe token")

// ResolveReturnFields expands a project's endpoint-level ReturnFields
// template map against payload/socketToken/status, producing the extra
// keys merged into a JSON response's data object per spec §6.
func (i *Ingress) ResolveReturnFields(fields map[string]string, payload map[string]any, socketToken string, status State) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, tmpl := range fields {
		out[k] = i.resolver.ResolveVariable(tmpl, payload, socketToken, string(status))
	}
	return out
}
