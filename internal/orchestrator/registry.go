package orchestrator

import (
	"sync"
	"time"

	"github.com/shipyardci/shipyard/internal/config"
)

// ProjectState is the per-project shared state described in spec §3:
// created at startup, never destroyed, shared by the HTTP layer, the
// queue worker, and WebSocket handlers. All mutation of queue/current
// happens under mu.
type ProjectState struct {
	Name string
	Cfg  config.ProjectConfig

	mu          sync.Mutex
	queue       []*BuildRequest
	current     *BuildProcess
	currentBus  *LogBus
	workerAlive bool

	historyMu sync.RWMutex
	history   []BuildResult
}

// newProjectState constructs the empty, never-destroyed state cell for
// one configured project.
func newProjectState(name string, cfg config.ProjectConfig) *ProjectState {
	return &ProjectState{Name: name, Cfg: cfg}
}

// QueueLength returns the current pending-queue depth.
func (p *ProjectState) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Current returns the currently-running BuildProcess and its LogBus, if
// any.
func (p *ProjectState) Current() (*BuildProcess, *LogBus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.currentBus
}

// History returns a snapshot of completed builds, most-recent last.
func (p *ProjectState) History() []BuildResult {
	p.historyMu.RLock()
	defer p.historyMu.RUnlock()
	out := make([]BuildResult, len(p.history))
	copy(out, p.history)
	return out
}

// appendHistory records a finished build's result.
func (p *ProjectState) appendHistory(r BuildResult) {
	p.historyMu.Lock()
	p.history = append(p.history, r)
	p.historyMu.Unlock()
}

// AppendHistory records a finished build's result from outside the
// package, e.g. when a history store replays prior runs on startup.
func (p *ProjectState) AppendHistory(r BuildResult) {
	p.appendHistory(r)
}

// PruneHistory discards completed-build records older than cutoff.
func (p *ProjectState) PruneHistory(cutoff time.Time) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	kept := p.history[:0]
	for _, r := range p.history {
		if r.CompletedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	p.history = kept
}

// Registry owns every configured project's state, resolving the cyclic
// ownership noted in spec §9 (ProjectState ↔ executor goroutine ↔ abort
// signaling) with an index-keyed map: goroutines hold only a project
// name plus a handle back into the registry, never a direct pointer
// cycle.
type Registry struct {
	projects map[string]*ProjectState
}

// NewRegistry builds a Registry with one ProjectState per configured
// project.
func NewRegistry(projects map[string]config.ProjectConfig) *Registry {
	r := &Registry{projects: make(map[string]*ProjectState, len(projects))}
	for name, cfg := range projects {
		r.projects[name] = newProjectState(name, cfg)
	}
	return r
}

// Get returns the named project's state, or nil if unconfigured.
func (r *Registry) Get(name string) *ProjectState {
	return r.projects[name]
}

// Names returns every configured project name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.projects))
	for name := range r.projects {
		names = append(names, name)
	}
	return names
}
