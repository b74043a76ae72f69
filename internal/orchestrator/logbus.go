package orchestrator

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/shipyardci/shipyard/internal/metrics"
)

// logFrame is the wire shape of one live log record, per spec §4.B /
// §6's WebSocket frame contract.
type logFrame struct {
	Type    string   `json:"type"`
	BuildID uuid.UUID `json:"build_id"`
	Step    int      `json:"step"`
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
	Time    string   `json:"timestamp"`
	Command string   `json:"command,omitempty"`
}

// shutdownFrame is the terminal marker that closes a subscriber's socket.
type shutdownFrame struct {
	Type string `json:"type"`
}

// subscriberBufferSize bounds each subscriber's channel so a slow reader
// can never block the executor: broadcast is lossy-but-ordered, per
// spec §4.B — full buffers drop the new frame rather than blocking.
const subscriberBufferSize = 100

// subscriber is one live WebSocket consumer of a build's log stream.
type subscriber struct {
	ch chan []byte
}

// LogBus is the per-build broadcast channel described in spec §4.B. One
// LogBus exists per active BuildProcess; it is discarded once the build
// finishes and its subscribers have drained the Shutdown marker.
//
// Grounded on the teacher's installer/websocket.go LogHub — a
// mutex-guarded set of connections fanned out from a single append point
// — generalized here from a per-deployment connection set to a
// per-build one with an added replay-then-live contract.
type LogBus struct {
	buildID uuid.UUID
	project string

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewLogBus creates the broadcast channel for one build, under the named
// project (used only to label metrics).
func NewLogBus(buildID uuid.UUID, project string) *LogBus {
	return &LogBus{
		buildID:     buildID,
		project:     project,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish serializes and broadcasts one log record to every live
// subscriber. It never blocks: a subscriber whose buffer is full simply
// misses this frame.
func (b *LogBus) Publish(log BuildLog) {
	frame := logFrame{
		Type:    "log",
		BuildID: b.buildID,
		Step:    log.Step,
		Level:   log.Level,
		Message: log.Message,
		Time:    log.Timestamp.Format(rfc3339Milli),
		Command: log.Command,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	b.broadcast(data)
}

// Shutdown broadcasts the terminal marker and prevents further broadcast.
func (b *LogBus) Shutdown() {
	data, err := json.Marshal(shutdownFrame{Type: "shutdown"})
	if err == nil {
		b.broadcast(data)
	}
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *LogBus) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subscribers {
		select {
		case s.ch <- data:
		default:
			// subscriber too slow; drop this frame rather than block
			// the executor or reorder subsequent frames.
			metrics.WebSocketFramesDroppedTotal.WithLabelValues(b.project).Inc()
		}
	}
}

// Subscribe attaches a new subscriber and returns a receive channel plus
// a detach function. Callers must first send the history replay frame
// themselves (see History) so that ordering (history, then live) holds
// even though replay and live-attach race against new Publish calls —
// Attach always locks before reading history so no live frame can be
// queued on the new channel before the snapshot is taken.
func (b *LogBus) Subscribe() (<-chan []byte, func()) {
	s := &subscriber{ch: make(chan []byte, subscriberBufferSize)}

	b.mu.Lock()
	attached := !b.closed
	if attached {
		b.subscribers[s] = struct{}{}
	}
	b.mu.Unlock()
	if attached {
		metrics.WebSocketSubscribersActive.WithLabelValues(b.project).Inc()
	}

	detach := func() {
		b.mu.Lock()
		_, ok := b.subscribers[s]
		delete(b.subscribers, s)
		b.mu.Unlock()
		if ok {
			metrics.WebSocketSubscribersActive.WithLabelValues(b.project).Dec()
		}
	}
	return s.ch, detach
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
