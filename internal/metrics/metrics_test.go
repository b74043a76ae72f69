package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(mfs) == 0 {
		t.Error("expected metrics to be registered, got none")
	}
}

func TestRegisterWith(t *testing.T) {
	reg := prometheus.NewRegistry()

	RegisterWith(reg)

	_, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expectedCount := 11
	if len(allMetrics) != expectedCount {
		t.Errorf("expected %d metrics in allMetrics, got %d", expectedCount, len(allMetrics))
	}
}

func TestMetricLabels(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{
			name: "BuildsTotal",
			fn: func() {
				BuildsTotal.WithLabelValues("p", "success").Inc()
			},
		},
		{
			name: "BuildDuration",
			fn: func() {
				BuildDuration.WithLabelValues("p", "success").Observe(1.5)
			},
		},
		{
			name: "BuildLogLinesTotal",
			fn: func() {
				BuildLogLinesTotal.WithLabelValues("p").Inc()
			},
		},
		{
			name: "QueueDepth",
			fn: func() {
				QueueDepth.WithLabelValues("p").Set(3)
			},
		},
		{
			name: "QueueRejectedTotal",
			fn: func() {
				QueueRejectedTotal.WithLabelValues("p", "full").Inc()
			},
		},
		{
			name: "WebSocketSubscribersActive",
			fn: func() {
				WebSocketSubscribersActive.WithLabelValues("p").Set(2)
			},
		},
		{
			name: "WebSocketFramesDroppedTotal",
			fn: func() {
				WebSocketFramesDroppedTotal.WithLabelValues("p").Inc()
			},
		},
		{
			name: "APIRequestsTotal",
			fn: func() {
				APIRequestsTotal.WithLabelValues("/api/v1/p/build", "POST", "200").Inc()
			},
		},
		{
			name: "APIRequestDuration",
			fn: func() {
				APIRequestDuration.WithLabelValues("/api/v1/p/build", "POST").Observe(0.05)
			},
		},
		{
			name: "APIRequestSize",
			fn: func() {
				APIRequestSize.WithLabelValues("/api/v1/p/build", "POST").Observe(256)
			},
		},
		{
			name: "APIResponseSize",
			fn: func() {
				APIResponseSize.WithLabelValues("/api/v1/p/build", "POST").Observe(128)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn()
		})
	}
}

func TestLabelConstants(t *testing.T) {
	labels := map[string]string{
		"project":    LabelProject,
		"status":     LabelStatus,
		"endpoint":   LabelEndpoint,
		"method":     LabelMethod,
		"error_type": LabelErrorType,
	}

	for expected, got := range labels {
		if got != expected {
			t.Errorf("label constant mismatch: expected %q, got %q", expected, got)
		}
	}
}

func TestNamespaceAndSubsystems(t *testing.T) {
	if Namespace != "shipyard" {
		t.Errorf("expected namespace 'shipyard', got %q", Namespace)
	}

	subsystems := map[string]string{
		"build":     SubsystemBuild,
		"queue":     SubsystemQueue,
		"websocket": SubsystemWebSocket,
		"api":       SubsystemAPI,
	}

	for expected, got := range subsystems {
		if got != expected {
			t.Errorf("subsystem constant mismatch: expected %q, got %q", expected, got)
		}
	}
}
