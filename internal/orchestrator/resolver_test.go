package orchestrator

import (
	"os"
	"strings"
	"testing"
)

func TestResolveCommand(t *testing.T) {
	r := NewResolver()
	payload := map[string]any{"job": "A"}

	got := r.ResolveCommand(`echo ${payload}`, payload)
	if !strings.Contains(got, `"job":"A"`) {
		t.Errorf("ResolveCommand did not substitute payload JSON, got %q", got)
	}

	got = r.ResolveCommand("echo no-tokens-here", payload)
	if got != "echo no-tokens-here" {
		t.Errorf("ResolveCommand mutated a template with no tokens: %q", got)
	}
}

func TestResolveCommandTimestamp(t *testing.T) {
	r := NewResolver()
	got := r.ResolveCommand("echo ${timestamp}", nil)
	if strings.Contains(got, "${timestamp}") {
		t.Errorf("expected ${timestamp} to be substituted, got %q", got)
	}
}

func TestResolveVariableStatusAndToken(t *testing.T) {
	r := NewResolver()
	if got := r.ResolveVariable("%status%", nil, "TOK", "queued"); got != "queued" {
		t.Errorf("expected 'queued', got %q", got)
	}
	if got := r.ResolveVariable("%socket_token%", nil, "TOK", "queued"); got != "TOK" {
		t.Errorf("expected 'TOK', got %q", got)
	}
}

func TestResolveVariableEnvAndPayloadFallback(t *testing.T) {
	r := NewResolver()
	os.Setenv("SHIPYARD_TEST_VAR", "from-env")
	defer os.Unsetenv("SHIPYARD_TEST_VAR")

	if got := r.ResolveVariable("$SHIPYARD_TEST_VAR", nil, "", ""); got != "from-env" {
		t.Errorf("expected env value, got %q", got)
	}

	payload := map[string]any{"NOT_AN_ENV_VAR": "from-payload"}
	if got := r.ResolveVariable("$NOT_AN_ENV_VAR", payload, "", ""); got != "from-payload" {
		t.Errorf("expected payload fallback, got %q", got)
	}

	if got := r.ResolveVariable("$MISSING_EVERYWHERE", nil, "", ""); got != "" {
		t.Errorf("expected empty string for missing env+payload, got %q", got)
	}
}

func TestResolveVariableBareKey(t *testing.T) {
	r := NewResolver()
	payload := map[string]any{"branch": "main", "count": float64(3)}

	if got := r.ResolveVariable("branch", payload, "", ""); got != "main" {
		t.Errorf("expected 'main', got %q", got)
	}
	if got := r.ResolveVariable("count", payload, "", ""); got != "3" {
		t.Errorf("expected '3', got %q", got)
	}
	if got := r.ResolveVariable("unknown_key", payload, "", ""); got != "unknown_key" {
		t.Errorf("expected bare key unchanged, got %q", got)
	}
}

func TestResolveWebhookPayloadAndResult(t *testing.T) {
	r := NewResolver()
	payload := map[string]any{"job": "A"}
	result := BuildResult{UniqueID: "A", Status: StatusSuccess}

	got := r.ResolveWebhook("https://example.com/hook?p=${payload}&r=${result}", payload, result)
	if !strings.Contains(got, `"job":"A"`) {
		t.Errorf("expected payload JSON in webhook URL, got %q", got)
	}
	if !strings.Contains(got, `"status":"Success"`) {
		t.Errorf("expected result JSON in webhook URL, got %q", got)
	}
}
