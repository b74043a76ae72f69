package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Resolver expands the three template surfaces named in the spec:
// command strings, response/webhook return-fields, and webhook bodies.
// It is pure and total — missing values resolve to empty strings, never
// errors — and performs no shell escaping; callers own that trust
// boundary in their own command templates.
type Resolver struct{}

// NewResolver returns a ready-to-use Resolver. It carries no state.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveCommand expands ${payload} and ${timestamp} inside a shell
// command template. No other tokens are substituted here.
func (r *Resolver) ResolveCommand(shell string, payload map[string]any) string {
	out := shell
	if strings.Contains(out, "${payload}") {
		out = strings.ReplaceAll(out, "${payload}", jsonString(payload))
	}
	if strings.Contains(out, "${timestamp}") {
		out = strings.ReplaceAll(out, "${timestamp}", time.Now().Format(time.RFC3339))
	}
	return out
}

// ResolveVariable expands a response return-field or webhook URL
// template: %status%, %socket_token%, $ENV/payload lookups, and bare
// payload keys.
func (r *Resolver) ResolveVariable(template string, payload map[string]any, socketToken, status string) string {
	switch {
	case template == "%status%":
		return status
	case template == "%socket_token%":
		return socketToken
	case strings.HasPrefix(template, "$"):
		name := template[1:]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return coerceString(payload[name])
	default:
		if v, ok := payload[template]; ok {
			return coerceString(v)
		}
		return template
	}
}

// ResolveWebhook expands a webhook URL or body template, additionally
// supporting ${payload} and ${result} beyond what ResolveVariable covers.
func (r *Resolver) ResolveWebhook(template string, payload map[string]any, result BuildResult) string {
	out := template
	if strings.Contains(out, "${payload}") {
		out = strings.ReplaceAll(out, "${payload}", jsonString(payload))
	}
	if strings.Contains(out, "${result}") {
		out = strings.ReplaceAll(out, "${result}", jsonString(result))
	}
	return out
}

// jsonString serializes v to JSON, falling back to an empty object on
// failure — the resolver is total and never surfaces marshal errors.
func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// coerceString stringifies a JSON-decoded value the way the resolver's
// bare-key lookups require: numbers and bools print their literal form,
// strings pass through unquoted, nil becomes empty.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
