package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
name = "ci-server"
port = 9000
base_path = "/hooks"
log_path = "/var/log/shipyard"

[auth]
type = "token"
allowed_tokens = ["topsecret"]

[projects.demo]
allow_multi_build = true
max_pending_build = 2
base_endpoint_path = "/demo"
unique_build_key = "job"

[projects.demo.api.build]
endpoint = "build"

[projects.demo.api.is_building]
endpoint = "is_building"

[projects.demo.api.abort]
endpoint = "abort"

[projects.demo.api.cleanup]
endpoint = "cleanup"

[projects.demo.api.socket]
endpoint = "socket"

[[projects.demo.build.commands]]
shell = "echo hi"
title = "say hi"
on_error = "continue"
send_to_sock = true

[[projects.demo.build.commands]]
shell = "false"
title = "fail"
on_error = "abort"
send_to_sock = true

[[projects.demo.build.run_on_failure]]
shell = "echo cleanup"
title = "cleanup"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shipyard.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Name != "ci-server" {
		t.Errorf("Name = %v, want ci-server", cfg.Name)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %v, want 9000", cfg.Port)
	}
	if cfg.Auth.Type != AuthTypeToken {
		t.Errorf("Auth.Type = %v, want token", cfg.Auth.Type)
	}

	proj, ok := cfg.Projects["demo"]
	if !ok {
		t.Fatalf("expected project 'demo' to be present")
	}
	if proj.UniqueBuildKey != "job" {
		t.Errorf("UniqueBuildKey = %v, want job", proj.UniqueBuildKey)
	}
	if len(proj.Build.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(proj.Build.Commands))
	}
	if proj.Build.Commands[1].OnError != "abort" {
		t.Errorf("Commands[1].OnError = %v, want abort", proj.Build.Commands[1].OnError)
	}
	if len(proj.Build.RunOnFailure) != 1 {
		t.Fatalf("expected 1 run_on_failure command, got %d", len(proj.Build.RunOnFailure))
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[projects.demo]
unique_build_key = "job"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %v, want default 8080", cfg.Port)
	}
	if cfg.LogPath != "./logs" {
		t.Errorf("LogPath = %v, want default ./logs", cfg.LogPath)
	}
	if cfg.History.Backend != "memory" {
		t.Errorf("History.Backend = %v, want memory", cfg.History.Backend)
	}
	if cfg.Projects["demo"].MaxPendingBuild != 10 {
		t.Errorf("MaxPendingBuild = %v, want default 10", cfg.Projects["demo"].MaxPendingBuild)
	}
}

func TestLoadRejectsMissingUniqueBuildKey(t *testing.T) {
	path := writeTempConfig(t, `
[projects.demo]
allow_multi_build = true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing unique_build_key, got nil")
	}
}

func TestLoadRejectsInvalidOnError(t *testing.T) {
	path := writeTempConfig(t, `
[projects.demo]
unique_build_key = "job"

[[projects.demo.build.commands]]
shell = "echo hi"
on_error = "retry"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid on_error, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAuthConfigIsSet(t *testing.T) {
	if (AuthConfig{}).IsSet() {
		t.Error("empty AuthConfig should not be set")
	}
	if !(AuthConfig{Type: AuthTypeAddress}).IsSet() {
		t.Error("AuthConfig with Type set should report IsSet")
	}
}
