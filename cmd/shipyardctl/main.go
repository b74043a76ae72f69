// Command shipyardctl is a thin HTTP client for triggering and
// inspecting builds against a running shipyardd instance.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return nil
	}

	cmd := os.Args[1]
	switch cmd {
	case "version", "-v", "--version":
		fmt.Printf("shipyardctl version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "submit":
		return cmdSubmit(os.Args[2:])
	case "status":
		return cmdStatus(os.Args[2:])
	case "abort":
		return cmdAbort(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func printUsage() {
	fmt.Println(`shipyardctl - shipyard build orchestrator client

Usage:
  shipyardctl <command> [options]

Commands:
  submit <base-url> <project> [key=value ...]   Submit a build
  status <base-url> <project>                   Check a project's build status
  abort  <base-url> <project> <key>=<value>     Abort a queued or running build
  version                                       Show version information
  help                                          Show this help message

The base URL is the project's registered prefix, e.g. http://localhost:8080/demo.
abort's key=value must match the project's configured unique_build_key, the
same field submit used to identify the build.`)
}

func cmdSubmit(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: shipyardctl submit <base-url> <project> [key=value ...]")
	}
	baseURL, project := args[0], args[1]

	payload := map[string]any{}
	for _, kv := range args[2:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid key=value pair: %q", kv)
		}
		payload[key] = value
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	resp, err := postJSON(fmt.Sprintf("%s/build", baseURL), body)
	if err != nil {
		return err
	}
	fmt.Printf("project %s: %s\n", project, resp)
	return nil
}

func cmdStatus(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: shipyardctl status <base-url> <project>")
	}
	baseURL, project := args[0], args[1]

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("%s/is_building", baseURL))
	if err != nil {
		return fmt.Errorf("requesting status: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Printf("project %s: %s\n", project, string(data))
	return nil
}

func cmdAbort(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: shipyardctl abort <base-url> <project> <key>=<value>")
	}
	baseURL, project := args[0], args[1]

	key, value, ok := strings.Cut(args[2], "=")
	if !ok {
		return fmt.Errorf("invalid key=value pair: %q", args[2])
	}

	payload := map[string]any{key: value}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	resp, err := postJSON(fmt.Sprintf("%s/abort", baseURL), body)
	if err != nil {
		return err
	}
	fmt.Printf("project %s: %s\n", project, resp)
	return nil
}

func postJSON(url string, body []byte) (string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return string(data), nil
}
