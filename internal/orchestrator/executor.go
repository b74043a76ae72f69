package orchestrator

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/shipyardci/shipyard/internal/config"
	"github.com/shipyardci/shipyard/internal/metrics"
)

// Executor runs one BuildProcess's command pipeline: spawning shells,
// streaming stdout/stderr through the project's LogBus, honoring
// per-command on-error policy, and supporting cooperative abort via the
// BuildProcess's own context (see REDESIGN note in types.go).
type Executor struct {
	resolver *Resolver
	webhook  *WebhookSender
	archive  *Archiver
	logger   *slog.Logger
}

// NewExecutor builds an Executor sharing the given collaborators across
// every build it runs.
func NewExecutor(resolver *Resolver, webhook *WebhookSender, archive *Archiver, logger *slog.Logger) *Executor {
	return &Executor{resolver: resolver, webhook: webhook, archive: archive, logger: logger}
}

// Run executes build, following spec §4.C's six-step algorithm, and
// returns the finished BuildResult.
func (e *Executor) Run(ctx context.Context, build *BuildProcess, bus *LogBus, proj config.ProjectConfig) BuildResult {
	e.appendAndPublish(build, bus, BuildLog{Timestamp: time.Now(), Step: 0, Level: LogInfo, Message: "Build started"})

	status := e.runCommands(ctx, build, bus, proj.Build.Commands, true)

	if status == StatusRunning {
		status = StatusSuccess
	}
	build.SetStatus(status)

	// Post-commands run after the main pipeline, always with continue
	// semantics and never altering the final status — except an abort
	// skips them entirely (§9's resolved reading of the ambiguity).
	if status != StatusAborted {
		var post []config.CommandConfig
		if status == StatusSuccess {
			post = proj.Build.RunOnSuccess
		} else {
			post = proj.Build.RunOnFailure
		}
		if len(post) > 0 {
			e.runCommands(ctx, build, bus, post, false)
		}
	}

	completedAt := time.Now()
	result := build.ToResult(completedAt)

	metrics.BuildsTotal.WithLabelValues(result.ProjectName, string(result.Status)).Inc()
	metrics.BuildDuration.WithLabelValues(result.ProjectName, string(result.Status)).Observe(result.DurationSeconds)

	if e.archive != nil {
		e.archive.Write(result)
	}
	if e.webhook != nil {
		url := proj.Build.OnSuccess
		if result.Status != StatusSuccess {
			url = proj.Build.OnFailure
		}
		if url != "" {
			e.webhook.Send(e.resolver, url, result)
		}
	}

	bus.Shutdown()
	return result
}

// runCommands runs one ordered list of command templates against build,
// honoring each template's on_error policy when abortOnFailure is true.
// Post-command lists always pass abortOnFailure=false: a failing
// post-command never aborts the build and never alters its status.
func (e *Executor) runCommands(ctx context.Context, build *BuildProcess, bus *LogBus, cmds []config.CommandConfig, abortOnFailure bool) Status {
	for i, tmpl := range cmds {
		step := i + 1
		if ctx.Err() != nil {
			return StatusAborted
		}

		resolved := e.resolver.ResolveCommand(tmpl.Shell, build.Payload)
		title := tmpl.Title
		if title == "" {
			title = resolved
		}
		e.appendAndPublish(build, bus, BuildLog{
			Timestamp: time.Now(), Step: step, Level: LogInfo,
			Message: "Executing: " + title, Command: resolved,
		})

		exitErr := e.runOne(ctx, build, bus, step, resolved, tmpl.SendToSock)

		if ctx.Err() != nil {
			return StatusAborted
		}

		if exitErr != nil {
			e.appendAndPublish(build, bus, BuildLog{
				Timestamp: time.Now(), Step: step, Level: LogError,
				Message: "Command failed: " + exitErr.Error(),
			})
			onError := tmpl.OnError
			if onError == "" {
				onError = "continue"
			}
			if abortOnFailure && onError == "abort" {
				return StatusFailed
			}
		}
	}
	return StatusRunning
}

// runOne spawns one resolved shell command and streams its stdout/stderr
// through the LogBus. Both streams are read to completion independently
// — unlike the reference implementation this was distilled from, which
// breaks its whole read loop the instant either stream hits EOF first,
// silently truncating whichever stream finished later.
func (e *Executor) runOne(ctx context.Context, build *BuildProcess, bus *LogBus, step int, shell string, sendToSock bool) error {
	cmd := exec.CommandContext(ctx, "bash", "-c", shell)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go e.streamLines(&wg, build, bus, step, LogInfo, stdout, sendToSock)
	go e.streamLines(&wg, build, bus, step, LogError, stderr, sendToSock)
	wg.Wait()

	return cmd.Wait()
}

// streamLines reads r line-by-line, appending (and optionally
// broadcasting) each as a log record at the given level.
func (e *Executor) streamLines(wg *sync.WaitGroup, build *BuildProcess, bus *LogBus, step int, level LogLevel, r io.Reader, sendToSock bool) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		log := BuildLog{Timestamp: time.Now(), Step: step, Level: level, Message: scanner.Text()}
		if sendToSock {
			e.appendAndPublish(build, bus, log)
		} else {
			// spec §4.C step 3 / §9: lines are always appended for
			// replay even when the per-line broadcast is suppressed.
			build.AppendLog(log)
			metrics.BuildLogLinesTotal.WithLabelValues(build.ProjectName).Inc()
		}
	}
}

func (e *Executor) appendAndPublish(build *BuildProcess, bus *LogBus, log BuildLog) {
	build.AppendLog(log)
	metrics.BuildLogLinesTotal.WithLabelValues(build.ProjectName).Inc()
	bus.Publish(log)
}
