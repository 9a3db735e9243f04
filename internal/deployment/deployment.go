package deployment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karmakaze/quicklog/internal/config"
	"github.com/karmakaze/quicklog/pkg/cmdutil"
)

// outputTailBytes bounds how much command output goes into a log line.
const outputTailBytes = 2048

// HeadReader reports the commit checked out in the working copy.
type HeadReader interface {
	Head() (string, error)
}

// StepResult is the outcome of one command of the sequence.
type StepResult struct {
	Command  string
	ExitCode int
	Duration time.Duration
	Err      error
}

// OK reports whether the command ran and exited 0.
func (s StepResult) OK() bool {
	return s.Err == nil && s.ExitCode == 0
}

// Report describes a finished deploy. It is used for logging and the
// delivery journal only; it never changes the webhook response.
type Report struct {
	Steps      []StepResult
	HeadBefore string
	HeadAfter  string
	Duration   time.Duration
}

// Failed returns the steps that did not succeed.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, step := range r.Steps {
		if !step.OK() {
			failed = append(failed, step)
		}
	}
	return failed
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

// Deployer runs the fixed command sequence for a matching push.
type Deployer struct {
	Target   config.Target
	Commands []Command
	Runner   Runner
	Head     HeadReader // optional
	Logger   *slog.Logger

	mu sync.Mutex // serializes whole sequences
}

// NewDeployer creates a deployer. head may be nil.
func NewDeployer(target config.Target, commands []Command, runner Runner, head HeadReader, logger *slog.Logger) *Deployer {
	return &Deployer{
		Target:   target,
		Commands: commands,
		Runner:   runner,
		Head:     head,
		Logger:   logger,
	}
}

// ShouldDeploy checks if the event matches the configured target.
func (d *Deployer) ShouldDeploy(event *PushEvent) bool {
	return event.Matches(d.Target)
}

// Deploy runs every command in order. A failing command is logged and the
// next one runs anyway. Concurrent calls wait for each other; each call runs
// the full sequence.
func (d *Deployer) Deploy(ctx context.Context) *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	report := &Report{
		Steps:      make([]StepResult, 0, len(d.Commands)),
		HeadBefore: d.readHead(),
	}

	for _, cmd := range d.Commands {
		d.Logger.Info("running deploy command", "command", cmd.Line)

		result, err := d.Runner.Run(ctx, cmd.Argv)
		step := StepResult{Command: cmd.Line, ExitCode: -1, Err: err}
		var output string
		if result != nil {
			step.ExitCode = result.ExitCode
			step.Duration = result.Duration
			output = cmdutil.TailOutput(result.Output, outputTailBytes)
		}
		report.Steps = append(report.Steps, step)

		if err != nil || !result.OK() {
			d.Logger.Error("deploy command failed",
				"command", cmd.Line,
				"exit_code", step.ExitCode,
				"error", err,
				"output", output)
			continue
		}
		d.Logger.Info("deploy command finished",
			"command", cmd.Line,
			"duration_ms", step.Duration.Milliseconds())
	}

	report.HeadAfter = d.readHead()
	report.Duration = time.Since(start)

	if report.HeadBefore != report.HeadAfter {
		d.Logger.Info("working copy updated", "from", report.HeadBefore, "to", report.HeadAfter)
	}

	return report
}

func (d *Deployer) readHead() string {
	if d.Head == nil {
		return ""
	}
	head, err := d.Head.Head()
	if err != nil {
		d.Logger.Warn("could not read working copy HEAD", "error", err)
		return ""
	}
	return head
}
