package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/karmakaze/quicklog/pkg/cmdutil"
)

// Runner executes one command. Implementations must return a non-nil
// Result whenever the process was attempted.
type Runner interface {
	Run(ctx context.Context, argv []string) (*cmdutil.Result, error)
}

// ExecRunner runs commands as child processes, without a shell, in Dir.
type ExecRunner struct {
	Dir     string
	Timeout time.Duration // per command; zero means no limit
}

// NewExecRunner creates a runner for the given working directory.
func NewExecRunner(dir string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{Dir: dir, Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (*cmdutil.Result, error) {
	return cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:     r.Dir,
		Timeout: r.Timeout,
	}, argv)
}

// Command is one step of the deploy sequence.
type Command struct {
	Line string   // as configured, used for logging
	Argv []string // what is executed
}

// ParseCommands splits configured command lines into argv.
func ParseCommands(lines []string) ([]Command, error) {
	commands := make([]Command, 0, len(lines))
	for i, line := range lines {
		argv, err := cmdutil.ParseCommandString(line)
		if err != nil {
			return nil, fmt.Errorf("command %d (%q): %w", i, line, err)
		}
		commands = append(commands, Command{Line: line, Argv: argv})
	}
	return commands, nil
}
