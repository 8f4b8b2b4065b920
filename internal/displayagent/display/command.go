package display

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"

	"cloupeer.io/displayagent/internal/displayagent/core"
	"cloupeer.io/displayagent/pkg/log"
)

const defaultCommandTimeout = 30 * time.Second

// CommandExecutor switches displays by running an external program.
type CommandExecutor struct {
	external []string
	internal []string
	timeout  time.Duration
	logger   log.Logger
}

var _ core.Executor = (*CommandExecutor)(nil)

// NewCommandExecutor parses the two command lines with shell quoting rules.
func NewCommandExecutor(name, external, internal string, timeout time.Duration) (*CommandExecutor, error) {
	ext, err := parseCommandLine(external)
	if err != nil {
		return nil, fmt.Errorf("external command: %w", err)
	}
	in, err := parseCommandLine(internal)
	if err != nil {
		return nil, fmt.Errorf("internal command: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	return &CommandExecutor{
		external: ext,
		internal: in,
		timeout:  timeout,
		logger:   log.WithName("display").WithValues("executor", name),
	}, nil
}

func parseCommandLine(line string) ([]string, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command line")
	}
	return argv, nil
}

func (e *CommandExecutor) SwitchToExternal(ctx context.Context) {
	e.run(ctx, core.PayloadExternal, e.external)
}

func (e *CommandExecutor) SwitchToInternal(ctx context.Context) {
	e.run(ctx, core.PayloadInternal, e.internal)
}

func (e *CommandExecutor) run(ctx context.Context, target string, argv []string) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		e.logger.Info("Command output", "target", target, "line", scanner.Text())
	}

	if err != nil {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		e.logger.Error(err, "Display switch failed", "target", target, "command", argv[0], "exitCode", exitCode)
		return
	}

	e.logger.Info("Display switched", "target", target, "duration", time.Since(start))
}

// NoopExecutor only logs the requested switch.
type NoopExecutor struct {
	logger log.Logger
}

var _ core.Executor = (*NoopExecutor)(nil)

func NewNoopExecutor() *NoopExecutor {
	return &NoopExecutor{logger: log.WithName("display").WithValues("executor", "noop")}
}

func (n *NoopExecutor) SwitchToExternal(context.Context) {
	n.logger.Info("Would switch display", "target", core.PayloadExternal)
}

func (n *NoopExecutor) SwitchToInternal(context.Context) {
	n.logger.Info("Would switch display", "target", core.PayloadInternal)
}
