package display

import (
	"fmt"
	"runtime"

	"cloupeer.io/displayagent/internal/displayagent/core"
	"cloupeer.io/displayagent/pkg/options"
)

// Platform command lines. The darwin pair only speaks the target and is
// meant for trying the agent out on a laptop.
const (
	windowsExternal = "DisplaySwitch.exe /external"
	windowsInternal = "DisplaySwitch.exe /internal"
	darwinExternal  = "say external display"
	darwinInternal  = "say internal display"
)

// New selects the executor for this machine. It runs once at startup and the
// result is handed to the agent as its Executor.
func New(opts *options.DisplayOptions) (core.Executor, error) {
	return newForPlatform(opts, runtime.GOOS)
}

func newForPlatform(opts *options.DisplayOptions, goos string) (core.Executor, error) {
	kind := opts.Executor
	if kind == "" || kind == options.ExecutorAuto {
		kind = goos
	}

	switch kind {
	case options.ExecutorNoop:
		return NewNoopExecutor(), nil
	case options.ExecutorWindows:
		return NewCommandExecutor(kind,
			orDefault(opts.ExternalCommand, windowsExternal),
			orDefault(opts.InternalCommand, windowsInternal),
			opts.CommandTimeout)
	case options.ExecutorDarwin:
		return NewCommandExecutor(kind,
			orDefault(opts.ExternalCommand, darwinExternal),
			orDefault(opts.InternalCommand, darwinInternal),
			opts.CommandTimeout)
	}

	// Everything else has no built-in switch command and needs one configured.
	if opts.ExternalCommand == "" || opts.InternalCommand == "" {
		if kind == options.ExecutorCommand {
			return nil, fmt.Errorf("display executor %q needs both external and internal commands", kind)
		}
		return nil, fmt.Errorf("display switching is unsupported on %q: configure --display.external-command and --display.internal-command", kind)
	}
	return NewCommandExecutor(kind, opts.ExternalCommand, opts.InternalCommand, opts.CommandTimeout)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
