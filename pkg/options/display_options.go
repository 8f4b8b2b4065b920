package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DisplayOptions)(nil)

// Executor kinds understood by the display factory.
const (
	ExecutorAuto    = "auto"
	ExecutorWindows = "windows"
	ExecutorDarwin  = "darwin"
	ExecutorLinux   = "linux"
	ExecutorCommand = "command"
	ExecutorNoop    = "noop"
)

// DisplayOptions selects and configures the executor that switches displays.
type DisplayOptions struct {
	// Executor is one of auto, windows, darwin, linux, command or noop.
	Executor string `json:"executor" mapstructure:"executor"`

	// ExternalCommand and InternalCommand override the platform command lines.
	ExternalCommand string `json:"external-command" mapstructure:"external-command"`
	InternalCommand string `json:"internal-command" mapstructure:"internal-command"`

	// CommandTimeout bounds a single switch command.
	CommandTimeout time.Duration `json:"command-timeout" mapstructure:"command-timeout"`
}

// NewDisplayOptions creates a DisplayOptions with default values.
func NewDisplayOptions() *DisplayOptions {
	return &DisplayOptions{
		Executor:       ExecutorAuto,
		CommandTimeout: 30 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DisplayOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Executor {
	case ExecutorAuto, ExecutorWindows, ExecutorDarwin, ExecutorLinux, ExecutorNoop:
	case ExecutorCommand:
		if o.ExternalCommand == "" || o.InternalCommand == "" {
			errors = append(errors, fmt.Errorf("display: executor %q needs both external-command and internal-command", o.Executor))
		}
	default:
		errors = append(errors, fmt.Errorf("display: unknown executor %q", o.Executor))
	}
	if o.CommandTimeout <= 0 {
		errors = append(errors, fmt.Errorf("display: command-timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for DisplayOptions to the specified FlagSet.
func (o *DisplayOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Executor, "display.executor", o.Executor, "Display executor: auto, windows, darwin, linux, command or noop.")
	fs.StringVar(&o.ExternalCommand, "display.external-command", o.ExternalCommand, "Command line that switches to the external display.")
	fs.StringVar(&o.InternalCommand, "display.internal-command", o.InternalCommand, "Command line that switches to the internal display.")
	fs.DurationVar(&o.CommandTimeout, "display.command-timeout", o.CommandTimeout, "Timeout of a single display switch command.")
}
