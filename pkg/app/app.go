package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"
)

// RunFunc is the entry point of an application once its options are loaded and validated.
type RunFunc func() error

// NamedFlagSetOptions is implemented by the option set of an application.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills the defaults that depend on other options.
	Complete() error
	// Validate checks the completed options.
	Validate() error
}

// App is a cobra command whose flags can also come from a config file and the environment.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	envPrefix   string
	aliases     map[string]string

	configFile  string
	printConfig bool

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithDescription sets the long description shown in help.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions sets the option set loaded before run.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the function executed after the options are validated.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithEnvPrefix sets the prefix of environment overrides. Defaults to the
// upper-cased application name.
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

// WithConfigKeyAliases maps deprecated config file keys onto current ones.
// A current key that is set anywhere wins over its alias.
func WithConfigKeyAliases(aliases map[string]string) Option {
	return func(a *App) { a.aliases = aliases }
}

// NewApp creates an application named name.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		envPrefix: envPrefixFor(name),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command line.
func (a *App) Run() error {
	return a.cmd.Execute()
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.run(cmd); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			return nil
		},
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}

	global := fss.FlagSet("global")
	global.StringVarP(&a.configFile, "config", "c", "", "Read configuration from the specified file (.properties, .yaml, .toml or .json).")
	global.BoolVar(&a.printConfig, "print-config", false, "Print the effective configuration and exit.")
	global.BoolP("help", "h", false, fmt.Sprintf("help for %s", a.name))

	for _, name := range fss.Order {
		cmd.Flags().AddFlagSet(fss.FlagSets[name])
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) run(cmd *cobra.Command) error {
	v, err := a.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return fmt.Errorf("failed to complete options: %w", err)
		}
	}

	if a.printConfig {
		return printConfig(cmd.OutOrStdout(), v, cmd.Flags())
	}

	if a.options != nil {
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// skipFlag reports flags that are not configuration.
func skipFlag(f *pflag.Flag) bool {
	switch f.Name {
	case "config", "print-config", "help":
		return true
	}
	return false
}
