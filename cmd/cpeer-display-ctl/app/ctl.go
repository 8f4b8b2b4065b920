package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/component-base/cli/globalflag"

	"cloupeer.io/displayagent/cmd/cpeer-display-ctl/app/options"
	"cloupeer.io/displayagent/internal/displayagent/core"
	"cloupeer.io/displayagent/internal/displayctl"
	"cloupeer.io/displayagent/pkg/log"
)

const disconnectTimeout = 5 * time.Second

func NewDisplayCtlCommand(ctx context.Context) *cobra.Command {
	opts := options.NewCtlOptions()
	cmd := &cobra.Command{
		Use:           "cpeer-display-ctl",
		Short:         "Control Cloupeer display agents",
		Long:          "cpeer-display-ctl switches the display of a Cloupeer display agent and shows which agents are online.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.Init(opts.LogOptions)
			if err := opts.Complete(); err != nil {
				return err
			}
			return opts.Validate()
		},
	}

	namedfs := opts.Flags()
	for _, f := range namedfs.FlagSets {
		cmd.PersistentFlags().AddFlagSet(f)
	}
	globalflag.AddGlobalFlags(cmd.Flags(), cmd.Name())

	cmd.AddCommand(newSwitchCommand(ctx, opts), newWatchCommand(ctx, opts))
	return cmd
}

func newSwitchCommand(ctx context.Context, opts *options.CtlOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "switch HOST external|internal",
		Short:     "Switch the display of an agent",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{core.PayloadExternal, core.PayloadInternal},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer log.Sync()

			host, command := args[0], core.ParseCommand([]byte(args[1]))
			if command == core.CommandUnrecognized {
				return fmt.Errorf("unknown command %q, want %s or %s", args[1], core.PayloadExternal, core.PayloadInternal)
			}

			ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
			defer cancel()

			ctl, err := displayctl.NewController(ctx, opts.MqttOptions)
			if err != nil {
				return err
			}
			defer closeController(ctl)

			if err := ctl.Switch(ctx, host, command); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", host, command)
			return nil
		},
	}
}

func newWatchCommand(ctx context.Context, opts *options.CtlOptions) *cobra.Command {
	var (
		once   bool
		settle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the availability of every agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer log.Sync()

			ctl, err := displayctl.NewController(ctx, opts.MqttOptions)
			if err != nil {
				return err
			}
			defer closeController(ctl)

			if once {
				// Retained announcements arrive right after subscribing.
				watchCtx, cancel := context.WithTimeout(ctx, settle)
				defer cancel()
				if err := ctl.Watch(watchCtx, nil); err != nil {
					return err
				}
				return ctl.Roster().Render(cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			return ctl.Watch(ctx, func(p displayctl.Presence) {
				status := p.Status
				if status == "" {
					status = "<gone>"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", p.Since.Format(time.RFC3339), p.Host, status)
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Print the current roster and exit instead of following changes.")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "With --once, how long to collect announcements before printing.")
	return cmd
}

func closeController(ctl *displayctl.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := ctl.Close(ctx); err != nil {
		log.Warn("Disconnect failed", "error", err)
	}
}
