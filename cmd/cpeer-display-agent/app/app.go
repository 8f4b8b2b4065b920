package app

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"cloupeer.io/displayagent/cmd/cpeer-display-agent/app/options"
	"cloupeer.io/displayagent/internal/displayagent/server"
	"cloupeer.io/displayagent/pkg/app"
	"cloupeer.io/displayagent/pkg/log"
)

const (
	commandName = "cpeer-display-agent"
	commandDesc = `The Cloupeer Display Agent runs on a workstation, announces its presence
on an MQTT broker and switches between the internal and the external display
when told to on its command topic.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch a Cloupeer display agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithConfigKeyAliases(options.LegacyKeys),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()
		klog.SetLogger(log.Logr())

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return agent.Run(ctx)
		})

		if cfg.HttpOptions.Addr != "" {
			srv := server.NewServer(cfg.HttpOptions, agent.Ready)
			g.Go(func() error {
				return srv.Start(ctx)
			})
		}

		if err := g.Wait(); err != nil {
			log.Error(err, "Display agent exited with error")
			return err
		}
		return nil
	}
}
