package main

import (
	"os"

	"k8s.io/apiserver/pkg/server"

	"cloupeer.io/displayagent/cmd/cpeer-display-ctl/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewDisplayCtlCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
