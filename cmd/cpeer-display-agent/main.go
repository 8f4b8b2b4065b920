package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"cloupeer.io/displayagent/cmd/cpeer-display-agent/app"
)

func main() {
	if err := app.NewApp().Run(); err != nil {
		os.Exit(1)
	}
}
