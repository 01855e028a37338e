package main

import (
	"context"
	"log"
	"os"

	"github.com/tracehq/tracesync/internal/buildinfo"
	"github.com/tracehq/tracesync/internal/cli"
	"github.com/tracehq/tracesync/internal/config"
)

func main() {
	buildinfo.PrintBuildData(os.Stderr)

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
