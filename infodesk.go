package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/infodesk/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "infodesk",
		Usage:   "Freedom of information request tracker",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "infodesk.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.SweepCommand(),
			cmd.TimewarpCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
