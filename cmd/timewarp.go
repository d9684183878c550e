package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/infodesk/internal/config"
	"github.com/infodesk/internal/timewarp"
)

// TimewarpCommand returns the CLI command controlling the warped clock used
// on test instances to fast-forward deadlines.
func TimewarpCommand() *cli.Command {
	return &cli.Command{
		Name:  "timewarp",
		Usage: "Control the warped clock of a test instance",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Jump the clock to a date, optionally speeding it up",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Target date, YYYY-MM-DD",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "speedup",
						Usage: "How fast warped time passes relative to real time",
						Value: 1.0,
					},
				},
				Action: runTimewarpSet,
			},
			{
				Name:   "reset",
				Usage:  "Return to real time",
				Action: runTimewarpReset,
			},
			{
				Name:   "show",
				Usage:  "Print the current warped time",
				Action: runTimewarpShow,
			},
		},
	}
}

func statePath(c *cli.Context) (string, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return "", err
	}
	return cfg.Timewarp.StatePath, nil
}

func runTimewarpSet(c *cli.Context) error {
	path, err := statePath(c)
	if err != nil {
		return err
	}
	to, err := time.Parse("2006-01-02", c.String("to"))
	if err != nil {
		return fmt.Errorf("malformed target date: %w", err)
	}
	if err := timewarp.Set(path, to, c.Float64("speedup")); err != nil {
		return err
	}
	fmt.Printf("Clock warped to %s\n", to.Format("2006-01-02"))
	return nil
}

func runTimewarpReset(c *cli.Context) error {
	path, err := statePath(c)
	if err != nil {
		return err
	}
	if err := timewarp.Reset(path); err != nil {
		return err
	}
	fmt.Println("Clock reset to real time")
	return nil
}

func runTimewarpShow(c *cli.Context) error {
	path, err := statePath(c)
	if err != nil {
		return err
	}
	clock, err := timewarp.Load(path)
	if err != nil {
		return err
	}
	fmt.Printf("Now:   %s\n", clock.Now().Format(time.RFC3339))
	fmt.Printf("Today: %s\n", clock.Today().Format("2006-01-02"))
	return nil
}
