package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/infodesk/internal/api"
	"github.com/infodesk/internal/jobqueue"
)

// ServeCommand returns the CLI command for running the server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the API server and the periodic sweeps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Listen address, overriding the configuration",
			},
			&cli.BoolFlag{
				Name:  "no-jobs",
				Usage: "Serve the API without starting the job queue",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	a, err := buildApp(c)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Server.Addr
	if c.String("addr") != "" {
		addr = c.String("addr")
	}

	if !c.Bool("no-jobs") {
		qcfg := jobqueue.DefaultConfig()
		if days := a.cfg.Attachments.GCMaxAgeDays; days > 0 {
			qcfg.AttachmentGCMaxAge = time.Duration(days) * 24 * time.Hour
		}
		queue, err := jobqueue.NewJobQueue(a.cfg.Database.URL, qcfg, a.service, a.attachments)
		if err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		if err := queue.Start(c.Context); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(ctx); err != nil {
				log.Error().Err(err).Msg("Job queue shutdown failed")
			}
		}()
	}

	log.Info().Str("addr", addr).Msg("Starting server")
	server := api.NewServer(addr, a.service, a.dispatcher, a.obligees)
	return server.Start()
}
