package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// SweepCommand returns the CLI command running one sweep by hand, useful
// for debugging and for deployments that prefer cron over the job queue.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run a maintenance sweep once",
		Subcommands: []*cli.Command{
			{
				Name:  "undecided",
				Usage: "Remind applicants of stale undecided emails",
				Action: withApp(func(c *cli.Context, a *app) error {
					sent, err := a.service.RemindUndecided(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Sent %d reminders\n", sent)
					return nil
				}),
			},
			{
				Name:  "deadlines",
				Usage: "Remind applicants of missed and expiring deadlines",
				Action: withApp(func(c *cli.Context, a *app) error {
					obligee, err := a.service.RemindObligeeDeadlines(c.Context)
					if err != nil {
						return err
					}
					applicant, err := a.service.RemindApplicantDeadlines(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Sent %d obligee and %d applicant deadline reminders\n", obligee, applicant)
					return nil
				}),
			},
			{
				Name:  "close",
				Usage: "Close dormant inforequests",
				Action: withApp(func(c *cli.Context, a *app) error {
					closed, err := a.service.CloseExpired(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Closed %d inforequests\n", closed)
					return nil
				}),
			},
			{
				Name:  "attachments",
				Usage: "Delete orphaned attachments",
				Action: withApp(func(c *cli.Context, a *app) error {
					maxAge := time.Duration(a.cfg.Attachments.GCMaxAgeDays) * 24 * time.Hour
					removed, err := a.attachments.DeleteUnreferenced(c.Context, time.Now().Add(-maxAge))
					if err != nil {
						return err
					}
					fmt.Printf("Removed %d attachments\n", removed)
					return nil
				}),
			},
			{
				Name:  "datacheck",
				Usage: "Audit stored inforequests against the structural invariants",
				Action: withApp(func(c *cli.Context, a *app) error {
					problems, err := a.service.Datacheck(c.Context)
					if err != nil {
						return err
					}
					if problems > 0 {
						return fmt.Errorf("datacheck found %d problems", problems)
					}
					fmt.Println("No problems found")
					return nil
				}),
			},
		},
	}
}

func withApp(fn func(*cli.Context, *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := buildApp(c)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(c, a)
	}
}
