// Package cmd wires the CLI commands: loading configuration, opening the
// database and assembling the service graph shared by serve and the
// one-shot commands.
package cmd

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/infodesk/internal/attachments"
	"github.com/infodesk/internal/config"
	"github.com/infodesk/internal/database"
	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/logging"
	"github.com/infodesk/internal/mail"
	"github.com/infodesk/internal/obligees"
	"github.com/infodesk/internal/timewarp"
	"github.com/infodesk/internal/workdays"
)

// app is the assembled service graph.
type app struct {
	cfg         *config.Config
	db          *sql.DB
	clock       timewarp.Clock
	holidays    workdays.HolidaySet
	obligees    *obligees.Storage
	mailStore   *mail.Storage
	attachments *attachments.Storage
	service     *inforequests.Service
	dispatcher  *inforequests.Dispatcher
}

func buildApp(c *cli.Context) (*app, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	clock, err := timewarp.Load(cfg.Timewarp.StatePath)
	if err != nil {
		return nil, err
	}

	holidays := workdays.NewHolidaySet()
	if cfg.HolidaySetName() == "slovakia" {
		holidays = workdays.Slovakia()
	}

	obligeeStore := obligees.NewStorage(db)
	mailStore := mail.NewStorage(db)
	transport := mail.NewLogTransport(mailStore)
	deadlines := inforequests.NewDeadlines(clock, holidays)

	service := inforequests.NewService(db, obligeeStore, mailStore, transport,
		deadlines, cfg.Mail.AddressTemplate, cfg.Mail.NotifyFrom, nil)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}
	dispatcher := inforequests.NewDispatcher(service, mail.NewDedup(rdb))

	return &app{
		cfg:         cfg,
		db:          db,
		clock:       clock,
		holidays:    holidays,
		obligees:    obligeeStore,
		mailStore:   mailStore,
		attachments: attachments.NewStorage(db),
		service:     service,
		dispatcher:  dispatcher,
	}, nil
}

func (a *app) close() {
	a.db.Close()
}
