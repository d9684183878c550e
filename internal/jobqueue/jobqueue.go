// Package jobqueue runs the periodic sweeps on a River job queue backed by
// PostgreSQL: classification reminders, deadline reminders, closing dormant
// inforequests and attachment garbage collection. Running them as queued
// jobs gives retries and visibility for free; a crashed sweep shows up in
// the river_job table instead of vanishing with the process.
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/attachments"
	"github.com/infodesk/internal/inforequests"
)

// Config holds the tunable parameters of the queue.
type Config struct {
	// MaxWorkers bounds concurrent jobs. Sweeps are IO bound and cheap, a
	// handful of workers is plenty.
	MaxWorkers int

	// SweepInterval is how often the reminder and close sweeps run.
	SweepInterval time.Duration

	// AttachmentGCInterval is how often orphaned attachments are collected.
	AttachmentGCInterval time.Duration

	// AttachmentGCMaxAge is how long an orphaned attachment survives before
	// collection.
	AttachmentGCMaxAge time.Duration
}

// DefaultConfig returns the standard production configuration.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:           4,
		SweepInterval:        time.Hour,
		AttachmentGCInterval: 24 * time.Hour,
		AttachmentGCMaxAge:   14 * 24 * time.Hour,
	}
}

type undecidedReminderArgs struct{}

func (undecidedReminderArgs) Kind() string { return "undecided_reminder" }

type obligeeDeadlineReminderArgs struct{}

func (obligeeDeadlineReminderArgs) Kind() string { return "obligee_deadline_reminder" }

type applicantDeadlineReminderArgs struct{}

func (applicantDeadlineReminderArgs) Kind() string { return "applicant_deadline_reminder" }

type closeSweepArgs struct{}

func (closeSweepArgs) Kind() string { return "close_sweep" }

type attachmentGCArgs struct{}

func (attachmentGCArgs) Kind() string { return "attachment_gc" }

type undecidedReminderWorker struct {
	river.WorkerDefaults[undecidedReminderArgs]
	service *inforequests.Service
}

func (w *undecidedReminderWorker) Work(ctx context.Context, _ *river.Job[undecidedReminderArgs]) error {
	sent, err := w.service.RemindUndecided(ctx)
	if err != nil {
		return fmt.Errorf("undecided reminder sweep: %w", err)
	}
	log.Info().Int("sent", sent).Msg("Undecided reminder sweep finished")
	return nil
}

type obligeeDeadlineReminderWorker struct {
	river.WorkerDefaults[obligeeDeadlineReminderArgs]
	service *inforequests.Service
}

func (w *obligeeDeadlineReminderWorker) Work(ctx context.Context, _ *river.Job[obligeeDeadlineReminderArgs]) error {
	sent, err := w.service.RemindObligeeDeadlines(ctx)
	if err != nil {
		return fmt.Errorf("obligee deadline sweep: %w", err)
	}
	log.Info().Int("sent", sent).Msg("Obligee deadline sweep finished")
	return nil
}

type applicantDeadlineReminderWorker struct {
	river.WorkerDefaults[applicantDeadlineReminderArgs]
	service *inforequests.Service
}

func (w *applicantDeadlineReminderWorker) Work(ctx context.Context, _ *river.Job[applicantDeadlineReminderArgs]) error {
	sent, err := w.service.RemindApplicantDeadlines(ctx)
	if err != nil {
		return fmt.Errorf("applicant deadline sweep: %w", err)
	}
	log.Info().Int("sent", sent).Msg("Applicant deadline sweep finished")
	return nil
}

type closeSweepWorker struct {
	river.WorkerDefaults[closeSweepArgs]
	service *inforequests.Service
}

func (w *closeSweepWorker) Work(ctx context.Context, _ *river.Job[closeSweepArgs]) error {
	closed, err := w.service.CloseExpired(ctx)
	if err != nil {
		return fmt.Errorf("close sweep: %w", err)
	}
	log.Info().Int("closed", closed).Msg("Close sweep finished")
	return nil
}

type attachmentGCWorker struct {
	river.WorkerDefaults[attachmentGCArgs]
	attachments *attachments.Storage
	maxAge      time.Duration
}

func (w *attachmentGCWorker) Work(ctx context.Context, _ *river.Job[attachmentGCArgs]) error {
	removed, err := w.attachments.DeleteUnreferenced(ctx, time.Now().Add(-w.maxAge))
	if err != nil {
		return fmt.Errorf("attachment gc: %w", err)
	}
	log.Info().Int64("removed", removed).Msg("Attachment garbage collection finished")
	return nil
}

// JobQueue manages the River client and its connection pool.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// NewJobQueue creates the queue with every sweep registered as a periodic
// job. Jobs run immediately on startup and then on their interval.
func NewJobQueue(databaseURL string, cfg Config,
	service *inforequests.Service, att *attachments.Storage) (*JobQueue, error) {

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &undecidedReminderWorker{service: service})
	river.AddWorker(workers, &obligeeDeadlineReminderWorker{service: service})
	river.AddWorker(workers, &applicantDeadlineReminderWorker{service: service})
	river.AddWorker(workers, &closeSweepWorker{service: service})
	river.AddWorker(workers, &attachmentGCWorker{attachments: att, maxAge: cfg.AttachmentGCMaxAge})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return undecidedReminderArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return obligeeDeadlineReminderArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return applicantDeadlineReminderArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return closeSweepArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.AttachmentGCInterval),
			func() (river.JobArgs, *river.InsertOpts) { return attachmentGCArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool}, nil
}

// Start starts the workers and the periodic scheduler.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop drains running jobs and closes the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}
