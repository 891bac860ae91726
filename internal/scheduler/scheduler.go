// Package scheduler runs periodic jobs. Currently one: writing the previous
// week's absentee CSV to a reports directory.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"attendbook/internal/app"
	appLog "attendbook/internal/log"
)

// ReportJob writes the absentee CSV of the week before the current one.
type ReportJob struct {
	app *app.App
	dir string
}

func NewReportJob(a *app.App, dir string) *ReportJob {
	return &ReportJob{app: a, dir: dir}
}

// Run implements cron.Job.
func (j *ReportJob) Run() {
	path, written, err := j.RunOnce()
	switch {
	case err != nil:
		appLog.Error("weekly report export failed", err, "dir", j.dir)
	case !written:
		appLog.Info("weekly report export skipped: no absences")
	default:
		appLog.Info("weekly report exported", "path", path)
	}
}

// RunOnce exports last week's report. written is false when the report is
// empty, in which case no file is created.
func (j *ReportJob) RunOnce() (path string, written bool, err error) {
	cal := j.app.Calendar
	week := cal.PreviousWeek(cal.CurrentWeek())

	doc, ok := j.app.ExportCSV(string(week))
	if !ok {
		return "", false, nil
	}

	if err := os.MkdirAll(j.dir, 0o700); err != nil {
		return "", false, fmt.Errorf("scheduler: create report dir: %w", err)
	}
	path = filepath.Join(j.dir, doc.Filename)
	if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
		return "", false, fmt.Errorf("scheduler: write report: %w", err)
	}
	return path, true, nil
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	c *cron.Cron
}

// New registers job under a standard 5-field cron schedule.
func New(schedule string, job cron.Job) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{c: c}, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	appLog.Info("scheduler started", "entries", len(s.c.Entries()))
}

// Stop halts the runner and waits for a running job, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Error("scheduler stop: job still running", ctx.Err())
	}
}
