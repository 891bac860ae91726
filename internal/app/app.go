// Package app wires the attendance store to its readers and exporters and
// serializes access to it. The store assumes a single logical thread; the
// HTTP server and the scheduler run on their own goroutines, so everything
// goes through App's mutex.
package app

import (
	"sync"

	"attendbook/internal/attendance"
	"attendbook/internal/dates"
	"attendbook/internal/export"
	"attendbook/internal/i18n"
	"attendbook/internal/model"
	"attendbook/internal/report"
)

// App is the shared entry point to the attendance state.
type App struct {
	mu    sync.Mutex
	store *attendance.Store

	Calendar  *dates.Calendar
	Formatter *i18n.Formatter
	CSV       *export.CSV
	ICS       *export.ICS
}

func New(store *attendance.Store, f *i18n.Formatter) *App {
	return &App{
		store:     store,
		Calendar:  store.Calendar(),
		Formatter: f,
		CSV:       export.NewCSV(f),
		ICS:       export.NewICS(f),
	}
}

// Do runs fn with exclusive access to the store. Observers triggered by
// mutations inside fn run before Do returns.
func (a *App) Do(fn func(s *attendance.Store)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.store)
}

// WeekReport is the absentee report for week together with the roster index
// needed to render it, both taken from the same state.
type WeekReport struct {
	Report   report.Report
	Students map[string]model.Student
}

// Report builds the absentee report for the week containing iso. An empty
// iso selects the store's selected week.
func (a *App) Report(iso string) WeekReport {
	var wr WeekReport
	a.Do(func(s *attendance.Store) {
		week := s.Selected()
		if iso != "" {
			week = a.Calendar.StartOfWeekISO(iso)
		}
		wr = WeekReport{
			Report:   report.Build(a.Calendar, s.Matrix(), week, s.Roster()),
			Students: s.StudentsByID(),
		}
	})
	return wr
}

// ExportCSV renders the week's report; false means nothing to export.
func (a *App) ExportCSV(iso string) (export.Document, bool) {
	wr := a.Report(iso)
	return a.CSV.Export(wr.Report, wr.Students, wr.Report.Week)
}

// ExportICS renders the week's report as iCalendar.
func (a *App) ExportICS(iso string) (export.Document, bool) {
	wr := a.Report(iso)
	return a.ICS.Export(wr.Report, wr.Students, wr.Report.Week)
}
