package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"attendbook/internal/dates"
	"attendbook/internal/i18n"
	"attendbook/internal/model"
	"attendbook/internal/report"
)

const (
	icsContentType = "text/calendar; charset=utf-8"
	icsProductID   = "-//attendbook//absentee report//EN"
)

// ICS renders reports as an iCalendar feed with one all-day event per
// missed day.
type ICS struct {
	fmt *i18n.Formatter

	// Now stamps DTSTAMP. Defaults to time.Now.
	Now func() time.Time
}

func NewICS(f *i18n.Formatter) *ICS {
	return &ICS{fmt: f, Now: time.Now}
}

func (x *ICS) Filename(week model.WeekKey) string {
	return filename(x.fmt, week, "ics")
}

// Export renders rep, returning false for an empty report.
func (x *ICS) Export(rep report.Report, studentsByID map[string]model.Student, week model.WeekKey) (Document, bool) {
	if rep.Empty() {
		return Document{}, false
	}

	now := time.Now
	if x.Now != nil {
		now = x.Now
	}
	stamp := now().UTC()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName(x.fmt.T(i18n.KeyAbsentees) + " " + x.fmt.FormatDate(string(week)))

	for _, e := range rep.Entries {
		name := studentName(studentsByID, e.StudentID)
		for _, day := range e.Days {
			d := dates.FromISODate(string(day))
			if !d.Valid() {
				continue
			}
			// UID is stable per (student, day).
			ev := cal.AddEvent(fmt.Sprintf("%s-%s@attendbook", e.StudentID, day))
			ev.SetDtStampTime(stamp)
			ev.SetAllDayStartAt(d.Time())
			ev.SetAllDayEndAt(d.AddDays(1).Time())
			ev.SetSummary(name)
			ev.SetDescription(x.fmt.FormatDateForDisplay(string(day)))
		}
	}

	return Document{
		Filename:    x.Filename(week),
		ContentType: icsContentType,
		Body:        []byte(cal.Serialize()),
	}, true
}
