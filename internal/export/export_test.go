package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendbook/internal/attendance"
	"attendbook/internal/dates"
	"attendbook/internal/i18n"
	"attendbook/internal/model"
	"attendbook/internal/report"
)

const week model.WeekKey = "2024-03-23"

func TestQuoteCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`Ali`, `"Ali"`},
		{``, `""`},
		{`Sara "the quick"`, `"Sara ""the quick"""`},
		{`a,b`, `"a,b"`},
		{`"`, `""""`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteCell(tt.in))
		})
	}
}

func TestCSVScenario(t *testing.T) {
	cal := dates.NewCalendar(time.Saturday)
	store := attendance.NewStore(cal)
	ali, _ := store.AddStudent("Ali")
	store.AddStudent("Sara")
	store.ToggleAttendance(week, ali.ID, "2024-03-25")

	rep := report.Build(cal, store.Matrix(), week, store.Roster())
	require.Equal(t, map[string][]model.DayKey{ali.ID: {"2024-03-25"}}, rep.ByStudent())

	doc, ok := NewCSV(i18n.New("en")).Export(rep, store.StudentsByID(), week)
	require.True(t, ok)

	assert.Equal(t, "absentees-2024-03-23.csv", doc.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", doc.ContentType)
	assert.Equal(t,
		`"Student","Day","Date","Week start"`+"\n"+
			`"Ali","Monday","March 25, 2024","March 23, 2024"`,
		string(doc.Body))
}

func TestCSVRowOrderAndEscaping(t *testing.T) {
	rep := report.Report{Week: week, Entries: []report.Entry{
		{StudentID: "b", Days: []model.DayKey{"2024-03-24", "2024-03-28"}},
		{StudentID: "a", Days: []model.DayKey{"2024-03-23"}},
		{StudentID: "gone", Days: []model.DayKey{"2024-03-29"}},
	}}
	byID := map[string]model.Student{
		"a": {ID: "a", Name: "Ali"},
		"b": {ID: "b", Name: `Sara "S"`},
	}

	doc, ok := NewCSV(i18n.New("en")).Export(rep, byID, week)
	require.True(t, ok)

	lines := strings.Split(string(doc.Body), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], `"Sara ""S""","Sunday",`))
	assert.True(t, strings.HasPrefix(lines[2], `"Sara ""S""","Thursday",`))
	assert.True(t, strings.HasPrefix(lines[3], `"Ali","Saturday",`))
	assert.True(t, strings.HasPrefix(lines[4], `"gone",`), "unknown students fall back to their id")
}

func TestEmptyReportHasNoDocument(t *testing.T) {
	f := i18n.New("en")
	empty := report.Report{Week: week}

	_, ok := NewCSV(f).Export(empty, nil, week)
	assert.False(t, ok)
	_, ok = NewICS(f).Export(empty, nil, week)
	assert.False(t, ok)
}

func TestFilenameUsesLocalizedLabelAndRawWeek(t *testing.T) {
	assert.Equal(t, "absents-2024-03-23.csv", NewCSV(i18n.New("fr")).Filename(week))
	assert.Equal(t, "الغائبون-2024-03-23.ics", NewICS(i18n.New("ar")).Filename(week))
}

func TestICSExport(t *testing.T) {
	rep := report.Report{Week: week, Entries: []report.Entry{
		{StudentID: "a", Days: []model.DayKey{"2024-03-25", "2024-03-27"}},
		{StudentID: "b", Days: []model.DayKey{"2024-03-26"}},
	}}
	byID := map[string]model.Student{
		"a": {ID: "a", Name: "Ali"},
		"b": {ID: "b", Name: "Sara"},
	}
	x := NewICS(i18n.New("en"))
	x.Now = func() time.Time { return time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC) }

	doc, ok := x.Export(rep, byID, week)
	require.True(t, ok)
	assert.Equal(t, "absentees-2024-03-23.ics", doc.Filename)
	assert.Equal(t, "text/calendar; charset=utf-8", doc.ContentType)

	cal, err := ical.ParseCalendar(bytes.NewReader(doc.Body))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 3)

	var summaries, uids []string
	for _, ev := range events {
		summaries = append(summaries, ev.GetProperty(ical.ComponentPropertySummary).Value)
		uids = append(uids, ev.GetProperty(ical.ComponentPropertyUniqueId).Value)
	}
	assert.Equal(t, []string{"Ali", "Ali", "Sara"}, summaries)
	assert.Equal(t, []string{
		"a-2024-03-25@attendbook",
		"a-2024-03-27@attendbook",
		"b-2024-03-26@attendbook",
	}, uids)
	assert.Contains(t, string(doc.Body), "DTSTART;VALUE=DATE:20240325")
}
