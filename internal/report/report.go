// Package report derives the weekly absentee report from the attendance
// matrix. Reports are recomputed from current state on every request.
package report

import (
	"sort"

	"attendbook/internal/dates"
	"attendbook/internal/model"
)

// Entry lists one student's missed days in ascending order.
type Entry struct {
	StudentID string
	Days      []model.DayKey
}

// Report is the sparse set of students with at least one absence in Week.
// Entries follow roster order.
type Report struct {
	Week    model.WeekKey
	Entries []Entry
}

// Empty reports whether nobody was absent.
func (r Report) Empty() bool { return len(r.Entries) == 0 }

// Rows counts (student, missed day) pairs.
func (r Report) Rows() int {
	n := 0
	for _, e := range r.Entries {
		n += len(e.Days)
	}
	return n
}

// ByStudent returns the report as student ID -> missed days.
func (r Report) ByStudent() map[string][]model.DayKey {
	out := make(map[string][]model.DayKey, len(r.Entries))
	for _, e := range r.Entries {
		out[e.StudentID] = append([]model.DayKey(nil), e.Days...)
	}
	return out
}

// Build collects, for every roster student, the days of week recorded as
// absent. Students without absences are left out, as are matrix entries for
// IDs no longer on the roster and days outside the week.
func Build(cal *dates.Calendar, matrix model.Matrix, week model.WeekKey, roster []model.Student) Report {
	rep := Report{Week: week}
	students := matrix[week]
	if len(students) == 0 {
		return rep
	}

	for _, st := range roster {
		var missed []model.DayKey
		for day, present := range students[st.ID] {
			if present || !cal.Contains(week, day) {
				continue
			}
			missed = append(missed, day)
		}
		if len(missed) == 0 {
			continue
		}
		// Map iteration order is random; ISO dates sort chronologically.
		sort.Slice(missed, func(i, j int) bool { return missed[i] < missed[j] })
		rep.Entries = append(rep.Entries, Entry{StudentID: st.ID, Days: missed})
	}
	return rep
}
