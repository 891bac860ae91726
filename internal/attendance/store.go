// Package attendance owns the roster and the attendance matrix.
//
// The Store is not safe for concurrent use. It is driven by one logical
// thread; internal/app serializes access when several goroutines share it.
// Every committed mutation is reported to subscribed observers, in order,
// before the mutating call returns.
package attendance

import (
	"strings"

	"github.com/google/uuid"

	"attendbook/internal/dates"
	appLog "attendbook/internal/log"
	"attendbook/internal/model"
)

// Change flags which persisted records a mutation touched.
type Change uint8

const (
	ChangedRoster Change = 1 << iota
	ChangedMatrix
	ChangedSelectedWeek
)

func (c Change) Has(flag Change) bool { return c&flag != 0 }

func (c Change) String() string {
	var parts []string
	if c.Has(ChangedRoster) {
		parts = append(parts, "roster")
	}
	if c.Has(ChangedMatrix) {
		parts = append(parts, "matrix")
	}
	if c.Has(ChangedSelectedWeek) {
		parts = append(parts, "selected_week")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// State is a detached copy of everything the store persists.
type State struct {
	Roster   []model.Student
	Matrix   model.Matrix
	Selected model.WeekKey
}

// Observer is notified after each committed mutation.
type Observer interface {
	StateChanged(change Change, state State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(change Change, state State)

func (f ObserverFunc) StateChanged(change Change, state State) { f(change, state) }

// Store holds the class roster, the attendance matrix and the selected week.
type Store struct {
	cal       *dates.Calendar
	roster    []model.Student
	matrix    model.Matrix
	selected  model.WeekKey
	observers []Observer

	// newID generates student IDs; replaced in tests.
	newID func() string
}

// NewStore returns an empty store whose selected week is the current week.
func NewStore(cal *dates.Calendar) *Store {
	return &Store{
		cal:      cal,
		matrix:   model.Matrix{},
		selected: cal.CurrentWeek(),
		newID:    func() string { return uuid.New().String() },
	}
}

// Restore installs previously persisted state without notifying observers.
// The selected week is re-normalized; it is never trusted as stored.
func (s *Store) Restore(st State) {
	s.roster = append([]model.Student(nil), st.Roster...)
	if st.Matrix != nil {
		s.matrix = st.Matrix.Clone()
	} else {
		s.matrix = model.Matrix{}
	}
	s.selected = s.cal.StartOfWeekISO(string(st.Selected))
}

// Subscribe registers an observer. Observers run synchronously in
// registration order.
func (s *Store) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Store) notify(change Change) {
	if len(s.observers) == 0 {
		return
	}
	st := s.Snapshot()
	for _, o := range s.observers {
		o.StateChanged(change, st)
	}
}

// AddStudent appends a student named name (trimmed). It reports false and
// changes nothing when the name is empty or already taken, compared
// case-insensitively.
func (s *Store) AddStudent(name string) (model.Student, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Student{}, false
	}
	for _, st := range s.roster {
		if strings.EqualFold(st.Name, name) {
			appLog.Debug("add student: duplicate name ignored", "name", name)
			return model.Student{}, false
		}
	}

	st := model.Student{ID: s.newID(), Name: name}
	s.roster = append(s.roster, st)
	s.notify(ChangedRoster)
	return st, true
}

// RemoveStudent drops the student from the roster and from every week of the
// matrix. Unknown IDs are a no-op.
func (s *Store) RemoveStudent(id string) bool {
	idx := -1
	for i, st := range s.roster {
		if st.ID == id {
			idx = i
			break
		}
	}

	change := Change(0)
	if idx >= 0 {
		s.roster = append(s.roster[:idx:idx], s.roster[idx+1:]...)
		change |= ChangedRoster
	}
	for week, students := range s.matrix {
		if _, ok := students[id]; !ok {
			continue
		}
		delete(students, id)
		if len(students) == 0 {
			delete(s.matrix, week)
		}
		change |= ChangedMatrix
	}

	if change == 0 {
		return false
	}
	s.notify(change)
	return true
}

// Presence reads one cell. An unrecorded cell means present.
func (s *Store) Presence(week model.WeekKey, studentID string, day model.DayKey) bool {
	return s.matrix.Presence(s.cal.StartOfWeekISO(string(week)), studentID, day)
}

// ToggleAttendance flips one cell and returns the new presence. Unknown
// students and days outside the week leave the matrix untouched.
//
// Absence is stored as false; returning to present deletes the entry so the
// matrix only ever grows with absences.
func (s *Store) ToggleAttendance(week model.WeekKey, studentID string, day model.DayKey) bool {
	week = s.cal.StartOfWeekISO(string(week))
	current := s.matrix.Presence(week, studentID, day)

	if !s.hasStudent(studentID) || !s.cal.Contains(week, day) {
		appLog.Debug("toggle attendance: ignored", "week", week, "student_id", studentID, "day", day)
		return current
	}

	next := !current
	if next {
		s.clearCell(week, studentID, day)
	} else {
		students, ok := s.matrix[week]
		if !ok {
			students = map[string]map[model.DayKey]bool{}
			s.matrix[week] = students
		}
		days, ok := students[studentID]
		if !ok {
			days = map[model.DayKey]bool{}
			students[studentID] = days
		}
		days[day] = false
	}

	s.notify(ChangedMatrix)
	return next
}

func (s *Store) clearCell(week model.WeekKey, studentID string, day model.DayKey) {
	students := s.matrix[week]
	days := students[studentID]
	delete(days, day)
	if len(days) == 0 {
		delete(students, studentID)
	}
	if len(students) == 0 {
		delete(s.matrix, week)
	}
}

func (s *Store) hasStudent(id string) bool {
	for _, st := range s.roster {
		if st.ID == id {
			return true
		}
	}
	return false
}

// SelectWeek moves the selection to the week containing iso (today when iso
// is unparseable) and returns the normalized key.
func (s *Store) SelectWeek(iso string) model.WeekKey {
	week := s.cal.StartOfWeekISO(iso)
	if week == s.selected {
		return week
	}
	s.selected = week
	s.notify(ChangedSelectedWeek)
	return week
}

func (s *Store) Selected() model.WeekKey { return s.selected }

// Roster returns the students in insertion order.
func (s *Store) Roster() []model.Student {
	return append([]model.Student(nil), s.roster...)
}

// StudentsByID indexes the roster.
func (s *Store) StudentsByID() map[string]model.Student {
	out := make(map[string]model.Student, len(s.roster))
	for _, st := range s.roster {
		out[st.ID] = st
	}
	return out
}

// Matrix returns a deep copy of the attendance matrix.
func (s *Store) Matrix() model.Matrix {
	return s.matrix.Clone()
}

// Snapshot copies the persisted state.
func (s *Store) Snapshot() State {
	return State{
		Roster:   s.Roster(),
		Matrix:   s.Matrix(),
		Selected: s.selected,
	}
}

// Calendar returns the calendar the store normalizes weeks with.
func (s *Store) Calendar() *dates.Calendar { return s.cal }
