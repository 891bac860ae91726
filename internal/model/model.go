package model

// Student is a single roster member. Identity is ID; Name is only unique
// (case-insensitively) at the moment the student is added.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WeekKey is the ISO date (YYYY-MM-DD) of the first day of a week, always
// normalized to the configured week-start weekday.
type WeekKey string

// DayKey is the ISO date of one day inside a week.
type DayKey string

// Matrix maps week -> student ID -> day -> presence flag. It is sparse with
// respect to presence: a missing entry means the student was present.
type Matrix map[WeekKey]map[string]map[DayKey]bool

// Presence reads a single cell. Absence of an entry means present.
func (m Matrix) Presence(week WeekKey, studentID string, day DayKey) bool {
	present, ok := m[week][studentID][day]
	if !ok {
		return true
	}
	return present
}

// Clone returns a deep copy so callers never alias another owner's maps.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for week, students := range m {
		ws := make(map[string]map[DayKey]bool, len(students))
		for id, days := range students {
			ds := make(map[DayKey]bool, len(days))
			for day, v := range days {
				ds[day] = v
			}
			ws[id] = ds
		}
		out[week] = ws
	}
	return out
}
