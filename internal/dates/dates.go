// Package dates holds the locale-independent calendar arithmetic: ISO date
// normalization, week-start computation and day-key enumeration.
//
// All dates are calendar dates. They are carried as UTC midnight so that
// repeated conversions on the same day never drift across a timezone edge.
package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "attendbook/internal/log"
	"attendbook/internal/model"
)

const (
	isoLayout   = "2006-01-02"
	daysPerWeek = 7

	// DefaultWeekStart is the weekday a week begins on unless configured otherwise.
	DefaultWeekStart = time.Saturday
)

// Date is a calendar date or the invalid sentinel NotADate.
type Date struct {
	t     time.Time
	valid bool
}

// NotADate is returned for malformed input. It is never used for week math;
// callers substitute the current date instead.
var NotADate = Date{}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), valid: true}
}

func (d Date) Valid() bool { return d.valid }

// Time returns the date at UTC midnight, or the zero time for NotADate.
func (d Date) Time() time.Time { return d.t }

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

// ISO formats the date as YYYY-MM-DD, or "" for NotADate.
func (d Date) ISO() string {
	if !d.valid {
		return ""
	}
	return d.t.Format(isoLayout)
}

// AddDays moves by whole calendar days. NotADate stays invalid.
func (d Date) AddDays(n int) Date {
	if !d.valid {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n), valid: true}
}

// ToISODate returns the calendar date of t (in t's location) as YYYY-MM-DD.
func ToISODate(t time.Time) string {
	return DateOf(t).ISO()
}

// FromISODate parses YYYY-MM-DD. Each of the three components must be a
// non-zero integer; anything else yields NotADate. Out-of-range components
// roll over the way time.Date does (2024-02-30 is 2024-03-01).
func FromISODate(iso string) Date {
	parts := strings.Split(strings.TrimSpace(iso), "-")
	if len(parts) != 3 {
		return NotADate
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v == 0 {
			return NotADate
		}
		n[i] = v
	}
	return Date{t: time.Date(n[0], time.Month(n[1]), n[2], 0, 0, 0, 0, time.UTC), valid: true}
}

// ParseWeekday accepts English weekday names ("saturday", "Sat").
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return 0, false
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || name == full[:3] {
			return wd, true
		}
	}
	return 0, false
}

// Calendar computes weeks starting on a fixed weekday.
type Calendar struct {
	WeekStart time.Weekday

	// Now supplies the current time for the invalid-input fallback.
	// Defaults to time.Now.
	Now func() time.Time
}

func NewCalendar(weekStart time.Weekday) *Calendar {
	return &Calendar{WeekStart: weekStart, Now: time.Now}
}

// Today is the current local calendar date.
func (c *Calendar) Today() Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return DateOf(now())
}

// StartOfWeek walks back to the most recent WeekStart day (d itself when it
// already is one). Invalid input is replaced by today.
func (c *Calendar) StartOfWeek(d Date) model.WeekKey {
	if !d.Valid() {
		appLog.Debug("start of week: invalid date, using today")
		return c.StartOfWeek(c.Today())
	}
	offset := (int(d.Weekday()) - int(c.WeekStart) + daysPerWeek) % daysPerWeek
	return model.WeekKey(d.AddDays(-offset).ISO())
}

// StartOfWeekISO is StartOfWeek for an ISO string. It is the only way a
// WeekKey should be derived from outside input.
func (c *Calendar) StartOfWeekISO(iso string) model.WeekKey {
	return c.StartOfWeek(FromISODate(iso))
}

// CurrentWeek is the week containing today.
func (c *Calendar) CurrentWeek() model.WeekKey {
	return c.StartOfWeek(c.Today())
}

// BuildDayKeys lists the seven consecutive days beginning at week, ascending.
// The week is taken as given and not re-normalized; an unparseable week is
// replaced by today.
func (c *Calendar) BuildDayKeys(week model.WeekKey) []model.DayKey {
	start := FromISODate(string(week))
	if !start.Valid() {
		start = c.Today()
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   daysPerWeek,
		Dtstart: start.Time(),
	})
	if err != nil {
		// Unreachable for a DAILY rule with a valid start.
		appLog.Error("build day keys: rrule rejected option", err, "week", week)
		return enumerateDays(start)
	}

	occ := r.All()
	keys := make([]model.DayKey, 0, len(occ))
	for _, t := range occ {
		keys = append(keys, model.DayKey(ToISODate(t)))
	}
	return keys
}

func enumerateDays(start Date) []model.DayKey {
	keys := make([]model.DayKey, daysPerWeek)
	for i := range keys {
		keys[i] = model.DayKey(start.AddDays(i).ISO())
	}
	return keys
}

// Contains reports whether day falls inside the seven days of week.
func (c *Calendar) Contains(week model.WeekKey, day model.DayKey) bool {
	start := FromISODate(string(week))
	d := FromISODate(string(day))
	if !start.Valid() || !d.Valid() || d.ISO() != string(day) {
		return false
	}
	diff := int(d.Time().Sub(start.Time()).Hours() / 24)
	return diff >= 0 && diff < daysPerWeek
}

// WeekdayOrder lists the weekdays in week order; index 0 is WeekStart.
func (c *Calendar) WeekdayOrder() []time.Weekday {
	order := make([]time.Weekday, daysPerWeek)
	for i := range order {
		order[i] = time.Weekday((int(c.WeekStart) + i) % daysPerWeek)
	}
	return order
}

// PreviousWeek is the week before week.
func (c *Calendar) PreviousWeek(week model.WeekKey) model.WeekKey {
	start := FromISODate(string(week))
	if !start.Valid() {
		start = FromISODate(string(c.CurrentWeek()))
	}
	return c.StartOfWeek(start.AddDays(-daysPerWeek))
}
