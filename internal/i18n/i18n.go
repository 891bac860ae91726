// Package i18n renders dates and labels for people. It is the only
// locale-dependent part of the system; the week arithmetic in internal/dates
// never calls into it.
package i18n

import (
	"time"

	"github.com/go-playground/locales/ar"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"

	"attendbook/internal/dates"
	appLog "attendbook/internal/log"
)

// DefaultLocale is used when the configured locale is unknown.
const DefaultLocale = "en"

// Translation keys.
const (
	KeyAbsentees       = "absentees"
	KeyHeaderStudent   = "header.student"
	KeyHeaderWeekday   = "header.weekday"
	KeyHeaderDate      = "header.date"
	KeyHeaderWeekStart = "header.week_start"
)

var messages = map[string]map[string]string{
	"en": {
		KeyAbsentees:       "absentees",
		KeyHeaderStudent:   "Student",
		KeyHeaderWeekday:   "Day",
		KeyHeaderDate:      "Date",
		KeyHeaderWeekStart: "Week start",
	},
	"ar": {
		KeyAbsentees:       "الغائبون",
		KeyHeaderStudent:   "الطالب",
		KeyHeaderWeekday:   "اليوم",
		KeyHeaderDate:      "التاريخ",
		KeyHeaderWeekStart: "بداية الأسبوع",
	},
	"fr": {
		KeyAbsentees:       "absents",
		KeyHeaderStudent:   "Élève",
		KeyHeaderWeekday:   "Jour",
		KeyHeaderDate:      "Date",
		KeyHeaderWeekStart: "Début de semaine",
	},
}

// Formatter renders ISO dates and fixed labels for a single locale.
type Formatter struct {
	tr ut.Translator
}

// New builds a Formatter for locale, falling back to DefaultLocale.
func New(locale string) *Formatter {
	fallback := en.New()
	uni := ut.New(fallback, fallback, ar.New(), fr.New())

	tr, found := uni.GetTranslator(locale)
	if !found {
		if locale != "" {
			appLog.Warn("unknown locale, using default", nil, "locale", locale, "default", DefaultLocale)
		}
		tr, _ = uni.GetTranslator(DefaultLocale)
	}

	msgs, ok := messages[tr.Locale()]
	if !ok {
		msgs = messages[DefaultLocale]
	}
	for key, text := range msgs {
		if err := tr.Add(key, text, true); err != nil {
			appLog.Error("i18n: failed to register translation", err, "locale", tr.Locale(), "key", key)
		}
	}

	return &Formatter{tr: tr}
}

// Locale returns the effective locale name.
func (f *Formatter) Locale() string {
	return f.tr.Locale()
}

// T returns the translated label for key, or key itself when missing.
func (f *Formatter) T(key string) string {
	s, err := f.tr.T(key)
	if err != nil {
		return key
	}
	return s
}

// FormatDateForDisplay renders weekday, month and day of iso in full form,
// e.g. "Monday, March 25, 2024" for en. Invalid input renders as "".
func (f *Formatter) FormatDateForDisplay(iso string) string {
	d := dates.FromISODate(iso)
	if !d.Valid() {
		return ""
	}
	return f.tr.FmtDateFull(d.Time())
}

// FormatDate renders the long date form, e.g. "March 25, 2024".
func (f *Formatter) FormatDate(iso string) string {
	d := dates.FromISODate(iso)
	if !d.Valid() {
		return ""
	}
	return f.tr.FmtDateLong(d.Time())
}

// WeekdayLabel is the wide weekday name of iso.
func (f *Formatter) WeekdayLabel(iso string) string {
	d := dates.FromISODate(iso)
	if !d.Valid() {
		return ""
	}
	return f.tr.WeekdayWide(d.Weekday())
}

// WeekdayName maps a weekday index (0=Sunday) to its wide name.
func (f *Formatter) WeekdayName(wd time.Weekday) string {
	return f.tr.WeekdayWide(wd)
}

// WeekdayLabels names each weekday of order, keeping its positions.
func (f *Formatter) WeekdayLabels(order []time.Weekday) []string {
	out := make([]string, len(order))
	for i, wd := range order {
		out[i] = f.tr.WeekdayWide(wd)
	}
	return out
}
