package i18n

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnglishFormatting(t *testing.T) {
	f := New("en")

	assert.Equal(t, "en", f.Locale())
	assert.Equal(t, "Monday", f.WeekdayLabel("2024-03-25"))
	assert.Equal(t, "March 25, 2024", f.FormatDate("2024-03-25"))
	assert.Equal(t, "Monday, March 25, 2024", f.FormatDateForDisplay("2024-03-25"))
}

func TestFormattingIsPure(t *testing.T) {
	f := New("en")

	first := f.FormatDateForDisplay("2024-03-23")
	second := f.FormatDateForDisplay("2024-03-23")
	assert.Equal(t, first, second)
	assert.Equal(t, first, New("en").FormatDateForDisplay("2024-03-23"))
}

func TestInvalidDateRendersEmpty(t *testing.T) {
	f := New("en")

	assert.Empty(t, f.FormatDate("2024-13"))
	assert.Empty(t, f.FormatDateForDisplay("x"))
	assert.Empty(t, f.WeekdayLabel(""))
}

func TestUnknownLocaleFallsBack(t *testing.T) {
	f := New("tlh")

	assert.Equal(t, DefaultLocale, f.Locale())
	assert.Equal(t, "absentees", f.T(KeyAbsentees))
}

func TestTranslatedLabels(t *testing.T) {
	assert.Equal(t, "Student", New("en").T(KeyHeaderStudent))
	assert.Equal(t, "absents", New("fr").T(KeyAbsentees))
	assert.Equal(t, "الغائبون", New("ar").T(KeyAbsentees))
	assert.Equal(t, "no.such.key", New("en").T("no.such.key"))
}

func TestWeekdayLabelsKeepOrder(t *testing.T) {
	f := New("en")
	order := []time.Weekday{time.Saturday, time.Sunday, time.Monday}

	assert.Equal(t, []string{"Saturday", "Sunday", "Monday"}, f.WeekdayLabels(order))
	assert.Equal(t, "Saturday", f.WeekdayName(time.Saturday))
}
