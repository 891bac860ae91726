package export

import (
	"strings"

	"attendbook/internal/i18n"
	"attendbook/internal/model"
	"attendbook/internal/report"
)

const csvContentType = "text/csv; charset=utf-8"

// CSV renders reports as comma-separated text. Every cell is quoted, so the
// output does not depend on which characters a name happens to contain.
type CSV struct {
	fmt *i18n.Formatter
}

func NewCSV(f *i18n.Formatter) *CSV {
	return &CSV{fmt: f}
}

// Filename is the download name for week.
func (c *CSV) Filename(week model.WeekKey) string {
	return filename(c.fmt, week, "csv")
}

// Export renders rep. It returns false, and no document, when the report is
// empty: there is nothing to offer for download.
func (c *CSV) Export(rep report.Report, studentsByID map[string]model.Student, week model.WeekKey) (Document, bool) {
	if rep.Empty() {
		return Document{}, false
	}

	weekStart := c.fmt.FormatDate(string(week))

	rows := make([]string, 0, rep.Rows()+1)
	rows = append(rows, csvRow(
		c.fmt.T(i18n.KeyHeaderStudent),
		c.fmt.T(i18n.KeyHeaderWeekday),
		c.fmt.T(i18n.KeyHeaderDate),
		c.fmt.T(i18n.KeyHeaderWeekStart),
	))
	for _, e := range rep.Entries {
		name := studentName(studentsByID, e.StudentID)
		for _, day := range e.Days {
			rows = append(rows, csvRow(
				name,
				c.fmt.WeekdayLabel(string(day)),
				c.fmt.FormatDate(string(day)),
				weekStart,
			))
		}
	}

	return Document{
		Filename:    c.Filename(week),
		ContentType: csvContentType,
		Body:        []byte(strings.Join(rows, "\n")),
	}, true
}

func csvRow(cells ...string) string {
	quoted := make([]string, len(cells))
	for i, cell := range cells {
		quoted[i] = quoteCell(cell)
	}
	return strings.Join(quoted, ",")
}

// quoteCell wraps cell in double quotes, doubling any quote inside it.
func quoteCell(cell string) string {
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}
