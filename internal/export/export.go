// Package export turns an absentee report into downloadable documents.
package export

import (
	"attendbook/internal/i18n"
	"attendbook/internal/model"
)

// Document is a rendered export ready to be offered as a file.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// filename builds "<absentees label>-<week ISO date>.<ext>". The week is the
// raw ISO key, never localized.
func filename(f *i18n.Formatter, week model.WeekKey, ext string) string {
	return f.T(i18n.KeyAbsentees) + "-" + string(week) + "." + ext
}

// studentName resolves id against the roster index, falling back to the id
// itself for students that are no longer known.
func studentName(studentsByID map[string]model.Student, id string) string {
	if st, ok := studentsByID[id]; ok && st.Name != "" {
		return st.Name
	}
	return id
}
