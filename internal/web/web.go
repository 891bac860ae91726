package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"attendbook/internal/app"
	"attendbook/internal/attendance"
	"attendbook/internal/config"
	"attendbook/internal/export"
	appLog "attendbook/internal/log"
	"attendbook/internal/model"
)

const maxBodyBytes = 1 << 16

// Server exposes the attendance book over a small JSON API.
type Server struct {
	cfg *config.Config
	app *app.App
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, a *app.App) *Server {
	s := &Server{
		cfg: cfg,
		app: a,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="attendbook", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/students", s.handleListStudents)
	s.mux.HandleFunc("POST /api/students", s.handleAddStudent)
	s.mux.HandleFunc("DELETE /api/students/{id}", s.handleRemoveStudent)

	s.mux.HandleFunc("GET /api/week", s.handleGetWeek)
	s.mux.HandleFunc("PUT /api/week", s.handleSelectWeek)

	s.mux.HandleFunc("GET /api/attendance", s.handleAttendance)
	s.mux.HandleFunc("POST /api/attendance/toggle", s.handleToggle)

	s.mux.HandleFunc("GET /api/report", s.handleReport)
	s.mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExportICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type studentDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type addStudentRequest struct {
	Name string `json:"name"`
}

type addStudentResponse struct {
	Added   bool        `json:"added"`
	Student *studentDTO `json:"student,omitempty"`
}

func toStudentDTOs(roster []model.Student) []studentDTO {
	out := make([]studentDTO, 0, len(roster))
	for _, st := range roster {
		out = append(out, studentDTO{ID: st.ID, Name: st.Name})
	}
	return out
}

func (s *Server) handleListStudents(w http.ResponseWriter, _ *http.Request) {
	var roster []model.Student
	s.app.Do(func(st *attendance.Store) { roster = st.Roster() })
	writeJSON(w, http.StatusOK, toStudentDTOs(roster))
}

// handleAddStudent answers 201 for a new student and 200 with added=false
// when the name was empty or already taken.
func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var req addStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		st    model.Student
		added bool
	)
	s.app.Do(func(store *attendance.Store) { st, added = store.AddStudent(req.Name) })

	if !added {
		writeJSON(w, http.StatusOK, addStudentResponse{Added: false})
		return
	}
	appLog.Info("student added", "id", st.ID)
	writeJSON(w, http.StatusCreated, addStudentResponse{Added: true, Student: &studentDTO{ID: st.ID, Name: st.Name}})
}

func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var removed bool
	s.app.Do(func(store *attendance.Store) { removed = store.RemoveStudent(id) })

	if removed {
		appLog.Info("student removed", "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

type dayDTO struct {
	Date    model.DayKey `json:"date"`
	Weekday string       `json:"weekday"`
	Label   string       `json:"label"`
}

type weekResponse struct {
	Week      model.WeekKey `json:"week"`
	WeekLabel string        `json:"week_label"`
	// Weekdays names the columns in week order, starting at the configured
	// week start.
	Weekdays []string `json:"weekdays"`
	Days     []dayDTO `json:"days"`
}

type selectWeekRequest struct {
	Date string `json:"date"`
}

func (s *Server) weekView(week model.WeekKey) weekResponse {
	f := s.app.Formatter
	keys := s.app.Calendar.BuildDayKeys(week)
	days := make([]dayDTO, 0, len(keys))
	for _, k := range keys {
		days = append(days, s.dayView(k))
	}
	return weekResponse{
		Week:      week,
		WeekLabel: f.FormatDate(string(week)),
		Weekdays:  f.WeekdayLabels(s.app.Calendar.WeekdayOrder()),
		Days:      days,
	}
}

func (s *Server) dayView(day model.DayKey) dayDTO {
	f := s.app.Formatter
	return dayDTO{
		Date:    day,
		Weekday: f.WeekdayLabel(string(day)),
		Label:   f.FormatDateForDisplay(string(day)),
	}
}

func (s *Server) handleGetWeek(w http.ResponseWriter, _ *http.Request) {
	var week model.WeekKey
	s.app.Do(func(st *attendance.Store) { week = st.Selected() })
	writeJSON(w, http.StatusOK, s.weekView(week))
}

func (s *Server) handleSelectWeek(w http.ResponseWriter, r *http.Request) {
	var req selectWeekRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var week model.WeekKey
	s.app.Do(func(st *attendance.Store) { week = st.SelectWeek(req.Date) })
	writeJSON(w, http.StatusOK, s.weekView(week))
}

// weekParam resolves ?week=, defaulting to the selected week.
func (s *Server) weekParam(r *http.Request, st *attendance.Store) model.WeekKey {
	if q := r.URL.Query().Get("week"); q != "" {
		return s.app.Calendar.StartOfWeekISO(q)
	}
	return st.Selected()
}

type attendanceRow struct {
	Student  studentDTO `json:"student"`
	Presence []bool     `json:"presence"`
}

type attendanceResponse struct {
	weekResponse
	Rows []attendanceRow `json:"rows"`
}

// handleAttendance returns the dense presence grid (roster x days) for a week.
func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	var resp attendanceResponse
	s.app.Do(func(st *attendance.Store) {
		week := s.weekParam(r, st)
		resp.weekResponse = s.weekView(week)
		roster := st.Roster()
		resp.Rows = make([]attendanceRow, 0, len(roster))
		for _, stu := range roster {
			row := attendanceRow{Student: studentDTO{ID: stu.ID, Name: stu.Name}}
			for _, d := range resp.Days {
				row.Presence = append(row.Presence, st.Presence(week, stu.ID, d.Date))
			}
			resp.Rows = append(resp.Rows, row)
		}
	})
	writeJSON(w, http.StatusOK, resp)
}

type toggleRequest struct {
	Week      string `json:"week"`
	StudentID string `json:"student_id"`
	Day       string `json:"day"`
}

type toggleResponse struct {
	Week    model.WeekKey `json:"week"`
	Day     model.DayKey  `json:"day"`
	Present bool          `json:"present"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StudentID == "" || req.Day == "" {
		writeError(w, http.StatusBadRequest, "student_id and day are required")
		return
	}

	resp := toggleResponse{Day: model.DayKey(req.Day)}
	s.app.Do(func(st *attendance.Store) {
		week := st.Selected()
		if req.Week != "" {
			week = s.app.Calendar.StartOfWeekISO(req.Week)
		}
		resp.Week = week
		resp.Present = st.ToggleAttendance(week, req.StudentID, resp.Day)
	})
	writeJSON(w, http.StatusOK, resp)
}

type reportEntryDTO struct {
	Student studentDTO `json:"student"`
	Days    []dayDTO   `json:"days"`
}

type reportResponse struct {
	Week      model.WeekKey    `json:"week"`
	WeekLabel string           `json:"week_label"`
	Entries   []reportEntryDTO `json:"entries"`
	Rows      int              `json:"rows"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	wr := s.app.Report(r.URL.Query().Get("week"))

	resp := reportResponse{
		Week:      wr.Report.Week,
		WeekLabel: s.app.Formatter.FormatDate(string(wr.Report.Week)),
		Entries:   make([]reportEntryDTO, 0, len(wr.Report.Entries)),
		Rows:      wr.Report.Rows(),
	}
	for _, e := range wr.Report.Entries {
		st, ok := wr.Students[e.StudentID]
		if !ok {
			st = model.Student{ID: e.StudentID, Name: e.StudentID}
		}
		entry := reportEntryDTO{Student: studentDTO{ID: st.ID, Name: st.Name}}
		for _, d := range e.Days {
			entry.Days = append(entry.Days, s.dayView(d))
		}
		resp.Entries = append(resp.Entries, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.app.ExportCSV(r.URL.Query().Get("week"))
	writeDocument(w, doc, ok)
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.app.ExportICS(r.URL.Query().Get("week"))
	writeDocument(w, doc, ok)
}

// writeDocument sends doc as a download, or 404 when there is nothing to
// export.
func writeDocument(w http.ResponseWriter, doc export.Document, ok bool) {
	if !ok {
		writeError(w, http.StatusNotFound, "no absences to export")
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
