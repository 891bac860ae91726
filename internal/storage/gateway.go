package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendbook/internal/attendance"
	"attendbook/internal/dates"
	appLog "attendbook/internal/log"
	"attendbook/internal/model"
)

// Record keys. Each record is loaded and saved independently.
const (
	KeyStudents     = "attendance.students"
	KeyRecords      = "attendance.records"
	KeySelectedWeek = "attendance.selectedWeek"
)

// Gateway maps the attendance state onto KV documents. Loads never fail:
// a missing or malformed document is replaced by its empty value and logged.
type Gateway struct {
	kv  KV
	cal *dates.Calendar
}

func NewGateway(kv KV, cal *dates.Calendar) *Gateway {
	return &Gateway{kv: kv, cal: cal}
}

// Load reads all three records.
func (g *Gateway) Load(ctx context.Context) attendance.State {
	return attendance.State{
		Roster:   g.LoadRoster(ctx),
		Matrix:   g.LoadMatrix(ctx),
		Selected: g.LoadSelectedWeek(ctx),
	}
}

// read returns the raw document, or nil when it is absent or unreadable.
func (g *Gateway) read(ctx context.Context, key string) []byte {
	data, err := g.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			appLog.Warn("storage: read failed, using default", err, "key", key)
		}
		return nil
	}
	return data
}

// LoadRoster returns the persisted roster in stored order. Entries missing
// an id or a name, and repeated ids, are dropped.
func (g *Gateway) LoadRoster(ctx context.Context) []model.Student {
	data := g.read(ctx, KeyStudents)
	if data == nil {
		return []model.Student{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		appLog.Warn("storage: malformed roster, using empty roster", err, "key", KeyStudents)
		return []model.Student{}
	}

	roster := make([]model.Student, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, item := range raw {
		var st model.Student
		if err := json.Unmarshal(item, &st); err != nil {
			continue
		}
		st.Name = strings.TrimSpace(st.Name)
		if st.ID == "" || st.Name == "" || seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		roster = append(roster, st)
	}
	return roster
}

// LoadMatrix returns the persisted matrix. Only the outer document has to be
// a JSON object; malformed weeks, students or non-boolean flags inside it are
// skipped, which reads back as present.
//
// Every day is filed under the week that contains it for the current week
// start, so records written under another week start stay reachable. Days
// outside the span of the week they were stored under are dropped. When two
// stored cells land on the same day, an absence wins.
func (g *Gateway) LoadMatrix(ctx context.Context) model.Matrix {
	data := g.read(ctx, KeyRecords)
	if data == nil {
		return model.Matrix{}
	}

	var weeks map[string]json.RawMessage
	if err := json.Unmarshal(data, &weeks); err != nil {
		appLog.Warn("storage: malformed attendance records, using empty matrix", err, "key", KeyRecords)
		return model.Matrix{}
	}

	m := make(model.Matrix, len(weeks))
	dropped, outOfWeek, rekeyed := 0, 0, 0
	for week, rawStudents := range weeks {
		var students map[string]json.RawMessage
		if err := json.Unmarshal(rawStudents, &students); err != nil {
			dropped++
			continue
		}
		for id, rawDays := range students {
			var days map[string]json.RawMessage
			if err := json.Unmarshal(rawDays, &days); err != nil {
				dropped++
				continue
			}
			for day, rawFlag := range days {
				var flag bool
				if err := json.Unmarshal(rawFlag, &flag); err != nil || bytes.Equal(bytes.TrimSpace(rawFlag), []byte("null")) {
					dropped++
					continue
				}
				dk := model.DayKey(day)
				if !g.cal.Contains(model.WeekKey(week), dk) {
					outOfWeek++
					continue
				}
				target := g.cal.StartOfWeekISO(day)
				if string(target) != week {
					rekeyed++
				}
				putCell(m, target, id, dk, flag)
			}
		}
	}
	if dropped > 0 {
		appLog.Warn("storage: skipped malformed attendance entries", nil, "key", KeyRecords, "dropped", dropped)
	}
	if outOfWeek > 0 {
		appLog.Warn("storage: skipped attendance entries outside their week", nil, "key", KeyRecords, "dropped", outOfWeek)
	}
	if rekeyed > 0 {
		appLog.Warn("storage: moved attendance entries to the current week start", nil,
			"key", KeyRecords, "moved", rekeyed, "week_start", g.cal.WeekStart)
	}
	return m
}

func putCell(m model.Matrix, week model.WeekKey, id string, day model.DayKey, flag bool) {
	students, ok := m[week]
	if !ok {
		students = map[string]map[model.DayKey]bool{}
		m[week] = students
	}
	days, ok := students[id]
	if !ok {
		days = map[model.DayKey]bool{}
		students[id] = days
	}
	if prev, seen := days[day]; seen {
		flag = prev && flag
	}
	days[day] = flag
}

// LoadSelectedWeek returns the persisted week, re-normalized. A JSON string
// and a bare date are both accepted; anything else selects the current week.
func (g *Gateway) LoadSelectedWeek(ctx context.Context) model.WeekKey {
	data := g.read(ctx, KeySelectedWeek)
	if data == nil {
		return g.cal.CurrentWeek()
	}

	var iso string
	if err := json.Unmarshal(data, &iso); err != nil {
		iso = strings.TrimSpace(string(data))
	}
	return g.cal.StartOfWeekISO(iso)
}

func (g *Gateway) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	if err := g.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return nil
}

func (g *Gateway) SaveRoster(ctx context.Context, roster []model.Student) error {
	if roster == nil {
		roster = []model.Student{}
	}
	return g.write(ctx, KeyStudents, roster)
}

func (g *Gateway) SaveMatrix(ctx context.Context, m model.Matrix) error {
	if m == nil {
		m = model.Matrix{}
	}
	return g.write(ctx, KeyRecords, m)
}

func (g *Gateway) SaveSelectedWeek(ctx context.Context, week model.WeekKey) error {
	return g.write(ctx, KeySelectedWeek, string(week))
}

// Save writes the records flagged in change. Every flagged record is
// attempted even if an earlier one fails.
func (g *Gateway) Save(ctx context.Context, change attendance.Change, st attendance.State) error {
	var errs []error
	if change.Has(attendance.ChangedRoster) {
		errs = append(errs, g.SaveRoster(ctx, st.Roster))
	}
	if change.Has(attendance.ChangedMatrix) {
		errs = append(errs, g.SaveMatrix(ctx, st.Matrix))
	}
	if change.Has(attendance.ChangedSelectedWeek) {
		errs = append(errs, g.SaveSelectedWeek(ctx, st.Selected))
	}
	return errors.Join(errs...)
}

// Persister saves the store after every committed mutation. Subscribe it
// with Store.Subscribe; each notification produces its own writes, in order.
type Persister struct {
	gw      *Gateway
	timeout time.Duration
}

func NewPersister(gw *Gateway, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Persister{gw: gw, timeout: timeout}
}

func (p *Persister) StateChanged(change attendance.Change, st attendance.State) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.gw.Save(ctx, change, st); err != nil {
		appLog.Error("persist state failed", err, "change", change)
		return
	}
	appLog.Debug("state persisted", "change", change)
}
