package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendbook/internal/attendance"
	"attendbook/internal/dates"
	"attendbook/internal/model"
	"attendbook/internal/report"
)

const week model.WeekKey = "2024-03-23"

func testCalendar() *dates.Calendar {
	return &dates.Calendar{
		WeekStart: time.Saturday,
		Now:       func() time.Time { return time.Date(2024, 3, 27, 9, 0, 0, 0, time.UTC) },
	}
}

func seed(t *testing.T, kv KV, key, doc string) {
	t.Helper()
	require.NoError(t, kv.Set(context.Background(), key, []byte(doc)))
}

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	buf := []byte("v1")
	require.NoError(t, kv.Set(ctx, "k", buf))
	buf[0] = 'X'

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestFileKV(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	_, err = kv.Get(ctx, KeyStudents)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, KeyStudents, []byte(`[]`)))
	require.NoError(t, kv.Set(ctx, KeyStudents, []byte(`[{"id":"a","name":"Ali"}]`)))

	got, err := kv.Get(ctx, KeyStudents)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","name":"Ali"}]`, string(got))

	info, err := os.Stat(filepath.Join(dir, KeyStudents+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	assert.Error(t, kv.Set(ctx, "../escape", []byte("x")))
	_, err = NewFileKV("")
	assert.Error(t, err)
}

func TestRedisKVUnreachable(t *testing.T) {
	_, err := NewRedisKV(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(NewMemoryKV(), testCalendar())

	roster := []model.Student{{ID: "a", Name: "Ali"}, {ID: "s", Name: "Sara"}}
	m := model.Matrix{week: {"a": {"2024-03-25": false}}}

	require.NoError(t, gw.SaveRoster(ctx, roster))
	require.NoError(t, gw.SaveMatrix(ctx, m))
	require.NoError(t, gw.SaveSelectedWeek(ctx, "2024-03-30"))

	st := gw.Load(ctx)
	assert.Equal(t, roster, st.Roster)
	assert.Equal(t, m, st.Matrix)
	assert.Equal(t, model.WeekKey("2024-03-30"), st.Selected)
}

func TestGatewayMissingDocumentsUseDefaults(t *testing.T) {
	st := NewGateway(NewMemoryKV(), testCalendar()).Load(context.Background())

	assert.Empty(t, st.Roster)
	assert.NotNil(t, st.Roster)
	assert.Empty(t, st.Matrix)
	assert.Equal(t, week, st.Selected)
}

func TestLoadRosterMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []model.Student
	}{
		{"not json", `not json`, []model.Student{}},
		{"object instead of array", `{"id":"a","name":"Ali"}`, []model.Student{}},
		{"null", `null`, []model.Student{}},
		{"bad entries dropped", `[{"id":"a","name":"Ali"},{"id":"","name":"X"},{"id":"b"},42,{"id":"a","name":"Dup"},{"id":"c","name":" Cy "}]`,
			[]model.Student{{ID: "a", Name: "Ali"}, {ID: "c", Name: "Cy"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV()
			seed(t, kv, KeyStudents, tt.doc)

			got := NewGateway(kv, testCalendar()).LoadRoster(context.Background())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMatrixShallowValidation(t *testing.T) {
	kv := NewMemoryKV()
	gw := NewGateway(kv, testCalendar())

	seed(t, kv, KeyRecords, `[1,2,3]`)
	assert.Empty(t, gw.LoadMatrix(context.Background()))

	seed(t, kv, KeyRecords, `"nope"`)
	assert.Empty(t, gw.LoadMatrix(context.Background()))

	seed(t, kv, KeyRecords, `{
		"2024-03-23": {
			"a": {"2024-03-25": false, "2024-03-26": "absent", "2024-03-27": null, "2024-03-28": true},
			"b": 17
		},
		"2024-03-30": "corrupt"
	}`)
	m := gw.LoadMatrix(context.Background())

	assert.Equal(t, model.Matrix{week: {"a": {"2024-03-25": false, "2024-03-28": true}}}, m)
	assert.True(t, m.Presence(week, "a", "2024-03-26"))
	assert.True(t, m.Presence(week, "b", "2024-03-25"))
}

func TestLoadMatrixRekeysToCurrentWeekStart(t *testing.T) {
	// Written while weeks started on Monday, read back with Saturday weeks.
	kv := NewMemoryKV()
	seed(t, kv, KeyRecords, `{
		"2024-03-25": {"a": {"2024-03-25": false, "2024-03-27": false, "2024-04-10": false}},
		"2024-03-18": {"a": {"2024-03-23": false}, "b": {"2024-03-18": false}},
		"2024-03-19": {"b": {"2024-03-25": true}}
	}`)
	gw := NewGateway(kv, testCalendar())

	m := gw.LoadMatrix(context.Background())

	assert.Equal(t, model.Matrix{
		week: {
			"a": {"2024-03-23": false, "2024-03-25": false, "2024-03-27": false},
			"b": {"2024-03-25": true},
		},
		"2024-03-16": {
			"b": {"2024-03-18": false},
		},
	}, m)
	for k := range m {
		assert.Equal(t, testCalendar().StartOfWeekISO(string(k)), k, "week keys are normalized")
	}

	assert.False(t, m.Presence(week, "a", "2024-03-25"))
	assert.True(t, m.Presence("2024-04-06", "a", "2024-04-10"), "days outside their stored week are dropped")

	rep := report.Build(testCalendar(), m, week, []model.Student{{ID: "a", Name: "Ali"}})
	assert.Equal(t, map[string][]model.DayKey{"a": {"2024-03-23", "2024-03-25", "2024-03-27"}}, rep.ByStudent())
}

func TestLoadMatrixAbsenceWinsOnMerge(t *testing.T) {
	kv := NewMemoryKV()
	seed(t, kv, KeyRecords, `{
		"2024-03-23": {"a": {"2024-03-25": true}},
		"2024-03-25": {"a": {"2024-03-25": false}}
	}`)

	m := NewGateway(kv, testCalendar()).LoadMatrix(context.Background())
	assert.Equal(t, model.Matrix{week: {"a": {"2024-03-25": false}}}, m)
}

func TestLoadSelectedWeekRenormalizes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want model.WeekKey
	}{
		{"json string mid-week", `"2024-04-03"`, "2024-03-30"},
		{"bare date", `2024-04-03`, "2024-03-30"},
		{"already normalized", `"2024-03-23"`, "2024-03-23"},
		{"garbage", `{"week":1}`, week},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV()
			seed(t, kv, KeySelectedWeek, tt.doc)

			got := NewGateway(kv, testCalendar()).LoadSelectedWeek(context.Background())
			assert.Equal(t, tt.want, got)
		})
	}
}

type failingKV struct{ *MemoryKV }

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("boom") }
func (failingKV) Set(context.Context, string, []byte) error  { return errors.New("boom") }

func TestGatewayBackendErrors(t *testing.T) {
	gw := NewGateway(failingKV{NewMemoryKV()}, testCalendar())

	st := gw.Load(context.Background())
	assert.Empty(t, st.Roster)
	assert.Equal(t, week, st.Selected)

	err := gw.Save(context.Background(), attendance.ChangedRoster|attendance.ChangedMatrix, st)
	assert.ErrorContains(t, err, KeyStudents)
	assert.ErrorContains(t, err, KeyRecords)
}

type countingKV struct {
	*MemoryKV
	writes []string
}

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	c.writes = append(c.writes, key+"="+string(value))
	return c.MemoryKV.Set(ctx, key, value)
}

func TestPersisterWritesEveryMutationInOrder(t *testing.T) {
	kv := &countingKV{MemoryKV: NewMemoryKV()}
	cal := testCalendar()
	gw := NewGateway(kv, cal)

	store := attendance.NewStore(cal)
	store.Subscribe(NewPersister(gw, time.Second))

	ali, _ := store.AddStudent("Ali")
	store.ToggleAttendance(week, ali.ID, "2024-03-25")
	store.ToggleAttendance(week, ali.ID, "2024-03-26")
	store.ToggleAttendance(week, ali.ID, "2024-03-25")
	store.SelectWeek("2024-04-01")

	require.Len(t, kv.writes, 5)
	assert.Contains(t, kv.writes[0], KeyStudents+"=")
	for i := 1; i <= 3; i++ {
		assert.Contains(t, kv.writes[i], KeyRecords+"=")
	}
	assert.Equal(t, KeySelectedWeek+`="2024-03-30"`, kv.writes[4])

	var second model.Matrix
	require.NoError(t, json.Unmarshal([]byte(kv.writes[2][len(KeyRecords)+1:]), &second))
	assert.False(t, second.Presence(week, ali.ID, "2024-03-25"))
	assert.False(t, second.Presence(week, ali.ID, "2024-03-26"))

	reloaded := attendance.NewStore(cal)
	reloaded.Restore(gw.Load(context.Background()))
	assert.Equal(t, store.Roster(), reloaded.Roster())
	assert.Equal(t, store.Matrix(), reloaded.Matrix())
	assert.Equal(t, model.WeekKey("2024-03-30"), reloaded.Selected())
}
