package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunFailsWhenListenAddressIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	path := writeConfig(t, "storage:\n  driver: memory\n")

	code := run(flagConfig{configPath: path, listen: ln.Addr().String()}, &bytes.Buffer{})
	assert.Equal(t, 1, code)
}

func TestRunExportWeekPrintsCSV(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "attendance.students.json"),
		[]byte(`[{"id":"a","name":"Ali"}]`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "attendance.records.json"),
		[]byte(`{"2024-03-23":{"a":{"2024-03-25":false}}}`), 0o600))

	path := writeConfig(t, "week_start: saturday\nstorage:\n  driver: file\n  dir: "+dataDir+"\n")

	var out bytes.Buffer
	code := run(flagConfig{configPath: path, exportWeek: "2024-03-26"}, &out)
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"Ali","Monday","March 25, 2024","March 23, 2024"`, lines[1])
}

func TestRunExportWeekWithoutAbsences(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n")

	var out bytes.Buffer
	assert.Equal(t, 0, run(flagConfig{configPath: path, exportWeek: "2024-03-26"}, &out))
	assert.Empty(t, out.String())
}
