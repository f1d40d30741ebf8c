package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
app:
  name: itinera
database:
  path: %s
api:
  public_base_url: https://trips.example.com
logging:
  level: warn
  output: stderr
exports:
  path: %s
backup:
  storage_path: %s
  retention_days: 7
`, filepath.Join(dir, "itinera.db"), filepath.Join(dir, "exports"), filepath.Join(dir, "backups"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dir
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

var createdID = regexp.MustCompile(`Created (\S+) \((\d+) days\)`)

func TestCLIWorkflow(t *testing.T) {
	configPath, dir := writeConfig(t)

	out, err := runCLI(t, configPath, "generate",
		"--destination", "Lisbon",
		"--start", "2026-09-01",
		"--end", "2026-09-05",
		"--theme", "Food",
		"--budget", "mid-range",
	)
	require.NoError(t, err, out)
	m := createdID.FindStringSubmatch(out)
	require.Len(t, m, 3, out)
	id := m[1]
	assert.Equal(t, "4", m[2])
	assert.Contains(t, out, "Edit: https://trips.example.com/edit/"+id)

	out, err = runCLI(t, configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 1  Active: 0")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Lisbon")

	out, err = runCLI(t, configPath, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"destination": "Lisbon"`)

	out, err = runCLI(t, configPath, "share", id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "https://trips.example.com/itinerary/"), out)

	out, err = runCLI(t, configPath, "list", "--status", "shared")
	require.NoError(t, err)
	assert.Contains(t, out, "Active: 1")

	pdfPath := filepath.Join(dir, "out", "trip.pdf")
	out, err = runCLI(t, configPath, "export", "pdf", id, "--images=false", "--out", pdfPath)
	require.NoError(t, err, out)
	raw, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))

	out, err = runCLI(t, configPath, "export", "xlsx")
	require.NoError(t, err, out)
	xlsxPath := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(xlsxPath, filepath.Join(dir, "exports")))
	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	status, _ := f.GetCellValue("Itineraries", "I5")
	assert.Equal(t, "shared", status)
	f.Close()

	out, err = runCLI(t, configPath, "complete", id)
	require.NoError(t, err)
	assert.Equal(t, id+" is completed\n", out)

	out, err = runCLI(t, configPath, "backup")
	require.NoError(t, err)
	_, err = os.Stat(strings.TrimSpace(out))
	assert.NoError(t, err)
}

func TestCLIErrors(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, err := runCLI(t, configPath, "show", "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = runCLI(t, configPath, "generate", "--destination", "Lisbon")
	assert.ErrorContains(t, err, "validation failed")

	_, err = runCLI(t, filepath.Join(t.TempDir(), "nope.yaml"), "list")
	assert.ErrorContains(t, err, "load config")

	_, err = runCLI(t, configPath, "show")
	assert.Error(t, err)
}
