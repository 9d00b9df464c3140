package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
)

func TestResolveWindow(t *testing.T) {
	periodMode, periodYear, periodMonth = "full_month", 2025, 2
	t.Cleanup(func() { periodMode, periodYear, periodMonth, periodStart, periodEnd = "month_to_date", 0, 0, "", "" })

	w, err := resolveWindow()
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, 2, 1), w.Start)
	assert.Equal(t, dates.Date(2025, 2, 28), w.End)

	periodMode = "custom"
	_, err = resolveWindow()
	assert.Error(t, err)

	periodStart, periodEnd = "2025-01-03", "2025-01-09"
	w, err = resolveWindow()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-03 to 2025-01-09", w.String())
}

func TestUploadAndWipeCommands(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "calls.csv")
	require.NoError(t, os.WriteFile(file, []byte(
		"Name,Total Calls,Completed Calls,Outgoing,Received,Forwarded to Voicemail,Answered by Other,Missed,Avg Call Time,Total Call Time,Total Hold Time\n"+
			"Earl,10,8,4,6,0,1,1,00:02:00,00:16:00,00:00:30\n"), 0o644))

	run := func(args ...string) error {
		rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "none.toml"), "--data-dir", filepath.Join(dir, "data")}, args...))
		return rootCmd.Execute()
	}

	require.NoError(t, run("upload", "calls", file, "--period", "2025-01"))
	require.NoError(t, run("batches"))
	assert.ErrorIs(t, run("wipe"), errNotConfirmed)
	require.NoError(t, run("wipe", "calls", "--yes"))
	assert.Error(t, run("upload", "init", file))

	_, err := os.Stat(filepath.Join(dir, "data", "intake.db"))
	assert.NoError(t, err)
}
