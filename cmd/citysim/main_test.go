package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/persistence"
)

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		raw     string
		want    []int64
		wantErr bool
	}{
		{"", []int64{42}, false},
		{"7", []int64{7}, false},
		{"1, 2,3", []int64{1, 2, 3}, false},
		{"1,,2", []int64{1, 2}, false},
		{"1,x", nil, true},
		{"3,3", nil, true},
		{" , ", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSeeds(tt.raw, 42)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "city.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunSimulations_Ensemble(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "citysim.db")
	opts := &runOptions{
		rootOptions: &rootOptions{ConfigPath: writeConfig(t, "simulation:\n  periods: 3\n")},
		Database:    dbPath,
		Seeds:       "1,2",
		Parallel:    2,
	}

	var out bytes.Buffer
	require.NoError(t, runSimulations(context.Background(), opts, &out))
	assert.Contains(t, out.String(), "SEED")
	assert.Equal(t, 3, strings.Count(out.String(), "\n"), "header plus one line per seed")

	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		hist, err := db.History(r.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, hist.Len())
	}
}

func TestResumeAndHistory(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	dbPath := filepath.Join(t.TempDir(), "citysim.db")
	root := &rootOptions{ConfigPath: writeConfig(t, "simulation:\n  periods: 4\n")}

	var out bytes.Buffer
	require.NoError(t, runSimulations(context.Background(), &runOptions{
		rootOptions: root, Database: dbPath, Periods: 2,
	}, &out))

	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	runs, err := db.Runs(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	id := runs[0].ID
	db.Close()

	out.Reset()
	require.NoError(t, resumeRun(context.Background(), &resumeOptions{
		rootOptions: root, Database: dbPath, RunID: id,
	}, &out))

	out.Reset()
	require.NoError(t, showHistory(context.Background(), &historyOptions{
		rootOptions: root, Database: dbPath, RunID: id,
	}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 5, "header plus four periods")

	out.Reset()
	require.NoError(t, showHistory(context.Background(), &historyOptions{
		rootOptions: root, Database: dbPath, RunID: id, Bulletin: true,
	}, &out))
	assert.Contains(t, out.String(), "Period 3")

	out.Reset()
	require.NoError(t, showHistory(context.Background(), &historyOptions{
		rootOptions: root, Database: dbPath,
	}, &out))
	assert.Contains(t, out.String(), id)
}

func TestRunSimulations_CancelledIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runSimulations(ctx, &runOptions{rootOptions: &rootOptions{}, Periods: 5}, &out)
	assert.NoError(t, err)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "resume", "history", "serve"})
}

func TestNewLogger_NoColorOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Info("period report", "period", 3)
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "period report")
}
