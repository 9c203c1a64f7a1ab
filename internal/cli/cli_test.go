package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "constellation dev"))
}

func TestIngestAndQuery(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONSTELLATION_DB", filepath.Join(dir, "data", "constellation.db"))
	cfg := filepath.Join(dir, "missing.yaml")

	feed := filepath.Join(dir, "activity.jsonl")
	require.NoError(t, os.WriteFile(feed, []byte(strings.Join([]string{
		`{"app":"Slack","title":"Ana Lima (DM) - Acme - Slack","timestamp":"2026-03-02T09:00:00Z"}`,
		`{"app":"Google Chrome","title":"lazypower/constellation","url":"https://github.com/lazypower/constellation","timestamp":"2026-03-02T09:02:00Z"}`,
		`not json`,
		`{"app":"Slack","title":"Ana Lima (DM) - Acme - Slack","timestamp":"2026-03-02T09:03:00Z"}`,
	}, "\n")+"\n"), 0644))

	out, err := run(t, "--config", cfg, "ingest", feed)
	require.NoError(t, err)
	assert.Contains(t, out, "ingested 3 entries")

	out, err = run(t, "--config", cfg, "search", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "1. [")
	assert.Contains(t, out, "Ana Lima (person, weight 2)")

	_, err = run(t, "--config", cfg, "search", "--type", "planet", "ana")
	assert.Error(t, err)

	out, err = run(t, "--config", cfg, "people")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana Lima")

	out, err = run(t, "--config", cfg, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana Lima")

	_, err = run(t, "--config", cfg, "reset")
	assert.Error(t, err, "reset needs confirmation")

	out, err = run(t, "--config", cfg, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "All data cleared.")

	out, err = run(t, "--config", cfg, "search", "--type", "person", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}
