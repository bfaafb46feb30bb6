package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anri-helpdesk/helpdesk/internal/version"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ANRI_DATABASE_DRIVER", "sqlite3")
	t.Setenv("ANRI_DATABASE_NAME", filepath.Join(dir, "helpdesk.db"))
	t.Setenv("ANRI_STORAGE_LOCAL_PATH", filepath.Join(dir, "attachments"))
	t.Setenv("ANRI_LOGGING_LEVEL", "error")
	t.Setenv("ANRI_LOGGING_OUTPUT", "stderr")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	cleanupTasks = nil
	migrateSteps = 1

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Short())
}

func TestMigrateCommands(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "MIGRATION")
	assert.NotContains(t, out, "yes")

	out, err = execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.NotContains(t, out, "Applied 0 ")

	out, err = execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.NotContains(t, out, " no\n")

	out, err = execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0 migration(s)")

	_, err = execute(t, "migrate", "down", "--steps", "0")
	assert.Error(t, err)
}

func TestBansCommands(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "migrate", "up")
	require.NoError(t, err)

	out, err := execute(t, "bans", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No active bans")

	out, err = execute(t, "bans", "clear", "10.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 0 ban record(s)")

	_, err = execute(t, "bans", "clear", "a", "b")
	assert.Error(t, err)
}

func TestCleanupCommand(t *testing.T) {
	setupEnv(t)
	t.Setenv("ANRI_DATABASE_AUTO_MIGRATE", "true")

	out, err := execute(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "temp-attachment-cleanup: done")
	assert.Contains(t, out, "login-attempt-cleanup: done")

	_, err = execute(t, "cleanup", "--task", "no-such-task")
	assert.Error(t, err)
}
