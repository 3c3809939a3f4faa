package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesOverDefaults(t *testing.T) {
	path := writeConfig(t, "database: /var/lib/observer.json\nmeeting_interval: 10m\nmeeting_userc: 3\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/observer.json", cfg.Database)
	assert.Equal(t, 3, cfg.MeetingUserc)
	assert.Equal(t, "1m", cfg.Autosave, "untouched keys keep defaults")

	d, err := cfg.Intervals()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d.MeetingInterval)
	assert.Equal(t, time.Minute, d.CommentCooldown)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "no_such_key: 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadInterval(t *testing.T) {
	path := writeConfig(t, "autosave: sometimes\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConsoleAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost:4123", cfg.ConsoleAddr())
}
