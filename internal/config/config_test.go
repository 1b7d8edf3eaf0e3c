package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", conf.Server.Host)
	assert.Equal(t, "8092", conf.Server.Port)
	assert.Equal(t, "memory", conf.Storage.Driver)
	assert.Equal(t, 5*time.Minute, conf.Sweep.Interval.Std())
	assert.Equal(t, 48*time.Hour, conf.Sweep.ResponseWindow.Std())
	assert.False(t, conf.SMTP.Enabled())
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	conf, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", conf.Storage.Driver)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := `
server:
  port: "9000"
storage:
  driver: postgres
  dsn: postgres://localhost/booking
smtp:
  host: smtp.example.com
  port: 587
  user: mailer
  from_email: noreply@example.com
sweep:
  interval: 1m
  response_window: 24h
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", conf.Server.Port)

	// Untouched keys keep their defaults.
	assert.Equal(t, "localhost", conf.Server.Host)

	assert.Equal(t, "postgres", conf.Storage.Driver)
	assert.Equal(t, "postgres://localhost/booking", conf.Storage.DSN)
	assert.Equal(t, time.Minute, conf.Sweep.Interval.Std())
	assert.Equal(t, 24*time.Hour, conf.Sweep.ResponseWindow.Std())
	assert.True(t, conf.SMTP.Enabled())
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BOOKING_DSN", "postgres://db.internal/booking")
	t.Setenv("BOOKING_SMTP_PASSWORD", "hunter2")

	conf, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://db.internal/booking", conf.Storage.DSN)
	assert.Equal(t, "hunter2", conf.SMTP.Password)
}
