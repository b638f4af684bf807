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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLINIC_JWT_SECRET", "test-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Clinic.OpenHour)
	assert.Equal(t, 18, cfg.Clinic.CloseHour)
	assert.Equal(t, 10, cfg.Clinic.DailyCapacity)
	assert.Len(t, cfg.Clinic.OpenDays, 5)
	assert.Equal(t, 3, cfg.Outbox.RetryAttempts)
	assert.Equal(t, 7*24*time.Hour, cfg.Outbox.Retention)
	assert.True(t, cfg.Redis.Optional)
}

func TestLoadConfigFile(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: mysql
  host: db
  port: 3306
jwt:
  secret: from-file
clinic:
  open_hour: 9
  close_hour: 17
  daily_capacity: 4
  open_days: [mon, wed, fri]
  timezone: UTC
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "clinic:@tcp(db:3306)/clinic?parseTime=true&loc=UTC&clientFoundRows=true", cfg.Database.DSN())
	assert.Equal(t, "from-file", cfg.JWT.Secret)

	slotCfg, err := cfg.Clinic.ToSlotConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, slotCfg.DailyCapacity)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, slotCfg.OpenDays)
	assert.Equal(t, time.UTC, slotCfg.Location)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9000
jwt:
  secret: from-file
clinic:
  daily_capacity: 4
`)
	t.Setenv("CLINIC_PORT", "9100")
	t.Setenv("CLINIC_JWT_SECRET", "from-env")
	t.Setenv("CLINIC_DAILY_CAPACITY", "12")
	t.Setenv("CLINIC_DB_HOST", "pg.internal")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 12, cfg.Clinic.DailyCapacity)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Contains(t, cfg.Database.DSN(), "host=pg.internal port=5432")
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing jwt secret", "server:\n  port: 8080\n"},
		{"unknown driver", "jwt:\n  secret: s\ndatabase:\n  driver: sqlite\n"},
		{"hours inverted", "jwt:\n  secret: s\nclinic:\n  open_hour: 18\n  close_hour: 8\n"},
		{"close at midnight", "jwt:\n  secret: s\nclinic:\n  open_hour: 8\n  close_hour: 24\n"},
		{"zero capacity", "jwt:\n  secret: s\nclinic:\n  daily_capacity: 0\n"},
		{"unknown weekday", "jwt:\n  secret: s\nclinic:\n  open_days: [funday]\n"},
		{"unknown timezone", "jwt:\n  secret: s\nclinic:\n  timezone: Mars/Olympus\n"},
		{"malformed yaml", "jwt: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
