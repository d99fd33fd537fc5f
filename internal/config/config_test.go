/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse(args))
	return Load(flags)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 300*time.Second, cfg.Poller.RefreshInterval)
	assert.Equal(t, 30*time.Second, cfg.Alerting.Interval)
	assert.Equal(t, 90, cfg.HistoryRetention.Days)
	assert.Equal(t, 50, cfg.RateLimits.MaxAlertsPerMinute)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, []string{"*"}, cfg.API.AllowedHosts)
}

func TestLoad_FlagOverrides(t *testing.T) {
	cfg, err := loadWithArgs(t,
		"--scheduler.interval=60s",
		"--history-retention.days=30",
		"--api.allowed-hosts=https://reef.local,https://reef.example",
	)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 30, cfg.HistoryRetention.Days)
	assert.Equal(t, []string{"https://reef.local", "https://reef.example"}, cfg.API.AllowedHosts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "45s")
	t.Setenv("SERVICE_TOKEN", "shared-secret")
	t.Setenv("HISTORY_RETENTION_DAYS", "14")

	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, "shared-secret", cfg.Auth.ServiceToken)
	assert.Equal(t, 14, cfg.HistoryRetention.Days)
}

func TestLoad_SchedulerIntervalBounds(t *testing.T) {
	_, err := loadWithArgs(t, "--scheduler.interval=2s")
	assert.Error(t, err)

	_, err = loadWithArgs(t, "--scheduler.interval=2h")
	assert.Error(t, err)

	_, err = loadWithArgs(t, "--scheduler.interval=5s")
	assert.NoError(t, err)
}

func TestStorageDSN(t *testing.T) {
	s := StorageConfig{Type: "sqlite", SQLite: SQLiteConfig{Path: "/tmp/reef.db"}}
	dialect, dsn, err := s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dialect)
	assert.Equal(t, "/tmp/reef.db", dsn)

	s = StorageConfig{Type: "postgres", PostgreSQL: PostgreSQLConfig{
		Host: "db", Port: 5432, Database: "reef", Username: "reef", Password: "secret", SSLMode: "disable",
	}}
	dialect, dsn, err = s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialect)
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "dbname=reef")

	s = StorageConfig{Type: "postgres"}
	_, _, err = s.DSN()
	assert.Error(t, err, "postgres requires a host")

	s = StorageConfig{Type: "void"}
	_, _, err = s.DSN()
	assert.Error(t, err)
}

func TestStorageDSN_DatabaseURL(t *testing.T) {
	s := StorageConfig{DatabaseURL: "postgres://reef:secret@db:5432/reef?sslmode=disable"}
	dialect, dsn, err := s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialect)
	assert.Equal(t, "postgres://reef:secret@db:5432/reef?sslmode=disable", dsn)

	s = StorageConfig{DatabaseURL: "mysql://reef:secret@db:3306/reef"}
	dialect, dsn, err = s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "mysql", dialect)
	assert.Contains(t, dsn, "tcp(db:3306)")

	s = StorageConfig{DatabaseURL: "sqlite:/data/reef.db"}
	dialect, dsn, err = s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dialect)
	assert.Equal(t, "/data/reef.db", dsn)

	s = StorageConfig{DatabaseURL: "redis://nope"}
	_, _, err = s.DSN()
	assert.Error(t, err)
}
