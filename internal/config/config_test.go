package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
	"postgres": {"host": "localhost", "port": 5432, "database": "setgraph", "user": "sg"},
	"sources": {
		"spotify": {"minInterval": "1h", "enabled": true, "priority": 5}
	}
}`

func TestParse_ValidConfigAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validJSON))
	require.NoError(t, err)
	assert.Equal(t, "setgraph", cfg.Postgres.Database)
	assert.Equal(t, SeedMatchExact, cfg.SeedMatchMode, "default seed match mode")
	assert.Equal(t, "info", cfg.LogLevel, "default log level")
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"postgres": {"host": "x", "database": "y"}, "bogusField": 1}`))
	assert.Error(t, err)
}

func TestParse_RequiresDatabaseAndHost(t *testing.T) {
	_, err := Parse([]byte(`{"postgres": {"host": "localhost"}}`))
	assert.ErrorContains(t, err, "database")

	_, err = Parse([]byte(`{"postgres": {"database": "setgraph"}}`))
	assert.ErrorContains(t, err, "host")
}

func TestParse_RejectsEnabledSourceWithZeroInterval(t *testing.T) {
	_, err := Parse([]byte(`{
		"postgres": {"host": "localhost", "database": "setgraph"},
		"sources": {"spotify": {"enabled": true}}
	}`))
	assert.ErrorContains(t, err, "minInterval")
}

func TestParse_RejectsMaxIntervalBelowMinInterval(t *testing.T) {
	_, err := Parse([]byte(`{
		"postgres": {"host": "localhost", "database": "setgraph"},
		"sources": {"spotify": {"minInterval": "1h", "maxInterval": "30m", "enabled": true}}
	}`))
	assert.ErrorContains(t, err, "maxInterval")
}

func TestParse_RejectsInvalidSeedMatchMode(t *testing.T) {
	_, err := Parse([]byte(`{
		"postgres": {"host": "localhost", "database": "setgraph"},
		"seedMatchMode": "fuzzy"
	}`))
	assert.ErrorContains(t, err, "seedMatchMode")
}

func TestLoad_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(validJSON), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestLoad_SETGRAPH_CONFIGOverridesDiskFile(t *testing.T) {
	t.Setenv("SETGRAPH_CONFIG", validJSON)
	cfg, err := Load("/nonexistent/path/config.json")
	require.NoError(t, err)
	assert.Equal(t, "setgraph", cfg.Postgres.Database)
}

func TestLoad_EnvOverridesApplyAfterParse(t *testing.T) {
	t.Setenv("SETGRAPH_CONFIG", validJSON)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("unused")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestDuration_RoundTripsThroughJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}

func TestDuration_RejectsMalformedString(t *testing.T) {
	var d Duration
	assert.Error(t, d.UnmarshalJSON([]byte(`"not-a-duration"`)))
}
