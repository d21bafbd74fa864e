package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvyn/setgraph/internal/config"
)

func TestDSN_BuildsConnectionString(t *testing.T) {
	got := dsn(config.Postgres{Host: "db.internal", Port: 5432, Database: "setgraph", User: "sg", Password: "secret"})
	assert.Equal(t, "host=db.internal port=5432 dbname=setgraph user=sg password=secret sslmode=prefer", got)
}

func TestDefaultPoolConfig_MatchesSpecBounds(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, int32(20), cfg.MaxConns)
	assert.True(t, cfg.AcquireTimeout > 0)
}
