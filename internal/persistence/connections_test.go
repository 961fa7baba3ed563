package persistence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

func TestPostgresWithoutDSNSelectsMemoryStore(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, pg.InMemory())
	assert.NoError(t, pg.Ping(context.Background()))
	pg.Close()

	var missing *Postgres
	assert.True(t, missing.InMemory())
}

func TestPostgresRejectsMalformedDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{DSN: "postgres://user@localhost:notaport/helpdesk"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse POSTGRES_DSN")
}

func TestRedisWithoutAddressIsDisabled(t *testing.T) {
	r := NewRedis(context.Background(), config.RedisConfig{}, zaptest.NewLogger(t))
	assert.Nil(t, r)
	assert.Error(t, r.Ping(context.Background()))
	r.Close()
}

func TestRedisLockUsesKey(t *testing.T) {
	r := &Redis{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})}
	defer r.Close()

	lock := r.Lock("helpdesk:sla-sweep")
	assert.Equal(t, "helpdesk:sla-sweep", lock.key)
	assert.Same(t, r.Client, lock.client)
}
