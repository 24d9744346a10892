package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("RATE_LIMIT_ENABLED", "")

	cfg := Load()
	assert.Equal(t, "mysql", cfg.DBType)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, int64(1), cfg.SnowflakeNode)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "Postgres")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "7")
	t.Setenv("RATE_LIMIT_ENABLED", "yes")
	t.Setenv("REDIS_ADDR", " localhost:6379 ")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, 7, cfg.DBMaxOpenConn)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.RedisAddr)
	assert.True(t, cfg.IsProduction())
}

func TestPolicyHolderDefaultsWithoutFile(t *testing.T) {
	holder, err := newPolicyHolder(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultMembershipPolicy(), holder.Get())
}

func TestPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`membership:
  pagination:
    defaultPageSize: 10
    maxPageSize: 20
  enrollment:
    attemptRate: 1.5
    attemptBurst: 3
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "membership.yml"), content, 0o600))

	holder, err := newPolicyHolder(zaptest.NewLogger(t), dir)
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 10, policy.Pagination.DefaultPageSize)
	assert.Equal(t, 20, policy.Pagination.MaxPageSize)
	assert.InDelta(t, 1.5, policy.Enrollment.AttemptRate, 0.0001)
	assert.Equal(t, 3, policy.Enrollment.AttemptBurst)
}

func TestPolicyHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`membership:
  pagination:
    defaultPageSize: 100
    maxPageSize: 20
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "membership.yml"), content, 0o600))

	_, err := newPolicyHolder(zaptest.NewLogger(t), dir)
	require.Error(t, err)
}

func TestNilPolicyHolderFallsBackToDefaults(t *testing.T) {
	var holder *PolicyHolder
	assert.Equal(t, DefaultMembershipPolicy(), holder.Get())
}
