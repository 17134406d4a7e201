package ratelimit

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildboard/guildboard/pkg/observability"
)

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLStore_RoundTrip(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "login:a@example.com", base))
	require.NoError(t, store.Record(ctx, "login:a@example.com", base.Add(time.Minute)))

	count, err := store.Count(ctx, "login:a@example.com", base)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	latest, err := store.Latest(ctx, "login:a@example.com")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), latest.UnixMilli())

	require.NoError(t, store.PruneBefore(ctx, "login:a@example.com", base.Add(30*time.Second)))
	count, err = store.Count(ctx, "login:a@example.com", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLStore_LatestEmptyKey(t *testing.T) {
	store := setupSQLStore(t)

	latest, err := store.Latest(context.Background(), "login:missing")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())
}

func TestLimiter_WithSQLStore(t *testing.T) {
	store := setupSQLStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	limiter := NewLimiter(RegisterConfig(), store, logger, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Check(ctx, "new@example.com"))
	}

	err := limiter.Check(ctx, "new@example.com")
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Greater(t, le.RetryAfter, time.Duration(0))
}
