package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/ports"
)

// setupTestDB creates a database in a per-test temporary directory.
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "nested", "test.db"),
		Logger: ports.NopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_LoadEmpty(t *testing.T) {
	repo := setupTestDB(t)
	st, err := repo.LoadState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	coolOff := time.Date(2026, 3, 2, 14, 30, 0, 123, time.UTC)

	in := ports.PersistedState{
		ConsecutiveLosses: 3,
		RecoveryMode:      "recovery",
		CoolOffUntil:      coolOff,
		CompoundLevel:     2,
		CompoundProfit:    1.75,
		CounterDay:        day,
		TradesToday:       map[string]int{"EURUSD": 2, "GBPUSD": 1},
		UpdatedAt:         day.Add(10 * time.Hour),
	}
	require.NoError(t, repo.SaveState(ctx, in))

	out, err := repo.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 3, out.ConsecutiveLosses)
	assert.Equal(t, "recovery", out.RecoveryMode)
	assert.True(t, coolOff.Equal(out.CoolOffUntil))
	assert.Equal(t, 2, out.CompoundLevel)
	assert.Equal(t, 1.75, out.CompoundProfit)
	assert.True(t, day.Equal(out.CounterDay))
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
	assert.Equal(t, in.TradesToday, out.TradesToday)
}

func TestRepository_SaveReplacesPreviousDay(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveState(ctx, ports.PersistedState{
		RecoveryMode: "normal", CompoundLevel: 1, CounterDay: day1,
		TradesToday: map[string]int{"EURUSD": 4}, UpdatedAt: day1,
	}))
	require.NoError(t, repo.SaveState(ctx, ports.PersistedState{
		RecoveryMode: "normal", CompoundLevel: 1, CounterDay: day1.AddDate(0, 0, 1),
		TradesToday: map[string]int{"GBPUSD": 1}, UpdatedAt: day1.AddDate(0, 0, 1),
	}))

	out, err := repo.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"GBPUSD": 1}, out.TradesToday)
	assert.True(t, out.CoolOffUntil.IsZero())

	var rows int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM daily_trade_counters`).Scan(&rows))
	assert.Equal(t, 1, rows)
}
