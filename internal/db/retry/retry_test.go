package retry

import (
	"context"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	return db
}

func deadlockErr() error {
	return &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	db := setupTestDB(t)

	calls := 0

	result, attempts, err := Do(context.Background(), db, "noop", func(_ *gorm.DB) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesDeadlockThenSucceeds(t *testing.T) {
	db := setupTestDB(t)

	calls := 0

	result, attempts, err := Do(context.Background(), db, "flaky", func(_ *gorm.DB) (int, error) {
		calls++
		if calls <= 2 {
			return 0, deadlockErr()
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	db := setupTestDB(t)

	calls := 0

	_, attempts, err := Do(context.Background(), db, "stuck", func(_ *gorm.DB) (int, error) {
		calls++
		return 0, deadlockErr()
	})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDeadlockExhausted), "want DeadlockExhausted, got %v", err)
	assert.Equal(t, MaxRetries, attempts)
	assert.Equal(t, MaxRetries, calls)
}

func TestDoApplicationErrorNotRetried(t *testing.T) {
	db := setupTestDB(t)

	calls := 0
	forbidden := apperr.Forbidden("no ownership")

	_, attempts, err := Do(context.Background(), db, "forbidden", func(_ *gorm.DB) (int, error) {
		calls++
		return 0, forbidden
	})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls, "application errors must propagate with zero retries")
}

func TestDoUnexpectedErrorWrappedInternal(t *testing.T) {
	db := setupTestDB(t)

	calls := 0

	_, _, err := Do(context.Background(), db, "broken", func(_ *gorm.DB) (int, error) {
		calls++
		return 0, errors.New("disk on fire")
	})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Equal(t, 1, calls, "unexpected errors must not be retried")
	assert.ErrorContains(t, err, "disk on fire")
}

func TestDoRollsBackFailedAttempt(t *testing.T) {
	db := setupTestDB(t)

	type row struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}

	require.NoError(t, db.AutoMigrate(&row{}))

	calls := 0

	_, attempts, err := Do(context.Background(), db, "partial", func(tx *gorm.DB) (int, error) {
		calls++
		if err := tx.Create(&row{Name: "partial write"}).Error; err != nil {
			return 0, err
		}
		if calls == 1 {
			return 0, deadlockErr()
		}

		return calls, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	// exactly one committed row: attempt 1 was rolled back before attempt 2 ran
	var count int64
	require.NoError(t, db.Model(&row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIsDeadlock(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "mysql deadlock", err: deadlockErr(), want: true},
		{name: "mysql other", err: &mysql.MySQLError{Number: 1062}, want: false},
		{name: "postgres deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "wrapped mysql deadlock", err: errors.Wrap(deadlockErr(), "tx failed"), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDeadlock(tc.err))
		})
	}
}
