package postgres

import (
	"context"
	"errors"
	"testing"

	"savings-lockbox/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockBoxRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()

	mock.ExpectQuery("SELECT .+ FROM lockboxes WHERE owner").
		WithArgs(lb.Owner.String()).
		WillReturnRows(lockboxRow(lb))

	result, err := repo.Get(context.Background(), lb.Owner)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, lb, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBoxRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	owner := testAddr(9)

	mock.ExpectQuery("SELECT .+ FROM lockboxes WHERE owner").
		WithArgs(owner.String()).
		WillReturnRows(pgxmock.NewRows(lockboxRowColumns()))

	result, err := repo.Get(context.Background(), owner)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBoxRepo_Get_CorruptAddress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()

	mock.ExpectQuery("SELECT .+ FROM lockboxes WHERE owner").
		WithArgs(lb.Owner.String()).
		WillReturnRows(pgxmock.NewRows(lockboxRowColumns()).AddRow(
			"not-an-address", lb.Address.String(), lb.TargetAmount, lb.CurrentBalance,
			lb.HasReachedTarget, lb.IsActive, int16(lb.Nonce), lb.CreatedAt,
		))

	_, err = repo.Get(context.Background(), lb.Owner)
	assert.Error(t, err)
}

func TestLockBoxRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM lockboxes WHERE owner .+ FOR UPDATE").
		WithArgs(lb.Owner.String()).
		WillReturnRows(lockboxRow(lb))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, lb.Owner)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, uint8(254), result.Nonce)
	assert.Equal(t, lb.Address, result.Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBoxRepo_GetForUpdate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	owner := testAddr(5)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM lockboxes WHERE owner .+ FOR UPDATE").
		WithArgs(owner.String()).
		WillReturnRows(pgxmock.NewRows(lockboxRowColumns()))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, owner)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestLockBoxRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lockboxes").
		WithArgs(lb.Owner.String(), lb.Address.String(), lb.TargetAmount, lb.CurrentBalance,
			lb.HasReachedTarget, lb.IsActive, int16(lb.Nonce), lb.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, lb))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBoxRepo_Create_DuplicateOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lockboxes").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "lockboxes_pkey"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, lb)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConflict)
	assert.Contains(t, err.Error(), "insert lockbox")
}

func TestLockBoxRepo_Create_OtherError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lockboxes").
		WillReturnError(errors.New("connection reset"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, newTestLockBox())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrConflict)
}

func TestLockBoxRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()
	lb.CurrentBalance = 1100
	lb.HasReachedTarget = true

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lockboxes").
		WithArgs(uint64(1100), true, true, lb.Owner.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Update(context.Background(), tx, lb))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBoxRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lockboxes").
		WithArgs(lb.CurrentBalance, lb.HasReachedTarget, lb.IsActive, lb.Owner.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, lb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lockbox not found")
}

func TestLockBoxRepo_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	owner := testAddr(1)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM lockboxes").
		WithArgs(owner.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Delete(context.Background(), tx, owner))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBoxRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLockBoxRepo(mock)
	lb := newTestLockBox()
	active := true

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM lockboxes WHERE is_active .+ ORDER BY created_at DESC LIMIT").
		WithArgs(true, 20, 0).
		WillReturnRows(lockboxRow(lb))

	result, total, err := repo.List(context.Background(), ports.LockBoxListParams{Active: &active})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, result, 1)
	assert.Equal(t, lb.Owner, result[0].Owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name             string
		page, size       int
		wantPage, wantSz int
	}{
		{"defaults", 0, 0, 1, 20},
		{"negative", -3, -1, 1, 20},
		{"clamped", 2, 500, 2, 100},
		{"kept", 3, 50, 3, 50},
		{"huge page", 1 << 62, 100, ports.MaxPage, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s := normalizePage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p)
			assert.Equal(t, tt.wantSz, s)
		})
	}
}
