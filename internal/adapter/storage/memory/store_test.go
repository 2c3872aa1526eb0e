package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/internal/core/vault"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr(fill byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func testLockBox(owner byte, created time.Time) *domain.LockBox {
	return &domain.LockBox{
		Owner:        testAddr(owner),
		Address:      testAddr(owner + 100),
		TargetAmount: 1000,
		IsActive:     true,
		CreatedAt:    created,
		Nonce:        255,
	}
}

func begin(t *testing.T, s *Store) pgx.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func TestStore_CommitPublishesStagedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewLockBoxRepo(store)
	lb := testLockBox(1, time.Now().UTC())

	tx := begin(t, store)
	require.NoError(t, repo.Create(ctx, tx, lb))

	got, err := repo.Get(ctx, lb.Owner)
	require.NoError(t, err)
	assert.Nil(t, got, "uncommitted writes are invisible outside the tx")

	staged, err := repo.GetForUpdate(ctx, tx, lb.Owner)
	require.NoError(t, err)
	require.NotNil(t, staged)

	require.NoError(t, tx.Commit(ctx))

	got, err = repo.Get(ctx, lb.Owner)
	require.NoError(t, err)
	assert.Equal(t, lb, got)
}

func TestStore_RollbackDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ledger := NewLedgerRepo(store)
	addr := testAddr(1)

	tx := begin(t, store)
	_, err := ledger.Credit(ctx, tx, addr, 500)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	balance, err := ledger.Balance(ctx, nil, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
}

func TestStore_FinishedTx(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewLockBoxRepo(store)

	tx := begin(t, store)
	require.NoError(t, tx.Commit(ctx))

	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	assert.ErrorIs(t, repo.Create(ctx, tx, testLockBox(1, time.Now())), ErrTxDone)
}

func TestStore_RejectsForeignTx(t *testing.T) {
	ctx := context.Background()
	a, b := NewStore(), NewStore()

	tx := begin(t, a)
	defer tx.Rollback(ctx) //nolint:errcheck

	err := NewLockBoxRepo(b).Create(ctx, tx, testLockBox(1, time.Now()))
	assert.ErrorIs(t, err, ErrForeignTx)
}

func TestStore_SerializesTransactions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := begin(t, store)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := store.Begin(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second writer waits for the first")

	acquired := make(chan pgx.Tx)
	go func() {
		tx, _ := store.Begin(ctx)
		acquired <- tx
	}()

	require.NoError(t, first.Rollback(ctx))

	select {
	case tx := <-acquired:
		require.NotNil(t, tx)
		assert.NoError(t, tx.Rollback(ctx))
	case <-time.After(time.Second):
		t.Fatal("second transaction never started")
	}
}

func TestTx_SQLMethodsUnsupported(t *testing.T) {
	ctx := context.Background()
	tx := begin(t, NewStore())
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err := tx.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNoSQL)
	_, err = tx.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNoSQL)
	var n int
	assert.ErrorIs(t, tx.QueryRow(ctx, "SELECT 1").Scan(&n), ErrNoSQL)
}

func TestLockBoxRepo_CreateConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewLockBoxRepo(store)
	lb := testLockBox(1, time.Now())

	tx := begin(t, store)
	defer tx.Rollback(ctx) //nolint:errcheck

	require.NoError(t, repo.Create(ctx, tx, lb))
	assert.ErrorIs(t, repo.Create(ctx, tx, lb), errDuplicateOwner)

	other := testLockBox(2, time.Now())
	other.Address = lb.Address
	assert.ErrorIs(t, repo.Create(ctx, tx, other), errDuplicateAddress)
}

func TestLockBoxRepo_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewLockBoxRepo(store)
	lb := testLockBox(1, time.Now())

	tx := begin(t, store)
	require.NoError(t, repo.Create(ctx, tx, lb))

	next := lb.Clone()
	next.CurrentBalance = 1100
	next.HasReachedTarget = true
	next.TargetAmount = 1 // immutable, ignored
	require.NoError(t, repo.Update(ctx, tx, next))
	require.NoError(t, tx.Commit(ctx))

	got, err := repo.Get(ctx, lb.Owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), got.CurrentBalance)
	assert.True(t, got.HasReachedTarget)
	assert.Equal(t, uint64(1000), got.TargetAmount)

	tx = begin(t, store)
	require.NoError(t, repo.Delete(ctx, tx, lb.Owner))
	assert.ErrorIs(t, repo.Delete(ctx, tx, lb.Owner), errLockBoxNotFound)
	assert.ErrorIs(t, repo.Update(ctx, tx, next), errLockBoxNotFound)
	require.NoError(t, tx.Commit(ctx))

	got, err = repo.Get(ctx, lb.Owner)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockBoxRepo_List(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewLockBoxRepo(store)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tx := begin(t, store)
	for i := byte(1); i <= 5; i++ {
		lb := testLockBox(i, base.Add(time.Duration(i)*time.Minute))
		lb.IsActive = i%2 == 1
		require.NoError(t, repo.Create(ctx, tx, lb))
	}
	require.NoError(t, tx.Commit(ctx))

	active := true
	result, total, err := repo.List(ctx, ports.LockBoxListParams{Active: &active, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, result, 2)
	assert.Equal(t, testAddr(5), result[0].Owner, "newest first")
	assert.Equal(t, testAddr(3), result[1].Owner)

	result, _, err = repo.List(ctx, ports.LockBoxListParams{Active: &active, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, testAddr(1), result[0].Owner)

	result, total, err = repo.List(ctx, ports.LockBoxListParams{Page: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, result)
}

func TestPaginate_HugePageIsEmpty(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	for _, page := range []int{1 << 62, math.MaxInt} {
		got, total := paginate(items, page, 100)
		assert.Equal(t, int64(5), total)
		assert.Empty(t, got)
	}

	got, _ := paginate(items, 3, 2)
	assert.Equal(t, []int{5}, got)
}

func TestLedgerRepo_Transfer(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ledger := NewLedgerRepo(store)
	from, to := testAddr(1), testAddr(2)

	_, err := ledger.Credit(ctx, nil, from, 500)
	require.NoError(t, err)

	tx := begin(t, store)
	require.NoError(t, ledger.Transfer(ctx, tx, from, to, 200, vault.SignerAuthority(from)))

	err = ledger.Transfer(ctx, tx, from, to, 400, vault.SignerAuthority(from))
	assert.ErrorIs(t, err, vault.ErrLedgerInsufficientFunds)

	err = ledger.Transfer(ctx, tx, from, to, 1, vault.SignerAuthority(to))
	assert.ErrorIs(t, err, vault.ErrLedgerUnauthorized)

	require.NoError(t, tx.Commit(ctx))

	fromBalance, _ := ledger.Balance(ctx, nil, from)
	toBalance, _ := ledger.Balance(ctx, nil, to)
	assert.Equal(t, uint64(300), fromBalance)
	assert.Equal(t, uint64(200), toBalance)
}

func TestLedgerRepo_DelegatedTransferFromCustody(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ledger := NewLedgerRepo(store)
	programID, record, owner := testAddr(7), testAddr(3), testAddr(4)

	custody, nonce, err := vault.DeriveCustodyAddress(programID, record)
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, nil, custody, 900)
	require.NoError(t, err)

	tx := begin(t, store)
	defer tx.Rollback(ctx) //nolint:errcheck

	auth := vault.DelegatedAuthority(programID, [][]byte{vault.CustodySeed, record.Bytes()}, nonce)
	require.NoError(t, ledger.Transfer(ctx, tx, custody, owner, 900, auth))

	balance, err := ledger.Balance(ctx, tx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), balance)

	wrong := vault.DelegatedAuthority(programID, [][]byte{vault.CustodySeed, owner.Bytes()}, nonce)
	assert.ErrorIs(t, ledger.Transfer(ctx, tx, custody, owner, 0, wrong), vault.ErrLedgerUnauthorized)
}

func TestLedgerRepo_CreditOverflow(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ledger := NewLedgerRepo(store)
	addr := testAddr(1)

	_, err := ledger.Credit(ctx, nil, addr, ^uint64(0))
	require.NoError(t, err)

	_, err = ledger.Credit(ctx, nil, addr, 1)
	assert.Error(t, err)

	balance, _ := ledger.Balance(ctx, nil, addr)
	assert.Equal(t, ^uint64(0), balance)
}

func TestMovementRepo_ListAndTotals(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewMovementRepo(store)
	owner := testAddr(1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	kinds := []struct {
		kind   domain.MovementKind
		amount uint64
	}{
		{domain.MovementKindDeposit, 500},
		{domain.MovementKindDeposit, 600},
		{domain.MovementKindWithdraw, 100},
		{domain.MovementKindEmergencyWithdraw, 1000},
	}

	tx := begin(t, store)
	for i, k := range kinds {
		require.NoError(t, repo.Create(ctx, tx, &domain.Movement{
			ID:        uuid.New(),
			Owner:     owner,
			Kind:      k.kind,
			Amount:    k.amount,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, tx, &domain.Movement{ID: uuid.New(), Owner: testAddr(2), Kind: domain.MovementKindDeposit, Amount: 7}))
	require.NoError(t, tx.Commit(ctx))

	all, total, err := repo.List(ctx, ports.MovementListParams{Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, domain.MovementKindEmergencyWithdraw, all[0].Kind, "newest first")

	deposit := domain.MovementKindDeposit
	from := base.Add(30 * time.Minute).Unix()
	deposits, total, err := repo.List(ctx, ports.MovementListParams{Owner: owner, Kind: &deposit, From: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, uint64(600), deposits[0].Amount)

	totals, err := repo.Totals(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), totals.Deposited)
	assert.Equal(t, uint64(1100), totals.Withdrawn)
	assert.Equal(t, int64(2), totals.DepositCount)
	assert.Equal(t, int64(1), totals.WithdrawCount)
	assert.Equal(t, int64(1), totals.EmergencyCount)
}

func TestIdempotencyRepo(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewIdempotencyRepo(store)
	log := &domain.IdempotencyLog{Key: "k", HTTPStatus: 200, ResponseJSON: []byte(`{}`)}

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	tx := begin(t, store)
	require.NoError(t, repo.Create(ctx, tx, log))
	assert.Error(t, repo.Create(ctx, tx, log))
	require.NoError(t, tx.Commit(ctx))

	got, err = repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, log, got)
}

func TestAuditRepo_SurvivesConcurrentTx(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	audit := NewAuditRepo(store)

	tx := begin(t, store)
	require.NoError(t, audit.Create(ctx, &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionLogin}))
	require.NoError(t, tx.Commit(ctx))

	assert.Len(t, audit.Entries(), 1)
}
