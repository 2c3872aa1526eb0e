package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/internal/core/ports/mocks"
	"savings-lockbox/internal/core/vault"
	"savings-lockbox/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	testProgramID = addrOf(0xA1)
	testNow       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func addrOf(fill byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

type lockboxTestDeps struct {
	svc          *LockBoxServiceImpl
	program      *vault.Program
	lockboxRepo  *mocks.MockLockBoxRepository
	ledgerRepo   *mocks.MockLedgerRepository
	movementRepo *mocks.MockMovementRepository
	idempRepo    *mocks.MockIdempotencyRepository
	idempCache   *mocks.MockIdempotencyCache
	transactor   *mocks.MockDBTransactor
	metrics      *mocks.MockMetricsRecorder
	notifier     *mocks.MockNotificationService
	ctrl         *gomock.Controller
}

func setupLockBoxService(t *testing.T, policy domain.EmergencyPolicy) *lockboxTestDeps {
	ctrl := gomock.NewController(t)
	d := &lockboxTestDeps{
		program:      vault.NewProgram(testProgramID),
		lockboxRepo:  mocks.NewMockLockBoxRepository(ctrl),
		ledgerRepo:   mocks.NewMockLedgerRepository(ctrl),
		movementRepo: mocks.NewMockMovementRepository(ctrl),
		idempRepo:    mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:   mocks.NewMockIdempotencyCache(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		metrics:      mocks.NewMockMetricsRecorder(ctrl),
		notifier:     mocks.NewMockNotificationService(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewLockBoxService(
		d.program, d.lockboxRepo, d.ledgerRepo, d.movementRepo, d.idempRepo,
		d.idempCache, d.transactor,
		LockBoxOptions{Policy: policy, IdempotencyTTL: time.Hour, Metrics: d.metrics, Notifier: d.notifier},
		newTestLogger(),
	)
	d.svc.now = func() time.Time { return testNow }
	return d
}

func (d *lockboxTestDeps) expectObserve(instruction, outcome string) {
	d.metrics.EXPECT().ObserveInstruction(instruction, outcome, gomock.Any())
}

// existing returns an initialized lockbox of owner with the given balance.
func (d *lockboxTestDeps) existing(t *testing.T, owner domain.Address, target, balance uint64) *domain.LockBox {
	t.Helper()
	lb, err := d.program.Initialize(nil, owner, target, testNow)
	require.NoError(t, err)
	lb.CurrentBalance = balance
	lb.HasReachedTarget = balance >= target
	return lb
}

func (d *lockboxTestDeps) custody(t *testing.T, lb *domain.LockBox) (domain.Address, uint8) {
	t.Helper()
	addr, nonce, err := d.program.Custody(lb)
	require.NoError(t, err)
	return addr, nonce
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

type failingCommitTx struct{ pgx.Tx }

func (m *failingCommitTx) Rollback(_ context.Context) error { return nil }
func (m *failingCommitTx) Commit(_ context.Context) error   { return errors.New("connection lost") }

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// ==================== Initialize ====================

func TestLockBoxService_Initialize_Success(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	key := domain.BuildIdempotencyKey(owner, domain.AuditActionInitialize, "init-1")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(nil, nil)
	d.lockboxRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, lb *domain.LockBox) error {
			assert.Equal(t, owner, lb.Owner)
			assert.Equal(t, uint64(1000), lb.TargetAmount)
			assert.True(t, lb.IsActive)
			return nil
		})
	d.ledgerRepo.EXPECT().Balance(ctx, tx, gomock.Any()).Return(uint64(0), nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, log *domain.IdempotencyLog) error {
			assert.Equal(t, key, log.Key)
			assert.Equal(t, 201, log.HTTPStatus)
			return nil
		})
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), time.Hour).Return(nil)
	d.expectObserve("initialize", "ok")

	snap, err := d.svc.Initialize(ctx, ports.InitializeRequest{Caller: owner, TargetAmount: 1000, IdempotencyKey: "init-1"})
	require.NoError(t, err)

	expectedAddr, nonce, err := vault.DeriveLockBoxAddress(testProgramID, owner)
	require.NoError(t, err)
	assert.Equal(t, expectedAddr, snap.LockBox.Address)
	assert.Equal(t, nonce, snap.LockBox.Nonce)
	assert.Equal(t, testNow, snap.LockBox.CreatedAt)
	assert.Nil(t, snap.Movement)
	assert.False(t, snap.Replayed)
}

func TestLockBoxService_Initialize_AlreadyExists(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(d.existing(t, owner, 1000, 0), nil)
	d.expectObserve("initialize", "LBX_008")

	_, err := d.svc.Initialize(ctx, ports.InitializeRequest{Caller: owner, TargetAmount: 1000})
	assertAppError(t, err, "LBX_008")
}

func TestLockBoxService_Initialize_ConcurrentCreateConflict(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(nil, nil)
	d.lockboxRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(fmt.Errorf("insert lockbox: %w", ports.ErrConflict))
	d.expectObserve("initialize", "LBX_008")

	_, err := d.svc.Initialize(ctx, ports.InitializeRequest{Caller: owner, TargetAmount: 1000})
	assertAppError(t, err, "LBX_008")
}

func TestLockBoxService_Initialize_ZeroTarget(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(nil, nil)
	d.expectObserve("initialize", "LBX_001")

	_, err := d.svc.Initialize(ctx, ports.InitializeRequest{Caller: owner})
	assertAppError(t, err, "LBX_001")
}

// ==================== Deposit ====================

func TestLockBoxService_Deposit_ReachesTarget(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 500)
	custody, _ := d.custody(t, lb)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, owner, custody, uint64(600), vault.SignerAuthority(owner)).Return(nil)
	d.lockboxRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, next *domain.LockBox) error {
			assert.Equal(t, uint64(1100), next.CurrentBalance)
			assert.True(t, next.HasReachedTarget)
			return nil
		})
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
			assert.Equal(t, domain.MovementKindDeposit, m.Kind)
			assert.Equal(t, uint64(600), m.Amount)
			assert.Equal(t, uint64(1100), m.BalanceAfter)
			assert.Equal(t, owner, m.Source)
			assert.Equal(t, custody, m.Destination)
			return nil
		})
	d.ledgerRepo.EXPECT().Balance(ctx, tx, custody).Return(uint64(1100), nil)
	d.expectObserve("deposit", "ok")
	d.metrics.EXPECT().ObserveTransfer(domain.MovementKindDeposit, uint64(600))
	d.metrics.EXPECT().IncTargetReached()
	d.notifier.EXPECT().Notify(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ev ports.LockBoxEvent) error {
			assert.Equal(t, EventTargetReached, ev.Type)
			assert.Equal(t, uint64(1100), ev.Amount)
			return nil
		})

	snap, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 600})
	require.NoError(t, err)
	assert.True(t, snap.TargetReached)
	assert.Equal(t, uint64(1100), snap.CustodyBalance)
	assert.Equal(t, custody, snap.Custody)
	assert.Equal(t, uint64(500), lb.CurrentBalance, "input snapshot is not mutated")
}

func TestLockBoxService_Deposit_TargetAlreadyLatched(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 1100)
	custody, _ := d.custody(t, lb)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, owner, custody, uint64(5), gomock.Any()).Return(nil)
	d.lockboxRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().Balance(ctx, tx, custody).Return(uint64(1105), nil)
	d.expectObserve("deposit", "ok")
	d.metrics.EXPECT().ObserveTransfer(domain.MovementKindDeposit, uint64(5))

	snap, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 5})
	require.NoError(t, err)
	assert.False(t, snap.TargetReached, "target event fires once")
}

func TestLockBoxService_Deposit_NotOwner(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner, intruder := addrOf(1), addrOf(2)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(d.existing(t, owner, 1000, 0), nil)
	d.expectObserve("deposit", "LBX_005")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: intruder, Owner: owner, Amount: 10})
	assertAppError(t, err, "LBX_005")
}

func TestLockBoxService_Deposit_NoLockBox(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(nil, nil)
	d.expectObserve("deposit", "LBX_009")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 10})
	assertAppError(t, err, "LBX_009")
}

func TestLockBoxService_Deposit_LedgerRejects(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 0)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, owner, gomock.Any(), uint64(10), gomock.Any()).
		Return(fmt.Errorf("%w: holds 0", vault.ErrLedgerInsufficientFunds))
	d.expectObserve("deposit", "LBX_010")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 10})
	assertAppError(t, err, "LBX_010")
	assert.ErrorIs(t, err, vault.ErrLedgerInsufficientFunds)
}

func TestLockBoxService_Deposit_Overflow(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, ^uint64(0), ^uint64(0)-1)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.expectObserve("deposit", "LBX_007")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 2})
	assertAppError(t, err, "LBX_007")
}

func TestLockBoxService_Deposit_CommitFails(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &failingCommitTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 0)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, owner, gomock.Any(), uint64(10), gomock.Any()).Return(nil)
	d.lockboxRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().Balance(ctx, tx, gomock.Any()).Return(uint64(10), nil)
	d.expectObserve("deposit", "SYS_001")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 10})
	assertAppError(t, err, "SYS_001")
}

// ==================== Withdraw ====================

func TestLockBoxService_Withdraw_Success(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 1100)
	custody, nonce := d.custody(t, lb)
	auth := vault.DelegatedAuthority(testProgramID, [][]byte{vault.CustodySeed, lb.Address.Bytes()}, nonce)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, custody, owner, uint64(400), auth).Return(nil)
	d.lockboxRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, next *domain.LockBox) error {
			assert.Equal(t, uint64(700), next.CurrentBalance)
			assert.True(t, next.HasReachedTarget, "target stays latched")
			return nil
		})
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
			assert.Equal(t, domain.MovementKindWithdraw, m.Kind)
			assert.Equal(t, custody, m.Source)
			assert.Equal(t, owner, m.Destination)
			return nil
		})
	d.ledgerRepo.EXPECT().Balance(ctx, tx, custody).Return(uint64(700), nil)
	d.expectObserve("withdraw", "ok")
	d.metrics.EXPECT().ObserveTransfer(domain.MovementKindWithdraw, uint64(400))

	snap, err := d.svc.Withdraw(ctx, ports.AmountRequest{Caller: owner, Amount: 400})
	require.NoError(t, err)
	assert.Equal(t, uint64(700), snap.LockBox.CurrentBalance)
}

func TestLockBoxService_Withdraw_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		balance uint64
		amount  uint64
		code    string
	}{
		{"target not reached", 500, 100, "LBX_003"},
		{"more than balance", 1100, 1101, "LBX_006"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
			ctx := context.Background()
			tx := &mockTx{}
			owner := addrOf(1)

			d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
			d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(d.existing(t, owner, 1000, tt.balance), nil)
			d.expectObserve("withdraw", tt.code)

			_, err := d.svc.Withdraw(ctx, ports.AmountRequest{Caller: owner, Amount: tt.amount})
			assertAppError(t, err, tt.code)
		})
	}
}

// ==================== EmergencyWithdraw ====================

func TestLockBoxService_EmergencyWithdraw_Deactivate(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 300)
	custody, _ := d.custody(t, lb)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, custody, owner, uint64(300), gomock.Any()).Return(nil)
	d.lockboxRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, next *domain.LockBox) error {
			assert.Equal(t, uint64(0), next.CurrentBalance)
			assert.False(t, next.IsActive)
			return nil
		})
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
			assert.Equal(t, domain.MovementKindEmergencyWithdraw, m.Kind)
			return nil
		})
	d.ledgerRepo.EXPECT().Balance(ctx, tx, custody).Return(uint64(0), nil)
	d.expectObserve("emergency_withdraw", "ok")
	d.metrics.EXPECT().ObserveTransfer(domain.MovementKindEmergencyWithdraw, uint64(300))
	d.notifier.EXPECT().Notify(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ev ports.LockBoxEvent) error {
			assert.Equal(t, EventEmergencyWithdraw, ev.Type)
			assert.Equal(t, uint64(300), ev.Amount)
			return errors.New("queue full")
		})

	snap, err := d.svc.EmergencyWithdraw(ctx, ports.EmergencyRequest{Caller: owner})
	require.NoError(t, err, "notification failures do not fail the instruction")
	assert.False(t, snap.Closed)
	assert.False(t, snap.LockBox.IsActive)
}

func TestLockBoxService_EmergencyWithdraw_Close(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyClose)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 300)
	custody, _ := d.custody(t, lb)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	gomock.InOrder(
		d.ledgerRepo.EXPECT().Balance(ctx, tx, custody).Return(uint64(350), nil),
		d.ledgerRepo.EXPECT().Transfer(ctx, tx, custody, owner, uint64(350), gomock.Any()).Return(nil),
		d.lockboxRepo.EXPECT().Delete(ctx, tx, owner).Return(nil),
		d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
				assert.Equal(t, domain.MovementKindClose, m.Kind)
				assert.Equal(t, uint64(350), m.Amount)
				return nil
			}),
		d.ledgerRepo.EXPECT().Balance(ctx, tx, custody).Return(uint64(0), nil),
	)
	d.expectObserve("emergency_withdraw", "ok")
	d.metrics.EXPECT().ObserveTransfer(domain.MovementKindClose, uint64(350))
	d.notifier.EXPECT().Notify(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ev ports.LockBoxEvent) error {
			assert.Equal(t, EventLockBoxClosed, ev.Type)
			return nil
		})

	snap, err := d.svc.EmergencyWithdraw(ctx, ports.EmergencyRequest{Caller: owner})
	require.NoError(t, err)
	assert.True(t, snap.Closed)
	assert.Equal(t, uint64(350), snap.Movement.Amount)
}

func TestLockBoxService_EmergencyWithdraw_Inactive(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 0)
	lb.IsActive = false

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.expectObserve("emergency_withdraw", "LBX_004")

	_, err := d.svc.EmergencyWithdraw(ctx, ports.EmergencyRequest{Caller: owner})
	assertAppError(t, err, "LBX_004")
}

// ==================== Idempotency ====================

func TestLockBoxService_Replay_FromCache(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	owner := addrOf(1)
	key := domain.BuildIdempotencyKey(owner, domain.AuditActionDeposit, "dep-1")

	stored := ports.LockBoxSnapshot{LockBox: *d.existing(t, owner, 1000, 500), CustodyBalance: 500}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	d.idempCache.EXPECT().Get(ctx, key).Return(raw, nil)
	d.expectObserve("deposit", "replayed")

	snap, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 500, IdempotencyKey: "dep-1"})
	require.NoError(t, err)
	assert.True(t, snap.Replayed)
	assert.Equal(t, uint64(500), snap.LockBox.CurrentBalance)
	assert.Equal(t, owner, snap.LockBox.Owner)
}

func TestLockBoxService_Replay_FromDBWhenRedisFails(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	owner := addrOf(1)
	key := domain.BuildIdempotencyKey(owner, domain.AuditActionWithdraw, "wd-1")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, errors.New("redis down"))
	d.idempRepo.EXPECT().Get(ctx, key).Return(&domain.IdempotencyLog{
		Key:          key,
		HTTPStatus:   200,
		ResponseJSON: []byte(`{"lockbox":{"current_balance":700},"custody_balance":700}`),
	}, nil)
	d.expectObserve("withdraw", "replayed")

	snap, err := d.svc.Withdraw(ctx, ports.AmountRequest{Caller: owner, Amount: 400, IdempotencyKey: "wd-1"})
	require.NoError(t, err)
	assert.True(t, snap.Replayed)
	assert.Equal(t, uint64(700), snap.CustodyBalance)
}

func TestLockBoxService_Replay_DBError(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	owner := addrOf(1)
	key := domain.BuildIdempotencyKey(owner, domain.AuditActionDeposit, "dep-1")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, errors.New("db down"))
	d.expectObserve("deposit", "SYS_001")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 5, IdempotencyKey: "dep-1"})
	assertAppError(t, err, "SYS_001")
}

func TestLockBoxService_CacheSetFailureIsBestEffort(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	tx := &mockTx{}
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 0)
	key := domain.BuildIdempotencyKey(owner, domain.AuditActionDeposit, "dep-2")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.lockboxRepo.EXPECT().GetForUpdate(ctx, tx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Transfer(ctx, tx, owner, gomock.Any(), uint64(10), gomock.Any()).Return(nil)
	d.lockboxRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().Balance(ctx, tx, gomock.Any()).Return(uint64(10), nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), time.Hour).Return(errors.New("redis down"))
	d.expectObserve("deposit", "ok")
	d.metrics.EXPECT().ObserveTransfer(domain.MovementKindDeposit, uint64(10))

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: owner, Amount: 10, IdempotencyKey: "dep-2"})
	assert.NoError(t, err)
}

func TestLockBoxService_BeginFails(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()

	d.transactor.EXPECT().Begin(ctx).Return(nil, errors.New("too many connections"))
	d.expectObserve("deposit", "SYS_001")

	_, err := d.svc.Deposit(ctx, ports.AmountRequest{Caller: addrOf(1), Amount: 10})
	assertAppError(t, err, "SYS_001")
}

// ==================== Reads ====================

func TestLockBoxService_Get(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	owner := addrOf(1)
	lb := d.existing(t, owner, 1000, 500)
	custody, _ := d.custody(t, lb)

	d.lockboxRepo.EXPECT().Get(ctx, owner).Return(lb, nil)
	d.ledgerRepo.EXPECT().Balance(ctx, nil, custody).Return(uint64(520), nil)

	snap, err := d.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, *lb, snap.LockBox)
	assert.Equal(t, custody, snap.Custody)
	assert.Equal(t, uint64(520), snap.CustodyBalance)
}

func TestLockBoxService_Get_NotFound(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()

	d.lockboxRepo.EXPECT().Get(ctx, addrOf(1)).Return(nil, nil)

	_, err := d.svc.Get(ctx, addrOf(1))
	assertAppError(t, err, "LBX_009")
}

func TestLockBoxService_List(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	reached := true
	params := ports.LockBoxListParams{ReachedTarget: &reached, Page: 1, PageSize: 20}

	d.lockboxRepo.EXPECT().List(ctx, params).Return([]domain.LockBox{{Owner: addrOf(1), HasReachedTarget: true}}, int64(1), nil)

	lockboxes, total, err := d.svc.List(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, lockboxes, 1)

	d.lockboxRepo.EXPECT().List(ctx, params).Return(nil, int64(0), errors.New("db down"))
	_, _, err = d.svc.List(ctx, params)
	assertAppError(t, err, "SYS_001")
}

func TestLockBoxService_ListMovementsAndStats(t *testing.T) {
	d := setupLockBoxService(t, domain.EmergencyPolicyDeactivate)
	ctx := context.Background()
	owner := addrOf(1)
	params := ports.MovementListParams{Owner: owner, Page: 1, PageSize: 20}

	d.movementRepo.EXPECT().List(ctx, params).Return([]domain.Movement{{Owner: owner, Amount: 5}}, int64(1), nil)
	d.movementRepo.EXPECT().Totals(ctx, owner).Return(&domain.MovementTotals{Owner: owner, Deposited: 5}, nil)

	movements, total, err := d.svc.ListMovements(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, movements, 1)

	totals, err := d.svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), totals.Net())

	d.movementRepo.EXPECT().Totals(ctx, owner).Return(nil, errors.New("db down"))
	_, err = d.svc.Stats(ctx, owner)
	assertAppError(t, err, "SYS_001")
}

func TestMapInstructionError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{vault.ErrInvalidTargetAmount, "LBX_001"},
		{vault.ErrInvalidDepositAmount, "LBX_002"},
		{vault.ErrTargetNotReached, "LBX_003"},
		{vault.ErrVaultInactive, "LBX_004"},
		{vault.ErrUnauthorized, "LBX_005"},
		{vault.ErrInsufficientBalance, "LBX_006"},
		{vault.ErrBalanceOverflow, "LBX_007"},
		{vault.ErrLockBoxExists, "LBX_008"},
		{vault.ErrLockBoxNotFound, "LBX_009"},
		{fmt.Errorf("withdraw transfer: %w", vault.ErrLedgerUnauthorized), "LBX_010"},
		{fmt.Errorf("deposit transfer: %w", vault.ErrLedgerInsufficientFunds), "LBX_010"},
		{fmt.Errorf("withdraw transfer: %w: %w", vault.ErrInsufficientBalance, vault.ErrLedgerInsufficientFunds), "LBX_006"},
		{vault.ErrBalanceUnderflow, "LBX_011"},
		{errors.New("disk on fire"), "SYS_001"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assertAppError(t, mapInstructionError(tt.err), tt.code)
		})
	}
}
