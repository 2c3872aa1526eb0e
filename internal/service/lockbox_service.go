package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/internal/core/vault"
	"savings-lockbox/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Lifecycle event types delivered to the NotificationService.
const (
	EventTargetReached     = "TARGET_REACHED"
	EventEmergencyWithdraw = "EMERGENCY_WITHDRAW"
	EventLockBoxClosed     = "LOCKBOX_CLOSED"
)

// LockBoxServiceImpl implements ports.LockBoxService. Every mutation runs as
// one storage transaction around a pure vault handler.
type LockBoxServiceImpl struct {
	program      *vault.Program
	policy       domain.EmergencyPolicy
	lockboxRepo  ports.LockBoxRepository
	ledgerRepo   ports.LedgerRepository
	movementRepo ports.MovementRepository
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	metrics      ports.MetricsRecorder
	notifier     ports.NotificationService
	idempTTL     time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

// LockBoxOptions carries the tunables of a LockBoxServiceImpl.
type LockBoxOptions struct {
	Policy         domain.EmergencyPolicy
	IdempotencyTTL time.Duration
	Metrics        ports.MetricsRecorder     // optional
	Notifier       ports.NotificationService // optional
}

// NewLockBoxService creates a new LockBoxServiceImpl.
func NewLockBoxService(
	program *vault.Program,
	lockboxRepo ports.LockBoxRepository,
	ledgerRepo ports.LedgerRepository,
	movementRepo ports.MovementRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	opts LockBoxOptions,
	log zerolog.Logger,
) *LockBoxServiceImpl {
	if opts.Policy == "" {
		opts.Policy = domain.EmergencyPolicyDeactivate
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &LockBoxServiceImpl{
		program:      program,
		policy:       opts.Policy,
		lockboxRepo:  lockboxRepo,
		ledgerRepo:   ledgerRepo,
		movementRepo: movementRepo,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		idempTTL:     opts.IdempotencyTTL,
		log:          log,
		now:          time.Now,
	}
}

// Initialize creates the caller's lockbox.
func (s *LockBoxServiceImpl) Initialize(ctx context.Context, req ports.InitializeRequest) (*ports.LockBoxSnapshot, error) {
	in := instruction{
		name:   "initialize",
		action: domain.AuditActionInitialize,
		caller: req.Caller,
		owner:  req.Caller,
		key:    req.IdempotencyKey,
		status: http.StatusCreated,
	}
	return s.execute(ctx, in, func(lb *domain.LockBox, _ vault.Transferer) (*outcome, error) {
		created, err := s.program.Initialize(lb, req.Caller, req.TargetAmount, s.now())
		if err != nil {
			return nil, err
		}
		return &outcome{lockbox: created, created: true}, nil
	})
}

// Deposit moves funds from the caller into the custody account of req.Owner's lockbox.
func (s *LockBoxServiceImpl) Deposit(ctx context.Context, req ports.AmountRequest) (*ports.LockBoxSnapshot, error) {
	in := instruction{
		name:   "deposit",
		action: domain.AuditActionDeposit,
		caller: req.Caller,
		owner:  ownerOrCaller(req.Owner, req.Caller),
		key:    req.IdempotencyKey,
		status: http.StatusOK,
	}
	return s.execute(ctx, in, func(lb *domain.LockBox, ledger vault.Transferer) (*outcome, error) {
		next, err := s.program.Deposit(lb, req.Caller, req.Amount, ledger)
		if err != nil {
			return nil, err
		}
		custody, _, err := s.program.Custody(next)
		if err != nil {
			return nil, err
		}
		return &outcome{
			lockbox:       next,
			movement:      s.movement(next, domain.MovementKindDeposit, req.Amount, next.Owner, custody),
			targetReached: !lb.HasReachedTarget && next.HasReachedTarget,
		}, nil
	})
}

// Withdraw returns funds from custody to the owner once the target is reached.
func (s *LockBoxServiceImpl) Withdraw(ctx context.Context, req ports.AmountRequest) (*ports.LockBoxSnapshot, error) {
	in := instruction{
		name:   "withdraw",
		action: domain.AuditActionWithdraw,
		caller: req.Caller,
		owner:  ownerOrCaller(req.Owner, req.Caller),
		key:    req.IdempotencyKey,
		status: http.StatusOK,
	}
	return s.execute(ctx, in, func(lb *domain.LockBox, ledger vault.Transferer) (*outcome, error) {
		next, err := s.program.Withdraw(lb, req.Caller, req.Amount, ledger)
		if err != nil {
			return nil, err
		}
		custody, _, err := s.program.Custody(next)
		if err != nil {
			return nil, err
		}
		return &outcome{
			lockbox:  next,
			movement: s.movement(next, domain.MovementKindWithdraw, req.Amount, custody, next.Owner),
		}, nil
	})
}

// EmergencyWithdraw drains the lockbox under the configured policy.
func (s *LockBoxServiceImpl) EmergencyWithdraw(ctx context.Context, req ports.EmergencyRequest) (*ports.LockBoxSnapshot, error) {
	in := instruction{
		name:   "emergency_withdraw",
		action: domain.AuditActionEmergencyWithdraw,
		caller: req.Caller,
		owner:  ownerOrCaller(req.Owner, req.Caller),
		key:    req.IdempotencyKey,
		status: http.StatusOK,
	}
	return s.execute(ctx, in, func(lb *domain.LockBox, ledger vault.Transferer) (*outcome, error) {
		result, err := s.program.EmergencyWithdraw(lb, req.Caller, s.policy, ledger)
		if err != nil {
			return nil, err
		}
		custody, _, err := s.program.Custody(result.LockBox)
		if err != nil {
			return nil, err
		}
		kind := domain.MovementKindEmergencyWithdraw
		if result.Closed {
			kind = domain.MovementKindClose
		}
		return &outcome{
			lockbox:  result.LockBox,
			movement: s.movement(result.LockBox, kind, result.Amount, custody, result.LockBox.Owner),
			closed:   result.Closed,
		}, nil
	})
}

// Get returns the committed state of owner's lockbox and its custody balance.
func (s *LockBoxServiceImpl) Get(ctx context.Context, owner domain.Address) (*ports.LockBoxSnapshot, error) {
	lb, err := s.lockboxRepo.Get(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get lockbox: %w", err))
	}
	if lb == nil {
		return nil, apperror.ErrLockBoxNotFound()
	}

	custody, _, err := s.program.Custody(lb)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("derive custody: %w", err))
	}
	balance, err := s.ledgerRepo.Balance(ctx, nil, custody)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("custody balance: %w", err))
	}

	return &ports.LockBoxSnapshot{
		LockBox:        *lb,
		Custody:        custody,
		CustodyBalance: balance,
	}, nil
}

// List returns committed lockboxes matching params.
func (s *LockBoxServiceImpl) List(ctx context.Context, params ports.LockBoxListParams) ([]domain.LockBox, int64, error) {
	lockboxes, total, err := s.lockboxRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list lockboxes: %w", err))
	}
	return lockboxes, total, nil
}

// ListMovements returns the owner's settled movements, newest first.
func (s *LockBoxServiceImpl) ListMovements(ctx context.Context, params ports.MovementListParams) ([]domain.Movement, int64, error) {
	movements, total, err := s.movementRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	return movements, total, nil
}

// Stats aggregates the owner's movements.
func (s *LockBoxServiceImpl) Stats(ctx context.Context, owner domain.Address) (*domain.MovementTotals, error) {
	totals, err := s.movementRepo.Totals(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("movement totals: %w", err))
	}
	return totals, nil
}

// instruction describes one mutation for execute.
type instruction struct {
	name   string
	action domain.AuditAction
	caller domain.Address
	owner  domain.Address // lockbox to load
	key    string         // client idempotency key, optional
	status int
}

// outcome is what a handler produced; execute persists it.
type outcome struct {
	lockbox       *domain.LockBox
	movement      *domain.Movement
	created       bool
	closed        bool
	targetReached bool
}

type handlerFunc func(lb *domain.LockBox, ledger vault.Transferer) (*outcome, error)

func (s *LockBoxServiceImpl) execute(ctx context.Context, in instruction, handle handlerFunc) (snap *ports.LockBoxSnapshot, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveInstruction(in.name, outcomeLabel(snap, err), start)
	}()

	var idempKey string
	if in.key != "" {
		idempKey = domain.BuildIdempotencyKey(in.caller, in.action, in.key)
		if replay, err := s.replay(ctx, idempKey); replay != nil || err != nil {
			return replay, err
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	current, err := s.lockboxRepo.GetForUpdate(ctx, dbTx, in.owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock lockbox: %w", err))
	}

	out, err := handle(current, &txLedger{ctx: ctx, tx: dbTx, repo: s.ledgerRepo})
	if err != nil {
		return nil, mapInstructionError(err)
	}

	if err := s.persist(ctx, dbTx, out); err != nil {
		return nil, err
	}

	custody, _, err := s.program.Custody(out.lockbox)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("derive custody: %w", err))
	}
	custodyBalance, err := s.ledgerRepo.Balance(ctx, dbTx, custody)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("custody balance: %w", err))
	}

	snap = &ports.LockBoxSnapshot{
		LockBox:        *out.lockbox,
		Custody:        custody,
		CustodyBalance: custodyBalance,
		Movement:       out.movement,
		TargetReached:  out.targetReached,
		Closed:         out.closed,
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(snap)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:          idempKey,
			HTTPStatus:   in.status,
			ResponseJSON: respJSON,
			CreatedAt:    s.now().UTC(),
		}); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, s.idempTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.afterCommit(ctx, in, snap)
	return snap, nil
}

func (s *LockBoxServiceImpl) persist(ctx context.Context, dbTx pgx.Tx, out *outcome) error {
	switch {
	case out.created:
		if err := s.lockboxRepo.Create(ctx, dbTx, out.lockbox); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				return apperror.ErrLockBoxExists()
			}
			return apperror.InternalError(fmt.Errorf("create lockbox: %w", err))
		}
	case out.closed:
		if err := s.lockboxRepo.Delete(ctx, dbTx, out.lockbox.Owner); err != nil {
			return apperror.InternalError(fmt.Errorf("delete lockbox: %w", err))
		}
	default:
		if err := s.lockboxRepo.Update(ctx, dbTx, out.lockbox); err != nil {
			return apperror.InternalError(fmt.Errorf("update lockbox: %w", err))
		}
	}

	if out.movement != nil {
		if err := s.movementRepo.Create(ctx, dbTx, out.movement); err != nil {
			return apperror.InternalError(fmt.Errorf("record movement: %w", err))
		}
	}
	return nil
}

// replay returns the stored response for key, checking Redis first and
// PostgreSQL second. It returns nil, nil on a miss.
func (s *LockBoxServiceImpl) replay(ctx context.Context, key string) (*ports.LockBoxSnapshot, error) {
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached == nil {
		idempLog, err := s.idempRepo.Get(ctx, key)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if idempLog == nil {
			return nil, nil
		}
		cached = idempLog.ResponseJSON
	}

	snap := &ports.LockBoxSnapshot{}
	if err := json.Unmarshal(cached, snap); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
	}
	snap.Replayed = true
	return snap, nil
}

func (s *LockBoxServiceImpl) afterCommit(ctx context.Context, in instruction, snap *ports.LockBoxSnapshot) {
	lb := snap.LockBox
	event := s.log.Info().
		Str("instruction", in.name).
		Str("owner", lb.Owner.String()).
		Str("lockbox", lb.Address.String()).
		Uint64("balance", lb.CurrentBalance)
	if snap.Movement != nil {
		event = event.Uint64("amount", snap.Movement.Amount)
		s.metrics.ObserveTransfer(snap.Movement.Kind, snap.Movement.Amount)
	}
	event.Msg("lockbox instruction executed")

	if snap.TargetReached {
		s.metrics.IncTargetReached()
		s.log.Info().Str("owner", lb.Owner.String()).Uint64("target", lb.TargetAmount).Msg("savings target reached")
		s.notify(ctx, ports.LockBoxEvent{Type: EventTargetReached, LockBox: lb, Amount: lb.CurrentBalance})
	}

	if in.action == domain.AuditActionEmergencyWithdraw && snap.Movement != nil {
		eventType := EventEmergencyWithdraw
		if snap.Closed {
			eventType = EventLockBoxClosed
		}
		s.log.Warn().
			Str("owner", lb.Owner.String()).
			Uint64("amount", snap.Movement.Amount).
			Bool("closed", snap.Closed).
			Msg("emergency withdrawal executed")
		s.notify(ctx, ports.LockBoxEvent{Type: eventType, LockBox: lb, Amount: snap.Movement.Amount})
	}
}

func (s *LockBoxServiceImpl) notify(ctx context.Context, event ports.LockBoxEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", event.Type).Msg("failed to enqueue lockbox notification")
	}
}

func (s *LockBoxServiceImpl) movement(lb *domain.LockBox, kind domain.MovementKind, amount uint64, from, to domain.Address) *domain.Movement {
	return &domain.Movement{
		ID:           uuid.New(),
		Owner:        lb.Owner,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: lb.CurrentBalance,
		Source:       from,
		Destination:  to,
		CreatedAt:    s.now().UTC(),
	}
}

// txLedger binds the ledger repository to the instruction's transaction.
type txLedger struct {
	ctx  context.Context
	tx   pgx.Tx
	repo ports.LedgerRepository
}

func (l *txLedger) Transfer(from, to domain.Address, amount uint64, auth vault.Authorization) error {
	return l.repo.Transfer(l.ctx, l.tx, from, to, amount, auth)
}

func (l *txLedger) Balance(addr domain.Address) (uint64, error) {
	return l.repo.Balance(l.ctx, l.tx, addr)
}

// mapInstructionError converts handler and ledger failures into AppErrors.
func mapInstructionError(err error) error {
	switch {
	// Custody shortfalls carry both errors and surface as the vault error.
	case errors.Is(err, vault.ErrInsufficientBalance):
		return apperror.ErrInsufficientBalance()
	case errors.Is(err, vault.ErrLedgerInsufficientFunds), errors.Is(err, vault.ErrLedgerUnauthorized):
		return apperror.ErrTransferRejected(err)
	case errors.Is(err, vault.ErrInvalidTargetAmount):
		return apperror.ErrInvalidTargetAmount()
	case errors.Is(err, vault.ErrInvalidDepositAmount):
		return apperror.ErrInvalidDepositAmount()
	case errors.Is(err, vault.ErrTargetNotReached):
		return apperror.ErrTargetNotReached()
	case errors.Is(err, vault.ErrVaultInactive):
		return apperror.ErrVaultInactive()
	case errors.Is(err, vault.ErrUnauthorized):
		return apperror.ErrUnauthorized()
	case errors.Is(err, vault.ErrBalanceOverflow):
		return apperror.ErrBalanceOverflow()
	case errors.Is(err, vault.ErrBalanceUnderflow):
		return apperror.ErrBalanceUnderflow()
	case errors.Is(err, vault.ErrLockBoxExists):
		return apperror.ErrLockBoxExists()
	case errors.Is(err, vault.ErrLockBoxNotFound):
		return apperror.ErrLockBoxNotFound()
	default:
		return apperror.InternalError(err)
	}
}

func outcomeLabel(snap *ports.LockBoxSnapshot, err error) string {
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr.Code
		}
		return "error"
	}
	if snap != nil && snap.Replayed {
		return "replayed"
	}
	return "ok"
}

func ownerOrCaller(owner, caller domain.Address) domain.Address {
	if owner.IsZero() {
		return caller
	}
	return owner
}

type noopMetrics struct{}

func (noopMetrics) ObserveInstruction(string, string, time.Time) {}
func (noopMetrics) ObserveTransfer(domain.MovementKind, uint64)  {}
func (noopMetrics) IncTargetReached()                            {}
