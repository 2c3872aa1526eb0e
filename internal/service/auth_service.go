package service

import (
	"context"
	"fmt"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultMaxClockDrift = 5 * time.Minute
	defaultNonceTTL      = 10 * time.Minute
)

// AuthServiceImpl implements ports.AuthService. An owner proves control of
// an address by signing a timestamped, single-use login challenge.
type AuthServiceImpl struct {
	sigSvc     ports.SignatureService
	nonceStore ports.NonceStore
	tokenSvc   ports.TokenService
	auditSvc   ports.AuditService
	maxDrift   time.Duration
	nonceTTL   time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewAuthService creates a new AuthServiceImpl. auditSvc may be nil.
func NewAuthService(
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	tokenSvc ports.TokenService,
	auditSvc ports.AuditService,
	maxDrift time.Duration,
	nonceTTL time.Duration,
	log zerolog.Logger,
) *AuthServiceImpl {
	if maxDrift <= 0 {
		maxDrift = defaultMaxClockDrift
	}
	if nonceTTL <= 0 {
		nonceTTL = defaultNonceTTL
	}
	return &AuthServiceImpl{
		sigSvc:     sigSvc,
		nonceStore: nonceStore,
		tokenSvc:   tokenSvc,
		auditSvc:   auditSvc,
		maxDrift:   maxDrift,
		nonceTTL:   nonceTTL,
		log:        log,
		now:        time.Now,
	}
}

// Login verifies the signed challenge and returns a JWT for the address.
// Pipeline: check timestamp -> check nonce -> verify signature.
func (s *AuthServiceImpl) Login(ctx context.Context, req ports.LoginRequest) (string, time.Time, error) {
	if req.Address.IsZero() {
		return "", time.Time{}, apperror.ErrInvalidAddress()
	}
	if req.Nonce == "" || len(req.Signature) == 0 {
		return "", time.Time{}, apperror.ErrInvalidSignature()
	}

	drift := s.now().Sub(time.Unix(req.Timestamp, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > s.maxDrift {
		return "", time.Time{}, apperror.ErrTimestampExpired()
	}

	isNew, err := s.nonceStore.CheckAndSet(ctx, req.Address.String(), req.Nonce, s.nonceTTL)
	if err != nil {
		s.log.Warn().Err(err).Msg("nonce store error, allowing login")
	} else if !isNew {
		return "", time.Time{}, apperror.ErrNonceUsed()
	}

	message := BuildLoginMessage(req.Address, req.Timestamp, req.Nonce)
	if !s.sigSvc.VerifyEd25519(req.Address, []byte(message), req.Signature) {
		return "", time.Time{}, apperror.ErrInvalidSignature()
	}

	token, expiry, err := s.tokenSvc.Generate(req.Address)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	if s.auditSvc != nil {
		owner := req.Address
		s.auditSvc.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			Owner:        &owner,
			Action:       domain.AuditActionLogin,
			ResourceType: "session",
			IPAddress:    req.ClientIP,
			CreatedAt:    s.now().UTC(),
		})
	}

	return token, expiry, nil
}
