package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"savings-lockbox/internal/adapter/http/dto"
	"savings-lockbox/internal/adapter/http/middleware"
	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/pkg/apperror"
	"savings-lockbox/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets clients retry state-changing calls safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// LockBoxHandler handles lockbox instruction and query endpoints.
type LockBoxHandler struct {
	lockboxSvc ports.LockBoxService
}

// NewLockBoxHandler creates a new LockBoxHandler.
func NewLockBoxHandler(lockboxSvc ports.LockBoxService) *LockBoxHandler {
	return &LockBoxHandler{lockboxSvc: lockboxSvc}
}

// Initialize handles POST /api/v1/lockbox.
func (h *LockBoxHandler) Initialize(c *gin.Context) {
	caller, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	snap, err := h.lockboxSvc.Initialize(c.Request.Context(), ports.InitializeRequest{
		Caller:         caller,
		TargetAmount:   *req.TargetAmount,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if snap.Replayed {
		response.Replay(c, http.StatusCreated, dto.ToLockBoxResponse(snap))
		return
	}
	response.Created(c, dto.ToLockBoxResponse(snap))
}

// Deposit handles POST /api/v1/lockbox/deposit.
func (h *LockBoxHandler) Deposit(c *gin.Context) {
	req, ok := h.bindAmount(c)
	if !ok {
		return
	}
	snap, err := h.lockboxSvc.Deposit(c.Request.Context(), req)
	h.respond(c, snap, err)
}

// Withdraw handles POST /api/v1/lockbox/withdraw.
func (h *LockBoxHandler) Withdraw(c *gin.Context) {
	req, ok := h.bindAmount(c)
	if !ok {
		return
	}
	snap, err := h.lockboxSvc.Withdraw(c.Request.Context(), req)
	h.respond(c, snap, err)
}

// EmergencyWithdraw handles POST /api/v1/lockbox/emergency-withdraw.
// The body is optional.
func (h *LockBoxHandler) EmergencyWithdraw(c *gin.Context) {
	caller, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.EmergencyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}
	owner, ok := resolveOwner(c, req.Owner, caller)
	if !ok {
		return
	}

	snap, err := h.lockboxSvc.EmergencyWithdraw(c.Request.Context(), ports.EmergencyRequest{
		Caller:         caller,
		Owner:          owner,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	h.respond(c, snap, err)
}

// Get handles GET /api/v1/lockbox for the authenticated owner.
func (h *LockBoxHandler) Get(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	h.get(c, owner)
}

// GetByOwner handles GET /api/v1/lockboxes/:owner.
func (h *LockBoxHandler) GetByOwner(c *gin.Context) {
	owner, err := domain.ParseAddress(c.Param("owner"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidAddress())
		return
	}
	h.get(c, owner)
}

func (h *LockBoxHandler) get(c *gin.Context, owner domain.Address) {
	snap, err := h.lockboxSvc.Get(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToLockBoxResponse(snap))
}

// List handles GET /api/v1/lockboxes.
func (h *LockBoxHandler) List(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	params := ports.LockBoxListParams{Page: page, PageSize: pageSize}

	if params.Active, ok = boolQuery(c, "active"); !ok {
		return
	}
	if params.ReachedTarget, ok = boolQuery(c, "reached_target"); !ok {
		return
	}

	lockboxes, total, err := h.lockboxSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LockBoxSummary, 0, len(lockboxes))
	for i := range lockboxes {
		items = append(items, dto.ToLockBoxSummary(&lockboxes[i]))
	}

	response.OK(c, dto.LockBoxListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

// ListMovements handles GET /api/v1/lockbox/movements.
func (h *LockBoxHandler) ListMovements(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	params := ports.MovementListParams{
		Owner:    owner,
		Page:     page,
		PageSize: pageSize,
	}

	if k := c.Query("kind"); k != "" {
		kind := domain.MovementKind(k)
		switch kind {
		case domain.MovementKindDeposit, domain.MovementKindWithdraw,
			domain.MovementKindEmergencyWithdraw, domain.MovementKindClose:
			params.Kind = &kind
		default:
			response.Error(c, apperror.Validation("unknown movement kind: "+k))
			return
		}
	}
	if params.From, ok = unixQuery(c, "from"); !ok {
		return
	}
	if params.To, ok = unixQuery(c, "to"); !ok {
		return
	}

	movements, total, err := h.lockboxSvc.ListMovements(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.MovementResponse, 0, len(movements))
	for i := range movements {
		items = append(items, dto.ToMovementResponse(&movements[i]))
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	response.OK(c, dto.MovementListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// Stats handles GET /api/v1/lockbox/stats.
func (h *LockBoxHandler) Stats(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	totals, err := h.lockboxSvc.Stats(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToStatsResponse(totals))
}

// pagination reads page and page_size. A page beyond ports.MaxPage is
// rejected with a validation error.
func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if (err == nil && page > ports.MaxPage) || errors.Is(err, strconv.ErrRange) {
		response.Error(c, apperror.Validation(fmt.Sprintf("page must be at most %d", ports.MaxPage)))
		return 0, 0, false
	}
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, true
}

// unixQuery parses an optional unix-seconds filter.
func unixQuery(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.Error(c, apperror.Validation(name+" must be a unix timestamp in seconds"))
		return nil, false
	}
	return &v, true
}

// boolQuery parses an optional boolean filter. It writes the error response
// and returns false when the value is malformed.
func boolQuery(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		response.Error(c, apperror.Validation(name+" must be true or false"))
		return nil, false
	}
	return &v, true
}

func (h *LockBoxHandler) bindAmount(c *gin.Context) (ports.AmountRequest, bool) {
	caller, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return ports.AmountRequest{}, false
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return ports.AmountRequest{}, false
	}
	owner, ok := resolveOwner(c, req.Owner, caller)
	if !ok {
		return ports.AmountRequest{}, false
	}

	return ports.AmountRequest{
		Caller:         caller,
		Owner:          owner,
		Amount:         *req.Amount,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	}, true
}

func (h *LockBoxHandler) respond(c *gin.Context, snap *ports.LockBoxSnapshot, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if snap.Replayed {
		response.Replay(c, http.StatusOK, dto.ToLockBoxResponse(snap))
		return
	}
	response.OK(c, dto.ToLockBoxResponse(snap))
}

// resolveOwner picks the lockbox owner named in the body, defaulting to the caller.
func resolveOwner(c *gin.Context, raw string, caller domain.Address) (domain.Address, bool) {
	if raw == "" {
		return caller, true
	}
	owner, err := domain.ParseAddress(raw)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAddress())
		return domain.Address{}, false
	}
	return owner, true
}
