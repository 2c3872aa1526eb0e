package handler

import (
	"savings-lockbox/internal/adapter/http/dto"
	"savings-lockbox/internal/adapter/http/middleware"
	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/pkg/apperror"
	"savings-lockbox/pkg/response"

	"github.com/gin-gonic/gin"
)

// FaucetHandler credits ledger accounts on development deployments.
type FaucetHandler struct {
	faucetSvc ports.FaucetService
}

// NewFaucetHandler creates a new FaucetHandler.
func NewFaucetHandler(faucetSvc ports.FaucetService) *FaucetHandler {
	return &FaucetHandler{faucetSvc: faucetSvc}
}

// Airdrop handles POST /api/v1/faucet.
func (h *FaucetHandler) Airdrop(c *gin.Context) {
	caller, ok := middleware.OwnerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AirdropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	target := caller
	if req.Address != "" {
		addr, err := domain.ParseAddress(req.Address)
		if err != nil {
			response.Error(c, apperror.ErrInvalidAddress())
			return
		}
		target = addr
	}

	balance, err := h.faucetSvc.Airdrop(c.Request.Context(), target, *req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.AirdropResponse{
		Address:        target.String(),
		Balance:        balance,
		BalanceDisplay: dto.FormatUnits(balance),
	})
}
