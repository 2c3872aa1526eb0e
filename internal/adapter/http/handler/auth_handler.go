package handler

import (
	"net/http"

	"savings-lockbox/internal/adapter/http/dto"
	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/pkg/apperror"
	"savings-lockbox/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authSvc ports.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc ports.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAddress())
		return
	}
	sig, err := dto.DecodeSignature(req.Signature)
	if err != nil {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	token, expiry, err := h.authSvc.Login(c.Request.Context(), ports.LoginRequest{
		Address:   addr,
		Timestamp: req.Timestamp,
		Nonce:     req.Nonce,
		Signature: sig,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:  token,
		Owner:  addr.String(),
		Expiry: expiry.Unix(),
	})
}

// HealthCheck handles GET /health, pinging every configured dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
