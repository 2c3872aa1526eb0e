package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// Replayed idempotent responses are not audited again.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}
		if c.Writer.Header().Get(response.HeaderReplayed) == "true" {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var owner *domain.Address
		resourceID := ""
		if addr, ok := OwnerFromContext(c); ok {
			owner = &addr
			resourceID = addr.String()
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Owner:        owner,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// mapPathToAction maps a route template to an audit action. Logins are
// audited by the auth service itself.
func mapPathToAction(route, method string) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	switch route {
	case "/api/v1/lockbox":
		return domain.AuditActionInitialize, "lockbox"
	case "/api/v1/lockbox/deposit":
		return domain.AuditActionDeposit, "lockbox"
	case "/api/v1/lockbox/withdraw":
		return domain.AuditActionWithdraw, "lockbox"
	case "/api/v1/lockbox/emergency-withdraw":
		return domain.AuditActionEmergencyWithdraw, "lockbox"
	case "/api/v1/faucet":
		return domain.AuditActionAirdrop, "ledger_account"
	}
	return "", ""
}
