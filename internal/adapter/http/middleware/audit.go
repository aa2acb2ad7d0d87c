package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuditRejections records gateway requests refused by authentication or rate limiting.
// Domain actions are audited by the services, so successful requests are skipped here.
func AuditRejections(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if !rejected(status) {
			return
		}

		userID := c.GetString(CtxUserID)
		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": status,
			"ip":     c.ClientIP(),
			"nonce":  c.GetHeader(HeaderNonce),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			UserID:       userID,
			Action:       domain.AuditActionGatewayReject,
			ResourceType: "gateway",
			ResourceID:   c.GetString(CtxRequestID),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func rejected(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}
