package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	"github.com/noah-isme/pre-enrollment-api/internal/repository"
)

// Audit records an action log entry after successful requests. Services audit
// their own domain events with richer detail; this middleware covers the
// coarse request-level trail for staff panel routes.
func Audit(repo *repository.ActionLogRepository, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			userID = &user.UserID
		}

		ip := c.ClientIP()
		ua := c.GetHeader("User-Agent")
		details := fmt.Sprintf("%s %s -> %d in %dms",
			c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Milliseconds())

		_ = repo.Create(c.Request.Context(), &models.ActionLog{
			Action:    action,
			UserID:    userID,
			Details:   details,
			IPAddress: &ip,
			UserAgent: &ua,
		})
	}
}
