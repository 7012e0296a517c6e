package middleware

import (
	"context"
	"net/http"

	"SR_rewards_bot/pkg/auth"
	"SR_rewards_bot/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type AdminChecker interface {
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
}

type Authorization struct {
	admins AdminChecker
}

func NewAuthorization(admins AdminChecker) *Authorization {
	return &Authorization{
		admins: admins,
	}
}

// AdminOnly must run after TelegramAuthMiddleware.
func (a *Authorization) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		telegramUser, ok := auth.CurrentUser(c)
		if !ok {
			log.Error("telegram user data not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		isAdmin, err := a.admins.IsAdmin(c.Request.Context(), telegramUser.ID)
		if err != nil {
			log.Error("failed to check admin", zap.Error(err), zap.Int64("telegram_id", telegramUser.ID))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if !isAdmin {
			log.Info("unauthorized access attempt to admin endpoint",
				zap.Int64("telegram_id", telegramUser.ID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Set("is_admin", true)
		c.Next()
	}
}
