package api

import (
	"errors"
	"math"
	"net/http"

	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

var statusByKind = map[string]int{
	"invalid_address":           http.StatusBadRequest,
	"invalid_field":             http.StatusBadRequest,
	"invalid_selection":         http.StatusBadRequest,
	"unsupported_platform":      http.StatusBadRequest,
	"not_admin":                 http.StatusForbidden,
	"not_registered":            http.StatusNotFound,
	"user_not_found":            http.StatusNotFound,
	"task_not_found":            http.StatusNotFound,
	"already_claimed_today":     http.StatusConflict,
	"cooldown_active":           http.StatusConflict,
	"withdrawal_in_progress":    http.StatusConflict,
	"withdrawal_pending_review": http.StatusConflict,
	"already_completed":         http.StatusConflict,
	"not_pending_review":        http.StatusConflict,
	"below_minimum":             http.StatusUnprocessableEntity,
	"no_active_task":            http.StatusUnprocessableEntity,
	"no_submitted_handle":       http.StatusUnprocessableEntity,
	"transfer_failed":           http.StatusBadGateway,
	"indeterminate_settlement":  http.StatusAccepted,
	"external_service":          http.StatusServiceUnavailable,
}

// writeError responds with the error kind and a client-safe message.
func writeError(c *gin.Context, err error, action string) {
	kind := service.Kind(err)
	status, known := statusByKind[kind]

	if !known {
		logger.Logger().Error("failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to " + action})
		return
	}

	if status >= http.StatusInternalServerError || status == http.StatusAccepted {
		logger.Logger().Warn("failed to "+action, zap.Error(err))
	}

	body := gin.H{"error": kind, "message": err.Error()}

	var cooldown *service.CooldownActiveError
	if errors.As(err, &cooldown) {
		body["retry_after_seconds"] = int64(math.Ceil(cooldown.Remaining.Seconds()))
	}

	c.JSON(status, body)
}
