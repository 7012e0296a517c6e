package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"SR_rewards_bot/internal/middleware"
	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/pkg/auth"

	"github.com/gin-gonic/gin"
)

type AdminService interface {
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	AddTask(ctx context.Context, callerID int64, in service.NewTask) (*model.Task, error)
	RemoveTask(ctx context.Context, callerID int64, name string) (int, error)
	CompleteTask(ctx context.Context, callerID, targetID int64, platform string) (*service.ManualCompletion, error)
	AdminStats(ctx context.Context, callerID int64) (*model.AdminStats, error)
	WalletBalance(ctx context.Context, callerID int64) (*service.WalletBalance, error)
	ListPendingWithdrawals(ctx context.Context, callerID int64) ([]*model.Account, error)
	ResolveWithdrawal(ctx context.Context, callerID, targetID int64, outcome, txHash string) (*model.Account, error)
}

type adminRoutes struct {
	as   AdminService
	feed *FeedHub
}

func NewAdminRoutes(handler *gin.RouterGroup, as AdminService, a *auth.TelegramAuth, feed *FeedHub) {
	r := &adminRoutes{as: as, feed: feed}

	h := handler.Group("/admin")
	h.Use(a.TelegramAuthMiddleware(), middleware.NewAuthorization(as).AdminOnly())
	{
		h.GET("/stats", r.GetStats)
		h.GET("/wallet", r.GetWallet)

		h.POST("/tasks", r.CreateTask)
		h.DELETE("/tasks", r.RemoveTasks)
		h.POST("/tasks/complete", r.CompleteTask)

		h.GET("/withdrawals/pending", r.ListPendingWithdrawals)
		h.POST("/withdrawals/:telegram_id/resolve", r.ResolveWithdrawal)

		h.GET("/feed", feed.ServeWS)
	}
}

func (r *adminRoutes) GetStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := r.as.AdminStats(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err, "get admin stats")
		return
	}

	out := gin.H{
		"total_users":           stats.TotalUsers,
		"total_balance":         stats.TotalBalance,
		"total_withdrawals":     stats.TotalWithdrawals,
		"total_tasks_completed": stats.TotalTasksCompleted,
		"daily_active_users":    stats.DailyActiveUsers,
		"top_user":              nil,
	}
	if stats.TopUser != nil {
		out["top_user"] = leaderboardEntry{
			TelegramID: stats.TopUser.TelegramID,
			Username:   stats.TopUser.Username,
			Balance:    stats.TopUser.Balance,
		}
	}

	c.JSON(http.StatusOK, out)
}

func (r *adminRoutes) GetWallet(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	wallet, err := r.as.WalletBalance(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err, "get wallet balance")
		return
	}

	c.JSON(http.StatusOK, wallet)
}

type taskResponse struct {
	TaskID    string    `json:"task_id"`
	Name      string    `json:"name"`
	Reward    int64     `json:"reward"`
	Status    string    `json:"status"`
	Requires  string    `json:"requires"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *adminRoutes) CreateTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.NewTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := r.as.AddTask(c.Request.Context(), user.ID, req)
	if err != nil {
		writeError(c, err, "create task")
		return
	}

	c.JSON(http.StatusCreated, taskResponse{
		TaskID:    task.ID.String(),
		Name:      task.Name,
		Reward:    task.Reward,
		Status:    string(task.Status),
		Requires:  string(task.Requires),
		Details:   task.Details,
		CreatedAt: task.CreatedAt,
	})
}

func (r *adminRoutes) RemoveTasks(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	deleted, err := r.as.RemoveTask(c.Request.Context(), user.ID, name)
	if err != nil {
		writeError(c, err, "remove tasks")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type CompleteTaskRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Platform   string `json:"platform" binding:"required"`
}

func (r *adminRoutes) CompleteTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := r.as.CompleteTask(c.Request.Context(), user.ID, req.TelegramID, req.Platform)
	if err != nil {
		writeError(c, err, "complete task")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"telegram_id": res.TelegramID,
		"task_name":   res.TaskName,
		"handle":      res.Handle,
		"reward":      res.Reward,
	})
}

type pendingWithdrawal struct {
	TelegramID int64      `json:"telegram_id"`
	State      string     `json:"state"`
	Amount     int64      `json:"amount"`
	Address    string     `json:"address"`
	TxHash     string     `json:"tx_hash,omitempty"`
	Since      *time.Time `json:"since"`
	LockedTill *time.Time `json:"locked_until,omitempty"`
}

func (r *adminRoutes) ListPendingWithdrawals(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	accounts, err := r.as.ListPendingWithdrawals(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err, "list pending withdrawals")
		return
	}

	out := make([]pendingWithdrawal, len(accounts))
	for i, acc := range accounts {
		w := acc.Withdrawal
		out[i] = pendingWithdrawal{
			TelegramID: acc.TelegramID,
			State:      string(w.State),
			Amount:     w.PendingAmount,
			Address:    w.PendingAddress,
			TxHash:     w.PendingTxHash,
			Since:      w.PendingSince,
			LockedTill: w.LockedUntil,
		}
	}

	c.JSON(http.StatusOK, out)
}

type ResolveWithdrawalRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=settled failed"`
	TxHash  string `json:"tx_hash"`
}

func (r *adminRoutes) ResolveWithdrawal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram_id"})
		return
	}

	var req ResolveWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	acc, err := r.as.ResolveWithdrawal(c.Request.Context(), user.ID, targetID, req.Outcome, req.TxHash)
	if err != nil {
		writeError(c, err, "resolve withdrawal")
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(acc))
}
