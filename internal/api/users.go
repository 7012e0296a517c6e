package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/pkg/auth"
	"SR_rewards_bot/pkg/logger"

	"github.com/gin-gonic/gin"
)

type UserService interface {
	Start(ctx context.Context, telegramID int64, username, payload string) (*service.StartResult, error)
	GetAccount(ctx context.Context, telegramID int64) (*model.Account, error)
	GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
	Claim(ctx context.Context, telegramID int64, username string) (*model.ClaimResult, error)
	Withdraw(ctx context.Context, telegramID int64, address string) (*model.WithdrawalResult, error)
	WithdrawalStatus(ctx context.Context, telegramID int64) (*model.WithdrawalStatus, error)
}

type userRoutes struct {
	us UserService
	a  *auth.TelegramAuth
}

func NewUserRoutes(handler *gin.RouterGroup, us UserService, a *auth.TelegramAuth) {
	r := &userRoutes{us: us, a: a}
	h := handler.Group("/users")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("", r.RegisterUser)
		h.GET("/me", r.GetMe)
		h.POST("/me/claim", r.Claim)
		h.GET("/me/withdrawal", r.GetWithdrawalStatus)
		h.POST("/me/withdrawal", r.Withdraw)
		h.GET("/leaderboard", r.GetLeaderboard)
	}
}

type RegisterUserRequest struct {
	Referrer *int64 `json:"referrer"`
}

type accountResponse struct {
	TelegramID       int64             `json:"telegram_id"`
	Username         string            `json:"username"`
	Balance          int64             `json:"balance"`
	Streak           int               `json:"streak"`
	LastClaimDate    *string           `json:"last_claim_date"`
	ReferredBy       *int64            `json:"referred_by"`
	Referrals        int               `json:"referrals"`
	TasksCompleted   int               `json:"tasks_completed"`
	ActiveTask       *activeTaskBody   `json:"active_task"`
	SubmittedHandles map[string]string `json:"submitted_handles"`
	WithdrawalState  string            `json:"withdrawal_state"`
	LastWithdrawalAt *time.Time        `json:"last_withdrawal_at"`
	LastWithdrawalTx string            `json:"last_withdrawal_tx,omitempty"`
}

type activeTaskBody struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Requires string `json:"requires"`
	Reward   int64  `json:"reward"`
	State    string `json:"state"`
}

func toAccountResponse(acc *model.Account) accountResponse {
	out := accountResponse{
		TelegramID:       acc.TelegramID,
		Username:         acc.Username,
		Balance:          acc.Balance,
		Streak:           acc.Streak,
		ReferredBy:       acc.ReferredBy,
		Referrals:        acc.Referrals,
		TasksCompleted:   acc.TasksCompleted,
		SubmittedHandles: acc.SubmittedHandles,
		WithdrawalState:  string(acc.Withdrawal.State),
		LastWithdrawalAt: acc.Withdrawal.LastAt,
		LastWithdrawalTx: acc.Withdrawal.LastTxHash,
	}

	if acc.LastClaimDate != nil {
		d := acc.LastClaimDate.Format(time.DateOnly)
		out.LastClaimDate = &d
	}

	if t := acc.ActiveTask; t != nil {
		out.ActiveTask = &activeTaskBody{
			TaskID:   t.TaskID.String(),
			TaskName: t.TaskName,
			Requires: string(t.Requires),
			Reward:   t.Reward,
			State:    string(t.State),
		}
	}

	return out
}

func currentUser(c *gin.Context) (*auth.TelegramUserData, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		logger.Logger().Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
	return user, true
}

func (r *userRoutes) RegisterUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req RegisterUserRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	var payload string
	if req.Referrer != nil {
		payload = strconv.FormatInt(*req.Referrer, 10)
	}

	res, err := r.us.Start(c.Request.Context(), user.ID, user.Username, payload)
	if err != nil {
		writeError(c, err, "register user")
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}

	c.JSON(status, gin.H{
		"account":  toAccountResponse(res.Account),
		"created":  res.Created,
		"referred": res.Referred,
	})
}

func (r *userRoutes) GetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	acc, err := r.us.GetAccount(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err, "get account")
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(acc))
}

func (r *userRoutes) Claim(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := r.us.Claim(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		writeError(c, err, "claim daily reward")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reward": res.Reward,
		"streak": res.Streak,
		"date":   res.Date.Format(time.DateOnly),
	})
}

type withdrawalStatusResponse struct {
	Eligible         bool       `json:"eligible"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	State            string     `json:"state"`
	LastWithdrawalAt *time.Time `json:"last_withdrawal_at"`
}

func (r *userRoutes) GetWithdrawalStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	status, err := r.us.WithdrawalStatus(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err, "get withdrawal status")
		return
	}

	c.JSON(http.StatusOK, withdrawalStatusResponse{
		Eligible:         status.Eligible,
		RemainingSeconds: int64(status.Remaining.Seconds()),
		State:            string(status.State),
		LastWithdrawalAt: status.LastAt,
	})
}

type WithdrawRequest struct {
	Address string `json:"address" binding:"required"`
}

func (r *userRoutes) Withdraw(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := r.us.Withdraw(c.Request.Context(), user.ID, req.Address)
	if err != nil {
		writeError(c, err, "withdraw")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"amount":  res.Amount,
		"address": res.Address,
		"tx_hash": res.TxHash,
	})
}

type leaderboardEntry struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	Balance    int64  `json:"balance"`
}

func (r *userRoutes) GetLeaderboard(c *gin.Context) {
	entries, err := r.us.GetLeaderboard(c.Request.Context())
	if err != nil {
		writeError(c, err, "get leaderboard")
		return
	}

	out := make([]leaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = leaderboardEntry{
			TelegramID: e.TelegramID,
			Username:   e.Username,
			Balance:    e.Balance,
		}
	}

	c.JSON(http.StatusOK, out)
}
