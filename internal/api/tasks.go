package api

import (
	"context"
	"net/http"
	"strconv"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/pkg/auth"

	"github.com/gin-gonic/gin"
)

type TaskService interface {
	ListTasks(ctx context.Context, telegramID int64, page int) (*service.TaskPage, error)
	SelectTask(ctx context.Context, telegramID int64, index int) (*model.ActiveTask, error)
	SubmitUsername(ctx context.Context, telegramID int64, platform, username string) (*service.UsernameSubmission, error)
}

type taskRoutes struct {
	ts TaskService
	a  *auth.TelegramAuth
}

func NewTaskRoutes(handler *gin.RouterGroup, ts TaskService, a *auth.TelegramAuth) {
	r := &taskRoutes{ts: ts, a: a}
	h := handler.Group("/tasks")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("", r.ListTasks)
		h.POST("/select", r.SelectTask)
		h.POST("/submit", r.SubmitUsername)
	}
}

func (r *taskRoutes) ListTasks(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return
		}
		page = n
	}

	res, err := r.ts.ListTasks(c.Request.Context(), user.ID, page)
	if err != nil {
		writeError(c, err, "list tasks")
		return
	}

	c.JSON(http.StatusOK, res)
}

type SelectTaskRequest struct {
	Index int `json:"index" binding:"required,min=1"`
}

func (r *taskRoutes) SelectTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req SelectTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	active, err := r.ts.SelectTask(c.Request.Context(), user.ID, req.Index)
	if err != nil {
		writeError(c, err, "select task")
		return
	}

	c.JSON(http.StatusOK, activeTaskBody{
		TaskID:   active.TaskID.String(),
		TaskName: active.TaskName,
		Requires: string(active.Requires),
		Reward:   active.Reward,
		State:    string(active.State),
	})
}

type SubmitUsernameRequest struct {
	Platform string `json:"platform" binding:"required"`
	Username string `json:"username" binding:"required"`
}

func (r *taskRoutes) SubmitUsername(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req SubmitUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := r.ts.SubmitUsername(c.Request.Context(), user.ID, req.Platform, req.Username)
	if err != nil {
		writeError(c, err, "submit username")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_name":   res.TaskName,
		"platform":    res.Platform,
		"username":    res.Username,
		"overwritten": res.Overwritten,
		"previous":    res.Previous,
	})
}
