package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	userID  int64 = 42
	adminID int64 = 1
)

func authHeader(id int64) string {
	v := url.Values{}
	v.Set("user", fmt.Sprintf(`{"id":%d,"username":"user%d"}`, id, id))
	v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	v.Set("hash", "debug")
	return "Telegram " + v.Encode()
}

func newTestRouter(svc *mockService, hub *FeedHub) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	a := auth.NewTelegramAuth("123:token", true)
	g := router.Group("/api/v1")
	NewUserRoutes(g, svc, a)
	NewTaskRoutes(g, svc, a)
	NewAdminRoutes(g, svc, a, hub)
	return router
}

func doRequest(router http.Handler, method, path string, caller int64, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != 0 {
		req.Header.Set("Authorization", authHeader(caller))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestUserRoutes(t *testing.T) {
	lastClaim := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		method     string
		path       string
		caller     int64
		body       any
		setupMocks func(svc *mockService)
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "Unauthenticated",
			method:     http.MethodGet,
			path:       "/api/v1/users/me",
			setupMocks: func(svc *mockService) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "Get me",
			method: http.MethodGet,
			path:   "/api/v1/users/me",
			caller: userID,
			setupMocks: func(svc *mockService) {
				acc := model.NewAccount(userID, "user42", time.Now())
				acc.Balance = 25000
				acc.Streak = 1
				acc.LastClaimDate = &lastClaim
				svc.On("GetAccount", mock.Anything, userID).Return(acc, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(25000), body["balance"])
				assert.Equal(t, "2024-03-09", body["last_claim_date"])
				assert.Equal(t, "idle", body["withdrawal_state"])
			},
		},
		{
			name:   "Get me before registering",
			method: http.MethodGet,
			path:   "/api/v1/users/me",
			caller: userID,
			setupMocks: func(svc *mockService) {
				svc.On("GetAccount", mock.Anything, userID).Return(nil, service.ErrNotRegistered)
			},
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "not_registered", body["error"])
			},
		},
		{
			name:   "Register with referrer",
			method: http.MethodPost,
			path:   "/api/v1/users",
			caller: userID,
			body:   RegisterUserRequest{Referrer: ptr(int64(7))},
			setupMocks: func(svc *mockService) {
				svc.On("Start", mock.Anything, userID, "user42", "7").Return(&service.StartResult{
					Account:  model.NewAccount(userID, "user42", time.Now()),
					Created:  true,
					Referred: true,
				}, nil)
			},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["referred"])
			},
		},
		{
			name:   "Claim twice",
			method: http.MethodPost,
			path:   "/api/v1/users/me/claim",
			caller: userID,
			setupMocks: func(svc *mockService) {
				svc.On("Claim", mock.Anything, userID, "user42").Return(nil, service.ErrAlreadyClaimedToday)
			},
			wantStatus: http.StatusConflict,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "already_claimed_today", body["error"])
			},
		},
		{
			name:   "Withdraw during cooldown",
			method: http.MethodPost,
			path:   "/api/v1/users/me/withdrawal",
			caller: userID,
			body:   WithdrawRequest{Address: "0x1111111111111111111111111111111111111111"},
			setupMocks: func(svc *mockService) {
				svc.On("Withdraw", mock.Anything, userID, "0x1111111111111111111111111111111111111111").
					Return(nil, &service.CooldownActiveError{Remaining: 90 * time.Second})
			},
			wantStatus: http.StatusConflict,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "cooldown_active", body["error"])
				assert.Equal(t, float64(90), body["retry_after_seconds"])
			},
		},
		{
			name:   "Withdraw outcome unknown",
			method: http.MethodPost,
			path:   "/api/v1/users/me/withdrawal",
			caller: userID,
			body:   WithdrawRequest{Address: "0x1111111111111111111111111111111111111111"},
			setupMocks: func(svc *mockService) {
				svc.On("Withdraw", mock.Anything, userID, mock.Anything).
					Return(nil, fmt.Errorf("%w: timeout", service.ErrIndeterminateSettlement))
			},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "indeterminate_settlement", body["error"])
			},
		},
		{
			name:       "Withdraw without address",
			method:     http.MethodPost,
			path:       "/api/v1/users/me/withdrawal",
			caller:     userID,
			body:       gin.H{},
			setupMocks: func(svc *mockService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "Internal errors are not leaked",
			method: http.MethodGet,
			path:   "/api/v1/users/leaderboard",
			caller: userID,
			setupMocks: func(svc *mockService) {
				svc.On("GetLeaderboard", mock.Anything).Return(nil, fmt.Errorf("pq: password authentication failed"))
			},
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "internal", body["error"])
				assert.NotContains(t, body["message"], "password")
			},
		},
		{
			name:       "Bad page",
			method:     http.MethodGet,
			path:       "/api/v1/tasks?page=zero",
			caller:     userID,
			setupMocks: func(svc *mockService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "List tasks",
			method: http.MethodGet,
			path:   "/api/v1/tasks?page=2",
			caller: userID,
			setupMocks: func(svc *mockService) {
				svc.On("ListTasks", mock.Anything, userID, 2).Return(&service.TaskPage{
					Page:    2,
					Total:   6,
					Options: []model.TaskOption{{Index: 6, TaskID: uuid.New(), Name: "Follow X", Reward: 5000, Requires: model.ProofUsername}},
				}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				options := body["options"].([]any)
				require.Len(t, options, 1)
				assert.Equal(t, float64(6), options[0].(map[string]any)["index"])
			},
		},
		{
			name:   "Select stale index",
			method: http.MethodPost,
			path:   "/api/v1/tasks/select",
			caller: userID,
			body:   SelectTaskRequest{Index: 3},
			setupMocks: func(svc *mockService) {
				svc.On("SelectTask", mock.Anything, userID, 3).Return(nil, service.ErrInvalidSelection)
			},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "invalid_selection", body["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			router := newTestRouter(svc, NewFeedHub(zap.NewNop()))

			w := doRequest(router, tt.method, tt.path, tt.caller, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, decode(t, w))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		caller     int64
		body       any
		setupMocks func(svc *mockService)
		wantStatus int
		check      func(t *testing.T, body string)
	}{
		{
			name:   "Non admin is rejected",
			method: http.MethodGet,
			path:   "/api/v1/admin/stats",
			caller: userID,
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, userID).Return(false, nil)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "Stats",
			method: http.MethodGet,
			path:   "/api/v1/admin/stats",
			caller: adminID,
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				svc.On("AdminStats", mock.Anything, adminID).Return(&model.AdminStats{
					TotalUsers: 2,
					TopUser:    &model.LeaderboardEntry{TelegramID: 7, Balance: 10},
				}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				assert.Contains(t, body, `"total_users":2`)
				assert.Contains(t, body, `"telegram_id":7`)
			},
		},
		{
			name:   "Create task",
			method: http.MethodPost,
			path:   "/api/v1/admin/tasks",
			caller: adminID,
			body:   service.NewTask{Name: "Follow X", Reward: 5000, Status: "active", Requires: "username"},
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				svc.On("AddTask", mock.Anything, adminID, service.NewTask{Name: "Follow X", Reward: 5000, Status: "active", Requires: "username"}).
					Return(&model.Task{ID: uuid.New(), Name: "Follow X", Reward: 5000, Status: model.TaskActive, Requires: model.ProofUsername}, nil)
			},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, body string) {
				assert.Contains(t, body, `"name":"Follow X"`)
			},
		},
		{
			name:   "Create task with bad proof kind",
			method: http.MethodPost,
			path:   "/api/v1/admin/tasks",
			caller: adminID,
			body:   service.NewTask{Name: "Follow X", Status: "active", Requires: "video"},
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				svc.On("AddTask", mock.Anything, adminID, mock.Anything).
					Return(nil, fmt.Errorf("%w: requires must be one of username, screenshot, both", service.ErrInvalidField))
			},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body string) {
				assert.Contains(t, body, `"error":"invalid_field"`)
			},
		},
		{
			name:   "Remove missing tasks",
			method: http.MethodDelete,
			path:   "/api/v1/admin/tasks?name=Follow+X",
			caller: adminID,
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				svc.On("RemoveTask", mock.Anything, adminID, "Follow X").Return(0, service.ErrTaskNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "Complete task twice",
			method: http.MethodPost,
			path:   "/api/v1/admin/tasks/complete",
			caller: adminID,
			body:   CompleteTaskRequest{TelegramID: userID, Platform: "twitter"},
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				svc.On("CompleteTask", mock.Anything, adminID, userID, "twitter").Return(nil, service.ErrAlreadyCompleted)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "Resolve with unknown outcome",
			method: http.MethodPost,
			path:   "/api/v1/admin/withdrawals/42/resolve",
			caller: adminID,
			body:   ResolveWithdrawalRequest{Outcome: "maybe"},
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "Resolve settled",
			method: http.MethodPost,
			path:   "/api/v1/admin/withdrawals/42/resolve",
			caller: adminID,
			body:   ResolveWithdrawalRequest{Outcome: "settled", TxHash: "0xabc"},
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				acc := model.NewAccount(userID, "", time.Now())
				acc.Withdrawal.LastTxHash = "0xabc"
				svc.On("ResolveWithdrawal", mock.Anything, adminID, userID, "settled", "0xabc").Return(acc, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				assert.Contains(t, body, `"last_withdrawal_tx":"0xabc"`)
			},
		},
		{
			name:   "Pending withdrawals",
			method: http.MethodGet,
			path:   "/api/v1/admin/withdrawals/pending",
			caller: adminID,
			setupMocks: func(svc *mockService) {
				svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)
				acc := model.NewAccount(userID, "", time.Now())
				acc.Withdrawal.State = model.WithdrawalPendingReview
				acc.Withdrawal.PendingAmount = 2_000_000
				svc.On("ListPendingWithdrawals", mock.Anything, adminID).Return([]*model.Account{acc}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				assert.Contains(t, body, `"amount":2000000`)
				assert.Contains(t, body, `"state":"pending_review"`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			router := newTestRouter(svc, NewFeedHub(zap.NewNop()))

			w := doRequest(router, tt.method, tt.path, tt.caller, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, w.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestFeedHub(t *testing.T) {
	svc := new(mockService)
	svc.On("IsAdmin", mock.Anything, adminID).Return(true, nil)

	hub := NewFeedHub(zap.NewNop())
	defer hub.Close()

	server := httptest.NewServer(newTestRouter(svc, hub))
	defer server.Close()

	header := http.Header{}
	header.Set("Authorization", authHeader(adminID))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/admin/feed"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), service.Event{
		Type:       service.EventWithdrawalReview,
		TelegramID: userID,
		Text:       "needs review",
		Payload:    map[string]any{"amount": 2000000},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got service.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, service.EventWithdrawalReview, got.Type)
	assert.Equal(t, userID, got.TelegramID)
	assert.Equal(t, float64(2000000), got.Payload["amount"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.clientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedHubRejectsNonAdmins(t *testing.T) {
	svc := new(mockService)
	svc.On("IsAdmin", mock.Anything, userID).Return(false, nil)

	server := httptest.NewServer(newTestRouter(svc, NewFeedHub(zap.NewNop())))
	defer server.Close()

	header := http.Header{}
	header.Set("Authorization", authHeader(userID))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/admin/feed"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func ptr[T any](v T) *T {
	return &v
}
