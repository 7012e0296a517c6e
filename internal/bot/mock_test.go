package bot

import (
	"context"
	"sync"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Start(ctx context.Context, telegramID int64, username, payload string) (*service.StartResult, error) {
	args := m.Called(ctx, telegramID, username, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StartResult), args.Error(1)
}

func (m *mockService) Register(ctx context.Context, telegramID int64, username string) (*model.Account, bool, error) {
	args := m.Called(ctx, telegramID, username)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Account), args.Bool(1), args.Error(2)
}

func (m *mockService) GetAccount(ctx context.Context, telegramID int64) (*model.Account, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockService) GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LeaderboardEntry), args.Error(1)
}

func (m *mockService) Claim(ctx context.Context, telegramID int64, username string) (*model.ClaimResult, error) {
	args := m.Called(ctx, telegramID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClaimResult), args.Error(1)
}

func (m *mockService) ListTasks(ctx context.Context, telegramID int64, page int) (*service.TaskPage, error) {
	args := m.Called(ctx, telegramID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TaskPage), args.Error(1)
}

func (m *mockService) SelectTask(ctx context.Context, telegramID int64, index int) (*model.ActiveTask, error) {
	args := m.Called(ctx, telegramID, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ActiveTask), args.Error(1)
}

func (m *mockService) SubmitUsername(ctx context.Context, telegramID int64, platform, username string) (*service.UsernameSubmission, error) {
	args := m.Called(ctx, telegramID, platform, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UsernameSubmission), args.Error(1)
}

func (m *mockService) SubmitScreenshot(ctx context.Context, telegramID int64, fileRef string) (*service.ScreenshotSubmission, error) {
	args := m.Called(ctx, telegramID, fileRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ScreenshotSubmission), args.Error(1)
}

func (m *mockService) CompleteTask(ctx context.Context, callerID, targetID int64, platform string) (*service.ManualCompletion, error) {
	args := m.Called(ctx, callerID, targetID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ManualCompletion), args.Error(1)
}

func (m *mockService) Withdraw(ctx context.Context, telegramID int64, address string) (*model.WithdrawalResult, error) {
	args := m.Called(ctx, telegramID, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WithdrawalResult), args.Error(1)
}

func (m *mockService) WithdrawalStatus(ctx context.Context, telegramID int64) (*model.WithdrawalStatus, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WithdrawalStatus), args.Error(1)
}

func (m *mockService) ResolveWithdrawal(ctx context.Context, callerID, targetID int64, outcome, txHash string) (*model.Account, error) {
	args := m.Called(ctx, callerID, targetID, outcome, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockService) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	args := m.Called(ctx, telegramID)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) AddTask(ctx context.Context, callerID int64, in service.NewTask) (*model.Task, error) {
	args := m.Called(ctx, callerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *mockService) RemoveTask(ctx context.Context, callerID int64, name string) (int, error) {
	args := m.Called(ctx, callerID, name)
	return args.Int(0), args.Error(1)
}

func (m *mockService) AdminStats(ctx context.Context, callerID int64) (*model.AdminStats, error) {
	args := m.Called(ctx, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdminStats), args.Error(1)
}

func (m *mockService) WalletBalance(ctx context.Context, callerID int64) (*service.WalletBalance, error) {
	args := m.Called(ctx, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.WalletBalance), args.Error(1)
}

func (m *mockService) AirdropActive(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}
