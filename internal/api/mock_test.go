package api

import (
	"context"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"

	"github.com/stretchr/testify/mock"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) ret(args mock.Arguments) error {
	return args.Error(len(args) - 1)
}

func (m *mockService) Start(ctx context.Context, telegramID int64, username, payload string) (*service.StartResult, error) {
	args := m.Called(ctx, telegramID, username, payload)
	res, _ := args.Get(0).(*service.StartResult)
	return res, m.ret(args)
}

func (m *mockService) GetAccount(ctx context.Context, telegramID int64) (*model.Account, error) {
	args := m.Called(ctx, telegramID)
	res, _ := args.Get(0).(*model.Account)
	return res, m.ret(args)
}

func (m *mockService) GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]model.LeaderboardEntry)
	return res, m.ret(args)
}

func (m *mockService) Claim(ctx context.Context, telegramID int64, username string) (*model.ClaimResult, error) {
	args := m.Called(ctx, telegramID, username)
	res, _ := args.Get(0).(*model.ClaimResult)
	return res, m.ret(args)
}

func (m *mockService) Withdraw(ctx context.Context, telegramID int64, address string) (*model.WithdrawalResult, error) {
	args := m.Called(ctx, telegramID, address)
	res, _ := args.Get(0).(*model.WithdrawalResult)
	return res, m.ret(args)
}

func (m *mockService) WithdrawalStatus(ctx context.Context, telegramID int64) (*model.WithdrawalStatus, error) {
	args := m.Called(ctx, telegramID)
	res, _ := args.Get(0).(*model.WithdrawalStatus)
	return res, m.ret(args)
}

func (m *mockService) ListTasks(ctx context.Context, telegramID int64, page int) (*service.TaskPage, error) {
	args := m.Called(ctx, telegramID, page)
	res, _ := args.Get(0).(*service.TaskPage)
	return res, m.ret(args)
}

func (m *mockService) SelectTask(ctx context.Context, telegramID int64, index int) (*model.ActiveTask, error) {
	args := m.Called(ctx, telegramID, index)
	res, _ := args.Get(0).(*model.ActiveTask)
	return res, m.ret(args)
}

func (m *mockService) SubmitUsername(ctx context.Context, telegramID int64, platform, username string) (*service.UsernameSubmission, error) {
	args := m.Called(ctx, telegramID, platform, username)
	res, _ := args.Get(0).(*service.UsernameSubmission)
	return res, m.ret(args)
}

func (m *mockService) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	args := m.Called(ctx, telegramID)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) AddTask(ctx context.Context, callerID int64, in service.NewTask) (*model.Task, error) {
	args := m.Called(ctx, callerID, in)
	res, _ := args.Get(0).(*model.Task)
	return res, m.ret(args)
}

func (m *mockService) RemoveTask(ctx context.Context, callerID int64, name string) (int, error) {
	args := m.Called(ctx, callerID, name)
	return args.Int(0), args.Error(1)
}

func (m *mockService) CompleteTask(ctx context.Context, callerID, targetID int64, platform string) (*service.ManualCompletion, error) {
	args := m.Called(ctx, callerID, targetID, platform)
	res, _ := args.Get(0).(*service.ManualCompletion)
	return res, m.ret(args)
}

func (m *mockService) AdminStats(ctx context.Context, callerID int64) (*model.AdminStats, error) {
	args := m.Called(ctx, callerID)
	res, _ := args.Get(0).(*model.AdminStats)
	return res, m.ret(args)
}

func (m *mockService) WalletBalance(ctx context.Context, callerID int64) (*service.WalletBalance, error) {
	args := m.Called(ctx, callerID)
	res, _ := args.Get(0).(*service.WalletBalance)
	return res, m.ret(args)
}

func (m *mockService) ListPendingWithdrawals(ctx context.Context, callerID int64) ([]*model.Account, error) {
	args := m.Called(ctx, callerID)
	res, _ := args.Get(0).([]*model.Account)
	return res, m.ret(args)
}

func (m *mockService) ResolveWithdrawal(ctx context.Context, callerID, targetID int64, outcome, txHash string) (*model.Account, error) {
	args := m.Called(ctx, callerID, targetID, outcome, txHash)
	res, _ := args.Get(0).(*model.Account)
	return res, m.ret(args)
}
