package mocks

import (
	"context"

	"SR_rewards_bot/internal/settlement"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockSettlement struct {
	mock.Mock
}

func (m *MockSettlement) Transfer(ctx context.Context, to string, amount int64) (string, error) {
	args := m.Called(ctx, to, amount)
	return args.String(0), args.Error(1)
}

func (m *MockSettlement) TransferStatus(ctx context.Context, txHash string) (settlement.Status, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(settlement.Status), args.Error(1)
}

func (m *MockSettlement) TreasuryBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockSettlement) WalletAddress() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSettlement) ExplorerURL(txHash string) string {
	args := m.Called(txHash)
	return args.String(0)
}
