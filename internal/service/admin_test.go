package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service/mocks"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAdminService(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository, settle *mocks.MockSettlement, now time.Time) *AdminService {
	s := NewAdminService(tasks, admins, settle, authorizer{repo: admins}, DefaultRules())
	s.now = func() time.Time { return now }
	return s
}

func TestAdminService_AddTask(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		callerID   int64
		input      NewTask
		setupMocks func(*mocks.MockTaskRepository, *mocks.MockAdminRepository)
		wantErr    error
	}{
		{
			name:     "Success",
			callerID: 1,
			input:    NewTask{Name: " Follow X ", Reward: 5000, Status: "Active", Requires: "both", Details: "Follow @sr"},
			setupMocks: func(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository) {
				admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
				tasks.On("CreateTask", mock.Anything, mock.MatchedBy(func(task *model.Task) bool {
					return task.Name == "Follow X" &&
						task.Reward == 5000 &&
						task.Status == model.TaskActive &&
						task.Requires == model.ProofBoth &&
						task.CreatedAt.Equal(now)
				})).Return(nil)
			},
		},
		{
			name:     "Not admin",
			callerID: 2,
			input:    NewTask{Name: "Follow X", Status: "active", Requires: "both"},
			setupMocks: func(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository) {
				admins.On("IsAdmin", mock.Anything, int64(2)).Return(false, nil)
			},
			wantErr: ErrNotAdmin,
		},
		{
			name:     "Unknown status",
			callerID: 1,
			input:    NewTask{Name: "Follow X", Status: "paused", Requires: "both"},
			setupMocks: func(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository) {
				admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
			},
			wantErr: ErrInvalidField,
		},
		{
			name:     "Unknown proof kind",
			callerID: 1,
			input:    NewTask{Name: "Follow X", Status: "active", Requires: "video"},
			setupMocks: func(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository) {
				admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
			},
			wantErr: ErrInvalidField,
		},
		{
			name:     "Negative reward",
			callerID: 1,
			input:    NewTask{Name: "Follow X", Reward: -1, Status: "active", Requires: "username"},
			setupMocks: func(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository) {
				admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
			},
			wantErr: ErrInvalidField,
		},
		{
			name:     "Blank name",
			callerID: 1,
			input:    NewTask{Name: "  ", Status: "active", Requires: "username"},
			setupMocks: func(tasks *mocks.MockTaskRepository, admins *mocks.MockAdminRepository) {
				admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
			},
			wantErr: ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := new(mocks.MockTaskRepository)
			admins := new(mocks.MockAdminRepository)
			tt.setupMocks(tasks, admins)

			s := newAdminService(tasks, admins, new(mocks.MockSettlement), now)
			task, err := s.AddTask(context.Background(), tt.callerID, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, task)
				tasks.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, "", task.ID.String())
				tasks.AssertExpectations(t)
			}
			admins.AssertExpectations(t)
		})
	}
}

func TestAdminService_RemoveTask(t *testing.T) {
	tests := []struct {
		name    string
		deleted int
		repoErr error
		want    int
		wantErr error
	}{
		{name: "Removes every task with the name", deleted: 2, want: 2},
		{name: "Nothing to remove", deleted: 0, wantErr: ErrTaskNotFound},
		{name: "Repository error", repoErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := new(mocks.MockTaskRepository)
			admins := new(mocks.MockAdminRepository)
			admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
			tasks.On("DeleteTasksByName", mock.Anything, "Follow X").Return(tt.deleted, tt.repoErr)

			s := newAdminService(tasks, admins, new(mocks.MockSettlement), time.Now())
			got, err := s.RemoveTask(context.Background(), 1, " Follow X ")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.repoErr != nil:
				assert.ErrorIs(t, err, tt.repoErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAdminService_AdminStats(t *testing.T) {
	tasks := new(mocks.MockTaskRepository)
	admins := new(mocks.MockAdminRepository)

	stats := &model.AdminStats{
		TotalUsers:   3,
		TotalBalance: 450_000,
		TopUser:      &model.LeaderboardEntry{TelegramID: 7, Balance: 300_000},
	}
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
	admins.On("IsAdmin", mock.Anything, int64(5)).Return(false, nil)
	admins.On("AggregateStats", mock.Anything, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)).Return(stats, nil)

	s := newAdminService(tasks, admins, new(mocks.MockSettlement), now)

	got, err := s.AdminStats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	_, err = s.AdminStats(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestAdminService_WalletBalance(t *testing.T) {
	admins := new(mocks.MockAdminRepository)
	settle := new(mocks.MockSettlement)
	admins.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)
	settle.On("TreasuryBalance", mock.Anything).Return(decimal.RequireFromString("1250.5"), nil).Once()
	settle.On("TreasuryBalance", mock.Anything).Return(decimal.Zero, errors.New("dial tcp: timeout")).Once()
	settle.On("WalletAddress").Return("0xabc")

	s := newAdminService(new(mocks.MockTaskRepository), admins, settle, time.Now())

	got, err := s.WalletBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.Address)
	assert.Equal(t, "1250.5", got.Balance.String())

	_, err = s.WalletBalance(context.Background(), 1)
	assert.ErrorIs(t, err, ErrExternalService)
}

func TestAdminService_AirdropActive(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	settle := new(mocks.MockSettlement)
	s := newAdminService(new(mocks.MockTaskRepository), new(mocks.MockAdminRepository), settle, clock.now)
	s.now = clock.Now

	settle.On("TreasuryBalance", mock.Anything).Return(decimal.Zero, errors.New("rpc down")).Once()
	assert.True(t, s.AirdropActive(context.Background()), "lookup failure keeps the airdrop open")

	settle.On("TreasuryBalance", mock.Anything).Return(decimal.Zero, nil).Once()
	assert.False(t, s.AirdropActive(context.Background()))

	clock.Advance(30 * time.Second)
	assert.False(t, s.AirdropActive(context.Background()), "cached")
	settle.AssertNumberOfCalls(t, "TreasuryBalance", 2)

	clock.Advance(time.Minute)
	settle.On("TreasuryBalance", mock.Anything).Return(decimal.NewFromInt(10), nil).Once()
	assert.True(t, s.AirdropActive(context.Background()))
	settle.AssertNumberOfCalls(t, "TreasuryBalance", 3)
}
