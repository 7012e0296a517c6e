package service

import (
	"context"
	"time"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	*AccountService
	*ClaimService
	*ReferralService
	*TaskService
	*WithdrawalService
	*AdminService
	*ReminderService

	dispatch *dispatcher
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, acc *model.Account) (bool, error)
	GetAccount(ctx context.Context, telegramID int64) (*model.Account, error)
	UpdateAccount(ctx context.Context, telegramID int64, fn func(acc *model.Account) error) (*model.Account, error)
	UpdateAccountPair(ctx context.Context, firstID, secondID int64, fn func(first, second *model.Account) error) error
	RecordProof(ctx context.Context, telegramID int64, fn func(acc *model.Account) (*model.Submission, error)) (*model.Account, error)
	GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error)
	ListWithdrawalsAwaitingReview(ctx context.Context, now time.Time) ([]*model.Account, error)
	ListReminderDue(ctx context.Context, sentBefore time.Time) ([]*model.Account, error)
	MarkReminderSent(ctx context.Context, telegramID int64, sentAt time.Time) error
	ListSubmissions(ctx context.Context, telegramID int64) ([]*model.Submission, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	DeleteTasksByName(ctx context.Context, name string) (int, error)
	ListActiveTasks(ctx context.Context, exclude []uuid.UUID) ([]*model.Task, error)
	GetTask(ctx context.Context, taskID uuid.UUID) (*model.Task, error)
}

type AdminRepository interface {
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	ListAdminIDs(ctx context.Context) ([]int64, error)
	AggregateStats(ctx context.Context, today time.Time) (*model.AdminStats, error)
}

// Settlement moves tokens on chain.
type Settlement interface {
	Transfer(ctx context.Context, to string, amount int64) (string, error)
	TransferStatus(ctx context.Context, txHash string) (settlement.Status, error)
	TreasuryBalance(ctx context.Context) (decimal.Decimal, error)
	WalletAddress() string
	ExplorerURL(txHash string) string
}

type Rules struct {
	MinWithdrawAmount      int64         `mapstructure:"minWithdrawAmount"`
	WithdrawCooldown       time.Duration `mapstructure:"withdrawCooldown"`
	WithdrawLockTTL        time.Duration `mapstructure:"withdrawLockTtl"`
	ManualCompletionReward int64         `mapstructure:"manualCompletionReward"`
	ReferralBonusNew       int64         `mapstructure:"referralBonusNew"`
	ReferralBonusReferrer  int64         `mapstructure:"referralBonusReferrer"`
	TaskPageSize           int           `mapstructure:"taskPageSize"`
	LeaderboardSize        int           `mapstructure:"leaderboardSize"`
	Timezone               string        `mapstructure:"timezone"`
}

func DefaultRules() Rules {
	return Rules{
		MinWithdrawAmount:      1_000_000,
		WithdrawCooldown:       24 * time.Hour,
		WithdrawLockTTL:        10 * time.Minute,
		ManualCompletionReward: 100,
		ReferralBonusNew:       150_000,
		ReferralBonusReferrer:  300_000,
		TaskPageSize:           5,
		LeaderboardSize:        5,
		Timezone:               "UTC",
	}
}

func (r Rules) location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Dependencies struct {
	Accounts   AccountRepository
	Tasks      TaskRepository
	Admins     AdminRepository
	Settlement Settlement
	Notifier   Notifier
	Publisher  EventPublisher
	Rules      Rules
	Logger     *zap.Logger
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	dispatch := newDispatcher(deps.Notifier, deps.Publisher, deps.Admins, deps.Logger)
	auth := authorizer{repo: deps.Admins}

	return &Service{
		AccountService:    NewAccountService(deps.Accounts, deps.Rules),
		ClaimService:      NewClaimService(deps.Accounts, deps.Rules),
		ReferralService:   NewReferralService(deps.Accounts, deps.Rules, dispatch),
		TaskService:       NewTaskService(deps.Accounts, deps.Tasks, auth, deps.Rules, dispatch),
		WithdrawalService: NewWithdrawalService(deps.Accounts, deps.Settlement, auth, deps.Rules, dispatch, deps.Logger),
		AdminService:      NewAdminService(deps.Tasks, deps.Admins, deps.Settlement, auth, deps.Rules),
		ReminderService:   NewReminderService(deps.Accounts, dispatch, deps.Logger),
		dispatch:          dispatch,
	}
}

// WaitNotifications blocks until queued notifications have been attempted.
func (s *Service) WaitNotifications() {
	s.dispatch.wait()
}

type authorizer struct {
	repo AdminRepository
}

func (a authorizer) authorize(ctx context.Context, callerID int64) error {
	ok, err := a.repo.IsAdmin(ctx, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}
