package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"SR_rewards_bot/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const treasuryCacheTTL = time.Minute

type AdminService struct {
	tasks      TaskRepository
	admins     AdminRepository
	settlement Settlement
	auth       authorizer
	rules      Rules
	now        func() time.Time

	mu              sync.Mutex
	treasury        decimal.Decimal
	treasuryFetched time.Time
}

func NewAdminService(tasks TaskRepository, admins AdminRepository, settlement Settlement, auth authorizer, rules Rules) *AdminService {
	return &AdminService{
		tasks:      tasks,
		admins:     admins,
		settlement: settlement,
		auth:       auth,
		rules:      rules,
		now:        time.Now,
	}
}

type NewTask struct {
	Name     string `json:"name" binding:"required"`
	Reward   int64  `json:"reward"`
	Status   string `json:"status" binding:"required"`
	Requires string `json:"requires" binding:"required"`
	Details  string `json:"details"`
}

func (s *AdminService) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	ok, err := s.admins.IsAdmin(ctx, telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return ok, nil
}

// AddTask validates and stores a new task. Names are labels and may repeat.
func (s *AdminService) AddTask(ctx context.Context, callerID int64, in NewTask) (*model.Task, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidField)
	}
	if in.Reward < 0 {
		return nil, fmt.Errorf("%w: reward must not be negative", ErrInvalidField)
	}

	status := model.TaskStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status must be active or inactive", ErrInvalidField)
	}

	requires := model.ProofKind(strings.ToLower(strings.TrimSpace(in.Requires)))
	if !requires.Valid() {
		return nil, fmt.Errorf("%w: requires must be one of username, screenshot, both", ErrInvalidField)
	}

	task := &model.Task{
		ID:        uuid.New(),
		Name:      name,
		Reward:    in.Reward,
		Status:    status,
		Requires:  requires,
		Details:   strings.TrimSpace(in.Details),
		CreatedAt: s.now().UTC(),
	}

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// RemoveTask deletes every task named name and returns how many were removed.
func (s *AdminService) RemoveTask(ctx context.Context, callerID int64, name string) (int, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return 0, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrInvalidField)
	}

	deleted, err := s.tasks.DeleteTasksByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	if deleted == 0 {
		return 0, ErrTaskNotFound
	}

	return deleted, nil
}

func (s *AdminService) AdminStats(ctx context.Context, callerID int64) (*model.AdminStats, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return nil, err
	}

	today := model.DateOf(s.now(), s.rules.location())
	stats, err := s.admins.AggregateStats(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return stats, nil
}

type WalletBalance struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

func (s *AdminService) WalletBalance(ctx context.Context, callerID int64) (*WalletBalance, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return nil, err
	}

	balance, err := s.settlement.TreasuryBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	s.mu.Lock()
	s.treasury = balance
	s.treasuryFetched = s.now()
	s.mu.Unlock()

	return &WalletBalance{Address: s.settlement.WalletAddress(), Balance: balance}, nil
}

// AirdropActive reports whether the treasury still holds tokens. The balance
// is cached for a minute; lookup failures keep the airdrop open.
func (s *AdminService) AirdropActive(ctx context.Context) bool {
	s.mu.Lock()
	if !s.treasuryFetched.IsZero() && s.now().Sub(s.treasuryFetched) < treasuryCacheTTL {
		active := s.treasury.IsPositive()
		s.mu.Unlock()
		return active
	}
	s.mu.Unlock()

	balance, err := s.settlement.TreasuryBalance(ctx)
	if err != nil {
		return true
	}

	s.mu.Lock()
	s.treasury = balance
	s.treasuryFetched = s.now()
	s.mu.Unlock()

	return balance.IsPositive()
}
