package model

import "time"

type LeaderboardEntry struct {
	TelegramID int64
	Username   string
	Balance    int64
}

type AdminStats struct {
	TotalUsers          int
	TotalBalance        int64
	TotalWithdrawals    int
	TotalTasksCompleted int
	DailyActiveUsers    int
	TopUser             *LeaderboardEntry
}

type ClaimResult struct {
	Reward int64
	Streak int
	Date   time.Time
}

type WithdrawalResult struct {
	Amount  int64
	Address string
	TxHash  string
}

type WithdrawalStatus struct {
	Eligible  bool
	Remaining time.Duration
	State     WithdrawalState
	LastAt    *time.Time
}
