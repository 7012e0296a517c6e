package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SR_rewards_bot/internal/metrics"
	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/repository"
)

type TaskService struct {
	accounts AccountRepository
	tasks    TaskRepository
	auth     authorizer
	rules    Rules
	dispatch *dispatcher
	now      func() time.Time
}

func NewTaskService(accounts AccountRepository, tasks TaskRepository, auth authorizer, rules Rules, dispatch *dispatcher) *TaskService {
	return &TaskService{
		accounts: accounts,
		tasks:    tasks,
		auth:     auth,
		rules:    rules,
		dispatch: dispatch,
		now:      time.Now,
	}
}

type TaskPage struct {
	Page    int                `json:"page"`
	Options []model.TaskOption `json:"options"`
	Total   int                `json:"total"`
	HasMore bool               `json:"has_more"`
}

type UsernameSubmission struct {
	TaskName    string
	Platform    string
	Username    string
	Overwritten bool
	Previous    string
}

type ScreenshotSubmission struct {
	TaskName string
	Reward   int64
	Credited bool
}

type ManualCompletion struct {
	TelegramID int64
	Handle     string
	TaskName   string
	Reward     int64
}

func mapAccountErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotRegistered
	}
	return err
}

// ListTasks returns one page of active tasks the user has not completed and
// stores the page's index mapping on the account. Indices are global across
// pages so a bare number reply resolves unambiguously.
func (s *TaskService) ListTasks(ctx context.Context, telegramID int64, page int) (*TaskPage, error) {
	if page < 1 {
		page = 1
	}
	pageSize := s.rules.TaskPageSize
	if pageSize <= 0 {
		pageSize = 5
	}

	acc, err := s.accounts.GetAccount(ctx, telegramID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	tasks, err := s.tasks.ListActiveTasks(ctx, acc.CompletedTaskIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(tasks) {
		start = len(tasks)
	}
	if end > len(tasks) {
		end = len(tasks)
	}

	options := make([]model.TaskOption, 0, end-start)
	for i, t := range tasks[start:end] {
		options = append(options, model.TaskOption{
			Index:    start + i + 1,
			TaskID:   t.ID,
			Name:     t.Name,
			Reward:   t.Reward,
			Requires: t.Requires,
			Details:  t.Details,
		})
	}

	_, err = s.accounts.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		acc.TaskOptions = options
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store task options: %w", mapAccountErr(err))
	}

	return &TaskPage{
		Page:    page,
		Options: options,
		Total:   len(tasks),
		HasMore: end < len(tasks),
	}, nil
}

// SelectTask makes the task at index of the last listed page the active task.
func (s *TaskService) SelectTask(ctx context.Context, telegramID int64, index int) (*model.ActiveTask, error) {
	acc, err := s.accounts.GetAccount(ctx, telegramID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	option, ok := acc.FindTaskOption(index)
	if !ok {
		return nil, ErrInvalidSelection
	}

	task, err := s.tasks.GetTask(ctx, option.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSelection
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task.Status != model.TaskActive {
		return nil, ErrInvalidSelection
	}

	var active *model.ActiveTask
	_, err = s.accounts.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		current, ok := acc.FindTaskOption(index)
		if !ok || current.TaskID != task.ID {
			return ErrInvalidSelection
		}
		if acc.HasCompleted(task.ID) {
			return ErrAlreadyCompleted
		}

		requires := task.Requires
		if !requires.Valid() {
			requires = model.ProofUsername
		}

		active = &model.ActiveTask{
			TaskID:   task.ID,
			TaskName: task.Name,
			Requires: requires,
			Reward:   task.Reward,
			State:    model.TaskStateAwaitingProof,
		}
		acc.ActiveTask = active
		acc.TaskOptions = nil
		return nil
	})
	if err != nil {
		return nil, mapAccountErr(err)
	}

	return active, nil
}

// SubmitUsername records a handle as proof for the active task. The task moves
// to pending review and waits for an admin; it is never completed here.
func (s *TaskService) SubmitUsername(ctx context.Context, telegramID int64, platform, username string) (*UsernameSubmission, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidField)
	}

	now := s.now().UTC()
	var result UsernameSubmission

	_, err := s.accounts.RecordProof(ctx, telegramID, func(acc *model.Account) (*model.Submission, error) {
		if acc.ActiveTask == nil {
			return nil, ErrNoActiveTask
		}

		normalized, ok := model.NormalizePlatform(platform)
		if !ok {
			return nil, ErrUnsupportedPlatform
		}

		previous := acc.SubmittedHandles[normalized]
		acc.SubmittedHandles[normalized] = username
		acc.ActiveTask.State = model.TaskStatePendingReview

		result = UsernameSubmission{
			TaskName:    acc.ActiveTask.TaskName,
			Platform:    normalized,
			Username:    username,
			Overwritten: previous != "",
			Previous:    previous,
		}

		return &model.Submission{
			UserTelegramID: telegramID,
			TaskID:         acc.ActiveTask.TaskID,
			TaskName:       acc.ActiveTask.TaskName,
			Platform:       normalized,
			Username:       username,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, nil
	})
	if err != nil {
		return nil, mapAccountErr(err)
	}

	s.dispatch.toAdmins(Event{
		Type:       EventUsernameSubmitted,
		TelegramID: telegramID,
		Text: fmt.Sprintf("📥 User %d submitted %s username: %q\n📝 Task: %s",
			telegramID, result.Platform, result.Username, result.TaskName),
		Payload: map[string]any{
			"platform":  result.Platform,
			"username":  result.Username,
			"task_name": result.TaskName,
		},
	})

	return &result, nil
}

// SubmitScreenshot records a screenshot and completes the active task. The
// reward is credited only the first time the task enters the completed set.
func (s *TaskService) SubmitScreenshot(ctx context.Context, telegramID int64, fileRef string) (*ScreenshotSubmission, error) {
	if strings.TrimSpace(fileRef) == "" {
		return nil, fmt.Errorf("%w: file reference is required", ErrInvalidField)
	}

	now := s.now().UTC()
	var result ScreenshotSubmission

	_, err := s.accounts.RecordProof(ctx, telegramID, func(acc *model.Account) (*model.Submission, error) {
		active := acc.ActiveTask
		if active == nil {
			return nil, ErrNoActiveTask
		}

		result = ScreenshotSubmission{TaskName: active.TaskName}
		if acc.MarkCompleted(active.TaskID) {
			acc.Balance += active.Reward
			acc.TasksCompleted++
			result.Reward = active.Reward
			result.Credited = true
		}
		acc.ActiveTask = nil

		return &model.Submission{
			UserTelegramID:   telegramID,
			TaskID:           active.TaskID,
			TaskName:         active.TaskName,
			ScreenshotFileID: fileRef,
			CreatedAt:        now,
			UpdatedAt:        now,
		}, nil
	})
	if err != nil {
		return nil, mapAccountErr(err)
	}

	if result.Credited {
		metrics.TaskCompletionsTotal.WithLabelValues("screenshot").Inc()
	}
	s.dispatch.toAdmins(Event{
		Type:       EventScreenshotSubmitted,
		TelegramID: telegramID,
		Text:       fmt.Sprintf("📷 Screenshot submitted by user ID %d\n📝 Task: %s", telegramID, result.TaskName),
		FileRef:    fileRef,
		Payload: map[string]any{
			"task_name": result.TaskName,
			"credited":  result.Credited,
		},
	})

	return &result, nil
}

// CompleteTask is the admin confirmation for username proofs. It credits the
// fixed manual reward and closes the target's active task.
func (s *TaskService) CompleteTask(ctx context.Context, callerID, targetID int64, platform string) (*ManualCompletion, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return nil, err
	}

	normalized, ok := model.NormalizePlatform(platform)
	if !ok {
		return nil, ErrUnsupportedPlatform
	}

	submissions, err := s.accounts.ListSubmissions(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	var result ManualCompletion
	_, err = s.accounts.UpdateAccount(ctx, targetID, func(acc *model.Account) error {
		handle := acc.SubmittedHandles[normalized]
		if handle == "" {
			return ErrNoSubmittedHandle
		}

		active := acc.ActiveTask
		if active == nil {
			if last := latestUsernameProof(submissions, normalized); last != nil && acc.HasCompleted(last.TaskID) {
				return ErrAlreadyCompleted
			}
			return ErrNoActiveTask
		}
		if !acc.MarkCompleted(active.TaskID) {
			return ErrAlreadyCompleted
		}

		acc.Balance += s.rules.ManualCompletionReward
		acc.TasksCompleted++
		acc.ActiveTask = nil

		result = ManualCompletion{
			TelegramID: targetID,
			Handle:     handle,
			TaskName:   active.TaskName,
			Reward:     s.rules.ManualCompletionReward,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	metrics.TaskCompletionsTotal.WithLabelValues("manual").Inc()
	s.dispatch.toUser(targetID, fmt.Sprintf("✅ Your task %q was approved! +%d tokens.", result.TaskName, result.Reward))
	s.dispatch.toAdmins(Event{
		Type:       EventTaskCompleted,
		TelegramID: targetID,
		Text: fmt.Sprintf("✅ Task marked complete by %d\n👤 @%s\n📝 Task: %s\n💰 +%d",
			callerID, result.Handle, result.TaskName, result.Reward),
	})

	return &result, nil
}

func latestUsernameProof(submissions []*model.Submission, platform string) *model.Submission {
	var latest *model.Submission
	for _, sub := range submissions {
		if sub.Platform != platform || sub.Username == "" {
			continue
		}
		if latest == nil || !sub.UpdatedAt.Before(latest.UpdatedAt) {
			latest = sub
		}
	}
	return latest
}
