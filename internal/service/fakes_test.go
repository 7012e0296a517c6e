package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/repository"
	"SR_rewards_bot/internal/service/mocks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.LastClaimDate = cloneTime(a.LastClaimDate)
	c.LastDailyReminderSent = cloneTime(a.LastDailyReminderSent)
	if a.ReferredBy != nil {
		id := *a.ReferredBy
		c.ReferredBy = &id
	}
	c.CompletedTaskIDs = append([]uuid.UUID(nil), a.CompletedTaskIDs...)
	c.TaskOptions = append([]model.TaskOption(nil), a.TaskOptions...)
	c.SubmittedHandles = make(map[string]string, len(a.SubmittedHandles))
	for k, v := range a.SubmittedHandles {
		c.SubmittedHandles[k] = v
	}
	if a.ActiveTask != nil {
		at := *a.ActiveTask
		c.ActiveTask = &at
	}
	c.Withdrawal.LastAt = cloneTime(a.Withdrawal.LastAt)
	c.Withdrawal.LockedUntil = cloneTime(a.Withdrawal.LockedUntil)
	c.Withdrawal.PendingSince = cloneTime(a.Withdrawal.PendingSince)
	return &c
}

// fakeAccounts serializes every operation behind one mutex, which gives the
// same isolation as row locks for the purposes of these tests.
type fakeAccounts struct {
	mu          sync.Mutex
	accounts    map[int64]*model.Account
	submissions map[int64]map[uuid.UUID]*model.Submission
	updateErr   error

	// failUpdates makes the next n UpdateAccount calls fail.
	failUpdates int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts:    make(map[int64]*model.Account),
		submissions: make(map[int64]map[uuid.UUID]*model.Submission),
	}
}

func (f *fakeAccounts) put(acc *model.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = acc.Normalize()
	f.accounts[acc.TelegramID] = cloneAccount(acc)
}

func (f *fakeAccounts) get(id int64) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil
	}
	return cloneAccount(acc)
}

func (f *fakeAccounts) CreateAccount(ctx context.Context, acc *model.Account) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[acc.TelegramID]; ok {
		return false, nil
	}
	if err := acc.Normalize(); err != nil {
		return false, err
	}
	f.accounts[acc.TelegramID] = cloneAccount(acc)
	return true, nil
}

func (f *fakeAccounts) GetAccount(ctx context.Context, telegramID int64) (*model.Account, error) {
	acc := f.get(telegramID)
	if acc == nil {
		return nil, repository.ErrNotFound
	}
	return acc, nil
}

func (f *fakeAccounts) UpdateAccount(ctx context.Context, telegramID int64, fn func(acc *model.Account) error) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.failUpdates > 0 {
		f.failUpdates--
		return nil, errors.New("connection refused")
	}

	stored, ok := f.accounts[telegramID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	acc := cloneAccount(stored)
	if err := fn(acc); err != nil {
		return nil, err
	}
	if err := acc.Normalize(); err != nil {
		return nil, err
	}

	f.accounts[telegramID] = cloneAccount(acc)
	return acc, nil
}

func (f *fakeAccounts) UpdateAccountPair(ctx context.Context, firstID, secondID int64, fn func(first, second *model.Account) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, okA := f.accounts[firstID]
	b, okB := f.accounts[secondID]
	if !okA || !okB {
		return repository.ErrNotFound
	}

	first, second := cloneAccount(a), cloneAccount(b)
	if err := fn(first, second); err != nil {
		return err
	}
	if err := errors.Join(first.Normalize(), second.Normalize()); err != nil {
		return err
	}

	f.accounts[firstID] = first
	f.accounts[secondID] = second
	return nil
}

func (f *fakeAccounts) RecordProof(ctx context.Context, telegramID int64, fn func(acc *model.Account) (*model.Submission, error)) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.accounts[telegramID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	acc := cloneAccount(stored)
	sub, err := fn(acc)
	if err != nil {
		return nil, err
	}
	if err := acc.Normalize(); err != nil {
		return nil, err
	}

	if sub != nil {
		byTask := f.submissions[telegramID]
		if byTask == nil {
			byTask = make(map[uuid.UUID]*model.Submission)
			f.submissions[telegramID] = byTask
		}
		if existing, ok := byTask[sub.TaskID]; ok {
			if existing.Username == "" {
				existing.Username = sub.Username
			}
			if existing.Platform == "" {
				existing.Platform = sub.Platform
			}
			if existing.ScreenshotFileID == "" {
				existing.ScreenshotFileID = sub.ScreenshotFileID
			}
			existing.UpdatedAt = sub.UpdatedAt
		} else {
			c := *sub
			byTask[sub.TaskID] = &c
		}
	}

	f.accounts[telegramID] = cloneAccount(acc)
	return acc, nil
}

func (f *fakeAccounts) ListSubmissions(ctx context.Context, telegramID int64) ([]*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Submission
	for _, s := range f.submissions[telegramID] {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeAccounts) GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Account
	for _, acc := range f.accounts {
		out = append(out, cloneAccount(acc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].TelegramID < out[j].TelegramID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAccounts) ListWithdrawalsAwaitingReview(ctx context.Context, now time.Time) ([]*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Account
	for _, acc := range f.accounts {
		w := acc.Withdrawal
		if w.State == model.WithdrawalPendingReview ||
			(w.State == model.WithdrawalInFlight && w.LockedUntil != nil && w.LockedUntil.Before(now)) {
			out = append(out, cloneAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (f *fakeAccounts) ListReminderDue(ctx context.Context, sentBefore time.Time) ([]*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Account
	for _, acc := range f.accounts {
		if acc.LastDailyReminderSent == nil || !acc.LastDailyReminderSent.After(sentBefore) {
			out = append(out, cloneAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (f *fakeAccounts) MarkReminderSent(ctx context.Context, telegramID int64, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	acc, ok := f.accounts[telegramID]
	if !ok {
		return repository.ErrNotFound
	}
	acc.LastDailyReminderSent = &sentAt
	return nil
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks []*model.Task
}

func (f *fakeTasks) add(name string, reward int64, requires model.ProofKind) *model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &model.Task{
		ID:        uuid.New(),
		Name:      name,
		Reward:    reward,
		Status:    model.TaskActive,
		Requires:  requires,
		CreatedAt: time.Now().Add(time.Duration(len(f.tasks)) * time.Second),
	}
	f.tasks = append(f.tasks, t)
	return t
}

func (f *fakeTasks) CreateTask(ctx context.Context, task *model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeTasks) DeleteTasksByName(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.tasks[:0]
	deleted := 0
	for _, t := range f.tasks {
		if t.Name == name {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	f.tasks = kept
	return deleted, nil
}

func (f *fakeTasks) ListActiveTasks(ctx context.Context, exclude []uuid.UUID) ([]*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var out []*model.Task
	for _, t := range f.tasks {
		if t.Status == model.TaskActive && !skip[t.ID] {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeTasks) GetTask(ctx context.Context, taskID uuid.UUID) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.tasks {
		if t.ID == taskID {
			c := *t
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeAdmins struct {
	ids map[int64]bool
}

func (f *fakeAdmins) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	return f.ids[telegramID], nil
}

func (f *fakeAdmins) ListAdminIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, ok := range f.ids {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeAdmins) AggregateStats(ctx context.Context, today time.Time) (*model.AdminStats, error) {
	return &model.AdminStats{}, nil
}

type sentMessage struct {
	ChatID  int64
	Text    string
	FileRef string
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[int64]bool
}

func (r *recordingNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[chatID] {
		return errors.New("chat not found")
	}
	r.messages = append(r.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (r *recordingNotifier) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[chatID] {
		return errors.New("chat not found")
	}
	r.messages = append(r.messages, sentMessage{ChatID: chatID, Text: caption, FileRef: fileRef})
	return nil
}

func (r *recordingNotifier) sentTo(chatID int64) []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMessage
	for _, m := range r.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

const testAdminID int64 = 1

type testEnv struct {
	svc        *Service
	accounts   *fakeAccounts
	tasks      *fakeTasks
	admins     *fakeAdmins
	settlement *mocks.MockSettlement
	notifier   *recordingNotifier
	publisher  *recordingPublisher
	clock      *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts:   newFakeAccounts(),
		tasks:      &fakeTasks{},
		admins:     &fakeAdmins{ids: map[int64]bool{testAdminID: true}},
		settlement: &mocks.MockSettlement{},
		notifier:   &recordingNotifier{},
		publisher:  &recordingPublisher{},
		clock:      &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)},
	}

	env.svc = NewService(Dependencies{
		Accounts:   env.accounts,
		Tasks:      env.tasks,
		Admins:     env.admins,
		Settlement: env.settlement,
		Notifier:   env.notifier,
		Publisher:  env.publisher,
		Rules:      DefaultRules(),
		Logger:     zap.NewNop(),
	})

	env.svc.AccountService.now = env.clock.Now
	env.svc.ClaimService.now = env.clock.Now
	env.svc.TaskService.now = env.clock.Now
	env.svc.WithdrawalService.now = env.clock.Now
	env.svc.WithdrawalService.retryDelay = 0
	env.svc.AdminService.now = env.clock.Now
	env.svc.ReminderService.now = env.clock.Now

	t.Cleanup(env.svc.WaitNotifications)

	return env
}
