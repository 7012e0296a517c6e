package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"SR_rewards_bot/internal/metrics"
	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Config struct {
	BotToken    string `mapstructure:"botToken"`
	Debug       bool   `mapstructure:"debug"`
	BotUsername string `mapstructure:"botUsername"`
	PollTimeout int    `mapstructure:"pollTimeout"`
	TokenSymbol string `mapstructure:"tokenSymbol"`

	// RateLimit is the number of updates per second accepted from one user.
	RateLimit float64 `mapstructure:"rateLimit"`
	RateBurst int     `mapstructure:"rateBurst"`
}

// telegramAPI is the part of tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Service interface {
	Start(ctx context.Context, telegramID int64, username, payload string) (*service.StartResult, error)
	Register(ctx context.Context, telegramID int64, username string) (*model.Account, bool, error)
	GetAccount(ctx context.Context, telegramID int64) (*model.Account, error)
	GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
	Claim(ctx context.Context, telegramID int64, username string) (*model.ClaimResult, error)

	ListTasks(ctx context.Context, telegramID int64, page int) (*service.TaskPage, error)
	SelectTask(ctx context.Context, telegramID int64, index int) (*model.ActiveTask, error)
	SubmitUsername(ctx context.Context, telegramID int64, platform, username string) (*service.UsernameSubmission, error)
	SubmitScreenshot(ctx context.Context, telegramID int64, fileRef string) (*service.ScreenshotSubmission, error)
	CompleteTask(ctx context.Context, callerID, targetID int64, platform string) (*service.ManualCompletion, error)

	Withdraw(ctx context.Context, telegramID int64, address string) (*model.WithdrawalResult, error)
	WithdrawalStatus(ctx context.Context, telegramID int64) (*model.WithdrawalStatus, error)
	ResolveWithdrawal(ctx context.Context, callerID, targetID int64, outcome, txHash string) (*model.Account, error)

	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	AddTask(ctx context.Context, callerID int64, in service.NewTask) (*model.Task, error)
	RemoveTask(ctx context.Context, callerID int64, name string) (int, error)
	AdminStats(ctx context.Context, callerID int64) (*model.AdminStats, error)
	WalletBalance(ctx context.Context, callerID int64) (*service.WalletBalance, error)
	AirdropActive(ctx context.Context) bool
}

type Bot struct {
	api    telegramAPI
	svc    Service
	cfg    Config
	rules  service.Rules
	logger *zap.Logger
	limit  *rateLimiter
	wg     sync.WaitGroup
}

func NewBotAPI(cfg Config) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}

	api.Debug = cfg.Debug

	return api, nil
}

func New(api *tgbotapi.BotAPI, cfg Config, svc Service, rules service.Rules, logger *zap.Logger) *Bot {
	if cfg.BotUsername == "" {
		cfg.BotUsername = api.Self.UserName
	}
	return newBot(api, cfg, svc, rules, logger)
}

func newBot(api telegramAPI, cfg Config, svc Service, rules service.Rules, logger *zap.Logger) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "$SHROCK"
	}

	return &Bot{
		api:    api,
		svc:    svc,
		cfg:    cfg,
		rules:  rules,
		logger: logger,
		limit:  newRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

var commandList = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start & Register"},
	{Command: "task", Description: "View available tasks"},
	{Command: "claim", Description: "Daily reward"},
	{Command: "balance", Description: "Check your balance"},
	{Command: "referral", Description: "Get your referral link"},
	{Command: "streak", Description: "View your claim streak"},
	{Command: "submit", Description: "Submit social usernames"},
	{Command: "withdraw", Description: "Withdraw your tokens"},
	{Command: "withdrawstatus", Description: "Check withdrawal cooldown"},
	{Command: "getid", Description: "Show this chat ID"},
	{Command: "stats", Description: "View your progress"},
	{Command: "leaderboard", Description: "View top earners"},
	{Command: "help", Description: "How to earn and use commands"},
	{Command: "admin", Description: "Show admin tools"},
}

// Run polls for updates until ctx is done. Each update is handled on its own
// goroutine; Run returns after in-flight handlers finish.
func (b *Bot) Run(ctx context.Context) {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commandList...)); err != nil {
		b.logger.Warn("Failed to register bot commands", zap.Error(err))
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.cfg.PollTimeout

	updates := b.api.GetUpdatesChan(updateConfig)

	defer b.wg.Wait()

	cleanup := time.NewTicker(limiterIdleTTL)
	defer cleanup.Stop()

	for {
		select {
		case <-cleanup.C:
			b.limit.cleanup()

		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()

		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic while handling update", zap.Any("panic", r), zap.Int64("telegram_id", msg.From.ID))
		}
	}()

	if !b.limit.allow(msg.From.ID) {
		metrics.BotUpdatesTotal.WithLabelValues("rate_limited").Inc()
		b.reply(msg.Chat.ID, "⏳ You're sending messages too fast. Please slow down.")
		return
	}

	if !b.svc.AirdropActive(ctx) && !b.isAdmin(ctx, msg.From.ID) {
		metrics.BotUpdatesTotal.WithLabelValues("gated").Inc()
		b.reply(msg.Chat.ID, "🚫 Airdrop has ended.\n\nThis bot is now inactive because the "+b.cfg.TokenSymbol+" wallet is empty.")
		return
	}

	var text string
	switch {
	case msg.IsCommand():
		metrics.BotUpdatesTotal.WithLabelValues("command").Inc()
		text = b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		metrics.BotUpdatesTotal.WithLabelValues("photo").Inc()
		text = b.handlePhoto(ctx, msg)
	case msg.Text != "":
		metrics.BotUpdatesTotal.WithLabelValues("text").Inc()
		text = b.handleText(ctx, msg)
	}

	if text != "" {
		b.reply(msg.Chat.ID, text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) string {
	userID := msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	log := b.logger.With(zap.Int64("telegram_id", userID), zap.String("command", msg.Command()))

	var (
		text string
		err  error
	)

	switch strings.ToLower(msg.Command()) {
	case "start":
		text, err = b.start(ctx, msg.From, args)
	case "task":
		text, err = b.tasks(ctx, userID, args)
	case "submit":
		text, err = b.submit(ctx, userID, args)
	case "claim":
		text, err = b.claim(ctx, msg.From)
	case "withdraw":
		text, err = b.withdraw(ctx, msg.Chat.ID, userID, args)
	case "withdrawstatus":
		text, err = b.withdrawStatus(ctx, userID)
	case "streak":
		text, err = b.streak(ctx, userID)
	case "referral":
		text = fmt.Sprintf("📢 Share your referral link:\n%s\n\nEarn %s when your friends join!", b.referralLink(userID), b.cfg.TokenSymbol)
	case "balance":
		text, err = b.balance(ctx, msg.From)
	case "stats":
		text, err = b.stats(ctx, userID)
	case "leaderboard":
		text, err = b.leaderboard(ctx)
	case "help":
		text = b.helpText()
	case "getid":
		text = fmt.Sprintf("📡 This chat's ID is: %d", msg.Chat.ID)

	case "admin":
		text, err = b.adminTools(ctx, userID)
	case "walletbalance":
		text, err = b.walletBalance(ctx, userID)
	case "completetask":
		text, err = b.completeTask(ctx, userID, args)
	case "addtask":
		text, err = b.addTask(ctx, userID, args)
	case "removetask":
		text, err = b.removeTask(ctx, userID, args)
	case "adminstats":
		text, err = b.adminStats(ctx, userID)
	case "resolvewithdrawal":
		text, err = b.resolveWithdrawal(ctx, userID, args)

	default:
		return "🤔 Unknown command. Type /help to see what I can do."
	}

	if err != nil {
		if service.Kind(err) == "internal" || service.Kind(err) == "external_service" {
			log.Error("Command failed", zap.Error(err))
		} else {
			log.Debug("Command rejected", zap.String("kind", service.Kind(err)))
		}
		return b.errorText(err)
	}

	return text
}

// handleText treats a bare number as a pick from the last listed task page.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) string {
	index, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil {
		return ""
	}

	active, err := b.svc.SelectTask(ctx, msg.From.ID, index)
	if err != nil {
		switch service.Kind(err) {
		case "not_registered":
			return ""
		case "internal":
			b.logger.Error("Failed to select task", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		}
		return b.errorText(err)
	}

	return fmt.Sprintf("✅ You selected: %s\n\n%s", active.TaskName, proofNote(active.Requires))
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) string {
	// Telegram lists sizes ascending; the last one is the original.
	photo := msg.Photo[len(msg.Photo)-1]

	res, err := b.svc.SubmitScreenshot(ctx, msg.From.ID, photo.FileID)
	if err != nil {
		switch service.Kind(err) {
		case "not_registered":
			return ""
		case "internal":
			b.logger.Error("Failed to submit screenshot", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		}
		return b.errorText(err)
	}

	text := fmt.Sprintf("✅ Screenshot received for: %s", res.TaskName)
	if res.Credited && res.Reward > 0 {
		text += fmt.Sprintf("\n+%d %s 💰", res.Reward, b.cfg.TokenSymbol)
	}
	return text
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	ok, err := b.svc.IsAdmin(ctx, userID)
	if err != nil {
		b.logger.Warn("Failed to check admin", zap.Int64("telegram_id", userID), zap.Error(err))
		return false
	}
	return ok
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("Failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) referralLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", b.cfg.BotUsername, userID)
}

func proofNote(kind model.ProofKind) string {
	switch kind {
	case model.ProofUsername:
		return "📌 Please submit your username (e.g. /submit Twitter your_handle)"
	case model.ProofScreenshot:
		return "🖼️ Please upload a screenshot for verification."
	case model.ProofBoth:
		return "📌 Submit your username (e.g. /submit Twitter your_handle)\n🖼️ And upload a screenshot for verification."
	}
	return "📌 Please submit proof as required."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(time.DateOnly)
}
