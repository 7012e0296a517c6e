package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (b *Bot) start(ctx context.Context, from *tgbotapi.User, payload string) (string, error) {
	res, err := b.svc.Start(ctx, from.ID, displayName(from), payload)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if res.Referred {
		fmt.Fprintf(&sb, "🎉 You joined via referral! +%d %s\n\n", b.rules.ReferralBonusNew, b.cfg.TokenSymbol)
	}
	fmt.Fprintf(&sb, "✅ Welcome aboard!\n\n"+
		"🆘 Getting Started\n"+
		"1️⃣ Use /task to view and complete tasks\n"+
		"2️⃣ Use /submit to submit proof\n"+
		"3️⃣ Use /claim daily to get rewards\n"+
		"4️⃣ Use /withdraw to withdraw your %s\n"+
		"5️⃣ Use /referral to invite friends and earn more!", b.cfg.TokenSymbol)

	return sb.String(), nil
}

func (b *Bot) tasks(ctx context.Context, userID int64, args string) (string, error) {
	page := 1
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 {
			return "❗ Usage: /task [page]", nil
		}
		page = n
	}

	res, err := b.svc.ListTasks(ctx, userID, page)
	if err != nil {
		return "", err
	}

	if res.Total == 0 {
		return "✅ You've completed all active tasks! Check back later for more.", nil
	}
	if len(res.Options) == 0 {
		return fmt.Sprintf("⚠️ No tasks found on page %d. Try /task 1.", page), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 Available Tasks (Page %d):\n\n", res.Page)
	for _, opt := range res.Options {
		fmt.Fprintf(&sb, "%d. %s - %d %s\n", opt.Index, opt.Name, opt.Reward, b.cfg.TokenSymbol)
		fmt.Fprintf(&sb, "   🔎 Requires: %s\n", opt.Requires)
		if opt.Details != "" {
			fmt.Fprintf(&sb, "   🔗 %s\n", opt.Details)
		}
	}
	sb.WriteString("\n👉 Reply with the task number to select it.")
	if res.HasMore {
		fmt.Fprintf(&sb, "\n➡️ More tasks: /task %d", res.Page+1)
	}

	return sb.String(), nil
}

func (b *Bot) submit(ctx context.Context, userID int64, args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "❗ Usage: /submit [Twitter|Instagram|YouTube] [your_username]", nil
	}

	res, err := b.svc.SubmitUsername(ctx, userID, parts[0], parts[1])
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("✅ Your %s username %q has been saved.\nAn admin will verify your submission soon.", res.Platform, res.Username)
	if res.Overwritten {
		text = fmt.Sprintf("⚠️ This replaced your previous %s username %q.\n\n", res.Platform, res.Previous) + text
	}
	return text, nil
}

func (b *Bot) claim(ctx context.Context, from *tgbotapi.User) (string, error) {
	res, err := b.svc.Claim(ctx, from.ID, displayName(from))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Daily reward claimed!\n+%d %s 💰\n🔥 Streak: %d day(s)", res.Reward, b.cfg.TokenSymbol, res.Streak), nil
}

func (b *Bot) withdraw(ctx context.Context, chatID, userID int64, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return "❗ Usage: /withdraw [your_wallet_address]", nil
	}

	b.reply(chatID, "⏳ Processing your withdrawal...")

	res, err := b.svc.Withdraw(ctx, userID, fields[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Withdrawal successful!\n💸 %d %s sent\nTX Hash: %s", res.Amount, b.cfg.TokenSymbol, res.TxHash), nil
}

func (b *Bot) withdrawStatus(ctx context.Context, userID int64) (string, error) {
	status, err := b.svc.WithdrawalStatus(ctx, userID)
	if err != nil {
		return "", err
	}

	switch {
	case status.State == model.WithdrawalInFlight:
		return "⏳ Your withdrawal is being processed.", nil
	case status.State == model.WithdrawalPendingReview:
		return b.errorText(service.ErrWithdrawalPendingReview), nil
	case status.LastAt == nil:
		return "✅ You have not withdrawn yet. You're eligible to withdraw!", nil
	case status.Eligible:
		return "✅ Your cooldown has expired. You can withdraw again now!", nil
	}
	return fmt.Sprintf("⏳ You already withdrew recently.\nPlease wait %s before withdrawing again.", formatDuration(status.Remaining)), nil
}

func (b *Bot) streak(ctx context.Context, userID int64) (string, error) {
	acc, err := b.svc.GetAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🔥 Your current daily claim streak: %d day(s)\n📆 Last claim: %s", acc.Streak, formatDate(acc.LastClaimDate)), nil
}

func (b *Bot) balance(ctx context.Context, from *tgbotapi.User) (string, error) {
	acc, created, err := b.svc.Register(ctx, from.ID, displayName(from))
	if err != nil {
		return "", err
	}
	if created {
		return fmt.Sprintf("👤 You've been registered! Your balance is 0 %s.", b.cfg.TokenSymbol), nil
	}
	return fmt.Sprintf("💰 Your balance: %d %s", acc.Balance, b.cfg.TokenSymbol), nil
}

func (b *Bot) stats(ctx context.Context, userID int64) (string, error) {
	acc, err := b.svc.GetAccount(ctx, userID)
	if err != nil {
		return "", err
	}

	withdrawn := "❌ No"
	if acc.HasWithdrawn() {
		withdrawn = "✅ Yes"
	}

	return fmt.Sprintf("📊 Your Stats:\n\n"+
		"💰 Balance: %d %s\n"+
		"✅ Tasks Completed: %d\n"+
		"🔥 Claim Streak: %d day(s)\n"+
		"📆 Last Claim: %s\n"+
		"🤝 Referrals: %d\n"+
		"🚀 Withdrawn: %s",
		acc.Balance, b.cfg.TokenSymbol, acc.TasksCompleted, acc.Streak, formatDate(acc.LastClaimDate), acc.Referrals, withdrawn), nil
}

func (b *Bot) leaderboard(ctx context.Context) (string, error) {
	entries, err := b.svc.GetLeaderboard(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "📉 No leaderboard data available yet.", nil
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("🏆 Top Earners:\n\n")
	for i, e := range entries {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := e.Username
		if name == "" {
			name = strconv.FormatInt(e.TelegramID, 10)
		}
		fmt.Fprintf(&sb, "%s %s - %d %s\n", rank, name, e.Balance, b.cfg.TokenSymbol)
	}
	return sb.String(), nil
}

func (b *Bot) helpText() string {
	return "🆘 How to Use This Bot\n\n" +
		"🪙 Earn " + b.cfg.TokenSymbol + ":\n" +
		"- Type /task to view available social tasks\n" +
		"- Complete the task and submit proof (username or screenshot)\n\n" +
		"📌 Commands You Can Use:\n" +
		"/task - See available tasks\n" +
		"/submit - Submit your username\n" +
		"/claim - Claim your daily reward\n" +
		"/balance - Check your token balance\n" +
		"/withdraw - Send your tokens to your wallet\n" +
		"/withdrawstatus - Check when you can withdraw\n" +
		"/referral - Get your referral link\n" +
		"/streak - View your claim streak\n" +
		"/stats - View your progress\n" +
		"/leaderboard - View top earners\n" +
		"/getid - View your Telegram ID"
}

func (b *Bot) adminTools(ctx context.Context, userID int64) (string, error) {
	if !b.isAdmin(ctx, userID) {
		return "", service.ErrNotAdmin
	}
	return "🛠️ Admin Tools:\n\n" +
		"/addtask Task Name | Reward | Status | Requires | Details\n" +
		"/removetask Task Name\n" +
		"/completetask user_id platform\n" +
		"/resolvewithdrawal user_id settled|failed [tx_hash]\n" +
		"/adminstats\n" +
		"/walletbalance\n" +
		"/leaderboard\n" +
		"/getid", nil
}

func (b *Bot) walletBalance(ctx context.Context, userID int64) (string, error) {
	wallet, err := b.svc.WalletBalance(ctx, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("💰 Bot Wallet Balance:\n%s %s\n👛 %s", wallet.Balance.StringFixed(2), b.cfg.TokenSymbol, wallet.Address), nil
}

func (b *Bot) completeTask(ctx context.Context, userID int64, args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		if !b.isAdmin(ctx, userID) {
			return "", service.ErrNotAdmin
		}
		return "❗ Usage: /completetask [telegram_user_id] [Twitter|Instagram|YouTube]", nil
	}

	targetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		if !b.isAdmin(ctx, userID) {
			return "", service.ErrNotAdmin
		}
		return "❗ User id must be a number.", nil
	}

	res, err := b.svc.CompleteTask(ctx, userID, targetID, parts[1])
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("✅ Task %q marked as completed for user %d (%s).\n+%d %s credited.",
		res.TaskName, res.TelegramID, res.Handle, res.Reward, b.cfg.TokenSymbol), nil
}

func (b *Bot) addTask(ctx context.Context, userID int64, args string) (string, error) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 4 || parts[0] == "" {
		if !b.isAdmin(ctx, userID) {
			return "", service.ErrNotAdmin
		}
		return "❗ Usage: /addtask Task Name | Reward | Status | Requires | Details", nil
	}

	reward, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: reward must be a number", service.ErrInvalidField)
	}

	in := service.NewTask{
		Name:     parts[0],
		Reward:   reward,
		Status:   parts[2],
		Requires: parts[3],
	}
	if len(parts) > 4 {
		in.Details = strings.Join(parts[4:], "|")
	}

	task, err := b.svc.AddTask(ctx, userID, in)
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("✅ Task %q added with %d %s [%s] (Requires: %s)", task.Name, task.Reward, b.cfg.TokenSymbol, task.Status, task.Requires)
	if task.Details != "" {
		text += "\n🔗 Details: " + task.Details
	}
	return text, nil
}

func (b *Bot) removeTask(ctx context.Context, userID int64, args string) (string, error) {
	if args == "" {
		if !b.isAdmin(ctx, userID) {
			return "", service.ErrNotAdmin
		}
		return "❗ Usage: /removetask Task Name", nil
	}

	deleted, err := b.svc.RemoveTask(ctx, userID, args)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return fmt.Sprintf("⚠️ No task found with name: %q", args), nil
		}
		return "", err
	}
	return fmt.Sprintf("✅ Removed %d task(s) named %q.", deleted, args), nil
}

func (b *Bot) adminStats(ctx context.Context, userID int64) (string, error) {
	stats, err := b.svc.AdminStats(ctx, userID)
	if err != nil {
		return "", err
	}

	top := "none"
	if stats.TopUser != nil {
		top = fmt.Sprintf("%d with %d %s", stats.TopUser.TelegramID, stats.TopUser.Balance, b.cfg.TokenSymbol)
	}

	return fmt.Sprintf("📊 Admin Stats\n\n"+
		"👥 Total Users: %d\n"+
		"💰 Total Balance: %d\n"+
		"📤 Total Withdrawals: %d\n"+
		"✅ Total Tasks Completed: %d\n"+
		"📅 Today's Active Users: %d\n"+
		"🥇 Top Earner: %s",
		stats.TotalUsers, stats.TotalBalance, stats.TotalWithdrawals, stats.TotalTasksCompleted, stats.DailyActiveUsers, top), nil
}

func (b *Bot) resolveWithdrawal(ctx context.Context, userID int64, args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 || len(parts) > 3 {
		if !b.isAdmin(ctx, userID) {
			return "", service.ErrNotAdmin
		}
		return "❗ Usage: /resolvewithdrawal [telegram_user_id] settled|failed [tx_hash]", nil
	}

	targetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: user id must be a number", service.ErrInvalidField)
	}

	var txHash string
	if len(parts) == 3 {
		txHash = parts[2]
	}

	acc, err := b.svc.ResolveWithdrawal(ctx, userID, targetID, parts[1], txHash)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Withdrawal for user %d resolved as %s. Balance now %d %s.", targetID, strings.ToLower(parts[1]), acc.Balance, b.cfg.TokenSymbol), nil
}
