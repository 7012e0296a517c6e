package bot

import (
	"errors"
	"fmt"
	"strings"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/service"
)

// errorText renders err for the chat. Unknown errors never leak their text.
func (b *Bot) errorText(err error) string {
	switch service.Kind(err) {
	case "not_registered":
		return "❌ You are not registered. Use /start first."
	case "not_admin":
		return "❌ You are not authorized to use this command."
	case "invalid_address":
		return "❌ Invalid wallet address."
	case "invalid_field":
		return "❗ " + strings.TrimPrefix(err.Error(), service.ErrInvalidField.Error()+": ")
	case "already_claimed_today":
		return "⏳ You already claimed your daily reward today. Come back tomorrow!"
	case "cooldown_active":
		var cooldown *service.CooldownActiveError
		if errors.As(err, &cooldown) {
			return fmt.Sprintf("⏳ Please wait %s before your next withdrawal.", formatDuration(cooldown.Remaining))
		}
		return "⏳ Please wait before your next withdrawal."
	case "below_minimum":
		return fmt.Sprintf("⚠️ You need at least %d %s to withdraw.", b.rules.MinWithdrawAmount, b.cfg.TokenSymbol)
	case "withdrawal_in_progress":
		return "⏳ A withdrawal is already in progress. Please wait for it to finish."
	case "withdrawal_pending_review":
		return "🕵️ Your previous withdrawal is being reviewed. An admin will resolve it shortly."
	case "transfer_failed":
		return fmt.Sprintf("❌ Failed to send %s. Your balance was not charged. Please try again later.", b.cfg.TokenSymbol)
	case "indeterminate_settlement":
		return "⚠️ We could not confirm your withdrawal. It has been flagged for review and your balance is on hold until an admin resolves it."
	case "invalid_selection":
		return "❗ Invalid task number. Please use /task again to see options."
	case "no_active_task":
		return "⚠️ You must select a task first using /task."
	case "already_completed":
		return "⚠️ This task has already been completed."
	case "unsupported_platform":
		return "❗ Supported platforms: " + supportedPlatforms()
	case "no_submitted_handle":
		return "⚠️ User has not submitted a username for that platform yet."
	case "user_not_found":
		return "❌ User not found."
	case "task_not_found":
		return "⚠️ No task found with that name."
	case "not_pending_review":
		return "⚠️ That user has no withdrawal pending review."
	}
	return "⚠️ Something went wrong. Please try again later."
}

func supportedPlatforms() string {
	names := make([]string, len(model.Platforms))
	for i, p := range model.Platforms {
		names[i] = model.PlatformName(p)
	}
	return strings.Join(names, ", ")
}
