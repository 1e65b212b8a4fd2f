package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/models"
	"councilbot/internal/storage"
)

// handleAchievementDecision processes an approve/reject button click from a
// leadership member. A request is decided at most once: repeated clicks and
// clicks on already-decided requests only edit the card.
func (b *Bot) handleAchievementDecision(ctx context.Context, query *tgbotapi.CallbackQuery, achievementID string, decision models.AchievementStatus) {
	if !b.leadership[query.From.ID] {
		b.answerCallbackAlert(query.ID, "У вас нет прав для этого действия.")
		return
	}

	achievement, err := b.db.GetAchievement(ctx, achievementID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.logger.Error("Failed to load achievement", zap.String("achievement_id", achievementID), zap.Error(err))
		b.answerCallback(query.ID, "")
		return
	}
	if achievement == nil || achievement.Status != models.AchievementPending {
		b.editCallbackMessage(query, "<i>Заявка не найдена или уже была обработана.</i>")
		b.answerCallback(query.ID, "")
		return
	}

	approverName := displayName(query.From)
	decidedAt := time.Now()
	if err := b.db.SetAchievementStatus(ctx, achievementID, decision, query.From.ID, approverName, decidedAt); err != nil {
		b.logger.Error("Failed to record achievement decision",
			zap.String("achievement_id", achievementID),
			zap.Error(err),
		)
		b.answerCallback(query.ID, "")
		return
	}
	achievement.Status = decision
	achievement.ApproverID = query.From.ID
	achievement.ApproverName = approverName
	achievement.DecidedAt = &decidedAt

	b.logger.Info("Achievement decided",
		zap.String("achievement_id", achievementID),
		zap.String("status", string(decision)),
		zap.Int64("approver_id", query.From.ID),
	)

	// Stamp the decision onto the notice card so other leadership members see
	// it is taken.
	if query.Message != nil && !strings.Contains(query.Message.Text, "\n\n--- ") {
		b.editCallbackMessage(query,
			query.Message.Text+"\n\n--- <b>"+achievementDecisionLabel(decision)+"</b> пользователем "+approverName+" ---")
	}

	if _, err := b.SendText(achievement.ReporterID, achievementReporterNoticeText(achievement)); err != nil {
		b.logger.Error("Failed to notify achievement reporter",
			zap.String("achievement_id", achievementID),
			zap.Int64("reporter_id", achievement.ReporterID),
			zap.Error(err),
		)
	}

	label := "отклонена"
	if decision == models.AchievementApproved {
		label = "одобрена"
	}
	b.answerCallback(query.ID, "Заявка была "+label)
}

// handleAchievementDecisionCommand is the /approve_XXXX and /reject_XXXX
// text-command path to the same decision flow.
func (b *Bot) handleAchievementDecisionCommand(ctx context.Context, message *tgbotapi.Message, achievementID string, decision models.AchievementStatus) {
	if !b.leadership[message.From.ID] {
		return
	}

	achievement, err := b.db.GetAchievement(ctx, achievementID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.logger.Error("Failed to load achievement", zap.String("achievement_id", achievementID), zap.Error(err))
		b.reply(message.Chat.ID, "❌ Ошибка обработки заявки")
		return
	}
	if achievement == nil || achievement.Status != models.AchievementPending {
		b.reply(message.Chat.ID, "<i>Заявка не найдена или уже была обработана.</i>")
		return
	}

	approverName := displayName(message.From)
	decidedAt := time.Now()
	if err := b.db.SetAchievementStatus(ctx, achievementID, decision, message.From.ID, approverName, decidedAt); err != nil {
		b.logger.Error("Failed to record achievement decision",
			zap.String("achievement_id", achievementID),
			zap.Error(err),
		)
		b.reply(message.Chat.ID, "❌ Ошибка обработки заявки")
		return
	}
	achievement.Status = decision
	achievement.ApproverName = approverName

	if _, err := b.SendText(achievement.ReporterID, achievementReporterNoticeText(achievement)); err != nil {
		b.logger.Error("Failed to notify achievement reporter",
			zap.String("achievement_id", achievementID),
			zap.Int64("reporter_id", achievement.ReporterID),
			zap.Error(err),
		)
	}

	b.reply(message.Chat.ID, "<b>"+achievementDecisionLabel(decision)+"</b>: заявка #"+achievementID)
}

// editCallbackMessage replaces the text of the message carrying the inline
// keyboard and drops the keyboard.
func (b *Bot) editCallbackMessage(query *tgbotapi.CallbackQuery, text string) {
	if b.api == nil || query.Message == nil {
		return // For testing
	}
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("Failed to edit callback message", zap.Error(err))
	}
}

func (b *Bot) answerCallbackAlert(callbackID, text string) {
	if b.api == nil {
		return // For testing
	}
	callback := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Warn("Failed to answer callback query", zap.Error(err))
	}
}
