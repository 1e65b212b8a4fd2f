package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/models"
	"councilbot/internal/storage"
)

// handleStart shows the welcome message and the main menu
func (b *Bot) handleStart(message *tgbotapi.Message) {
	b.clearState(message.From.ID)
	b.replyWithMarkup(message.Chat.ID, welcomeText, mainMenuKeyboard())
}

// handleStats renders the usage digest for the stats menu button
func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) {
	stats, err := b.db.ListUserStats(ctx)
	if err != nil {
		b.logger.Error("Failed to load user stats", zap.Error(err))
		b.replyWithMarkup(message.Chat.ID, "📊 Статистика временно недоступна", mainMenuKeyboard())
		return
	}
	b.replyWithMarkup(message.Chat.ID, statsSummaryText(stats, time.Now()), mainMenuKeyboard())
}

// handleAppealStart puts the user into the appeal submission conversation
func (b *Bot) handleAppealStart(message *tgbotapi.Message) {
	b.setState(message.From.ID, &ConversationState{
		Command: convAppeal,
		Step:    1,
		Data:    make(map[string]interface{}),
	})
	b.replyWithMarkup(message.Chat.ID, appealIntroText, cancelKeyboard())
}

// handleAppealsSummary handles /appeals for admins
func (b *Bot) handleAppealsSummary(ctx context.Context, message *tgbotapi.Message) {
	if !b.admins[message.From.ID] {
		return
	}

	all, err := b.db.ListAppeals(ctx)
	if err != nil {
		b.logger.Error("Failed to list appeals", zap.Error(err))
		b.reply(message.Chat.ID, "❌ Ошибка получения обращений")
		return
	}
	b.reply(message.Chat.ID, appealsSummaryText(all))
}

// handleViewAppeal handles /view_XXXX: the full appeal card, rendered with
// its media when present
func (b *Bot) handleViewAppeal(ctx context.Context, message *tgbotapi.Message, appealID string) {
	if !b.admins[message.From.ID] {
		return
	}

	appeal, err := b.db.GetAppeal(ctx, appealID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(message.Chat.ID, fmt.Sprintf("❌ Обращение #%s не найдено", appealID))
		} else {
			b.logger.Error("Failed to load appeal", zap.String("appeal_id", appealID), zap.Error(err))
			b.reply(message.Chat.ID, "❌ Ошибка получения обращения")
		}
		return
	}

	text := appealViewText(appeal)
	if appeal.Attachment == nil {
		b.reply(message.Chat.ID, text)
		return
	}

	if appeal.Attachment.Kind == models.MediaSticker {
		if _, err := b.SendAttachment(message.Chat.ID, *appeal.Attachment, ""); err != nil {
			b.logger.Error("Failed to send appeal media", zap.String("appeal_id", appealID), zap.Error(err))
		}
		b.reply(message.Chat.ID, text)
		return
	}
	if _, err := b.SendAttachment(message.Chat.ID, *appeal.Attachment, text); err != nil {
		b.logger.Error("Failed to send appeal media", zap.String("appeal_id", appealID), zap.Error(err))
		b.reply(message.Chat.ID, text)
	}
}

// handleReplyStart handles /reply_XXXX: starts the command-driven answer
// conversation for admins
func (b *Bot) handleReplyStart(ctx context.Context, message *tgbotapi.Message, appealID string) {
	if !b.admins[message.From.ID] {
		return
	}

	appeal, err := b.db.GetAppeal(ctx, appealID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(message.Chat.ID, fmt.Sprintf("❌ Обращение #%s не найдено", appealID))
		} else {
			b.logger.Error("Failed to load appeal", zap.String("appeal_id", appealID), zap.Error(err))
			b.reply(message.Chat.ID, "❌ Ошибка получения обращения")
		}
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: convReply,
		Step:    1,
		Data:    map[string]interface{}{"appeal_id": appealID},
	})

	text := fmt.Sprintf("💬 <b>Ответ на обращение #%s</b>\n\n", appealID)
	text += fmt.Sprintf("<b>Вопрос:</b>\n%s\n\n", orNoText(appeal.Text))
	if appeal.Attachment != nil {
		text += fmt.Sprintf("📎 <i>К вопросу прикреплено: %s</i>\n\n", mediaLabel(appeal.Attachment))
	}
	text += "Напишите ваш ответ.\n"
	text += "Вы можете отправить текст, фото, гифку, стикер или видео."

	b.replyWithMarkup(message.Chat.ID, text, cancelKeyboard())
}

// handleAddAchievementStart handles /add_achievement for admins
func (b *Bot) handleAddAchievementStart(message *tgbotapi.Message) {
	if !b.admins[message.From.ID] {
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: convAddAchievement,
		Step:    1,
		Data:    make(map[string]interface{}),
	})
	b.replyWithMarkup(message.Chat.ID,
		"📝 <b>Добавление индивидуального достижения</b>\n\n"+
			"Введите ФИО студента, которому вы хотите добавить индивидуальное достижение.",
		cancelKeyboard())
}

// handlePendingAchievements handles /pending_achievements for leadership
func (b *Bot) handlePendingAchievements(ctx context.Context, message *tgbotapi.Message) {
	if !b.leadership[message.From.ID] {
		return
	}

	pending, err := b.db.ListPendingAchievements(ctx)
	if err != nil {
		b.logger.Error("Failed to list pending achievements", zap.Error(err))
		b.reply(message.Chat.ID, "❌ Ошибка получения заявок")
		return
	}
	if len(pending) == 0 {
		b.reply(message.Chat.ID, "✅ Нет заявок на подтверждение индивидуальных достижений.")
		return
	}
	b.reply(message.Chat.ID, pendingAchievementsText(pending))
}
