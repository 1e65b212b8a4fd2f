package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/appeals"
	"councilbot/internal/mediagroup"
	"councilbot/internal/models"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "❌ Произошла ошибка. Попробуйте еще раз.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	b.touchStats(ctx, message)

	// An admin replying to a fan-out message answers that appeal directly,
	// regardless of any conversation they might be in.
	if b.admins[userID] && message.ReplyToMessage != nil {
		if b.handleAdminReply(ctx, message) {
			return
		}
	}

	// Check if user is in a conversation
	if state := b.getState(userID); state != nil {
		switch {
		case message.Text == buttonCancel:
			b.cancelConversation(userID, message.Chat.ID)
			return
		case message.IsCommand():
			// Any command interrupts an ongoing conversation
			b.clearState(userID)
		default:
			b.handleConversation(ctx, message, state)
			return
		}
	}

	// Handle commands
	if message.IsCommand() {
		cmd := message.Command()
		switch {
		case cmd == "start":
			b.handleStart(message)
		case cmd == "appeals":
			b.handleAppealsSummary(ctx, message)
		case cmd == "add_achievement":
			b.handleAddAchievementStart(message)
		case cmd == "pending_achievements":
			b.handlePendingAchievements(ctx, message)
		case strings.HasPrefix(cmd, "view_"):
			b.handleViewAppeal(ctx, message, strings.TrimPrefix(cmd, "view_"))
		case strings.HasPrefix(cmd, "reply_"):
			b.handleReplyStart(ctx, message, strings.TrimPrefix(cmd, "reply_"))
		case strings.HasPrefix(cmd, "approve_"):
			b.handleAchievementDecisionCommand(ctx, message, strings.TrimPrefix(cmd, "approve_"), models.AchievementApproved)
		case strings.HasPrefix(cmd, "reject_"):
			b.handleAchievementDecisionCommand(ctx, message, strings.TrimPrefix(cmd, "reject_"), models.AchievementRejected)
		default:
			b.replyWithMarkup(message.Chat.ID, "❓ Неизвестная команда. Используйте меню:", mainMenuKeyboard())
		}
		return
	}

	// Main menu buttons
	switch message.Text {
	case buttonNews:
		b.replyWithMarkup(message.Chat.ID, newsText, mainMenuKeyboard())
	case buttonAppeal:
		b.handleAppealStart(message)
	case buttonStats:
		b.handleStats(ctx, message)
	case buttonHelp:
		b.replyWithMarkup(message.Chat.ID, helpText(b.admins[userID]), mainMenuKeyboard())
	default:
		b.replyWithMarkup(message.Chat.ID, "❓ Неизвестная команда. Используйте меню:", mainMenuKeyboard())
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()

	data := query.Data
	switch {
	case strings.HasPrefix(data, "ach_approve_"):
		b.handleAchievementDecision(ctx, query, strings.TrimPrefix(data, "ach_approve_"), models.AchievementApproved)
	case strings.HasPrefix(data, "ach_reject_"):
		b.handleAchievementDecision(ctx, query, strings.TrimPrefix(data, "ach_reject_"), models.AchievementRejected)
	default:
		b.answerCallback(query.ID, "")
	}
}

// touchStats bumps the sender's activity record. Stats are best-effort and
// never block handling.
func (b *Bot) touchStats(ctx context.Context, message *tgbotapi.Message) {
	err := b.db.TouchUser(ctx, message.From.ID, message.From.UserName, message.From.FirstName, time.Now())
	if err != nil {
		b.logger.Warn("Failed to update user stats", zap.Int64("user_id", message.From.ID), zap.Error(err))
	}
}

// cancelConversation clears the user's state and purges any album parts the
// aggregator buffered for them, so an aborted submission never finalizes.
func (b *Bot) cancelConversation(userID, chatID int64) {
	state := b.getState(userID)
	b.clearState(userID)
	b.aggregator.Cancel(userID)

	text := "❌ Обращение отменено"
	if state != nil && state.Command != convAppeal {
		text = "❌ Действие отменено"
	}
	b.replyWithMarkup(chatID, text, mainMenuKeyboard())
}

// handleFinalizedAlbum receives completed albums from the aggregator and
// submits them as one appeal. Runs on the aggregator's timer goroutine.
func (b *Bot) handleFinalizedAlbum(album mediagroup.Album) {
	ctx := context.Background()

	// The submitter may have cancelled between the last part and the timer.
	if state := b.getState(album.Submitter.UserID); state == nil || state.Command != convAppeal {
		b.logger.Info("Dropping finalized album without active appeal conversation",
			zap.Int64("user_id", album.Submitter.UserID))
		return
	}
	b.clearState(album.Submitter.UserID)

	kinds := make([]models.MediaKind, len(album.Kinds))
	for i, k := range album.Kinds {
		kinds[i] = models.MediaKind(k)
	}
	attachment := &models.Attachment{Kind: models.MediaAlbum, FileIDs: album.FileIDs, FileKinds: kinds}
	submitter := appeals.Submitter{
		UserID:    album.Submitter.UserID,
		Username:  album.Submitter.Username,
		FirstName: album.Submitter.FirstName,
	}
	b.submitAppeal(ctx, submitter, album.Submitter.ChatID, album.Caption, attachment)
}

// submitAppeal creates the appeal, confirms to the submitter, and fans out to
// the admins. Fan-out failures never undo the created appeal.
func (b *Bot) submitAppeal(ctx context.Context, submitter appeals.Submitter, chatID int64, text string, attachment *models.Attachment) {
	appeal, err := b.appeals.Create(ctx, submitter, text, attachment)
	if err != nil {
		b.logger.Error("Failed to create appeal", zap.Error(err))
		b.replyWithMarkup(chatID, "❌ Не удалось сохранить обращение. Попробуйте позже.", mainMenuKeyboard())
		return
	}

	b.replyWithMarkup(chatID, appealConfirmText(appeal.ID), mainMenuKeyboard())
	b.appeals.FanOut(ctx, appeal, adminNoticeText(appeal))
}

// handleAdminReply resolves a reply-to-message from an admin back to the
// appeal it concerns and answers it. Returns false when the replied-to
// message is not an appeal fan-out, so the message falls through to normal
// handling.
func (b *Bot) handleAdminReply(ctx context.Context, message *tgbotapi.Message) bool {
	appeal, err := b.appeals.ResolveByReply(ctx, message.From.ID, message.ReplyToMessage.MessageID)
	if err != nil {
		b.logger.Error("Failed to resolve reply", zap.Error(err))
		b.reply(message.Chat.ID, "❌ Ошибка отправки ответа")
		return true
	}
	if appeal == nil {
		return false
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	b.answerAppeal(ctx, message.Chat.ID, appeal.ID, models.Answer{
		Text:       text,
		Attachment: attachmentFromMessage(message),
	})
	return true
}

// answerAppeal persists the answer and relays it to the submitter.
func (b *Bot) answerAppeal(ctx context.Context, adminChatID int64, appealID string, answer models.Answer) {
	appeal, err := b.appeals.Answer(ctx, appealID, answer)
	if err != nil {
		b.logger.Error("Failed to answer appeal", zap.String("appeal_id", appealID), zap.Error(err))
		b.reply(adminChatID, "❌ Обращение #"+appealID+" не найдено")
		return
	}

	b.relayAnswer(appeal, answer)
	b.reply(adminChatID, "✅ <b>Ответ на обращение #"+appealID+" отправлен!</b>")
}

// relayAnswer delivers the recorded answer to the original submitter.
// Delivery is best-effort: the appeal stays answered even if the user is
// unreachable.
func (b *Bot) relayAnswer(appeal *models.Appeal, answer models.Answer) {
	text := answerRelayText(appeal, answer.Text)

	var err error
	switch {
	case answer.Attachment == nil:
		_, err = b.SendText(appeal.UserID, text)
	case answer.Attachment.Kind == models.MediaSticker:
		if _, err = b.SendAttachment(appeal.UserID, *answer.Attachment, ""); err == nil {
			_, err = b.SendText(appeal.UserID, text)
		}
	default:
		_, err = b.SendAttachment(appeal.UserID, *answer.Attachment, text)
	}
	if err != nil {
		b.logger.Error("Failed to relay answer to submitter",
			zap.String("appeal_id", appeal.ID),
			zap.Int64("user_id", appeal.UserID),
			zap.Error(err),
		)
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if b.api == nil {
		return // For testing
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn("Failed to answer callback query", zap.Error(err))
	}
}

func (b *Bot) getState(userID int64) *ConversationState {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	return b.states[userID]
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}
