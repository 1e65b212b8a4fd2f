package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/appeals"
	"councilbot/internal/mediagroup"
	"councilbot/internal/models"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	userID := message.From.ID

	switch state.Command {
	case convAppeal:
		b.handleAppealConversation(ctx, message, state)
	case convReply:
		b.handleReplyConversation(ctx, message, state)
	case convAddAchievement:
		b.handleAchievementConversation(ctx, message, state)
	}

	// Clean up completed conversations
	if state.Step == -1 {
		b.clearState(userID)
	}
}

// handleAppealConversation accepts the user's submission: free text, a single
// attachment of any supported kind, or the parts of a media album.
func (b *Bot) handleAppealConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	// Any group-id'd part goes to the aggregator, whatever its media kind;
	// the conversation stays open until the group finalizes (or the user
	// cancels).
	if message.MediaGroupID != "" {
		if att := attachmentFromMessage(message); att != nil {
			b.aggregator.Ingest(message.MediaGroupID,
				mediagroup.Submitter{
					UserID:    message.From.ID,
					ChatID:    message.Chat.ID,
					Username:  message.From.UserName,
					FirstName: message.From.FirstName,
				},
				mediagroup.Part{
					MessageID: message.MessageID,
					Kind:      string(att.Kind),
					FileID:    att.FileID,
					Caption:   message.Caption,
				},
			)
			return
		}
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	attachment := attachmentFromMessage(message)

	if text == "" && attachment == nil {
		b.replyWithMarkup(message.Chat.ID,
			"⛔️ Отправьте текст или медиа (фото, гифку, стикер, видео, документ).",
			cancelKeyboard())
		return
	}

	state.Step = -1 // Mark conversation as complete
	b.submitAppeal(ctx, appeals.Submitter{
		UserID:    message.From.ID,
		Username:  message.From.UserName,
		FirstName: message.From.FirstName,
	}, message.Chat.ID, text, attachment)
}

// handleReplyConversation records the admin's answer entered after /reply_XXXX.
func (b *Bot) handleReplyConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	appealID, _ := state.Data["appeal_id"].(string)
	state.Step = -1

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	b.answerAppeal(ctx, message.Chat.ID, appealID, models.Answer{
		Text:       text,
		Attachment: attachmentFromMessage(message),
	})
}

// handleAchievementConversation walks an admin through the achievement
// request form.
func (b *Bot) handleAchievementConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Step {
	case 1: // Waiting for student name
		state.Data["student_name"] = message.Text
		state.Step = 2
		b.replyWithMarkup(message.Chat.ID, "Выберите уровень образования.", educationLevelKeyboard())

	case 2: // Waiting for education level
		if message.Text != levelBachelor && message.Text != levelMaster {
			b.replyWithMarkup(message.Chat.ID,
				"⛔️ <b>Ошибка:</b> Пожалуйста, выберите уровень с помощью кнопок.",
				educationLevelKeyboard())
			return
		}
		state.Data["education_level"] = message.Text
		state.Step = 3
		b.replyWithMarkup(message.Chat.ID, "Выберите курс.", courseKeyboard(message.Text))

	case 3: // Waiting for course
		level, _ := state.Data["education_level"].(string)
		if !validCourse(level, message.Text) {
			b.replyWithMarkup(message.Chat.ID,
				"⛔️ <b>Ошибка:</b> Пожалуйста, выберите курс с помощью кнопок.",
				courseKeyboard(level))
			return
		}
		state.Data["course"] = message.Text
		state.Step = 4
		b.replyWithMarkup(message.Chat.ID,
			"Теперь опишите индивидуальное достижение (за что начисляются баллы).",
			tgbotapi.NewRemoveKeyboard(false))

	case 4: // Waiting for description
		state.Data["description"] = message.Text
		state.Step = 5
		b.reply(message.Chat.ID, "Введите количество баллов (целое число).")

	case 5: // Waiting for points
		points, err := strconv.Atoi(message.Text)
		if err != nil {
			// Malformed input: reprompt without advancing the conversation.
			b.reply(message.Chat.ID,
				"⛔️ <b>Ошибка:</b> Количество баллов должно быть целым числом. Попробуйте снова.")
			return
		}

		achievement := &models.Achievement{
			ReporterID:     message.From.ID,
			ReporterName:   displayName(message.From),
			ReporterRole:   b.roleName(message.From.ID),
			StudentName:    state.Data["student_name"].(string),
			EducationLevel: state.Data["education_level"].(string),
			Course:         state.Data["course"].(string),
			Description:    state.Data["description"].(string),
			Points:         points,
		}
		state.Step = -1
		b.createAchievement(ctx, message.Chat.ID, achievement)
	}
}

// createAchievement persists the request and notifies leadership with the
// decision keyboard. Per-recipient failures are logged and skipped.
func (b *Bot) createAchievement(ctx context.Context, chatID int64, achievement *models.Achievement) {
	achievement.Status = models.AchievementPending

	id, err := b.db.CreateAchievement(ctx, achievement)
	if err != nil {
		b.logger.Error("Failed to create achievement", zap.Error(err))
		b.replyWithMarkup(chatID, "❌ Не удалось сохранить заявку. Попробуйте позже.", mainMenuKeyboard())
		return
	}

	b.replyWithMarkup(chatID, achievementConfirmText(achievement), mainMenuKeyboard())

	notice := achievementNoticeText(achievement)
	for leaderID := range b.leadership {
		if b.api == nil {
			continue // For testing
		}
		msg := tgbotapi.NewMessage(leaderID, notice)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = achievementDecisionKeyboard(id)
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("Failed to notify leadership about achievement",
				zap.String("achievement_id", id),
				zap.Int64("leader_id", leaderID),
				zap.Error(err),
			)
		}
	}
}

func displayName(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}

// roleName labels the reporter for the leadership notice.
func (b *Bot) roleName(userID int64) string {
	if b.leadership[userID] {
		return "Руководство"
	}
	if b.admins[userID] {
		return "Админ"
	}
	return "Участник"
}
