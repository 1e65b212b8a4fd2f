package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Main menu button labels. These double as routing keys in handleMessage.
const (
	buttonNews   = "📰 Новость"
	buttonAppeal = "💬 Анонимное обращение"
	buttonStats  = "📊 Статистика"
	buttonHelp   = "ℹ️ Помощь"
	buttonCancel = "❌ Отменить"

	levelBachelor = "Бакалавриат"
	levelMaster   = "Магистратура"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonNews)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonAppeal)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonStats)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonHelp)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonCancel)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func educationLevelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(levelBachelor),
			tgbotapi.NewKeyboardButton(levelMaster),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func courseKeyboard(educationLevel string) tgbotapi.ReplyKeyboardMarkup {
	count := 4
	if educationLevel == levelMaster {
		count = 2
	}
	var row []tgbotapi.KeyboardButton
	for i := 1; i <= count; i++ {
		row = append(row, tgbotapi.NewKeyboardButton(fmt.Sprintf("%d", i)))
	}
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(row...))
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// validCourse reports whether the course fits the education level.
func validCourse(educationLevel, course string) bool {
	switch educationLevel {
	case levelBachelor:
		return course == "1" || course == "2" || course == "3" || course == "4"
	case levelMaster:
		return course == "1" || course == "2"
	}
	return false
}

func achievementDecisionKeyboard(achievementID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", "ach_approve_"+achievementID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", "ach_reject_"+achievementID),
		),
	)
}
