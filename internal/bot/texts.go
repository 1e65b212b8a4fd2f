package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"councilbot/internal/models"
)

// newsText is the current static bulletin shown by the news button.
const newsText = `📰 <b>НОВОСТЬ ОТ СТУДСОВЕТА ФГУ!</b>

🎉 <i>С Новым 2026 годом!</i>

Дорогие студенты!

Студсовет поздравляет вас с наступающим Новым годом!
Желаем успехов в учебе, ярких впечатлений и новых достижений!

📅 <i>Каникулы: 28 декабря - 12 января</i>
📚 <i>Расписание на январь - на сайте ФГУ</i>

#студсовет #ФГУ #новости`

const welcomeText = `👋 <b>Студсовет ФГУ</b>

📰 <i>Новости студсовета</i>
💬 <i>Анонимные обращения</i>
📊 <i>Статистика бота</i>`

const appealIntroText = `💬 <b>Анонимное обращение</b>

Напишите ваш вопрос или обращение.
Вы можете отправить:
• 📝 Текст
• 📷 Фото (можно несколько)
• 🎬 Гифку
• 🎭 Стикер
• 🎥 Видео
• 📄 Документ

Сообщение будет отправлено студсовету анонимно.

<i>Для отмены нажмите кнопку ниже</i>`

const noText = "<i>без текста</i>"

func orNoText(s string) string {
	if s == "" {
		return noText
	}
	return s
}

func helpText(isAdmin bool) string {
	text := `<b>📖 Меню студсовета ФГУ</b>

• 📰 <i>Новость</i> — свежие новости
• 💬 <i>Анонимное обращение</i> — задать вопрос
• 📊 <i>Статистика</i> — данные о боте
• /start — главное меню

👨‍💻 <i>Студсовет ФГУ</i>`

	if isAdmin {
		text += "\n\n<b>🔐 Команды админа:</b>\n"
		text += "• /appeals — список обращений\n"
		text += "• /view_XXXX — просмотр\n"
		text += "• /reply_XXXX — ответить\n"
		text += "• /add_achievement — индивидуальное достижение"
	}
	return text
}

func appealConfirmText(id string) string {
	return fmt.Sprintf(`✅ <b>Обращение #%s отправлено!</b>

Студсовет получит ваше сообщение анонимно.
Ответ придет в этот чат.`, id)
}

// adminNoticeText is the fan-out message admins receive for a new appeal.
func adminNoticeText(appeal *models.Appeal) string {
	return fmt.Sprintf(`📬 <b>Новое анонимное обращение #%s</b>

📝 <b>Текст:</b>
%s

━━━━━━━━━━━━━━━━
<i>Дата: %s</i>

Ответьте на это сообщение или используйте:
/reply_%s`,
		appeal.ID,
		orNoText(appeal.Text),
		appeal.CreatedAt.Format("02.01.2006 15:04"),
		appeal.ID,
	)
}

// answerRelayText is the message the submitter receives once answered.
func answerRelayText(appeal *models.Appeal, answerText string) string {
	return fmt.Sprintf(`💬 <b>Ответ от студсовета ФГУ</b>
<b>Заявление #%s</b>

<b>Ваш вопрос:</b>
%s

<b>Ответ:</b>
%s

━━━━━━━━━━━━━━━━
<i>Если у вас есть еще вопросы, используйте кнопку "💬 Анонимное обращение"</i>`,
		appeal.ID,
		orNoText(appeal.Text),
		orNoText(answerText),
	)
}

func mediaLabel(att *models.Attachment) string {
	if att == nil {
		return ""
	}
	if att.Kind == models.MediaAlbum {
		return fmt.Sprintf("альбом (%d фото)", len(att.FileIDs))
	}
	return string(att.Kind)
}

// appealViewText renders the full appeal card for /view_XXXX.
func appealViewText(appeal *models.Appeal) string {
	statusEmoji := "📥"
	if appeal.Status == models.AppealAnswered {
		statusEmoji = "✅"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>Обращение #%s</b>\n\n👤 <b>От:</b> %s", statusEmoji, appeal.ID, appeal.FirstName)
	if appeal.Username != "" {
		fmt.Fprintf(&sb, " (@%s)", appeal.Username)
	}
	fmt.Fprintf(&sb, "\n\n📝 <b>Текст:</b>\n%s", orNoText(appeal.Text))
	if appeal.Attachment != nil {
		fmt.Fprintf(&sb, "\n📎 <b>Медиа:</b> %s", mediaLabel(appeal.Attachment))
	}
	fmt.Fprintf(&sb, "\n\n📅 <b>Дата:</b> %s\n📊 <b>Статус:</b> %s",
		appeal.CreatedAt.Format("02.01.2006 15:04"), appeal.Status)

	if appeal.Status == models.AppealAnswered && appeal.Answer != nil {
		fmt.Fprintf(&sb, "\n\n💬 <b>Ответ:</b>\n%s", orNoText(appeal.Answer.Text))
		if appeal.Answer.Attachment != nil {
			fmt.Fprintf(&sb, "\n📎 <b>Ответ медиа:</b> %s", mediaLabel(appeal.Answer.Attachment))
		}
		if appeal.AnsweredAt != nil {
			fmt.Fprintf(&sb, "\n\n🕐 <b>Отвечено:</b> %s", appeal.AnsweredAt.Format("02.01.2006 15:04"))
		}
	} else {
		fmt.Fprintf(&sb, "\n\n<b>Ответить:</b> /reply_%s", appeal.ID)
	}
	return sb.String()
}

// appealsSummaryText renders the /appeals digest: counts plus up to five of
// the newest unanswered appeals.
func appealsSummaryText(all []models.Appeal) string {
	var newAppeals []models.Appeal
	answered := 0
	for _, a := range all {
		switch a.Status {
		case models.AppealNew:
			newAppeals = append(newAppeals, a)
		case models.AppealAnswered:
			answered++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<b>📬 Обращения</b>

📥 Новых: <b>%d</b>
✅ Отвеченных: <b>%d</b>
📊 Всего: <b>%d</b>`, len(newAppeals), answered, len(all))

	if len(newAppeals) == 0 {
		return sb.String()
	}

	sort.Slice(newAppeals, func(i, j int) bool {
		return newAppeals[i].CreatedAt.After(newAppeals[j].CreatedAt)
	})
	if len(newAppeals) > 5 {
		newAppeals = newAppeals[:5]
	}

	sb.WriteString("\n\n<b>Новые обращения:</b>")
	for _, a := range newAppeals {
		preview := a.Text
		if len([]rune(preview)) > 50 {
			preview = string([]rune(preview)[:50]) + "..."
		}
		mediaInfo := ""
		if a.Attachment != nil {
			if a.Attachment.Kind == models.MediaAlbum {
				mediaInfo = fmt.Sprintf(" 📷×%d", len(a.Attachment.FileIDs))
			} else {
				mediaInfo = " 📎"
			}
		}
		fmt.Fprintf(&sb, "\n\n<b>#%s</b>%s от %s", a.ID, mediaInfo, a.FirstName)
		fmt.Fprintf(&sb, "\n<i>%s</i>", orNoText(preview))
		fmt.Fprintf(&sb, "\n/view_%s /reply_%s", a.ID, a.ID)
	}
	return sb.String()
}

// statsSummaryText renders the bot usage digest.
func statsSummaryText(stats []models.UserStat, now time.Time) string {
	totalMessages := 0
	activeUsers := 0
	for _, u := range stats {
		totalMessages += u.MessageCount
		if now.Sub(u.LastSeen) <= 7*24*time.Hour {
			activeUsers++
		}
	}

	top := make([]models.UserStat, len(stats))
	copy(top, stats)
	sort.Slice(top, func(i, j int) bool { return top[i].MessageCount > top[j].MessageCount })
	if len(top) > 5 {
		top = top[:5]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<b>📊 Статистика бота</b>

👥 Всего пользователей: <b>%d</b>
💬 Всего сообщений: <b>%d</b>
🔥 Активных за неделю: <b>%d</b>

<b>🏆 Топ-5 активных:</b>`, len(stats), totalMessages, activeUsers)

	for i, u := range top {
		username := ""
		if u.Username != "" {
			username = "@" + u.Username + " "
		}
		fmt.Fprintf(&sb, "\n%d. <b>%s</b> %s— %d сообщений", i+1, u.FirstName, username, u.MessageCount)
	}
	return sb.String()
}

// achievementNoticeText is the request card sent to leadership for decision.
func achievementNoticeText(a *models.Achievement) string {
	return fmt.Sprintf(`🔔 <b>Новая заявка на индивидуальное достижение!</b>

От: <b>%s (%s)</b>
Студент: <b>%s</b>
Уровень образования: <b>%s</b>
Курс: <b>%s</b>
Описание: <b>%s</b>
Баллы: <b>%d</b>`,
		a.ReporterName, a.ReporterRole, a.StudentName, a.EducationLevel,
		a.Course, a.Description, a.Points,
	)
}

func achievementConfirmText(a *models.Achievement) string {
	return fmt.Sprintf(`✅ <b>Заявка на добавление индивидуального достижения создана!</b>

Студент: <b>%s</b>
Уровень образования: <b>%s</b>
Курс: <b>%s</b>
Описание: <b>%s</b>
Баллы: <b>%d</b>

Она отправлена на подтверждение руководству.`,
		a.StudentName, a.EducationLevel, a.Course, a.Description, a.Points,
	)
}

func pendingAchievementsText(pending []models.Achievement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⏳ <b>Заявки на подтверждение (%d):</b>\n", len(pending))
	for _, a := range pending {
		fmt.Fprintf(&sb, `
--------------------
Студент: <b>%s (%s, %s курс)</b>
Баллы: <b>%d</b> (%s)
Добавил: %s (%s)
/approve_%s /reject_%s`,
			a.StudentName, a.EducationLevel, a.Course,
			a.Points, a.Description,
			a.ReporterName, a.ReporterRole,
			a.ID, a.ID,
		)
	}
	return sb.String()
}

func achievementDecisionLabel(status models.AchievementStatus) string {
	if status == models.AchievementApproved {
		return "✅ Одобрена"
	}
	return "❌ Отклонена"
}

func achievementReporterNoticeText(a *models.Achievement) string {
	return fmt.Sprintf(`🔔 <b>Ваша заявка на индивидуальное достижение была обработана.</b>

Студент: <b>%s</b>
Статус: <b>%s</b>
Обработал: <b>%s</b>`,
		a.StudentName, achievementDecisionLabel(a.Status), a.ApproverName,
	)
}
