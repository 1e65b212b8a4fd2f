package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/models"
)

// The Bot implements appeals.Gateway on top of the Telegram API. All sends use
// HTML parse mode; each returns the id of the produced message so the appeal
// service can record it for reply resolution.

// SendText sends a plain HTML text message.
func (b *Bot) SendText(chatID int64, text string) (int, error) {
	if b.api == nil {
		return 0, nil // unit tests run without a live API
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// SendAttachment delivers a media payload via the send operation matching its
// kind. Albums go out as one media group with the caption on the first item;
// the first message's id is returned as the reply anchor.
func (b *Bot) SendAttachment(chatID int64, attachment models.Attachment, caption string) (int, error) {
	if b.api == nil {
		return 0, nil
	}

	var cfg tgbotapi.Chattable
	switch attachment.Kind {
	case models.MediaPhoto:
		c := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(attachment.FileID))
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case models.MediaSticker:
		cfg = tgbotapi.NewSticker(chatID, tgbotapi.FileID(attachment.FileID))
	case models.MediaAnimation:
		c := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(attachment.FileID))
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case models.MediaVideo:
		c := tgbotapi.NewVideo(chatID, tgbotapi.FileID(attachment.FileID))
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case models.MediaDocument:
		c := tgbotapi.NewDocument(chatID, tgbotapi.FileID(attachment.FileID))
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case models.MediaVoice:
		c := tgbotapi.NewVoice(chatID, tgbotapi.FileID(attachment.FileID))
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case models.MediaAlbum:
		return b.sendAlbum(chatID, attachment, caption)
	default:
		return 0, fmt.Errorf("unsupported media kind: %s", attachment.Kind)
	}

	sent, err := b.api.Send(cfg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) sendAlbum(chatID int64, attachment models.Attachment, caption string) (int, error) {
	var files []interface{}
	for i, id := range attachment.FileIDs {
		// Records written before per-part kinds were stored carry none;
		// those albums are all photos.
		kind := models.MediaPhoto
		if i < len(attachment.FileKinds) && attachment.FileKinds[i] != "" {
			kind = attachment.FileKinds[i]
		}

		var itemCaption, itemParseMode string
		if i == 0 {
			itemCaption = caption
			itemParseMode = tgbotapi.ModeHTML
		}

		switch kind {
		case models.MediaVideo:
			item := tgbotapi.NewInputMediaVideo(tgbotapi.FileID(id))
			item.Caption = itemCaption
			item.ParseMode = itemParseMode
			files = append(files, item)
		case models.MediaDocument:
			item := tgbotapi.NewInputMediaDocument(tgbotapi.FileID(id))
			item.Caption = itemCaption
			item.ParseMode = itemParseMode
			files = append(files, item)
		default:
			item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(id))
			item.Caption = itemCaption
			item.ParseMode = itemParseMode
			files = append(files, item)
		}
	}

	sent, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files))
	if err != nil {
		return 0, err
	}
	if len(sent) == 0 {
		return 0, fmt.Errorf("media group send returned no messages")
	}
	return sent[0].MessageID, nil
}

// reply sends an HTML message, logging instead of failing on delivery errors.
func (b *Bot) reply(chatID int64, text string) {
	b.replyWithMarkup(chatID, text, nil)
}

func (b *Bot) replyWithMarkup(chatID int64, text string, markup interface{}) {
	if b.api == nil {
		return // For testing
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// largestPhoto picks the highest-resolution variant of a photo message.
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	if len(sizes) == 0 {
		return ""
	}
	return sizes[len(sizes)-1].FileID
}

// attachmentFromMessage extracts the single media payload from a message, or
// nil for a text-only message. Album parts are handled by the aggregator, not
// here.
func attachmentFromMessage(message *tgbotapi.Message) *models.Attachment {
	switch {
	case message.Photo != nil:
		return &models.Attachment{Kind: models.MediaPhoto, FileID: largestPhoto(message.Photo)}
	case message.Sticker != nil:
		return &models.Attachment{Kind: models.MediaSticker, FileID: message.Sticker.FileID}
	case message.Animation != nil:
		return &models.Attachment{Kind: models.MediaAnimation, FileID: message.Animation.FileID}
	case message.Video != nil:
		return &models.Attachment{Kind: models.MediaVideo, FileID: message.Video.FileID}
	case message.Document != nil:
		return &models.Attachment{Kind: models.MediaDocument, FileID: message.Document.FileID}
	case message.Voice != nil:
		return &models.Attachment{Kind: models.MediaVoice, FileID: message.Voice.FileID}
	}
	return nil
}
