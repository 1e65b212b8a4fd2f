package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/appeals"
	"councilbot/internal/mediagroup"
	"councilbot/internal/storage"
)

// NewBot creates a new Telegram bot
func NewBot(token string, db storage.Storage, adminIDs, leadershipIDs []int64, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	b := newBot(api, db, adminIDs, leadershipIDs, logger)
	return b, nil
}

// newBot wires the bot without a live API handle; tests call it with api=nil.
func newBot(api *tgbotapi.BotAPI, db storage.Storage, adminIDs, leadershipIDs []int64, logger *zap.Logger) *Bot {
	admins := make(map[int64]bool)
	for _, id := range adminIDs {
		admins[id] = true
	}
	leadership := make(map[int64]bool)
	for _, id := range leadershipIDs {
		leadership[id] = true
	}

	b := &Bot{
		api:        api,
		db:         db,
		admins:     admins,
		leadership: leadership,
		states:     make(map[int64]*ConversationState),
		logger:     logger,
	}
	b.appeals = appeals.New(db, b, adminIDs, logger)
	b.aggregator = mediagroup.New(b.handleFinalizedAlbum, logger)
	return b
}

// GetAPI returns the bot API for testing
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
