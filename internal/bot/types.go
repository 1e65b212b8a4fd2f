package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"councilbot/internal/appeals"
	"councilbot/internal/mediagroup"
	"councilbot/internal/storage"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api        *tgbotapi.BotAPI
	db         storage.Storage
	appeals    *appeals.Service
	aggregator *mediagroup.Aggregator
	admins     map[int64]bool
	leadership map[int64]bool
	states     map[int64]*ConversationState
	statesMu   sync.RWMutex
	logger     *zap.Logger
}

// ConversationState tracks the state of multi-step commands
type ConversationState struct {
	Command string
	Step    int
	Data    map[string]interface{}
}

// Conversation commands.
const (
	convAppeal         = "appeal"
	convReply          = "reply"
	convAddAchievement = "add_achievement"
)
