package storage

import (
	"context"
	"errors"
	"time"

	"councilbot/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage defines the interface for data storage operations.
//
// Appeal and achievement ids are zero-padded numeric strings allocated from a
// counter persisted alongside the records, so ids are never reused even if
// records are ever removed.
type Storage interface {
	// Appeal operations
	CreateAppeal(ctx context.Context, appeal *models.Appeal) (string, error)
	GetAppeal(ctx context.Context, id string) (*models.Appeal, error)
	ListAppeals(ctx context.Context) ([]models.Appeal, error)
	ListAppealsByStatus(ctx context.Context, status models.AppealStatus) ([]models.Appeal, error)

	// SetAdminMessageID records the message id under which an admin received
	// the appeal. One entry per admin; entries accumulate independently.
	SetAdminMessageID(ctx context.Context, id string, adminID int64, messageID int) error

	// AnswerAppeal sets status=answered with the given payload and timestamp.
	// Returns ErrNotFound if the appeal does not exist. A second call
	// overwrites the previous answer.
	AnswerAppeal(ctx context.Context, id string, answer models.Answer, answeredAt time.Time) error

	// Achievement operations
	CreateAchievement(ctx context.Context, achievement *models.Achievement) (string, error)
	GetAchievement(ctx context.Context, id string) (*models.Achievement, error)
	ListPendingAchievements(ctx context.Context) ([]models.Achievement, error)
	SetAchievementStatus(ctx context.Context, id string, status models.AchievementStatus, approverID int64, approverName string, decidedAt time.Time) error

	// Statistics operations
	TouchUser(ctx context.Context, userID int64, username, firstName string, seenAt time.Time) error
	ListUserStats(ctx context.Context) ([]models.UserStat, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
