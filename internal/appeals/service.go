package appeals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"councilbot/internal/models"
	"councilbot/internal/storage"
)

// Gateway is the messaging capability the service fans out through. Each send
// returns the id of the message it produced in the target chat, which is what
// reply resolution later matches against. internal/bot implements it over the
// Telegram API.
type Gateway interface {
	SendText(chatID int64, text string) (int, error)
	// SendAttachment delivers a single media payload or an album with the
	// given caption. For albums the id of the first message is returned.
	SendAttachment(chatID int64, attachment models.Attachment, caption string) (int, error)
}

// Submitter identifies the (anonymous to admins) author of an appeal.
type Submitter struct {
	UserID    int64
	Username  string
	FirstName string
}

// Service manages the appeal lifecycle: creation, fan-out to admins, reply
// resolution, and answering. Status moves new -> answered and never back.
type Service struct {
	store  storage.Storage
	gw     Gateway
	admins []int64
	logger *zap.Logger
}

// New creates an appeal service that fans out to the given admin chat ids.
func New(store storage.Storage, gw Gateway, admins []int64, logger *zap.Logger) *Service {
	return &Service{store: store, gw: gw, admins: admins, logger: logger}
}

// Create persists a new appeal and returns it with its assigned id. The id is
// allocated from the store's persisted counter, so it is unique even across
// deletions, and is immediately usable for fan-out.
func (s *Service) Create(ctx context.Context, submitter Submitter, text string, attachment *models.Attachment) (*models.Appeal, error) {
	appeal := &models.Appeal{
		UserID:     submitter.UserID,
		Username:   submitter.Username,
		FirstName:  submitter.FirstName,
		Text:       text,
		Attachment: attachment,
		Status:     models.AppealNew,
		CreatedAt:  time.Now(),
	}

	id, err := s.store.CreateAppeal(ctx, appeal)
	if err != nil {
		return nil, fmt.Errorf("failed to create appeal: %w", err)
	}

	s.logger.Info("Appeal created",
		zap.String("appeal_id", id),
		zap.Bool("has_attachment", attachment != nil),
	)
	return appeal, nil
}

// FanOut delivers the appeal to every configured admin. Delivery is
// best-effort: a failure for one admin is logged and never blocks the others,
// and the appeal stays persisted regardless of how many sends succeeded. The
// message id of each successful send is recorded for reply resolution.
func (s *Service) FanOut(ctx context.Context, appeal *models.Appeal, notice string) {
	for _, adminID := range s.admins {
		messageID, err := s.deliver(adminID, appeal, notice)
		if err != nil {
			s.logger.Error("Failed to deliver appeal to admin",
				zap.String("appeal_id", appeal.ID),
				zap.Int64("admin_id", adminID),
				zap.Error(err),
			)
			continue
		}

		if err := s.store.SetAdminMessageID(ctx, appeal.ID, adminID, messageID); err != nil {
			s.logger.Error("Failed to record admin message id",
				zap.String("appeal_id", appeal.ID),
				zap.Int64("admin_id", adminID),
				zap.Error(err),
			)
			continue
		}
		if appeal.AdminMessageIDs == nil {
			appeal.AdminMessageIDs = map[int64]int{}
		}
		appeal.AdminMessageIDs[adminID] = messageID

		s.logger.Info("Appeal delivered to admin",
			zap.String("appeal_id", appeal.ID),
			zap.Int64("admin_id", adminID),
			zap.Int("message_id", messageID),
		)
	}
}

// deliver sends the appeal content to one admin chat using the send operation
// matching the attachment kind. Stickers cannot carry a caption, so the
// notice follows as a separate text message whose id becomes the reply anchor.
func (s *Service) deliver(adminID int64, appeal *models.Appeal, notice string) (int, error) {
	if appeal.Attachment == nil {
		return s.gw.SendText(adminID, notice)
	}
	if appeal.Attachment.Kind == models.MediaSticker {
		if _, err := s.gw.SendAttachment(adminID, *appeal.Attachment, ""); err != nil {
			return 0, err
		}
		return s.gw.SendText(adminID, notice)
	}
	return s.gw.SendAttachment(adminID, *appeal.Attachment, notice)
}

// ResolveByReply finds the appeal that produced the given admin-facing
// message. Returns (nil, nil) when the message is not a fan-out of any
// appeal; callers treat that as "not an appeal reply", not an error.
func (s *Service) ResolveByReply(ctx context.Context, adminID int64, messageID int) (*models.Appeal, error) {
	all, err := s.store.ListAppeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals: %w", err)
	}

	for i := range all {
		a := &all[i]
		if id, ok := a.AdminMessageIDs[adminID]; ok && id == messageID {
			return a, nil
		}
		// Records written before per-admin tracking carry a single id.
		if a.LegacyAdminMessageID != 0 && a.LegacyAdminMessageID == messageID {
			return a, nil
		}
	}
	return nil, nil
}

// Answer stores the response on the appeal and marks it answered. Returns
// storage.ErrNotFound if the appeal does not exist. Answering an already
// answered appeal overwrites the previous answer. Notifying the submitter is
// the caller's responsibility.
func (s *Service) Answer(ctx context.Context, id string, answer models.Answer) (*models.Appeal, error) {
	if err := s.store.AnswerAppeal(ctx, id, answer, time.Now()); err != nil {
		return nil, err
	}

	appeal, err := s.store.GetAppeal(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appeal answered", zap.String("appeal_id", id))
	return appeal, nil
}

// Admins returns the configured admin chat ids.
func (s *Service) Admins() []int64 {
	return s.admins
}
