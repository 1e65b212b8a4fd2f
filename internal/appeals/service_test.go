package appeals

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"councilbot/internal/models"
	"councilbot/internal/storage"
	"councilbot/internal/storage/stubs"
)

type sentMessage struct {
	ChatID     int64
	Text       string
	Attachment *models.Attachment
	Caption    string
	MessageID  int
}

// fakeGateway records sends and assigns sequential message ids. Chats listed
// in failFor reject every send.
type fakeGateway struct {
	nextID  int
	sent    []sentMessage
	failFor map[int64]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextID: 100, failFor: map[int64]bool{}}
}

func (g *fakeGateway) SendText(chatID int64, text string) (int, error) {
	if g.failFor[chatID] {
		return 0, fmt.Errorf("chat %d unavailable", chatID)
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text, MessageID: g.nextID})
	return g.nextID, nil
}

func (g *fakeGateway) SendAttachment(chatID int64, attachment models.Attachment, caption string) (int, error) {
	if g.failFor[chatID] {
		return 0, fmt.Errorf("chat %d unavailable", chatID)
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Attachment: &attachment, Caption: caption, MessageID: g.nextID})
	return g.nextID, nil
}

func (g *fakeGateway) sentTo(chatID int64) []sentMessage {
	var out []sentMessage
	for _, m := range g.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func newTestService(admins []int64) (*Service, *stubs.MockDB, *fakeGateway) {
	db := stubs.NewMockDB()
	gw := newFakeGateway()
	return New(db, gw, admins, zap.NewNop()), db, gw
}

func TestService_Create(t *testing.T) {
	svc, db, _ := newTestService([]int64{500})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42, Username: "ivan", FirstName: "Иван"},
		"Когда будет расписание?", nil)
	require.NoError(t, err)
	assert.Equal(t, "0001", appeal.ID)
	assert.Equal(t, models.AppealNew, appeal.Status)
	assert.False(t, appeal.CreatedAt.IsZero())

	stored, err := db.GetAppeal(ctx, "0001")
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.UserID)
	assert.Equal(t, "Когда будет расписание?", stored.Text)

	// Second appeal takes the next counter value.
	second, err := svc.Create(ctx, Submitter{UserID: 43}, "Ещё вопрос", nil)
	require.NoError(t, err)
	assert.Equal(t, "0002", second.ID)
}

func TestService_FanOut_RecordsMessageIDs(t *testing.T) {
	svc, db, gw := newTestService([]int64{500, 501, 502})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42}, "Вопрос", nil)
	require.NoError(t, err)

	svc.FanOut(ctx, appeal, "Новое обращение #0001")

	assert.Len(t, gw.sent, 3)

	stored, err := db.GetAppeal(ctx, appeal.ID)
	require.NoError(t, err)
	require.Len(t, stored.AdminMessageIDs, 3)
	for _, adminID := range []int64{500, 501, 502} {
		msgs := gw.sentTo(adminID)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgs[0].MessageID, stored.AdminMessageIDs[adminID])
	}
	assert.Equal(t, stored.AdminMessageIDs, appeal.AdminMessageIDs)
}

func TestService_FanOut_PartialFailure(t *testing.T) {
	svc, db, gw := newTestService([]int64{500, 501, 502})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42}, "Вопрос", nil)
	require.NoError(t, err)

	gw.failFor[501] = true
	svc.FanOut(ctx, appeal, "Новое обращение")

	stored, err := db.GetAppeal(ctx, appeal.ID)
	require.NoError(t, err)

	// The appeal survives with refs for the admins that were reachable.
	assert.Equal(t, models.AppealNew, stored.Status)
	assert.Len(t, stored.AdminMessageIDs, 2)
	assert.Contains(t, stored.AdminMessageIDs, int64(500))
	assert.Contains(t, stored.AdminMessageIDs, int64(502))
	assert.NotContains(t, stored.AdminMessageIDs, int64(501))
}

func TestService_FanOut_StickerGetsSeparateNotice(t *testing.T) {
	svc, db, gw := newTestService([]int64{500})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42}, "",
		&models.Attachment{Kind: models.MediaSticker, FileID: "stick-1"})
	require.NoError(t, err)

	svc.FanOut(ctx, appeal, "Новое обращение #0001")

	msgs := gw.sentTo(500)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, models.MediaSticker, msgs[0].Attachment.Kind)
	assert.Empty(t, msgs[0].Caption)
	assert.Equal(t, "Новое обращение #0001", msgs[1].Text)

	// The text message, not the sticker, is the reply anchor.
	stored, err := db.GetAppeal(ctx, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, msgs[1].MessageID, stored.AdminMessageIDs[500])
}

func TestService_FanOut_MediaCarriesNoticeAsCaption(t *testing.T) {
	svc, _, gw := newTestService([]int64{500})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42}, "Фото",
		&models.Attachment{Kind: models.MediaPhoto, FileID: "photo-1"})
	require.NoError(t, err)

	svc.FanOut(ctx, appeal, "Новое обращение #0001")

	msgs := gw.sentTo(500)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, "Новое обращение #0001", msgs[0].Caption)
}

func TestService_ResolveByReply(t *testing.T) {
	svc, _, _ := newTestService([]int64{500, 501})
	ctx := context.Background()

	first, err := svc.Create(ctx, Submitter{UserID: 42}, "Первый", nil)
	require.NoError(t, err)
	svc.FanOut(ctx, first, "Обращение 1")

	second, err := svc.Create(ctx, Submitter{UserID: 43}, "Второй", nil)
	require.NoError(t, err)
	svc.FanOut(ctx, second, "Обращение 2")

	// Each admin's message id resolves to the right appeal.
	for _, adminID := range []int64{500, 501} {
		got, err := svc.ResolveByReply(ctx, adminID, first.AdminMessageIDs[adminID])
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)

		got, err = svc.ResolveByReply(ctx, adminID, second.AdminMessageIDs[adminID])
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.ID, got.ID)
	}

	// A message id from a different admin's copy does not resolve.
	got, err := svc.ResolveByReply(ctx, 500, second.AdminMessageIDs[501])
	require.NoError(t, err)
	assert.Nil(t, got)

	// An unrelated message is not an appeal reply and not an error.
	got, err = svc.ResolveByReply(ctx, 500, 999999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_ResolveByReply_LegacyRecords(t *testing.T) {
	svc, db, _ := newTestService([]int64{500})
	ctx := context.Background()

	// Record written by an older deployment: single message id, no map.
	legacy := &models.Appeal{
		UserID:               42,
		Text:                 "Старое обращение",
		Status:               models.AppealNew,
		LegacyAdminMessageID: 777,
	}
	_, err := db.CreateAppeal(ctx, legacy)
	require.NoError(t, err)

	got, err := svc.ResolveByReply(ctx, 500, 777)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, legacy.ID, got.ID)
}

func TestService_Answer(t *testing.T) {
	svc, _, _ := newTestService([]int64{500})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42}, "Вопрос", nil)
	require.NoError(t, err)

	answered, err := svc.Answer(ctx, appeal.ID, models.Answer{Text: "Ответ"})
	require.NoError(t, err)
	assert.Equal(t, models.AppealAnswered, answered.Status)
	require.NotNil(t, answered.Answer)
	assert.Equal(t, "Ответ", answered.Answer.Text)
	require.NotNil(t, answered.AnsweredAt)

	// A later answer overwrites the first; status stays answered.
	again, err := svc.Answer(ctx, appeal.ID, models.Answer{Text: "Уточнение"})
	require.NoError(t, err)
	assert.Equal(t, models.AppealAnswered, again.Status)
	assert.Equal(t, "Уточнение", again.Answer.Text)
}

func TestService_Answer_NotFound(t *testing.T) {
	svc, db, _ := newTestService([]int64{500})
	ctx := context.Background()

	_, err := svc.Answer(ctx, "9999", models.Answer{Text: "Ответ"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	// Nothing was written.
	all, err := db.ListAppeals(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_EndToEnd(t *testing.T) {
	svc, db, gw := newTestService([]int64{500})
	ctx := context.Background()

	appeal, err := svc.Create(ctx, Submitter{UserID: 42, FirstName: "Иван"},
		"Need help with schedule", nil)
	require.NoError(t, err)

	svc.FanOut(ctx, appeal, "Новое обращение")

	// Admin replies to the fan-out message.
	adminMsgs := gw.sentTo(500)
	require.Len(t, adminMsgs, 1)

	resolved, err := svc.ResolveByReply(ctx, 500, adminMsgs[0].MessageID)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, appeal.ID, resolved.ID)

	answered, err := svc.Answer(ctx, resolved.ID, models.Answer{Text: "See updated schedule on site"})
	require.NoError(t, err)
	assert.Equal(t, models.AppealAnswered, answered.Status)

	stored, err := db.GetAppeal(ctx, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, "See updated schedule on site", stored.Answer.Text)
}
