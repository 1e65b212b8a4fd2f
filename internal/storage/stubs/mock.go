package stubs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"councilbot/internal/models"
	"councilbot/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
// and for running the bot with USE_MOCK_DB=true.
type MockDB struct {
	mu             sync.RWMutex
	appealSeq      int
	appeals        map[string]*models.Appeal
	achievementSeq int
	achievements   map[string]*models.Achievement
	stats          map[int64]*models.UserStat
}

// NewMockDB creates a new mock database.
func NewMockDB() *MockDB {
	return &MockDB{
		appeals:      make(map[string]*models.Appeal),
		achievements: make(map[string]*models.Achievement),
		stats:        make(map[int64]*models.UserStat),
	}
}

// Initialize does nothing for the mock DB.
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateAppeal stores a new appeal under the next sequential id.
func (m *MockDB) CreateAppeal(ctx context.Context, appeal *models.Appeal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appealSeq++
	id := fmt.Sprintf("%04d", m.appealSeq)

	stored := *appeal
	stored.ID = id
	m.appeals[id] = &stored
	appeal.ID = id
	return id, nil
}

// GetAppeal returns a copy of the appeal or ErrNotFound.
func (m *MockDB) GetAppeal(ctx context.Context, id string) (*models.Appeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appeals[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	return &out, nil
}

// ListAppeals returns all appeals in numeric id order.
func (m *MockDB) ListAppeals(ctx context.Context) ([]models.Appeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Appeal, 0, len(m.appeals))
	for _, a := range m.appeals {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

// idLess orders zero-padded string ids numerically, matching the other
// backends once the counter outgrows its pad width.
func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr != nil || berr != nil {
		return a < b
	}
	return ai < bi
}

// ListAppealsByStatus returns appeals in the given status in numeric id order.
func (m *MockDB) ListAppealsByStatus(ctx context.Context, status models.AppealStatus) ([]models.Appeal, error) {
	all, _ := m.ListAppeals(ctx)
	var out []models.Appeal
	for _, a := range all {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

// SetAdminMessageID records an admin's fan-out message id.
func (m *MockDB) SetAdminMessageID(ctx context.Context, id string, adminID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appeals[id]
	if !ok {
		return storage.ErrNotFound
	}
	if a.AdminMessageIDs == nil {
		a.AdminMessageIDs = map[int64]int{}
	}
	a.AdminMessageIDs[adminID] = messageID
	return nil
}

// AnswerAppeal marks the appeal answered.
func (m *MockDB) AnswerAppeal(ctx context.Context, id string, answer models.Answer, answeredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appeals[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = models.AppealAnswered
	a.Answer = &answer
	a.AnsweredAt = &answeredAt
	return nil
}

// CreateAchievement stores a new achievement request.
func (m *MockDB) CreateAchievement(ctx context.Context, achievement *models.Achievement) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.achievementSeq++
	id := fmt.Sprintf("%04d", m.achievementSeq)

	stored := *achievement
	stored.ID = id
	m.achievements[id] = &stored
	achievement.ID = id
	return id, nil
}

// GetAchievement returns a copy of the achievement or ErrNotFound.
func (m *MockDB) GetAchievement(ctx context.Context, id string) (*models.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.achievements[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	return &out, nil
}

// ListPendingAchievements returns pending requests in numeric id order.
func (m *MockDB) ListPendingAchievements(ctx context.Context) ([]models.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Achievement
	for _, a := range m.achievements {
		if a.Status == models.AchievementPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

// SetAchievementStatus records a leadership decision.
func (m *MockDB) SetAchievementStatus(ctx context.Context, id string, status models.AchievementStatus, approverID int64, approverName string, decidedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.achievements[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	a.ApproverID = approverID
	a.ApproverName = approverName
	a.DecidedAt = &decidedAt
	return nil
}

// TouchUser bumps the user's message counter.
func (m *MockDB) TouchUser(ctx context.Context, userID int64, username, firstName string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.stats[userID]
	if !ok {
		u = &models.UserStat{UserID: userID, FirstSeen: seenAt}
		m.stats[userID] = u
	}
	u.Username = username
	u.FirstName = firstName
	u.MessageCount++
	u.LastSeen = seenAt
	return nil
}

// ListUserStats returns all user stat records ordered by user id.
func (m *MockDB) ListUserStats(ctx context.Context) ([]models.UserStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.UserStat, 0, len(m.stats))
	for _, u := range m.stats {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Close does nothing for the mock DB.
func (m *MockDB) Close() error {
	return nil
}
