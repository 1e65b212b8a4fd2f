package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"councilbot/internal/models"
	"councilbot/internal/storage"
)

const (
	appealsFile      = "appeals.json"
	achievementsFile = "achievements.json"
	statsFile        = "user_stats.json"
)

// Store is a JSON-file backed record store. Every mutation is a whole-table
// load -> mutate -> save guarded by a single mutex, with the save done as a
// temp-file write plus rename so a crash never leaves a half-written table.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
}

// appealTable is the on-disk shape of appeals.json. Seq is the persisted
// monotonic id counter; it only grows, so ids are never reused.
type appealTable struct {
	Seq   int                       `json:"seq"`
	Items map[string]*models.Appeal `json:"items"`
}

type achievementTable struct {
	Seq   int                            `json:"seq"`
	Items map[string]*models.Achievement `json:"items"`
}

type statsTable struct {
	Items map[string]*models.UserStat `json:"items"`
}

// New creates a Store rooted at dir.
func New(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Initialize creates the data directory and empty tables if absent.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{appealsFile, achievementsFile, statsFile} {
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := s.writeFile(name, emptyTable(name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func emptyTable(name string) any {
	switch name {
	case appealsFile:
		return &appealTable{Items: map[string]*models.Appeal{}}
	case achievementsFile:
		return &achievementTable{Items: map[string]*models.Achievement{}}
	default:
		return &statsTable{Items: map[string]*models.UserStat{}}
	}
}

// Close is a no-op; every mutation is flushed as it happens.
func (s *Store) Close() error {
	return nil
}

func (s *Store) readFile(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) loadAppeals() (*appealTable, error) {
	var t appealTable
	if err := s.readFile(appealsFile, &t); err != nil {
		return nil, err
	}
	if t.Items == nil {
		t.Items = map[string]*models.Appeal{}
	}
	return &t, nil
}

// CreateAppeal persists a new appeal and returns its assigned id.
func (s *Store) CreateAppeal(ctx context.Context, appeal *models.Appeal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAppeals()
	if err != nil {
		return "", err
	}

	t.Seq++
	id := fmt.Sprintf("%04d", t.Seq)

	stored := *appeal
	stored.ID = id
	t.Items[id] = &stored

	if err := s.writeFile(appealsFile, t); err != nil {
		return "", err
	}
	appeal.ID = id
	return id, nil
}

// GetAppeal returns the appeal with the given id or ErrNotFound.
func (s *Store) GetAppeal(ctx context.Context, id string) (*models.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAppeals()
	if err != nil {
		return nil, err
	}
	a, ok := t.Items[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	out.ID = id
	return &out, nil
}

// ListAppeals returns all appeals in numeric id order.
func (s *Store) ListAppeals(ctx context.Context) ([]models.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAppeals()
	if err != nil {
		return nil, err
	}
	return sortedAppeals(t), nil
}

// ListAppealsByStatus returns all appeals in the given status, in numeric id order.
func (s *Store) ListAppealsByStatus(ctx context.Context, status models.AppealStatus) ([]models.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAppeals()
	if err != nil {
		return nil, err
	}
	var out []models.Appeal
	for _, a := range sortedAppeals(t) {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func sortedAppeals(t *appealTable) []models.Appeal {
	out := make([]models.Appeal, 0, len(t.Items))
	for id, a := range t.Items {
		item := *a
		item.ID = id
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

// idLess orders zero-padded string ids numerically, so the order survives the
// counter outgrowing its pad width ("10000" sorts after "9999", not before
// "2000").
func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr != nil || berr != nil {
		return a < b
	}
	return ai < bi
}

// SetAdminMessageID records an admin's fan-out message id on the appeal.
func (s *Store) SetAdminMessageID(ctx context.Context, id string, adminID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAppeals()
	if err != nil {
		return err
	}
	a, ok := t.Items[id]
	if !ok {
		return storage.ErrNotFound
	}
	if a.AdminMessageIDs == nil {
		a.AdminMessageIDs = map[int64]int{}
	}
	a.AdminMessageIDs[adminID] = messageID
	return s.writeFile(appealsFile, t)
}

// AnswerAppeal marks the appeal answered with the given payload.
func (s *Store) AnswerAppeal(ctx context.Context, id string, answer models.Answer, answeredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAppeals()
	if err != nil {
		return err
	}
	a, ok := t.Items[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = models.AppealAnswered
	a.Answer = &answer
	a.AnsweredAt = &answeredAt
	return s.writeFile(appealsFile, t)
}

func (s *Store) loadAchievements() (*achievementTable, error) {
	var t achievementTable
	if err := s.readFile(achievementsFile, &t); err != nil {
		return nil, err
	}
	if t.Items == nil {
		t.Items = map[string]*models.Achievement{}
	}
	return &t, nil
}

// CreateAchievement persists a new achievement request and returns its id.
func (s *Store) CreateAchievement(ctx context.Context, achievement *models.Achievement) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAchievements()
	if err != nil {
		return "", err
	}

	t.Seq++
	id := fmt.Sprintf("%04d", t.Seq)

	stored := *achievement
	stored.ID = id
	t.Items[id] = &stored

	if err := s.writeFile(achievementsFile, t); err != nil {
		return "", err
	}
	achievement.ID = id
	return id, nil
}

// GetAchievement returns the achievement with the given id or ErrNotFound.
func (s *Store) GetAchievement(ctx context.Context, id string) (*models.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAchievements()
	if err != nil {
		return nil, err
	}
	a, ok := t.Items[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	out.ID = id
	return &out, nil
}

// ListPendingAchievements returns all pending requests in numeric id order.
func (s *Store) ListPendingAchievements(ctx context.Context) ([]models.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAchievements()
	if err != nil {
		return nil, err
	}
	var out []models.Achievement
	for id, a := range t.Items {
		if a.Status == models.AchievementPending {
			item := *a
			item.ID = id
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

// SetAchievementStatus records a leadership decision on a pending request.
func (s *Store) SetAchievementStatus(ctx context.Context, id string, status models.AchievementStatus, approverID int64, approverName string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.loadAchievements()
	if err != nil {
		return err
	}
	a, ok := t.Items[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	a.ApproverID = approverID
	a.ApproverName = approverName
	a.DecidedAt = &decidedAt
	return s.writeFile(achievementsFile, t)
}

// TouchUser bumps the user's message counter and display-name snapshot.
func (s *Store) TouchUser(ctx context.Context, userID int64, username, firstName string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t statsTable
	if err := s.readFile(statsFile, &t); err != nil {
		return err
	}
	if t.Items == nil {
		t.Items = map[string]*models.UserStat{}
	}

	key := fmt.Sprintf("%d", userID)
	u, ok := t.Items[key]
	if !ok {
		u = &models.UserStat{FirstSeen: seenAt}
		t.Items[key] = u
	}
	u.Username = username
	u.FirstName = firstName
	u.MessageCount++
	u.LastSeen = seenAt

	return s.writeFile(statsFile, &t)
}

// ListUserStats returns all user stat records.
func (s *Store) ListUserStats(ctx context.Context) ([]models.UserStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t statsTable
	if err := s.readFile(statsFile, &t); err != nil {
		return nil, err
	}
	out := make([]models.UserStat, 0, len(t.Items))
	for key, u := range t.Items {
		item := *u
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.logger.Warn("Skipping stat record with malformed user id", zap.String("key", key))
			continue
		}
		item.UserID = id
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
