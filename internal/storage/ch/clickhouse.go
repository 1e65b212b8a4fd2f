package ch

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"councilbot/internal/models"
	"councilbot/internal/storage"
)

// ClickHouseDB stores records in ReplacingMergeTree tables: every mutation
// inserts a fresh row versioned by updated_at, and reads use FINAL so the
// latest version wins. Ids come from max(id)+1, which stays monotonic because
// rows are never deleted.
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/ directory)
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

const appealColumns = `id, user_id, username, first_name, body_text,
	media_kind, media_file_id, media_file_ids, media_file_kinds,
	status, admin_message_ids, legacy_admin_message_id,
	answer_text, answer_media_kind, answer_media_file_id,
	created_at, answered_at, updated_at`

func (db *ClickHouseDB) insertAppeal(ctx context.Context, a *models.Appeal) error {
	var mediaKind, mediaFileID string
	var mediaFileIDs, mediaFileKinds []string
	if a.Attachment != nil {
		mediaKind = string(a.Attachment.Kind)
		mediaFileID = a.Attachment.FileID
		mediaFileIDs = a.Attachment.FileIDs
		for _, k := range a.Attachment.FileKinds {
			mediaFileKinds = append(mediaFileKinds, string(k))
		}
	}

	var answerText, answerMediaKind, answerMediaFileID string
	if a.Answer != nil {
		answerText = a.Answer.Text
		if a.Answer.Attachment != nil {
			answerMediaKind = string(a.Answer.Attachment.Kind)
			answerMediaFileID = a.Answer.Attachment.FileID
		}
	}

	adminMessageIDs := make(map[int64]int64, len(a.AdminMessageIDs))
	for adminID, messageID := range a.AdminMessageIDs {
		adminMessageIDs[adminID] = int64(messageID)
	}

	err := db.conn.Exec(ctx, `INSERT INTO appeals (`+appealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Username, a.FirstName, a.Text,
		mediaKind, mediaFileID, mediaFileIDs, mediaFileKinds,
		string(a.Status), adminMessageIDs, int64(a.LegacyAdminMessageID),
		answerText, answerMediaKind, answerMediaFileID,
		a.CreatedAt, a.AnsweredAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert appeal: %w", err)
	}
	return nil
}

type appealRow struct {
	id                   string
	userID               int64
	username             string
	firstName            string
	bodyText             string
	mediaKind            string
	mediaFileID          string
	mediaFileIDs         []string
	mediaFileKinds       []string
	status               string
	adminMessageIDs      map[int64]int64
	legacyAdminMessageID int64
	answerText           string
	answerMediaKind      string
	answerMediaFileID    string
	createdAt            time.Time
	answeredAt           *time.Time
	updatedAt            time.Time
}

func (r *appealRow) toModel() models.Appeal {
	a := models.Appeal{
		ID:                   r.id,
		UserID:               r.userID,
		Username:             r.username,
		FirstName:            r.firstName,
		Text:                 r.bodyText,
		Status:               models.AppealStatus(r.status),
		LegacyAdminMessageID: int(r.legacyAdminMessageID),
		CreatedAt:            r.createdAt,
		AnsweredAt:           r.answeredAt,
	}
	if r.mediaKind != "" {
		a.Attachment = &models.Attachment{
			Kind:    models.MediaKind(r.mediaKind),
			FileID:  r.mediaFileID,
			FileIDs: r.mediaFileIDs,
		}
		for _, k := range r.mediaFileKinds {
			a.Attachment.FileKinds = append(a.Attachment.FileKinds, models.MediaKind(k))
		}
	}
	if len(r.adminMessageIDs) > 0 {
		a.AdminMessageIDs = make(map[int64]int, len(r.adminMessageIDs))
		for adminID, messageID := range r.adminMessageIDs {
			a.AdminMessageIDs[adminID] = int(messageID)
		}
	}
	if r.status == string(models.AppealAnswered) || r.answerText != "" || r.answerMediaKind != "" {
		answer := &models.Answer{Text: r.answerText}
		if r.answerMediaKind != "" {
			answer.Attachment = &models.Attachment{
				Kind:   models.MediaKind(r.answerMediaKind),
				FileID: r.answerMediaFileID,
			}
		}
		a.Answer = answer
	}
	return a
}

func scanAppeal(scan func(dest ...any) error) (*appealRow, error) {
	var r appealRow
	err := scan(
		&r.id, &r.userID, &r.username, &r.firstName, &r.bodyText,
		&r.mediaKind, &r.mediaFileID, &r.mediaFileIDs, &r.mediaFileKinds,
		&r.status, &r.adminMessageIDs, &r.legacyAdminMessageID,
		&r.answerText, &r.answerMediaKind, &r.answerMediaFileID,
		&r.createdAt, &r.answeredAt, &r.updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan appeal: %w", err)
	}
	return &r, nil
}

// CreateAppeal allocates the next id and inserts the appeal.
func (db *ClickHouseDB) CreateAppeal(ctx context.Context, appeal *models.Appeal) (string, error) {
	var maxID int64
	row := db.conn.QueryRow(ctx, `SELECT max(toInt64OrZero(id)) FROM appeals FINAL`)
	if err := row.Scan(&maxID); err != nil {
		return "", fmt.Errorf("failed to allocate appeal id: %w", err)
	}

	appeal.ID = fmt.Sprintf("%04d", maxID+1)
	if err := db.insertAppeal(ctx, appeal); err != nil {
		return "", err
	}
	return appeal.ID, nil
}

func (db *ClickHouseDB) getAppealRow(ctx context.Context, id string) (*appealRow, error) {
	row := db.conn.QueryRow(ctx,
		`SELECT `+appealColumns+` FROM appeals FINAL WHERE id = ?`, id)
	r, err := scanAppeal(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetAppeal returns the appeal with the given id or ErrNotFound.
func (db *ClickHouseDB) GetAppeal(ctx context.Context, id string) (*models.Appeal, error) {
	r, err := db.getAppealRow(ctx, id)
	if err != nil {
		return nil, err
	}
	a := r.toModel()
	return &a, nil
}

// ListAppeals returns all appeals in numeric id order. Ids are zero-padded
// strings, so a string sort would misplace them past the pad width.
func (db *ClickHouseDB) ListAppeals(ctx context.Context) ([]models.Appeal, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT `+appealColumns+` FROM appeals FINAL ORDER BY toInt64OrZero(id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals: %w", err)
	}
	defer rows.Close()

	var appeals []models.Appeal
	for rows.Next() {
		r, err := scanAppeal(rows.Scan)
		if err != nil {
			return nil, err
		}
		appeals = append(appeals, r.toModel())
	}
	return appeals, nil
}

// ListAppealsByStatus returns all appeals in the given status in numeric id order.
func (db *ClickHouseDB) ListAppealsByStatus(ctx context.Context, status models.AppealStatus) ([]models.Appeal, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT `+appealColumns+` FROM appeals FINAL WHERE status = ? ORDER BY toInt64OrZero(id)`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals by status: %w", err)
	}
	defer rows.Close()

	var appeals []models.Appeal
	for rows.Next() {
		r, err := scanAppeal(rows.Scan)
		if err != nil {
			return nil, err
		}
		appeals = append(appeals, r.toModel())
	}
	return appeals, nil
}

// SetAdminMessageID records an admin's fan-out message id on the appeal.
func (db *ClickHouseDB) SetAdminMessageID(ctx context.Context, id string, adminID int64, messageID int) error {
	r, err := db.getAppealRow(ctx, id)
	if err != nil {
		return err
	}
	a := r.toModel()
	if a.AdminMessageIDs == nil {
		a.AdminMessageIDs = map[int64]int{}
	}
	a.AdminMessageIDs[adminID] = messageID
	return db.insertAppeal(ctx, &a)
}

// AnswerAppeal marks the appeal answered with the given payload.
func (db *ClickHouseDB) AnswerAppeal(ctx context.Context, id string, answer models.Answer, answeredAt time.Time) error {
	r, err := db.getAppealRow(ctx, id)
	if err != nil {
		return err
	}
	a := r.toModel()
	a.Status = models.AppealAnswered
	a.Answer = &answer
	a.AnsweredAt = &answeredAt
	return db.insertAppeal(ctx, &a)
}

const achievementColumns = `id, reporter_id, reporter_name, reporter_role,
	student_name, education_level, course, description, points,
	status, approver_id, approver_name, created_at, decided_at, updated_at`

func (db *ClickHouseDB) insertAchievement(ctx context.Context, a *models.Achievement) error {
	err := db.conn.Exec(ctx, `INSERT INTO achievements (`+achievementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ReporterID, a.ReporterName, a.ReporterRole,
		a.StudentName, a.EducationLevel, a.Course, a.Description, int32(a.Points),
		string(a.Status), a.ApproverID, a.ApproverName, a.CreatedAt, a.DecidedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert achievement: %w", err)
	}
	return nil
}

func scanAchievement(scan func(dest ...any) error) (*models.Achievement, error) {
	var a models.Achievement
	var points int32
	var status string
	var updatedAt time.Time
	err := scan(
		&a.ID, &a.ReporterID, &a.ReporterName, &a.ReporterRole,
		&a.StudentName, &a.EducationLevel, &a.Course, &a.Description, &points,
		&status, &a.ApproverID, &a.ApproverName, &a.CreatedAt, &a.DecidedAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan achievement: %w", err)
	}
	a.Points = int(points)
	a.Status = models.AchievementStatus(status)
	return &a, nil
}

// CreateAchievement allocates the next id and inserts the request.
func (db *ClickHouseDB) CreateAchievement(ctx context.Context, achievement *models.Achievement) (string, error) {
	var maxID int64
	row := db.conn.QueryRow(ctx, `SELECT max(toInt64OrZero(id)) FROM achievements FINAL`)
	if err := row.Scan(&maxID); err != nil {
		return "", fmt.Errorf("failed to allocate achievement id: %w", err)
	}

	achievement.ID = fmt.Sprintf("%04d", maxID+1)
	if err := db.insertAchievement(ctx, achievement); err != nil {
		return "", err
	}
	return achievement.ID, nil
}

// GetAchievement returns the achievement with the given id or ErrNotFound.
func (db *ClickHouseDB) GetAchievement(ctx context.Context, id string) (*models.Achievement, error) {
	row := db.conn.QueryRow(ctx,
		`SELECT `+achievementColumns+` FROM achievements FINAL WHERE id = ?`, id)
	a, err := scanAchievement(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListPendingAchievements returns all pending requests in numeric id order.
func (db *ClickHouseDB) ListPendingAchievements(ctx context.Context) ([]models.Achievement, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT `+achievementColumns+` FROM achievements FINAL WHERE status = ? ORDER BY toInt64OrZero(id)`,
		string(models.AchievementPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending achievements: %w", err)
	}
	defer rows.Close()

	var out []models.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

// SetAchievementStatus records a leadership decision on a pending request.
func (db *ClickHouseDB) SetAchievementStatus(ctx context.Context, id string, status models.AchievementStatus, approverID int64, approverName string, decidedAt time.Time) error {
	a, err := db.GetAchievement(ctx, id)
	if err != nil {
		return err
	}
	a.Status = status
	a.ApproverID = approverID
	a.ApproverName = approverName
	a.DecidedAt = &decidedAt
	return db.insertAchievement(ctx, a)
}

// TouchUser bumps the user's message counter and display-name snapshot.
func (db *ClickHouseDB) TouchUser(ctx context.Context, userID int64, username, firstName string, seenAt time.Time) error {
	var messageCount int64
	firstSeen := seenAt
	row := db.conn.QueryRow(ctx,
		`SELECT messages_count, first_seen FROM user_stats FINAL WHERE user_id = ?`, userID)
	switch err := row.Scan(&messageCount, &firstSeen); {
	case errors.Is(err, sql.ErrNoRows):
		// First message from this user.
		messageCount = 0
		firstSeen = seenAt
	case err != nil:
		return fmt.Errorf("failed to read user stats: %w", err)
	}

	err := db.conn.Exec(ctx, `INSERT INTO user_stats
		(user_id, username, first_name, messages_count, first_seen, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, username, firstName, messageCount+1, firstSeen, seenAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	return nil
}

// ListUserStats returns all user stat records ordered by user id.
func (db *ClickHouseDB) ListUserStats(ctx context.Context) ([]models.UserStat, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT user_id, username, first_name, messages_count, first_seen, last_seen
		 FROM user_stats FINAL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user stats: %w", err)
	}
	defer rows.Close()

	var out []models.UserStat
	for rows.Next() {
		var u models.UserStat
		var count int64
		if err := rows.Scan(&u.UserID, &u.Username, &u.FirstName, &count, &u.FirstSeen, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan user stat: %w", err)
		}
		u.MessageCount = int(count)
		out = append(out, u)
	}
	return out, nil
}
