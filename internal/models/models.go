package models

import "time"

// MediaKind identifies the type of a Telegram attachment.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaVoice     MediaKind = "voice"
	MediaAlbum     MediaKind = "album"
)

// Attachment is a single media payload or an ordered media album.
type Attachment struct {
	Kind      MediaKind   `json:"kind"`
	FileID    string      `json:"file_id,omitempty"`
	FileIDs   []string    `json:"file_ids,omitempty"`   // album parts in submission order
	FileKinds []MediaKind `json:"file_kinds,omitempty"` // per-part kinds, parallel to FileIDs; empty means all photos
}

// AppealStatus is the lifecycle state of an appeal. Transitions are
// monotonic: new -> answered, never reversed.
type AppealStatus string

const (
	AppealNew      AppealStatus = "new"
	AppealAnswered AppealStatus = "answered"
)

// Answer is an admin's response to an appeal.
type Answer struct {
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Appeal is one anonymous user-to-council submission and its eventual answer.
type Appeal struct {
	ID         string      `json:"-"`
	UserID     int64       `json:"user_id"`
	Username   string      `json:"username,omitempty"`
	FirstName  string      `json:"first_name"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`

	Status AppealStatus `json:"status"`

	// AdminMessageIDs maps an admin's chat id to the message id under which
	// that admin received the appeal. Used only for reply resolution.
	AdminMessageIDs map[int64]int `json:"admin_message_ids,omitempty"`
	// LegacyAdminMessageID is the pre-multi-admin field kept for records
	// written by older deployments.
	LegacyAdminMessageID int `json:"admin_message_id,omitempty"`

	Answer     *Answer    `json:"answer,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// AchievementStatus is the moderation state of an achievement request.
type AchievementStatus string

const (
	AchievementPending  AchievementStatus = "pending"
	AchievementApproved AchievementStatus = "approved"
	AchievementRejected AchievementStatus = "rejected"
)

// Achievement is a request to credit a student with achievement points,
// awaiting a leadership decision.
type Achievement struct {
	ID             string `json:"-"`
	ReporterID     int64  `json:"reporter_id"`
	ReporterName   string `json:"reporter_name"`
	ReporterRole   string `json:"reporter_role"`
	StudentName    string `json:"student_name"`
	EducationLevel string `json:"education_level"`
	Course         string `json:"course"`
	Description    string `json:"description"`
	Points         int    `json:"points"`

	Status       AchievementStatus `json:"status"`
	ApproverID   int64             `json:"approver_id,omitempty"`
	ApproverName string            `json:"approver_name,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// UserStat tracks per-user message activity.
type UserStat struct {
	UserID       int64     `json:"-"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name"`
	MessageCount int       `json:"messages_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}
