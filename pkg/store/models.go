package store

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	Username         string `gorm:"not null;index"`
	FirstName        string `gorm:"not null"`
	LastName         string
	Email            string `gorm:"not null;index"`
	PasswordHash     string `gorm:"not null"`
	Bio              string
	ProfilePicture   string
	OTPHash          string
	OTPGeneratedAt   *time.Time
	Verified         bool           `gorm:"not null;default:false"`
	FollowedTopics   pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	PushSubscription datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

type TopicModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

type QuestionModel struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	AuthorID  string         `gorm:"type:uuid;not null;index"`
	Title     string         `gorm:"not null"`
	Content   string         `gorm:"type:text;not null"`
	Options   pq.StringArray `gorm:"type:text[];not null"`
	Topics    pq.StringArray `gorm:"type:text[];not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

type OpinionModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	QuestionID string    `gorm:"type:uuid;not null;uniqueIndex:idx_opinion_question_author"`
	AuthorID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_opinion_question_author;index"`
	Content    string    `gorm:"type:text;not null"`
	Option     string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// VoteModel is one user's vote on one opinion. The composite key keeps a
// user out of the upvote and downvote sets at the same time.
type VoteModel struct {
	OpinionID string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;primaryKey;index"`
	Kind      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type NotificationModel struct {
	ID              string  `gorm:"type:uuid;primaryKey"`
	ReceiverID      string  `gorm:"type:uuid;not null;index"`
	SenderID        *string `gorm:"type:uuid;index"`
	Type            string  `gorm:"not null"`
	Message         string  `gorm:"not null"`
	TargetContentID string
	HasRead         bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

type PictureModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	OwnerKey    string    `gorm:"not null;uniqueIndex:idx_picture_owner_type"`
	Type        string    `gorm:"not null;uniqueIndex:idx_picture_owner_type"`
	ContentType string    `gorm:"not null"`
	ObjectKey   string    `gorm:"not null"`
	SizeBytes   int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}
