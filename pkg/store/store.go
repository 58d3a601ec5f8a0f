package store

import (
	"context"
	"errors"
	"time"

	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/weightage"
)

var (
	// ErrNotFound is returned when a mutation targets a row that does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("store: duplicate")
)

// QuestionFilter narrows ListQuestions. When FollowedOnly is set the
// question must share a topic with AnyTopics; a non-empty Topic wins over it.
type QuestionFilter struct {
	Page         pagination.Page
	AuthorID     string
	Topic        string
	FollowedOnly bool
	AnyTopics    []string
	Search       string
}

// OpinionFilter narrows ListOpinions. ViewerID, when set, fills ViewerVote.
type OpinionFilter struct {
	Page       pagination.Page
	QuestionID string
	ViewerID   string
}

type NotificationFilter struct {
	Page       pagination.Page
	ReceiverID string
}

// UserUpdate names the user columns one operation changes. Nil fields are
// left as stored, so concurrent updates of other columns are never undone.
type UserUpdate struct {
	FirstName        *string
	LastName         *string
	Bio              *string
	ProfilePicture   *string
	PasswordHash     *string
	OTP              *domain.OTP
	Verified         *bool
	PushSubscription *string
	UpdatedAt        time.Time
}

type TopicFilter struct {
	Page   pagination.Page
	Search string
}

// Store defines persistence operations for users, questions, opinions,
// votes, topics, notifications, and pictures.
type Store interface {
	// Transaction runs fn against a store bound to a single transaction.
	// A non-nil error from fn rolls every write back.
	Transaction(ctx context.Context, fn func(Store) error) error

	// users
	CreateUser(ctx context.Context, u domain.User) error
	// UpdateUser writes only the columns set in upd and returns the
	// stored row.
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (domain.User, error)
	// FollowTopics and UnfollowTopics apply a set union or difference to
	// the stored followed topics in one statement and return the result.
	FollowTopics(ctx context.Context, userID string, topics []string, at time.Time) ([]string, error)
	UnfollowTopics(ctx context.Context, userID string, topics []string, at time.Time) ([]string, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error)
	GetVerifiedUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	HasVerifiedUsername(ctx context.Context, username string) (bool, error)
	HasVerifiedEmail(ctx context.Context, email string) (bool, error)
	DeleteUnverifiedUsers(ctx context.Context, username, email string) error
	ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	ListPushSubscribers(ctx context.Context, usernames []string) ([]domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	// topics
	EnsureTopics(ctx context.Context, names []string) error
	GetTopic(ctx context.Context, id string) (domain.Topic, bool, error)
	ListTopics(ctx context.Context, f TopicFilter) ([]domain.Topic, error)
	CountTopicsByName(ctx context.Context, names []string) (int, error)
	CountQuestionsByTopic(ctx context.Context, names []string) (map[string]int, error)

	// questions
	CreateQuestion(ctx context.Context, q domain.Question) error
	GetQuestion(ctx context.Context, id string) (domain.Question, bool, error)
	ListQuestions(ctx context.Context, f QuestionFilter) ([]domain.Question, error)
	ListQuestionIDsByAuthor(ctx context.Context, authorID string) ([]string, error)
	DeleteQuestion(ctx context.Context, id string) error
	DeleteQuestionsByAuthor(ctx context.Context, authorID string) error

	// opinions
	CreateOpinion(ctx context.Context, o domain.Opinion) error
	GetOpinion(ctx context.Context, id string) (domain.Opinion, bool, error)
	HasOpinion(ctx context.Context, questionID, authorID string) (bool, error)
	ListOpinions(ctx context.Context, f OpinionFilter) ([]domain.OpinionStats, error)
	ListTallies(ctx context.Context, questionID string) ([]weightage.Tally, error)
	DeleteOpinion(ctx context.Context, id string) error
	DeleteOpinionsByQuestions(ctx context.Context, questionIDs []string) error
	DeleteOpinionsByAuthor(ctx context.Context, authorID string) error

	// votes
	CastVote(ctx context.Context, opinionID, userID string, kind domain.VoteKind) (domain.VoteCounts, error)
	RetractVote(ctx context.Context, opinionID, userID string, kind domain.VoteKind) (domain.VoteCounts, error)
	DeleteVotesByUser(ctx context.Context, userID string) error

	// notifications
	CreateNotification(ctx context.Context, n domain.Notification) error
	GetNotification(ctx context.Context, id string) (domain.Notification, bool, error)
	ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, receiverID string) (int, error)
	SetNotificationRead(ctx context.Context, id string, hasRead bool) error
	MarkAllNotificationsRead(ctx context.Context, receiverID string) error
	DeleteNotification(ctx context.Context, id string) error
	DeleteNotificationsByUser(ctx context.Context, userID string) error
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// pictures
	UpsertPicture(ctx context.Context, p domain.Picture) (domain.Picture, error)
	GetPicture(ctx context.Context, id string) (domain.Picture, bool, error)
	DeletePicturesByOwner(ctx context.Context, ownerKey string) ([]domain.Picture, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user up to a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}
