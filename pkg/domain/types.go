package domain

import "time"

type NotificationType string

const (
	NotificationAddedOpinion    NotificationType = "added-opinion"
	NotificationChangedPassword NotificationType = "changed-password"
)

type VoteKind string

const (
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// PictureTypeProfile is the picture type used for avatars.
const PictureTypeProfile = "profile_picture"

// OTP is a pending one-time password. Hash is a bcrypt hash of the code;
// a zero GeneratedAt means no code is outstanding.
type OTP struct {
	Hash        string
	GeneratedAt time.Time
}

type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName,omitempty"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Bio              string    `json:"bio,omitempty"`
	ProfilePicture   string    `json:"profilePicture,omitempty"`
	OTP              OTP       `json:"-"`
	Verified         bool      `json:"-"`
	FollowedTopics   []string  `json:"followedTopics"`
	PushSubscription string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UserSummary is the public projection of a user embedded in other objects.
type UserSummary struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		ProfilePicture: u.ProfilePicture,
	}
}

// PublicProfile is the part of an account shown to other users.
type PublicProfile struct {
	UserSummary
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Public() PublicProfile {
	return PublicProfile{UserSummary: u.Summary(), Bio: u.Bio, CreatedAt: u.CreatedAt}
}

type Question struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Options   []string  `json:"options"`
	Topics    []string  `json:"topics"`
	CreatedAt time.Time `json:"createdAt"`
}

type Opinion struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	AuthorID   string    `json:"authorId"`
	Content    string    `json:"content"`
	Option     string    `json:"option"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VoteCounts is the size of an opinion's upvote and downvote sets.
type VoteCounts struct {
	Upvotes   int `json:"upvoteCount"`
	Downvotes int `json:"downvoteCount"`
}

// OpinionStats is an opinion with its vote counts and, when a viewer is
// known, the viewer's own vote.
type OpinionStats struct {
	Opinion
	VoteCounts
	ViewerVote VoteKind `json:"-"`
}

type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Notification struct {
	ID              string           `json:"id"`
	ReceiverID      string           `json:"receiverId"`
	SenderID        string           `json:"senderId,omitempty"`
	Type            NotificationType `json:"type"`
	Message         string           `json:"message"`
	TargetContentID string           `json:"targetContentId,omitempty"`
	HasRead         bool             `json:"hasRead"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Picture is image metadata; the bytes live in object storage under ObjectKey.
type Picture struct {
	ID          string    `json:"id"`
	OwnerKey    string    `json:"ownerKey"`
	Type        string    `json:"type"`
	ContentType string    `json:"contentType"`
	ObjectKey   string    `json:"-"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
