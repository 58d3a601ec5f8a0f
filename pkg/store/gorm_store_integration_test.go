package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"polygram/internal/util"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
)

func newPostgresStore(t *testing.T) *GormStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("polygram"),
		postgres.WithUsername("polygram"),
		postgres.WithPassword("polygram"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	s, err := NewGormStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStorePostgres(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	author := domain.User{ID: util.NewID(), Username: "author", FirstName: "Ada", Email: "ada@example.com", PasswordHash: "x", Verified: true, CreatedAt: now, UpdatedAt: now}
	voter := domain.User{ID: util.NewID(), Username: "voter", FirstName: "Bob", Email: "bob@example.com", PasswordHash: "x", Verified: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(ctx, author))
	require.NoError(t, s.CreateUser(ctx, voter))
	require.NoError(t, s.EnsureTopics(ctx, []string{"science", "sports", "science"}))

	question := domain.Question{
		ID:        util.NewID(),
		AuthorID:  author.ID,
		Title:     "Is the universe expanding faster?",
		Content:   "Recent measurements disagree about the Hubble constant value.",
		Options:   []string{"yes", "no"},
		Topics:    []string{"science"},
		CreatedAt: now,
	}
	require.NoError(t, s.CreateQuestion(ctx, question))

	t.Run("topics", func(t *testing.T) {
		count, err := s.CountTopicsByName(ctx, []string{"science", "sports", "art"})
		require.NoError(t, err)
		require.Equal(t, 2, count)

		topics, err := s.ListTopics(ctx, TopicFilter{Page: pagination.First(pagination.Topics), Search: "SCI"})
		require.NoError(t, err)
		require.Len(t, topics, 1)
		require.Equal(t, "science", topics[0].Name)

		counts, err := s.CountQuestionsByTopic(ctx, []string{"science", "sports"})
		require.NoError(t, err)
		require.Equal(t, map[string]int{"science": 1}, counts)
	})

	t.Run("question filters", func(t *testing.T) {
		page := pagination.First(pagination.Questions)
		found, err := s.ListQuestions(ctx, QuestionFilter{Page: page, Search: "hubble"})
		require.NoError(t, err)
		require.Len(t, found, 1)

		found, err = s.ListQuestions(ctx, QuestionFilter{Page: page, FollowedOnly: true, AnyTopics: []string{"sports"}})
		require.NoError(t, err)
		require.Empty(t, found)

		found, err = s.ListQuestions(ctx, QuestionFilter{Page: page, Topic: "science", FollowedOnly: true})
		require.NoError(t, err)
		require.Len(t, found, 1)
	})

	opinion := domain.Opinion{ID: util.NewID(), QuestionID: question.ID, AuthorID: voter.ID, Content: "Probably yes", Option: "yes", CreatedAt: now}
	require.NoError(t, s.CreateOpinion(ctx, opinion))

	t.Run("duplicate opinion", func(t *testing.T) {
		dup := opinion
		dup.ID = util.NewID()
		require.ErrorIs(t, s.CreateOpinion(ctx, dup), ErrDuplicate)
	})

	t.Run("votes", func(t *testing.T) {
		counts, err := s.CastVote(ctx, opinion.ID, voter.ID, domain.VoteUp)
		require.NoError(t, err)
		require.Equal(t, domain.VoteCounts{Upvotes: 1}, counts)

		counts, err = s.CastVote(ctx, opinion.ID, voter.ID, domain.VoteDown)
		require.NoError(t, err)
		require.Equal(t, domain.VoteCounts{Downvotes: 1}, counts)

		counts, err = s.RetractVote(ctx, opinion.ID, voter.ID, domain.VoteUp)
		require.NoError(t, err)
		require.Equal(t, domain.VoteCounts{Downvotes: 1}, counts)

		_, err = s.CastVote(ctx, util.NewID(), voter.ID, domain.VoteUp)
		require.ErrorIs(t, err, ErrNotFound)

		stats, err := s.ListOpinions(ctx, OpinionFilter{Page: pagination.First(pagination.Opinions), QuestionID: question.ID, ViewerID: voter.ID})
		require.NoError(t, err)
		require.Len(t, stats, 1)
		require.Equal(t, domain.VoteDown, stats[0].ViewerVote)

		tallies, err := s.ListTallies(ctx, question.ID)
		require.NoError(t, err)
		require.Len(t, tallies, 1)
		require.Equal(t, -1, tallies[0].Upvotes-tallies[0].Downvotes)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		n := domain.Notification{ID: util.NewID(), ReceiverID: author.ID, Type: domain.NotificationAddedOpinion, Message: "hello", CreatedAt: now}
		err := s.Transaction(ctx, func(tx Store) error {
			require.NoError(t, tx.CreateNotification(ctx, n))
			return ErrDuplicate
		})
		require.ErrorIs(t, err, ErrDuplicate)
		_, ok, err := s.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("notifications", func(t *testing.T) {
		old := domain.Notification{ID: util.NewID(), ReceiverID: author.ID, SenderID: voter.ID, Type: domain.NotificationAddedOpinion, Message: "old one", CreatedAt: now.Add(-40 * 24 * time.Hour)}
		fresh := domain.Notification{ID: util.NewID(), ReceiverID: author.ID, Type: domain.NotificationChangedPassword, Message: "fresh one", CreatedAt: now}
		require.NoError(t, s.CreateNotification(ctx, old))
		require.NoError(t, s.CreateNotification(ctx, fresh))

		unread, err := s.CountUnreadNotifications(ctx, author.ID)
		require.NoError(t, err)
		require.Equal(t, 2, unread)

		deleted, err := s.DeleteNotificationsBefore(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)

		require.NoError(t, s.MarkAllNotificationsRead(ctx, author.ID))
		unread, err = s.CountUnreadNotifications(ctx, author.ID)
		require.NoError(t, err)
		require.Zero(t, unread)
		require.ErrorIs(t, s.SetNotificationRead(ctx, util.NewID(), true), ErrNotFound)
	})

	t.Run("pictures keep id on upsert", func(t *testing.T) {
		p := domain.Picture{ID: util.NewID(), OwnerKey: "author", Type: domain.PictureTypeProfile, ContentType: "image/png", ObjectKey: "pictures/author/profile_picture", SizeBytes: 10, CreatedAt: now, UpdatedAt: now}
		first, err := s.UpsertPicture(ctx, p)
		require.NoError(t, err)
		p.ID = util.NewID()
		p.SizeBytes = 20
		second, err := s.UpsertPicture(ctx, p)
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.EqualValues(t, 20, second.SizeBytes)
	})

	t.Run("vote on vanished opinion", func(t *testing.T) {
		vote := VoteModel{OpinionID: util.NewID(), UserID: voter.ID, Kind: string(domain.VoteUp), CreatedAt: now, UpdatedAt: now}
		require.ErrorIs(t, translate(s.db.WithContext(ctx).Create(&vote).Error), ErrNotFound)
	})

	t.Run("column scoped user updates", func(t *testing.T) {
		hash := "rotated"
		_, err := s.UpdateUser(ctx, voter.ID, UserUpdate{PasswordHash: &hash, OTP: &domain.OTP{}})
		require.NoError(t, err)
		sub := `{"endpoint":"https://push.example.com/1"}`
		got, err := s.UpdateUser(ctx, voter.ID, UserUpdate{PushSubscription: &sub})
		require.NoError(t, err)
		require.Equal(t, "rotated", got.PasswordHash)
		require.JSONEq(t, sub, got.PushSubscription)
		require.Equal(t, "Bob", got.FirstName)

		_, err = s.UpdateUser(ctx, util.NewID(), UserUpdate{PasswordHash: &hash})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("follow topics is a set union", func(t *testing.T) {
		followed, err := s.FollowTopics(ctx, voter.ID, []string{"sports"}, now)
		require.NoError(t, err)
		require.Equal(t, []string{"sports"}, followed)
		followed, err = s.FollowTopics(ctx, voter.ID, []string{"science", "sports"}, now)
		require.NoError(t, err)
		require.Equal(t, []string{"sports", "science"}, followed)

		followed, err = s.UnfollowTopics(ctx, voter.ID, []string{"sports"}, now)
		require.NoError(t, err)
		require.Equal(t, []string{"science"}, followed)
		followed, err = s.UnfollowTopics(ctx, voter.ID, []string{"science"}, now)
		require.NoError(t, err)
		require.Empty(t, followed)

		_, err = s.FollowTopics(ctx, util.NewID(), []string{"sports"}, now)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete question cascades", func(t *testing.T) {
		require.NoError(t, s.DeleteQuestion(ctx, question.ID))
		_, ok, err := s.GetOpinion(ctx, opinion.ID)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.DeleteOpinionsByQuestions(ctx, []string{question.ID}))
		_, ok, err = s.GetOpinion(ctx, opinion.ID)
		require.NoError(t, err)
		require.False(t, ok)
	})
}
