package store

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"polygram/internal/util"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
)

func seedQuestion(t *testing.T, s *MemoryStore, topics ...string) domain.Question {
	t.Helper()
	q := domain.Question{
		ID:        util.NewID(),
		AuthorID:  util.NewID(),
		Title:     "Which editor do you prefer?",
		Content:   "Pick the editor you use for most of your daily work.",
		Options:   []string{"vim", "emacs"},
		Topics:    topics,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateQuestion(context.Background(), q); err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func TestMemoryStoreListQuestionsPaginatesNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, seedQuestion(t, s, "tech").ID)
	}

	page, err := pagination.New("", "", 5, pagination.Questions)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	got, err := s.ListQuestions(ctx, QuestionFilter{Page: page})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 5 || got[0].ID != ids[6] || got[4].ID != ids[2] {
		t.Fatalf("unexpected first page: %+v", got)
	}

	page, err = pagination.New("", got[4].ID, 5, pagination.Questions)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	got, err = s.ListQuestions(ctx, QuestionFilter{Page: page})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[1] || got[1].ID != ids[0] {
		t.Fatalf("unexpected second page: %+v", got)
	}
}

func TestMemoryStoreListQuestionsFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tech := seedQuestion(t, s, "tech")
	seedQuestion(t, s, "music")

	page := pagination.First(pagination.Questions)
	got, err := s.ListQuestions(ctx, QuestionFilter{Page: page, FollowedOnly: true, AnyTopics: []string{"tech", "art"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != tech.ID {
		t.Fatalf("expected only followed topic questions, got %+v", got)
	}

	got, err = s.ListQuestions(ctx, QuestionFilter{Page: page, FollowedOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no questions without followed topics, got %d", len(got))
	}

	got, err = s.ListQuestions(ctx, QuestionFilter{Page: page, Topic: "music", FollowedOnly: true, AnyTopics: []string{"tech"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Topics[0] != "music" {
		t.Fatalf("expected topic to override following, got %+v", got)
	}

	got, err = s.ListQuestions(ctx, QuestionFilter{Page: page, Search: "DAILY editor"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected search to match both, got %d", len(got))
	}
}

func TestMemoryStoreVotesAreExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	q := seedQuestion(t, s, "tech")
	o := domain.Opinion{ID: util.NewID(), QuestionID: q.ID, AuthorID: util.NewID(), Content: "vim all day", Option: "vim"}
	if err := s.CreateOpinion(ctx, o); err != nil {
		t.Fatalf("create opinion: %v", err)
	}

	counts, err := s.CastVote(ctx, o.ID, "u1", domain.VoteUp)
	if err != nil || counts != (domain.VoteCounts{Upvotes: 1}) {
		t.Fatalf("upvote: %+v %v", counts, err)
	}
	counts, err = s.CastVote(ctx, o.ID, "u1", domain.VoteUp)
	if err != nil || counts != (domain.VoteCounts{Upvotes: 1}) {
		t.Fatalf("repeat upvote should be a no-op: %+v %v", counts, err)
	}
	counts, err = s.CastVote(ctx, o.ID, "u1", domain.VoteDown)
	if err != nil || counts != (domain.VoteCounts{Downvotes: 1}) {
		t.Fatalf("downvote should replace upvote: %+v %v", counts, err)
	}
	counts, err = s.RetractVote(ctx, o.ID, "u1", domain.VoteUp)
	if err != nil || counts != (domain.VoteCounts{Downvotes: 1}) {
		t.Fatalf("retracting the other kind should be a no-op: %+v %v", counts, err)
	}
	counts, err = s.RetractVote(ctx, o.ID, "u1", domain.VoteDown)
	if err != nil || counts != (domain.VoteCounts{}) {
		t.Fatalf("retract downvote: %+v %v", counts, err)
	}
	if _, err := s.CastVote(ctx, util.NewID(), "u1", domain.VoteUp); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown opinion, got %v", err)
	}
}

func TestMemoryStoreRejectsSecondOpinion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	q := seedQuestion(t, s, "tech")
	o := domain.Opinion{ID: util.NewID(), QuestionID: q.ID, AuthorID: "author", Option: "vim"}
	if err := s.CreateOpinion(ctx, o); err != nil {
		t.Fatalf("create opinion: %v", err)
	}
	o.ID = util.NewID()
	if err := s.CreateOpinion(ctx, o); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestMemoryStoreTransactionRollsBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	q := seedQuestion(t, s, "tech")
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx Store) error {
		if err := tx.DeleteQuestion(ctx, q.ID); err != nil {
			return err
		}
		return tx.CreateNotification(ctx, domain.Notification{ID: util.NewID(), ReceiverID: q.AuthorID})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, ok, _ := s.GetQuestion(ctx, q.ID); ok {
		t.Fatalf("expected committed delete")
	}

	q = seedQuestion(t, s, "tech")
	err = s.Transaction(ctx, func(tx Store) error {
		if err := tx.DeleteQuestion(ctx, q.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, _ := s.GetQuestion(ctx, q.ID); !ok {
		t.Fatalf("expected rollback to restore the question")
	}
}

func TestMemoryStoreVerifiedUsernameIsUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first := domain.User{ID: util.NewID(), Username: "alice", Email: "a@example.com", Verified: true}
	if err := s.CreateUser(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	pending := domain.User{ID: util.NewID(), Username: "alice", Email: "b@example.com"}
	if err := s.CreateUser(ctx, pending); err != nil {
		t.Fatalf("unverified duplicates are allowed: %v", err)
	}
	verified := true
	if _, err := s.UpdateUser(ctx, pending.ID, UserUpdate{Verified: &verified}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate on verify, got %v", err)
	}

	got, ok, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || !ok || got.ID != first.ID {
		t.Fatalf("expected verified user to win, got %+v ok=%v err=%v", got, ok, err)
	}
	if err := s.DeleteUnverifiedUsers(ctx, "alice", ""); err != nil {
		t.Fatalf("delete unverified: %v", err)
	}
	if _, ok, _ := s.GetUserByID(ctx, pending.ID); ok {
		t.Fatalf("expected pending user to be removed")
	}
}

func TestMemoryStorePictureUpsertKeepsID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := domain.Picture{ID: util.NewID(), OwnerKey: "alice", Type: domain.PictureTypeProfile, SizeBytes: 1}
	first, err := s.UpsertPicture(ctx, p)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p.ID = util.NewID()
	p.SizeBytes = 2
	second, err := s.UpsertPicture(ctx, p)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID || second.SizeBytes != 2 {
		t.Fatalf("unexpected upsert result: %+v", second)
	}
	removed, err := s.DeletePicturesByOwner(ctx, "alice")
	if err != nil || len(removed) != 1 {
		t.Fatalf("delete by owner: %d %v", len(removed), err)
	}
}

func TestMemoryStoreUpdateUserKeepsOtherColumns(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := domain.User{ID: util.NewID(), Username: "alice", Email: "a@example.com", PasswordHash: "old", Bio: "hi", Verified: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	hash := "new"
	if _, err := s.UpdateUser(ctx, u.ID, UserUpdate{PasswordHash: &hash}); err != nil {
		t.Fatalf("update password: %v", err)
	}
	sub := `{"endpoint":"https://push.example.com/1"}`
	got, err := s.UpdateUser(ctx, u.ID, UserUpdate{PushSubscription: &sub})
	if err != nil {
		t.Fatalf("update subscription: %v", err)
	}
	if got.PasswordHash != "new" || got.PushSubscription != sub || got.Bio != "hi" {
		t.Fatalf("unexpected user after updates: %+v", got)
	}
	if _, err := s.UpdateUser(ctx, util.NewID(), UserUpdate{PasswordHash: &hash}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreFollowTopicsIsSetUnion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := domain.User{ID: util.NewID(), Username: "alice", Email: "a@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Now()

	if _, err := s.FollowTopics(ctx, u.ID, []string{"sports"}, now); err != nil {
		t.Fatalf("follow sports: %v", err)
	}
	followed, err := s.FollowTopics(ctx, u.ID, []string{"music", "sports"}, now)
	if err != nil {
		t.Fatalf("follow music: %v", err)
	}
	if !slices.Equal(followed, []string{"sports", "music"}) {
		t.Fatalf("expected [sports music], got %v", followed)
	}

	followed, err = s.UnfollowTopics(ctx, u.ID, []string{"sports", "art"}, now)
	if err != nil || !slices.Equal(followed, []string{"music"}) {
		t.Fatalf("unfollow: %v %v", followed, err)
	}
	if _, err := s.FollowTopics(ctx, util.NewID(), []string{"music"}, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreDeleteQuestionLeavesOpinions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	q := seedQuestion(t, s, "tech")
	o := domain.Opinion{ID: util.NewID(), QuestionID: q.ID, AuthorID: util.NewID(), Option: "vim"}
	if err := s.CreateOpinion(ctx, o); err != nil {
		t.Fatalf("create opinion: %v", err)
	}
	if err := s.DeleteQuestion(ctx, q.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if _, ok, _ := s.GetOpinion(ctx, o.ID); !ok {
		t.Fatalf("opinions are removed by DeleteOpinionsByQuestions, not DeleteQuestion")
	}
}
