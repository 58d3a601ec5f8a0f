package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/store"
)

func TestCreateOpinionUpvotesAndNotifiesAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	if err := env.app.Subscribe(ctx, alice, `{"endpoint":"https://push.example/alice","keys":{"p256dh":"k","auth":"a"}}`); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	q := env.question(t, alice)

	o := env.opinion(t, bob, q.ID, "Go")
	if o.Upvotes != 1 || o.Downvotes != 0 {
		t.Fatalf("counts = %+v, want auto upvote", o.VoteCounts)
	}

	notes, err := env.app.ListNotifications(ctx, alice, pagination.First(pagination.Notifications))
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}
	n := notes[0]
	if n.Type != domain.NotificationAddedOpinion || n.SenderID != bob.ID || n.TargetContentID != q.ID || n.Message != q.Title {
		t.Fatalf("unexpected notification: %+v", n)
	}

	env.app.Wait()
	jobs := env.queue.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("push jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Receiver != alice.ID || jobs[0].Title != "Received an Opinion" || !strings.Contains(jobs[0].Body, q.Title) {
		t.Fatalf("unexpected push job: %+v", jobs[0])
	}
}

func TestCreateOpinionRejectsDuplicatesAndBadOptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	q := env.question(t, alice)
	env.opinion(t, bob, q.ID, "Go")

	_, err := env.app.CreateOpinion(ctx, bob, CreateOpinionInput{QuestionID: q.ID, Content: "Changed my mind.", Option: "Rust"})
	requireCode(t, err, apperr.CodeAlreadyExists)

	_, err = env.app.CreateOpinion(ctx, alice, CreateOpinionInput{QuestionID: q.ID, Content: "Something else.", Option: "Cobol"})
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	_, err = env.app.CreateOpinion(ctx, alice, CreateOpinionInput{QuestionID: util.NewID(), Content: "Something else.", Option: "Go"})
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestCreateOpinionRollsBackWhenNotificationFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	q := env.question(t, alice)

	failing := newTestApp(t, failingStore{Store: env.store}, env)
	_, err := failing.CreateOpinion(ctx, bob, CreateOpinionInput{QuestionID: q.ID, Content: "This will not stick.", Option: "Go"})
	requireCode(t, err, apperr.CodeInternal)

	has, err := env.store.HasOpinion(ctx, q.ID, bob.ID)
	if err != nil || has {
		t.Fatalf("opinion survived rollback: has=%v err=%v", has, err)
	}
	tallies, err := env.store.ListTallies(ctx, q.ID)
	if err != nil || len(tallies) != 0 {
		t.Fatalf("tallies after rollback = %+v, %v", tallies, err)
	}
	failing.Wait()
	if len(env.queue.Jobs()) != 0 {
		t.Fatalf("push must not be dispatched for a rolled back opinion")
	}
}

func TestDeleteQuestionCascadesAndChecksOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	q := env.question(t, alice)
	o := env.opinion(t, bob, q.ID, "Rust")

	if err := env.app.DeleteQuestion(ctx, bob, q.ID); !errors.Is(err, ErrDeleteQuestion) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if err := env.app.DeleteQuestion(ctx, alice, q.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if _, ok, _ := env.store.GetOpinion(ctx, o.ID); ok {
		t.Fatalf("opinion should be deleted with its question")
	}
	if _, err := env.app.Upvote(ctx, alice, o.ID); !errors.Is(err, ErrOpinionNotFound) {
		t.Fatalf("expected opinion not found, got %v", err)
	}
	if err := env.app.DeleteQuestion(ctx, alice, q.ID); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestDeleteAccountRemovesOwnedData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	carol := env.user(t, "carol")

	aliceQ := env.question(t, alice)
	carolQ := env.question(t, carol)
	bobOnAlice := env.opinion(t, bob, aliceQ.ID, "Go")
	aliceOnCarol := env.opinion(t, alice, carolQ.ID, "Java")
	bobOnCarol := env.opinion(t, bob, carolQ.ID, "Go")
	if _, err := env.app.Upvote(ctx, alice, bobOnCarol.ID); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	alice, err := env.app.SetProfilePicture(ctx, alice, ProfilePictureInput{Image: testPNG(700)})
	if err != nil {
		t.Fatalf("set picture: %v", err)
	}

	requireCode(t, env.app.DeleteAccount(ctx, alice, DeleteAccountInput{Password: "wrong-pw1!"}), apperr.CodeUnauthenticated)
	if err := env.app.DeleteAccount(ctx, alice, DeleteAccountInput{Password: "secret-pw1!"}); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, ok, _ := env.store.GetUserByID(ctx, alice.ID); ok {
		t.Fatalf("user row should be gone")
	}
	if _, ok, _ := env.store.GetQuestion(ctx, aliceQ.ID); ok {
		t.Fatalf("question should be gone")
	}
	for _, id := range []string{bobOnAlice.ID, aliceOnCarol.ID} {
		if _, ok, _ := env.store.GetOpinion(ctx, id); ok {
			t.Fatalf("opinion %s should be gone", id)
		}
	}
	counts, err := env.app.RemoveDownvote(ctx, bob, bobOnCarol.ID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Upvotes != 1 {
		t.Fatalf("alice's vote should be removed, counts = %+v", counts)
	}
	if env.objects.Has("pictures/alice/" + domain.PictureTypeProfile) {
		t.Fatalf("picture blob should be deleted")
	}
	notes, err := env.store.ListNotifications(ctx, store.NotificationFilter{Page: pagination.First(pagination.Notifications), ReceiverID: carol.ID})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	for _, n := range notes {
		if n.SenderID == alice.ID {
			t.Fatalf("notification sent by deleted user survived: %+v", n)
		}
	}
}

func TestDeleteAccountRollsBackOnFailure(t *testing.T) {
	for _, failOn := range []string{"DeleteNotificationsByUser", "DeleteUser"} {
		t.Run(failOn, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			alice := env.user(t, "alice")
			bob := env.user(t, "bobby")
			carol := env.user(t, "carol")

			aliceQ := env.question(t, alice)
			carolQ := env.question(t, carol)
			bobOnAlice := env.opinion(t, bob, aliceQ.ID, "Go")
			aliceOnCarol := env.opinion(t, alice, carolQ.ID, "Java")
			bobOnCarol := env.opinion(t, bob, carolQ.ID, "Go")
			if _, err := env.app.Upvote(ctx, alice, bobOnCarol.ID); err != nil {
				t.Fatalf("upvote: %v", err)
			}
			alice, err := env.app.SetProfilePicture(ctx, alice, ProfilePictureInput{Image: testPNG(700)})
			if err != nil {
				t.Fatalf("set picture: %v", err)
			}

			failing := newTestApp(t, failingStore{Store: env.store, failOn: failOn}, env)
			err = failing.DeleteAccount(ctx, alice, DeleteAccountInput{Password: "secret-pw1!"})
			requireCode(t, err, apperr.CodeInternal)
			if !errors.Is(err, errConnReset) {
				t.Fatalf("expected the store failure to be wrapped, got %v", err)
			}

			if _, ok, _ := env.store.GetUserByID(ctx, alice.ID); !ok {
				t.Fatalf("user row should survive")
			}
			if _, ok, _ := env.store.GetQuestion(ctx, aliceQ.ID); !ok {
				t.Fatalf("question should survive")
			}
			for _, id := range []string{bobOnAlice.ID, aliceOnCarol.ID} {
				if _, ok, _ := env.store.GetOpinion(ctx, id); !ok {
					t.Fatalf("opinion %s should survive", id)
				}
			}
			counts, err := env.app.RemoveDownvote(ctx, bob, bobOnCarol.ID)
			if err != nil || counts.Upvotes != 2 {
				t.Fatalf("alice's vote should survive, counts = %+v, %v", counts, err)
			}
			if !env.objects.Has("pictures/alice/" + domain.PictureTypeProfile) {
				t.Fatalf("picture blob should survive")
			}
			id := strings.TrimPrefix(alice.ProfilePicture, "http://polygram.test/api/pictures/")
			if _, ok, _ := env.store.GetPicture(ctx, id); !ok {
				t.Fatalf("picture row should survive")
			}
		})
	}
}

func TestPurgeExpiredNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	for _, age := range []time.Duration{31 * 24 * time.Hour, time.Hour} {
		err := env.store.CreateNotification(ctx, domain.Notification{
			ID:         util.NewID(),
			ReceiverID: alice.ID,
			Type:       domain.NotificationChangedPassword,
			Message:    passwordChangedMessage,
			CreatedAt:  time.Now().UTC().Add(-age),
		})
		if err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}
	n, err := env.app.PurgeExpiredNotifications(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	count, _ := env.app.CountUnread(ctx, alice)
	if count != 1 {
		t.Fatalf("remaining unread = %d, want 1", count)
	}
}
