package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"polygram/internal/util"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/weightage"
)

const migrateLockID int64 = 51847702

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{},
		&TopicModel{},
		&QuestionModel{},
		&OpinionModel{},
		&VoteModel{},
		&NotificationModel{},
		&PictureModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := tx.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_verified_username
			ON user_models (username) WHERE verified;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_verified_email
			ON user_models (email) WHERE verified;
		CREATE INDEX IF NOT EXISTS idx_question_topics
			ON question_models USING GIN (topics);
		CREATE INDEX IF NOT EXISTS idx_question_search
			ON question_models USING GIN (to_tsvector('english', title || ' ' || content));
	`).Error; err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			DELETE FROM vote_models v
			WHERE NOT EXISTS (SELECT 1 FROM opinion_models o WHERE o.id = v.opinion_id);
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'vote_models'
				AND constraint_name = 'vote_models_opinion_id_fkey'
			) THEN
				ALTER TABLE vote_models
				ADD CONSTRAINT vote_models_opinion_id_fkey
				FOREIGN KEY (opinion_id) REFERENCES opinion_models(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure vote foreign keys: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Transaction runs fn inside a database transaction. Nested calls use
// savepoints.
func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrNotFound
	default:
		return err
	}
}

func first[M any, T any](q *gorm.DB, convert func(M) T) (T, bool, error) {
	var model M
	var zero T
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return convert(model), true, nil
}

func paginate(q *gorm.DB, column string, page pagination.Page) *gorm.DB {
	if cond, args := page.Where(column); cond != "" {
		q = q.Where(cond, args...)
	}
	q = q.Order(column + " DESC")
	if page.Size > 0 {
		q = q.Limit(page.Size)
	}
	return q
}

// CreateUser inserts a new user.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return translate(s.conn(ctx).Create(&model).Error)
}

// UpdateUser writes the columns named by upd.
func (s *GormStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (domain.User, error) {
	res := s.conn(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(userUpdateColumns(upd))
	if res.Error != nil {
		return domain.User{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.User{}, ErrNotFound
	}
	u, ok, err := s.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func userUpdateColumns(upd UserUpdate) map[string]any {
	values := map[string]any{}
	if upd.FirstName != nil {
		values["first_name"] = *upd.FirstName
	}
	if upd.LastName != nil {
		values["last_name"] = *upd.LastName
	}
	if upd.Bio != nil {
		values["bio"] = *upd.Bio
	}
	if upd.ProfilePicture != nil {
		values["profile_picture"] = *upd.ProfilePicture
	}
	if upd.PasswordHash != nil {
		values["password_hash"] = *upd.PasswordHash
	}
	if upd.OTP != nil {
		values["otp_hash"] = upd.OTP.Hash
		if upd.OTP.GeneratedAt.IsZero() {
			values["otp_generated_at"] = nil
		} else {
			values["otp_generated_at"] = upd.OTP.GeneratedAt.UTC()
		}
	}
	if upd.Verified != nil {
		values["verified"] = *upd.Verified
	}
	if upd.PushSubscription != nil {
		if strings.TrimSpace(*upd.PushSubscription) == "" {
			values["push_subscription"] = nil
		} else {
			values["push_subscription"] = datatypes.JSON(*upd.PushSubscription)
		}
	}
	at := upd.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	values["updated_at"] = at.UTC()
	return values
}

// FollowTopics appends the topics missing from the stored set, keeping
// first-follow order.
func (s *GormStore) FollowTopics(ctx context.Context, userID string, topics []string, at time.Time) ([]string, error) {
	return s.rewriteFollowed(ctx, userID, `ARRAY(
		SELECT t FROM unnest(followed_topics || ?::text[]) WITH ORDINALITY AS f(t, n)
		GROUP BY t ORDER BY min(n))`, topics, at)
}

// UnfollowTopics removes topics from the stored set.
func (s *GormStore) UnfollowTopics(ctx context.Context, userID string, topics []string, at time.Time) ([]string, error) {
	return s.rewriteFollowed(ctx, userID, `ARRAY(
		SELECT t FROM unnest(followed_topics) WITH ORDINALITY AS f(t, n)
		WHERE NOT (t = ANY(?::text[])) ORDER BY n)`, topics, at)
}

func (s *GormStore) rewriteFollowed(ctx context.Context, userID, expr string, topics []string, at time.Time) ([]string, error) {
	if at.IsZero() {
		at = time.Now()
	}
	var rows []struct {
		FollowedTopics pq.StringArray
	}
	err := s.conn(ctx).Raw(
		"UPDATE user_models SET followed_topics = "+expr+", updated_at = ? WHERE id = ? RETURNING followed_topics",
		pq.StringArray(topics), at.UTC(), userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	out := []string(rows[0].FollowedTopics)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	return first(s.conn(ctx).Where("id = ?", id), userFromModel)
}

// GetUserByUsername prefers the verified account when unverified
// registrations share the username.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	return first(s.conn(ctx).Where("username = ?", username).Order("verified DESC").Order("id DESC"), userFromModel)
}

// GetVerifiedUserByEmail looks up a verified user by email.
func (s *GormStore) GetVerifiedUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return first(s.conn(ctx).Where("email = ? AND verified", email), userFromModel)
}

// HasVerifiedUsername checks if a verified user owns username.
func (s *GormStore) HasVerifiedUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, &UserModel{}, "username = ? AND verified", username)
}

// HasVerifiedEmail checks if a verified user owns email.
func (s *GormStore) HasVerifiedEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, &UserModel{}, "email = ? AND verified", email)
}

func (s *GormStore) exists(ctx context.Context, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := s.conn(ctx).Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteUnverifiedUsers removes pending registrations holding username or email.
func (s *GormStore) DeleteUnverifiedUsers(ctx context.Context, username, email string) error {
	return s.conn(ctx).
		Where("NOT verified AND (username = ? OR email = ?)", username, email).
		Delete(&UserModel{}).Error
}

// ListUsersByIDs returns the users found among ids, in no particular order.
func (s *GormStore) ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	var models []UserModel
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	return convertAll(models, userFromModel), nil
}

// ListPushSubscribers returns verified users among usernames that have a
// push subscription.
func (s *GormStore) ListPushSubscribers(ctx context.Context, usernames []string) ([]domain.User, error) {
	if len(usernames) == 0 {
		return []domain.User{}, nil
	}
	var models []UserModel
	if err := s.conn(ctx).
		Where("verified AND username IN ? AND push_subscription IS NOT NULL", usernames).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return convertAll(models, userFromModel), nil
}

// DeleteUser removes the user row only.
func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	return s.conn(ctx).Delete(&UserModel{}, "id = ?", id).Error
}

// EnsureTopics inserts missing topics and leaves existing ones untouched.
func (s *GormStore) EnsureTopics(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]TopicModel, 0, len(names))
	for _, name := range names {
		models = append(models, TopicModel{ID: util.NewID(), Name: name, CreatedAt: now})
	}
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&models).Error
}

// GetTopic returns a topic by ID.
func (s *GormStore) GetTopic(ctx context.Context, id string) (domain.Topic, bool, error) {
	return first(s.conn(ctx).Where("id = ?", id), topicFromModel)
}

// ListTopics returns a page of topics, optionally filtered by a
// case-insensitive name substring.
func (s *GormStore) ListTopics(ctx context.Context, f TopicFilter) ([]domain.Topic, error) {
	q := s.conn(ctx).Model(&TopicModel{})
	if search := strings.TrimSpace(f.Search); search != "" {
		q = q.Where("name ILIKE ? ESCAPE '\\'", "%"+escapeLike(search)+"%")
	}
	var models []TopicModel
	if err := paginate(q, "id", f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	return convertAll(models, topicFromModel), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CountTopicsByName counts how many of names exist.
func (s *GormStore) CountTopicsByName(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	var count int64
	if err := s.conn(ctx).Model(&TopicModel{}).Where("name IN ?", names).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountQuestionsByTopic returns the number of questions tagged with each
// of names. Topics without questions are absent.
func (s *GormStore) CountQuestionsByTopic(ctx context.Context, names []string) (map[string]int, error) {
	counts := make(map[string]int, len(names))
	if len(names) == 0 {
		return counts, nil
	}
	var rows []struct {
		Name  string
		Count int
	}
	if err := s.conn(ctx).Raw(`
		SELECT t.name AS name, COUNT(*) AS count
		FROM question_models q, unnest(q.topics) AS t(name)
		WHERE t.name IN ?
		GROUP BY t.name`, names).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.Name] = row.Count
	}
	return counts, nil
}

// CreateQuestion inserts a question.
func (s *GormStore) CreateQuestion(ctx context.Context, q domain.Question) error {
	model := questionToModel(q)
	return translate(s.conn(ctx).Create(&model).Error)
}

// GetQuestion returns a question by ID.
func (s *GormStore) GetQuestion(ctx context.Context, id string) (domain.Question, bool, error) {
	return first(s.conn(ctx).Where("id = ?", id), questionFromModel)
}

// ListQuestions returns a page of questions, newest first.
func (s *GormStore) ListQuestions(ctx context.Context, f QuestionFilter) ([]domain.Question, error) {
	q := s.conn(ctx).Model(&QuestionModel{})
	if f.AuthorID != "" {
		q = q.Where("author_id = ?", f.AuthorID)
	}
	switch {
	case f.Topic != "":
		q = q.Where("? = ANY(topics)", f.Topic)
	case f.FollowedOnly:
		q = q.Where("topics && ?", pq.StringArray(f.AnyTopics))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		q = q.Where("to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', ?)", search)
	}
	var models []QuestionModel
	if err := paginate(q, "id", f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	return convertAll(models, questionFromModel), nil
}

// ListQuestionIDsByAuthor returns the ids of every question by authorID.
func (s *GormStore) ListQuestionIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	var ids []string
	if err := s.conn(ctx).Model(&QuestionModel{}).Where("author_id = ?", authorID).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteQuestion removes the question row. Opinions are removed
// separately through DeleteOpinionsByQuestions.
func (s *GormStore) DeleteQuestion(ctx context.Context, id string) error {
	return s.conn(ctx).Delete(&QuestionModel{}, "id = ?", id).Error
}

// DeleteQuestionsByAuthor removes question rows by authorID. Opinions are
// removed separately through DeleteOpinionsByQuestions.
func (s *GormStore) DeleteQuestionsByAuthor(ctx context.Context, authorID string) error {
	return s.conn(ctx).Delete(&QuestionModel{}, "author_id = ?", authorID).Error
}

// CreateOpinion inserts an opinion; a second opinion by the same author on
// the same question returns ErrDuplicate.
func (s *GormStore) CreateOpinion(ctx context.Context, o domain.Opinion) error {
	model := opinionToModel(o)
	return translate(s.conn(ctx).Create(&model).Error)
}

// GetOpinion returns an opinion by ID.
func (s *GormStore) GetOpinion(ctx context.Context, id string) (domain.Opinion, bool, error) {
	return first(s.conn(ctx).Where("id = ?", id), opinionFromModel)
}

// HasOpinion reports whether authorID already answered questionID.
func (s *GormStore) HasOpinion(ctx context.Context, questionID, authorID string) (bool, error) {
	return s.exists(ctx, &OpinionModel{}, "question_id = ? AND author_id = ?", questionID, authorID)
}

type opinionRow struct {
	OpinionModel
	Upvotes    int
	Downvotes  int
	ViewerVote *string
}

func (s *GormStore) opinionStatsQuery(ctx context.Context, viewerID string) *gorm.DB {
	var viewer any
	if viewerID != "" {
		viewer = viewerID
	}
	return s.conn(ctx).Table("opinion_models AS o").
		Select(`o.*,
			COUNT(v.user_id) FILTER (WHERE v.kind = 'upvote') AS upvotes,
			COUNT(v.user_id) FILTER (WHERE v.kind = 'downvote') AS downvotes,
			MAX(CASE WHEN v.user_id = ? THEN v.kind END) AS viewer_vote`, viewer).
		Joins("LEFT JOIN vote_models v ON v.opinion_id = o.id").
		Group("o.id")
}

// ListOpinions returns a page of a question's opinions with vote counts.
func (s *GormStore) ListOpinions(ctx context.Context, f OpinionFilter) ([]domain.OpinionStats, error) {
	q := s.opinionStatsQuery(ctx, f.ViewerID).Where("o.question_id = ?", f.QuestionID)
	var rows []opinionRow
	if err := paginate(q, "o.id", f.Page).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OpinionStats, 0, len(rows))
	for _, row := range rows {
		stats := domain.OpinionStats{
			Opinion:    opinionFromModel(row.OpinionModel),
			VoteCounts: domain.VoteCounts{Upvotes: row.Upvotes, Downvotes: row.Downvotes},
		}
		if row.ViewerVote != nil {
			stats.ViewerVote = domain.VoteKind(*row.ViewerVote)
		}
		out = append(out, stats)
	}
	return out, nil
}

// ListTallies returns one tally per opinion of questionID.
func (s *GormStore) ListTallies(ctx context.Context, questionID string) ([]weightage.Tally, error) {
	var rows []opinionRow
	if err := s.opinionStatsQuery(ctx, "").
		Where("o.question_id = ?", questionID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	tallies := make([]weightage.Tally, 0, len(rows))
	for _, row := range rows {
		tallies = append(tallies, weightage.Tally{
			Option:    row.Option,
			Upvotes:   row.Upvotes,
			Downvotes: row.Downvotes,
		})
	}
	return tallies, nil
}

// DeleteOpinion removes an opinion and its votes.
func (s *GormStore) DeleteOpinion(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteOpinionsWhere(tx, "id = ?", id)
	})
}

// DeleteOpinionsByQuestions removes every opinion attached to questionIDs.
func (s *GormStore) DeleteOpinionsByQuestions(ctx context.Context, questionIDs []string) error {
	if len(questionIDs) == 0 {
		return nil
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteOpinionsWhere(tx, "question_id IN ?", questionIDs)
	})
}

// DeleteOpinionsByAuthor removes every opinion written by authorID.
func (s *GormStore) DeleteOpinionsByAuthor(ctx context.Context, authorID string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteOpinionsWhere(tx, "author_id = ?", authorID)
	})
}

func deleteOpinionsWhere(tx *gorm.DB, query string, args ...any) error {
	ids := tx.Model(&OpinionModel{}).Select("id").Where(query, args...)
	if err := tx.Where("opinion_id IN (?)", ids).Delete(&VoteModel{}).Error; err != nil {
		return err
	}
	return tx.Where(query, args...).Delete(&OpinionModel{}).Error
}

// CastVote records userID's vote of kind on opinionID, replacing a vote of
// the opposite kind.
func (s *GormStore) CastVote(ctx context.Context, opinionID, userID string, kind domain.VoteKind) (domain.VoteCounts, error) {
	var counts domain.VoteCounts
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireOpinion(tx, opinionID); err != nil {
			return err
		}
		now := time.Now().UTC()
		vote := VoteModel{
			OpinionID: opinionID,
			UserID:    userID,
			Kind:      string(kind),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "opinion_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
		}).Create(&vote).Error; err != nil {
			return err
		}
		var err error
		counts, err = voteCounts(tx, opinionID)
		return err
	})
	return counts, translate(err)
}

// RetractVote removes userID's vote on opinionID if it has the given kind.
func (s *GormStore) RetractVote(ctx context.Context, opinionID, userID string, kind domain.VoteKind) (domain.VoteCounts, error) {
	var counts domain.VoteCounts
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireOpinion(tx, opinionID); err != nil {
			return err
		}
		if err := tx.Where("opinion_id = ? AND user_id = ? AND kind = ?", opinionID, userID, string(kind)).
			Delete(&VoteModel{}).Error; err != nil {
			return err
		}
		var err error
		counts, err = voteCounts(tx, opinionID)
		return err
	})
	return counts, translate(err)
}

func requireOpinion(tx *gorm.DB, opinionID string) error {
	var count int64
	if err := tx.Model(&OpinionModel{}).Where("id = ?", opinionID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func voteCounts(tx *gorm.DB, opinionID string) (domain.VoteCounts, error) {
	var row struct {
		Upvotes   int
		Downvotes int
	}
	err := tx.Model(&VoteModel{}).
		Select(`COUNT(*) FILTER (WHERE kind = 'upvote') AS upvotes,
			COUNT(*) FILTER (WHERE kind = 'downvote') AS downvotes`).
		Where("opinion_id = ?", opinionID).
		Scan(&row).Error
	return domain.VoteCounts{Upvotes: row.Upvotes, Downvotes: row.Downvotes}, err
}

// DeleteVotesByUser removes every vote cast by userID.
func (s *GormStore) DeleteVotesByUser(ctx context.Context, userID string) error {
	return s.conn(ctx).Delete(&VoteModel{}, "user_id = ?", userID).Error
}

// CreateNotification inserts a notification.
func (s *GormStore) CreateNotification(ctx context.Context, n domain.Notification) error {
	model := notificationToModel(n)
	return translate(s.conn(ctx).Create(&model).Error)
}

// GetNotification returns a notification by ID.
func (s *GormStore) GetNotification(ctx context.Context, id string) (domain.Notification, bool, error) {
	return first(s.conn(ctx).Where("id = ?", id), notificationFromModel)
}

// ListNotifications returns a page of the receiver's notifications.
func (s *GormStore) ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error) {
	q := s.conn(ctx).Model(&NotificationModel{}).Where("receiver_id = ?", f.ReceiverID)
	var models []NotificationModel
	if err := paginate(q, "id", f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	return convertAll(models, notificationFromModel), nil
}

// CountUnreadNotifications counts the receiver's unread notifications.
func (s *GormStore) CountUnreadNotifications(ctx context.Context, receiverID string) (int, error) {
	var count int64
	if err := s.conn(ctx).Model(&NotificationModel{}).
		Where("receiver_id = ? AND NOT has_read", receiverID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SetNotificationRead sets the read flag of one notification.
func (s *GormStore) SetNotificationRead(ctx context.Context, id string, hasRead bool) error {
	res := s.conn(ctx).Model(&NotificationModel{}).Where("id = ?", id).Update("has_read", hasRead)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of the receiver read.
func (s *GormStore) MarkAllNotificationsRead(ctx context.Context, receiverID string) error {
	return s.conn(ctx).Model(&NotificationModel{}).
		Where("receiver_id = ? AND NOT has_read", receiverID).
		Update("has_read", true).Error
}

// DeleteNotification removes one notification.
func (s *GormStore) DeleteNotification(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&NotificationModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNotificationsByUser removes notifications sent or received by userID.
func (s *GormStore) DeleteNotificationsByUser(ctx context.Context, userID string) error {
	return s.conn(ctx).
		Where("receiver_id = ? OR sender_id = ?", userID, userID).
		Delete(&NotificationModel{}).Error
}

// DeleteNotificationsBefore purges notifications created before cutoff.
func (s *GormStore) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.conn(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&NotificationModel{})
	return res.RowsAffected, res.Error
}

// UpsertPicture stores picture metadata keyed by owner and type and
// returns the stored row, which keeps its original ID on update.
func (s *GormStore) UpsertPicture(ctx context.Context, p domain.Picture) (domain.Picture, error) {
	model := pictureToModel(p)
	db := s.conn(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_key"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "object_key", "size_bytes", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.Picture{}, err
	}
	stored, ok, err := first(db.Where("owner_key = ? AND type = ?", p.OwnerKey, p.Type), pictureFromModel)
	if err != nil {
		return domain.Picture{}, err
	}
	if !ok {
		return domain.Picture{}, ErrNotFound
	}
	return stored, nil
}

// GetPicture returns picture metadata by ID.
func (s *GormStore) GetPicture(ctx context.Context, id string) (domain.Picture, bool, error) {
	return first(s.conn(ctx).Where("id = ?", id), pictureFromModel)
}

// DeletePicturesByOwner removes the owner's picture rows and returns them
// so the caller can drop the stored objects.
func (s *GormStore) DeletePicturesByOwner(ctx context.Context, ownerKey string) ([]domain.Picture, error) {
	var models []PictureModel
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_key = ?", ownerKey).Find(&models).Error; err != nil {
			return err
		}
		return tx.Delete(&PictureModel{}, "owner_key = ?", ownerKey).Error
	})
	if err != nil {
		return nil, err
	}
	return convertAll(models, pictureFromModel), nil
}

func convertAll[M any, T any](models []M, convert func(M) T) []T {
	out := make([]T, 0, len(models))
	for _, m := range models {
		out = append(out, convert(m))
	}
	return out
}

func userToModel(u domain.User) UserModel {
	var otpAt *time.Time
	if !u.OTP.GeneratedAt.IsZero() {
		at := u.OTP.GeneratedAt.UTC()
		otpAt = &at
	}
	var sub datatypes.JSON
	if strings.TrimSpace(u.PushSubscription) != "" {
		sub = datatypes.JSON(u.PushSubscription)
	}
	topics := u.FollowedTopics
	if topics == nil {
		topics = []string{}
	}
	return UserModel{
		ID:               u.ID,
		Username:         u.Username,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Bio:              u.Bio,
		ProfilePicture:   u.ProfilePicture,
		OTPHash:          u.OTP.Hash,
		OTPGeneratedAt:   otpAt,
		Verified:         u.Verified,
		FollowedTopics:   pq.StringArray(topics),
		PushSubscription: sub,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	otp := domain.OTP{Hash: m.OTPHash}
	if m.OTPGeneratedAt != nil {
		otp.GeneratedAt = m.OTPGeneratedAt.UTC()
	}
	topics := []string(m.FollowedTopics)
	if topics == nil {
		topics = []string{}
	}
	return domain.User{
		ID:               m.ID,
		Username:         m.Username,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		PasswordHash:     m.PasswordHash,
		Bio:              m.Bio,
		ProfilePicture:   m.ProfilePicture,
		OTP:              otp,
		Verified:         m.Verified,
		FollowedTopics:   topics,
		PushSubscription: string(m.PushSubscription),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func topicFromModel(m TopicModel) domain.Topic {
	return domain.Topic{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

func questionToModel(q domain.Question) QuestionModel {
	return QuestionModel{
		ID:        q.ID,
		AuthorID:  q.AuthorID,
		Title:     q.Title,
		Content:   q.Content,
		Options:   pq.StringArray(q.Options),
		Topics:    pq.StringArray(q.Topics),
		CreatedAt: q.CreatedAt,
	}
}

func questionFromModel(m QuestionModel) domain.Question {
	return domain.Question{
		ID:        m.ID,
		AuthorID:  m.AuthorID,
		Title:     m.Title,
		Content:   m.Content,
		Options:   []string(m.Options),
		Topics:    []string(m.Topics),
		CreatedAt: m.CreatedAt,
	}
}

func opinionToModel(o domain.Opinion) OpinionModel {
	return OpinionModel{
		ID:         o.ID,
		QuestionID: o.QuestionID,
		AuthorID:   o.AuthorID,
		Content:    o.Content,
		Option:     o.Option,
		CreatedAt:  o.CreatedAt,
	}
}

func opinionFromModel(m OpinionModel) domain.Opinion {
	return domain.Opinion{
		ID:         m.ID,
		QuestionID: m.QuestionID,
		AuthorID:   m.AuthorID,
		Content:    m.Content,
		Option:     m.Option,
		CreatedAt:  m.CreatedAt,
	}
}

func notificationToModel(n domain.Notification) NotificationModel {
	var sender *string
	if strings.TrimSpace(n.SenderID) != "" {
		value := strings.TrimSpace(n.SenderID)
		sender = &value
	}
	return NotificationModel{
		ID:              n.ID,
		ReceiverID:      n.ReceiverID,
		SenderID:        sender,
		Type:            string(n.Type),
		Message:         n.Message,
		TargetContentID: n.TargetContentID,
		HasRead:         n.HasRead,
		CreatedAt:       n.CreatedAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	sender := ""
	if m.SenderID != nil {
		sender = *m.SenderID
	}
	return domain.Notification{
		ID:              m.ID,
		ReceiverID:      m.ReceiverID,
		SenderID:        sender,
		Type:            domain.NotificationType(m.Type),
		Message:         m.Message,
		TargetContentID: m.TargetContentID,
		HasRead:         m.HasRead,
		CreatedAt:       m.CreatedAt,
	}
}

func pictureToModel(p domain.Picture) PictureModel {
	return PictureModel{
		ID:          p.ID,
		OwnerKey:    p.OwnerKey,
		Type:        p.Type,
		ContentType: p.ContentType,
		ObjectKey:   p.ObjectKey,
		SizeBytes:   p.SizeBytes,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func pictureFromModel(m PictureModel) domain.Picture {
	return domain.Picture{
		ID:          m.ID,
		OwnerKey:    m.OwnerKey,
		Type:        m.Type,
		ContentType: m.ContentType,
		ObjectKey:   m.ObjectKey,
		SizeBytes:   m.SizeBytes,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
