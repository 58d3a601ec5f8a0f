package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"polygram/internal/util"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/weightage"
)

type voteKey struct {
	opinionID string
	userID    string
}

type memoryData struct {
	users         map[string]domain.User
	topics        map[string]domain.Topic
	questions     map[string]domain.Question
	opinions      map[string]domain.Opinion
	votes         map[voteKey]domain.VoteKind
	notifications map[string]domain.Notification
	pictures      map[string]domain.Picture
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:         make(map[string]domain.User),
		topics:        make(map[string]domain.Topic),
		questions:     make(map[string]domain.Question),
		opinions:      make(map[string]domain.Opinion),
		votes:         make(map[voteKey]domain.VoteKind),
		notifications: make(map[string]domain.Notification),
		pictures:      make(map[string]domain.Picture),
	}
}

// clone copies every table. Stored values never share slices with
// callers, so copying the maps is enough.
func (d *memoryData) clone() *memoryData {
	return &memoryData{
		users:         cloneMap(d.users),
		topics:        cloneMap(d.topics),
		questions:     cloneMap(d.questions),
		opinions:      cloneMap(d.opinions),
		votes:         cloneMap(d.votes),
		notifications: cloneMap(d.notifications),
		pictures:      cloneMap(d.pictures),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemoryStore keeps every table in-process. It is used by tests and by
// single-instance development runs without Postgres.
type MemoryStore struct {
	txMu *sync.Mutex
	mu   *sync.RWMutex
	data *memoryData
	inTx bool
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txMu: &sync.Mutex{},
		mu:   &sync.RWMutex{},
		data: newMemoryData(),
	}
}

// Transaction runs fn with exclusive write access. On error every change
// made by fn is discarded.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.inTx {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	tx := &MemoryStore{txMu: m.txMu, mu: m.mu, data: m.data, inTx: true}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		*m.data = *snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) write() func() {
	if !m.inTx {
		m.txMu.Lock()
	}
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		if !m.inTx {
			m.txMu.Unlock()
		}
	}
}

func (m *MemoryStore) read() func() {
	m.mu.RLock()
	return m.mu.RUnlock
}

func pageByID[T any](items []T, id func(T) string, page pagination.Page) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if page.Admits(id(item)) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) > id(out[j]) })
	if page.Size > 0 && len(out) > page.Size {
		out = out[:page.Size]
	}
	return out
}

func cloneUser(u domain.User) domain.User {
	u.FollowedTopics = slices.Clone(u.FollowedTopics)
	if u.FollowedTopics == nil {
		u.FollowedTopics = []string{}
	}
	return u
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = slices.Clone(q.Options)
	q.Topics = slices.Clone(q.Topics)
	return q
}

// CreateUser inserts a new user.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.users[u.ID]; ok {
		return ErrDuplicate
	}
	if u.Verified && m.verifiedConflict(u) {
		return ErrDuplicate
	}
	m.data.users[u.ID] = cloneUser(u)
	return nil
}

// UpdateUser applies upd to the stored row.
func (m *MemoryStore) UpdateUser(_ context.Context, id string, upd UserUpdate) (domain.User, error) {
	unlock := m.write()
	defer unlock()
	u, ok := m.data.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.ProfilePicture != nil {
		u.ProfilePicture = *upd.ProfilePicture
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.OTP != nil {
		u.OTP = *upd.OTP
	}
	if upd.PushSubscription != nil {
		u.PushSubscription = *upd.PushSubscription
	}
	if upd.Verified != nil {
		u.Verified = *upd.Verified
		if u.Verified && m.verifiedConflict(u) {
			return domain.User{}, ErrDuplicate
		}
	}
	u.UpdatedAt = upd.UpdatedAt.UTC()
	if upd.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	m.data.users[id] = cloneUser(u)
	return cloneUser(u), nil
}

// FollowTopics adds topics not yet followed, keeping first-follow order.
func (m *MemoryStore) FollowTopics(_ context.Context, userID string, topics []string, at time.Time) ([]string, error) {
	return m.rewriteFollowed(userID, at, func(current []string) []string {
		for _, t := range topics {
			if !slices.Contains(current, t) {
				current = append(current, t)
			}
		}
		return current
	})
}

// UnfollowTopics removes topics from the followed set.
func (m *MemoryStore) UnfollowTopics(_ context.Context, userID string, topics []string, at time.Time) ([]string, error) {
	return m.rewriteFollowed(userID, at, func(current []string) []string {
		return slices.DeleteFunc(current, func(t string) bool { return slices.Contains(topics, t) })
	})
}

func (m *MemoryStore) rewriteFollowed(userID string, at time.Time, fn func([]string) []string) ([]string, error) {
	unlock := m.write()
	defer unlock()
	u, ok := m.data.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u.FollowedTopics = fn(slices.Clone(u.FollowedTopics))
	if at.IsZero() {
		at = time.Now()
	}
	u.UpdatedAt = at.UTC()
	m.data.users[userID] = cloneUser(u)
	return cloneUser(u).FollowedTopics, nil
}

func (m *MemoryStore) verifiedConflict(u domain.User) bool {
	for id, other := range m.data.users {
		if id == u.ID || !other.Verified {
			continue
		}
		if other.Username == u.Username || other.Email == u.Email {
			return true
		}
	}
	return false
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	defer m.read()()
	u, ok := m.data.users[id]
	return cloneUser(u), ok, nil
}

// GetUserByUsername prefers the verified account when unverified
// registrations share the username.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (domain.User, bool, error) {
	defer m.read()()
	var found domain.User
	ok := false
	for _, u := range m.data.users {
		if u.Username != username {
			continue
		}
		if !ok || (u.Verified && !found.Verified) || (u.Verified == found.Verified && u.ID > found.ID) {
			found, ok = u, true
		}
	}
	return cloneUser(found), ok, nil
}

// GetVerifiedUserByEmail looks up a verified user by email.
func (m *MemoryStore) GetVerifiedUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	defer m.read()()
	for _, u := range m.data.users {
		if u.Verified && u.Email == email {
			return cloneUser(u), true, nil
		}
	}
	return domain.User{}, false, nil
}

// HasVerifiedUsername checks if a verified user owns username.
func (m *MemoryStore) HasVerifiedUsername(_ context.Context, username string) (bool, error) {
	defer m.read()()
	for _, u := range m.data.users {
		if u.Verified && u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// HasVerifiedEmail checks if a verified user owns email.
func (m *MemoryStore) HasVerifiedEmail(_ context.Context, email string) (bool, error) {
	defer m.read()()
	for _, u := range m.data.users {
		if u.Verified && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// DeleteUnverifiedUsers removes pending registrations holding username or email.
func (m *MemoryStore) DeleteUnverifiedUsers(_ context.Context, username, email string) error {
	unlock := m.write()
	defer unlock()
	for id, u := range m.data.users {
		if !u.Verified && (u.Username == username || u.Email == email) {
			delete(m.data.users, id)
		}
	}
	return nil
}

// ListUsersByIDs returns the users found among ids.
func (m *MemoryStore) ListUsersByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	defer m.read()()
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.data.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

// ListPushSubscribers returns verified users among usernames that have a
// push subscription.
func (m *MemoryStore) ListPushSubscribers(_ context.Context, usernames []string) ([]domain.User, error) {
	defer m.read()()
	out := make([]domain.User, 0, len(usernames))
	for _, u := range m.data.users {
		if u.Verified && u.PushSubscription != "" && slices.Contains(usernames, u.Username) {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

// DeleteUser removes the user row only.
func (m *MemoryStore) DeleteUser(_ context.Context, id string) error {
	unlock := m.write()
	defer unlock()
	delete(m.data.users, id)
	return nil
}

// EnsureTopics inserts missing topics and leaves existing ones untouched.
func (m *MemoryStore) EnsureTopics(_ context.Context, names []string) error {
	unlock := m.write()
	defer unlock()
	existing := make(map[string]bool, len(m.data.topics))
	for _, t := range m.data.topics {
		existing[t.Name] = true
	}
	now := time.Now().UTC()
	for _, name := range names {
		if existing[name] {
			continue
		}
		t := domain.Topic{ID: util.NewID(), Name: name, CreatedAt: now}
		m.data.topics[t.ID] = t
		existing[name] = true
	}
	return nil
}

// GetTopic returns a topic by ID.
func (m *MemoryStore) GetTopic(_ context.Context, id string) (domain.Topic, bool, error) {
	defer m.read()()
	t, ok := m.data.topics[id]
	return t, ok, nil
}

// ListTopics returns a page of topics filtered by name substring.
func (m *MemoryStore) ListTopics(_ context.Context, f TopicFilter) ([]domain.Topic, error) {
	defer m.read()()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	items := make([]domain.Topic, 0, len(m.data.topics))
	for _, t := range m.data.topics {
		if search == "" || strings.Contains(strings.ToLower(t.Name), search) {
			items = append(items, t)
		}
	}
	return pageByID(items, func(t domain.Topic) string { return t.ID }, f.Page), nil
}

// CountTopicsByName counts how many of names exist.
func (m *MemoryStore) CountTopicsByName(_ context.Context, names []string) (int, error) {
	defer m.read()()
	count := 0
	for _, t := range m.data.topics {
		if slices.Contains(names, t.Name) {
			count++
		}
	}
	return count, nil
}

// CountQuestionsByTopic returns the number of questions tagged with each
// of names. Topics without questions are absent.
func (m *MemoryStore) CountQuestionsByTopic(_ context.Context, names []string) (map[string]int, error) {
	defer m.read()()
	counts := make(map[string]int, len(names))
	for _, q := range m.data.questions {
		for _, topic := range q.Topics {
			if slices.Contains(names, topic) {
				counts[topic]++
			}
		}
	}
	return counts, nil
}

// CreateQuestion inserts a question.
func (m *MemoryStore) CreateQuestion(_ context.Context, q domain.Question) error {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.questions[q.ID]; ok {
		return ErrDuplicate
	}
	m.data.questions[q.ID] = cloneQuestion(q)
	return nil
}

// GetQuestion returns a question by ID.
func (m *MemoryStore) GetQuestion(_ context.Context, id string) (domain.Question, bool, error) {
	defer m.read()()
	q, ok := m.data.questions[id]
	return cloneQuestion(q), ok, nil
}

// ListQuestions returns a page of questions, newest first.
func (m *MemoryStore) ListQuestions(_ context.Context, f QuestionFilter) ([]domain.Question, error) {
	defer m.read()()
	terms := strings.Fields(strings.ToLower(f.Search))
	items := make([]domain.Question, 0)
	for _, q := range m.data.questions {
		if f.AuthorID != "" && q.AuthorID != f.AuthorID {
			continue
		}
		switch {
		case f.Topic != "":
			if !slices.Contains(q.Topics, f.Topic) {
				continue
			}
		case f.FollowedOnly:
			if !slices.ContainsFunc(q.Topics, func(t string) bool { return slices.Contains(f.AnyTopics, t) }) {
				continue
			}
		}
		if !matchesTerms(q.Title+" "+q.Content, terms) {
			continue
		}
		items = append(items, cloneQuestion(q))
	}
	return pageByID(items, func(q domain.Question) string { return q.ID }, f.Page), nil
}

func matchesTerms(text string, terms []string) bool {
	text = strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// ListQuestionIDsByAuthor returns the ids of every question by authorID.
func (m *MemoryStore) ListQuestionIDsByAuthor(_ context.Context, authorID string) ([]string, error) {
	defer m.read()()
	ids := make([]string, 0)
	for id, q := range m.data.questions {
		if q.AuthorID == authorID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteQuestion removes the question row. Opinions are removed
// separately through DeleteOpinionsByQuestions.
func (m *MemoryStore) DeleteQuestion(_ context.Context, id string) error {
	unlock := m.write()
	defer unlock()
	delete(m.data.questions, id)
	return nil
}

// DeleteQuestionsByAuthor removes question rows by authorID.
func (m *MemoryStore) DeleteQuestionsByAuthor(_ context.Context, authorID string) error {
	unlock := m.write()
	defer unlock()
	for id, q := range m.data.questions {
		if q.AuthorID == authorID {
			delete(m.data.questions, id)
		}
	}
	return nil
}

// CreateOpinion inserts an opinion; one opinion per author and question.
func (m *MemoryStore) CreateOpinion(_ context.Context, o domain.Opinion) error {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.opinions[o.ID]; ok {
		return ErrDuplicate
	}
	for _, other := range m.data.opinions {
		if other.QuestionID == o.QuestionID && other.AuthorID == o.AuthorID {
			return ErrDuplicate
		}
	}
	m.data.opinions[o.ID] = o
	return nil
}

// GetOpinion returns an opinion by ID.
func (m *MemoryStore) GetOpinion(_ context.Context, id string) (domain.Opinion, bool, error) {
	defer m.read()()
	o, ok := m.data.opinions[id]
	return o, ok, nil
}

// HasOpinion reports whether authorID already answered questionID.
func (m *MemoryStore) HasOpinion(_ context.Context, questionID, authorID string) (bool, error) {
	defer m.read()()
	for _, o := range m.data.opinions {
		if o.QuestionID == questionID && o.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) countsLocked(opinionID string) domain.VoteCounts {
	var counts domain.VoteCounts
	for key, kind := range m.data.votes {
		if key.opinionID != opinionID {
			continue
		}
		switch kind {
		case domain.VoteUp:
			counts.Upvotes++
		case domain.VoteDown:
			counts.Downvotes++
		}
	}
	return counts
}

// ListOpinions returns a page of a question's opinions with vote counts.
func (m *MemoryStore) ListOpinions(_ context.Context, f OpinionFilter) ([]domain.OpinionStats, error) {
	defer m.read()()
	items := make([]domain.OpinionStats, 0)
	for _, o := range m.data.opinions {
		if o.QuestionID != f.QuestionID {
			continue
		}
		stats := domain.OpinionStats{Opinion: o, VoteCounts: m.countsLocked(o.ID)}
		if f.ViewerID != "" {
			stats.ViewerVote = m.data.votes[voteKey{opinionID: o.ID, userID: f.ViewerID}]
		}
		items = append(items, stats)
	}
	return pageByID(items, func(s domain.OpinionStats) string { return s.ID }, f.Page), nil
}

// ListTallies returns one tally per opinion of questionID.
func (m *MemoryStore) ListTallies(_ context.Context, questionID string) ([]weightage.Tally, error) {
	defer m.read()()
	tallies := make([]weightage.Tally, 0)
	for _, o := range m.data.opinions {
		if o.QuestionID != questionID {
			continue
		}
		counts := m.countsLocked(o.ID)
		tallies = append(tallies, weightage.Tally{Option: o.Option, Upvotes: counts.Upvotes, Downvotes: counts.Downvotes})
	}
	return tallies, nil
}

// DeleteOpinion removes an opinion and its votes.
func (m *MemoryStore) DeleteOpinion(_ context.Context, id string) error {
	unlock := m.write()
	defer unlock()
	m.deleteOpinionsLocked(func(o domain.Opinion) bool { return o.ID == id })
	return nil
}

// DeleteOpinionsByQuestions removes every opinion attached to questionIDs.
func (m *MemoryStore) DeleteOpinionsByQuestions(_ context.Context, questionIDs []string) error {
	unlock := m.write()
	defer unlock()
	m.deleteOpinionsLocked(func(o domain.Opinion) bool { return slices.Contains(questionIDs, o.QuestionID) })
	return nil
}

// DeleteOpinionsByAuthor removes every opinion written by authorID.
func (m *MemoryStore) DeleteOpinionsByAuthor(_ context.Context, authorID string) error {
	unlock := m.write()
	defer unlock()
	m.deleteOpinionsLocked(func(o domain.Opinion) bool { return o.AuthorID == authorID })
	return nil
}

func (m *MemoryStore) deleteOpinionsLocked(match func(domain.Opinion) bool) {
	for id, o := range m.data.opinions {
		if !match(o) {
			continue
		}
		for key := range m.data.votes {
			if key.opinionID == id {
				delete(m.data.votes, key)
			}
		}
		delete(m.data.opinions, id)
	}
}

// CastVote records userID's vote of kind, replacing a vote of the opposite kind.
func (m *MemoryStore) CastVote(_ context.Context, opinionID, userID string, kind domain.VoteKind) (domain.VoteCounts, error) {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.opinions[opinionID]; !ok {
		return domain.VoteCounts{}, ErrNotFound
	}
	m.data.votes[voteKey{opinionID: opinionID, userID: userID}] = kind
	return m.countsLocked(opinionID), nil
}

// RetractVote removes userID's vote if it has the given kind.
func (m *MemoryStore) RetractVote(_ context.Context, opinionID, userID string, kind domain.VoteKind) (domain.VoteCounts, error) {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.opinions[opinionID]; !ok {
		return domain.VoteCounts{}, ErrNotFound
	}
	key := voteKey{opinionID: opinionID, userID: userID}
	if m.data.votes[key] == kind {
		delete(m.data.votes, key)
	}
	return m.countsLocked(opinionID), nil
}

// DeleteVotesByUser removes every vote cast by userID.
func (m *MemoryStore) DeleteVotesByUser(_ context.Context, userID string) error {
	unlock := m.write()
	defer unlock()
	for key := range m.data.votes {
		if key.userID == userID {
			delete(m.data.votes, key)
		}
	}
	return nil
}

// CreateNotification inserts a notification.
func (m *MemoryStore) CreateNotification(_ context.Context, n domain.Notification) error {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.notifications[n.ID]; ok {
		return ErrDuplicate
	}
	m.data.notifications[n.ID] = n
	return nil
}

// GetNotification returns a notification by ID.
func (m *MemoryStore) GetNotification(_ context.Context, id string) (domain.Notification, bool, error) {
	defer m.read()()
	n, ok := m.data.notifications[id]
	return n, ok, nil
}

// ListNotifications returns a page of the receiver's notifications.
func (m *MemoryStore) ListNotifications(_ context.Context, f NotificationFilter) ([]domain.Notification, error) {
	defer m.read()()
	items := make([]domain.Notification, 0)
	for _, n := range m.data.notifications {
		if n.ReceiverID == f.ReceiverID {
			items = append(items, n)
		}
	}
	return pageByID(items, func(n domain.Notification) string { return n.ID }, f.Page), nil
}

// CountUnreadNotifications counts the receiver's unread notifications.
func (m *MemoryStore) CountUnreadNotifications(_ context.Context, receiverID string) (int, error) {
	defer m.read()()
	count := 0
	for _, n := range m.data.notifications {
		if n.ReceiverID == receiverID && !n.HasRead {
			count++
		}
	}
	return count, nil
}

// SetNotificationRead sets the read flag of one notification.
func (m *MemoryStore) SetNotificationRead(_ context.Context, id string, hasRead bool) error {
	unlock := m.write()
	defer unlock()
	n, ok := m.data.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.HasRead = hasRead
	m.data.notifications[id] = n
	return nil
}

// MarkAllNotificationsRead marks every notification of the receiver read.
func (m *MemoryStore) MarkAllNotificationsRead(_ context.Context, receiverID string) error {
	unlock := m.write()
	defer unlock()
	for id, n := range m.data.notifications {
		if n.ReceiverID == receiverID {
			n.HasRead = true
			m.data.notifications[id] = n
		}
	}
	return nil
}

// DeleteNotification removes one notification.
func (m *MemoryStore) DeleteNotification(_ context.Context, id string) error {
	unlock := m.write()
	defer unlock()
	if _, ok := m.data.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(m.data.notifications, id)
	return nil
}

// DeleteNotificationsByUser removes notifications sent or received by userID.
func (m *MemoryStore) DeleteNotificationsByUser(_ context.Context, userID string) error {
	unlock := m.write()
	defer unlock()
	for id, n := range m.data.notifications {
		if n.ReceiverID == userID || n.SenderID == userID {
			delete(m.data.notifications, id)
		}
	}
	return nil
}

// DeleteNotificationsBefore purges notifications created before cutoff.
func (m *MemoryStore) DeleteNotificationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	unlock := m.write()
	defer unlock()
	var deleted int64
	for id, n := range m.data.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(m.data.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// UpsertPicture stores picture metadata keyed by owner and type.
func (m *MemoryStore) UpsertPicture(_ context.Context, p domain.Picture) (domain.Picture, error) {
	unlock := m.write()
	defer unlock()
	for id, existing := range m.data.pictures {
		if existing.OwnerKey == p.OwnerKey && existing.Type == p.Type {
			existing.ContentType = p.ContentType
			existing.ObjectKey = p.ObjectKey
			existing.SizeBytes = p.SizeBytes
			existing.UpdatedAt = p.UpdatedAt
			m.data.pictures[id] = existing
			return existing, nil
		}
	}
	m.data.pictures[p.ID] = p
	return p, nil
}

// GetPicture returns picture metadata by ID.
func (m *MemoryStore) GetPicture(_ context.Context, id string) (domain.Picture, bool, error) {
	defer m.read()()
	p, ok := m.data.pictures[id]
	return p, ok, nil
}

// DeletePicturesByOwner removes and returns the owner's pictures.
func (m *MemoryStore) DeletePicturesByOwner(_ context.Context, ownerKey string) ([]domain.Picture, error) {
	unlock := m.write()
	defer unlock()
	out := make([]domain.Picture, 0)
	for id, p := range m.data.pictures {
		if p.OwnerKey == ownerKey {
			out = append(out, p)
			delete(m.data.pictures, id)
		}
	}
	return out, nil
}
