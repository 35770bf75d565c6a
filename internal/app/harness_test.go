package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"peerreview/api/internal/config"
	"peerreview/api/internal/store"
	"peerreview/api/internal/visibility"
)

// memStore is an in-memory dataStore for exercising the service without
// Postgres. Lookups mirror the real store's edge behavior: missing rows
// return sql.ErrNoRows, missing memberships return "", and missing
// reputation rows read as zero.
type memStore struct {
	mu sync.Mutex

	users      map[string]store.User
	emailIndex map[string]string
	resets     map[string]*memReset
	refresh    map[string]memRefresh

	papers       map[string]store.Paper
	paperAuthors map[string][]store.PaperAuthor
	versions     map[string][]store.PaperVersion
	paperFields  map[string][]string
	fields       map[string]store.Field
	reputation   map[string]map[string]int

	journals map[string]store.Journal
	members  map[string]map[string]store.JournalMember

	submissions map[string]store.JournalSubmission
	subOrder    []string
	editors     map[string][]string
	reviewers   map[string][]string

	events     map[string]store.PaperEvent
	eventOrder []string

	reviews  map[string]store.Review
	comments map[string]store.ReviewComment

	flags map[string]string
}

type memReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

type memRefresh struct {
	userID    string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]store.User{},
		emailIndex:   map[string]string{},
		resets:       map[string]*memReset{},
		refresh:      map[string]memRefresh{},
		papers:       map[string]store.Paper{},
		paperAuthors: map[string][]store.PaperAuthor{},
		versions:     map[string][]store.PaperVersion{},
		paperFields:  map[string][]string{},
		fields:       map[string]store.Field{},
		reputation:   map[string]map[string]int{},
		journals:     map[string]store.Journal{},
		members:      map[string]map[string]store.JournalMember{},
		submissions:  map[string]store.JournalSubmission{},
		editors:      map[string][]string{},
		reviewers:    map[string][]string{},
		events:       map[string]store.PaperEvent{},
		reviews:      map[string]store.Review{},
		comments:     map[string]store.ReviewComment{},
		flags:        map[string]string{},
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

// ====== Users and auth ======

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emailIndex[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return m.users[id], nil
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emailIndex[user.Email]; exists {
		return fmt.Errorf("duplicate email %s", user.Email)
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *memStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	m.users[userID] = user
	return nil
}

func (m *memStore) VerifyUserEmail(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if user.VerificationToken == token && user.VerificationExpiresAt != nil && user.VerificationExpiresAt.After(time.Now()) {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			user.VerificationExpiresAt = nil
			m.users[id] = user
			return nil
		}
	}
	return errors.New("invalid or expired verification token")
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = &memReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset, ok := m.resets[token]
	if !ok || reset.used || reset.expiresAt.Before(time.Now()) {
		return "", sql.ErrNoRows
	}
	return reset.userID, nil
}

func (m *memStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset, ok := m.resets[token]; ok {
		reset.used = true
	}
	return nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = memRefresh{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.refresh[tokenHash]
	if !ok || session.expiresAt.Before(time.Now()) {
		return store.User{}, sql.ErrNoRows
	}
	return m.users[session.userID], nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

// ====== Papers ======

func (m *memStore) InsertPaper(_ context.Context, paper store.Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.papers[paper.ID] = paper
	return nil
}

func (m *memStore) GetPaper(_ context.Context, paperID string) (store.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paper, ok := m.papers[paperID]
	if !ok {
		return store.Paper{}, sql.ErrNoRows
	}
	return paper, nil
}

func (m *memStore) ListPaperIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.papers))
	for id := range m.papers {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) SetPaperPreprint(_ context.Context, paperID string, show bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	paper, ok := m.papers[paperID]
	if !ok {
		return sql.ErrNoRows
	}
	paper.ShowPreprint = show
	m.papers[paperID] = paper
	return nil
}

func (m *memStore) SetPaperDraft(_ context.Context, paperID string, isDraft bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	paper, ok := m.papers[paperID]
	if !ok {
		return sql.ErrNoRows
	}
	paper.IsDraft = isDraft
	m.papers[paperID] = paper
	return nil
}

func (m *memStore) InsertPaperAuthor(_ context.Context, author store.PaperAuthor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paperAuthors[author.PaperID] = append(m.paperAuthors[author.PaperID], author)
	return nil
}

func (m *memStore) GetPaperAuthors(_ context.Context, paperID string) ([]store.PaperAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.PaperAuthor(nil), m.paperAuthors[paperID]...), nil
}

func (m *memStore) InsertPaperVersion(_ context.Context, version store.PaperVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[version.PaperID] = append(m.versions[version.PaperID], version)
	return nil
}

func (m *memStore) GetLatestPaperVersion(_ context.Context, paperID string) (store.PaperVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.versions[paperID]
	if len(versions) == 0 {
		return store.PaperVersion{}, sql.ErrNoRows
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.Version > latest.Version {
			latest = v
		}
	}
	return latest, nil
}

func (m *memStore) SetVersionPreprint(_ context.Context, paperID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.versions[paperID] {
		if v.Version == version {
			m.versions[paperID][i].IsPreprint = true
		}
	}
	return nil
}

func (m *memStore) SetVersionSubmitted(_ context.Context, paperID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.versions[paperID] {
		if v.Version == version {
			m.versions[paperID][i].IsSubmitted = true
		}
	}
	return nil
}

func (m *memStore) SetVersionPublished(_ context.Context, paperID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.versions[paperID] {
		if v.Version == version {
			m.versions[paperID][i].IsPublished = true
		}
	}
	return nil
}

func (m *memStore) InsertPaperField(_ context.Context, paperID, fieldID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paperFields[paperID] = append(m.paperFields[paperID], fieldID)
	return nil
}

func (m *memStore) GetPaperFields(_ context.Context, paperID string) ([]store.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fields []store.Field
	for _, id := range m.paperFields[paperID] {
		fields = append(fields, m.fields[id])
	}
	return fields, nil
}

func (m *memStore) GetFieldReputation(_ context.Context, userID, fieldID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reputation[userID][fieldID], nil
}

// ====== Journals ======

func (m *memStore) InsertJournal(_ context.Context, journal store.Journal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journals[journal.ID] = journal
	return nil
}

func (m *memStore) GetJournal(_ context.Context, journalID string) (store.Journal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	journal, ok := m.journals[journalID]
	if !ok {
		return store.Journal{}, sql.ErrNoRows
	}
	return journal, nil
}

func (m *memStore) SetJournalModel(_ context.Context, journalID, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	journal, ok := m.journals[journalID]
	if !ok {
		return sql.ErrNoRows
	}
	journal.Model = model
	m.journals[journalID] = journal
	return nil
}

func (m *memStore) UpsertJournalMember(_ context.Context, member store.JournalMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[member.JournalID] == nil {
		m.members[member.JournalID] = map[string]store.JournalMember{}
	}
	m.members[member.JournalID][member.UserID] = member
	return nil
}

func (m *memStore) RemoveJournalMember(_ context.Context, journalID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[journalID], userID)
	return nil
}

func (m *memStore) GetJournalMembership(_ context.Context, journalID, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[journalID][userID]
	if !ok {
		return "", nil
	}
	return member.Permissions, nil
}

func (m *memStore) ListJournalMembers(_ context.Context, journalID string) ([]store.JournalMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []store.JournalMember
	for _, member := range m.members[journalID] {
		members = append(members, member)
	}
	return members, nil
}

// ====== Submissions ======

func (m *memStore) InsertSubmission(_ context.Context, submission store.JournalSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[submission.ID] = submission
	m.subOrder = append(m.subOrder, submission.ID)
	return nil
}

func (m *memStore) GetSubmission(_ context.Context, submissionID string) (store.JournalSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	submission, ok := m.submissions[submissionID]
	if !ok {
		return store.JournalSubmission{}, sql.ErrNoRows
	}
	return submission, nil
}

func (m *memStore) GetActiveSubmission(_ context.Context, paperID string) (*store.JournalSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.subOrder) - 1; i >= 0; i-- {
		submission := m.submissions[m.subOrder[i]]
		if submission.PaperID != paperID {
			continue
		}
		switch submission.Status {
		case store.StatusPublished, store.StatusRejected, store.StatusRetracted:
			continue
		}
		active := submission
		return &active, nil
	}
	return nil, nil
}

func (m *memStore) GetSubmissionsForUser(_ context.Context, userID, paperID string) ([]store.JournalSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []store.JournalSubmission
	for _, id := range m.subOrder {
		submission := m.submissions[id]
		if submission.PaperID != paperID {
			continue
		}
		related := false
		if _, ok := m.members[submission.JournalID][userID]; ok {
			related = true
		}
		for _, assignee := range append(append([]string(nil), m.editors[id]...), m.reviewers[id]...) {
			if assignee == userID {
				related = true
			}
		}
		if related {
			result = append(result, submission)
		}
	}
	return result, nil
}

func (m *memStore) UpdateSubmissionStatus(_ context.Context, submissionID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	submission, ok := m.submissions[submissionID]
	if !ok {
		return sql.ErrNoRows
	}
	submission.Status = status
	m.submissions[submissionID] = submission
	return nil
}

func (m *memStore) AddAssignedEditor(_ context.Context, submissionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editors[submissionID] = append(m.editors[submissionID], userID)
	return nil
}

func (m *memStore) RemoveAssignedEditor(_ context.Context, submissionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editors[submissionID] = removeString(m.editors[submissionID], userID)
	return nil
}

func (m *memStore) AddAssignedReviewer(_ context.Context, submissionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewers[submissionID] = append(m.reviewers[submissionID], userID)
	return nil
}

func (m *memStore) RemoveAssignedReviewer(_ context.Context, submissionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewers[submissionID] = removeString(m.reviewers[submissionID], userID)
	return nil
}

func (m *memStore) GetAssignedEditors(_ context.Context, submissionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.editors[submissionID]...), nil
}

func (m *memStore) GetAssignedReviewers(_ context.Context, submissionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reviewers[submissionID]...), nil
}

// ====== Events ======

func (m *memStore) InsertPaperEvent(_ context.Context, event store.PaperEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
	m.eventOrder = append(m.eventOrder, event.ID)
	return nil
}

func (m *memStore) GetPaperEvent(_ context.Context, eventID string) (store.PaperEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[eventID]
	if !ok {
		return store.PaperEvent{}, sql.ErrNoRows
	}
	return event, nil
}

func (m *memStore) GetReviewEvent(_ context.Context, reviewID string) (store.PaperEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.eventOrder {
		event := m.events[id]
		if event.Type == string(visibility.EventReviewPosted) && event.ReviewID != nil && *event.ReviewID == reviewID {
			return event, nil
		}
	}
	return store.PaperEvent{}, sql.ErrNoRows
}

func (m *memStore) ListPaperEvents(_ context.Context, paperID string) ([]store.PaperEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []store.PaperEvent
	for _, id := range m.eventOrder {
		if m.events[id].PaperID == paperID {
			events = append(events, m.events[id])
		}
	}
	return events, nil
}

func (m *memStore) UpdateEventVisibility(_ context.Context, eventID string, visibility []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[eventID]
	if !ok {
		return sql.ErrNoRows
	}
	event.Visibility = visibility
	m.events[eventID] = event
	return nil
}

// ====== Reviews ======

func (m *memStore) InsertReview(_ context.Context, review store.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[review.ID] = review
	return nil
}

func (m *memStore) GetReview(_ context.Context, reviewID string) (store.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[reviewID]
	if !ok {
		return store.Review{}, sql.ErrNoRows
	}
	return review, nil
}

func (m *memStore) InsertReviewComment(_ context.Context, comment store.ReviewComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[comment.ID] = comment
	return nil
}

// ====== Feature flags ======

func (m *memStore) IsEnabled(_ context.Context, flag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[flag] == store.FeatureEnabled, nil
}

func (m *memStore) SetFeature(_ context.Context, flag, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[flag] = status
	return nil
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// ====== Test harness ======

func testConfig() config.Config {
	return config.Config{
		JWTSecret:        "test-secret",
		AccessTTL:        time.Hour,
		RefreshTTL:       24 * time.Hour,
		CORSOrigin:       "*",
		ReviewThreshold:  5,
		RefereeThreshold: 10,
		PublishThreshold: 0,
	}
}

func newTestService(st *memStore) *Service {
	return New(testConfig(), st)
}

func (m *memStore) seedUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = store.User{ID: id, DisplayName: name, Email: id + "@example.org", IsEmailVerified: true}
	m.emailIndex[id+"@example.org"] = id
}

func (m *memStore) seedReputation(userID, fieldID string, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reputation[userID] == nil {
		m.reputation[userID] = map[string]int{}
	}
	m.reputation[userID][fieldID] = value
}

func (m *memStore) seedField(id, name string, averageReputation int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[id] = store.Field{ID: id, Name: name, AverageReputation: averageReputation}
}
