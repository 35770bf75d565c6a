package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"peerreview/api/internal/auth"
	"peerreview/api/internal/authpw"
	"peerreview/api/internal/config"
	"peerreview/api/internal/email"
	"peerreview/api/internal/files"
	"peerreview/api/internal/reputation"
	"peerreview/api/internal/search"
	"peerreview/api/internal/store"
	"peerreview/api/internal/util"
	"peerreview/api/internal/visibility"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	IsAdmin      bool
	JTI          string
	ExpiresAt    time.Time
}

type AuthorInput struct {
	UserID string `json:"userId"`
	Owner  bool   `json:"owner"`
}

type CreatePaperInput struct {
	Title    string        `json:"title"`
	Authors  []AuthorInput `json:"authors"`
	FieldIDs []string      `json:"fieldIds"`
}

type AddVersionInput struct {
	Content string `json:"content"`
}

type CreateJournalInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model"`
}

type JournalMemberInput struct {
	UserID      string `json:"userId"`
	Permissions string `json:"permissions"`
}

type SubmitInput struct {
	JournalID string `json:"journalId"`
}

type PostReviewInput struct {
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

type ReviewCommentInput struct {
	ParentID *string `json:"parentId"`
	Page     int     `json:"page"`
	Content  string  `json:"content"`
}

type UpdateStatusInput struct {
	Status string `json:"status"`
}

type UpdateVisibilityInput struct {
	Visibility []string `json:"visibility"`
}

var allowedSubmissionStatuses = map[string]struct{}{
	store.StatusSubmitted: {},
	store.StatusInReview:  {},
	store.StatusProofing:  {},
	store.StatusPublished: {},
	store.StatusRejected:  {},
	store.StatusRetracted: {},
}

var allowedMemberPermissions = map[string]struct{}{
	store.PermissionOwner:    {},
	store.PermissionEditor:   {},
	store.PermissionReviewer: {},
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error

	InsertPaper(ctx context.Context, paper store.Paper) error
	GetPaper(ctx context.Context, paperID string) (store.Paper, error)
	ListPaperIDs(ctx context.Context) ([]string, error)
	SetPaperPreprint(ctx context.Context, paperID string, show bool) error
	SetPaperDraft(ctx context.Context, paperID string, isDraft bool) error
	InsertPaperAuthor(ctx context.Context, author store.PaperAuthor) error
	GetPaperAuthors(ctx context.Context, paperID string) ([]store.PaperAuthor, error)
	InsertPaperVersion(ctx context.Context, version store.PaperVersion) error
	GetLatestPaperVersion(ctx context.Context, paperID string) (store.PaperVersion, error)
	SetVersionPreprint(ctx context.Context, paperID string, version int) error
	SetVersionSubmitted(ctx context.Context, paperID string, version int) error
	SetVersionPublished(ctx context.Context, paperID string, version int) error
	InsertPaperField(ctx context.Context, paperID, fieldID string) error
	GetPaperFields(ctx context.Context, paperID string) ([]store.Field, error)
	GetFieldReputation(ctx context.Context, userID, fieldID string) (int, error)

	InsertJournal(ctx context.Context, journal store.Journal) error
	GetJournal(ctx context.Context, journalID string) (store.Journal, error)
	SetJournalModel(ctx context.Context, journalID, model string) error
	UpsertJournalMember(ctx context.Context, member store.JournalMember) error
	RemoveJournalMember(ctx context.Context, journalID, userID string) error
	GetJournalMembership(ctx context.Context, journalID, userID string) (string, error)
	ListJournalMembers(ctx context.Context, journalID string) ([]store.JournalMember, error)

	InsertSubmission(ctx context.Context, submission store.JournalSubmission) error
	GetSubmission(ctx context.Context, submissionID string) (store.JournalSubmission, error)
	GetActiveSubmission(ctx context.Context, paperID string) (*store.JournalSubmission, error)
	GetSubmissionsForUser(ctx context.Context, userID, paperID string) ([]store.JournalSubmission, error)
	UpdateSubmissionStatus(ctx context.Context, submissionID, status string) error
	AddAssignedEditor(ctx context.Context, submissionID, userID string) error
	RemoveAssignedEditor(ctx context.Context, submissionID, userID string) error
	AddAssignedReviewer(ctx context.Context, submissionID, userID string) error
	RemoveAssignedReviewer(ctx context.Context, submissionID, userID string) error
	GetAssignedEditors(ctx context.Context, submissionID string) ([]string, error)
	GetAssignedReviewers(ctx context.Context, submissionID string) ([]string, error)

	InsertPaperEvent(ctx context.Context, event store.PaperEvent) error
	GetPaperEvent(ctx context.Context, eventID string) (store.PaperEvent, error)
	GetReviewEvent(ctx context.Context, reviewID string) (store.PaperEvent, error)
	ListPaperEvents(ctx context.Context, paperID string) ([]store.PaperEvent, error)
	UpdateEventVisibility(ctx context.Context, eventID string, visibility []string) error

	InsertReview(ctx context.Context, review store.Review) error
	GetReview(ctx context.Context, reviewID string) (store.Review, error)
	InsertReviewComment(ctx context.Context, comment store.ReviewComment) error

	IsEnabled(ctx context.Context, flag string) (bool, error)
	SetFeature(ctx context.Context, flag, status string) error
}

// sessionStore is the refresh session surface. Defaults to Postgres; Redis
// can be swapped in via UseSessionStore.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type fileStore interface {
	Upload(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	resolver *visibility.Resolver
	assigner *visibility.Assigner
	engine   *visibility.Engine
	gate     *reputation.Gate
	authpw   *authpw.Service
	search   *search.Service
	files    fileStore
	email    *email.Service
}

// New wires the service. dataStore's method set is a superset of the
// visibility, reputation, and authpw storage interfaces, so one store serves
// them all.
func New(cfg config.Config, st dataStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: st,
		resolver: visibility.NewResolver(st),
		assigner: visibility.NewAssigner(st),
		engine:   visibility.NewEngine(st),
		gate: reputation.NewGate(st, reputation.Thresholds{
			Review:  cfg.ReviewThreshold,
			Referee: cfg.RefereeThreshold,
			Publish: cfg.PublishThreshold,
		}),
		authpw: authpw.NewService(st),
	}
}

// UseSessionStore swaps refresh session storage (e.g. Redis).
func (s *Service) UseSessionStore(sessions sessionStore) {
	s.sessions = sessions
}

// UseSearch attaches the search facade.
func (s *Service) UseSearch(svc *search.Service) {
	s.search = svc
}

// UseFiles attaches manuscript file storage.
func (s *Service) UseFiles(fs fileStore) {
	s.files = fs
}

// UseEmail attaches the SMTP notification service.
func (s *Service) UseEmail(svc *email.Service) {
	s.email = svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// ====== Sessions ======

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Redis sessions carry only the user ID; rehydrate the rest.
	if user.DisplayName == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Admin: user.IsAdmin,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		IsAdmin:      user.IsAdmin,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		IsAdmin:   user.IsAdmin,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// ====== Papers ======

func (s *Service) CreatePaper(ctx context.Context, actorID string, input CreatePaperInput) (store.Paper, error) {
	if input.Title == "" {
		return store.Paper{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if len(input.Authors) == 0 {
		return store.Paper{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one author is required", nil)
	}

	actorListed := false
	owners := 0
	for _, a := range input.Authors {
		if a.UserID == actorID {
			actorListed = true
		}
		if a.Owner {
			owners++
		}
	}
	if !actorListed {
		return store.Paper{}, domainError(http.StatusForbidden, "NOT_AN_AUTHOR", "creator must be listed as an author", nil)
	}
	if owners != 1 {
		return store.Paper{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "exactly one corresponding author is required", nil)
	}

	paper := store.Paper{
		ID:      util.NewID("pap"),
		Title:   input.Title,
		IsDraft: true,
	}
	if err := s.store.InsertPaper(ctx, paper); err != nil {
		return store.Paper{}, fmt.Errorf("insert paper: %w", err)
	}

	for i, a := range input.Authors {
		author := store.PaperAuthor{
			PaperID:   paper.ID,
			UserID:    a.UserID,
			Order:     i,
			Owner:     a.Owner,
			Submitter: a.UserID == actorID,
		}
		if err := s.store.InsertPaperAuthor(ctx, author); err != nil {
			return store.Paper{}, fmt.Errorf("insert author: %w", err)
		}
	}

	for _, fieldID := range input.FieldIDs {
		if err := s.store.InsertPaperField(ctx, paper.ID, fieldID); err != nil {
			return store.Paper{}, fmt.Errorf("insert paper field: %w", err)
		}
	}

	return paper, nil
}

func (s *Service) AddPaperVersion(ctx context.Context, actorID, paperID string, input AddVersionInput) (store.PaperVersion, error) {
	if err := s.requireAuthor(ctx, actorID, paperID); err != nil {
		return store.PaperVersion{}, err
	}

	version := 1
	if latest, err := s.store.GetLatestPaperVersion(ctx, paperID); err == nil {
		version = latest.Version + 1
	}

	v := store.PaperVersion{
		PaperID: paperID,
		Version: version,
		FileKey: files.VersionKey(paperID, version),
		Content: input.Content,
	}
	if err := s.store.InsertPaperVersion(ctx, v); err != nil {
		return store.PaperVersion{}, fmt.Errorf("insert version: %w", err)
	}

	if _, err := s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID: paperID,
		Version: version,
		Type:    string(visibility.EventNewVersion),
	}); err != nil {
		return store.PaperVersion{}, err
	}

	s.indexPaper(ctx, paperID)
	return v, nil
}

// PostPreprint makes a draft publicly visible as a preprint.
func (s *Service) PostPreprint(ctx context.Context, actorID, paperID string) error {
	if err := s.requireAuthor(ctx, actorID, paperID); err != nil {
		return err
	}

	// Leaving draft requires a version to post; the posted version carries
	// the preprint flag.
	latest, err := s.store.GetLatestPaperVersion(ctx, paperID)
	if err != nil {
		return domainError(http.StatusConflict, "NO_VERSION", "Paper has no version to post", nil)
	}

	if err := s.store.SetPaperDraft(ctx, paperID, false); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	if err := s.store.SetPaperPreprint(ctx, paperID, true); err != nil {
		return fmt.Errorf("set preprint: %w", err)
	}
	if err := s.store.SetVersionPreprint(ctx, paperID, latest.Version); err != nil {
		return fmt.Errorf("flag preprint version: %w", err)
	}

	if _, err := s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID: paperID,
		Version: latest.Version,
		Type:    string(visibility.EventPreprintPosted),
	}); err != nil {
		return err
	}

	s.indexPaper(ctx, paperID)
	return nil
}

func (s *Service) GetPaperForUser(ctx context.Context, userID, paperID string) (store.Paper, []store.PaperAuthor, error) {
	visible, err := s.engine.CanViewPaper(ctx, userID, paperID)
	if err != nil {
		return store.Paper{}, nil, err
	}
	if !visible {
		return store.Paper{}, nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	paper, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return store.Paper{}, nil, err
	}
	authors, err := s.store.GetPaperAuthors(ctx, paperID)
	if err != nil {
		return store.Paper{}, nil, err
	}
	return paper, authors, nil
}

func (s *Service) ListVisiblePapers(ctx context.Context, userID string) ([]store.Paper, error) {
	ids, err := s.engine.VisiblePaperIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	papers := make([]store.Paper, 0, len(ids))
	for _, id := range ids {
		paper, err := s.store.GetPaper(ctx, id)
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// ListPaperEvents returns the paper's event feed filtered down to what the
// requesting user may see. An empty userID is an anonymous request.
func (s *Service) ListPaperEvents(ctx context.Context, userID, paperID string) ([]store.PaperEvent, error) {
	events, err := s.store.ListPaperEvents(ctx, paperID)
	if err != nil {
		return nil, err
	}
	return s.engine.FilterEvents(ctx, userID, paperID, events)
}

// SetEventVisibility replaces an event's stamped visibility. The actor must
// hold a role in both the event's computed default and the new set, so an
// author cannot re-stamp an event onto roles they do not hold.
func (s *Service) SetEventVisibility(ctx context.Context, actorID, eventID string, input UpdateVisibilityInput) (store.PaperEvent, error) {
	if len(input.Visibility) == 0 {
		return store.PaperEvent{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "visibility is required", nil)
	}

	event, err := s.store.GetPaperEvent(ctx, eventID)
	if err != nil {
		return store.PaperEvent{}, err
	}

	event.Visibility = input.Visibility
	set, err := s.assigner.Assign(ctx, actorID, &event)
	if err != nil {
		return store.PaperEvent{}, err
	}

	labels := visibility.Labels(set)
	if err := s.store.UpdateEventVisibility(ctx, eventID, labels); err != nil {
		return store.PaperEvent{}, err
	}
	event.Visibility = labels
	return event, nil
}

// ====== Manuscript files ======

func (s *Service) UploadManuscript(ctx context.Context, actorID, paperID string, body io.Reader, contentType string) (string, error) {
	if s.files == nil {
		return "", domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "File storage not configured", nil)
	}
	if err := s.requireAuthor(ctx, actorID, paperID); err != nil {
		return "", err
	}
	latest, err := s.store.GetLatestPaperVersion(ctx, paperID)
	if err != nil {
		return "", domainError(http.StatusConflict, "NO_VERSION", "Create a paper version before uploading its manuscript", nil)
	}
	checksum, err := s.files.Upload(ctx, latest.FileKey, body, contentType)
	if err != nil {
		return "", fmt.Errorf("upload manuscript: %w", err)
	}
	return checksum, nil
}

func (s *Service) ManuscriptURL(ctx context.Context, userID, paperID string) (string, error) {
	if s.files == nil {
		return "", domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "File storage not configured", nil)
	}
	visible, err := s.engine.CanViewPaper(ctx, userID, paperID)
	if err != nil {
		return "", err
	}
	if !visible {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	latest, err := s.store.GetLatestPaperVersion(ctx, paperID)
	if err != nil {
		return "", err
	}
	return s.files.PresignedURL(ctx, latest.FileKey, 15*time.Minute)
}

// ====== Journals ======

func (s *Service) CreateJournal(ctx context.Context, actorID string, input CreateJournalInput) (store.Journal, error) {
	if input.Name == "" {
		return store.Journal{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if input.Model != "" {
		if _, ok := visibility.ParseModel(input.Model); !ok {
			return store.Journal{}, domainError(http.StatusUnprocessableEntity, "INVALID_MODEL", "unknown transparency model", map[string]any{"model": input.Model})
		}
	}

	journal := store.Journal{
		ID:          util.NewID("jrn"),
		Name:        input.Name,
		Description: input.Description,
		Model:       input.Model,
	}
	if err := s.store.InsertJournal(ctx, journal); err != nil {
		return store.Journal{}, fmt.Errorf("insert journal: %w", err)
	}

	if err := s.store.UpsertJournalMember(ctx, store.JournalMember{
		JournalID:   journal.ID,
		UserID:      actorID,
		Permissions: store.PermissionOwner,
	}); err != nil {
		return store.Journal{}, fmt.Errorf("add journal owner: %w", err)
	}

	if s.search != nil {
		s.search.IndexJournal(search.JournalRecord{
			ID:          journal.ID,
			Name:        journal.Name,
			Description: journal.Description,
		})
	}
	return journal, nil
}

func (s *Service) SetJournalModel(ctx context.Context, actorID, journalID, model string) error {
	if _, ok := visibility.ParseModel(model); !ok {
		return domainError(http.StatusUnprocessableEntity, "INVALID_MODEL", "unknown transparency model", map[string]any{"model": model})
	}
	if err := s.requireJournalOwner(ctx, actorID, journalID); err != nil {
		return err
	}
	return s.store.SetJournalModel(ctx, journalID, model)
}

func (s *Service) AddJournalMember(ctx context.Context, actorID, journalID string, input JournalMemberInput) error {
	if _, ok := allowedMemberPermissions[input.Permissions]; !ok {
		return domainError(http.StatusUnprocessableEntity, "INVALID_PERMISSION", "unknown permission level", map[string]any{"permissions": input.Permissions})
	}
	if err := s.requireJournalOwner(ctx, actorID, journalID); err != nil {
		return err
	}
	return s.store.UpsertJournalMember(ctx, store.JournalMember{
		JournalID:   journalID,
		UserID:      input.UserID,
		Permissions: input.Permissions,
	})
}

func (s *Service) RemoveJournalMember(ctx context.Context, actorID, journalID, userID string) error {
	if err := s.requireJournalOwner(ctx, actorID, journalID); err != nil {
		return err
	}
	return s.store.RemoveJournalMember(ctx, journalID, userID)
}

func (s *Service) GetJournal(ctx context.Context, journalID string) (store.Journal, []store.JournalMember, error) {
	journal, err := s.store.GetJournal(ctx, journalID)
	if err != nil {
		return store.Journal{}, nil, err
	}
	members, err := s.store.ListJournalMembers(ctx, journalID)
	if err != nil {
		return store.Journal{}, nil, err
	}
	return journal, members, nil
}

// ====== Submissions ======

func (s *Service) SubmitToJournal(ctx context.Context, actorID, paperID string, input SubmitInput) (store.JournalSubmission, error) {
	if input.JournalID == "" {
		return store.JournalSubmission{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "journalId is required", nil)
	}
	if err := s.requireAuthor(ctx, actorID, paperID); err != nil {
		return store.JournalSubmission{}, err
	}
	if _, err := s.store.GetJournal(ctx, input.JournalID); err != nil {
		return store.JournalSubmission{}, err
	}
	latest, err := s.store.GetLatestPaperVersion(ctx, paperID)
	if err != nil {
		return store.JournalSubmission{}, domainError(http.StatusConflict, "NO_VERSION", "Paper has no version to submit", nil)
	}

	active, err := s.store.GetActiveSubmission(ctx, paperID)
	if err != nil {
		return store.JournalSubmission{}, err
	}
	if active != nil {
		return store.JournalSubmission{}, domainError(http.StatusConflict, "SUBMISSION_ACTIVE", "Paper already has an active submission", map[string]any{"submissionId": active.ID})
	}

	submission := store.JournalSubmission{
		ID:          util.NewID("sub"),
		JournalID:   input.JournalID,
		PaperID:     paperID,
		Status:      store.StatusSubmitted,
		SubmitterID: actorID,
	}
	if err := s.store.InsertSubmission(ctx, submission); err != nil {
		return store.JournalSubmission{}, fmt.Errorf("insert submission: %w", err)
	}
	if err := s.store.SetVersionSubmitted(ctx, paperID, latest.Version); err != nil {
		return store.JournalSubmission{}, fmt.Errorf("flag submitted version: %w", err)
	}

	if _, err := s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      paperID,
		Version:      latest.Version,
		Type:         string(visibility.EventSubmittedToJournal),
		SubmissionID: &submission.ID,
	}); err != nil {
		return store.JournalSubmission{}, err
	}
	return submission, nil
}

func (s *Service) GetSubmissionForUser(ctx context.Context, userID, submissionID string) (store.JournalSubmission, error) {
	visible, err := s.engine.CanViewSubmission(ctx, userID, submissionID)
	if err != nil {
		return store.JournalSubmission{}, err
	}
	if !visible {
		return store.JournalSubmission{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return s.store.GetSubmission(ctx, submissionID)
}

func (s *Service) UpdateSubmissionStatus(ctx context.Context, actorID, submissionID string, input UpdateStatusInput) error {
	if _, ok := allowedSubmissionStatuses[input.Status]; !ok {
		return domainError(http.StatusUnprocessableEntity, "INVALID_STATUS", "unknown submission status", map[string]any{"status": input.Status})
	}

	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	if err := s.requireEditorial(ctx, actorID, submission); err != nil {
		return err
	}

	// Publication clears the authors' reputation floor per subject field.
	if input.Status == store.StatusPublished {
		ok, blocking, err := s.gate.CanPublish(ctx, submission.SubmitterID, submission.PaperID)
		if err != nil {
			return err
		}
		if !ok {
			names := make([]string, 0, len(blocking))
			for _, f := range blocking {
				names = append(names, f.Name)
			}
			return domainError(http.StatusUnprocessableEntity, "REPUTATION_TOO_LOW", "Authors do not clear the reputation floor for publication", map[string]any{"fields": names})
		}
	}

	// The event is stamped before the status flips, so publication events
	// carry the in-flight visibility set and promotion applies to later
	// events only.
	if _, err := s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      submission.PaperID,
		Type:         string(visibility.EventStatusChanged),
		SubmissionID: &submission.ID,
		NewStatus:    &input.Status,
	}); err != nil {
		return err
	}

	if err := s.store.UpdateSubmissionStatus(ctx, submissionID, input.Status); err != nil {
		return err
	}

	if input.Status == store.StatusPublished {
		if latest, err := s.store.GetLatestPaperVersion(ctx, submission.PaperID); err == nil {
			if err := s.store.SetVersionPublished(ctx, submission.PaperID, latest.Version); err != nil {
				return err
			}
		}
		s.indexPaper(ctx, submission.PaperID)
	}
	return nil
}

func (s *Service) AssignEditor(ctx context.Context, actorID, submissionID, userID string) error {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.requireManagingEditor(ctx, actorID, submission); err != nil {
		return err
	}
	if member, err := s.store.GetJournalMembership(ctx, submission.JournalID, userID); err != nil {
		return err
	} else if member != store.PermissionOwner && member != store.PermissionEditor {
		return domainError(http.StatusUnprocessableEntity, "NOT_AN_EDITOR", "User is not an editor of this journal", nil)
	}

	if err := s.store.AddAssignedEditor(ctx, submissionID, userID); err != nil {
		return err
	}
	_, err = s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      submission.PaperID,
		Type:         string(visibility.EventEditorAssigned),
		SubmissionID: &submission.ID,
		AssigneeID:   &userID,
	})
	return err
}

func (s *Service) UnassignEditor(ctx context.Context, actorID, submissionID, userID string) error {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.requireManagingEditor(ctx, actorID, submission); err != nil {
		return err
	}
	if err := s.store.RemoveAssignedEditor(ctx, submissionID, userID); err != nil {
		return err
	}
	_, err = s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      submission.PaperID,
		Type:         string(visibility.EventEditorUnassigned),
		SubmissionID: &submission.ID,
		AssigneeID:   &userID,
	})
	return err
}

func (s *Service) AssignReviewer(ctx context.Context, actorID, submissionID, userID string) error {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.requireEditorial(ctx, actorID, submission); err != nil {
		return err
	}

	// Refereeing carries the stricter reputation floor and no author
	// exemption.
	ok, err := s.gate.CanReferee(ctx, userID, submission.PaperID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusUnprocessableEntity, "REPUTATION_TOO_LOW", "User does not clear the reputation floor for refereeing", nil)
	}

	if err := s.store.AddAssignedReviewer(ctx, submissionID, userID); err != nil {
		return err
	}
	_, err = s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      submission.PaperID,
		Type:         string(visibility.EventReviewerAssigned),
		SubmissionID: &submission.ID,
		AssigneeID:   &userID,
	})
	return err
}

func (s *Service) UnassignReviewer(ctx context.Context, actorID, submissionID, userID string) error {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.requireEditorial(ctx, actorID, submission); err != nil {
		return err
	}
	if err := s.store.RemoveAssignedReviewer(ctx, submissionID, userID); err != nil {
		return err
	}
	_, err = s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      submission.PaperID,
		Type:         string(visibility.EventReviewerUnassigned),
		SubmissionID: &submission.ID,
		AssigneeID:   &userID,
	})
	return err
}

// ====== Reviews ======

func (s *Service) PostReview(ctx context.Context, actorID, paperID string, input PostReviewInput) (store.Review, error) {
	if input.Summary == "" {
		return store.Review{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "summary is required", nil)
	}

	ok, err := s.gate.CanReview(ctx, actorID, paperID)
	if err != nil {
		return store.Review{}, err
	}
	if !ok {
		return store.Review{}, domainError(http.StatusForbidden, "REPUTATION_TOO_LOW", "Reputation too low to review in this paper's fields", nil)
	}

	paper, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return store.Review{}, err
	}

	active, err := s.store.GetActiveSubmission(ctx, paperID)
	if err != nil {
		return store.Review{}, err
	}

	// Under an active submission only assigned reviewers may file; with no
	// submission in flight anyone clearing the gate may review a posted
	// preprint.
	if active != nil {
		assigned, err := s.store.GetAssignedReviewers(ctx, active.ID)
		if err != nil {
			return store.Review{}, err
		}
		isAssigned := false
		for _, id := range assigned {
			if id == actorID {
				isAssigned = true
				break
			}
		}
		if !isAssigned {
			return store.Review{}, domainError(http.StatusForbidden, "NOT_ASSIGNED", "Only assigned reviewers may review this submission", nil)
		}
	} else if !paper.ShowPreprint {
		return store.Review{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	version := 0
	if latest, err := s.store.GetLatestPaperVersion(ctx, paperID); err == nil {
		version = latest.Version
	}

	review := store.Review{
		ID:             util.NewID("rev"),
		PaperID:        paperID,
		UserID:         actorID,
		Version:        version,
		Summary:        input.Summary,
		Recommendation: input.Recommendation,
		Status:         "posted",
	}
	var submissionID *string
	if active != nil {
		submissionID = &active.ID
		review.SubmissionID = &active.ID
	}
	if err := s.store.InsertReview(ctx, review); err != nil {
		return store.Review{}, fmt.Errorf("insert review: %w", err)
	}

	if _, err := s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:      paperID,
		Version:      version,
		Type:         string(visibility.EventReviewPosted),
		SubmissionID: submissionID,
		ReviewID:     &review.ID,
	}); err != nil {
		return store.Review{}, err
	}

	if s.search != nil {
		rec := search.ReviewRecord{
			ID:             review.ID,
			Summary:        review.Summary,
			Recommendation: review.Recommendation,
			PaperID:        review.PaperID,
		}
		if review.SubmissionID != nil {
			rec.SubmissionID = *review.SubmissionID
		}
		s.search.IndexReview(rec)
	}
	return review, nil
}

// PostReviewComment files a comment on a review. A top-level comment records
// a comment-posted event; a reply to an existing comment records a
// review-comment-reply-posted event.
func (s *Service) PostReviewComment(ctx context.Context, actorID, reviewID string, input ReviewCommentInput) (store.ReviewComment, error) {
	if input.Content == "" {
		return store.ReviewComment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return store.ReviewComment{}, err
	}

	visible, err := s.engine.CanViewPaper(ctx, actorID, review.PaperID)
	if err != nil {
		return store.ReviewComment{}, err
	}
	if !visible {
		return store.ReviewComment{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	comment := store.ReviewComment{
		ID:       util.NewID("cmt"),
		ReviewID: reviewID,
		UserID:   actorID,
		ParentID: input.ParentID,
		Page:     input.Page,
		Content:  input.Content,
		Status:   "posted",
	}
	if err := s.store.InsertReviewComment(ctx, comment); err != nil {
		return store.ReviewComment{}, fmt.Errorf("insert review comment: %w", err)
	}

	eventType := visibility.EventCommentPosted
	if input.ParentID != nil {
		eventType = visibility.EventReviewCommentReply
	}
	if _, err := s.emitEvent(ctx, actorID, store.PaperEvent{
		PaperID:         review.PaperID,
		Type:            string(eventType),
		SubmissionID:    review.SubmissionID,
		ReviewID:        &review.ID,
		ReviewCommentID: &comment.ID,
	}); err != nil {
		return store.ReviewComment{}, err
	}
	return comment, nil
}

// ====== Search ======

func (s *Service) Search(ctx context.Context, userID string, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	q.PublicOnly = userID == ""
	resp := s.search.Search(q)
	resp.Results = s.filterSearchResults(ctx, userID, resp.Results)
	return resp
}

// filterSearchResults drops hits the user cannot see. The index is a lookup
// accelerator, never an access grant.
func (s *Service) filterSearchResults(ctx context.Context, userID string, results []search.Result) []search.Result {
	filtered := make([]search.Result, 0, len(results))
	for _, r := range results {
		switch r.Type {
		case search.ResultPaper:
			visible, err := s.engine.CanViewPaper(ctx, userID, r.ID)
			if err != nil || !visible {
				continue
			}
		case search.ResultReview:
			// A review's content is governed by its review-posted
			// event's visibility stamp, which can be narrower than
			// submission membership. No event, no hit.
			event, err := s.store.GetReviewEvent(ctx, r.ID)
			if err != nil {
				continue
			}
			visible, err := s.engine.CanViewEvent(ctx, userID, event)
			if err != nil || !visible {
				continue
			}
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// ====== Helpers ======

func (s *Service) emitEvent(ctx context.Context, actorID string, event store.PaperEvent) (store.PaperEvent, error) {
	event.ID = util.NewID("evt")
	event.ActorID = actorID
	if event.EventDate.IsZero() {
		event.EventDate = time.Now()
	}
	if _, err := s.assigner.Assign(ctx, actorID, &event); err != nil {
		return store.PaperEvent{}, err
	}
	if err := s.store.InsertPaperEvent(ctx, event); err != nil {
		return store.PaperEvent{}, fmt.Errorf("insert event: %w", err)
	}
	s.notifyEvent(event)
	return event, nil
}

// notifyEvent emails the paper's authors about activity they are allowed to
// see. Fire and forget; event recording never waits on SMTP.
func (s *Service) notifyEvent(event store.PaperEvent) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		paper, err := s.store.GetPaper(ctx, event.PaperID)
		if err != nil {
			return
		}
		authors, err := s.store.GetPaperAuthors(ctx, event.PaperID)
		if err != nil {
			return
		}
		stamped := visibility.ParseRoleSet(event.Visibility)
		for _, a := range authors {
			if a.UserID == event.ActorID {
				continue
			}
			roles, err := s.resolver.PaperRoles(ctx, a.UserID, event.PaperID)
			if err != nil {
				continue
			}
			if !stamped.ContainsAny(visibility.RolePublic) && roles.Intersect(stamped).Cardinality() == 0 {
				continue
			}
			user, err := s.store.GetUserByID(ctx, a.UserID)
			if err != nil || user.Email == "" {
				continue
			}
			if err := s.email.SendEventNotification(user.Email, user.DisplayName, paper.Title, describeEvent(event), ""); err != nil {
				log.Printf("email: notify %s about %s: %v", user.ID, event.ID, err)
			}
		}
	}()
}

func describeEvent(event store.PaperEvent) string {
	switch visibility.EventType(event.Type) {
	case visibility.EventReviewPosted:
		return "A new review was posted"
	case visibility.EventStatusChanged:
		if event.NewStatus != nil {
			return "Submission status changed to " + *event.NewStatus
		}
		return "Submission status changed"
	case visibility.EventNewVersion:
		return "A new version was uploaded"
	case visibility.EventCommentPosted, visibility.EventReviewCommentReply:
		return "A new comment was posted"
	default:
		return "There was new activity"
	}
}

func (s *Service) indexPaper(ctx context.Context, paperID string) {
	if s.search == nil {
		return
	}
	paper, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return
	}
	content := ""
	if latest, err := s.store.GetLatestPaperVersion(ctx, paperID); err == nil {
		content = latest.Content
	}
	s.search.IndexPaper(search.PaperRecord{
		ID:           paper.ID,
		Title:        paper.Title,
		Content:      content,
		IsDraft:      paper.IsDraft,
		ShowPreprint: paper.ShowPreprint,
	})
}

func (s *Service) requireAuthor(ctx context.Context, userID, paperID string) error {
	authors, err := s.store.GetPaperAuthors(ctx, paperID)
	if err != nil {
		return err
	}
	for _, a := range authors {
		if a.UserID == userID {
			return nil
		}
	}
	return domainError(http.StatusForbidden, "NOT_AN_AUTHOR", "Only the paper's authors may do this", nil)
}

func (s *Service) requireJournalOwner(ctx context.Context, userID, journalID string) error {
	permission, err := s.store.GetJournalMembership(ctx, journalID, userID)
	if err != nil {
		return err
	}
	if permission != store.PermissionOwner {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the journal's managing editor may do this", nil)
	}
	return nil
}

func (s *Service) submissionRoles(ctx context.Context, userID string, submission store.JournalSubmission) (visibility.RoleSet, error) {
	authors, err := s.store.GetPaperAuthors(ctx, submission.PaperID)
	if err != nil {
		return nil, err
	}
	base := visibility.BaseRoles(userID, authors)
	return s.resolver.SubmissionRoles(ctx, userID, base, submission)
}

// requireManagingEditor admits only the journal owner.
func (s *Service) requireManagingEditor(ctx context.Context, userID string, submission store.JournalSubmission) error {
	roles, err := s.submissionRoles(ctx, userID, submission)
	if err != nil {
		return err
	}
	if !roles.ContainsAny(visibility.RoleManagingEditor) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the journal's managing editor may do this", nil)
	}
	return nil
}

// requireEditorial admits the journal owner and the submission's assigned
// editors.
func (s *Service) requireEditorial(ctx context.Context, userID string, submission store.JournalSubmission) error {
	roles, err := s.submissionRoles(ctx, userID, submission)
	if err != nil {
		return err
	}
	if !roles.ContainsAny(visibility.RoleManagingEditor, visibility.RoleAssignedEditor) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only editors handling this submission may do this", nil)
	}
	return nil
}
