package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// Users
// =============================================================================

const userColumns = `id, display_name, email, password_hash, is_admin, is_email_verified, verification_token, verification_expires_at, deactivated_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	var passwordHash, verificationToken sql.NullString
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &passwordHash, &user.IsAdmin,
		&user.IsEmailVerified, &verificationToken, &user.VerificationExpiresAt,
		&user.DeactivatedAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = passwordHash.String
	user.VerificationToken = verificationToken.String
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_admin, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsAdmin, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// =============================================================================
// Refresh sessions (Postgres fallback when Redis is not configured)
// =============================================================================

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.is_admin
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.IsAdmin)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// =============================================================================
// Papers, authors, versions, fields
// =============================================================================

func (s *PostgresStore) InsertPaper(ctx context.Context, paper Paper) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO papers (id, title, is_draft, show_preprint) VALUES ($1, $2, $3, $4)
	`, paper.ID, paper.Title, paper.IsDraft, paper.ShowPreprint)
	if err != nil {
		return fmt.Errorf("insert paper: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaper(ctx context.Context, paperID string) (Paper, error) {
	var paper Paper
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, is_draft, show_preprint, created_at, updated_at FROM papers WHERE id=$1
	`, paperID).Scan(&paper.ID, &paper.Title, &paper.IsDraft, &paper.ShowPreprint, &paper.CreatedAt, &paper.UpdatedAt)
	if err != nil {
		return Paper{}, err
	}
	return paper, nil
}

func (s *PostgresStore) ListPaperIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM papers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan paper id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) SetPaperPreprint(ctx context.Context, paperID string, show bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE papers SET show_preprint=$2, updated_at=NOW() WHERE id=$1`, paperID, show)
	if err != nil {
		return fmt.Errorf("set paper preprint: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPaperDraft(ctx context.Context, paperID string, isDraft bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE papers SET is_draft=$2, updated_at=NOW() WHERE id=$1`, paperID, isDraft)
	if err != nil {
		return fmt.Errorf("set paper draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPaperAuthor(ctx context.Context, author PaperAuthor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_authors (paper_id, user_id, author_order, owner, submitter)
		VALUES ($1, $2, $3, $4, $5)
	`, author.PaperID, author.UserID, author.Order, author.Owner, author.Submitter)
	if err != nil {
		return fmt.Errorf("insert paper author: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaperAuthors(ctx context.Context, paperID string) ([]PaperAuthor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT paper_id, user_id, author_order, owner, submitter
		FROM paper_authors WHERE paper_id=$1 ORDER BY author_order
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list paper authors: %w", err)
	}
	defer rows.Close()

	var authors []PaperAuthor
	for rows.Next() {
		var author PaperAuthor
		if err := rows.Scan(&author.PaperID, &author.UserID, &author.Order, &author.Owner, &author.Submitter); err != nil {
			return nil, fmt.Errorf("scan paper author: %w", err)
		}
		authors = append(authors, author)
	}
	return authors, rows.Err()
}

func (s *PostgresStore) InsertPaperVersion(ctx context.Context, version PaperVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_versions (paper_id, version, file_key, content, is_preprint, is_submitted, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, version.PaperID, version.Version, version.FileKey, version.Content,
		version.IsPreprint, version.IsSubmitted, version.IsPublished)
	if err != nil {
		return fmt.Errorf("insert paper version: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestPaperVersion(ctx context.Context, paperID string) (PaperVersion, error) {
	var version PaperVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT paper_id, version, file_key, content, is_preprint, is_submitted, is_published, created_at
		FROM paper_versions WHERE paper_id=$1 ORDER BY version DESC LIMIT 1
	`, paperID).Scan(&version.PaperID, &version.Version, &version.FileKey, &version.Content,
		&version.IsPreprint, &version.IsSubmitted, &version.IsPublished, &version.CreatedAt)
	if err != nil {
		return PaperVersion{}, err
	}
	return version, nil
}

func (s *PostgresStore) SetVersionPreprint(ctx context.Context, paperID string, version int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE paper_versions SET is_preprint=TRUE WHERE paper_id=$1 AND version=$2
	`, paperID, version)
	if err != nil {
		return fmt.Errorf("set version preprint: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetVersionSubmitted(ctx context.Context, paperID string, version int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE paper_versions SET is_submitted=TRUE WHERE paper_id=$1 AND version=$2
	`, paperID, version)
	if err != nil {
		return fmt.Errorf("set version submitted: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetVersionPublished(ctx context.Context, paperID string, version int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE paper_versions SET is_published=TRUE WHERE paper_id=$1 AND version=$2
	`, paperID, version)
	if err != nil {
		return fmt.Errorf("set version published: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPaperField(ctx context.Context, paperID, fieldID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_fields (paper_id, field_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, paperID, fieldID)
	if err != nil {
		return fmt.Errorf("insert paper field: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaperFields(ctx context.Context, paperID string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.description, f.average_reputation
		FROM paper_fields pf JOIN fields f ON f.id = pf.field_id
		WHERE pf.paper_id=$1 ORDER BY f.name
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list paper fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var field Field
		if err := rows.Scan(&field.ID, &field.Name, &field.Description, &field.AverageReputation); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func (s *PostgresStore) GetFieldReputation(ctx context.Context, userID, fieldID string) (int, error) {
	var reputation int
	err := s.db.QueryRowContext(ctx, `
		SELECT reputation FROM user_field_reputation WHERE user_id=$1 AND field_id=$2
	`, userID, fieldID).Scan(&reputation)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read field reputation: %w", err)
	}
	return reputation, nil
}

// =============================================================================
// Journals and memberships
// =============================================================================

func (s *PostgresStore) InsertJournal(ctx context.Context, journal Journal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journals (id, name, description, model) VALUES ($1, $2, $3, $4)
	`, journal.ID, journal.Name, journal.Description, journal.Model)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJournal(ctx context.Context, journalID string) (Journal, error) {
	var journal Journal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, model, created_at, updated_at FROM journals WHERE id=$1
	`, journalID).Scan(&journal.ID, &journal.Name, &journal.Description, &journal.Model, &journal.CreatedAt, &journal.UpdatedAt)
	if err != nil {
		return Journal{}, err
	}
	return journal, nil
}

func (s *PostgresStore) SetJournalModel(ctx context.Context, journalID, model string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE journals SET model=$2, updated_at=NOW() WHERE id=$1`, journalID, model)
	if err != nil {
		return fmt.Errorf("set journal model: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertJournalMember(ctx context.Context, member JournalMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_members (journal_id, user_id, permissions, member_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (journal_id, user_id) DO UPDATE SET permissions=EXCLUDED.permissions, member_order=EXCLUDED.member_order
	`, member.JournalID, member.UserID, member.Permissions, member.Order)
	if err != nil {
		return fmt.Errorf("upsert journal member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveJournalMember(ctx context.Context, journalID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM journal_members WHERE journal_id=$1 AND user_id=$2`, journalID, userID)
	if err != nil {
		return fmt.Errorf("remove journal member: %w", err)
	}
	return nil
}

// GetJournalMembership returns the user's permission level, or "" when the
// user is not a member of the journal.
func (s *PostgresStore) GetJournalMembership(ctx context.Context, journalID, userID string) (string, error) {
	var permissions string
	err := s.db.QueryRowContext(ctx, `
		SELECT permissions FROM journal_members WHERE journal_id=$1 AND user_id=$2
	`, journalID, userID).Scan(&permissions)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read journal membership: %w", err)
	}
	return permissions, nil
}

func (s *PostgresStore) ListJournalMembers(ctx context.Context, journalID string) ([]JournalMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT journal_id, user_id, permissions, member_order
		FROM journal_members WHERE journal_id=$1 ORDER BY member_order
	`, journalID)
	if err != nil {
		return nil, fmt.Errorf("list journal members: %w", err)
	}
	defer rows.Close()

	var members []JournalMember
	for rows.Next() {
		var member JournalMember
		if err := rows.Scan(&member.JournalID, &member.UserID, &member.Permissions, &member.Order); err != nil {
			return nil, fmt.Errorf("scan journal member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// =============================================================================
// Submissions and assignments
// =============================================================================

const submissionColumns = `id, journal_id, paper_id, status, submitter_id, created_at, updated_at`

func (s *PostgresStore) InsertSubmission(ctx context.Context, submission JournalSubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_submissions (id, journal_id, paper_id, status, submitter_id)
		VALUES ($1, $2, $3, $4, $5)
	`, submission.ID, submission.JournalID, submission.PaperID, submission.Status, submission.SubmitterID)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (JournalSubmission, error) {
	var submission JournalSubmission
	err := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+` FROM journal_submissions WHERE id=$1
	`, submissionID).Scan(&submission.ID, &submission.JournalID, &submission.PaperID,
		&submission.Status, &submission.SubmitterID, &submission.CreatedAt, &submission.UpdatedAt)
	if err != nil {
		return JournalSubmission{}, err
	}
	return submission, nil
}

// GetActiveSubmission returns the paper's one in-flight submission, or nil.
// Proofing counts as in flight.
func (s *PostgresStore) GetActiveSubmission(ctx context.Context, paperID string) (*JournalSubmission, error) {
	var submission JournalSubmission
	err := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+` FROM journal_submissions
		WHERE paper_id=$1 AND status NOT IN ('published', 'rejected', 'retracted')
		ORDER BY created_at DESC LIMIT 1
	`, paperID).Scan(&submission.ID, &submission.JournalID, &submission.PaperID,
		&submission.Status, &submission.SubmitterID, &submission.CreatedAt, &submission.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active submission: %w", err)
	}
	return &submission, nil
}

// GetSubmissionsForUser returns the paper's submissions the user has any
// relationship to: journal membership or an editor/reviewer assignment.
func (s *PostgresStore) GetSubmissionsForUser(ctx context.Context, userID, paperID string) ([]JournalSubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT js.id, js.journal_id, js.paper_id, js.status, js.submitter_id, js.created_at, js.updated_at
		FROM journal_submissions js
		LEFT JOIN journal_members jm ON jm.journal_id = js.journal_id AND jm.user_id = $1
		LEFT JOIN submission_editors se ON se.submission_id = js.id AND se.user_id = $1
		LEFT JOIN submission_reviewers sr ON sr.submission_id = js.id AND sr.user_id = $1
		WHERE js.paper_id = $2
			AND (jm.user_id IS NOT NULL OR se.user_id IS NOT NULL OR sr.user_id IS NOT NULL)
		ORDER BY js.created_at
	`, userID, paperID)
	if err != nil {
		return nil, fmt.Errorf("list user submissions: %w", err)
	}
	defer rows.Close()

	var submissions []JournalSubmission
	for rows.Next() {
		var submission JournalSubmission
		if err := rows.Scan(&submission.ID, &submission.JournalID, &submission.PaperID,
			&submission.Status, &submission.SubmitterID, &submission.CreatedAt, &submission.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		submissions = append(submissions, submission)
	}
	return submissions, rows.Err()
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, submissionID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE journal_submissions SET status=$2, updated_at=NOW() WHERE id=$1
	`, submissionID, status)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddAssignedEditor(ctx context.Context, submissionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_editors (submission_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, submissionID, userID)
	if err != nil {
		return fmt.Errorf("assign editor: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveAssignedEditor(ctx context.Context, submissionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM submission_editors WHERE submission_id=$1 AND user_id=$2`, submissionID, userID)
	if err != nil {
		return fmt.Errorf("unassign editor: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddAssignedReviewer(ctx context.Context, submissionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_reviewers (submission_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, submissionID, userID)
	if err != nil {
		return fmt.Errorf("assign reviewer: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveAssignedReviewer(ctx context.Context, submissionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM submission_reviewers WHERE submission_id=$1 AND user_id=$2`, submissionID, userID)
	if err != nil {
		return fmt.Errorf("unassign reviewer: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssignedEditors(ctx context.Context, submissionID string) ([]string, error) {
	return s.listAssignees(ctx, `SELECT user_id FROM submission_editors WHERE submission_id=$1 ORDER BY assigned_at`, submissionID)
}

func (s *PostgresStore) GetAssignedReviewers(ctx context.Context, submissionID string) ([]string, error) {
	return s.listAssignees(ctx, `SELECT user_id FROM submission_reviewers WHERE submission_id=$1 ORDER BY assigned_at`, submissionID)
}

func (s *PostgresStore) listAssignees(ctx context.Context, query, submissionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// =============================================================================
// Paper events
// =============================================================================

// InsertPaperEvent appends an event. Visibility is stored as JSONB; the row is
// never updated afterwards except through UpdateEventVisibility.
func (s *PostgresStore) InsertPaperEvent(ctx context.Context, event PaperEvent) error {
	visibility, err := json.Marshal(event.Visibility)
	if err != nil {
		return fmt.Errorf("marshal visibility: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paper_events (id, paper_id, actor_id, version, type, submission_id, assignee_id, review_id, review_comment_id, new_status, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, event.ID, event.PaperID, event.ActorID, event.Version, event.Type,
		event.SubmissionID, event.AssigneeID, event.ReviewID, event.ReviewCommentID,
		event.NewStatus, visibility)
	if err != nil {
		return fmt.Errorf("insert paper event: %w", err)
	}
	return nil
}

const eventColumns = `id, paper_id, actor_id, version, type, submission_id, assignee_id, review_id, review_comment_id, new_status, visibility, event_date`

func scanEvent(scan func(...any) error) (PaperEvent, error) {
	var event PaperEvent
	var visibility []byte
	err := scan(&event.ID, &event.PaperID, &event.ActorID, &event.Version, &event.Type,
		&event.SubmissionID, &event.AssigneeID, &event.ReviewID, &event.ReviewCommentID,
		&event.NewStatus, &visibility, &event.EventDate)
	if err != nil {
		return PaperEvent{}, err
	}
	if err := json.Unmarshal(visibility, &event.Visibility); err != nil {
		return PaperEvent{}, fmt.Errorf("unmarshal visibility: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) GetPaperEvent(ctx context.Context, eventID string) (PaperEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM paper_events WHERE id=$1`, eventID)
	return scanEvent(row.Scan)
}

func (s *PostgresStore) ListPaperEvents(ctx context.Context, paperID string) ([]PaperEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM paper_events WHERE paper_id=$1 ORDER BY event_date, id
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list paper events: %w", err)
	}
	defer rows.Close()

	var events []PaperEvent
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan paper event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetReviewEvent returns the review-posted event recorded for a review. Its
// visibility stamp governs the review's content wherever it surfaces.
func (s *PostgresStore) GetReviewEvent(ctx context.Context, reviewID string) (PaperEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM paper_events
		WHERE review_id=$1 AND type='review-posted'
		ORDER BY event_date LIMIT 1
	`, reviewID)
	return scanEvent(row.Scan)
}

// UpdateEventVisibility is the single mutation allowed on an event record.
func (s *PostgresStore) UpdateEventVisibility(ctx context.Context, eventID string, visibility []string) error {
	encoded, err := json.Marshal(visibility)
	if err != nil {
		return fmt.Errorf("marshal visibility: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE paper_events SET visibility=$2 WHERE id=$1`, eventID, encoded)
	if err != nil {
		return fmt.Errorf("update event visibility: %w", err)
	}
	return nil
}

// =============================================================================
// Reviews
// =============================================================================

func (s *PostgresStore) InsertReview(ctx context.Context, review Review) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, paper_id, submission_id, user_id, version, summary, recommendation, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, review.ID, review.PaperID, review.SubmissionID, review.UserID, review.Version,
		review.Summary, review.Recommendation, review.Status)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReview(ctx context.Context, reviewID string) (Review, error) {
	var review Review
	err := s.db.QueryRowContext(ctx, `
		SELECT id, paper_id, submission_id, user_id, version, summary, recommendation, status, created_at, updated_at
		FROM reviews WHERE id=$1
	`, reviewID).Scan(&review.ID, &review.PaperID, &review.SubmissionID, &review.UserID,
		&review.Version, &review.Summary, &review.Recommendation, &review.Status,
		&review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		return Review{}, err
	}
	return review, nil
}

func (s *PostgresStore) InsertReviewComment(ctx context.Context, comment ReviewComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_comments (id, review_id, user_id, parent_id, page, content, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, comment.ID, comment.ReviewID, comment.UserID, comment.ParentID, comment.Page, comment.Content, comment.Status)
	if err != nil {
		return fmt.Errorf("insert review comment: %w", err)
	}
	return nil
}

// =============================================================================
// Feature flags
// =============================================================================

func (s *PostgresStore) IsEnabled(ctx context.Context, flag string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM feature_flags WHERE name=$1`, flag).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read feature flag: %w", err)
	}
	return status == FeatureEnabled, nil
}

func (s *PostgresStore) SetFeature(ctx context.Context, flag, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feature_flags (name, status) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET status=EXCLUDED.status, updated_at=NOW()
	`, flag, status)
	if err != nil {
		return fmt.Errorf("set feature flag: %w", err)
	}
	return nil
}
