package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsAdmin               bool
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Paper struct {
	ID           string
	Title        string
	IsDraft      bool
	ShowPreprint bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaperAuthor is one row of a paper's ordered author list. Owner marks the
// corresponding author; Submitter marks who uploaded the manuscript.
type PaperAuthor struct {
	PaperID   string
	UserID    string
	Order     int
	Owner     bool
	Submitter bool
}

type PaperVersion struct {
	PaperID     string
	Version     int
	FileKey     string
	Content     string
	IsPreprint  bool
	IsSubmitted bool
	IsPublished bool
	CreatedAt   time.Time
}

type Journal struct {
	ID          string
	Name        string
	Description string
	// Model is the journal's transparency model. Empty means the journal
	// predates transparency models and runs on legacy preprint behavior.
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type JournalMember struct {
	JournalID   string
	UserID      string
	Permissions string
	Order       int
}

// Journal membership permission levels.
const (
	PermissionOwner    = "owner"
	PermissionEditor   = "editor"
	PermissionReviewer = "reviewer"
)

type JournalSubmission struct {
	ID          string
	JournalID   string
	PaperID     string
	Status      string
	SubmitterID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Submission statuses. A submission stays active until it reaches published,
// rejected, or retracted. Proofing counts as active: editors and reviewers
// keep their roles until the submission actually resolves.
const (
	StatusSubmitted = "submitted"
	StatusInReview  = "review"
	StatusProofing  = "proofing"
	StatusPublished = "published"
	StatusRejected  = "rejected"
	StatusRetracted = "retracted"
)

type SubmissionAssignee struct {
	SubmissionID string
	UserID       string
	AssignedAt   time.Time
}

// PaperEvent is the append-only record of an action on a paper. Visibility is
// the set of role labels stamped at creation time and never recomputed.
type PaperEvent struct {
	ID              string
	PaperID         string
	ActorID         string
	Version         int
	Type            string
	SubmissionID    *string
	AssigneeID      *string
	ReviewID        *string
	ReviewCommentID *string
	NewStatus       *string
	Visibility      []string
	EventDate       time.Time
}

type Review struct {
	ID             string
	PaperID        string
	SubmissionID   *string
	UserID         string
	Version        int
	Summary        string
	Recommendation string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReviewComment struct {
	ID        string
	ReviewID  string
	UserID    string
	ParentID  *string
	Page      int
	Content   string
	Status    string
	CreatedAt time.Time
}

type Field struct {
	ID                string
	Name              string
	Description       string
	AverageReputation int
}

type UserFieldReputation struct {
	UserID     string
	FieldID    string
	Reputation int
}

type FeatureFlag struct {
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Feature flag statuses.
const (
	FeatureEnabled  = "enabled"
	FeatureDisabled = "disabled"
)

// FlagJournalModels gates transparency-model driven event visibility. With the
// flag off, visibility falls back to the legacy preprint-or-private behavior.
const FlagJournalModels = "journal-permission-models-194"
