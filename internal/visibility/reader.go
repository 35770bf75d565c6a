package visibility

import (
	"context"

	"peerreview/api/internal/store"
)

// Reader is the read-only query surface the engine needs from storage. The
// engine performs no writes through it; event persistence stays with the
// caller.
type Reader interface {
	GetPaper(ctx context.Context, paperID string) (store.Paper, error)
	GetPaperAuthors(ctx context.Context, paperID string) ([]store.PaperAuthor, error)

	// GetActiveSubmission returns the paper's single in-flight submission,
	// or nil when every submission has resolved.
	GetActiveSubmission(ctx context.Context, paperID string) (*store.JournalSubmission, error)
	GetSubmission(ctx context.Context, submissionID string) (store.JournalSubmission, error)

	// GetSubmissionsForUser returns the paper's submissions, active or
	// historical, that the user has any relationship to: journal member,
	// assigned editor, or assigned reviewer.
	GetSubmissionsForUser(ctx context.Context, userID, paperID string) ([]store.JournalSubmission, error)

	GetJournal(ctx context.Context, journalID string) (store.Journal, error)

	// GetJournalMembership returns the user's permission level in the
	// journal, or "" when the user is not a member.
	GetJournalMembership(ctx context.Context, journalID, userID string) (string, error)

	GetAssignedEditors(ctx context.Context, submissionID string) ([]string, error)
	GetAssignedReviewers(ctx context.Context, submissionID string) ([]string, error)

	ListPaperEvents(ctx context.Context, paperID string) ([]store.PaperEvent, error)
	ListPaperIDs(ctx context.Context) ([]string, error)

	// IsEnabled reports whether a feature flag is on.
	IsEnabled(ctx context.Context, flag string) (bool, error)
}
