package visibility

import "peerreview/api/internal/store"

// Stage is a paper's disclosure stage. Stage is evaluated per event, not per
// paper: a public preprint under closed review is public on the preprint path
// and closed on the submission path.
type Stage string

const (
	// StageDraft is a private manuscript: authors only.
	StageDraft Stage = "draft"
	// StagePreprint is a publicly posted manuscript with no submission in
	// flight: everything defaults open.
	StagePreprint Stage = "preprint"
	// StageActiveSubmission means the event happened under an in-flight
	// journal submission; the journal's transparency model governs.
	StageActiveSubmission Stage = "active-submission"
	// StageResolved means the governing submission has reached a terminal
	// status.
	StageResolved Stage = "resolved"
)

// SubmissionResolved reports whether a submission status is terminal.
// Proofing is deliberately not terminal: the submission is still in flight
// and editors and reviewers keep their roles through it.
func SubmissionResolved(status string) bool {
	switch status {
	case store.StatusPublished, store.StatusRejected, store.StatusRetracted:
		return true
	}
	return false
}

// Classify determines the disclosure stage for an event on the given paper.
// submission is the submission the event occurred under, or nil for events on
// the preprint/draft path.
func Classify(paper store.Paper, submission *store.JournalSubmission) Stage {
	if submission != nil {
		if SubmissionResolved(submission.Status) {
			return StageResolved
		}
		return StageActiveSubmission
	}
	if paper.ShowPreprint {
		return StagePreprint
	}
	return StageDraft
}
