package visibility

import (
	"context"
	"fmt"

	"peerreview/api/internal/store"
)

// Engine answers the read-side question: what can this user see? All checks
// reduce to a set-intersection test between an event's stored visibility and
// the union of the user's role sets across the submission contexts they have
// a relationship to.
type Engine struct {
	reader   Reader
	resolver *Resolver
}

func NewEngine(reader Reader) *Engine {
	return &Engine{reader: reader, resolver: NewResolver(reader)}
}

// userRoles computes the union of the user's base role set and the role set
// for every submission of the paper the user is related to. Submissions the
// user has no relationship to contribute nothing and are skipped entirely.
func (e *Engine) userRoles(ctx context.Context, userID, paperID string) (RoleSet, error) {
	roles, err := e.resolver.PaperRoles(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return roles, nil
	}

	submissions, err := e.reader.GetSubmissionsForUser(ctx, userID, paperID)
	if err != nil {
		return nil, fmt.Errorf("load user submissions: %w", err)
	}
	for _, submission := range submissions {
		contextRoles, err := e.resolver.SubmissionRoles(ctx, userID, roles, submission)
		if err != nil {
			return nil, err
		}
		roles = roles.Union(contextRoles)
	}
	return roles, nil
}

// VisibleEventIDs returns the IDs of the paper's events the user may see, in
// stored order. userID may be empty for anonymous requesters, who see exactly
// the public events. Events with an empty or unparseable visibility set are
// visible to no one.
func (e *Engine) VisibleEventIDs(ctx context.Context, userID, paperID string) ([]string, error) {
	events, err := e.reader.ListPaperEvents(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("load paper events: %w", err)
	}

	roles, err := e.userRoles(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}

	visible := make([]string, 0, len(events))
	for _, event := range events {
		if e.eventVisible(event, roles) {
			visible = append(visible, event.ID)
		}
	}
	return visible, nil
}

// FilterEvents returns the subset of events the user may see.
func (e *Engine) FilterEvents(ctx context.Context, userID, paperID string, events []store.PaperEvent) ([]store.PaperEvent, error) {
	roles, err := e.userRoles(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}
	visible := make([]store.PaperEvent, 0, len(events))
	for _, event := range events {
		if e.eventVisible(event, roles) {
			visible = append(visible, event)
		}
	}
	return visible, nil
}

func (e *Engine) eventVisible(event store.PaperEvent, roles RoleSet) bool {
	stamped := ParseRoleSet(event.Visibility)
	if stamped.Cardinality() == 0 {
		// Fail closed: an empty or unresolvable visibility set hides
		// the event from everyone, admins included.
		return false
	}
	if stamped.Contains(RolePublic) {
		return true
	}
	return stamped.Intersect(roles).Cardinality() > 0
}

// CanViewEvent reports whether a single event's stamped visibility admits the
// user, resolving roles the same way the event feed does. Callers surfacing
// event-derived content outside the feed must go through this, not through the
// coarser paper or submission checks.
func (e *Engine) CanViewEvent(ctx context.Context, userID string, event store.PaperEvent) (bool, error) {
	roles, err := e.userRoles(ctx, userID, event.PaperID)
	if err != nil {
		return false, err
	}
	return e.eventVisible(event, roles), nil
}

// CanViewPaper reports whether the paper itself is visible to the user: a
// public preprint, the user's own paper, or a paper with at least one
// submission visible to the user.
func (e *Engine) CanViewPaper(ctx context.Context, userID, paperID string) (bool, error) {
	paper, err := e.reader.GetPaper(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("load paper: %w", err)
	}
	if paper.ShowPreprint {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}

	authors, err := e.reader.GetPaperAuthors(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("load paper authors: %w", err)
	}
	if BaseRoles(userID, authors).Contains(RoleAuthor) {
		return true, nil
	}

	submissions, err := e.reader.GetSubmissionsForUser(ctx, userID, paperID)
	if err != nil {
		return false, fmt.Errorf("load user submissions: %w", err)
	}
	for _, submission := range submissions {
		visible, err := e.submissionVisible(ctx, userID, submission)
		if err != nil {
			return false, err
		}
		if visible {
			return true, nil
		}
	}
	return false, nil
}

// VisiblePaperIDs returns every paper the user may see.
func (e *Engine) VisiblePaperIDs(ctx context.Context, userID string) ([]string, error) {
	paperIDs, err := e.reader.ListPaperIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	visible := make([]string, 0, len(paperIDs))
	for _, paperID := range paperIDs {
		ok, err := e.CanViewPaper(ctx, userID, paperID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, paperID)
		}
	}
	return visible, nil
}

// CanViewSubmission reports visibility of a single submission: a published
// submission is visible to everyone, otherwise the user needs an author role
// on the paper, standing on the journal, or an assignment appropriate to the
// submission's current status.
func (e *Engine) CanViewSubmission(ctx context.Context, userID, submissionID string) (bool, error) {
	submission, err := e.reader.GetSubmission(ctx, submissionID)
	if err != nil {
		return false, fmt.Errorf("load submission: %w", err)
	}
	return e.submissionVisible(ctx, userID, submission)
}

func (e *Engine) submissionVisible(ctx context.Context, userID string, submission store.JournalSubmission) (bool, error) {
	if submission.Status == store.StatusPublished {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}

	authors, err := e.reader.GetPaperAuthors(ctx, submission.PaperID)
	if err != nil {
		return false, fmt.Errorf("load paper authors: %w", err)
	}
	if BaseRoles(userID, authors).Contains(RoleAuthor) {
		return true, nil
	}

	membership, err := e.reader.GetJournalMembership(ctx, submission.JournalID, userID)
	if err != nil {
		return false, fmt.Errorf("load journal membership: %w", err)
	}
	switch membership {
	case store.PermissionOwner, store.PermissionEditor:
		return true, nil
	case store.PermissionReviewer:
		if submission.Status == store.StatusInReview {
			return true, nil
		}
	}

	// Assigned reviewers see the submission only while it is in review.
	if submission.Status == store.StatusInReview {
		reviewers, err := e.reader.GetAssignedReviewers(ctx, submission.ID)
		if err != nil {
			return false, fmt.Errorf("load assigned reviewers: %w", err)
		}
		for _, reviewerID := range reviewers {
			if reviewerID == userID {
				return true, nil
			}
		}
	}

	editors, err := e.reader.GetAssignedEditors(ctx, submission.ID)
	if err != nil {
		return false, fmt.Errorf("load assigned editors: %w", err)
	}
	for _, editorID := range editors {
		if editorID == userID {
			return true, nil
		}
	}
	return false, nil
}
