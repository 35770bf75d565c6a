package visibility

import (
	"context"
	"fmt"

	"peerreview/api/internal/store"
)

// SubmissionContext bundles everything needed to resolve a user's roles for
// one submission of a paper: the membership level in the owning journal and
// the assignment lists. All fields are plain data so the algebra below stays
// pure and independently testable.
type SubmissionContext struct {
	Submission store.JournalSubmission
	Membership string
	Editors    []string
	Reviewers  []string
}

// BaseRoles computes the roles a user holds on a paper with no submission in
// context. Public is always held; author roles come from the paper's author
// list. An empty userID is an anonymous requester and holds exactly public.
func BaseRoles(userID string, authors []store.PaperAuthor) RoleSet {
	roles := NewRoleSet(RolePublic)
	if userID == "" {
		return roles
	}
	for _, author := range authors {
		if author.UserID != userID {
			continue
		}
		roles.Add(RoleAuthor)
		if author.Owner {
			roles.Add(RoleCorrespondingAuthor)
		}
	}
	return roles
}

// ContextRoles extends a base role set with the roles granted by one
// submission context. Roles are additive and never exclusive: an author who
// also reviews for the journal holds both sides at once.
func ContextRoles(userID string, base RoleSet, sc SubmissionContext) RoleSet {
	roles := base.Clone()
	if userID == "" {
		return roles
	}

	switch sc.Membership {
	case store.PermissionOwner:
		roles.Add(RoleManagingEditor)
	case store.PermissionEditor:
		roles.Add(RoleEditor)
	case store.PermissionReviewer:
		roles.Add(RoleReviewer)
	}

	for _, editorID := range sc.Editors {
		if editorID == userID {
			roles.Add(RoleAssignedEditor)
			break
		}
	}
	for _, reviewerID := range sc.Reviewers {
		if reviewerID == userID {
			roles.Add(RoleAssignedReviewer)
			break
		}
	}
	return roles
}

// Resolver loads the state a role computation needs and delegates to the pure
// algebra above.
type Resolver struct {
	reader Reader
}

func NewResolver(reader Reader) *Resolver {
	return &Resolver{reader: reader}
}

// PaperRoles resolves the user's base role set for a paper.
func (r *Resolver) PaperRoles(ctx context.Context, userID, paperID string) (RoleSet, error) {
	authors, err := r.reader.GetPaperAuthors(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("load paper authors: %w", err)
	}
	return BaseRoles(userID, authors), nil
}

// SubmissionRoles resolves the user's full role set for a paper under one of
// its submissions.
func (r *Resolver) SubmissionRoles(ctx context.Context, userID string, base RoleSet, submission store.JournalSubmission) (RoleSet, error) {
	sc, err := r.loadContext(ctx, userID, submission)
	if err != nil {
		return nil, err
	}
	return ContextRoles(userID, base, sc), nil
}

func (r *Resolver) loadContext(ctx context.Context, userID string, submission store.JournalSubmission) (SubmissionContext, error) {
	membership := ""
	if userID != "" {
		var err error
		membership, err = r.reader.GetJournalMembership(ctx, submission.JournalID, userID)
		if err != nil {
			return SubmissionContext{}, fmt.Errorf("load journal membership: %w", err)
		}
	}

	editors, err := r.reader.GetAssignedEditors(ctx, submission.ID)
	if err != nil {
		return SubmissionContext{}, fmt.Errorf("load assigned editors: %w", err)
	}
	reviewers, err := r.reader.GetAssignedReviewers(ctx, submission.ID)
	if err != nil {
		return SubmissionContext{}, fmt.Errorf("load assigned reviewers: %w", err)
	}

	return SubmissionContext{
		Submission: submission,
		Membership: membership,
		Editors:    editors,
		Reviewers:  reviewers,
	}, nil
}
