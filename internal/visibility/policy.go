package visibility

import (
	"errors"
	"fmt"
)

// Model is a journal's transparency model. It fixes the default visibility of
// every event recorded while a submission to that journal is in flight.
type Model string

const (
	// ModelPublic journals run fully in the open: every event is public.
	ModelPublic Model = "public"
	// ModelOpenPublic journals keep review internal to journal and author
	// roles while in flight, then release everything once published.
	ModelOpenPublic Model = "open-public"
	// ModelOpenClosed journals share everything across journal and author
	// roles but never release the record to the public.
	ModelOpenClosed Model = "open-closed"
	// ModelClosed journals run traditional closed review: reviewers cannot
	// see each other's reviews, authors cannot see editorial traffic.
	ModelClosed Model = "closed"
)

// Models lists every transparency model.
var Models = []Model{ModelPublic, ModelOpenPublic, ModelOpenClosed, ModelClosed}

// ParseModel validates a stored model string.
func ParseModel(value string) (Model, bool) {
	for _, m := range Models {
		if string(m) == value {
			return m, true
		}
	}
	return "", false
}

// ErrNoPolicy means the policy table has no entry for a (model, event type)
// pair. That is a configuration defect: the caller must abort rather than
// guess, since guessing risks leaking review or hiding legitimate access.
var ErrNoPolicy = errors.New("no visibility policy for model and event type")

// openRoles is the full journal-plus-author role set used by the open models:
// everyone involved with the journal or the paper, but not the public.
func openRoles() RoleSet {
	return NewRoleSet(
		RoleManagingEditor,
		RoleEditor,
		RoleAssignedEditor,
		RoleReviewer,
		RoleAssignedReviewer,
		RoleCorrespondingAuthor,
		RoleAuthor,
	)
}

// closedDefault is the closed model's baseline: editorial staff, assigned
// reviewers, and the authors. General journal members are excluded.
func closedDefault() RoleSet {
	return NewRoleSet(
		RoleManagingEditor,
		RoleAssignedEditor,
		RoleAssignedReviewer,
		RoleCorrespondingAuthor,
		RoleAuthor,
	)
}

// Policy returns the set of roles permitted to view an event of the given type
// under the given transparency model. The switch is exhaustive over both
// enumerations; an unknown member returns ErrNoPolicy.
func Policy(model Model, eventType EventType) (RoleSet, error) {
	if _, ok := ParseEventType(string(eventType)); !ok {
		return nil, fmt.Errorf("%w: model %q, type %q", ErrNoPolicy, model, eventType)
	}

	switch model {
	case ModelPublic:
		return NewRoleSet(RolePublic), nil

	case ModelOpenPublic, ModelOpenClosed:
		// Both open models share one matrix while a submission is in
		// flight; they differ only in whether the record is released
		// after publication, which Assign handles. Reviews are
		// deliberately visible to all journal-side roles here.
		return openRoles(), nil

	case ModelClosed:
		switch eventType {
		case EventReviewPosted, EventReviewCommentReply:
			// Review content is visible only to editorial staff.
			// Reviewers never see each other's reviews.
			return NewRoleSet(RoleManagingEditor, RoleAssignedEditor), nil
		case EventSubmittedToJournal:
			return NewRoleSet(RoleManagingEditor, RoleCorrespondingAuthor, RoleAuthor), nil
		case EventStatusChanged:
			return NewRoleSet(RoleManagingEditor, RoleAssignedEditor, RoleAssignedReviewer), nil
		case EventReviewerAssigned, EventReviewerUnassigned,
			EventEditorAssigned, EventEditorUnassigned:
			return NewRoleSet(RoleManagingEditor, RoleAssignedEditor), nil
		case EventNewVersion, EventPreprintPosted, EventCommentPosted:
			return closedDefault(), nil
		}
		return nil, fmt.Errorf("%w: model %q, type %q", ErrNoPolicy, model, eventType)
	}

	return nil, fmt.Errorf("%w: model %q, type %q", ErrNoPolicy, model, eventType)
}
