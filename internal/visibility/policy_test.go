package visibility

import (
	"errors"
	"testing"
)

// Every (model, event type) pair must resolve. A hole in the table is a
// configuration defect that has to surface as ErrNoPolicy, never as a silent
// default in either direction.
func TestPolicyCoversEveryModelAndEventType(t *testing.T) {
	for _, model := range Models {
		for _, eventType := range EventTypes {
			roles, err := Policy(model, eventType)
			if err != nil {
				t.Fatalf("Policy(%s, %s): %v", model, eventType, err)
			}
			if roles.Cardinality() == 0 {
				t.Fatalf("Policy(%s, %s): empty role set", model, eventType)
			}
		}
	}
}

func TestPolicyUnknownPairFailsLoudly(t *testing.T) {
	if _, err := Policy(Model("semi-open"), EventCommentPosted); !errors.Is(err, ErrNoPolicy) {
		t.Fatalf("unknown model: got %v, want ErrNoPolicy", err)
	}
	if _, err := Policy(ModelClosed, EventType("paper-burned")); !errors.Is(err, ErrNoPolicy) {
		t.Fatalf("unknown event type: got %v, want ErrNoPolicy", err)
	}
}

func TestPublicModelIsAlwaysPublic(t *testing.T) {
	for _, eventType := range EventTypes {
		roles, err := Policy(ModelPublic, eventType)
		if err != nil {
			t.Fatalf("Policy(public, %s): %v", eventType, err)
		}
		if !roles.Contains(RolePublic) || roles.Cardinality() != 1 {
			t.Fatalf("Policy(public, %s) = %v, want exactly {public}", eventType, roles)
		}
	}
}

func TestOpenModelsExcludeThePublic(t *testing.T) {
	for _, model := range []Model{ModelOpenPublic, ModelOpenClosed} {
		for _, eventType := range EventTypes {
			roles, err := Policy(model, eventType)
			if err != nil {
				t.Fatalf("Policy(%s, %s): %v", model, eventType, err)
			}
			if roles.Contains(RolePublic) {
				t.Fatalf("Policy(%s, %s) includes public", model, eventType)
			}
			// All journal-side and author-side roles are in.
			for _, role := range []Role{RoleManagingEditor, RoleEditor, RoleAssignedEditor, RoleReviewer, RoleAssignedReviewer, RoleCorrespondingAuthor, RoleAuthor} {
				if !roles.Contains(role) {
					t.Fatalf("Policy(%s, %s) missing %s", model, eventType, role)
				}
			}
		}
	}
}

// Under the closed model a posted review is visible only to editorial staff.
// Neither general nor assigned reviewers may read other reviews.
func TestClosedModelReviewerIsolation(t *testing.T) {
	roles, err := Policy(ModelClosed, EventReviewPosted)
	if err != nil {
		t.Fatalf("Policy(closed, review-posted): %v", err)
	}
	want := NewRoleSet(RoleManagingEditor, RoleAssignedEditor)
	if !roles.Equal(want) {
		t.Fatalf("Policy(closed, review-posted) = %v, want %v", roles, want)
	}
	if roles.Contains(RoleReviewer) || roles.Contains(RoleAssignedReviewer) {
		t.Fatal("closed model must not show reviews to reviewers")
	}
}

func TestClosedModelSubmissionVisibleToAuthorsAndManagingEditor(t *testing.T) {
	roles, err := Policy(ModelClosed, EventSubmittedToJournal)
	if err != nil {
		t.Fatalf("Policy(closed, submitted-to-journal): %v", err)
	}
	want := NewRoleSet(RoleManagingEditor, RoleCorrespondingAuthor, RoleAuthor)
	if !roles.Equal(want) {
		t.Fatalf("Policy(closed, submitted-to-journal) = %v, want %v", roles, want)
	}
}

func TestClosedModelAssignmentEventsAreEditorOnly(t *testing.T) {
	for _, eventType := range []EventType{EventReviewerAssigned, EventReviewerUnassigned, EventEditorAssigned, EventEditorUnassigned} {
		roles, err := Policy(ModelClosed, eventType)
		if err != nil {
			t.Fatalf("Policy(closed, %s): %v", eventType, err)
		}
		if roles.Contains(RoleAuthor) || roles.Contains(RoleCorrespondingAuthor) || roles.Contains(RolePublic) {
			t.Fatalf("Policy(closed, %s) = %v leaks beyond editor roles", eventType, roles)
		}
	}
}
