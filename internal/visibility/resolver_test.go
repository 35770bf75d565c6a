package visibility

import (
	"testing"

	"peerreview/api/internal/store"
)

func TestBaseRolesAnonymousIsExactlyPublic(t *testing.T) {
	roles := BaseRoles("", []store.PaperAuthor{{UserID: "user-1"}})
	if roles.Cardinality() != 1 || !roles.Contains(RolePublic) {
		t.Fatalf("anonymous base roles = %v, want {public}", roles)
	}
}

func TestBaseRolesAuthorAndCorresponding(t *testing.T) {
	authors := []store.PaperAuthor{
		{UserID: "user-1", Order: 1, Owner: true},
		{UserID: "user-2", Order: 2},
	}

	owner := BaseRoles("user-1", authors)
	if !owner.Contains(RoleAuthor) || !owner.Contains(RoleCorrespondingAuthor) {
		t.Fatalf("corresponding author roles = %v", owner)
	}

	coauthor := BaseRoles("user-2", authors)
	if !coauthor.Contains(RoleAuthor) || coauthor.Contains(RoleCorrespondingAuthor) {
		t.Fatalf("co-author roles = %v", coauthor)
	}

	stranger := BaseRoles("user-3", authors)
	if stranger.Contains(RoleAuthor) {
		t.Fatalf("non-author roles = %v", stranger)
	}
}

func TestContextRolesMapsMembershipAndAssignments(t *testing.T) {
	sc := SubmissionContext{
		Submission: store.JournalSubmission{ID: "sub-1", JournalID: "journal-1"},
		Membership: store.PermissionOwner,
		Editors:    []string{"user-1"},
		Reviewers:  []string{"user-2"},
	}

	roles := ContextRoles("user-1", NewRoleSet(RolePublic), sc)
	if !roles.Contains(RoleManagingEditor) {
		t.Fatalf("owner membership missing managing-editor: %v", roles)
	}
	if !roles.Contains(RoleAssignedEditor) {
		t.Fatalf("assigned editor missing: %v", roles)
	}
	if roles.Contains(RoleAssignedReviewer) {
		t.Fatalf("unexpected assigned-reviewer: %v", roles)
	}
}

func TestContextRolesPermissionMapping(t *testing.T) {
	cases := []struct {
		permission string
		want       Role
	}{
		{store.PermissionOwner, RoleManagingEditor},
		{store.PermissionEditor, RoleEditor},
		{store.PermissionReviewer, RoleReviewer},
	}
	for _, tc := range cases {
		sc := SubmissionContext{Membership: tc.permission}
		roles := ContextRoles("user-1", NewRoleSet(RolePublic), sc)
		if !roles.Contains(tc.want) {
			t.Fatalf("permission %s: roles %v missing %s", tc.permission, roles, tc.want)
		}
	}
}

// A user can be author and reviewer at once; roles are additive, never
// exclusive.
func TestContextRolesAreAdditive(t *testing.T) {
	base := BaseRoles("user-1", []store.PaperAuthor{{UserID: "user-1", Owner: true}})
	sc := SubmissionContext{
		Membership: store.PermissionReviewer,
		Reviewers:  []string{"user-1"},
	}
	roles := ContextRoles("user-1", base, sc)
	for _, want := range []Role{RolePublic, RoleAuthor, RoleCorrespondingAuthor, RoleReviewer, RoleAssignedReviewer} {
		if !roles.Contains(want) {
			t.Fatalf("roles %v missing %s", roles, want)
		}
	}
}

func TestContextRolesAnonymousGainsNothing(t *testing.T) {
	sc := SubmissionContext{
		Membership: store.PermissionOwner,
		Editors:    []string{""},
	}
	roles := ContextRoles("", NewRoleSet(RolePublic), sc)
	if roles.Cardinality() != 1 {
		t.Fatalf("anonymous context roles = %v, want {public}", roles)
	}
}
