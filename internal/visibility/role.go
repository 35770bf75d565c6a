// Package visibility implements the event visibility engine: role resolution
// for a (user, paper, submission) context, the transparency policy table, the
// visibility stamp computed at event creation, and the query-time filter that
// decides which events, papers, and submissions a user may see.
package visibility

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Role is an ephemeral label a user holds with respect to a paper and,
// optionally, one of its journal submissions. Roles are computed on demand and
// never stored against the user.
type Role string

const (
	// RolePublic is held implicitly by every requester, including anonymous
	// ones. An event visible to public is visible to everyone.
	RolePublic Role = "public"

	RoleAuthor              Role = "authors"
	RoleCorrespondingAuthor Role = "corresponding-author"

	RoleManagingEditor   Role = "managing-editor"
	RoleEditor           Role = "editors"
	RoleAssignedEditor   Role = "assigned-editors"
	RoleReviewer         Role = "reviewers"
	RoleAssignedReviewer Role = "assigned-reviewers"
)

// RoleSet is a set of role labels. The engine lives on set intersection and
// union, so the set type does the work.
type RoleSet = mapset.Set[Role]

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	return mapset.NewSet(roles...)
}

var allRoles = []Role{
	RolePublic,
	RoleAuthor,
	RoleCorrespondingAuthor,
	RoleManagingEditor,
	RoleEditor,
	RoleAssignedEditor,
	RoleReviewer,
	RoleAssignedReviewer,
}

// ParseRole maps a stored label back to a Role, reporting whether the label is
// known. Unknown labels must never be silently accepted into a visibility set.
func ParseRole(label string) (Role, bool) {
	for _, role := range allRoles {
		if string(role) == label {
			return role, true
		}
	}
	return "", false
}

// ParseRoleSet converts stored labels into a RoleSet. Unknown labels are
// dropped: a label the engine does not understand can never match a resolved
// role, and keeping it would only suggest a grant that cannot take effect.
func ParseRoleSet(labels []string) RoleSet {
	set := mapset.NewSet[Role]()
	for _, label := range labels {
		if role, ok := ParseRole(label); ok {
			set.Add(role)
		}
	}
	return set
}

// Labels flattens a RoleSet into sorted-insertion string labels for storage.
func Labels(set RoleSet) []string {
	labels := make([]string, 0, set.Cardinality())
	for role := range set.Iter() {
		labels = append(labels, string(role))
	}
	return labels
}
