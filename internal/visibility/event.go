package visibility

// EventType is the closed enumeration of recordable paper actions. The policy
// table must cover every member for every transparency model; adding a type
// here without extending the table is caught by the exhaustiveness check in
// Policy and by the table test.
type EventType string

const (
	EventNewVersion         EventType = "new-version"
	EventPreprintPosted     EventType = "preprint-posted"
	EventReviewPosted       EventType = "review-posted"
	EventReviewCommentReply EventType = "review-comment-reply-posted"
	EventCommentPosted      EventType = "comment-posted"
	EventSubmittedToJournal EventType = "submitted-to-journal"
	EventStatusChanged      EventType = "status-changed"
	EventReviewerAssigned   EventType = "reviewer-assigned"
	EventReviewerUnassigned EventType = "reviewer-unassigned"
	EventEditorAssigned     EventType = "editor-assigned"
	EventEditorUnassigned   EventType = "editor-unassigned"
)

// EventTypes lists every member of the enumeration.
var EventTypes = []EventType{
	EventNewVersion,
	EventPreprintPosted,
	EventReviewPosted,
	EventReviewCommentReply,
	EventCommentPosted,
	EventSubmittedToJournal,
	EventStatusChanged,
	EventReviewerAssigned,
	EventReviewerUnassigned,
	EventEditorAssigned,
	EventEditorUnassigned,
}

// ParseEventType validates a stored type string against the enumeration.
func ParseEventType(value string) (EventType, bool) {
	for _, t := range EventTypes {
		if string(t) == value {
			return t, true
		}
	}
	return "", false
}
