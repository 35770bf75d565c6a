package visibility

import (
	"context"
	"testing"

	"peerreview/api/internal/store"
)

func eventWith(id string, visibility ...string) store.PaperEvent {
	return store.PaperEvent{ID: id, PaperID: "paper-1", Type: string(EventCommentPosted), Visibility: visibility}
}

// An empty or unparseable visibility set hides the event from everyone.
func TestVisibleEventIDsFailClosed(t *testing.T) {
	reader := &fakeReader{
		listPaperEventsFn: func(context.Context, string) ([]store.PaperEvent, error) {
			return []store.PaperEvent{
				eventWith("event-1"),
				eventWith("event-2", "board-of-directors"),
				eventWith("event-3", string(RolePublic)),
			}, nil
		},
		getPaperAuthorsFn: func(context.Context, string) ([]store.PaperAuthor, error) {
			return []store.PaperAuthor{{UserID: "user-1", Owner: true}}, nil
		},
	}
	engine := NewEngine(reader)

	ids, err := engine.VisibleEventIDs(context.Background(), "user-1", "paper-1")
	if err != nil {
		t.Fatalf("VisibleEventIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "event-3" {
		t.Fatalf("visible = %v, want [event-3]", ids)
	}
}

// CanViewEvent applies the stamp to a single event with the same role
// resolution as the feed.
func TestCanViewEventHonorsStamp(t *testing.T) {
	reader := &fakeReader{
		getPaperAuthorsFn: func(context.Context, string) ([]store.PaperAuthor, error) {
			return []store.PaperAuthor{{UserID: "author-1", Owner: true}}, nil
		},
	}
	engine := NewEngine(reader)
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		event  store.PaperEvent
		want   bool
	}{
		{"stamped role held", "author-1", eventWith("event-1", string(RoleAuthor)), true},
		{"stamped role not held", "user-99", eventWith("event-1", string(RoleAuthor)), false},
		{"public admits anonymous", "", eventWith("event-2", string(RolePublic)), true},
		{"empty stamp fails closed", "author-1", eventWith("event-3"), false},
	}
	for _, tc := range cases {
		got, err := engine.CanViewEvent(ctx, tc.userID, tc.event)
		if err != nil {
			t.Fatalf("%s: CanViewEvent: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: CanViewEvent = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// A public event is visible to every requester, anonymous included.
func TestVisibleEventIDsPublicMonotonicity(t *testing.T) {
	reader := &fakeReader{
		listPaperEventsFn: func(context.Context, string) ([]store.PaperEvent, error) {
			return []store.PaperEvent{eventWith("event-1", string(RolePublic))}, nil
		},
	}
	engine := NewEngine(reader)

	for _, userID := range []string{"", "user-1", "user-99"} {
		ids, err := engine.VisibleEventIDs(context.Background(), userID, "paper-1")
		if err != nil {
			t.Fatalf("VisibleEventIDs(%q): %v", userID, err)
		}
		if len(ids) != 1 {
			t.Fatalf("user %q: visible = %v, want the public event", userID, ids)
		}
	}
}

// A reviewer on submission A sees events stamped for reviewers there, but not
// events restricted to submission B's editor roles. Contexts are evaluated
// independently and unioned.
func TestVisibleEventIDsRoleUnionAcrossSubmissions(t *testing.T) {
	subA := "sub-a"
	subB := "sub-b"
	reader := &fakeReader{
		listPaperEventsFn: func(context.Context, string) ([]store.PaperEvent, error) {
			return []store.PaperEvent{
				{ID: "event-a", PaperID: "paper-1", SubmissionID: &subA, Type: string(EventCommentPosted), Visibility: []string{string(RoleReviewer)}},
				{ID: "event-b", PaperID: "paper-1", SubmissionID: &subB, Type: string(EventStatusChanged), Visibility: []string{string(RoleManagingEditor), string(RoleAssignedEditor)}},
			}, nil
		},
		getSubmissionsForUserFn: func(_ context.Context, userID, _ string) ([]store.JournalSubmission, error) {
			// The user has no relationship to submission B at all.
			return []store.JournalSubmission{{ID: subA, JournalID: "journal-a", Status: store.StatusInReview}}, nil
		},
		getJournalMembershipFn: func(_ context.Context, journalID, _ string) (string, error) {
			if journalID == "journal-a" {
				return store.PermissionReviewer, nil
			}
			return "", nil
		},
	}
	engine := NewEngine(reader)

	ids, err := engine.VisibleEventIDs(context.Background(), "user-1", "paper-1")
	if err != nil {
		t.Fatalf("VisibleEventIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "event-a" {
		t.Fatalf("visible = %v, want [event-a]", ids)
	}
}

func TestCanViewPaperPreprintIsPublic(t *testing.T) {
	reader := &fakeReader{
		getPaperFn: func(_ context.Context, paperID string) (store.Paper, error) {
			return store.Paper{ID: paperID, ShowPreprint: true}, nil
		},
	}
	engine := NewEngine(reader)

	ok, err := engine.CanViewPaper(context.Background(), "", "paper-1")
	if err != nil {
		t.Fatalf("CanViewPaper: %v", err)
	}
	if !ok {
		t.Fatal("anonymous user should see a public preprint")
	}
}

func TestCanViewPaperPrivateDraftHiddenFromStrangers(t *testing.T) {
	reader := &fakeReader{
		getPaperFn: func(_ context.Context, paperID string) (store.Paper, error) {
			return store.Paper{ID: paperID, IsDraft: true}, nil
		},
		getPaperAuthorsFn: func(context.Context, string) ([]store.PaperAuthor, error) {
			return []store.PaperAuthor{{UserID: "author-1", Owner: true}}, nil
		},
	}
	engine := NewEngine(reader)

	if ok, _ := engine.CanViewPaper(context.Background(), "author-1", "paper-1"); !ok {
		t.Fatal("author should see their own draft")
	}
	if ok, _ := engine.CanViewPaper(context.Background(), "stranger-1", "paper-1"); ok {
		t.Fatal("stranger should not see a private draft")
	}
	if ok, _ := engine.CanViewPaper(context.Background(), "", "paper-1"); ok {
		t.Fatal("anonymous requester should not see a private draft")
	}
}

func TestCanViewSubmissionByStatusAndStanding(t *testing.T) {
	submissions := map[string]store.JournalSubmission{
		"sub-review":    {ID: "sub-review", JournalID: "journal-1", Status: store.StatusInReview},
		"sub-published": {ID: "sub-published", JournalID: "journal-1", Status: store.StatusPublished},
		"sub-rejected":  {ID: "sub-rejected", JournalID: "journal-1", Status: store.StatusRejected},
	}
	reader := &fakeReader{
		getSubmissionFn: func(_ context.Context, submissionID string) (store.JournalSubmission, error) {
			return submissions[submissionID], nil
		},
		getPaperAuthorsFn: func(context.Context, string) ([]store.PaperAuthor, error) {
			return []store.PaperAuthor{{UserID: "author-1", Owner: true}}, nil
		},
		getJournalMembershipFn: func(_ context.Context, _, userID string) (string, error) {
			switch userID {
			case "owner-1":
				return store.PermissionOwner, nil
			case "reviewer-1":
				return store.PermissionReviewer, nil
			}
			return "", nil
		},
		getAssignedReviewersFn: func(context.Context, string) ([]string, error) {
			return []string{"assigned-1"}, nil
		},
	}
	engine := NewEngine(reader)
	ctx := context.Background()

	cases := []struct {
		userID       string
		submissionID string
		want         bool
	}{
		{"", "sub-published", true},
		{"", "sub-review", false},
		{"author-1", "sub-review", true},
		{"author-1", "sub-rejected", true},
		{"owner-1", "sub-review", true},
		{"owner-1", "sub-rejected", true},
		{"reviewer-1", "sub-review", true},
		{"reviewer-1", "sub-rejected", false},
		{"assigned-1", "sub-review", true},
		{"assigned-1", "sub-rejected", false},
		{"stranger-1", "sub-review", false},
	}
	for _, tc := range cases {
		got, err := engine.CanViewSubmission(ctx, tc.userID, tc.submissionID)
		if err != nil {
			t.Fatalf("CanViewSubmission(%s, %s): %v", tc.userID, tc.submissionID, err)
		}
		if got != tc.want {
			t.Fatalf("CanViewSubmission(%s, %s) = %v, want %v", tc.userID, tc.submissionID, got, tc.want)
		}
	}
}

func TestVisiblePaperIDs(t *testing.T) {
	papers := map[string]store.Paper{
		"paper-public": {ID: "paper-public", ShowPreprint: true},
		"paper-own":    {ID: "paper-own", IsDraft: true},
		"paper-other":  {ID: "paper-other", IsDraft: true},
	}
	reader := &fakeReader{
		listPaperIDsFn: func(context.Context) ([]string, error) {
			return []string{"paper-public", "paper-own", "paper-other"}, nil
		},
		getPaperFn: func(_ context.Context, paperID string) (store.Paper, error) {
			return papers[paperID], nil
		},
		getPaperAuthorsFn: func(_ context.Context, paperID string) ([]store.PaperAuthor, error) {
			if paperID == "paper-own" {
				return []store.PaperAuthor{{UserID: "user-1"}}, nil
			}
			return []store.PaperAuthor{{UserID: "someone-else"}}, nil
		},
	}
	engine := NewEngine(reader)

	ids, err := engine.VisiblePaperIDs(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("VisiblePaperIDs: %v", err)
	}
	want := map[string]bool{"paper-public": true, "paper-own": true}
	if len(ids) != len(want) {
		t.Fatalf("visible = %v, want %v", ids, want)
	}
	for _, id := range ids {
		if !want[id] {
			t.Fatalf("unexpected visible paper %s", id)
		}
	}
}
