package reputation

import (
	"context"
	"testing"

	"peerreview/api/internal/store"
)

type fakeReader struct {
	users       map[string]store.User
	authors     []store.PaperAuthor
	fields      []store.Field
	reputations map[string]int // "userID/fieldID" -> reputation
}

func (f *fakeReader) GetUserByID(_ context.Context, userID string) (store.User, error) {
	if user, ok := f.users[userID]; ok {
		return user, nil
	}
	return store.User{ID: userID}, nil
}

func (f *fakeReader) GetPaperAuthors(context.Context, string) ([]store.PaperAuthor, error) {
	return f.authors, nil
}

func (f *fakeReader) GetPaperFields(context.Context, string) ([]store.Field, error) {
	return f.fields, nil
}

func (f *fakeReader) GetFieldReputation(_ context.Context, userID, fieldID string) (int, error) {
	return f.reputations[userID+"/"+fieldID], nil
}

// Boundary: average 50, multiplier 5 → floor 250. 249 fails, 250 passes.
func TestCanReviewThresholdBoundary(t *testing.T) {
	reader := &fakeReader{
		fields:      []store.Field{{ID: "field-1", AverageReputation: 50}},
		reputations: map[string]int{"user-1/field-1": 249, "user-2/field-1": 250},
	}
	gate := NewGate(reader, Thresholds{Review: 5, Referee: 10})

	if ok, err := gate.CanReview(context.Background(), "user-1", "paper-1"); err != nil || ok {
		t.Fatalf("CanReview(249) = %v, %v; want false", ok, err)
	}
	if ok, err := gate.CanReview(context.Background(), "user-2", "paper-1"); err != nil || !ok {
		t.Fatalf("CanReview(250) = %v, %v; want true", ok, err)
	}
}

func TestCanReviewAuthorExemption(t *testing.T) {
	reader := &fakeReader{
		authors: []store.PaperAuthor{{UserID: "author-1"}},
		fields:  []store.Field{{ID: "field-1", AverageReputation: 50}},
	}
	gate := NewGate(reader, DefaultThresholds)

	ok, err := gate.CanReview(context.Background(), "author-1", "paper-1")
	if err != nil {
		t.Fatalf("CanReview: %v", err)
	}
	if !ok {
		t.Fatal("author with zero reputation must be able to review their own paper")
	}
}

func TestCanReviewAdminBypass(t *testing.T) {
	reader := &fakeReader{
		users:  map[string]store.User{"admin-1": {ID: "admin-1", IsAdmin: true}},
		fields: []store.Field{{ID: "field-1", AverageReputation: 50}},
	}
	gate := NewGate(reader, DefaultThresholds)

	if ok, _ := gate.CanReview(context.Background(), "admin-1", "paper-1"); !ok {
		t.Fatal("admin must bypass the reputation floor")
	}
}

// Unlike reviewing, refereeing has no author exemption.
func TestCanRefereeNoAuthorExemption(t *testing.T) {
	reader := &fakeReader{
		authors: []store.PaperAuthor{{UserID: "author-1"}},
		fields:  []store.Field{{ID: "field-1", AverageReputation: 50}},
	}
	gate := NewGate(reader, Thresholds{Review: 5, Referee: 10})

	if ok, _ := gate.CanReferee(context.Background(), "author-1", "paper-1"); ok {
		t.Fatal("author without reputation must not referee")
	}
}

func TestCanRefereeClearsOneOfSeveralFields(t *testing.T) {
	reader := &fakeReader{
		fields: []store.Field{
			{ID: "field-1", AverageReputation: 100},
			{ID: "field-2", AverageReputation: 10},
		},
		reputations: map[string]int{"user-1/field-2": 100},
	}
	gate := NewGate(reader, Thresholds{Review: 5, Referee: 10})

	if ok, _ := gate.CanReferee(context.Background(), "user-1", "paper-1"); !ok {
		t.Fatal("clearing the floor in one tagged field should suffice")
	}
}

// Publication needs every tagged field covered, but different co-authors may
// cover different fields; the best reputation among authors per field counts.
func TestCanPublishPerFieldMaxOverAuthors(t *testing.T) {
	reader := &fakeReader{
		authors: []store.PaperAuthor{{UserID: "author-1", Owner: true}, {UserID: "author-2"}},
		fields: []store.Field{
			{ID: "field-1", AverageReputation: 50},
			{ID: "field-2", AverageReputation: 50},
		},
		reputations: map[string]int{
			"author-1/field-1": 100,
			"author-2/field-2": 100,
		},
	}
	gate := NewGate(reader, Thresholds{Publish: 2})

	ok, blocking, err := gate.CanPublish(context.Background(), "author-1", "paper-1")
	if err != nil {
		t.Fatalf("CanPublish: %v", err)
	}
	if !ok || len(blocking) != 0 {
		t.Fatalf("CanPublish = %v, blocking %v; want true with no blockers", ok, blocking)
	}
}

func TestCanPublishReportsBlockingFields(t *testing.T) {
	reader := &fakeReader{
		authors: []store.PaperAuthor{{UserID: "author-1"}},
		fields: []store.Field{
			{ID: "field-1", AverageReputation: 50},
			{ID: "field-2", AverageReputation: 50},
		},
		reputations: map[string]int{"author-1/field-1": 100},
	}
	gate := NewGate(reader, Thresholds{Publish: 2})

	ok, blocking, err := gate.CanPublish(context.Background(), "author-1", "paper-1")
	if err != nil {
		t.Fatalf("CanPublish: %v", err)
	}
	if ok {
		t.Fatal("publication should be blocked")
	}
	if len(blocking) != 1 || blocking[0].ID != "field-2" {
		t.Fatalf("blocking = %v, want [field-2]", blocking)
	}
}

func TestCanPublishNonAuthorDenied(t *testing.T) {
	reader := &fakeReader{
		authors: []store.PaperAuthor{{UserID: "author-1"}},
	}
	gate := NewGate(reader, DefaultThresholds)

	if ok, _, _ := gate.CanPublish(context.Background(), "stranger-1", "paper-1"); ok {
		t.Fatal("non-author must not publish")
	}
}

// A zero multiplier (the shipped publish configuration) disables the floor
// while keeping the mechanism.
func TestZeroThresholdDisablesFloor(t *testing.T) {
	reader := &fakeReader{
		authors: []store.PaperAuthor{{UserID: "author-1"}},
		fields:  []store.Field{{ID: "field-1", AverageReputation: 50}},
	}
	gate := NewGate(reader, Thresholds{Publish: 0})

	ok, blocking, err := gate.CanPublish(context.Background(), "author-1", "paper-1")
	if err != nil {
		t.Fatalf("CanPublish: %v", err)
	}
	if !ok || len(blocking) != 0 {
		t.Fatalf("CanPublish with zero threshold = %v, blocking %v", ok, blocking)
	}
}
