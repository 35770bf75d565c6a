// Package reputation gates write actions (reviewing, refereeing, publishing)
// on a user's accumulated reputation in a paper's subject fields. It is
// independent of the visibility engine: being allowed to see a paper and being
// allowed to review it are separate questions.
package reputation

import (
	"context"
	"fmt"

	"peerreview/api/internal/store"
)

// Thresholds are the per-action multipliers applied to a field's average
// reputation. A multiplier of zero disables the floor for that action while
// keeping the mechanism in place.
type Thresholds struct {
	Review  int
	Referee int
	Publish int
}

// DefaultThresholds matches the platform's shipped configuration.
var DefaultThresholds = Thresholds{Review: 5, Referee: 10, Publish: 0}

// Reader is the storage surface the gate reads through.
type Reader interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetPaperAuthors(ctx context.Context, paperID string) ([]store.PaperAuthor, error)
	GetPaperFields(ctx context.Context, paperID string) ([]store.Field, error)

	// GetFieldReputation returns the user's reputation in a field, zero if
	// the user has none recorded there.
	GetFieldReputation(ctx context.Context, userID, fieldID string) (int, error)
}

type Gate struct {
	reader     Reader
	thresholds Thresholds
}

func NewGate(reader Reader, thresholds Thresholds) *Gate {
	return &Gate{reader: reader, thresholds: thresholds}
}

// CanReview reports whether the user may post a review on the paper. Admins
// and the paper's own authors always may; everyone else needs reputation at or
// above the review threshold in at least one of the paper's fields.
func (g *Gate) CanReview(ctx context.Context, userID, paperID string) (bool, error) {
	user, err := g.reader.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if user.IsAdmin {
		return true, nil
	}

	authors, err := g.reader.GetPaperAuthors(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("load paper authors: %w", err)
	}
	for _, author := range authors {
		if author.UserID == userID {
			return true, nil
		}
	}

	return g.clearsAnyField(ctx, userID, paperID, g.thresholds.Review)
}

// CanReferee reports whether the user may vote on a paper's submission. Same
// shape as CanReview but with the referee threshold and no author exemption.
func (g *Gate) CanReferee(ctx context.Context, userID, paperID string) (bool, error) {
	user, err := g.reader.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if user.IsAdmin {
		return true, nil
	}
	return g.clearsAnyField(ctx, userID, paperID, g.thresholds.Referee)
}

// CanPublish reports whether the paper may be published by this user. The
// user must be an author, and for every tagged field some author of the paper
// must clear the publish threshold; co-authors may satisfy different fields.
// The returned slice lists the fields still blocking publication.
func (g *Gate) CanPublish(ctx context.Context, userID, paperID string) (bool, []store.Field, error) {
	user, err := g.reader.GetUserByID(ctx, userID)
	if err != nil {
		return false, nil, fmt.Errorf("load user: %w", err)
	}
	if user.IsAdmin {
		return true, nil, nil
	}

	authors, err := g.reader.GetPaperAuthors(ctx, paperID)
	if err != nil {
		return false, nil, fmt.Errorf("load paper authors: %w", err)
	}
	isAuthor := false
	for _, author := range authors {
		if author.UserID == userID {
			isAuthor = true
			break
		}
	}
	if !isAuthor {
		return false, nil, nil
	}

	fields, err := g.reader.GetPaperFields(ctx, paperID)
	if err != nil {
		return false, nil, fmt.Errorf("load paper fields: %w", err)
	}

	var blocking []store.Field
	for _, field := range fields {
		required := g.thresholds.Publish * field.AverageReputation
		best := 0
		for _, author := range authors {
			rep, err := g.reader.GetFieldReputation(ctx, author.UserID, field.ID)
			if err != nil {
				return false, nil, fmt.Errorf("load field reputation: %w", err)
			}
			if rep > best {
				best = rep
			}
		}
		if best < required {
			blocking = append(blocking, field)
		}
	}
	return len(blocking) == 0, blocking, nil
}

func (g *Gate) clearsAnyField(ctx context.Context, userID, paperID string, multiplier int) (bool, error) {
	fields, err := g.reader.GetPaperFields(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("load paper fields: %w", err)
	}
	for _, field := range fields {
		required := multiplier * field.AverageReputation
		rep, err := g.reader.GetFieldReputation(ctx, userID, field.ID)
		if err != nil {
			return false, fmt.Errorf("load field reputation: %w", err)
		}
		if rep >= required {
			return true, nil
		}
	}
	return false, nil
}
