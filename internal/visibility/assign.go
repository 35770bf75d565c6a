package visibility

import (
	"context"
	"errors"
	"fmt"

	"peerreview/api/internal/store"
)

// ErrNotPermitted is returned when a caller supplies an explicit visibility
// set without holding any role inside the computed default. Allowing it would
// let event creation grant the actor broader access than the model does.
var ErrNotPermitted = errors.New("explicit visibility not permitted for actor")

// ErrUnknownEventType is returned for an event type outside the enumeration.
var ErrUnknownEventType = errors.New("unknown event type")

// Assigner computes the immutable visibility set stamped on a paper event at
// creation time. It is a pure function of paper, submission, and journal state
// read through the Reader; it never writes.
type Assigner struct {
	reader   Reader
	resolver *Resolver
}

func NewAssigner(reader Reader) *Assigner {
	return &Assigner{reader: reader, resolver: NewResolver(reader)}
}

// Assign resolves the event's submission context, computes the default
// visibility for the paper's stage and the journal's transparency model, and
// validates any explicit override against the actor's own roles. On success
// the event's SubmissionID and Visibility fields are filled in.
func (a *Assigner) Assign(ctx context.Context, actorID string, event *store.PaperEvent) (RoleSet, error) {
	eventType, ok := ParseEventType(event.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}

	paper, err := a.reader.GetPaper(ctx, event.PaperID)
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}

	submission, err := a.eventSubmission(ctx, event)
	if err != nil {
		return nil, err
	}

	computed, err := a.defaultVisibility(ctx, paper, submission, eventType)
	if err != nil {
		return nil, err
	}

	if len(event.Visibility) > 0 {
		override := ParseRoleSet(event.Visibility)
		if err := a.checkOverride(ctx, actorID, event.PaperID, submission, computed, override); err != nil {
			return nil, err
		}
		event.Visibility = Labels(override)
		return override, nil
	}

	event.Visibility = Labels(computed)
	return computed, nil
}

// eventSubmission resolves which submission the event occurred under. An
// event that names a submission keeps it; otherwise the paper's active
// submission, if any, governs.
func (a *Assigner) eventSubmission(ctx context.Context, event *store.PaperEvent) (*store.JournalSubmission, error) {
	if event.SubmissionID != nil {
		submission, err := a.reader.GetSubmission(ctx, *event.SubmissionID)
		if err != nil {
			return nil, fmt.Errorf("load submission %s: %w", *event.SubmissionID, err)
		}
		return &submission, nil
	}

	submission, err := a.reader.GetActiveSubmission(ctx, event.PaperID)
	if err != nil {
		return nil, fmt.Errorf("load active submission: %w", err)
	}
	if submission != nil {
		event.SubmissionID = &submission.ID
	}
	return submission, nil
}

func (a *Assigner) defaultVisibility(ctx context.Context, paper store.Paper, submission *store.JournalSubmission, eventType EventType) (RoleSet, error) {
	switch Classify(paper, submission) {
	case StageDraft:
		return NewRoleSet(RoleAuthor), nil
	case StagePreprint:
		return NewRoleSet(RolePublic), nil
	}

	enabled, err := a.reader.IsEnabled(ctx, store.FlagJournalModels)
	if err != nil {
		return nil, fmt.Errorf("check feature flag: %w", err)
	}
	if !enabled {
		// Legacy behavior: submission events never leave the authors.
		return NewRoleSet(RoleAuthor), nil
	}

	journal, err := a.reader.GetJournal(ctx, submission.JournalID)
	if err != nil {
		return nil, fmt.Errorf("load journal %s: %w", submission.JournalID, err)
	}
	if journal.Model == "" {
		// Journal predates transparency models; same conservative
		// default as the disabled flag.
		return NewRoleSet(RoleAuthor), nil
	}
	model, ok := ParseModel(journal.Model)
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ErrNoPolicy, journal.Model)
	}

	roles, err := Policy(model, eventType)
	if err != nil {
		return nil, err
	}

	// An open-public journal releases the record once the submission has
	// published. Open-closed never does; the table already covers public.
	if model == ModelOpenPublic && submission.Status == store.StatusPublished {
		return NewRoleSet(RolePublic), nil
	}
	return roles, nil
}

// checkOverride verifies the actor already satisfies the computed default and
// holds at least one role inside the replacement set. The second condition is
// what stops self-escalation: an author cannot restamp an event with editor
// roles they do not hold. A set containing public is satisfiable by anyone.
func (a *Assigner) checkOverride(ctx context.Context, actorID, paperID string, submission *store.JournalSubmission, computed, override RoleSet) error {
	roles, err := a.resolver.PaperRoles(ctx, actorID, paperID)
	if err != nil {
		return err
	}
	if submission != nil {
		roles, err = a.resolver.SubmissionRoles(ctx, actorID, roles, *submission)
		if err != nil {
			return err
		}
	}

	if !computed.Contains(RolePublic) && computed.Intersect(roles).Cardinality() == 0 {
		return ErrNotPermitted
	}
	if !override.Contains(RolePublic) && override.Intersect(roles).Cardinality() == 0 {
		return ErrNotPermitted
	}
	return nil
}
