package visibility

import (
	"context"
	"database/sql"

	"peerreview/api/internal/store"
)

type fakeReader struct {
	getPaperFn              func(context.Context, string) (store.Paper, error)
	getPaperAuthorsFn       func(context.Context, string) ([]store.PaperAuthor, error)
	getActiveSubmissionFn   func(context.Context, string) (*store.JournalSubmission, error)
	getSubmissionFn         func(context.Context, string) (store.JournalSubmission, error)
	getSubmissionsForUserFn func(context.Context, string, string) ([]store.JournalSubmission, error)
	getJournalFn            func(context.Context, string) (store.Journal, error)
	getJournalMembershipFn  func(context.Context, string, string) (string, error)
	getAssignedEditorsFn    func(context.Context, string) ([]string, error)
	getAssignedReviewersFn  func(context.Context, string) ([]string, error)
	listPaperEventsFn       func(context.Context, string) ([]store.PaperEvent, error)
	listPaperIDsFn          func(context.Context) ([]string, error)
	isEnabledFn             func(context.Context, string) (bool, error)
}

func (f *fakeReader) GetPaper(ctx context.Context, paperID string) (store.Paper, error) {
	if f.getPaperFn != nil {
		return f.getPaperFn(ctx, paperID)
	}
	return store.Paper{ID: paperID}, nil
}

func (f *fakeReader) GetPaperAuthors(ctx context.Context, paperID string) ([]store.PaperAuthor, error) {
	if f.getPaperAuthorsFn != nil {
		return f.getPaperAuthorsFn(ctx, paperID)
	}
	return nil, nil
}

func (f *fakeReader) GetActiveSubmission(ctx context.Context, paperID string) (*store.JournalSubmission, error) {
	if f.getActiveSubmissionFn != nil {
		return f.getActiveSubmissionFn(ctx, paperID)
	}
	return nil, nil
}

func (f *fakeReader) GetSubmission(ctx context.Context, submissionID string) (store.JournalSubmission, error) {
	if f.getSubmissionFn != nil {
		return f.getSubmissionFn(ctx, submissionID)
	}
	return store.JournalSubmission{}, sql.ErrNoRows
}

func (f *fakeReader) GetSubmissionsForUser(ctx context.Context, userID, paperID string) ([]store.JournalSubmission, error) {
	if f.getSubmissionsForUserFn != nil {
		return f.getSubmissionsForUserFn(ctx, userID, paperID)
	}
	return nil, nil
}

func (f *fakeReader) GetJournal(ctx context.Context, journalID string) (store.Journal, error) {
	if f.getJournalFn != nil {
		return f.getJournalFn(ctx, journalID)
	}
	return store.Journal{}, sql.ErrNoRows
}

func (f *fakeReader) GetJournalMembership(ctx context.Context, journalID, userID string) (string, error) {
	if f.getJournalMembershipFn != nil {
		return f.getJournalMembershipFn(ctx, journalID, userID)
	}
	return "", nil
}

func (f *fakeReader) GetAssignedEditors(ctx context.Context, submissionID string) ([]string, error) {
	if f.getAssignedEditorsFn != nil {
		return f.getAssignedEditorsFn(ctx, submissionID)
	}
	return nil, nil
}

func (f *fakeReader) GetAssignedReviewers(ctx context.Context, submissionID string) ([]string, error) {
	if f.getAssignedReviewersFn != nil {
		return f.getAssignedReviewersFn(ctx, submissionID)
	}
	return nil, nil
}

func (f *fakeReader) ListPaperEvents(ctx context.Context, paperID string) ([]store.PaperEvent, error) {
	if f.listPaperEventsFn != nil {
		return f.listPaperEventsFn(ctx, paperID)
	}
	return nil, nil
}

func (f *fakeReader) ListPaperIDs(ctx context.Context) ([]string, error) {
	if f.listPaperIDsFn != nil {
		return f.listPaperIDsFn(ctx)
	}
	return nil, nil
}

func (f *fakeReader) IsEnabled(ctx context.Context, flag string) (bool, error) {
	if f.isEnabledFn != nil {
		return f.isEnabledFn(ctx, flag)
	}
	return true, nil
}
