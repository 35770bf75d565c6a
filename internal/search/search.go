package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPaper   ResultType = "paper"
	ResultReview  ResultType = "review"
	ResultJournal ResultType = "journal"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	PaperID   string     `json:"paperId,omitempty"`
	JournalID string     `json:"journalId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
	// PublicOnly restricts hits to what an anonymous visitor may see:
	// posted preprints and journals, never reviews.
	PublicOnly bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPaper(p PaperRecord) error
	IndexReview(r ReviewRecord) error
	IndexJournal(j JournalRecord) error
	DeletePaper(id string) error
	DeleteReview(id string) error
}

// PaperRecord is the data we index for a paper.
type PaperRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	IsDraft      bool   `json:"isDraft"`
	ShowPreprint bool   `json:"showPreprint"`
}

// ReviewRecord is the data we index for a review.
type ReviewRecord struct {
	ID             string `json:"id"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
	PaperID        string `json:"paperId"`
	SubmissionID   string `json:"submissionId"`
}

// JournalRecord is the data we index for a journal.
type JournalRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
