package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxPapers   = "peerreview_papers"
	idxReviews  = "peerreview_reviews"
	idxJournals = "peerreview_journals"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns nil if the initial connection fails (caller should proceed without it).
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxPapers,
			primaryKey: "id",
			filterable: []string{"isDraft", "showPreprint"},
			searchable: []string{"title", "content"},
		},
		{
			uid:        idxReviews,
			primaryKey: "id",
			filterable: []string{"paperId", "submissionId"},
			searchable: []string{"summary", "recommendation"},
		},
		{
			uid:        idxJournals,
			primaryKey: "id",
			filterable: []string{},
			searchable: []string{"name", "description"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		if len(idx.filterable) > 0 {
			filterableInterface := make([]interface{}, len(idx.filterable))
			for i, v := range idx.filterable {
				filterableInterface[i] = v
			}
			if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
				log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
			}
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxPapers, ResultPaper},
		{idxReviews, ResultReview},
		{idxJournals, ResultJournal},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		if q.PublicOnly && ti.rtyp == ResultReview {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		if q.PublicOnly && ti.rtyp == ResultPaper {
			sr.Filter = []string{"isDraft = false", "showPreprint = true"}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxPapers:
		return ResultPaper
	case idxReviews:
		return ResultReview
	case idxJournals:
		return ResultJournal
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")

	switch rtyp {
	case ResultPaper:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
		r.PaperID = r.ID // paper's own ID
	case ResultReview:
		r.Title = firstNonBlank(decodeFormattedString(hit, "recommendation"), decodeString(hit, "recommendation"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "summary"), decodeString(hit, "summary"))
		r.PaperID = decodeString(hit, "paperId")
	case ResultJournal:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
		r.JournalID = r.ID
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexPaper adds or updates a paper in the search index.
func (m *Meili) IndexPaper(p PaperRecord) error {
	_, err := m.client.Index(idxPapers).AddDocuments([]PaperRecord{p}, nil)
	return err
}

// IndexReview adds or updates a review in the search index.
func (m *Meili) IndexReview(r ReviewRecord) error {
	_, err := m.client.Index(idxReviews).AddDocuments([]ReviewRecord{r}, nil)
	return err
}

// IndexJournal adds or updates a journal in the search index.
func (m *Meili) IndexJournal(j JournalRecord) error {
	_, err := m.client.Index(idxJournals).AddDocuments([]JournalRecord{j}, nil)
	return err
}

// DeletePaper removes a paper from the search index.
func (m *Meili) DeletePaper(id string) error {
	_, err := m.client.Index(idxPapers).DeleteDocument(id, nil)
	return err
}

// DeleteReview removes a review from the search index.
func (m *Meili) DeleteReview(id string) error {
	_, err := m.client.Index(idxReviews).DeleteDocument(id, nil)
	return err
}

// IndexPapers bulk-indexes papers.
func (m *Meili) IndexPapers(papers []PaperRecord) error {
	if len(papers) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPapers).AddDocuments(papers, nil)
	return err
}

// IndexReviews bulk-indexes reviews.
func (m *Meili) IndexReviews(reviews []ReviewRecord) error {
	if len(reviews) == 0 {
		return nil
	}
	_, err := m.client.Index(idxReviews).AddDocuments(reviews, nil)
	return err
}

// IndexJournals bulk-indexes journals.
func (m *Meili) IndexJournals(journals []JournalRecord) error {
	if len(journals) == 0 {
		return nil
	}
	_, err := m.client.Index(idxJournals).AddDocuments(journals, nil)
	return err
}
