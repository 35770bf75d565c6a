package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPaper indexes a paper (fire-and-forget to Meilisearch).
func (s *Service) IndexPaper(p PaperRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPaper(p); err != nil {
			log.Printf("search: index paper %s: %v", p.ID, err)
		}
	}()
}

// IndexReview indexes a review (fire-and-forget to Meilisearch).
func (s *Service) IndexReview(r ReviewRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexReview(r); err != nil {
			log.Printf("search: index review %s: %v", r.ID, err)
		}
	}()
}

// IndexJournal indexes a journal (fire-and-forget to Meilisearch).
func (s *Service) IndexJournal(j JournalRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexJournal(j); err != nil {
			log.Printf("search: index journal %s: %v", j.ID, err)
		}
	}()
}

// DeletePaper removes a paper from the search index (fire-and-forget).
func (s *Service) DeletePaper(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePaper(id); err != nil {
			log.Printf("search: delete paper %s: %v", id, err)
		}
	}()
}

// DeleteReview removes a review from the search index (fire-and-forget).
func (s *Service) DeleteReview(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteReview(id); err != nil {
			log.Printf("search: delete review %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes already loaded records to Meilisearch.
func (s *Service) ReindexAll(papers []PaperRecord, reviews []ReviewRecord, journals []JournalRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(papers) > 0 {
		if err := s.meili.IndexPapers(papers); err != nil {
			log.Printf("search: reindex papers: %v", err)
		}
	}
	if len(reviews) > 0 {
		if err := s.meili.IndexReviews(reviews); err != nil {
			log.Printf("search: reindex reviews: %v", err)
		}
	}
	if len(journals) > 0 {
		if err := s.meili.IndexJournals(journals); err != nil {
			log.Printf("search: reindex journals: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	papers, reviews, journals, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(papers, reviews, journals)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
