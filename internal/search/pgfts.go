package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true since Postgres down means the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across papers, reviews, and journals
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	var subQueries []string

	// Papers sub-query, matching on title or the latest version's content
	if q.FilterType == "" || q.FilterType == ResultPaper {
		paperWhere := fmt.Sprintf("(p.fts @@ %s OR lv.fts @@ %s)", tsQuery, tsQuery)
		if q.PublicOnly {
			paperWhere += " AND p.is_draft = FALSE AND p.show_preprint = TRUE"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'paper'::text AS type, p.id, p.title,
				ts_headline('english', coalesce(lv.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS paper_id, ''::text AS journal_id,
				ts_rank(coalesce(p.fts, ''::tsvector) || coalesce(lv.fts, ''::tsvector), %s) AS rank
			FROM papers p
			LEFT JOIN LATERAL (
				SELECT content, fts FROM paper_versions v
				WHERE v.paper_id = p.id
				ORDER BY version DESC LIMIT 1
			) lv ON TRUE
			WHERE %s`, tsQuery, tsQuery, paperWhere))
	}

	// Reviews sub-query (never shown to anonymous callers)
	if (q.FilterType == "" || q.FilterType == ResultReview) && !q.PublicOnly {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'review'::text AS type, r.id, r.recommendation AS title,
				ts_headline('english', coalesce(r.summary, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.paper_id, ''::text AS journal_id,
				ts_rank(r.fts, %s) AS rank
			FROM reviews r
			WHERE r.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	// Journals sub-query
	if q.FilterType == "" || q.FilterType == ResultJournal {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'journal'::text AS type, j.id, j.name AS title,
				ts_headline('english', coalesce(j.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS paper_id, j.id AS journal_id,
				ts_rank(j.fts, %s) AS rank
			FROM journals j
			WHERE j.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, paper_id, journal_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.PaperID, &r.JournalID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PaperRecord, []ReviewRecord, []JournalRecord, error) {
	paperRows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, coalesce(lv.content, ''), p.is_draft, p.show_preprint
		FROM papers p
		LEFT JOIN LATERAL (
			SELECT content FROM paper_versions v
			WHERE v.paper_id = p.id
			ORDER BY version DESC LIMIT 1
		) lv ON TRUE
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load papers: %w", err)
	}
	defer paperRows.Close()

	papers := make([]PaperRecord, 0)
	for paperRows.Next() {
		var rec PaperRecord
		if err := paperRows.Scan(&rec.ID, &rec.Title, &rec.Content, &rec.IsDraft, &rec.ShowPreprint); err != nil {
			return nil, nil, nil, fmt.Errorf("scan paper: %w", err)
		}
		papers = append(papers, rec)
	}
	if err := paperRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate papers: %w", err)
	}

	reviewRows, err := p.db.QueryContext(ctx, `
		SELECT id, summary, recommendation, paper_id, coalesce(submission_id, '')
		FROM reviews
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load reviews: %w", err)
	}
	defer reviewRows.Close()

	reviews := make([]ReviewRecord, 0)
	for reviewRows.Next() {
		var rec ReviewRecord
		if err := reviewRows.Scan(&rec.ID, &rec.Summary, &rec.Recommendation, &rec.PaperID, &rec.SubmissionID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rec)
	}
	if err := reviewRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate reviews: %w", err)
	}

	journalRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description
		FROM journals
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load journals: %w", err)
	}
	defer journalRows.Close()

	journals := make([]JournalRecord, 0)
	for journalRows.Next() {
		var rec JournalRecord
		if err := journalRows.Scan(&rec.ID, &rec.Name, &rec.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan journal: %w", err)
		}
		journals = append(journals, rec)
	}
	if err := journalRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate journals: %w", err)
	}

	return papers, reviews, journals, nil
}
