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

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects and keywords using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
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
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		projectWhere := "p.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			projectWhere += fmt.Sprintf(" AND p.id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.display_name AS title,
				ts_headline('english', coalesce(p.site_url, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS project_id,
				''::text AS country,
				ts_rank(p.fts, %s) AS rank
			FROM projects p
			WHERE %s`, tsQuery, tsQuery, projectWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultKeyword {
		keywordWhere := "k.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			keywordWhere += fmt.Sprintf(" AND k.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'keyword'::text AS type, k.id, k.phrase AS title,
				ts_headline('english', k.phrase, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				k.project_id,
				k.country,
				ts_rank(k.fts, %s) AS rank
			FROM keywords k
			WHERE %s`, tsQuery, tsQuery, keywordWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, country
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("fts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&rtyp, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.Country); err != nil {
			return nil, 0, fmt.Errorf("scan fts result: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate fts results: %w", err)
	}

	return results, total, nil
}

// LoadAllRecords reads every indexable entity for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []KeywordRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, display_name, COALESCE(site_url, '') FROM projects
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var pr ProjectRecord
		if err := projectRows.Scan(&pr.ID, &pr.Name, &pr.SiteURL); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, pr)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	keywordRows, err := p.db.QueryContext(ctx, `
		SELECT id, phrase, project_id, country FROM keywords
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load keywords: %w", err)
	}
	defer keywordRows.Close()

	keywords := make([]KeywordRecord, 0)
	for keywordRows.Next() {
		var kr KeywordRecord
		if err := keywordRows.Scan(&kr.ID, &kr.Phrase, &kr.ProjectID, &kr.Country); err != nil {
			return nil, nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, kr)
	}
	if err := keywordRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate keywords: %w", err)
	}

	return projects, keywords, nil
}
