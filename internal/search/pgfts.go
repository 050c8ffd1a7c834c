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

// The tsvector expressions must match the expression GIN indexes created by
// the search migration, otherwise Postgres falls back to sequential scans.
const (
	dossierVector    = `to_tsvector('simple', d.name_en || ' ' || d.name_ar || ' ' || d.summary_en || ' ' || d.summary_ar)`
	assignmentVector = `to_tsvector('simple', a.title || ' ' || a.description)`
)

// Search executes a UNION ALL query across dossiers, assignments, and
// escalation_records using websearch_to_tsquery and ts_rank, with ts_headline
// for snippets.
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

	tsQuery := "websearch_to_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Dossiers sub-query
	if q.FilterType == "" || q.FilterType == ResultDossier {
		where := dossierVector + " @@ " + tsQuery
		if q.FilterKind != "" {
			where += fmt.Sprintf(" AND d.kind = $%d", argN)
			args = append(args, q.FilterKind)
			argN++
		}
		if q.HideSensitive {
			where += " AND d.sensitivity <> 'confidential'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'dossier'::text AS type, d.id, d.name_en AS title,
				ts_headline('simple', coalesce(d.summary_en, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.id AS dossier_id, d.kind, d.status,
				ts_rank(%s, %s) AS rank
			FROM dossiers d
			WHERE %s`, tsQuery, dossierVector, tsQuery, where))
	}

	// Assignments sub-query
	if q.FilterType == "" || q.FilterType == ResultAssignment {
		where := assignmentVector + " @@ " + tsQuery
		if q.HideSensitive {
			where += " AND d.sensitivity <> 'confidential'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'assignment'::text AS type, a.id, a.title,
				ts_headline('simple', coalesce(a.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				a.dossier_id, ''::text AS kind, a.status,
				ts_rank(%s, %s) AS rank
			FROM assignments a
			JOIN dossiers d ON d.id = a.dossier_id
			WHERE %s`, tsQuery, assignmentVector, tsQuery, where))
	}

	// Escalation records sub-query
	if q.FilterType == "" || q.FilterType == ResultEscalation {
		where := fmt.Sprintf("to_tsvector('simple', er.reason) @@ %s", tsQuery)
		if q.HideSensitive {
			where += " AND d.sensitivity <> 'confidential'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'escalation'::text AS type, er.id, a.title,
				ts_headline('simple', coalesce(er.reason, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				a.dossier_id, ''::text AS kind, er.status,
				ts_rank(to_tsvector('simple', er.reason), %s) AS rank
			FROM escalation_records er
			JOIN assignments a ON a.id = er.assignment_id
			JOIN dossiers d ON d.id = a.dossier_id
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, dossier_id, kind, status
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DossierID, &r.Kind, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DossierRecord, []AssignmentRecord, []EscalationIndexRecord, error) {
	dossierRows, err := p.db.QueryContext(ctx, `
		SELECT id, name_en, name_ar, summary_en, summary_ar, kind, status, sensitivity
		FROM dossiers
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load dossiers: %w", err)
	}
	defer dossierRows.Close()

	dossiers := make([]DossierRecord, 0)
	for dossierRows.Next() {
		var d DossierRecord
		if err := dossierRows.Scan(&d.ID, &d.NameEN, &d.NameAR, &d.SummaryEN, &d.SummaryAR, &d.Kind, &d.Status, &d.Sensitivity); err != nil {
			return nil, nil, nil, fmt.Errorf("scan dossier: %w", err)
		}
		dossiers = append(dossiers, d)
	}
	if err := dossierRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate dossiers: %w", err)
	}

	assignmentRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, dossier_id, status, assignee_id
		FROM assignments
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load assignments: %w", err)
	}
	defer assignmentRows.Close()

	assignments := make([]AssignmentRecord, 0)
	for assignmentRows.Next() {
		var a AssignmentRecord
		if err := assignmentRows.Scan(&a.ID, &a.Title, &a.Description, &a.DossierID, &a.Status, &a.AssigneeID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := assignmentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate assignments: %w", err)
	}

	escalationRows, err := p.db.QueryContext(ctx, `
		SELECT er.id, er.reason, er.assignment_id, a.dossier_id, er.status, er.escalated_to_id
		FROM escalation_records er
		JOIN assignments a ON a.id = er.assignment_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load escalations: %w", err)
	}
	defer escalationRows.Close()

	escalations := make([]EscalationIndexRecord, 0)
	for escalationRows.Next() {
		var e EscalationIndexRecord
		if err := escalationRows.Scan(&e.ID, &e.Reason, &e.AssignmentID, &e.DossierID, &e.Status, &e.EscalatedToID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan escalation: %w", err)
		}
		escalations = append(escalations, e)
	}
	if err := escalationRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate escalations: %w", err)
	}

	return dossiers, assignments, escalations, nil
}
