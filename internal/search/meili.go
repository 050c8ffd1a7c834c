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
	idxDossiers    = "dossier_dossiers"
	idxAssignments = "dossier_assignments"
	idxEscalations = "dossier_escalations"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// The caller should proceed without it when the initial connection fails.
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
			uid:        idxDossiers,
			primaryKey: "id",
			filterable: []string{"kind", "status", "sensitivity"},
			searchable: []string{"nameEn", "nameAr", "summaryEn", "summaryAr"},
		},
		{
			uid:        idxAssignments,
			primaryKey: "id",
			filterable: []string{"dossierId", "status", "assigneeId"},
			searchable: []string{"title", "description"},
		},
		{
			uid:        idxEscalations,
			primaryKey: "id",
			filterable: []string{"dossierId", "assignmentId", "status", "escalatedToId"},
			searchable: []string{"reason"},
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
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
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
		{idxDossiers, ResultDossier},
		{idxAssignments, ResultAssignment},
		{idxEscalations, ResultEscalation},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
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

		var filters []string
		if ti.rtyp == ResultDossier {
			if q.FilterKind != "" {
				filters = append(filters, fmt.Sprintf("kind = %q", q.FilterKind))
			}
			if q.HideSensitive {
				filters = append(filters, "sensitivity != \"confidential\"")
			}
		}
		if len(filters) > 0 {
			sr.Filter = filters
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

// SimilarDossiers runs a plain relevance query over the dossier index. Used
// for duplicate detection alongside the trigram query in Postgres.
func (m *Meili) SimilarDossiers(name string, limit int) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 10
	}
	resp, err := m.client.Index(idxDossiers).Search(name, &meili.SearchRequest{
		Limit:            int64(limit),
		ShowRankingScore: true,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch similar dossiers: %w", err)
	}

	var results []Result
	for _, hit := range resp.Hits {
		r := hitToResult(hit, ResultDossier)
		results = append(results, r)
	}
	return results, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxDossiers:
		return ResultDossier
	case idxAssignments:
		return ResultAssignment
	case idxEscalations:
		return ResultEscalation
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.DossierID = decodeString(hit, "dossierId")
	r.Status = decodeString(hit, "status")

	switch rtyp {
	case ResultDossier:
		r.Title = firstNonBlank(decodeFormattedString(hit, "nameEn"), decodeString(hit, "nameEn"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "summaryEn"), decodeString(hit, "summaryEn"))
		r.Kind = decodeString(hit, "kind")
		r.DossierID = r.ID // dossier's own ID
	case ResultAssignment:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	case ResultEscalation:
		r.Title = decodeString(hit, "assignmentId")
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "reason"), decodeString(hit, "reason"))
	}
	if raw, ok := hit["_rankingScore"]; ok {
		var score float64
		if err := json.Unmarshal(raw, &score); err == nil {
			r.Score = score
		}
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

// IndexDossier adds or updates a dossier in the search index.
func (m *Meili) IndexDossier(d DossierRecord) error {
	_, err := m.client.Index(idxDossiers).AddDocuments([]DossierRecord{d}, nil)
	return err
}

// IndexAssignment adds or updates an assignment in the search index.
func (m *Meili) IndexAssignment(a AssignmentRecord) error {
	_, err := m.client.Index(idxAssignments).AddDocuments([]AssignmentRecord{a}, nil)
	return err
}

// IndexEscalation adds or updates an escalation record in the search index.
func (m *Meili) IndexEscalation(e EscalationIndexRecord) error {
	_, err := m.client.Index(idxEscalations).AddDocuments([]EscalationIndexRecord{e}, nil)
	return err
}

// DeleteDossier removes a dossier from the search index.
func (m *Meili) DeleteDossier(id string) error {
	_, err := m.client.Index(idxDossiers).DeleteDocument(id, nil)
	return err
}

// DeleteAssignment removes an assignment from the search index.
func (m *Meili) DeleteAssignment(id string) error {
	_, err := m.client.Index(idxAssignments).DeleteDocument(id, nil)
	return err
}

// IndexDossiers bulk-indexes dossiers.
func (m *Meili) IndexDossiers(dossiers []DossierRecord) error {
	if len(dossiers) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDossiers).AddDocuments(dossiers, nil)
	return err
}

// IndexAssignments bulk-indexes assignments.
func (m *Meili) IndexAssignments(assignments []AssignmentRecord) error {
	if len(assignments) == 0 {
		return nil
	}
	_, err := m.client.Index(idxAssignments).AddDocuments(assignments, nil)
	return err
}

// IndexEscalations bulk-indexes escalation records.
func (m *Meili) IndexEscalations(escalations []EscalationIndexRecord) error {
	if len(escalations) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEscalations).AddDocuments(escalations, nil)
	return err
}
