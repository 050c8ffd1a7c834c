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

// SimilarDossiers queries the dossier index by name for duplicate detection.
// Returns nil when Meilisearch is unavailable; the caller merges in the
// trigram candidates from Postgres either way.
func (s *Service) SimilarDossiers(name string, limit int) []Result {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	results, err := s.meili.SimilarDossiers(name, limit)
	if err != nil {
		log.Printf("search: similar dossiers: %v", err)
		return nil
	}
	return results
}

// IndexDossier indexes a dossier (fire-and-forget to Meilisearch).
func (s *Service) IndexDossier(d DossierRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDossier(d); err != nil {
			log.Printf("search: index dossier %s: %v", d.ID, err)
		}
	}()
}

// IndexAssignment indexes an assignment (fire-and-forget to Meilisearch).
func (s *Service) IndexAssignment(a AssignmentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexAssignment(a); err != nil {
			log.Printf("search: index assignment %s: %v", a.ID, err)
		}
	}()
}

// IndexEscalation indexes an escalation record (fire-and-forget to Meilisearch).
func (s *Service) IndexEscalation(e EscalationIndexRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEscalation(e); err != nil {
			log.Printf("search: index escalation %s: %v", e.ID, err)
		}
	}()
}

// DeleteDossier removes a dossier from the search index (fire-and-forget).
func (s *Service) DeleteDossier(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDossier(id); err != nil {
			log.Printf("search: delete dossier %s: %v", id, err)
		}
	}()
}

// DeleteAssignment removes an assignment from the search index (fire-and-forget).
func (s *Service) DeleteAssignment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteAssignment(id); err != nil {
			log.Printf("search: delete assignment %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes preloaded records to Meilisearch.
func (s *Service) ReindexAll(dossiers []DossierRecord, assignments []AssignmentRecord, escalations []EscalationIndexRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(dossiers) > 0 {
		if err := s.meili.IndexDossiers(dossiers); err != nil {
			log.Printf("search: reindex dossiers: %v", err)
		}
	}
	if len(assignments) > 0 {
		if err := s.meili.IndexAssignments(assignments); err != nil {
			log.Printf("search: reindex assignments: %v", err)
		}
	}
	if len(escalations) > 0 {
		if err := s.meili.IndexEscalations(escalations); err != nil {
			log.Printf("search: reindex escalations: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	dossiers, assignments, escalations, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(dossiers, assignments, escalations)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
