package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"intldossier/api/internal/brief"
	"intldossier/api/internal/briefing"
	"intldossier/api/internal/eventstore"
	"intldossier/api/internal/search"
	"intldossier/api/internal/store"
	"intldossier/api/internal/util"
)

var allowedDossierKinds = map[string]struct{}{
	"country":      {},
	"organization": {},
	"person":       {},
	"engagement":   {},
	"theme":        {},
}

type DossierInput struct {
	Kind        string `json:"kind"`
	NameEN      string `json:"nameEn"`
	NameAR      string `json:"nameAr"`
	SummaryEN   string `json:"summaryEn"`
	SummaryAR   string `json:"summaryAr"`
	Sensitivity string `json:"sensitivity"`
}

func (s *Service) ListDossiers(ctx context.Context, kind, status string, limit, offset int) ([]map[string]any, error) {
	dossiers, err := s.store.ListDossiers(ctx, kind, status, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(dossiers))
	for _, d := range dossiers {
		items = append(items, dossierPayload(d))
	}
	return items, nil
}

func (s *Service) GetDossier(ctx context.Context, dossierID string) (map[string]any, error) {
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	return dossierPayload(d), nil
}

func (s *Service) CreateDossier(ctx context.Context, input DossierInput, sess Session) (map[string]any, error) {
	if err := validateDossierInput(input); err != nil {
		return nil, err
	}
	d := store.Dossier{
		ID:          util.NewID("dos"),
		Kind:        input.Kind,
		NameEN:      strings.TrimSpace(input.NameEN),
		NameAR:      strings.TrimSpace(input.NameAR),
		SummaryEN:   input.SummaryEN,
		SummaryAR:   input.SummaryAR,
		Status:      "active",
		Sensitivity: firstNonBlank(input.Sensitivity, "internal"),
		CreatedBy:   sess.UserID,
		UpdatedBy:   sess.UserID,
	}
	if err := s.store.InsertDossier(ctx, d); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "dossier",
		AggregateID:   d.ID,
		EventType:     "dossier.created",
		EventCategory: "dossier",
		Payload:       map[string]any{"actor": sess.UserID},
		Changes: map[string]any{
			"kind":   d.Kind,
			"nameEn": d.NameEN,
			"nameAr": d.NameAR,
			"status": d.Status,
		},
	})
	s.indexDossier(d)
	return s.GetDossier(ctx, d.ID)
}

func (s *Service) UpdateDossier(ctx context.Context, dossierID string, input DossierInput, sess Session) (map[string]any, error) {
	current, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, err
	}

	next := current
	next.NameEN = firstNonBlank(input.NameEN, current.NameEN)
	next.NameAR = firstNonBlank(input.NameAR, current.NameAR)
	if input.SummaryEN != "" {
		next.SummaryEN = input.SummaryEN
	}
	if input.SummaryAR != "" {
		next.SummaryAR = input.SummaryAR
	}
	if input.Sensitivity != "" {
		next.Sensitivity = input.Sensitivity
	}
	next.UpdatedBy = sess.UserID

	if err := s.store.UpdateDossier(ctx, next); err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if next.NameEN != current.NameEN {
		changes["nameEn"] = next.NameEN
	}
	if next.NameAR != current.NameAR {
		changes["nameAr"] = next.NameAR
	}
	if next.SummaryEN != current.SummaryEN {
		changes["summaryEn"] = next.SummaryEN
	}
	if next.SummaryAR != current.SummaryAR {
		changes["summaryAr"] = next.SummaryAR
	}
	if next.Sensitivity != current.Sensitivity {
		changes["sensitivity"] = next.Sensitivity
	}
	if len(changes) > 0 {
		s.appendEvent(ctx, eventstore.Event{
			AggregateType: "dossier",
			AggregateID:   dossierID,
			EventType:     "dossier.updated",
			EventCategory: "dossier",
			Payload:       map[string]any{"actor": sess.UserID},
			Changes:       changes,
		})
	}
	s.indexDossier(next)
	return s.GetDossier(ctx, dossierID)
}

// ArchiveDossier soft-deletes: dossiers are never removed.
func (s *Service) ArchiveDossier(ctx context.Context, dossierID string, sess Session) error {
	if err := s.store.ArchiveDossier(ctx, dossierID, sess.UserID); err != nil {
		return err
	}
	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "dossier",
		AggregateID:   dossierID,
		EventType:     "dossier.archived",
		EventCategory: "dossier",
		Payload:       map[string]any{"actor": sess.UserID},
		Changes:       map[string]any{"status": "archived"},
	})
	if s.search != nil {
		s.search.DeleteDossier(dossierID)
	}
	return nil
}

// likelyDuplicateThreshold flags duplicate candidates above this score.
const likelyDuplicateThreshold = 0.6

// SimilarDossiers finds near-duplicates of an existing dossier.
func (s *Service) SimilarDossiers(ctx context.Context, dossierID string, limit int) (map[string]any, error) {
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	return s.duplicateCandidates(ctx, d.NameEN, d.NameAR, d.ID, limit)
}

// CheckDuplicates scores candidate duplicates for a dossier about to be
// created.
func (s *Service) CheckDuplicates(ctx context.Context, nameEN, nameAR string, limit int) (map[string]any, error) {
	if strings.TrimSpace(nameEN) == "" && strings.TrimSpace(nameAR) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "nameEn or nameAr is required", nil)
	}
	return s.duplicateCandidates(ctx, nameEN, nameAR, "", limit)
}

func (s *Service) duplicateCandidates(ctx context.Context, nameEN, nameAR, excludeID string, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	type candidate struct {
		payload map[string]any
		score   float64
	}
	seen := make(map[string]candidate)

	if s.search != nil {
		for _, hit := range s.search.SimilarDossiers(firstNonBlank(nameEN, nameAR), limit) {
			if hit.ID == excludeID {
				continue
			}
			seen[hit.ID] = candidate{
				payload: map[string]any{
					"id":     hit.ID,
					"nameEn": hit.Title,
					"kind":   hit.Kind,
					"status": hit.Status,
				},
				score: hit.Score,
			}
		}
	}

	dossiers, scores, err := s.store.FindSimilarDossiers(ctx, nameEN, nameAR, excludeID, limit)
	if err != nil {
		return nil, err
	}
	for i, d := range dossiers {
		if existing, ok := seen[d.ID]; ok && existing.score >= scores[i] {
			continue
		}
		seen[d.ID] = candidate{payload: dossierPayload(d), score: scores[i]}
	}

	results := make([]map[string]any, 0, len(seen))
	for _, c := range seen {
		c.payload["score"] = c.score
		c.payload["likelyDuplicate"] = c.score >= likelyDuplicateThreshold
		results = append(results, c.payload)
	}
	return map[string]any{"candidates": results}, nil
}

func (s *Service) ListDossierEngagements(ctx context.Context, dossierID string) ([]map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	engagements, err := s.store.ListEngagements(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(engagements))
	for _, e := range engagements {
		items = append(items, engagementPayload(e))
	}
	return items, nil
}

type EngagementInput struct {
	Title    string     `json:"title"`
	Kind     string     `json:"kind"`
	Location string     `json:"location"`
	StartsAt *time.Time `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt"`
}

func (s *Service) CreateEngagement(ctx context.Context, dossierID string, input EngagementInput, sess Session) (map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	e := store.Engagement{
		ID:        util.NewID("eng"),
		DossierID: dossierID,
		Title:     strings.TrimSpace(input.Title),
		Kind:      firstNonBlank(input.Kind, "meeting"),
		Location:  input.Location,
		StartsAt:  input.StartsAt,
		EndsAt:    input.EndsAt,
	}
	if err := s.store.InsertEngagement(ctx, e); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "dossier",
		AggregateID:   dossierID,
		EventType:     "engagement.created",
		EventCategory: "engagement",
		Payload:       map[string]any{"actor": sess.UserID, "engagementId": e.ID},
		Changes:       map[string]any{"lastEngagementId": e.ID},
	})
	return engagementPayload(e), nil
}

// GetBrief returns the current analytical brief of a dossier.
func (s *Service) GetBrief(ctx context.Context, dossierID string) (map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	if s.briefs == nil || !s.briefs.Exists(dossierID) {
		return map[string]any{"exists": false}, nil
	}
	content, commit, err := s.briefs.Head(dossierID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"exists":  true,
		"content": content,
		"revision": map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"author":    commit.Author,
			"createdAt": commit.CreatedAt,
		},
	}, nil
}

// SaveBrief creates or updates the dossier brief as a new revision.
func (s *Service) SaveBrief(ctx context.Context, dossierID string, content brief.Content, sess Session) (map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	if s.briefs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "BRIEFS_UNAVAILABLE", "Brief storage not configured", nil)
	}

	if !s.briefs.Exists(dossierID) {
		if err := s.briefs.EnsureRepo(dossierID, content, sess.UserName); err != nil {
			return nil, err
		}
	} else {
		current, _, err := s.briefs.Head(dossierID)
		if err != nil {
			return nil, err
		}
		if brief.HasChanges(current, content) {
			if _, err := s.briefs.Save(dossierID, content, sess.UserName, "Update dossier brief"); err != nil {
				return nil, err
			}
		}
	}

	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "dossier",
		AggregateID:   dossierID,
		EventType:     "brief.updated",
		EventCategory: "brief",
		Payload:       map[string]any{"actor": sess.UserID},
		Changes:       map[string]any{"briefTitleEn": content.TitleEN},
	})
	return s.GetBrief(ctx, dossierID)
}

func (s *Service) BriefHistory(ctx context.Context, dossierID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	if s.briefs == nil || !s.briefs.Exists(dossierID) {
		return map[string]any{"revisions": []any{}}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	history, err := s.briefs.History(dossierID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"revisions": history}, nil
}

// BriefRevision returns the brief as of one revision, with the field-level
// diff against the current head.
func (s *Service) BriefRevision(ctx context.Context, dossierID, hash string) (map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	if s.briefs == nil || !s.briefs.Exists(dossierID) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "dossier has no brief", nil)
	}
	content, err := s.briefs.Revision(dossierID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "brief revision not found",
			map[string]any{"hash": hash})
	}
	head, _, err := s.briefs.Head(dossierID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"hash":         hash,
		"content":      content,
		"changesSince": brief.DiffFields(content, head),
	}, nil
}

// GenerateBriefingPack renders a pack, archives it when object storage is
// configured and records the artifact.
func (s *Service) GenerateBriefingPack(ctx context.Context, dossierID string, req briefing.Request, sess Session) (*briefing.Result, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	req.DossierID = dossierID
	req.GeneratedBy = sess.UserID
	if req.Language != "en" && req.Language != "ar" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "language must be 'en' or 'ar'", nil)
	}
	if req.Format != briefing.FormatPDF && req.Format != briefing.FormatDOCX {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "format must be 'pdf' or 'docx'", nil)
	}

	result, err := s.packs.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	packID := util.NewID("pack")
	objectKey := ""
	if s.archive != nil {
		key := fmt.Sprintf("%s/%s/%s", dossierID, packID, result.Filename)
		if stored, err := s.archive.Put(ctx, key, result.Data, result.MimeType); err != nil {
			log.Printf("archive briefing pack %s: %v", packID, err)
		} else {
			objectKey = stored
		}
	}

	if err := s.store.InsertBriefingPack(ctx, store.BriefingPack{
		ID:          packID,
		DossierID:   dossierID,
		Language:    req.Language,
		Format:      string(req.Format),
		Filename:    result.Filename,
		ObjectKey:   objectKey,
		ByteSize:    int64(len(result.Data)),
		GeneratedBy: sess.UserID,
	}); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "dossier",
		AggregateID:   dossierID,
		EventType:     "briefing_pack.generated",
		EventCategory: "briefing",
		Payload: map[string]any{
			"actor":    sess.UserID,
			"packId":   packID,
			"language": req.Language,
			"format":   string(req.Format),
		},
		Changes: map[string]any{"lastBriefingPackId": packID},
	})
	return result, nil
}

func (s *Service) ListBriefingPacks(ctx context.Context, dossierID string) ([]map[string]any, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	packs, err := s.store.ListBriefingPacks(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(packs))
	for _, p := range packs {
		items = append(items, map[string]any{
			"id":          p.ID,
			"language":    p.Language,
			"format":      p.Format,
			"filename":    p.Filename,
			"objectKey":   p.ObjectKey,
			"byteSize":    p.ByteSize,
			"generatedBy": p.GeneratedBy,
			"generatedAt": p.GeneratedAt,
		})
	}
	return items, nil
}

// packDownloadExpiry bounds how long a pack download link stays valid.
const packDownloadExpiry = 15 * time.Minute

// BriefingPackDownload returns a time-limited link to an archived pack.
func (s *Service) BriefingPackDownload(ctx context.Context, dossierID, packID string) (map[string]any, error) {
	packs, err := s.store.ListBriefingPacks(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	var found *store.BriefingPack
	for i := range packs {
		if packs[i].ID == packID {
			found = &packs[i]
			break
		}
	}
	if found == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "briefing pack not found", nil)
	}
	if s.archive == nil || found.ObjectKey == "" {
		return nil, domainError(http.StatusConflict, "PACK_NOT_ARCHIVED",
			"briefing pack was not archived to object storage", map[string]any{"packId": packID})
	}
	url, err := s.archive.PresignedURL(ctx, found.ObjectKey, packDownloadExpiry)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"packId":    found.ID,
		"filename":  found.Filename,
		"url":       url,
		"expiresAt": time.Now().Add(packDownloadExpiry),
	}, nil
}

func (s *Service) indexDossier(d store.Dossier) {
	if s.search == nil {
		return
	}
	s.search.IndexDossier(search.DossierRecord{
		ID:          d.ID,
		NameEN:      d.NameEN,
		NameAR:      d.NameAR,
		SummaryEN:   d.SummaryEN,
		SummaryAR:   d.SummaryAR,
		Kind:        d.Kind,
		Status:      d.Status,
		Sensitivity: d.Sensitivity,
	})
}

func validateDossierInput(input DossierInput) error {
	if _, ok := allowedDossierKinds[input.Kind]; !ok {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
			"kind must be one of country, organization, person, engagement, theme", nil)
	}
	if strings.TrimSpace(input.NameEN) == "" && strings.TrimSpace(input.NameAR) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "nameEn or nameAr is required", nil)
	}
	return nil
}

func dossierPayload(d store.Dossier) map[string]any {
	return map[string]any{
		"id":          d.ID,
		"kind":        d.Kind,
		"nameEn":      d.NameEN,
		"nameAr":      d.NameAR,
		"summaryEn":   d.SummaryEN,
		"summaryAr":   d.SummaryAR,
		"status":      d.Status,
		"sensitivity": d.Sensitivity,
		"createdBy":   d.CreatedBy,
		"updatedBy":   d.UpdatedBy,
		"updatedAt":   d.UpdatedAt,
	}
}

func engagementPayload(e store.Engagement) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"dossierId": e.DossierID,
		"title":     e.Title,
		"kind":      e.Kind,
		"location":  e.Location,
		"startsAt":  e.StartsAt,
		"endsAt":    e.EndsAt,
	}
}

// packSource adapts the service's store and brief repositories to the
// briefing generator.
type packSource struct {
	service *Service
}

func (p *packSource) GetDossier(ctx context.Context, id string) (briefing.DossierInfo, error) {
	d, err := p.service.store.GetDossier(ctx, id)
	if err != nil {
		return briefing.DossierInfo{}, err
	}
	return briefing.DossierInfo{
		ID:        d.ID,
		Kind:      d.Kind,
		NameEN:    d.NameEN,
		NameAR:    d.NameAR,
		SummaryEN: d.SummaryEN,
		SummaryAR: d.SummaryAR,
		Status:    d.Status,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func (p *packSource) CurrentBrief(dossierID string) (briefing.BriefInfo, bool, error) {
	if p.service.briefs == nil || !p.service.briefs.Exists(dossierID) {
		return briefing.BriefInfo{}, false, nil
	}
	content, commit, err := p.service.briefs.Head(dossierID)
	if err != nil {
		return briefing.BriefInfo{}, false, err
	}
	return briefing.BriefInfo{
		TitleEN:     content.TitleEN,
		TitleAR:     content.TitleAR,
		SummaryEN:   content.SummaryEN,
		SummaryAR:   content.SummaryAR,
		KeyPointsEN: content.KeyPointsEN,
		KeyPointsAR: content.KeyPointsAR,
		UpdatedAt:   commit.CreatedAt,
		Author:      commit.Author,
	}, true, nil
}

func (p *packSource) ListEngagements(ctx context.Context, dossierID string) ([]briefing.EngagementInfo, error) {
	engagements, err := p.service.store.ListEngagements(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	infos := make([]briefing.EngagementInfo, 0, len(engagements))
	for _, e := range engagements {
		infos = append(infos, briefing.EngagementInfo{
			TitleEN:  e.Title,
			Kind:     e.Kind,
			Location: e.Location,
			StartsAt: e.StartsAt,
		})
	}
	return infos, nil
}

func (p *packSource) ListOpenAssignments(ctx context.Context, dossierID string) ([]briefing.AssignmentInfo, error) {
	assignments, err := p.service.store.ListAssignments(ctx, dossierID, "", "", 100, 0)
	if err != nil {
		return nil, err
	}
	infos := make([]briefing.AssignmentInfo, 0, len(assignments))
	for _, a := range assignments {
		if a.Status == "completed" {
			continue
		}
		assigneeName := a.AssigneeID
		if member, err := p.service.store.GetStaffByID(ctx, a.AssigneeID); err == nil {
			assigneeName = member.DisplayName
		}
		infos = append(infos, briefing.AssignmentInfo{
			Title:        a.Title,
			AssigneeName: assigneeName,
			Status:       a.Status,
			Priority:     a.Priority,
			SLADeadline:  a.SLADeadline,
		})
	}
	return infos, nil
}

func (p *packSource) RecentEvents(ctx context.Context, dossierID string, limit int) ([]briefing.EventInfo, error) {
	if p.service.events == nil {
		return nil, nil
	}
	events, err := p.service.events.Events(ctx, "dossier", dossierID, 0)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	infos := make([]briefing.EventInfo, 0, len(events))
	for _, evt := range events {
		infos = append(infos, briefing.EventInfo{
			EventType:  evt.EventType,
			OccurredAt: evt.CreatedAt,
		})
	}
	return infos, nil
}
