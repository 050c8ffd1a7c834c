package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"intldossier/api/internal/email"
	"intldossier/api/internal/eventstore"
	"intldossier/api/internal/hierarchy"
	"intldossier/api/internal/search"
	"intldossier/api/internal/store"
	"intldossier/api/internal/util"
)

// Escalate resolves the assignee's reporting chain and records an escalation
// to the nearest superior. The assignment keeps its escalation recipient so
// later viewers in the chain can see it.
func (s *Service) Escalate(ctx context.Context, assignmentID, reason string, sess Session) (map[string]any, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	rec, target, err := s.escalateOne(ctx, a, reason, sess.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"escalationId":    rec.ID,
		"assignmentId":    assignmentID,
		"escalatedToId":   target.UserID,
		"escalatedToName": target.DisplayName,
		"status":          rec.Status,
	}, nil
}

func (s *Service) escalateOne(ctx context.Context, a store.Assignment, reason, actorID string) (store.EscalationRecord, hierarchy.Step, error) {
	path, err := s.resolver.Resolve(ctx, a.AssigneeID)
	if err != nil {
		return store.EscalationRecord{}, hierarchy.Step{}, err
	}
	if len(path) == 0 {
		return store.EscalationRecord{}, hierarchy.Step{}, domainError(http.StatusBadRequest, "NO_ESCALATION_PATH",
			"assignee has no superior to escalate to", map[string]any{"assigneeId": a.AssigneeID})
	}
	target := path[0]

	rec := store.EscalationRecord{
		ID:            util.NewID("esc"),
		AssignmentID:  a.ID,
		EscalatedBy:   actorID,
		EscalatedToID: target.UserID,
		Reason:        reason,
		Status:        "pending",
	}
	if err := s.store.EscalateAssignment(ctx, rec); err != nil {
		return store.EscalationRecord{}, hierarchy.Step{}, err
	}

	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "assignment",
		AggregateID:   a.ID,
		EventType:     "assignment.escalated",
		EventCategory: "escalation",
		Payload: map[string]any{
			"actor":         actorID,
			"escalationId":  rec.ID,
			"escalatedToId": target.UserID,
			"reason":        reason,
		},
		Changes: map[string]any{"escalationRecipientId": target.UserID},
	})

	s.notifyEscalation(ctx, a, rec, target)

	if s.search != nil {
		s.search.IndexEscalation(search.EscalationIndexRecord{
			ID:            rec.ID,
			Reason:        rec.Reason,
			AssignmentID:  a.ID,
			DossierID:     a.DossierID,
			Status:        rec.Status,
			EscalatedToID: target.UserID,
		})
		recipient := target.UserID
		a.EscalationRecipientID = &recipient
		s.indexAssignment(a)
	}
	return rec, target, nil
}

func (s *Service) notifyEscalation(ctx context.Context, a store.Assignment, rec store.EscalationRecord, target hierarchy.Step) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	recipient, err := s.store.GetStaffByID(ctx, target.UserID)
	if err != nil {
		log.Printf(`{"level":"warn","msg":"escalation notice recipient lookup failed","userId":%q,"error":%q}`, target.UserID, err.Error())
		return
	}
	dossierName := ""
	if dossier, err := s.store.GetDossier(ctx, a.DossierID); err == nil {
		dossierName = dossier.NameEN
	}
	escalatorName := rec.EscalatedBy
	if member, err := s.store.GetStaffByID(ctx, rec.EscalatedBy); err == nil {
		escalatorName = member.DisplayName
	}
	go func() {
		err := s.mail.SendEscalationNotice(recipient.Email, email.EscalationNoticeData{
			RecipientName:   recipient.DisplayName,
			AssignmentTitle: a.Title,
			DossierName:     dossierName,
			EscalatedBy:     escalatorName,
			Reason:          rec.Reason,
		})
		if err != nil {
			log.Printf(`{"level":"warn","msg":"escalation notice send failed","escalationId":%q,"error":%q}`, rec.ID, err.Error())
		}
	}()
}

// EscalateBulk launches a background job that escalates each assignment
// independently. Individual failures are recorded per item and never abort
// the job.
func (s *Service) EscalateBulk(ctx context.Context, assignmentIDs []string, reason string, sess Session) (map[string]any, error) {
	if len(assignmentIDs) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assignmentIds is required", nil)
	}
	for _, id := range assignmentIDs {
		if strings.TrimSpace(id) == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assignmentIds contains an empty id", nil)
		}
	}

	job := store.EscalationJob{
		ID:          util.NewID("job"),
		TotalItems:  len(assignmentIDs),
		Status:      "processing",
		Reason:      reason,
		RequestedBy: sess.UserID,
	}
	if err := s.store.InsertEscalationJob(ctx, job); err != nil {
		return nil, err
	}

	actorID := sess.UserID
	s.runner.Launch(job.ID, assignmentIDs, func(ctx context.Context, assignmentID string) (string, error) {
		a, err := s.store.GetAssignment(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", errors.New("assignment not found")
			}
			return "", err
		}
		rec, _, err := s.escalateOne(ctx, a, reason, actorID)
		if err != nil {
			return "", err
		}
		return rec.ID, nil
	})

	return map[string]any{"jobId": job.ID, "totalItems": job.TotalItems, "status": job.Status}, nil
}

// JobStatus reports bulk escalation progress. While the job is still
// processing the counts are derived from recorded items so callers can poll.
func (s *Service) JobStatus(ctx context.Context, jobID string) (map[string]any, error) {
	job, err := s.store.GetEscalationJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListJobItems(ctx, jobID)
	if err != nil {
		return nil, err
	}

	successful := job.SuccessfulItems
	failed := job.FailedItems
	if job.Status == "processing" {
		successful, failed = 0, 0
		for _, item := range items {
			if item.Success {
				successful++
			} else {
				failed++
			}
		}
	}

	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"assignmentId": item.AssignmentID,
			"success":      item.Success,
		}
		if item.EscalationID != nil {
			entry["escalationId"] = *item.EscalationID
		}
		if item.Error != "" {
			entry["error"] = item.Error
		}
		results = append(results, entry)
	}

	payload := map[string]any{
		"jobId":           job.ID,
		"status":          job.Status,
		"totalItems":      job.TotalItems,
		"successfulItems": successful,
		"failedItems":     failed,
		"reason":          job.Reason,
		"requestedBy":     job.RequestedBy,
		"createdAt":       job.CreatedAt,
		"results":         results,
	}
	if job.CompletedAt != nil {
		payload["completedAt"] = *job.CompletedAt
	}
	return payload, nil
}

func (s *Service) ListAssignmentEscalations(ctx context.Context, assignmentID string) ([]map[string]any, error) {
	if _, err := s.store.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	records, err := s.store.ListEscalationRecords(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		items = append(items, map[string]any{
			"id":            rec.ID,
			"assignmentId":  rec.AssignmentID,
			"escalatedBy":   rec.EscalatedBy,
			"escalatedToId": rec.EscalatedToID,
			"reason":        rec.Reason,
			"status":        rec.Status,
			"createdAt":     rec.CreatedAt,
		})
	}
	return items, nil
}

type HierarchyEdgeInput struct {
	ReportsToID   *string `json:"reportsToId"`
	PositionTitle string  `json:"positionTitle"`
	Department    string  `json:"department"`
}

func (s *Service) SetHierarchyEdge(ctx context.Context, userID string, input HierarchyEdgeInput) (map[string]any, error) {
	if _, err := s.store.GetStaffByID(ctx, userID); err != nil {
		return nil, err
	}
	if input.ReportsToID != nil {
		if *input.ReportsToID == userID {
			return nil, domainError(http.StatusBadRequest, "CIRCULAR_REFERENCE",
				"a user cannot report to themselves", map[string]any{"userId": userID})
		}
		if _, err := s.store.GetStaffByID(ctx, *input.ReportsToID); err != nil {
			return nil, err
		}
	}
	edge := store.HierarchyEdge{
		UserID:        userID,
		ReportsToID:   input.ReportsToID,
		PositionTitle: input.PositionTitle,
		Department:    input.Department,
	}
	if err := s.store.UpsertHierarchyEdge(ctx, edge); err != nil {
		return nil, err
	}
	return hierarchyEdgePayload(edge), nil
}

func (s *Service) RemoveHierarchyEdge(ctx context.Context, userID string) error {
	return s.store.DeleteHierarchyEdge(ctx, userID)
}

// EscalationPath returns the full reporting chain for a user, nearest
// superior first.
func (s *Service) EscalationPath(ctx context.Context, userID string) ([]map[string]any, error) {
	if _, err := s.store.GetStaffByID(ctx, userID); err != nil {
		return nil, err
	}
	path, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	steps := make([]map[string]any, 0, len(path))
	for i, step := range path {
		steps = append(steps, map[string]any{
			"level":         i + 1,
			"userId":        step.UserID,
			"displayName":   step.DisplayName,
			"positionTitle": step.PositionTitle,
			"department":    step.Department,
		})
	}
	return steps, nil
}

func hierarchyEdgePayload(edge store.HierarchyEdge) map[string]any {
	payload := map[string]any{
		"userId":        edge.UserID,
		"positionTitle": edge.PositionTitle,
		"department":    edge.Department,
	}
	if edge.ReportsToID != nil {
		payload["reportsToId"] = *edge.ReportsToID
	}
	return payload
}
