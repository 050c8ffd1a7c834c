package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"intldossier/api/internal/authz"
	"intldossier/api/internal/eventstore"
	"intldossier/api/internal/search"
	"intldossier/api/internal/store"
	"intldossier/api/internal/util"
)

type AssignmentInput struct {
	DossierID    string     `json:"dossierId"`
	EngagementID *string    `json:"engagementId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AssigneeID   string     `json:"assigneeId"`
	Priority     string     `json:"priority"`
	SLADeadline  *time.Time `json:"slaDeadline"`
}

func (s *Service) ListAssignments(ctx context.Context, dossierID, assigneeID, status string, limit, offset int) ([]map[string]any, error) {
	assignments, err := s.store.ListAssignments(ctx, dossierID, assigneeID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, assignmentPayload(a))
	}
	return items, nil
}

func (s *Service) CreateAssignment(ctx context.Context, input AssignmentInput, sess Session) (map[string]any, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.AssigneeID) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assigneeId is required", nil)
	}
	if _, err := s.store.GetDossier(ctx, input.DossierID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetStaffByID(ctx, input.AssigneeID); err != nil {
		return nil, err
	}

	a := store.Assignment{
		ID:           util.NewID("asg"),
		DossierID:    input.DossierID,
		EngagementID: input.EngagementID,
		Title:        strings.TrimSpace(input.Title),
		Description:  input.Description,
		AssigneeID:   input.AssigneeID,
		AssignedBy:   sess.UserID,
		Status:       "pending",
		Priority:     firstNonBlank(input.Priority, "medium"),
		SLADeadline:  input.SLADeadline,
	}
	if err := s.store.InsertAssignment(ctx, a); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "assignment",
		AggregateID:   a.ID,
		EventType:     "assignment.created",
		EventCategory: "assignment",
		Payload:       map[string]any{"actor": sess.UserID},
		Changes: map[string]any{
			"dossierId":  a.DossierID,
			"title":      a.Title,
			"assigneeId": a.AssigneeID,
			"status":     a.Status,
		},
	})
	s.indexAssignment(a)
	return assignmentPayload(a), nil
}

// AssignmentDetail composes the full assignment view: dossier, engagement,
// comments, checklist, observers and the computed SLA. Visibility is decided
// by the authz policy over facts gathered here.
func (s *Service) AssignmentDetail(ctx context.Context, assignmentID string, sess Session) (map[string]any, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	observers, err := s.store.ListObservers(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	observerIDs := make([]string, 0, len(observers))
	for _, o := range observers {
		observerIDs = append(observerIDs, o.UserID)
	}

	assigneeUnit := ""
	assigneeName := a.AssigneeID
	if member, err := s.store.GetStaffByID(ctx, a.AssigneeID); err == nil {
		assigneeUnit = member.OrgUnit
		assigneeName = member.DisplayName
	}

	facts := authz.Facts{
		ViewerID:     sess.UserID,
		ViewerRole:   sess.Role,
		ViewerUnit:   sess.OrgUnit,
		AssigneeID:   a.AssigneeID,
		AssigneeUnit: assigneeUnit,
		AssignedByID: a.AssignedBy,
		ObserverIDs:  observerIDs,
	}
	if a.EscalationRecipientID != nil {
		facts.EscalationRecipientID = *a.EscalationRecipientID
	}
	if !authz.CanViewAssignment(facts) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	dossier, err := s.store.GetDossier(ctx, a.DossierID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListAssignmentComments(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	checklist, err := s.store.ListChecklistItems(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	payload := assignmentPayload(a)
	payload["assigneeName"] = assigneeName
	payload["dossier"] = dossierPayload(dossier)
	payload["sla"] = slaPayload(a, time.Now())

	if a.EngagementID != nil {
		if engagement, err := s.store.GetEngagement(ctx, *a.EngagementID); err == nil {
			payload["engagement"] = engagementPayload(engagement)
		}
	}

	commentItems := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		commentItems = append(commentItems, map[string]any{
			"id":         c.ID,
			"authorId":   c.AuthorID,
			"authorName": c.AuthorName,
			"body":       c.Body,
			"createdAt":  c.CreatedAt,
		})
	}
	payload["comments"] = commentItems

	checklistItems := make([]map[string]any, 0, len(checklist))
	for _, item := range checklist {
		checklistItems = append(checklistItems, map[string]any{
			"id":        item.ID,
			"label":     item.Label,
			"position":  item.Position,
			"completed": item.Completed,
		})
	}
	payload["checklist"] = checklistItems

	observerItems := make([]map[string]any, 0, len(observers))
	for _, o := range observers {
		observerItems = append(observerItems, map[string]any{
			"userId":      o.UserID,
			"displayName": o.DisplayName,
			"addedBy":     o.AddedBy,
		})
	}
	payload["observers"] = observerItems

	return payload, nil
}

func (s *Service) CompleteAssignment(ctx context.Context, assignmentID string, sess Session) (map[string]any, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	done, err := s.store.CompleteAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if done {
		s.appendEvent(ctx, eventstore.Event{
			AggregateType: "assignment",
			AggregateID:   assignmentID,
			EventType:     "assignment.completed",
			EventCategory: "assignment",
			Payload:       map[string]any{"actor": sess.UserID},
			Changes:       map[string]any{"status": "completed"},
		})
		a.Status = "completed"
		s.indexAssignment(a)
	}
	return map[string]any{"id": assignmentID, "completed": done}, nil
}

func (s *Service) AddAssignmentComment(ctx context.Context, assignmentID, body string, sess Session) (map[string]any, error) {
	if strings.TrimSpace(body) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "body is required", nil)
	}
	if _, err := s.store.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	c := store.AssignmentComment{
		ID:           util.NewID("cmt"),
		AssignmentID: assignmentID,
		AuthorID:     sess.UserID,
		Body:         strings.TrimSpace(body),
	}
	if err := s.store.InsertAssignmentComment(ctx, c); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, eventstore.Event{
		AggregateType: "assignment",
		AggregateID:   assignmentID,
		EventType:     "assignment.commented",
		EventCategory: "assignment",
		Payload:       map[string]any{"actor": sess.UserID, "commentId": c.ID},
		Changes:       map[string]any{"lastCommentId": c.ID},
	})
	return map[string]any{"id": c.ID, "authorId": c.AuthorID, "body": c.Body}, nil
}

func (s *Service) AddChecklistItem(ctx context.Context, assignmentID, label string, position int) (map[string]any, error) {
	if strings.TrimSpace(label) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "label is required", nil)
	}
	if _, err := s.store.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	item := store.ChecklistItem{
		ID:           util.NewID("chk"),
		AssignmentID: assignmentID,
		Label:        strings.TrimSpace(label),
		Position:     position,
	}
	if err := s.store.InsertChecklistItem(ctx, item); err != nil {
		return nil, err
	}
	return map[string]any{"id": item.ID, "label": item.Label, "position": item.Position}, nil
}

func (s *Service) SetChecklistItem(ctx context.Context, assignmentID, itemID string, completed bool, sess Session) (map[string]any, error) {
	if _, err := s.store.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	updated, err := s.store.SetChecklistItemCompleted(ctx, itemID, sess.UserID, completed)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": itemID, "completed": completed, "updated": updated}, nil
}

func (s *Service) AddObserver(ctx context.Context, assignmentID, userID string, sess Session) error {
	if _, err := s.store.GetAssignment(ctx, assignmentID); err != nil {
		return err
	}
	if _, err := s.store.GetStaffByID(ctx, userID); err != nil {
		return err
	}
	return s.store.AddObserver(ctx, assignmentID, userID, sess.UserID)
}

func (s *Service) RemoveObserver(ctx context.Context, assignmentID, userID string) error {
	if _, err := s.store.GetAssignment(ctx, assignmentID); err != nil {
		return err
	}
	return s.store.RemoveObserver(ctx, assignmentID, userID)
}

func (s *Service) indexAssignment(a store.Assignment) {
	if s.search == nil {
		return
	}
	s.search.IndexAssignment(search.AssignmentRecord{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		DossierID:   a.DossierID,
		Status:      a.Status,
		AssigneeID:  a.AssigneeID,
	})
}

// atRiskWindow is how close to the SLA deadline an assignment counts as
// at risk.
const atRiskWindow = 24 * time.Hour

func slaPayload(a store.Assignment, now time.Time) map[string]any {
	if a.SLADeadline == nil {
		return nil
	}
	remaining := a.SLADeadline.Sub(now)
	state := "on_track"
	switch {
	case remaining < 0:
		state = "breached"
	case remaining < atRiskWindow:
		state = "at_risk"
	}
	return map[string]any{
		"deadline":         a.SLADeadline,
		"remainingSeconds": int64(remaining.Seconds()),
		"state":            state,
	}
}

func assignmentPayload(a store.Assignment) map[string]any {
	payload := map[string]any{
		"id":          a.ID,
		"dossierId":   a.DossierID,
		"title":       a.Title,
		"description": a.Description,
		"assigneeId":  a.AssigneeID,
		"assignedBy":  a.AssignedBy,
		"status":      a.Status,
		"priority":    a.Priority,
		"slaDeadline": a.SLADeadline,
		"completedAt": a.CompletedAt,
		"updatedAt":   a.UpdatedAt,
	}
	if a.EngagementID != nil {
		payload["engagementId"] = *a.EngagementID
	}
	if a.EscalationRecipientID != nil {
		payload["escalationRecipientId"] = *a.EscalationRecipientID
	}
	return payload
}
