package briefing

import (
	"context"
	"fmt"
	"time"
)

// DataSource defines the data access the pack generator needs.
type DataSource interface {
	GetDossier(ctx context.Context, id string) (DossierInfo, error)
	CurrentBrief(dossierID string) (BriefInfo, bool, error)
	ListEngagements(ctx context.Context, dossierID string) ([]EngagementInfo, error)
	ListOpenAssignments(ctx context.Context, dossierID string) ([]AssignmentInfo, error)
	RecentEvents(ctx context.Context, dossierID string, limit int) ([]EventInfo, error)
}

// Service generates briefing packs.
type Service struct {
	source DataSource
}

func NewService(source DataSource) *Service {
	return &Service{source: source}
}

// Generate builds a briefing pack in the requested language and format.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	html, title, err := s.composeHTML(ctx, req)
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatPDF:
		return renderPDF(html, title)
	case FormatDOCX:
		return renderDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) composeHTML(ctx context.Context, req Request) (string, string, error) {
	dossier, err := s.source.GetDossier(ctx, req.DossierID)
	if err != nil {
		return "", "", fmt.Errorf("get dossier: %w", err)
	}

	arabic := req.Language == "ar"
	data := templateData{
		Lang:        "en",
		Direction:   "ltr",
		Labels:      labelsEN,
		Status:      dossier.Status,
		GeneratedAt: time.Now(),
	}
	if arabic {
		data.Lang = "ar"
		data.Direction = "rtl"
		data.Labels = labelsAR
	}

	data.Title = pick(arabic, dossier.NameAR, dossier.NameEN)
	// The counterpart name renders as a subtitle so both languages appear.
	data.Subtitle = dossier.NameAR
	if arabic {
		data.Subtitle = dossier.NameEN
	}
	data.Summary = pick(arabic, dossier.SummaryAR, dossier.SummaryEN)
	if data.Title == "" {
		data.Title = data.Labels.Untitled
	}

	current, ok, err := s.source.CurrentBrief(req.DossierID)
	if err != nil {
		return "", "", fmt.Errorf("load brief: %w", err)
	}
	if ok {
		data.BriefTitle = pick(arabic, current.TitleAR, current.TitleEN)
		data.BriefBody = pick(arabic, current.SummaryAR, current.SummaryEN)
		data.KeyPoints = current.KeyPointsEN
		if arabic {
			data.KeyPoints = current.KeyPointsAR
		}
	}

	engagements, err := s.source.ListEngagements(ctx, req.DossierID)
	if err != nil {
		return "", "", fmt.Errorf("list engagements: %w", err)
	}
	for _, e := range engagements {
		row := templateEngagement{
			Title:    pick(arabic, e.TitleAR, e.TitleEN),
			Kind:     e.Kind,
			Location: e.Location,
		}
		if e.StartsAt != nil {
			row.Date = e.StartsAt.Format("2006-01-02")
		}
		data.Engagements = append(data.Engagements, row)
	}

	if req.IncludeAssignments {
		assignments, err := s.source.ListOpenAssignments(ctx, req.DossierID)
		if err != nil {
			return "", "", fmt.Errorf("list assignments: %w", err)
		}
		for _, a := range assignments {
			row := templateAssignment{
				Title:    a.Title,
				Assignee: a.AssigneeName,
				Status:   a.Status,
				Priority: a.Priority,
			}
			if a.SLADeadline != nil {
				row.Deadline = a.SLADeadline.Format("2006-01-02")
			}
			data.Assignments = append(data.Assignments, row)
		}
	}

	events, err := s.source.RecentEvents(ctx, req.DossierID, 20)
	if err != nil {
		return "", "", fmt.Errorf("recent events: %w", err)
	}
	for _, ev := range events {
		data.Events = append(data.Events, templateEvent{
			Type: ev.EventType,
			Date: ev.OccurredAt.Format("2006-01-02 15:04"),
		})
	}

	html, err := renderPackHTML(data)
	if err != nil {
		return "", "", fmt.Errorf("render template: %w", err)
	}
	return html, data.Title, nil
}

func pick(preferFirst bool, first, second string) string {
	if preferFirst && first != "" {
		return first
	}
	if !preferFirst && second != "" {
		return second
	}
	if first != "" {
		return first
	}
	return second
}
