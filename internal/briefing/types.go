// Package briefing generates briefing packs for dossiers in PDF and DOCX
// formats. A pack composes the dossier record, its current analytical brief,
// engagements, open assignments and recent timeline events into a single
// document, in English or Arabic.
package briefing

import (
	"errors"
	"time"
)

// Format is the output format of a briefing pack.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for pack generation.
type Request struct {
	DossierID          string
	Language           string // "en" or "ar"
	Format             Format
	IncludeAssignments bool
	GeneratedBy        string
}

// Result contains the generated pack.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// DossierInfo holds the dossier fields the pack renders.
type DossierInfo struct {
	ID        string
	Kind      string
	NameEN    string
	NameAR    string
	SummaryEN string
	SummaryAR string
	Status    string
	UpdatedAt time.Time
}

// BriefInfo holds the current analytical brief, if one exists.
type BriefInfo struct {
	TitleEN     string
	TitleAR     string
	SummaryEN   string
	SummaryAR   string
	KeyPointsEN []string
	KeyPointsAR []string
	UpdatedAt   time.Time
	Author      string
}

// EngagementInfo holds one engagement row.
type EngagementInfo struct {
	TitleEN  string
	TitleAR  string
	Kind     string
	Location string
	StartsAt *time.Time
}

// AssignmentInfo holds one open assignment row.
type AssignmentInfo struct {
	Title       string
	AssigneeName string
	Status      string
	Priority    string
	SLADeadline *time.Time
}

// EventInfo holds one recent timeline event.
type EventInfo struct {
	EventType  string
	OccurredAt time.Time
}

var (
	// ErrPDFDependencyMissing indicates the headless browser is unavailable.
	ErrPDFDependencyMissing = errors.New("briefing pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is unavailable.
	ErrDOCXDependencyMissing = errors.New("briefing docx dependency missing")
)
