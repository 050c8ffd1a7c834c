package store

import "time"

type StaffMember struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	OrgUnit               string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HierarchyEdge is one row of the reporting graph. ReportsToID is nil for the
// top of a chain.
type HierarchyEdge struct {
	UserID        string
	ReportsToID   *string
	PositionTitle string
	Department    string
	UpdatedAt     time.Time
	// Joined from staff_members
	DisplayName string
}

type Dossier struct {
	ID          string
	Kind        string
	NameEN      string
	NameAR      string
	SummaryEN   string
	SummaryAR   string
	Status      string
	Sensitivity string
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Engagement struct {
	ID        string
	DossierID string
	Title     string
	Kind      string
	Location  string
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time
}

type Assignment struct {
	ID                    string
	DossierID             string
	EngagementID          *string
	Title                 string
	Description           string
	AssigneeID            string
	AssignedBy            string
	Status                string
	Priority              string
	SLADeadline           *time.Time
	EscalationRecipientID *string
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type AssignmentComment struct {
	ID           string
	AssignmentID string
	AuthorID     string
	AuthorName   string
	Body         string
	CreatedAt    time.Time
}

type ChecklistItem struct {
	ID           string
	AssignmentID string
	Label        string
	Position     int
	Completed    bool
	CompletedBy  *string
	CompletedAt  *time.Time
}

type Observer struct {
	AssignmentID string
	UserID       string
	DisplayName  string
	AddedBy      string
	AddedAt      time.Time
}

type EscalationRecord struct {
	ID            string
	AssignmentID  string
	EscalatedBy   string
	EscalatedToID string
	Reason        string
	Status        string
	CreatedAt     time.Time
}

type EscalationJob struct {
	ID              string
	TotalItems      int
	SuccessfulItems int
	FailedItems     int
	Status          string
	Reason          string
	RequestedBy     string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// JobItem is one per-assignment outcome inside a bulk escalation job.
type JobItem struct {
	JobID        string
	Position     int
	AssignmentID string
	Success      bool
	EscalationID *string
	Error        string
}

type BriefingPack struct {
	ID          string
	DossierID   string
	Language    string
	Format      string
	Filename    string
	ObjectKey   string
	ByteSize    int64
	GeneratedBy string
	GeneratedAt time.Time
}
