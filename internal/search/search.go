package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDossier    ResultType = "dossier"
	ResultAssignment ResultType = "assignment"
	ResultEscalation ResultType = "escalation"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	DossierID string     `json:"dossierId"`
	Kind      string     `json:"kind,omitempty"`
	Status    string     `json:"status,omitempty"`
	Score     float64    `json:"score,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	FilterKind string     // dossier kind filter
	Limit      int
	Offset     int
	// HideSensitive drops confidential dossiers from results for roles
	// without write access.
	HideSensitive bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexDossier(d DossierRecord) error
	IndexAssignment(a AssignmentRecord) error
	IndexEscalation(e EscalationIndexRecord) error
	DeleteDossier(id string) error
	DeleteAssignment(id string) error
}

// DossierRecord is the data we index for a dossier.
type DossierRecord struct {
	ID          string `json:"id"`
	NameEN      string `json:"nameEn"`
	NameAR      string `json:"nameAr"`
	SummaryEN   string `json:"summaryEn"`
	SummaryAR   string `json:"summaryAr"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Sensitivity string `json:"sensitivity"`
}

// AssignmentRecord is the data we index for an assignment.
type AssignmentRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DossierID   string `json:"dossierId"`
	Status      string `json:"status"`
	AssigneeID  string `json:"assigneeId"`
}

// EscalationIndexRecord is the data we index for an escalation record.
type EscalationIndexRecord struct {
	ID            string `json:"id"`
	Reason        string `json:"reason"`
	AssignmentID  string `json:"assignmentId"`
	DossierID     string `json:"dossierId"`
	Status        string `json:"status"`
	EscalatedToID string `json:"escalatedToId"`
}
