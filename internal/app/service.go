package app

import (
	"context"
	"log"
	"strings"
	"time"

	"intldossier/api/internal/auth"
	"intldossier/api/internal/authpw"
	"intldossier/api/internal/brief"
	"intldossier/api/internal/briefing"
	"intldossier/api/internal/config"
	"intldossier/api/internal/email"
	"intldossier/api/internal/eventstore"
	"intldossier/api/internal/hierarchy"
	"intldossier/api/internal/jobs"
	"intldossier/api/internal/rbac"
	"intldossier/api/internal/search"
	"intldossier/api/internal/session"
	"intldossier/api/internal/store"
	"intldossier/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	OrgUnit      string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the service uses. A fake
// implementation backs the package tests.
type dataStore interface {
	Ping(ctx context.Context) error

	GetStaffByID(ctx context.Context, userID string) (store.StaffMember, error)
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.StaffMember, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	HierarchyEntry(ctx context.Context, userID string) (hierarchy.Step, bool, error)
	GetHierarchyEdge(ctx context.Context, userID string) (store.HierarchyEdge, error)
	UpsertHierarchyEdge(ctx context.Context, edge store.HierarchyEdge) error
	DeleteHierarchyEdge(ctx context.Context, userID string) error

	ListDossiers(ctx context.Context, kind, status string, limit, offset int) ([]store.Dossier, error)
	GetDossier(ctx context.Context, dossierID string) (store.Dossier, error)
	InsertDossier(ctx context.Context, d store.Dossier) error
	UpdateDossier(ctx context.Context, d store.Dossier) error
	ArchiveDossier(ctx context.Context, dossierID, updatedBy string) error
	FindSimilarDossiers(ctx context.Context, nameEN, nameAR, excludeID string, limit int) ([]store.Dossier, []float64, error)
	ListEngagements(ctx context.Context, dossierID string) ([]store.Engagement, error)
	GetEngagement(ctx context.Context, engagementID string) (store.Engagement, error)
	InsertEngagement(ctx context.Context, e store.Engagement) error
	InsertBriefingPack(ctx context.Context, p store.BriefingPack) error
	ListBriefingPacks(ctx context.Context, dossierID string) ([]store.BriefingPack, error)

	GetAssignment(ctx context.Context, assignmentID string) (store.Assignment, error)
	ListAssignments(ctx context.Context, dossierID, assigneeID, status string, limit, offset int) ([]store.Assignment, error)
	InsertAssignment(ctx context.Context, a store.Assignment) error
	CompleteAssignment(ctx context.Context, assignmentID string) (bool, error)
	ListAssignmentComments(ctx context.Context, assignmentID string) ([]store.AssignmentComment, error)
	InsertAssignmentComment(ctx context.Context, c store.AssignmentComment) error
	ListChecklistItems(ctx context.Context, assignmentID string) ([]store.ChecklistItem, error)
	InsertChecklistItem(ctx context.Context, item store.ChecklistItem) error
	SetChecklistItemCompleted(ctx context.Context, itemID, userID string, completed bool) (bool, error)
	ListObservers(ctx context.Context, assignmentID string) ([]store.Observer, error)
	AddObserver(ctx context.Context, assignmentID, userID, addedBy string) error
	RemoveObserver(ctx context.Context, assignmentID, userID string) error

	EscalateAssignment(ctx context.Context, rec store.EscalationRecord) error
	ListEscalationRecords(ctx context.Context, assignmentID string) ([]store.EscalationRecord, error)
	InsertEscalationJob(ctx context.Context, job store.EscalationJob) error
	GetEscalationJob(ctx context.Context, jobID string) (store.EscalationJob, error)
	ListJobItems(ctx context.Context, jobID string) ([]store.JobItem, error)
}

// eventLog is the event store surface the service uses; nil disables the
// audit timeline.
type eventLog interface {
	Append(ctx context.Context, evt eventstore.Event) (eventstore.Event, error)
	Events(ctx context.Context, aggregateType, aggregateID string, sinceVersion int) ([]eventstore.Event, error)
}

// searchEngine is the search facade surface; nil disables search.
type searchEngine interface {
	Search(q search.Query) search.Response
	SimilarDossiers(name string, limit int) []search.Result
	IndexDossier(d search.DossierRecord)
	IndexAssignment(a search.AssignmentRecord)
	IndexEscalation(e search.EscalationIndexRecord)
	DeleteDossier(id string)
}

// archiveStore persists briefing-pack artifacts; nil disables archival.
type archiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Deps carries the optional collaborators. Nil fields disable the feature
// they back; the core dossier and escalation flows need only the store.
type Deps struct {
	Sessions *session.RedisStore
	Events   eventLog
	Search   searchEngine
	Briefs   *brief.Service
	Archive  archiveStore
	Email    *email.Service
	AuthPW   *authpw.Service
	Runner   *jobs.Runner
}

type Service struct {
	cfg      config.Config
	store    dataStore
	resolver *hierarchy.Resolver
	sessions *session.RedisStore
	events   eventLog
	search   searchEngine
	briefs   *brief.Service
	packs    *briefing.Service
	archive  archiveStore
	mail     *email.Service
	authpw   *authpw.Service
	runner   *jobs.Runner
}

func New(cfg config.Config, st dataStore, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    st,
		resolver: hierarchy.NewResolver(st),
		sessions: deps.Sessions,
		events:   deps.Events,
		search:   deps.Search,
		briefs:   deps.Briefs,
		archive:  deps.Archive,
		mail:     deps.Email,
		authpw:   deps.AuthPW,
		runner:   deps.Runner,
	}
	s.packs = briefing.NewService(&packSource{service: s})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// NotifyVerification mails the verification link. Callers fall back to a dev
// token in the response when SMTP is not configured.
func (s *Service) NotifyVerification(to, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/verify-email?token=" + token
	go func() {
		if err := s.mail.SendVerificationEmail(to, name, url); err != nil {
			log.Printf(`{"level":"warn","msg":"verification email failed","error":%q}`, err.Error())
		}
	}()
}

func (s *Service) NotifyPasswordReset(to, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/reset-password?token=" + token
	go func() {
		if err := s.mail.SendPasswordResetEmail(to, name, url); err != nil {
			log.Printf(`{"level":"warn","msg":"password reset email failed","error":%q}`, err.Error())
		}
	}()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// CreateSession issues access and refresh tokens for a staff member.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	member, err := s.store.GetStaffByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, member)
}

func (s *Service) issueSession(ctx context.Context, member store.StaffMember) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  member.ID,
		Name: member.DisplayName,
		Role: member.Role,
		Unit: member.OrgUnit,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	tokenHash := auth.HashToken(refresh)
	if s.sessions != nil {
		err = s.sessions.SaveRefreshSession(ctx, tokenHash, member, refreshExpires)
	} else {
		err = s.store.SaveRefreshSession(ctx, tokenHash, member.ID, refreshExpires)
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       member.ID,
		UserName:     member.DisplayName,
		Role:         string(rbac.Normalize(member.Role)),
		OrgUnit:      member.OrgUnit,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates a refresh token: look it up, revoke it, issue a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	var member store.StaffMember
	var err error
	if s.sessions != nil {
		member, err = s.sessions.LookupRefreshSession(ctx, tokenHash)
		if err == nil {
			_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
			return s.issueSession(ctx, member)
		}
	}
	member, err = s.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, member)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      string(rbac.Normalize(claims.Role)),
		OrgUnit:   claims.Unit,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		if s.sessions != nil {
			_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		}
		_ = s.store.RevokeRefreshSession(ctx, tokenHash)
	}
	return nil
}

// Search runs a full-text query across dossiers, assignments and escalations.
func (s *Service) Search(q, filterType, filterKind string, limit, offset int, role string) (map[string]any, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	resp := search.Response{Results: []search.Result{}, Query: q}
	if s.search != nil {
		resp = s.search.Search(search.Query{
			Text:          q,
			FilterType:    search.ResultType(filterType),
			FilterKind:    filterKind,
			Limit:         limit,
			Offset:        offset,
			HideSensitive: !s.Can(role, rbac.ActionWrite),
		})
	}
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

func (s *Service) appendEvent(ctx context.Context, evt eventstore.Event) {
	if s.events == nil {
		return
	}
	evt.CorrelationID = requestIDFromContext(ctx)
	if _, err := s.events.Append(ctx, evt); err != nil {
		log.Printf("append event %s for %s/%s: %v", evt.EventType, evt.AggregateType, evt.AggregateID, err)
	}
}

// Timeline returns the audit events of an aggregate, oldest first.
func (s *Service) Timeline(ctx context.Context, aggregateType, aggregateID string) ([]eventstore.Event, error) {
	if s.events == nil {
		return []eventstore.Event{}, nil
	}
	events, err := s.events.Events(ctx, aggregateType, aggregateID, 0)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	return events, nil
}

// Shutdown drains background bulk jobs.
func (s *Service) Shutdown() {
	if s.runner != nil {
		s.runner.Shutdown()
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
