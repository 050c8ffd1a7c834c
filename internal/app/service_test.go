package app

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"intldossier/api/internal/auth"
	"intldossier/api/internal/config"
	"intldossier/api/internal/hierarchy"
	"intldossier/api/internal/rbac"
	"intldossier/api/internal/store"
)

type fakeStore struct {
	mu sync.Mutex

	getStaffByIDFn            func(context.Context, string) (store.StaffMember, error)
	hierarchyEntryFn          func(context.Context, string) (hierarchy.Step, bool, error)
	getHierarchyEdgeFn        func(context.Context, string) (store.HierarchyEdge, error)
	upsertHierarchyEdgeFn     func(context.Context, store.HierarchyEdge) error
	deleteHierarchyEdgeFn     func(context.Context, string) error
	listDossiersFn            func(context.Context, string, string, int, int) ([]store.Dossier, error)
	getDossierFn              func(context.Context, string) (store.Dossier, error)
	insertDossierFn           func(context.Context, store.Dossier) error
	updateDossierFn           func(context.Context, store.Dossier) error
	archiveDossierFn          func(context.Context, string, string) error
	findSimilarDossiersFn     func(context.Context, string, string, string, int) ([]store.Dossier, []float64, error)
	getAssignmentFn           func(context.Context, string) (store.Assignment, error)
	listAssignmentsFn         func(context.Context, string, string, string, int, int) ([]store.Assignment, error)
	insertAssignmentFn        func(context.Context, store.Assignment) error
	completeAssignmentFn      func(context.Context, string) (bool, error)
	listObserversFn           func(context.Context, string) ([]store.Observer, error)
	escalateAssignmentFn      func(context.Context, store.EscalationRecord) error
	listEscalationRecordsFn   func(context.Context, string) ([]store.EscalationRecord, error)
	insertEscalationJobFn     func(context.Context, store.EscalationJob) error
	getEscalationJobFn        func(context.Context, string) (store.EscalationJob, error)
	listJobItemsFn            func(context.Context, string) ([]store.JobItem, error)
	insertJobItemFn           func(context.Context, store.JobItem) error
	finishEscalationJobFn     func(context.Context, string, string, int, int, time.Time) error
	isAccessTokenRevokedFn    func(context.Context, string) (bool, error)
	setChecklistItemCompleted func(context.Context, string, string, bool) (bool, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetStaffByID(ctx context.Context, userID string) (store.StaffMember, error) {
	if f.getStaffByIDFn != nil {
		return f.getStaffByIDFn(ctx, userID)
	}
	return store.StaffMember{ID: userID, DisplayName: userID, Role: "staff"}, nil
}

func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.StaffMember, error) {
	return store.StaffMember{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error    { return nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) HierarchyEntry(ctx context.Context, userID string) (hierarchy.Step, bool, error) {
	if f.hierarchyEntryFn != nil {
		return f.hierarchyEntryFn(ctx, userID)
	}
	return hierarchy.Step{}, false, nil
}
func (f *fakeStore) GetHierarchyEdge(ctx context.Context, userID string) (store.HierarchyEdge, error) {
	if f.getHierarchyEdgeFn != nil {
		return f.getHierarchyEdgeFn(ctx, userID)
	}
	return store.HierarchyEdge{}, sql.ErrNoRows
}
func (f *fakeStore) UpsertHierarchyEdge(ctx context.Context, edge store.HierarchyEdge) error {
	if f.upsertHierarchyEdgeFn != nil {
		return f.upsertHierarchyEdgeFn(ctx, edge)
	}
	return nil
}
func (f *fakeStore) DeleteHierarchyEdge(ctx context.Context, userID string) error {
	if f.deleteHierarchyEdgeFn != nil {
		return f.deleteHierarchyEdgeFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) ListDossiers(ctx context.Context, kind, status string, limit, offset int) ([]store.Dossier, error) {
	if f.listDossiersFn != nil {
		return f.listDossiersFn(ctx, kind, status, limit, offset)
	}
	return nil, nil
}
func (f *fakeStore) GetDossier(ctx context.Context, dossierID string) (store.Dossier, error) {
	if f.getDossierFn != nil {
		return f.getDossierFn(ctx, dossierID)
	}
	return store.Dossier{}, sql.ErrNoRows
}
func (f *fakeStore) InsertDossier(ctx context.Context, d store.Dossier) error {
	if f.insertDossierFn != nil {
		return f.insertDossierFn(ctx, d)
	}
	return nil
}
func (f *fakeStore) UpdateDossier(ctx context.Context, d store.Dossier) error {
	if f.updateDossierFn != nil {
		return f.updateDossierFn(ctx, d)
	}
	return nil
}
func (f *fakeStore) ArchiveDossier(ctx context.Context, dossierID, updatedBy string) error {
	if f.archiveDossierFn != nil {
		return f.archiveDossierFn(ctx, dossierID, updatedBy)
	}
	return nil
}
func (f *fakeStore) FindSimilarDossiers(ctx context.Context, nameEN, nameAR, excludeID string, limit int) ([]store.Dossier, []float64, error) {
	if f.findSimilarDossiersFn != nil {
		return f.findSimilarDossiersFn(ctx, nameEN, nameAR, excludeID, limit)
	}
	return nil, nil, nil
}
func (f *fakeStore) ListEngagements(context.Context, string) ([]store.Engagement, error) {
	return nil, nil
}
func (f *fakeStore) GetEngagement(context.Context, string) (store.Engagement, error) {
	return store.Engagement{}, sql.ErrNoRows
}
func (f *fakeStore) InsertEngagement(context.Context, store.Engagement) error { return nil }
func (f *fakeStore) InsertBriefingPack(context.Context, store.BriefingPack) error { return nil }
func (f *fakeStore) ListBriefingPacks(context.Context, string) ([]store.BriefingPack, error) {
	return nil, nil
}

func (f *fakeStore) GetAssignment(ctx context.Context, assignmentID string) (store.Assignment, error) {
	if f.getAssignmentFn != nil {
		return f.getAssignmentFn(ctx, assignmentID)
	}
	return store.Assignment{}, sql.ErrNoRows
}
func (f *fakeStore) ListAssignments(ctx context.Context, dossierID, assigneeID, status string, limit, offset int) ([]store.Assignment, error) {
	if f.listAssignmentsFn != nil {
		return f.listAssignmentsFn(ctx, dossierID, assigneeID, status, limit, offset)
	}
	return nil, nil
}
func (f *fakeStore) InsertAssignment(ctx context.Context, a store.Assignment) error {
	if f.insertAssignmentFn != nil {
		return f.insertAssignmentFn(ctx, a)
	}
	return nil
}
func (f *fakeStore) CompleteAssignment(ctx context.Context, assignmentID string) (bool, error) {
	if f.completeAssignmentFn != nil {
		return f.completeAssignmentFn(ctx, assignmentID)
	}
	return true, nil
}
func (f *fakeStore) ListAssignmentComments(context.Context, string) ([]store.AssignmentComment, error) {
	return nil, nil
}
func (f *fakeStore) InsertAssignmentComment(context.Context, store.AssignmentComment) error {
	return nil
}
func (f *fakeStore) ListChecklistItems(context.Context, string) ([]store.ChecklistItem, error) {
	return nil, nil
}
func (f *fakeStore) InsertChecklistItem(context.Context, store.ChecklistItem) error { return nil }
func (f *fakeStore) SetChecklistItemCompleted(ctx context.Context, itemID, userID string, completed bool) (bool, error) {
	if f.setChecklistItemCompleted != nil {
		return f.setChecklistItemCompleted(ctx, itemID, userID, completed)
	}
	return true, nil
}
func (f *fakeStore) ListObservers(ctx context.Context, assignmentID string) ([]store.Observer, error) {
	if f.listObserversFn != nil {
		return f.listObserversFn(ctx, assignmentID)
	}
	return nil, nil
}
func (f *fakeStore) AddObserver(context.Context, string, string, string) error { return nil }
func (f *fakeStore) RemoveObserver(context.Context, string, string) error      { return nil }

func (f *fakeStore) EscalateAssignment(ctx context.Context, rec store.EscalationRecord) error {
	if f.escalateAssignmentFn != nil {
		return f.escalateAssignmentFn(ctx, rec)
	}
	return nil
}
func (f *fakeStore) ListEscalationRecords(ctx context.Context, assignmentID string) ([]store.EscalationRecord, error) {
	if f.listEscalationRecordsFn != nil {
		return f.listEscalationRecordsFn(ctx, assignmentID)
	}
	return nil, nil
}
func (f *fakeStore) InsertEscalationJob(ctx context.Context, job store.EscalationJob) error {
	if f.insertEscalationJobFn != nil {
		return f.insertEscalationJobFn(ctx, job)
	}
	return nil
}
func (f *fakeStore) GetEscalationJob(ctx context.Context, jobID string) (store.EscalationJob, error) {
	if f.getEscalationJobFn != nil {
		return f.getEscalationJobFn(ctx, jobID)
	}
	return store.EscalationJob{}, sql.ErrNoRows
}
func (f *fakeStore) ListJobItems(ctx context.Context, jobID string) ([]store.JobItem, error) {
	if f.listJobItemsFn != nil {
		return f.listJobItemsFn(ctx, jobID)
	}
	return nil, nil
}

// fakeStore also serves as the jobs recorder in bulk escalation tests.

func (f *fakeStore) InsertJobItem(ctx context.Context, item store.JobItem) error {
	if f.insertJobItemFn != nil {
		return f.insertJobItemFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) FinishEscalationJob(ctx context.Context, jobID, status string, successful, failed int, completedAt time.Time) error {
	if f.finishEscalationJobFn != nil {
		return f.finishEscalationJobFn(ctx, jobID, status, successful, failed, completedAt)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	return New(cfg, fs, Deps{})
}

func bearerFor(t *testing.T, svc *Service, userID, name, role, unit string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:  userID,
		Name: name,
		Role: role,
		Unit: unit,
		JTI:  "jti-" + userID,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func TestCanMapsRolesToActions(t *testing.T) {
	svc := newTestService(&fakeStore{})

	if !svc.Can("viewer", rbac.ActionRead) {
		t.Fatalf("viewer should read")
	}
	if svc.Can("viewer", rbac.ActionWrite) {
		t.Fatalf("viewer must not write")
	}
	if !svc.Can("staff", rbac.ActionEscalate) {
		t.Fatalf("staff should escalate")
	}
	if svc.Can("staff", rbac.ActionAssign) {
		t.Fatalf("staff must not assign")
	}
	if !svc.Can("supervisor", rbac.ActionAssign) {
		t.Fatalf("supervisor should assign")
	}
	if svc.Can("supervisor", rbac.ActionAdmin) {
		t.Fatalf("supervisor must not admin")
	}
	if !svc.Can("admin", rbac.ActionAdmin) {
		t.Fatalf("admin should admin")
	}
	// Unknown roles fall back to viewer.
	if svc.Can("janitor", rbac.ActionWrite) {
		t.Fatalf("unknown role must not write")
	}
}

func TestSessionFromTokenCarriesUnitAndRole(t *testing.T) {
	svc := newTestService(&fakeStore{})

	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:  "u1",
		Name: "Noor",
		Role: "supervisor",
		Unit: "protocol",
		JTI:  "jti-u1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	sess, err := svc.SessionFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if sess.UserID != "u1" || sess.UserName != "Noor" {
		t.Fatalf("unexpected identity: %+v", sess)
	}
	if sess.Role != "supervisor" || sess.OrgUnit != "protocol" {
		t.Fatalf("unexpected role/unit: %+v", sess)
	}
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	fs := &fakeStore{
		isAccessTokenRevokedFn: func(_ context.Context, jti string) (bool, error) {
			return jti == "jti-u1", nil
		},
	}
	svc := newTestService(fs)

	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:  "u1",
		Name: "Noor",
		Role: "staff",
		JTI:  "jti-u1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := svc.SessionFromToken(context.Background(), token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
}

func TestSLAPayloadStates(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	if got := slaPayload(store.Assignment{}, now); got != nil {
		t.Fatalf("expected nil SLA without deadline, got %v", got)
	}

	far := now.Add(72 * time.Hour)
	payload := slaPayload(store.Assignment{SLADeadline: &far}, now)
	if payload["state"] != "on_track" {
		t.Fatalf("expected on_track, got %v", payload["state"])
	}

	soon := now.Add(2 * time.Hour)
	payload = slaPayload(store.Assignment{SLADeadline: &soon}, now)
	if payload["state"] != "at_risk" {
		t.Fatalf("expected at_risk, got %v", payload["state"])
	}
	if payload["remainingSeconds"].(int64) != 7200 {
		t.Fatalf("expected 7200 remaining, got %v", payload["remainingSeconds"])
	}

	past := now.Add(-time.Minute)
	payload = slaPayload(store.Assignment{SLADeadline: &past}, now)
	if payload["state"] != "breached" {
		t.Fatalf("expected breached, got %v", payload["state"])
	}
	if payload["remainingSeconds"].(int64) >= 0 {
		t.Fatalf("expected negative remaining, got %v", payload["remainingSeconds"])
	}
}
