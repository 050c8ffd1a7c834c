package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"intldossier/api/internal/config"
	"intldossier/api/internal/hierarchy"
	"intldossier/api/internal/jobs"
	"intldossier/api/internal/store"
)

func doRequest(t *testing.T, server *HTTPServer, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("{}")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodePayload(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

// chainSource builds a hierarchyEntryFn from a reports-to map. Users absent
// from the map have no hierarchy row.
func chainSource(edges map[string]string) func(context.Context, string) (hierarchy.Step, bool, error) {
	return func(_ context.Context, userID string) (hierarchy.Step, bool, error) {
		reportsTo, ok := edges[userID]
		if !ok {
			return hierarchy.Step{}, false, nil
		}
		return hierarchy.Step{
			UserID:      userID,
			DisplayName: "Member " + userID,
			ReportsToID: reportsTo,
		}, true, nil
	}
}

func TestEscalateUsesNearestSuperior(t *testing.T) {
	var recorded []store.EscalationRecord
	fs := &fakeStore{
		getAssignmentFn: func(_ context.Context, id string) (store.Assignment, error) {
			return store.Assignment{ID: id, DossierID: "dos_1", Title: "Visa framework review", AssigneeID: "u1"}, nil
		},
		hierarchyEntryFn: chainSource(map[string]string{"u1": "u2", "u2": "u3", "u3": ""}),
		escalateAssignmentFn: func(_ context.Context, rec store.EscalationRecord) error {
			recorded = append(recorded, rec)
			return nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate",
		`{"assignmentId":"asg_1","reason":"SLA at risk"}`, bearerFor(t, svc, "sup1", "Huda", "staff", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["escalatedToId"] != "u2" {
		t.Fatalf("expected nearest superior u2, got %v", payload["escalatedToId"])
	}
	if len(recorded) != 1 {
		t.Fatalf("expected one escalation record, got %d", len(recorded))
	}
	if recorded[0].EscalatedToID != "u2" || recorded[0].EscalatedBy != "sup1" {
		t.Fatalf("unexpected record: %+v", recorded[0])
	}
	if recorded[0].Reason != "SLA at risk" {
		t.Fatalf("unexpected reason: %q", recorded[0].Reason)
	}
}

func TestEscalateOutsideHierarchyReturnsNoPath(t *testing.T) {
	fs := &fakeStore{
		getAssignmentFn: func(_ context.Context, id string) (store.Assignment, error) {
			return store.Assignment{ID: id, AssigneeID: "external"}, nil
		},
		hierarchyEntryFn: chainSource(map[string]string{}),
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate",
		`{"assignmentId":"asg_1","reason":"stalled"}`, bearerFor(t, svc, "sup1", "Huda", "staff", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "NO_ESCALATION_PATH" {
		t.Fatalf("expected NO_ESCALATION_PATH, got %v", payload["code"])
	}
}

func TestEscalateTopOfChainReturnsNoPath(t *testing.T) {
	fs := &fakeStore{
		getAssignmentFn: func(_ context.Context, id string) (store.Assignment, error) {
			return store.Assignment{ID: id, AssigneeID: "boss"}, nil
		},
		hierarchyEntryFn: chainSource(map[string]string{"boss": ""}),
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate",
		`{"assignmentId":"asg_1","reason":"stalled"}`, bearerFor(t, svc, "sup1", "Huda", "staff", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "NO_ESCALATION_PATH" {
		t.Fatalf("expected NO_ESCALATION_PATH, got %v", payload["code"])
	}
}

func TestEscalateCycleReturnsCircularReference(t *testing.T) {
	fs := &fakeStore{
		getAssignmentFn: func(_ context.Context, id string) (store.Assignment, error) {
			return store.Assignment{ID: id, AssigneeID: "u1"}, nil
		},
		hierarchyEntryFn: chainSource(map[string]string{"u1": "u2", "u2": "u1"}),
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate",
		`{"assignmentId":"asg_1","reason":"stalled"}`, bearerFor(t, svc, "sup1", "Huda", "staff", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["code"] != "CIRCULAR_REFERENCE" {
		t.Fatalf("expected CIRCULAR_REFERENCE, got %v", payload["code"])
	}
	message, _ := payload["error"].(string)
	if !strings.Contains(strings.ToLower(message), "circular") {
		t.Fatalf("expected message naming the cycle, got %q", message)
	}
}

func TestEscalateViewerForbidden(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate",
		`{"assignmentId":"asg_1"}`, bearerFor(t, svc, "v1", "Lena", "viewer", ""))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestEscalateTwiceRecordsTwoEscalations(t *testing.T) {
	var recorded []store.EscalationRecord
	fs := &fakeStore{
		getAssignmentFn: func(_ context.Context, id string) (store.Assignment, error) {
			return store.Assignment{ID: id, AssigneeID: "u1"}, nil
		},
		hierarchyEntryFn: chainSource(map[string]string{"u1": "u2", "u2": ""}),
		escalateAssignmentFn: func(_ context.Context, rec store.EscalationRecord) error {
			recorded = append(recorded, rec)
			return nil
		},
	}
	svc := newTestService(fs)
	sess := Session{UserID: "sup1", Role: "staff"}

	if _, err := svc.Escalate(context.Background(), "asg_1", "first", sess); err != nil {
		t.Fatalf("first escalation: %v", err)
	}
	if _, err := svc.Escalate(context.Background(), "asg_1", "second", sess); err != nil {
		t.Fatalf("second escalation: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("expected two records, got %d", len(recorded))
	}
	if recorded[0].ID == recorded[1].ID {
		t.Fatalf("expected distinct escalation ids")
	}
}

func TestBulkEscalationAccountsEveryItem(t *testing.T) {
	var (
		mu       sync.Mutex
		items    []store.JobItem
		finished = make(chan struct{})

		finalStatus     string
		finalSuccessful int
		finalFailed     int
	)

	fs := &fakeStore{
		getAssignmentFn: func(_ context.Context, id string) (store.Assignment, error) {
			if id == "asg_missing" {
				return store.Assignment{}, sql.ErrNoRows
			}
			return store.Assignment{ID: id, AssigneeID: "u1"}, nil
		},
		hierarchyEntryFn: chainSource(map[string]string{"u1": "u2", "u2": ""}),
		insertJobItemFn: func(_ context.Context, item store.JobItem) error {
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
			return nil
		},
		finishEscalationJobFn: func(_ context.Context, jobID, status string, successful, failed int, _ time.Time) error {
			finalStatus = status
			finalSuccessful = successful
			finalFailed = failed
			close(finished)
			return nil
		},
	}

	cfg := config.Config{JWTSecret: "test-secret", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}
	svc := New(cfg, fs, Deps{Runner: jobs.NewRunner(2, fs)})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate-bulk",
		`{"assignmentIds":["asg_1","asg_missing","asg_2"],"reason":"quarterly sweep"}`,
		bearerFor(t, svc, "sup1", "Huda", "supervisor", ""))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["totalItems"].(float64) != 3 {
		t.Fatalf("expected 3 total items, got %v", payload["totalItems"])
	}

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("bulk job did not finish")
	}

	if finalStatus != jobs.StatusCompleted {
		t.Fatalf("expected completed even with failures, got %s", finalStatus)
	}
	if finalSuccessful != 2 || finalFailed != 1 {
		t.Fatalf("expected 2 successful / 1 failed, got %d / %d", finalSuccessful, finalFailed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(items) != 3 {
		t.Fatalf("expected 3 recorded items, got %d", len(items))
	}
	for _, item := range items {
		if item.AssignmentID == "asg_missing" {
			if item.Success {
				t.Fatalf("missing assignment should fail")
			}
			if item.Error != "assignment not found" {
				t.Fatalf("expected item error, got %q", item.Error)
			}
		} else {
			if !item.Success || item.EscalationID == nil {
				t.Fatalf("expected success with escalation id: %+v", item)
			}
		}
	}
}

func TestBulkEscalationRejectsEmptyList(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/waiting-queue-escalation/escalate-bulk",
		`{"assignmentIds":[],"reason":"sweep"}`, bearerFor(t, svc, "sup1", "Huda", "supervisor", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestJobStatusDerivesCountsWhileProcessing(t *testing.T) {
	escID := "esc_1"
	fs := &fakeStore{
		getEscalationJobFn: func(_ context.Context, jobID string) (store.EscalationJob, error) {
			return store.EscalationJob{ID: jobID, TotalItems: 3, Status: "processing"}, nil
		},
		listJobItemsFn: func(context.Context, string) ([]store.JobItem, error) {
			return []store.JobItem{
				{JobID: "job_1", Position: 0, AssignmentID: "asg_1", Success: true, EscalationID: &escID},
				{JobID: "job_1", Position: 1, AssignmentID: "asg_2", Error: "assignment not found"},
			}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodGet, "/api/waiting-queue-escalation/status/job_1", "",
		bearerFor(t, svc, "sup1", "Huda", "staff", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["successfulItems"].(float64) != 1 || payload["failedItems"].(float64) != 1 {
		t.Fatalf("expected derived counts 1/1, got %v/%v", payload["successfulItems"], payload["failedItems"])
	}
	results, _ := payload["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestJobStatusUnknownJobReturnsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodGet, "/api/waiting-queue-escalation/status/job_nope", "",
		bearerFor(t, svc, "sup1", "Huda", "staff", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHierarchyRoutesRequireAdmin(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, "sup1", "Huda", "supervisor", "")

	rr := doRequest(t, server, http.MethodPut, "/api/hierarchy/u1",
		`{"reportsToId":"u2"}`, bearer)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for PUT, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/hierarchy/u1/path", "", bearer)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for path, got %d", rr.Code)
	}
}

func TestSetHierarchyEdgeRejectsSelfReference(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPut, "/api/hierarchy/u1",
		`{"reportsToId":"u1"}`, bearerFor(t, svc, "adm", "Root", "admin", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "CIRCULAR_REFERENCE" {
		t.Fatalf("expected CIRCULAR_REFERENCE, got %v", payload["code"])
	}
}

func TestEscalationPathReturnsChainNearestFirst(t *testing.T) {
	fs := &fakeStore{
		hierarchyEntryFn: chainSource(map[string]string{"u1": "u2", "u2": "u3", "u3": ""}),
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodGet, "/api/hierarchy/u1/path", "",
		bearerFor(t, svc, "adm", "Root", "admin", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	path, _ := payload["path"].([]any)
	if len(path) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(path))
	}
	first, _ := path[0].(map[string]any)
	second, _ := path[1].(map[string]any)
	if first["userId"] != "u2" || second["userId"] != "u3" {
		t.Fatalf("expected u2 then u3, got %v then %v", first["userId"], second["userId"])
	}
	if first["level"].(float64) != 1 {
		t.Fatalf("expected level 1 first, got %v", first["level"])
	}
}
