package app

import (
	"context"
	"net/http"
	"testing"

	"intldossier/api/internal/store"
)

func TestCreateDossierValidatesKindAndName(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, "s1", "Amal", "staff", "")

	rr := doRequest(t, server, http.MethodPost, "/api/dossiers",
		`{"kind":"planet","nameEn":"Mars"}`, bearer)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}

	rr = doRequest(t, server, http.MethodPost, "/api/dossiers",
		`{"kind":"country","nameEn":"","nameAr":""}`, bearer)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing names, got %d", rr.Code)
	}
}

func TestCreateDossierAppliesDefaults(t *testing.T) {
	var inserted store.Dossier
	fs := &fakeStore{
		insertDossierFn: func(_ context.Context, d store.Dossier) error {
			inserted = d
			return nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/dossiers",
		`{"kind":"country","nameEn":"Kingdom of Jordan","nameAr":"المملكة الأردنية"}`,
		bearerFor(t, svc, "s1", "Amal", "staff", ""))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if inserted.Status != "active" || inserted.Sensitivity != "internal" {
		t.Fatalf("expected default status/sensitivity, got %q/%q", inserted.Status, inserted.Sensitivity)
	}
	if inserted.CreatedBy != "s1" {
		t.Fatalf("expected creator from session, got %q", inserted.CreatedBy)
	}
	payload := decodePayload(t, rr)
	if payload["nameAr"] != "المملكة الأردنية" {
		t.Fatalf("expected Arabic name round-tripped, got %v", payload["nameAr"])
	}
}

func TestCreateDossierViewerForbidden(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/dossiers",
		`{"kind":"country","nameEn":"Jordan"}`, bearerFor(t, svc, "v1", "Lena", "viewer", ""))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestGetDossierUnknownReturnsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodGet, "/api/dossiers/dos_nope", "",
		bearerFor(t, svc, "v1", "Lena", "viewer", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUpdateDossierRecordsFieldChanges(t *testing.T) {
	var updated store.Dossier
	fs := &fakeStore{
		getDossierFn: func(_ context.Context, id string) (store.Dossier, error) {
			return store.Dossier{ID: id, Kind: "country", NameEN: "Jordan", Status: "active", Sensitivity: "internal"}, nil
		},
		updateDossierFn: func(_ context.Context, d store.Dossier) error {
			updated = d
			return nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPut, "/api/dossiers/dos_1",
		`{"nameEn":"Kingdom of Jordan"}`, bearerFor(t, svc, "s1", "Amal", "staff", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if updated.NameEN != "Kingdom of Jordan" {
		t.Fatalf("expected updated name, got %q", updated.NameEN)
	}
	if updated.Kind != "country" {
		t.Fatalf("unchanged fields must survive the merge, got kind %q", updated.Kind)
	}
	if updated.UpdatedBy != "s1" {
		t.Fatalf("expected updater from session, got %q", updated.UpdatedBy)
	}
}

func TestArchiveDossier(t *testing.T) {
	archived := ""
	fs := &fakeStore{
		getDossierFn: func(_ context.Context, id string) (store.Dossier, error) {
			return store.Dossier{ID: id, Kind: "country", NameEN: "Jordan", Status: "active"}, nil
		},
		archiveDossierFn: func(_ context.Context, id, updatedBy string) error {
			archived = id
			return nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/dossiers/dos_1/archive", "",
		bearerFor(t, svc, "s1", "Amal", "staff", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if archived != "dos_1" {
		t.Fatalf("expected archive call for dos_1, got %q", archived)
	}
}

func TestCheckDuplicatesFlagsHighTrigramScores(t *testing.T) {
	fs := &fakeStore{
		findSimilarDossiersFn: func(_ context.Context, nameEN, nameAR, excludeID string, limit int) ([]store.Dossier, []float64, error) {
			return []store.Dossier{
				{ID: "dos_9", Kind: "country", NameEN: "Kingdom of Jordan", Status: "active"},
				{ID: "dos_8", Kind: "country", NameEN: "Jordan River Commission", Status: "active"},
			}, []float64{0.91, 0.42}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodPost, "/api/dossiers/check-duplicates",
		`{"nameEn":"Jordan Kingdom"}`, bearerFor(t, svc, "s1", "Amal", "staff", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	candidates, _ := payload["candidates"].([]any)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	byID := map[string]map[string]any{}
	for _, raw := range candidates {
		entry, _ := raw.(map[string]any)
		id, _ := entry["id"].(string)
		byID[id] = entry
	}
	if byID["dos_9"]["likelyDuplicate"] != true {
		t.Fatalf("expected dos_9 flagged, got %v", byID["dos_9"])
	}
	if byID["dos_8"]["likelyDuplicate"] != false {
		t.Fatalf("expected dos_8 below threshold, got %v", byID["dos_8"])
	}
}

func TestDossierEventsRouteWithoutEventLogReturnsEmpty(t *testing.T) {
	fs := &fakeStore{
		getDossierFn: func(_ context.Context, id string) (store.Dossier, error) {
			return store.Dossier{ID: id, Kind: "country", NameEN: "Jordan"}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodGet, "/api/dossiers/dos_1/events", "",
		bearerFor(t, svc, "v1", "Lena", "viewer", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	events, ok := payload["events"].([]any)
	if !ok || len(events) != 0 {
		t.Fatalf("expected empty event list, got %v", payload["events"])
	}
}
