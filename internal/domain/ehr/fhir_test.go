package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func mustBundle(t *testing.T, raw string) *fhirBundle {
	t.Helper()
	var b fhirBundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("bad test bundle: %v", err)
	}
	return &b
}

func TestParseVitals_QuantityWithUnit(t *testing.T) {
	bundle := mustBundle(t, `{"entry":[{"resource":{
		"resourceType":"Observation",
		"id":"obs-1",
		"code":{"text":"Body Temperature"},
		"valueQuantity":{"value":98.6,"unit":"F"},
		"effectiveDateTime":"2026-01-15T08:30:00Z"
	}}]}`)

	recs := parseVitals(bundle)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.ID != "obs-1" || r.Name != "Body Temperature" {
		t.Errorf("identity: got %+v", r)
	}
	if r.Value != "98.6" {
		t.Errorf("value must render without binary float artifacts: got %q", r.Value)
	}
	if r.Unit == nil || *r.Unit != "F" {
		t.Errorf("unit: got %v", r.Unit)
	}
	if r.RecordedAt == nil || *r.RecordedAt != "2026-01-15T08:30:00Z" {
		t.Errorf("recorded_at: got %v", r.RecordedAt)
	}
}

func TestParseVitals_ComponentFallback(t *testing.T) {
	bundle := mustBundle(t, `{"entry":[{"resource":{
		"resourceType":"Observation",
		"id":"bp-1",
		"code":{"coding":[{"display":"Blood Pressure"}]},
		"component":[
			{"valueQuantity":{"value":120,"unit":"mmHg"}},
			{"valueQuantity":{"value":80,"unit":"mmHg"}}
		],
		"issued":"2026-01-10T00:00:00Z"
	}}]}`)

	recs := parseVitals(bundle)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Name != "Blood Pressure" {
		t.Errorf("name should fall back to coding display: got %q", r.Name)
	}
	if r.Value != "120" {
		t.Errorf("value should come from the first component: got %q", r.Value)
	}
	if r.RecordedAt == nil || *r.RecordedAt != "2026-01-10T00:00:00Z" {
		t.Errorf("recorded_at should fall back to issued: got %v", r.RecordedAt)
	}
}

func TestParseVitals_MissingEverything(t *testing.T) {
	bundle := mustBundle(t, `{"entry":[{"resource":{"resourceType":"Observation","id":"obs-2","code":{}}}]}`)

	recs := parseVitals(bundle)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Name != "Observation" {
		t.Errorf("name placeholder: got %q", r.Name)
	}
	if r.Value != "n/a" {
		t.Errorf("value placeholder: got %q", r.Value)
	}
	if r.Unit != nil {
		t.Errorf("unit must be null when absent: got %v", *r.Unit)
	}
	if r.RecordedAt != nil {
		t.Errorf("recorded_at must be null when absent: got %v", *r.RecordedAt)
	}
}

func TestParseVitals_SkipsNonObservationResources(t *testing.T) {
	bundle := mustBundle(t, `{"entry":[
		{"resource":{"resourceType":"OperationOutcome","id":"warn-1"}},
		{"resource":{"resourceType":"Observation","id":"obs-1","code":{"text":"Heart Rate"},"valueQuantity":{"value":72}}}
	]}`)

	recs := parseVitals(bundle)
	if len(recs) != 1 {
		t.Fatalf("expected only the observation, got %d records", len(recs))
	}
	if recs[0].ID != "obs-1" {
		t.Errorf("wrong record survived: %+v", recs[0])
	}
}

func TestParseVitals_EmptyBundle(t *testing.T) {
	recs := parseVitals(mustBundle(t, `{}`))
	if recs == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestResolvePatientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Patient" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.URL.Query().Get("_count") != "1" {
			t.Errorf("_count: got %q", r.URL.Query().Get("_count"))
		}
		if r.Header.Get("Authorization") != "Bearer at-1" {
			t.Errorf("authorization: got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"entry":[{"resource":{"id":"patient-7","resourceType":"Patient"}}]}`))
	}))
	defer srv.Close()

	c := NewVitalsClient()
	if got := c.ResolvePatientID(context.Background(), "at-1", srv.URL); got != "patient-7" {
		t.Errorf("patient id: got %q", got)
	}
}

func TestResolvePatientID_SwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewVitalsClient()
	if got := c.ResolvePatientID(context.Background(), "bad", srv.URL); got != "" {
		t.Errorf("expected empty id on upstream failure, got %q", got)
	}
	if got := c.ResolvePatientID(context.Background(), "at", "http://127.0.0.1:1"); got != "" {
		t.Errorf("expected empty id on network failure, got %q", got)
	}
}

func TestFetchVitals_QueryAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("category") != "vital-signs" || q.Get("patient") != "patient-7" {
			t.Errorf("query: got %v", q)
		}
		if q.Get("_count") != "10" || q.Get("_sort") != "-date" {
			t.Errorf("paging: got %v", q)
		}
		w.Write([]byte(`{"entry":[{"resource":{"resourceType":"Observation","id":"o1","code":{"text":"Heart Rate"},"valueQuantity":{"value":72}}}]}`))
	}))
	defer srv.Close()

	c := NewVitalsClient()
	recs, err := c.FetchVitals(context.Background(), "at", srv.URL, "patient-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].Value != "72" {
		t.Errorf("records: got %+v", recs)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	_, err = c.FetchVitals(context.Background(), "at", bad.URL, "patient-7")
	var upstream *UpstreamFetchError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusBadGateway {
		t.Errorf("expected UpstreamFetchError with 502, got %v", err)
	}
}
