package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Options{}, DemoStudy(50))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func get(t *testing.T, s *Server, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: decode: %v (%s)", target, err, rec.Body.String())
	}
	return rec.Code, body
}

func TestCluster_DefaultResolution(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	code, body := get(t, s, "/studies/SCP1/clusters/_default")
	if code != http.StatusOK {
		t.Fatalf("status %d: %v", code, body)
	}
	if body["cluster"] != "UMAP" || body["subsample"] != "all" {
		t.Fatalf("defaults not resolved: cluster=%v subsample=%v", body["cluster"], body["subsample"])
	}
	annot := body["annotParams"].(map[string]any)
	if annot["name"] != "cell_type" || annot["scope"] != "study" {
		t.Fatalf("default annotation: %v", annot)
	}
	data := body["data"].(map[string]any)
	for _, k := range []string{"x", "y", "cells", "annotations"} {
		if len(data[k].([]any)) != 50 {
			t.Fatalf("%s: want 50 points", k)
		}
	}
	if _, ok := data["expression"]; ok {
		t.Fatal("no expression without genes")
	}
	if s.Requests() != 1 {
		t.Fatalf("requests: %d", s.Requests())
	}
}

func TestCluster_Fields(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	_, body := get(t, s, "/studies/SCP1/clusters/tSNE?annotation_name=sample&annotation_scope=study&gene=CD4&fields=annotation,expression")
	data := body["data"].(map[string]any)
	if _, ok := data["x"]; ok {
		t.Fatal("coordinates were not requested")
	}
	if len(data["annotations"].([]any)) != 50 || len(data["expression"].([]any)) != 50 {
		t.Fatalf("requested fields missing: %v", data)
	}
	if g := body["genes"].([]any); len(g) != 1 || g[0] != "CD4" {
		t.Fatalf("genes: %v", g)
	}
}

func TestCluster_SubsampleAndUserAnnotation(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	_, body := get(t, s, "/studies/SCP1/clusters/UMAP?subsample=20&annotation_name=6543a1b2&annotation_type=group&annotation_scope=user")
	if body["subsample"] != "20" || body["isSubsampled"] != true {
		t.Fatalf("subsample: %v", body["subsample"])
	}
	if n := len(body["data"].(map[string]any)["x"].([]any)); n != 20 {
		t.Fatalf("want 20 points, got %d", n)
	}
	if annot := body["annotParams"].(map[string]any); annot["name"] != "my selection" {
		t.Fatalf("user annotation must come back under its display name: %v", annot)
	}
}

func TestCluster_Errors(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	for _, target := range []string{
		"/studies/SCP9/clusters/UMAP",
		"/studies/SCP1/clusters/nope",
		"/studies/SCP1/clusters/UMAP?annotation_name=nope",
		"/studies/SCP1/clusters/UMAP?gene=CD4&is_correlated_scatter=true",
	} {
		code, body := get(t, s, target)
		if code != http.StatusNotFound || body["error"] == nil {
			t.Errorf("%s: status %d body %v", target, code, body)
		}
	}

	s.FailNext(http.StatusServiceUnavailable)
	if code, body := get(t, s, "/studies/SCP1/clusters/UMAP"); code != http.StatusServiceUnavailable || body["error"] != "injected failure" {
		t.Fatalf("injected failure: %d %v", code, body)
	}
	if code, _ := get(t, s, "/studies/SCP1/clusters/UMAP"); code != http.StatusOK {
		t.Fatalf("failure must be consumed, got %d", code)
	}
}

func TestCluster_Deterministic(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	_, a := get(t, s, "/studies/SCP1/clusters/UMAP?fields=coordinates")
	_, b := get(t, s, "/studies/SCP1/clusters/UMAP?fields=coordinates")
	xa := a["data"].(map[string]any)["x"].([]any)
	xb := b["data"].(map[string]any)["x"].([]any)
	for i := range xa {
		if xa[i] != xb[i] {
			t.Fatalf("coordinates differ at %d", i)
		}
	}
}

func TestNew_UnsupportedEncoding(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Encoding: "br"}); err == nil {
		t.Fatal("want error")
	}
}
