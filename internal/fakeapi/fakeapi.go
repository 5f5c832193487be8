// Package fakeapi serves a synthetic cluster API with the same URL layout,
// query parameters and JSON shape as the portal. It backs the remote tests,
// the examples and the clusterbench command.
package fakeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/IvanBrykalov/clustercache/cache"
	"github.com/IvanBrykalov/clustercache/internal/util"
)

// Embedding describes one synthetic cluster file.
type Embedding struct {
	Name   string
	Points int
	Is3D   bool
}

// Study describes one synthetic study. The first embedding is the default,
// and so is the first annotation.
type Study struct {
	Accession   string
	Embeddings  []Embedding
	Annotations []cache.Annotation
	// UserAnnotations maps a user annotation id to its display name.
	UserAnnotations map[string]string
}

// DemoStudy is a small study used by the examples and the bench command.
func DemoStudy(points int) Study {
	return Study{
		Accession: "SCP1",
		Embeddings: []Embedding{
			{Name: "UMAP", Points: points},
			{Name: "tSNE", Points: points},
			{Name: "PCA 3D", Points: points, Is3D: true},
		},
		Annotations: []cache.Annotation{
			{Name: "cell_type", Type: "group", Scope: "study"},
			{Name: "sample", Type: "group", Scope: "study"},
			{Name: "louvain", Type: "group", Scope: "cluster"},
			{Name: "n_genes", Type: "numeric", Scope: "study"},
		},
		UserAnnotations: map[string]string{"6543a1b2": "my selection"},
	}
}

// Options configures a Server.
type Options struct {
	// Encoding compresses response bodies: "", "gzip" or "zstd".
	Encoding string
	// Latency is added to every request.
	Latency time.Duration
	Logger  *zerolog.Logger
}

// Server is the synthetic API. Its handler is safe for concurrent use.
type Server struct {
	studies map[string]Study
	opt     Options
	log     zerolog.Logger
	router  chi.Router
	zenc    *zstd.Encoder

	requests atomic.Int64

	mu       sync.Mutex
	failures []int // statuses to answer with, one per upcoming request
}

// New builds a Server for the given studies.
func New(opt Options, studies ...Study) (*Server, error) {
	s := &Server{studies: make(map[string]Study, len(studies)), opt: opt, log: zerolog.Nop()}
	for _, st := range studies {
		s.studies[st.Accession] = st
	}
	if opt.Logger != nil {
		s.log = opt.Logger.With().Str("component", "fakeapi").Logger()
	}
	switch opt.Encoding {
	case "", "gzip":
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("fakeapi: create zstd encoder: %w", err)
		}
		s.zenc = enc
	default:
		return nil, fmt.Errorf("fakeapi: unsupported encoding %q", opt.Encoding)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/studies/{accession}/clusters/{cluster}", s.clusterHandler)
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Requests returns how many cluster requests were served.
func (s *Server) Requests() int64 { return s.requests.Load() }

// FailNext makes the next len(statuses) cluster requests answer with the
// given statuses, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	s.failures = append(s.failures, statuses...)
	s.mu.Unlock()
}

func (s *Server) nextFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) == 0 {
		return 0
	}
	st := s.failures[0]
	s.failures = s.failures[1:]
	return st
}

func (s *Server) clusterHandler(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if s.opt.Latency > 0 {
		time.Sleep(s.opt.Latency)
	}
	if st := s.nextFailure(); st != 0 {
		s.writeError(w, st, "injected failure")
		return
	}

	study, ok := s.studies[chi.URLParam(r, "accession")]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Study not found")
		return
	}
	body, status, err := study.cluster(chi.URLParam(r, "cluster"), r.URL.Query())
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch s.opt.Encoding {
	case "zstd":
		w.Header().Set("Content-Encoding", "zstd")
		w.Write(s.zenc.EncodeAll(buf.Bytes(), nil))
	case "gzip":
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write(buf.Bytes())
		zw.Close()
	default:
		w.Write(buf.Bytes())
	}
}

// ---- synthetic data ----

// clusterError carries the status the portal would answer with.
type clusterError struct {
	status int
	msg    string
}

func (e *clusterError) Error() string { return e.msg }

func notFound(format string, args ...any) error {
	return &clusterError{status: http.StatusNotFound, msg: fmt.Sprintf(format, args...)}
}

func (st Study) cluster(name string, q map[string][]string) (map[string]any, int, error) {
	body, err := st.build(name, q)
	if err != nil {
		if ce, ok := err.(*clusterError); ok {
			return nil, ce.status, err
		}
		return nil, http.StatusInternalServerError, err
	}
	return body, http.StatusOK, nil
}

func first(q map[string][]string, k string) string {
	if v := q[k]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (st Study) build(name string, q map[string][]string) (map[string]any, error) {
	var emb Embedding
	switch {
	case name == "" || name == "_default":
		if len(st.Embeddings) == 0 {
			return nil, notFound("No default cluster exists")
		}
		emb = st.Embeddings[0]
	default:
		found := false
		for _, e := range st.Embeddings {
			if e.Name == name {
				emb, found = e, true
				break
			}
		}
		if !found {
			return nil, notFound("No cluster named %s could be found", name)
		}
	}

	annot, err := st.annotation(cache.Annotation{
		Name:  first(q, "annotation_name"),
		Type:  first(q, "annotation_type"),
		Scope: first(q, "annotation_scope"),
	})
	if err != nil {
		return nil, err
	}

	n := emb.Points
	subsample := first(q, "subsample")
	if subsample != "" && subsample != cache.SubsampleAll {
		k, err := strconv.Atoi(subsample)
		if err != nil || k <= 0 {
			return nil, notFound("Invalid subsample %q", subsample)
		}
		if k < n {
			n = k
		}
	} else {
		subsample = cache.SubsampleAll
	}

	var genes []string
	if g := first(q, "gene"); g != "" {
		genes = strings.Split(g, ",")
	}
	consensus := first(q, "consensus")
	annotated := first(q, "is_annotated_scatter") != ""
	correlated := first(q, "is_correlated_scatter") != ""
	if correlated && len(genes) != 2 {
		return nil, notFound("Correlated scatter plots require specifying 2 valid genes")
	}

	fields := map[string]bool{"coordinates": true, "cells": true, "annotation": true, "expression": true}
	if f := first(q, "fields"); f != "" {
		fields = map[string]bool{}
		for _, x := range strings.Split(f, ",") {
			fields[x] = true
		}
	}

	data := map[string]any{}
	seed := util.Fnv64a(st.Accession + "/" + emb.Name)
	if fields["coordinates"] {
		x, y := make([]float64, n), make([]float64, n)
		for i := 0; i < n; i++ {
			x[i], y[i] = coord(seed, i, 0), coord(seed, i, 1)
		}
		switch {
		case annotated:
			for i := range x {
				x[i] = float64(i % 7)
			}
		case correlated:
			x, y = expression(genes[:1], "", n), expression(genes[1:], "", n)
		}
		data["x"], data["y"] = x, y
		if emb.Is3D && !annotated && !correlated {
			z := make([]float64, n)
			for i := range z {
				z[i] = coord(seed, i, 2)
			}
			data["z"] = z
		}
	}
	if fields["cells"] {
		cells := make([]string, n)
		for i := range cells {
			cells[i] = "cell_" + strconv.Itoa(i)
		}
		data["cells"] = cells
	}
	if fields["annotation"] {
		values := make([]any, n)
		for i := range values {
			if annot.Type == "numeric" {
				values[i] = float64(i % 100)
			} else {
				values[i] = annot.Name + "_" + strconv.Itoa(i%5)
			}
		}
		data["annotations"] = values
	}
	if fields["expression"] && len(genes) > 0 && !correlated {
		data["expression"] = expression(genes, consensus, n)
	}

	var cons any
	if consensus != "" {
		cons = consensus
	}
	if genes == nil {
		genes = []string{}
	}
	return map[string]any{
		"data":                    data,
		"cluster":                 emb.Name,
		"subsample":               subsample,
		"annotParams":             annot,
		"genes":                   genes,
		"consensus":               cons,
		"numPoints":               emb.Points,
		"is3D":                    emb.Is3D,
		"isSubsampled":            subsample != cache.SubsampleAll,
		"isSpatial":               false,
		"isAnnotatedScatter":      annotated,
		"isCorrelatedScatter":     correlated,
		"pointSize":               3,
		"pointAlpha":              1,
		"showClusterPointBorders": false,
		"description":             "synthetic " + emb.Name,
		"axes":                    map[string]any{"titles": map[string]string{"x": "X", "y": "Y", "z": "Z", "magnitude": "Expression"}},
		"hasCoordinateLabels":     false,
		"coordinateLabels":        []any{},
		"customColors":            map[string]string{},
		"clusterFileId":           strconv.FormatUint(seed, 16),
		"isSplitLabelArrays":      false,
		"externalLink":            map[string]string{"url": "", "title": "", "description": ""},
	}, nil
}

// annotation resolves the requested annotation the way the portal does:
// blank means the default, user annotations come back under their display
// name, anything else must exist.
func (st Study) annotation(req cache.Annotation) (cache.Annotation, error) {
	if req.Name == "" {
		if len(st.Annotations) == 0 {
			return cache.Annotation{}, notFound("Annotation \"\" could not be found")
		}
		return st.Annotations[0], nil
	}
	if req.Scope == cache.ScopeUser {
		display, ok := st.UserAnnotations[req.Name]
		if !ok {
			return cache.Annotation{}, notFound("Annotation %q could not be found", req.Name)
		}
		return cache.Annotation{Name: display, Type: "group", Scope: cache.ScopeUser}, nil
	}
	for _, a := range st.Annotations {
		if a.Name == req.Name && (req.Scope == "" || a.Scope == req.Scope) {
			return a, nil
		}
	}
	return cache.Annotation{}, notFound("Annotation %q could not be found", req.Name)
}

// coord is a deterministic pseudo-random coordinate in [-10, 10).
func coord(seed uint64, i, axis int) float64 {
	h := util.Fnv64a(strconv.FormatUint(seed, 36) + ":" + strconv.Itoa(i) + ":" + strconv.Itoa(axis))
	return float64(h%20000)/1000 - 10
}

func expression(genes []string, consensus string, n int) []float64 {
	out := make([]float64, n)
	seed := util.Fnv64a(strings.Join(genes, ",") + "/" + consensus)
	for i := range out {
		out[i] = float64((seed>>uint(i%32))%1000) / 100
	}
	return out
}
