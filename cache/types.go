package cache

import "time"

// Field is one cacheable data category of a cluster response.
type Field string

const (
	FieldCoordinates Field = "coordinates"
	FieldCells       Field = "cells"
	FieldAnnotation  Field = "annotation"
	FieldExpression  Field = "expression"
)

// Sentinels understood by the embedding API.
const (
	// SubsampleAll requests every cell; only this level is cached.
	SubsampleAll = "all"
	// DefaultCluster asks the server for the study's default embedding.
	DefaultCluster = ""
	// ScopeUser marks a per-user annotation. Its request identifier differs
	// from the name the server echoes back, so its values are never cached.
	ScopeUser = "user"
)

// Annotation identifies a per-cell label set.
type Annotation struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

// Params describes one cluster request.
type Params struct {
	StudyAccession      string
	Cluster             string
	Annotation          Annotation
	Subsample           string
	Consensus           string
	Genes               []string
	IsAnnotatedScatter  bool
	IsCorrelatedScatter bool
}

// Axes carries axis titles and, for 3D embeddings, aspect ratios.
type Axes struct {
	Titles  map[string]string `json:"titles,omitempty"`
	Aspects map[string]any    `json:"aspects,omitempty"`
}

// ExternalLink points at material attached to the cluster file.
type ExternalLink struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Props holds every non-bulk attribute of a cluster response. Cluster,
// Subsample and AnnotParams echo what the server actually resolved, which
// may differ from the requested sentinels.
type Props struct {
	Cluster     string     `json:"cluster"`
	Subsample   string     `json:"subsample"`
	AnnotParams Annotation `json:"annotParams"`
	Genes       []string   `json:"genes"`
	Consensus   string     `json:"consensus"`

	NumPoints               int                  `json:"numPoints"`
	Is3D                    bool                 `json:"is3D"`
	IsSubsampled            bool                 `json:"isSubsampled"`
	IsSpatial               bool                 `json:"isSpatial"`
	IsAnnotatedScatter      bool                 `json:"isAnnotatedScatter"`
	IsCorrelatedScatter     bool                 `json:"isCorrelatedScatter"`
	PointSize               float64              `json:"pointSize"`
	PointAlpha              float64              `json:"pointAlpha"`
	ShowClusterPointBorders bool                 `json:"showClusterPointBorders"`
	Description             string               `json:"description"`
	Axes                    Axes                 `json:"axes"`
	HasCoordinateLabels     bool                 `json:"hasCoordinateLabels"`
	CoordinateLabels        []map[string]any     `json:"coordinateLabels,omitempty"`
	UserSpecifiedRanges     map[string][]float64 `json:"userSpecifiedRanges,omitempty"`
	CustomColors            map[string]string    `json:"customColors,omitempty"`
	ClusterFileID           string               `json:"clusterFileId"`
	IsSplitLabelArrays      bool                 `json:"isSplitLabelArrays"`
	ExternalLink            ExternalLink         `json:"externalLink"`
}

// ClusterData holds the bulk, index-aligned per-cell arrays. A nil slice
// means the field did not travel with this response.
//
// Slices are shared by reference between the cache and every response that
// reads them. Callers must not modify them in place.
type ClusterData struct {
	X           []float64 `json:"x,omitempty"`
	Y           []float64 `json:"y,omitempty"`
	Z           []float64 `json:"z,omitempty"`
	Cells       []string  `json:"cells,omitempty"`
	Annotations []any     `json:"annotations,omitempty"`
	Expression  []float64 `json:"expression,omitempty"`
}

// Response is a cluster response: the API payload, normalized so every
// requested field is present whether it came from the network or the cache.
type Response struct {
	Props
	Data ClusterData `json:"data"`

	// AllDataFromCache is set when no network request was needed.
	AllDataFromCache bool `json:"allDataFromCache,omitempty"`

	Timing Timing `json:"-"`
}

// StepNotNeeded marks a Timing step that was skipped, as opposed to one
// that took no time.
const StepNotNeeded time.Duration = -1

// Timing is the performance envelope of a request. The cache forwards the
// Fetcher's envelope unchanged and synthesizes one when serving entirely
// from cache.
type Timing struct {
	URL           string
	RequestStart  time.Time
	Backend       time.Duration
	Parse         time.Duration
	IsClientCache bool
}
