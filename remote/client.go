// Package remote implements cache.Fetcher over the portal's HTTP cluster API:
//
//	GET {base}/studies/{accession}/clusters/{cluster}?annotation_name=...
//
// Responses may be gzip or zstd encoded. Server errors and transport
// failures are retried with exponential backoff; 4xx answers are not.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/IvanBrykalov/clustercache/cache"
)

// ErrEmptyBaseURL is returned by New when no API base URL is given.
var ErrEmptyBaseURL = errors.New("remote: empty base URL")

// DefaultClusterName is the path segment asking the server for the study's
// default embedding.
const DefaultClusterName = "_default"

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string // "error" member of the JSON body, or the status text
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: GET %s: %d %s", e.URL, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options configures a Client. Zero values are safe; defaults are applied
// in New():
//   - nil HTTPClient       => &http.Client{Timeout: Timeout}
//   - Timeout <= 0         => 30s per attempt
//   - MaxTries == 0        => 3 (1 disables retry)
//   - InitialInterval <= 0 => 200ms
//   - MaxInterval <= 0     => 5s
//   - nil Logger           => zerolog.Nop()
//   - nil Tracer           => noop tracer
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration

	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	UserAgent string
	Logger    *zerolog.Logger
	Tracer    trace.Tracer
}

// Client talks to the cluster endpoint. It implements cache.Fetcher and
// cache.URLBuilder and is safe for concurrent use.
type Client struct {
	base string
	hc   *http.Client
	opt  Options
	log  zerolog.Logger
	trc  trace.Tracer
	zstd *zstd.Decoder
}

// New returns a Client for the API rooted at baseURL, e.g.
// "https://portal.example/single_cell/api/v1".
func New(baseURL string, opt Options) (*Client, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: base URL %q is not absolute", baseURL)
	}

	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.MaxTries == 0 {
		opt.MaxTries = 3
	}
	if opt.InitialInterval <= 0 {
		opt.InitialInterval = 200 * time.Millisecond
	}
	if opt.MaxInterval <= 0 {
		opt.MaxInterval = 5 * time.Second
	}
	if opt.UserAgent == "" {
		opt.UserAgent = "clustercache"
	}
	hc := opt.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opt.Timeout}
	}

	log := zerolog.Nop()
	if opt.Logger != nil {
		log = opt.Logger.With().Str("component", "remote").Logger()
	}
	trc := opt.Tracer
	if trc == nil {
		trc = noop.NewTracerProvider().Tracer("clustercache/remote")
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("remote: create zstd decoder: %w", err)
	}

	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
		opt:  opt,
		log:  log,
		trc:  trc,
		zstd: dec,
	}, nil
}

// Close releases the decoder resources.
func (c *Client) Close() { c.zstd.Close() }

// ClusterURL returns the request URL for p restricted to fields. A nil or
// empty fields asks for everything.
func (c *Client) ClusterURL(p cache.Params, fields []cache.Field) string {
	cluster := p.Cluster
	if cluster == cache.DefaultCluster {
		cluster = DefaultClusterName
	}

	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("annotation_name", p.Annotation.Name)
	set("annotation_type", p.Annotation.Type)
	set("annotation_scope", p.Annotation.Scope)
	set("subsample", p.Subsample)
	set("consensus", p.Consensus)
	set("gene", strings.Join(p.Genes, ","))
	if len(fields) > 0 {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = string(f)
		}
		set("fields", strings.Join(names, ","))
	}
	if p.IsAnnotatedScatter {
		set("is_annotated_scatter", "true")
	}
	if p.IsCorrelatedScatter {
		set("is_correlated_scatter", "true")
	}

	u := c.base + "/studies/" + url.PathEscape(p.StudyAccession) + "/clusters/" + url.PathEscape(cluster)
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// FetchCluster requests p restricted to fields, retrying transient failures.
func (c *Client) FetchCluster(ctx context.Context, p cache.Params, fields []cache.Field) (*cache.Response, cache.Timing, error) {
	u := c.ClusterURL(p, fields)
	timing := cache.Timing{URL: u, RequestStart: time.Now()}

	ctx, span := c.trc.Start(ctx, "remote.FetchCluster", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", u)))
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opt.InitialInterval
	b.MaxInterval = c.opt.MaxInterval

	attempt := 0
	res, err := backoff.Retry(ctx, func() (*cache.Response, error) {
		attempt++
		return c.get(ctx, u, &timing)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.opt.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn().Err(err).Str("url", u).Dur("retry_in", next).Msg("cluster request failed, retrying")
		}),
	)
	span.SetAttributes(attribute.Int("remote.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, timing, err
	}

	c.log.Debug().
		Str("url", u).
		Int("attempts", attempt).
		Dur("backend", timing.Backend).
		Dur("parse", timing.Parse).
		Msg("cluster request done")
	return res, timing, nil
}

// get performs one attempt. Errors that retrying cannot fix are marked
// permanent.
func (c *Client) get(ctx context.Context, u string, timing *cache.Timing) (*cache.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("remote: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	req.Header.Set("User-Agent", c.opt.UserAgent)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp)
	timing.Backend = time.Since(start)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{URL: u, StatusCode: resp.StatusCode, Message: errorMessage(body, resp.Status)}
		if se.Temporary() {
			return nil, se
		}
		return nil, backoff.Permanent(se)
	}

	start = time.Now()
	res, err := decodeResponse(body)
	timing.Parse = time.Since(start)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return res, nil
}

// readBody reads and decompresses the body. Read errors are retryable,
// decoding errors are not.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read body: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return raw, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("remote: gzip body: %w", err))
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("remote: gzip body: %w", err))
		}
		return out, nil
	case "zstd":
		out, err := c.zstd.DecodeAll(raw, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("remote: zstd body: %w", err))
		}
		return out, nil
	default:
		return nil, backoff.Permanent(fmt.Errorf("remote: unsupported content encoding %q", resp.Header.Get("Content-Encoding")))
	}
}

// errorMessage extracts {"error": "..."} from body, falling back to status.
func errorMessage(body []byte, status string) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return status
}

// wireResponse mirrors the JSON payload. The server reports subsample as
// either "all" or a number.
type wireResponse struct {
	cache.Props
	Subsample flexString        `json:"subsample"`
	Data      cache.ClusterData `json:"data"`
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("subsample: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("subsample: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

func decodeResponse(body []byte) (*cache.Response, error) {
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("remote: decode cluster response: %w", err)
	}
	res := &cache.Response{Props: w.Props, Data: w.Data}
	res.Subsample = string(w.Subsample)
	if res.Subsample == "" {
		res.Subsample = cache.SubsampleAll
	}
	return res, nil
}

// Compile-time checks.
var (
	_ cache.Fetcher    = (*Client)(nil)
	_ cache.URLBuilder = (*Client)(nil)
)
