// Command clusterbench replays a synthetic scatter-plot browsing session
// against the cluster cache and exposes optional pprof/Prometheus endpoints.
//
// Without api.base_url it serves the synthetic API in-process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/clustercache/cache"
	"github.com/IvanBrykalov/clustercache/config"
	"github.com/IvanBrykalov/clustercache/internal/fakeapi"
	pmet "github.com/IvanBrykalov/clustercache/metrics/prom"
	"github.com/IvanBrykalov/clustercache/remote"
)

func main() {
	// ---- Flags ----
	var (
		cfgPath = flag.String("config", "", "YAML config file (optional)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of simulated viewers")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		think    = flag.Duration("think", 5*time.Millisecond, "pause between a viewer's requests")
		zipfS    = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew of view popularity)")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		clearPct = flag.Float64("clear_pct", 0.1, "percentage of steps that clear the cache")

		study       = flag.String("study", "SCP1", "study accession")
		clusters    = flag.String("clusters", "UMAP,tSNE,PCA 3D", "comma-separated embeddings")
		annotations = flag.String("annotations", "cell_type,sample,louvain:cluster", "comma-separated name[:scope] annotations")
		genes       = flag.String("genes", "CD4,CD8A,PTPRC", "comma-separated genes to search")
		points      = flag.Int("points", 50_000, "points per embedding of the in-process API")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.Metrics.PprofAddr != "" {
		go serve(logger, "pprof", cfg.Metrics.PprofAddr, nil)
	}

	// ---- Prometheus metrics ----
	metrics := pmet.New(nil, cfg.Metrics.Namespace, "bench", nil)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go serve(logger, "metrics", cfg.Metrics.Addr, mux)

	// ---- Cluster API ----
	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL, err = startFakeAPI(logger, cfg.API.Encoding, *points)
		if err != nil {
			logger.Fatal().Err(err).Msg("start synthetic API")
		}
	}
	ro := cfg.RemoteOptions()
	ro.Logger = &logger
	client, err := remote.New(baseURL, ro)
	if err != nil {
		logger.Fatal().Err(err).Msg("create API client")
	}
	defer client.Close()

	// ---- Build cache ----
	opt := cfg.CacheOptions()
	opt.Fetcher = client
	opt.Metrics = metrics
	opt.Logger = &logger
	c := cache.New(opt)

	views := viewSpace{
		study:       *study,
		clusters:    splitList(*clusters),
		annotations: parseAnnotations(*annotations),
		genes:       splitList(*genes),
	}
	if len(views.clusters) == 0 || len(views.annotations) == 0 {
		logger.Fatal().Msg("need at least one cluster and one annotation")
	}

	// ---- Load generation ----
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	var requests, failures, fromCache uint64
	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each viewer gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(*seed + int64(id)*9973))
			pick := rand.NewZipf(r, *zipfS, 1, uint64(views.size()-1))

			for runCtx.Err() == nil {
				if r.Float64()*100 < *clearPct {
					c.Clear()
					continue
				}
				p := views.at(int(pick.Uint64()))
				res, err := c.FetchCluster(runCtx, p)
				atomic.AddUint64(&requests, 1)
				switch {
				case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					return
				case err != nil:
					atomic.AddUint64(&failures, 1)
					logger.Debug().Err(err).Msg("request failed")
				case res.AllDataFromCache:
					atomic.AddUint64(&fromCache, 1)
				}
				if *think > 0 {
					time.Sleep(*think)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	reqN := atomic.LoadUint64(&requests)
	st := c.Stats()
	hitRate := 0.0
	if st.Hits+st.Misses > 0 {
		hitRate = float64(st.Hits) / float64(st.Hits+st.Misses) * 100
	}

	fmt.Printf("retention=%s annotation_slots=%d workers=%d views=%d dur=%v seed=%d\n",
		cfg.Cache.Retention, cfg.Cache.AnnotationSlots, workersN, views.size(), elapsed, *seed)
	fmt.Printf("requests=%d (%.0f req/s)  all-from-cache=%d  failures=%d\n",
		reqN, float64(reqN)/elapsed.Seconds(), atomic.LoadUint64(&fromCache), atomic.LoadUint64(&failures))
	fmt.Printf("field hits=%d  misses=%d  hit-rate=%.2f%%  fetches=%d  coalesced=%d  clears=%d\n",
		st.Hits, st.Misses, hitRate, st.Fetches, st.Coalesced, st.Clears)
	fmt.Printf("Len()=%d\n", c.Len())
}

func serve(logger zerolog.Logger, name, addr string, h http.Handler) {
	logger.Info().Str("addr", addr).Msgf("%s: serving", name)
	if err := http.ListenAndServe(addr, h); err != nil {
		logger.Error().Err(err).Msgf("%s: server stopped", name)
	}
}

// startFakeAPI serves the synthetic API on a loopback port and returns its
// base URL.
func startFakeAPI(logger zerolog.Logger, encoding string, points int) (string, error) {
	api, err := fakeapi.New(fakeapi.Options{Encoding: encoding, Logger: &logger}, fakeapi.DemoStudy(points))
	if err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	go func() {
		if err := http.Serve(ln, api); err != nil {
			logger.Error().Err(err).Msg("synthetic API stopped")
		}
	}()
	base := "http://" + ln.Addr().String()
	logger.Info().Str("url", base).Int("points", points).Msg("serving synthetic cluster API")
	return base, nil
}

// viewSpace enumerates the views a viewer can switch between, ordered so
// that low indexes (the popular ones under Zipf) share an embedding.
type viewSpace struct {
	study       string
	clusters    []string
	annotations []cache.Annotation
	genes       []string
}

func (v viewSpace) size() int {
	return len(v.clusters) * len(v.annotations) * (len(v.genes) + 1)
}

func (v viewSpace) at(i int) cache.Params {
	g := i % (len(v.genes) + 1)
	i /= len(v.genes) + 1
	a := i % len(v.annotations)
	i /= len(v.annotations)
	p := cache.Params{
		StudyAccession: v.study,
		Cluster:        v.clusters[i%len(v.clusters)],
		Annotation:     v.annotations[a],
		Subsample:      cache.SubsampleAll,
	}
	if g > 0 {
		p.Genes = []string{v.genes[g-1]}
	}
	return p
}

func splitList(s string) []string {
	var out []string
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func parseAnnotations(s string) []cache.Annotation {
	var out []cache.Annotation
	for _, x := range splitList(s) {
		name, scope, ok := strings.Cut(x, ":")
		if !ok {
			scope = "study"
		}
		out = append(out, cache.Annotation{Name: name, Type: "group", Scope: scope})
	}
	return out
}
