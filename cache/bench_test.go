package cache

import (
	"context"
	"testing"
)

// benchmarkView measures FetchCluster against a warm cache. The fetcher is
// in-process, so a miss costs only the fake response.
func benchmarkView(b *testing.B, annots ...Annotation) {
	api := newFakeAPI()
	api.points = 100_000
	c := New(Options{Fetcher: api, AnnotationSlots: len(annots)})

	for _, a := range annots {
		if _, err := c.FetchCluster(context.Background(), umap(a)); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := c.FetchCluster(context.Background(), umap(annots[i%len(annots)])); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

// Every request is served from cache.
func BenchmarkFetchCluster_Hit(b *testing.B) { benchmarkView(b, cellType) }

// Alternating between two retained annotations.
func BenchmarkFetchCluster_TwoAnnotations(b *testing.B) { benchmarkView(b, cellType, sample) }

// Every request switches the annotation with a single slot, so each one
// fetches annotation values only.
func BenchmarkFetchCluster_AnnotationSwitch(b *testing.B) {
	api := newFakeAPI()
	api.points = 10_000
	c := New(Options{Fetcher: api})
	annots := []Annotation{cellType, sample}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.FetchCluster(context.Background(), umap(annots[i%2])); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExpressionKey(b *testing.B) {
	genes := []string{"PTPRC", "CD8A", "CD4", "MS4A1", "NKG7"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = expressionKey(genes, "mean")
	}
}
