package main

import (
	"testing"

	"github.com/IvanBrykalov/clustercache/cache"
)

func TestViewSpace(t *testing.T) {
	v := viewSpace{
		study:       "SCP1",
		clusters:    []string{"UMAP", "tSNE"},
		annotations: parseAnnotations("cell_type, louvain:cluster"),
		genes:       splitList("CD4,,CD8A"),
	}
	if v.size() != 2*2*3 {
		t.Fatalf("size: %d", v.size())
	}

	seen := map[string]bool{}
	for i := 0; i < v.size(); i++ {
		p := v.at(i)
		if p.Subsample != cache.SubsampleAll {
			t.Fatalf("view %d must request full data", i)
		}
		key := p.Cluster + "/" + p.Annotation.Name + "/" + p.Annotation.Scope
		if len(p.Genes) > 0 {
			key += "/" + p.Genes[0]
		}
		if seen[key] {
			t.Fatalf("view %d repeats %s", i, key)
		}
		seen[key] = true
	}
	if v.at(0).Cluster != "UMAP" || v.at(1).Cluster != "UMAP" {
		t.Fatal("neighbouring views must share an embedding")
	}
	if a := v.annotations[1]; a.Name != "louvain" || a.Scope != "cluster" {
		t.Fatalf("parsed annotation: %+v", a)
	}
}
