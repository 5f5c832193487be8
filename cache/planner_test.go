package cache

import (
	"testing"

	"github.com/IvanBrykalov/clustercache/internal/future"
)

func TestRequestPlan_AwaitDedupes(t *testing.T) {
	t.Parallel()

	a, b := future.New[*Response](), future.New[*Response]()
	var rp requestPlan
	rp.await(a)
	rp.await(a)
	rp.await(b)
	if len(rp.awaits) != 2 || rp.awaits[0] != a || rp.awaits[1] != b {
		t.Fatalf("awaits: %v", rp.awaits)
	}
}

func TestBypassesCache(t *testing.T) {
	t.Parallel()

	p := umap(cellType)
	if bypassesCache(&p) {
		t.Fatal("full data must use the cache")
	}
	for _, mut := range []func(*Params){
		func(p *Params) { p.Subsample = "20000" },
		func(p *Params) { p.Subsample = "" },
		func(p *Params) { p.IsAnnotatedScatter = true },
		func(p *Params) { p.IsCorrelatedScatter = true },
	} {
		q := umap(cellType)
		mut(&q)
		if !bypassesCache(&q) {
			t.Errorf("%+v must bypass the cache", q)
		}
	}
}

// Planning registers the caller's request in the slots it will fill, so a
// second planner awaits it instead of asking for the same fields.
func TestPlan_RegistersPending(t *testing.T) {
	t.Parallel()

	c := New(Options{Fetcher: newFakeAPI()}).(*cache)
	p := umap(cellType)

	first := future.New[*Response]()
	rp := c.plan(&p, first)
	if !rp.cached || !sameFields(rp.fields, FieldCoordinates, FieldCells, FieldAnnotation) {
		t.Fatalf("first plan: %+v", rp)
	}

	second := c.plan(&p, future.New[*Response]())
	if len(second.fields) != 0 || len(second.awaits) != 1 || second.awaits[0] != first {
		t.Fatalf("second plan must await the first: %+v", second)
	}

	// A different annotation still awaits the coordinates but fetches its own values.
	q := umap(sample)
	third := c.plan(&q, future.New[*Response]())
	if !sameFields(third.fields, FieldAnnotation) || len(third.awaits) != 1 {
		t.Fatalf("third plan: %+v", third)
	}
}

func TestPlan_Snapshot(t *testing.T) {
	t.Parallel()

	c := New(Options{Fetcher: newFakeAPI()}).(*cache)
	e := c.store.findOrCreate(embeddingKey("SCP1", "UMAP", SubsampleAll))
	x := []float64{1, 2}
	e.props = Props{Cluster: "UMAP", Subsample: SubsampleAll, NumPoints: 2}
	e.coords = *readySlot(cellsAndCoords{X: x, Y: x, Cells: []string{"a", "b"}})
	annotationStrategy{}.put(e, cellType, readySlot(annotationValues{Params: cellType, Values: []any{"T", "B"}}))

	p := umap(Annotation{Name: "cell_type", Scope: "study"})
	rp := c.plan(&p, future.New[*Response]())
	if len(rp.fields) != 0 || len(rp.hits) != 3 {
		t.Fatalf("want all hits: %+v", rp)
	}
	if &rp.data.X[0] != &x[0] || len(rp.data.Annotations) != 2 {
		t.Fatalf("snapshot data: %+v", rp.data)
	}
	if rp.props.AnnotParams != cellType || rp.props.NumPoints != 2 {
		t.Fatalf("snapshot props: %+v", rp.props)
	}
}

func TestUncachedPlan(t *testing.T) {
	t.Parallel()

	p := umap(cellType)
	p.IsCorrelatedScatter = true
	p.Genes = []string{"CD4", "CD8A"}
	if rp := uncachedPlan(&p); rp.cached || !sameFields(rp.fields, FieldCoordinates) {
		t.Fatalf("scatter: %+v", rp)
	}

	p = umap(cellType)
	p.Subsample = "1000"
	p.Genes = []string{"CD4"}
	if rp := uncachedPlan(&p); !sameFields(rp.fields, FieldCoordinates, FieldCells, FieldAnnotation, FieldExpression) {
		t.Fatalf("subsample: %+v", rp)
	}
}
