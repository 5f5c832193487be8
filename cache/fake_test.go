package cache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeAPI is an in-memory embedding API. It returns fresh slices on every
// call, carrying only the requested fields, and records what was asked.
type fakeAPI struct {
	mu     sync.Mutex
	calls  [][]Field
	params []Params

	points     int
	err        error
	gate       chan struct{} // when non-nil, fetches block until it is closed
	renameUser bool          // echo user annotations under a display name
}

func newFakeAPI() *fakeAPI { return &fakeAPI{points: 16} }

func (f *fakeAPI) FetchCluster(_ context.Context, p Params, fields []Field) (*Response, Timing, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]Field(nil), fields...))
	f.params = append(f.params, p)
	gate, err, n := f.gate, f.err, f.points
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, Timing{}, err
	}
	return f.respond(p, fields, n), Timing{URL: "fake://" + p.StudyAccession, Backend: time.Millisecond}, nil
}

func (f *fakeAPI) respond(p Params, fields []Field, n int) *Response {
	cluster := p.Cluster
	if cluster == DefaultCluster {
		cluster = "UMAP"
	}
	annot := p.Annotation
	if annot.Name == "" {
		annot = Annotation{Name: "cell_type", Type: "group", Scope: "study"}
	}
	if annot.Scope == ScopeUser && f.renameUser {
		annot.Name = "display:" + annot.Name
	}
	subsample := p.Subsample
	if subsample == "" {
		subsample = "1000"
	}

	r := &Response{Props: Props{
		Cluster:     cluster,
		Subsample:   subsample,
		AnnotParams: annot,
		Genes:       p.Genes,
		Consensus:   p.Consensus,
		NumPoints:   n,
		PointSize:   3,
		Axes:        Axes{Titles: map[string]string{"x": "X", "y": "Y"}},
	}}
	for _, fl := range fields {
		switch fl {
		case FieldCoordinates:
			r.Data.X, r.Data.Y = make([]float64, n), make([]float64, n)
			for i := range r.Data.X {
				r.Data.X[i], r.Data.Y[i] = float64(i), float64(-i)
			}
		case FieldCells:
			r.Data.Cells = make([]string, n)
			for i := range r.Data.Cells {
				r.Data.Cells[i] = "cell-" + strconv.Itoa(i)
			}
		case FieldAnnotation:
			r.Data.Annotations = make([]any, n)
			for i := range r.Data.Annotations {
				r.Data.Annotations[i] = annot.Name + "-" + strconv.Itoa(i%3)
			}
		case FieldExpression:
			if len(p.Genes) > 0 {
				r.Data.Expression = make([]float64, n)
			}
		}
	}
	return r
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) lastFields() []Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeAPI) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func sameFields(got []Field, want ...Field) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

var (
	cellType = Annotation{Name: "cell_type", Type: "group", Scope: "study"}
	sample   = Annotation{Name: "sample", Type: "group", Scope: "study"}
)

func umap(a Annotation) Params {
	return Params{StudyAccession: "SCP1", Cluster: "UMAP", Annotation: a, Subsample: SubsampleAll}
}
