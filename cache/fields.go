package cache

// Field strategies. Each one knows how to read, write and merge one category
// of cached data on an entry. All methods run with entry.mu held.
//
// merge is bidirectional: fresh data on the response is written into the
// entry by reference, and anything the response lacks is copied onto it
// from the entry. Whole arrays are substituted, never interleaved, so the
// index alignment of x, y, z, cells, annotations and expression holds.

// fieldStrategy is the merge step shared by all strategies.
type fieldStrategy interface {
	merge(e *entry, r *Response, req *Params)
}

// strategies run in this order on every merge. props goes first so the
// response carries its resolved identity before the data fields look it up.
var strategies = []fieldStrategy{
	propsStrategy{},
	coordsStrategy{},
	annotationStrategy{},
	expressionStrategy{},
}

// ---- coordinates and cell names ----

type coordsStrategy struct{}

func (coordsStrategy) get(e *entry) *slot[cellsAndCoords] { return &e.coords }

func (coordsStrategy) put(e *entry, s *slot[cellsAndCoords]) { e.coords = *s }

// plan queues an in-flight fetch of the coordinates, or asks for them when
// nothing is cached.
func (st coordsStrategy) plan(e *entry, rp *requestPlan) {
	s := st.get(e)
	switch {
	case s.isPending():
		rp.await(s.pending)
	case s.isReady() && s.value.X != nil:
		rp.hit(FieldCoordinates, FieldCells)
	default:
		rp.need(FieldCoordinates, FieldCells)
	}
}

func (st coordsStrategy) merge(e *entry, r *Response, _ *Params) {
	var cur cellsAndCoords
	if s := st.get(e); s.isReady() {
		cur = s.value
	}

	d := &r.Data
	fresh := false
	if d.X != nil {
		cur.X, fresh = d.X, true
	}
	if d.Y != nil {
		cur.Y, fresh = d.Y, true
	}
	if d.Z != nil {
		cur.Z, fresh = d.Z, true
	}
	if d.Cells != nil {
		cur.Cells, fresh = d.Cells, true
	}
	if fresh {
		st.put(e, readySlot(cur))
	}

	if s := st.get(e); s.isReady() {
		v := s.value
		if v.X != nil {
			d.X = v.X
		}
		if v.Y != nil {
			d.Y = v.Y
		}
		if v.Z != nil {
			d.Z = v.Z
		}
		if v.Cells != nil {
			d.Cells = v.Cells
		}
	}
}

// ---- annotation values ----

type annotationStrategy struct{}

func (annotationStrategy) get(e *entry, a Annotation) (*slot[annotationValues], bool) {
	return e.annotations.Get(annotationKey(a))
}

func (annotationStrategy) put(e *entry, a Annotation, s *slot[annotationValues]) {
	e.annotations.Put(annotationKey(a), s)
}

// plan always fetches user-scope annotations: the identifier they are
// requested by never matches the name the server returns.
func (st annotationStrategy) plan(e *entry, rp *requestPlan, a Annotation) {
	s, ok := st.get(e, a)
	switch {
	case !ok || a.Scope == ScopeUser:
		rp.need(FieldAnnotation)
	case s.isPending():
		rp.await(s.pending)
	case s.isReady():
		rp.hit(FieldAnnotation)
	default:
		rp.need(FieldAnnotation)
	}
}

// merge only touches the cache when the server answered with the annotation
// that was asked for, or when the default annotation was requested. A
// substituted annotation must not land under the requested key.
func (st annotationStrategy) merge(e *entry, r *Response, req *Params) {
	if !annotationMatches(req.Annotation, r.AnnotParams) {
		return
	}
	if r.Data.Annotations != nil {
		st.put(e, r.AnnotParams, readySlot(annotationValues{Params: r.AnnotParams, Values: r.Data.Annotations}))
		return
	}
	if s, ok := st.get(e, r.AnnotParams); ok && s.isReady() {
		r.Data.Annotations = s.value.Values
	}
}

// release drops the slot of annotation a if it still waits on from. It is called
// when from was answered with another annotation: the values for a never
// arrive, and later requests must fetch them instead of awaiting from.
func (st annotationStrategy) release(e *entry, a Annotation, from pending) {
	if s, ok := st.get(e, a); ok && s.isPending() && s.pending == from {
		e.annotations.Remove(annotationKey(a))
	}
}

func annotationMatches(requested, resolved Annotation) bool {
	if requested.Name == "" {
		return true
	}
	if requested.Name != resolved.Name {
		return false
	}
	return requested.Scope == "" || resolved.Scope == "" || requested.Scope == resolved.Scope
}

// ---- expression values ----

type expressionStrategy struct{}

func (expressionStrategy) get(e *entry, genes []string, consensus string) (*slot[[]float64], bool) {
	return e.expression.Get(expressionKey(genes, consensus))
}

func (expressionStrategy) put(e *entry, genes []string, consensus string, s *slot[[]float64]) {
	e.expression.Put(expressionKey(genes, consensus), s)
}

func (st expressionStrategy) plan(e *entry, rp *requestPlan, genes []string, consensus string) {
	s, ok := st.get(e, genes, consensus)
	switch {
	case !ok:
		rp.need(FieldExpression)
	case s.isPending():
		rp.await(s.pending)
	case s.isReady():
		rp.hit(FieldExpression)
	default:
		rp.need(FieldExpression)
	}
}

// merge is a no-op for responses without genes: there is no expression
// identity to store under or look up.
func (st expressionStrategy) merge(e *entry, r *Response, _ *Params) {
	if len(r.Genes) == 0 {
		return
	}
	if r.Data.Expression != nil {
		st.put(e, r.Genes, r.Consensus, readySlot(r.Data.Expression))
		return
	}
	if s, ok := st.get(e, r.Genes, r.Consensus); ok && s.isReady() {
		r.Data.Expression = s.value
	}
}

// ---- everything else ----

// propsStrategy caches the non-bulk attributes so a response served entirely
// from cache can be rebuilt in full.
type propsStrategy struct{}

func (propsStrategy) get(e *entry) Props { return e.props }

func (propsStrategy) put(e *entry, p Props) { e.props = p }

func (st propsStrategy) merge(e *entry, r *Response, _ *Params) {
	if !r.AllDataFromCache {
		st.put(e, r.Props)
		return
	}
	// A response built from cache takes the entry's attributes, keeping its
	// own identity, and the identity is written back for the next hit.
	p := st.get(e)
	if p.Cluster == "" {
		// cleared since planning: the planning snapshot is all there is
		st.put(e, r.Props)
		return
	}
	p.Cluster, p.Subsample, p.AnnotParams = r.Cluster, r.Subsample, r.AnnotParams
	p.Genes, p.Consensus = r.Genes, r.Consensus
	st.put(e, p)
	r.Props = p
}
