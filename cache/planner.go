package cache

// requestPlan is the output of planning: the fields that must travel over
// the network and the in-flight requests of other callers to wait for.
type requestPlan struct {
	fields []Field
	awaits []pending
	hits   []Field

	// cached is false when the store is bypassed entirely.
	cached bool
	key    string

	// props and data hold what could be served from the entry at planning
	// time. They seed the placeholder of a request that needs no fetch and
	// backfill hits evicted or cleared before the merge.
	props Props
	data  ClusterData
}

func (rp *requestPlan) need(fs ...Field) { rp.fields = append(rp.fields, fs...) }

func (rp *requestPlan) hit(fs ...Field) { rp.hits = append(rp.hits, fs...) }

// await queues f unless it is already queued; one network request often
// backs several slots.
func (rp *requestPlan) await(f pending) {
	for _, q := range rp.awaits {
		if q == f {
			return
		}
	}
	rp.awaits = append(rp.awaits, f)
}

func (rp *requestPlan) wants(f Field) bool {
	for _, x := range rp.fields {
		if x == f {
			return true
		}
	}
	return false
}

// bypassesCache reports whether p must skip the store. Point positions of
// annotated and correlated scatter plots depend on the annotation or gene
// pair, and independent subsample draws do not keep cell identity or order.
func bypassesCache(p *Params) bool {
	return p.IsAnnotatedScatter || p.IsCorrelatedScatter || p.Subsample != SubsampleAll
}

// uncachedPlan is the plan for requests that skip the store.
func uncachedPlan(p *Params) requestPlan {
	if p.IsAnnotatedScatter || p.IsCorrelatedScatter {
		return requestPlan{fields: []Field{FieldCoordinates}}
	}
	rp := requestPlan{fields: []Field{FieldCoordinates, FieldCells, FieldAnnotation}}
	if len(p.Genes) > 0 {
		rp.need(FieldExpression)
	}
	return rp
}

// plan decides what p needs and, when anything must be fetched, registers
// own as the pending value of every slot it will fill. Both steps happen
// under the entry lock, so a concurrent caller planning the same fields
// finds own and awaits it instead of issuing a duplicate request.
func (c *cache) plan(p *Params, own pending) requestPlan {
	if bypassesCache(p) {
		return uncachedPlan(p)
	}

	key := embeddingKey(p.StudyAccession, p.Cluster, p.Subsample)
	e := c.store.findOrCreate(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	rp := requestPlan{cached: true, key: key}
	coordsStrategy{}.plan(e, &rp)
	annotationStrategy{}.plan(e, &rp, p.Annotation)
	if len(p.Genes) > 0 {
		expressionStrategy{}.plan(e, &rp, p.Genes, p.Consensus)
	}

	rp.props, rp.data = snapshot(e, p)
	if len(rp.fields) == 0 {
		return rp
	}
	if rp.wants(FieldCoordinates) {
		coordsStrategy{}.put(e, pendingSlot[cellsAndCoords](own))
	}
	if rp.wants(FieldAnnotation) {
		annotationStrategy{}.put(e, p.Annotation, pendingSlot[annotationValues](own))
	}
	if rp.wants(FieldExpression) {
		expressionStrategy{}.put(e, p.Genes, p.Consensus, pendingSlot[[]float64](own))
	}
	return rp
}

// snapshot copies the resolved values p can be served from. Slots still
// pending are left out; the merge fills them once they resolve.
func snapshot(e *entry, p *Params) (Props, ClusterData) {
	props := propsStrategy{}.get(e)
	if props.Cluster == "" {
		props.Cluster, props.Subsample = p.Cluster, p.Subsample
	}
	props.AnnotParams = p.Annotation
	props.Genes, props.Consensus = p.Genes, p.Consensus

	var d ClusterData
	if s := (coordsStrategy{}).get(e); s.isReady() {
		d.X, d.Y, d.Z, d.Cells = s.value.X, s.value.Y, s.value.Z, s.value.Cells
	}
	if s, ok := (annotationStrategy{}).get(e, p.Annotation); ok && s.isReady() {
		props.AnnotParams = s.value.Params
		d.Annotations = s.value.Values
	}
	if len(p.Genes) > 0 {
		if s, ok := (expressionStrategy{}).get(e, p.Genes, p.Consensus); ok && s.isReady() {
			d.Expression = s.value
		}
	}
	return props, d
}
