package cache

// merge folds one resolved response into the store and returns the
// normalized copy for the caller. res itself is never modified: the same
// response may be merged concurrently by every caller that awaited it.
//
// Bulk slices are shared by reference between res, the copy and the entry.
// from is the request res answers.
func (c *cache) merge(req *Params, res *Response, from pending) *Response {
	r := *res

	requestedKey := embeddingKey(req.StudyAccession, req.Cluster, req.Subsample)
	resolvedKey := embeddingKey(req.StudyAccession, r.Cluster, r.Subsample)

	e := c.store.findOrCreate(resolvedKey)
	if resolvedKey != requestedKey {
		// e.g. "" (default) resolved to "UMAP": later requests under either
		// name must hit the same entry.
		c.store.alias(requestedKey, e)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if r.AllDataFromCache {
		// Report what the server resolved when the data was first fetched.
		// An entry emptied by Clear since planning has nothing to offer.
		if cached := (propsStrategy{}).get(e); cached.Cluster != "" {
			r.Cluster, r.Subsample = cached.Cluster, cached.Subsample
			if r.Data.Annotations == nil {
				r.AnnotParams = cached.AnnotParams
			}
		}
		if r.Data.Annotations == nil {
			if s, ok := (annotationStrategy{}).get(e, req.Annotation); ok && s.isReady() {
				r.AnnotParams = s.value.Params
			}
		}
	}

	for _, st := range strategies {
		st.merge(e, &r, req)
	}
	if !annotationMatches(req.Annotation, r.AnnotParams) {
		(annotationStrategy{}).release(e, req.Annotation, from)
	}
	return &r
}

// backfill remembers the arrays a request has already been handed: the
// values it planned as hits, then those of every result it merged. Entry
// slots can be evicted or cleared between planning and the last merge; the
// response is completed from here instead.
type backfill struct {
	data  ClusterData
	annot Annotation
}

// collect keeps the arrays of a merged result that belong to req.
func (b *backfill) collect(req *Params, r *Response) {
	d := &r.Data
	if d.X != nil {
		b.data.X, b.data.Y, b.data.Z = d.X, d.Y, d.Z
	}
	if d.Cells != nil {
		b.data.Cells = d.Cells
	}
	if d.Annotations != nil && annotationMatches(req.Annotation, r.AnnotParams) {
		b.data.Annotations, b.annot = d.Annotations, r.AnnotParams
	}
	if d.Expression != nil && len(req.Genes) > 0 &&
		expressionKey(r.Genes, r.Consensus) == expressionKey(req.Genes, req.Consensus) {
		b.data.Expression = d.Expression
	}
}

// fill sets every array r still lacks.
func (b *backfill) fill(req *Params, r *Response) {
	d := &r.Data
	if d.X == nil && b.data.X != nil {
		d.X, d.Y, d.Z = b.data.X, b.data.Y, b.data.Z
	}
	if d.Cells == nil {
		d.Cells = b.data.Cells
	}
	if d.Annotations == nil && b.data.Annotations != nil {
		d.Annotations, r.AnnotParams = b.data.Annotations, b.annot
	}
	if d.Expression == nil && len(req.Genes) > 0 {
		d.Expression = b.data.Expression
	}
}
