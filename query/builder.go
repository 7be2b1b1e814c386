package query

import (
	"github.com/kvdoc/isardb/collection"
)

// Builder accumulates where-clauses and a residual filter before producing
// an immutable Query. It lives in this package rather than as a method on
// collection.Collection: query needs collection's exported Indexes/Links
// fields to plan scans, so a construction entry point on Collection itself
// would close an import cycle (collection would need to import query).
// NewBuilder is therefore the free-function equivalent of a collection's
// "new query builder" entry point.
type Builder struct {
	coll     *collection.Collection
	resolver Resolver
	wheres   []WhereClause
	filter   Filter
	distinct bool
	offset   int
	limit    int
}

// NewBuilder starts a query against coll. resolver is only consulted by Link
// filter nodes, and may be nil for queries that never traverse a link.
func NewBuilder(coll *collection.Collection, resolver Resolver) *Builder {
	return &Builder{coll: coll, resolver: resolver}
}

// WhereID adds an id-range where-clause.
func (b *Builder) WhereID(lower, upper int64, includeLower, includeUpper bool) *Builder {
	b.wheres = append(b.wheres, WhereClause{
		IsIndex: false, LowerID: lower, UpperID: upper,
		IncludeLowerID: includeLower, IncludeUpperID: includeUpper,
	})
	return b
}

// WhereIndex adds a secondary-index range where-clause. skipDuplicates asks
// the scan to suppress repeat ids from a multi-entry index directly, rather
// than relying on the executor's general dedup pass.
func (b *Builder) WhereIndex(indexName string, lowerKey, upperKey []byte, includeLower, includeUpper, skipDuplicates, ascending bool) *Builder {
	b.wheres = append(b.wheres, WhereClause{
		IsIndex: true, IndexName: indexName,
		LowerKey: lowerKey, UpperKey: upperKey,
		IncludeLowerKey: includeLower, IncludeUpperKey: includeUpper,
		SkipDuplicates: skipDuplicates, Ascending: ascending,
	})
	return b
}

// Filter sets the residual filter tree applied to every where-clause hit.
func (b *Builder) Filter(f Filter) *Builder {
	b.filter = f
	return b
}

// Distinct requests id-level deduplication even when the planner would not
// otherwise require it (e.g. the caller built overlapping where-clauses by
// hand and wants the guarantee documented regardless of planner detection).
func (b *Builder) Distinct(d bool) *Builder {
	b.distinct = d
	return b
}

// Offset sets how many matching records to skip before the first emission.
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Limit caps the number of emitted records; 0 means unlimited.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build finalizes the accumulated clauses into an executable Query. If no
// where-clause was added, Build defaults to an unbounded id range so the
// query degenerates to a full collection scan plus filter.
func (b *Builder) Build() *Query {
	wheres := b.wheres
	if len(wheres) == 0 {
		wheres = []WhereClause{{IsIndex: false, LowerID: collection.NoID + 1, UpperID: 1<<63 - 1, IncludeLowerID: true, IncludeUpperID: true}}
	}
	return &Query{
		Collection: b.coll,
		Resolver:   b.resolver,
		Wheres:     wheres,
		Filter:     b.filter,
		Distinct:   b.distinct,
		Offset:     b.offset,
		Limit:      b.limit,
	}
}
