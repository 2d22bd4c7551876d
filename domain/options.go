package domain

// WithQueryProjection specifies which fields to include (1) or exclude (0)
// from query results.
func WithQueryProjection(p map[string]int) QueryOption {
	return func(qo *QueryOptions) {
		qo.Projection = p
	}
}

// WithQuerySkip sets the number of documents to skip in query results.
func WithQuerySkip(s int64) QueryOption {
	return func(qo *QueryOptions) {
		qo.Skip = s
	}
}

// WithQueryLimit sets the maximum number of documents to return.
func WithQueryLimit(l int64) QueryOption {
	return func(qo *QueryOptions) {
		qo.Limit = l
	}
}

// WithQuerySort specifies the sort order for query results.
func WithQuerySort(s Sort) QueryOption {
	return func(qo *QueryOptions) {
		qo.Sort = s
	}
}

// WithQueryFilter sets the filter used to select documents. Used by
// [Querier] implementations; [DatabaseClient.Query] receives the filter as an
// argument instead.
func WithQueryFilter(f Document) QueryOption {
	return func(qo *QueryOptions) {
		qo.Filter = f
	}
}

// QueryOption configures query behavior through the functional options
// pattern.
type QueryOption func(*QueryOptions)

// QueryOptions contains parameters for customizing query execution.
type QueryOptions struct {
	// Filter selects the documents returned.
	Filter Document
	// Projection specifies which fields to include or exclude from results.
	Projection map[string]int
	// Skip specifies the number of documents to skip.
	Skip int64
	// Limit specifies the maximum number of documents to return. Zero
	// means no limit.
	Limit int64
	// Sort specifies the sort order for results.
	Sort Sort
}

// WithCursorDecoder sets the decoder used by [Cursor.Scan].
func WithCursorDecoder(d Decoder) CursorOption {
	return func(co *CursorOptions) {
		co.Decoder = d
	}
}

// WithCursorRefill sets a function that reloads the documents of a cursor
// when it is rewound after being consumed.
func WithCursorRefill(f func() ([]Document, error)) CursorOption {
	return func(co *CursorOptions) {
		co.Refill = f
	}
}

// CursorOption configures cursor behavior through the functional options
// pattern.
type CursorOption func(*CursorOptions)

// CursorOptions contains parameters for customizing cursors.
type CursorOptions struct {
	Decoder Decoder
	Refill  func() ([]Document, error)
}

// WithIndexSpec sets the fields and flags of the index.
func WithIndexSpec(s IndexSpec) IndexOption {
	return func(io *IndexOptions) {
		io.Spec = s
	}
}

// WithIndexComparer sets the comparer used to sort index keys.
func WithIndexComparer(c Comparer) IndexOption {
	return func(io *IndexOptions) {
		io.Comparer = c
	}
}

// IndexOption configures index behavior through the functional options
// pattern.
type IndexOption func(*IndexOptions)

// IndexOptions contains parameters for customizing indexes.
type IndexOptions struct {
	Spec     IndexSpec
	Comparer Comparer
}
