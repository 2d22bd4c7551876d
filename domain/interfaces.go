// Package domain contains domain-specific interfaces and option types for
// tuicha.
//
// This package defines the contracts between the object-document mapper and
// its collaborators (the database client, identity generators, clocks,
// decoders) as well as the interfaces implemented by the in-memory document
// engine, the functional options used to configure them and the error
// taxonomy surfaced to callers.
package domain

import (
	"context"
	"iter"
	"time"
)

// DatabaseClient executes commands against a document store. It is the only
// point where the mapper talks to the outside world and is treated as a black
// box: connection pooling, wire serialization and write concerns are its own
// business.
type DatabaseClient interface {
	// ExecuteCommand runs an administrative or aggregate command (count,
	// createIndexes, drop, findAndModify, ...) on the given database.
	ExecuteCommand(ctx context.Context, db string, cmd Command) (Cursor, error)
	// ExecuteWrite sends an ordered batch of write operations to the
	// given namespace. Rejected operations are reported through
	// [WriteResult.WriteErrors].
	ExecuteWrite(ctx context.Context, ns Namespace, ops []WriteOperation, wc WriteConcern) (WriteResult, error)
	// Query returns a cursor over the documents in ns matching filter.
	Query(ctx context.Context, ns Namespace, filter Document, opts ...QueryOption) (Cursor, error)
}

// Cursor provides forward-only iteration over raw documents returned by a
// [DatabaseClient].
type Cursor interface {
	// Next advances the cursor to the next document, returning true if
	// available.
	Next() bool
	// Current returns the document the cursor is positioned at.
	Current() Document
	// Scan decodes the current document into target.
	Scan(ctx context.Context, target any) error
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases cursor resources and should be called when done.
	Close() error
}

// Document represents a record in the store: a tree of nested documents,
// lists ([]any) and scalar values.
type Document interface {
	// ID returns the document _id, if any.
	ID() any
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key.
	Set(string, any)
	// Unset unsets the value under the given key.
	Unset(string)
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Iter returns a sequence of key-value pairs sorted by key.
	Iter() iter.Seq2[string, any]
	// Keys returns a sequence of keys sorted lexically.
	Keys() iter.Seq[string]
	// Len returns the number of set fields in the document.
	Len() int
}

// IDGenerator allocates globally-unique identity values for new documents.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	// GenerateID returns a new identity value.
	GenerateID() (any, error)
}

// TimeGetter provides current time for timestamping operations.
type TimeGetter interface {
	// GetTime returns the current time.
	GetTime() time.Time
}

// Decoder converts between different data representations.
type Decoder interface {
	// Decode converts from one data format to another.
	Decode(any, any) error
}

// Comparer provides ordering and comparison operations for different data
// types.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values can be compared.
	Comparable(any, any) bool
}

// Matcher evaluates whether documents match query criteria.
type Matcher interface {
	// Match returns true if the document matches the filter.
	Match(doc Document, filter Document) (bool, error)
}

// Modifier applies update operations to documents.
type Modifier interface {
	// Modify applies an update document to a copy of doc and returns the
	// result.
	Modify(doc Document, update Document) (Document, error)
}

// Projector limits the fields returned by a query.
type Projector interface {
	// Project returns a copy of each document containing only the fields
	// selected by projection.
	Project(docs []Document, projection map[string]int) ([]Document, error)
}

// Querier filters, sorts and pages documents.
type Querier interface {
	// Query returns the documents yielded by data that match the given
	// options.
	Query(data iter.Seq[Document], opts ...QueryOption) ([]Document, error)
}

// Index keeps documents of a collection sorted by the value of one or more
// fields and enforces uniqueness constraints.
type Index interface {
	// Insert adds documents to the index.
	Insert(ctx context.Context, docs ...Document) error
	// Remove removes documents from the index.
	Remove(ctx context.Context, docs ...Document) error
	// Update replaces the index entry of oldDoc with newDoc.
	Update(ctx context.Context, oldDoc, newDoc Document) error
	// Spec returns the definition this index was created from.
	Spec() IndexSpec
}
