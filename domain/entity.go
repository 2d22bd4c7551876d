package domain

import (
	"maps"
	"slices"
	"strings"
)

// Reserved document keys.
const (
	// IDField is the storage name reserved for the identity property.
	IDField = "_id"
	// ClassField stores the concrete class of documents sharing a
	// collection with other classes of the same hierarchy.
	ClassField = "__class"
	// RefField holds the collection of a reference document.
	RefField = "$ref"
	// RefIDField holds the identity of a reference document.
	RefIDField = "$id"
	// RefCacheField holds the cached fields of a reference document.
	RefCacheField = "__cache"
)

// Event is the canonical name of a lifecycle event.
type Event string

// Lifecycle events, triggered by the persistence coordinator.
const (
	EventCreating  Event = "creating"
	EventCreated   Event = "created"
	EventUpdating  Event = "updating"
	EventUpdated   Event = "updated"
	EventSaving    Event = "saving"
	EventSaved     Event = "saved"
	EventDeleting  Event = "deleting"
	EventDeleted   Event = "deleted"
	EventRetrieved Event = "retrieved"
)

// Events lists every canonical lifecycle event.
var Events = []Event{
	EventCreating, EventCreated, EventUpdating, EventUpdated, EventSaving,
	EventSaved, EventDeleting, EventDeleted, EventRetrieved,
}

// Namespace identifies a collection inside a database.
type Namespace struct {
	Database   string
	Collection string
}

// String returns the dotted "database.collection" notation.
func (n Namespace) String() string {
	return n.Database + "." + n.Collection
}

// Command is a database command. Name is the command (and first key of the
// wire document), Value its argument (usually a collection name) and Args the
// remaining options.
type Command struct {
	Name  string
	Value any
	Args  map[string]any
}

// Command names understood by the database clients. Except for
// listCollections and dropDatabase, Value holds the collection name. Args:
//
//   - count: "query" ([Document]).
//   - createIndexes: "indexes" ([]IndexSpec).
//   - findAndModify: "query", "update" ([Document]), "sort" ([Sort]),
//     "upsert", "new" and "remove" (bool).
//
// Every command answers with a single document holding "ok": 1 and its
// result ("n" for count, "value" for findAndModify).
const (
	CommandCount           = "count"
	CommandCreateIndexes   = "createIndexes"
	CommandListIndexes     = "listIndexes"
	CommandListCollections = "listCollections"
	CommandDrop            = "drop"
	CommandDropDatabase    = "dropDatabase"
	CommandFindAndModify   = "findAndModify"
)

// WriteKind tells which kind of write a [WriteOperation] is.
type WriteKind uint8

// Supported write kinds.
const (
	WriteInsert WriteKind = iota
	WriteUpdate
	WriteDelete
)

// WriteOperation is a single statement in a write batch.
type WriteOperation struct {
	Kind WriteKind
	// Document is the document inserted by [WriteInsert] operations.
	Document Document
	// Filter selects documents for [WriteUpdate] and [WriteDelete].
	Filter Document
	// Update holds the update operators of a [WriteUpdate].
	Update Document
	// Multi applies the operation to every matching document instead of
	// the first one.
	Multi bool
	// Upsert inserts a document if a [WriteUpdate] matches nothing.
	Upsert bool
}

// WriteConcern describes the acknowledgement requested for writes.
type WriteConcern struct {
	W       int
	Journal bool
}

// WriteResult summarizes an executed write batch.
type WriteResult struct {
	InsertedIDs   []any
	UpsertedIDs   []any
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
	WriteErrors   []WriteError
}

// IndexField is a single field of an index with its direction (1 or -1).
type IndexField struct {
	Name      string
	Direction int
}

// IndexSpec describes an index of a collection.
type IndexSpec struct {
	Name       string
	Fields     []IndexField
	Unique     bool
	Sparse     bool
	Background bool
}

// IndexName derives the deterministic index name from its fields and
// uniqueness, e.g. "unique_email_asc" or "index_age_desc_name_asc".
func IndexName(fields []IndexField, unique bool) string {
	parts := make([]string, 1, len(fields)+1)
	parts[0] = "index"
	if unique {
		parts[0] = "unique"
	}
	for _, f := range fields {
		dir := "asc"
		if f.Direction < 0 {
			dir = "desc"
		}
		parts = append(parts, f.Name+"_"+dir)
	}
	return strings.Join(parts, "_")
}

// FieldNames returns the names of the indexed fields.
func (i IndexSpec) FieldNames() []string {
	names := make([]string, len(i.Fields))
	for n, f := range i.Fields {
		names[n] = f.Name
	}
	return names
}

// Sort represents an ordered list of fields which should be used to sort query
// results, applied in sequence.
type Sort = []SortName

// SortName represents a single field and the order which should be used to sort
// it. A positive Order value means ascending order and a negative value means
// descending order.
type SortName struct {
	Key   string
	Order int64
}

// UpdateOps groups update operands by operator: operator → field path →
// operand.
type UpdateOps map[string]map[string]any

var opOrder = []string{"$set", "$unset", "$push", "$pullAll"}

// Add registers operand for path under op.
func (u UpdateOps) Add(op, path string, operand any) {
	if u[op] == nil {
		u[op] = make(map[string]any)
	}
	u[op][path] = operand
}

// IsEmpty reports whether no operation was registered.
func (u UpdateOps) IsEmpty() bool {
	for _, v := range u {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Ops returns the operators in the order they must be applied: $set, $unset,
// $push and $pullAll first, then the rest sorted by name.
func (u UpdateOps) Ops() []string {
	res := make([]string, 0, len(u))
	for _, op := range opOrder {
		if len(u[op]) > 0 {
			res = append(res, op)
		}
	}
	rest := slices.Sorted(maps.Keys(u))
	for _, op := range rest {
		if !slices.Contains(opOrder, op) && len(u[op]) > 0 {
			res = append(res, op)
		}
	}
	return res
}

// Len returns the number of field paths touched by all operators.
func (u UpdateOps) Len() int {
	n := 0
	for _, v := range u {
		n += len(v)
	}
	return n
}
