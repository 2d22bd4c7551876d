// Package index contains the default [domain.Index] implementation, used by
// the in-memory database client to keep documents ordered and to enforce
// unique constraints.
package index

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"

	"github.com/crodas/tuicha/adapter/comparer"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/domain"
)

// ErrNoFields is returned when an index is created without fields.
var ErrNoFields = errors.New("index must have at least one field")

// ErrDuplicateKey is returned when a document would violate a unique index.
type ErrDuplicateKey struct {
	Index string
	Key   any
}

// Error implements [error].
func (e ErrDuplicateKey) Error() string {
	return fmt.Sprintf("E11000 duplicate key error index: %s dup key: %v", e.Index, e.Key)
}

// Index implements [domain.Index].
type Index struct {
	spec domain.IndexSpec
	// Exported to allow testing. Should not be a problem because Index is
	// used as interface.
	Tree        bst.BST[any, domain.Document]
	comparer    domain.Comparer
	bstComparer bst.Comparer[any, domain.Document]
}

// NewIndex returns a new implementation of domain.Index.
func NewIndex(options ...domain.IndexOption) (*Index, error) {
	opts := domain.IndexOptions{
		Comparer: comparer.NewComparer(),
	}
	for _, option := range options {
		option(&opts)
	}

	if len(opts.Spec.Fields) == 0 {
		return nil, ErrNoFields
	}
	for _, f := range opts.Spec.Fields {
		if _, err := fieldnavigator.Split(f.Name); err != nil {
			return nil, err
		}
	}
	if opts.Spec.Name == "" {
		opts.Spec.Name = domain.IndexName(opts.Spec.Fields, opts.Spec.Unique)
	}

	bstComparer := NewBSTComparer(opts.Comparer)

	return &Index{
		spec:        opts.Spec,
		Tree:        avl.NewBST(opts.Spec.Unique, 8, bstComparer),
		comparer:    opts.Comparer,
		bstComparer: bstComparer,
	}, nil
}

// Spec implements [domain.Index].
func (i *Index) Spec() domain.IndexSpec {
	return i.spec
}

// Reset drops every entry and indexes newData instead.
func (i *Index) Reset(ctx context.Context, newData ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	i.Tree = avl.NewBST(i.spec.Unique, 8, i.bstComparer)
	return i.Insert(ctx, newData...)
}

// getKeys returns the keys doc is indexed under. On single field indexes,
// every element of a list value is a key of its own. Compound keys are lists
// holding one value per field. A nil result means the document is skipped by
// a sparse index.
func (i *Index) getKeys(doc domain.Document) []any {
	if len(i.spec.Fields) == 1 {
		values, _, found := fieldnavigator.Get(doc, i.spec.Fields[0].Name)
		if !found {
			if i.spec.Sparse {
				return nil
			}
			return []any{nil}
		}
		var keys []any
		for _, v := range values {
			if l, ok := v.([]any); ok {
				keys = append(keys, l...)
				continue
			}
			keys = append(keys, v)
		}
		if len(keys) == 0 {
			keys = []any{nil}
		}
		slices.SortFunc(keys, i.compareThings)
		return slices.CompactFunc(keys, func(a, b any) bool { return i.compareThings(a, b) == 0 })
	}

	key := make([]any, len(i.spec.Fields))
	containsKey := false
	for n, field := range i.spec.Fields {
		if v, ok := fieldnavigator.Lookup(doc, field.Name); ok {
			key[n] = v
			containsKey = true
		}
	}
	if i.spec.Sparse && !containsKey {
		return nil
	}
	return []any{key}
}

// Insert implements [domain.Index]. When any document is rejected, the keys
// inserted by this call are rolled back.
func (i *Index) Insert(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	type kv struct {
		key any
		doc domain.Document
	}

	keys := make([]kv, 0, len(docs))

	var err error
DocInsertion:
	for _, d := range docs {
		for _, k := range i.getKeys(d) {
			if err = i.Tree.Insert(k, d); err != nil {
				if e := new(bst.ErrUniqueViolated); errors.As(err, e) {
					err = ErrDuplicateKey{Index: i.spec.Name, Key: k}
				}
				break DocInsertion
			}
			keys = append(keys, kv{key: k, doc: d})
		}
	}
	if err != nil {
		nErrs := make([]error, 1, len(keys)+1)
		nErrs[0] = err
		for _, v := range keys {
			if err := i.Tree.Delete(v.key, &v.doc); err != nil {
				nErrs = append(nErrs, err)
			}
		}
		if len(nErrs) > 1 {
			return errors.Join(nErrs...)
		}
		return err
	}
	return nil
}

// Remove implements [domain.Index].
func (i *Index) Remove(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	errs := make([]error, 0, len(docs))
	for _, d := range docs {
		for _, k := range i.getKeys(d) {
			if err := i.Tree.Delete(k, &d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Update implements [domain.Index].
func (i *Index) Update(ctx context.Context, oldDoc, newDoc domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := i.Remove(ctx, oldDoc); err != nil {
		return err
	}
	if err := i.Insert(ctx, newDoc); err != nil {
		_ = i.Insert(context.WithoutCancel(ctx), oldDoc)
		return err
	}
	return nil
}

// GetMatching returns the documents indexed under any of the given keys, in
// key order.
func (i *Index) GetMatching(value ...any) ([]domain.Document, error) {
	keys := slices.Clone(value)
	slices.SortFunc(keys, i.compareThings)
	keys = slices.CompactFunc(keys, func(a, b any) bool { return i.compareThings(a, b) == 0 })

	var res []domain.Document
	for _, v := range keys {
		found, err := i.Tree.Search(v)
		if err != nil {
			return nil, err
		}
		if found == nil {
			continue
		}
		res = append(res, found.Values()...)
	}
	return res, nil
}

// GetAll returns every indexed document, in key order.
func (i *Index) GetAll() iter.Seq[domain.Document] {
	return i.Tree.GetAll()
}

// GetNumberOfKeys returns the number of distinct keys in the index.
func (i *Index) GetNumberOfKeys() int {
	return i.Tree.GetNumberOfKeys()
}

func (i *Index) compareThings(a any, b any) int {
	comp, _ := i.comparer.Compare(a, b)
	return comp
}
