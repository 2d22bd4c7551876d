// Package querier contains the default [domain.Querier] implementation.
package querier

import (
	"fmt"
	"iter"
	"slices"

	"github.com/crodas/tuicha/adapter/comparer"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/adapter/matcher"
	"github.com/crodas/tuicha/adapter/projector"
	"github.com/crodas/tuicha/domain"
)

// Querier implements [domain.Querier].
type Querier struct {
	mtchr domain.Matcher
	cmpr  domain.Comparer
	proj  domain.Projector
}

// NewQuerier returns a new implementation of [domain.Querier].
func NewQuerier(opts ...Option) domain.Querier {
	q := Querier{
		cmpr: comparer.NewComparer(),
		proj: projector.NewProjector(),
	}
	for _, opt := range opts {
		opt(&q)
	}
	if q.mtchr == nil {
		q.mtchr = matcher.NewMatcher(matcher.WithComparer(q.cmpr))
	}
	return &q
}

// Query implements [domain.Querier].
func (q *Querier) Query(data iter.Seq[domain.Document], opts ...domain.QueryOption) ([]domain.Document, error) {
	if data == nil {
		return make([]domain.Document, 0), nil
	}

	var options domain.QueryOptions
	for _, opt := range opts {
		opt(&options)
	}

	res, finished, err := q.filter(data, options)
	if err != nil {
		return nil, err
	}

	if !finished && len(options.Sort) > 0 {
		sorted, err := q.sort(res, options.Sort)
		if err != nil {
			return nil, fmt.Errorf("sorting: %w", err)
		}
		res = q.skipAndLimit(sorted, options.Skip, options.Limit)
	}

	res, err = q.proj.Project(res, options.Projection)
	if err != nil {
		return nil, fmt.Errorf("projecting: %w", err)
	}
	return res, nil
}

// filter returns the matching documents. Without sorting, skip and limit are
// applied while iterating and the second return value is true.
func (q *Querier) filter(data iter.Seq[domain.Document], opts domain.QueryOptions) ([]domain.Document, bool, error) {
	var skipped int64
	sorted := len(opts.Sort) > 0
	res := make([]domain.Document, 0)

	for doc := range data {
		if opts.Filter != nil {
			matches, err := q.mtchr.Match(doc, opts.Filter)
			if err != nil {
				return nil, false, fmt.Errorf("matching document: %w", err)
			}
			if !matches {
				continue
			}
		}
		if !sorted {
			if skipped < opts.Skip {
				skipped++
				continue
			}
			if opts.Limit > 0 && int64(len(res)) == opts.Limit {
				break
			}
		}
		res = append(res, doc)
	}
	return res, !sorted, nil
}

func (q *Querier) sort(data []domain.Document, sort domain.Sort) ([]domain.Document, error) {
	res := slices.Clone(data)
	var err error
	slices.SortStableFunc(res, func(a, b domain.Document) int {
		if err != nil {
			return 0
		}
		for _, crit := range sort {
			comp, cErr := q.compareByCriterion(a, b, crit)
			if cErr != nil {
				err = cErr
				return 0
			}
			if comp != 0 {
				return comp
			}
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *Querier) compareByCriterion(a, b domain.Document, crit domain.SortName) (int, error) {
	critA, _ := fieldnavigator.Lookup(a, crit.Key)
	critB, _ := fieldnavigator.Lookup(b, crit.Key)

	comp, err := q.cmpr.Compare(critA, critB)
	if err != nil {
		return 0, fmt.Errorf("comparing: %w", err)
	}
	if crit.Order < 0 {
		return -comp, nil
	}
	return comp, nil
}

func (q *Querier) skipAndLimit(data []domain.Document, skip, limit int64) []domain.Document {
	length := int64(len(data))

	skip = max(skip, 0)      // skip cannot be negative
	skip = min(skip, length) // cannot skip more than length

	end := length
	if limit > 0 {
		end = min(skip+limit, length)
	}

	return data[skip:end]
}
