package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/crodas/tuicha/domain"
)

// Delete removes the documents matching a query without loading them, so no
// lifecycle event is triggered.
type Delete struct {
	query *Query
	multi bool
	wc    domain.WriteConcern
}

// Where adds a predicate to the filter.
func (d *Delete) Where(field string, args ...any) *Delete {
	d.query.Where(field, args...)
	return d
}

// Multi deletes every matching document. It is the default.
func (d *Delete) Multi() *Delete {
	d.multi = true
	return d
}

// One deletes at most one document.
func (d *Delete) One() *Delete {
	d.multi = false
	return d
}

// WriteConcern sets the acknowledgement requested.
func (d *Delete) WriteConcern(wc domain.WriteConcern) *Delete {
	d.wc = wc
	return d
}

// Execute sends the delete.
func (d *Delete) Execute(ctx context.Context) (domain.WriteResult, error) {
	if err := d.query.Err(); err != nil {
		return domain.WriteResult{}, err
	}
	selector := d.query.Document()
	d.query.log.Debug("delete",
		zap.Stringer("ns", d.query.Namespace()),
		zap.Any("filter", selector),
		zap.Bool("multi", d.multi),
	)
	op := domain.WriteOperation{Kind: domain.WriteDelete, Filter: selector, Multi: d.multi}
	return execute(ctx, d.query, []domain.WriteOperation{op}, d.wc)
}
