package query

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/diff"
	"github.com/crodas/tuicha/domain"
)

// Update changes the documents matching a query without loading them. All
// operators are sent in a single statement, so they apply to the same
// documents and an upsert inserts at most one document.
type Update struct {
	query  *Query
	ops    domain.UpdateOps
	multi  bool
	upsert bool
	wc     domain.WriteConcern
}

// Where adds a predicate to the filter.
func (u *Update) Where(field string, args ...any) *Update {
	u.query.Where(field, args...)
	return u
}

func (u *Update) add(op, field string, operand any) *Update {
	u.ops.Add(op, u.query.class.StorageName(field), operand)
	return u
}

// Set assigns value to field.
func (u *Update) Set(field string, value any) *Update {
	return u.add("$set", field, value)
}

// Unset removes fields.
func (u *Update) Unset(fields ...string) *Update {
	for _, f := range fields {
		u.add("$unset", f, "")
	}
	return u
}

// Inc increments field by n.
func (u *Update) Inc(field string, n any) *Update {
	return u.add("$inc", field, n)
}

// Add is an alias of [Update.Inc].
func (u *Update) Add(field string, n any) *Update {
	return u.Inc(field, n)
}

// Mul multiplies field by n.
func (u *Update) Mul(field string, n any) *Update {
	return u.add("$mul", field, n)
}

// Multiply is an alias of [Update.Mul].
func (u *Update) Multiply(field string, n any) *Update {
	return u.Mul(field, n)
}

// Now sets fields to the current date of the server.
func (u *Update) Now(fields ...string) *Update {
	for _, f := range fields {
		u.add("$currentDate", f, data.M{"$type": "date"})
	}
	return u
}

// Rename moves the value of field from to field to.
func (u *Update) Rename(from, to string) *Update {
	return u.add("$rename", from, u.query.class.StorageName(to))
}

// Push appends values to the list in field.
func (u *Update) Push(field string, values ...any) *Update {
	if len(values) == 1 {
		return u.add("$push", field, values[0])
	}
	return u.add("$push", field, data.M{"$each": values})
}

// Pull removes the elements of the list in field matching cond, a value or
// an operator document.
func (u *Update) Pull(field string, cond any) *Update {
	return u.add("$pull", field, cond)
}

// Upsert inserts a document when nothing matches.
func (u *Update) Upsert() *Update {
	u.upsert = true
	return u
}

// Multi updates every matching document. It is the default.
func (u *Update) Multi() *Update {
	u.multi = true
	return u
}

// One updates at most one document.
func (u *Update) One() *Update {
	u.multi = false
	return u
}

// WriteConcern sets the acknowledgement requested.
func (u *Update) WriteConcern(wc domain.WriteConcern) *Update {
	u.wc = wc
	return u
}

// Operations returns the update document sent, with every operator.
func (u *Update) Operations() data.M {
	res := data.M{}
	for _, upd := range diff.Updates(u.ops) {
		maps.Copy(res, upd)
	}
	return res
}

// Execute sends the update. Nothing is sent when no operator was added.
func (u *Update) Execute(ctx context.Context) (domain.WriteResult, error) {
	if err := u.query.Err(); err != nil {
		return domain.WriteResult{}, err
	}
	if u.ops.IsEmpty() {
		return domain.WriteResult{}, nil
	}
	op := domain.WriteOperation{
		Kind:   domain.WriteUpdate,
		Filter: u.query.Document(),
		Update: u.Operations(),
		Multi:  u.multi,
		Upsert: u.upsert,
	}
	u.query.log.Debug("update",
		zap.Stringer("ns", u.query.Namespace()),
		zap.Any("filter", op.Filter),
		zap.Int("fields", u.ops.Len()),
	)
	return execute(ctx, u.query, []domain.WriteOperation{op}, u.wc)
}

func execute(ctx context.Context, q *Query, ops []domain.WriteOperation, wc domain.WriteConcern) (domain.WriteResult, error) {
	res, err := q.client.ExecuteWrite(ctx, q.Namespace(), ops, wc)
	if err != nil {
		return res, err
	}
	if len(res.WriteErrors) > 0 {
		return res, domain.WriteErrors(res.WriteErrors)
	}
	return res, nil
}
