// Package comparer contains the default [domain.Comparer] implementation.
package comparer

import (
	"cmp"
	"fmt"
	"math/big"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// ErrCannotCompare is returned when two values of types without a defined
// ordering are compared.
type ErrCannotCompare struct {
	A, B any
}

// Error implements [error].
func (e ErrCannotCompare) Error() string {
	return fmt.Sprintf("cannot compare unexpected types %T and %T", e.A, e.B)
}

// Comparer implements domain.Comparer. Values of different types are ordered
// the way the store orders them: null, numbers, strings, documents, lists,
// identities, booleans, dates.
type Comparer struct{}

// NewComparer returns a new implementation of domain.Comparer.
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements domain.Comparer.
func (c *Comparer) Comparable(a, b any) bool {
	if _, ok := c.asNumber(a); ok {
		_, ok = c.asNumber(b)
		return ok
	}
	a, b = c.normalizeTime(a), c.normalizeTime(b)
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case time.Time:
		_, ok := b.(time.Time)
		return ok
	case primitive.ObjectID:
		_, ok := b.(primitive.ObjectID)
		return ok
	default:
		return false
	}
}

// Compare implements domain.Comparer.
func (c *Comparer) Compare(a, b any) (int, error) {
	a, b = c.normalizeTime(a), c.normalizeTime(b)
	ra, rb := c.rank(a), c.rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb), nil
	}

	switch ra {
	case rankNull:
		return 0, nil
	case rankNumber:
		na, _ := c.asNumber(a)
		nb, _ := c.asNumber(b)
		return na.Cmp(nb), nil
	case rankString:
		return cmp.Compare(a.(string), b.(string)), nil
	case rankDocument:
		da, _ := data.AsDocument(a)
		db, _ := data.AsDocument(b)
		return c.compareDoc(da, db)
	case rankList:
		la, _ := data.AsList(a)
		lb, _ := data.AsList(b)
		return c.compareArray(la, lb)
	case rankObjectID:
		oa, ob := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return slices.Compare(oa[:], ob[:]), nil
	case rankBool:
		return c.compareBool(a.(bool), b.(bool)), nil
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time)), nil
	default:
		return 0, ErrCannotCompare{A: a, B: b}
	}
}

const (
	rankNull = iota
	rankNumber
	rankString
	rankDocument
	rankList
	rankObjectID
	rankBool
	rankTime
	rankUnknown
)

func (c *Comparer) rank(v any) int {
	if v == nil {
		return rankNull
	}
	if _, ok := c.asNumber(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case string:
		return rankString
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case primitive.ObjectID:
		return rankObjectID
	}
	if _, ok := data.AsDocument(v); ok {
		return rankDocument
	}
	if _, ok := data.AsList(v); ok {
		return rankList
	}
	return rankUnknown
}

func (c *Comparer) normalizeTime(v any) any {
	if dt, ok := v.(primitive.DateTime); ok {
		return dt.Time()
	}
	return v
}

func (c *Comparer) compareArray(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		comp, err := c.Compare(a[i], b[i])
		if err != nil || comp != 0 {
			return comp, err
		}
	}

	// Common section was identical, longest one wins
	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return 1
	}
	return -1
}

func (c *Comparer) compareDoc(a, b data.M) (int, error) {
	aKeys := slices.Sorted(a.Keys())
	bKeys := slices.Sorted(b.Keys())

	for i := range min(len(aKeys), len(bKeys)) {
		if comp := cmp.Compare(aKeys[i], bKeys[i]); comp != 0 {
			return comp, nil
		}
		comp, err := c.Compare(a[aKeys[i]], b[bKeys[i]])
		if err != nil || comp != 0 {
			return comp, err
		}
	}

	return cmp.Compare(len(aKeys), len(bKeys)), nil
}

func (c *Comparer) asNumber(v any) (*big.Float, bool) {
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		r.SetFloat64(float64(n))
	case float64:
		r.SetFloat64(n)
	default:
		return nil, false
	}
	return r, true
}
