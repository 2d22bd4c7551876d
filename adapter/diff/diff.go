// Package diff computes the update operators turning a stored document into
// its current version.
package diff

import (
	"maps"
	"slices"
	"strconv"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// Update operators emitted by [Diff].
const (
	OpSet     = "$set"
	OpUnset   = "$unset"
	OpPush    = "$push"
	OpPullAll = "$pullAll"
)

// Diff returns the operators that turn oldDoc into newDoc. It is pure and
// deterministic: equal documents produce no operators, values are compared
// strictly (int 1 and float 1 differ) and lists are updated by position,
// with tail additions pushed and tail removals pulled.
func Diff(newDoc, oldDoc data.M) domain.UpdateOps {
	ops := domain.UpdateOps{}
	diffDocs(ops, "", newDoc, oldDoc)
	return ops
}

// Updates renders ops as one update document per operator, in the order they
// must be applied.
func Updates(ops domain.UpdateOps) []data.M {
	res := make([]data.M, 0, len(ops))
	for _, op := range ops.Ops() {
		res = append(res, data.M{op: data.M(maps.Clone(ops[op]))})
	}
	return res
}

func diffDocs(ops domain.UpdateOps, prefix string, newDoc, oldDoc data.M) {
	for _, key := range slices.Sorted(maps.Keys(newDoc)) {
		value := newDoc[key]
		old, has := oldDoc[key]
		switch {
		case !has:
			ops.Add(OpSet, prefix+key, data.Copy(value))
		case !data.Equal(value, old):
			diffValues(ops, prefix+key, value, old)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(oldDoc)) {
		if _, has := newDoc[key]; !has {
			ops.Add(OpUnset, prefix+key, "")
		}
	}
}

func diffValues(ops domain.UpdateOps, path string, value, old any) {
	newList, newIsList := value.([]any)
	oldList, oldIsList := old.([]any)
	if newIsList && oldIsList {
		diffLists(ops, path, newList, oldList)
		return
	}
	newDoc, newIsDoc := data.AsDocument(value)
	oldDoc, oldIsDoc := data.AsDocument(old)
	if newIsDoc && oldIsDoc && sameShape(newDoc, oldDoc) {
		diffDocs(ops, path+".", newDoc, oldDoc)
		return
	}
	ops.Add(OpSet, path, data.Copy(value))
}

// sameShape reports whether two documents can be diffed key by key. Reference
// documents and documents of different classes are replaced as a whole.
func sameShape(a, b data.M) bool {
	if a.Has(domain.RefField) || b.Has(domain.RefField) {
		return false
	}
	return data.Equal(a[domain.ClassField], b[domain.ClassField])
}

func diffLists(ops domain.UpdateOps, path string, newList, oldList []any) {
	common := min(len(newList), len(oldList))
	var removed []any
	if len(oldList) > len(newList) {
		removed = oldList[len(newList):]
		// $pullAll removes every occurrence, including retained ones
		for _, r := range removed {
			if slices.ContainsFunc(newList, func(v any) bool { return data.Equal(v, r) }) {
				ops.Add(OpSet, path, data.Copy(newList))
				return
			}
		}
	}
	for i := range common {
		if !data.Equal(newList[i], oldList[i]) {
			diffValues(ops, path+"."+strconv.Itoa(i), newList[i], oldList[i])
		}
	}
	if len(newList) > len(oldList) {
		added := data.Copy(newList[len(oldList):])
		ops.Add(OpPush, path, data.M{"$each": added})
	}
	if len(removed) > 0 {
		ops.Add(OpPullAll, path, data.Copy(removed))
	}
}
