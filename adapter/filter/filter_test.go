package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/crodas/tuicha/adapter/data"
)

type M = data.M

type A = []any

type FilterTestSuite struct {
	suite.Suite
}

func (s *FilterTestSuite) TestWhere() {
	f := New().Where("a", 1).Where("b", ">", 2)
	s.Equal(M{"a": 1, "b": M{"$gt": 2}}, f.Document())
	s.NoError(f.Err())
}

func (s *FilterTestSuite) TestOperatorTokens() {
	for token, op := range map[string]string{
		"!=":         "$ne",
		"<>":         "$ne",
		">=":         "$gte",
		"<":          "$lt",
		"<=":         "$lte",
		"in":         "$in",
		"$exists":    "$exists",
		"ElemMatch":  "$elemmatch",
		" = ":        "",
		"==":         "",
		"$elemMatch": "$elemMatch",
	} {
		s.Equal(op, Operator(token), token)
	}

	s.Equal(M{"a": 1}, New().Where("a", "==", 1).Document())
	s.Equal(M{"a": M{"$mod": A{2, 0}}}, New().Where("a", "mod", A{2, 0}).Document())
}

func (s *FilterTestSuite) TestMerge() {
	f := New().Gt("age", 18).Lt("age", 65)
	s.Equal(M{"age": M{"$gt": 18, "$lt": 65}}, f.Document())

	f = New().Where("age", 30).Gt("age", 18)
	s.Equal(M{"age": M{"$eq": 30, "$gt": 18}}, f.Document())

	f = New().Gt("age", 18).Where("age", 30)
	s.Equal(M{"age": M{"$gt": 18, "$eq": 30}}, f.Document())

	f = New().Where("age", 1).Where("age", 2)
	s.Equal(M{"age": 2}, f.Document())

	f = New().Where("author", M{"$ref": "users", "$id": 1}).Ne("author", nil)
	s.Equal(M{"author": M{"$eq": M{"$ref": "users", "$id": 1}, "$ne": nil}}, f.Document())

	f = New().Between("n", 1, 5).Set("n", 3)
	s.Equal(M{"n": 3}, f.Document())
}

func (s *FilterTestSuite) TestHelpers() {
	f := New().
		In("a", 1, 2).
		NotIn("b", []string{"x"}).
		All("c").
		Exists("d").
		Exists("e", false).
		Between("f", 1, 9).
		Size("g", 2).
		Type("h", "string").
		Regex("i", "^a", "i").
		ElemMatch("j", func(f *Filter) { f.Gt("k", 1) })
	s.Equal(M{
		"a": M{"$in": A{1, 2}},
		"b": M{"$nin": A{"x"}},
		"c": M{"$all": A{}},
		"d": M{"$exists": true},
		"e": M{"$exists": false},
		"f": M{"$gte": 1, "$lte": 9},
		"g": M{"$size": 2},
		"h": M{"$type": "string"},
		"i": M{"$regex": "^a", "$options": "i"},
		"j": M{"$elemMatch": M{"k": M{"$gt": 1}}},
	}, f.Document())
}

func (s *FilterTestSuite) TestGroups() {
	f := New().Or(
		func(f *Filter) { f.Where("a", 1) },
		func(f *Filter) { f.Where("b", 2) },
	)
	s.Equal(M{"$or": A{M{"a": 1}, M{"b": 2}}}, f.Document())

	f.Or(func(f *Filter) { f.Where("c", 3) })
	s.Equal(M{"$or": A{M{"a": 1}, M{"b": 2}, M{"c": 3}}}, f.Document())

	f = New().And(func(f *Filter) { f.Gt("a", 1) }).Nor(func(f *Filter) { f.Where("b", 2) })
	s.Equal(M{"$and": A{M{"a": M{"$gt": 1}}}, "$nor": A{M{"b": 2}}}, f.Document())

	s.Equal(M{}, New().Or().Document())
}

func (s *FilterTestSuite) TestNot() {
	f := New().Not(func(f *Filter) {
		f.Gt("a", 1).Where("b", "x")
	})
	s.Equal(M{
		"a": M{"$not": M{"$gt": 1}},
		"b": M{"$not": M{"$eq": "x"}},
	}, f.Document())
}

func (s *FilterTestSuite) TestNotMergesPredicates() {
	f := New().Gt("age", 18).Not(func(f *Filter) { f.Eq("age", 30) })
	s.Equal(M{"age": M{"$gt": 18, "$not": M{"$eq": 30}}}, f.Document())

	f = New().Where("name", "ana").Not(func(f *Filter) { f.Where("name", "bea") })
	s.Equal(M{"name": M{"$eq": "ana", "$not": M{"$eq": "bea"}}}, f.Document())

	f = New().Not(func(f *Filter) { f.Eq("age", 30) }).Not(func(f *Filter) { f.Eq("age", 40) })
	s.Equal(M{"$nor": A{M{"age": M{"$eq": 30}}, M{"age": 40}}}, f.Document())
}

func (s *FilterTestSuite) TestNotGroups() {
	f := New().Not(func(f *Filter) {
		f.Or(
			func(f *Filter) { f.Where("a", 1) },
			func(f *Filter) { f.Where("b", 2) },
		)
	})
	s.Equal(M{"$nor": A{M{"$or": A{M{"a": 1}, M{"b": 2}}}}}, f.Document())
}

func (s *FilterTestSuite) TestProperty() {
	f := New()
	f.Prop("age").Gte(18).Prop("age").Lte(30)
	f.Prop("addr").Prop("city").Is("Asunción")
	f.Prop("tags").In("a", "b")
	f.Prop("name").IsNot("x")
	f.Prop("n").Where(">", 1)
	f.Prop("raw").Set(M{"$exists": true})
	s.Equal(M{
		"age":       M{"$gte": 18, "$lte": 30},
		"addr.city": "Asunción",
		"tags":      M{"$in": A{"a", "b"}},
		"name":      M{"$ne": "x"},
		"n":         M{"$gt": 1},
		"raw":       M{"$exists": true},
	}, f.Document())
	s.Equal("a.b", f.Prop("a").Prop("b").Path())
}

func (s *FilterTestSuite) TestErrors() {
	f := New().Where("a").Where("b", 1, 2, 3).Where("c", 1, 2)
	var err ErrInvalidArgs
	s.Require().ErrorAs(f.Err(), &err)
	s.Equal("a", err.Field)

	f = New().Or(func(f *Filter) { f.Where("x") })
	s.Error(f.Err())
}

func (s *FilterTestSuite) TestDocumentIsCopied() {
	f := New().Gt("a", 1)
	doc := f.Document()
	doc["a"].(M)["$gt"] = 5
	s.Equal(M{"a": M{"$gt": 1}}, f.Document())

	c := f.Clone().Lt("a", 3)
	s.Equal(M{"a": M{"$gt": 1}}, f.Document())
	s.Equal(M{"a": M{"$gt": 1, "$lt": 3}}, c.Document())

	s.True(New().IsEmpty())
	s.Equal(M{"a": 1}, From(M{"a": 1}).Document())
}

func (s *FilterTestSuite) TestRename() {
	doc := New().
		Where("Name", "ana").
		Where("Addr.City", "x").
		Or(func(f *Filter) { f.Gt("Age", 1) }).
		Document()
	res := Rename(doc, strings.ToLower)
	s.Equal(M{
		"name":      "ana",
		"addr.city": "x",
		"$or":       A{M{"age": M{"$gt": 1}}},
	}, res)
}

func TestFilterTestSuite(t *testing.T) {
	suite.Run(t, new(FilterTestSuite))
}
