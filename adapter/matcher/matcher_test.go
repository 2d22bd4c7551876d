package matcher

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

type M = data.M

type A = []any

type comparerMock struct{ mock.Mock }

// Comparable implements [domain.Comparer].
func (c *comparerMock) Comparable(a any, b any) bool {
	return c.Called(a, b).Bool(0)
}

// Compare implements [domain.Comparer].
func (c *comparerMock) Compare(a any, b any) (int, error) {
	call := c.Called(a, b)
	return call.Int(0), call.Error(1)
}

type MatcherTestSuite struct {
	suite.Suite
	m *Matcher
}

func (s *MatcherTestSuite) SetupTest() {
	s.m = NewMatcher().(*Matcher)
}

func (s *MatcherTestSuite) match(doc, filter M) bool {
	ok, err := s.m.Match(doc, filter)
	s.Require().NoError(err)
	return ok
}

func (s *MatcherTestSuite) TestEmptyFilter() {
	s.True(s.match(M{"a": 1}, M{}))
	s.True(s.match(M{"a": 1}, nil))
}

func (s *MatcherTestSuite) TestEquality() {
	doc := M{"a": 1, "b": "x", "c": M{"d": 2}, "tags": A{"go", "db"}}
	s.True(s.match(doc, M{"a": 1}))
	s.True(s.match(doc, M{"a": 1.0}))
	s.False(s.match(doc, M{"a": 2}))
	s.True(s.match(doc, M{"c.d": 2}))
	s.True(s.match(doc, M{"c": M{"d": 2}}))
	s.True(s.match(doc, M{"tags": "go"}))
	s.True(s.match(doc, M{"tags": A{"go", "db"}}))
	s.True(s.match(doc, M{"missing": nil}))
	s.False(s.match(doc, M{"missing": 1}))
}

func (s *MatcherTestSuite) TestComparisons() {
	doc := M{"age": 20, "scores": A{3, 9}}
	s.True(s.match(doc, M{"age": M{"$gt": 18}}))
	s.True(s.match(doc, M{"age": M{"$gte": 20, "$lte": 20}}))
	s.False(s.match(doc, M{"age": M{"$lt": 20}}))
	s.True(s.match(doc, M{"scores": M{"$gt": 8}}))
	s.False(s.match(doc, M{"age": M{"$gt": "10"}}))
	s.True(s.match(doc, M{"age": M{"$ne": 21}}))
	s.True(s.match(doc, M{"age": M{"$eq": 20}}))
}

func (s *MatcherTestSuite) TestInAndNin() {
	doc := M{"a": 2, "tags": A{"x", "y"}}
	s.True(s.match(doc, M{"a": M{"$in": A{1, 2}}}))
	s.False(s.match(doc, M{"a": M{"$nin": A{1, 2}}}))
	s.True(s.match(doc, M{"tags": M{"$in": A{"y"}}}))
	s.True(s.match(doc, M{"tags": M{"$in": A{regexp.MustCompile("^x")}}}))
	s.True(s.match(doc, M{"b": M{"$nin": A{1}}}))

	_, err := s.m.Match(doc, M{"a": M{"$in": 1}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestAllSizeExistsType() {
	doc := M{"tags": A{"a", "b", "c"}, "n": 1.5, "id": primitive.NewObjectID(), "at": time.Now()}
	s.True(s.match(doc, M{"tags": M{"$all": A{"a", "c"}}}))
	s.False(s.match(doc, M{"tags": M{"$all": A{"a", "z"}}}))
	s.True(s.match(doc, M{"tags": M{"$size": 3}}))
	s.False(s.match(doc, M{"tags": M{"$size": 2}}))
	s.True(s.match(doc, M{"tags": M{"$exists": true}}))
	s.True(s.match(doc, M{"nope": M{"$exists": false}}))
	s.True(s.match(doc, M{"n": M{"$type": "double"}}))
	s.True(s.match(doc, M{"n": M{"$type": "number"}}))
	s.True(s.match(doc, M{"tags": M{"$type": "array"}}))
	s.True(s.match(doc, M{"id": M{"$type": "objectId"}}))
	s.True(s.match(doc, M{"at": M{"$type": A{"string", "date"}}}))
}

func (s *MatcherTestSuite) TestRegex() {
	doc := M{"email": "Foo@Example.com"}
	s.False(s.match(doc, M{"email": regexp.MustCompile(`@example\.com$`)}))
	s.True(s.match(doc, M{"email": M{"$regex": `@example\.com$`, "$options": "i"}}))
	s.True(s.match(doc, M{"email": M{"$regex": primitive.Regex{Pattern: "^foo", Options: "i"}}}))

	_, err := s.m.Match(doc, M{"email": M{"$regex": 1}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestLogic() {
	doc := M{"a": 1, "b": 2}
	s.True(s.match(doc, M{"$or": A{M{"a": 5}, M{"b": 2}}}))
	s.False(s.match(doc, M{"$or": A{M{"a": 5}, M{"b": 5}}}))
	s.True(s.match(doc, M{"$and": A{M{"a": 1}, M{"b": 2}}}))
	s.False(s.match(doc, M{"$and": A{M{"a": 1}, M{"b": 3}}}))
	s.True(s.match(doc, M{"$nor": A{M{"a": 5}, M{"b": 5}}}))
	s.False(s.match(doc, M{"$nor": A{M{"a": 1}}}))
	s.True(s.match(doc, M{"$not": M{"a": 5}}))
}

func (s *MatcherTestSuite) TestFieldNot() {
	doc := M{"a": 10}
	s.True(s.match(doc, M{"a": M{"$not": M{"$gt": 20}}}))
	s.False(s.match(doc, M{"a": M{"$not": M{"$eq": 10}}}))
	s.True(s.match(doc, M{"a": M{"$not": regexp.MustCompile("x")}}))
}

func (s *MatcherTestSuite) TestElemMatch() {
	doc := M{"items": A{M{"k": "a", "v": 1}, M{"k": "b", "v": 5}}, "nums": A{1, 7}}
	s.True(s.match(doc, M{"items": M{"$elemMatch": M{"k": "b", "v": M{"$gt": 4}}}}))
	s.False(s.match(doc, M{"items": M{"$elemMatch": M{"k": "a", "v": M{"$gt": 4}}}}))
	s.True(s.match(doc, M{"nums": M{"$elemMatch": M{"$gt": 5, "$lt": 8}}}))
}

func (s *MatcherTestSuite) TestWhere() {
	fn := func(d domain.Document) (bool, error) { return d.Get("a") == 1, nil }
	s.True(s.match(M{"a": 1}, M{"$where": fn}))

	boom := errors.New("boom")
	_, err := s.m.Match(M{}, M{"$where": func(domain.Document) (bool, error) { return false, boom }})
	s.ErrorIs(err, boom)
}

func (s *MatcherTestSuite) TestErrors() {
	_, err := s.m.Match(M{}, M{"$xor": A{}})
	s.ErrorAs(err, &ErrUnknownOperator{})

	_, err = s.m.Match(M{"a": 1}, M{"a": M{"$bad": 1}})
	s.ErrorAs(err, &ErrUnknownOperator{})

	_, err = s.m.Match(M{"a": 1}, M{"a": M{"$gt": 1, "b": 2}})
	s.ErrorIs(err, ErrMixedOperators)

	_, err = s.m.Match(M{}, M{"$or": 1})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestCustomComparer() {
	c := new(comparerMock)
	c.On("Comparable", 1, 2).Return(true).Once()
	c.On("Compare", 1, 2).Return(0, nil).Once()
	s.m = NewMatcher(WithComparer(c)).(*Matcher)
	s.True(s.match(M{"a": 1}, M{"a": 2}))
	c.AssertExpectations(s.T())
}

func TestMatcherTestSuite(t *testing.T) {
	suite.Run(t, new(MatcherTestSuite))
}
