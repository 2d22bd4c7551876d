package comparer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
)

type M = data.M

type A = []any

type ComparerTestSuite struct {
	suite.Suite
	c *Comparer
}

func (s *ComparerTestSuite) SetupTest() {
	s.c = NewComparer().(*Comparer)
}

func (s *ComparerTestSuite) compare(a, b any) int {
	comp, err := s.c.Compare(a, b)
	s.Require().NoError(err)
	return comp
}

func (s *ComparerTestSuite) TestNumbers() {
	s.Equal(0, s.compare(1, 1.0))
	s.Equal(-1, s.compare(int8(1), uint64(2)))
	s.Equal(1, s.compare(float32(2.5), 2))
	s.Equal(0, s.compare(int64(-3), -3))
}

func (s *ComparerTestSuite) TestStrings() {
	s.Equal(-1, s.compare("abc", "abd"))
	s.Equal(0, s.compare("x", "x"))
	s.Equal(1, s.compare("b", "a"))
}

func (s *ComparerTestSuite) TestTypeOrder() {
	s.Equal(-1, s.compare(nil, 0))
	s.Equal(-1, s.compare(10, "1"))
	s.Equal(-1, s.compare("z", M{}))
	s.Equal(-1, s.compare(M{"a": 1}, A{1}))
	s.Equal(-1, s.compare(A{}, primitive.NewObjectID()))
	s.Equal(-1, s.compare(primitive.NewObjectID(), false))
	s.Equal(-1, s.compare(true, time.Now()))
	s.Equal(1, s.compare(time.Now(), nil))
}

func (s *ComparerTestSuite) TestTimes() {
	now := time.Now()
	s.Equal(-1, s.compare(now, now.Add(time.Second)))
	s.Equal(0, s.compare(primitive.NewDateTimeFromTime(now.Truncate(time.Millisecond)), now.Truncate(time.Millisecond)))
}

func (s *ComparerTestSuite) TestArrays() {
	s.Equal(0, s.compare(A{1, "a"}, A{1, "a"}))
	s.Equal(-1, s.compare(A{1}, A{1, 2}))
	s.Equal(1, s.compare(A{3}, A{1, 2}))
	s.Equal(0, s.compare([]int{1, 2}, A{1, 2}))
}

func (s *ComparerTestSuite) TestDocuments() {
	s.Equal(0, s.compare(M{"a": 1, "b": 2}, map[string]any{"b": 2, "a": 1}))
	s.Equal(-1, s.compare(M{"a": 1}, M{"a": 2}))
	s.Equal(1, s.compare(M{"b": 1}, M{"a": 1}))
	s.Equal(-1, s.compare(M{"a": 1}, M{"a": 1, "b": 0}))
}

func (s *ComparerTestSuite) TestObjectIDs() {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	s.Equal(-1, s.compare(a, b))
	s.Equal(0, s.compare(a, a))
}

func (s *ComparerTestSuite) TestUnknown() {
	type custom struct{ X int }
	_, err := s.c.Compare(custom{1}, custom{2})
	s.ErrorAs(err, &ErrCannotCompare{})
}

func (s *ComparerTestSuite) TestComparable() {
	s.True(s.c.Comparable(1, 2.5))
	s.True(s.c.Comparable("a", "b"))
	s.True(s.c.Comparable(time.Now(), primitive.NewDateTimeFromTime(time.Now())))
	s.False(s.c.Comparable(1, "1"))
	s.False(s.c.Comparable(true, false))
	s.False(s.c.Comparable(A{}, A{}))
}

func TestComparerTestSuite(t *testing.T) {
	suite.Run(t, new(ComparerTestSuite))
}
