package querier

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

type M = data.M
type S = domain.Sort

type matcherMock struct{ mock.Mock }

// Match implements [domain.Matcher].
func (m *matcherMock) Match(doc domain.Document, filter domain.Document) (bool, error) {
	call := m.Called(doc, filter)
	return call.Bool(0), call.Error(1)
}

type QuerierTestSuite struct {
	suite.Suite
	q    *Querier
	docs []domain.Document
}

func (s *QuerierTestSuite) SetupTest() {
	s.q = NewQuerier().(*Querier)
	s.docs = []domain.Document{
		M{"_id": 1, "age": 5, "name": "Jo", "planet": "B"},
		M{"_id": 2, "age": 57, "name": "Louis", "planet": "R"},
		M{"_id": 3, "age": 52, "name": "Grafitti", "planet": "C"},
		M{"_id": 4, "age": 23, "name": "LM", "planet": "S"},
		M{"_id": 5, "age": 89, "planet": "Earth"},
	}
}

func (s *QuerierTestSuite) ids(docs []domain.Document) []any {
	res := make([]any, len(docs))
	for n, d := range docs {
		res[n] = d.ID()
	}
	return res
}

func (s *QuerierTestSuite) TestNilData() {
	res, err := s.q.Query(nil)
	s.NoError(err)
	s.Empty(res)
}

func (s *QuerierTestSuite) TestFilter() {
	res, err := s.q.Query(slices.Values(s.docs), domain.WithQueryFilter(M{"age": M{"$gt": 23}}))
	s.NoError(err)
	s.Equal([]any{2, 3, 5}, s.ids(res))
}

func (s *QuerierTestSuite) TestSkipLimitWithoutSort() {
	res, err := s.q.Query(slices.Values(s.docs),
		domain.WithQuerySkip(1),
		domain.WithQueryLimit(2),
	)
	s.NoError(err)
	s.Equal([]any{2, 3}, s.ids(res))
}

func (s *QuerierTestSuite) TestSort() {
	res, err := s.q.Query(slices.Values(s.docs), domain.WithQuerySort(S{{Key: "age", Order: -1}}))
	s.NoError(err)
	s.Equal([]any{5, 2, 3, 4, 1}, s.ids(res))

	// missing values sort first
	res, err = s.q.Query(slices.Values(s.docs), domain.WithQuerySort(S{{Key: "name", Order: 1}}))
	s.NoError(err)
	s.Equal([]any{5, 3, 1, 4, 2}, s.ids(res))
}

func (s *QuerierTestSuite) TestSortSkipLimit() {
	res, err := s.q.Query(slices.Values(s.docs),
		domain.WithQuerySort(S{{Key: "age", Order: 1}}),
		domain.WithQuerySkip(1),
		domain.WithQueryLimit(2),
	)
	s.NoError(err)
	s.Equal([]any{4, 3}, s.ids(res))

	res, err = s.q.Query(slices.Values(s.docs),
		domain.WithQuerySort(S{{Key: "age", Order: 1}}),
		domain.WithQuerySkip(10),
	)
	s.NoError(err)
	s.Empty(res)
}

func (s *QuerierTestSuite) TestProjection() {
	res, err := s.q.Query(slices.Values(s.docs[:1]), domain.WithQueryProjection(map[string]int{"name": 1}))
	s.NoError(err)
	s.Equal([]domain.Document{M{"_id": 1, "name": "Jo"}}, res)
}

func (s *QuerierTestSuite) TestMatcherError() {
	mm := new(matcherMock)
	mm.On("Match", mock.Anything, mock.Anything).Return(false, errors.New("boom"))
	s.q = NewQuerier(WithMatcher(mm)).(*Querier)

	_, err := s.q.Query(slices.Values(s.docs), domain.WithQueryFilter(M{"a": 1}))
	s.ErrorContains(err, "boom")
}

func TestQuerierTestSuite(t *testing.T) {
	suite.Run(t, new(QuerierTestSuite))
}
