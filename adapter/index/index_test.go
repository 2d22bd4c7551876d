package index

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

type M = data.M
type A = []any

type IndexTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *IndexTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *IndexTestSuite) newIndex(unique, sparse bool, fields ...string) *Index {
	spec := domain.IndexSpec{Unique: unique, Sparse: sparse}
	for _, f := range fields {
		spec.Fields = append(spec.Fields, domain.IndexField{Name: f, Direction: 1})
	}
	idx, err := NewIndex(domain.WithIndexSpec(spec))
	s.Require().NoError(err)
	return idx
}

func (s *IndexTestSuite) TestNoFields() {
	_, err := NewIndex()
	s.ErrorIs(err, ErrNoFields)

	_, err = NewIndex(domain.WithIndexSpec(domain.IndexSpec{Fields: []domain.IndexField{{Name: "a..b"}}}))
	s.Error(err)
}

func (s *IndexTestSuite) TestName() {
	idx := s.newIndex(true, false, "email")
	s.Equal("unique_email_asc", idx.Spec().Name)
}

func (s *IndexTestSuite) TestInsertAndMatch() {
	idx := s.newIndex(false, false, "tf")
	doc1 := M{"_id": 1, "tf": "hello"}
	doc2 := M{"_id": 2, "tf": "world"}
	doc3 := M{"_id": 3, "tf": "hello"}

	s.NoError(idx.Insert(s.ctx, doc1, doc2, doc3))
	s.Equal(2, idx.GetNumberOfKeys())

	found, err := idx.GetMatching("hello")
	s.NoError(err)
	s.ElementsMatch([]domain.Document{doc1, doc3}, found)

	found, err = idx.GetMatching("nope")
	s.NoError(err)
	s.Empty(found)
}

func (s *IndexTestSuite) TestListValues() {
	idx := s.newIndex(false, false, "tags")
	doc := M{"_id": 1, "tags": A{"a", "b", "a"}}
	s.NoError(idx.Insert(s.ctx, doc))
	s.Equal(2, idx.GetNumberOfKeys())

	s.NoError(idx.Remove(s.ctx, doc))
	s.Equal(0, idx.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestUnique() {
	idx := s.newIndex(true, false, "email")
	s.NoError(idx.Insert(s.ctx, M{"_id": 1, "email": "a@b.c"}))

	err := idx.Insert(s.ctx, M{"_id": 2, "email": "x@y.z"}, M{"_id": 3, "email": "a@b.c"})
	var dup ErrDuplicateKey
	s.ErrorAs(err, &dup)
	s.Equal("a@b.c", dup.Key)
	// the whole call was rolled back
	s.Equal(1, idx.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestUniqueMissingFields() {
	idx := s.newIndex(true, false, "email")
	s.NoError(idx.Insert(s.ctx, M{"_id": 1}))
	s.ErrorAs(idx.Insert(s.ctx, M{"_id": 2}), &ErrDuplicateKey{})

	sparse := s.newIndex(true, true, "email")
	s.NoError(sparse.Insert(s.ctx, M{"_id": 1}, M{"_id": 2}))
	s.Equal(0, sparse.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestCompound() {
	idx := s.newIndex(true, false, "a", "b")
	s.NoError(idx.Insert(s.ctx, M{"_id": 1, "a": 1, "b": 1}, M{"_id": 2, "a": 1, "b": 2}))
	s.ErrorAs(idx.Insert(s.ctx, M{"_id": 3, "a": 1, "b": 2}), &ErrDuplicateKey{})

	found, err := idx.GetMatching(A{1, 2})
	s.NoError(err)
	s.Equal([]domain.Document{M{"_id": 2, "a": 1, "b": 2}}, found)
}

func (s *IndexTestSuite) TestUpdate() {
	idx := s.newIndex(true, false, "email")
	old := M{"_id": 1, "email": "a"}
	other := M{"_id": 2, "email": "b"}
	s.NoError(idx.Insert(s.ctx, old, other))

	s.NoError(idx.Update(s.ctx, old, M{"_id": 1, "email": "c"}))
	found, err := idx.GetMatching("c")
	s.NoError(err)
	s.Len(found, 1)

	// failing update keeps the previous entry
	err = idx.Update(s.ctx, M{"_id": 1, "email": "c"}, M{"_id": 1, "email": "b"})
	s.ErrorAs(err, &ErrDuplicateKey{})
	found, err = idx.GetMatching("c")
	s.NoError(err)
	s.Len(found, 1)
}

func (s *IndexTestSuite) TestGetAllSorted() {
	idx := s.newIndex(false, false, "n")
	s.NoError(idx.Insert(s.ctx, M{"_id": 1, "n": 3}, M{"_id": 2, "n": 1}, M{"_id": 3, "n": 2}))
	var ids []any
	for doc := range idx.GetAll() {
		ids = append(ids, doc.ID())
	}
	s.Equal([]any{2, 3, 1}, ids)

	s.NoError(idx.Reset(s.ctx, slices.Collect(idx.GetAll())[:1]...))
	s.Equal(1, idx.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestCanceledContext() {
	idx := s.newIndex(false, false, "n")
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(idx.Insert(ctx, M{}), context.Canceled)
	s.ErrorIs(idx.Remove(ctx, M{}), context.Canceled)
	s.ErrorIs(idx.Update(ctx, M{}, M{}), context.Canceled)
}

func TestIndexTestSuite(t *testing.T) {
	suite.Run(t, new(IndexTestSuite))
}
