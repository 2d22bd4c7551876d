package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

type M = data.M

type decoderMock struct{ mock.Mock }

// Decode implements [domain.Decoder].
func (d *decoderMock) Decode(src any, tgt any) error {
	return d.Called(src, tgt).Error(0)
}

type Obj struct {
	A int
}

type CursorTestSuite struct {
	suite.Suite
	data []domain.Document
}

func (s *CursorTestSuite) SetupSuite() {
	s.data = make([]domain.Document, 100)
	for n := range 100 {
		s.data[n] = M{"a": n}
	}
}

func (s *CursorTestSuite) TestNilData() {
	cur, err := NewCursor(context.Background(), nil)
	s.NoError(err)
	s.False(cur.Next())
	s.Nil(cur.Current())
	s.NoError(cur.Err())
}

func (s *CursorTestSuite) TestStructs() {
	cur, err := NewCursor(context.Background(), s.data)
	s.NoError(err)

	count := 0
	for cur.Next() {
		var obj Obj
		s.NoError(cur.Scan(context.Background(), &obj))
		s.Equal(count, obj.A)
		s.Equal(M{"a": count}, cur.Current())
		count++
	}
	s.Equal(100, count)
	s.NoError(cur.Err())
}

func (s *CursorTestSuite) TestScanBeforeNext() {
	cur, err := NewCursor(context.Background(), s.data)
	s.NoError(err)
	var obj Obj
	s.ErrorIs(cur.Scan(context.Background(), &obj), domain.ErrScanBeforeNext)
}

func (s *CursorTestSuite) TestClosed() {
	cur, err := NewCursor(context.Background(), s.data)
	s.NoError(err)
	s.True(cur.Next())
	s.NoError(cur.Close())
	s.NoError(cur.Close())
	s.False(cur.Next())
	s.NoError(cur.Err())
	var obj Obj
	s.ErrorIs(cur.Scan(context.Background(), &obj), domain.ErrCursorClosed)
}

func (s *CursorTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCursor(ctx, s.data)
	s.ErrorIs(err, context.Canceled)
}

func (s *CursorTestSuite) TestDecoder() {
	dm := new(decoderMock)
	dm.On("Decode", M{"a": 0}, mock.Anything).Return(errors.New("nope")).Once()
	cur, err := NewCursor(context.Background(), s.data, domain.WithCursorDecoder(dm))
	s.NoError(err)
	s.True(cur.Next())
	var obj Obj
	s.ErrorContains(cur.Scan(context.Background(), &obj), "nope")
	dm.AssertExpectations(s.T())
}

func (s *CursorTestSuite) TestRewind() {
	calls := 0
	refill := func() ([]domain.Document, error) {
		calls++
		return []domain.Document{M{"a": calls}}, nil
	}
	cur, err := NewCursor(context.Background(), s.data[:2], domain.WithCursorRefill(refill))
	s.NoError(err)
	for cur.Next() {
	}
	s.NoError(cur.Rewind())
	s.Equal(1, cur.Len())
	s.True(cur.Next())
	s.Equal(M{"a": 1}, cur.Current())

	failing := func() ([]domain.Document, error) { return nil, errors.New("gone") }
	cur, err = NewCursor(context.Background(), s.data, domain.WithCursorRefill(failing))
	s.NoError(err)
	s.ErrorContains(cur.Rewind(), "gone")
	s.ErrorContains(cur.Err(), "gone")
}

func TestCursorTestSuite(t *testing.T) {
	suite.Run(t, new(CursorTestSuite))
}
