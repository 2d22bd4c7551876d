package state

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/crodas/tuicha/adapter/data"
)

type M = data.M

type plain struct{ N int }

type model struct {
	Name string
	Tags []string
}

type embedded struct {
	Document
	N int
}

type StateTestSuite struct {
	suite.Suite
	store *Store
}

func (s *StateTestSuite) SetupTest() {
	s.store = NewStore()
}

func (s *StateTestSuite) TestSnapshotIsCopied() {
	st := &State{}
	s.True(st.IsNew())

	doc := M{"a": M{"b": 1}}
	st.SetSnapshot(doc)
	doc["a"].(M)["b"] = 2
	s.False(st.IsNew())
	s.Equal(M{"a": M{"b": 1}}, st.Snapshot())

	snap := st.Snapshot()
	snap["a"] = 3
	s.Equal(M{"a": M{"b": 1}}, st.Snapshot())

	st.Clear()
	s.True(st.IsNew())
	s.Nil(st.Snapshot())
}

func (s *StateTestSuite) TestBeginEnd() {
	st := &State{}
	s.True(st.Begin())
	s.False(st.Begin())
	st.End()
	s.True(st.Begin())
}

func (s *StateTestSuite) TestSideTable() {
	a, b := &plain{}, &plain{}
	sa := s.store.Of(a)
	s.Same(sa, s.store.Of(a))
	s.NotSame(sa, s.store.Of(b))
	s.Equal(2, s.store.Len())

	sa.SetID(1)
	got, ok := s.store.Lookup(a)
	s.True(ok)
	s.Equal(1, got.ID())

	s.store.Forget(a)
	_, ok = s.store.Lookup(a)
	s.False(ok)
	s.Equal(1, s.store.Len())
}

func (s *StateTestSuite) track(n int) {
	for i := range n {
		s.store.Of(&model{Tags: make([]string, i)}).SetSnapshot(M{"n": i})
	}
}

func (s *StateTestSuite) TestSideTableReleasesCollected() {
	kept := &model{Name: "kept"}
	s.store.Of(kept).SetID(1)
	s.track(100)
	s.Equal(101, s.store.Len())

	s.Eventually(func() bool {
		runtime.GC()
		return s.store.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	st, ok := s.store.Lookup(kept)
	s.True(ok)
	s.Equal(1, st.ID())
	runtime.KeepAlive(kept)
}

func (s *StateTestSuite) TestUntracked() {
	st := s.store.Of(plain{N: 1})
	s.NotSame(st, s.store.Of(plain{N: 1}))
	s.NotPanics(func() { s.store.Of(struct{ L []int }{}) })
	_, ok := s.store.Lookup(plain{})
	s.False(ok)
	s.Zero(s.store.Len())
}

func (s *StateTestSuite) TestHolder() {
	e := &embedded{}
	st := s.store.Of(e)
	s.Same(st, e.TuichaState())
	s.Equal(0, s.store.Len())

	st.SetSnapshot(M{"n": 1})
	st.SetID(5)
	s.store.Forget(e)
	s.True(e.TuichaState().IsNew())
	s.Nil(e.TuichaState().ID())
}

func TestStateTestSuite(t *testing.T) {
	suite.Run(t, new(StateTestSuite))
}
