package odm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/filter"
	"github.com/crodas/tuicha/adapter/memory"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/adapter/reference"
	"github.com/crodas/tuicha/domain"
)

type M = data.M

type A = []any

type Writer struct {
	metadata.Collection `tuicha:"writers"`
	ID                  primitive.ObjectID
	Name                string `tuicha:"name,required"`
	Email               string `tuicha:"email,unique"`
}

type Book struct {
	ID     primitive.ObjectID
	Title  string               `tuicha:"title,index"`
	Author *reference.Reference `tuicha:"author,cache=name"`
}

type Log struct {
	metadata.Collection `tuicha:"logs,connection=audit"`
	Line                string `tuicha:"line"`
}

type audit struct {
	created []string
}

func (a *audit) Created(w *Writer) {
	a.created = append(a.created, w.Name)
}

type ODMTestSuite struct {
	suite.Suite
	ctx context.Context
	db  *memory.Client
	o   *ODM
}

func (s *ODMTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = memory.NewClient()
	s.o = New(WithConnection(metadata.DefaultConnection, s.db, "app"))
}

func (s *ODMTestSuite) count(model any, filters ...*filter.Filter) int64 {
	n, err := s.o.Count(s.ctx, model, filters...)
	s.Require().NoError(err)
	return n
}

func (s *ODMTestSuite) TestConnections() {
	_, _, err := s.o.Connection("audit")
	s.ErrorAs(err, new(domain.ConfigurationError))
	s.ErrorAs(s.o.Save(s.ctx, &Log{Line: "x"}), new(domain.ConfigurationError))

	other := memory.NewClient()
	s.o.AddConnection("audit", other, "audit")
	client, db, err := s.o.Connection("audit")
	s.NoError(err)
	s.Same(other, client)
	s.Equal("audit", db)

	s.Require().NoError(s.o.Save(s.ctx, &Log{Line: "x"}))
	s.Equal(int64(1), s.count(&Log{}))
	s.Zero(s.count(&Writer{}))
}

func (s *ODMTestSuite) TestSaveAndFind() {
	w := &Writer{Name: "Ana"}
	s.Require().NoError(s.o.Save(s.ctx, w))
	s.False(s.o.IsNew(w))

	q, err := s.o.Find(&Writer{}, filter.New().Where("Name", "Ana"))
	s.Require().NoError(err)
	obj, err := q.FirstOrFail(s.ctx)
	s.Require().NoError(err)
	s.Equal(w.ID, obj.(*Writer).ID)

	_, err = s.o.Find(&Writer{}, filter.New().Where("name", 1, 2, 3))
	s.ErrorAs(err, new(filter.ErrInvalidArgs))
	_, err = s.o.Find(42)
	s.ErrorAs(err, new(domain.ConfigurationError))
}

func (s *ODMTestSuite) TestReferences() {
	w := &Writer{Name: "Ana"}
	b := &Book{Title: "Go", Author: reference.To(w)}
	s.Require().NoError(s.o.Save(s.ctx, b))
	s.False(w.ID.IsZero(), "referenced objects are saved first")
	s.Equal(int64(1), s.count(&Writer{}))

	q, err := s.o.Find(&Book{})
	s.Require().NoError(err)
	obj, err := q.First(s.ctx)
	s.Require().NoError(err)
	ref := obj.(*Book).Author
	s.Require().NotNil(ref)
	s.False(ref.IsResolved())
	s.Equal("writers", ref.Collection)
	s.Equal(w.ID, ref.ID)

	name, err := ref.Get(s.ctx, "name")
	s.NoError(err)
	s.Equal("Ana", name)
	s.False(ref.IsResolved(), "cached fields do not load the target")

	email, err := ref.Get(s.ctx, "Email")
	s.NoError(err)
	s.Equal("", email)
	s.True(ref.IsResolved())
	target, err := ref.Object(s.ctx)
	s.NoError(err)
	s.Equal(w.ID, target.(*Writer).ID)

	gone := reference.New("writers", primitive.NewObjectID(), s.o)
	_, err = gone.Object(s.ctx)
	s.ErrorAs(err, new(domain.ReferenceResolutionError))

	_, err = s.o.Resolve(s.ctx, "unknown", 1)
	s.ErrorAs(err, new(domain.ConfigurationError))
}

func (s *ODMTestSuite) TestSaveLoadedObject() {
	s.Require().NoError(s.o.Save(s.ctx, &Writer{Name: "Ana"}))
	q, err := s.o.Find(&Writer{})
	s.Require().NoError(err)
	obj, err := q.First(s.ctx)
	s.Require().NoError(err)

	var events []domain.Event
	s.Require().NoError(s.o.On(&Writer{}, domain.EventUpdated, func(context.Context, any) error {
		events = append(events, domain.EventUpdated)
		return nil
	}))
	s.Require().NoError(s.o.Save(s.ctx, obj))
	s.Empty(events)

	obj.(*Writer).Email = "ana@example.com"
	s.Require().NoError(s.o.Save(s.ctx, obj))
	s.Equal([]domain.Event{domain.EventUpdated}, events)
}

func (s *ODMTestSuite) TestUpdateAndDelete() {
	for _, name := range []string{"a", "b", "c"} {
		s.Require().NoError(s.o.Save(s.ctx, &Writer{Name: name}))
	}

	u, err := s.o.Update(&Writer{}, filter.New().In("name", "a", "b"))
	s.Require().NoError(err)
	res, err := u.Set("Email", "x@y.z").Execute(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), res.ModifiedCount)
	s.Equal(int64(2), s.count(&Writer{}, filter.New().Where("email", "x@y.z")))

	d, err := s.o.Delete(&Writer{}, filter.New().Where("name", "c"))
	s.Require().NoError(err)
	res, err = d.Execute(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), res.DeletedCount)
	s.Equal(int64(2), s.count(&Writer{}))
}

func (s *ODMTestSuite) TestRemoveAndReload() {
	w := &Writer{Name: "Ana"}
	s.Require().NoError(s.o.Save(s.ctx, w))
	w.Name = "Bea"
	s.Require().NoError(s.o.Reload(s.ctx, w))
	s.Equal("Ana", w.Name)

	s.Require().NoError(s.o.Remove(s.ctx, w))
	s.True(s.o.IsNew(w))
	s.Zero(s.count(&Writer{}))
}

func (s *ODMTestSuite) TestCreateIndexes() {
	s.Require().NoError(s.o.CreateIndexes(s.ctx, &Writer{}, &Book{}, &Log{}))

	cur, err := s.db.ExecuteCommand(s.ctx, "app", domain.Command{Name: domain.CommandListIndexes, Value: "books"})
	s.Require().NoError(err)
	var names []any
	for cur.Next() {
		names = append(names, cur.Current().Get("name"))
	}
	s.Equal(A{"_id_", "index_title_asc", "index_author.$ref_asc_author.$id_asc"}, names)

	s.Require().NoError(s.o.Save(s.ctx, &Writer{Name: "a", Email: "same"}))
	err = s.o.Save(s.ctx, &Writer{Name: "b", Email: "same"})
	var werr domain.WriteError
	s.Require().ErrorAs(err, &werr)
	s.Equal(domain.DuplicateKeyCode, werr.Code)
}

func (s *ODMTestSuite) TestTruncateAndDropDatabase() {
	s.Require().NoError(s.o.Save(s.ctx, &Writer{Name: "a"}))
	s.Require().NoError(s.o.Save(s.ctx, &Book{Title: "t"}))

	s.Require().NoError(s.o.Truncate(s.ctx, &Writer{}))
	s.Zero(s.count(&Writer{}))
	s.Equal(int64(1), s.count(&Book{}))

	s.Require().NoError(s.o.DropDatabase(s.ctx, metadata.DefaultConnection))
	s.Zero(s.count(&Book{}))
	s.ErrorAs(s.o.DropDatabase(s.ctx, "nope"), new(domain.ConfigurationError))
}

func (s *ODMTestSuite) TestObserve() {
	a := &audit{}
	s.Require().NoError(s.o.Observe(&Writer{}, a))
	s.Require().NoError(s.o.Save(s.ctx, &Writer{Name: "Ana"}))
	s.Equal([]string{"Ana"}, a.created)

	s.Error(s.o.Observe(&Writer{}, struct{}{}))
}

func (s *ODMTestSuite) TestDocument() {
	w := &Writer{Name: "Ana"}
	doc, err := s.o.Document(s.ctx, w)
	s.Require().NoError(err)
	s.Equal(M{"name": "Ana", "email": ""}, doc)
	s.True(w.ID.IsZero())
}

func TestODMTestSuite(t *testing.T) {
	suite.Run(t, new(ODMTestSuite))
}
