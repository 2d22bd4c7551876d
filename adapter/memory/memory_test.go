package memory

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

type M = data.M
type A = []any

type idGeneratorMock struct{ mock.Mock }

// GenerateID implements [domain.IDGenerator].
func (i *idGeneratorMock) GenerateID() (any, error) {
	call := i.Called()
	return call.Get(0), call.Error(1)
}

type MemoryTestSuite struct {
	suite.Suite
	ctx context.Context
	c   *Client
	ns  domain.Namespace
}

func (s *MemoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.c = NewClient()
	s.ns = domain.Namespace{Database: "test", Collection: "users"}
}

func (s *MemoryTestSuite) insert(docs ...M) domain.WriteResult {
	ops := make([]domain.WriteOperation, len(docs))
	for n, d := range docs {
		ops[n] = domain.WriteOperation{Kind: domain.WriteInsert, Document: d}
	}
	res, err := s.c.ExecuteWrite(s.ctx, s.ns, ops, domain.WriteConcern{W: 1})
	s.Require().NoError(err)
	return res
}

func (s *MemoryTestSuite) all(filter M, opts ...domain.QueryOption) []domain.Document {
	cur, err := s.c.Query(s.ctx, s.ns, filter, opts...)
	s.Require().NoError(err)
	var res []domain.Document
	for cur.Next() {
		res = append(res, cur.Current())
	}
	s.Require().NoError(cur.Err())
	s.Require().NoError(cur.Close())
	return res
}

func (s *MemoryTestSuite) command(name string, value any, args map[string]any) M {
	cur, err := s.c.ExecuteCommand(s.ctx, s.ns.Database, domain.Command{Name: name, Value: value, Args: args})
	s.Require().NoError(err)
	s.Require().True(cur.Next())
	return cur.Current().(M)
}

func (s *MemoryTestSuite) TestInsertAndQuery() {
	res := s.insert(M{"_id": 1, "name": "a"}, M{"_id": 2, "name": "b"})
	s.Equal([]any{1, 2}, res.InsertedIDs)

	s.Equal([]domain.Document{M{"_id": 2, "name": "b"}}, s.all(M{"name": "b"}))
	s.Len(s.all(M{}), 2)
	s.Empty(s.all(M{"name": "c"}))
}

func (s *MemoryTestSuite) TestQueryUnknownCollection() {
	s.ns.Collection = "nope"
	s.Empty(s.all(M{}))
}

func (s *MemoryTestSuite) TestQueryReturnsCopies() {
	s.insert(M{"_id": 1, "tags": A{"x"}})
	docs := s.all(M{})
	docs[0].(M)["tags"].([]any)[0] = "changed"
	s.Equal(M{"_id": 1, "tags": A{"x"}}, s.all(M{})[0])
}

func (s *MemoryTestSuite) TestQueryOptions() {
	s.insert(M{"_id": 1, "n": 3}, M{"_id": 2, "n": 1}, M{"_id": 3, "n": 2})
	docs := s.all(M{},
		domain.WithQuerySort(domain.Sort{{Key: "n", Order: -1}}),
		domain.WithQueryLimit(2),
		domain.WithQueryProjection(map[string]int{"_id": 1}),
	)
	s.Equal([]domain.Document{M{"_id": 1}, M{"_id": 3}}, docs)
}

func (s *MemoryTestSuite) TestRewindRunsQueryAgain() {
	s.insert(M{"_id": 1})
	cur, err := s.c.Query(s.ctx, s.ns, M{})
	s.NoError(err)
	s.insert(M{"_id": 2})

	rw, ok := cur.(interface{ Rewind() error })
	s.Require().True(ok)
	s.NoError(rw.Rewind())
	count := 0
	for cur.Next() {
		count++
	}
	s.Equal(2, count)
}

func (s *MemoryTestSuite) TestGeneratedID() {
	ig := new(idGeneratorMock)
	ig.On("GenerateID").Return("generated", nil).Once()
	s.c = NewClient(WithIDGenerator(ig))

	res := s.insert(M{"name": "a"})
	s.Equal([]any{"generated"}, res.InsertedIDs)
	ig.AssertExpectations(s.T())

	ig.On("GenerateID").Return(nil, errors.New("no ids")).Once()
	_, err := s.c.ExecuteWrite(s.ctx, s.ns, []domain.WriteOperation{{Kind: domain.WriteInsert, Document: M{}}}, domain.WriteConcern{})
	s.ErrorContains(err, "no ids")
}

func (s *MemoryTestSuite) TestObjectIDs() {
	first, second := primitive.NewObjectID(), primitive.NewObjectID()
	s.insert(M{"_id": first}, M{"_id": second}, M{"name": "generated"})

	docs := s.all(M{"_id": second})
	s.Require().Len(docs, 1)
	s.Equal(second, docs[0].ID())
	s.Len(s.all(M{}), 3)
	for _, d := range s.all(M{}) {
		s.IsType(primitive.ObjectID{}, d.ID())
	}
}

func (s *MemoryTestSuite) TestDuplicateID() {
	s.insert(M{"_id": 1})
	ops := []domain.WriteOperation{
		{Kind: domain.WriteInsert, Document: M{"_id": 2}},
		{Kind: domain.WriteInsert, Document: M{"_id": 1}},
		{Kind: domain.WriteInsert, Document: M{"_id": 3}},
	}
	res, err := s.c.ExecuteWrite(s.ctx, s.ns, ops, domain.WriteConcern{})

	var we domain.WriteError
	s.ErrorAs(err, &we)
	s.Equal(domain.DuplicateKeyCode, we.Code)
	s.Equal(1, we.Index)
	s.Len(res.WriteErrors, 1)
	// ordered batch stops at the first failure
	s.Equal([]any{2}, res.InsertedIDs)
	s.Len(s.all(M{}), 2)
}

func (s *MemoryTestSuite) TestUpdate() {
	s.insert(M{"_id": 1, "n": 1, "g": "a"}, M{"_id": 2, "n": 2, "g": "a"}, M{"_id": 3, "n": 3, "g": "b"})

	ops := []domain.WriteOperation{
		{Kind: domain.WriteUpdate, Filter: M{"g": "a"}, Update: M{"$set": M{"x": true}}},
		{Kind: domain.WriteUpdate, Filter: M{"g": "a"}, Update: M{"$inc": M{"n": 10}}, Multi: true},
		{Kind: domain.WriteUpdate, Filter: M{"g": "b"}, Update: M{"$set": M{"n": 3}}},
	}
	res, err := s.c.ExecuteWrite(s.ctx, s.ns, ops, domain.WriteConcern{})
	s.NoError(err)
	s.Equal(int64(4), res.MatchedCount)
	s.Equal(int64(3), res.ModifiedCount)

	s.Equal([]domain.Document{
		M{"_id": 1, "n": int64(11), "g": "a", "x": true},
		M{"_id": 2, "n": int64(12), "g": "a"},
	}, s.all(M{"g": "a"}))
}

func (s *MemoryTestSuite) TestUpsert() {
	op := domain.WriteOperation{
		Kind:   domain.WriteUpdate,
		Filter: M{"_id": "users", "n": M{"$gt": 0}},
		Update: M{"$inc": M{"seq": 1}},
		Upsert: true,
	}
	res, err := s.c.ExecuteWrite(s.ctx, s.ns, []domain.WriteOperation{op}, domain.WriteConcern{})
	s.NoError(err)
	s.Equal([]any{"users"}, res.UpsertedIDs)
	s.Equal([]domain.Document{M{"_id": "users", "seq": int64(1)}}, s.all(M{}))
}

func (s *MemoryTestSuite) TestUniqueIndexOnUpdate() {
	s.command(domain.CommandCreateIndexes, s.ns.Collection, map[string]any{
		"indexes": []domain.IndexSpec{{Fields: []domain.IndexField{{Name: "email", Direction: 1}}, Unique: true}},
	})
	s.insert(M{"_id": 1, "email": "a"}, M{"_id": 2, "email": "b"})

	op := domain.WriteOperation{Kind: domain.WriteUpdate, Filter: M{"_id": 2}, Update: M{"$set": M{"email": "a"}}}
	_, err := s.c.ExecuteWrite(s.ctx, s.ns, []domain.WriteOperation{op}, domain.WriteConcern{})
	var we domain.WriteError
	s.ErrorAs(err, &we)
	s.Equal(domain.DuplicateKeyCode, we.Code)
	s.Equal([]domain.Document{M{"_id": 2, "email": "b"}}, s.all(M{"_id": 2}))
}

func (s *MemoryTestSuite) TestDelete() {
	s.insert(M{"_id": 1, "g": "a"}, M{"_id": 2, "g": "a"}, M{"_id": 3, "g": "a"})

	res, err := s.c.ExecuteWrite(s.ctx, s.ns, []domain.WriteOperation{
		{Kind: domain.WriteDelete, Filter: M{"g": "a"}},
	}, domain.WriteConcern{})
	s.NoError(err)
	s.Equal(int64(1), res.DeletedCount)

	res, err = s.c.ExecuteWrite(s.ctx, s.ns, []domain.WriteOperation{
		{Kind: domain.WriteDelete, Filter: M{"g": "a"}, Multi: true},
	}, domain.WriteConcern{})
	s.NoError(err)
	s.Equal(int64(2), res.DeletedCount)
	s.Empty(s.all(M{}))
}

func (s *MemoryTestSuite) TestCount() {
	s.insert(M{"_id": 1, "n": 1}, M{"_id": 2, "n": 2})
	s.Equal(2, s.command(domain.CommandCount, s.ns.Collection, nil)["n"])
	s.Equal(1, s.command(domain.CommandCount, s.ns.Collection, map[string]any{"query": domain.Document(M{"n": 2})})["n"])
}

func (s *MemoryTestSuite) TestIndexes() {
	spec := domain.IndexSpec{Fields: []domain.IndexField{{Name: "email", Direction: -1}}, Unique: true, Sparse: true}
	res := s.command(domain.CommandCreateIndexes, s.ns.Collection, map[string]any{"indexes": []domain.IndexSpec{spec}})
	s.Equal(true, res["createdCollectionAutomatically"])
	s.Equal(2, res["numIndexesAfter"])

	// creating it again is a no-op
	res = s.command(domain.CommandCreateIndexes, s.ns.Collection, map[string]any{"indexes": []domain.IndexSpec{spec}})
	s.Equal(2, res["numIndexesAfter"])

	cur, err := s.c.ExecuteCommand(s.ctx, s.ns.Database, domain.Command{Name: domain.CommandListIndexes, Value: s.ns.Collection})
	s.NoError(err)
	var names []any
	for cur.Next() {
		names = append(names, cur.Current().Get("name"))
	}
	s.Equal([]any{PrimaryIndexName, "unique_email_desc"}, names)

	_, err = s.c.ExecuteCommand(s.ctx, s.ns.Database, domain.Command{Name: domain.CommandListIndexes, Value: "nope"})
	s.ErrorIs(err, ErrCollectionNotFound)
}

func (s *MemoryTestSuite) TestCreateIndexOnDuplicatedData() {
	s.insert(M{"_id": 1, "email": "a"}, M{"_id": 2, "email": "a"})
	_, err := s.c.ExecuteCommand(s.ctx, s.ns.Database, domain.Command{
		Name:  domain.CommandCreateIndexes,
		Value: s.ns.Collection,
		Args:  map[string]any{"indexes": []domain.IndexSpec{{Fields: []domain.IndexField{{Name: "email", Direction: 1}}, Unique: true}}},
	})
	s.Error(err)
}

func (s *MemoryTestSuite) TestDrop() {
	s.insert(M{"_id": 1})
	other := domain.Namespace{Database: "test", Collection: "posts"}
	_, err := s.c.ExecuteWrite(s.ctx, other, []domain.WriteOperation{{Kind: domain.WriteInsert, Document: M{"_id": 1}}}, domain.WriteConcern{})
	s.NoError(err)

	s.Equal([]domain.Namespace{other, s.ns}, s.c.Namespaces())

	cur, err := s.c.ExecuteCommand(s.ctx, "test", domain.Command{Name: domain.CommandListCollections})
	s.NoError(err)
	s.True(cur.Next())
	s.Equal("posts", cur.Current().Get("name"))

	s.command(domain.CommandDrop, "posts", nil)
	s.Equal([]domain.Namespace{s.ns}, s.c.Namespaces())

	s.command(domain.CommandDropDatabase, nil, nil)
	s.Empty(s.c.Namespaces())
}

func (s *MemoryTestSuite) TestFindAndModify() {
	args := map[string]any{
		"query":  domain.Document(M{"_id": "users"}),
		"update": domain.Document(M{"$inc": M{"seq": 1}}),
		"upsert": true,
		"new":    true,
	}
	res := s.command(domain.CommandFindAndModify, "_autoincrement", args)
	s.Equal(M{"_id": "users", "seq": int64(1)}, res["value"])

	res = s.command(domain.CommandFindAndModify, "_autoincrement", args)
	s.Equal(M{"_id": "users", "seq": int64(2)}, res["value"])

	args["new"] = false
	res = s.command(domain.CommandFindAndModify, "_autoincrement", args)
	s.Equal(M{"_id": "users", "seq": int64(2)}, res["value"])

	args["remove"] = true
	res = s.command(domain.CommandFindAndModify, "_autoincrement", args)
	s.Equal(M{"_id": "users", "seq": int64(3)}, res["value"])

	args["upsert"] = false
	res = s.command(domain.CommandFindAndModify, "_autoincrement", args)
	s.Nil(res["value"])
}

func (s *MemoryTestSuite) TestUnknownCommand() {
	_, err := s.c.ExecuteCommand(s.ctx, "test", domain.Command{Name: "shutdown"})
	s.ErrorIs(err, domain.ErrUnknownCommand)
}

func (s *MemoryTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.c.ExecuteWrite(ctx, s.ns, nil, domain.WriteConcern{})
	s.ErrorIs(err, context.Canceled)
	_, err = s.c.ExecuteCommand(ctx, "test", domain.Command{Name: domain.CommandCount})
	s.ErrorIs(err, context.Canceled)
	_, err = s.c.Query(ctx, s.ns, M{})
	s.ErrorIs(err, context.Canceled)
}

func (s *MemoryTestSuite) TestDumpLoad() {
	s.command(domain.CommandCreateIndexes, s.ns.Collection, map[string]any{
		"indexes": []domain.IndexSpec{{Fields: []domain.IndexField{{Name: "email", Direction: 1}}, Unique: true}},
	})
	s.insert(M{"_id": 1, "email": "a", "tags": A{"x", "y"}}, M{"_id": 2, "email": "b", "sub": M{"k": 1.5}})

	buf := new(bytes.Buffer)
	s.NoError(s.c.Dump(s.ctx, buf))

	loaded := NewClient()
	s.NoError(loaded.Load(s.ctx, buf))
	s.c = loaded
	s.Equal([]domain.Document{
		M{"_id": 1, "email": "a", "tags": A{"x", "y"}},
		M{"_id": 2, "email": "b", "sub": M{"k": 1.5}},
	}, s.all(M{}))

	// the unique index came along
	_, err := s.c.ExecuteWrite(s.ctx, s.ns, []domain.WriteOperation{{Kind: domain.WriteInsert, Document: M{"_id": 3, "email": "a"}}}, domain.WriteConcern{})
	s.ErrorAs(err, &domain.WriteError{})
}

func (s *MemoryTestSuite) TestDumpFile() {
	file := filepath.Join(s.T().TempDir(), "data", "app.db")
	s.Require().NoError(s.c.LoadFile(s.ctx, file))
	s.FileExists(file)
	s.Empty(s.all(M{}))

	s.insert(M{"_id": 1, "email": "a"})
	s.Require().NoError(s.c.DumpFile(s.ctx, file))
	s.NoFileExists(file + "~")

	loaded := NewClient()
	s.Require().NoError(loaded.LoadFile(s.ctx, file))
	s.c = loaded
	s.Equal([]domain.Document{M{"_id": 1, "email": "a"}}, s.all(M{}))

	s.Require().NoError(os.WriteFile(file, []byte("{broken\n"), 0o644))
	s.ErrorContains(NewClient().LoadFile(s.ctx, file), file)
}

func (s *MemoryTestSuite) TestLoadInvalid() {
	err := s.c.Load(s.ctx, bytes.NewBufferString(`{"ns": "nodot", "doc": {}}`+"\n"))
	s.ErrorContains(err, "invalid namespace")

	err = s.c.Load(s.ctx, bytes.NewBufferString(`{"ns": "a.b"}`+"\n"))
	s.ErrorContains(err, "neither")
}

func TestMemoryTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryTestSuite))
}
