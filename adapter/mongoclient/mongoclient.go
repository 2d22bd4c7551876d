// Package mongoclient contains a [domain.DatabaseClient] backed by the
// official MongoDB driver.
package mongoclient

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/cursor"
	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/decoder"
	"github.com/crodas/tuicha/adapter/serializer"
	"github.com/crodas/tuicha/domain"
)

// Client implements [domain.DatabaseClient].
type Client struct {
	client *mongo.Client
	dec    domain.Decoder
	log    *zap.Logger
}

// Connect opens a connection to the server at uri.
func Connect(ctx context.Context, uri string, opts ...Option) (*Client, error) {
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return NewClient(mc, opts...), nil
}

// NewClient wraps an already connected driver client.
func NewClient(mc *mongo.Client, opts ...Option) *Client {
	c := &Client{
		client: mc,
		dec:    decoder.NewDecoder(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Disconnect closes the underlying connections.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) collection(ns domain.Namespace, wc domain.WriteConcern) *mongo.Collection {
	opts := options.Collection()
	if wc.W > 0 || wc.Journal {
		journal := wc.Journal
		w := &writeconcern.WriteConcern{Journal: &journal}
		if wc.W > 0 {
			w.W = wc.W
		}
		opts.SetWriteConcern(w)
	}
	return c.client.Database(ns.Database).Collection(ns.Collection, opts)
}

// Query implements [domain.DatabaseClient].
func (c *Client) Query(ctx context.Context, ns domain.Namespace, filter domain.Document, opts ...domain.QueryOption) (domain.Cursor, error) {
	var qo domain.QueryOptions
	for _, opt := range opts {
		opt(&qo)
	}
	c.log.Debug("query", zap.Stringer("ns", ns), zap.Any("filter", filter))

	cur, err := c.collection(ns, domain.WriteConcern{}).Find(ctx, toDocument(filter), findOptions(qo))
	if err != nil {
		return nil, err
	}
	return &Cursor{ctx: ctx, cur: cur, dec: c.dec}, nil
}

// toDocument renders a filter or update document. Missing and empty
// documents become an empty [bson.D], never an array.
func toDocument(f domain.Document) bson.D {
	d, ok := data.AsDocument(f)
	if !ok {
		return bson.D{}
	}
	return serializer.ToBSONDoc(d)
}

func findOptions(qo domain.QueryOptions) *options.FindOptions {
	fo := options.Find()
	if len(qo.Projection) > 0 {
		proj := bson.D{}
		for _, k := range slices.Sorted(maps.Keys(qo.Projection)) {
			proj = append(proj, bson.E{Key: k, Value: qo.Projection[k]})
		}
		fo.SetProjection(proj)
	}
	if len(qo.Sort) > 0 {
		fo.SetSort(sortDoc(qo.Sort))
	}
	if qo.Skip > 0 {
		fo.SetSkip(qo.Skip)
	}
	if qo.Limit > 0 {
		fo.SetLimit(qo.Limit)
	}
	return fo
}

func sortDoc(s domain.Sort) bson.D {
	res := make(bson.D, len(s))
	for n, crit := range s {
		dir := 1
		if crit.Order < 0 {
			dir = -1
		}
		res[n] = bson.E{Key: crit.Key, Value: dir}
	}
	return res
}

type insertedID struct {
	op int
	id any
}

// writeModels converts the operations of a batch. Inserted documents without
// _id get an ObjectID so the identity can be reported back.
func writeModels(ops []domain.WriteOperation) ([]mongo.WriteModel, []insertedID) {
	models := make([]mongo.WriteModel, 0, len(ops))
	var ids []insertedID
	for n, op := range ops {
		switch op.Kind {
		case domain.WriteInsert:
			doc, ok := data.AsDocument(op.Document)
			if !ok {
				doc = data.M{}
			}
			doc = data.CopyDoc(doc)
			if _, has := doc[domain.IDField]; !has {
				doc[domain.IDField] = primitive.NewObjectID()
			}
			ids = append(ids, insertedID{op: n, id: doc[domain.IDField]})
			models = append(models, mongo.NewInsertOneModel().SetDocument(serializer.ToBSONDoc(doc)))
		case domain.WriteUpdate:
			filter, update := toDocument(op.Filter), toDocument(op.Update)
			if op.Multi {
				models = append(models, mongo.NewUpdateManyModel().
					SetFilter(filter).SetUpdate(update).SetUpsert(op.Upsert))
			} else {
				models = append(models, mongo.NewUpdateOneModel().
					SetFilter(filter).SetUpdate(update).SetUpsert(op.Upsert))
			}
		case domain.WriteDelete:
			if op.Multi {
				models = append(models, mongo.NewDeleteManyModel().SetFilter(toDocument(op.Filter)))
			} else {
				models = append(models, mongo.NewDeleteOneModel().SetFilter(toDocument(op.Filter)))
			}
		}
	}
	return models, ids
}

// ExecuteWrite implements [domain.DatabaseClient]. The batch is ordered;
// write errors reported by the server are returned as [domain.WriteErrors].
func (c *Client) ExecuteWrite(ctx context.Context, ns domain.Namespace, ops []domain.WriteOperation, wc domain.WriteConcern) (domain.WriteResult, error) {
	models, ids := writeModels(ops)
	if len(models) == 0 {
		return domain.WriteResult{}, nil
	}
	c.log.Debug("write", zap.Stringer("ns", ns), zap.Int("ops", len(models)))

	res, err := c.collection(ns, wc).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	var writeErrs []domain.WriteError
	if err != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
			return domain.WriteResult{}, err
		}
		writeErrs = convertWriteErrors(bwe)
	}
	out := convertResult(res, ids, writeErrs)
	if len(writeErrs) > 0 {
		return out, domain.WriteErrors(writeErrs)
	}
	return out, nil
}

func convertWriteErrors(bwe mongo.BulkWriteException) []domain.WriteError {
	res := make([]domain.WriteError, len(bwe.WriteErrors))
	for n, we := range bwe.WriteErrors {
		res[n] = domain.WriteError{Index: we.Index, Code: we.Code, Message: we.Message}
	}
	return res
}

func convertResult(res *mongo.BulkWriteResult, ids []insertedID, writeErrs []domain.WriteError) domain.WriteResult {
	var out domain.WriteResult
	firstFailure := -1
	if len(writeErrs) > 0 {
		firstFailure = writeErrs[0].Index
	}
	for _, id := range ids {
		if firstFailure >= 0 && id.op >= firstFailure {
			break
		}
		out.InsertedIDs = append(out.InsertedIDs, id.id)
	}
	out.WriteErrors = writeErrs
	if res == nil {
		return out
	}
	out.MatchedCount = res.MatchedCount
	out.ModifiedCount = res.ModifiedCount
	out.DeletedCount = res.DeletedCount
	keys := slices.SortedFunc(maps.Keys(res.UpsertedIDs), cmp.Compare[int64])
	for _, k := range keys {
		out.UpsertedIDs = append(out.UpsertedIDs, serializer.FromBSON(res.UpsertedIDs[k]))
	}
	return out
}

// ExecuteCommand implements [domain.DatabaseClient].
func (c *Client) ExecuteCommand(ctx context.Context, db string, cmd domain.Command) (domain.Cursor, error) {
	c.log.Debug("command", zap.String("db", db), zap.String("name", cmd.Name), zap.Any("value", cmd.Value))

	name, _ := cmd.Value.(string)
	database := c.client.Database(db)
	coll := database.Collection(name)

	switch cmd.Name {
	case domain.CommandCount:
		filter, _ := cmd.Args["query"].(domain.Document)
		n, err := coll.CountDocuments(ctx, toDocument(filter))
		if err != nil {
			return nil, err
		}
		return c.single(ctx, data.M{"n": int(n), "ok": 1})
	case domain.CommandCreateIndexes:
		specs, _ := cmd.Args["indexes"].([]domain.IndexSpec)
		if len(specs) == 0 {
			return c.single(ctx, data.M{"ok": 1})
		}
		names, err := coll.Indexes().CreateMany(ctx, indexModels(specs))
		if err != nil {
			return nil, err
		}
		created := make([]any, len(names))
		for n, name := range names {
			created[n] = name
		}
		return c.single(ctx, data.M{"names": created, "ok": 1})
	case domain.CommandListIndexes:
		cur, err := coll.Indexes().List(ctx)
		if err != nil {
			return nil, err
		}
		return &Cursor{ctx: ctx, cur: cur, dec: c.dec}, nil
	case domain.CommandListCollections:
		cur, err := database.ListCollections(ctx, bson.D{})
		if err != nil {
			return nil, err
		}
		return &Cursor{ctx: ctx, cur: cur, dec: c.dec}, nil
	case domain.CommandDrop:
		if err := coll.Drop(ctx); err != nil {
			return nil, err
		}
		return c.single(ctx, data.M{"ns": db + "." + name, "ok": 1})
	case domain.CommandDropDatabase:
		if err := database.Drop(ctx); err != nil {
			return nil, err
		}
		return c.single(ctx, data.M{"dropped": db, "ok": 1})
	case domain.CommandFindAndModify:
		return c.findAndModify(ctx, coll, cmd.Args)
	}

	var raw bson.D
	if err := database.RunCommand(ctx, commandDoc(cmd)).Decode(&raw); err != nil {
		return nil, err
	}
	return c.single(ctx, serializer.FromBSONDoc(raw))
}

// commandDoc renders a generic command: its name first, then the arguments
// sorted by key.
func commandDoc(cmd domain.Command) bson.D {
	doc := bson.D{{Key: cmd.Name, Value: serializer.ToBSON(cmd.Value)}}
	for _, k := range slices.Sorted(maps.Keys(cmd.Args)) {
		doc = append(doc, bson.E{Key: k, Value: serializer.ToBSON(cmd.Args[k])})
	}
	return doc
}

func indexModels(specs []domain.IndexSpec) []mongo.IndexModel {
	models := make([]mongo.IndexModel, len(specs))
	for n, spec := range specs {
		keys := bson.D{}
		for _, f := range spec.Fields {
			keys = append(keys, bson.E{Key: f.Name, Value: cmp.Or(f.Direction, 1)})
		}
		name := spec.Name
		if name == "" {
			name = domain.IndexName(spec.Fields, spec.Unique)
		}
		opts := options.Index().SetName(name)
		if spec.Unique {
			opts.SetUnique(true)
		}
		if spec.Sparse {
			opts.SetSparse(true)
		}
		models[n] = mongo.IndexModel{Keys: keys, Options: opts}
	}
	return models
}

func (c *Client) findAndModify(ctx context.Context, coll *mongo.Collection, args map[string]any) (domain.Cursor, error) {
	filter, _ := args["query"].(domain.Document)
	update, _ := args["update"].(domain.Document)
	sort, _ := args["sort"].(domain.Sort)
	upsert, _ := args["upsert"].(bool)
	returnNew, _ := args["new"].(bool)
	remove, _ := args["remove"].(bool)

	var res *mongo.SingleResult
	if remove {
		opts := options.FindOneAndDelete()
		if len(sort) > 0 {
			opts.SetSort(sortDoc(sort))
		}
		res = coll.FindOneAndDelete(ctx, toDocument(filter), opts)
	} else {
		opts := options.FindOneAndUpdate().SetUpsert(upsert).SetReturnDocument(options.Before)
		if returnNew {
			opts.SetReturnDocument(options.After)
		}
		if len(sort) > 0 {
			opts.SetSort(sortDoc(sort))
		}
		res = coll.FindOneAndUpdate(ctx, toDocument(filter), toDocument(update), opts)
	}

	var value any
	var raw bson.D
	switch err := res.Decode(&raw); {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return nil, err
	default:
		value = serializer.FromBSONDoc(raw)
	}
	return c.single(ctx, data.M{"value": value, "ok": 1})
}

func (c *Client) single(ctx context.Context, doc data.M) (domain.Cursor, error) {
	return cursor.NewCursor(ctx, []domain.Document{doc}, domain.WithCursorDecoder(c.dec))
}
