package memory

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// Dump writes the contents of every collection to w as extended JSON lines.
// Index lines ({ns, index}) precede the document lines ({ns, doc}) of their
// collection.
func (c *Client) Dump(ctx context.Context, w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lines := func(yield func(domain.Document) bool) {
		for _, ns := range c.namespaces() {
			coll := c.databases[ns.Database][ns.Collection]
			for _, idx := range coll.indexes {
				line := data.M{"ns": ns.String(), "index": indexLine(idx.Spec())}
				if !yield(line) {
					return
				}
			}
			for doc := range coll.primary.GetAll() {
				if !yield(data.M{"ns": ns.String(), "doc": doc}) {
					return
				}
			}
		}
	}
	return c.serializer.Dump(ctx, w, iter.Seq[domain.Document](lines))
}

func indexLine(spec domain.IndexSpec) data.M {
	fields := make([]any, len(spec.Fields))
	for n, f := range spec.Fields {
		fields[n] = data.M{"name": f.Name, "direction": f.Direction}
	}
	return data.M{"name": spec.Name, "fields": fields, "unique": spec.Unique, "sparse": spec.Sparse}
}

func parseIndexLine(line data.M) domain.IndexSpec {
	spec := domain.IndexSpec{}
	spec.Name, _ = line["name"].(string)
	spec.Unique, _ = line["unique"].(bool)
	spec.Sparse, _ = line["sparse"].(bool)
	fields, _ := line["fields"].([]any)
	for _, f := range fields {
		fd, _ := data.AsDocument(f)
		name, _ := fd["name"].(string)
		dir, _ := fd["direction"].(int)
		spec.Fields = append(spec.Fields, domain.IndexField{Name: name, Direction: dir})
	}
	return spec
}

// Load reads a dump written by [Client.Dump], adding its indexes and
// documents to the client.
func (c *Client) Load(ctx context.Context, r io.Reader) error {
	lines, err := c.serializer.Load(ctx, r)
	if err != nil {
		return err
	}
	for n, line := range lines {
		nsName, _ := line["ns"].(string)
		dbName, collName, ok := strings.Cut(nsName, ".")
		if !ok {
			return fmt.Errorf("line %d: invalid namespace %q", n+1, nsName)
		}
		ns := domain.Namespace{Database: dbName, Collection: collName}

		if idx, ok := data.AsDocument(line["index"]); ok {
			cmd := domain.Command{
				Name:  domain.CommandCreateIndexes,
				Value: collName,
				Args:  map[string]any{"indexes": []domain.IndexSpec{parseIndexLine(idx)}},
			}
			cur, err := c.ExecuteCommand(ctx, dbName, cmd)
			if err != nil {
				return fmt.Errorf("line %d: %w", n+1, err)
			}
			_ = cur.Close()
			continue
		}

		doc, ok := data.AsDocument(line["doc"])
		if !ok {
			return fmt.Errorf("line %d: neither an index nor a document", n+1)
		}
		op := domain.WriteOperation{Kind: domain.WriteInsert, Document: doc}
		if _, err := c.ExecuteWrite(ctx, ns, []domain.WriteOperation{op}, domain.WriteConcern{}); err != nil {
			return fmt.Errorf("line %d: %w", n+1, err)
		}
	}
	c.log.Debug("dump loaded", zap.Int("lines", len(lines)))
	return nil
}

// DumpFile replaces filename with a dump of the client. A crash while
// writing leaves the previous dump in place.
func (c *Client) DumpFile(ctx context.Context, filename string) error {
	err := c.storage.CrashSafeWrite(filename, func(w io.Writer) error {
		return c.Dump(ctx, w)
	})
	if err != nil {
		return err
	}
	c.log.Debug("dumped", zap.String("file", filename))
	return nil
}

// LoadFile loads the dump in filename, creating an empty one if missing.
func (c *Client) LoadFile(ctx context.Context, filename string) error {
	if err := c.storage.EnsureDatafileIntegrity(filename); err != nil {
		return err
	}
	f, err := c.storage.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.Load(ctx, f); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}
