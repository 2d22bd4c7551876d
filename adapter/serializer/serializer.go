// Package serializer encodes documents as MongoDB extended JSON, one document
// per line, and reads them back. It is used to dump and restore the contents
// of the in-memory database client.
package serializer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/dolmen-go/contextio"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

// ErrFieldName is returned when a document key cannot be stored.
type ErrFieldName struct {
	Field  string
	Reason string
}

// Error implements [error].
func (e ErrFieldName) Error() string {
	return fmt.Sprintf("invalid field name %q: %s", e.Field, e.Reason)
}

// Serializer encodes and decodes extended JSON lines.
type Serializer struct {
	canonical bool
}

// NewSerializer returns a new Serializer.
func NewSerializer(options ...Option) *Serializer {
	s := &Serializer{canonical: true}
	for _, option := range options {
		option(s)
	}
	return s
}

// Serialize encodes doc as a single line of extended JSON.
func (s *Serializer) Serialize(ctx context.Context, doc domain.Document) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	d, ok := data.AsDocument(doc)
	if !ok {
		d = data.M{}
	}
	if err := s.checkKeys(d); err != nil {
		return nil, err
	}
	return bson.MarshalExtJSON(ToBSONDoc(d), s.canonical, false)
}

// Deserialize decodes a line produced by [Serializer.Serialize].
func (s *Serializer) Deserialize(ctx context.Context, b []byte) (data.M, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(b, s.canonical, &d); err != nil {
		return nil, err
	}
	return FromBSONDoc(d), nil
}

// Dump writes every document yielded by docs to w, one per line.
func (s *Serializer) Dump(ctx context.Context, w io.Writer, docs iter.Seq[domain.Document]) error {
	wr := contextio.NewWriter(ctx, w)
	for doc := range docs {
		b, err := s.Serialize(ctx, doc)
		if err != nil {
			return err
		}
		if _, err := wr.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the documents written by [Serializer.Dump]. Empty lines are
// skipped.
func (s *Serializer) Load(ctx context.Context, r io.Reader) ([]data.M, error) {
	scanner := bufio.NewScanner(contextio.NewReader(ctx, r))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var res []data.M
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		doc, err := s.Deserialize(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res = append(res, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Serializer) checkKeys(v any) error {
	if doc, ok := data.AsDocument(v); ok {
		for k, val := range doc {
			if strings.Contains(k, ".") {
				return ErrFieldName{Field: k, Reason: "cannot contain a '.'"}
			}
			if strings.HasPrefix(k, "$") && k != domain.RefField && k != domain.RefIDField && k != "$db" {
				return ErrFieldName{Field: k, Reason: "cannot begin with '$'"}
			}
			if err := s.checkKeys(val); err != nil {
				return err
			}
		}
		return nil
	}
	if lst, ok := v.([]any); ok {
		for _, item := range lst {
			if err := s.checkKeys(item); err != nil {
				return err
			}
		}
	}
	return nil
}
