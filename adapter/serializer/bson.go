package serializer

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
)

// ToBSON converts a document tree into its BSON representation: documents
// become [bson.D] with sorted keys and lists become [bson.A]. An empty or nil
// document becomes an empty [bson.D].
func ToBSON(v any) any {
	if doc, ok := data.AsDocument(v); ok {
		return ToBSONDoc(doc)
	}
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return t
	case time.Time:
		return primitive.NewDateTimeFromTime(t)
	}
	if lst, ok := data.AsList(v); ok {
		res := make(bson.A, len(lst))
		for n, item := range lst {
			res[n] = ToBSON(item)
		}
		return res
	}
	return v
}

// ToBSONDoc converts doc into a [bson.D] with sorted keys.
func ToBSONDoc(doc data.M) bson.D {
	res := make(bson.D, 0, len(doc))
	for _, k := range slices.Sorted(doc.Keys()) {
		res = append(res, bson.E{Key: k, Value: ToBSON(doc[k])})
	}
	return res
}

// FromBSON converts values decoded by the BSON codecs back into document
// trees made of [data.M] and []any. 32 and 64 bit integers become int and
// dates become UTC [time.Time].
func FromBSON(v any) any {
	switch t := v.(type) {
	case bson.D:
		res := make(data.M, len(t))
		for _, e := range t {
			res[e.Key] = FromBSON(e.Value)
		}
		return res
	case bson.M:
		res := make(data.M, len(t))
		for k, val := range t {
			res[k] = FromBSON(val)
		}
		return res
	case map[string]any:
		return FromBSON(bson.M(t))
	case data.M:
		return FromBSON(bson.M(t))
	case bson.A:
		res := make([]any, len(t))
		for n, val := range t {
			res[n] = FromBSON(val)
		}
		return res
	case []any:
		return FromBSON(bson.A(t))
	case int32:
		return int(t)
	case int64:
		return int(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

// FromBSONDoc converts a decoded BSON document into a [data.M].
func FromBSONDoc(doc bson.D) data.M {
	return FromBSON(doc).(data.M)
}
