// Package idgenerator contains the default [domain.IDGenerator]
// implementation. ObjectIDs are generated by default; UUIDs, ULIDs and
// base64-encoded random strings are available through [WithKind].
package idgenerator

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/timegetter"
	"github.com/crodas/tuicha/domain"
)

// Kind selects the kind of identity generated.
type Kind uint8

// Supported identity kinds.
const (
	ObjectID Kind = iota
	UUID
	ULID
	Random
)

// ParseKind returns the kind named by s ("objectid", "uuid", "ulid" or
// "random").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "objectid":
		return ObjectID, nil
	case "uuid":
		return UUID, nil
	case "ulid":
		return ULID, nil
	case "random":
		return Random, nil
	}
	return 0, fmt.Errorf("unknown id kind %q", s)
}

// IDGenerator implements [domain.IDGenerator].
type IDGenerator struct {
	kind       Kind
	length     int
	reader     io.Reader
	timeGetter domain.TimeGetter
	// readers such as ulid's monotonic entropy are not safe for concurrent
	// use.
	mu sync.Mutex
}

// NewIDGenerator returns a new implementation of [domain.IDGenerator].
func NewIDGenerator(opts ...Option) domain.IDGenerator {
	i := IDGenerator{
		length:     16,
		reader:     rand.Reader,
		timeGetter: timegetter.NewTimeGetter(),
	}
	for _, opt := range opts {
		opt(&i)
	}
	return &i
}

// GenerateID implements [domain.IDGenerator].
func (i *IDGenerator) GenerateID() (any, error) {
	switch i.kind {
	case UUID:
		i.mu.Lock()
		defer i.mu.Unlock()
		id, err := uuid.NewRandomFromReader(i.reader)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case ULID:
		i.mu.Lock()
		defer i.mu.Unlock()
		id, err := ulid.New(ulid.Timestamp(i.timeGetter.GetTime()), i.reader)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case Random:
		i.mu.Lock()
		defer i.mu.Unlock()
		return i.random(i.length)
	default:
		return primitive.NewObjectIDFromTimestamp(i.timeGetter.GetTime()), nil
	}
}

func (i *IDGenerator) random(l int) (string, error) {
	buf := make([]byte, max(8, l*2))
	_, err := io.ReadFull(i.reader, buf)
	if err != nil {
		return "", err
	}

	dst := base64.StdEncoding.EncodeToString(buf)

	res := make([]byte, 0, l)
	for _, b := range []byte(dst) {
		if len(res) == l {
			break
		}
		switch b {
		case '+', '/', '=':
		default:
			res = append(res, b)
		}
	}

	return string(res), nil
}
