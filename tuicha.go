// Package tuicha maps Go structs to document database collections.
//
// A mapper is created with [New] and given at least one connection. Structs
// are described by their field tags and saved with [ODM.Save]; queries are
// built with [ODM.Find] and the filter returned by [Where]. Changes to
// loaded objects are written back as the minimal set of update operators.
//
//	type User struct {
//		ID    primitive.ObjectID
//		Name  string `tuicha:"name,required"`
//		Email string `tuicha:"email,unique,validate=email"`
//	}
//
//	db := tuicha.New(tuicha.WithConnection(tuicha.DefaultConnection, tuicha.Memory(), "app"))
//	err := db.Save(ctx, &User{Name: "Ana"})
package tuicha

import (
	"context"
	"fmt"
	"reflect"

	"github.com/crodas/tuicha/adapter/config"
	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/filter"
	"github.com/crodas/tuicha/adapter/memory"
	"github.com/crodas/tuicha/adapter/metadata"
	"github.com/crodas/tuicha/adapter/mongoclient"
	"github.com/crodas/tuicha/adapter/odm"
	"github.com/crodas/tuicha/adapter/query"
	"github.com/crodas/tuicha/adapter/reference"
	"github.com/crodas/tuicha/domain"
	"github.com/crodas/tuicha/ext"
)

var (
	// ErrNoIdentity is returned when an operation needs the identity of an
	// object that was never persisted.
	ErrNoIdentity = domain.ErrNoIdentity
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed cursor.
	ErrCursorClosed = domain.ErrCursorClosed
	// ErrUnknownCommand is returned by a [DatabaseClient] that does not
	// support a command.
	ErrUnknownCommand = domain.ErrUnknownCommand
)

// DuplicateKeyCode is the [WriteError] code of unique index violations.
const DuplicateKeyCode = domain.DuplicateKeyCode

// DefaultConnection is the connection used by classes that name none.
const DefaultConnection = metadata.DefaultConnection

// ConfigurationError is returned for mapping and wiring mistakes, such as
// unmappable types or unknown connections.
type ConfigurationError = domain.ConfigurationError

// ValidationError is returned by Save when a property fails its rules. No
// write is attempted.
type ValidationError = domain.ValidationError

// NotFoundError is returned by [Query.FirstOrFail] and [ODM.Reload].
type NotFoundError = domain.NotFoundError

// WriteError describes a write rejected by the database.
type WriteError = domain.WriteError

// WriteErrors is returned when part of a write batch failed.
type WriteErrors = domain.WriteErrors

// ReferenceResolutionError is returned when the target of a [Reference] is
// gone.
type ReferenceResolutionError = domain.ReferenceResolutionError

// ErrDecode wraps errors of the decoder used by Scan.
type ErrDecode = domain.ErrDecode

// ODM maps objects to the collections of its connections.
type ODM = odm.ODM

// Query is a filter bound to the collection of a class.
type Query = query.Query

// Update is a set of update operators applied to the documents of a query.
type Update = query.Update

// Delete removes the documents of a query.
type Delete = query.Delete

// Filter is a query filter under construction.
type Filter = filter.Filter

// Reference points to an object stored in another collection.
type Reference = reference.Reference

// Collection is embedded by models to configure their collection through its
// tag.
type Collection = metadata.Collection

// Timestamps is embedded by models to record creation and update times.
type Timestamps = ext.Timestamps

// M is a document.
type M = data.M

// DatabaseClient is the driver the mapper talks to.
type DatabaseClient = domain.DatabaseClient

// WriteConcern is the acknowledgement requested for writes.
type WriteConcern = domain.WriteConcern

// WriteResult summarizes a write.
type WriteResult = domain.WriteResult

// Event is a lifecycle event name.
type Event = domain.Event

// Option configures an [ODM].
type Option = odm.Option

// New returns a mapper. Without connections nothing can be saved until
// [ODM.AddConnection] is called.
func New(options ...Option) *ODM {
	return odm.New(options...)
}

// WithConnection registers a connection.
func WithConnection(name string, client DatabaseClient, database string) Option {
	return odm.WithConnection(name, client, database)
}

// WithWriteConcern sets the acknowledgement requested for writes.
func WithWriteConcern(wc WriteConcern) Option {
	return odm.WithWriteConcern(wc)
}

// WithRegistry sets the class registry.
func WithRegistry(r *metadata.Registry) Option {
	return odm.WithRegistry(r)
}

// Memory returns an in-process database client.
func Memory() *memory.Client {
	return memory.NewClient()
}

// Connect returns a client of the MongoDB server at uri.
func Connect(ctx context.Context, uri string) (*mongoclient.Client, error) {
	return mongoclient.Connect(ctx, uri)
}

// Open builds a mapper from the configuration file and environment. The
// returned function closes its connections.
func Open(ctx context.Context, options ...config.Option) (*ODM, func(context.Context) error, error) {
	cfg, err := config.Load(options...)
	if err != nil {
		return nil, nil, err
	}
	return cfg.Open(ctx)
}

// Where starts a filter. See [Filter.Where].
func Where(field string, args ...any) *Filter {
	return filter.New().Where(field, args...)
}

// Ref returns a reference to obj, saved with it if needed.
func Ref(obj any) *Reference {
	return reference.To(obj)
}

// UseAutoincrement gives the classes of models sequential integer
// identities.
func UseAutoincrement(o *ODM, models ...any) error {
	return ext.UseAutoincrement(o, models...)
}

// Find returns the objects of the class of T, a pointer to a mapped struct,
// matching the filters.
func Find[T any](ctx context.Context, o *ODM, filters ...*Filter) ([]T, error) {
	q, err := o.Find(reflect.TypeFor[T](), filters...)
	if err != nil {
		return nil, err
	}
	return All[T](ctx, q)
}

// All runs q and returns its objects as T, the pointer type of the class or
// an interface its classes implement.
func All[T any](ctx context.Context, q *Query) ([]T, error) {
	var res []T
	for obj, err := range q.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		v, err := as[T](obj)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

// First returns the first object of q as T. ok is false when nothing
// matches.
func First[T any](ctx context.Context, q *Query) (v T, ok bool, err error) {
	obj, err := q.First(ctx)
	if err != nil || obj == nil {
		return v, false, err
	}
	v, err = as[T](obj)
	return v, err == nil, err
}

// Deref loads the target of r as T.
func Deref[T any](ctx context.Context, r *Reference) (T, error) {
	obj, err := r.Object(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](obj)
}

func as[T any](obj any) (T, error) {
	v, ok := obj.(T)
	if !ok {
		return v, ConfigurationError{Subject: fmt.Sprintf("%T", obj), Reason: "is not " + reflect.TypeFor[T]().String()}
	}
	return v, nil
}
