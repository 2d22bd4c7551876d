package metadata

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/crodas/tuicha/adapter/filter"
	"github.com/crodas/tuicha/domain"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	filterType  = reflect.TypeFor[*filter.Filter]()
	argsType    = reflect.TypeFor[[]any]()
)

// hookMethods maps method names to the event they handle.
var hookMethods = map[string]domain.Event{
	"Creating":     domain.EventCreating,
	"BeforeCreate": domain.EventCreating,
	"Created":      domain.EventCreated,
	"AfterCreate":  domain.EventCreated,
	"Updating":     domain.EventUpdating,
	"BeforeUpdate": domain.EventUpdating,
	"Updated":      domain.EventUpdated,
	"AfterUpdate":  domain.EventUpdated,
	"Saving":       domain.EventSaving,
	"BeforeSave":   domain.EventSaving,
	"Saved":        domain.EventSaved,
	"AfterSave":    domain.EventSaved,
	"Deleting":     domain.EventDeleting,
	"BeforeDelete": domain.EventDeleting,
	"Deleted":      domain.EventDeleted,
	"AfterDelete":  domain.EventDeleted,
	"Retrieved":    domain.EventRetrieved,
	"AfterFind":    domain.EventRetrieved,
}

// methodHooks collects the lifecycle methods of *t, promoted ones included.
func methodHooks(t reflect.Type) (map[domain.Event][]Hook, error) {
	hooks := make(map[domain.Event][]Hook)
	pt := reflect.PointerTo(t)
	for i := range pt.NumMethod() {
		m := pt.Method(i)
		event, ok := hookMethods[m.Name]
		if !ok {
			continue
		}
		h, err := methodHook(m)
		if err != nil {
			return nil, domain.ConfigurationError{Subject: t.Name() + "." + m.Name, Reason: err.Error()}
		}
		hooks[event] = append(hooks[event], h)
	}
	return hooks, nil
}

// methodHook adapts a method of signature func(), func() error or
// func(context.Context) error.
func methodHook(m reflect.Method) (Hook, error) {
	mt := m.Type
	withCtx := mt.NumIn() == 2 && mt.In(1) == contextType
	if (mt.NumIn() != 1 && !withCtx) || !returnsError(mt, !withCtx) {
		return nil, fmt.Errorf("signature %s cannot be used as hook", mt)
	}
	return func(ctx context.Context, obj any) error {
		in := []reflect.Value{reflect.ValueOf(obj)}
		if withCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		return callError(m.Func.Call(in))
	}, nil
}

// returnsError reports whether mt returns a single error, or nothing when
// optional is set.
func returnsError(mt reflect.Type, optional bool) bool {
	switch mt.NumOut() {
	case 0:
		return optional
	case 1:
		return mt.Out(0) == errorType
	}
	return false
}

func callError(out []reflect.Value) error {
	if len(out) == 0 || out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}

// observer holds the event methods of an object registered with
// [Class.Observe].
type observer struct {
	hooks map[domain.Event][]Hook
}

// newObserver adapts the event methods of o. They take the observed object,
// optionally preceded by a context, and may return an error.
func newObserver(c *Class, o any) (*observer, error) {
	if o == nil {
		return nil, c.configError("observer is nil")
	}
	v := reflect.ValueOf(o)
	t := v.Type()
	obs := &observer{hooks: make(map[domain.Event][]Hook)}
	objType := reflect.PointerTo(c.Type)
	for i := range t.NumMethod() {
		m := t.Method(i)
		event, ok := hookMethods[m.Name]
		if !ok {
			continue
		}
		fn := v.Method(i)
		ft := fn.Type()
		withCtx := ft.NumIn() == 2 && ft.In(0) == contextType
		var objParam reflect.Type
		switch {
		case withCtx:
			objParam = ft.In(1)
		case ft.NumIn() == 1:
			objParam = ft.In(0)
		}
		if objParam == nil || !objType.AssignableTo(objParam) || !returnsError(ft, !withCtx) {
			return nil, c.configError(fmt.Sprintf("observer method %T.%s has unusable signature %s", o, m.Name, ft))
		}
		obs.hooks[event] = append(obs.hooks[event], func(ctx context.Context, obj any) error {
			in := []reflect.Value{reflect.ValueOf(obj)}
			if withCtx {
				in = []reflect.Value{reflect.ValueOf(ctx), in[0]}
			}
			return callError(fn.Call(in))
		})
	}
	if len(obs.hooks) == 0 {
		return nil, c.configError(fmt.Sprintf("%T has no event methods", o))
	}
	return obs, nil
}

// On registers a hook for event, run after the hooks declared as methods.
func (c *Class) On(event domain.Event, h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = append(c.hooks[event], h)
}

// Observe registers an observer whose event methods are called after the
// hooks of the class, for example:
//
//	func (AuditLog) Created(ctx context.Context, u *User) error
func (c *Class) Observe(o any) error {
	obs, err := newObserver(c, o)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
	return nil
}

// TriggerEvent runs the hooks of event on obj in registration order, then
// the observers. The first error stops the chain.
func (c *Class) TriggerEvent(ctx context.Context, obj any, event domain.Event) error {
	c.mu.RLock()
	hooks := slices.Clone(c.hooks[event])
	for _, obs := range c.observers {
		hooks = append(hooks, obs.hooks[event]...)
	}
	c.mu.RUnlock()
	for _, h := range hooks {
		if err := h(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// methodScopes collects the ScopeXxx methods of *t. They take the filter
// being built and, optionally, variadic arguments.
func methodScopes(t reflect.Type) (map[string]Scope, error) {
	scopes := make(map[string]Scope)
	pt := reflect.PointerTo(t)
	for i := range pt.NumMethod() {
		m := pt.Method(i)
		name, ok := strings.CutPrefix(m.Name, "Scope")
		if !ok || name == "" {
			continue
		}
		mt := m.Type
		variadic := mt.NumIn() == 3 && mt.IsVariadic() && mt.In(2) == argsType
		if (mt.NumIn() != 2 && !variadic) || mt.In(1) != filterType || mt.NumOut() != 0 {
			return nil, domain.ConfigurationError{Subject: t.Name() + "." + m.Name, Reason: fmt.Sprintf("signature %s cannot be used as scope", mt)}
		}
		fn := m.Func
		scopes[strings.ToLower(name)] = func(f *filter.Filter, args ...any) {
			in := []reflect.Value{reflect.New(t), reflect.ValueOf(f)}
			if !variadic {
				fn.Call(in)
				return
			}
			fn.CallSlice(append(in, reflect.ValueOf(args)))
		}
	}
	return scopes, nil
}
