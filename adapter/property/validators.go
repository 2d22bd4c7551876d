package property

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/crodas/tuicha/adapter/data"
)

// Func reports whether value satisfies a rule. Args are the rule arguments
// written after the rule name, as in "between:1:10".
type Func func(value any, args ...string) bool

// Validator is a named rule bound to its arguments.
type Validator struct {
	Name string
	Args []string
	Func Func
}

// ErrUnknownValidator is returned by [ParseRules] for rules that were never
// registered.
type ErrUnknownValidator struct {
	Name string
}

// Error implements [error].
func (e ErrUnknownValidator) Error() string {
	return fmt.Sprintf("unknown validator %q", e.Name)
}

var (
	validatorsMu sync.RWMutex
	validators   = map[string]Func{
		"email":      isEmail,
		"is_email":   isEmail,
		"integer":    isInteger,
		"is_integer": isInteger,
		"between":    between,
		"min":        minimum,
		"max":        maximum,
		"regex":      matches,
		"url":        isURL,
		"uuid":       isUUID,
		"in":         oneOf,
		"len":        length,
	}
)

// Register adds or replaces a validator.
func Register(name string, fn Func) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	validators[name] = fn
}

// Lookup returns the validator registered under name.
func Lookup(name string) (Func, bool) {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()
	fn, ok := validators[name]
	return fn, ok
}

// ParseRules parses a "|"-separated rule list such as
// "email|len:3:64". Arguments follow the rule name separated by ":"; the
// argument of "regex" is taken verbatim.
func ParseRules(rules string) ([]Validator, error) {
	var res []Validator
	for rule := range strings.SplitSeq(rules, "|") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		name, rest, hasArgs := strings.Cut(rule, ":")
		var args []string
		switch {
		case !hasArgs:
		case name == "regex":
			args = []string{rest}
		default:
			args = strings.Split(rest, ":")
		}
		fn, ok := Lookup(name)
		if !ok {
			return nil, ErrUnknownValidator{Name: name}
		}
		res = append(res, Validator{Name: name, Args: args, Func: fn})
	}
	return res, nil
}

func isEmail(value any, _ ...string) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func isInteger(value any, _ ...string) bool {
	switch t := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return math.Trunc(float64(t)) == float64(t)
	case float64:
		return math.Trunc(t) == t
	case string:
		_, err := cast.ToInt64E(t)
		return err == nil
	}
	return false
}

func number(value any) (float64, bool) {
	if _, isBool := value.(bool); isBool {
		return 0, false
	}
	f, err := cast.ToFloat64E(value)
	return f, err == nil
}

func bound(args []string, n int) (float64, bool) {
	if len(args) <= n {
		return 0, false
	}
	f, err := cast.ToFloat64E(args[n])
	return f, err == nil
}

func between(value any, args ...string) bool {
	v, ok := number(value)
	lo, okLo := bound(args, 0)
	hi, okHi := bound(args, 1)
	return ok && okLo && okHi && v >= lo && v <= hi
}

func minimum(value any, args ...string) bool {
	v, ok := number(value)
	lo, okLo := bound(args, 0)
	return ok && okLo && v >= lo
}

func maximum(value any, args ...string) bool {
	v, ok := number(value)
	hi, okHi := bound(args, 0)
	return ok && okHi && v <= hi
}

func matches(value any, args ...string) bool {
	if len(args) == 0 {
		return false
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return false
	}
	re, err := regexp.Compile(args[0])
	return err == nil && re.MatchString(s)
}

func isURL(value any, _ ...string) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func isUUID(value any, _ ...string) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return uuid.Validate(s) == nil
}

func oneOf(value any, args ...string) bool {
	s, err := cast.ToStringE(value)
	return err == nil && slices.Contains(args, s)
}

// length checks the length of strings (in runes), lists and documents
// against "len:min[:max]".
func length(value any, args ...string) bool {
	var n int
	switch t := value.(type) {
	case string:
		n = utf8.RuneCountInString(t)
	default:
		if doc, ok := data.AsDocument(value); ok {
			n = len(doc)
			break
		}
		if lst, ok := data.AsList(value); ok {
			n = len(lst)
			break
		}
		r := reflect.ValueOf(value)
		if r.Kind() != reflect.Map {
			return false
		}
		n = r.Len()
	}
	lo, okLo := bound(args, 0)
	if !okLo || float64(n) < lo {
		return false
	}
	hi, okHi := bound(args, 1)
	return !okHi || float64(n) <= hi
}
