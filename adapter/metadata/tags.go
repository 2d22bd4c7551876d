package metadata

import (
	"strings"
)

// TagName is the struct tag key read by the registry.
const TagName = "tuicha"

// Field and class tag flags.
const (
	flagID         = "id"
	flagRequired   = "required"
	flagIndex      = "index"
	flagUnique     = "unique"
	flagSparse     = "sparse"
	flagDesc       = "desc"
	flagRef        = "ref"
	flagReadOnly   = "readonly"
	flagExtra      = "extra"
	flagType       = "type"
	flagCache      = "cache"
	flagValidate   = "validate"
	flagSingle     = "single"
	flagConnection = "connection"
)

// tag is a parsed struct tag: a name followed by flags, some of which carry
// a value ("type=int").
type tag struct {
	name  string
	flags map[string]string
}

// parseTag splits `name,flag,key=value`. The validate option takes the rest
// of the tag, commas included, so it must come last when its rules contain
// any.
func parseTag(s string) tag {
	name, rest, _ := strings.Cut(s, ",")
	t := tag{name: strings.TrimSpace(name), flags: make(map[string]string)}
	for rest != "" {
		var opt string
		if strings.HasPrefix(strings.TrimSpace(rest), flagValidate+"=") {
			opt, rest = rest, ""
		} else {
			opt, rest, _ = strings.Cut(rest, ",")
		}
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		if key == "" {
			continue
		}
		t.flags[strings.ToLower(key)] = value
	}
	return t
}

func (t tag) has(flag string) bool {
	_, ok := t.flags[flag]
	return ok
}

func (t tag) value(flag string) (string, bool) {
	v, ok := t.flags[flag]
	return v, ok && v != ""
}

// list returns the "|"-separated values of flag.
func (t tag) list(flag string) []string {
	v, ok := t.value(flag)
	if !ok {
		return nil
	}
	var res []string
	for item := range strings.SplitSeq(v, "|") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
