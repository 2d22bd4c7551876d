package filter

// Property builds predicates on a single field path of a [Filter].
type Property struct {
	f    *Filter
	path string
}

// Path returns the field path of the proxy.
func (p *Property) Path() string {
	return p.path
}

// Prop returns a proxy on a nested field.
func (p *Property) Prop(sub string) *Property {
	return &Property{f: p.f, path: p.path + "." + sub}
}

// Is adds an equality predicate.
func (p *Property) Is(value any) *Filter {
	return p.f.Eq(p.path, value)
}

// IsNot adds a $ne predicate.
func (p *Property) IsNot(value any) *Filter {
	return p.f.Ne(p.path, value)
}

// Gt adds a $gt predicate.
func (p *Property) Gt(value any) *Filter {
	return p.f.Gt(p.path, value)
}

// Gte adds a $gte predicate.
func (p *Property) Gte(value any) *Filter {
	return p.f.Gte(p.path, value)
}

// Lt adds a $lt predicate.
func (p *Property) Lt(value any) *Filter {
	return p.f.Lt(p.path, value)
}

// Lte adds a $lte predicate.
func (p *Property) Lte(value any) *Filter {
	return p.f.Lte(p.path, value)
}

// In adds a $in predicate.
func (p *Property) In(values ...any) *Filter {
	return p.f.In(p.path, values...)
}

// NotIn adds a $nin predicate.
func (p *Property) NotIn(values ...any) *Filter {
	return p.f.NotIn(p.path, values...)
}

// All adds a $all predicate.
func (p *Property) All(values ...any) *Filter {
	return p.f.All(p.path, values...)
}

// Exists adds a $exists predicate.
func (p *Property) Exists(exists ...bool) *Filter {
	return p.f.Exists(p.path, exists...)
}

// Between matches values in the closed range [lo, hi].
func (p *Property) Between(lo, hi any) *Filter {
	return p.f.Between(p.path, lo, hi)
}

// Size adds a $size predicate.
func (p *Property) Size(size int) *Filter {
	return p.f.Size(p.path, size)
}

// Type adds a $type predicate.
func (p *Property) Type(typ any) *Filter {
	return p.f.Type(p.path, typ)
}

// Regex adds a $regex predicate.
func (p *Property) Regex(pattern string, options ...string) *Filter {
	return p.f.Regex(p.path, pattern, options...)
}

// Where adds a predicate with an explicit operator.
func (p *Property) Where(op string, value any) *Filter {
	return p.f.Where(p.path, op, value)
}

// Set assigns value to the field, replacing any predicate on it.
func (p *Property) Set(value any) *Filter {
	return p.f.Set(p.path, value)
}
