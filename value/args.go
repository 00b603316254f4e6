package value

// Args is an ordered set of named argument values. The zero value is an
// empty set ready to use.
type Args struct {
	values map[string]any
	names  []string
}

// NewArgs builds Args from alternating name, value pairs.
func NewArgs(kv ...any) Args {
	var a Args
	for i := 0; i+1 < len(kv); i += 2 {
		name, _ := kv[i].(string)
		a.Set(name, kv[i+1])
	}
	return a
}

// FromMap builds Args from a map. Order follows the map's iteration order
// unless order lists the names explicitly.
func FromMap(m map[string]any, order ...string) Args {
	var a Args
	for _, name := range order {
		if v, ok := m[name]; ok {
			a.Set(name, v)
		}
	}
	for name, v := range m {
		if !a.Has(name) {
			a.Set(name, v)
		}
	}
	return a
}

// Get returns the named argument.
func (a Args) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Has reports whether the argument is set.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Set binds or rebinds an argument.
func (a *Args) Set(name string, v any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = v
}

// Names returns argument names in binding order.
func (a Args) Names() []string {
	return append([]string(nil), a.names...)
}

// Len returns the number of bound arguments.
func (a Args) Len() int {
	return len(a.names)
}

// Clone returns an independent copy.
func (a Args) Clone() Args {
	var c Args
	for _, name := range a.names {
		c.Set(name, a.values[name])
	}
	return c
}

// Without returns a copy excluding the given names.
func (a Args) Without(names ...string) Args {
	var c Args
outer:
	for _, name := range a.names {
		for _, skip := range names {
			if name == skip {
				continue outer
			}
		}
		c.Set(name, a.values[name])
	}
	return c
}

// Map returns the arguments as a plain map.
func (a Args) Map() map[string]any {
	m := make(map[string]any, len(a.names))
	for _, name := range a.names {
		m[name] = a.values[name]
	}
	return m
}
