package value

// Field is one named value of a Record.
type Field struct {
	Value any
	Name  string
}

// Record is the result of reading a record: fields in declaration order,
// temporary fields excluded.
type Record struct {
	Type   string
	Fields []Field
}

// NewRecord creates an empty record of the named type.
func NewRecord(typeName string) *Record {
	return &Record{Type: typeName}
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return r.Fields[i].Value, true
		}
	}
	return nil, false
}

// Set replaces the named field or appends it.
func (r *Record) Set(name string, v any) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = v
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: v})
}

// Names returns field names in order.
func (r *Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Fields)
}

// Variant is the result of reading a tagged union.
// Value is nil for unit variants.
type Variant struct {
	Value        *Record
	Union        string
	Name         string
	Discriminant int64
}
