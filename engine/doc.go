// Package engine interprets a schema against a cursor.
//
// Fields run their directives in a fixed order: byte order, seek, leading
// padding and alignment, magic, condition, value (by read mode), try
// recovery, mapping, assertions, pad-to-size, trailing padding and
// alignment, and position restore. Writing mirrors the same order.
//
// A record rewinds the cursor to its start when any field fails, and
// resolves deferred pointers after its last field:
//
//	eng, err := engine.New(s, engine.WithEndian(schema.EndianLittle))
//	if err != nil {
//		return err
//	}
//	rec, err := eng.ReadRecord(cursor.NewBuffer(data), "Header", value.Args{})
//
// Unions dispatch on a stored discriminant (cstyle) or try variants in
// declaration order, rewinding between attempts. When every variant fails
// the error lists each variant's failure (aggregate policy) or reports a
// single no-match error (discard policy); WithErrorPolicy overrides the
// per-union setting.
//
// Custom codecs and value mappers are looked up by name in a Registry
// supplied with WithRegistry.
package engine
