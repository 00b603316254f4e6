// Package schema describes binary layouts as data.
//
// A Schema holds named records (RecordSpec) and tagged unions (UnionSpec).
// Each record is an ordered list of FieldSpec values carrying the directives
// for one field: byte order, magic, count and offset, argument passing, read
// mode, conditionals, padding and alignment, seeks, pointer timing, value
// mapping and assertions.
//
// Schemas are built in Go or loaded from YAML (or JSON with comments):
//
//	endian: little
//	types:
//	  Header:
//	    magic: "HDR1"
//	    fields:
//	      - {name: count, type: u16}
//	      - {name: items, type: "[]u32", count: count}
//	      - {name: body, type: "*Body", asserts: ["count < 1024"]}
//
// String expressions in documents are CEL over the record's fields, its
// imports and "args"; numbers and booleans are constants. Validate enforces
// the directive combination rules before an engine is built.
package schema
