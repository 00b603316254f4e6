// Package binlayout provides a schema-driven binary codec for Go.
//
// A schema describes records, tagged unions and the directives attached to
// each field (byte order, magic, counts, offsets, padding, conditionals,
// argument passing, value mapping and assertions). The engine interprets the
// schema at run time to read values from, and write values to, a seekable
// byte cursor.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	binlayout/         Root package with the Cursor contract
//	├── cursor/        In-memory and stream cursors, numeric and string primitives
//	├── schema/        Type tags, field/record/union specs, validation, YAML loader
//	├── expr/          Directive expressions (Go functions and CEL)
//	├── value/         Decoded values: records, variants, pointers, arguments
//	├── engine/        Field, record, union and pointer interpretation
//	├── errors/        Structured error types and backtraces
//	├── wasmmap/       WebAssembly exports as value mappers
//	├── internal/      Alignment math, compressed sources, config, rendering
//	└── cmd/binlayout  Command line front end
//
// # Quick Start
//
// Describe a record and read it:
//
//	s := schema.New()
//	err := s.AddRecord(&schema.RecordSpec{
//	    Name:   "Header",
//	    Endian: schema.EndianBig,
//	    Magic:  schema.MagicBytes([]byte("HDR1")),
//	    Fields: []*schema.FieldSpec{
//	        {Name: "count", Type: schema.Prim(schema.KindU16)},
//	        {Name: "items", Type: schema.ArrayOf(schema.Prim(schema.KindU32)), Count: expr.Ref("count")},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := eng.Read(cursor.NewBuffer(data), "Header", value.Args{})
//
// # Execution Model
//
// Every call is synchronous and owns its cursor for the duration of the
// call. An Engine carries no per-call state and may be shared by goroutines
// working on independent cursors. Failed records and union variants rewind
// the cursor to where they started.
package binlayout
