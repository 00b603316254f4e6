// Package wasmmap loads WebAssembly modules as field mappers.
//
// A plugin is a core wasm module without imports. Each mapper binds a
// decode export and an optional encode export, both of the form
// (numeric) -> numeric:
//
//	rt, _ := wasmmap.New(ctx, log)
//	defer rt.Close(ctx)
//	mod, _ := rt.Load(ctx, wasm)
//	m, _ := mod.Mapper(ctx, "celsius", "kelvin")
//	reg.RegisterMapper("temperature", m)
//
// Traps and call failures surface from Decode and Encode as ordinary
// errors, which the engine reports as custom errors at the field.
package wasmmap
