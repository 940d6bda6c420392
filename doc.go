// Package plbridge runs database functions written in the Iceberg scripting
// language by handing them to an external interpreter.
//
// # Overview
//
// The host engine stores a function's signature and source in its catalog.
// A call never evaluates that source in process. Instead the bridge builds a
// complete program for the interpreter and runs it in a fresh process:
//
//	catalog lookup -> argument literals -> program file -> interpreter -> result
//
// Arguments become declarations placed after the source's import header, so
// a text argument can never change the program's structure. The program
// prints its result as the last line of stdout.
//
// # Basic Usage
//
//	cat, _ := catalog.LoadFile("functions.yaml")
//	exec := executor.New(executor.NewProcess())
//	h := bridge.New(cat, exec, iceberg.New())
//
//	v, err := h.Call(ctx, bridge.Call{
//	    Func: 16384,
//	    Args: []value.Value{value.Int4(21)},
//	})
//
// # Catalogs
//
// [catalog.Postgres] reads pg_proc from a live server, [catalog.Store] keeps
// definitions in a local SQLite file and [catalog.Memory] serves YAML files
// and tests.
//
// # Runtimes
//
// [executor.Process] starts the interpreter as a child process in its own
// process group. [executor.Wasm] runs a WASI build of the interpreter under
// wazero, with only the program file visible to the guest.
//
// # Errors
//
// Every failure carries one of the kinds in package plerr, which map to the
// SQLSTATE codes the host engine reports:
//
//	if errors.Is(err, plerr.ErrTimeout) { ... }  // 57014
package plbridge
