// Package executor runs assembled programs through an external interpreter.
//
// # Overview
//
// Every call gets its own temp file, created exclusively and removed before
// Run returns. The interpreter's stdout is logged line by line as it arrives
// and kept for the result decoder; stderr is captured up to a limit.
//
// Two runtimes are provided. [Process] starts the interpreter as a child
// process from an argv list, never through a shell, and kills its whole
// process group on timeout. [Wasm] runs a WASI build of the interpreter
// in-process with wazero, with the program file as the only visible file.
//
// # Basic Usage
//
//	exec := executor.New(executor.NewProcess(), executor.WithLogger(logger))
//
//	result := exec.Run(ctx, iceberg.New(), prog, executor.WithTimeout(5*time.Second))
//	if result.Error != nil {
//	    return result.Error
//	}
//	fmt.Println(result.Stdout)
//
// A non-zero exit status is not an error at this level: it is recorded in
// [Result.ExitCode] for the decoder to judge.
//
// # Side Channel
//
// [WithArgs] additionally exposes the call's arguments as ARG0..ARGn
// environment variables, for interpreters that read arguments at run time
// instead of from declarations.
package executor
