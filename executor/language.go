package executor

import (
	"regexp"

	"github.com/caffeineduck/plbridge/program"
)

// Language adapts an external interpreter. Implement this interface to run
// functions written in another scripting language.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "iceberg").
	// Used as the compiled module cache key and in temp file names.
	Name() string

	// Syntax describes how arguments are declared and how the import header
	// is recognized in stored sources.
	Syntax() program.Syntax

	// Command returns the argv that runs the program file at path.
	// For Iceberg: []string{"java", "-cp", jar, "iceberg.CompilationPipeline", "-run", path}
	Command(path string) []string

	// ErrorMarkers match stderr output that signals a failed program even
	// when the interpreter exits with status 0.
	ErrorMarkers() []*regexp.Regexp
}
