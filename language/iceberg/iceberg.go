// Package iceberg provides the Iceberg language adapter for plbridge.
package iceberg

import (
	"regexp"

	"github.com/caffeineduck/plbridge/program"
)

// Defaults of a packaged Iceberg installation.
const (
	DefaultJava      = "java"
	DefaultJar       = "/usr/lib/iceberg/iceberg.jar"
	DefaultMainClass = "iceberg.CompilationPipeline"
)

// Iceberg implements the executor.Language interface for the Iceberg
// compiler, which runs on the JVM.
type Iceberg struct {
	java      string
	jar       string
	mainClass string
	jvmFlags  []string
}

// Option configures the adapter.
type Option func(*Iceberg)

// WithJava sets the java binary.
func WithJava(path string) Option {
	return func(i *Iceberg) {
		if path != "" {
			i.java = path
		}
	}
}

// WithJar sets the compiler jar put on the classpath.
func WithJar(path string) Option {
	return func(i *Iceberg) {
		if path != "" {
			i.jar = path
		}
	}
}

// WithMainClass overrides the compiler entry point.
func WithMainClass(class string) Option {
	return func(i *Iceberg) {
		if class != "" {
			i.mainClass = class
		}
	}
}

// WithJVMFlags adds flags placed before the classpath, such as -Xmx64m.
func WithJVMFlags(flags ...string) Option {
	return func(i *Iceberg) {
		i.jvmFlags = append(i.jvmFlags, flags...)
	}
}

// New returns an Iceberg language adapter.
func New(opts ...Option) *Iceberg {
	i := &Iceberg{
		java:      DefaultJava,
		jar:       DefaultJar,
		mainClass: DefaultMainClass,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name returns "iceberg".
func (i *Iceberg) Name() string {
	return "iceberg"
}

// Syntax declares arguments with def and renders them with Literal.
func (i *Iceberg) Syntax() program.Syntax {
	return program.Syntax{
		DeclareKeyword: "def",
		ImportKeyword:  "import",
		Terminator:     ';',
		Reserved:       Keywords,
		Literal:        Literal,
	}
}

// Command returns the java invocation that compiles and runs path.
func (i *Iceberg) Command(path string) []string {
	argv := make([]string, 0, len(i.jvmFlags)+6)
	argv = append(argv, i.java)
	argv = append(argv, i.jvmFlags...)
	return append(argv, "-cp", i.jar, i.mainClass, "-run", path)
}

// The compiler prints parse errors as "<message> at <line>:<column>" and
// exits normally, so stderr has to be inspected.
var errorMarkers = []*regexp.Regexp{
	regexp.MustCompile(`Exception in thread "`),
	regexp.MustCompile(`\b(Compilation|Semantic)Exception\b`),
	regexp.MustCompile(`(?m) at \d+:\d+\s*$`),
}

// ErrorMarkers returns the stderr patterns of failed Iceberg programs.
func (i *Iceberg) ErrorMarkers() []*regexp.Regexp {
	return errorMarkers
}
