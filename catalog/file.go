package catalog

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// File is the YAML catalog document:
//
//	functions:
//	  - oid: 16384
//	    name: double_it
//	    args:
//	      - {name: n, type: int4}
//	    returns: int4
//	    source: |
//	      return n * 2;
type File struct {
	Functions []Function `yaml:"functions"`
}

// ParseFile decodes and validates a YAML catalog document.
func ParseFile(data []byte) ([]Function, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse catalog file")
	}

	seen := make(map[FuncID]string, len(f.Functions))
	for i, fn := range f.Functions {
		if fn.ID == 0 {
			return nil, errors.Newf("function #%d (%s): oid is required", i+1, fn.Name)
		}
		if fn.Name == "" {
			return nil, errors.Newf("function oid %d: name is required", fn.ID)
		}
		if prev, ok := seen[fn.ID]; ok {
			return nil, errors.Newf("oid %d used by both %s and %s", fn.ID, prev, fn.Name)
		}
		seen[fn.ID] = fn.Name
		if fn.Returns == 0 {
			f.Functions[i].Returns = Void
		}
	}
	return f.Functions, nil
}

// LoadFile reads a YAML catalog document into a Memory catalog.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	funcs, err := ParseFile(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return NewMemory(funcs...), nil
}
