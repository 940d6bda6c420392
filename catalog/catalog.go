// Package catalog reads function definitions (source text and declared
// signature) from the host database's function catalog.
//
// The bridge only needs a read contract: [Catalog.Lookup] resolves a function
// identity to a [Function]. Implementations exist for PostgreSQL's pg_proc
// ([Postgres]), a local SQLite store ([Store]) and in-process maps
// ([Memory], also produced by [LoadFile]).
package catalog

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/caffeineduck/plbridge/plerr"
)

// Catalog resolves a function identity to its definition.
//
// Lookup fails with plerr.ErrNotFound when id is unknown and with
// plerr.ErrMissingSource when the function has no (or only blank) source.
type Catalog interface {
	Lookup(ctx context.Context, id FuncID) (*Function, error)
}

// Resolver maps a function name to its identity.
type Resolver interface {
	Resolve(ctx context.Context, name string) (FuncID, error)
}

// Lister enumerates the functions a catalog holds.
type Lister interface {
	List(ctx context.Context) ([]Function, error)
}

// ResolveRef resolves ref either as a numeric oid or, if c can resolve
// names, as a function name.
func ResolveRef(ctx context.Context, c Catalog, ref string) (FuncID, error) {
	if n, err := strconv.ParseUint(ref, 10, 32); err == nil {
		return FuncID(n), nil
	}
	r, ok := c.(Resolver)
	if !ok {
		return 0, plerr.Newf(plerr.ErrNotFound, "function %q (catalog cannot resolve names)", ref)
	}
	return r.Resolve(ctx, ref)
}

// pickOne turns the ids matching name into a single identity. Overloaded
// names cannot be called by name.
func pickOne(name string, ids []FuncID) (FuncID, error) {
	switch len(ids) {
	case 0:
		return 0, plerr.Newf(plerr.ErrNotFound, "function %q", name)
	case 1:
		return ids[0], nil
	default:
		return 0, plerr.Newf(plerr.ErrNotFound, "function %q is ambiguous (%d overloads)", name, len(ids))
	}
}

// checkSource enforces the source half of the Lookup contract.
func checkSource(fn *Function) error {
	if strings.TrimSpace(fn.Source) == "" {
		return plerr.Newf(plerr.ErrMissingSource, "function %s (oid %d)", fn.Name, fn.ID)
	}
	return nil
}

// Memory is an in-process catalog. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	funcs map[FuncID]Function
}

func NewMemory(funcs ...Function) *Memory {
	m := &Memory{funcs: make(map[FuncID]Function)}
	for _, fn := range funcs {
		m.Define(fn)
	}
	return m
}

// Define adds or replaces a function.
func (m *Memory) Define(fn Function) {
	fn.Args = append([]Arg(nil), fn.Args...)
	m.mu.Lock()
	m.funcs[fn.ID] = fn
	m.mu.Unlock()
}

func (m *Memory) Lookup(ctx context.Context, id FuncID) (*Function, error) {
	m.mu.RLock()
	fn, ok := m.funcs[id]
	m.mu.RUnlock()

	if !ok {
		return nil, plerr.Newf(plerr.ErrNotFound, "function oid %d", id)
	}
	fn.Args = append([]Arg(nil), fn.Args...)
	if err := checkSource(&fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (m *Memory) Resolve(ctx context.Context, name string) (FuncID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []FuncID
	for id, fn := range m.funcs {
		if fn.Name == name {
			found = append(found, id)
		}
	}
	return pickOne(name, found)
}

func (m *Memory) List(ctx context.Context) ([]Function, error) {
	m.mu.RLock()
	funcs := make([]Function, 0, len(m.funcs))
	for _, fn := range m.funcs {
		funcs = append(funcs, fn)
	}
	m.mu.RUnlock()

	sort.Slice(funcs, func(i, j int) bool { return funcs[i].ID < funcs[j].ID })
	return funcs, nil
}
