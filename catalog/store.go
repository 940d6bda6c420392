package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/caffeineduck/plbridge/plerr"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS functions (
	oid         INTEGER PRIMARY KEY,
	name        TEXT    NOT NULL,
	args        TEXT    NOT NULL DEFAULT '[]',
	return_type TEXT    NOT NULL,
	source      TEXT
);
CREATE INDEX IF NOT EXISTS functions_name ON functions(name);
`

// Store is a persistent local catalog kept in a SQLite database. It lets the
// bridge run without a live host database (development, the CLI, tests).
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite catalog at path. Use
// ":memory:" for a throwaway catalog.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog store %s", path)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, storeSchema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "initialize catalog store %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Define inserts or replaces a function definition.
func (s *Store) Define(ctx context.Context, fn Function) error {
	if fn.Name == "" {
		return errors.Newf("function oid %d has no name", fn.ID)
	}
	args := fn.Args
	if args == nil {
		args = []Arg{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return errors.Wrapf(err, "encode arguments of %s", fn.Name)
	}
	ret, _ := fn.Returns.MarshalText()

	_, err = s.db.ExecContext(ctx, `
INSERT INTO functions (oid, name, args, return_type, source)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(oid) DO UPDATE SET
	name = excluded.name,
	args = excluded.args,
	return_type = excluded.return_type,
	source = excluded.source`,
		int64(fn.ID), fn.Name, string(encoded), string(ret), fn.Source)
	return errors.Wrapf(err, "define function %s", fn.Name)
}

// Drop removes a function. Dropping an unknown function is ErrNotFound.
func (s *Store) Drop(ctx context.Context, id FuncID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM functions WHERE oid = ?`, int64(id))
	if err != nil {
		return errors.Wrapf(err, "drop function oid %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return plerr.Newf(plerr.ErrNotFound, "function oid %d", id)
	}
	return nil
}

type storeRow interface {
	Scan(dest ...any) error
}

func scanStored(row storeRow) (*Function, error) {
	var (
		id     int64
		fn     Function
		args   string
		ret    string
		source sql.NullString
	)
	if err := row.Scan(&id, &fn.Name, &args, &ret, &source); err != nil {
		return nil, err
	}
	fn.ID = FuncID(id)
	fn.Source = source.String
	if err := json.Unmarshal([]byte(args), &fn.Args); err != nil {
		return nil, errors.Wrapf(err, "decode arguments of %s", fn.Name)
	}
	if err := fn.Returns.UnmarshalText([]byte(ret)); err != nil {
		return nil, errors.Wrapf(err, "decode return type of %s", fn.Name)
	}
	return &fn, nil
}

func (s *Store) Lookup(ctx context.Context, id FuncID) (*Function, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT oid, name, args, return_type, source FROM functions WHERE oid = ?`, int64(id))
	fn, err := scanStored(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, plerr.Newf(plerr.ErrNotFound, "function oid %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup function oid %d", id)
	}
	if err := checkSource(fn); err != nil {
		return nil, err
	}
	return fn, nil
}

func (s *Store) Resolve(ctx context.Context, name string) (FuncID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid FROM functions WHERE name = ?`, name)
	if err != nil {
		return 0, errors.Wrapf(err, "resolve function %q", name)
	}
	defer rows.Close()

	var ids []FuncID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, errors.Wrapf(err, "resolve function %q", name)
		}
		ids = append(ids, FuncID(id))
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrapf(err, "resolve function %q", name)
	}

	return pickOne(name, ids)
}

func (s *Store) List(ctx context.Context) ([]Function, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT oid, name, args, return_type, source FROM functions ORDER BY oid`)
	if err != nil {
		return nil, errors.Wrap(err, "list functions")
	}
	defer rows.Close()

	var funcs []Function
	for rows.Next() {
		fn, err := scanStored(rows)
		if err != nil {
			return nil, errors.Wrap(err, "list functions")
		}
		funcs = append(funcs, *fn)
	}
	return funcs, errors.Wrap(rows.Err(), "list functions")
}
