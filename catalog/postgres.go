package catalog

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"

	"github.com/caffeineduck/plbridge/plerr"
)

const pgSelect = `
SELECT p.oid, p.proname, p.prosrc, p.proargnames, p.proargtypes::oid[], p.prorettype
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_language l ON l.oid = p.prolang
`

// Postgres reads function definitions from a PostgreSQL pg_proc catalog.
type Postgres struct {
	db       *sql.DB
	language string
}

// PostgresOption configures a Postgres catalog.
type PostgresOption func(*Postgres)

// WithLanguage restricts the catalog to functions declared with LANGUAGE name.
// Functions of other languages are reported as not found.
func WithLanguage(name string) PostgresOption {
	return func(p *Postgres) {
		p.language = name
	}
}

// OpenPostgres connects to the database at dsn using lib/pq.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return NewPostgres(db, opts...), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanFunction(row pgRow) (*Function, error) {
	var (
		id       int64
		name     string
		src      sql.NullString
		argNames pq.StringArray
		argTypes pq.Int64Array
		retType  int64
	)
	if err := row.Scan(&id, &name, &src, &argNames, &argTypes, &retType); err != nil {
		return nil, err
	}

	fn := &Function{
		ID:      FuncID(id),
		Name:    name,
		Returns: Type(retType),
		Source:  src.String,
		Args:    make([]Arg, len(argTypes)),
	}
	for i, t := range argTypes {
		fn.Args[i].Type = Type(t)
		if i < len(argNames) {
			fn.Args[i].Name = argNames[i]
		}
	}
	return fn, nil
}

func (p *Postgres) Lookup(ctx context.Context, id FuncID) (*Function, error) {
	row := p.db.QueryRowContext(ctx,
		pgSelect+`WHERE p.oid = $1 AND ($2::text = '' OR l.lanname::text = $2::text)`,
		int64(id), p.language)

	fn, err := scanFunction(row)
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

func (p *Postgres) Resolve(ctx context.Context, name string) (FuncID, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT p.oid
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_language l ON l.oid = p.prolang
WHERE p.proname = $1 AND ($2::text = '' OR l.lanname::text = $2::text)`, name, p.language)
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

// List returns the functions of the configured language. Without a language
// restriction the whole of pg_proc would be listed, so one is required.
func (p *Postgres) List(ctx context.Context) ([]Function, error) {
	if p.language == "" {
		return nil, errors.New("list requires a language restriction")
	}
	rows, err := p.db.QueryContext(ctx, pgSelect+`WHERE l.lanname::text = $1 ORDER BY p.oid`, p.language)
	if err != nil {
		return nil, errors.Wrap(err, "list functions")
	}
	defer rows.Close()

	var funcs []Function
	for rows.Next() {
		fn, err := scanFunction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "list functions")
		}
		funcs = append(funcs, *fn)
	}
	return funcs, errors.Wrap(rows.Err(), "list functions")
}
