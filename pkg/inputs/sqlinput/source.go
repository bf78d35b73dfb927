package sqlinput

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
)

// source runs queries against one database connection.
type source interface {
	Query(ctx context.Context, query string, args []interface{}) (rowIterator, error)
	// Describe returns the result columns of query without reading rows.
	Describe(ctx context.Context, query string, args []interface{}) ([]config.ColumnConfig, error)
	Close() error
}

type rowIterator interface {
	Columns() []string
	Next() bool
	Values() ([]interface{}, error)
	Err() error
	Close()
}

func openSource(ctx context.Context, driver, dsn string) (source, error) {
	switch driver {
	case DriverPostgreSQL:
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to PostgreSQL")
		}
		return &pgSource{conn: conn}, nil
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid MySQL DSN")
		}
		cfg.ParseTime = true
		db, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open MySQL connection")
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to MySQL")
		}
		return &mysqlSource{db: db}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported sql driver: %s", driver)
	}
}

// PostgreSQL

type pgSource struct {
	conn *pgx.Conn
}

func (s *pgSource) Query(ctx context.Context, query string, args []interface{}) (rowIterator, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
	}
	return &pgRows{rows: rows}, nil
}

func (s *pgSource) Describe(ctx context.Context, query string, args []interface{}) ([]config.ColumnConfig, error) {
	rows, err := s.conn.Query(ctx, "SELECT * FROM ("+query+") AS q LIMIT 0", args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to describe query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]config.ColumnConfig, len(fields))
	for i, f := range fields {
		cols[i] = config.ColumnConfig{Name: f.Name, Type: pgColumnType(f.DataTypeOID)}
	}
	return cols, rows.Err()
}

func (s *pgSource) Close() error {
	return s.conn.Close(context.Background())
}

func pgColumnType(oid uint32) string {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return "long"
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return "double"
	case pgtype.BoolOID:
		return "boolean"
	case pgtype.TimestampOID, pgtype.TimestamptzOID, pgtype.DateOID:
		return "timestamp"
	default:
		return "string"
	}
}

type pgRows struct {
	rows  pgx.Rows
	names []string
}

func (r *pgRows) Columns() []string {
	if r.names == nil {
		for _, f := range r.rows.FieldDescriptions() {
			r.names = append(r.names, f.Name)
		}
	}
	return r.names
}

func (r *pgRows) Next() bool { return r.rows.Next() }

func (r *pgRows) Values() ([]interface{}, error) {
	values, err := r.rows.Values()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = normalizePG(v)
	}
	return values, nil
}

func (r *pgRows) Err() error { return r.rows.Err() }

func (r *pgRows) Close() { r.rows.Close() }

// normalizePG rewrites pgx values that have no plain Go equivalent.
// Numerics become their decimal text, so both long and double columns can
// parse them; UUIDs become their canonical text.
func normalizePG(v interface{}) interface{} {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		text, err := x.MarshalJSON()
		if err != nil {
			return v
		}
		return strings.Trim(string(text), `"`)
	case [16]byte:
		return uuid.UUID(x).String()
	}
	return v
}

// MySQL

type mysqlSource struct {
	db *sql.DB
}

func (s *mysqlSource) Query(ctx context.Context, query string, args []interface{}) (rowIterator, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
	}
	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read result columns")
	}
	return &sqlRows{rows: rows, names: names}, nil
}

func (s *mysqlSource) Describe(ctx context.Context, query string, args []interface{}) ([]config.ColumnConfig, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM ("+query+") AS q LIMIT 0", args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to describe query")
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read result columns")
	}
	cols := make([]config.ColumnConfig, len(types))
	for i, ct := range types {
		cols[i] = config.ColumnConfig{Name: ct.Name(), Type: mysqlColumnType(ct.DatabaseTypeName())}
	}
	return cols, rows.Err()
}

func (s *mysqlSource) Close() error { return s.db.Close() }

func mysqlColumnType(name string) string {
	switch strings.ToUpper(name) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT",
		"UNSIGNED MEDIUMINT", "UNSIGNED INT", "YEAR":
		return "long"
	case "DECIMAL", "FLOAT", "DOUBLE":
		return "double"
	case "DATE", "DATETIME", "TIMESTAMP":
		return "timestamp"
	default:
		return "string"
	}
}

type sqlRows struct {
	rows  *sql.Rows
	names []string
}

func (r *sqlRows) Columns() []string { return r.names }

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]interface{}, error) {
	values := make([]interface{}, len(r.names))
	ptrs := make([]interface{}, len(r.names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *sqlRows) Err() error { return r.rows.Err() }

func (r *sqlRows) Close() { r.rows.Close() }
