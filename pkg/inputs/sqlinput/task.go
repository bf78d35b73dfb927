package sqlinput

import (
	"time"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/json"
)

// Driver names.
const (
	DriverPostgreSQL = "postgresql"
	DriverMySQL      = "mysql"
)

const defaultConnectTimeout = 30 * time.Second

// Task is the serialized state of a query input. Each query is one
// partition; every query must return the declared columns.
type Task struct {
	Driver         string              `json:"driver"`
	DSN            string              `json:"dsn"`
	Queries        []string            `json:"queries"`
	Params         []json.RawMessage   `json:"params,omitempty"`
	Schema         config.SchemaConfig `json:"schema"`
	Formats        []string            `json:"formats"`
	ConnectTimeout time.Duration       `json:"connect_timeout"`
}

// LoadTask validates the "in" section. Columns are optional; without them
// the schema is discovered from the first query's result set.
func LoadTask(driver string, src config.Source) (Task, error) {
	t := Task{Driver: driver}
	var err error

	if t.DSN, err = src.RequiredString("dsn"); err != nil {
		return t, err
	}

	query, err := src.GetString("query", "")
	if err != nil {
		return t, err
	}
	if t.Queries, err = src.GetStringSlice("queries"); err != nil {
		return t, err
	}
	switch {
	case query != "" && len(t.Queries) > 0:
		return t, errors.New(errors.ErrorTypeConfig, "set either query or queries, not both").
			WithDetail("key", src.Path())
	case query != "":
		t.Queries = []string{query}
	case len(t.Queries) == 0:
		return t, errors.Newf(errors.ErrorTypeConfig, "missing required key %q", src.Path()+".query").
			WithDetail("key", src.Path()+".query")
	}

	params, err := src.GetSlice("params")
	if err != nil {
		return t, err
	}
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return t, errors.Wrap(err, errors.ErrorTypeConfig, "params must be scalars")
		}
		t.Params = append(t.Params, raw)
	}

	if src.Has("columns") {
		if t.Schema, err = config.LoadSchemaConfig(src, "columns"); err != nil {
			return t, err
		}
	}
	if t.ConnectTimeout, err = src.GetDuration("connect_timeout", defaultConnectTimeout); err != nil {
		return t, err
	}
	return t, nil
}

// args decodes the query parameters. Integral numbers become int64.
func (t Task) args() ([]interface{}, error) {
	out := make([]interface{}, len(t.Params))
	for i, raw := range t.Params {
		var v interface{}
		if err := json.UnmarshalNumbers(raw, &v); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed query parameter")
		}
		if n, ok := v.(json.Number); ok {
			if iv, err := n.Int64(); err == nil {
				v = iv
			} else if fv, err := n.Float64(); err == nil {
				v = fv
			}
		}
		out[i] = v
	}
	return out, nil
}
