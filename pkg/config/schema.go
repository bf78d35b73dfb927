package config

import (
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
)

// ColumnConfig is one entry of a columns list:
//
//	columns:
//	  - {name: id, type: long}
//	  - {name: at, type: timestamp, format: "2006-01-02 15:04:05"}
type ColumnConfig struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// SchemaConfig is the declared column list of a plugin.
type SchemaConfig struct {
	Columns []ColumnConfig `yaml:"columns" json:"columns"`
}

// LoadSchemaConfig reads the required, non-empty column list at key.
func LoadSchemaConfig(src Source, key string) (SchemaConfig, error) {
	if !src.Has(key) {
		return SchemaConfig{}, src.missing(key)
	}
	items, err := src.GetSources(key)
	if err != nil {
		return SchemaConfig{}, err
	}
	if len(items) == 0 {
		return SchemaConfig{}, errors.Newf(errors.ErrorTypeConfig, "%q must declare at least one column", src.path(key)).
			WithDetail("key", src.path(key))
	}

	cfg := SchemaConfig{Columns: make([]ColumnConfig, len(items))}
	for i, item := range items {
		var col ColumnConfig
		if col.Name, err = item.RequiredString("name"); err != nil {
			return SchemaConfig{}, err
		}
		if col.Type, err = item.RequiredString("type"); err != nil {
			return SchemaConfig{}, err
		}
		if col.Format, err = item.GetString("format", ""); err != nil {
			return SchemaConfig{}, err
		}
		cfg.Columns[i] = col
	}
	return cfg, nil
}

// Schema builds the record.Schema the columns describe.
func (c SchemaConfig) Schema() (*record.Schema, error) {
	cols := make([]record.Column, len(c.Columns))
	for i, cc := range c.Columns {
		typ, err := record.ParseType(cc.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid column type").
				WithDetail("column", cc.Name)
		}
		cols[i] = record.NewColumn(cc.Name, i, typ)
	}
	schema, err := record.NewSchema(cols...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid schema")
	}
	return schema, nil
}

// Formats returns the per-column timestamp layouts, with def for columns
// that declare none.
func (c SchemaConfig) Formats(def string) []string {
	out := make([]string, len(c.Columns))
	for i, cc := range c.Columns {
		out[i] = cc.Format
		if out[i] == "" {
			out[i] = def
		}
	}
	return out
}
