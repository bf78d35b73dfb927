package sqlinput

import (
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func init() {
	_ = registry.RegisterInput(DriverPostgreSQL, "PostgreSQL query results via pgx",
		func() (spi.InputPlugin, error) { return New(DriverPostgreSQL), nil })
	_ = registry.RegisterInput(DriverMySQL, "MySQL query results via database/sql",
		func() (spi.InputPlugin, error) { return New(DriverMySQL), nil })
}
