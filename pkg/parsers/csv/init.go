package csv

import (
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func init() {
	_ = registry.RegisterParser(pluginName, "delimited text with typed columns",
		func() (spi.ParserPlugin, error) { return Parser{}, nil })
}
