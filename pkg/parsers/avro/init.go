package avro

import (
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func init() {
	_ = registry.RegisterParser(pluginName, "Avro object container files",
		func() (spi.ParserPlugin, error) { return Parser{}, nil })
}
