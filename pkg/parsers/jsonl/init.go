package jsonl

import (
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func init() {
	_ = registry.RegisterParser(pluginName, "newline-delimited JSON objects",
		func() (spi.ParserPlugin, error) { return Parser{}, nil })
}
