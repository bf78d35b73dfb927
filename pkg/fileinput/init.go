package fileinput

import (
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func init() {
	_ = registry.RegisterInput("file", "files from local disk, S3 or GCS decoded by a parser plugin",
		func() (spi.InputPlugin, error) { return New(), nil })
}
