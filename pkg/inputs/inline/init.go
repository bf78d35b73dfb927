package inline

import (
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func init() {
	_ = registry.RegisterInput(pluginName, "records written in the job file",
		func() (spi.InputPlugin, error) { return Plugin{}, nil })
}
