package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

type nopInput struct{}

func (nopInput) Transaction(ctx context.Context, _ *spi.ExecContext, _ config.Source, control spi.Control) (spi.Outcome, error) {
	return control.Run(ctx, nil)
}

func (nopInput) Partitions(*spi.ExecContext, spi.TaskSource) (int, error) { return 1, nil }

func (nopInput) RunInput(context.Context, *spi.ExecContext, spi.TaskSource, int, record.PageSink) (spi.Report, error) {
	return spi.Report{}, nil
}

type nopParser struct{}

func (nopParser) Configure(*spi.ExecContext, config.Source) (spi.TaskSource, error) { return nil, nil }

func (nopParser) Parse(context.Context, *spi.ExecContext, spi.TaskSource, int, spi.FileInput, record.PageSink) (spi.Report, error) {
	return spi.Report{}, nil
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterInput("nop", "does nothing", func() (spi.InputPlugin, error) { return nopInput{}, nil }))
	require.NoError(t, r.RegisterParser("nop", "parses nothing", func() (spi.ParserPlugin, error) { return nopParser{}, nil }))

	in, err := r.Input("nop")
	require.NoError(t, err)
	assert.IsType(t, nopInput{}, in)

	p, err := r.Parser("nop")
	require.NoError(t, err)
	assert.IsType(t, nopParser{}, p)

	assert.True(t, r.HasInput("nop"))
	assert.True(t, r.HasParser("nop"))
	assert.False(t, r.HasInput("csv"))
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	factory := func() (spi.InputPlugin, error) { return nopInput{}, nil }
	require.NoError(t, r.RegisterInput("a", "", factory))
	err := r.RegisterInput("a", "", factory)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestUnknownPlugin(t *testing.T) {
	r := NewRegistry()
	_, err := r.Input("missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = r.Parser("missing")
	assert.Error(t, err)
}

func TestFactoryFailure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterInput("bad", "", func() (spi.InputPlugin, error) { return nil, fmt.Errorf("no driver") }))
	_, err := r.Input("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no driver")
}

func TestListingIsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"sql", "file", "inline"} {
		require.NoError(t, r.RegisterInput(name, name+" input", func() (spi.InputPlugin, error) { return nopInput{}, nil }))
	}
	require.NoError(t, r.RegisterParser("csv", "csv parser", func() (spi.ParserPlugin, error) { return nopParser{}, nil }))

	assert.Equal(t, []string{"file", "inline", "sql"}, r.ListInputs())
	assert.Equal(t, []string{"csv"}, r.ListParsers())

	info := r.Info()
	require.Len(t, info, 4)
	assert.Equal(t, PluginInfo{Name: "file", Kind: KindInput, Description: "file input"}, info[0])
	assert.Equal(t, KindParser, info[3].Kind)

	r.Clear()
	assert.Empty(t, r.ListInputs())
	assert.Empty(t, r.Info())
}
