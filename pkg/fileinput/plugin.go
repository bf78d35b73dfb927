package fileinput

import (
	"bufio"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/compression"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/pool"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

const defaultReadBufferSize = 64 * 1024

var readers = pool.New(
	func() *bufio.Reader { return bufio.NewReaderSize(nil, defaultReadBufferSize) },
	func(r *bufio.Reader) { r.Reset(nil) },
)

// Plugin is the "file" input. It delegates schema declaration and decoding
// to the configured parser plugin.
type Plugin struct {
	// newProvider is replaced in tests.
	newProvider func(ctx context.Context, cfg ProviderConfig) (Provider, error)
}

var _ spi.InputPlugin = (*Plugin)(nil)

// New creates a file input plugin.
func New() *Plugin {
	return &Plugin{newProvider: NewProvider}
}

// Transaction lists the input files, lets the parser declare the schema and
// runs control with one partition per file.
func (p *Plugin) Transaction(ctx context.Context, exec *spi.ExecContext, src config.Source, control spi.Control) (spi.Outcome, error) {
	cfg, err := LoadPluginConfig(src)
	if err != nil {
		return spi.Outcome{}, err
	}

	parser, err := resolveParser(exec, cfg.ParserType)
	if err != nil {
		return spi.Outcome{}, err
	}
	parserTask, err := parser.Configure(exec, cfg.Parser)
	if err != nil {
		return spi.Outcome{}, err
	}

	provider, err := p.newProvider(ctx, cfg.Provider)
	if err != nil {
		return spi.Outcome{}, err
	}
	files, err := ListFiles(ctx, provider, cfg.LastPath)
	closeErr := provider.Close()
	if err != nil {
		return spi.Outcome{}, err
	}
	if closeErr != nil {
		exec.Logger().Warn("failed to close file provider", zap.Error(closeErr))
	}

	exec.Logger().Info("listed input files",
		zap.String("provider", cfg.Provider.Type),
		zap.Int("files", len(files)))

	task, err := exec.DumpTask(Task{
		Provider:   cfg.Provider,
		Files:      files,
		Decoders:   cfg.Decoders,
		AutoDecode: cfg.AutoDecode,
		ParserType: cfg.ParserType,
		Parser:     parserTask,
	})
	if err != nil {
		return spi.Outcome{}, err
	}
	return control.Run(ctx, task)
}

// Partitions returns the number of listed files.
func (p *Plugin) Partitions(exec *spi.ExecContext, src spi.TaskSource) (int, error) {
	var task Task
	if err := exec.LoadTask(src, &task); err != nil {
		return 0, err
	}
	return len(task.Files), nil
}

// RunInput opens the partition's file, applies the decoders and runs the
// parser over the decoded stream.
func (p *Plugin) RunInput(ctx context.Context, exec *spi.ExecContext, src spi.TaskSource, partition int, out record.PageSink) (spi.Report, error) {
	var task Task
	if err := exec.LoadTask(src, &task); err != nil {
		return spi.Report{}, err
	}
	if partition < 0 || partition >= len(task.Files) {
		return spi.Report{}, errors.New(errors.ErrorTypeInternal, fmt.Sprintf("partition %d out of range (%d files)", partition, len(task.Files)))
	}
	name := task.Files[partition]

	parser, err := resolveParser(exec, task.ParserType)
	if err != nil {
		return spi.Report{}, err
	}

	provider, err := p.newProvider(ctx, task.Provider)
	if err != nil {
		return spi.Report{}, err
	}
	defer provider.Close()

	raw, err := provider.Open(ctx, name)
	if err != nil {
		return spi.Report{}, err
	}
	defer raw.Close()

	decoded, err := compression.Chain(raw, task.decodersFor(name))
	if err != nil {
		return spi.Report{}, errors.Wrap(err, errors.ErrorTypeData, "failed to decode input file").
			WithDetail("file", name)
	}
	defer decoded.Close()

	var br *bufio.Reader
	if size := exec.System().Exec.ReadBufferSize; size > 0 && size != defaultReadBufferSize {
		br = bufio.NewReaderSize(decoded, size)
	} else {
		br = readers.Get()
		br.Reset(decoded)
		defer readers.Put(br)
	}

	exec.Logger().Debug("reading input file", zap.String("file", name), zap.Int("partition", partition))

	report, err := parser.Parse(ctx, exec, task.Parser, partition, &fileInput{Reader: br, name: name}, out)
	report.Partition = partition
	report.Set("file", name)
	return report, err
}

func resolveParser(exec *spi.ExecContext, name string) (spi.ParserPlugin, error) {
	plugins := exec.Plugins()
	if plugins == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "no plugin resolver on the exec context")
	}
	return plugins.Parser(name)
}

type fileInput struct {
	*bufio.Reader
	name string
}

func (f *fileInput) Name() string { return f.name }
