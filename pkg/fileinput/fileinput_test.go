package fileinput

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/quickload/pkg/compression"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// lineParser emits one string record per input line.
type lineParser struct{}

func (lineParser) Configure(exec *spi.ExecContext, _ config.Source) (spi.TaskSource, error) {
	if err := exec.SetSchema(record.MustSchema(record.NewColumn("line", 0, record.String))); err != nil {
		return nil, err
	}
	return exec.DumpTask(struct{}{})
}

func (lineParser) Parse(ctx context.Context, exec *spi.ExecContext, _ spi.TaskSource, _ int, input spi.FileInput, out record.PageSink) (spi.Report, error) {
	var report spi.Report
	b, err := exec.NewPageBuilder(out, &report)
	if err != nil {
		return report, err
	}
	defer b.Close()
	sc := bufio.NewScanner(input)
	for sc.Scan() {
		b.SetString(0, sc.Text())
		if err := b.AddRecord(ctx); err != nil {
			return report, err
		}
	}
	if err := sc.Err(); err != nil {
		return report, err
	}
	return report, b.Flush(ctx)
}

type plugins struct{}

func (plugins) Input(name string) (spi.InputPlugin, error) {
	return nil, errors.New(errors.ErrorTypeConfig, "no inputs")
}

func (plugins) Parser(name string) (spi.ParserPlugin, error) {
	if name != "lines" {
		return nil, errors.New(errors.ErrorTypeConfig, "unknown parser "+name)
	}
	return lineParser{}, nil
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := compression.NewWriter(compression.Gzip, &buf, compression.Default)
	require.NoError(t, err)
	_, err = w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestLocalProviderPrefix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data_01.csv"), []byte("a"))
	writeFile(t, filepath.Join(dir, "data_02.csv"), []byte("b"))
	writeFile(t, filepath.Join(dir, "other.csv"), []byte("c"))
	writeFile(t, filepath.Join(dir, "data_dir", "nested.csv"), []byte("d"))
	writeFile(t, filepath.Join(dir, "skip", "data_x.csv"), []byte("e"))

	p := NewLocalProvider(ProviderConfig{PathPrefix: filepath.Join(dir, "data_")})
	files, err := ListFiles(context.Background(), p, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "data_01.csv"),
		filepath.Join(dir, "data_02.csv"),
		filepath.Join(dir, "data_dir", "nested.csv"),
	}, files)

	files, err = ListFiles(context.Background(), p, filepath.Join(dir, "data_01.csv"))
	require.NoError(t, err)
	assert.Len(t, files, 2, "last_path excludes itself and earlier files")
}

func TestLocalProviderDirectoryPrefixAndGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "in", "a.csv"), []byte("a"))
	writeFile(t, filepath.Join(dir, "in", "b.json"), []byte("b"))

	p := NewLocalProvider(ProviderConfig{PathPrefix: filepath.Join(dir, "in") + string(filepath.Separator)})
	files, err := ListFiles(context.Background(), p, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	p = NewLocalProvider(ProviderConfig{
		Paths:      []string{filepath.Join(dir, "in", "*.csv")},
		PathPrefix: filepath.Join(dir, "in", "a"),
	})
	files, err = ListFiles(context.Background(), p, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "in", "a.csv")}, files, "duplicates removed")

	missing := NewLocalProvider(ProviderConfig{PathPrefix: filepath.Join(dir, "nope", "x")})
	files, err = ListFiles(context.Background(), missing, "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLoadPluginConfig(t *testing.T) {
	cfg, err := LoadPluginConfig(config.MustYAML(`
path_prefix: /tmp/x
parser: {type: csv}
`))
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, cfg.Provider.Type)
	assert.True(t, cfg.AutoDecode)
	assert.Equal(t, "csv", cfg.ParserType)

	cfg, err = LoadPluginConfig(config.MustYAML(`
provider: s3
bucket: b
path_prefix: p/
decoders: [gzip, {type: zstd}, none]
parser: {type: jsonl}
`))
	require.NoError(t, err)
	assert.False(t, cfg.AutoDecode)
	assert.Equal(t, []compression.Algorithm{compression.Gzip, compression.Zstd}, cfg.Decoders)

	for name, doc := range map[string]string{
		"no paths":      "parser: {type: csv}",
		"no parser":     "path_prefix: /tmp/x",
		"no bucket":     "provider: gcs\nparser: {type: csv}",
		"bad provider":  "provider: ftp\nparser: {type: csv}",
		"bad decoder":   "path_prefix: x\ndecoders: [brotli]\nparser: {type: csv}",
		"parser w/o ty": "path_prefix: x\nparser: {delimiter: ','}",
	} {
		_, err := LoadPluginConfig(config.MustYAML(doc))
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), name)
	}
}

func TestPluginTransactionAndRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "part-1.txt"), []byte("a\nb\nc\n"))
	writeFile(t, filepath.Join(dir, "part-2.txt.gz"), gzipped(t, "d\ne\n"))

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	sys := config.DefaultSystemConfig()
	sys.Exec.PageSize = 2
	exec := spi.NewExecContext(sys,
		spi.WithLogger(zaptest.NewLogger(t)),
		spi.WithAllocator(mem),
		spi.WithPlugins(plugins{}),
		spi.WithPluginName("file"))

	cfg := config.MustYAML("path_prefix: " + filepath.Join(dir, "part-") + "\nparser: {type: lines}\n")

	plugin := New()
	var rows []string
	var reports []spi.Report
	outcome, err := plugin.Transaction(context.Background(), exec, cfg, spi.ControlFunc(func(ctx context.Context, task spi.TaskSource) (spi.Outcome, error) {
		n, err := plugin.Partitions(exec, task)
		if err != nil {
			return spi.Outcome{}, err
		}
		for i := 0; i < n; i++ {
			report, err := plugin.RunInput(ctx, exec, task, i, record.SinkFunc(func(_ context.Context, p *record.Page) error {
				for _, row := range p.Rows() {
					rows = append(rows, row[0].Text())
				}
				p.Release()
				return nil
			}))
			if err != nil {
				return spi.Outcome{}, err
			}
			reports = append(reports, report)
		}
		return spi.Continue(reports), nil
	}))
	require.NoError(t, err)
	assert.False(t, outcome.IsAbort())

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, rows)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(3), reports[0].Records)
	assert.Equal(t, int64(2), reports[0].Pages)
	assert.Equal(t, 1, reports[1].Partition)
	assert.Equal(t, filepath.Join(dir, "part-2.txt.gz"), reports[1].Extra["file"])
	assert.NotNil(t, exec.Schema())
}

func TestRunInputPartitionOutOfRange(t *testing.T) {
	exec := spi.NewExecContext(config.DefaultSystemConfig(), spi.WithLogger(zaptest.NewLogger(t)), spi.WithPlugins(plugins{}))
	task, err := exec.DumpTask(Task{Files: []string{"a"}, ParserType: "lines"})
	require.NoError(t, err)

	_, err = New().RunInput(context.Background(), exec, task, 3, record.SinkFunc(func(context.Context, *record.Page) error { return nil }))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}
