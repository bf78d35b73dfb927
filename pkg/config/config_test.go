package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
)

const jobYAML = `
in:
  type: file
  path_prefix: ./data/sample_
  parser:
    type: csv
    skip_header_lines: "1"
    columns:
      - {name: id, type: long}
      - {name: score, type: double}
      - {name: name, type: string}
      - {name: at, type: timestamp, format: "2006-01-02"}
exec:
  page_size: 10
  max_threads: 2
preview_sample_rows: 5
`

func TestSourceAccessors(t *testing.T) {
	src := MustYAML(jobYAML)

	typ, err := src.RequiredString("in.type")
	require.NoError(t, err)
	assert.Equal(t, "file", typ)

	in, err := src.Sub("in")
	require.NoError(t, err)
	assert.Equal(t, "in", in.Path())

	skip, err := in.GetInt("parser.skip_header_lines", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, skip)

	rows, err := src.GetInt("preview_sample_rows", 30)
	require.NoError(t, err)
	assert.Equal(t, 5, rows)

	strict, err := src.GetBool("strict", false)
	require.NoError(t, err)
	assert.False(t, strict)

	assert.True(t, src.Has("in.parser.columns"))
	assert.False(t, src.Has("out"))
	assert.Equal(t, []string{"exec", "in", "preview_sample_rows"}, src.Keys())
}

func TestSourceMissingKeyNamesFullPath(t *testing.T) {
	src := MustYAML(jobYAML)
	in, err := src.Sub("in")
	require.NoError(t, err)

	_, err = in.RequiredString("bucket")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), `"in.bucket"`)

	_, err = src.RequiredSub("out")
	assert.Error(t, err)
}

func TestSourceTypeErrors(t *testing.T) {
	src := MustYAML("page_size: lots\nin: file\n")
	_, err := src.GetInt("page_size", 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = src.Sub("in")
	assert.Error(t, err)
}

func TestSourceIsACopy(t *testing.T) {
	m := map[string]interface{}{"in": map[string]interface{}{"type": "inline"}}
	src := NewSource(m)
	m["in"].(map[string]interface{})["type"] = "file"

	typ, _ := src.GetString("in.type", "")
	assert.Equal(t, "inline", typ)
}

func TestSourceWith(t *testing.T) {
	src := MustYAML(jobYAML)
	over := src.With("preview_sample_rows", 12)

	n, err := over.GetInt("preview_sample_rows", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	n, _ = src.GetInt("preview_sample_rows", 0)
	assert.Equal(t, 5, n, "original is unchanged")
	assert.True(t, over.Has("in.parser.columns"))
}

func TestGetStringSlice(t *testing.T) {
	src := MustYAML("one: a\nmany: [a, b]\n")
	one, err := src.GetStringSlice("one")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, one)

	many, err := src.GetStringSlice("many")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, many)

	none, err := src.GetStringSlice("missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLoadSchemaConfig(t *testing.T) {
	src := MustYAML(jobYAML)
	cfg, err := LoadSchemaConfig(src, "in.parser.columns")
	require.NoError(t, err)
	require.Len(t, cfg.Columns, 4)

	schema, err := cfg.Schema()
	require.NoError(t, err)
	assert.Equal(t, 4, schema.Len())
	assert.Equal(t, record.Timestamp, schema.Column(3).Type)
	assert.Equal(t, []string{"d", "d", "d", "2006-01-02"}, cfg.Formats("d"))
}

func TestLoadSchemaConfigRejectsBadColumns(t *testing.T) {
	_, err := LoadSchemaConfig(MustYAML("columns: []"), "columns")
	assert.Error(t, err)

	_, err = LoadSchemaConfig(MustYAML("x: 1"), "columns")
	assert.Error(t, err)

	_, err = LoadSchemaConfig(MustYAML("columns: [{name: a}]"), "columns")
	assert.Error(t, err)

	cfg, err := LoadSchemaConfig(MustYAML("columns: [{name: a, type: decimal}]"), "columns")
	require.NoError(t, err)
	_, err = cfg.Schema()
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	cfg, err = LoadSchemaConfig(MustYAML("columns: [{name: a, type: long}, {name: a, type: long}]"), "columns")
	require.NoError(t, err)
	_, err = cfg.Schema()
	assert.Error(t, err)
}

func TestLoadSystemConfig(t *testing.T) {
	cfg, err := LoadSystemConfig(MustYAML(jobYAML))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Exec.PageSize)
	assert.Equal(t, 2, cfg.Exec.MaxThreads)
	assert.Equal(t, 16, cfg.Exec.ChannelCapacity)
	assert.Equal(t, "info", cfg.Observability.LogLevel)

	cfg, err = LoadSystemConfig(Empty())
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemConfig(), cfg)
	assert.Zero(t, cfg.Exec.JoinTimeout, "joins wait for the producer unless a timeout is configured")

	_, err = LoadSystemConfig(MustYAML("exec: {page_size: 0}"))
	assert.Error(t, err)

	_, err = LoadSystemConfig(MustYAML("observability: {log_level: loud}"))
	assert.Error(t, err)

	cfg, err = LoadSystemConfig(MustYAML("exec: {join_timeout: 5s}"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Exec.JoinTimeout)
}

func TestLoadFileSubstitutesAndOverrides(t *testing.T) {
	t.Setenv("QL_TEST_BUCKET", "my-bucket")
	t.Setenv("QUICKLOAD_IN_PATH_PREFIX", "s3-prefix/")

	path := filepath.Join(t.TempDir(), "job.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
in:
  type: file
  provider: s3
  bucket: ${QL_TEST_BUCKET}
  path_prefix: local/
`), 0o600))

	src, err := LoadFile(path)
	require.NoError(t, err)

	bucket, _ := src.GetString("in.bucket", "")
	assert.Equal(t, "my-bucket", bucket)
	prefix, _ := src.GetString("in.path_prefix", "")
	assert.Equal(t, "s3-prefix/", prefix)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
