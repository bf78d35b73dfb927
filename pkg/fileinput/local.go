package fileinput

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// LocalProvider reads files from the local filesystem. Files are selected
// by path_prefix (every file under the prefix's directory whose path starts
// with the prefix) and by paths (glob patterns).
type LocalProvider struct {
	prefix string
	globs  []string
}

// NewLocalProvider creates a local provider.
func NewLocalProvider(cfg ProviderConfig) *LocalProvider {
	return &LocalProvider{prefix: cfg.PathPrefix, globs: cfg.Paths}
}

// List implements Provider.
func (p *LocalProvider) List(ctx context.Context) ([]string, error) {
	var names []string
	for _, pattern := range p.globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid path pattern").
				WithDetail("pattern", pattern)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				names = append(names, m)
			}
		}
	}

	if p.prefix != "" {
		found, err := p.walkPrefix(ctx)
		if err != nil {
			return nil, err
		}
		names = append(names, found...)
	}
	return names, nil
}

func (p *LocalProvider) walkPrefix(ctx context.Context) ([]string, error) {
	sep := string(filepath.Separator)
	prefix := filepath.Clean(p.prefix)
	root := filepath.Dir(prefix)
	if strings.HasSuffix(p.prefix, sep) {
		root = prefix
		prefix += sep
	}

	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && !strings.HasPrefix(path, prefix) && !strings.HasPrefix(prefix, path+sep) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.HasPrefix(path, prefix) {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to list local files").
			WithDetail("path_prefix", p.prefix)
	}
	return names, nil
}

// Open implements Provider.
func (p *LocalProvider) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open input file").
			WithDetail("file", name)
	}
	return f, nil
}

// Close implements Provider.
func (p *LocalProvider) Close() error { return nil }
