// Package fileinput implements the "file" input plugin. It lists input
// files from a storage provider (local disk, S3 or GCS), runs one partition
// per file, decodes compressed streams and hands each file to a parser
// plugin that turns bytes into records.
//
// Example configuration:
//
//	in:
//	  type: file
//	  provider: s3
//	  bucket: my-bucket
//	  path_prefix: exports/2024-06/
//	  decoders: [gzip]
//	  parser:
//	    type: csv
//	    header_line: true
//	    columns:
//	      - {name: id, type: long}
//	      - {name: name, type: string}
package fileinput

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// Provider lists and opens files in one storage system.
type Provider interface {
	// List returns the names of the files to read, in any order.
	List(ctx context.Context) ([]string, error)
	// Open returns the raw byte stream of a listed file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Close releases clients held by the provider.
	Close() error
}

// Provider type names.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
)

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Type       string   `json:"type"`
	PathPrefix string   `json:"path_prefix,omitempty"`
	Paths      []string `json:"paths,omitempty"`

	// Object stores
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	UsePathStyle    bool   `json:"use_path_style,omitempty"`

	// DownloadConcurrency > 1 fetches S3 objects in parallel ranged parts.
	DownloadConcurrency int   `json:"download_concurrency,omitempty"`
	PartSize            int64 `json:"part_size,omitempty"`
}

// NewProvider creates the provider cfg names.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderLocal, "":
		return NewLocalProvider(cfg), nil
	case ProviderS3:
		return NewS3Provider(ctx, cfg)
	case ProviderGCS:
		return NewGCSProvider(ctx, cfg)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported file provider: %s", cfg.Type)).
			WithDetail("provider", cfg.Type)
	}
}

// ListFiles lists provider files in lexical order, keeping only names
// strictly after lastPath when it is set.
func ListFiles(ctx context.Context, p Provider, lastPath string) ([]string, error) {
	names, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := names[:0]
	var prev string
	for i, name := range names {
		if i > 0 && name == prev {
			continue
		}
		prev = name
		if lastPath != "" && name <= lastPath {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
