package fileinput

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// GCSProvider reads objects under a prefix of one Cloud Storage bucket.
type GCSProvider struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCSProvider creates a GCS provider. Without credentials_file the
// application default credentials are used; an endpoint override (for an
// emulator) disables authentication.
func NewGCSProvider(ctx context.Context, cfg ProviderConfig) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs provider requires bucket")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}

	return &GCSProvider{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		prefix: cfg.PathPrefix,
	}, nil
}

// List implements Provider.
func (p *GCSProvider) List(ctx context.Context) ([]string, error) {
	it := p.bucket.Objects(ctx, &storage.Query{Prefix: p.prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list GCS objects").
				WithDetail("bucket", p.name).
				WithDetail("prefix", p.prefix)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Open implements Provider.
func (p *GCSProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := p.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read GCS object").
			WithDetail("bucket", p.name).
			WithDetail("object", name)
	}
	return r, nil
}

// Close implements Provider.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}
