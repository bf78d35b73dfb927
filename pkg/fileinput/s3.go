package fileinput

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// S3Provider reads objects under a key prefix of one S3 bucket.
type S3Provider struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// NewS3Provider creates an S3 provider using the default AWS credential
// chain. An endpoint override targets S3-compatible stores.
func NewS3Provider(ctx context.Context, cfg ProviderConfig) (*S3Provider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 provider requires bucket")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	p := &S3Provider{client: client, bucket: cfg.Bucket, prefix: cfg.PathPrefix}
	if cfg.DownloadConcurrency > 1 {
		p.downloader = manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = cfg.DownloadConcurrency
			if cfg.PartSize > 0 {
				d.PartSize = cfg.PartSize
			}
		})
	}
	return p, nil
}

// List implements Provider.
func (p *S3Provider) List(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list S3 objects").
				WithDetail("bucket", p.bucket).
				WithDetail("prefix", p.prefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Open implements Provider. With a downloader configured the object is
// fetched in parallel parts into memory first.
func (p *S3Provider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(name)}

	if p.downloader != nil {
		buf := manager.NewWriteAtBuffer(nil)
		if _, err := p.downloader.Download(ctx, buf, input); err != nil {
			return nil, p.openError(err, name)
		}
		return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
	}

	out, err := p.client.GetObject(ctx, input)
	if err != nil {
		return nil, p.openError(err, name)
	}
	return out.Body, nil
}

func (p *S3Provider) openError(err error, name string) error {
	return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read S3 object").
		WithDetail("bucket", p.bucket).
		WithDetail("key", name)
}

// Close implements Provider.
func (p *S3Provider) Close() error { return nil }
