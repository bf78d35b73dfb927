package fileinput

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/ajitpratap0/quickload/pkg/compression"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// PluginConfig is the validated configuration of the file input.
type PluginConfig struct {
	Provider ProviderConfig
	LastPath string
	// Decoders are applied outermost first. AutoDecode picks one decoder
	// per file from its extension instead.
	Decoders   []compression.Algorithm
	AutoDecode bool
	ParserType string
	Parser     config.Source
}

// Task is the serialized state shared by every partition.
type Task struct {
	Provider   ProviderConfig          `json:"provider"`
	Files      []string                `json:"files"`
	Decoders   []compression.Algorithm `json:"decoders,omitempty"`
	AutoDecode bool                    `json:"auto_decode"`
	ParserType string                  `json:"parser_type"`
	Parser     spi.TaskSource          `json:"parser"`
}

// LoadPluginConfig validates the "in" section of a file input.
func LoadPluginConfig(src config.Source) (PluginConfig, error) {
	var (
		cfg PluginConfig
		err error
	)

	p := &cfg.Provider
	if p.Type, err = src.GetString("provider", ProviderLocal); err != nil {
		return cfg, err
	}
	if p.PathPrefix, err = src.GetString("path_prefix", ""); err != nil {
		return cfg, err
	}
	if p.Paths, err = src.GetStringSlice("paths"); err != nil {
		return cfg, err
	}
	if p.Bucket, err = src.GetString("bucket", ""); err != nil {
		return cfg, err
	}
	if p.Region, err = src.GetString("region", ""); err != nil {
		return cfg, err
	}
	if p.Endpoint, err = src.GetString("endpoint", ""); err != nil {
		return cfg, err
	}
	if p.CredentialsFile, err = src.GetString("credentials_file", ""); err != nil {
		return cfg, err
	}
	if p.UsePathStyle, err = src.GetBool("use_path_style", false); err != nil {
		return cfg, err
	}
	if p.DownloadConcurrency, err = src.GetInt("download_concurrency", 1); err != nil {
		return cfg, err
	}
	partSize, err := src.GetInt("part_size", 0)
	if err != nil {
		return cfg, err
	}
	p.PartSize = int64(partSize)

	switch p.Type {
	case ProviderLocal:
		if p.PathPrefix == "" && len(p.Paths) == 0 {
			return cfg, errors.New(errors.ErrorTypeConfig, "file input requires path_prefix or paths").
				WithDetail("key", src.Path())
		}
	case ProviderS3, ProviderGCS:
		if p.Bucket == "" {
			return cfg, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s provider requires bucket", p.Type)).
				WithDetail("key", src.Path()+".bucket")
		}
		if len(p.Paths) > 0 {
			return cfg, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s provider supports path_prefix only", p.Type))
		}
	default:
		return cfg, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported file provider: %s", p.Type)).
			WithDetail("provider", p.Type)
	}

	if cfg.LastPath, err = src.GetString("last_path", ""); err != nil {
		return cfg, err
	}

	if !src.Has("decoders") {
		cfg.AutoDecode = true
	} else if cfg.Decoders, err = loadDecoders(src); err != nil {
		return cfg, err
	}

	if cfg.Parser, err = src.RequiredSub("parser"); err != nil {
		return cfg, err
	}
	if cfg.ParserType, err = cfg.Parser.RequiredString("type"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDecoders accepts both `decoders: [gzip]` and
// `decoders: [{type: gzip}]`.
func loadDecoders(src config.Source) ([]compression.Algorithm, error) {
	items, err := src.GetSlice("decoders")
	if err != nil {
		return nil, err
	}
	algs := make([]compression.Algorithm, 0, len(items))
	for i, item := range items {
		name := ""
		switch v := item.(type) {
		case map[string]interface{}:
			name = cast.ToString(v["type"])
		default:
			name = cast.ToString(v)
		}
		if name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "decoders[%d]: missing type", i)
		}
		alg, err := compression.ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		if alg != compression.None {
			algs = append(algs, alg)
		}
	}
	return algs, nil
}

// decodersFor returns the decoders to apply to one file.
func (t Task) decodersFor(name string) []compression.Algorithm {
	if !t.AutoDecode {
		return t.Decoders
	}
	if alg := compression.Detect(name); alg != compression.None {
		return []compression.Algorithm{alg}
	}
	return nil
}
