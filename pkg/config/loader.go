package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// EnvPrefix is the prefix of environment variables that override job file
// keys: QUICKLOAD_IN_PATH_PREFIX overrides in.path_prefix.
const EnvPrefix = "QUICKLOAD"

// LoadFile reads a YAML or JSON job file. ${VAR_NAME} references are
// substituted from the environment before parsing, and any key already
// present in the file can be overridden by its QUICKLOAD_* variable.
func LoadFile(filePath string) (Source, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: job files are chosen by the operator
	if err != nil {
		return Source{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	v := viper.New()
	v.SetConfigType(configType(filePath))
	if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
		return Source{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file").
			WithDetail("path", filePath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return NewSource(v.AllSettings()), nil
}

// FromYAML parses an in-memory YAML document. Environment variables are
// substituted as in LoadFile; QUICKLOAD_* overrides are not applied.
func FromYAML(data []byte) (Source, error) {
	var m map[string]interface{}
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &m); err != nil {
		return Source{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return NewSource(m), nil
}

// MustYAML is FromYAML that panics on error. Intended for tests.
func MustYAML(doc string) Source {
	src, err := FromYAML([]byte(doc))
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return src
}

func configType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
