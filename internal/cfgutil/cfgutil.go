package cfgutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseTOML parses a TOML config from an io.Reader.
func ParseTOML(r io.Reader, dst any) error {
	return toml.NewDecoder(r).Decode(dst)
}

// ParseJSON parses a JSON config from an io.Reader.
func ParseJSON(r io.Reader, dst any) error {
	return json.NewDecoder(r).Decode(dst)
}

// ParseYAML parses a YAML config from an io.Reader. An empty document leaves
// dst untouched.
func ParseYAML(r io.Reader, dst any) error {
	err := yaml.NewDecoder(r).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Parse parses a reader.
func Parse(f io.Reader, configType string, dst any) error {
	switch configType {
	case "toml":
		return ParseTOML(f, dst)
	case "json":
		return ParseJSON(f, dst)
	case "yaml", "yml":
		return ParseYAML(f, dst)
	default:
		return fmt.Errorf("unsupported config type %s", configType)
	}
}

// ParseBytes parses b as the given config type.
func ParseBytes(b []byte, configType string, dst any) error {
	return Parse(bytes.NewReader(b), configType, dst)
}

// ParseFileInto parses a config file from a path into dst. Fields missing
// from the file keep whatever dst already holds. The file extension is used
// to determine the config format.
func ParseFileInto(path string, dst any) error {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	if err := Parse(f, ext, dst); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// Env is a type that describes a value that can also be an environment
// variable if the value is of format $ENV.
type Env[T ~string] string

var envCache sync.Map

func (env Env[T]) String() string {
	return string(env.Value())
}

func (env Env[T]) Value() T {
	if strings.HasPrefix(string(env), "$") {
		if v, ok := envCache.Load(string(env)); ok {
			return T(v.(string))
		}
		v := os.ExpandEnv(string(env))
		envCache.Store(string(env), v)
		return T(v)
	}

	return T(string(env))
}

// EnvString is a string variant of Env.
type EnvString = Env[string]

// Duration is a time.Duration that is written as a Go duration string
// ("1s", "250ms") in config files.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.Wrap(err, "invalid duration")
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
