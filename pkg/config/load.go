package config

import (
	_ "embed"
	stderrors "errors"
	"os"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix starts every configuration environment variable.
const EnvPrefix = "SPROUT_"

// envNesting separates section and key in variable names.
const envNesting = "__"

//go:embed embedded/defaults.toml
var defaultConfig []byte

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, stderrors.New("not implemented")
}

// Options select the user file.
type Options struct {
	// File is an explicit config path; it must exist.
	File string
	// DefaultFile is read when it exists and File is empty.
	DefaultFile string
}

// Load resolves the configuration layers.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load embedded defaults")
	}

	path := opts.File
	if path == "" {
		if _, err := os.Stat(opts.DefaultFile); opts.DefaultFile != "" && err == nil {
			path = opts.DefaultFile
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file %s not readable", path).
			WithDetail(errors.DetailPath, path)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", path).
				WithDetail(errors.DetailPath, path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment variables")
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SPROUT_BUILD__JOBS to build.jobs. Variables without a
// section separator, such as SPROUT_PATH, are not configuration.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if !strings.Contains(s, envNesting) {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), envNesting, ".")
}

// DefaultContent returns the embedded defaults file.
func DefaultContent() string {
	return string(defaultConfig)
}
