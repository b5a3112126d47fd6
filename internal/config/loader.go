package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "reframe.yaml"

// ConfigFileNameAlt is the alternate config file name.
const ConfigFileNameAlt = "reframe.yml"

// configFileUsed tracks the file the last Load resolved.
var configFileUsed string

// GetConfigFileUsed returns the config file used by the last Load.
func GetConfigFileUsed() string {
	return configFileUsed
}

// Load resolves the project configuration by layering, lowest priority
// first: built-in defaults, the config file, REFRAME_* environment
// variables, then CLI flags.
func Load(explicitPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := findConfigFile(explicitPath)
	if path == "" && explicitPath != "" {
		return nil, fmt.Errorf("config file not found: %s", explicitPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	configFileUsed = path

	// REFRAME_STATE_PATH -> state_path, REFRAME_SOURCE_TYPE -> source.type
	err := k.Load(env.Provider("REFRAME_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "REFRAME_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(flagProvider(flags, k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := unmarshal(k, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// flagProvider maps CLI flag names to config keys: dashes become
// underscores and the seed flag lands under the pipeline section. The
// config flag itself is resolved before loading and is skipped here.
func flagProvider(flags *pflag.FlagSet, k *koanf.Koanf) *posflag.Posflag {
	return posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		switch key {
		case "config", "help":
			return "", nil
		case "seed":
			key = "pipeline.seed"
		}
		return key, posflag.FlagVal(flags, f)
	})
}

// unmarshal decodes the merged tree into Config, parsing field types and
// keep selections from their config-facing names.
func unmarshal(k *koanf.Koanf, cfg *Config) error {
	dc := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decodeFieldType,
			decodeKeep,
		),
		WeaklyTypedInput: true,
		Result:           cfg,
		TagName:          "koanf",
	}
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", DecoderConfig: dc})
}

var (
	fieldTypeType = reflect.TypeOf(frame.FieldType(0))
	keepType      = reflect.TypeOf(frame.Keep(0))
)

func decodeFieldType(from, to reflect.Type, data any) (any, error) {
	if to != fieldTypeType || from.Kind() != reflect.String {
		return data, nil
	}
	return frame.ParseFieldType(data.(string))
}

func decodeKeep(from, to reflect.Type, data any) (any, error) {
	if to != keepType || from.Kind() != reflect.String {
		return data, nil
	}
	return frame.ParseKeep(data.(string))
}

// findConfigFile resolves the config file to use.
// Priority: explicit path > reframe.yaml > reframe.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// defaults returns the built-in configuration defaults.
func defaults() map[string]any {
	return map[string]any{
		"source.type":   "duckdb",
		"state_path":    ".reframe/state.db",
		"output_format": "auto",
		"pipeline.seed": 1,
	}
}
