package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// SESSIONFLOW_SESSION_SECRET overrides session.secret.
const EnvPrefix = "SESSIONFLOW"

// Load reads configFile (or the first sessionflow.yaml/.yml found in the
// working directory or $HOME/.sessionflow), applies environment overrides
// on top of the defaults and validates the result.
func Load(configFile string) (*AppConfig, error) {
	cfg, _, err := load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadRaw is Load without validation, for callers that apply CLI flag
// overrides first. It also returns the config file used, if any.
func LoadRaw(configFile string) (*AppConfig, string, error) {
	return load(configFile)
}

func load(configFile string) (*AppConfig, string, error) {
	v := viper.New()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Every scalar key needs a default so AutomaticEnv can override it.
	setDefaults(v, "", reflect.ValueOf(defaults()))

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		fv := val.Field(i)

		if opts == "squash" {
			setDefaults(v, prefix, fv)
			continue
		}
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		if fv.Kind() == reflect.Slice {
			// Lists come from the config file only.
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{".", filepath.Join(home, ".sessionflow")})
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "sessionflow"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
