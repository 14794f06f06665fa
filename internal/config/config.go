// Package config loads the sessionflow service configuration from a YAML
// file and SESSIONFLOW_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"time"

	"github.com/MrEthical07/sessionflow"
	"github.com/MrEthical07/sessionflow/users"
	"github.com/go-playground/validator/v10"
)

// AppConfig is the full service configuration: the controller settings
// plus everything the binary needs to wire them.
type AppConfig struct {
	sessionflow.Config `mapstructure:",squash"`

	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Users  UsersConfig  `mapstructure:"users"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// RedisConfig configures the session store connection. Embedded starts an
// in-process miniredis instead of dialing Addr.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required_unless=Embedded true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Embedded bool   `mapstructure:"embedded"`
}

// UsersConfig selects the user directory backend.
type UsersConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

func defaults() AppConfig {
	return AppConfig{
		Config: sessionflow.DefaultConfig(),
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		Users: UsersConfig{Driver: users.DriverSQLite, DSN: "sessionflow.db"},
		Log:   LogConfig{Level: "info"},
	}
}

// RegisterCustomValidators registers service-specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("listen_addr", validateListenAddr); err != nil {
		return fmt.Errorf("failed to register listen_addr validator: %w", err)
	}
	return nil
}

func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	return err == nil && port != ""
}

// Validate checks the service settings, then the controller settings.
func (c *AppConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	sections := []struct {
		name  string
		value any
	}{
		{"server", c.Server},
		{"redis", c.Redis},
		{"users", c.Users},
		{"log", c.Log},
	}
	for _, sec := range sections {
		if err := v.Struct(sec.value); err != nil {
			return formatValidationErrors(sec.name, err)
		}
	}
	return c.Config.Validate()
}

// SlogLevel converts Log.Level to a slog.Level. Unknown values map to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func formatValidationErrors(section string, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := section + "." + e.Field()
		switch e.Tag() {
		case "required", "required_unless":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "listen_addr":
			messages = append(messages, fmt.Sprintf("%s must be host:port", field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}
