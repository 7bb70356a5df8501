package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultDBURL        = "sqlite:///weather.db"
	DefaultAPIURL       = "https://api.openweathermap.org/data/2.5/weather"
	DefaultLocation     = "Skolkovo,ru"
	DefaultLang         = "ru"
	DefaultPollInterval = 180 * time.Second
	DefaultExportLimit  = 10
)

// Config is built once at startup and passed by value to every component.
// It is read from the environment only; see Load.
type Config struct {
	DBURL        string        `env:"DB_URL" default:"sqlite:///weather.db" validate:"nonblank" help:"Database URL."`
	APIURL       string        `env:"OPENWEATHER_API_URL" default:"https://api.openweathermap.org/data/2.5/weather" validate:"required,url" help:"Current weather endpoint."`
	APIKey       string        `env:"OPENWEATHER_API_KEY" help:"OpenWeatherMap appid."`
	Location     string        `env:"OPENWEATHER_LOCATION" default:"Skolkovo,ru" validate:"nonblank" help:"Location query (q)."`
	Lang         string        `env:"OPENWEATHER_LANG" default:"ru" help:"Response language."`
	PollInterval time.Duration `env:"POLL_INTERVAL" default:"180s" validate:"gt=0" help:"Sleep between cycles."`
	ExportLimit  int           `env:"EXPORT_LIMIT" default:"10" validate:"gt=0" help:"Rows written per export."`
	AppEnv       string        `env:"APP_ENV" default:"dev" validate:"oneof=dev prod" help:"dev or prod."`
	LogLevel     string        `env:"LOG_LEVEL" default:"info" validate:"loglevel" help:"debug, info, warn or error."`
	MetricsAddr  string        `env:"METRICS_ADDR" help:"Listen address for /health and /metrics; empty disables."`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DBURL:        DefaultDBURL,
		APIURL:       DefaultAPIURL,
		Location:     DefaultLocation,
		Lang:         DefaultLang,
		PollInterval: DefaultPollInterval,
		ExportLimit:  DefaultExportLimit,
		AppEnv:       "dev",
		LogLevel:     "info",
	}
}

// Load resolves Config from the process environment. It runs its own
// parser over no arguments so none of these settings become command line
// flags.
func Load() (Config, error) {
	var cfg Config
	parser, err := kong.New(&cfg, kong.Name("weatherlog"))
	if err != nil {
		return Config{}, err
	}
	if _, err := parser.Parse(nil); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := ParseLogLevel(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate reports the first unusable value, named by its environment variable.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return fmt.Errorf("invalid %s %q: must satisfy %s", fe.Field(), fmt.Sprint(fe.Value()), rule)
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c Config) Level() slog.Level {
	level, _ := ParseLogLevel(c.LogLevel)
	return level
}

func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
