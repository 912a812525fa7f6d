package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int    `mapstructure:"WEBSERVER_PORT"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// Database Configuration. The DSN is optional: without it the
	// report history surface is disabled and everything else still runs.
	DatabaseDSN     string `mapstructure:"DATABASE_DSN"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Upload storage
	StorageSecret          string `mapstructure:"STORAGE_SECRET" validate:"required"`
	StorageVisibilityLagMS int    `mapstructure:"STORAGE_VISIBILITY_LAG_MS"`

	// Encoder artifact distribution. Empty disables in-process
	// normalization and clips pass through untouched.
	EncoderBaseURL string `mapstructure:"ENCODER_BASE_URL"`

	// Remote analysis service
	AnalysisAPIKey  string `mapstructure:"ANALYSIS_API_KEY" validate:"required"`
	AnalysisBaseURL string `mapstructure:"ANALYSIS_BASE_URL" validate:"required"`
	AnalysisModel   string `mapstructure:"ANALYSIS_MODEL"`

	// Cloud transcoding fallback. Both values empty means the fallback
	// degrades to a passthrough.
	FallbackBaseURL string `mapstructure:"FALLBACK_BASE_URL"`
	FallbackAPIKey  string `mapstructure:"FALLBACK_API_KEY"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
	slog.Info("Environment variables bound")
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("ANALYSIS_MODEL", "swing-analyst-1")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration",
		"webserver_port", cfg.WebServerPort,
		"database_configured", cfg.DatabaseDSN != "",
		"encoder_configured", cfg.EncoderBaseURL != "",
		"fallback_configured", cfg.FallbackBaseURL != "" && cfg.FallbackAPIKey != "",
	)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
