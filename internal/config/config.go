// Package config assembles the service configuration from defaults,
// command-line flags and environment variables (in that order of
// precedence) and validates the result.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings of the service.
type Config struct {
	RunAddr                   string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel                  string        `env:"LOG_LEVEL" validate:"loglevel"`
	DatabaseDSN               string        `env:"DATABASE_DSN"`
	DBFileName                string        `env:"SQLITE_DB_PATH" validate:"filepath"`
	DBConnectionTimeout       time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir             string        `env:"MIGRATIONS_DIR" validate:"required"`
	StorageRoot               string        `env:"STORAGE_ROOT" validate:"required"`
	MaxUploadSize             int64         `env:"MAX_UPLOAD_SIZE" validate:"gt=0"`
	AuthTokenSigningSecretKey string        `env:"AUTH_TOKEN_SIGNING_SECRET_KEY" validate:"required,base64url"`
	AuthTokenTTL              time.Duration `env:"AUTH_TOKEN_TTL" validate:"gt=0"`
	AuthCookieName            string        `env:"AUTH_COOKIE_NAME" validate:"required"`
	TrustedSubnet             string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

// InitOption is a functional option for New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips command-line flag parsing.
// Tests use it because the test binary carries its own flags.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds a validated Config from defaults, flags and environment.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	cfg := &Config{
		RunAddr:             ":8080",
		LogLevel:            "info",
		DatabaseDSN:         "",
		DBFileName:          "backup.db",
		DBConnectionTimeout: 10 * time.Second,
		MigrationsDir:       "cmd/filekeeper/migrations",
		StorageRoot:         "uploads",
		MaxUploadSize:       32 << 20,
		// Development-only default; override in any real deployment.
		AuthTokenSigningSecretKey: "c2VjcmV0LWtleS1mb3ItZGV2LW9ubHk=",
		AuthTokenTTL:              24 * time.Hour,
		AuthCookieName:            "filekeeper_auth",
		TrustedSubnet:             "",
	}
	if !options.disableFlagsParsing {
		flag.StringVar(&cfg.RunAddr, "a", cfg.RunAddr, "address and port to run server")
		flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "logger level")
		flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "A string with the database connection details")
		flag.StringVar(&cfg.DBFileName, "f", cfg.DBFileName, "SQLite database file name")
		flag.StringVar(&cfg.StorageRoot, "s", cfg.StorageRoot, "base directory for uploaded files")
		flag.StringVar(&cfg.TrustedSubnet, "t", cfg.TrustedSubnet, "CIDR of the subnet trusted to query internal stats")
		flag.Parse()
	}

	var valuesFromEnv Config
	err = env.Parse(&valuesFromEnv)
	if err != nil {
		return nil, err
	}

	if valuesFromEnv.RunAddr != "" {
		cfg.RunAddr = valuesFromEnv.RunAddr
	}

	if valuesFromEnv.LogLevel != "" {
		cfg.LogLevel = valuesFromEnv.LogLevel
	}

	if valuesFromEnv.DatabaseDSN != "" {
		cfg.DatabaseDSN = valuesFromEnv.DatabaseDSN
	}

	if valuesFromEnv.DBFileName != "" {
		cfg.DBFileName = valuesFromEnv.DBFileName
	}

	if valuesFromEnv.DBConnectionTimeout != 0 {
		cfg.DBConnectionTimeout = valuesFromEnv.DBConnectionTimeout
	}

	if valuesFromEnv.MigrationsDir != "" {
		cfg.MigrationsDir = valuesFromEnv.MigrationsDir
	}

	if valuesFromEnv.StorageRoot != "" {
		cfg.StorageRoot = valuesFromEnv.StorageRoot
	}

	if valuesFromEnv.MaxUploadSize != 0 {
		cfg.MaxUploadSize = valuesFromEnv.MaxUploadSize
	}

	if valuesFromEnv.AuthTokenSigningSecretKey != "" {
		cfg.AuthTokenSigningSecretKey = valuesFromEnv.AuthTokenSigningSecretKey
	}

	if valuesFromEnv.AuthTokenTTL != 0 {
		cfg.AuthTokenTTL = valuesFromEnv.AuthTokenTTL
	}

	if valuesFromEnv.AuthCookieName != "" {
		cfg.AuthCookieName = valuesFromEnv.AuthCookieName
	}

	if valuesFromEnv.TrustedSubnet != "" {
		cfg.TrustedSubnet = valuesFromEnv.TrustedSubnet
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
