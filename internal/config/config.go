// Package config loads run configuration from the environment (optionally
// seeded from a .env file) and the storage rules from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"bioval/internal/blob"
	"bioval/internal/reference"
)

// Reference sources.
const (
	SourceREDCap   = "redcap"
	SourceCSV      = "csv"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	Env         string          `env:"BIOVAL_ENV" validate:"required"`
	LogLevel    string          `env:"BIOVAL_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat   string          `env:"BIOVAL_LOG_FORMAT" validate:"oneof=text json"`
	RulesFile   string          `env:"BIOVAL_RULES_FILE"`
	MetricsFile string          `env:"BIOVAL_METRICS_FILE"`
	Reference   ReferenceConfig `env:"-"`
	Blob        BlobConfig      `env:"-"`
}

// ReferenceConfig selects and configures the reference supplier.
type ReferenceConfig struct {
	Source      string        `env:"BIOVAL_REFERENCE_SOURCE" validate:"oneof=redcap csv sqlite postgres"`
	REDCapURL   string        `env:"BIOVAL_REDCAP_URL" validate:"required_if=Source redcap"`
	REDCapToken string        `env:"BIOVAL_REDCAP_TOKEN" validate:"required_if=Source redcap"`
	ReportID    int           `env:"BIOVAL_REDCAP_REPORT_ID" validate:"min=1"`
	Timeout     time.Duration `env:"BIOVAL_REDCAP_TIMEOUT" validate:"gt=0"`
	CSVPath     string        `env:"BIOVAL_REFERENCE_CSV" validate:"required_if=Source csv"`
	DSN         string        `env:"BIOVAL_REFERENCE_DSN" validate:"required_if=Source sqlite"`
	Table       string        `env:"BIOVAL_REFERENCE_TABLE"`
}

// BlobConfig selects the artifact store.
type BlobConfig struct {
	Driver      string `env:"BIOVAL_BLOB_DRIVER" validate:"oneof=fs s3 memory"`
	FSRoot      string `env:"BIOVAL_BLOB_FS_ROOT"`
	S3Bucket    string `env:"BIOVAL_BLOB_S3_BUCKET" validate:"required_if=Driver s3"`
	S3Region    string `env:"BIOVAL_BLOB_S3_REGION"`
	S3Endpoint  string `env:"BIOVAL_BLOB_S3_ENDPOINT"`
	S3AccessKey string `env:"BIOVAL_BLOB_S3_ACCESS_KEY"`
	S3SecretKey string `env:"BIOVAL_BLOB_S3_SECRET_KEY"`
	S3PathStyle bool   `env:"BIOVAL_BLOB_S3_PATH_STYLE"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("env")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:       "local",
		LogLevel:  "info",
		LogFormat: "text",
		Reference: ReferenceConfig{
			Source:   SourceREDCap,
			ReportID: reference.DefaultReportID,
			Timeout:  reference.DefaultREDCapTimeout,
			Table:    reference.DefaultTable,
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
		},
	}
}

// Load reads env files into the process environment, then builds the
// configuration from it. Without arguments an absent ./.env is ignored.
// Variables already set take precedence over the files.
func Load(envFiles ...string) (*Config, error) {
	err := godotenv.Load(envFiles...)
	if err != nil && (len(envFiles) > 0 || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv overlays the variables visible through getenv on Default.
// It does not validate; call Validate once flags have been applied.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str(&cfg.Env, "BIOVAL_ENV")
	str(&cfg.LogLevel, "BIOVAL_LOG_LEVEL")
	str(&cfg.LogFormat, "BIOVAL_LOG_FORMAT")
	str(&cfg.RulesFile, "BIOVAL_RULES_FILE")
	str(&cfg.MetricsFile, "BIOVAL_METRICS_FILE")

	str(&cfg.Reference.Source, "BIOVAL_REFERENCE_SOURCE")
	str(&cfg.Reference.REDCapURL, "BIOVAL_REDCAP_URL")
	str(&cfg.Reference.REDCapToken, "BIOVAL_REDCAP_TOKEN")
	str(&cfg.Reference.CSVPath, "BIOVAL_REFERENCE_CSV")
	str(&cfg.Reference.DSN, "BIOVAL_REFERENCE_DSN")
	str(&cfg.Reference.Table, "BIOVAL_REFERENCE_TABLE")
	if v := strings.TrimSpace(getenv("BIOVAL_REDCAP_REPORT_ID")); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BIOVAL_REDCAP_REPORT_ID: %w", err)
		}
		cfg.Reference.ReportID = id
	}
	if v := strings.TrimSpace(getenv("BIOVAL_REDCAP_TIMEOUT")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("BIOVAL_REDCAP_TIMEOUT: %w", err)
		}
		cfg.Reference.Timeout = d
	}

	str(&cfg.Blob.Driver, "BIOVAL_BLOB_DRIVER")
	str(&cfg.Blob.FSRoot, "BIOVAL_BLOB_FS_ROOT")
	str(&cfg.Blob.S3Bucket, "BIOVAL_BLOB_S3_BUCKET")
	str(&cfg.Blob.S3Region, "BIOVAL_BLOB_S3_REGION")
	str(&cfg.Blob.S3Endpoint, "BIOVAL_BLOB_S3_ENDPOINT")
	str(&cfg.Blob.S3AccessKey, "BIOVAL_BLOB_S3_ACCESS_KEY")
	str(&cfg.Blob.S3SecretKey, "BIOVAL_BLOB_S3_SECRET_KEY")
	if v := strings.TrimSpace(getenv("BIOVAL_BLOB_S3_PATH_STYLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("BIOVAL_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3PathStyle = b
	}
	return &cfg, nil
}

// parseDuration accepts Go durations ("20s") and bare seconds ("20").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks the configuration and reports every offending variable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil && c.Reference.Source == SourceREDCap {
		if verr := validate.Var(c.Reference.REDCapURL, "url"); verr != nil {
			return errors.New("invalid configuration: BIOVAL_REDCAP_URL must be a URL")
		}
	}
	return describe(err)
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// BlobOptions converts the blob section for blob.Open.
func (c *Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3Bucket,
			Region:          c.Blob.S3Region,
			Endpoint:        c.Blob.S3Endpoint,
			AccessKeyID:     c.Blob.S3AccessKey,
			SecretAccessKey: c.Blob.S3SecretKey,
			PathStyle:       c.Blob.S3PathStyle,
		},
	}
}
