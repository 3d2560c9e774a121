// Package config handles TOML and YAML configuration for sgmap.
package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// RegionAll selects every region enabled for the account.
const RegionAll = "all"

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Config is the root configuration structure.
type Config struct {
	AWS      AWSConfig      `toml:"aws" yaml:"aws"`
	Audit    AuditConfig    `toml:"audit" yaml:"audit"`
	Classify ClassifyConfig `toml:"classify" yaml:"classify"`
	Output   OutputConfig   `toml:"output" yaml:"output"`
	OTEL     OTELConfig     `toml:"otel" yaml:"otel"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

// AWSConfig holds AWS credential and region settings.
type AWSConfig struct {
	Regions         []string `toml:"regions" yaml:"regions"`
	Profile         string   `toml:"profile" yaml:"profile"`
	HomeRegion      string   `toml:"home_region" yaml:"home_region"`
	AccessKeyID     string   `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string   `toml:"session_token" yaml:"session_token"`
	KeysCSV         string   `toml:"keys_csv" yaml:"keys_csv"`
}

// AuditConfig holds settings for a single audit run.
type AuditConfig struct {
	Groups           []string          `toml:"groups" yaml:"groups"`
	FailFast         bool              `toml:"fail_fast" yaml:"fail_fast"`
	ExcludeServices  []string          `toml:"exclude_services" yaml:"exclude_services"`
	IncludeGroupTags map[string]string `toml:"include_group_tags" yaml:"include_group_tags"`
	ExcludeGroupTags map[string]string `toml:"exclude_group_tags" yaml:"exclude_group_tags"`
	EMRClusterStates []string          `toml:"emr_cluster_states" yaml:"emr_cluster_states"`
	TimeoutStr       string            `toml:"timeout" yaml:"timeout"`
	Timeout          time.Duration     `toml:"-" yaml:"-"`
}

// ClassifyConfig holds extra classification rules, appended after the built-in table.
type ClassifyConfig struct {
	Rules []RuleConfig `toml:"rules" yaml:"rules"`
}

// RuleConfig is one classification rule. All non-empty conditions must hold.
type RuleConfig struct {
	Service             string `toml:"service" yaml:"service"`
	DescriptionContains string `toml:"description_contains" yaml:"description_contains"`
	DescriptionPrefix   string `toml:"description_prefix" yaml:"description_prefix"`
	InterfaceType       string `toml:"interface_type" yaml:"interface_type"`
	TagKey              string `toml:"tag_key" yaml:"tag_key"`
	GroupNameContains   string `toml:"group_name_contains" yaml:"group_name_contains"`
}

// OutputConfig holds report settings.
type OutputConfig struct {
	Formats            []string `toml:"formats" yaml:"formats"`
	Path               string   `toml:"path" yaml:"path"`
	PrometheusTextfile string   `toml:"prometheus_textfile" yaml:"prometheus_textfile"`
	Baseline           string   `toml:"baseline" yaml:"baseline"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool          `toml:"insecure" yaml:"insecure"`
	CACert      string        `toml:"ca_cert" yaml:"ca_cert"`
	ServiceName string        `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig  `toml:"traces" yaml:"traces"`
	Metrics     MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Credentials is a static access key set.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseTimeout(cfg)
	return cfg
}

// Load reads and parses a TOML or YAML config file, chosen by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := parseTimeout(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AWS.HomeRegion == "" {
		cfg.AWS.HomeRegion = "us-east-1"
	}
	if cfg.Audit.TimeoutStr == "" {
		cfg.Audit.TimeoutStr = "30m"
	}
	if len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = []string{FormatTable}
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "sgmap"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func parseTimeout(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Audit.TimeoutStr)
	if err != nil {
		return fmt.Errorf("parse timeout %q: %w", cfg.Audit.TimeoutStr, err)
	}
	cfg.Audit.Timeout = d
	return nil
}

// StaticCredentials returns the configured access keys, if any.
func (c AWSConfig) StaticCredentials() Credentials {
	return Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if len(c.AWS.Regions) == 0 {
		return fmt.Errorf("aws: at least one region required (or %q)", RegionAll)
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return fmt.Errorf("aws: access_key_id and secret_access_key must be set together")
	}
	for _, s := range c.Audit.ExcludeServices {
		if _, ok := resource.ParseServiceType(s); !ok {
			return fmt.Errorf("audit: unknown service %q in exclude_services", s)
		}
	}
	if c.Audit.Timeout <= 0 {
		return fmt.Errorf("audit: timeout must be positive (got %s)", c.Audit.Timeout)
	}
	for i, r := range c.Classify.Rules {
		if _, ok := resource.ParseServiceType(r.Service); !ok {
			return fmt.Errorf("classify: rule %d has unknown service %q", i, r.Service)
		}
	}
	for _, f := range c.Output.Formats {
		switch f {
		case FormatTable, FormatJSON, FormatCSV:
		default:
			return fmt.Errorf("output: unknown format %q", f)
		}
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log: format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}

// LoadKeysCSV reads an access key file as downloaded from the IAM console:
// a header row, then access key ID, secret access key and an optional session token.
func LoadKeysCSV(path string) (Credentials, error) {
	f, err := os.Open(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return Credentials{}, fmt.Errorf("open keys file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		return Credentials{}, fmt.Errorf("read keys header: %w", err)
	}

	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Credentials{}, fmt.Errorf("keys file %s has no key row", path)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read keys row: %w", err)
	}
	if len(record) < 2 || record[0] == "" || record[1] == "" {
		return Credentials{}, fmt.Errorf("keys file %s: expected access key id and secret", path)
	}

	creds := Credentials{
		AccessKeyID:     strings.TrimSpace(record[0]),
		SecretAccessKey: strings.TrimSpace(record[1]),
	}
	if len(record) > 2 {
		creds.SessionToken = strings.TrimSpace(record[2])
	}
	return creds, nil
}
