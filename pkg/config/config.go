package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultBaseURL is the tracker API base URL.
	DefaultBaseURL = "https://api.qualityforward.jp"

	// DefaultTargetPriorities selects the highest priority tier.
	DefaultTargetPriorities = "A"

	// DefaultCycleNamePrefix is prepended to the UTC timestamp in cycle names.
	DefaultCycleNamePrefix = "GitHub AutoTest"

	// DefaultSubmitInterval is the pause between two result submissions.
	DefaultSubmitInterval = 500 * time.Millisecond

	// DefaultArchivePrefix is the key prefix for archived reports.
	DefaultArchivePrefix = "qfsync/reports"

	// EnvPrefix prefixes environment overrides for every config key,
	// e.g. QFSYNC_TRACKER_BASE_URL.
	EnvPrefix = "QFSYNC"
)

// Config is the root configuration for qfsync.
type Config struct {
	Global      GlobalConfig  `yaml:"global" mapstructure:"global"`
	Tracker     TrackerConfig `yaml:"tracker" mapstructure:"tracker"`
	MappingFile string        `yaml:"mapping_file,omitempty" mapstructure:"mapping_file"`
	Report      ReportConfig  `yaml:"report,omitempty" mapstructure:"report"`
	Archive     ArchiveConfig `yaml:"archive,omitempty" mapstructure:"archive"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// TrackerConfig contains the tracker connection and the cycle to populate.
type TrackerConfig struct {
	BaseURL               string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey                string        `yaml:"api_key" mapstructure:"api_key"`
	TestPhaseID           string        `yaml:"test_phase_id" mapstructure:"test_phase_id"`
	TestSuiteAssignmentID string        `yaml:"test_suite_assignment_id" mapstructure:"test_suite_assignment_id"`
	UserID                string        `yaml:"user_id" mapstructure:"user_id"`
	TargetPriorities      string        `yaml:"target_priorities" mapstructure:"target_priorities"`
	CycleNamePrefix       string        `yaml:"cycle_name_prefix" mapstructure:"cycle_name_prefix"`
	Timeout               time.Duration `yaml:"timeout" mapstructure:"timeout"`
	SubmitInterval        time.Duration `yaml:"submit_interval" mapstructure:"submit_interval"`
}

// ReportConfig configures where reports may be read from besides the
// local filesystem.
type ReportConfig struct {
	S3 S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// ArchiveConfig configures archiving of the synced report.
type ArchiveConfig struct {
	S3 S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3Config contains settings for S3-compatible storage.
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// ConfigurationError reports a missing or invalid configuration value.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// legacyEnv lists the environment variables the sync script always
// accepted, bound ahead of the QFSYNC_ prefixed names.
var legacyEnv = map[string]string{
	"tracker.api_key":                  "QF_API_KEY",
	"tracker.test_phase_id":            "QF_TEST_PHASE_ID",
	"tracker.test_suite_assignment_id": "QF_TEST_SUITE_ASSIGNMENT_ID",
	"tracker.user_id":                  "QF_USER_ID",
	"tracker.target_priorities":        "QF_TARGET_PRIORITIES",
}

// FlagBindings maps config keys to the command line flags that override them.
var FlagBindings = map[string]string{
	"global.log_level":                 "log-level",
	"tracker.base_url":                 "base-url",
	"tracker.api_key":                  "api-key",
	"tracker.test_phase_id":            "test-phase-id",
	"tracker.test_suite_assignment_id": "test-suite-assignment-id",
	"tracker.user_id":                  "user-id",
	"tracker.target_priorities":        "target-priorities",
	"tracker.cycle_name_prefix":        "cycle-name-prefix",
	"tracker.timeout":                  "timeout",
	"tracker.submit_interval":          "submit-interval",
	"mapping_file":                     "mapping-file",
}

// Load resolves the configuration from the given YAML files (merged in
// order), environment variables and flags. Precedence is flag, then
// environment, then file, then default. flags may be nil.
func Load(flags *pflag.FlagSet, files ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for i, file := range files {
		v.SetConfigFile(file)

		read := v.MergeInConfig
		if i == 0 {
			read = v.ReadInConfig
		}

		if err := read(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A variable that is set but empty is a value, so QF_TARGET_PRIORITIES=""
	// selects no priorities rather than the default.
	v.AllowEmptyEnv(true)

	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", env, err)
		}
	}

	if flags != nil {
		for key, name := range FlagBindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}

			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("tracker.base_url", DefaultBaseURL)
	v.SetDefault("tracker.api_key", "")
	v.SetDefault("tracker.test_phase_id", "")
	v.SetDefault("tracker.test_suite_assignment_id", "")
	v.SetDefault("tracker.user_id", "")
	v.SetDefault("tracker.target_priorities", DefaultTargetPriorities)
	v.SetDefault("tracker.cycle_name_prefix", DefaultCycleNamePrefix)
	v.SetDefault("tracker.timeout", "0s")
	v.SetDefault("tracker.submit_interval", DefaultSubmitInterval.String())
	v.SetDefault("mapping_file", "")

	for _, section := range []string{"report.s3", "archive.s3"} {
		v.SetDefault(section+".enabled", false)
		v.SetDefault(section+".endpoint_url", "")
		v.SetDefault(section+".region", "")
		v.SetDefault(section+".bucket", "")
		v.SetDefault(section+".access_key_id", "")
		v.SetDefault(section+".secret_access_key", "")
		v.SetDefault(section+".force_path_style", false)
		v.SetDefault(section+".prefix", "")
	}

	v.SetDefault("archive.s3.prefix", DefaultArchivePrefix)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that everything a sync run needs is present. The
// returned error is a *ConfigurationError.
func (c *Config) Validate() error {
	t := c.Tracker

	switch {
	case t.APIKey == "":
		return &ConfigurationError{
			Field:   "tracker.api_key",
			Message: "API key is required. Set QF_API_KEY or use -a",
		}
	case t.TestPhaseID == "" || t.TestSuiteAssignmentID == "":
		return &ConfigurationError{
			Field:   "tracker.test_phase_id",
			Message: "test_phase_id and test_suite_assignment_id are required",
		}
	case t.UserID == "":
		return &ConfigurationError{
			Field:   "tracker.user_id",
			Message: "user_id is required. Set QF_USER_ID or use --user-id",
		}
	case t.BaseURL == "":
		return &ConfigurationError{Field: "tracker.base_url", Message: "tracker base_url is required"}
	case t.Timeout < 0:
		return &ConfigurationError{Field: "tracker.timeout", Message: "tracker timeout must not be negative"}
	case t.SubmitInterval < 0:
		return &ConfigurationError{
			Field:   "tracker.submit_interval",
			Message: "tracker submit_interval must not be negative",
		}
	}

	if c.Archive.S3.Enabled && c.Archive.S3.Bucket == "" {
		return &ConfigurationError{Field: "archive.s3.bucket", Message: "archive.s3.bucket is required when archiving is enabled"}
	}

	return nil
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError

	return errors.As(err, &cfgErr)
}
