package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv removes env for the duration of the test and restores the
// previous value afterwards.
func unsetEnv(t *testing.T, env string) {
	t.Helper()

	t.Setenv(env, "")
	require.NoError(t, os.Unsetenv(env))
}

// clearEnv unsets every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()

	for key, env := range legacyEnv {
		unsetEnv(t, env)
		unsetEnv(t, "QFSYNC_"+envSuffix(key))
	}

	for _, env := range []string{
		"QFSYNC_GLOBAL_LOG_LEVEL",
		"QFSYNC_TRACKER_BASE_URL",
		"QFSYNC_TRACKER_TIMEOUT",
		"QFSYNC_TRACKER_SUBMIT_INTERVAL",
		"QFSYNC_MAPPING_FILE",
		"QFSYNC_ARCHIVE_S3_ENABLED",
		"QFSYNC_ARCHIVE_S3_BUCKET",
	} {
		unsetEnv(t, env)
	}
}

func envSuffix(key string) string {
	out := make([]byte, 0, len(key))

	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '.':
			c = '_'
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}

		out = append(out, c)
	}

	return string(out)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("api-key", "a", "", "")
	flags.String("test-phase-id", "", "")
	flags.String("test-suite-assignment-id", "", "")
	flags.String("user-id", "", "")
	flags.String("target-priorities", DefaultTargetPriorities, "")
	flags.Duration("submit-interval", DefaultSubmitInterval, "")

	return flags
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultBaseURL, cfg.Tracker.BaseURL)
	assert.Equal(t, DefaultTargetPriorities, cfg.Tracker.TargetPriorities)
	assert.Equal(t, DefaultCycleNamePrefix, cfg.Tracker.CycleNamePrefix)
	assert.Equal(t, DefaultSubmitInterval, cfg.Tracker.SubmitInterval)
	assert.Equal(t, time.Duration(0), cfg.Tracker.Timeout)
	assert.Equal(t, DefaultArchivePrefix, cfg.Archive.S3.Prefix)
	assert.False(t, cfg.Archive.S3.Enabled)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
global:
  log_level: debug
tracker:
  base_url: https://tracker.example.com/api/v2
  api_key: file-key
  test_phase_id: 12
  test_suite_assignment_id: "34"
  user_id: 56
  target_priorities: "A,B"
  timeout: 30s
  submit_interval: 1s
mapping_file: qf-mapping.yaml
archive:
  s3:
    enabled: true
    bucket: reports
    force_path_style: true
`)

	cfg, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "https://tracker.example.com/api/v2", cfg.Tracker.BaseURL)
	assert.Equal(t, "file-key", cfg.Tracker.APIKey)
	assert.Equal(t, "12", cfg.Tracker.TestPhaseID)
	assert.Equal(t, "34", cfg.Tracker.TestSuiteAssignmentID)
	assert.Equal(t, "56", cfg.Tracker.UserID)
	assert.Equal(t, "A,B", cfg.Tracker.TargetPriorities)
	assert.Equal(t, 30*time.Second, cfg.Tracker.Timeout)
	assert.Equal(t, time.Second, cfg.Tracker.SubmitInterval)
	assert.Equal(t, "qf-mapping.yaml", cfg.MappingFile)
	assert.True(t, cfg.Archive.S3.Enabled)
	assert.Equal(t, "reports", cfg.Archive.S3.Bucket)
	assert.True(t, cfg.Archive.S3.ForcePathStyle)
	assert.Equal(t, DefaultArchivePrefix, cfg.Archive.S3.Prefix)
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	clearEnv(t)

	base := writeConfig(t, "tracker:\n  api_key: base-key\n  user_id: \"1\"\n")
	override := writeConfig(t, "tracker:\n  api_key: override-key\n")

	cfg, err := Load(nil, base, override)
	require.NoError(t, err)

	assert.Equal(t, "override-key", cfg.Tracker.APIKey)
	assert.Equal(t, "1", cfg.Tracker.UserID)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "tracker:\n  api_key: file-key\n  user_id: file-user\n  test_phase_id: \"1\"\n")

	tests := []struct {
		name     string
		envVars  map[string]string
		args     []string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "file value when nothing overrides",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "file-key", cfg.Tracker.APIKey)
				assert.Equal(t, DefaultTargetPriorities, cfg.Tracker.TargetPriorities)
			},
		},
		{
			name:    "legacy env overrides file",
			envVars: map[string]string{"QF_API_KEY": "env-key", "QF_TARGET_PRIORITIES": "B"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env-key", cfg.Tracker.APIKey)
				assert.Equal(t, "B", cfg.Tracker.TargetPriorities)
			},
		},
		{
			name:    "empty legacy env selects no priorities",
			envVars: map[string]string{"QF_TARGET_PRIORITIES": ""},
			validate: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Tracker.TargetPriorities)
			},
		},
		{
			name:    "prefixed env overrides file",
			envVars: map[string]string{"QFSYNC_TRACKER_USER_ID": "env-user"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env-user", cfg.Tracker.UserID)
			},
		},
		{
			name:    "prefixed env for unbound key",
			envVars: map[string]string{"QFSYNC_TRACKER_SUBMIT_INTERVAL": "2s"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2*time.Second, cfg.Tracker.SubmitInterval)
			},
		},
		{
			name:    "flag overrides env",
			envVars: map[string]string{"QF_API_KEY": "env-key"},
			args:    []string{"-a", "flag-key", "--submit-interval", "0s"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "flag-key", cfg.Tracker.APIKey)
				assert.Equal(t, time.Duration(0), cfg.Tracker.SubmitInterval)
			},
		},
		{
			name:    "unchanged flag does not mask env",
			envVars: map[string]string{"QF_TEST_PHASE_ID": "99"},
			args:    []string{"--user-id", "flag-user"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "99", cfg.Tracker.TestPhaseID)
				assert.Equal(t, "flag-user", cfg.Tracker.UserID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			flags := newFlags()
			require.NoError(t, flags.Parse(tt.args))

			cfg, err := Load(flags, path)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Tracker: TrackerConfig{
				BaseURL:               DefaultBaseURL,
				APIKey:                "key",
				TestPhaseID:           "1",
				TestSuiteAssignmentID: "2",
				UserID:                "3",
				SubmitInterval:        DefaultSubmitInterval,
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.Tracker.APIKey = "" }, wantField: "tracker.api_key"},
		{name: "missing phase", mutate: func(c *Config) { c.Tracker.TestPhaseID = "" }, wantField: "tracker.test_phase_id"},
		{
			name:      "missing assignment",
			mutate:    func(c *Config) { c.Tracker.TestSuiteAssignmentID = "" },
			wantField: "tracker.test_phase_id",
		},
		{name: "missing user", mutate: func(c *Config) { c.Tracker.UserID = "" }, wantField: "tracker.user_id"},
		{name: "negative timeout", mutate: func(c *Config) { c.Tracker.Timeout = -time.Second }, wantField: "tracker.timeout"},
		{
			name:      "negative interval",
			mutate:    func(c *Config) { c.Tracker.SubmitInterval = -time.Second },
			wantField: "tracker.submit_interval",
		},
		{
			name:      "archive without bucket",
			mutate:    func(c *Config) { c.Archive.S3.Enabled = true },
			wantField: "archive.s3.bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}
