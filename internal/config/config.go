// Package config loads filestage settings from YAML, .env files,
// environment variables and CLI flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvHome       = "FILESTAGE_HOME"
	EnvAddr       = "FILESTAGE_ADDR"
	EnvStagingDir = "FILESTAGE_STAGING_DIR"
	EnvScriptDir  = "FILESTAGE_SCRIPT_DIR"
	EnvLogLevel   = "FILESTAGE_LOG_LEVEL"
	EnvTimeout    = "FILESTAGE_EXTRACTOR_TIMEOUT"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000"
	Addr string `yaml:"addr"`

	// MaxUploadBytes caps the request body of an upload (0 = unlimited)
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxLimit bounds the page size of every paginated endpoint
	MaxLimit int `yaml:"max_limit"`
}

// StorageConfig holds staging root settings.
type StorageConfig struct {
	// StagingDir is the flat directory holding uploaded files
	StagingDir string `yaml:"staging_dir"`

	// SortListing sorts /list output by name; otherwise directory order is used
	SortListing bool `yaml:"sort_listing"`

	// RequireNonEmptyName rejects the empty file name at validation time
	RequireNonEmptyName bool `yaml:"require_non_empty_name"`
}

// ScriptsConfig maps each extraction kind to a script file.
type ScriptsConfig struct {
	Size  string `yaml:"size"`
	Order string `yaml:"order"`
	Range string `yaml:"range"`
}

// ExtractorConfig holds external script settings.
type ExtractorConfig struct {
	Interpreter string        `yaml:"interpreter"`
	ScriptDir   string        `yaml:"script_dir"`
	Timeout     time.Duration `yaml:"timeout"`
	Scripts     ScriptsConfig `yaml:"scripts"`
	MinFlag     string        `yaml:"min_flag"`
	DescFlag    string        `yaml:"desc_flag"`
}

// AuditConfig holds the operation history settings.
type AuditConfig struct {
	// Enabled records every HTTP operation in the audit database
	Enabled bool `yaml:"enabled"`

	// DBPath is the SQLite database file
	DBPath string `yaml:"db_path"`

	// KeepDays prunes entries older than this at startup (0 = keep forever)
	KeepDays int `yaml:"keep_days"`
}

// Config represents filestage configuration options
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Audit     AuditConfig     `yaml:"audit"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written (empty = console only)
	LogDir string `yaml:"log_dir"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			MaxUploadBytes:  32 << 20, // 32 MiB
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxLimit:        100,
		},
		Storage: StorageConfig{
			StagingDir:          "temp",
			SortListing:         true,
			RequireNonEmptyName: false,
		},
		Extractor: ExtractorConfig{
			Interpreter: "bash",
			ScriptDir:   "scripts",
			Timeout:     30 * time.Second,
			Scripts: ScriptsConfig{
				Size:  "max-min-size.sh",
				Order: "order-by-username.sh",
				Range: "between-msgs.sh",
			},
			MinFlag:  "-min",
			DescFlag: "-desc",
		},
		Audit: AuditConfig{
			Enabled:  true,
			DBPath:   "", // resolved under the home directory by ResolvePaths
			KeepDays: 30,
		},
		LogLevel: "info",
		LogDir:   "",
	}
}

// fileConfig mirrors Config as it appears on disk. Pointers and strings
// let LoadConfig tell an explicit zero from an absent key.
type fileConfig struct {
	Server *struct {
		Addr            string `yaml:"addr"`
		MaxUploadBytes  *int64 `yaml:"max_upload_bytes"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		MaxLimit        *int   `yaml:"max_limit"`
	} `yaml:"server"`
	Storage *struct {
		StagingDir          string `yaml:"staging_dir"`
		SortListing         *bool  `yaml:"sort_listing"`
		RequireNonEmptyName *bool  `yaml:"require_non_empty_name"`
	} `yaml:"storage"`
	Extractor *struct {
		Interpreter string        `yaml:"interpreter"`
		ScriptDir   string        `yaml:"script_dir"`
		Timeout     string        `yaml:"timeout"`
		Scripts     ScriptsConfig `yaml:"scripts"`
		MinFlag     string        `yaml:"min_flag"`
		DescFlag    string        `yaml:"desc_flag"`
	} `yaml:"extractor"`
	Audit *struct {
		Enabled  *bool  `yaml:"enabled"`
		DBPath   string `yaml:"db_path"`
		KeepDays *int   `yaml:"keep_days"`
	} `yaml:"audit"`
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
}

// LoadConfig loads configuration from the specified file path.
// A missing file yields the defaults without error; a malformed file is an error.
// Keys present in the file override the defaults, absent keys keep them.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.merge(&fc); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromDir loads config.yaml from the given filestage home directory.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, "config.yaml"))
}

func (c *Config) merge(fc *fileConfig) error {
	if s := fc.Server; s != nil {
		if s.Addr != "" {
			c.Server.Addr = s.Addr
		}
		if s.MaxUploadBytes != nil {
			c.Server.MaxUploadBytes = *s.MaxUploadBytes
		}
		if s.MaxLimit != nil {
			c.Server.MaxLimit = *s.MaxLimit
		}
		for _, d := range []struct {
			key string
			raw string
			dst *time.Duration
		}{
			{"server.read_timeout", s.ReadTimeout, &c.Server.ReadTimeout},
			{"server.write_timeout", s.WriteTimeout, &c.Server.WriteTimeout},
			{"server.shutdown_timeout", s.ShutdownTimeout, &c.Server.ShutdownTimeout},
		} {
			if err := parseDuration(d.key, d.raw, d.dst); err != nil {
				return err
			}
		}
	}

	if s := fc.Storage; s != nil {
		if s.StagingDir != "" {
			c.Storage.StagingDir = s.StagingDir
		}
		if s.SortListing != nil {
			c.Storage.SortListing = *s.SortListing
		}
		if s.RequireNonEmptyName != nil {
			c.Storage.RequireNonEmptyName = *s.RequireNonEmptyName
		}
	}

	if e := fc.Extractor; e != nil {
		if e.Interpreter != "" {
			c.Extractor.Interpreter = e.Interpreter
		}
		if e.ScriptDir != "" {
			c.Extractor.ScriptDir = e.ScriptDir
		}
		if err := parseDuration("extractor.timeout", e.Timeout, &c.Extractor.Timeout); err != nil {
			return err
		}
		if e.Scripts.Size != "" {
			c.Extractor.Scripts.Size = e.Scripts.Size
		}
		if e.Scripts.Order != "" {
			c.Extractor.Scripts.Order = e.Scripts.Order
		}
		if e.Scripts.Range != "" {
			c.Extractor.Scripts.Range = e.Scripts.Range
		}
		if e.MinFlag != "" {
			c.Extractor.MinFlag = e.MinFlag
		}
		if e.DescFlag != "" {
			c.Extractor.DescFlag = e.DescFlag
		}
	}

	if a := fc.Audit; a != nil {
		if a.Enabled != nil {
			c.Audit.Enabled = *a.Enabled
		}
		if a.DBPath != "" {
			c.Audit.DBPath = a.DBPath
		}
		if a.KeepDays != nil {
			c.Audit.KeepDays = *a.KeepDays
		}
	}

	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogDir != "" {
		c.LogDir = fc.LogDir
	}
	return nil
}

func parseDuration(key, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set are left alone. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ResolvePaths fills in locations that default to the home directory.
func (c *Config) ResolvePaths(home string) {
	if c.Audit.DBPath == "" {
		c.Audit.DBPath = filepath.Join(home, "audit", "operations.db")
	}
}

// ApplyEnv overrides configuration values from FILESTAGE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvStagingDir); v != "" {
		c.Storage.StagingDir = v
	}
	if v := os.Getenv(EnvScriptDir); v != "" {
		c.Extractor.ScriptDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		if err := parseDuration(EnvTimeout, v, &c.Extractor.Timeout); err != nil {
			// Plain integers are read as seconds
			secs, convErr := strconv.Atoi(v)
			if convErr != nil {
				return err
			}
			c.Extractor.Timeout = time.Duration(secs) * time.Second
		}
	}
	return nil
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(addr, stagingDir, scriptDir, logLevel, logDir *string, timeout *time.Duration) {
	if addr != nil {
		c.Server.Addr = *addr
	}
	if stagingDir != nil {
		c.Storage.StagingDir = *stagingDir
	}
	if scriptDir != nil {
		c.Extractor.ScriptDir = *scriptDir
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if timeout != nil {
		c.Extractor.Timeout = *timeout
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must be >= 0, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.MaxLimit < 1 {
		return fmt.Errorf("server.max_limit must be > 0, got %d", c.Server.MaxLimit)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be >= 0, got %v", c.Server.ShutdownTimeout)
	}

	if c.Storage.StagingDir == "" {
		return fmt.Errorf("storage.staging_dir cannot be empty")
	}

	// Timeout can be 0 (no timeout) or positive, negative is invalid
	if c.Extractor.Timeout < 0 {
		return fmt.Errorf("extractor.timeout must be >= 0, got %v", c.Extractor.Timeout)
	}
	if c.Extractor.Interpreter == "" {
		return fmt.Errorf("extractor.interpreter cannot be empty")
	}
	if c.Extractor.Scripts.Size == "" || c.Extractor.Scripts.Order == "" || c.Extractor.Scripts.Range == "" {
		return fmt.Errorf("extractor.scripts must name size, order and range scripts")
	}

	if c.Audit.Enabled {
		if c.Audit.DBPath == "" {
			return fmt.Errorf("audit.db_path cannot be empty when audit is enabled")
		}
		if c.Audit.KeepDays < 0 {
			return fmt.Errorf("audit.keep_days must be >= 0, got %d", c.Audit.KeepDays)
		}
	}

	return nil
}
