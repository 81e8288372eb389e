// Package config loads scanner settings from defaults, an optional YAML file
// and SECSCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// EnvPrefix prefixes every environment override, e.g. SECSCAN_OSV_ENABLED
const EnvPrefix = "SECSCAN"

// Configuration is the decoded settings tree
type Configuration struct {
	Scan struct {
		MaxFileSize         int64    `mapstructure:"max_file_size"`
		MaxConcurrent       int      `mapstructure:"max_concurrent"`
		ParallelThreshold   int      `mapstructure:"parallel_threshold"`
		SeverityThreshold   string   `mapstructure:"severity_threshold"`
		ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
		RecentFilesLimit    int      `mapstructure:"recent_files_limit"`
		Exclude             []string `mapstructure:"exclude"`
	} `mapstructure:"scan"`
	OSV struct {
		Enabled    bool          `mapstructure:"enabled"`
		APIURL     string        `mapstructure:"api_url"`
		BatchURL   string        `mapstructure:"batch_url"`
		VulnsURL   string        `mapstructure:"vulns_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxRetries int           `mapstructure:"max_retries"`
	} `mapstructure:"osv"`
	Cache struct {
		TTL      time.Duration `mapstructure:"ttl"`
		Capacity int           `mapstructure:"capacity"`
	} `mapstructure:"cache"`
	Incremental struct {
		ForceRescanAfter   time.Duration `mapstructure:"force_rescan_after"`
		StateCacheCapacity int           `mapstructure:"state_cache_capacity"`
	} `mapstructure:"incremental"`
	Policy struct {
		File      string `mapstructure:"file"`
		Signature string `mapstructure:"signature"`
		Keyring   string `mapstructure:"keyring"`
		SHA256    string `mapstructure:"sha256"`
	} `mapstructure:"policy"`
	Suppressions struct {
		File string `mapstructure:"file"`
	} `mapstructure:"suppressions"`
	Database struct {
		Path      string `mapstructure:"path"`
		Ephemeral bool   `mapstructure:"ephemeral"`
	} `mapstructure:"database"`
	Logging struct {
		Level string `mapstructure:"level"`
		Debug bool   `mapstructure:"debug"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"logging"`
}

// SetDefaults registers every key so environment overrides resolve
func SetDefaults(v *viper.Viper) {
	v.SetDefault("scan.max_file_size", 10*1024*1024)
	v.SetDefault("scan.max_concurrent", 4)
	v.SetDefault("scan.parallel_threshold", 10)
	v.SetDefault("scan.severity_threshold", string(entities.SeverityMedium))
	v.SetDefault("scan.confidence_threshold", 0.5)
	v.SetDefault("scan.recent_files_limit", 100)
	v.SetDefault("scan.exclude", []string{})

	v.SetDefault("osv.enabled", true)
	v.SetDefault("osv.api_url", "https://api.osv.dev/v1/query")
	v.SetDefault("osv.batch_url", "https://api.osv.dev/v1/querybatch")
	v.SetDefault("osv.vulns_url", "https://api.osv.dev/v1/vulns")
	v.SetDefault("osv.timeout", 10*time.Second)
	v.SetDefault("osv.max_retries", 1)

	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.capacity", 10000)

	v.SetDefault("incremental.force_rescan_after", 7*24*time.Hour)
	v.SetDefault("incremental.state_cache_capacity", 64)

	v.SetDefault("policy.file", "")
	v.SetDefault("policy.signature", "")
	v.SetDefault("policy.keyring", "")
	v.SetDefault("policy.sha256", "")

	v.SetDefault("suppressions.file", ".security-suppressions.json")

	v.SetDefault("database.path", filepath.Join(".secscan", "secscan.db"))
	v.SetDefault("database.ephemeral", false)

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.json", false)
}

// Load builds the configuration. An explicit cfgFile must exist; otherwise
// ./secscan.yaml and <user config dir>/secscan/secscan.yaml are tried.
// It returns the config file used, if any.
func Load(cfgFile string) (*Configuration, string, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		path, err := expandTilde(cfgFile)
		if err != nil {
			return nil, "", err
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("secscan")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "secscan"))
		}
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// SECURITY_SUPPRESSIONS_FILE is accepted as well
	if err := v.BindEnv("suppressions.file", EnvPrefix+"_SUPPRESSIONS_FILE", "SECURITY_SUPPRESSIONS_FILE"); err != nil {
		return nil, "", fmt.Errorf("binding suppression env: %w", err)
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config into struct: %w", err)
	}

	for _, p := range []*string{&cfg.Policy.File, &cfg.Policy.Signature, &cfg.Policy.Keyring, &cfg.Suppressions.File, &cfg.Database.Path} {
		expanded, err := expandTilde(*p)
		if err != nil {
			return nil, "", err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, used, nil
}

// Validate rejects settings the scanner cannot run with
func (c *Configuration) Validate() error {
	var errs []error
	if c.Scan.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("scan.max_file_size must be positive, got %d", c.Scan.MaxFileSize))
	}
	if c.Scan.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("scan.max_concurrent must be at least 1, got %d", c.Scan.MaxConcurrent))
	}
	if c.Scan.ParallelThreshold < 0 {
		errs = append(errs, fmt.Errorf("scan.parallel_threshold must not be negative, got %d", c.Scan.ParallelThreshold))
	}
	if !validSeverity(c.Scan.SeverityThreshold) {
		errs = append(errs, fmt.Errorf("scan.severity_threshold %q is not a severity", c.Scan.SeverityThreshold))
	}
	if c.Scan.ConfidenceThreshold < 0 || c.Scan.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("scan.confidence_threshold must be within [0,1], got %v", c.Scan.ConfidenceThreshold))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Incremental.ForceRescanAfter < 0 {
		errs = append(errs, fmt.Errorf("incremental.force_rescan_after must not be negative, got %s", c.Incremental.ForceRescanAfter))
	}
	if c.Policy.Signature != "" && c.Policy.Keyring == "" {
		errs = append(errs, errors.New("policy.signature requires policy.keyring"))
	}
	return errors.Join(errs...)
}

// ScanOptions returns the default options for a scan request
func (c *Configuration) ScanOptions() entities.ScanOptions {
	opts := entities.DefaultScanOptions()
	opts.SeverityThreshold = entities.ParseSeverity(c.Scan.SeverityThreshold)
	opts.ConfidenceThreshold = c.Scan.ConfidenceThreshold
	return opts
}

func validSeverity(label string) bool {
	return entities.Severity(strings.ToLower(label)).Valid()
}

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
