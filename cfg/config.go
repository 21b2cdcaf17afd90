// Package cfg defines the driver's external configuration surface: the
// fields every operator must set, bound to a pflag.FlagSet and validated
// before the driver is constructed.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/AntidoteDB/elmerfs/internal/logger"
)

// LoggingConfig governs the package-level logger (see internal/logger).
type LoggingConfig struct {
	FilePath        string `yaml:"file-path"`
	Format          string `yaml:"format"`
	Severity        string `yaml:"severity"`
	MaxFileSizeMB   int    `yaml:"max-file-size-mb"`
	BackupFileCount int    `yaml:"backup-file-count"`
	Compress        bool   `yaml:"compress"`
}

// Config is the full set of tunables a mount needs. View, Bucket, and
// Addresses have no defaults and must be supplied by the operator; Locks,
// MaxConnections, and PageSize do.
type Config struct {
	View      string   `yaml:"view"`
	Bucket    string   `yaml:"bucket"`
	Addresses []string `yaml:"addresses"`
	Locks     bool     `yaml:"locks"`

	MaxConnections int `yaml:"max-connections"`
	PageSize       int `yaml:"page-size"`

	Logging LoggingConfig `yaml:"log"`
}

// DefaultMaxConnections and DefaultPageSize mirror the driver package's own
// defaults, duplicated here so BindFlags can show them in --help without
// importing internal/driver into a flag-only package.
const (
	DefaultMaxConnections = 32
	DefaultPageSize       = 4096
)

// BindFlags registers every Config field on flagSet and binds it into
// viper, so callers get flag, environment, and config-file resolution for
// free in the usual viper precedence order.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string, bindErr *error) {
		if *bindErr != nil {
			return
		}
		*bindErr = viper.BindPFlag(key, flagSet.Lookup(key))
	}

	flagSet.String("view", "", "Tenant view tag for this mount.")
	flagSet.String("bucket", "", "Backend bucket name.")
	flagSet.StringSlice("addresses", nil, "Backend node addresses (host:port).")
	flagSet.Bool("locks", true, "Take per-key transaction locks. Disabling trades consistency for throughput.")
	flagSet.Int("max-connections", DefaultMaxConnections, "Maximum simultaneous backend connections.")
	flagSet.Int("page-size", DefaultPageSize, "File content page size in bytes.")

	flagSet.String("log.file-path", "", "Log file path. Empty logs to stderr.")
	flagSet.String("log.format", "text", "Log format: text or json.")
	flagSet.String("log.severity", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	flagSet.Int("log.max-file-size-mb", 128, "Log file size at which it is rotated.")
	flagSet.Int("log.backup-file-count", 5, "Number of rotated log files to keep.")
	flagSet.Bool("log.compress", false, "Compress rotated log files.")

	var err error
	for key := range map[string]struct{}{
		"view": {}, "bucket": {}, "addresses": {}, "locks": {}, "max-connections": {}, "page-size": {},
		"log.file-path": {}, "log.format": {}, "log.severity": {}, "log.max-file-size-mb": {}, "log.backup-file-count": {}, "log.compress": {},
	} {
		bind(key, &err)
	}
	return err
}

// Load reads resolved flag/env/file values out of viper into a Config.
func Load() (*Config, error) {
	c := &Config{
		View:           viper.GetString("view"),
		Bucket:         viper.GetString("bucket"),
		Addresses:      viper.GetStringSlice("addresses"),
		Locks:          viper.GetBool("locks"),
		MaxConnections: viper.GetInt("max-connections"),
		PageSize:       viper.GetInt("page-size"),
		Logging: LoggingConfig{
			FilePath:        viper.GetString("log.file-path"),
			Format:          viper.GetString("log.format"),
			Severity:        viper.GetString("log.severity"),
			MaxFileSizeMB:   viper.GetInt("log.max-file-size-mb"),
			BackupFileCount: viper.GetInt("log.backup-file-count"),
			Compress:        viper.GetBool("log.compress"),
		},
	}
	return c, Validate(c)
}

// LoggerConfig adapts this package's LoggingConfig to internal/logger's
// Config, copying each logging field across unchanged.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		FilePath:        c.Logging.FilePath,
		Format:          c.Logging.Format,
		Severity:        c.Logging.Severity,
		MaxFileSizeMB:   c.Logging.MaxFileSizeMB,
		BackupFileCount: c.Logging.BackupFileCount,
		Compress:        c.Logging.Compress,
	}
}
