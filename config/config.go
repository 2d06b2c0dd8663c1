// Package config loads the settings of the netpush command from defaults, an optional yaml file,
// NETPUSH_ prefixed environment variables and command line flags, in increasing order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/damianoneill/netpush/logging"
	"github.com/damianoneill/netpush/plugin"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "NETPUSH"

// Config holds the settings of the command.
type Config struct {
	LockMaxAttempts              int    `mapstructure:"lock-max-attempts" validate:"gte=1"`
	LockRetryWaitSeconds         int    `mapstructure:"lock-retry-wait-seconds" validate:"gte=0"`
	ConnectPort                  int    `mapstructure:"connect-port" validate:"gte=0,lte=65535"`
	ShellPort                    int    `mapstructure:"shell-port" validate:"gte=1,lte=65535"`
	PrivilegeCheckTimeoutSeconds int    `mapstructure:"privilege-check-timeout-seconds" validate:"gte=1"`
	OperationTimeoutSeconds      int    `mapstructure:"operation-timeout-seconds" validate:"gte=0"`
	LoadFormat                   string `mapstructure:"load-format" validate:"oneof=set text"`
	PromptPattern                string `mapstructure:"prompt-pattern"`

	Concurrency     int    `mapstructure:"concurrency" validate:"gte=1"`
	MetricsTextfile string `mapstructure:"metrics-textfile"`

	Log       logging.Config `mapstructure:"log"`
	Inventory Inventory      `mapstructure:"inventory"`
}

// Inventory locates the credential inventory. File takes precedence over MongoURI.
type Inventory struct {
	File       string `mapstructure:"file"`
	MongoURI   string `mapstructure:"mongo-uri" validate:"omitempty,uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	// Key opens sealed secrets, empty when secrets are stored in clear.
	Key string `mapstructure:"key" validate:"omitempty,hexadecimal,len=64"`
}

var defaults = map[string]interface{}{
	"lock-max-attempts":               plugin.DefaultConfig.LockMaxAttempts,
	"lock-retry-wait-seconds":         int(plugin.DefaultConfig.LockRetryWait / time.Second),
	"connect-port":                    0,
	"shell-port":                      plugin.DefaultConfig.ShellPort,
	"privilege-check-timeout-seconds": int(plugin.DefaultConfig.PrivilegeCheckTimeout / time.Second),
	"operation-timeout-seconds":       0,
	"load-format":                     plugin.DefaultConfig.LoadFormat,
	"prompt-pattern":                  plugin.DefaultConfig.PromptPattern,
	"concurrency":                     4,
	"metrics-textfile":                "",
	"log.debug":                       false,
	"log.format":                      logging.FormatJSON,
	"inventory.file":                  "",
	"inventory.mongo-uri":             "",
	"inventory.database":              "netpush",
	"inventory.collection":            "credentials",
	"inventory.key":                   "",
}

// flagKeys maps flag names onto the configuration keys they set, where the two differ.
var flagKeys = map[string]string{
	"debug":         "log.debug",
	"log-format":    "log.format",
	"inventory":     "inventory.file",
	"inventory-key": "inventory.key",
	"mongo-uri":     "inventory.mongo-uri",
}

var validate = validator.New()

// Load reads the configuration. An empty path skips the configuration file, flags may be nil.
func Load(files afero.Fs, path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetFs(files)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read configuration %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var err error
		flags.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok {
				key = f.Name
			}
			if bindErr := v.BindPFlag(key, f); bindErr != nil && err == nil {
				err = errors.Wrapf(bindErr, "failed to bind flag %s", f.Name)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// PluginConfig delivers the plugin knobs. A zero ConnectPort or OperationTimeout leaves the family default in place.
func (c *Config) PluginConfig() plugin.Config {
	return plugin.Config{
		LockMaxAttempts:       c.LockMaxAttempts,
		LockRetryWait:         time.Duration(c.LockRetryWaitSeconds) * time.Second,
		ConnectPort:           c.ConnectPort,
		ShellPort:             c.ShellPort,
		PrivilegeCheckTimeout: time.Duration(c.PrivilegeCheckTimeoutSeconds) * time.Second,
		OperationTimeout:      time.Duration(c.OperationTimeoutSeconds) * time.Second,
		LoadFormat:            c.LoadFormat,
		PromptPattern:         c.PromptPattern,
	}
}
