package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultBranch         = "main"
	defaultSSHPort        = 22
	defaultConnectTimeout = 10 * time.Second
)

// Load reads the deployment configuration from an optional TOML file and the
// environment (BERTH_ prefix). Flag-level overrides are applied by the caller
// through the returned struct; missing files are not an error since every
// required value can arrive via flags or environment.
func Load(configPath string) (*DeploymentConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("berth")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BERTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Absent config file is fine when none was named explicitly, flags
		// and environment can carry the whole run.
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg DeploymentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("repo.branch", defaultBranch)
	v.SetDefault("remote.port", defaultSSHPort)
	v.SetDefault("remote.connect_timeout", defaultConnectTimeout)
	v.SetDefault("app.runtime", "auto")
	v.SetDefault("paths.log_dir", "./logs")
}

// ApplyDefaults fills the derived paths that depend on other fields and could
// not be defaulted statically.
func (c *DeploymentConfig) ApplyDefaults() {
	if c.Repo.Branch == "" {
		c.Repo.Branch = defaultBranch
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = defaultSSHPort
	}
	if c.Remote.ConnectTimeout == 0 {
		c.Remote.ConnectTimeout = defaultConnectTimeout
	}
	if c.App.Runtime == "" {
		c.App.Runtime = "auto"
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = "./logs"
	}
	if c.Paths.WorkDir == "" {
		c.Paths.WorkDir = filepath.Join(".berth", "checkouts", c.AppName())
	}
	if c.Paths.ProjectDir == "" {
		c.Paths.ProjectDir = "/var/www/" + c.AppName()
	}
}

// Validate enforces the inputs the pipeline cannot run without. It is called
// before any remote contact is attempted.
func (c *DeploymentConfig) Validate() error {
	var missing []string
	if c.Repo.URL == "" {
		missing = append(missing, "repo.url")
	}
	if c.Remote.User == "" {
		missing = append(missing, "remote.user")
	}
	if c.Remote.Host == "" {
		missing = append(missing, "remote.host")
	}
	if c.Remote.KeyPath == "" {
		missing = append(missing, "remote.key_path")
	}
	if c.App.Port <= 0 {
		missing = append(missing, "app.port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
