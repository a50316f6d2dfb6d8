package config

import (
	"path"
	"strings"
	"time"
)

type RepoConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Branch string `mapstructure:"branch"`
}

type RemoteConfig struct {
	User           string        `mapstructure:"user"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	KeyPath        string        `mapstructure:"key_path"`
	KnownHostsPath string        `mapstructure:"known_hosts_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type AppConfig struct {
	Name           string `mapstructure:"name"`
	Port           int    `mapstructure:"port"`
	Runtime        string `mapstructure:"runtime"`
	RuntimeVersion string `mapstructure:"runtime_version"`
}

type PathsConfig struct {
	WorkDir    string `mapstructure:"work_dir"`    // local checkout of the repository
	ProjectDir string `mapstructure:"project_dir"` // remote directory the app is deployed into
	LogDir     string `mapstructure:"log_dir"`
}

type DeploymentConfig struct {
	Repo   RepoConfig   `mapstructure:"repo"`
	Remote RemoteConfig `mapstructure:"remote"`
	App    AppConfig    `mapstructure:"app"`
	Paths  PathsConfig  `mapstructure:"paths"`
}

// AppName returns the logical application identifier: the explicit name if
// set, otherwise the repository basename with a trailing ".git" stripped.
// Supervisor entries, the proxy site file and the remote project directory
// are all keyed on this value.
func (c *DeploymentConfig) AppName() string {
	if c.App.Name != "" {
		return c.App.Name
	}
	base := path.Base(strings.TrimSuffix(strings.TrimSuffix(c.Repo.URL, "/"), ".git"))
	if base == "." || base == "/" || base == "" {
		return "app"
	}
	return strings.ToLower(base)
}
