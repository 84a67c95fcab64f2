package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quickmod/quickmod/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Config keys.
const (
	KeyMetadataDir     = "metadata_dir"
	KeyStagingDir      = "staging_dir"
	KeyConcurrency     = "concurrency"
	KeyTimeout         = "timeout"
	KeySessionMaxPages = "session_max_pages"
	KeyLogLevel        = "log_level"
	KeyEnvironments    = "environments"
)

// Defaults applied when a key is absent from both the file and the environment.
const (
	DefaultConcurrency     = 4
	DefaultTimeout         = 2 * time.Minute
	DefaultSessionMaxPages = 8
	DefaultLogLevel        = "warn"

	metadataDirName = "quickmods"
	stagingDirName  = "staging"
)

// Environment is a target game instance mods get installed into.
type Environment struct {
	Name    string `mapstructure:"name" yaml:"name" json:"name"`
	Root    string `mapstructure:"root" yaml:"root" json:"root"`
	Version string `mapstructure:"version" yaml:"version" json:"version"`
}

// Settings is the typed view over the loaded configuration.
type Settings struct {
	MetadataDir     string
	StagingDir      string
	Concurrency     int
	Timeout         time.Duration
	SessionMaxPages int
	LogLevel        string
	Environments    []Environment
}

// Dir returns the path to the config directory. <PREFIX>_HOME overrides
// the default of ~/.quickmod/.
func Dir() string {
	if v := os.Getenv(branding.EnvVar("HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.quickmod/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	viper.SetDefault(KeyMetadataDir, filepath.Join(Dir(), metadataDirName))
	viper.SetDefault(KeyStagingDir, filepath.Join(Dir(), stagingDirName))
	viper.SetDefault(KeyConcurrency, DefaultConcurrency)
	viper.SetDefault(KeyTimeout, DefaultTimeout)
	viper.SetDefault(KeySessionMaxPages, DefaultSessionMaxPages)
	viper.SetDefault(KeyLogLevel, DefaultLogLevel)

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Current returns the typed settings from the loaded configuration.
// Out-of-range numeric values fall back to their defaults.
func Current() (*Settings, error) {
	s := &Settings{
		MetadataDir:     viper.GetString(KeyMetadataDir),
		StagingDir:      viper.GetString(KeyStagingDir),
		Concurrency:     viper.GetInt(KeyConcurrency),
		Timeout:         viper.GetDuration(KeyTimeout),
		SessionMaxPages: viper.GetInt(KeySessionMaxPages),
		LogLevel:        viper.GetString(KeyLogLevel),
	}
	if s.Concurrency < 1 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.SessionMaxPages < 1 {
		s.SessionMaxPages = DefaultSessionMaxPages
	}

	envs, err := Environments()
	if err != nil {
		return nil, err
	}
	s.Environments = envs
	return s, nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key string, value any) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)
	return save()
}

// Environments returns the configured target environments in file order.
func Environments() ([]Environment, error) {
	var envs []Environment
	if err := viper.UnmarshalKey(KeyEnvironments, &envs); err != nil {
		return nil, fmt.Errorf("reading %s: %w", KeyEnvironments, err)
	}
	return envs, nil
}

// AddEnvironment appends env, replacing an existing entry with the same name.
func AddEnvironment(env Environment) error {
	if env.Name == "" || env.Root == "" || env.Version == "" {
		return fmt.Errorf("environment needs a name, root and version")
	}
	envs, err := Environments()
	if err != nil {
		return err
	}

	replaced := false
	for i := range envs {
		if envs[i].Name == env.Name {
			envs[i] = env
			replaced = true
		}
	}
	if !replaced {
		envs = append(envs, env)
	}
	return Set(KeyEnvironments, envs)
}

// RemoveEnvironment deletes the environment with the given name.
func RemoveEnvironment(name string) error {
	envs, err := Environments()
	if err != nil {
		return err
	}

	kept := envs[:0]
	for _, e := range envs {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(envs) {
		return fmt.Errorf("environment %q is not configured", name)
	}
	return Set(KeyEnvironments, kept)
}

// FindEnvironment returns the environment with the given name.
func FindEnvironment(envs []Environment, name string) (Environment, bool) {
	for _, e := range envs {
		if e.Name == name {
			return e, true
		}
	}
	return Environment{}, false
}

func save() error {
	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
