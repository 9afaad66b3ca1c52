// Package config loads passport-rembg settings from defaults, an optional
// config.yaml in the per-user data directory, PASSPORT_REMBG_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultPort is the loopback port the service listens on.
	DefaultPort = 38472

	// PortEnv overrides the service port for both modes.
	PortEnv = "PASSPORT_REMBG_PORT"

	envPrefix  = "PASSPORT_REMBG"
	appDirName = "PassportPhotoCreator"
)

// Filesystem artifact names inside the data directory.
const (
	LockFileName  = "service.starting"
	PIDFileName   = "service.pid"
	ErrorFileName = "service_error.txt"
	ModelDirName  = "u2net"
)

type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Log          LogConfig          `mapstructure:"log"`
	Service      ServiceConfig      `mapstructure:"service"`
	Client       ClientConfig       `mapstructure:"client"`
	Launcher     LauncherConfig     `mapstructure:"launcher"`
	Models       ModelsConfig       `mapstructure:"models"`
	Matting      MattingConfig      `mapstructure:"matting"`
	Status       StatusConfig       `mapstructure:"status"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type ServiceConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Workers int    `mapstructure:"workers"`
}

type ClientConfig struct {
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout"`
}

type LauncherConfig struct {
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Executable is the binary started in service mode; empty means this executable.
	Executable string `mapstructure:"executable"`
}

type ModelsConfig struct {
	// Dir holds the .onnx files; empty means <data_dir>/u2net.
	Dir               string `mapstructure:"dir"`
	DownloadBaseURL   string `mapstructure:"download_base_url"`
	RuntimeLibrary    string `mapstructure:"runtime_library"`
	IntraOpNumThreads int    `mapstructure:"intra_op_threads"`
}

type MattingConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	PostProcess bool `mapstructure:"post_process"`
}

type StatusConfig struct {
	// Addr enables the HTTP status endpoint when non-empty (e.g. 127.0.0.1:38473).
	Addr string `mapstructure:"addr"`
}

type HousekeepingConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Load builds a Config. flags may be nil; when given, its "port", "debug" and
// "data-dir" flags are bound on top of every other source.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("service.port", PortEnv, envPrefix+"_SERVICE_PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port env: %w", err)
	}

	if flags != nil {
		for key, name := range map[string]string{
			"service.port": "port",
			"data_dir":     "data-dir",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("debug"); f != nil && f.Changed && f.Value.String() == "true" {
			v.Set("log.mode", "debug")
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = filepath.Join(cfg.DataDir, ModelDirName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	dataDir := AppDataDir()
	return &Config{
		DataDir: dataDir,
		Log:     LogConfig{Mode: "release"},
		Service: ServiceConfig{Host: "127.0.0.1", Port: DefaultPort, Workers: 2},
		Client: ClientConfig{
			ProbeTimeout:    time.Second,
			ExchangeTimeout: 120 * time.Second,
		},
		Launcher: LauncherConfig{
			WaitTimeout:  90 * time.Second,
			PollInterval: time.Second,
		},
		Models: ModelsConfig{
			Dir:             filepath.Join(dataDir, ModelDirName),
			DownloadBaseURL: "https://github.com/danielgatis/rembg/releases/download/v0.0.0/",
			RuntimeLibrary:  DefaultRuntimeLibrary(),
		},
		Matting:      MattingConfig{Enabled: true, PostProcess: true},
		Housekeeping: HousekeepingConfig{Schedule: "@every 1m"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.mode", d.Log.Mode)

	v.SetDefault("service.host", d.Service.Host)
	v.SetDefault("service.port", d.Service.Port)
	v.SetDefault("service.workers", d.Service.Workers)

	v.SetDefault("client.probe_timeout", d.Client.ProbeTimeout)
	v.SetDefault("client.exchange_timeout", d.Client.ExchangeTimeout)

	v.SetDefault("launcher.wait_timeout", d.Launcher.WaitTimeout)
	v.SetDefault("launcher.poll_interval", d.Launcher.PollInterval)
	v.SetDefault("launcher.executable", "")

	v.SetDefault("models.dir", "")
	v.SetDefault("models.download_base_url", d.Models.DownloadBaseURL)
	v.SetDefault("models.runtime_library", d.Models.RuntimeLibrary)
	v.SetDefault("models.intra_op_threads", 0)

	v.SetDefault("matting.enabled", d.Matting.Enabled)
	v.SetDefault("matting.post_process", d.Matting.PostProcess)

	v.SetDefault("status.addr", "")
	v.SetDefault("housekeeping.schedule", d.Housekeeping.Schedule)
}

// Validate checks ranges that would otherwise surface as confusing runtime errors.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port must be between 1 and 65535, got %d", c.Service.Port)
	}
	if c.Service.Workers < 1 {
		return fmt.Errorf("service.workers must be positive")
	}
	if c.Client.ProbeTimeout <= 0 || c.Client.ExchangeTimeout <= 0 {
		return fmt.Errorf("client timeouts must be positive")
	}
	if c.Launcher.WaitTimeout <= 0 || c.Launcher.PollInterval <= 0 {
		return fmt.Errorf("launcher wait_timeout and poll_interval must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	return nil
}

func (c *Config) LockPath() string  { return filepath.Join(c.DataDir, LockFileName) }
func (c *Config) PIDPath() string   { return filepath.Join(c.DataDir, PIDFileName) }
func (c *Config) ErrorPath() string { return filepath.Join(c.DataDir, ErrorFileName) }

// AppDataDir returns the per-user application data directory.
func AppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = home
		}
		return filepath.Join(base, appDirName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName)
	default:
		return filepath.Join(home, ".local", "share", appDirName)
	}
}

// DefaultRuntimeLibrary returns the onnxruntime shared library shipped in
// third_party/ next to the executable.
func DefaultRuntimeLibrary() string {
	dir := "."
	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		dir = filepath.Dir(exe)
	}

	name := "onnxruntime.so"
	switch runtime.GOOS {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		name = "onnxruntime.dylib"
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.dylib"
		}
	case "linux":
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		}
	}
	return filepath.Join(dir, "third_party", name)
}
