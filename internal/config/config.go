package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/procsched/internal/env"
	"github.com/loykin/procsched/internal/logger"
	"github.com/loykin/procsched/internal/process"
	"github.com/loykin/procsched/internal/scheduler"
)

// EnvPrefix is the prefix of environment overrides, e.g. PROCSCHED_SCHEDULER_QUANTUM=2s.
const EnvPrefix = "PROCSCHED"

// DefaultPrompt is the shell prompt.
const DefaultPrompt = "shell 5500>>>"

// Config represents the TOML file after defaults, env and flag overrides.
type Config struct {
	Scheduler SchedulerConfig   `mapstructure:"scheduler"`
	Worker    WorkerConfig      `mapstructure:"worker"`
	Log       logger.SlogConfig `mapstructure:"log"`
	Shell     ShellConfig       `mapstructure:"shell"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Server    ServerConfig      `mapstructure:"server"`
	History   HistoryConfig     `mapstructure:"history"`
}

type SchedulerConfig struct {
	Capacity    int           `mapstructure:"capacity"`
	Mode        string        `mapstructure:"mode"`
	Quantum     time.Duration `mapstructure:"quantum"`
	KillTimeout time.Duration `mapstructure:"kill_timeout"`
}

type WorkerConfig struct {
	Name     string            `mapstructure:"name"`
	Command  string            `mapstructure:"command"`
	WorkDir  string            `mapstructure:"work_dir"`
	Env      []string          `mapstructure:"env"`
	EnvFiles []string          `mapstructure:"env_files"`
	UseOSEnv bool              `mapstructure:"use_os_env"`
	Log      logger.FileConfig `mapstructure:"log"`
}

type ShellConfig struct {
	Prompt string `mapstructure:"prompt"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type ServerConfig struct {
	Listen   string    `mapstructure:"listen"`
	BasePath string    `mapstructure:"base_path"`
	TLS      TLSConfig `mapstructure:"tls"`
}

// TLSConfig serves the control API over HTTPS. Either CertFile/KeyFile or Dir
// (tls.crt, tls.key) must be set; AutoGenerate writes a self-signed pair into Dir.
type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	MinVersion   string   `mapstructure:"min_version"`
	Hosts        []string `mapstructure:"hosts"`
}

type HistoryConfig struct {
	Sinks  []string `mapstructure:"sinks"`
	Buffer int      `mapstructure:"buffer"`
}

// New returns a viper instance with defaults and PROCSCHED_* env overrides.
// Callers may bind cobra flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("scheduler.capacity", scheduler.DefaultCapacity)
	v.SetDefault("scheduler.mode", "fcfs")
	v.SetDefault("scheduler.quantum", time.Second)
	v.SetDefault("scheduler.kill_timeout", scheduler.DefaultKillTimeout)

	v.SetDefault("worker.name", "task")
	v.SetDefault("worker.command", process.DefaultCommand)
	v.SetDefault("worker.work_dir", "")
	v.SetDefault("worker.env", []string{})
	v.SetDefault("worker.env_files", []string{})
	v.SetDefault("worker.use_os_env", true)
	v.SetDefault("worker.log.dir", "")
	v.SetDefault("worker.log.stdout", "")
	v.SetDefault("worker.log.stderr", "")
	v.SetDefault("worker.log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("worker.log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("worker.log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("worker.log.compress", false)

	d := logger.DefaultConfig().Slog
	v.SetDefault("log.level", string(d.Level))
	v.SetDefault("log.format", string(d.Format))
	v.SetDefault("log.color", d.Color)
	v.SetDefault("log.timestamps", d.TimeStamps)
	v.SetDefault("log.source", d.Source)
	v.SetDefault("log.path", "")

	v.SetDefault("shell.prompt", DefaultPrompt)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("server.listen", "")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "1.3")
	v.SetDefault("server.tls.hosts", []string{"localhost", "127.0.0.1"})
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("history.buffer", 256)
	return v
}

// Load reads path (if non-empty) into v, decodes and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile is Load with a fresh viper instance.
func LoadFile(path string) (*Config, error) { return Load(New(), path) }

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.capacity must be > 0, got %d", c.Scheduler.Capacity))
	}
	mode, err := scheduler.ParseMode(c.Scheduler.Mode)
	if err != nil {
		errs = append(errs, fmt.Errorf("scheduler.mode: %w", err))
	}
	if mode == scheduler.ModeRoundRobin && c.Scheduler.Quantum <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.quantum: %w", scheduler.ErrInvalidQuantum))
	}
	if c.Scheduler.KillTimeout < 0 {
		errs = append(errs, errors.New("scheduler.kill_timeout must not be negative"))
	}
	if strings.TrimSpace(c.Worker.Command) == "" {
		errs = append(errs, errors.New("worker.command is required"))
	}
	switch c.Log.Format {
	case logger.FormatText, logger.FormatJSON, "":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if t := c.Server.TLS; t.Enabled && (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
		errs = append(errs, errors.New("server.tls requires cert_file and key_file, or dir"))
	}
	for i, dsn := range c.History.Sinks {
		if strings.TrimSpace(dsn) == "" {
			errs = append(errs, fmt.Errorf("history.sinks[%d] is empty", i))
		}
	}
	return errors.Join(errs...)
}

// SchedulerMode is the parsed scheduler.mode; Validate guarantees it parses.
func (c *Config) SchedulerMode() scheduler.Mode {
	m, _ := scheduler.ParseMode(c.Scheduler.Mode)
	return m
}

// LoggerConfig combines the controller log with worker output files.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Slog: c.Log, File: c.Worker.Log}
}

// WorkerSpec is the launch template shared by all workers.
func (c *Config) WorkerSpec() process.Spec {
	return process.Spec{
		Name:    c.Worker.Name,
		Command: c.Worker.Command,
		WorkDir: c.Worker.WorkDir,
		Log:     logger.Config{File: c.Worker.Log},
	}
}

// WorkerEnv composes the worker environment. Precedence, lowest first: OS env
// (when use_os_env), env_files in order, then the env list.
func (c *Config) WorkerEnv() (*env.Env, error) {
	e := env.New(c.Worker.UseOSEnv, nil)
	for _, p := range c.Worker.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		e.SetPairs(pairs)
	}
	e.SetPairs(c.Worker.Env)
	return e, nil
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in file order.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		if k == "" {
			continue
		}
		v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		out = append(out, k+"="+v)
	}
	return out, nil
}
