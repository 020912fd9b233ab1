// Package config assembles server configuration from the environment, with
// an optional YAML file for the execution runtime section. Environment
// variables win over file values; defaults mirror the inherited design
// (5000 ms timeout, one worker, javascript/python/shell).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Mode       string `yaml:"mode"` // "tcp" or "uds"
	Port       string `yaml:"port"`
	SocketPath string `yaml:"socket_path"`
}

type AuthConfig struct {
	Secret string `yaml:"secret"`
	Local  bool   `yaml:"local"` // skip JWT verification, inject the dummy user
}

type DBConfig struct {
	Path string `yaml:"path"`
}

// LanguageConfig maps an allow-listed language name onto the interpreter
// command that runs inline code.
type LanguageConfig struct {
	Name string   `yaml:"name"`
	Cmd  string   `yaml:"cmd"`
	Args []string `yaml:"args"` // the code string is appended as the last argument
}

type DockerConfig struct {
	Image string `yaml:"image"`
	Pool  int    `yaml:"pool"`
}

type ExecConfig struct {
	Runner    string           `yaml:"runner"` // "local" or "docker"
	Workers   int              `yaml:"workers"`
	QueueSize int              `yaml:"queue_size"`
	TimeoutMS int64            `yaml:"timeout_ms"`
	Languages []LanguageConfig `yaml:"languages"`
	Docker    DockerConfig     `yaml:"docker"`
}

type LockConfig struct {
	TTLMS int64 `yaml:"ttl_ms"` // 0 = locks never expire
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	DB     DBConfig     `yaml:"db"`
	Exec   ExecConfig   `yaml:"exec"`
	Lock   LockConfig   `yaml:"lock"`
}

func (c ExecConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLMS) * time.Millisecond
}

// DefaultLanguages is the inherited allow-list: inline-code flags against
// the host interpreters.
func DefaultLanguages() []LanguageConfig {
	return []LanguageConfig{
		{Name: "javascript", Cmd: "node", Args: []string{"-e"}},
		{Name: "python", Cmd: "python3", Args: []string{"-c"}},
		{Name: "shell", Cmd: "sh", Args: []string{"-c"}},
	}
}

func Default() Config {
	return Config{
		Server: ServerConfig{Mode: "tcp", Port: "8080"},
		DB:     DBConfig{Path: "pairbench.db"},
		Exec: ExecConfig{
			Runner:    "local",
			Workers:   1,
			QueueSize: 256,
			TimeoutMS: 5000,
			Languages: DefaultLanguages(),
			Docker:    DockerConfig{Image: "pairbench-runner", Pool: 1},
		},
	}
}

// Load builds the config: defaults, then the YAML file named by
// PAIRBENCH_CONFIG (if any), then environment overrides. In dev a .env file
// is folded into the environment first.
func Load() (Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg := Default()

	if path := os.Getenv("PAIRBENCH_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SERVER_SOCKET_PATH"); v != "" {
		cfg.Server.SocketPath = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("AUTH_LOCAL"); v != "" {
		cfg.Auth.Local, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("EXEC_RUNNER"); v != "" {
		cfg.Exec.Runner = v
	}
	if v := os.Getenv("EXEC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.Workers = n
		}
	}
	if v := os.Getenv("EXEC_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.QueueSize = n
		}
	}
	if v := os.Getenv("EXEC_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Exec.TimeoutMS = n
		}
	}
	if v := os.Getenv("LOCK_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Lock.TTLMS = n
		}
	}
}

func (c Config) Validate() error {
	if c.Exec.Workers < 1 {
		return fmt.Errorf("config: exec.workers must be >= 1, got %d", c.Exec.Workers)
	}
	if c.Exec.QueueSize < 1 {
		return fmt.Errorf("config: exec.queue_size must be >= 1, got %d", c.Exec.QueueSize)
	}
	if c.Exec.TimeoutMS < 1 {
		return fmt.Errorf("config: exec.timeout_ms must be >= 1, got %d", c.Exec.TimeoutMS)
	}
	if len(c.Exec.Languages) == 0 {
		return fmt.Errorf("config: exec.languages must not be empty")
	}
	switch c.Exec.Runner {
	case "local", "docker":
	default:
		return fmt.Errorf("config: unknown exec.runner %q", c.Exec.Runner)
	}
	if !c.Auth.Local && c.Auth.Secret == "" {
		return fmt.Errorf("config: auth.secret is required unless auth.local is set")
	}
	return nil
}
