// Package config loads the orchestrator configuration. A missing file
// yields working local-first defaults; OMEGA_* environment variables
// override individual fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all omega configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Policy  PolicyConfig  `yaml:"policy"`
	Skills  SkillsConfig  `yaml:"skills"`
	Server  ServerConfig  `yaml:"server"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig selects the language-model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // ollama, gemini
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// PolicyConfig locates the Risk Governor's policy file.
type PolicyConfig struct {
	Path string `yaml:"path"`
}

// SkillsConfig locates the sandboxed skill modules.
type SkillsConfig struct {
	Dir     string `yaml:"dir"`
	Timeout string `yaml:"timeout"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// JobsConfig locates the recurring-mission manifest.
type JobsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log verbosity and the audit trail.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Audit string `yaml:"audit"` // JSONL audit trail path; empty disables
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "qwen2.5-coder:1.5b",
			Timeout:  "120s",
		},
		Policy:  PolicyConfig{Path: "law.json"},
		Skills:  SkillsConfig{Dir: "skills", Timeout: "10s"},
		Server:  ServerConfig{Listen: ":8080"},
		Jobs:    JobsConfig{Path: "jobs.yaml"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file is absent. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LLMTimeout parses the configured LLM timeout, defaulting to two minutes.
func (c Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// SkillTimeout parses the configured per-invocation skill timeout.
func (c Config) SkillTimeout() time.Duration {
	return parseDuration(c.Skills.Timeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OMEGA_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("OMEGA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OMEGA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OMEGA_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OMEGA_POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
	if v := os.Getenv("OMEGA_SKILLS_DIR"); v != "" {
		cfg.Skills.Dir = v
	}
	if v := os.Getenv("OMEGA_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
}
