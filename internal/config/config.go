package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTargetURL   = "http://192.168.218.131:8000/"
	DefaultUsername    = "admin"
	DefaultPassword    = "admin"
	DefaultSlots       = 5
	DefaultMaxSteps    = 50
	DefaultReportPath  = "parallel_test_report.json"
	DefaultExplorePath = "parallel_test_report_v2.json"
	DefaultDBPath      = "data/webswarm.db"
	DefaultAddr        = ":8092"
)

type Config struct {
	Target Target         `toml:"target"`
	Agents Agents         `toml:"agents"`
	LLM    LLM            `toml:"llm"`
	Report Report         `toml:"report"`
	Server Server         `toml:"server"`
	Raw    map[string]any `toml:"-"`
	Path   string         `toml:"-"`
}

type Target struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type Agents struct {
	Slots             int    `toml:"slots"`
	Headless          bool   `toml:"headless"`
	FlashMode         *bool  `toml:"flash_mode"`
	MaxSteps          int    `toml:"max_steps"`
	DiscoveryMaxSteps int    `toml:"discovery_max_steps"`
	ProfileRoot       string `toml:"profile_root"`
	EphemeralProfiles bool   `toml:"ephemeral_profiles"`
}

type LLM struct {
	Endpoint          string  `toml:"endpoint"`
	Model             string  `toml:"model"`
	APIKey            string  `toml:"api_key"`
	ReasoningEffort   string  `toml:"reasoning_effort"`
	TimeoutMS         int     `toml:"timeout_ms"`
	Retries           *int    `toml:"retries"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type Report struct {
	Path        string `toml:"path"`
	ExplorePath string `toml:"explore_path"`
	DBPath      string `toml:"db_path"`
}

type Server struct {
	Addr string `toml:"addr"`
}

// Load reads path, or the default location when path is empty. A missing
// default file yields the built-in defaults; a missing explicit file is an error.
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	resolved := path
	if !explicit {
		resolved = defaultConfigPath()
	}
	resolved, err := expandHome(resolved)
	if err != nil {
		return Config{}, err
	}
	resolved = filepath.Clean(resolved)

	var cfg Config
	bytes, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(bytes), &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
		var raw map[string]any
		if _, err := toml.Decode(string(bytes), &raw); err != nil {
			return Config{}, fmt.Errorf("decode raw config: %w", err)
		}
		cfg.Raw = raw
		cfg.Path = resolved
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg.Raw = map[string]any{}
	default:
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Target.URL, "WEBSWARM_TARGET_URL")
	set(&c.Target.Username, "WEBSWARM_USERNAME")
	set(&c.Target.Password, "WEBSWARM_PASSWORD")
	set(&c.LLM.Endpoint, "WEBSWARM_LLM_ENDPOINT")
	set(&c.LLM.Model, "WEBSWARM_LLM_MODEL")
	set(&c.LLM.APIKey, "OPENAI_API_KEY")
}

func (c *Config) applyDefaults() {
	c.Target.URL = firstNonEmpty(c.Target.URL, DefaultTargetURL)
	c.Target.Username = firstNonEmpty(c.Target.Username, DefaultUsername)
	c.Target.Password = firstNonEmpty(c.Target.Password, DefaultPassword)
	if c.Agents.Slots <= 0 {
		c.Agents.Slots = DefaultSlots
	}
	if c.Agents.FlashMode == nil {
		v := true
		c.Agents.FlashMode = &v
	}
	if c.Agents.MaxSteps <= 0 {
		c.Agents.MaxSteps = DefaultMaxSteps
	}
	if c.Agents.DiscoveryMaxSteps <= 0 {
		c.Agents.DiscoveryMaxSteps = 30
	}
	c.Agents.ProfileRoot = firstNonEmpty(c.Agents.ProfileRoot, ".")
	c.LLM.Endpoint = firstNonEmpty(c.LLM.Endpoint, "https://api.openai.com/v1/responses")
	c.LLM.Model = firstNonEmpty(c.LLM.Model, "gpt-4.1-mini")
	c.Report.Path = firstNonEmpty(c.Report.Path, DefaultReportPath)
	c.Report.ExplorePath = firstNonEmpty(c.Report.ExplorePath, DefaultExplorePath)
	c.Report.DBPath = firstNonEmpty(c.Report.DBPath, DefaultDBPath)
	c.Server.Addr = firstNonEmpty(c.Server.Addr, DefaultAddr)
}

func (c Config) FlashMode() bool {
	return c.Agents.FlashMode == nil || *c.Agents.FlashMode
}

// Redacted returns the raw document with credentials masked.
func (c Config) Redacted() map[string]any {
	return redact(c.Raw)
}

var secretKeys = map[string]struct{}{
	"password": {},
	"api_key":  {},
}

func redact(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if _, ok := secretKeys[k]; ok {
			out[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(p, "~")
	trimmed = strings.TrimPrefix(trimmed, "\\")
	trimmed = strings.TrimPrefix(trimmed, "/")
	return filepath.Join(home, trimmed), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".webswarm/config.toml"
	}
	return filepath.Join(home, ".webswarm", "config.toml")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
