package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const defaultPort = 3100

// Config represents application configuration.
type Config struct {
	// Port the control surface listens on (loopback only).
	Port int

	// APIToken is the static bearer token. Empty disables authentication.
	APIToken string

	// BaseDir holds hook-rules.json, auth/, events/, logs/ and monitors.json.
	BaseDir string

	// Telegram credentials are reserved: delivery happens in the hook sink,
	// not in the bridge.
	Telegram TelegramConfig

	// Rules is the routing configuration loaded from hook-rules.json.
	Rules *Rules
}

// TelegramConfig contains the reserved Telegram credentials.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// Load reads configuration from environment variables and loads the routing
// rules file. A missing or unparseable rules file is an error; the caller is
// expected to treat it as fatal.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     defaultPort,
		APIToken: os.Getenv("WA_API_TOKEN"),
		BaseDir:  os.Getenv("WA_BRIDGE_DIR"),
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TG_BOT_TOKEN"),
			ChatID:   os.Getenv("TG_CHAT_ID"),
		},
	}

	if val := os.Getenv("PORT"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", val, err)
		}
		cfg.Port = parsed
	}

	if cfg.BaseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.BaseDir = cwd
	}

	rules, err := LoadRules(cfg.RulesFile())
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules

	return cfg, nil
}

// RulesFile returns the path of the routing configuration file.
func (c *Config) RulesFile() string { return filepath.Join(c.BaseDir, "hook-rules.json") }

// EventsDir returns the directory holding the pull queue.
func (c *Config) EventsDir() string { return filepath.Join(c.BaseDir, "events") }

// LogsDir returns the directory for per-monitor event trails.
func (c *Config) LogsDir() string { return filepath.Join(c.BaseDir, "logs") }

// MonitorsFile returns the path of the monitor registry file.
func (c *Config) MonitorsFile() string { return filepath.Join(c.BaseDir, "monitors.json") }

// AuthDir returns the directory owned by the transport for session state.
func (c *Config) AuthDir() string { return filepath.Join(c.BaseDir, "auth") }
