package commands

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the CLI's resolved configuration. Precedence: flags, then
// environment (a .env file in the working directory is loaded first), then
// ~/.agentmux.yaml.
type Config struct {
	Bin      string `yaml:"bin"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	LogLevel string `yaml:"logLevel"`
}

// LoadConfig resolves the CLI configuration for the current invocation.
func LoadConfig() (*Config, error) {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	cfg := &Config{LogLevel: "info"}
	if err := loadConfigFile(cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("AGENTMUX_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("AGENTMUX_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("AGENTMUX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if flagBin != "" {
		cfg.Bin = flagBin
	}
	if flagURL != "" {
		cfg.URL = flagURL
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func loadConfigFile(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(home, ".agentmux.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
