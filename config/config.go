package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// BridgeConfig is the ambient configuration for the cmd/nativebridged
// IPC entrypoint: where to keep persisted state, how to log, and a list of
// default relays. DefaultRelays is only parsed from the environment;
// cmd/nativebridged does not connect to any relay on startup.
type BridgeConfig struct {
	DataDir        string   `env:"OBSCUR_DATA_DIR"`
	LogLevel       string   `env:"OBSCUR_LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"OBSCUR_LOG_FORMAT" envDefault:"text"`
	UpstreamUIURL  string   `env:"OBSCUR_UPSTREAM_UI_URL"`
	DefaultRelays  []string `env:"OBSCUR_DEFAULT_RELAYS" envSeparator:";"`
}

const (
	appService        = "app.obscur.desktop"
	torSettingsFile    = "tor_settings.json"
	defaultProxyURL    = "socks5://127.0.0.1:9050"
)

// AppService is the OS credential store service name used by
// internal/secretstore.
func AppService() string { return appService }

// TorSettingsPath returns the path to the persisted Tor settings file
// under the given app data directory.
func TorSettingsPath(dataDir string) string {
	return filepath.Join(dataDir, torSettingsFile)
}

// DefaultProxyURL is the default SOCKS5 proxy URL.
func DefaultProxyURL() string { return defaultProxyURL }

// ResolveDataDir returns cfg.DataDir if set, otherwise a platform app
// data directory under the user's config dir.
func ResolveDataDir(cfg *BridgeConfig) (string, error) {
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "obscur"), nil
}

// load the and marshal Configuration from .env file from the UserHomeDir
// if this file was not found, fallback to the os environment variables
func LoadConfig[T any]() (*T, error) {
	// load current users home directory as a string
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Error("error loading home directory", err)
	}
	// check if .env file exist in the home directory
	// if it does, load the configuration from it
	// else fallback to the os environment variables
	if _, err := os.Stat(homeDir + "/.env"); err == nil {
		// load configuration from .env file
		return loadFromEnv[T](homeDir + "/.env")
	} else if _, err := os.Stat(".env"); err == nil {
		// load configuration from .env file in current directory
		return loadFromEnv[T](".env")
	} else {
		// load configuration from os environment variables
		return loadFromEnv[T]("")
	}
}

// loadFromEnv loads the configuration from the specified .env file path.
// If the path is empty, it does not load any configuration.
// It returns an error if there was a problem loading the configuration.
func loadFromEnv[T any](path string) (*T, error) {
	// load configuration from .env file
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg, err := env.ParseAs[T]()
	if err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	return &cfg, nil
}
