package proxysup

import (
	"encoding/json"
	"fmt"
	"os"
)

// TorSettings is persisted verbatim as tor_settings.json under the app
// data directory.
type TorSettings struct {
	Enabled  bool   `json:"enable_tor"`
	ProxyURL string `json:"proxy_url"`
}

// LoadSettings reads TorSettings from path, returning the default
// (disabled, socks5://127.0.0.1:9050) if the file does not exist.
func LoadSettings(path string) (TorSettings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return TorSettings{Enabled: false, ProxyURL: "socks5://127.0.0.1:9050"}, nil
	}
	if err != nil {
		return TorSettings{}, fmt.Errorf("proxysup: read settings: %w", err)
	}
	var settings TorSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return TorSettings{}, fmt.Errorf("proxysup: parse settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists settings to path and propagates them to rt.
func (s *Supervisor) SaveSettings(path string, enabled bool, proxyURL string) error {
	settings := TorSettings{Enabled: enabled, ProxyURL: proxyURL}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("proxysup: marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("proxysup: write settings: %w", err)
	}
	s.rt.Set(enabled, proxyURL)
	return nil
}

// Bootstrap applies persisted settings to rt and auto-starts the
// supervisor if settings.Enabled is true.
func (s *Supervisor) Bootstrap(settings TorSettings) error {
	s.rt.Set(settings.Enabled, settings.ProxyURL)
	if settings.Enabled {
		return s.Start()
	}
	return nil
}
