// Command nativebridged exposes the obscur native backend's command
// surface over line-delimited JSON on stdin/stdout — the Go-native
// analogue of the Tauri invoke/emit boundary the original desktop shell
// used.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obscurnet/nativebridge/config"
	"github.com/obscurnet/nativebridge/internal/bridge"
	"github.com/obscurnet/nativebridge/internal/proxysup"
	"github.com/obscurnet/nativebridge/internal/secretstore"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nativebridged",
		Short: "obscur native backend IPC bridge",
		Run:   run,
	}
	rootCmd.Flags().String("data-dir", "", "app data directory (defaults to the OS user config dir)")
	rootCmd.Flags().String("log-level", "info", "log level: debug|info|warn|error")
	rootCmd.Flags().String("log-format", "text", "log format: text|json")
	rootCmd.Flags().String("proxy-binary", "", "path to the bundled SOCKS5 proxy binary")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) {
	cfg, err := config.LoadConfig[config.BridgeConfig]()
	if err != nil {
		panic(err)
	}
	applyFlagOverrides(cmd, cfg)

	dataDir, err := config.ResolveDataDir(cfg)
	if err != nil {
		panic(fmt.Errorf("resolve data dir: %w", err))
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		panic(fmt.Errorf("create data dir: %w", err))
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting nativebridged", "data_dir", dataDir)

	proxyBinary, _ := cmd.Flags().GetString("proxy-binary")
	store := secretstore.New(config.AppService())
	surface := bridge.New(log, store, proxyBinary, nil)

	settingsPath := config.TorSettingsPath(dataDir)
	settings, err := proxysup.LoadSettings(settingsPath)
	if err != nil {
		log.Warn("failed to load tor settings, using defaults", "error", err)
	}
	if surfaceErr := surface.SaveTorSettings(settingsPath, settings.Enabled, settings.ProxyURL); surfaceErr != nil {
		log.Warn("failed to apply persisted tor settings", "error", surfaceErr)
	}

	runIPC(log, surface, dataDir)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.BridgeConfig) {
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
