// Command relayprobe is a small standalone diagnostic: it runs the same
// staged DNS/TCP/WebSocket probe the bridge exposes as probe_relay
// against one or more relay URLs and prints the report. Useful for
// checking a relay (or a Tor/SOCKS5 proxy path to one) without going
// through the full IPC surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/obscurnet/nativebridge/internal/netrt"
)

func main() {
	var useTor bool
	var proxyURL string

	rootCmd := &cobra.Command{
		Use:   "relayprobe <relay-url> [more-urls...]",
		Short: "probe relay reachability over DNS/TCP/WebSocket",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runProbes(args, useTor, proxyURL)
		},
	}
	rootCmd.Flags().BoolVar(&useTor, "tor", false, "route the probe through a SOCKS5 proxy")
	rootCmd.Flags().StringVar(&proxyURL, "proxy-url", "socks5://127.0.0.1:9050", "SOCKS5 proxy URL, when --tor is set")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runProbes(urls []string, useTor bool, proxyURL string) {
	rt := netrt.New()
	rt.Set(useTor, proxyURL)

	for _, url := range urls {
		attemptID := uuid.New().String()
		log := slog.With("attempt", attemptID, "relay_url", url)
		log.Info("probing")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		report := rt.Probe(ctx, url)
		cancel()

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Error("failed to encode report", "error", err)
			continue
		}
		fmt.Println(string(out))
	}
}
