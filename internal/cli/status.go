package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/gateway"
	"github.com/soyeahso/arbiter/internal/version"
)

const probeTimeout = 2 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Arbiter status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Arbiter %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(w, "Config:   %s\n", paths.Config)
			fmt.Fprintf(w, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(w)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(w, "Config:   error loading: %v\n", err)
				return nil
			}
			printSummary(w, cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()
			if health, err := probeGateway(ctx, cfg.Gateway); err != nil {
				fmt.Fprintln(w, "Running:  no")
			} else {
				fmt.Fprintf(w, "Running:  yes (status=%s)\n", health.Status)
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}

	return cmd
}

func printSummary(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "Gateway:  port=%d bind=%s auth=%s tls=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)
	fmt.Fprintf(w, "Dialog:   replyDelay=%s models=%d\n",
		cfg.Dialog.ReplyDelay(), len(buildCatalog(cfg.Dialog).Models()))
	fmt.Fprintf(w, "Registry: store=%s\n", cfg.Registry.Store)

	if irc := cfg.Channels.IRC; irc != nil {
		fmt.Fprintf(w, "IRC:      server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(w, "IRC:      (not configured)")
	}

	hooks := 0
	for _, entries := range cfg.Hooks.ByEvent() {
		hooks += len(entries)
	}
	fmt.Fprintf(w, "Hooks:    %d\n", hooks)
}

// probeGateway asks a local gateway for its health.
func probeGateway(ctx context.Context, gw config.GatewayConfig) (gateway.HealthResponse, error) {
	scheme := "http"
	if gw.TLS.Enabled {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/health", scheme, net.JoinHostPort("127.0.0.1", strconv.Itoa(gw.Port)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gateway.HealthResponse{}, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return gateway.HealthResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gateway.HealthResponse{}, fmt.Errorf("health returned %s", resp.Status)
	}

	var health gateway.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return gateway.HealthResponse{}, fmt.Errorf("decoding health: %w", err)
	}
	return health, nil
}
