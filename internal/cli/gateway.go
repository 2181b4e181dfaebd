package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/arbiter/internal/channel"
	"github.com/soyeahso/arbiter/internal/channel/irc"
	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/gateway"
	"github.com/soyeahso/arbiter/internal/routing"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the Arbiter gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port    int
		bind    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			glog, closeLog, err := openLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog.Close()

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := newCore(ctx, cfg, glog)
			if err != nil {
				return err
			}
			defer c.close()

			// Raw config backs config.get / config.set over RPC.
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				glog.Warn().Err(err).Msg("raw config unavailable, starting empty")
				raw = make(map[string]any)
			}

			channels := channel.NewRegistry(glog)
			mention := ""
			if cfg.Channels.IRC != nil {
				channels.Register(irc.New(*cfg.Channels.IRC, glog))
				mention = cfg.Channels.IRC.Mention
				if mention == "" {
					mention = cfg.Channels.IRC.Nick
				}
			}
			router := routing.NewRouter(c.ctrl, channels, mention, glog)
			router.Wire()

			srv := gateway.New(cfg, c.ctrl, glog,
				gateway.WithConfigRaw(raw),
				gateway.WithConfigFile(paths.Config),
				gateway.WithChannels(channels),
				gateway.WithHooks(c.hooks),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return c.sched.Run(gctx) })
			g.Go(func() error { return srv.Start(gctx) })
			if channels.Count() > 0 {
				g.Go(func() error { return channels.Run(gctx) })
				g.Go(func() error { return router.Run(gctx) })
				glog.Info().Int("channels", channels.Count()).Msg("message routing active")
			}
			if !noWatch {
				g.Go(func() error {
					err := config.Watch(gctx, paths.Config, 0, glog, func(next config.Config) {
						if err := c.ctrl.Reconfigure(gctx, dialogSettings(next.Dialog)); err != nil {
							glog.Warn().Err(err).Msg("reconfigure skipped")
						}
					})
					if err != nil {
						// Hot reload is optional; keep serving without it.
						glog.Warn().Err(err).Msg("config watcher disabled")
					}
					return nil
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file when it changes")

	return cmd
}
