// Package cli implements the arbiter command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/logging"
)

// Process-wide state filled in before any subcommand runs.
var (
	cfgFile  string
	logLevel string

	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Define agents by chatting with a coordinator",
		Long: "Arbiter is a chat front door for defining agents and watching delegated work.\n" +
			"Run `arbiter chat` for a local session or `arbiter gateway run` to serve IRC and WebSocket clients.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $ARBITER_HOME/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(
		newChatCmd(),
		newGatewayCmd(),
		newAgentCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

// setup resolves paths and the bootstrap logger used until a command opens
// its configured one.
func setup() error {
	p, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if cfgFile != "" {
		p.Config = cfgFile
	}
	paths = p

	level := logLevel
	if level == "" {
		level = "info"
	}
	log = logging.New(nil, level).Sub("cli")
	return nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
