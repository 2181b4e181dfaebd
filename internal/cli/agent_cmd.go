package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/arbiter/internal/catalog"
	"github.com/soyeahso/arbiter/internal/command"
	"github.com/soyeahso/arbiter/internal/config"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect agent definitions offline",
	}

	cmd.AddCommand(newAgentModelsCmd())
	cmd.AddCommand(newAgentParseCmd())
	return cmd
}

func newAgentModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the agent wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}
			printModels(cmd.OutOrStdout(), buildCatalog(cfg.Dialog))
			return nil
		},
	}
}

func printModels(w io.Writer, cat *catalog.Catalog) {
	for _, m := range cat.Models() {
		def := ""
		if m.ID == cat.DefaultModel() {
			def = " (default)"
		}
		fmt.Fprintf(w, "  %-20s %s%s\n", m.Label, m.ID, def)
	}
}

func newAgentParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text>",
		Short: "Show how a chat line is interpreted by the /agents parser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}
			parser := command.NewParser(buildCatalog(cfg.Dialog).DefaultModel())
			fmt.Fprintln(cmd.OutOrStdout(), describeCommand(parser.Parse(strings.Join(args, " "))))
			return nil
		},
	}
}

// describeCommand renders a parsed command for humans.
func describeCommand(cmd command.Command) string {
	switch c := cmd.(type) {
	case nil:
		return "plain chat (acknowledged after the reply delay)"
	case command.StartWizard:
		return "start the agent wizard"
	case command.CreateAgent:
		var b strings.Builder
		fmt.Fprintf(&b, "create agent\n  name:        %s\n  model:       %s", c.Name, c.Model)
		if c.Description != "" {
			fmt.Fprintf(&b, "\n  description: %s", c.Description)
		}
		if c.SystemPrompt != "" {
			fmt.Fprintf(&b, "\n  prompt:      %s", c.SystemPrompt)
		}
		return b.String()
	case command.ListAgents:
		return "list agents"
	case command.DeleteAgent:
		return fmt.Sprintf("delete agent %q", c.Name)
	case command.Usage:
		return "usage error: " + c.Message
	case command.Help:
		return "show help"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}
