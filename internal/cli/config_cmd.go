package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/arbiter/internal/config"
)

// errKeyNotFound is returned when a config path has no value.
var errKeyNotFound = errors.New("key not found")

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file by dotted key path",
		Long: "Keys are dotted paths into the YAML file, for example dialog.replyDelayMs.\n" +
			"Edits that would leave the file invalid are rejected and nothing is written.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value stored under a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return configGet(cmd.OutOrStdout(), paths.Config, args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a value under a key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value := parseValue(args[1])
				if err := configSet(paths.Config, args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a key, pruning sections it leaves empty",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := configUnset(paths.Config, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
	)
	return cmd
}

func configGet(w io.Writer, file, key string) error {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(file)
	if err != nil {
		return err
	}
	val, ok := config.GetValueAtPath(raw, path)
	if !ok {
		return fmt.Errorf("%s: %w", key, errKeyNotFound)
	}

	switch val.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, val)
		return err
	}
}

func configSet(file, key string, value any) error {
	return editConfigFile(file, key, func(raw map[string]any, path []string) error {
		config.SetValueAtPath(raw, path, value)
		return nil
	})
}

func configUnset(file, key string) error {
	return editConfigFile(file, key, func(raw map[string]any, path []string) error {
		if !config.UnsetValueAtPath(raw, path) {
			return fmt.Errorf("%s: %w", key, errKeyNotFound)
		}
		return nil
	})
}

// editConfigFile applies edit to the file's raw tree and writes the result
// only when it still validates.
func editConfigFile(file, key string, edit func(raw map[string]any, path []string) error) error {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(file)
	if err != nil {
		return err
	}
	next, _, err := config.ApplyEdit(raw, func(m map[string]any) error {
		return edit(m, path)
	})
	if err != nil {
		return err
	}
	return config.SaveRaw(file, next)
}

// parseValue types a command-line value the way YAML would: booleans,
// integers and floats are stored as such, anything else as a string.
func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}
