package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/zfogg/daybook/internal/cli/config"
	"github.com/zfogg/daybook/internal/cli/output"
)

// settable keys and their validation
var configKeys = map[string]func(string) error{
	"api.base_url": func(v string) error {
		if v == "" {
			return fmt.Errorf("api.base_url cannot be empty")
		}
		return nil
	},
	"api.timeout": func(v string) error {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("api.timeout must be a positive number of seconds")
		}
		return nil
	},
	"output.format": func(v string) error {
		_, err := output.ParseFormat(v)
		return err
	},
	"log.file": func(string) error { return nil },
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change CLI settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Show one setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]interface{}{}
			if len(args) == 1 {
				if _, ok := configKeys[args[0]]; !ok {
					return fmt.Errorf("unknown setting %q", args[0])
				}
				values[args[0]] = config.GetString(args[0])
			} else {
				for k := range configKeys {
					values[k] = config.GetString(k)
				}
			}
			if a.printer.JSON() {
				return a.printer.Data(values)
			}
			for _, k := range sortedKeys(values) {
				a.printer.Line("%s = %v", k, values[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting in config.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			validate, ok := configKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			if err := validate(args[1]); err != nil {
				return err
			}
			if err := config.SetString(args[0], args[1]); err != nil {
				return fmt.Errorf("write %s: %w", config.GetConfigFile(), err)
			}
			a.printer.Success("%s = %s", args[0], args[1])
			return nil
		},
	})
	return cmd
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
