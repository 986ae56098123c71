package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/daybook/internal/cli/client"
	"github.com/zfogg/daybook/internal/cli/config"
	"github.com/zfogg/daybook/internal/cli/logger"
	"github.com/zfogg/daybook/internal/cli/output"
)

// app is the state shared by every command of one invocation
type app struct {
	out     io.Writer
	in      io.Reader
	printer *output.Printer
	client  *client.Client
	tokens  client.TokenStore
}

// NewRootCmd builds the command tree; out and in default to the terminal
func NewRootCmd(out io.Writer, in io.Reader) *cobra.Command {
	if in == nil {
		in = os.Stdin
	}
	a := &app{out: out, in: in, tokens: client.FileStore{}}

	var (
		verbose    bool
		configPath string
		outputFmt  string
		apiURL     string
	)

	root := &cobra.Command{
		Use:           "daybook",
		Short:         "Daybook CLI",
		Long:          "Daybook from the terminal: today's dashboard, progress items, commitments and the timeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configPath); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(verbose)

			if apiURL != "" {
				config.Set("api.base_url", apiURL)
			}
			if cmd.Flags().Changed("output") {
				config.Set("output.format", outputFmt)
			}
			format, err := output.ParseFormat(config.GetString("output.format"))
			if err != nil {
				return err
			}

			a.printer = output.New(a.out, format)
			a.client = client.New(config.GetString("api.base_url"), config.Timeout(), a.tokens)
			logger.Debug("CLI initialized", "api", config.GetString("api.base_url"), "output", format)
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.config/daybook/config.toml)")
	root.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "Output format (text, json)")
	root.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (overrides api.base_url)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newDashboardCmd(a),
		newItemsCmd(a),
		newCommitmentsCmd(a),
		newEventsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	root := NewRootCmd(nil, nil)
	if err := root.Execute(); err != nil {
		output.New(os.Stderr, output.FormatText).Error("%v", err)
		os.Exit(1)
	}
}
