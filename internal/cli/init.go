package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/sdkbridge/internal/config"
)

type initOptions struct {
	system string
	rules  string
	force  bool
}

func newInitCmd(root *rootOptions) *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with default settings for one system.
Edit the file afterwards to tune the tool policy, HTTP transport and logging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.system, "system", "", "system id to serve (required)")
	cmd.Flags().StringVar(&opts.rules, "rules", "", "rules file, relative to the config file")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing config file")
	_ = cmd.MarkFlagRequired("system")

	return cmd
}

func runInit(cmd *cobra.Command, root *rootOptions, opts *initOptions) error {
	loader := config.NewLoader(root.cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !opts.force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.System = opts.system
	cfg.RulesFile = opts.rules

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, "You can now serve the tools with: sdkbridge serve")

	return nil
}
