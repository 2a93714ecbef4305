package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// rootOptions holds the global flags
type rootOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sdkbridge",
		Short: "sdkbridge - expose SDK operations as agent tools",
		Long: `sdkbridge walks a client library by reflection, selects the operations worth
exposing, and publishes them as tools with JSON schemas. Tools are served over
MCP on stdio or HTTP and executed against the live SDK.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.sdkbridge/sdkbridge.json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newInitCmd(opts),
		newDiscoverCmd(opts),
		newCallCmd(opts),
		newServeCmd(opts),
		newSystemsCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the command tree. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// GetRootCmd returns a fresh root command for testing
func GetRootCmd() *cobra.Command {
	return NewRootCmd()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sdkbridge version %s\n", version)
		},
	}
}
