package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSystemsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List the systems this binary can bridge",
		Long: `List the linked systems, whether the rules file configures them, and which
credential variables are set for them. Variable values are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystems(cmd, root)
		},
	}
}

func runSystems(cmd *cobra.Command, root *rootOptions) error {
	s, err := root.open(cmd, "")
	if err != nil {
		return err
	}
	defer s.Close()

	configured := s.book.Systems()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYSTEM\tRULES\tCREDENTIALS")
	for _, system := range knownSystems() {
		source := "defaults"
		if slices.Contains(configured, system) {
			source = "configured"
		}

		var set []string
		for _, name := range s.book.For(system).CredentialEnv() {
			if os.Getenv(name) != "" {
				set = append(set, name)
			}
		}
		creds := "none"
		if len(set) > 0 {
			creds = strings.Join(set, ",")
		}

		marker := ""
		if system == s.cfg.System {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\n", system, marker, source, creds)
	}
	return w.Flush()
}
