package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/toolexecutor"
)

type callOptions struct {
	system string
	args   string
	yes    bool
}

func newCallCmd(root *rootOptions) *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Execute one tool",
		Long: `Discover the system, then execute a tool by name with JSON arguments and
print the result envelope. Tools flagged for confirmation need --yes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.system, "system", "", "system id (default from config)")
	cmd.Flags().StringVar(&opts.args, "args", "{}", "tool arguments as a JSON object")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "confirm tools that require confirmation")

	return cmd
}

func runCall(cmd *cobra.Command, root *rootOptions, opts *callOptions, toolName string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(opts.args), &params); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}

	s, err := root.open(cmd, opts.system)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := tracing.NewRequestContext(cmd.Context())
	ts, err := s.build(ctx, s.cfg.System)
	if err != nil {
		return err
	}

	res := ts.executor.Execute(ctx, toolName, params, &toolexecutor.ExecutionContext{
		Caller:     "cli",
		ToolPolicy: s.policy(),
		Confirmed:  opts.yes || s.cfg.Tools.Confirm,
	})

	fmt.Fprintln(cmd.OutOrStdout(), res.Text())
	if !res.OK() {
		return fmt.Errorf("tool %s failed: %s", toolName, res.Error)
	}
	return nil
}
