package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harun/sdkbridge/pkg/engine"
)

type discoverOptions struct {
	root     string
	maxTools int
	patterns bool
	output   string
}

func newDiscoverCmd(root *rootOptions) *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover [system...]",
		Short: "Discover the tools a system exposes",
		Long: `Walk one or more systems and print the generated tool catalogs as JSON.
Without arguments the configured system is discovered. Several systems are
discovered concurrently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.root, "root", "", "namespace path to walk (single system only)")
	cmd.Flags().IntVar(&opts.maxTools, "max-tools", -1, "cap the catalog size; overrides max_tools when >= 0")
	cmd.Flags().BoolVar(&opts.patterns, "patterns", false, "include the resource and workflow pattern report")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the catalog to a file instead of stdout")

	return cmd
}

func runDiscover(cmd *cobra.Command, root *rootOptions, opts *discoverOptions, args []string) error {
	s, err := root.open(cmd, "")
	if err != nil {
		return err
	}
	defer s.Close()

	systems := args
	if len(systems) == 0 {
		if s.cfg.System == "" {
			return fmt.Errorf("no system given: pass one as an argument or set system in the config")
		}
		systems = []string{s.cfg.System}
	}
	if opts.root != "" && len(systems) > 1 {
		return fmt.Errorf("--root applies to a single system")
	}

	maxTools := s.cfg.MaxTools
	if opts.maxTools >= 0 {
		maxTools = opts.maxTools
	}

	catalogs := make([]*engine.Catalog, len(systems))
	errs := make([]error, len(systems))

	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Bridge.Concurrency))
	for i, system := range systems {
		g.Go(func() error {
			provider, err := providerFor(system)
			if err != nil {
				errs[i] = err
				return nil
			}

			rootPath := opts.root
			if rootPath == "" && system == s.cfg.System {
				rootPath = s.cfg.Root
			}

			catalog, err := engine.New(provider, s.rulesFor(system), s.logger).Discover(cmd.Context(), engine.Config{
				Root:     rootPath,
				MaxTools: maxTools,
			})
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", system, err)
				return nil
			}
			if !opts.patterns {
				catalog.Patterns = nil
			}
			catalogs[i] = catalog
			return nil
		})
	}
	_ = g.Wait()

	var found []*engine.Catalog
	for _, c := range catalogs {
		if c != nil {
			found = append(found, c)
		}
	}

	var out any = found
	if len(systems) == 1 && len(found) == 1 {
		out = found[0]
	}

	if len(found) > 0 {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		data = append(data, '\n')

		if opts.output != "" {
			if err := os.WriteFile(opts.output, data, 0644); err != nil {
				return fmt.Errorf("failed to write catalog: %w", err)
			}
			s.logger.Info().Str("path", opts.output).Int("systems", len(found)).Msg("Catalog written")
		} else if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}
	}

	return errors.Join(errs...)
}
