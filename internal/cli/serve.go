package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/httpapi"
	"github.com/harun/sdkbridge/pkg/mcpserver"
	"github.com/harun/sdkbridge/pkg/rules"
)

type serveOptions struct {
	system string
	stdio  bool
	http   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog over MCP",
		Long: `Discover the system and serve its tools to MCP clients over stdio.
With --http (or http.enabled) tools are also served over HTTP; metrics are
exposed on the HTTP server or on metrics.addr when metrics are enabled.
When watch_rules is set the catalog is rebuilt whenever the rules file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.system, "system", "", "system id (default from config)")
	cmd.Flags().BoolVar(&opts.stdio, "stdio", true, "serve MCP on stdin/stdout")
	cmd.Flags().BoolVar(&opts.http, "http", false, "serve tools over HTTP on http.addr")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	s, err := root.open(cmd, opts.system)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ts, err := s.build(tracing.NewRequestContext(ctx), s.cfg.System)
	if err != nil {
		return err
	}

	if s.cfg.WatchRules {
		watcher, err := rules.NewWatcher(rules.WatcherConfig{
			Path: s.cfg.RulesFile,
			OnReload: func(book *rules.Book) {
				rs := book.For(ts.system)
				s.redactCredentials(rs)
				ts.rules = rs
				if err := ts.refresh(tracing.NewRequestContext(ctx), s); err != nil {
					s.logger.Error().Err(err).Msg("Catalog rebuild failed, keeping previous tools")
					return
				}
				s.logger.Info().Int("tools", ts.executor.GetToolCount()).Msg("Catalog rebuilt")
			},
		}, s.loader, rules.NewStore(s.book), s.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	var httpSrv *httpapi.Server
	switch {
	case opts.http || s.cfg.HTTP.Enabled:
		httpSrv = httpapi.NewServer(httpapi.Options{
			Addr:               s.cfg.HTTP.Addr,
			Secret:             s.cfg.HTTP.Secret,
			RateLimitPerMinute: s.cfg.HTTP.RateLimitPerMinute,
			Policy:             s.policy(s.cfg.HTTP.Policy()),
			Confirmed:          s.cfg.Tools.Confirm,
		}, ts.executor, s.logger)
	case s.cfg.Metrics.Enabled:
		httpSrv = httpapi.NewServer(httpapi.Options{Addr: s.cfg.Metrics.Addr}, nil, s.logger)
	}

	if !opts.stdio && httpSrv == nil {
		return fmt.Errorf("nothing to serve: enable --stdio or --http")
	}

	s.logger.Info().
		Str("system", ts.system).
		Int("tools", ts.executor.GetToolCount()).
		Bool("stdio", opts.stdio).
		Bool("http", httpSrv != nil).
		Msg("Serving tools")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.stdio {
		mcp := mcpserver.New(ts.executor, mcpserver.Config{
			Version:     version,
			Policy:      s.policy(),
			Confirmed:   s.cfg.Tools.Confirm,
			Concurrency: s.cfg.Bridge.Concurrency,
		}, s.logger)

		g.Go(func() error {
			// stdin EOF ends the whole process
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- mcp.Serve(gctx, cmd.InOrStdin(), cmd.OutOrStdout()) }()

			select {
			case err := <-done:
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}

	if httpSrv != nil {
		g.Go(httpSrv.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			return httpSrv.Stop(stopCtx)
		})
	}

	return g.Wait()
}
