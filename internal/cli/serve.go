package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/strata/pkg/config"
	"github.com/matzehuels/strata/pkg/server"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 15 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render API",
		Long: `Serve the render API.

Serve exposes render, peek and stems endpoints and a job queue. With Redis
configured, jobs go to the shared Redis queue and the render cache is shared
with other instances; otherwise both are local to this process.

Workers run in-process unless --workers is 0, in which case queued jobs wait
for a separate 'strata worker'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg, workers)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().IntVar(&workers, "workers", server.DefaultConcurrency, "in-process job workers")
	return cmd
}

// openQueue returns the Redis queue when Redis is configured and an
// in-process queue otherwise.
func openQueue(cfg config.Config) (server.Queue, func() error, error) {
	if cfg.Redis.URL == "" {
		return server.NewMemoryQueue(0), func() error { return nil }, nil
	}
	q, err := server.NewRedisQueue(cfg.Redis.URL, cfg.Redis.Queue)
	if err != nil {
		return nil, nil, err
	}
	return q, q.Close, nil
}

func (c *CLI) runServe(ctx context.Context, cfg config.Config, workers int) error {
	b, err := c.openBackends(ctx, cfg, "", cfg.Cache.Disabled)
	if err != nil {
		return err
	}
	defer b.close()
	runner := c.runner(cfg, b)

	q, closeQueue, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer closeQueue()

	api := server.New(runner, q, c.Logger)
	if cfg.Server.MaxBodyBytes > 0 {
		api.MaxBodyBytes = cfg.Server.MaxBodyBytes
	}
	if t := cfg.Render.Timeout.Duration; t > 0 {
		api.Timeout = t
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	prog := newProgress(c.Logger)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.Logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if workers > 0 {
		w := server.NewWorker(q, runner, c.Logger)
		w.Concurrency = workers
		g.Go(func() error { return w.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	prog.done("server stopped", "addr", srv.Addr)
	return nil
}
