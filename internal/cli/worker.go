package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/strata/pkg/server"
)

// workerCommand creates the worker command.
func (c *CLI) workerCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued render jobs from Redis",
		Long: `Run queued render jobs from Redis.

The worker takes art and peek jobs queued through the API, renders them into
the shared cache and records the result on the job. Redis must be
configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return fmt.Errorf("worker needs a Redis queue: set redis.url or STRATA_REDIS_URL")
			}

			b, err := c.openBackends(ctx, cfg, "", cfg.Cache.Disabled)
			if err != nil {
				return err
			}
			defer b.close()

			q, err := server.NewRedisQueue(cfg.Redis.URL, cfg.Redis.Queue)
			if err != nil {
				return err
			}
			defer q.Close()

			w := server.NewWorker(q, c.runner(cfg, b), c.Logger)
			w.Concurrency = concurrency
			c.Logger.Info("worker started", "queue", cfg.Redis.Queue, "concurrency", concurrency)
			prog := newProgress(c.Logger)
			err = w.Run(ctx)
			prog.done("worker stopped", "queue", cfg.Redis.Queue)
			return err
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", server.DefaultConcurrency, "jobs run at once")
	return cmd
}
