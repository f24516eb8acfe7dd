package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/careadmin/careadmin/internal/platform/kv"
	"github.com/careadmin/careadmin/internal/platform/queue"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect job queues and retry failed jobs",
	}
	cmd.PersistentFlags().StringSlice("queue", nil, "Queue name (repeatable); defaults to QUEUE_NAMES")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show pending, processing and failed counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(q *queue.Queue, names []string) error {
				var stats []queue.Stats
				for _, name := range names {
					st, err := q.Stats(cmd.Context(), name)
					if err != nil {
						return err
					}
					stats = append(stats, st)
				}
				printQueueStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	})

	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Move failed jobs back onto their queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withQueue(cmd, func(q *queue.Queue, names []string) error {
				for _, name := range names {
					n, err := q.RetryFailedJobs(cmd.Context(), name, limit)
					if err != nil {
						return fmt.Errorf("retry %s: %w", name, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: requeued %d job(s)\n", name, n)
				}
				return nil
			})
		},
	}
	retryCmd.Flags().Int("limit", 100, "Maximum jobs to requeue per queue")
	cmd.AddCommand(retryCmd)

	return cmd
}

func withQueue(cmd *cobra.Command, fn func(q *queue.Queue, names []string) error) error {
	cfg, err := loadDatabaseConfig()
	if err != nil {
		return err
	}
	names, _ := cmd.Flags().GetStringSlice("queue")
	if len(names) == 0 {
		names = cfg.QueueNames
	}

	rdb, err := kv.NewClient(cfg.RedisURL, cfg.RedisToken)
	if err != nil {
		return err
	}
	defer rdb.Close()
	if err := kv.Ping(cmd.Context(), rdb); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	return fn(queue.New(rdb, cfg.QueueLease), names)
}

func printQueueStats(w io.Writer, stats []queue.Stats) {
	fmt.Fprintf(w, "%-20s %10s %10s %10s\n", "QUEUE", "PENDING", "PROCESSING", "FAILED")
	for _, s := range stats {
		fmt.Fprintf(w, "%-20s %10d %10d %10d\n", s.Queue, s.Pending, s.Processing, s.Failed)
	}
}
