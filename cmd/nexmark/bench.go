package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fabricekabongo/nexmark"
)

func newBenchCmd(root *rootFlags) *cobra.Command {
	var (
		duration time.Duration
		workers  int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure generator throughput",
		Long: `Bench pulls events as fast as possible, first from a single generator and
then from independent generators on parallel goroutines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd)
			if err != nil {
				return err
			}
			gcfg := cfg.Generator.Nexmark()
			gcfg.MaxEvents = 0
			out := cmd.OutOrStdout()

			n, err := drainFor(gcfg, duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Generated %d events in %s (%.2f events/sec)\n", n, duration, rate(n, duration))

			if workers <= 1 {
				return nil
			}
			counts := make([]int, workers)
			var g errgroup.Group
			for i := range counts {
				g.Go(func() error {
					c, err := drainFor(gcfg, duration)
					counts[i] = c
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			total := 0
			for _, c := range counts {
				total += c
			}
			fmt.Fprintf(out, "Generated %d events with %d generators in %s (%.2f events/sec)\n", total, workers, duration, rate(total, duration))
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "Measurement window per run")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of parallel generators in the second run")
	return cmd
}

func drainFor(cfg nexmark.Config, d time.Duration) (int, error) {
	gen, err := nexmark.New(cfg)
	if err != nil {
		return 0, err
	}
	const chunk = 1024
	n := 0
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		n += len(gen.Take(chunk))
	}
	return n, nil
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
