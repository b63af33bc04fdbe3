package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IQzhan/abload"
	"github.com/IQzhan/abload/source"
)

func newLoadCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "load BUNDLE...",
		Short: "Load bundles and report progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), cmd.OutOrStdout(), opts, args, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "progress-interval", 500*time.Millisecond, "progress report interval")
	return cmd
}

func runLoad(ctx context.Context, out io.Writer, opts *rootOptions, names []string, interval time.Duration) error {
	fetcher, provider, closeSources, err := opts.cfg.Sources(ctx)
	if err != nil {
		return err
	}
	defer closeSources()

	reg := prometheus.NewRegistry()
	metrics, err := abload.NewMetrics(reg)
	if err != nil {
		return err
	}
	loaderOpts := append(opts.cfg.LoaderOptions(), abload.WithMetrics(metrics), abload.WithContext(ctx))
	l, err := abload.New(fetcher, provider, loaderOpts...)
	if err != nil {
		return err
	}
	defer l.Close()

	start := time.Now()
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return l.Preload(gctx, names...)
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				for _, name := range names {
					log.Info().Str("bundle", name).Float64("progress", l.GetProgress(name)).Msg("Loading")
				}
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, node := range l.Graph().Nodes {
		size := 0
		if h, ok := l.TryGetLoaded(node.Name); ok {
			if b, ok := h.(*source.Bundle); ok {
				size = len(b.Data)
			}
		}
		fmt.Fprintf(out, "%-40s %-8s %d bytes\n", node.Name, node.State, size)
	}
	log.Info().Dur("elapsed", time.Since(start)).Int("bundles", len(l.Graph().Nodes)).Msg("Load finished")
	logMetrics(reg)
	return nil
}

func logMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("Gather metrics failed")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			ev := log.Debug().Str("metric", mf.GetName())
			for _, lp := range m.GetLabel() {
				ev = ev.Str(lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				ev = ev.Float64("value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				ev = ev.Float64("value", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				ev = ev.Uint64("count", m.GetHistogram().GetSampleCount()).
					Float64("sum", m.GetHistogram().GetSampleSum())
			}
			ev.Msg("Metric")
		}
	}
}
