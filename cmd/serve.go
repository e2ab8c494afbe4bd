package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kaos-tools/kaos-ui/diagnostics"
	"github.com/kaos-tools/kaos-ui/metrics"
	"github.com/kaos-tools/kaos-ui/server"
	"github.com/kaos-tools/kaos-ui/session"
)

type serveOptions struct {
	*rootOptions
	demo bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	o := &serveOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard JSON API and keep the resource store refreshed",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return o.run(c.Context())
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&o.demo, "demo", false, "Start in demo mode with built-in data")
	flags.String("addr", "", "Listen address of the API")
	flags.StringSlice("allowed-origins", nil, "Origins allowed to call the API")
	flags.Duration("refresh-interval", 0, "Time between refresh cycles")
	flags.Int("failure-threshold", 0, "Consecutive failed refresh cycles before disconnecting")
	root.bind(flags, map[string]string{
		"server.addr":               "addr",
		"server.allowed_origins":    "allowed-origins",
		"refresh.interval":          "refresh-interval",
		"refresh.failure_threshold": "failure-threshold",
	})
	return cmd
}

func (o *serveOptions) run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	manager, err := o.openSession(ctx, session.Options{Metrics: recorder}, o.demo)
	if err != nil {
		// the API can still connect later
		o.log.Warnw("starting disconnected", "error", err)
	}

	handler := server.New(manager, server.Options{
		AllowedOrigins: o.cfg.Server.AllowedOrigins,
		Connection:     o.clientOptions(),
		Diagnostics:    diagnostics.Options{Insecure: o.cfg.Connection.Insecure},
		Gatherer:       reg,
		Logger:         o.log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx, o.cfg.Server.Addr, handler, o.log)
	})
	return g.Wait()
}
