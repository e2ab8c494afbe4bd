package cmd

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kaos-tools/kaos-ui/proxy"
	"github.com/kaos-tools/kaos-ui/server"
	"github.com/kaos-tools/kaos-ui/tunnel"
)

type proxyOptions struct {
	*rootOptions
	dryRun bool
}

func newProxyCmd(root *rootOptions) *cobra.Command {
	o := &proxyOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Proxy the cluster API with CORS support, optionally through an ngrok tunnel",
		Long: `Proxy the cluster API of the current kubeconfig context.

Unlike kubectl proxy, preflight requests are answered with CORS headers that
allow the ngrok bypass header, so a hosted dashboard can reach the cluster.
With --ngrok-authtoken the proxy is published on a public ngrok URL.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return o.run(c.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address of the proxy")
	flags.StringSlice("allowed-origins", nil, "Origins allowed to call the proxy")
	flags.String("ngrok-authtoken", "", "ngrok auth token; enables the tunnel")
	flags.String("ngrok-domain", "", "Reserved ngrok domain to publish on")
	flags.BoolVar(&o.dryRun, "ngrok-dry-run", false, "Log the tunnel settings without contacting ngrok")
	root.bind(flags, map[string]string{
		"proxy.addr":             "addr",
		"proxy.allowed_origins":  "allowed-origins",
		"proxy.ngrok_auth_token": "ngrok-authtoken",
		"proxy.ngrok_domain":     "ngrok-domain",
	})
	return cmd
}

func (o *proxyOptions) run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	restConfig, err := o.kubeFlags.ToRESTConfig()
	if err != nil {
		return fmt.Errorf("loading kubeconfig: %w", err)
	}
	handler, err := proxy.New(restConfig, proxy.Options{
		AllowedOrigins: o.cfg.Proxy.AllowedOrigins,
		Logger:         o.log,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", o.cfg.Proxy.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", o.cfg.Proxy.Addr, err)
	}
	upstream := "http://" + listener.Addr().String()
	o.log.Infow("proxy listening", "url", upstream, "cluster", restConfig.Host)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, listener, handler, o.log)
	})

	tunnelCfg := tunnel.Config{
		AuthToken: o.cfg.Proxy.NgrokAuthToken,
		Domain:    o.cfg.Proxy.NgrokDomain,
		DryRun:    o.dryRun,
	}
	if tunnelCfg.AuthToken != "" || tunnelCfg.DryRun {
		g.Go(func() error {
			t, err := tunnel.Start(ctx, tunnelCfg, upstream, o.log)
			if err != nil {
				return err
			}
			defer t.Close()
			o.log.Infow("dashboard endpoint", "url", t.URL())
			select {
			case <-ctx.Done():
			case <-t.Done():
			}
			return nil
		})
	}
	return g.Wait()
}
