package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/kaos-tools/kaos-ui/config"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/session"
)

var examples = `
# Serve the dashboard API against the current kubeconfig context
%[1]s serve

# Serve the built-in demo data
%[1]s serve --demo

# List agents with their deployment-aware status
%[1]s get agents --namespace kaos-hierarchy

# Check why a tunnel URL is not reachable from the browser
%[1]s diagnose https://abc123.ngrok.app

# Proxy the cluster API with CORS support and publish it through ngrok
%[1]s proxy --ngrok-authtoken $NGROK_AUTHTOKEN
`

type rootOptions struct {
	configFile string
	kubeFlags  *genericclioptions.ConfigFlags
	viper      *viper.Viper

	cfg *config.Config
	log *zap.SugaredLogger
}

// NewRootCmd returns the kaos-ui command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{
		kubeFlags: genericclioptions.NewConfigFlags(false),
		viper:     viper.New(),
	}
	program := filepath.Base(os.Args[0])

	cmd := &cobra.Command{
		Use:          program,
		Short:        "Dashboard backend for KAOS agents, MCP servers and model APIs",
		Example:      fmt.Sprintf(examples, program),
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return o.complete(c)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "Path to a config file (default $HOME/.kaos-ui/kaos-ui.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("endpoint", "", "Cluster API URL, e.g. a kubectl proxy or ngrok tunnel; overrides the kubeconfig")
	flags.Bool("insecure", false, "Skip TLS verification when using --endpoint")
	flags.Bool("bypass-header", true, "Send the ngrok browser-warning bypass header")
	flags.String("crd-group", "", "API group of the custom resources")
	flags.String("crd-version", "", "API version of the custom resources")
	flags.Duration("request-timeout", 0, "Timeout for a single cluster request")
	o.kubeFlags.AddFlags(flags)

	o.bind(flags, map[string]string{
		"log_level":                "log-level",
		"connection.endpoint":      "endpoint",
		"connection.insecure":      "insecure",
		"connection.bypass_header": "bypass-header",
		"connection.group":         "crd-group",
		"connection.version":       "crd-version",
		"refresh.request_timeout":  "request-timeout",
	})

	cmd.AddCommand(
		newServeCmd(o),
		newGetCmd(o),
		newGraphCmd(o),
		newDiagnoseCmd(o),
		newProxyCmd(o),
		newVersionCmd(),
	)
	return cmd
}

// bind maps config keys to flags. A flag only overrides the config when it
// was set on the command line.
func (o *rootOptions) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := o.viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func (o *rootOptions) complete(c *cobra.Command) error {
	cfg, err := config.Load(o.viper, o.configFile)
	if err != nil {
		return err
	}
	if f := c.Flags().Lookup("namespace"); f != nil && f.Changed {
		cfg.Connection.Namespace = *o.kubeFlags.Namespace
	}
	o.cfg = cfg

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	o.log = log
	return nil
}

func (o *rootOptions) clientOptions() k8s.Options {
	return o.cfg.ClientOptions(valueOf(o.kubeFlags.KubeConfig), valueOf(o.kubeFlags.Context))
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// openSession connects a manager to the configured cluster, or loads the demo
// data when demo is set.
func (o *rootOptions) openSession(ctx context.Context, opts session.Options, demo bool) (*session.Manager, error) {
	opts.RefreshInterval = o.cfg.Refresh.Interval
	opts.RequestTimeout = o.cfg.Refresh.RequestTimeout
	opts.FailureThreshold = o.cfg.Refresh.FailureThreshold
	opts.Logger = o.log
	m := session.NewManager(nil, opts)

	if demo || o.cfg.Demo.Enabled {
		return m, m.EnterDemo()
	}
	return m, m.Connect(ctx, o.clientOptions())
}
