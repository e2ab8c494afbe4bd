package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaos-tools/kaos-ui/diagnostics"
)

var statusIcons = map[diagnostics.Status]string{
	diagnostics.StatusSuccess: "✓",
	diagnostics.StatusWarning: "!",
	diagnostics.StatusError:   "✗",
	diagnostics.StatusSkipped: "-",
}

type diagnoseOptions struct {
	*rootOptions
	origin  string
	timeout time.Duration
	output  string
}

func newDiagnoseCmd(root *rootOptions) *cobra.Command {
	o := &diagnoseOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "diagnose URL",
		Short: "Run browser connectivity checks against a cluster URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := checkOutput(o.output); err != nil {
				return err
			}
			results := diagnostics.Run(c.Context(), args[0], diagnostics.Options{
				Origin:   o.origin,
				Insecure: o.cfg.Connection.Insecure,
				Timeout:  o.timeout,
				Logger:   o.log,
			})
			if err := printDiagnostics(c.OutOrStdout(), o.output, results); err != nil {
				return err
			}
			if diagnostics.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&o.origin, "origin", "", "Origin sent with the preflight check (default http://localhost:5173)")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Timeout of each check (default 10s)")
	cmd.Flags().StringVarP(&o.output, "output", "o", outputTable, "Output format: table, yaml or json")
	return cmd
}

func printDiagnostics(out io.Writer, format string, results []diagnostics.Result) error {
	if format != outputTable {
		return printEncoded(out, format, results)
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s %s: %s\n", statusIcons[r.Status], r.Name, r.Message)
		if r.Details != "" {
			fmt.Fprintf(out, "    %s\n", r.Details)
		}
	}
	return nil
}
