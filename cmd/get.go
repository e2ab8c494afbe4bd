package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/relations"
	"github.com/kaos-tools/kaos-ui/session"
	"github.com/kaos-tools/kaos-ui/views/model"
)

type listOptions struct {
	*rootOptions
	output string
	demo   bool
	sortBy string
}

func (o *listOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", outputTable, "Output format: table, yaml or json")
	cmd.Flags().BoolVar(&o.demo, "demo", false, "Read the built-in demo data instead of a cluster")
}

func newGetCmd(root *rootOptions) *cobra.Command {
	o := &listOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "get KIND",
		Short: "List one kind of resource, e.g. agents, mcpservers, modelapis or pods",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := checkOutput(o.output); err != nil {
				return err
			}
			kind, err := k8s.ParseKind(args[0])
			if err != nil {
				return err
			}
			if o.sortBy != "" {
				if kind != k8s.KindPod || o.output != outputTable {
					return fmt.Errorf("--sort-by only applies to the pods table")
				}
				if _, _, err := model.ParsePodSort(o.sortBy); err != nil {
					return err
				}
			}
			manager, err := o.openSession(c.Context(), session.Options{}, o.demo)
			if err != nil {
				return err
			}
			defer manager.Disconnect()
			if err := manager.Refresh(c.Context(), kind); err != nil {
				return err
			}
			return printResources(c.OutOrStdout(), o.output, kind, manager.Snapshot(), time.Now(), o.sortBy)
		},
	}
	o.addFlags(cmd)
	cmd.Flags().StringVar(&o.sortBy, "sort-by", "",
		"Sort pods by "+strings.Join(model.PodSortColumns, ", ")+"; prefix with - for descending")
	return cmd
}

func newGraphCmd(root *rootOptions) *cobra.Command {
	o := &listOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph between agents, MCP servers and model APIs",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if err := checkOutput(o.output); err != nil {
				return err
			}
			manager, err := o.openSession(c.Context(), session.Options{}, o.demo)
			if err != nil {
				return err
			}
			defer manager.Disconnect()
			snap := manager.Snapshot()
			return printGraph(c.OutOrStdout(), o.output, relations.GraphFromSnapshot(snap, relations.NewHeuristicResolver(snap)))
		},
	}
	o.addFlags(cmd)
	return cmd
}
