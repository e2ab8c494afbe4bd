package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/relations"
	"github.com/kaos-tools/kaos-ui/views/model"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputYAML, outputJSON:
		return nil
	}
	return fmt.Errorf("invalid output format %q (must be table, yaml or json)", format)
}

func newTabWriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
}

// printEncoded writes v as JSON or YAML.
func printEncoded(out io.Writer, format string, v any) error {
	if format == outputYAML {
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResources writes kind's collection from snap. sortBy orders the pod
// table, see model.ParsePodSort.
func printResources(out io.Writer, format string, kind k8s.Kind, snap model.Snapshot, now time.Time, sortBy string) error {
	if format != outputTable {
		items, err := snap.Unstructured(kind)
		if err != nil {
			return err
		}
		raw := make([]map[string]any, 0, len(items))
		for _, item := range items {
			raw = append(raw, item.Object)
		}
		return printEncoded(out, format, map[string]any{
			"apiVersion": "v1",
			"kind":       "List",
			"items":      raw,
		})
	}

	w := newTabWriter(out)
	switch {
	case kind.IsCustom():
		fmt.Fprintln(w, "NAMESPACE\tNAME\tSTATUS\tPODS\tRESTARTS\tAGE")
		for _, s := range relations.Summaries(kind, snap, relations.NewHeuristicResolver(snap), now) {
			status := s.Status.Label
			if s.Status.Progress != "" {
				status += " (" + s.Status.Progress + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
				s.Ref.Namespace, s.Ref.Name, status, s.Pods.Ready, s.Pods.Total, s.Pods.Restarts, s.Age)
		}
	case kind == k8s.KindPod:
		column, ascending, err := model.ParsePodSort(sortBy)
		if err != nil {
			return err
		}
		pods := model.NewPodModels(snap.Pods, now)
		model.SortPodModelsBy(pods, column, ascending)
		fmt.Fprintln(w, "NAMESPACE\tNAME\tREADY\tSTATUS\tRESTARTS\tAGE")
		for _, p := range pods {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", p.Namespace, p.Name, p.Ready(), p.Condition.Status, p.Restarts, p.Age)
		}
	default:
		fmt.Fprintln(w, "NAMESPACE\tNAME\tAGE")
		for _, obj := range snap.Objects(kind) {
			created := obj.GetCreationTimestamp()
			fmt.Fprintf(w, "%s\t%s\t%s\n", model.NamespaceOf(obj), obj.GetName(), model.FormatAge(&created, now))
		}
	}
	return w.Flush()
}

func printGraph(out io.Writer, format string, graph relations.Graph) error {
	if format != outputTable {
		return printEncoded(out, format, graph)
	}
	w := newTabWriter(out)
	fmt.Fprintln(w, "SOURCE\tTARGET\tKIND\tNOTE")
	for _, e := range graph.Edges {
		note := ""
		if e.Dangling {
			note = "missing target"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Source, e.Target, e.Kind, note)
	}
	return w.Flush()
}
