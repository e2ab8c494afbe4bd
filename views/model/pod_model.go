package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"

	"github.com/kaos-tools/kaos-ui/k8s"
)

// PodCondition is the display classification of a single pod.
type PodCondition struct {
	Status        string   `json:"status"`
	Variant       Severity `json:"variant"`
	IsRolling     bool     `json:"isRolling,omitempty"`
	IsTerminating bool     `json:"isTerminating,omitempty"`
}

type PodModel struct {
	Namespace    string       `json:"namespace"`
	Name         string       `json:"name"`
	UID          string       `json:"uid"`
	Condition    PodCondition `json:"condition"`
	Node         string       `json:"node,omitempty"`
	IP           string       `json:"ip,omitempty"`
	Age          string       `json:"age"`
	TimeSince    string       `json:"timeSince"`
	CreationTime metav1.Time  `json:"creationTimestamp"`

	ReadyContainers int `json:"readyContainers"`
	TotalContainers int `json:"totalContainers"`
	Restarts        int `json:"restarts"`
}

// Ready renders the container readiness as "ready/total".
func (p PodModel) Ready() string {
	return fmt.Sprintf("%d/%d", p.ReadyContainers, p.TotalContainers)
}

type ContainerStatusSummary struct {
	Ready    int
	Total    int
	Restarts int
}

// ClassifyPod derives the pod's display status. Deletion wins over phase; a
// running pod with unready containers and a pending pod are both rolling.
func ClassifyPod(pod *v1.Pod) PodCondition {
	phase := string(pod.Status.Phase)
	if phase == "" {
		phase = "Unknown"
	}

	if pod.DeletionTimestamp != nil {
		return PodCondition{Status: "Terminating", Variant: SeverityWarning, IsRolling: true, IsTerminating: true}
	}

	if pod.Status.Phase == v1.PodRunning {
		for _, stat := range pod.Status.ContainerStatuses {
			if !stat.Ready {
				return PodCondition{Status: "ContainerNotReady", Variant: SeverityWarning, IsRolling: true}
			}
		}
	}

	if pod.Status.Phase == v1.PodPending {
		reason := "Pending"
		for _, stat := range pod.Status.ContainerStatuses {
			if stat.State.Waiting != nil {
				if stat.State.Waiting.Reason != "" {
					reason = stat.State.Waiting.Reason
				}
				break
			}
		}
		return PodCondition{Status: reason, Variant: SeverityWarning, IsRolling: true}
	}

	return PodCondition{Status: phase, Variant: podPhaseSeverity(pod.Status.Phase)}
}

func podPhaseSeverity(phase v1.PodPhase) Severity {
	switch phase {
	case v1.PodRunning:
		return SeveritySuccess
	case v1.PodPending:
		return SeverityWarning
	case v1.PodSucceeded:
		return SeverityInfo
	case v1.PodFailed:
		return SeverityError
	}
	return SeveritySecondary
}

func NewPodModel(pod *v1.Pod, now time.Time) *PodModel {
	summary := getContainerStatusSummary(pod.Status.ContainerStatuses)
	return &PodModel{
		Namespace:       NamespaceOf(pod),
		Name:            pod.Name,
		UID:             string(pod.UID),
		Condition:       ClassifyPod(pod),
		Node:            pod.Spec.NodeName,
		IP:              pod.Status.PodIP,
		Age:             FormatAge(&pod.CreationTimestamp, now),
		TimeSince:       timeSince(pod.CreationTimestamp, now),
		CreationTime:    pod.CreationTimestamp,
		ReadyContainers: summary.Ready,
		TotalContainers: summary.Total,
		Restarts:        summary.Restarts,
	}
}

// NewPodModels builds models for pods, keeping their order.
func NewPodModels(pods []v1.Pod, now time.Time) []PodModel {
	out := make([]PodModel, 0, len(pods))
	for i := range pods {
		out = append(out, *NewPodModel(&pods[i], now))
	}
	return out
}

func getContainerStatusSummary(containerStats []v1.ContainerStatus) ContainerStatusSummary {
	summary := ContainerStatusSummary{Total: len(containerStats)}
	for _, stat := range containerStats {
		summary.Restarts += int(stat.RestartCount)
		if stat.Ready {
			summary.Ready++
		}
	}
	return summary
}

func timeSince(ts metav1.Time, now time.Time) string {
	if ts.IsZero() {
		return "..."
	}
	return duration.HumanDuration(now.Sub(ts.Time))
}

// PodSummary aggregates the pods resolved for one custom resource.
type PodSummary struct {
	Total     int  `json:"total"`
	Running   int  `json:"running"`
	Ready     int  `json:"ready"`
	Restarts  int  `json:"restarts"`
	HasIssues bool `json:"hasIssues"`
}

func SummarizePods(pods []PodModel) PodSummary {
	summary := PodSummary{Total: len(pods)}
	for _, pod := range pods {
		summary.Restarts += pod.Restarts
		if pod.Condition.Status == string(v1.PodRunning) {
			summary.Running++
		}
		if pod.TotalContainers > 0 && pod.ReadyContainers == pod.TotalContainers {
			summary.Ready++
		}
		if pod.Condition.Status != string(v1.PodRunning) || pod.Restarts > 0 {
			summary.HasIssues = true
		}
	}
	return summary
}

// PodSortColumns lists the columns a pod table can be ordered by.
var PodSortColumns = []string{"namespace", "name", "ready", "status", "restarts", "age", "node"}

var podColumns = map[string]func(a, b PodModel) int{
	"namespace": func(a, b PodModel) int { return cmp.Compare(a.Namespace, b.Namespace) },
	"name":      func(a, b PodModel) int { return cmp.Compare(a.Name, b.Name) },
	"ready":     func(a, b PodModel) int { return cmp.Compare(readyRatio(a), readyRatio(b)) },
	"status":    func(a, b PodModel) int { return cmp.Compare(a.Condition.Status, b.Condition.Status) },
	"restarts":  func(a, b PodModel) int { return cmp.Compare(a.Restarts, b.Restarts) },
	"age":       func(a, b PodModel) int { return a.CreationTime.Time.Compare(b.CreationTime.Time) },
	"node":      func(a, b PodModel) int { return cmp.Compare(a.Node, b.Node) },
}

// ParsePodSort reads a sort key such as "restarts" or "-age"; a leading "-"
// reverses the order. An empty key means no sorting.
func ParsePodSort(key string) (column string, ascending bool, err error) {
	key = strings.ToLower(strings.TrimSpace(key))
	ascending = true
	if strings.HasPrefix(key, "-") {
		key, ascending = key[1:], false
	}
	if key == "" {
		return "", true, nil
	}
	if _, ok := podColumns[key]; !ok {
		return "", false, k8s.NewValidationError(
			fmt.Sprintf("invalid sort column %q (must be one of %s)", key, strings.Join(PodSortColumns, ", ")), nil)
	}
	return key, ascending, nil
}

// SortPodModelsBy orders pods by column, breaking ties by namespace and name.
// Ascending age puts the oldest pod first. An empty or unknown column leaves
// the order untouched.
func SortPodModelsBy(pods []PodModel, column string, ascending bool) {
	compare, ok := podColumns[column]
	if !ok {
		return
	}
	slices.SortStableFunc(pods, func(a, b PodModel) int {
		c := compare(a, b)
		if !ascending {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c = cmp.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

func readyRatio(pod PodModel) float64 {
	if pod.TotalContainers == 0 {
		return 0
	}
	return float64(pod.ReadyContainers) / float64(pod.TotalContainers)
}
