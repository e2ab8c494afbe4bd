package model

import (
	"fmt"
	"strings"

	appsV1 "k8s.io/api/apps/v1"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
)

// Severity is the display variant of a status badge.
type Severity string

const (
	SeveritySuccess   Severity = "success"
	SeverityWarning   Severity = "warning"
	SeverityError     Severity = "error"
	SeverityInfo      Severity = "info"
	SeveritySecondary Severity = "secondary"
)

// Status is the unified display status of a custom resource.
type Status struct {
	Label     string   `json:"label"`
	Variant   Severity `json:"variant"`
	IsRolling bool     `json:"isRolling,omitempty"`
	Progress  string   `json:"progress,omitempty"`
}

type replicaCounts struct {
	replicas int32
	ready    int32
	updated  int32
}

// DeploymentAwareStatus reconciles the resource's own phase with the replica
// counts of its Deployment. When dep is nil the deployment summary copied into
// the resource status is used instead, if any.
func DeploymentAwareStatus(cr v1alpha1.CustomResource, dep *appsV1.Deployment) Status {
	var phase v1alpha1.Phase
	var summary *v1alpha1.DeploymentSummary
	if cr != nil {
		phase = cr.StatusPhase()
		summary = cr.StatusDeployment()
	}

	counts, known := deploymentCounts(dep)
	if !known {
		counts, known = summaryCounts(summary)
	}
	if known && counts.replicas > 0 {
		switch {
		case counts.updated < counts.replicas:
			return Status{
				Label:     "Updating",
				Variant:   SeverityWarning,
				IsRolling: true,
				Progress:  progress(counts.updated, counts.replicas),
			}
		case counts.ready < counts.replicas:
			return Status{Label: "Pending", Variant: SeverityWarning, Progress: progress(counts.ready, counts.replicas)}
		case counts.ready == counts.replicas:
			return Status{Label: "Ready", Variant: SeveritySuccess, Progress: progress(counts.ready, counts.replicas)}
		}
	}
	return PhaseStatus(phase)
}

// PhaseStatus maps a raw phase string to a display status.
func PhaseStatus(phase v1alpha1.Phase) Status {
	label := string(phase)
	if label == "" {
		label = string(v1alpha1.PhaseUnknown)
	}
	switch strings.ToLower(string(phase)) {
	case "ready", "running":
		return Status{Label: label, Variant: SeveritySuccess}
	case "pending", "creating":
		return Status{Label: label, Variant: SeverityWarning}
	case "error", "failed":
		return Status{Label: label, Variant: SeverityError}
	}
	return Status{Label: label, Variant: SeveritySecondary}
}

func deploymentCounts(dep *appsV1.Deployment) (replicaCounts, bool) {
	if dep == nil {
		return replicaCounts{}, false
	}
	replicas := dep.Status.Replicas
	if dep.Spec.Replicas != nil {
		replicas = *dep.Spec.Replicas
	}
	return replicaCounts{
		replicas: replicas,
		ready:    dep.Status.ReadyReplicas,
		updated:  dep.Status.UpdatedReplicas,
	}, true
}

func summaryCounts(summary *v1alpha1.DeploymentSummary) (replicaCounts, bool) {
	if summary == nil {
		return replicaCounts{}, false
	}
	// counters are omitted when zero, so a missing updatedReplicas is 0
	return replicaCounts{
		replicas: summary.Replicas,
		ready:    summary.ReadyReplicas,
		updated:  summary.UpdatedReplicas,
	}, true
}

func progress(n, total int32) string {
	return fmt.Sprintf("%d/%d", n, total)
}
