package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	appsV1 "k8s.io/api/apps/v1"
	"k8s.io/utils/ptr"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
)

func deployment(replicas, ready, updated int32) *appsV1.Deployment {
	return &appsV1.Deployment{
		Spec: appsV1.DeploymentSpec{Replicas: ptr.To(replicas)},
		Status: appsV1.DeploymentStatus{
			Replicas:        replicas,
			ReadyReplicas:   ready,
			UpdatedReplicas: updated,
		},
	}
}

func agentWithPhase(phase v1alpha1.Phase) *v1alpha1.Agent {
	agent := &v1alpha1.Agent{}
	agent.Name = "writer"
	if phase != "" {
		agent.Status = &v1alpha1.AgentStatus{Phase: phase}
	}
	return agent
}

func TestDeploymentAwareStatus_Deployment(t *testing.T) {
	tests := []struct {
		name string
		dep  *appsV1.Deployment
		want Status
	}{
		{
			name: "all ready",
			dep:  deployment(2, 2, 2),
			want: Status{Label: "Ready", Variant: SeveritySuccess, Progress: "2/2"},
		},
		{
			name: "waiting for readiness",
			dep:  deployment(2, 1, 2),
			want: Status{Label: "Pending", Variant: SeverityWarning, Progress: "1/2"},
		},
		{
			name: "rolling update",
			dep:  deployment(2, 2, 1),
			want: Status{Label: "Updating", Variant: SeverityWarning, IsRolling: true, Progress: "1/2"},
		},
		{
			name: "updating wins over pending",
			dep:  deployment(3, 0, 1),
			want: Status{Label: "Updating", Variant: SeverityWarning, IsRolling: true, Progress: "1/3"},
		},
		{
			name: "scaled to zero falls back to phase",
			dep:  deployment(0, 0, 0),
			want: Status{Label: "Running", Variant: SeveritySuccess},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := DeploymentAwareStatus(agentWithPhase(v1alpha1.PhaseRunning), test.dep)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestDeploymentAwareStatus_Phase(t *testing.T) {
	tests := []struct {
		phase v1alpha1.Phase
		want  Status
	}{
		{phase: "Ready", want: Status{Label: "Ready", Variant: SeveritySuccess}},
		{phase: "running", want: Status{Label: "running", Variant: SeveritySuccess}},
		{phase: "Pending", want: Status{Label: "Pending", Variant: SeverityWarning}},
		{phase: "Creating", want: Status{Label: "Creating", Variant: SeverityWarning}},
		{phase: "Error", want: Status{Label: "Error", Variant: SeverityError}},
		{phase: "FAILED", want: Status{Label: "FAILED", Variant: SeverityError}},
		{phase: "Terminated", want: Status{Label: "Terminated", Variant: SeveritySecondary}},
		{phase: "", want: Status{Label: "Unknown", Variant: SeveritySecondary}},
	}
	for _, test := range tests {
		t.Run(string(test.phase), func(t *testing.T) {
			assert.Equal(t, test.want, DeploymentAwareStatus(agentWithPhase(test.phase), nil))
		})
	}
}

func TestDeploymentAwareStatus_StatusSummary(t *testing.T) {
	model := &v1alpha1.ModelAPI{
		Status: &v1alpha1.ModelAPIStatus{
			Phase:      v1alpha1.PhaseRunning,
			Deployment: &v1alpha1.DeploymentSummary{Replicas: 2, ReadyReplicas: 1, UpdatedReplicas: 2},
		},
	}
	assert.Equal(t, Status{Label: "Pending", Variant: SeverityWarning, Progress: "1/2"}, DeploymentAwareStatus(model, nil))

	model.Status.Deployment.ReadyReplicas = 2
	assert.Equal(t, Status{Label: "Ready", Variant: SeveritySuccess, Progress: "2/2"}, DeploymentAwareStatus(model, nil))

	// an omitted updatedReplicas counts as zero updated
	model.Status.Deployment.UpdatedReplicas = 0
	assert.Equal(t, Status{Label: "Updating", Variant: SeverityWarning, IsRolling: true, Progress: "0/2"}, DeploymentAwareStatus(model, nil))

	// a resolved deployment takes precedence over the summary
	assert.Equal(t, "Ready", DeploymentAwareStatus(model, deployment(2, 2, 2)).Label)
}

func TestDeploymentAwareStatus_NilResource(t *testing.T) {
	assert.Equal(t, Status{Label: "Unknown", Variant: SeveritySecondary}, DeploymentAwareStatus(nil, nil))
}
