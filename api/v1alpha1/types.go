package v1alpha1

import (
	coreV1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Phase is the coarse lifecycle state reported by a custom resource.
type Phase string

const (
	PhaseRunning    Phase = "Running"
	PhaseReady      Phase = "Ready"
	PhasePending    Phase = "Pending"
	PhaseError      Phase = "Error"
	PhaseFailed     Phase = "Failed"
	PhaseTerminated Phase = "Terminated"
	PhaseUnknown    Phase = "Unknown"
)

// DeploymentSummary mirrors the replica counters the operator copies from the
// backing Deployment into the custom resource status.
type DeploymentSummary struct {
	Replicas          int32                        `json:"replicas,omitempty"`
	ReadyReplicas     int32                        `json:"readyReplicas,omitempty"`
	AvailableReplicas int32                        `json:"availableReplicas,omitempty"`
	UpdatedReplicas   int32                        `json:"updatedReplicas,omitempty"`
	Conditions        []DeploymentSummaryCondition `json:"conditions,omitempty"`
}

type DeploymentSummaryCondition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// CustomResource is implemented by ModelAPI, MCPServer and Agent.
type CustomResource interface {
	metav1.Object
	CustomKind() string
	StatusPhase() Phase
	StatusDeployment() *DeploymentSummary
}

// ModelAPIMode selects whether a ModelAPI fronts an external provider or
// hosts a model in-cluster.
type ModelAPIMode string

const (
	ModelAPIModeProxy  ModelAPIMode = "Proxy"
	ModelAPIModeHosted ModelAPIMode = "Hosted"
)

type ModelAPI struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ModelAPISpec    `json:"spec"`
	Status *ModelAPIStatus `json:"status,omitempty"`
}

type ModelAPISpec struct {
	Mode         ModelAPIMode  `json:"mode"`
	ProxyConfig  *ProxyConfig  `json:"proxyConfig,omitempty"`
	HostedConfig *HostedConfig `json:"hostedConfig,omitempty"`
	// ServerConfig is the pre-rename spelling of HostedConfig.
	ServerConfig *HostedConfig `json:"serverConfig,omitempty"`
}

type ProxyConfig struct {
	Model   string          `json:"model,omitempty"`
	APIBase string          `json:"apiBase,omitempty"`
	Env     []coreV1.EnvVar `json:"env,omitempty"`
}

type HostedConfig struct {
	Model string          `json:"model"`
	Env   []coreV1.EnvVar `json:"env,omitempty"`
}

type ModelAPIStatus struct {
	Phase      Phase              `json:"phase,omitempty"`
	Ready      bool               `json:"ready,omitempty"`
	Endpoint   string             `json:"endpoint,omitempty"`
	Message    string             `json:"message,omitempty"`
	Deployment *DeploymentSummary `json:"deployment,omitempty"`
}

// Model returns the model name configured for whichever mode is active.
func (m *ModelAPI) Model() string {
	switch {
	case m.Spec.Mode == ModelAPIModeProxy && m.Spec.ProxyConfig != nil:
		return m.Spec.ProxyConfig.Model
	case m.Spec.HostedConfig != nil:
		return m.Spec.HostedConfig.Model
	case m.Spec.ServerConfig != nil:
		return m.Spec.ServerConfig.Model
	}
	return ""
}

func (m *ModelAPI) CustomKind() string { return KindModelAPI }

func (m *ModelAPI) StatusPhase() Phase {
	if m.Status == nil {
		return ""
	}
	return m.Status.Phase
}

func (m *ModelAPI) StatusDeployment() *DeploymentSummary {
	if m.Status == nil {
		return nil
	}
	return m.Status.Deployment
}

type MCPServerType string

const (
	MCPServerTypePython MCPServerType = "python-runtime"
	MCPServerTypeNode   MCPServerType = "node-runtime"
)

type MCPServer struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   MCPServerSpec    `json:"spec"`
	Status *MCPServerStatus `json:"status,omitempty"`
}

type MCPServerSpec struct {
	Type   MCPServerType   `json:"type"`
	Config MCPServerConfig `json:"config"`
}

type MCPServerConfig struct {
	MCP   string          `json:"mcp,omitempty"`
	Tools *MCPTools       `json:"tools,omitempty"`
	Env   []coreV1.EnvVar `json:"env,omitempty"`
}

// MCPTools names where the server loads its tools from: a published package
// or inline source.
type MCPTools struct {
	FromPackage string `json:"fromPackage,omitempty"`
	FromString  string `json:"fromString,omitempty"`
}

type MCPServerStatus struct {
	Phase          Phase              `json:"phase,omitempty"`
	Ready          bool               `json:"ready,omitempty"`
	Endpoint       string             `json:"endpoint,omitempty"`
	Message        string             `json:"message,omitempty"`
	AvailableTools []string           `json:"availableTools,omitempty"`
	Deployment     *DeploymentSummary `json:"deployment,omitempty"`
}

func (m *MCPServer) CustomKind() string { return KindMCPServer }

func (m *MCPServer) StatusPhase() Phase {
	if m.Status == nil {
		return ""
	}
	return m.Status.Phase
}

func (m *MCPServer) StatusDeployment() *DeploymentSummary {
	if m.Status == nil {
		return nil
	}
	return m.Status.Deployment
}

type Agent struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AgentSpec    `json:"spec"`
	Status *AgentStatus `json:"status,omitempty"`
}

type AgentSpec struct {
	ModelAPI     string        `json:"modelAPI"`
	MCPServers   []string      `json:"mcpServers,omitempty"`
	AgentNetwork *AgentNetwork `json:"agentNetwork,omitempty"`
	Config       AgentConfig   `json:"config,omitempty"`
}

// AgentNetwork controls agent-to-agent reachability.
type AgentNetwork struct {
	Expose bool     `json:"expose,omitempty"`
	Access []string `json:"access,omitempty"`
}

type AgentConfig struct {
	Description  string          `json:"description,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
	Env          []coreV1.EnvVar `json:"env,omitempty"`
}

type AgentStatus struct {
	Phase           Phase              `json:"phase,omitempty"`
	Ready           bool               `json:"ready,omitempty"`
	Endpoint        string             `json:"endpoint,omitempty"`
	Message         string             `json:"message,omitempty"`
	ConnectedAgents []string           `json:"connectedAgents,omitempty"`
	Deployment      *DeploymentSummary `json:"deployment,omitempty"`
}

func (a *Agent) CustomKind() string { return KindAgent }

func (a *Agent) StatusPhase() Phase {
	if a.Status == nil {
		return ""
	}
	return a.Status.Phase
}

func (a *Agent) StatusDeployment() *DeploymentSummary {
	if a.Status == nil {
		return nil
	}
	return a.Status.Deployment
}

// AccessList returns the peer agents this agent may call.
func (a *Agent) AccessList() []string {
	if a.Spec.AgentNetwork == nil {
		return nil
	}
	return a.Spec.AgentNetwork.Access
}
