// Package v1alpha1 holds the custom resource types rendered by the dashboard:
// ModelAPI, MCPServer and Agent.
package v1alpha1

import "k8s.io/apimachinery/pkg/runtime/schema"

var (
	// GroupVersion is the default API group and version of the custom resources.
	GroupVersion = schema.GroupVersion{Group: "kaos.tools", Version: "v1alpha1"}

	// LegacyGroupVersion is the group used by older deployments of the operator.
	LegacyGroupVersion = schema.GroupVersion{Group: "ethical.institute", Version: "v1alpha1"}
)

const (
	KindModelAPI  = "ModelAPI"
	KindMCPServer = "MCPServer"
	KindAgent     = "Agent"
)
