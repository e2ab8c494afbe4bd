package k8s

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
)

// Kind identifies one of the resource collections tracked by the dashboard.
type Kind string

const (
	KindModelAPI   Kind = v1alpha1.KindModelAPI
	KindMCPServer  Kind = v1alpha1.KindMCPServer
	KindAgent      Kind = v1alpha1.KindAgent
	KindPod        Kind = "Pod"
	KindDeployment Kind = "Deployment"
	KindService    Kind = "Service"
	KindSecret     Kind = "Secret"
	KindConfigMap  Kind = "ConfigMap"
)

// Kinds lists every tracked kind in refresh order.
var Kinds = []Kind{
	KindModelAPI,
	KindMCPServer,
	KindAgent,
	KindPod,
	KindDeployment,
	KindService,
	KindSecret,
	KindConfigMap,
}

var plurals = map[Kind]string{
	KindModelAPI:   "modelapis",
	KindMCPServer:  "mcpservers",
	KindAgent:      "agents",
	KindPod:        "pods",
	KindDeployment: "deployments",
	KindService:    "services",
	KindSecret:     "secrets",
	KindConfigMap:  "configmaps",
}

// ParseKind accepts a kind name, its plural, or either in any letter case.
func ParseKind(s string) (Kind, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for kind, plural := range plurals {
		if needle == strings.ToLower(string(kind)) || needle == plural {
			return kind, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("unknown resource kind %q", s), nil)
}

// IsCustom reports whether the kind is served from the CRD group.
func (k Kind) IsCustom() bool {
	return k == KindModelAPI || k == KindMCPServer || k == KindAgent
}

func (k Kind) Plural() string {
	return plurals[k]
}

// Lower is the lowercase kind name used in resource names and labels.
func (k Kind) Lower() string {
	return strings.ToLower(string(k))
}

// GroupVersionResource maps the kind to its REST resource. Custom kinds are
// resolved under crd; core kinds ignore it.
func (k Kind) GroupVersionResource(crd schema.GroupVersion) schema.GroupVersionResource {
	switch {
	case k.IsCustom():
		return crd.WithResource(k.Plural())
	case k == KindDeployment:
		return schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: k.Plural()}
	default:
		return schema.GroupVersionResource{Version: "v1", Resource: k.Plural()}
	}
}

// APIVersion returns the apiVersion string written into outgoing bodies.
func (k Kind) APIVersion(crd schema.GroupVersion) string {
	return k.GroupVersionResource(crd).GroupVersion().String()
}
