// Package relations derives links between custom resources and the workloads
// that implement them. Nothing here fails: missing data yields empty results.
package relations

import (
	"sort"
	"strings"

	appsV1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/views/model"
)

// NameLabel is the well-known label also accepted as an ownership marker.
const NameLabel = "app.kubernetes.io/name"

var ownerLabels = map[k8s.Kind]string{
	k8s.KindAgent:     "agent",
	k8s.KindModelAPI:  "modelapi",
	k8s.KindMCPServer: "mcpserver",
}

// Owner identifies the custom resource workloads are resolved for.
type Owner struct {
	Kind      k8s.Kind
	Namespace string
	Name      string
}

func OwnerOf(cr v1alpha1.CustomResource) Owner {
	return Owner{Kind: k8s.Kind(cr.CustomKind()), Namespace: model.NamespaceOf(cr), Name: cr.GetName()}
}

// Resolver finds the workloads of a custom resource. HeuristicResolver is the
// only implementation; clusters that set owner references could provide another.
type Resolver interface {
	FindPods(owner Owner) []coreV1.Pod
	FindDeployment(owner Owner) *appsV1.Deployment
	FindService(owner Owner) *coreV1.Service
}

// Matches reports whether obj looks like it belongs to owner: its name
// contains "<kind>-<name>", or it carries the kind's owner label or the
// app.kubernetes.io/name label set to the owner name.
func Matches(owner Owner, obj metav1.Object) bool {
	if owner.Name == "" {
		return false
	}
	prefix := owner.Kind.Lower() + "-" + strings.ToLower(owner.Name)
	if strings.Contains(strings.ToLower(obj.GetName()), prefix) {
		return true
	}
	labels := obj.GetLabels()
	if key, ok := ownerLabels[owner.Kind]; ok && labels[key] == owner.Name {
		return true
	}
	if value, ok := labels[NameLabel]; ok {
		return value == owner.Name || strings.EqualFold(value, prefix)
	}
	return false
}

// HeuristicResolver matches workloads by name and label against one snapshot.
type HeuristicResolver struct {
	snap model.Snapshot
}

func NewHeuristicResolver(snap model.Snapshot) *HeuristicResolver {
	return &HeuristicResolver{snap: snap}
}

func (r *HeuristicResolver) sameNamespace(owner Owner, obj metav1.Object) bool {
	return owner.Namespace == "" || model.NamespaceOf(obj) == owner.Namespace
}

// FindPods returns every matching pod in store order.
func (r *HeuristicResolver) FindPods(owner Owner) []coreV1.Pod {
	var pods []coreV1.Pod
	for i := range r.snap.Pods {
		pod := &r.snap.Pods[i]
		if r.sameNamespace(owner, pod) && Matches(owner, pod) {
			pods = append(pods, *pod)
		}
	}
	return pods
}

// FindDeployment returns the matching deployment with the smallest name.
func (r *HeuristicResolver) FindDeployment(owner Owner) *appsV1.Deployment {
	var found *appsV1.Deployment
	for i := range r.snap.Deployments {
		dep := &r.snap.Deployments[i]
		if !r.sameNamespace(owner, dep) || !Matches(owner, dep) {
			continue
		}
		if found == nil || dep.Name < found.Name {
			found = dep
		}
	}
	return found
}

// FindService returns the matching service with the smallest name.
func (r *HeuristicResolver) FindService(owner Owner) *coreV1.Service {
	var found *coreV1.Service
	for i := range r.snap.Services {
		svc := &r.snap.Services[i]
		if !r.sameNamespace(owner, svc) || !Matches(owner, svc) {
			continue
		}
		if found == nil || svc.Name < found.Name {
			found = svc
		}
	}
	return found
}

// Dependents returns the agents in snap that reference owner through their
// model, tool or network access lists, sorted by name.
func Dependents(snap model.Snapshot, owner Owner) []model.ResourceRef {
	var refs []model.ResourceRef
	for i := range snap.Agents {
		agent := &snap.Agents[i]
		if owner.Namespace != "" && model.NamespaceOf(agent) != owner.Namespace {
			continue
		}
		if references(agent, owner) {
			refs = append(refs, model.RefOf(k8s.KindAgent, agent))
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

func references(agent *v1alpha1.Agent, owner Owner) bool {
	switch owner.Kind {
	case k8s.KindModelAPI:
		return agent.Spec.ModelAPI == owner.Name
	case k8s.KindMCPServer:
		for _, name := range agent.Spec.MCPServers {
			if name == owner.Name {
				return true
			}
		}
	case k8s.KindAgent:
		for _, name := range agent.AccessList() {
			if name == owner.Name {
				return true
			}
		}
	}
	return false
}

// Dependencies returns the resources an agent declares in its spec.
func Dependencies(agent *v1alpha1.Agent) []model.ResourceRef {
	ns := model.NamespaceOf(agent)
	var refs []model.ResourceRef
	if agent.Spec.ModelAPI != "" {
		refs = append(refs, model.ResourceRef{Kind: k8s.KindModelAPI, Namespace: ns, Name: agent.Spec.ModelAPI})
	}
	for _, name := range agent.Spec.MCPServers {
		refs = append(refs, model.ResourceRef{Kind: k8s.KindMCPServer, Namespace: ns, Name: name})
	}
	for _, name := range agent.AccessList() {
		refs = append(refs, model.ResourceRef{Kind: k8s.KindAgent, Namespace: ns, Name: name})
	}
	return refs
}
