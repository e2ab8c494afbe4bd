package model

import (
	appsV1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
)

// Snapshot is a point-in-time view of every collection in a Store.
type Snapshot struct {
	Generation uint64

	ModelAPIs  []v1alpha1.ModelAPI
	MCPServers []v1alpha1.MCPServer
	Agents     []v1alpha1.Agent

	Pods        []coreV1.Pod
	Deployments []appsV1.Deployment
	Services    []coreV1.Service
	Secrets     []coreV1.Secret
	ConfigMaps  []coreV1.ConfigMap
}

// NamespaceOf returns the object's namespace, or "default" when unset.
func NamespaceOf(obj metav1.Object) string {
	if ns := obj.GetNamespace(); ns != "" {
		return ns
	}
	return k8s.DefaultNamespace
}

// RefOf builds the store reference of obj.
func RefOf(kind k8s.Kind, obj metav1.Object) ResourceRef {
	return ResourceRef{Kind: kind, Namespace: NamespaceOf(obj), Name: obj.GetName()}
}

// Objects returns the metadata view of kind's collection, in store order.
func (s Snapshot) Objects(kind k8s.Kind) []metav1.Object {
	var out []metav1.Object
	switch kind {
	case k8s.KindModelAPI:
		for i := range s.ModelAPIs {
			out = append(out, &s.ModelAPIs[i])
		}
	case k8s.KindMCPServer:
		for i := range s.MCPServers {
			out = append(out, &s.MCPServers[i])
		}
	case k8s.KindAgent:
		for i := range s.Agents {
			out = append(out, &s.Agents[i])
		}
	case k8s.KindPod:
		for i := range s.Pods {
			out = append(out, &s.Pods[i])
		}
	case k8s.KindDeployment:
		for i := range s.Deployments {
			out = append(out, &s.Deployments[i])
		}
	case k8s.KindService:
		for i := range s.Services {
			out = append(out, &s.Services[i])
		}
	case k8s.KindSecret:
		for i := range s.Secrets {
			out = append(out, &s.Secrets[i])
		}
	case k8s.KindConfigMap:
		for i := range s.ConfigMaps {
			out = append(out, &s.ConfigMaps[i])
		}
	}
	return out
}

// Len returns the number of items held for kind.
func (s Snapshot) Len(kind k8s.Kind) int {
	return len(s.Objects(kind))
}

// Lookup finds the object referenced by ref. The returned value points into
// the snapshot and must not be modified.
func (s Snapshot) Lookup(ref ResourceRef) (metav1.Object, bool) {
	for _, obj := range s.Objects(ref.Kind) {
		if obj.GetName() == ref.Name && NamespaceOf(obj) == ref.Namespace {
			return obj, true
		}
	}
	return nil, false
}

// CustomResources returns the custom resources of kind, in store order.
func (s Snapshot) CustomResources(kind k8s.Kind) []v1alpha1.CustomResource {
	var out []v1alpha1.CustomResource
	for _, obj := range s.Objects(kind) {
		if cr, ok := obj.(v1alpha1.CustomResource); ok {
			out = append(out, cr)
		}
	}
	return out
}

// Unstructured converts kind's collection back into request shaped objects.
func (s Snapshot) Unstructured(kind k8s.Kind) ([]unstructured.Unstructured, error) {
	objs := s.Objects(kind)
	out := make([]unstructured.Unstructured, 0, len(objs))
	for _, obj := range objs {
		u, err := k8s.ToUnstructured(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}
