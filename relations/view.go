package relations

import (
	"fmt"
	"time"

	appsV1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/views/model"
)

type DeploymentInfo struct {
	Name      string `json:"name"`
	Replicas  int32  `json:"replicas"`
	Ready     int32  `json:"readyReplicas"`
	Updated   int32  `json:"updatedReplicas"`
	Available int32  `json:"availableReplicas"`
}

type ServiceInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	ClusterIP string   `json:"clusterIP,omitempty"`
	Ports     []string `json:"ports,omitempty"`
}

// ResourceView is everything a detail page shows for one custom resource.
type ResourceView struct {
	Ref          model.ResourceRef       `json:"ref"`
	UID          string                  `json:"uid"`
	Age          string                  `json:"age"`
	Status       model.Status            `json:"status"`
	Resource     v1alpha1.CustomResource `json:"resource"`
	Pods         []model.PodModel        `json:"pods"`
	PodSummary   model.PodSummary        `json:"podSummary"`
	Deployment   *DeploymentInfo         `json:"deployment,omitempty"`
	Service      *ServiceInfo            `json:"service,omitempty"`
	Dependencies []model.ResourceRef     `json:"dependencies,omitempty"`
	Dependents   []model.ResourceRef     `json:"dependents,omitempty"`
}

// ViewOf composes the detail view of cr from snap.
func ViewOf(cr v1alpha1.CustomResource, snap model.Snapshot, r Resolver, now time.Time) ResourceView {
	owner := OwnerOf(cr)
	dep := r.FindDeployment(owner)
	pods := model.NewPodModels(r.FindPods(owner), now)
	created := cr.GetCreationTimestamp()

	view := ResourceView{
		Ref:        model.RefOf(owner.Kind, cr),
		UID:        string(cr.GetUID()),
		Age:        model.FormatAge(&created, now),
		Status:     model.DeploymentAwareStatus(cr, dep),
		Resource:   cr,
		Pods:       pods,
		PodSummary: model.SummarizePods(pods),
		Deployment: deploymentInfo(dep),
		Service:    serviceInfo(r.FindService(owner)),
		Dependents: Dependents(snap, owner),
	}
	if agent, ok := cr.(*v1alpha1.Agent); ok {
		view.Dependencies = Dependencies(agent)
	}
	return view
}

// Summary is the list row of a custom resource.
type Summary struct {
	Ref    model.ResourceRef `json:"ref"`
	UID    string            `json:"uid"`
	Age    string            `json:"age"`
	Status model.Status      `json:"status"`
	Pods   model.PodSummary  `json:"pods"`
}

// Summaries lists every custom resource of kind with its status.
func Summaries(kind k8s.Kind, snap model.Snapshot, r Resolver, now time.Time) []Summary {
	crs := snap.CustomResources(kind)
	out := make([]Summary, 0, len(crs))
	for _, cr := range crs {
		owner := OwnerOf(cr)
		created := cr.GetCreationTimestamp()
		out = append(out, Summary{
			Ref:    model.RefOf(kind, cr),
			UID:    string(cr.GetUID()),
			Age:    model.FormatAge(&created, now),
			Status: model.DeploymentAwareStatus(cr, r.FindDeployment(owner)),
			Pods:   model.SummarizePods(model.NewPodModels(r.FindPods(owner), now)),
		})
	}
	return out
}

func deploymentInfo(dep *appsV1.Deployment) *DeploymentInfo {
	if dep == nil {
		return nil
	}
	replicas := dep.Status.Replicas
	if dep.Spec.Replicas != nil {
		replicas = *dep.Spec.Replicas
	}
	return &DeploymentInfo{
		Name:      dep.Name,
		Replicas:  replicas,
		Ready:     dep.Status.ReadyReplicas,
		Updated:   dep.Status.UpdatedReplicas,
		Available: dep.Status.AvailableReplicas,
	}
}

func serviceInfo(svc *coreV1.Service) *ServiceInfo {
	if svc == nil {
		return nil
	}
	info := &ServiceInfo{Name: svc.Name, Type: string(svc.Spec.Type), ClusterIP: svc.Spec.ClusterIP}
	for _, port := range svc.Spec.Ports {
		info.Ports = append(info.Ports, fmt.Sprintf("%d/%s", port.Port, port.Protocol))
	}
	return info
}
