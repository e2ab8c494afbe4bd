package relations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsV1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/views/model"
)

func meta(name string, labels map[string]string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: name, Namespace: "default", Labels: labels}
}

func agent(name, modelAPI string, mcpServers []string, access ...string) v1alpha1.Agent {
	a := v1alpha1.Agent{ObjectMeta: meta(name, nil)}
	a.Spec.ModelAPI = modelAPI
	a.Spec.MCPServers = mcpServers
	if len(access) > 0 {
		a.Spec.AgentNetwork = &v1alpha1.AgentNetwork{Expose: true, Access: access}
	}
	return a
}

func names[T metav1.Object](items []T) []string {
	var out []string
	for _, item := range items {
		out = append(out, item.GetName())
	}
	return out
}

func podNames(pods []coreV1.Pod) []string {
	var out []string
	for _, p := range pods {
		out = append(out, p.Name)
	}
	return out
}

func testSnapshot() model.Snapshot {
	return model.Snapshot{
		Agents: []v1alpha1.Agent{
			agent("writer", "gpt", []string{"github-tools"}),
			agent("lead", "gpt", nil, "writer", "reviewer"),
		},
		ModelAPIs:  []v1alpha1.ModelAPI{{ObjectMeta: meta("gpt", nil)}},
		MCPServers: []v1alpha1.MCPServer{{ObjectMeta: meta("github-tools", nil)}},
		Pods: []coreV1.Pod{
			{ObjectMeta: meta("agent-writer-5d8f-abcde", nil)},
			{ObjectMeta: meta("sidecar", map[string]string{"agent": "writer"})},
			{ObjectMeta: meta("web-0", map[string]string{NameLabel: "writer"})},
			{ObjectMeta: meta("agent-lead-0", nil)},
			{ObjectMeta: meta("modelapi-gpt-0", nil)},
			{ObjectMeta: meta("other", map[string]string{"agent": "someone-else"})},
			{ObjectMeta: metav1.ObjectMeta{Name: "agent-writer-elsewhere", Namespace: "prod"}},
		},
		Deployments: []appsV1.Deployment{
			{ObjectMeta: meta("agent-writer-v2", nil)},
			{ObjectMeta: meta("agent-writer", nil), Spec: appsV1.DeploymentSpec{Replicas: ptr.To[int32](1)}},
			{ObjectMeta: meta("mcpserver-github-tools", nil)},
		},
		Services: []coreV1.Service{
			{ObjectMeta: meta("writer-svc", map[string]string{"agent": "writer"})},
			{ObjectMeta: meta("agent-writer", nil)},
		},
	}
}

func TestFindPods(t *testing.T) {
	r := NewHeuristicResolver(testSnapshot())
	owner := Owner{Kind: k8s.KindAgent, Namespace: "default", Name: "writer"}

	pods := r.FindPods(owner)
	assert.Equal(t, []string{"agent-writer-5d8f-abcde", "sidecar", "web-0"}, podNames(pods))

	// pure: same answer on the same snapshot
	assert.Equal(t, pods, r.FindPods(owner))

	assert.Equal(t, []string{"agent-lead-0"}, podNames(r.FindPods(Owner{Kind: k8s.KindAgent, Namespace: "default", Name: "lead"})))
	assert.Equal(t, []string{"modelapi-gpt-0"}, podNames(r.FindPods(Owner{Kind: k8s.KindModelAPI, Namespace: "default", Name: "gpt"})))
	assert.Empty(t, r.FindPods(Owner{Kind: k8s.KindAgent, Namespace: "default", Name: "nobody"}))
}

func TestFindPods_OtherNamespace(t *testing.T) {
	r := NewHeuristicResolver(testSnapshot())
	pods := r.FindPods(Owner{Kind: k8s.KindAgent, Namespace: "prod", Name: "writer"})
	assert.Equal(t, []string{"agent-writer-elsewhere"}, podNames(pods))
}

func TestMatches(t *testing.T) {
	owner := Owner{Kind: k8s.KindAgent, Name: "x"}
	other := Owner{Kind: k8s.KindAgent, Name: "y"}
	tests := []struct {
		name  string
		owner *Owner
		obj   metav1.ObjectMeta
		want  bool
	}{
		{name: "name contains kind-name", obj: meta("agent-x-123", nil), want: true},
		{name: "owner label", obj: meta("pod", map[string]string{"agent": "x"}), want: true},
		{name: "app name label", obj: meta("pod", map[string]string{NameLabel: "x"}), want: true},
		{name: "prefixed app name label", obj: meta("pod", map[string]string{NameLabel: "agent-x"}), want: true},
		{name: "other kind label", obj: meta("pod", map[string]string{"modelapi": "x"}), want: false},
		{name: "different agent", obj: meta("agent-y-123", map[string]string{"agent": "y"}), want: false},
		{name: "bare name", obj: meta("x", nil), want: false},
		{name: "x pod is not y's", owner: &other, obj: meta("agent-x-abc", nil), want: false},
		{name: "x label is not y's", owner: &other, obj: meta("pod", map[string]string{"agent": "x"}), want: false},
		{name: "y matches its own pod", owner: &other, obj: meta("agent-y-abc", nil), want: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			obj := test.obj
			o := owner
			if test.owner != nil {
				o = *test.owner
			}
			assert.Equal(t, test.want, Matches(o, &obj))
		})
	}
	assert.False(t, Matches(Owner{Kind: k8s.KindAgent}, &metav1.ObjectMeta{Name: "agent--"}))
}

func TestFindDeploymentAndService(t *testing.T) {
	r := NewHeuristicResolver(testSnapshot())
	owner := Owner{Kind: k8s.KindAgent, Namespace: "default", Name: "writer"}

	dep := r.FindDeployment(owner)
	require.NotNil(t, dep)
	assert.Equal(t, "agent-writer", dep.Name, "lexicographically smallest match wins")

	svc := r.FindService(owner)
	require.NotNil(t, svc)
	assert.Equal(t, "agent-writer", svc.Name)

	none := Owner{Kind: k8s.KindModelAPI, Namespace: "default", Name: "missing"}
	assert.Nil(t, r.FindDeployment(none))
	assert.Nil(t, r.FindService(none))
}

func TestResolverOnEmptySnapshot(t *testing.T) {
	r := NewHeuristicResolver(model.Snapshot{})
	owner := Owner{Kind: k8s.KindMCPServer, Name: "github-tools"}
	assert.Empty(t, r.FindPods(owner))
	assert.Nil(t, r.FindDeployment(owner))
	assert.Nil(t, r.FindService(owner))
}

func TestDependents(t *testing.T) {
	snap := testSnapshot()
	refs := Dependents(snap, Owner{Kind: k8s.KindModelAPI, Namespace: "default", Name: "gpt"})
	assert.Equal(t, []string{"lead", "writer"}, []string{refs[0].Name, refs[1].Name})

	refs = Dependents(snap, Owner{Kind: k8s.KindAgent, Namespace: "default", Name: "writer"})
	require.Len(t, refs, 1)
	assert.Equal(t, "lead", refs[0].Name)
}

func TestViewOf(t *testing.T) {
	snap := testSnapshot()
	now := time.Now()
	writer := &snap.Agents[0]

	view := ViewOf(writer, snap, NewHeuristicResolver(snap), now)
	assert.Equal(t, model.ResourceRef{Kind: k8s.KindAgent, Namespace: "default", Name: "writer"}, view.Ref)
	assert.Equal(t, 3, view.PodSummary.Total)
	require.NotNil(t, view.Deployment)
	assert.Equal(t, "agent-writer", view.Deployment.Name)
	require.NotNil(t, view.Service)
	assert.Equal(t, "Unknown", view.Age)
	assert.Len(t, view.Dependencies, 2)
	assert.Equal(t, []string{"lead"}, []string{view.Dependents[0].Name})

	summaries := Summaries(k8s.KindAgent, snap, NewHeuristicResolver(snap), now)
	require.Len(t, summaries, 2)
	assert.Equal(t, "writer", summaries[0].Ref.Name)
	assert.Equal(t, 1, summaries[1].Pods.Total)
}

func TestNamesHelper(t *testing.T) {
	snap := testSnapshot()
	assert.Equal(t, []string{"writer", "lead"}, names(snap.CustomResources(k8s.KindAgent)))
}
