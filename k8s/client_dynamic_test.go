package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	restclient "k8s.io/client-go/rest"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
)

func newObject(apiVersion, kind, namespace, name string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]any{}}
	obj.SetAPIVersion(apiVersion)
	obj.SetKind(kind)
	obj.SetNamespace(namespace)
	obj.SetName(name)
	return obj
}

func newFakeClient(crd schema.GroupVersion, objects ...runtime.Object) *Client {
	listKinds := make(map[schema.GroupVersionResource]string, len(Kinds))
	for _, kind := range Kinds {
		listKinds[kind.GroupVersionResource(crd)] = string(kind) + "List"
	}
	return &Client{
		namespace:  DefaultNamespace,
		crd:        crd,
		dynaClient: dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds, objects...),
	}
}

func TestClientDynamic_ListNamespaces(t *testing.T) {
	client := newFakeClient(v1alpha1.GroupVersion,
		newObject("kaos.tools/v1alpha1", "Agent", "default", "writer"),
		newObject("kaos.tools/v1alpha1", "Agent", "team-b", "reviewer"),
		newObject("v1", "Pod", "team-b", "agent-reviewer-abc"),
	)
	ctx := context.Background()

	tests := []struct {
		name      string
		kind      Kind
		namespace string
		expected  int
	}{
		{name: "client default", kind: KindAgent, namespace: "", expected: 1},
		{name: "explicit namespace", kind: KindAgent, namespace: "team-b", expected: 1},
		{name: "all namespaces", kind: KindAgent, namespace: AllNamespaces, expected: 2},
		{name: "core kind", kind: KindPod, namespace: "team-b", expected: 1},
		{name: "empty collection", kind: KindService, namespace: AllNamespaces, expected: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			items, err := client.List(ctx, test.kind, test.namespace)
			require.NoError(t, err)
			assert.Len(t, items, test.expected)
		})
	}
}

func TestClientDynamic_LegacyGroup(t *testing.T) {
	client := newFakeClient(v1alpha1.LegacyGroupVersion,
		newObject("ethical.institute/v1alpha1", "MCPServer", "default", "github-tools"),
	)

	obj, err := client.Get(context.Background(), KindMCPServer, "", "github-tools")
	require.NoError(t, err)
	assert.Equal(t, "ethical.institute/v1alpha1", obj.GetAPIVersion())
}

func TestClientDynamic_PatchAndDelete(t *testing.T) {
	client := newFakeClient(v1alpha1.GroupVersion,
		newObject("kaos.tools/v1alpha1", "ModelAPI", "default", "gpt"),
	)
	ctx := context.Background()

	patched, err := client.Patch(ctx, KindModelAPI, "", "gpt", "", []byte(`{"spec":{"mode":"Proxy"}}`))
	require.NoError(t, err)
	mode, _, _ := unstructured.NestedString(patched.Object, "spec", "mode")
	assert.Equal(t, "Proxy", mode)

	_, err = client.Patch(ctx, KindModelAPI, "", "", types.MergePatchType, []byte(`{}`))
	assert.True(t, IsValidation(err))

	require.NoError(t, client.Delete(ctx, KindModelAPI, "", "gpt"))
	_, err = client.Get(ctx, KindModelAPI, "", "gpt")
	assert.True(t, IsNotFound(err))

	err = client.Delete(ctx, KindModelAPI, "", "gpt")
	assert.True(t, IsNotFound(err))
}

func TestClientDynamic_UnknownKind(t *testing.T) {
	client := newFakeClient(v1alpha1.GroupVersion)
	_, err := client.List(context.Background(), Kind("Node"), "")
	assert.True(t, IsValidation(err))
}

func TestNewForConfig_RateLimits(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		qps   float32
		burst int
	}{
		{name: "defaults", opts: Options{}, qps: DefaultQPS, burst: DefaultBurst},
		{name: "configured", opts: Options{QPS: 20, Burst: 40}, qps: 20, burst: 40},
		{name: "negative falls back", opts: Options{QPS: -1, Burst: -1}, qps: DefaultQPS, burst: DefaultBurst},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client, err := NewForConfig(&restclient.Config{Host: "http://127.0.0.1:6443"}, test.opts)
			require.NoError(t, err)
			assert.Equal(t, test.qps, client.config.QPS)
			assert.Equal(t, test.burst, client.config.Burst)
		})
	}
}
