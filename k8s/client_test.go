package k8s_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/k8s/k8stest"
)

const crdAPIVersion = "kaos.tools/v1alpha1"

func newClient(t *testing.T, srv *k8stest.Server) *k8s.Client {
	t.Helper()
	client, err := k8s.New(k8s.Options{
		Endpoint:     srv.URL,
		Namespace:    "default",
		BypassHeader: true,
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestClient_ListCustomResources(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Add(k8stest.Object(crdAPIVersion, "Agent", "default", "writer", nil))
	srv.Add(k8stest.Object(crdAPIVersion, "Agent", "default", "reviewer", nil))
	client := newClient(t, srv)

	items, err := client.List(context.Background(), k8s.KindAgent, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "reviewer", items[0].GetName())
	assert.Equal(t, "Agent", items[0].GetKind())
	assert.Equal(t, 1, srv.Requests(http.MethodGet, "/apis/kaos.tools/v1alpha1/namespaces/default/agents"))
}

func TestClient_ListUsesConfiguredGroup(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Add(k8stest.Object("ethical.institute/v1alpha1", "ModelAPI", "default", "proxy", nil))
	client, err := k8s.New(k8s.Options{Endpoint: srv.URL, GroupVersion: v1alpha1.LegacyGroupVersion})
	require.NoError(t, err)

	items, err := client.List(context.Background(), k8s.KindModelAPI, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "proxy", items[0].GetName())
}

func TestClient_ListGenericResources(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Add(k8stest.Object("v1", "Pod", "team", "agent-writer-abc", nil))
	srv.Add(k8stest.Object("apps/v1", "Deployment", "team", "agent-writer", nil))
	client := newClient(t, srv)

	pods, err := client.List(context.Background(), k8s.KindPod, "team")
	require.NoError(t, err)
	require.Len(t, pods, 1)

	deps, err := client.List(context.Background(), k8s.KindDeployment, "team")
	require.NoError(t, err)
	require.Len(t, deps, 1)

	assert.Equal(t, 1, srv.Requests(http.MethodGet, "/api/v1/namespaces/team/pods"))
	assert.Equal(t, 1, srv.Requests(http.MethodGet, "/apis/apps/v1/namespaces/team/deployments"))
}

func TestClient_SendsBypassHeader(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	_, err := client.List(context.Background(), k8s.KindService, "")
	require.NoError(t, err)
	assert.Equal(t, k8s.BypassHeaderValue, srv.LastHeader("/api/v1/namespaces/default/services").Get(k8s.BypassHeader))
}

func TestClient_GetNotFound(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	_, err := client.Get(context.Background(), k8s.KindAgent, "default", "missing")
	require.Error(t, err)
	assert.True(t, k8s.IsNotFound(err))

	var typed *k8s.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, http.StatusNotFound, typed.StatusCode)
}

func TestClient_DeleteNotFound(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	err := client.Delete(context.Background(), k8s.KindAgent, "default", "gone")
	assert.True(t, k8s.IsNotFound(err))
}

func TestClient_CreateStripsServerFields(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	body := k8stest.Object("", "", "", "writer", nil)
	body.SetUID("client-side-uid")
	body.SetResourceVersion("42")
	require.NoError(t, unstructured.SetNestedField(body.Object, "Running", "status", "phase"))
	require.NoError(t, unstructured.SetNestedField(body.Object, "gpt-proxy", "spec", "modelAPI"))

	created, err := client.Create(context.Background(), k8s.KindAgent, "default", body)
	require.NoError(t, err)
	assert.NotEqual(t, "client-side-uid", string(created.GetUID()))
	assert.Empty(t, created.GetResourceVersion())
	_, hasStatus := created.Object["status"]
	assert.False(t, hasStatus)
	assert.Equal(t, crdAPIVersion, created.GetAPIVersion())
	assert.Equal(t, "Agent", created.GetKind())

	// caller's object is left untouched
	assert.Equal(t, "client-side-uid", string(body.GetUID()))
}

func TestClient_CreateRequiresName(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	_, err := client.Create(context.Background(), k8s.KindAgent, "default", k8stest.Object("", "", "", "", nil))
	assert.True(t, k8s.IsValidation(err))
	assert.Zero(t, srv.TotalRequests())
}

func TestClient_CreateConflict(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Add(k8stest.Object(crdAPIVersion, "MCPServer", "default", "github-tools", nil))
	client := newClient(t, srv)

	_, err := client.Create(context.Background(), k8s.KindMCPServer, "default", k8stest.Object("", "", "", "github-tools", nil))
	assert.True(t, k8s.IsRejected(err))
}

func TestClient_UpdateReplacesObject(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Add(k8stest.Object(crdAPIVersion, "Agent", "default", "writer", nil))
	client := newClient(t, srv)

	body := k8stest.Object("", "", "", "", map[string]string{"tier": "worker"})
	updated, err := client.Update(context.Background(), k8s.KindAgent, "default", "writer", body)
	require.NoError(t, err)
	assert.Equal(t, "writer", updated.GetName())
	assert.Equal(t, "worker", updated.GetLabels()["tier"])
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "Unauthorized", check: k8s.IsUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, body: "forbidden", check: k8s.IsUnauthorized},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", check: k8s.IsServerError},
		{name: "bad gateway", status: http.StatusBadGateway, body: "tunnel down", check: k8s.IsServerError},
		{name: "html interstitial", status: http.StatusOK, body: "<html>ngrok Visit Site</html>", check: k8s.IsServerError},
		{name: "not found", status: http.StatusNotFound, body: "404 page not found", check: k8s.IsNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := k8stest.NewServer(t)
			srv.Respond("/api/v1/namespaces/default/pods", test.status, test.body)
			client := newClient(t, srv)

			_, err := client.List(context.Background(), k8s.KindPod, "")
			require.Error(t, err)
			assert.True(t, test.check(err), "unexpected classification: %v", err)
		})
	}
}

func TestClient_ErrorBodyIsTruncated(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Respond("/api/v1/namespaces/default/pods", http.StatusInternalServerError, strings.Repeat("x", 1000))
	client := newClient(t, srv)

	_, err := client.List(context.Background(), k8s.KindPod, "")
	var typed *k8s.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, http.StatusInternalServerError, typed.StatusCode)
	assert.LessOrEqual(t, len(typed.Body), 203)
}

func TestClient_Unreachable(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)
	srv.Close()

	_, err := client.List(context.Background(), k8s.KindPod, "")
	assert.True(t, k8s.IsUnreachable(err), "unexpected classification: %v", err)
}

func TestClient_ServerVersion(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	info, err := client.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, k8stest.GitVersion, info.GitVersion)
}

func TestClient_ServerVersionInterstitial(t *testing.T) {
	srv := k8stest.NewServer(t)
	srv.Respond("/version", http.StatusOK, "<html><body>ngrok ERR_NGROK_3200</body></html>")
	client := newClient(t, srv)

	_, err := client.ServerVersion(context.Background())
	require.True(t, k8s.IsServerError(err))
	assert.Contains(t, err.Error(), "tunnel error page")
}

func TestClient_ProbeOmitsBypassHeader(t *testing.T) {
	srv := k8stest.NewServer(t)
	client := newClient(t, srv)

	resp, err := client.Probe(context.Background(), k8s.ProbeRequest{Path: "/version"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, srv.LastHeader("/version").Get(k8s.BypassHeader))

	_, err = client.Probe(context.Background(), k8s.ProbeRequest{
		Path:   "/version",
		Header: http.Header{k8s.BypassHeader: []string{k8s.BypassHeaderValue}},
	})
	require.NoError(t, err)
	assert.Equal(t, k8s.BypassHeaderValue, srv.LastHeader("/version").Get(k8s.BypassHeader))
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "http://localhost:8001", want: "http://localhost:8001"},
		{raw: " https://abc.ngrok-free.app/ ", want: "https://abc.ngrok-free.app"},
		{raw: "", wantErr: true},
		{raw: "ftp://cluster", wantErr: true},
		{raw: "localhost:8001", wantErr: true},
		{raw: "http://", wantErr: true},
	}
	for _, test := range tests {
		u, err := k8s.ParseEndpoint(test.raw)
		if test.wantErr {
			assert.True(t, k8s.IsValidation(err), "%q: expected validation error, got %v", test.raw, err)
			continue
		}
		require.NoError(t, err, test.raw)
		assert.Equal(t, test.want, u.String())
	}
}

func TestParseKind(t *testing.T) {
	for input, want := range map[string]k8s.Kind{
		"agents":     k8s.KindAgent,
		"Agent":      k8s.KindAgent,
		"MODELAPI":   k8s.KindModelAPI,
		"mcpservers": k8s.KindMCPServer,
		"configmaps": k8s.KindConfigMap,
	} {
		got, err := k8s.ParseKind(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := k8s.ParseKind("nodes")
	assert.True(t, k8s.IsValidation(err))
}

func TestKind_GroupVersionResource(t *testing.T) {
	crd := schema.GroupVersion{Group: "kaos.tools", Version: "v1alpha1"}
	assert.Equal(t, "kaos.tools/v1alpha1", k8s.KindAgent.APIVersion(crd))
	assert.Equal(t, "apps/v1", k8s.KindDeployment.APIVersion(crd))
	assert.Equal(t, "v1", k8s.KindSecret.APIVersion(crd))
	assert.Equal(t, "mcpservers", k8s.KindMCPServer.GroupVersionResource(crd).Resource)
}

func TestClassify(t *testing.T) {
	gr := schema.GroupResource{Group: "kaos.tools", Resource: "agents"}
	tests := []struct {
		name string
		err  error
		want k8s.Reason
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: apierrors.NewNotFound(gr, "a"), want: k8s.ReasonNotFound},
		{name: "forbidden", err: apierrors.NewForbidden(gr, "a", errors.New("rbac")), want: k8s.ReasonUnauthorized},
		{name: "conflict", err: apierrors.NewAlreadyExists(gr, "a"), want: k8s.ReasonRejected},
		{name: "internal", err: apierrors.NewInternalError(errors.New("etcd")), want: k8s.ReasonServerError},
		{name: "deadline", err: context.DeadlineExceeded, want: k8s.ReasonUnreachable},
		{name: "other", err: errors.New("weird"), want: k8s.ReasonServerError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, k8s.ReasonOf(k8s.Classify(test.err)))
		})
	}
}

func TestDetectInterstitial(t *testing.T) {
	assert.Equal(t, k8s.InterstitialWarning, k8s.DetectInterstitial([]byte("<html>ngrok ... Visit Site</html>")))
	assert.Equal(t, k8s.InterstitialError, k8s.DetectInterstitial([]byte("ngrok gateway ERR_NGROK_8012")))
	assert.Equal(t, k8s.InterstitialNone, k8s.DetectInterstitial([]byte(`{"gitVersion":"v1.30.0"}`)))
}

func TestDecodeList(t *testing.T) {
	obj := k8stest.Object(crdAPIVersion, "Agent", "default", "writer", nil)
	require.NoError(t, unstructured.SetNestedField(obj.Object, "gpt-proxy", "spec", "modelAPI"))
	require.NoError(t, unstructured.SetNestedStringSlice(obj.Object, []string{"github-tools"}, "spec", "mcpServers"))

	agents, err := k8s.DecodeList[v1alpha1.Agent]([]unstructured.Unstructured{*obj})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "gpt-proxy", agents[0].Spec.ModelAPI)
	assert.Equal(t, []string{"github-tools"}, agents[0].Spec.MCPServers)

	back, err := k8s.ToUnstructured(&agents[0])
	require.NoError(t, err)
	assert.Equal(t, "writer", back.GetName())
}
