package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	restclient "k8s.io/client-go/rest"

	"github.com/kaos-tools/kaos-ui/diagnostics"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/k8s/k8stest"
)

func newProxy(t *testing.T, upstream string, origins ...string) *httptest.Server {
	t.Helper()
	h, err := New(&restclient.Config{Host: upstream}, Options{AllowedOrigins: origins})
	require.NoError(t, err)
	front := httptest.NewServer(h)
	t.Cleanup(front.Close)
	return front
}

func TestProxy_ForwardsRequests(t *testing.T) {
	api := k8stest.NewServer(t)
	api.Add(k8stest.Object("kaos.tools/v1alpha1", "Agent", "default", "writer", nil))
	front := newProxy(t, api.URL)

	resp, err := http.Get(front.URL + "/apis/kaos.tools/v1alpha1/namespaces/default/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"writer"`)
}

func TestProxy_AnswersPreflight(t *testing.T) {
	api := k8stest.NewServer(t)
	front := newProxy(t, api.URL)

	req, err := http.NewRequest(http.MethodOptions, front.URL+"/version", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", k8s.BypassHeader)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers")), k8s.BypassHeader)
	assert.Zero(t, api.Requests(http.MethodOptions, "/version"))
}

func TestProxy_RestrictsOrigins(t *testing.T) {
	api := k8stest.NewServer(t)
	front := newProxy(t, api.URL, "https://dashboard.example.com")

	req, err := http.NewRequest(http.MethodGet, front.URL+"/version", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://dashboard.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://dashboard.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestProxy_UpstreamCORSHeadersDropped(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://other.example.com")
		_, _ = io.WriteString(w, `{"gitVersion":"v1.30.2"}`)
	}))
	defer upstream.Close()
	front := newProxy(t, upstream.URL)

	req, err := http.NewRequest(http.MethodGet, front.URL+"/version", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"*"}, resp.Header.Values("Access-Control-Allow-Origin"))
}

func TestProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()
	front := newProxy(t, url)

	resp, err := http.Get(front.URL + "/version")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProxy_PassesDiagnostics(t *testing.T) {
	api := k8stest.NewServer(t)
	front := newProxy(t, api.URL)

	results := diagnostics.Run(context.Background(), front.URL, diagnostics.Options{})
	for _, r := range results {
		assert.Equal(t, diagnostics.StatusSuccess, r.Status, "%s: %s %s", r.Name, r.Message, r.Details)
	}
}
