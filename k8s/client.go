package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	_ "k8s.io/client-go/plugin/pkg/client/auth/oidc"
	restclient "k8s.io/client-go/rest"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
)

const (
	AllNamespaces    = "*"
	DefaultNamespace = "default"
	UserAgent        = "kaos-ui"

	maxProbeBody = 64 * 1024

	DefaultQPS   = 50
	DefaultBurst = 100
)

// Options configures a Client. Endpoint takes precedence over Kubeconfig.
type Options struct {
	Endpoint     string
	Insecure     bool
	Kubeconfig   string
	Context      string
	Namespace    string
	GroupVersion schema.GroupVersion
	BypassHeader bool
	Timeout      time.Duration
	QPS          float32
	Burst        int
}

// Client issues list, get and mutation calls for tracked kinds against one
// cluster endpoint. It keeps no state besides its configuration.
type Client struct {
	namespace   string
	crd         schema.GroupVersion
	config      *restclient.Config
	baseURL     *url.URL
	dynaClient  dynamic.Interface
	discoClient *discovery.DiscoveryClient
	probeClient *http.Client
}

func New(opts Options) (*Client, error) {
	var config *restclient.Config
	if opts.Endpoint != "" {
		u, err := ParseEndpoint(opts.Endpoint)
		if err != nil {
			return nil, err
		}
		config = &restclient.Config{
			Host:            u.String(),
			TLSClientConfig: restclient.TLSClientConfig{Insecure: opts.Insecure},
		}
	} else {
		cfg, ns, err := loadConfig(opts.Kubeconfig, opts.Context)
		if err != nil {
			return nil, NewValidationError("unable to load kubeconfig", err)
		}
		if opts.Namespace == "" {
			opts.Namespace = ns
		}
		config = cfg
	}
	return NewForConfig(config, opts)
}

// NewForConfig builds a Client from an existing REST config.
func NewForConfig(config *restclient.Config, opts Options) (*Client, error) {
	config = restclient.CopyConfig(config)
	if opts.Timeout > 0 {
		config.Timeout = opts.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = UserAgent
	}
	// a refresh cycle fans out one list per kind, well past client-go's 5 QPS default
	config.QPS = opts.QPS
	if config.QPS <= 0 {
		config.QPS = DefaultQPS
	}
	config.Burst = opts.Burst
	if config.Burst <= 0 {
		config.Burst = DefaultBurst
	}

	// raw probes must observe what an unassisted request sees
	probeConfig := restclient.CopyConfig(config)
	if opts.BypassHeader {
		config.Wrap(newBypassTransport)
	}

	baseURL, _, err := restclient.DefaultServerUrlFor(config)
	if err != nil {
		return nil, NewValidationError("invalid server address", err)
	}

	dyna, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}

	disco, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, err
	}

	probe, err := restclient.HTTPClientFor(probeConfig)
	if err != nil {
		return nil, err
	}

	crd := opts.GroupVersion
	if crd.Empty() {
		crd = v1alpha1.GroupVersion
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Client{
		namespace:   namespace,
		crd:         crd,
		config:      config,
		baseURL:     baseURL,
		dynaClient:  dyna,
		discoClient: disco,
		probeClient: probe,
	}, nil
}

// ParseEndpoint validates a user supplied cluster URL before any request is sent.
func ParseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewValidationError("endpoint is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid endpoint %q", raw), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewValidationError(fmt.Sprintf("endpoint %q must use http or https", raw), nil)
	}
	if u.Host == "" {
		return nil, NewValidationError(fmt.Sprintf("endpoint %q has no host", raw), nil)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

func (k8s *Client) Namespace() string {
	return k8s.namespace
}

// Host returns the base URL requests are sent to.
func (k8s *Client) Host() string {
	return k8s.baseURL.String()
}

func (k8s *Client) namespaceOrDefault(namespace string) string {
	if namespace == "" {
		return k8s.namespace
	}
	return namespace
}

func (k8s *Client) resource(kind Kind, namespace string) (dynamic.ResourceInterface, error) {
	if kind.Plural() == "" {
		return nil, NewValidationError(fmt.Sprintf("unknown resource kind %q", kind), nil)
	}
	res := k8s.dynaClient.Resource(kind.GroupVersionResource(k8s.crd))
	namespace = k8s.namespaceOrDefault(namespace)
	if namespace == AllNamespaces {
		return res, nil
	}
	return res.Namespace(namespace), nil
}

// List returns every object of kind in namespace. An empty namespace selects
// the client default, AllNamespaces lists cluster wide.
func (k8s *Client) List(ctx context.Context, kind Kind, namespace string) ([]unstructured.Unstructured, error) {
	res, err := k8s.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	list, err := res.List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, Classify(err)
	}
	return list.Items, nil
}

func (k8s *Client) Get(ctx context.Context, kind Kind, namespace, name string) (*unstructured.Unstructured, error) {
	if name == "" {
		return nil, NewValidationError("resource name is required", nil)
	}
	res, err := k8s.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	obj, err := res.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, Classify(err)
	}
	return obj, nil
}

// Create posts obj after removing server assigned fields.
func (k8s *Client) Create(ctx context.Context, kind Kind, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	body, err := k8s.prepareBody(kind, namespace, obj, true)
	if err != nil {
		return nil, err
	}
	res, err := k8s.resource(kind, body.GetNamespace())
	if err != nil {
		return nil, err
	}
	created, err := res.Create(ctx, body, metav1.CreateOptions{})
	if err != nil {
		return nil, Classify(err)
	}
	return created, nil
}

// Update replaces the named object with obj.
func (k8s *Client) Update(ctx context.Context, kind Kind, namespace, name string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	body, err := k8s.prepareBody(kind, namespace, obj, false)
	if err != nil {
		return nil, err
	}
	if name != "" {
		body.SetName(name)
	}
	if body.GetName() == "" {
		return nil, NewValidationError("resource name is required", nil)
	}
	res, err := k8s.resource(kind, body.GetNamespace())
	if err != nil {
		return nil, err
	}
	updated, err := res.Update(ctx, body, metav1.UpdateOptions{})
	if err != nil {
		return nil, Classify(err)
	}
	return updated, nil
}

// Patch applies data to the named object. An empty patchType means a JSON merge patch.
func (k8s *Client) Patch(ctx context.Context, kind Kind, namespace, name string, patchType types.PatchType, data []byte) (*unstructured.Unstructured, error) {
	if name == "" {
		return nil, NewValidationError("resource name is required", nil)
	}
	if patchType == "" {
		patchType = types.MergePatchType
	}
	res, err := k8s.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	patched, err := res.Patch(ctx, name, patchType, data, metav1.PatchOptions{})
	if err != nil {
		return nil, Classify(err)
	}
	return patched, nil
}

func (k8s *Client) Delete(ctx context.Context, kind Kind, namespace, name string) error {
	if name == "" {
		return NewValidationError("resource name is required", nil)
	}
	res, err := k8s.resource(kind, namespace)
	if err != nil {
		return err
	}
	return Classify(res.Delete(ctx, name, metav1.DeleteOptions{}))
}

// ServerVersion performs the connectivity probe used when connecting.
func (k8s *Client) ServerVersion(ctx context.Context) (*version.Info, error) {
	body, err := k8s.discoClient.RESTClient().Get().AbsPath("/version").Do(ctx).Raw()
	if err != nil {
		return nil, Classify(err)
	}
	var info version.Info
	if err := json.Unmarshal(body, &info); err != nil || info.GitVersion == "" {
		return nil, &Error{
			Reason:     ReasonServerError,
			StatusCode: http.StatusOK,
			Body:       TruncateBody(string(body)),
			Message:    "malformed version response: " + interstitialHint(string(body)),
			Err:        err,
		}
	}
	return &info, nil
}

// ProbeRequest is a raw request against the endpoint. The tunnel bypass header
// is only sent when present in Header.
type ProbeRequest struct {
	Method string
	Path   string
	Header http.Header
}

type ProbeResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Probe sends req as-is and returns whatever came back, including non-2xx
// answers. Only transport failures are returned as errors.
func (k8s *Client) Probe(ctx context.Context, req ProbeRequest) (*ProbeResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := strings.TrimSuffix(k8s.baseURL.String(), "/") + "/" + strings.TrimPrefix(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, NewValidationError("invalid probe request", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := k8s.probeClient.Do(httpReq)
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, Classify(err)
	}
	return &ProbeResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (k8s *Client) prepareBody(kind Kind, namespace string, obj *unstructured.Unstructured, create bool) (*unstructured.Unstructured, error) {
	if obj == nil {
		return nil, NewValidationError("request body is required", nil)
	}
	if kind.Plural() == "" {
		return nil, NewValidationError(fmt.Sprintf("unknown resource kind %q", kind), nil)
	}
	body := obj.DeepCopy()
	body.SetAPIVersion(kind.APIVersion(k8s.crd))
	body.SetKind(string(kind))
	switch {
	case namespace != "" && namespace != AllNamespaces:
		body.SetNamespace(namespace)
	case body.GetNamespace() == "":
		body.SetNamespace(k8s.namespace)
	}
	if body.GetName() == "" && body.GetGenerateName() == "" && create {
		return nil, NewValidationError("resource name is required", nil)
	}
	if create {
		StripServerFields(body)
	}
	return body, nil
}

// StripServerFields removes the metadata the API server assigns so the object
// can be submitted as a new resource.
func StripServerFields(obj *unstructured.Unstructured) {
	obj.SetUID("")
	obj.SetResourceVersion("")
	obj.SetCreationTimestamp(metav1.Time{})
	obj.SetManagedFields(nil)
	obj.SetSelfLink("")
	unstructured.RemoveNestedField(obj.Object, "metadata", "generation")
	unstructured.RemoveNestedField(obj.Object, "metadata", "deletionTimestamp")
	unstructured.RemoveNestedField(obj.Object, "status")
}
