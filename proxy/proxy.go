// Package proxy serves the cluster API to browsers. It forwards requests with
// the kubeconfig credentials and answers CORS preflights itself, including
// those triggered by the tunnel bypass header, which plain kubectl proxy
// rejects with 405.
package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/rs/cors"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	restclient "k8s.io/client-go/rest"

	"github.com/kaos-tools/kaos-ui/k8s"
)

type Options struct {
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

var allowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

var allowedHeaders = []string{
	"Accept",
	"Authorization",
	"Content-Type",
	k8s.BypassHeader,
}

// CORS wraps h with the policy shared by the proxy and the JSON API.
func CORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:         600,
	})
	return c.Handler(h)
}

// New returns a handler that proxies every request to the API server
// described by config.
func New(config *restclient.Config, opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	target, _, err := restclient.DefaultServerUrlFor(config)
	if err != nil {
		return nil, k8s.NewValidationError("invalid server address", err)
	}
	transport, err := restclient.TransportFor(config)
	if err != nil {
		return nil, err
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			// the upstream must not apply its own CORS handling
			r.Out.Header.Del("Origin")
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			for key := range resp.Header {
				if strings.HasPrefix(key, "Access-Control-") {
					resp.Header.Del(key)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warnw("proxy request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			writeStatus(w, http.StatusBadGateway, err.Error())
		},
	}
	log.Infow("proxying cluster API", "target", target.String())
	return CORS(rp, opts.AllowedOrigins), nil
}

func writeStatus(w http.ResponseWriter, code int, message string) {
	status := metav1.Status{
		TypeMeta: metav1.TypeMeta{Kind: "Status", APIVersion: "v1"},
		Status:   metav1.StatusFailure,
		Message:  message,
		Reason:   metav1.StatusReasonServiceUnavailable,
		Code:     int32(code),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
