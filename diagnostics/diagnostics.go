// Package diagnostics runs the connection checks shown when a cluster URL
// cannot be reached from the dashboard. The checks target the failure modes
// of an ngrok tunnel in front of kubectl proxy: the browser warning page, the
// preflight the bypass header triggers, and a proxy without CORS support.
package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kaos-tools/kaos-ui/k8s"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

const (
	CheckURLFormat     = "URL Format"
	CheckSimpleGET     = "Simple GET (no headers)"
	CheckBypassGET     = "GET with ngrok header"
	CheckCORS          = "CORS Headers Check"
	CheckAPIResponse   = "K8s API Response"
	versionPath        = "/version"
	defaultOrigin      = "http://localhost:5173"
	defaultTimeout     = 10 * time.Second
	maxValidateDetails = 100
)

type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Prober sends raw requests to an endpoint. *k8s.Client implements it.
type Prober interface {
	Probe(ctx context.Context, req k8s.ProbeRequest) (*k8s.ProbeResponse, error)
}

type Options struct {
	// Origin is sent on the preflight check, as a browser would.
	Origin   string
	Insecure bool
	Timeout  time.Duration
	Logger   *zap.SugaredLogger
	// Dial builds the Prober for a validated endpoint.
	Dial func(endpoint string, insecure bool) (Prober, error)
}

func dial(endpoint string, insecure bool) (Prober, error) {
	client, err := k8s.New(k8s.Options{Endpoint: endpoint, Insecure: insecure})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Failed reports whether any check ended in error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

type runner struct {
	opts    Options
	prober  Prober
	log     *zap.SugaredLogger
	results []Result
	// version holds the first /version body that came back with 2xx.
	version []byte
}

// Run executes the five checks in order against rawURL and returns one
// Result per check. When the URL is unusable the remaining checks are
// reported as skipped.
func Run(ctx context.Context, rawURL string, opts Options) []Result {
	if opts.Origin == "" {
		opts.Origin = defaultOrigin
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Dial == nil {
		opts.Dial = dial
	}
	r := &runner{opts: opts, log: opts.Logger}

	endpoint, ok := r.checkURL(rawURL)
	if !ok {
		return r.skipRest("invalid URL")
	}
	prober, err := opts.Dial(endpoint, opts.Insecure)
	if err != nil {
		r.add(CheckSimpleGET, StatusError, "Could not build client", err.Error())
		return r.skipRest("no client")
	}
	r.prober = prober

	r.checkSimpleGET(ctx)
	r.checkBypassGET(ctx)
	r.checkCORS(ctx)
	r.checkAPIResponse()
	return r.results
}

func (r *runner) add(name string, status Status, message, details string) {
	r.results = append(r.results, Result{Name: name, Status: status, Message: message, Details: details})
	r.log.Debugw("diagnostic check", "check", name, "status", status, "message", message)
}

func (r *runner) skipRest(reason string) []Result {
	for _, name := range []string{CheckURLFormat, CheckSimpleGET, CheckBypassGET, CheckCORS, CheckAPIResponse}[len(r.results):] {
		r.add(name, StatusSkipped, "Skipped", reason)
	}
	return r.results
}

func (r *runner) checkURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		details := "URL is empty"
		if err != nil {
			details = err.Error()
		}
		r.add(CheckURLFormat, StatusError, "Invalid URL format", details)
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		r.add(CheckURLFormat, StatusError, "Invalid protocol", "URL must start with http:// or https://")
		return "", false
	}
	if u.Hostname() == "" {
		r.add(CheckURLFormat, StatusError, "Invalid URL format", "URL has no host")
		return "", false
	}
	r.add(CheckURLFormat, StatusSuccess, "Valid URL", u.Hostname())
	return strings.TrimSuffix(raw, "/"), true
}

func (r *runner) probe(ctx context.Context, req k8s.ProbeRequest) (*k8s.ProbeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.prober.Probe(ctx, req)
}

func is2xx(resp *k8s.ProbeResponse) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func gitVersion(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "gitVersion").String()
}

func (r *runner) checkSimpleGET(ctx context.Context) {
	resp, err := r.probe(ctx, k8s.ProbeRequest{Method: http.MethodGet, Path: versionPath})
	if err != nil {
		r.add(CheckSimpleGET, StatusError, "Request failed", err.Error())
		return
	}
	if is2xx(resp) && gjson.ValidBytes(resp.Body) {
		r.keep(resp.Body)
		version := gitVersion(resp.Body)
		if version == "" {
			version = "responded"
		}
		r.add(CheckSimpleGET, StatusSuccess, "Simple GET works!", "K8s "+version)
		return
	}
	switch k8s.DetectInterstitial(resp.Body) {
	case k8s.InterstitialError:
		r.add(CheckSimpleGET, StatusWarning, "Got ngrok error page", "ngrok may have rate-limited or the tunnel is down")
	case k8s.InterstitialWarning:
		r.add(CheckSimpleGET, StatusWarning, "Got ngrok warning page", "Need "+k8s.BypassHeader+" header, which triggers preflight")
	default:
		r.add(CheckSimpleGET, StatusError, fmt.Sprintf("HTTP %d", resp.StatusCode), k8s.TruncateBody(string(resp.Body)))
	}
}

func (r *runner) checkBypassGET(ctx context.Context) {
	header := http.Header{}
	header.Set(k8s.BypassHeader, k8s.BypassHeaderValue)
	header.Set("Origin", r.opts.Origin)
	resp, err := r.probe(ctx, k8s.ProbeRequest{Method: http.MethodGet, Path: versionPath, Header: header})
	if err != nil {
		r.add(CheckBypassGET, StatusError, "Request failed", err.Error())
		return
	}
	if !is2xx(resp) {
		r.add(CheckBypassGET, StatusError, fmt.Sprintf("HTTP %d", resp.StatusCode), k8s.TruncateBody(string(resp.Body)))
		return
	}
	if k8s.DetectInterstitial(resp.Body) != k8s.InterstitialNone {
		r.add(CheckBypassGET, StatusError, "Tunnel page returned despite header", k8s.TruncateBody(string(resp.Body)))
		return
	}
	r.keep(resp.Body)
	r.add(CheckBypassGET, StatusSuccess, "GET with header works!", "K8s "+gitVersion(resp.Body))
}

func (r *runner) checkCORS(ctx context.Context) {
	header := http.Header{}
	header.Set("Origin", r.opts.Origin)
	header.Set("Access-Control-Request-Method", http.MethodGet)
	header.Set("Access-Control-Request-Headers", k8s.BypassHeader)
	resp, err := r.probe(ctx, k8s.ProbeRequest{Method: http.MethodOptions, Path: versionPath, Header: header})
	if err != nil {
		r.add(CheckCORS, StatusError, "OPTIONS request failed", err.Error())
		return
	}

	origin := resp.Header.Get("Access-Control-Allow-Origin")
	methods := resp.Header.Get("Access-Control-Allow-Methods")
	allowed := resp.Header.Get("Access-Control-Allow-Headers")
	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed:
		r.add(CheckCORS, StatusWarning, "OPTIONS returns 405",
			fmt.Sprintf("kubectl proxy doesn't handle OPTIONS. CORS Origin: %s", orNotSet(origin)))
	case origin == "":
		r.add(CheckCORS, StatusWarning, "No CORS headers in OPTIONS response", fmt.Sprintf("Status: %d", resp.StatusCode))
	case !allowsHeader(allowed, k8s.BypassHeader):
		r.add(CheckCORS, StatusWarning, "Preflight does not allow the bypass header",
			fmt.Sprintf("Access-Control-Allow-Headers: %s", orNotSet(allowed)))
	default:
		r.add(CheckCORS, StatusSuccess, "CORS headers present",
			fmt.Sprintf("Origin: %s, Methods: %s, Headers: %s", origin, orNotSet(methods), orNotSet(allowed)))
	}
}

func (r *runner) checkAPIResponse() {
	if r.version == nil {
		r.add(CheckAPIResponse, StatusError, "Could not validate", "No successful response received")
		return
	}
	version := gjson.GetBytes(r.version, "gitVersion")
	if !version.Exists() {
		details := []rune(string(r.version))
		if len(details) > maxValidateDetails {
			details = details[:maxValidateDetails]
		}
		r.add(CheckAPIResponse, StatusWarning, "Response received but format unexpected", string(details))
		return
	}
	platform := gjson.GetBytes(r.version, "platform").String()
	if platform == "" {
		platform = "unknown"
	}
	r.add(CheckAPIResponse, StatusSuccess, "Valid Kubernetes API", fmt.Sprintf("Version: %s, Platform: %s", version.String(), platform))
}

func (r *runner) keep(body []byte) {
	if r.version == nil && gjson.ValidBytes(body) {
		r.version = body
	}
}

func allowsHeader(list, header string) bool {
	for _, h := range strings.Split(list, ",") {
		h = strings.TrimSpace(h)
		if h == "*" || strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

func orNotSet(v string) string {
	if v == "" {
		return "not set"
	}
	return v
}
