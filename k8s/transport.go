package k8s

import (
	"bytes"
	"net/http"
)

const (
	// BypassHeader makes an ngrok tunnel skip its browser warning page.
	BypassHeader      = "ngrok-skip-browser-warning"
	BypassHeaderValue = "1"
)

// bypassTransport adds the tunnel bypass header to every request.
type bypassTransport struct {
	next http.RoundTripper
}

func newBypassTransport(rt http.RoundTripper) http.RoundTripper {
	return &bypassTransport{next: rt}
}

func (t *bypassTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(BypassHeader) != "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set(BypassHeader, BypassHeaderValue)
	return t.next.RoundTrip(r)
}

// Interstitial is the kind of HTML page a tunnel can return in place of the
// proxied response.
type Interstitial int

const (
	InterstitialNone Interstitial = iota
	// InterstitialWarning is the "Visit Site" page shown to browsers.
	InterstitialWarning
	// InterstitialError is an ERR_NGROK_* failure page.
	InterstitialError
)

func (i Interstitial) String() string {
	switch i {
	case InterstitialWarning:
		return "warning"
	case InterstitialError:
		return "error"
	}
	return "none"
}

// DetectInterstitial inspects a response body for tunnel pages.
func DetectInterstitial(body []byte) Interstitial {
	lower := bytes.ToLower(body)
	if !bytes.Contains(lower, []byte("ngrok")) {
		return InterstitialNone
	}
	switch {
	case bytes.Contains(body, []byte("ERR_NGROK")):
		return InterstitialError
	case bytes.Contains(body, []byte("Visit Site")):
		return InterstitialWarning
	}
	return InterstitialNone
}
