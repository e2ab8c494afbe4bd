// Package k8stest provides an in-memory Kubernetes API server for tests.
package k8stest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// GitVersion is reported by the fake /version endpoint.
const GitVersion = "v1.30.2"

type override struct {
	status int
	body   string
}

// Server answers /version plus list, get, create, update and delete on
// namespaced collections under /api/v1 and /apis/<group>/<version>.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	objects   map[string]map[string]map[string]any
	listKinds map[string]string
	overrides map[string]override
	delays    map[string]time.Duration
	requests  map[string]int
	headers   map[string]http.Header
	uidSeq    int
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		objects:   make(map[string]map[string]map[string]any),
		listKinds: make(map[string]string),
		overrides: make(map[string]override),
		delays:    make(map[string]time.Duration),
		requests:  make(map[string]int),
		headers:   make(map[string]http.Header),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// CollectionPath returns the collection URL path for an object of apiVersion
// and kind in namespace.
func CollectionPath(apiVersion, kind, namespace string) string {
	plural := strings.ToLower(kind) + "s"
	if apiVersion == "v1" {
		return fmt.Sprintf("/api/v1/namespaces/%s/%s", namespace, plural)
	}
	return fmt.Sprintf("/apis/%s/namespaces/%s/%s", apiVersion, namespace, plural)
}

// Add stores obj. A missing namespace defaults to "default".
func (s *Server) Add(obj *unstructured.Unstructured) {
	ns := obj.GetNamespace()
	if ns == "" {
		ns = "default"
		obj.SetNamespace(ns)
	}
	path := CollectionPath(obj.GetAPIVersion(), obj.GetKind(), ns)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(path, obj.GetKind(), obj.DeepCopy().Object)
}

// Object builds a minimal object for Add.
func Object(apiVersion, kind, namespace, name string, labels map[string]string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]any{}}
	obj.SetAPIVersion(apiVersion)
	obj.SetKind(kind)
	obj.SetNamespace(namespace)
	obj.SetName(name)
	if labels != nil {
		obj.SetLabels(labels)
	}
	return obj
}

// Respond makes every request to path answer with status and body.
func (s *Server) Respond(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[path] = override{status: status, body: body}
}

// Restore undoes Respond for path.
func (s *Server) Restore(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, path)
}

// Delay holds requests to path for d before answering.
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// Requests counts requests received for method and path.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// TotalRequests counts every request received.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// LastHeader returns the headers of the most recent request to path.
func (s *Server) LastHeader(path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[path]
}

// Has reports whether the object exists in the collection at path.
func (s *Server) Has(path, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path][name]
	return ok
}

func (s *Server) store(path, kind string, obj map[string]any) {
	if s.objects[path] == nil {
		s.objects[path] = make(map[string]map[string]any)
	}
	meta, _ := obj["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		obj["metadata"] = meta
	}
	if _, ok := meta["uid"]; !ok {
		s.uidSeq++
		meta["uid"] = fmt.Sprintf("uid-%04d", s.uidSeq)
	}
	if _, ok := meta["creationTimestamp"]; !ok {
		meta["creationTimestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	s.listKinds[path] = kind
	s.objects[path][meta["name"].(string)] = obj
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method+" "+r.URL.Path]++
	s.headers[r.URL.Path] = r.Header.Clone()
	delay := s.delays[r.URL.Path]
	ov, hasOverride := s.overrides[r.URL.Path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if hasOverride {
		w.WriteHeader(ov.status)
		_, _ = io.WriteString(w, ov.body)
		return
	}

	if r.URL.Path == "/version" {
		writeJSON(w, http.StatusOK, map[string]any{
			"major": "1", "minor": "30", "gitVersion": GitVersion, "platform": "linux/amd64",
		})
		return
	}

	collection, name, apiVersion, ok := splitPath(r.URL.Path)
	if !ok {
		writeStatus(w, http.StatusNotFound, "NotFound", "the server could not find the requested resource")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && name == "":
		s.list(w, collection, apiVersion)
	case r.Method == http.MethodGet:
		obj, found := s.objects[collection][name]
		if !found {
			writeStatus(w, http.StatusNotFound, "NotFound", fmt.Sprintf("%q not found", name))
			return
		}
		writeJSON(w, http.StatusOK, obj)
	case r.Method == http.MethodPost && name == "":
		obj, err := readObject(r)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
		objName, _, _ := unstructured.NestedString(obj, "metadata", "name")
		if objName == "" {
			writeStatus(w, http.StatusUnprocessableEntity, "Invalid", "metadata.name is required")
			return
		}
		if _, exists := s.objects[collection][objName]; exists {
			writeStatus(w, http.StatusConflict, "AlreadyExists", fmt.Sprintf("%q already exists", objName))
			return
		}
		kind, _ := obj["kind"].(string)
		s.store(collection, kind, obj)
		writeJSON(w, http.StatusCreated, obj)
	case r.Method == http.MethodPut && name != "":
		obj, err := readObject(r)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
		current, found := s.objects[collection][name]
		if !found {
			writeStatus(w, http.StatusNotFound, "NotFound", fmt.Sprintf("%q not found", name))
			return
		}
		meta := obj["metadata"].(map[string]any)
		curMeta := current["metadata"].(map[string]any)
		meta["uid"] = curMeta["uid"]
		meta["creationTimestamp"] = curMeta["creationTimestamp"]
		kind, _ := obj["kind"].(string)
		s.store(collection, kind, obj)
		writeJSON(w, http.StatusOK, obj)
	case r.Method == http.MethodDelete && name != "":
		obj, found := s.objects[collection][name]
		if !found {
			writeStatus(w, http.StatusNotFound, "NotFound", fmt.Sprintf("%q not found", name))
			return
		}
		delete(s.objects[collection], name)
		writeJSON(w, http.StatusOK, obj)
	default:
		writeStatus(w, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method+" not supported")
	}
}

func (s *Server) list(w http.ResponseWriter, collection, apiVersion string) {
	names := make([]string, 0, len(s.objects[collection]))
	for name := range s.objects[collection] {
		names = append(names, name)
	}
	sort.Strings(names)
	items := make([]any, 0, len(names))
	for _, name := range names {
		items = append(items, s.objects[collection][name])
	}
	kind := s.listKinds[collection]
	if kind == "" {
		kind = "Unknown"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"apiVersion": apiVersion,
		"kind":       kind + "List",
		"metadata":   map[string]any{"resourceVersion": "1"},
		"items":      items,
	})
}

// splitPath separates a namespaced resource path into its collection path and
// optional object name.
func splitPath(path string) (collection, name, apiVersion string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var rest []string
	switch {
	case len(parts) >= 5 && parts[0] == "api" && parts[2] == "namespaces":
		apiVersion = parts[1]
		rest = parts[2:]
	case len(parts) >= 6 && parts[0] == "apis" && parts[3] == "namespaces":
		apiVersion = parts[1] + "/" + parts[2]
		rest = parts[3:]
	default:
		return "", "", "", false
	}
	// rest is namespaces/<ns>/<plural>[/<name>]
	switch len(rest) {
	case 3:
		return "/" + strings.Join(parts, "/"), "", apiVersion, true
	case 4:
		return "/" + strings.Join(parts[:len(parts)-1], "/"), rest[3], apiVersion, true
	}
	return "", "", "", false
}

func readObject(r *http.Request) (map[string]any, error) {
	var obj map[string]any
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		return nil, err
	}
	if _, ok := obj["metadata"].(map[string]any); !ok {
		return nil, fmt.Errorf("metadata is required")
	}
	return obj, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, reason, message string) {
	writeJSON(w, code, map[string]any{
		"apiVersion": "v1",
		"kind":       "Status",
		"status":     "Failure",
		"reason":     reason,
		"message":    message,
		"code":       code,
	})
}
