package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/diagnostics"
	"github.com/kaos-tools/kaos-ui/health"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/relations"
	"github.com/kaos-tools/kaos-ui/views/model"
)

type connectRequest struct {
	Endpoint     string `json:"endpoint"`
	Namespace    string `json:"namespace"`
	Insecure     bool   `json:"insecure"`
	Group        string `json:"group"`
	Version      string `json:"version"`
	BypassHeader *bool  `json:"bypassHeader"`
}

type refreshResponse struct {
	Generation uint64                   `json:"generation"`
	Errors     map[string]errorResponse `json:"errors,omitempty"`
}

type listResponse struct {
	Kind  k8s.Kind `json:"kind"`
	Items any      `json:"items"`
}

type selectionRequest struct {
	Kind      string              `json:"kind"`
	Namespace string              `json:"namespace"`
	Name      string              `json:"name"`
	Mode      model.SelectionMode `json:"mode"`
}

type selectionResponse struct {
	Selection *model.Selection `json:"selection"`
}

type diagnosticsResponse struct {
	URL     string               `json:"url"`
	Failed  bool                 `json:"failed"`
	Results []diagnostics.Result `json:"results"`
}

func (s *routes) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": string(s.manager.State()),
	})
}

func (s *routes) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Info())
}

func (s *routes) getHistory(w http.ResponseWriter, _ *http.Request) {
	cycles := s.manager.History()
	if cycles == nil {
		cycles = []health.Cycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

func (s *routes) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	opts := s.opts.Connection
	if req.Endpoint != "" {
		opts.Endpoint = req.Endpoint
		opts.Insecure = req.Insecure
	}
	if req.Namespace != "" {
		opts.Namespace = req.Namespace
	}
	if req.Group != "" || req.Version != "" {
		gv := opts.GroupVersion
		if gv.Empty() {
			gv = v1alpha1.GroupVersion
		}
		if req.Group != "" {
			gv.Group = req.Group
		}
		if req.Version != "" {
			gv.Version = req.Version
		}
		opts.GroupVersion = gv
	}
	if req.BypassHeader != nil {
		opts.BypassHeader = *req.BypassHeader
	}
	if opts.Endpoint == "" && opts.Kubeconfig == "" && opts.Context == "" {
		writeError(w, k8s.NewValidationError("endpoint is required", nil))
		return
	}

	if err := s.manager.Connect(r.Context(), opts); err != nil {
		s.log.Warnw("connect request failed", "endpoint", opts.Endpoint, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Info())
}

func (s *routes) enterDemo(w http.ResponseWriter, _ *http.Request) {
	if err := s.manager.EnterDemo(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Info())
}

func (s *routes) disconnect(w http.ResponseWriter, _ *http.Request) {
	s.manager.Disconnect()
	writeJSON(w, http.StatusOK, s.manager.Info())
}

func (s *routes) refresh(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := k8s.ParseKind(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.manager.Refresh(r.Context(), kind); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, refreshResponse{Generation: s.manager.Store().Generation()})
		return
	}

	res, err := s.manager.RefreshAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := refreshResponse{Generation: res.Generation}
	if len(res.Errors) > 0 {
		resp.Errors = make(map[string]errorResponse, len(res.Errors))
		for kind, kerr := range res.Errors {
			resp.Errors[string(kind)] = errorResponse{Reason: reasonFor(kerr), Message: kerr.Error(), Code: statusFor(kerr)}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *routes) graph(w http.ResponseWriter, _ *http.Request) {
	snap := s.manager.Snapshot()
	writeJSON(w, http.StatusOK, relations.GraphFromSnapshot(snap, relations.NewHeuristicResolver(snap)))
}

func (s *routes) diagnose(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	results := diagnostics.Run(r.Context(), target, s.opts.Diagnostics)
	writeJSON(w, http.StatusOK, diagnosticsResponse{
		URL:     target,
		Failed:  diagnostics.Failed(results),
		Results: results,
	})
}

func (s *routes) listResources(w http.ResponseWriter, r *http.Request) {
	kind, err := k8s.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	sortBy := r.URL.Query().Get("sort")
	if sortBy != "" && kind != k8s.KindPod {
		writeError(w, k8s.NewValidationError("sort is only supported for pods", nil))
		return
	}
	column, ascending, err := model.ParsePodSort(sortBy)
	if err != nil {
		writeError(w, err)
		return
	}
	snap := s.manager.Snapshot()

	var items any
	switch {
	case kind.IsCustom():
		items = relations.Summaries(kind, snap, relations.NewHeuristicResolver(snap), s.opts.Now())
	case kind == k8s.KindPod:
		pods := model.NewPodModels(snap.Pods, s.opts.Now())
		model.SortPodModelsBy(pods, column, ascending)
		items = pods
	default:
		objs, err := snap.Unstructured(kind)
		if err != nil {
			writeError(w, err)
			return
		}
		raw := make([]map[string]any, 0, len(objs))
		for _, obj := range objs {
			raw = append(raw, obj.Object)
		}
		items = raw
	}
	writeJSON(w, http.StatusOK, listResponse{Kind: kind, Items: items})
}

func (s *routes) getResource(w http.ResponseWriter, r *http.Request) {
	kind, err := k8s.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	namespace, name := chi.URLParam(r, "namespace"), chi.URLParam(r, "name")

	if kind.IsCustom() {
		snap := s.manager.Snapshot()
		for _, cr := range snap.CustomResources(kind) {
			if cr.GetName() == name && model.NamespaceOf(cr) == namespace {
				writeJSON(w, http.StatusOK, relations.ViewOf(cr, snap, relations.NewHeuristicResolver(snap), s.opts.Now()))
				return
			}
		}
		writeError(w, k8s.NewNotFound(kind, namespace, name))
		return
	}

	obj, err := s.manager.Get(r.Context(), kind, namespace, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj.Object)
}

func (s *routes) createResource(w http.ResponseWriter, r *http.Request) {
	kind, err := k8s.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	obj, err := decodeObject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.manager.Create(r.Context(), kind, obj.GetNamespace(), obj)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Object)
}

func (s *routes) updateResource(w http.ResponseWriter, r *http.Request) {
	kind, err := k8s.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	namespace, name := chi.URLParam(r, "namespace"), chi.URLParam(r, "name")
	obj, err := decodeObject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if obj.GetName() == "" {
		obj.SetName(name)
	}
	if obj.GetName() != name {
		writeError(w, k8s.NewValidationError(fmt.Sprintf("body names %q but path names %q", obj.GetName(), name), nil))
		return
	}
	updated, err := s.manager.Update(r.Context(), kind, namespace, name, obj)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Object)
}

func (s *routes) deleteResource(w http.ResponseWriter, r *http.Request) {
	kind, err := k8s.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.Delete(r.Context(), kind, chi.URLParam(r, "namespace"), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *routes) getSelection(w http.ResponseWriter, _ *http.Request) {
	var resp selectionResponse
	if sel, ok := s.manager.Store().Selection(); ok {
		resp.Selection = &sel
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *routes) putSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := k8s.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, k8s.NewValidationError("name is required", nil))
		return
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = k8s.DefaultNamespace
	}
	s.manager.Store().Select(&model.ResourceRef{Kind: kind, Namespace: namespace, Name: req.Name}, req.Mode)
	s.getSelection(w, r)
}

func (s *routes) deleteSelection(w http.ResponseWriter, _ *http.Request) {
	s.manager.Store().ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return k8s.NewValidationError("invalid request body", err)
	}
	return nil
}

func decodeObject(r *http.Request) (*unstructured.Unstructured, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, k8s.NewValidationError("invalid request body", err)
	}
	if body == nil {
		return nil, k8s.NewValidationError("request body is required", nil)
	}
	return &unstructured.Unstructured{Object: body}, nil
}
