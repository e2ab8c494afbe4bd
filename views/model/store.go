package model

import (
	"fmt"
	"sync"

	appsV1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
)

type SelectionMode string

const (
	SelectionView SelectionMode = "view"
	SelectionEdit SelectionMode = "edit"
)

// ResourceRef names a single resource in the store.
type ResourceRef struct {
	Kind      k8s.Kind `json:"kind"`
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
}

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s %s/%s", r.Kind, r.Namespace, r.Name)
}

type Selection struct {
	Resource ResourceRef   `json:"resource"`
	Mode     SelectionMode `json:"mode"`
}

// Store holds the latest observed collection of every tracked kind. A
// collection is only ever replaced as a whole; slices handed out through
// Snapshot are shared and must be treated as read-only.
type Store struct {
	mu         sync.RWMutex
	snap       Snapshot
	generation uint64
	revisions  map[k8s.Kind]uint64
	selection  *Selection
}

func NewStore() *Store {
	return &Store{revisions: make(map[k8s.Kind]uint64)}
}

// Generation identifies the configuration the store currently holds data
// for. It changes on every Reset.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Revision counts the replacements of kind's collection.
func (s *Store) Revision(kind k8s.Kind) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[kind]
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Generation = s.generation
	return snap
}

// ReplaceAll swaps the collection for kind with the decoded items.
func (s *Store) ReplaceAll(kind k8s.Kind, items []unstructured.Unstructured) error {
	_, err := s.replace(nil, kind, items)
	return err
}

// ReplaceAllIf behaves like ReplaceAll but only commits when the store is
// still at generation. It reports whether the commit happened.
func (s *Store) ReplaceAllIf(generation uint64, kind k8s.Kind, items []unstructured.Unstructured) (bool, error) {
	return s.replace(&generation, kind, items)
}

func (s *Store) replace(generation *uint64, kind k8s.Kind, items []unstructured.Unstructured) (bool, error) {
	var decoded Snapshot
	if err := decodeKind(&decoded, kind, items); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != nil && *generation != s.generation {
		return false, nil
	}
	assignKind(&s.snap, decoded, kind)
	s.revisions[kind]++
	return true, nil
}

// LoadIf replaces every collection at once, as entering demo mode does, when
// the store is still at generation. It reports whether the load happened.
func (s *Store) LoadIf(generation uint64, snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	for _, kind := range k8s.Kinds {
		assignKind(&s.snap, snap, kind)
		s.revisions[kind]++
	}
	return true
}

// Reset clears all collections and the selection and starts a new
// generation, which invalidates responses still in flight.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
	s.selection = nil
	s.generation++
	for _, kind := range k8s.Kinds {
		s.revisions[kind]++
	}
	return s.generation
}

// Select opens ref in mode. A nil ref clears the selection.
func (s *Store) Select(ref *ResourceRef, mode SelectionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == nil {
		s.selection = nil
		return
	}
	if mode != SelectionEdit {
		mode = SelectionView
	}
	s.selection = &Selection{Resource: *ref, Mode: mode}
}

func (s *Store) ClearSelection() {
	s.Select(nil, SelectionView)
}

func (s *Store) Selection() (Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

func decodeKind(snap *Snapshot, kind k8s.Kind, items []unstructured.Unstructured) error {
	var err error
	switch kind {
	case k8s.KindModelAPI:
		snap.ModelAPIs, err = k8s.DecodeList[v1alpha1.ModelAPI](items)
	case k8s.KindMCPServer:
		snap.MCPServers, err = k8s.DecodeList[v1alpha1.MCPServer](items)
	case k8s.KindAgent:
		snap.Agents, err = k8s.DecodeList[v1alpha1.Agent](items)
	case k8s.KindPod:
		snap.Pods, err = k8s.DecodeList[coreV1.Pod](items)
	case k8s.KindDeployment:
		snap.Deployments, err = k8s.DecodeList[appsV1.Deployment](items)
	case k8s.KindService:
		snap.Services, err = k8s.DecodeList[coreV1.Service](items)
	case k8s.KindSecret:
		snap.Secrets, err = k8s.DecodeList[coreV1.Secret](items)
	case k8s.KindConfigMap:
		snap.ConfigMaps, err = k8s.DecodeList[coreV1.ConfigMap](items)
	default:
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	return err
}

func assignKind(dst *Snapshot, src Snapshot, kind k8s.Kind) {
	switch kind {
	case k8s.KindModelAPI:
		dst.ModelAPIs = src.ModelAPIs
	case k8s.KindMCPServer:
		dst.MCPServers = src.MCPServers
	case k8s.KindAgent:
		dst.Agents = src.Agents
	case k8s.KindPod:
		dst.Pods = src.Pods
	case k8s.KindDeployment:
		dst.Deployments = src.Deployments
	case k8s.KindService:
		dst.Services = src.Services
	case k8s.KindSecret:
		dst.Secrets = src.Secrets
	case k8s.KindConfigMap:
		dst.ConfigMaps = src.ConfigMaps
	}
}
