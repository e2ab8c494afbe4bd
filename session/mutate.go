package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/views/model"
)

const (
	verbCreate = "create"
	verbUpdate = "update"
	verbDelete = "delete"
)

// Get fetches one object from the cluster, or from the store in demo mode.
func (m *Manager) Get(ctx context.Context, kind k8s.Kind, namespace, name string) (*unstructured.Unstructured, error) {
	if kind.Plural() == "" {
		return nil, k8s.NewValidationError(fmt.Sprintf("unknown resource kind %q", kind), nil)
	}
	transport, _, mode, state := m.current()
	if mode == ModeDemo && state == StateConnected {
		return m.demoGet(kind, m.namespaceOr(namespace), name)
	}
	if transport == nil {
		return nil, ErrNotConnected
	}
	obj, err := transport.Get(ctx, kind, namespace, name)
	return obj, k8s.Classify(err)
}

// Create writes obj to the cluster and then re-fetches kind's collection. On
// failure the store is left untouched.
func (m *Manager) Create(ctx context.Context, kind k8s.Kind, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	return m.mutate(ctx, kind, verbCreate, func(t Transport) (*unstructured.Unstructured, error) {
		if t == nil {
			return m.demoCreate(kind, m.namespaceOr(namespace), obj)
		}
		return t.Create(ctx, kind, namespace, obj)
	})
}

// Update replaces the named object with obj and then re-fetches kind's
// collection.
func (m *Manager) Update(ctx context.Context, kind k8s.Kind, namespace, name string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	return m.mutate(ctx, kind, verbUpdate, func(t Transport) (*unstructured.Unstructured, error) {
		if t == nil {
			return m.demoUpdate(kind, m.namespaceOr(namespace), name, obj)
		}
		return t.Update(ctx, kind, namespace, name, obj)
	})
}

// Delete removes the named object and then re-fetches kind's collection. A
// missing object yields a NotFound error and leaves the store as it was.
func (m *Manager) Delete(ctx context.Context, kind k8s.Kind, namespace, name string) error {
	_, err := m.mutate(ctx, kind, verbDelete, func(t Transport) (*unstructured.Unstructured, error) {
		if t == nil {
			return nil, m.demoDelete(kind, m.namespaceOr(namespace), name)
		}
		return nil, t.Delete(ctx, kind, namespace, name)
	})
	return err
}

// mutate runs op against the live transport, or with a nil transport in demo
// mode, and re-lists kind after a successful live write.
func (m *Manager) mutate(ctx context.Context, kind k8s.Kind, verb string, op func(Transport) (*unstructured.Unstructured, error)) (*unstructured.Unstructured, error) {
	if kind.Plural() == "" {
		return nil, k8s.NewValidationError(fmt.Sprintf("unknown resource kind %q", kind), nil)
	}
	transport, gen, mode, state := m.current()
	demoMode := mode == ModeDemo && state == StateConnected
	if transport == nil && !demoMode {
		return nil, ErrNotConnected
	}

	obj, err := op(transport)
	err = k8s.Classify(err)
	m.metrics.ObserveMutation(string(kind), verb, err)
	if err != nil {
		m.log.Infow("mutation failed", "kind", kind, "verb", verb, "reason", k8s.ReasonOf(err), "error", err)
		return nil, err
	}
	if obj != nil {
		m.log.Infow("mutation applied", "kind", kind, "verb", verb, "namespace", obj.GetNamespace(), "name", obj.GetName(), "mode", mode)
	} else {
		m.log.Infow("mutation applied", "kind", kind, "verb", verb, "mode", mode)
	}
	if demoMode {
		return obj, nil
	}

	// a list already in flight may predate the write
	m.inflight.Forget(inflightKey(gen, kind))
	if err := m.refresh(ctx, transport, gen, kind); err != nil {
		m.log.Warnw("re-fetch after mutation failed", "kind", kind, "verb", verb, "error", err)
	}
	return obj, nil
}

func (m *Manager) namespaceOr(namespace string) string {
	if namespace != "" && namespace != k8s.AllNamespaces {
		return namespace
	}
	if ns := m.Namespace(); ns != "" {
		return ns
	}
	return k8s.DefaultNamespace
}

func (m *Manager) demoGet(kind k8s.Kind, namespace, name string) (*unstructured.Unstructured, error) {
	obj, ok := m.store.Snapshot().Lookup(model.ResourceRef{Kind: kind, Namespace: namespace, Name: name})
	if !ok {
		return nil, k8s.NewNotFound(kind, namespace, name)
	}
	return k8s.ToUnstructured(obj)
}

// demoItems returns kind's collection in request shape along with the index
// of namespace/name, or -1.
func (m *Manager) demoItems(kind k8s.Kind, namespace, name string) ([]unstructured.Unstructured, int, uint64, error) {
	snap := m.store.Snapshot()
	items, err := snap.Unstructured(kind)
	if err != nil {
		return nil, -1, 0, err
	}
	for i := range items {
		if items[i].GetName() == name && model.NamespaceOf(&items[i]) == namespace {
			return items, i, snap.Generation, nil
		}
	}
	return items, -1, snap.Generation, nil
}

func (m *Manager) demoCommit(gen uint64, kind k8s.Kind, items []unstructured.Unstructured) error {
	ok, err := m.store.ReplaceAllIf(gen, kind, items)
	if err != nil {
		return k8s.NewValidationError(fmt.Sprintf("invalid %s", kind), err)
	}
	if !ok {
		return ErrNotConnected
	}
	return nil
}

func (m *Manager) demoCreate(kind k8s.Kind, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj == nil {
		return nil, k8s.NewValidationError("request body is required", nil)
	}
	body := obj.DeepCopy()
	k8s.StripServerFields(body)
	body.SetNamespace(namespace)
	if body.GetName() == "" {
		return nil, k8s.NewValidationError("resource name is required", nil)
	}

	m.demoMu.Lock()
	defer m.demoMu.Unlock()
	items, idx, gen, err := m.demoItems(kind, namespace, body.GetName())
	if err != nil {
		return nil, err
	}
	if idx >= 0 {
		return nil, k8s.NewAlreadyExists(kind, namespace, body.GetName())
	}

	m.mu.RLock()
	crd := m.crd
	m.mu.RUnlock()
	body.SetAPIVersion(kind.APIVersion(crd))
	body.SetKind(string(kind))
	body.SetUID(types.UID(uuid.NewString()))
	body.SetCreationTimestamp(metav1.NewTime(m.opts.Now()))

	if err := m.demoCommit(gen, kind, append(items, *body)); err != nil {
		return nil, err
	}
	return body, nil
}

func (m *Manager) demoUpdate(kind k8s.Kind, namespace, name string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj == nil {
		return nil, k8s.NewValidationError("request body is required", nil)
	}
	if name == "" {
		name = obj.GetName()
	}

	m.demoMu.Lock()
	defer m.demoMu.Unlock()
	items, idx, gen, err := m.demoItems(kind, namespace, name)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, k8s.NewNotFound(kind, namespace, name)
	}

	body := obj.DeepCopy()
	existing := items[idx]
	body.SetAPIVersion(existing.GetAPIVersion())
	body.SetKind(existing.GetKind())
	body.SetNamespace(namespace)
	body.SetName(name)
	body.SetUID(existing.GetUID())
	body.SetCreationTimestamp(existing.GetCreationTimestamp())
	if _, ok := body.Object["status"]; !ok {
		if status, ok := existing.Object["status"]; ok {
			body.Object["status"] = status
		}
	}
	items[idx] = *body

	if err := m.demoCommit(gen, kind, items); err != nil {
		return nil, err
	}
	return body, nil
}

func (m *Manager) demoDelete(kind k8s.Kind, namespace, name string) error {
	m.demoMu.Lock()
	defer m.demoMu.Unlock()
	items, idx, gen, err := m.demoItems(kind, namespace, name)
	if err != nil {
		return err
	}
	if idx < 0 {
		return k8s.NewNotFound(kind, namespace, name)
	}
	items = append(items[:idx], items[idx+1:]...)
	return m.demoCommit(gen, kind, items)
}
