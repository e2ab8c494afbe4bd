package session

import (
	"context"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
)

func createTyped[T any](ctx context.Context, m *Manager, kind k8s.Kind, namespace string, obj *T) (*T, error) {
	body, err := k8s.ToUnstructured(obj)
	if err != nil {
		return nil, k8s.NewValidationError("invalid "+string(kind), err)
	}
	created, err := m.Create(ctx, kind, namespace, body)
	if err != nil {
		return nil, err
	}
	return k8s.Decode[T](created)
}

func updateTyped[T any](ctx context.Context, m *Manager, kind k8s.Kind, namespace, name string, obj *T) (*T, error) {
	body, err := k8s.ToUnstructured(obj)
	if err != nil {
		return nil, k8s.NewValidationError("invalid "+string(kind), err)
	}
	updated, err := m.Update(ctx, kind, namespace, name, body)
	if err != nil {
		return nil, err
	}
	return k8s.Decode[T](updated)
}

func (m *Manager) CreateModelAPI(ctx context.Context, obj *v1alpha1.ModelAPI) (*v1alpha1.ModelAPI, error) {
	return createTyped(ctx, m, k8s.KindModelAPI, obj.Namespace, obj)
}

func (m *Manager) UpdateModelAPI(ctx context.Context, obj *v1alpha1.ModelAPI) (*v1alpha1.ModelAPI, error) {
	return updateTyped(ctx, m, k8s.KindModelAPI, obj.Namespace, obj.Name, obj)
}

func (m *Manager) DeleteModelAPI(ctx context.Context, namespace, name string) error {
	return m.Delete(ctx, k8s.KindModelAPI, namespace, name)
}

func (m *Manager) CreateMCPServer(ctx context.Context, obj *v1alpha1.MCPServer) (*v1alpha1.MCPServer, error) {
	return createTyped(ctx, m, k8s.KindMCPServer, obj.Namespace, obj)
}

func (m *Manager) UpdateMCPServer(ctx context.Context, obj *v1alpha1.MCPServer) (*v1alpha1.MCPServer, error) {
	return updateTyped(ctx, m, k8s.KindMCPServer, obj.Namespace, obj.Name, obj)
}

func (m *Manager) DeleteMCPServer(ctx context.Context, namespace, name string) error {
	return m.Delete(ctx, k8s.KindMCPServer, namespace, name)
}

func (m *Manager) CreateAgent(ctx context.Context, obj *v1alpha1.Agent) (*v1alpha1.Agent, error) {
	return createTyped(ctx, m, k8s.KindAgent, obj.Namespace, obj)
}

func (m *Manager) UpdateAgent(ctx context.Context, obj *v1alpha1.Agent) (*v1alpha1.Agent, error) {
	return updateTyped(ctx, m, k8s.KindAgent, obj.Namespace, obj.Name, obj)
}

func (m *Manager) DeleteAgent(ctx context.Context, namespace, name string) error {
	return m.Delete(ctx, k8s.KindAgent, namespace, name)
}
