// Package demo provides the built-in dataset shown when no cluster is
// connected.
package demo

import (
	"embed"
	"fmt"
	"path"

	appsV1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/views/model"
)

// Namespace holds every demo object.
const Namespace = "kaos-hierarchy"

//go:embed fixtures/*.yaml
var fixtures embed.FS

type list[T any] struct {
	Items []T `json:"items"`
}

func decodeFile[T any](name string) ([]T, error) {
	data, err := fixtures.ReadFile(path.Join("fixtures", name))
	if err != nil {
		return nil, fmt.Errorf("demo: reading %s: %w", name, err)
	}
	var l list[T]
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("demo: decoding %s: %w", name, err)
	}
	return l.Items, nil
}

// Load decodes the embedded fixtures into a fresh snapshot. Every call
// returns independent slices, so callers may mutate the result.
func Load() (model.Snapshot, error) {
	var (
		snap model.Snapshot
		err  error
	)
	if snap.ModelAPIs, err = decodeFile[v1alpha1.ModelAPI]("modelapis.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.MCPServers, err = decodeFile[v1alpha1.MCPServer]("mcpservers.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Agents, err = decodeFile[v1alpha1.Agent]("agents.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Pods, err = decodeFile[coreV1.Pod]("pods.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Deployments, err = decodeFile[appsV1.Deployment]("deployments.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Services, err = decodeFile[coreV1.Service]("services.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Secrets, err = decodeFile[coreV1.Secret]("secrets.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	if snap.ConfigMaps, err = decodeFile[coreV1.ConfigMap]("configmaps.yaml"); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// MustLoad is Load for callers that treat a broken fixture as a programming
// error.
func MustLoad() model.Snapshot {
	snap, err := Load()
	if err != nil {
		panic(err)
	}
	return snap
}
