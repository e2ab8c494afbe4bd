package k8s

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// findKubeCfgFile looks for possible location for kubeconfig file
func findKubeCfgFile() (string, error) {
	// try KUBECONFIG env
	kubecfg := os.Getenv(clientcmd.RecommendedConfigPathEnvVar)
	if kubecfg != "" {
		return kubecfg, nil
	}

	// return known default
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, clientcmd.RecommendedHomeDir, clientcmd.RecommendedFileName), nil
}

// loadConfig returns the REST config and the namespace selected by the
// kubeconfig context.
func loadConfig(kubeconfig, context string) (*rest.Config, string, error) {
	if kubeconfig == "" {
		kcfg, err := findKubeCfgFile()
		if err != nil {
			return nil, "", err
		}
		kubeconfig = kcfg
	}
	clientCfg := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
		&clientcmd.ConfigOverrides{
			CurrentContext: context,
		})
	config, err := clientCfg.ClientConfig()
	if err != nil {
		return nil, "", err
	}
	namespace, _, err := clientCfg.Namespace()
	if err != nil {
		return nil, "", err
	}
	return config, namespace, nil
}

// Decode converts an unstructured object into a typed one.
func Decode[T any](obj *unstructured.Unstructured) (*T, error) {
	var out T
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.UnstructuredContent(), &out); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", obj.GetKind(), obj.GetName(), err)
	}
	return &out, nil
}

// DecodeList converts a list of unstructured objects, keeping their order.
func DecodeList[T any](items []unstructured.Unstructured) ([]T, error) {
	out := make([]T, 0, len(items))
	for i := range items {
		obj, err := Decode[T](&items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *obj)
	}
	return out, nil
}

// ToUnstructured converts a typed object, such as a v1alpha1.Agent, into a
// request body.
func ToUnstructured(obj any) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("encoding object: %w", err)
	}
	return &unstructured.Unstructured{Object: content}, nil
}
