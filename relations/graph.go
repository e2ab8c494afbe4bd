package relations

import (
	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/views/model"
)

// EdgeKind tells which spec field declared a dependency.
type EdgeKind string

const (
	EdgeModelAPI  EdgeKind = "modelapi"
	EdgeMCPServer EdgeKind = "mcpserver"
	EdgeAgent     EdgeKind = "a2a"
)

type Node struct {
	ID        string        `json:"id"`
	Kind      k8s.Kind      `json:"kind"`
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	Status    *model.Status `json:"status,omitempty"`
}

type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	// Dangling marks references to resources missing from the snapshot.
	Dangling bool `json:"dangling,omitempty"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeID is the graph identity of a custom resource. Names cannot contain
// "/", so the namespace qualifier is unambiguous.
func NodeID(kind k8s.Kind, namespace, name string) string {
	return kind.Lower() + "-" + namespace + "/" + name
}

func edgeID(source, target string) string {
	return "edge-" + source + "-" + target
}

// BuildDependencyGraph emits one node per custom resource and one edge per
// declared Agent reference to a ModelAPI, an MCPServer or a peer Agent.
// Repeated nodes and edges are emitted once.
func BuildDependencyGraph(agents []v1alpha1.Agent, modelAPIs []v1alpha1.ModelAPI, mcpServers []v1alpha1.MCPServer) Graph {
	g := Graph{Nodes: []Node{}, Edges: []Edge{}}
	nodes := make(map[string]bool)
	addNode := func(kind k8s.Kind, cr v1alpha1.CustomResource) {
		namespace := model.NamespaceOf(cr)
		id := NodeID(kind, namespace, cr.GetName())
		if nodes[id] {
			return
		}
		nodes[id] = true
		g.Nodes = append(g.Nodes, Node{ID: id, Kind: kind, Namespace: namespace, Name: cr.GetName()})
	}
	for i := range modelAPIs {
		addNode(k8s.KindModelAPI, &modelAPIs[i])
	}
	for i := range mcpServers {
		addNode(k8s.KindMCPServer, &mcpServers[i])
	}
	for i := range agents {
		addNode(k8s.KindAgent, &agents[i])
	}

	edges := make(map[string]bool)
	// references resolve in the referring agent's namespace
	addEdge := func(source, namespace string, kind k8s.Kind, targetName string, edgeKind EdgeKind) {
		if targetName == "" {
			return
		}
		target := NodeID(kind, namespace, targetName)
		id := edgeID(source, target)
		if edges[id] {
			return
		}
		edges[id] = true
		g.Edges = append(g.Edges, Edge{ID: id, Source: source, Target: target, Kind: edgeKind, Dangling: !nodes[target]})
	}
	for i := range agents {
		agent := &agents[i]
		namespace := model.NamespaceOf(agent)
		source := NodeID(k8s.KindAgent, namespace, agent.Name)
		addEdge(source, namespace, k8s.KindModelAPI, agent.Spec.ModelAPI, EdgeModelAPI)
		for _, name := range agent.Spec.MCPServers {
			addEdge(source, namespace, k8s.KindMCPServer, name, EdgeMCPServer)
		}
		for _, name := range agent.AccessList() {
			addEdge(source, namespace, k8s.KindAgent, name, EdgeAgent)
		}
	}
	return g
}

// GraphFromSnapshot builds the dependency graph of snap with each node
// carrying its deployment aware status.
func GraphFromSnapshot(snap model.Snapshot, r Resolver) Graph {
	g := BuildDependencyGraph(snap.Agents, snap.ModelAPIs, snap.MCPServers)
	statuses := make(map[string]model.Status)
	for _, kind := range []k8s.Kind{k8s.KindModelAPI, k8s.KindMCPServer, k8s.KindAgent} {
		for _, cr := range snap.CustomResources(kind) {
			status := model.DeploymentAwareStatus(cr, r.FindDeployment(OwnerOf(cr)))
			statuses[NodeID(kind, model.NamespaceOf(cr), cr.GetName())] = status
		}
	}
	for i := range g.Nodes {
		if status, ok := statuses[g.Nodes[i].ID]; ok {
			g.Nodes[i].Status = &status
		}
	}
	return g
}
