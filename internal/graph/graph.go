// Package graph assembles the directed multigraph of artifacts and runs the
// validation passes over it.
//
// The graph is an explicit node map plus adjacency lists keyed by stable
// string ids, never native cyclic object references; cycle checks are an
// explicit DFS, not stack-overflow detection.
package graph

import (
	"sort"

	"tkb/internal/errors"
	"tkb/internal/model"
	"tkb/internal/store"
)

// Node is one artifact in the graph.
type Node struct {
	ID   string         `json:"id"`
	Kind model.NodeKind `json:"kind"`
}

// Edge is a typed directed edge carrying its source reference position for
// error reporting.
type Edge struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Type model.LinkType  `json:"type"`
	Pos  errors.Position `json:"pos"`
}

// Graph is a directed multigraph over artifact nodes.
type Graph struct {
	Nodes map[string]*Node
	Edges []*Edge

	out map[string][]*Edge
	in  map[string][]*Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

// AddNode registers a node; re-adding the same id is a no-op.
func (g *Graph) AddNode(id string, kind model.NodeKind) {
	if _, ok := g.Nodes[id]; !ok {
		g.Nodes[id] = &Node{ID: id, Kind: kind}
	}
}

// AddEdge appends an edge; endpoints need not exist yet, the integrity pass
// reports dangling targets.
func (g *Graph) AddEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

// Out returns the outgoing edges of a node.
func (g *Graph) Out(id string) []*Edge {
	return g.out[id]
}

// In returns the incoming edges of a node.
func (g *Graph) In(id string) []*Edge {
	return g.in[id]
}

// Build constructs the graph from the store's declared nodes plus the
// extracted references. Edge order is normalized so downstream reports are
// deterministic.
func Build(s *store.Store, refs []model.Reference) *Graph {
	g := NewGraph()

	for id, spec := range s.Specs {
		g.AddNode(id, model.KindSpec)
		for _, ac := range spec.ACs {
			g.AddNode(model.ACNodeID(id, ac.ID), model.KindAC)
		}
	}
	for id := range s.Tests {
		g.AddNode(id, model.KindTest)
	}
	for id := range s.Code {
		g.AddNode(id, model.KindCode)
	}
	for id := range s.Patterns {
		g.AddNode(id, model.KindPattern)
	}
	for id := range s.Failures {
		g.AddNode(id, model.KindFailure)
	}

	edges := make([]*Edge, 0, len(refs)+len(s.Links))
	for _, ref := range refs {
		edges = append(edges, &Edge{From: ref.From, To: ref.To, Type: ref.Type, Pos: ref.Pos})
	}
	for _, link := range s.Links {
		edges = append(edges, &Edge{From: link.From, To: link.To, Type: link.Type})
	}

	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Pos.Line < b.Pos.Line
	})
	for _, e := range edges {
		g.AddEdge(e)
	}

	return g
}

// sortedNodeIDs returns all node ids in stable order.
func (g *Graph) sortedNodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
