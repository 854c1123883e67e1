// Package impact computes the transitive closure of artifacts affected by a
// changed-file set.
//
// Traversal is a breadth-first search over the artifact graph. Crossing
// from an artifact to a specification costs one depth level; a
// specification's own acceptance criteria and its directly linked tests and
// code travel at the same depth, since changing an implementation puts the
// whole verification contract of its specification in play. Structural
// edges between specifications (parent, blocks, related, discovered_from)
// cost one level in either direction.
package impact

import (
	"container/list"
	"context"
	"sort"

	"tkb/internal/graph"
	"tkb/internal/model"
)

// Affected is one discovered artifact with its BFS depth.
type Affected struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
}

// ByType groups discovered artifacts for the report.
type ByType struct {
	Specs     []Affected `json:"specs,omitempty"`
	Tests     []Affected `json:"tests,omitempty"`
	Code      []Affected `json:"code,omitempty"`
	Knowledge []Affected `json:"knowledge,omitempty"`
}

// Report is the result of an impact analysis.
type Report struct {
	ChangedFiles []string `json:"changedFiles"`
	ByType       ByType   `json:"byType"`
	MaxDepth     int      `json:"maxDepth"`

	RiskScore float64   `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`

	// Incomplete is set when the traversal hit its deadline; the report
	// then holds everything discovered so far rather than nothing.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Analyzer performs impact analysis over a built graph.
type Analyzer struct {
	maxDepth    int // 0 = unbounded; the deadline still applies
	specWeight  float64
	depthWeight float64
}

// NewAnalyzer creates an analyzer. Weights feed the risk score and are
// tunables, not a contract.
func NewAnalyzer(maxDepth int, specWeight, depthWeight float64) *Analyzer {
	if specWeight <= 0 {
		specWeight = 3
	}
	if depthWeight <= 0 {
		depthWeight = 1
	}
	return &Analyzer{maxDepth: maxDepth, specWeight: specWeight, depthWeight: depthWeight}
}

type queueItem struct {
	id    string
	depth int
}

// Analyze seeds the frontier with tests and code units whose file path is in
// the changed set, then walks the graph. The context deadline is checked at
// each frontier expansion; on expiry the partial report is returned with
// Incomplete set.
func (a *Analyzer) Analyze(ctx context.Context, g *graph.Graph, changedFiles []string) *Report {
	changed := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changed[f] = true
	}

	report := &Report{ChangedFiles: append([]string{}, changedFiles...)}
	sort.Strings(report.ChangedFiles)

	// dist holds the best known depth per node id.
	dist := make(map[string]int)
	queue := list.New() // 0/1 BFS deque: zero-cost hops go to the front

	seeds := make([]string, 0)
	for id, node := range g.Nodes {
		if node.Kind != model.KindTest && node.Kind != model.KindCode {
			continue
		}
		if path, ok := model.FilePathOf(id); ok && changed[path] {
			seeds = append(seeds, id)
		}
	}
	sort.Strings(seeds)
	for _, id := range seeds {
		dist[id] = 0
		queue.PushBack(queueItem{id: id, depth: 0})
	}

	for queue.Len() > 0 {
		select {
		case <-ctx.Done():
			report.Incomplete = true
			a.finish(g, report, dist)
			return report
		default:
		}

		front := queue.Front()
		queue.Remove(front)
		item := front.Value.(queueItem)

		if item.depth > dist[item.id] {
			continue // stale queue entry
		}

		for _, n := range neighbors(g, item.id) {
			nd := item.depth + n.cost
			if a.maxDepth > 0 && nd > a.maxDepth {
				continue
			}
			if best, seen := dist[n.id]; seen && best <= nd {
				continue
			}
			dist[n.id] = nd
			if n.cost == 0 {
				queue.PushFront(queueItem{id: n.id, depth: nd})
			} else {
				queue.PushBack(queueItem{id: n.id, depth: nd})
			}
		}
	}

	a.finish(g, report, dist)
	return report
}

type neighbor struct {
	id   string
	cost int
}

// neighbors enumerates reachable nodes with their traversal cost. All edge
// types are walked in both directions; cycles are handled by the best-depth
// guard in the caller.
func neighbors(g *graph.Graph, id string) []neighbor {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}

	var out []neighbor
	add := func(e *graph.Edge, otherID string) {
		other, ok := g.Nodes[otherID]
		if !ok {
			return // dangling edge: validate reports it, impact skips it
		}
		out = append(out, neighbor{id: otherID, cost: crossingCost(node.Kind, other.Kind, e.Type)})
	}

	for _, e := range g.Out(id) {
		add(e, e.To)
	}
	for _, e := range g.In(id) {
		add(e, e.From)
	}

	// An AC travels with its specification at no cost, and vice versa.
	switch node.Kind {
	case model.KindAC:
		if specID, _, ok := model.SplitACNodeID(id); ok {
			if _, exists := g.Nodes[specID]; exists {
				out = append(out, neighbor{id: specID, cost: 0})
			}
		}
	case model.KindSpec:
		for acID, n := range g.Nodes {
			if n.Kind != model.KindAC {
				continue
			}
			if owner, _, _ := model.SplitACNodeID(acID); owner == id {
				out = append(out, neighbor{id: acID, cost: 0})
			}
		}
	}

	return out
}

// crossingCost implements the depth model: entering a specification costs a
// level, leaving one toward its own tests/code does not.
func crossingCost(fromKind, toKind model.NodeKind, edgeType model.LinkType) int {
	specSide := func(k model.NodeKind) bool { return k == model.KindSpec || k == model.KindAC }

	if edgeType == model.LinkTests || edgeType == model.LinkImplements {
		if specSide(fromKind) && !specSide(toKind) {
			return 0
		}
		return 1
	}
	return 1
}

// finish buckets discovered nodes by type, excluding depth-0 seeds, and
// computes the risk score.
func (a *Analyzer) finish(g *graph.Graph, report *Report, dist map[string]int) {
	specDepth := make(map[string]int)

	for id, d := range dist {
		node := g.Nodes[id]
		if node == nil {
			continue
		}

		switch node.Kind {
		case model.KindSpec:
			if best, ok := specDepth[id]; !ok || d < best {
				specDepth[id] = d
			}
		case model.KindAC:
			// ACs report under their owning specification.
			if specID, _, ok := model.SplitACNodeID(id); ok {
				if best, ok := specDepth[specID]; !ok || d < best {
					specDepth[specID] = d
				}
			}
		case model.KindTest:
			if d > 0 {
				report.ByType.Tests = append(report.ByType.Tests, Affected{ID: id, Depth: d})
			}
		case model.KindCode:
			if d > 0 {
				report.ByType.Code = append(report.ByType.Code, Affected{ID: id, Depth: d})
			}
		case model.KindPattern, model.KindFailure:
			report.ByType.Knowledge = append(report.ByType.Knowledge, Affected{ID: id, Depth: d})
		}
	}

	for id, d := range specDepth {
		report.ByType.Specs = append(report.ByType.Specs, Affected{ID: id, Depth: d})
	}

	for _, bucket := range []*[]Affected{
		&report.ByType.Specs, &report.ByType.Tests, &report.ByType.Code, &report.ByType.Knowledge,
	} {
		sort.Slice(*bucket, func(i, j int) bool {
			a, b := (*bucket)[i], (*bucket)[j]
			if a.Depth != b.Depth {
				return a.Depth < b.Depth
			}
			return a.ID < b.ID
		})
		for _, item := range *bucket {
			if item.Depth > report.MaxDepth {
				report.MaxDepth = item.Depth
			}
		}
	}

	report.RiskScore = float64(len(report.ByType.Specs))*a.specWeight +
		float64(report.MaxDepth)*a.depthWeight
	report.RiskLevel = ClassifyRisk(report.RiskScore)
}
