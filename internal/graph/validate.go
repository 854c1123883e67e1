package graph

import (
	"sort"
	"strings"

	"tkb/internal/errors"
	"tkb/internal/model"
)

// ValidationReport collects the findings of all validation passes.
// It is returned alongside the graph even when fatal errors exist, so
// coverage and impact can still run best-effort; the CLI surfaces the fatal
// status through its exit code.
type ValidationReport struct {
	Errors   []*errors.TkbError `json:"errors"`
	Warnings []*errors.TkbError `json:"warnings"`
}

// Fatal reports whether any finding should fail the validate gate.
func (r *ValidationReport) Fatal() bool {
	return len(r.Errors) > 0
}

// Add routes a finding to errors or warnings by severity.
func (r *ValidationReport) Add(e *errors.TkbError) {
	if e.IsFatal() {
		r.Errors = append(r.Errors, e)
	} else {
		r.Warnings = append(r.Warnings, e)
	}
}

// Validate runs the passes in order: referential integrity,
// bidirectionality, cycle detection on parent/blocks, orphan detection.
// Findings are sorted so an unchanged graph yields an identical report.
func Validate(g *Graph) *ValidationReport {
	report := &ValidationReport{}

	checkIntegrity(g, report)
	checkBidirectionality(g, report)
	checkCycles(g, report)
	checkOrphans(g, report)

	sortFindings(report.Errors)
	sortFindings(report.Warnings)
	return report
}

// checkIntegrity: every edge target must exist as a node.
func checkIntegrity(g *Graph, report *ValidationReport) {
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.To]; ok {
			continue
		}
		err := errors.New(errors.ReferenceIntegrity,
			"dangling "+string(e.Type)+" reference from "+e.From+" to "+e.To)
		if e.Pos.File != "" {
			err = err.At(e.Pos.File, e.Pos.Line)
		}
		report.Add(err.WithDetails(map[string]string{
			"from": e.From, "to": e.To, "type": string(e.Type),
		}))
	}
}

// checkBidirectionality: a spec declaring a tests back-reference
// (Verified-By) expects the named test to declare a forward tests or
// implements reference to the spec or one of its ACs.
func checkBidirectionality(g *Graph, report *ValidationReport) {
	for _, e := range g.Edges {
		if e.Type != model.LinkTests {
			continue
		}
		from, ok := g.Nodes[e.From]
		if !ok || from.Kind != model.KindSpec {
			continue // forward reference, not a back-reference
		}

		if !declaresForwardRef(g, e.To, e.From) {
			err := errors.New(errors.AsymmetricLink,
				e.To+" is declared as verifying "+e.From+" but carries no Tests: reference back")
			if e.Pos.File != "" {
				err = err.At(e.Pos.File, e.Pos.Line)
			}
			report.Add(err)
		}
	}
}

func declaresForwardRef(g *Graph, testID, specID string) bool {
	for _, out := range g.Out(testID) {
		if out.Type != model.LinkTests && out.Type != model.LinkImplements {
			continue
		}
		target, _, _ := model.SplitACNodeID(out.To)
		if target == specID {
			return true
		}
	}
	return false
}

// checkCycles: the parent and blocks subgraph must be a DAG. DFS with a
// recursion-stack set; revisiting a node on the stack yields the full cycle
// as an ordered id list. Each cycle is reported once.
func checkCycles(g *Graph, report *ValidationReport) {
	const (
		white = 0 // unvisited
		gray  = 1 // on recursion stack
		black = 2 // finished
	)
	color := make(map[string]int)
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		// Deterministic neighbor order.
		targets := make([]string, 0)
		for _, e := range g.Out(id) {
			if e.Type == model.LinkParent || e.Type == model.LinkBlocks {
				targets = append(targets, e.To)
			}
		}
		sort.Strings(targets)

		for _, to := range targets {
			if _, exists := g.Nodes[to]; !exists {
				continue // dangling, already reported by integrity pass
			}
			switch color[to] {
			case white:
				visit(to)
			case gray:
				// Found a cycle: slice the stack from the first occurrence
				// of the revisited node, then close the loop.
				start := 0
				for i, n := range stack {
					if n == to {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), to)
				report.Add(errors.New(errors.CycleDetected,
					"cycle in parent/blocks graph: "+strings.Join(path, " -> ")).
					WithDetails(map[string]interface{}{"path": path}))
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range g.sortedNodeIDs() {
		if color[id] == white {
			visit(id)
		}
	}
}

// checkOrphans: specifications with zero incoming tests/implements edges.
func checkOrphans(g *Graph, report *ValidationReport) {
	for _, id := range g.sortedNodeIDs() {
		node := g.Nodes[id]
		if node.Kind != model.KindSpec {
			continue
		}

		if countVerifying(g, id) == 0 {
			report.Add(errors.New(errors.OrphanSpec,
				"specification "+id+" has no tests or implementing code"))
		}
	}
}

// countVerifying counts incoming tests/implements edges on the spec or any
// of its AC nodes. Only edges sourced from an existing test or code node
// count; spec-declared back-references and edges with an unknown source do
// not verify anything.
func countVerifying(g *Graph, specID string) int {
	count := 0
	match := func(e *Edge) {
		if e.Type != model.LinkTests && e.Type != model.LinkImplements {
			return
		}
		from, ok := g.Nodes[e.From]
		if !ok {
			return
		}
		if from.Kind != model.KindTest && from.Kind != model.KindCode {
			return
		}
		count++
	}

	for _, e := range g.In(specID) {
		match(e)
	}
	for acID, node := range g.Nodes {
		if node.Kind != model.KindAC {
			continue
		}
		if owner, _, _ := model.SplitACNodeID(acID); owner != specID {
			continue
		}
		for _, e := range g.In(acID) {
			match(e)
		}
	}
	return count
}

func sortFindings(findings []*errors.TkbError) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Message != b.Message {
			return a.Message < b.Message
		}
		aPos, bPos := "", ""
		if a.Position != nil {
			aPos = a.Position.String()
		}
		if b.Position != nil {
			bPos = b.Position.String()
		}
		return aPos < bPos
	})
}
