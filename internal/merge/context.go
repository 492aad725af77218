package merge

import (
	"fmt"
	"sort"

	"github.com/cayleygraph/quad"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// graphDelta is Δ(g) for one side of a merge: the triples base(g) lacks
// that side's graph has (additions) and the triples base(g) has that
// side's graph lacks (removals) — spec.md §4.7's symmetric difference.
type graphDelta struct {
	additions []quadstore.Triple
	removals  []quadstore.Triple
}

func diffGraph(base, side []quadstore.Triple) graphDelta {
	baseSet := tripleSet(base)
	sideSet := tripleSet(side)
	var d graphDelta
	for k, t := range sideSet {
		if _, ok := baseSet[k]; !ok {
			d.additions = append(d.additions, t)
		}
	}
	for k, t := range baseSet {
		if _, ok := sideSet[k]; !ok {
			d.removals = append(d.removals, t)
		}
	}
	return d
}

func tripleSet(triples []quadstore.Triple) map[string]quadstore.Triple {
	m := make(map[string]quadstore.Triple, len(triples))
	for _, t := range triples {
		m[t.Key()] = t
	}
	return m
}

// nodesOf returns the set of RDF nodes (subject and object positions —
// predicates are edge labels, not nodes, in the graph reading spec.md §8
// scenario 5 uses to justify its conflict) a delta's changed triples touch.
func nodesOf(d graphDelta) map[string]bool {
	nodes := map[string]bool{}
	add := func(t quadstore.Triple) {
		nodes[quad.StringOf(t.Subject)] = true
		nodes[quad.StringOf(t.Object)] = true
	}
	for _, t := range d.additions {
		add(t)
	}
	for _, t := range d.removals {
		add(t)
	}
	return nodes
}

// excludeIdentical drops changes that appear, identically (same triple,
// same direction), on both sides — spec.md §4.7's "modulo the
// identical-triple case, which trivially merges" carve-out — before node
// overlap is computed, so a triple both sides happened to add doesn't by
// itself manufacture a conflict.
func excludeIdentical(a, b graphDelta) (graphDelta, graphDelta) {
	aAdd, bAdd := tripleSet(a.additions), tripleSet(b.additions)
	aRem, bRem := tripleSet(a.removals), tripleSet(b.removals)

	filterAdd := func(set map[string]quadstore.Triple, other map[string]quadstore.Triple) []quadstore.Triple {
		var out []quadstore.Triple
		for k, t := range set {
			if _, dup := other[k]; !dup {
				out = append(out, t)
			}
		}
		return out
	}
	return graphDelta{additions: filterAdd(aAdd, bAdd), removals: filterAdd(aRem, bRem)},
		graphDelta{additions: filterAdd(bAdd, aAdd), removals: filterAdd(bRem, aRem)}
}

// ContextResult is the outcome of a successful context merge.
type ContextResult struct {
	Commit *quadstore.Commit
}

// ContextMerge implements spec.md §4.7's "context" policy: per graph,
// compute each side's delta against the merge base, conflict if any node
// the target's delta touches is also touched by the source's delta
// (modulo identical changes), and otherwise union base ∪ Δtarget ∪ Δsource
// minus their removals.
func ContextMerge(tree GitTree, mode registry.Mode, configPath string, targetRef, sourceRef string, author quadstore.Author) (*ContextResult, []quadstore.Conflict, error) {
	targetOID, err := tree.Resolve(targetRef)
	if err != nil {
		return nil, nil, err
	}
	sourceOID, err := tree.Resolve(sourceRef)
	if err != nil {
		return nil, nil, err
	}
	baseOID, err := tree.MergeBase(targetOID, sourceOID)
	if err != nil {
		return nil, nil, err
	}

	baseDS, _, err := loadDatasetAt(tree, mode, configPath, baseOID)
	if err != nil {
		return nil, nil, err
	}
	targetDS, targetReg, err := loadDatasetAt(tree, mode, configPath, targetOID)
	if err != nil {
		return nil, nil, err
	}
	sourceDS, _, err := loadDatasetAt(tree, mode, configPath, sourceOID)
	if err != nil {
		return nil, nil, err
	}

	merged := map[string][]quadstore.Triple{}
	var conflicts []quadstore.Conflict

	for _, g := range allGraphs(baseDS, targetDS, sourceDS) {
		dTarget := diffGraph(baseDS.TriplesIn(g), targetDS.TriplesIn(g))
		dSource := diffGraph(baseDS.TriplesIn(g), sourceDS.TriplesIn(g))

		uniqueTarget, uniqueSource := excludeIdentical(dTarget, dSource)
		if nodesOverlap(nodesOf(uniqueTarget), nodesOf(uniqueSource)) {
			conflicts = append(conflicts, quadstore.Conflict{
				Kind:        quadstore.ConflictSubjectOverlap,
				Graph:       g,
				Description: fmt.Sprintf("graph %s: target and source changes share a node", g),
				Ours:        renderTriples(dTarget.additions, dTarget.removals),
				Theirs:      renderTriples(dSource.additions, dSource.removals),
			})
			continue
		}

		result := tripleSet(baseDS.TriplesIn(g))
		for k, t := range tripleSet(dTarget.additions) {
			result[k] = t
		}
		for k, t := range tripleSet(dSource.additions) {
			result[k] = t
		}
		for k := range tripleSet(dTarget.removals) {
			delete(result, k)
		}
		for k := range tripleSet(dSource.removals) {
			delete(result, k)
		}
		out := make([]quadstore.Triple, 0, len(result))
		for _, t := range result {
			out = append(out, t)
		}
		merged[g] = out
	}

	if len(conflicts) > 0 {
		return nil, conflicts, errs.New(errs.MergeConflict, "context merge of %s into %s: %d graph(s) conflict", sourceRef, targetRef, len(conflicts))
	}

	var paths []string
	for g, triples := range merged {
		binding, err := targetReg.Resolve(g)
		if err != nil {
			if errs.KindOf(err) != errs.UnknownGraph {
				return nil, nil, err
			}
			binding, err = targetReg.Allocate(tree, targetOID, g)
			if err != nil {
				return nil, nil, err
			}
		}
		if err := targetReg.Rewrite(tree, binding, sortTriples(triples)); err != nil {
			return nil, nil, err
		}
		paths = append(paths, binding.Path)
	}
	paths = append(paths, targetReg.TakePendingPaths()...)
	sort.Strings(paths)

	if len(paths) == 0 {
		commit, err := tree.Resolve(targetRef)
		if err != nil {
			return nil, nil, err
		}
		return &ContextResult{Commit: &quadstore.Commit{OID: commit}}, nil, nil
	}

	message := fmt.Sprintf("Merge %s into %s\n\nMethod: context\n", sourceRef, targetRef)
	newOID, err := tree.CommitPaths(paths, []string{targetOID, sourceOID}, author, author, message)
	if err != nil {
		return nil, nil, err
	}
	if err := tree.UpdateRef(targetRef, newOID); err != nil {
		return nil, nil, err
	}
	return &ContextResult{Commit: &quadstore.Commit{OID: newOID, Parents: []string{targetOID, sourceOID}}}, nil, nil
}

func nodesOverlap(a, b map[string]bool) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for n := range a {
		if b[n] {
			return true
		}
	}
	return false
}

func renderTriples(additions, removals []quadstore.Triple) []string {
	out := make([]string, 0, len(additions)+len(removals))
	for _, t := range additions {
		out = append(out, "+ "+t.String())
	}
	for _, t := range removals {
		out = append(out, "- "+t.String())
	}
	sort.Strings(out)
	return out
}

func sortTriples(triples []quadstore.Triple) []quadstore.Triple {
	sort.Slice(triples, func(i, j int) bool { return triples[i].String() < triples[j].String() })
	return triples
}
