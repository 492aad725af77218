// Package merge implements the Merge Engine spec.md §4.7 describes: two
// independent policies (three-way tree merge and context/subject-overlap
// merge) over the Git Repository Adapter, each producing either a
// dual-parent commit or a structured conflict report with no ref movement.
package merge

import (
	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/internal/store"
)

// loadDatasetAt rebuilds a dataset and its registry view from scratch at
// oid. Deliberately not cached (unlike internal/pipeline's refState): a
// merge reads three distinct commits (base, target, source) once each and
// is not on the hot query path, so a dedicated cache would add complexity
// the call pattern doesn't reward.
func loadDatasetAt(tree GitTree, mode registry.Mode, configPath, oid string) (*store.Dataset, *registry.Registry, error) {
	reg := registry.New(mode, configPath)
	if err := reg.Discover(tree, oid); err != nil {
		return nil, nil, err
	}
	ds := store.New()
	for _, b := range reg.Bindings() {
		content, err := tree.ReadBlob(oid, b.Path)
		if err != nil {
			ds.EnsureGraph(string(b.Graph))
			continue
		}
		triples, err := registry.DecodeTriples(content)
		if err != nil {
			return nil, nil, errs.Wrap(errs.IOFailure, err, "decode graph file %s", b.Path)
		}
		ds.LoadGraph(string(b.Graph), triples)
	}
	return ds, reg, nil
}

func allGraphs(datasets ...*store.Dataset) []string {
	seen := map[string]bool{}
	var out []string
	for _, ds := range datasets {
		for _, g := range ds.Graphs() {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out
}
