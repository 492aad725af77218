package provenance

import (
	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/pkg/quadstore"
)

type graphDelta struct {
	additions []quadstore.Triple
	removals  []quadstore.Triple
}

// diffCommit compares every bound graph at oid against the same graph at
// parentOID (absent entirely when oid is the repository root) and returns
// the non-empty deltas, keyed by graph IRI.
func diffCommit(tree GitTree, mode registry.Mode, configPath, oid, parentOID string) (map[string]graphDelta, error) {
	childTriples, err := graphContents(tree, mode, configPath, oid)
	if err != nil {
		return nil, err
	}
	var parentTriples map[string][]quadstore.Triple
	if parentOID != "" {
		parentTriples, err = graphContents(tree, mode, configPath, parentOID)
		if err != nil {
			return nil, err
		}
	}

	graphs := map[string]bool{}
	for g := range childTriples {
		graphs[g] = true
	}
	for g := range parentTriples {
		graphs[g] = true
	}

	deltas := map[string]graphDelta{}
	for g := range graphs {
		d := diffTriples(parentTriples[g], childTriples[g])
		if len(d.additions) > 0 || len(d.removals) > 0 {
			deltas[g] = d
		}
	}
	return deltas, nil
}

func diffTriples(before, after []quadstore.Triple) graphDelta {
	beforeSet := make(map[string]quadstore.Triple, len(before))
	for _, t := range before {
		beforeSet[t.Key()] = t
	}
	afterSet := make(map[string]quadstore.Triple, len(after))
	for _, t := range after {
		afterSet[t.Key()] = t
	}

	var d graphDelta
	for k, t := range afterSet {
		if _, ok := beforeSet[k]; !ok {
			d.additions = append(d.additions, t)
		}
	}
	for k, t := range beforeSet {
		if _, ok := afterSet[k]; !ok {
			d.removals = append(d.removals, t)
		}
	}
	return d
}

func graphContents(tree GitTree, mode registry.Mode, configPath, oid string) (map[string][]quadstore.Triple, error) {
	reg := registry.New(mode, configPath)
	if err := reg.Discover(tree, oid); err != nil {
		return nil, err
	}
	out := map[string][]quadstore.Triple{}
	for _, b := range reg.Bindings() {
		content, err := tree.ReadBlob(oid, b.Path)
		if err != nil {
			continue
		}
		triples, err := registry.DecodeTriples(content)
		if err != nil {
			return nil, errs.Wrap(errs.IOFailure, err, "decode graph file %s at %s", b.Path, oid)
		}
		out[string(b.Graph)] = triples
	}
	return out, nil
}
