package provenance_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksw/quit-go/internal/pipeline"
	"github.com/aksw/quit-go/internal/provenance"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/internal/sparqlfacade"
	"github.com/aksw/quit-go/internal/store"
	"github.com/aksw/quit-go/pkg/quadstore"
)

const provVocab = "http://quit.aksw.org/vocab/prov#"

func str(term quadstore.Term) string { return quad.StringOf(term) }

// fakeTree is an in-memory git stand-in that, beyond the pipeline's own
// fakes, records each commit's full metadata (message, time, parents) so
// CommitObject can hand the Provenance Indexer a real commit chain to walk.
type fakeTree struct {
	commits map[string]map[string][]byte
	meta    map[string]*quadstore.Commit
	refs    map[string]string
	working map[string][]byte
	head    string
	counter int
}

func newFakeTree() *fakeTree {
	root := &quadstore.Commit{OID: "c0"}
	return &fakeTree{
		commits: map[string]map[string][]byte{"c0": {}},
		meta:    map[string]*quadstore.Commit{"c0": root},
		refs:    map[string]string{"main": "c0"},
		working: map[string][]byte{},
		head:    "main",
	}
}

func (f *fakeTree) ListFiles(oid string) ([]string, error) {
	snap := f.commits[oid]
	out := make([]string, 0, len(snap))
	for p := range snap {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeTree) ReadBlob(oid, path string) ([]byte, error) {
	content, ok := f.commits[oid][path]
	if !ok {
		return nil, fmt.Errorf("no such file %s at %s", path, oid)
	}
	return content, nil
}

func (f *fakeTree) WriteWorkingFile(path string, content []byte) error {
	f.working[path] = content
	return nil
}

func (f *fakeTree) Resolve(refOrOID string) (string, error) {
	if refOrOID == "" {
		refOrOID = f.head
	}
	if oid, ok := f.refs[refOrOID]; ok {
		return oid, nil
	}
	return refOrOID, nil
}

func (f *fakeTree) HeadRef() (string, error) {
	return "refs/heads/" + f.head, nil
}

func (f *fakeTree) CommitPaths(paths []string, parents []string, author, committer quadstore.Author, message string) (string, error) {
	base := f.commits[parents[0]]
	snap := make(map[string][]byte, len(base)+len(paths))
	for k, v := range base {
		snap[k] = v
	}
	for _, p := range paths {
		content, ok := f.working[p]
		if !ok {
			return "", fmt.Errorf("CommitPaths: %s was never written", p)
		}
		snap[p] = content
	}
	f.counter++
	oid := fmt.Sprintf("c%d", f.counter)
	f.commits[oid] = snap
	f.meta[oid] = &quadstore.Commit{
		OID:       oid,
		Parents:   append([]string(nil), parents...),
		Author:    author,
		Committer: committer,
		Message:   message,
		Time:      time.Unix(int64(f.counter), 0),
	}
	return oid, nil
}

func (f *fakeTree) UpdateRef(name, oid string) error {
	if name == "" {
		name = f.head
	}
	f.refs[name] = oid
	return nil
}

func (f *fakeTree) CommitObject(oid string) (*quadstore.Commit, error) {
	c, ok := f.meta[oid]
	if !ok {
		return nil, fmt.Errorf("no such commit %s", oid)
	}
	return c, nil
}

func newTestRig() (*fakeTree, *pipeline.Pipeline) {
	tree := newFakeTree()
	eng := sparqlfacade.NewDefaultEngine(false)
	author := quadstore.Author{Name: "quit", Email: "quit@localhost"}
	pl := pipeline.New(tree, eng, registry.ModeSidecar, "", author)
	return tree, pl
}

// canonicalize rewrites every blank node in ds to a label derived from the
// deterministic, non-blank data reachable from it (commit oid, graph IRI,
// additions-vs-removals), so two rebuilds that differ only in the random
// uuid each blank node happened to get compare equal.
func canonicalize(t *testing.T, ds *store.Dataset) []string {
	t.Helper()
	all := ds.Quads(store.Pattern{})

	predCommit := str(quad.IRI(provVocab + "commit"))
	predUpdates := str(quad.IRI(provVocab + "updates"))
	predTargets := str(quad.IRI(provVocab + "targets"))
	predGraph := str(quad.IRI(provVocab + "graph"))
	predAdditions := str(quad.IRI(provVocab + "additions"))
	predRemovals := str(quad.IRI(provVocab + "removals"))

	canon := map[string]string{}
	commitOf := func(activity quadstore.Term) string {
		for _, q := range all {
			if str(q.Subject) == str(activity) && str(q.Predicate) == predCommit {
				return str(q.Object)
			}
		}
		return ""
	}

	// Pass 1: activities, keyed by their commit oid literal.
	for _, q := range all {
		if str(q.Predicate) == predCommit {
			canon[str(q.Subject)] = "activity:" + str(q.Object)
		}
	}
	// Pass 2: updates, keyed by the activity's commit oid.
	for _, q := range all {
		if str(q.Predicate) == predUpdates {
			canon[str(q.Object)] = "update:" + commitOf(q.Subject)
		}
	}
	// Pass 3: targets, keyed by (commit oid via owning update, graph IRI).
	updateOID := map[string]string{}
	for k, v := range canon {
		if strings.HasPrefix(v, "update:") {
			updateOID[k] = strings.TrimPrefix(v, "update:")
		}
	}
	targetGraph := map[string]string{}
	for _, q := range all {
		if str(q.Predicate) == predTargets {
			oid := updateOID[str(q.Subject)]
			targetGraph[str(q.Object)] = oid
		}
	}
	for _, q := range all {
		if str(q.Predicate) == predGraph {
			oid := targetGraph[str(q.Subject)]
			canon[str(q.Subject)] = "target:" + oid + ":" + str(q.Object)
		}
	}
	// Pass 4: additions/removals, keyed by their owning (now-canonical) target.
	for _, q := range all {
		pred := str(q.Predicate)
		if pred == predAdditions || pred == predRemovals {
			kind := "additions"
			if pred == predRemovals {
				kind = "removals"
			}
			canon[str(q.Object)] = kind + ":" + canon[str(q.Subject)]
		}
	}

	// A change graph's IRI embeds its owning additions/removals blank node
	// verbatim (see changeGraphIRI), so the same raw->canonical map that
	// relabels the node also relabels the graph that hangs off it.
	graphCanon := map[string]string{}
	for raw, label := range canon {
		if strings.HasPrefix(label, "additions:") || strings.HasPrefix(label, "removals:") {
			graphCanon["urn:quit:prov:changes:"+raw] = "graph:" + label
		}
	}

	relabel := func(term quadstore.Term) string {
		if term == nil {
			return ""
		}
		s := str(term)
		if c, ok := canon[s]; ok {
			return c
		}
		return s
	}

	var out []string
	for _, q := range all {
		g := string(q.Graph)
		if c, ok := graphCanon[g]; ok {
			g = c
		}
		out = append(out, relabel(q.Subject)+" "+relabel(q.Predicate)+" "+relabel(q.Object)+" "+g)
	}
	sort.Strings(out)
	return out
}

// TestRebuild_Deterministic rebuilds the same three-commit history twice and
// asserts the canonicalized results are byte-identical, pinning spec.md
// §4.8's "deterministic modulo blank-node identity" guarantee.
func TestRebuild_Deterministic(t *testing.T) {
	tree, pl := newTestRig()

	_, err := pl.Update("main", `CREATE GRAPH <urn:g>`, quadstore.UpdateOptions{})
	require.NoError(t, err)
	_, err = pl.Update("main", `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)
	_, err = pl.Update("main", `DELETE DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }} ; INSERT DATA { GRAPH <urn:g> { <urn:d> <urn:e> <urn:f> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	head := tree.refs["main"]

	first, err := provenance.Rebuild(tree, registry.ModeSidecar, "", head)
	require.NoError(t, err)
	second, err := provenance.Rebuild(tree, registry.ModeSidecar, "", head)
	require.NoError(t, err)

	assert.Equal(t, canonicalize(t, first), canonicalize(t, second))
}

// TestRebuild_Content checks an Activity exists per commit, an Update only
// on commits that actually changed graph content, and that the addition
// recorded for the second commit is the triple it actually inserted.
func TestRebuild_Content(t *testing.T) {
	tree, pl := newTestRig()

	_, err := pl.Update("main", `CREATE GRAPH <urn:g>`, quadstore.UpdateOptions{})
	require.NoError(t, err)
	_, err = pl.Update("main", `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	head := tree.refs["main"]
	ds, err := provenance.Rebuild(tree, registry.ModeSidecar, "", head)
	require.NoError(t, err)

	activities := ds.Quads(store.Pattern{Predicate: iri("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), Object: iri("http://quit.aksw.org/vocab/prov#Activity")})
	assert.Len(t, activities, 3, "one activity per commit: the repository root plus the CREATE GRAPH and INSERT DATA commits")

	updates := ds.Quads(store.Pattern{Predicate: iri("http://quit.aksw.org/vocab/prov#updates")})
	require.Len(t, updates, 1, "CREATE GRAPH produced no content delta so gets no Update node")

	additionGraphs := ds.Quads(store.Pattern{Predicate: iri("http://quit.aksw.org/vocab/prov#additions")})
	require.Len(t, additionGraphs, 1)

	var found bool
	for _, g := range ds.Graphs() {
		for _, q := range ds.Quads(store.Pattern{Graph: g}) {
			if str(q.Subject) == str(quad.IRI("urn:a")) && str(q.Predicate) == str(quad.IRI("urn:b")) && str(q.Object) == str(quad.IRI("urn:c")) {
				found = true
			}
		}
	}
	assert.True(t, found, "the inserted triple must appear in some change graph")
}

func iri(s string) quadstore.Term { return quadstore.NewIRI(s) }
