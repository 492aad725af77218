package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/internal/sparqlfacade"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// fakeGitTree is an in-memory stand-in for *gitadapter.Adapter: commits are
// snapshots of a path->content map, refs are names pointing at a commit id,
// and WriteWorkingFile stages into an uncommitted working set that the next
// CommitPaths call overlays onto the parent's snapshot. This is enough to
// exercise the pipeline's nine-step algorithm without a real .git directory.
type fakeGitTree struct {
	commits map[string]map[string][]byte
	refs    map[string]string
	working map[string][]byte
	head    string
	counter int
}

func newFakeGitTree() *fakeGitTree {
	return &fakeGitTree{
		commits: map[string]map[string][]byte{"c0": {}},
		refs:    map[string]string{"main": "c0"},
		working: map[string][]byte{},
		head:    "main",
	}
}

func (f *fakeGitTree) ListFiles(oid string) ([]string, error) {
	snap := f.commits[oid]
	out := make([]string, 0, len(snap))
	for p := range snap {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeGitTree) ReadBlob(oid, path string) ([]byte, error) {
	snap := f.commits[oid]
	content, ok := snap[path]
	if !ok {
		return nil, fmt.Errorf("no such file %s at %s", path, oid)
	}
	return content, nil
}

func (f *fakeGitTree) WriteWorkingFile(path string, content []byte) error {
	f.working[path] = content
	return nil
}

func (f *fakeGitTree) Resolve(refOrOID string) (string, error) {
	if refOrOID == "" {
		refOrOID = f.head
	}
	if oid, ok := f.refs[refOrOID]; ok {
		return oid, nil
	}
	if _, ok := f.commits[refOrOID]; ok {
		return refOrOID, nil
	}
	return "", fmt.Errorf("unknown ref %s", refOrOID)
}

func (f *fakeGitTree) HeadRef() (string, error) {
	return "refs/heads/" + f.head, nil
}

func (f *fakeGitTree) CommitPaths(paths []string, parents []string, author, committer quadstore.Author, message string) (string, error) {
	parent := f.commits[parents[0]]
	snap := make(map[string][]byte, len(parent)+len(paths))
	for k, v := range parent {
		snap[k] = v
	}
	for _, p := range paths {
		content, ok := f.working[p]
		if !ok {
			return "", fmt.Errorf("CommitPaths: %s was never written to the working tree", p)
		}
		snap[p] = content
	}
	f.counter++
	oid := fmt.Sprintf("c%d", f.counter)
	f.commits[oid] = snap
	return oid, nil
}

func (f *fakeGitTree) UpdateRef(name, oid string) error {
	if name == "" {
		name = f.head
	}
	f.refs[name] = oid
	return nil
}

func newTestPipeline(tree *fakeGitTree) *Pipeline {
	engine := sparqlfacade.NewDefaultEngine(false)
	author := quadstore.Author{Name: "quit", Email: "quit@localhost"}
	return New(tree, engine, registry.ModeSidecar, "", author)
}

// TestUpdate_InsertIntoEmptyGraph pins spec.md §8 scenario 1: inserting one
// triple into a previously empty, previously unbound graph produces exactly
// one new commit and the triple round-trips back out through a query.
func TestUpdate_InsertIntoEmptyGraph(t *testing.T) {
	tree := newFakeGitTree()
	p := newTestPipeline(tree)

	update := `INSERT DATA { GRAPH <http://example.org/g> { <http://ex.org/a> <http://ex.org/b> <http://ex.org/c> . }}`
	report, err := p.Update("main", update, quadstore.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "c0", report.Before)
	assert.NotEqual(t, report.Before, report.After)
	require.Len(t, report.Operations, 1)
	assert.Equal(t, quadstore.OpInsert, report.Operations[0])

	result, err := p.Query("main", `SELECT ?s ?p ?o WHERE { GRAPH <http://example.org/g> { ?s ?p ?o }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Solutions, 1)

	// The ref actually advanced in the fake git tree, and a sidecar marker
	// was written so a fresh Registry can rediscover the binding.
	assert.Equal(t, report.After, tree.refs["main"])
	snap := tree.commits[report.After]
	foundMarker := false
	for path := range snap {
		if strings.HasSuffix(path, ".graph") {
			foundMarker = true
		}
	}
	assert.True(t, foundMarker, "expected a sidecar marker file in the commit")
}

// TestUpdate_MultiOpFailure_IsFullyAtomic pins spec.md §8 scenario 2: a
// multi-statement update where a later sub-operation fails must not leave
// any trace of the earlier sub-operations' effects — no commit, no ref
// movement, no graph file.
func TestUpdate_MultiOpFailure_IsFullyAtomic(t *testing.T) {
	tree := newFakeGitTree()
	p := newTestPipeline(tree)

	update := `INSERT DATA { GRAPH <http://example.org/g> { <http://ex.org/a> <http://ex.org/b> <http://ex.org/c> . }} ;
INSERT DATA { <http://ex.org/missing-graph-clause> <http://ex.org/b> <http://ex.org/c> . }`

	_, err := p.Update("main", update, quadstore.UpdateOptions{})
	require.Error(t, err)

	assert.Equal(t, "c0", tree.refs["main"])
	assert.Empty(t, tree.commits["c0"])
	assert.Len(t, tree.commits, 1)

	result, err := p.Query("main", `SELECT ?s ?p ?o WHERE { GRAPH <http://example.org/g> { ?s ?p ?o }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Solutions)
}

func TestUpdate_DeleteThenReQuery(t *testing.T) {
	tree := newFakeGitTree()
	p := newTestPipeline(tree)

	_, err := p.Update("main", `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	report, err := p.Update("main", `DELETE DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, quadstore.OpDelete, report.Operations[0])

	result, err := p.Query("main", `ASK WHERE { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.False(t, result.Boolean)
}

// TestQuery_DefaultsToHead checks that a query with an empty ref resolves
// to HEAD: an update on main is visible to a query that names no ref.
func TestQuery_DefaultsToHead(t *testing.T) {
	tree := newFakeGitTree()
	p := newTestPipeline(tree)
	_, err := p.Update("main", `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	result, err := p.Query("", `ASK WHERE { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, result.Boolean)
}
