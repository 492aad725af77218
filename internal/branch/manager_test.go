package branch_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksw/quit-go/internal/branch"
	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/pipeline"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/internal/sparqlfacade"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// fakeTree is a shared in-memory stand-in for *gitadapter.Adapter,
// satisfying both pipeline.GitTree and branch.GitTree so this package can
// exercise branch creation/deletion/switching against the same commit
// store the Update Pipeline writes to.
type fakeTree struct {
	commits map[string]map[string][]byte
	refs    map[string]string
	working map[string][]byte
	head    string
	counter int
}

func newFakeTree() *fakeTree {
	return &fakeTree{
		commits: map[string]map[string][]byte{"c0": {}},
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
	if _, ok := f.commits[refOrOID]; ok {
		return refOrOID, nil
	}
	return "", errs.New(errs.UnknownRef, "unknown ref %s", refOrOID)
}

func (f *fakeTree) HeadRef() (string, error) {
	return "refs/heads/" + f.head, nil
}

func (f *fakeTree) CommitPaths(paths []string, parents []string, author, committer quadstore.Author, message string) (string, error) {
	parent := f.commits[parents[0]]
	snap := make(map[string][]byte, len(parent)+len(paths))
	for k, v := range parent {
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
	return oid, nil
}

func (f *fakeTree) UpdateRef(name, oid string) error {
	if name == "" {
		name = f.head
	}
	f.refs[name] = oid
	return nil
}

func (f *fakeTree) CreateBranch(name, fromOID string) error {
	if _, ok := f.refs[name]; ok {
		return errs.New(errs.RefExists, "branch %s already exists", name)
	}
	f.refs[name] = fromOID
	return nil
}

func (f *fakeTree) DeleteBranch(name string) error {
	if name == f.head {
		return errs.New(errs.CannotDeleteHead, "cannot delete current HEAD branch %s", name)
	}
	if _, ok := f.refs[name]; !ok {
		return errs.New(errs.UnknownRef, "branch %s does not exist", name)
	}
	delete(f.refs, name)
	return nil
}

func (f *fakeTree) Switch(name string) error {
	if _, ok := f.refs[name]; !ok {
		return errs.New(errs.UnknownRef, "branch %s does not exist", name)
	}
	f.head = name
	return nil
}

func (f *fakeTree) ListRefs() ([]quadstore.Reference, error) {
	out := make([]quadstore.Reference, 0, len(f.refs))
	for name, oid := range f.refs {
		out = append(out, quadstore.Reference{Name: name, Target: oid})
	}
	return out, nil
}

func newTestRig() (*fakeTree, *pipeline.Pipeline, *branch.Manager) {
	tree := newFakeTree()
	eng := sparqlfacade.NewDefaultEngine(false)
	author := quadstore.Author{Name: "quit", Email: "quit@localhost"}
	pl := pipeline.New(tree, eng, registry.ModeSidecar, "", author)
	mgr := branch.New(tree, pl)
	return tree, pl, mgr
}

// TestBranchIsolation_Scenario3 pins spec.md §8 scenario 3: a graph with one
// triple, a new branch, and diverging inserts on each side observe only
// their own branch's history.
func TestBranchIsolation_Scenario3(t *testing.T) {
	_, pl, mgr := newTestRig()

	_, err := pl.Update("main", `INSERT DATA { GRAPH <urn:g> { <urn:s0> <urn:p0> <urn:o0> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	_, err = mgr.Create("main", "develop")
	require.NoError(t, err)

	_, err = pl.Update("main", `INSERT DATA { GRAPH <urn:g> { <urn:s1> <urn:p1> <urn:o1> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	_, err = pl.Update("develop", `INSERT DATA { GRAPH <urn:g> { <urn:s2> <urn:p2> <urn:o2> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	askT1OnMain, err := pl.Query("main", `ASK WHERE { GRAPH <urn:g> { <urn:s1> <urn:p1> <urn:o1> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, askT1OnMain.Boolean)

	askT2OnMain, err := pl.Query("main", `ASK WHERE { GRAPH <urn:g> { <urn:s2> <urn:p2> <urn:o2> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.False(t, askT2OnMain.Boolean)

	askT2OnDevelop, err := pl.Query("develop", `ASK WHERE { GRAPH <urn:g> { <urn:s2> <urn:p2> <urn:o2> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, askT2OnDevelop.Boolean)

	askT1OnDevelop, err := pl.Query("develop", `ASK WHERE { GRAPH <urn:g> { <urn:s1> <urn:p1> <urn:o1> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.False(t, askT1OnDevelop.Boolean)
}

func TestCreate_DuplicateNameFails(t *testing.T) {
	_, _, mgr := newTestRig()
	_, err := mgr.Create("main", "develop")
	require.NoError(t, err)
	_, err = mgr.Create("main", "develop")
	require.Error(t, err)
	assert.Equal(t, errs.RefExists, errs.KindOf(err))
}

func TestDelete_CurrentHeadFails(t *testing.T) {
	_, _, mgr := newTestRig()
	err := mgr.Delete("main")
	require.Error(t, err)
	assert.Equal(t, errs.CannotDeleteHead, errs.KindOf(err))
}

func TestSwitch_MovesHead(t *testing.T) {
	tree, _, mgr := newTestRig()
	_, err := mgr.Create("main", "develop")
	require.NoError(t, err)
	require.NoError(t, mgr.Switch("develop"))

	head, err := mgr.Head()
	require.NoError(t, err)
	assert.Equal(t, "develop", head)
	assert.Equal(t, "develop", tree.head)
}

func TestList_ReturnsAllBranches(t *testing.T) {
	_, _, mgr := newTestRig()
	_, err := mgr.Create("main", "develop")
	require.NoError(t, err)

	refs, err := mgr.List()
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}
