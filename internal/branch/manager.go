// Package branch implements the Branch/Ref Manager spec.md §4.6 describes:
// named, mutable pointers to commits, each owning its own dataset view via
// the Update Pipeline's per-ref cache. Grounded on the teacher's
// `setReference`/`getReference`/HEAD-indirection pattern, generalized from
// the teacher's single always-current ref to the spec's arbitrary named
// refs with create/delete/switch/list.
package branch

import (
	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// GitTree is the subset of *gitadapter.Adapter the manager needs.
type GitTree interface {
	CreateBranch(name, fromOID string) error
	DeleteBranch(name string) error
	Switch(name string) error
	ListRefs() ([]quadstore.Reference, error)
	Resolve(refOrOID string) (string, error)
	HeadRef() (string, error)
}

// DatasetCache is the subset of *pipeline.Pipeline the manager needs, kept
// as an interface so the manager doesn't import the pipeline package
// directly (avoiding a branch<->pipeline import cycle, since the pipeline
// in turn never needs to call into branch).
type DatasetCache interface {
	Evict(ref string)
}

// Manager is the Branch/Ref Manager.
type Manager struct {
	tree  GitTree
	cache DatasetCache
}

// New constructs a Manager. cache may be nil if no dataset cache needs
// invalidation (e.g. in tests exercising the manager alone).
func New(tree GitTree, cache DatasetCache) *Manager {
	return &Manager{tree: tree, cache: cache}
}

// Create makes a new branch named name, pointing at the commit from
// currently resolves to. Fails with RefExists if name is already taken
// (checked by the underlying adapter).
func (m *Manager) Create(from, name string) (quadstore.Reference, error) {
	if name == "" {
		return quadstore.Reference{}, errs.New(errs.BadRequest, "branch name must not be empty")
	}
	oid, err := m.tree.Resolve(from)
	if err != nil {
		return quadstore.Reference{}, err
	}
	if err := m.tree.CreateBranch(name, oid); err != nil {
		return quadstore.Reference{}, err
	}
	return quadstore.Reference{Name: name, Target: oid}, nil
}

// Delete removes branch name. Fails with CannotDeleteHead if name is the
// current HEAD branch, or UnknownRef if it does not exist.
func (m *Manager) Delete(name string) error {
	if err := m.tree.DeleteBranch(name); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.Evict(name)
	}
	return nil
}

// Switch repoints HEAD at branch name and checks its tree out into the
// working tree. It does not itself touch any cached dataset: the next
// Query/Update against the anonymous ref ("") re-resolves HEAD and picks
// up whatever is cached for name (or loads it fresh).
func (m *Manager) Switch(name string) error {
	return m.tree.Switch(name)
}

// List returns every branch the repository currently tracks.
func (m *Manager) List() ([]quadstore.Reference, error) {
	return m.tree.ListRefs()
}

// Head returns the branch name HEAD currently points to.
func (m *Manager) Head() (string, error) {
	ref, err := m.tree.HeadRef()
	if err != nil {
		return "", err
	}
	const prefix = "refs/heads/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):], nil
	}
	return ref, nil
}
