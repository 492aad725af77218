// Package gitadapter is the thin contract over the git object store spec.md
// §4.2 describes: open/init, read blob by path at a commit, stage+commit,
// branches, checkout, fetch/push, merge base. It is the sole component that
// writes to .git/. Grounded on the pack's go-git usages (archon's
// git.Repository interface, plz-cli's branch switching) rather than the
// teacher's BadgerDB object store: once the backing store is a real git
// repository there is no role left for a second key/value object layer (see
// DESIGN.md). Working-tree writes go through the worktree's billy.Filesystem
// (the same handle go-git's own Add/Status use internally) rather than the
// os package directly, following the go-billy.Filesystem pattern the pack's
// in-memory git sessions build on.
package gitadapter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// Adapter wraps a git.Repository opened against an on-disk working tree.
type Adapter struct {
	path string
	repo *git.Repository
}

// OpenOrInit opens the repository rooted at path, initializing it (and an
// initial empty commit on "main") if it does not already exist.
func OpenOrInit(path string) (*Adapter, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return &Adapter{path: path, repo: repo}, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, errs.Wrap(errs.IOFailure, err, "open repository at %s", path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "create working tree %s", path)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "init repository at %s", path)
	}

	headRef := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))
	if err := repo.Storer.SetReference(headRef); err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "set initial HEAD")
	}

	a := &Adapter{path: path, repo: repo}
	sig := object.Signature{Name: "quit", Email: "quit@localhost", When: time.Time{}}
	if _, err := a.commitEmptyRoot(sig); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) commitEmptyRoot(sig object.Signature) (string, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return "", errs.Wrap(errs.IOFailure, err, "worktree")
	}
	hash, err := wt.Commit("Initial commit\n\nQuitStore repository root.", &git.CommitOptions{
		Author:            &sig,
		Committer:         &sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", errs.Wrap(errs.IOFailure, err, "create root commit")
	}
	return hash.String(), nil
}

// Path returns the working-tree root.
func (a *Adapter) Path() string { return a.path }

// HeadRef returns the full reference name HEAD currently points to (e.g.
// "refs/heads/main").
func (a *Adapter) HeadRef() (string, error) {
	ref, err := a.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", errs.Wrap(errs.IOFailure, err, "read HEAD")
	}
	if ref.Type() == plumbing.SymbolicReference {
		return string(ref.Target()), nil
	}
	return "", errs.New(errs.IOFailure, "HEAD is detached")
}

// Resolve resolves a ref name ("main", "refs/heads/main", "HEAD", or an
// object-id prefix) to a full commit object-id.
func (a *Adapter) Resolve(refOrOID string) (string, error) {
	if refOrOID == "" {
		refOrOID = "HEAD"
	}
	h, err := a.repo.ResolveRevision(plumbing.Revision(refOrOID))
	if err != nil {
		return "", errs.Wrap(errs.UnknownRef, err, "resolve %s", refOrOID)
	}
	return h.String(), nil
}

// ListRefs returns every local branch reference.
func (a *Adapter) ListRefs() ([]quadstore.Reference, error) {
	iter, err := a.repo.Branches()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "list branches")
	}
	defer iter.Close()

	var out []quadstore.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, quadstore.Reference{Name: string(ref.Name()), Target: ref.Hash().String()})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "iterate branches")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CommitObject fetches the commit metadata for oid.
func (a *Adapter) CommitObject(oid string) (*quadstore.Commit, error) {
	c, err := a.commitObject(oid)
	if err != nil {
		return nil, err
	}
	return toCommitRecord(c), nil
}

func (a *Adapter) commitObject(oid string) (*object.Commit, error) {
	h := plumbing.NewHash(oid)
	c, err := a.repo.CommitObject(h)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read commit %s", oid)
	}
	return c, nil
}

func toCommitRecord(c *object.Commit) *quadstore.Commit {
	parents := make([]string, 0, c.NumParents())
	c.Parents().ForEach(func(p *object.Commit) error {
		parents = append(parents, p.Hash.String())
		return nil
	})
	return &quadstore.Commit{
		OID:       c.Hash.String(),
		Tree:      c.TreeHash.String(),
		Parents:   parents,
		Author:    quadstore.Author{Name: c.Author.Name, Email: c.Author.Email},
		Committer: quadstore.Author{Name: c.Committer.Name, Email: c.Committer.Email},
		Message:   c.Message,
		Time:      c.Author.When,
	}
}

// ListFiles returns every tracked file path in the tree of oid, used by the
// Graph-File Registry to probe for filename collisions across *all*
// tracked files, not only those already bound in memory (spec.md §4.1).
func (a *Adapter) ListFiles(oid string) ([]string, error) {
	c, err := a.commitObject(oid)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read tree of %s", oid)
	}
	var paths []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.IOFailure, err, "walk tree of %s", oid)
		}
		if !entry.Mode.IsFile() {
			continue
		}
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadBlob reads the content of path as checked in at oid. Returns
// os.ErrNotExist itself (not an IOFailure) when path is absent at oid, so
// callers can distinguish "not found" from I/O failure.
func (a *Adapter) ReadBlob(oid, path string) ([]byte, error) {
	c, err := a.commitObject(oid)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read tree of %s", oid)
	}
	f, err := tree.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, os.ErrNotExist
		}
		return nil, errs.Wrap(errs.IOFailure, err, "read blob %s at %s", path, oid)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "open blob %s at %s", path, oid)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read blob %s at %s", path, oid)
	}
	return buf.Bytes(), nil
}

// WriteWorkingFile writes content to path under the working tree, creating
// parent directories as needed. It does not stage or commit.
//
// It goes through the worktree's own billy.Filesystem rather than the "os"
// package directly: that is the same handle go-git uses internally for
// every working-tree read and write, so a file written here is visible to
// wt.Add/wt.Status without the two ever disagreeing about path rooting.
func (a *Adapter) WriteWorkingFile(path string, content []byte) error {
	wt, err := a.repo.Worktree()
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "worktree")
	}
	if err := writeFile(wt.Filesystem, path, content); err != nil {
		return errs.Wrap(errs.IOFailure, err, "write %s", path)
	}
	return nil
}

// writeFile writes content to path on fs by way of a temp file plus rename,
// so a crash mid-write never leaves a partially-written tracked file behind.
func writeFile(fs billy.Filesystem, path string, content []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	f, err := fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}

// CommitPaths stages exactly the given paths (the ones the caller actually
// rewrote) and commits, leaving every other tracked file exactly as it
// stood in the working tree — this is how spec.md §4.5's "uncommitted
// local edits ... must not be lost" rule is honoured: the adapter never
// calls `Add(".")`.
func (a *Adapter) CommitPaths(paths []string, parents []string, author, committer quadstore.Author, message string) (string, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return "", errs.Wrap(errs.IOFailure, err, "worktree")
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return "", errs.Wrap(errs.IOFailure, err, "stage %s", p)
		}
	}

	parentHashes := make([]plumbing.Hash, 0, len(parents))
	for _, p := range parents {
		parentHashes = append(parentHashes, plumbing.NewHash(p))
	}

	when := time.Now()
	aSig := object.Signature{Name: author.Name, Email: author.Email, When: when}
	cSig := object.Signature{Name: committer.Name, Email: committer.Email, When: when}

	opts := &git.CommitOptions{Author: &aSig, Committer: &cSig}
	if len(parentHashes) > 0 {
		opts.Parents = parentHashes
	}
	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", errs.Wrap(errs.IOFailure, err, "commit")
	}
	return hash.String(), nil
}

// UpdateRef sets a branch reference to point at oid.
func (a *Adapter) UpdateRef(name, oid string) error {
	refName := normalizeBranchRef(name)
	ref := plumbing.NewHashReference(refName, plumbing.NewHash(oid))
	if err := a.repo.Storer.SetReference(ref); err != nil {
		return errs.Wrap(errs.IOFailure, err, "update ref %s", name)
	}
	return nil
}

// CreateBranch creates a new branch named name pointing at fromOID. Fails
// with RefExists if the branch already exists.
func (a *Adapter) CreateBranch(name, fromOID string) error {
	refName := normalizeBranchRef(name)
	if _, err := a.repo.Reference(refName, false); err == nil {
		return errs.New(errs.RefExists, "branch %s already exists", name)
	}
	ref := plumbing.NewHashReference(refName, plumbing.NewHash(fromOID))
	if err := a.repo.Storer.SetReference(ref); err != nil {
		return errs.Wrap(errs.IOFailure, err, "create branch %s", name)
	}
	return nil
}

// DeleteBranch removes a branch. Fails with CannotDeleteHead if name is the
// branch HEAD currently points to.
func (a *Adapter) DeleteBranch(name string) error {
	refName := normalizeBranchRef(name)
	head, err := a.HeadRef()
	if err == nil && head == string(refName) {
		return errs.New(errs.CannotDeleteHead, "cannot delete current HEAD branch %s", name)
	}
	if _, err := a.repo.Reference(refName, false); err != nil {
		return errs.New(errs.UnknownRef, "branch %s does not exist", name)
	}
	if err := a.repo.Storer.RemoveReference(refName); err != nil {
		return errs.Wrap(errs.IOFailure, err, "delete branch %s", name)
	}
	return nil
}

// Switch repoints the symbolic HEAD at branch name and checks its tree out
// into the working tree.
func (a *Adapter) Switch(name string) error {
	refName := normalizeBranchRef(name)
	if _, err := a.repo.Reference(refName, false); err != nil {
		return errs.New(errs.UnknownRef, "branch %s does not exist", name)
	}
	wt, err := a.repo.Worktree()
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		return errs.Wrap(errs.IOFailure, err, "checkout %s", name)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, refName)
	if err := a.repo.Storer.SetReference(head); err != nil {
		return errs.Wrap(errs.IOFailure, err, "update HEAD to %s", name)
	}
	return nil
}

// Checkout materializes the tree of oid into the working tree without
// moving any branch ref.
func (a *Adapter) Checkout(oid string) error {
	wt, err := a.repo.Worktree()
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(oid)}); err != nil {
		return errs.Wrap(errs.IOFailure, err, "checkout %s", oid)
	}
	return nil
}

// MergeBase returns the object-id of the best common ancestor of a and b.
func (a *Adapter) MergeBase(aOID, bOID string) (string, error) {
	ca, err := a.commitObject(aOID)
	if err != nil {
		return "", err
	}
	cb, err := a.commitObject(bOID)
	if err != nil {
		return "", err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", errs.Wrap(errs.IOFailure, err, "compute merge base of %s and %s", aOID, bOID)
	}
	if len(bases) == 0 {
		return "", errs.New(errs.BadRequest, "no common ancestor between %s and %s", aOID, bOID)
	}
	return bases[0].Hash.String(), nil
}

// Fetch retrieves new objects and refs from remote.
func (a *Adapter) Fetch(remote string) error {
	err := a.repo.Fetch(&git.FetchOptions{RemoteName: remote})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errs.Wrap(errs.IOFailure, err, "fetch %s", remote)
	}
	return nil
}

// Push sends ref's commits to remote.
func (a *Adapter) Push(remote, ref string) error {
	refName := normalizeBranchRef(ref)
	spec := config.RefSpec(fmt.Sprintf("%s:%s", refName, refName))
	err := a.repo.Push(&git.PushOptions{RemoteName: remote, RefSpecs: []config.RefSpec{spec}})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		if err == transport.ErrAuthenticationRequired {
			return errs.Wrap(errs.IOFailure, err, "push %s to %s: authentication required", ref, remote)
		}
		return errs.Wrap(errs.IOFailure, err, "push %s to %s", ref, remote)
	}
	return nil
}

func normalizeBranchRef(name string) plumbing.ReferenceName {
	if name == "" {
		name = "main"
	}
	rn := plumbing.ReferenceName(name)
	if rn.IsBranch() || rn == plumbing.HEAD {
		return rn
	}
	return plumbing.NewBranchReferenceName(name)
}
