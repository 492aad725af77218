package merge

import (
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// GitTree is the subset of *gitadapter.Adapter the Merge Engine drives.
type GitTree interface {
	registry.GitTree
	Resolve(refOrOID string) (string, error)
	MergeBase(aOID, bOID string) (string, error)
	CommitPaths(paths []string, parents []string, author, committer quadstore.Author, message string) (string, error)
	UpdateRef(name, oid string) error
}
