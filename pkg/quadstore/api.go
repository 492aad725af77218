// Package quadstore defines the public, embeddable API for interacting with a
// quit-go repository. It provides a stable interface for all core
// versioning and query operations.
package quadstore

import "context"

// OpenOptions configures a repository.
type OpenOptions struct {
	// Path to the working tree / git repository root. Created (git init) if
	// it does not already contain a repository.
	Path string
	// Namespace carries original_source's `-n`/`--namespace` value. The
	// repository accepts it but does not apply it: relative IRIs resolve
	// against the body's own BASE or the BaseIRI in QueryOptions /
	// UpdateOptions.
	Namespace string
	// Mode selects how named-graph bindings are discovered: "sidecar" or
	// "config".
	Mode string
	// ConfigPath is the path (relative to Path) of the bindings document
	// when Mode is "config". Defaults to "config.ttl".
	ConfigPath string
	// DefaultGraphUnion controls whether the SPARQL default graph is the
	// union of all named graphs (true) or empty (false).
	DefaultGraphUnion bool
	// Features enables optional subsystems (see Feature).
	Features Feature
	// Author is used as both author and committer when the caller does not
	// supply one explicitly.
	Author Author
}

// ResultKind distinguishes the three shapes a SPARQL query can return.
type ResultKind string

const (
	ResultSolutions ResultKind = "solutions"
	ResultBoolean   ResultKind = "boolean"
	ResultGraph     ResultKind = "graph"
)

// QueryResult is the facade's query output, tagged by ResultKind.
type QueryResult struct {
	Kind      ResultKind
	Variables []string
	Solutions []map[string]Term
	Boolean   bool
	Graph     []Triple
}

// Repository is the public API for a versioned quad store backed by a git
// working tree. All implementations must be safe for concurrent use from
// multiple goroutines; per-ref serialization is handled internally (spec.md
// §5).
type Repository interface {
	// Query runs a SPARQL 1.1 query against the dataset bound to ref
	// (resolved per ResolveRef; "" means HEAD). Queries never acquire the
	// per-ref writer lock.
	Query(ctx context.Context, ref, query string, opts QueryOptions) (QueryResult, error)

	// Update runs a SPARQL 1.1 Update against ref's dataset and, on success,
	// produces exactly one new commit on that ref (spec.md §4.5). An update
	// that changes no graph file produces no commit; its report has After
	// equal to Before.
	Update(ctx context.Context, ref, update string, opts UpdateOptions) (*UpdateReport, error)

	// ProvenanceQuery runs a SPARQL query against the provenance dataset.
	// Returns FeatureDisabled if provenance was not enabled at Open.
	ProvenanceQuery(ctx context.Context, query string, opts QueryOptions) (QueryResult, error)

	// --- Branch / Ref Manager ---

	CreateBranch(ctx context.Context, from, name string) error
	DeleteBranch(ctx context.Context, name string) error
	Switch(ctx context.Context, name string) error
	ListReferences(ctx context.Context) ([]Reference, error)
	ResolveRef(ctx context.Context, nameOrOID string) (string, error)

	// --- History & State Inspection ---

	ReadCommit(ctx context.Context, oid string) (*Commit, error)
	Log(ctx context.Context, ref string, limit int) ([]*Commit, error)
	Blame(ctx context.Context, refOrOID, graphIRI string) ([]BlameResult, error)

	// --- Merge Engine ---

	Merge(ctx context.Context, target, branch string, method MergeMethod) ([]Conflict, error)

	// --- Remote replay ---

	Pull(ctx context.Context, remote, ref string) error

	// Close releases the underlying git repository handle and any
	// in-memory dataset caches.
	Close() error
}

// openFunc is set by the internal/repo package's init() so that this public
// package can expose Open without importing internal/repo directly (which
// would create an import cycle, since internal/repo imports pkg/quadstore
// for the shared types).
var openFunc func(ctx context.Context, opts OpenOptions) (Repository, error)

// RegisterOpener is called once, from internal/repo's init(), to wire the
// concrete implementation behind Open.
func RegisterOpener(f func(ctx context.Context, opts OpenOptions) (Repository, error)) {
	openFunc = f
}

// Open is the main entry point to the quadstore library. It initializes and
// returns a Repository for a given working-tree path.
func Open(ctx context.Context, opts OpenOptions) (Repository, error) {
	if openFunc == nil {
		panic("quadstore: no implementation registered; import github.com/aksw/quit-go/internal/repo for its side effect")
	}
	return openFunc(ctx, opts)
}
