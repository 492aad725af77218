// Package pipeline implements the Update Pipeline spec.md §4.5 describes:
// the sequence that turns one SPARQL Update string into exactly one git
// commit, or no commit at all. It is the only component allowed to call
// CommitPaths/UpdateRef on the Git Repository Adapter for a query-driven
// write, and the only place spec.md §9's "shadow dataset" note is actually
// wired: every sub-operation runs against a clone of the live dataset, and
// the clone is discarded in full on the first error, matching the
// all-or-nothing resolution DESIGN.md records for spec.md §9's open
// question on partial-commit atomicity.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/internal/sparqlfacade"
	"github.com/aksw/quit-go/internal/store"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// GitTree is the subset of *gitadapter.Adapter the pipeline drives
// directly, kept narrow so tests can exercise it against a fake.
type GitTree interface {
	registry.GitTree
	Resolve(refOrOID string) (string, error)
	HeadRef() (string, error)
	CommitPaths(paths []string, parents []string, author, committer quadstore.Author, message string) (string, error)
	UpdateRef(name, oid string) error
}

// refState caches the dataset and registry view materialized at the last
// commit observed on one ref, plus the reader/writer lock spec.md §5
// requires be held per-ref (not globally) for the duration of a query or
// update.
type refState struct {
	lock     sync.RWMutex
	cacheMu  sync.Mutex
	oid      string
	dataset  *store.Dataset
	registry *registry.Registry
}

// Pipeline wires the Git Repository Adapter, the Graph-File Registry, the
// in-memory Quad Store, and the SPARQL Engine Facade into the single
// read/update entry point the rest of the core calls.
type Pipeline struct {
	tree       GitTree
	engine     sparqlfacade.Engine
	mode       registry.Mode
	configPath string
	author     quadstore.Author

	allocMu sync.Mutex // short global lock around first-time graph allocation, spec.md §5

	refsMu sync.Mutex
	refs   map[string]*refState
}

// New constructs a Pipeline. mode/configPath select the Graph-File
// Registry's discovery mode (spec.md §4.1); author is used as both author
// and committer identity for every commit the pipeline produces, matching
// spec.md §6's fixed service identity for machine-originated commits.
func New(tree GitTree, engine sparqlfacade.Engine, mode registry.Mode, configPath string, author quadstore.Author) *Pipeline {
	return &Pipeline{
		tree:       tree,
		engine:     engine,
		mode:       mode,
		configPath: configPath,
		author:     author,
		refs:       map[string]*refState{},
	}
}

// Evict drops any cached dataset/registry state for ref, used by the
// Branch/Ref Manager after deleting a branch so a future create of a
// same-named branch never sees a stale cache entry.
func (p *Pipeline) Evict(ref string) {
	p.refsMu.Lock()
	defer p.refsMu.Unlock()
	delete(p.refs, ref)
}

func (p *Pipeline) refStateFor(ref string) *refState {
	p.refsMu.Lock()
	defer p.refsMu.Unlock()
	rs, ok := p.refs[ref]
	if !ok {
		rs = &refState{}
		p.refs[ref] = rs
	}
	return rs
}

// normalizeRef resolves "" to the repository's current HEAD branch name so
// an anonymous query/update always maps to the same refState as an
// explicit one.
func (p *Pipeline) normalizeRef(ref string) (string, error) {
	if ref != "" {
		return ref, nil
	}
	head, err := p.tree.HeadRef()
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(head, "refs/heads/"), nil
}

// loadDataset returns the dataset and registry materialized at oid,
// rebuilding from the tree only when the ref's cache is stale. Guarded by
// rs.cacheMu rather than rs.lock so a reader holding rs.lock for RLock can
// still trigger (and wait out) a cache refill without contending with
// Update's exclusive lock for the whole operation.
func (p *Pipeline) loadDataset(rs *refState, oid string) (*store.Dataset, *registry.Registry, error) {
	rs.cacheMu.Lock()
	defer rs.cacheMu.Unlock()
	if rs.oid == oid && rs.dataset != nil {
		return rs.dataset, rs.registry, nil
	}

	reg := registry.New(p.mode, p.configPath)
	if err := reg.Discover(p.tree, oid); err != nil {
		return nil, nil, err
	}

	ds := store.New()
	for _, b := range reg.Bindings() {
		content, err := p.tree.ReadBlob(oid, b.Path)
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

	rs.oid, rs.dataset, rs.registry = oid, ds, reg
	return ds, reg, nil
}

func (p *Pipeline) setCache(rs *refState, oid string, ds *store.Dataset, reg *registry.Registry) {
	rs.cacheMu.Lock()
	defer rs.cacheMu.Unlock()
	rs.oid, rs.dataset, rs.registry = oid, ds, reg
}

// Query evaluates a SPARQL query against the dataset materialized at ref's
// current commit. Concurrent queries against the same ref run unimpeded of
// each other; Update excludes all of them for its duration (spec.md §5).
func (p *Pipeline) Query(ref, queryText string, opts quadstore.QueryOptions) (quadstore.QueryResult, error) {
	name, err := p.normalizeRef(ref)
	if err != nil {
		return quadstore.QueryResult{}, err
	}
	rs := p.refStateFor(name)
	rs.lock.RLock()
	defer rs.lock.RUnlock()

	oid, err := p.tree.Resolve(name)
	if err != nil {
		return quadstore.QueryResult{}, err
	}
	ds, _, err := p.loadDataset(rs, oid)
	if err != nil {
		return quadstore.QueryResult{}, err
	}
	return p.engine.Query(ds, queryText, opts)
}

// Update runs spec.md §4.5's nine-step algorithm: resolve the current
// commit, build a shadow copy of the dataset, execute every update
// sub-operation against the shadow only, rewrite just the graph files the
// shadow actually touched, commit those paths with the current commit as
// parent, advance the ref, and promote the shadow to the live cache. Any
// failure before the commit leaves the ref, its working-tree files, and its
// cached dataset completely untouched.
func (p *Pipeline) Update(ref, updateText string, opts quadstore.UpdateOptions) (*quadstore.UpdateReport, error) {
	name, err := p.normalizeRef(ref)
	if err != nil {
		return nil, err
	}
	rs := p.refStateFor(name)
	rs.lock.Lock()
	defer rs.lock.Unlock()

	before, err := p.tree.Resolve(name)
	if err != nil {
		return nil, err
	}
	ds, reg, err := p.loadDataset(rs, before)
	if err != nil {
		return nil, err
	}

	shadow := ds.Clone()
	changeSets, kinds, err := p.engine.Update(shadow, updateText, opts)
	if err != nil {
		return nil, err
	}

	touched := touchedGraphs(changeSets)
	paths, err := p.materialize(reg, before, touched, shadow, droppedGraphs(changeSets, kinds))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		// No sub-operation produced an observable change (e.g. DELETE DATA
		// of triples already absent): the update succeeds without a commit,
		// the ref stays where it was, and the report's After equals Before.
		return &quadstore.UpdateReport{Before: before, After: before, ChangeSets: changeSets, Operations: kinds}, nil
	}

	message := buildCommitMessage(updateText, kinds)
	after, err := p.tree.CommitPaths(paths, []string{before}, p.author, p.author, message)
	if err != nil {
		return nil, err
	}
	if err := p.tree.UpdateRef(name, after); err != nil {
		return nil, err
	}

	p.setCache(rs, after, shadow, reg)
	return &quadstore.UpdateReport{Before: before, After: after, ChangeSets: changeSets, Operations: kinds}, nil
}

// materialize allocates bindings for any newly-seen graph, rewrites every
// touched graph's file from the shadow dataset's post-update contents, and
// unbinds graphs a DROP fully removed (config mode only — sidecar mode
// keeps the marker file per spec.md §4.1). It returns the set of paths that
// actually changed, for CommitPaths.
func (p *Pipeline) materialize(reg *registry.Registry, oid string, touched []string, shadow *store.Dataset, dropped map[string]bool) ([]string, error) {
	var paths []string
	for _, g := range touched {
		binding, err := reg.Resolve(g)
		if err != nil {
			if errs.KindOf(err) != errs.UnknownGraph {
				return nil, err
			}
			p.allocMu.Lock()
			binding, err = reg.Allocate(p.tree, oid, g)
			p.allocMu.Unlock()
			if err != nil {
				return nil, err
			}
		}
		if err := reg.Rewrite(p.tree, binding, shadow.TriplesIn(g)); err != nil {
			return nil, err
		}
		paths = append(paths, binding.Path)
	}

	if p.mode == registry.ModeConfig {
		unbound := false
		for g := range dropped {
			if len(shadow.TriplesIn(g)) == 0 {
				reg.Unbind(g)
				unbound = true
			}
		}
		if unbound {
			if err := p.tree.WriteWorkingFile(p.configPath, registry.EncodeBindingsDocument(reg.Bindings())); err != nil {
				return nil, err
			}
			paths = append(paths, p.configPath)
		}
	}

	paths = append(paths, reg.TakePendingPaths()...)
	paths = dedupeSorted(paths)
	return paths, nil
}

func dedupeSorted(paths []string) []string {
	sort.Strings(paths)
	out := paths[:0]
	var last string
	for i, p := range paths {
		if i > 0 && p == last {
			continue
		}
		out = append(out, p)
		last = p
	}
	return out
}

// droppedGraphs returns the graphs targeted by an OpDrop sub-operation,
// correlating changeSets and kinds by the index the engine returns them at
// (one pair per sub-operation, in execution order).
func droppedGraphs(changeSets []quadstore.ChangeSet, kinds []quadstore.OperationType) map[string]bool {
	out := map[string]bool{}
	for i, k := range kinds {
		if k != quadstore.OpDrop || i >= len(changeSets) {
			continue
		}
		for _, g := range changeSets[i].Graphs() {
			out[g] = true
		}
	}
	return out
}

func touchedGraphs(changeSets []quadstore.ChangeSet) []string {
	seen := map[string]bool{}
	var out []string
	for _, cs := range changeSets {
		for _, g := range cs.Graphs() {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	sort.Strings(out)
	return out
}

// buildCommitMessage renders spec.md §6's commit message format: a fixed
// summary line, the verbatim query text, and an OperationTypes trailer
// listing each sub-operation's coarse label in execution order.
func buildCommitMessage(updateText string, kinds []quadstore.OperationType) string {
	labels := make([]string, len(kinds))
	for i, k := range kinds {
		labels[i] = string(k)
	}
	var b strings.Builder
	b.WriteString("New Commit from QuitStore\n\n")
	fmt.Fprintf(&b, "Query: %q\n", strings.TrimSpace(updateText))
	fmt.Fprintf(&b, "OperationTypes: %q\n", strings.Join(labels, ", "))
	return b.String()
}
