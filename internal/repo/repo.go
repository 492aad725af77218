// Package repo wires the Git Repository Adapter, Graph-File Registry, Quad
// Store, SPARQL Engine Facade, Update Pipeline, Branch/Ref Manager, Merge
// Engine, and Provenance Indexer into the single pkg/quadstore.Repository
// implementation the rest of the world sees. It is the only package that
// imports every other internal package; nothing in internal/ imports repo
// back, so there is no cycle with pkg/quadstore.RegisterOpener's
// side-effect wiring.
package repo

import (
	"context"

	"github.com/aksw/quit-go/internal/branch"
	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/gitadapter"
	"github.com/aksw/quit-go/internal/logging"
	"github.com/aksw/quit-go/internal/merge"
	"github.com/aksw/quit-go/internal/pipeline"
	"github.com/aksw/quit-go/internal/provenance"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/internal/sparqlfacade"
	"github.com/aksw/quit-go/pkg/quadstore"
)

func init() {
	quadstore.RegisterOpener(open)
}

// GitTree is every method the core components collectively drive on
// *gitadapter.Adapter, gathered into one interface so repository can be
// constructed against a fake in tests without dragging in go-git.
type GitTree interface {
	pipeline.GitTree
	branch.GitTree
	merge.GitTree
	provenance.GitTree
	Checkout(oid string) error
	Fetch(remote string) error
}

// repository is the concrete quadstore.Repository.
type repository struct {
	tree       GitTree
	mode       registry.Mode
	configPath string
	author     quadstore.Author
	features   quadstore.Feature

	pipeline *pipeline.Pipeline
	branches *branch.Manager
}

func open(_ context.Context, opts quadstore.OpenOptions) (quadstore.Repository, error) {
	adapter, err := gitadapter.OpenOrInit(opts.Path)
	if err != nil {
		return nil, err
	}
	return newRepository(adapter, opts)
}

// newRepository builds a repository over any GitTree, split out of open so
// tests can supply a fake instead of a real *gitadapter.Adapter.
func newRepository(tree GitTree, opts quadstore.OpenOptions) (*repository, error) {
	mode := registry.ModeSidecar
	if opts.Mode == string(registry.ModeConfig) {
		mode = registry.ModeConfig
	}
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = "config.ttl"
	}
	author := opts.Author
	if author.Name == "" && author.Email == "" {
		author = quadstore.Author{Name: "quit", Email: "quit@localhost"}
	}

	engine := sparqlfacade.NewDefaultEngine(opts.DefaultGraphUnion)
	pl := pipeline.New(tree, engine, mode, configPath, author)
	bm := branch.New(tree, pl)

	return &repository{
		tree:       tree,
		mode:       mode,
		configPath: configPath,
		author:     author,
		features:   opts.Features,
		pipeline:   pl,
		branches:   bm,
	}, nil
}

func (r *repository) Query(ctx context.Context, ref, query string, opts quadstore.QueryOptions) (quadstore.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return quadstore.QueryResult{}, err
	}
	return r.pipeline.Query(ref, query, opts)
}

func (r *repository) Update(ctx context.Context, ref, update string, opts quadstore.UpdateOptions) (*quadstore.UpdateReport, error) {
	// Queries and in-memory mutations never suspend (spec.md §5), so the
	// only cancellation window the core honours is this entry check; once
	// the pipeline starts, step 4 of spec.md §4.5 always runs to
	// completion atomically.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report, err := r.pipeline.Update(ref, update, opts)
	if err != nil {
		logging.Error("update failed", "ref", ref, "error", err)
		return nil, err
	}
	logging.Info("update committed", "ref", ref, "before", report.Before, "after", report.After, "operations", len(report.Operations))
	return report, nil
}

func (r *repository) ProvenanceQuery(ctx context.Context, query string, opts quadstore.QueryOptions) (quadstore.QueryResult, error) {
	if !r.features.Has(quadstore.FeatureProvenance) {
		return quadstore.QueryResult{}, errs.New(errs.FeatureDisabled, "provenance tracking is not enabled for this repository")
	}
	if err := ctx.Err(); err != nil {
		return quadstore.QueryResult{}, err
	}
	head, err := r.tree.Resolve("")
	if err != nil {
		return quadstore.QueryResult{}, err
	}
	ds, err := provenance.Rebuild(r.tree, r.mode, r.configPath, head)
	if err != nil {
		return quadstore.QueryResult{}, err
	}
	engine := sparqlfacade.NewDefaultEngine(true)
	return engine.Query(ds, query, opts)
}

func (r *repository) CreateBranch(_ context.Context, from, name string) error {
	_, err := r.branches.Create(from, name)
	if err != nil {
		logging.Debug("branch create failed", "from", from, "name", name, "error", err)
		return err
	}
	logging.Info("branch created", "from", from, "name", name)
	return nil
}

func (r *repository) DeleteBranch(_ context.Context, name string) error {
	if err := r.branches.Delete(name); err != nil {
		logging.Debug("branch delete failed", "name", name, "error", err)
		return err
	}
	logging.Info("branch deleted", "name", name)
	return nil
}

func (r *repository) Switch(_ context.Context, name string) error {
	return r.branches.Switch(name)
}

func (r *repository) ListReferences(_ context.Context) ([]quadstore.Reference, error) {
	return r.branches.List()
}

func (r *repository) ResolveRef(_ context.Context, nameOrOID string) (string, error) {
	return r.tree.Resolve(nameOrOID)
}

func (r *repository) ReadCommit(_ context.Context, oid string) (*quadstore.Commit, error) {
	return r.tree.CommitObject(oid)
}

// Log walks ref's first-parent chain from most recent to oldest, matching
// spec.md §5's "total order equal to the first-parent commit chain" rule.
// limit <= 0 means no limit.
func (r *repository) Log(_ context.Context, ref string, limit int) ([]*quadstore.Commit, error) {
	oid, err := r.tree.Resolve(ref)
	if err != nil {
		return nil, err
	}
	var out []*quadstore.Commit
	cursor := oid
	for {
		c, err := r.tree.CommitObject(cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
		if len(c.Parents) == 0 {
			break
		}
		cursor = c.Parents[0]
	}
	return out, nil
}

// Blame attributes every triple currently in graphIRI at refOrOID to the
// most recent commit (walking first-parent history backward) that
// introduced it: the first ancestor at which the triple is no longer
// present in the parent's copy of the graph.
func (r *repository) Blame(_ context.Context, refOrOID, graphIRI string) ([]quadstore.BlameResult, error) {
	oid, err := r.tree.Resolve(refOrOID)
	if err != nil {
		return nil, err
	}
	current, err := graphTriplesAt(r.tree, r.mode, r.configPath, oid, graphIRI)
	if err != nil {
		return nil, err
	}

	remaining := make(map[string]quadstore.Triple, len(current))
	for _, t := range current {
		remaining[t.Key()] = t
	}
	owner := make(map[string]*quadstore.Commit, len(current))

	cursor := oid
	for len(remaining) > 0 {
		c, err := r.tree.CommitObject(cursor)
		if err != nil {
			return nil, err
		}
		var parentOID string
		if len(c.Parents) > 0 {
			parentOID = c.Parents[0]
		}
		var parentSet map[string]bool
		if parentOID != "" {
			parentTriples, err := graphTriplesAt(r.tree, r.mode, r.configPath, parentOID, graphIRI)
			if err != nil {
				return nil, err
			}
			parentSet = make(map[string]bool, len(parentTriples))
			for _, t := range parentTriples {
				parentSet[t.Key()] = true
			}
		}
		for key := range remaining {
			if !parentSet[key] {
				owner[key] = c
				delete(remaining, key)
			}
		}
		if parentOID == "" {
			break
		}
		cursor = parentOID
	}

	out := make([]quadstore.BlameResult, 0, len(current))
	for _, t := range current {
		out = append(out, quadstore.BlameResult{Triple: t, Commit: owner[t.Key()]})
	}
	return out, nil
}

func graphTriplesAt(tree GitTree, mode registry.Mode, configPath, oid, graphIRI string) ([]quadstore.Triple, error) {
	reg := registry.New(mode, configPath)
	if err := reg.Discover(tree, oid); err != nil {
		return nil, err
	}
	binding, err := reg.Resolve(graphIRI)
	if err != nil {
		if errs.KindOf(err) == errs.UnknownGraph {
			return nil, nil
		}
		return nil, err
	}
	content, err := tree.ReadBlob(oid, binding.Path)
	if err != nil {
		return nil, nil
	}
	return registry.DecodeTriples(content)
}

func (r *repository) Merge(_ context.Context, target, branchRef string, method quadstore.MergeMethod) ([]quadstore.Conflict, error) {
	var conflicts []quadstore.Conflict
	var err error
	switch method {
	case quadstore.MergeThreeWay:
		_, conflicts, err = merge.ThreeWayMerge(r.tree, r.mode, r.configPath, target, branchRef, r.author)
	case quadstore.MergeContext:
		_, conflicts, err = merge.ContextMerge(r.tree, r.mode, r.configPath, target, branchRef, r.author)
	default:
		return nil, errs.New(errs.BadRequest, "unknown merge method %q", method)
	}
	if err != nil {
		if len(conflicts) > 0 {
			logging.Warn("merge produced conflicts", "target", target, "source", branchRef, "method", method, "conflicts", len(conflicts))
		} else {
			logging.Error("merge failed", "target", target, "source", branchRef, "method", method, "error", err)
		}
		return conflicts, err
	}
	r.pipeline.Evict(target)
	logging.Info("merge completed", "target", target, "source", branchRef, "method", method)
	return conflicts, nil
}

// Pull fetches remote, then fast-forwards ref if remote's tip descends
// directly from ref's current tip, or three-way merges it in otherwise.
func (r *repository) Pull(_ context.Context, remote, ref string) error {
	if ref == "" {
		name, err := r.branches.Head()
		if err != nil {
			return err
		}
		ref = name
	}
	if err := r.tree.Fetch(remote); err != nil {
		return err
	}
	remoteRef := "refs/remotes/" + remote + "/" + ref
	remoteOID, err := r.tree.Resolve(remoteRef)
	if err != nil {
		return err
	}
	localOID, err := r.tree.Resolve(ref)
	if err != nil {
		return err
	}
	if localOID == remoteOID {
		return nil
	}

	base, err := r.tree.MergeBase(localOID, remoteOID)
	if err == nil && base == localOID {
		if err := r.tree.UpdateRef(ref, remoteOID); err != nil {
			return err
		}
		r.pipeline.Evict(ref)
		logging.Info("pull fast-forwarded", "remote", remote, "ref", ref, "oid", remoteOID)
		return nil
	}

	_, _, err = merge.ThreeWayMerge(r.tree, r.mode, r.configPath, ref, remoteRef, r.author)
	if err != nil {
		logging.Error("pull merge failed", "remote", remote, "ref", ref, "error", err)
		return err
	}
	r.pipeline.Evict(ref)
	logging.Info("pull merged", "remote", remote, "ref", ref)
	return nil
}

func (r *repository) Close() error { return nil }
