// Package registry implements the Graph-File Registry spec.md §4.1
// describes: the mapping between named-graph IRIs and the files that carry
// their triples inside the working tree, under either of two discovery
// modes ("sidecar" per-file `.graph` markers, or a single "config" bindings
// document), plus deterministic filename allocation for graphs seen for the
// first time. Grounded on the teacher's hash-then-store object naming
// (main.go's writeObject) generalized from git objects to named graphs.
package registry

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cayleygraph/quad"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// Mode selects how graph/file bindings are discovered.
type Mode string

const (
	ModeSidecar Mode = "sidecar"
	ModeConfig  Mode = "config"
)

// Reserved predicates for the config-mode bindings document. Using fixed
// IRIs rather than a prefix/namespace mechanism keeps the parser a single
// pass over decodeQuads' output; a repository that wants its own
// vocabulary can still use sidecar mode.
const (
	predFile  = quad.IRI("http://quit.aksw.org/vocab/file")
	predGraph = quad.IRI("http://quit.aksw.org/vocab/graph")
)

const sidecarSuffix = ".graph"

var suffixPattern = regexp.MustCompile(`^(.*?)(?:_(\d+))?\.nt$`)

// Binding ties a named graph to the file that stores its triples.
type Binding struct {
	Graph quad.IRI
	Path  string
}

// GitTree is the subset of internal/gitadapter.Adapter the registry needs.
// Declaring it here rather than importing gitadapter directly keeps the
// registry a pure mapping component testable against a fake tree and
// avoids a layering dependency from registry (used by the pipeline and by
// provenance rebuilds alike) down onto one specific git implementation.
type GitTree interface {
	ListFiles(oid string) ([]string, error)
	ReadBlob(oid, path string) ([]byte, error)
	WriteWorkingFile(path string, content []byte) error
}

// Registry holds the graph/file bindings discovered at one commit.
type Registry struct {
	mode       Mode
	configPath string
	bindings   map[string]Binding // graph IRI string -> Binding
	pending    []string           // paths written by Allocate/Rewrite not yet claimed by TakePendingPaths
}

// New constructs an empty Registry for the given mode. configPath is only
// consulted in ModeConfig.
func New(mode Mode, configPath string) *Registry {
	return &Registry{mode: mode, configPath: configPath, bindings: map[string]Binding{}}
}

// TakePendingPaths returns, and clears, every working-tree path this
// Registry has written via Allocate or Rewrite since the last call. The
// Update Pipeline folds these into the set of paths it passes to
// CommitPaths — a path written with WriteWorkingFile but never staged would
// sit as an untracked file in the working tree forever, never discoverable
// on a future Discover call against the committed tree.
func (r *Registry) TakePendingPaths() []string {
	out := r.pending
	r.pending = nil
	return out
}

// Discover populates the registry's bindings by inspecting the tree at oid.
func (r *Registry) Discover(tree GitTree, oid string) error {
	switch r.mode {
	case ModeConfig:
		return r.discoverConfig(tree, oid)
	default:
		return r.discoverSidecar(tree, oid)
	}
}

// discoverSidecar treats every "<path>.graph" file as naming, via its
// (trimmed) content, the graph IRI bound to the sibling data file "<path>".
func (r *Registry) discoverSidecar(tree GitTree, oid string) error {
	paths, err := tree.ListFiles(oid)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if !strings.HasSuffix(p, sidecarSuffix) {
			continue
		}
		dataPath := strings.TrimSuffix(p, sidecarSuffix)
		content, err := tree.ReadBlob(oid, p)
		if err != nil {
			return errs.Wrap(errs.IOFailure, err, "read graph marker %s", p)
		}
		iri := strings.TrimSpace(string(content))
		if iri == "" {
			continue
		}
		r.bindings[iri] = Binding{Graph: quad.IRI(iri), Path: dataPath}
	}
	return nil
}

// discoverConfig reads the single bindings document at r.configPath and
// groups its "file"/"graph" statements by shared subject. A hand-edited
// document using the "# path graph-iri" comment convention is also
// accepted, line by line, as a fallback.
func (r *Registry) discoverConfig(tree GitTree, oid string) error {
	content, err := tree.ReadBlob(oid, r.configPath)
	if err != nil {
		return errs.Wrap(errs.UnknownRef, err, "read bindings document %s", r.configPath)
	}

	quads, err := decodeQuads(content)
	if err == nil && len(quads) > 0 {
		byBNode := map[string]struct {
			file, graph string
		}{}
		for _, q := range quads {
			key := quad.StringOf(q.Subject)
			entry := byBNode[key]
			switch q.Predicate {
			case predFile:
				if lit, ok := q.Object.(quad.String); ok {
					entry.file = string(lit)
				}
			case predGraph:
				if iri, ok := q.Object.(quad.IRI); ok {
					entry.graph = string(iri)
				}
			}
			byBNode[key] = entry
		}
		for _, e := range byBNode {
			if e.file == "" || e.graph == "" {
				continue
			}
			r.bindings[e.graph] = Binding{Graph: quad.IRI(e.graph), Path: e.file}
		}
		return nil
	}

	return r.discoverConfigLines(content)
}

func (r *Registry) discoverConfigLines(content []byte) error {
	scanner := scanLines(content)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "#"))
		if len(fields) != 2 {
			continue
		}
		path, iri := fields[0], fields[1]
		r.bindings[iri] = Binding{Graph: quad.IRI(iri), Path: path}
	}
	return scanner.Err()
}

// Resolve returns the binding for an already-discovered graph, or
// UnknownGraph if the registry has no file bound to it.
func (r *Registry) Resolve(graph string) (Binding, error) {
	b, ok := r.bindings[graph]
	if !ok {
		return Binding{}, errs.New(errs.UnknownGraph, "no file bound to graph %s", graph)
	}
	return b, nil
}

// Graphs returns every graph IRI currently bound, sorted for determinism.
func (r *Registry) Graphs() []string {
	out := make([]string, 0, len(r.bindings))
	for g := range r.bindings {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Bindings returns a copy of every binding currently known, sorted by
// graph IRI.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Graph < out[j].Graph })
	return out
}

// Allocate returns the binding for graph, discovering a fresh one deterministically
// if none exists yet. The filename is sha1(graph)+".nt"; on collision with an
// already-tracked file the allocator scans every "<hash>(_<n>)?.nt" path in
// the tree and takes max(existing suffixes)+1, not the first unused gap —
// see DESIGN.md's "Graph-File Registry filename allocation" entry for why
// this differs from a literal reading of spec.md §4.1's prose.
func (r *Registry) Allocate(tree GitTree, oid, graph string) (Binding, error) {
	if b, ok := r.bindings[graph]; ok {
		return b, nil
	}

	hash := hashGraph(graph)
	paths, err := tree.ListFiles(oid)
	if err != nil {
		return Binding{}, err
	}

	maxSuffix := -1
	for _, p := range paths {
		base := p
		if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
			base = p[idx+1:]
		}
		m := suffixPattern.FindStringSubmatch(base)
		if m == nil || m[1] != hash {
			continue
		}
		suffix := 0
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			suffix = n
		}
		if suffix > maxSuffix {
			maxSuffix = suffix
		}
	}

	var path string
	if maxSuffix < 0 {
		path = hash + ".nt"
	} else {
		path = fmt.Sprintf("%s_%d.nt", hash, maxSuffix+1)
	}

	b := Binding{Graph: quad.IRI(graph), Path: path}
	r.bindings[graph] = b

	if err := r.persistBinding(tree, b); err != nil {
		delete(r.bindings, graph)
		return Binding{}, err
	}
	return b, nil
}

// persistBinding writes whatever working-tree state makes a freshly
// allocated binding discoverable by a future Discover call against a new
// Registry instance: a ".graph" marker file in sidecar mode, or a rewrite
// of the whole bindings document in config mode (the document has no
// append-only structure worth preserving — every binding is re-emitted
// from r.bindings, which already holds the new one).
func (r *Registry) persistBinding(tree GitTree, b Binding) error {
	if r.mode == ModeConfig {
		if err := tree.WriteWorkingFile(r.configPath, EncodeBindingsDocument(r.Bindings())); err != nil {
			return err
		}
		r.pending = append(r.pending, r.configPath)
		return nil
	}
	marker := b.Path + sidecarSuffix
	if err := tree.WriteWorkingFile(marker, []byte(string(b.Graph)+"\n")); err != nil {
		return err
	}
	r.pending = append(r.pending, marker)
	return nil
}

// Rewrite serializes triples and writes them to binding's path in the
// working tree. It does not stage or commit; the caller (the Update
// Pipeline) collects the touched paths for a single CommitPaths call.
func (r *Registry) Rewrite(tree GitTree, binding Binding, triples []quadstore.Triple) error {
	return tree.WriteWorkingFile(binding.Path, EncodeTriples(triples))
}

// Unbind drops a graph's binding, used when CLEAR/DROP empties a
// config-mode graph whose file should no longer be listed (sidecar mode
// instead leaves an empty data file with its marker intact, matching
// spec.md §4.1's "stays empty, registry entry remains" rule).
func (r *Registry) Unbind(graph string) {
	delete(r.bindings, graph)
}

func hashGraph(graph string) string {
	sum := sha1.Sum([]byte(graph))
	return hex.EncodeToString(sum[:])
}
