// Package store implements the in-memory Quad Store spec.md §4.3
// describes: an indexed set of quads grouped by named graph, cloned
// cheaply into a shadow copy for the Update Pipeline's transaction window
// and consulted read-only by the SPARQL Engine Facade the rest of the
// time. The store itself does not lock — concurrency is the per-ref
// writer lock the Update Pipeline holds above it
// (spec.md §5) — it is a plain data structure, the shape Cayley's own
// quad store would have if stripped of its query planner and backends
// (see DESIGN.md for why adopting Cayley wholesale would fight this
// component's snapshot-and-clone requirement).
package store

import (
	"sort"

	"github.com/cayleygraph/quad"

	"github.com/aksw/quit-go/pkg/quadstore"
)

// Dataset is a mutable, graph-partitioned set of quads.
type Dataset struct {
	graphs map[string]map[string]quadstore.Triple // graph IRI -> triple key -> triple
}

// New returns an empty Dataset.
func New() *Dataset {
	return &Dataset{graphs: map[string]map[string]quadstore.Triple{}}
}

// Load replaces the dataset's contents with quads, grouping them by graph.
func (d *Dataset) Load(quads []quadstore.Quad) {
	d.graphs = map[string]map[string]quadstore.Triple{}
	for _, q := range quads {
		d.addLocked(string(q.Graph), quadstore.Triple{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object})
	}
}

// LoadGraph replaces the contents of a single graph, used when the
// registry resolves a graph's file independently of the others (so a
// lazily-loaded dataset never needs every file parsed up front).
func (d *Dataset) LoadGraph(graph string, triples []quadstore.Triple) {
	m := make(map[string]quadstore.Triple, len(triples))
	for _, t := range triples {
		m[t.Key()] = t
	}
	d.graphs[graph] = m
}

// Add inserts a quad, returning false if it was already present (the
// Dataset invariant forbids duplicates within one graph, spec.md §3).
func (d *Dataset) Add(q quadstore.Quad) bool {
	return d.addLocked(string(q.Graph), quadstore.Triple{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object})
}

func (d *Dataset) addLocked(graph string, t quadstore.Triple) bool {
	m, ok := d.graphs[graph]
	if !ok {
		m = map[string]quadstore.Triple{}
		d.graphs[graph] = m
	}
	key := t.Key()
	if _, exists := m[key]; exists {
		return false
	}
	m[key] = t
	return true
}

// Remove deletes a quad, returning false if it was not present.
func (d *Dataset) Remove(q quadstore.Quad) bool {
	m, ok := d.graphs[string(q.Graph)]
	if !ok {
		return false
	}
	key := quadstore.Triple{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}.Key()
	if _, exists := m[key]; !exists {
		return false
	}
	delete(m, key)
	return true
}

// TriplesIn returns every triple currently stored under graph, sorted by
// N-Triples rendering for deterministic serialization.
func (d *Dataset) TriplesIn(graph string) []quadstore.Triple {
	m := d.graphs[graph]
	out := make([]quadstore.Triple, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Graphs returns every named graph IRI the dataset has an entry for (even
// if empty), sorted.
func (d *Dataset) Graphs() []string {
	out := make([]string, 0, len(d.graphs))
	for g := range d.graphs {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Clear empties a graph without removing its entry (a graph that exists
// with zero triples still has a Graph-File Registry binding).
func (d *Dataset) Clear(graph string) {
	d.graphs[graph] = map[string]quadstore.Triple{}
}

// EnsureGraph makes sure graph has an entry (possibly empty), used when a
// CREATE GRAPH or an allocate() call introduces a graph with no triples
// yet.
func (d *Dataset) EnsureGraph(graph string) {
	if _, ok := d.graphs[graph]; !ok {
		d.graphs[graph] = map[string]quadstore.Triple{}
	}
}

// HasGraph reports whether graph has an entry, regardless of triple count.
func (d *Dataset) HasGraph(graph string) bool {
	_, ok := d.graphs[graph]
	return ok
}

// Pattern constrains a Quads query; a nil Term or empty Graph field is a
// wildcard on that position.
type Pattern struct {
	Subject   quadstore.Term
	Predicate quadstore.Term
	Object    quadstore.Term
	Graph     string
}

// Quads returns every quad matching pattern, sorted by N-Quads rendering.
func (d *Dataset) Quads(pattern Pattern) []quadstore.Quad {
	var out []quadstore.Quad
	graphsToScan := []string{pattern.Graph}
	if pattern.Graph == "" {
		graphsToScan = d.Graphs()
	}
	for _, g := range graphsToScan {
		for _, t := range d.graphs[g] {
			if pattern.Subject != nil && !termEqual(t.Subject, pattern.Subject) {
				continue
			}
			if pattern.Predicate != nil && !termEqual(t.Predicate, pattern.Predicate) {
				continue
			}
			if pattern.Object != nil && !termEqual(t.Object, pattern.Object) {
				continue
			}
			out = append(out, t.InGraph(quad.IRI(g)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func termEqual(a, b quadstore.Term) bool {
	if a == nil || b == nil {
		return a == b
	}
	return quad.StringOf(a) == quad.StringOf(b)
}

// Clone returns a deep, independent copy — the shadow dataset the Update
// Pipeline mutates during a transaction (spec.md §4.5 step 3) before
// swapping it in on success or discarding it on failure.
func (d *Dataset) Clone() *Dataset {
	cp := New()
	for g, m := range d.graphs {
		cm := make(map[string]quadstore.Triple, len(m))
		for k, t := range m {
			cm[k] = t
		}
		cp.graphs[g] = cm
	}
	return cp
}

// Count returns the total number of quads across every graph.
func (d *Dataset) Count() int {
	n := 0
	for _, m := range d.graphs {
		n += len(m)
	}
	return n
}
