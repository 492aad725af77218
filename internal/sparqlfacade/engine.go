package sparqlfacade

import (
	"sort"

	"github.com/cayleygraph/quad"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/store"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// Dataset is the subset of *store.Dataset the engine needs, accepted as an
// interface so a production engine could be swapped in against the same
// contract without depending on the concrete in-memory implementation.
type Dataset interface {
	Add(q quadstore.Quad) bool
	Remove(q quadstore.Quad) bool
	TriplesIn(graph string) []quadstore.Triple
	Quads(pattern store.Pattern) []quadstore.Quad
	Graphs() []string
	Clear(graph string)
	EnsureGraph(graph string)
	HasGraph(graph string) bool
}

// Engine is the SPARQL Engine Facade's contract (spec.md §4.4): parse and
// execute a query or update string against a supplied dataset view.
type Engine interface {
	Query(ds Dataset, queryText string, opts quadstore.QueryOptions) (quadstore.QueryResult, error)
	Update(ds Dataset, updateText string, opts quadstore.UpdateOptions) ([]quadstore.ChangeSet, []quadstore.OperationType, error)
}

// DefaultEngine is the hand-written engine SPEC_FULL §4.4a documents: it
// covers INSERT/DELETE DATA, DELETE/INSERT ... WHERE over basic graph
// patterns, CLEAR/CREATE/DROP GRAPH, and SELECT/ASK/CONSTRUCT with GRAPH
// blocks, USING/USING NAMED, and dataset-uri overrides.
type DefaultEngine struct {
	// UnionDefaultGraph controls whether the SPARQL default graph (patterns
	// with no GRAPH clause, when no using-graph-uri/FROM override narrows
	// it) reads as the union of every named graph or as empty, per
	// spec.md §3's "configuration option".
	UnionDefaultGraph bool
}

func NewDefaultEngine(unionDefaultGraph bool) *DefaultEngine {
	return &DefaultEngine{UnionDefaultGraph: unionDefaultGraph}
}

// Update parses updateText and executes each sub-operation against ds in
// order, returning one ChangeSet and OperationType per sub-operation.
// Mutations happen directly on ds — the caller (the Update Pipeline) is
// responsible for supplying a shadow copy and discarding it on error.
func (e *DefaultEngine) Update(ds Dataset, updateText string, opts quadstore.UpdateOptions) ([]quadstore.ChangeSet, []quadstore.OperationType, error) {
	ops, err := ParseUpdate(updateText, opts.BaseIRI)
	if err != nil {
		return nil, nil, errs.Wrap(errs.BadRequest, err, "parse update")
	}

	changeSets := make([]quadstore.ChangeSet, 0, len(ops))
	kinds := make([]quadstore.OperationType, 0, len(ops))
	for _, op := range ops {
		using := op.UsingGraphs
		usingNamed := op.UsingNamedGraphs
		if len(using) == 0 {
			using = opts.UsingGraphs
		}
		if len(usingNamed) == 0 {
			usingNamed = opts.UsingNamedGraphs
		}
		cs, kind, err := e.execOp(ds, op, using, usingNamed)
		if err != nil {
			return nil, nil, err
		}
		changeSets = append(changeSets, cs)
		kinds = append(kinds, kind)
	}
	return changeSets, kinds, nil
}

func (e *DefaultEngine) execOp(ds Dataset, op UpdateOp, usingGraphs, usingNamedGraphs []string) (quadstore.ChangeSet, quadstore.OperationType, error) {
	switch op.Kind {
	case OpInsertData:
		return e.execData(ds, op.InsertTemplate, true)
	case OpDeleteData:
		return e.execData(ds, op.DeleteTemplate, false)
	case OpClearGraph:
		return e.execClear(ds, op.GraphIRI)
	case OpCreateGraph:
		ds.EnsureGraph(op.GraphIRI)
		cs := emptyChangeSet()
		// CREATE GRAPH touches no triples, but it must still register as a
		// touched graph so the Update Pipeline allocates and persists an
		// (empty) file for it rather than silently discarding the shadow's
		// EnsureGraph call with no commit at all.
		cs.Additions[op.GraphIRI] = []quadstore.Triple{}
		return cs, quadstore.OpCreate, nil
	case OpDropGraph:
		return e.execDrop(ds, op.GraphIRI)
	case OpDeleteInsertWhere:
		return e.execModify(ds, op, usingGraphs, usingNamedGraphs)
	default:
		return quadstore.ChangeSet{}, "", errs.New(errs.BadRequest, "unsupported update operation")
	}
}

func (e *DefaultEngine) execData(ds Dataset, template []GraphPattern, insert bool) (quadstore.ChangeSet, quadstore.OperationType, error) {
	cs := emptyChangeSet()
	for _, gp := range template {
		if !gp.HasGraph {
			return cs, "", errs.New(errs.BadRequest, "INSERT/DELETE DATA requires an explicit GRAPH clause: this store has no default graph at rest")
		}
		graph, err := requireIRI(gp.Graph)
		if err != nil {
			return cs, "", err
		}
		for _, tp := range gp.Triples {
			if tp.Subject.IsVar() || tp.Predicate.IsVar() || tp.Object.IsVar() {
				return cs, "", errs.New(errs.BadRequest, "INSERT/DELETE DATA cannot contain variables")
			}
			q := quadstore.Triple{Subject: tp.Subject.Value, Predicate: tp.Predicate.Value, Object: tp.Object.Value}.InGraph(quad.IRI(graph))
			if insert {
				if ds.Add(q) {
					cs.Additions[graph] = append(cs.Additions[graph], triplePart(q))
				}
			} else {
				if ds.Remove(q) {
					cs.Removals[graph] = append(cs.Removals[graph], triplePart(q))
				}
			}
		}
	}
	kind := quadstore.OpInsert
	if !insert {
		kind = quadstore.OpDelete
	}
	return cs, kind, nil
}

func (e *DefaultEngine) execClear(ds Dataset, graph string) (quadstore.ChangeSet, quadstore.OperationType, error) {
	cs := emptyChangeSet()
	existing := ds.TriplesIn(graph)
	cs.Removals[graph] = append([]quadstore.Triple{}, existing...)
	ds.Clear(graph)
	return cs, quadstore.OpClear, nil
}

func (e *DefaultEngine) execDrop(ds Dataset, graph string) (quadstore.ChangeSet, quadstore.OperationType, error) {
	cs, _, err := e.execClear(ds, graph)
	return cs, quadstore.OpDrop, err
}

// execModify evaluates op.Where, then applies op.DeleteTemplate and
// op.InsertTemplate per solution, all measured against the dataset state
// *before* this sub-operation's own mutations (standard SPARQL Update
// semantics: delete and insert templates see the pre-operation bindings).
func (e *DefaultEngine) execModify(ds Dataset, op UpdateOp, usingGraphs, usingNamedGraphs []string) (quadstore.ChangeSet, quadstore.OperationType, error) {
	solutions, err := evalPatterns(ds, op.Where, usingGraphs, usingNamedGraphs, e.UnionDefaultGraph)
	if err != nil {
		return quadstore.ChangeSet{}, "", err
	}

	deletes := instantiate(op.DeleteTemplate, solutions)
	inserts := instantiate(op.InsertTemplate, solutions)

	cs := emptyChangeSet()
	for graph, triples := range deletes {
		for _, t := range triples {
			q := t.InGraph(quad.IRI(graph))
			if ds.Remove(q) {
				cs.Removals[graph] = append(cs.Removals[graph], t)
			}
		}
	}
	for graph, triples := range inserts {
		for _, t := range triples {
			q := t.InGraph(quad.IRI(graph))
			if ds.Add(q) {
				cs.Additions[graph] = append(cs.Additions[graph], t)
			}
		}
	}

	kind := quadstore.OpInsertDelete
	switch {
	case len(op.DeleteTemplate) == 0:
		kind = quadstore.OpInsert
	case len(op.InsertTemplate) == 0:
		kind = quadstore.OpDelete
	}
	return cs, kind, nil
}

// instantiate substitutes each solution's bindings into template,
// returning only fully-ground resulting triples, grouped by graph.
func instantiate(template []GraphPattern, solutions []map[string]quadstore.Term) map[string][]quadstore.Triple {
	out := map[string][]quadstore.Triple{}
	seen := map[string]map[string]bool{}
	for _, gp := range template {
		for _, sol := range solutions {
			graph, ok := resolveTemplateGraph(gp, sol)
			if !ok {
				continue
			}
			for _, tp := range gp.Triples {
				s, ok1 := resolveTerm(tp.Subject, sol)
				p, ok2 := resolveTerm(tp.Predicate, sol)
				o, ok3 := resolveTerm(tp.Object, sol)
				if !ok1 || !ok2 || !ok3 {
					continue
				}
				t := quadstore.Triple{Subject: s, Predicate: p, Object: o}
				if seen[graph] == nil {
					seen[graph] = map[string]bool{}
				}
				if seen[graph][t.Key()] {
					continue
				}
				seen[graph][t.Key()] = true
				out[graph] = append(out[graph], t)
			}
		}
	}
	return out
}

func resolveTemplateGraph(gp GraphPattern, sol map[string]quadstore.Term) (string, bool) {
	if !gp.HasGraph {
		return "", false
	}
	if !gp.Graph.IsVar() {
		iri, err := requireIRI(gp.Graph)
		return iri, err == nil
	}
	v, ok := sol[gp.Graph.Var]
	if !ok {
		return "", false
	}
	iri, ok := v.(quad.IRI)
	return string(iri), ok
}

func resolveTerm(t Term, sol map[string]quadstore.Term) (quadstore.Term, bool) {
	if !t.IsVar() {
		return t.Value, true
	}
	v, ok := sol[t.Var]
	return v, ok
}

func requireIRI(t Term) (string, error) {
	iri, ok := t.Value.(quad.IRI)
	if !ok {
		return "", errs.New(errs.BadRequest, "expected a graph IRI, not a variable or literal")
	}
	return string(iri), nil
}

func triplePart(q quadstore.Quad) quadstore.Triple {
	return quadstore.Triple{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}
}

func emptyChangeSet() quadstore.ChangeSet {
	return quadstore.ChangeSet{Additions: map[string][]quadstore.Triple{}, Removals: map[string][]quadstore.Triple{}}
}

// evalPatterns joins a sequence of GraphPatterns against ds, returning
// every consistent variable binding. Each GraphPattern's graph scope is
// resolved once per incoming partial solution (fixing a concrete graph,
// or trying each candidate graph as a separate branch when the graph
// position is an unbound variable), then its triples are joined against
// that one graph in sequence.
func evalPatterns(ds Dataset, patterns []GraphPattern, usingGraphs, usingNamedGraphs []string, unionDefault bool) ([]map[string]quadstore.Term, error) {
	solutions := []map[string]quadstore.Term{{}}
	for _, gp := range patterns {
		var next []map[string]quadstore.Term
		for _, sol := range solutions {
			graphs, err := candidateGraphs(ds, gp, sol, usingGraphs, usingNamedGraphs, unionDefault)
			if err != nil {
				return nil, err
			}
			for _, g := range graphs {
				base := cloneSolution(sol)
				if gp.HasGraph && gp.Graph.IsVar() {
					base[gp.Graph.Var] = quad.IRI(g)
				}
				next = append(next, joinTriplesInGraph(ds, gp.Triples, g, base)...)
			}
		}
		solutions = next
		if len(solutions) == 0 {
			return solutions, nil
		}
	}
	return solutions, nil
}

func candidateGraphs(ds Dataset, gp GraphPattern, sol map[string]quadstore.Term, usingGraphs, usingNamedGraphs []string, unionDefault bool) ([]string, error) {
	if gp.HasGraph {
		if !gp.Graph.IsVar() {
			iri, err := requireIRI(gp.Graph)
			if err != nil {
				return nil, err
			}
			return []string{iri}, nil
		}
		if bound, ok := sol[gp.Graph.Var]; ok {
			iri, ok := bound.(quad.IRI)
			if !ok {
				return nil, nil
			}
			return []string{string(iri)}, nil
		}
		if len(usingNamedGraphs) > 0 {
			return usingNamedGraphs, nil
		}
		return ds.Graphs(), nil
	}
	if len(usingGraphs) > 0 {
		return usingGraphs, nil
	}
	if unionDefault {
		return ds.Graphs(), nil
	}
	return nil, nil
}

func joinTriplesInGraph(ds Dataset, triples []TriplePattern, graph string, sol map[string]quadstore.Term) []map[string]quadstore.Term {
	sols := []map[string]quadstore.Term{sol}
	for _, tp := range triples {
		var next []map[string]quadstore.Term
		for _, s := range sols {
			pattern := store.Pattern{Graph: graph}
			if !tp.Subject.IsVar() {
				pattern.Subject = tp.Subject.Value
			} else if v, ok := s[tp.Subject.Var]; ok {
				pattern.Subject = v
			}
			if !tp.Predicate.IsVar() {
				pattern.Predicate = tp.Predicate.Value
			} else if v, ok := s[tp.Predicate.Var]; ok {
				pattern.Predicate = v
			}
			if !tp.Object.IsVar() {
				pattern.Object = tp.Object.Value
			} else if v, ok := s[tp.Object.Var]; ok {
				pattern.Object = v
			}
			for _, q := range ds.Quads(pattern) {
				ns := cloneSolution(s)
				if bindIfConsistent(ns, tp.Subject, q.Subject) &&
					bindIfConsistent(ns, tp.Predicate, q.Predicate) &&
					bindIfConsistent(ns, tp.Object, q.Object) {
					next = append(next, ns)
				}
			}
		}
		sols = next
	}
	return sols
}

func bindIfConsistent(sol map[string]quadstore.Term, term Term, value quadstore.Term) bool {
	if !term.IsVar() {
		return true
	}
	if existing, ok := sol[term.Var]; ok {
		return quad.StringOf(existing) == quad.StringOf(value)
	}
	sol[term.Var] = value
	return true
}

func cloneSolution(sol map[string]quadstore.Term) map[string]quadstore.Term {
	cp := make(map[string]quadstore.Term, len(sol))
	for k, v := range sol {
		cp[k] = v
	}
	return cp
}

// Query parses queryText and executes it against ds, returning a
// QueryResult shaped per its form (SELECT, ASK, or CONSTRUCT).
func (e *DefaultEngine) Query(ds Dataset, queryText string, opts quadstore.QueryOptions) (quadstore.QueryResult, error) {
	q, err := ParseQuery(queryText, opts.BaseIRI)
	if err != nil {
		return quadstore.QueryResult{}, errs.Wrap(errs.BadRequest, err, "parse query")
	}

	using := opts.DefaultGraphs
	usingNamed := opts.NamedGraphs

	solutions, err := evalPatterns(ds, q.Where, using, usingNamed, e.UnionDefaultGraph)
	if err != nil {
		return quadstore.QueryResult{}, err
	}

	switch q.Form {
	case FormAsk:
		return quadstore.QueryResult{Kind: quadstore.ResultBoolean, Boolean: len(solutions) > 0}, nil
	case FormConstruct:
		flat := instantiateTriples(q.ConstructTemplate, solutions)
		return quadstore.QueryResult{Kind: quadstore.ResultGraph, Graph: flat}, nil
	default:
		vars := q.SelectVars
		if q.SelectStar {
			vars = collectVars(q.Where)
		}
		rows := make([]map[string]quadstore.Term, 0, len(solutions))
		for _, sol := range solutions {
			row := map[string]quadstore.Term{}
			for _, v := range vars {
				if val, ok := sol[v]; ok {
					row[v] = val
				}
			}
			rows = append(rows, row)
		}
		return quadstore.QueryResult{Kind: quadstore.ResultSolutions, Variables: vars, Solutions: rows}, nil
	}
}

// instantiateTriples substitutes each solution into a flat triple
// template (CONSTRUCT has no per-graph grouping: its output is one RDF
// graph, not a dataset mutation), returning only fully-ground, deduplicated
// triples.
func instantiateTriples(template []TriplePattern, solutions []map[string]quadstore.Term) []quadstore.Triple {
	seen := map[string]bool{}
	var out []quadstore.Triple
	for _, sol := range solutions {
		for _, tp := range template {
			s, ok1 := resolveTerm(tp.Subject, sol)
			p, ok2 := resolveTerm(tp.Predicate, sol)
			o, ok3 := resolveTerm(tp.Object, sol)
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			t := quadstore.Triple{Subject: s, Predicate: p, Object: o}
			if seen[t.Key()] {
				continue
			}
			seen[t.Key()] = true
			out = append(out, t)
		}
	}
	return out
}

func collectVars(patterns []GraphPattern) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t Term) {
		if t.IsVar() && !seen[t.Var] {
			seen[t.Var] = true
			out = append(out, t.Var)
		}
	}
	for _, gp := range patterns {
		if gp.HasGraph {
			add(gp.Graph)
		}
		for _, tp := range gp.Triples {
			add(tp.Subject)
			add(tp.Predicate)
			add(tp.Object)
		}
	}
	sort.Strings(out)
	return out
}
