package sparqlfacade

import "github.com/aksw/quit-go/pkg/quadstore"

// Term is one position of a triple pattern: either a bound RDF term or an
// unbound variable. This is the "explicit IR" spec.md §9 calls for in
// place of patching a borrowed algebra tree — every node here has a fixed,
// total representation the executor walks directly.
type Term struct {
	Var   string // non-empty => variable, named without its leading '?'
	Value quadstore.Term
}

func (t Term) IsVar() bool { return t.Var != "" }

// TriplePattern is one (subject, predicate, object) pattern line, each
// position independently possibly a variable.
type TriplePattern struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// GraphPattern is a set of triple patterns scoped to one graph: either a
// named graph (HasGraph true, Graph bound to an IRI or a variable) or the
// default graph (HasGraph false).
type GraphPattern struct {
	HasGraph bool
	Graph    Term
	Triples  []TriplePattern
}

// OperationKind is the coarse label spec.md §6 records in the commit
// message trailer and SPEC_FULL §4 reuses for classifying an update
// sub-operation.
type OperationKind int

const (
	OpInsertData OperationKind = iota
	OpDeleteData
	OpDeleteInsertWhere
	OpClearGraph
	OpCreateGraph
	OpDropGraph
)

// UpdateOp is one parsed update sub-operation, in execution order within
// the submitted update string.
type UpdateOp struct {
	Kind             OperationKind
	GraphIRI         string // for Clear/Create/Drop
	InsertTemplate   []GraphPattern
	DeleteTemplate   []GraphPattern
	Where            []GraphPattern
	UsingGraphs      []string
	UsingNamedGraphs []string
}

// QueryForm distinguishes the three query result shapes spec.md §4.4
// names.
type QueryForm int

const (
	FormSelect QueryForm = iota
	FormAsk
	FormConstruct
)

// Query is one parsed SPARQL query.
type Query struct {
	Form              QueryForm
	SelectVars        []string
	SelectStar        bool
	ConstructTemplate []TriplePattern
	Where             []GraphPattern
	DefaultGraphs     []string
	NamedGraphs       []string
}
