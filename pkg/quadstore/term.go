// Package quadstore defines the public, embeddable API for interacting with a
// quit-go repository. It provides a stable interface for all core
// versioning and query operations; the concrete implementation lives in
// the internal packages this package wires together.
package quadstore

import (
	"fmt"

	"github.com/cayleygraph/quad"
)

// Term is a single RDF term: an IRI, a blank node, or a literal. It is a thin
// alias over quad.Value so the store can reuse the term variants, N-Triples
// codec, and comparison semantics the cayleygraph/quad package already
// implements, instead of re-deriving a tagged union.
type Term = quad.Value

// NewIRI builds an IRI term.
func NewIRI(iri string) Term { return quad.IRI(iri) }

// NewBlankNode builds a blank node term with the given local identifier.
func NewBlankNode(id string) Term { return quad.BNode(id) }

// NewLiteral builds a plain string literal with no datatype or language tag.
func NewLiteral(lexical string) Term { return quad.String(lexical) }

// NewTypedLiteral builds a literal with an explicit datatype IRI.
func NewTypedLiteral(lexical, datatypeIRI string) Term {
	return quad.TypedString{Value: quad.String(lexical), Type: quad.IRI(datatypeIRI)}
}

// NewLangLiteral builds a literal tagged with a BCP-47 language tag.
func NewLangLiteral(lexical, lang string) Term {
	return quad.LangString{Value: quad.String(lexical), Lang: lang}
}

// Quad is one (subject, predicate, object, graph) statement. Graph is always
// a named IRI: this store has no default graph at rest (see Dataset).
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     quad.IRI
}

// String renders the quad as one line of N-Quads, trailing period included.
func (q Quad) String() string {
	return fmt.Sprintf("%s %s %s <%s> .", termNT(q.Subject), termNT(q.Predicate), termNT(q.Object), string(q.Graph))
}

// Triple drops the graph component of a Quad, for per-graph serialization
// where the graph identity is already implied by the containing file.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", termNT(t.Subject), termNT(t.Predicate), termNT(t.Object))
}

// InGraph attaches a graph IRI to a triple, producing a Quad.
func (t Triple) InGraph(g quad.IRI) Quad {
	return Quad{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: g}
}

func termNT(v Term) string {
	if v == nil {
		return ""
	}
	return quad.StringOf(v)
}

// Key returns a string uniquely identifying the triple's term content, used
// as a map key for set membership (duplicates are impossible within one
// graph per spec invariant).
func (t Triple) Key() string {
	return termNT(t.Subject) + "\x00" + termNT(t.Predicate) + "\x00" + termNT(t.Object)
}
