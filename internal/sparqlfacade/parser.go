package sparqlfacade

import (
	"fmt"
	"strings"

	"github.com/cayleygraph/quad"

	"github.com/aksw/quit-go/pkg/quadstore"
)

type parser struct {
	toks     []Token
	pos      int
	prefixes map[string]string
	baseIRI  string
}

func newParser(src, baseIRI string) (*parser, error) {
	toks, err := tokens(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, prefixes: map[string]string{}, baseIRI: baseIRI}, nil
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return fmt.Errorf("sparql: expected %q, got %q", kw, p.cur().Text)
	}
	p.advance()
	return nil
}

func (p *parser) expectPunct(s string) error {
	t := p.cur()
	if t.Kind != TokPunct || t.Text != s {
		return fmt.Errorf("sparql: expected %q, got %q", s, t.Text)
	}
	p.advance()
	return nil
}

func (p *parser) isPunct(s string) bool {
	t := p.cur()
	return t.Kind == TokPunct && t.Text == s
}

// parsePrologue consumes leading PREFIX/BASE declarations, which apply to
// the remainder of the update or query string.
func (p *parser) parsePrologue() error {
	for {
		switch {
		case p.isKeyword("PREFIX"):
			p.advance()
			name := p.advance().Text // "ex:" pname form without local part
			iri := p.advance()
			if iri.Kind != TokIRI {
				return fmt.Errorf("sparql: PREFIX expects an IRI reference")
			}
			p.prefixes[strings.TrimSuffix(name, ":")] = iri.Text
		case p.isKeyword("BASE"):
			p.advance()
			iri := p.advance()
			if iri.Kind != TokIRI {
				return fmt.Errorf("sparql: BASE expects an IRI reference")
			}
			p.baseIRI = iri.Text
		default:
			return nil
		}
	}
}

func (p *parser) resolveIRI(raw string) string {
	if strings.Contains(raw, "://") || p.baseIRI == "" {
		return raw
	}
	return p.baseIRI + raw
}

func (p *parser) resolvePName(pname string) (string, error) {
	idx := strings.IndexByte(pname, ':')
	if idx < 0 {
		return "", fmt.Errorf("sparql: malformed prefixed name %q", pname)
	}
	prefix, local := pname[:idx], pname[idx+1:]
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", fmt.Errorf("sparql: undeclared prefix %q", prefix)
	}
	return ns + local, nil
}

// parseTerm parses one subject/predicate/object position.
func (p *parser) parseTerm() (Term, error) {
	t := p.cur()
	switch t.Kind {
	case TokVar:
		p.advance()
		return Term{Var: t.Text}, nil
	case TokIRI:
		p.advance()
		return Term{Value: quadstore.NewIRI(p.resolveIRI(t.Text))}, nil
	case TokPName:
		p.advance()
		iri, err := p.resolvePName(t.Text)
		if err != nil {
			return Term{}, err
		}
		return Term{Value: quadstore.NewIRI(iri)}, nil
	case TokBlank:
		p.advance()
		return Term{Value: quadstore.NewBlankNode(t.Text)}, nil
	case TokString:
		p.advance()
		if t.Datatype != "" {
			return Term{Value: quadstore.NewTypedLiteral(t.Text, p.resolveIRI(t.Datatype))}, nil
		}
		if t.Lang != "" {
			return Term{Value: quadstore.NewLangLiteral(t.Text, t.Lang)}, nil
		}
		return Term{Value: quadstore.NewLiteral(t.Text)}, nil
	case TokIdent:
		if t.Text == "a" {
			p.advance()
			return Term{Value: quadstore.NewIRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")}, nil
		}
		return Term{}, fmt.Errorf("sparql: unexpected token %q while parsing a term", t.Text)
	default:
		return Term{}, fmt.Errorf("sparql: unexpected token %q while parsing a term", t.Text)
	}
}

// parseTriplesBlock parses "subj pred obj '.' subj pred obj '.' ..." up to
// (not consuming) the closing brace. This engine supports one triple per
// statement — no ',' or ';' abbreviation lists — which is sufficient for
// every literal update/query the spec's scenarios use.
func (p *parser) parseTriplesBlock() ([]TriplePattern, error) {
	var out []TriplePattern
	for !p.isPunct("}") && p.cur().Kind != TokEOF && !p.isKeyword("GRAPH") {
		s, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		pred, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		o, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		out = append(out, TriplePattern{Subject: s, Predicate: pred, Object: o})
		if p.isPunct(".") {
			p.advance()
		} else {
			break
		}
	}
	return out, nil
}

// parseGraphPatternGroup parses the braces after INSERT DATA / DELETE DATA
// / WHERE / an INSERT or DELETE template, collecting bare triples under
// the default-graph bucket and "GRAPH <iri-or-var> { ... }" blocks under
// their own.
func (p *parser) parseGraphPatternGroup() ([]GraphPattern, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var groups []GraphPattern
	var defaultTriples []TriplePattern
	for !p.isPunct("}") {
		if p.isKeyword("GRAPH") {
			p.advance()
			g, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("{"); err != nil {
				return nil, err
			}
			triples, err := p.parseTriplesBlock()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("}"); err != nil {
				return nil, err
			}
			groups = append(groups, GraphPattern{HasGraph: true, Graph: g, Triples: triples})
			continue
		}
		triples, err := p.parseTriplesBlock()
		if err != nil {
			return nil, err
		}
		defaultTriples = append(defaultTriples, triples...)
		if p.isPunct(".") {
			p.advance()
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	if len(defaultTriples) > 0 {
		groups = append(groups, GraphPattern{HasGraph: false, Triples: defaultTriples})
	}
	return groups, nil
}

// ParseUpdate parses a full SPARQL Update string into its ordered
// sub-operations.
func ParseUpdate(src, baseIRI string) ([]UpdateOp, error) {
	p, err := newParser(src, baseIRI)
	if err != nil {
		return nil, err
	}
	var ops []UpdateOp
	for {
		if err := p.parsePrologue(); err != nil {
			return nil, err
		}
		if p.cur().Kind == TokEOF {
			break
		}
		op, err := p.parseUpdateOp()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		if p.isPunct(";") {
			p.advance()
			continue
		}
		if p.cur().Kind == TokEOF {
			break
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("sparql: empty update")
	}
	return ops, nil
}

func (p *parser) parseUpdateOp() (UpdateOp, error) {
	switch {
	case p.isKeyword("INSERT"):
		p.advance()
		if p.isKeyword("DATA") {
			p.advance()
			pats, err := p.parseGraphPatternGroup()
			if err != nil {
				return UpdateOp{}, err
			}
			return UpdateOp{Kind: OpInsertData, InsertTemplate: pats}, nil
		}
		insertTemplate, err := p.parseGraphPatternGroup()
		if err != nil {
			return UpdateOp{}, err
		}
		return p.finishModify(nil, insertTemplate)
	case p.isKeyword("DELETE"):
		p.advance()
		if p.isKeyword("DATA") {
			p.advance()
			pats, err := p.parseGraphPatternGroup()
			if err != nil {
				return UpdateOp{}, err
			}
			return UpdateOp{Kind: OpDeleteData, DeleteTemplate: pats}, nil
		}
		delTemplate, err := p.parseGraphPatternGroup()
		if err != nil {
			return UpdateOp{}, err
		}
		var insertTemplate []GraphPattern
		if p.isKeyword("INSERT") {
			p.advance()
			insertTemplate, err = p.parseGraphPatternGroup()
			if err != nil {
				return UpdateOp{}, err
			}
		}
		return p.finishModify(delTemplate, insertTemplate)
	case p.isKeyword("CLEAR"):
		p.advance()
		p.skipSilent()
		if err := p.expectKeyword("GRAPH"); err != nil {
			return UpdateOp{}, err
		}
		iri, err := p.parseGraphIRI()
		if err != nil {
			return UpdateOp{}, err
		}
		return UpdateOp{Kind: OpClearGraph, GraphIRI: iri}, nil
	case p.isKeyword("CREATE"):
		p.advance()
		p.skipSilent()
		if err := p.expectKeyword("GRAPH"); err != nil {
			return UpdateOp{}, err
		}
		iri, err := p.parseGraphIRI()
		if err != nil {
			return UpdateOp{}, err
		}
		return UpdateOp{Kind: OpCreateGraph, GraphIRI: iri}, nil
	case p.isKeyword("DROP"):
		p.advance()
		p.skipSilent()
		if err := p.expectKeyword("GRAPH"); err != nil {
			return UpdateOp{}, err
		}
		iri, err := p.parseGraphIRI()
		if err != nil {
			return UpdateOp{}, err
		}
		return UpdateOp{Kind: OpDropGraph, GraphIRI: iri}, nil
	default:
		return UpdateOp{}, fmt.Errorf("sparql: unrecognized update keyword %q", p.cur().Text)
	}
}

func (p *parser) skipSilent() {
	if p.isKeyword("SILENT") {
		p.advance()
	}
}

func (p *parser) parseGraphIRI() (string, error) {
	t, err := p.parseTerm()
	if err != nil {
		return "", err
	}
	return quadToIRIString(t.Value)
}

func quadToIRIString(t quadstore.Term) (string, error) {
	iri, ok := t.(quad.IRI)
	if !ok {
		return "", fmt.Errorf("sparql: expected an IRI term")
	}
	return string(iri), nil
}

// finishModify parses the optional USING clause(s) and the mandatory
// WHERE clause shared by every DELETE/INSERT ... WHERE form, given the
// already-parsed delete and insert templates (either may be nil).
func (p *parser) finishModify(delTemplate, insertTemplate []GraphPattern) (UpdateOp, error) {
	op := UpdateOp{Kind: OpDeleteInsertWhere, DeleteTemplate: delTemplate, InsertTemplate: insertTemplate}

	for p.isKeyword("USING") {
		p.advance()
		named := p.isKeyword("NAMED")
		if named {
			p.advance()
		}
		t, err := p.parseTerm()
		if err != nil {
			return UpdateOp{}, err
		}
		iri, err := quadToIRIString(t.Value)
		if err != nil {
			return UpdateOp{}, err
		}
		if named {
			op.UsingNamedGraphs = append(op.UsingNamedGraphs, iri)
		} else {
			op.UsingGraphs = append(op.UsingGraphs, iri)
		}
	}

	if err := p.expectKeyword("WHERE"); err != nil {
		return UpdateOp{}, err
	}
	where, err := p.parseGraphPatternGroup()
	if err != nil {
		return UpdateOp{}, err
	}
	op.Where = where
	return op, nil
}

// ParseQuery parses a SELECT, ASK, or CONSTRUCT query.
func ParseQuery(src, baseIRI string) (Query, error) {
	p, err := newParser(src, baseIRI)
	if err != nil {
		return Query{}, err
	}
	if err := p.parsePrologue(); err != nil {
		return Query{}, err
	}

	switch {
	case p.isKeyword("SELECT"):
		p.advance()
		q := Query{Form: FormSelect}
		if p.isPunct("*") {
			p.advance()
			q.SelectStar = true
		} else {
			for p.cur().Kind == TokVar {
				q.SelectVars = append(q.SelectVars, p.advance().Text)
			}
		}
		if err := p.skipToWhere(); err != nil {
			return Query{}, err
		}
		where, err := p.parseGraphPatternGroup()
		if err != nil {
			return Query{}, err
		}
		q.Where = where
		return q, nil
	case p.isKeyword("ASK"):
		p.advance()
		if err := p.skipToWhere(); err != nil {
			return Query{}, err
		}
		where, err := p.parseGraphPatternGroup()
		if err != nil {
			return Query{}, err
		}
		return Query{Form: FormAsk, Where: where}, nil
	case p.isKeyword("CONSTRUCT"):
		p.advance()
		template, err := p.parseGraphPatternGroup()
		if err != nil {
			return Query{}, err
		}
		var flat []TriplePattern
		for _, g := range template {
			flat = append(flat, g.Triples...)
		}
		if err := p.expectKeyword("WHERE"); err != nil {
			return Query{}, err
		}
		where, err := p.parseGraphPatternGroup()
		if err != nil {
			return Query{}, err
		}
		return Query{Form: FormConstruct, ConstructTemplate: flat, Where: where}, nil
	default:
		return Query{}, fmt.Errorf("sparql: unrecognized query form %q", p.cur().Text)
	}
}

// skipToWhere consumes any dataset clauses (FROM/FROM NAMED) ahead of
// WHERE — accepted syntactically but dataset scoping for queries comes
// from QueryOptions, not in-query FROM clauses, per spec.md §4.4's
// protocol-vs-in-query precedence.
func (p *parser) skipToWhere() error {
	for p.isKeyword("FROM") {
		p.advance()
		if p.isKeyword("NAMED") {
			p.advance()
		}
		if _, err := p.parseTerm(); err != nil {
			return err
		}
	}
	return p.expectKeyword("WHERE")
}
