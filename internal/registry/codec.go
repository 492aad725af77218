package registry

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/cayleygraph/quad"
	"github.com/cayleygraph/quad/nquads"

	"github.com/aksw/quit-go/pkg/quadstore"
)

// EncodeTriples serializes triples as N-Triples, one per line, trailing
// newline included. Empty graphs serialize to a single newline (spec.md
// §4.1).
func EncodeTriples(triples []quadstore.Triple) []byte {
	if len(triples) == 0 {
		return []byte("\n")
	}
	var buf bytes.Buffer
	w := nquads.NewWriter(&buf)
	for _, t := range triples {
		q := quad.Quad{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object}
		if err := w.WriteQuad(q); err != nil {
			continue
		}
	}
	w.Close()
	return buf.Bytes()
}

// DecodeTriples parses an N-Triples blob into triples, discarding the
// subject grouping a bindings document would need (see decodeQuads).
func DecodeTriples(content []byte) ([]quadstore.Triple, error) {
	r := nquads.NewReader(bytes.NewReader(content), false)
	var out []quadstore.Triple
	for {
		q, err := r.ReadQuad()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse n-triples: %w", err)
		}
		out = append(out, quadstore.Triple{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object})
	}
	return out, nil
}

// EncodeBindingsDocument renders every known binding as a pair of "file"/
// "graph" statements sharing one blank-node subject, the shape
// discoverConfig's decodeQuads path expects back. Exported so the Update
// Pipeline can re-emit the document when a DROP unbinds a config-mode
// graph, without duplicating the encoding here.
func EncodeBindingsDocument(bindings []Binding) []byte {
	var buf bytes.Buffer
	w := nquads.NewWriter(&buf)
	for i, b := range bindings {
		subj := quad.BNode(fmt.Sprintf("b%d", i))
		w.WriteQuad(quad.Quad{Subject: subj, Predicate: predFile, Object: quad.String(b.Path)})
		w.WriteQuad(quad.Quad{Subject: subj, Predicate: predGraph, Object: b.Graph})
	}
	w.Close()
	return buf.Bytes()
}

// decodeQuads parses the config-mode bindings document, keeping the subject
// column so Discover can group "file" and "graph" statements that share a
// blank node.
func decodeQuads(content []byte) ([]quad.Quad, error) {
	r := nquads.NewReader(bytes.NewReader(content), false)
	var out []quad.Quad
	for {
		q, err := r.ReadQuad()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse bindings document: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}

// scanLines supports a lenient fallback read of the bindings document: a
// hand-edited config file may carry a "# path graph-iri" comment per
// binding rather than full RDF triples, one per line.
func scanLines(content []byte) *bufio.Scanner {
	return bufio.NewScanner(bytes.NewReader(content))
}
