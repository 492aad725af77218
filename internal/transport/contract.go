// Package transport defines the request/response contract an HTTP front end
// drives spec.md §6's routes through, without standing up a net/http
// server itself (that remains out of scope per spec.md §1 and SPEC_FULL.md
// §6). A Handler wraps one pkg/quadstore.Repository and exposes one method
// per route; cmd/quit drives the same contract from the CLI so both
// surfaces share identical semantics and error mapping.
package transport

import (
	"context"
	"mime"
	"strings"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// Handler implements every route in spec.md §6's table against one
// repository. Its methods take plain Go values, not *http.Request/
// http.ResponseWriter, so either an HTTP mux or the CLI can drive them.
type Handler struct {
	repo quadstore.Repository
}

// New builds a Handler over an already-open repository.
func New(repo quadstore.Repository) *Handler {
	return &Handler{repo: repo}
}

// SparqlRequest carries the parameters the SPARQL 1.1 Protocol defines for
// both GET query-string and POST (urlencoded or direct-body) dispatch onto
// `/sparql` and `/sparql/<ref>`.
type SparqlRequest struct {
	Ref               string
	Query             string
	Update            string
	DefaultGraphURIs  []string
	NamedGraphURIs    []string
	UsingGraphURIs    []string
	UsingNamedURIs    []string
	Accept            string
}

// form reports which SPARQL Protocol form the request carries, or an error
// if it carries none, both, or an incompatible combination of
// query/update dataset-scoping parameters (spec.md §6).
func (r SparqlRequest) form() (isQuery bool, err error) {
	hasQuery := r.Query != ""
	hasUpdate := r.Update != ""
	if hasQuery == hasUpdate {
		return false, errs.New(errs.BadRequest, "request must carry exactly one of query or update")
	}
	if hasQuery && (len(r.UsingGraphURIs) > 0 || len(r.UsingNamedURIs) > 0) {
		return false, errs.New(errs.BadRequest, "using-graph-uri/using-named-graph-uri apply only to updates")
	}
	if hasUpdate && (len(r.DefaultGraphURIs) > 0 || len(r.NamedGraphURIs) > 0) {
		return false, errs.New(errs.BadRequest, "default-graph-uri/named-graph-uri apply only to queries")
	}
	return hasQuery, nil
}

// ResultEnvelope is the outcome of any route, wrapping either a
// quadstore.QueryResult, an UpdateReport, or a boundary-level error already
// resolved to an HTTP status via errs.Kind.HTTPStatus. At most one of
// Query/Update/Err is non-zero.
type ResultEnvelope struct {
	Status    int
	MediaType string
	Query     *quadstore.QueryResult
	Update    *quadstore.UpdateReport
	Err       error
}

func errEnvelope(err error) ResultEnvelope {
	return ResultEnvelope{Status: errs.KindOf(err).HTTPStatus(), Err: err}
}

// acceptable query-result media types per spec.md §6's content-negotiation
// rule, as one flat list: negotiate does not check them against the
// query's result form.
var queryMediaTypes = []string{
	"application/sparql-results+xml",
	"application/sparql-results+json",
	"text/boolean",
	"text/turtle",
	"application/n-triples",
}

// negotiate picks the response media type for a query result, defaulting to
// application/sparql-results+xml, and fails with NotAcceptable if the
// client's Accept header names only types this engine never produces.
func negotiate(accept string) (string, error) {
	if accept == "" || accept == "*/*" {
		return "application/sparql-results+xml", nil
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == "*/*" {
			return "application/sparql-results+xml", nil
		}
		for _, candidate := range queryMediaTypes {
			if mt == candidate {
				return candidate, nil
			}
		}
	}
	return "", errs.New(errs.NotAcceptable, "no acceptable representation for %q", accept)
}

// Sparql dispatches `/sparql` and `/sparql/<ref>`: a SPARQL 1.1 Protocol
// query or update against ref (HEAD if empty).
func (h *Handler) Sparql(ctx context.Context, req SparqlRequest) ResultEnvelope {
	isQuery, err := req.form()
	if err != nil {
		return errEnvelope(err)
	}
	ref := req.Ref
	if isQuery {
		mediaType, err := negotiate(req.Accept)
		if err != nil {
			return errEnvelope(err)
		}
		res, err := h.repo.Query(ctx, ref, req.Query, quadstore.QueryOptions{
			DefaultGraphs: req.DefaultGraphURIs,
			NamedGraphs:   req.NamedGraphURIs,
		})
		if err != nil {
			return errEnvelope(err)
		}
		return ResultEnvelope{Status: 200, MediaType: mediaType, Query: &res}
	}
	report, err := h.repo.Update(ctx, ref, req.Update, quadstore.UpdateOptions{
		UsingGraphs:      req.UsingGraphURIs,
		UsingNamedGraphs: req.UsingNamedURIs,
	})
	if err != nil {
		return errEnvelope(err)
	}
	return ResultEnvelope{Status: 200, Update: report}
}

// Provenance dispatches `/provenance`: a SPARQL query (never an update)
// against the provenance dataset.
func (h *Handler) Provenance(ctx context.Context, query, accept string) ResultEnvelope {
	if query == "" {
		return errEnvelope(errs.New(errs.BadRequest, "provenance endpoint accepts query, not update"))
	}
	mediaType, err := negotiate(accept)
	if err != nil {
		return errEnvelope(err)
	}
	res, err := h.repo.ProvenanceQuery(ctx, query, quadstore.QueryOptions{})
	if err != nil {
		return errEnvelope(err)
	}
	return ResultEnvelope{Status: 200, MediaType: mediaType, Query: &res}
}

// CreateBranch dispatches `/branch` and `/branch/<from>:<new>`.
func (h *Handler) CreateBranch(ctx context.Context, from, name string) ResultEnvelope {
	if err := h.repo.CreateBranch(ctx, from, name); err != nil {
		return errEnvelope(err)
	}
	return ResultEnvelope{Status: 201}
}

// DeleteBranch dispatches `/delete/branch/<name>`.
func (h *Handler) DeleteBranch(ctx context.Context, name string) ResultEnvelope {
	if err := h.repo.DeleteBranch(ctx, name); err != nil {
		return errEnvelope(err)
	}
	return ResultEnvelope{Status: 200}
}

// MergeRequest carries `/merge`'s form fields.
type MergeRequest struct {
	Target string
	Branch string
	Method string // "three-way" or "context"
}

func (r MergeRequest) method() (quadstore.MergeMethod, error) {
	switch r.Method {
	case "three-way", "":
		return quadstore.MergeThreeWay, nil
	case "context":
		return quadstore.MergeContext, nil
	default:
		return "", errs.New(errs.BadRequest, "unknown merge method %q", r.Method)
	}
}

// MergeResult is the outcome of `/merge`: either a clean merge or the
// conflict list spec.md §4.7 defines.
type MergeResult struct {
	Status    int
	Conflicts []quadstore.Conflict
	Err       error
}

// Merge dispatches `/merge`.
func (h *Handler) Merge(ctx context.Context, req MergeRequest) MergeResult {
	method, err := req.method()
	if err != nil {
		return MergeResult{Status: errs.KindOf(err).HTTPStatus(), Err: err}
	}
	conflicts, err := h.repo.Merge(ctx, req.Target, req.Branch, method)
	if err != nil {
		return MergeResult{Status: errs.KindOf(err).HTTPStatus(), Err: err}
	}
	if len(conflicts) > 0 {
		return MergeResult{Status: errs.MergeConflict.HTTPStatus(), Conflicts: conflicts}
	}
	return MergeResult{Status: 200}
}

// Pull dispatches `/pull/<remote>[/<ref>]`.
func (h *Handler) Pull(ctx context.Context, remote, ref string) ResultEnvelope {
	if err := h.repo.Pull(ctx, remote, ref); err != nil {
		return errEnvelope(err)
	}
	return ResultEnvelope{Status: 200}
}

// BlameResult is the outcome of `/blame/<ref-or-oid>`.
type BlameResult struct {
	Status int
	Blame  []quadstore.BlameResult
	Err    error
}

// Blame dispatches `/blame/<ref-or-oid>`.
func (h *Handler) Blame(ctx context.Context, refOrOID, graphIRI string) BlameResult {
	blame, err := h.repo.Blame(ctx, refOrOID, graphIRI)
	if err != nil {
		return BlameResult{Status: errs.KindOf(err).HTTPStatus(), Err: err}
	}
	return BlameResult{Status: 200, Blame: blame}
}

// CommitsResult is the outcome of `/commits`.
type CommitsResult struct {
	Status  int
	Commits []*quadstore.Commit
	Err     error
}

// Commits dispatches `/commits`: the commit log, JSON or HTML serialization
// decided by the caller from Accept, content itself stays a []*Commit.
func (h *Handler) Commits(ctx context.Context, ref string, limit int) CommitsResult {
	commits, err := h.repo.Log(ctx, ref, limit)
	if err != nil {
		return CommitsResult{Status: errs.KindOf(err).HTTPStatus(), Err: err}
	}
	return CommitsResult{Status: 200, Commits: commits}
}
