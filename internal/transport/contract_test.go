package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/transport"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// fakeRepo is a scripted stand-in for quadstore.Repository, letting
// contract_test.go exercise Handler's request validation and status
// mapping without a real git-backed repository underneath.
type fakeRepo struct {
	queryResult  quadstore.QueryResult
	queryErr     error
	updateReport *quadstore.UpdateReport
	updateErr    error
	provErr      error
	mergeConflicts []quadstore.Conflict
	mergeErr     error
	blameErr     error
	logCommits   []*quadstore.Commit
	logErr       error
	pullErr      error

	lastUpdateOpts quadstore.UpdateOptions
	lastQueryOpts  quadstore.QueryOptions
}

func (f *fakeRepo) Query(_ context.Context, _, _ string, opts quadstore.QueryOptions) (quadstore.QueryResult, error) {
	f.lastQueryOpts = opts
	return f.queryResult, f.queryErr
}
func (f *fakeRepo) Update(_ context.Context, _, _ string, opts quadstore.UpdateOptions) (*quadstore.UpdateReport, error) {
	f.lastUpdateOpts = opts
	return f.updateReport, f.updateErr
}
func (f *fakeRepo) ProvenanceQuery(_ context.Context, _ string, _ quadstore.QueryOptions) (quadstore.QueryResult, error) {
	return f.queryResult, f.provErr
}
func (f *fakeRepo) CreateBranch(_ context.Context, _, _ string) error { return nil }
func (f *fakeRepo) DeleteBranch(_ context.Context, _ string) error    { return nil }
func (f *fakeRepo) Switch(_ context.Context, _ string) error          { return nil }
func (f *fakeRepo) ListReferences(_ context.Context) ([]quadstore.Reference, error) {
	return nil, nil
}
func (f *fakeRepo) ResolveRef(_ context.Context, _ string) (string, error) { return "", nil }
func (f *fakeRepo) ReadCommit(_ context.Context, _ string) (*quadstore.Commit, error) {
	return nil, nil
}
func (f *fakeRepo) Log(_ context.Context, _ string, _ int) ([]*quadstore.Commit, error) {
	return f.logCommits, f.logErr
}
func (f *fakeRepo) Blame(_ context.Context, _, _ string) ([]quadstore.BlameResult, error) {
	return nil, f.blameErr
}
func (f *fakeRepo) Merge(_ context.Context, _, _ string, _ quadstore.MergeMethod) ([]quadstore.Conflict, error) {
	return f.mergeConflicts, f.mergeErr
}
func (f *fakeRepo) Pull(_ context.Context, _, _ string) error { return f.pullErr }
func (f *fakeRepo) Close() error                              { return nil }

func TestHandler_Sparql_RejectsBothOrNeither(t *testing.T) {
	h := transport.New(&fakeRepo{})
	ctx := context.Background()

	res := h.Sparql(ctx, transport.SparqlRequest{})
	assert.Equal(t, 400, res.Status)

	res = h.Sparql(ctx, transport.SparqlRequest{Query: "ASK{}", Update: "INSERT DATA {}"})
	assert.Equal(t, 400, res.Status)
}

func TestHandler_Sparql_RejectsCrossedScopingParams(t *testing.T) {
	h := transport.New(&fakeRepo{})
	ctx := context.Background()

	res := h.Sparql(ctx, transport.SparqlRequest{Query: "ASK{}", UsingGraphURIs: []string{"urn:g"}})
	assert.Equal(t, 400, res.Status)

	res = h.Sparql(ctx, transport.SparqlRequest{Update: "INSERT DATA {}", NamedGraphURIs: []string{"urn:g"}})
	assert.Equal(t, 400, res.Status)
}

func TestHandler_Sparql_Query_NegotiatesMediaType(t *testing.T) {
	repo := &fakeRepo{queryResult: quadstore.QueryResult{Kind: quadstore.ResultBoolean, Boolean: true}}
	h := transport.New(repo)
	ctx := context.Background()

	res := h.Sparql(ctx, transport.SparqlRequest{Query: "ASK{}", Accept: "application/sparql-results+json"})
	require.Equal(t, 200, res.Status)
	assert.Equal(t, "application/sparql-results+json", res.MediaType)
	require.NotNil(t, res.Query)
	assert.True(t, res.Query.Boolean)
}

func TestHandler_Sparql_Query_NotAcceptable(t *testing.T) {
	h := transport.New(&fakeRepo{})
	ctx := context.Background()

	res := h.Sparql(ctx, transport.SparqlRequest{Query: "ASK{}", Accept: "application/pdf"})
	assert.Equal(t, 406, res.Status)
	assert.Equal(t, errs.NotAcceptable, errs.KindOf(res.Err))
}

func TestHandler_Sparql_Update_PassesScopingThrough(t *testing.T) {
	repo := &fakeRepo{updateReport: &quadstore.UpdateReport{}}
	h := transport.New(repo)
	ctx := context.Background()

	res := h.Sparql(ctx, transport.SparqlRequest{
		Update:         "INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> }}",
		UsingGraphURIs: []string{"urn:g"},
	})
	require.Equal(t, 200, res.Status)
	assert.Equal(t, []string{"urn:g"}, repo.lastUpdateOpts.UsingGraphs)
}

func TestHandler_Provenance_RejectsEmptyQuery(t *testing.T) {
	h := transport.New(&fakeRepo{})
	res := h.Provenance(context.Background(), "", "")
	assert.Equal(t, 400, res.Status)
}

func TestHandler_Provenance_PropagatesFeatureDisabled(t *testing.T) {
	repo := &fakeRepo{provErr: errs.New(errs.FeatureDisabled, "provenance off")}
	h := transport.New(repo)
	res := h.Provenance(context.Background(), "ASK{}", "")
	assert.Equal(t, errs.FeatureDisabled.HTTPStatus(), res.Status)
}

func TestHandler_Merge_ReturnsConflictsAsStatus409(t *testing.T) {
	repo := &fakeRepo{mergeConflicts: []quadstore.Conflict{{Kind: quadstore.ConflictSubjectOverlap, Graph: "urn:g"}}}
	h := transport.New(repo)
	res := h.Merge(context.Background(), transport.MergeRequest{Target: "main", Branch: "feature", Method: "context"})
	assert.Equal(t, 409, res.Status)
	assert.Len(t, res.Conflicts, 1)
}

func TestHandler_Merge_RejectsUnknownMethod(t *testing.T) {
	h := transport.New(&fakeRepo{})
	res := h.Merge(context.Background(), transport.MergeRequest{Target: "main", Branch: "feature", Method: "bogus"})
	assert.Equal(t, 400, res.Status)
}

func TestHandler_Commits(t *testing.T) {
	repo := &fakeRepo{logCommits: []*quadstore.Commit{{OID: "c1"}, {OID: "c0"}}}
	h := transport.New(repo)
	res := h.Commits(context.Background(), "main", 0)
	require.Equal(t, 200, res.Status)
	assert.Len(t, res.Commits, 2)
}

func TestHandler_Pull_PropagatesError(t *testing.T) {
	repo := &fakeRepo{pullErr: errs.New(errs.UnknownRef, "no such remote")}
	h := transport.New(repo)
	res := h.Pull(context.Background(), "origin", "main")
	assert.Equal(t, 404, res.Status)
}
