package sparqlfacade

import (
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksw/quit-go/internal/store"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// TestInsertDataIntoEmptyGraph pins spec.md §8 scenario 1.
func TestInsertDataIntoEmptyGraph(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)

	update := `INSERT DATA { GRAPH <http://example.org/> { <http://ex.org/a> <http://ex.org/b> <http://ex.org/c> . }}`
	changeSets, kinds, err := eng.Update(ds, update, quadstore.UpdateOptions{})
	require.NoError(t, err)
	require.Len(t, changeSets, 1)
	assert.Equal(t, quadstore.OpInsert, kinds[0])
	assert.Len(t, changeSets[0].Additions["http://example.org/"], 1)

	result, err := eng.Query(ds, `SELECT ?s ?p ?o WHERE { GRAPH <http://example.org/> { ?s ?p ?o }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Solutions, 1)
	assert.Equal(t, quad.IRI("http://ex.org/a"), result.Solutions[0]["s"])
}

func TestDeleteData(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	changeSets, kinds, err := eng.Update(ds, `DELETE DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, quadstore.OpDelete, kinds[0])
	assert.Len(t, changeSets[0].Removals["urn:g"], 1)
	assert.Empty(t, ds.TriplesIn("urn:g"))
}

func TestInsertDataRequiresExplicitGraph(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT DATA { <urn:a> <urn:b> <urn:c> . }`, quadstore.UpdateOptions{})
	require.Error(t, err)
}

func TestDeleteInsertWhere(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	update := `DELETE { GRAPH <urn:g> { ?s ?p ?o }} INSERT { GRAPH <urn:g> { ?s <urn:renamed> ?o }} WHERE { GRAPH <urn:g> { ?s ?p ?o }}`
	changeSets, kinds, err := eng.Update(ds, update, quadstore.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, quadstore.OpInsertDelete, kinds[0])
	assert.Len(t, changeSets[0].Removals["urn:g"], 1)
	assert.Len(t, changeSets[0].Additions["urn:g"], 1)

	triples := ds.TriplesIn("urn:g")
	require.Len(t, triples, 1)
	assert.Equal(t, quad.IRI("urn:renamed"), triples[0].Predicate)
}

func TestClearGraph(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	changeSets, kinds, err := eng.Update(ds, `CLEAR GRAPH <urn:g>`, quadstore.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, quadstore.OpClear, kinds[0])
	assert.Len(t, changeSets[0].Removals["urn:g"], 1)
	assert.True(t, ds.HasGraph("urn:g"))
	assert.Empty(t, ds.TriplesIn("urn:g"))
}

func TestAskQuery(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	result, err := eng.Query(ds, `ASK WHERE { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.True(t, result.Boolean)

	result, err = eng.Query(ds, `ASK WHERE { GRAPH <urn:g> { <urn:x> <urn:y> <urn:z> }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	assert.False(t, result.Boolean)
}

func TestConstructQuery(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT DATA { GRAPH <urn:g> { <urn:a> <urn:b> <urn:c> . }}`, quadstore.UpdateOptions{})
	require.NoError(t, err)

	result, err := eng.Query(ds, `CONSTRUCT { ?s ?p ?o } WHERE { GRAPH <urn:g> { ?s ?p ?o }}`, quadstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Graph, 1)
}

func TestMalformedUpdateIsBadRequest(t *testing.T) {
	ds := store.New()
	eng := NewDefaultEngine(false)
	_, _, err := eng.Update(ds, `INSERT { GRAPH <urn:graph> { ?s ?p ?o }} USING NAMED <urn:missing-where>`, quadstore.UpdateOptions{})
	require.Error(t, err)
}
