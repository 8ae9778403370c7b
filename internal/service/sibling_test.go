package service

import (
	"context"
	"testing"

	"github.com/aleksaelezovic/trigofed/internal/config"
	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intRows(n int) [][]rdf.Term {
	rows := make([][]rdf.Term, n)
	for i := range rows {
		rows[i] = []rdf.Term{rdf.NewIntegerLiteral(int64(i))}
	}
	return rows
}

func TestSiblingPushedDownAsValues(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"s", "x"},
		[]rdf.Term{iri(knownIRI), rdf.NewIntegerLiteral(1)},
		[]rdf.Term{iri(knownIRI), rdf.NewIntegerLiteral(2)},
		[]rdf.Term{iri("http://example.org/new"), rdf.NewIntegerLiteral(3)},
		[]rdf.Term{iri("http://example.org/other"), rdf.NewIntegerLiteral(4)},
	)

	require.NoError(t, PrecomputeSiblingResult(context.Background(), sibling, svc, false, false))

	info := svc.SiblingInfo()
	require.NotNil(t, info)
	assert.Equal(t, 4, info.Result.IdTable().NumRows())
	assert.Equal(t, sibling.CacheKey(), info.CacheKey)

	query, err := svc.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\nSELECT ?s ?o {\n"+
		"VALUES (?s) { (<http://example.org/known>) (<http://example.org/new>) (<http://example.org/other>) } . "+
		"\n ?s <http://example.org/p> ?o }", query)

	v, _ := svc.RuntimeInfo().Detail(DetailOptimizedWithSibling)
	assert.Equal(t, "yes", v)
	v, _ = sibling.RuntimeInfo().Detail(DetailUsedToOptimize)
	assert.Equal(t, "yes", v)

	// the sibling gets the very same result back
	res, err := engine.GetResult(context.Background(), sibling, engine.FullyMaterialized)
	require.NoError(t, err)
	assert.Same(t, info.Result, res)
	assert.Equal(t, engine.StatusPrecomputed, sibling.RuntimeInfo().Status())
}

func TestSiblingSentWithRequest(t *testing.T) {
	ec := newTestContext(t, nil)
	endpoint := jsonEndpoint(`{"head": {"vars": ["s", "o"]}, "results": {"bindings": []}}`)
	svc := newService(t, ec, false, endpoint)
	sibling := newValues(t, ec, []string{"s"}, []rdf.Term{iri(knownIRI)})

	require.NoError(t, PrecomputeSiblingResult(context.Background(), svc, sibling, false, false))
	_, err := svc.ComputeResult(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, endpoint.requests, 1)
	assert.Contains(t, endpoint.requests[0].Body, "VALUES (?s) { (<http://example.org/known>) } . ")
}

func TestSiblingTooLarge(t *testing.T) {
	ec := newTestContext(t, func(p *config.RuntimeParameters) { p.ServiceMaxValueRows = 2 })
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"o"}, intRows(3)...)

	require.NoError(t, PrecomputeSiblingResult(context.Background(), sibling, svc, false, false))

	assert.Nil(t, svc.SiblingInfo())
	v, _ := svc.RuntimeInfo().Detail(DetailOptimizedWithSibling)
	assert.Equal(t, "no", v)
	v, _ = sibling.RuntimeInfo().Detail(DetailUsedToOptimize)
	assert.Equal(t, "no", v)

	res := sibling.TakePrecomputedResult()
	require.NotNil(t, res)
	assert.Equal(t, 3, res.IdTable().NumRows())

	query, err := svc.Query(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, query, "VALUES")
}

func TestSiblingLazyOverThreshold(t *testing.T) {
	ec := newTestContext(t, func(p *config.RuntimeParameters) { p.ServiceMaxValueRows = 1000 })
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"o"}, intRows(2000)...)
	sibling.SetLazyChunkRows(300)

	require.NoError(t, PrecomputeSiblingResult(context.Background(), svc, sibling, false, true))
	assert.Nil(t, svc.SiblingInfo())

	res, err := engine.GetResult(context.Background(), sibling, engine.LazyIfSupported)
	require.NoError(t, err)
	require.False(t, res.IsFullyMaterialized())

	chunk, err := engine.Materialize(context.Background(), res.Chunks(), 1, nil)
	require.NoError(t, err)
	require.Equal(t, 2000, chunk.Table.NumRows())
	for r := 0; r < 2000; r++ {
		require.Equal(t, int64(r), chunk.Table.At(r, 0).Int())
	}
}

func TestSiblingLazyUnderThreshold(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"o"}, intRows(10)...)
	sibling.SetLazyChunkRows(3)

	require.NoError(t, PrecomputeSiblingResult(context.Background(), svc, sibling, false, true))

	info := svc.SiblingInfo()
	require.NotNil(t, info)
	require.True(t, info.Result.IsFullyMaterialized())
	assert.Equal(t, 10, info.Result.IdTable().NumRows())
	assert.Same(t, info.Result, sibling.TakePrecomputedResult())

	query, err := svc.Query(context.Background())
	require.NoError(t, err)
	assert.Contains(t, query, "VALUES (?o) { (0) (1) (2) (3) (4) (5) (6) (7) (8) (9) } . ")
}

func TestSiblingLookThroughSort(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	values := newValues(t, ec, []string{"o"}, intRows(2)...)
	sorted := engine.NewSort(ec, values, []int{0})

	require.NoError(t, PrecomputeSiblingResult(context.Background(), sorted, engine.NewSort(ec, svc, []int{0}), false, false))
	require.NotNil(t, svc.SiblingInfo())
	assert.NotNil(t, values.TakePrecomputedResult())
}

func TestSiblingNotApplicable(t *testing.T) {
	ctx := context.Background()

	t.Run("two services", func(t *testing.T) {
		ec := newTestContext(t, nil)
		a := newService(t, ec, false, jsonEndpoint(""))
		b := newService(t, ec, false, jsonEndpoint(""))
		require.NoError(t, PrecomputeSiblingResult(ctx, a, b, false, false))
		assert.Nil(t, a.SiblingInfo())
		assert.Nil(t, b.SiblingInfo())
		assert.Empty(t, a.RuntimeInfo().Details())
	})

	t.Run("no service", func(t *testing.T) {
		ec := newTestContext(t, nil)
		a := newValues(t, ec, []string{"o"}, intRows(1)...)
		b := newValues(t, ec, []string{"o"}, intRows(1)...)
		require.NoError(t, PrecomputeSiblingResult(ctx, a, b, false, false))
		assert.Nil(t, a.TakePrecomputedResult())
		assert.Nil(t, b.TakePrecomputedResult())
	})

	t.Run("right only with service on the left", func(t *testing.T) {
		ec := newTestContext(t, nil)
		svc := newService(t, ec, false, jsonEndpoint(""))
		values := newValues(t, ec, []string{"o"}, intRows(1)...)
		require.NoError(t, PrecomputeSiblingResult(ctx, svc, values, true, false))
		assert.Nil(t, svc.SiblingInfo())
		assert.Nil(t, values.TakePrecomputedResult())
	})

	t.Run("service results cached", func(t *testing.T) {
		ec := newTestContext(t, func(p *config.RuntimeParameters) { p.CacheServiceResults = true })
		svc := newService(t, ec, false, jsonEndpoint(""))
		values := newValues(t, ec, []string{"o"}, intRows(1)...)
		require.NoError(t, PrecomputeSiblingResult(ctx, values, svc, false, false))
		assert.Nil(t, svc.SiblingInfo())
		assert.Nil(t, values.TakePrecomputedResult())
	})
}

func TestSiblingRightOnly(t *testing.T) {
	ec := newTestContext(t, nil)
	left := newService(t, ec, false, jsonEndpoint(`{"head": {"vars": ["s", "o"]}, "results": {"bindings": []}}`))
	right := newService(t, ec, false, jsonEndpoint(""))

	require.NoError(t, PrecomputeSiblingResult(context.Background(), left, right, true, false))
	assert.Nil(t, left.SiblingInfo())
	require.NotNil(t, right.SiblingInfo())
}

func TestSiblingValuesClause(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"o", "s"},
		[]rdf.Term{rdf.NewIntegerLiteral(42), iri(knownIRI)},
		[]rdf.Term{rdf.NewLiteralWithLanguage("x", "en"), iri("http://example.org/new")},
		[]rdf.Term{rdf.NewDoubleLiteral(1.5), iri(knownIRI)},
		[]rdf.Term{rdf.NewBooleanLiteral(true), nil},
		[]rdf.Term{rdf.NewLiteral("plain"), rdf.NewBlankNode("b")},
		[]rdf.Term{rdf.NewIntegerLiteral(42), iri(knownIRI)},
	)
	require.NoError(t, PrecomputeSiblingResult(context.Background(), sibling, svc, false, false))

	clause, ok, err := svc.siblingValuesClause(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `VALUES (?s ?o) { `+
		`(<http://example.org/known> 42) `+
		`(<http://example.org/new> "x"@en) `+
		`(<http://example.org/known> 1.5E+00) `+
		`(UNDEF true) } . `, clause)
}

func TestSiblingValuesClauseDropsUnwritableWords(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"s", "o"},
		[]rdf.Term{iri("http://example.org/a b"), rdf.NewIntegerLiteral(1)},
		[]rdf.Term{iri("http://example.org/x>y"), rdf.NewIntegerLiteral(2)},
		[]rdf.Term{iri(knownIRI), rdf.NewLiteralWithLanguage("x", "en fr")},
		[]rdf.Term{iri(knownIRI), rdf.NewLiteralWithDatatype("d", rdf.NewNamedNode("http://example.org/d{t}"))},
		[]rdf.Term{iri(knownIRI), rdf.NewLiteralWithLanguage("y", "en-GB")},
	)
	require.NoError(t, PrecomputeSiblingResult(context.Background(), sibling, svc, false, false))

	clause, ok, err := svc.siblingValuesClause(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `VALUES (?s ?o) { (<http://example.org/known> "y"@en-GB) } . `, clause)
}

func TestSiblingValuesClauseNoCommonVariables(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"unrelated"}, intRows(3)...)
	require.NoError(t, PrecomputeSiblingResult(context.Background(), sibling, svc, false, false))
	require.NotNil(t, svc.SiblingInfo())

	_, ok, err := svc.siblingValuesClause(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	query, err := svc.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\nSELECT ?s ?o { ?s <http://example.org/p> ?o }", query)
}

func TestSiblingCancelled(t *testing.T) {
	ec := newTestContext(t, nil)
	svc := newService(t, ec, false, jsonEndpoint(""))
	sibling := newValues(t, ec, []string{"o"}, intRows(10)...)
	sibling.SetLazyChunkRows(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PrecomputeSiblingResult(ctx, sibling, svc, false, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, svc.SiblingInfo())
}
