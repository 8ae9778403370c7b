package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/encoding"
	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/zeebo/xxh3"
)

// Runtime info details written by the sibling optimization
const (
	DetailOptimizedWithSibling = "optimized-with-sibling-result"
	DetailUsedToOptimize       = "used-to-optimize-service-sibling"
)

var wordDecoder = encoding.NewTermDecoder()

// SiblingInfo is a small sibling result kept for VALUES push-down. The
// result is shared with the sibling operator and is never modified.
type SiblingInfo struct {
	Result   *engine.Result
	Columns  engine.VariableToColumnMap
	CacheKey string
}

// PrecomputeSiblingResult computes the result of the operation next to a
// SERVICE before the SERVICE runs. A result of at most
// service_max_value_rows rows is kept by the SERVICE and pushed into its
// remote query as a VALUES clause. Either way the sibling gets its result
// back as a precomputed result, so nothing is computed twice.
//
// Exactly one of left and right must be a SERVICE, or with rightOnly the
// right one. Sort operations are looked through. Nothing happens while
// SERVICE results are cached.
func PrecomputeSiblingResult(ctx context.Context, left, right engine.Operation, rightOnly, requestLaziness bool) error {
	left, err := engine.UnwrapSort(left)
	if err != nil {
		return err
	}
	right, err = engine.UnwrapSort(right)
	if err != nil {
		return err
	}

	a, aIsService := left.(*Service)
	b, bIsService := right.(*Service)
	aIsService = aIsService && left.Kind() == engine.KindService
	bIsService = bIsService && right.Kind() == engine.KindService

	if rightOnly && !bIsService || !rightOnly && aIsService == bIsService {
		return nil
	}
	var svc *Service
	var sibling engine.Operation
	if rightOnly || !aIsService {
		svc, sibling = b, left
	} else {
		svc, sibling = a, right
	}

	ec := svc.ExecutionContext()
	if ec.Params.CacheServiceResults {
		return nil
	}
	logger := ec.Logger.WithField("service", svc.clause.Endpoint)

	addRuntimeInfo := func(used bool) {
		v := "no"
		if used {
			v = "yes"
		}
		svc.RuntimeInfo().AddDetail(DetailOptimizedWithSibling, v)
		sibling.RuntimeInfo().AddDetail(DetailUsedToOptimize, v)
		logger.WithField("sibling", sibling.Descriptor()).Debugf("sibling used for VALUES push-down: %s", v)
	}

	mode := engine.FullyMaterialized
	if requestLaziness {
		mode = engine.LazyIfSupported
	}
	res, err := engine.GetResult(ctx, sibling, mode)
	if err != nil {
		return err
	}
	maxRows := ec.Params.ServiceMaxValueRows

	if res.IsFullyMaterialized() {
		small := res.IdTable().NumRows() <= maxRows
		if small {
			svc.siblingInfo = &SiblingInfo{
				Result:   res,
				Columns:  sibling.VariableColumns(),
				CacheKey: sibling.CacheKey(),
			}
		}
		sibling.SetPrecomputedResult(res)
		addRuntimeInfo(small)
		return nil
	}

	it := res.Chunks()
	var consumed []engine.Chunk
	rows := 0
	for it.Next(ctx) {
		c := it.Chunk()
		rows += c.Table.NumRows()
		consumed = append(consumed, c)
		if rows > maxRows {
			replay := engine.Concat(engine.FromChunks(consumed...), it)
			sibling.SetPrecomputedResult(engine.NewLazyResult(replay, res.SortedOn()))
			addRuntimeInfo(false)
			return nil
		}
		if err := engine.CheckCancellation(ctx); err != nil {
			it.Close()
			return err
		}
	}
	if err := it.Err(); err != nil {
		it.Close()
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}
	if err := engine.CheckCancellation(ctx); err != nil {
		return err
	}

	chunk, err := engine.Materialize(ctx, engine.FromChunks(consumed...), sibling.ResultWidth(), ec.Allocator)
	if err != nil {
		return err
	}
	if err := engine.CheckCancellation(ctx); err != nil {
		return err
	}
	shared := engine.NewMaterializedResult(chunk, res.SortedOn())
	svc.siblingInfo = &SiblingInfo{
		Result:   shared,
		Columns:  sibling.VariableColumns(),
		CacheKey: sibling.CacheKey(),
	}
	sibling.SetPrecomputedResult(shared)
	addRuntimeInfo(true)
	return nil
}

// siblingValuesClause renders the sibling result restricted to the
// variables it shares with the clause as a VALUES clause. Rows containing
// blank nodes are left out and duplicate rows collapse. ok is false when
// there is no sibling or no shared variable.
func (s *Service) siblingValuesClause(ctx context.Context) (clause string, ok bool, err error) {
	if s.siblingInfo == nil {
		return "", false, nil
	}
	if err := engine.CheckCancellation(ctx); err != nil {
		return "", false, err
	}

	var vars []rdf.Variable
	var cols []int
	for _, v := range s.clause.Variables {
		if info, found := s.siblingInfo.Columns[v]; found {
			vars = append(vars, v)
			cols = append(cols, info.Index)
		}
	}
	if len(vars) == 0 {
		return "", false, nil
	}

	ec := s.ExecutionContext()
	table := s.siblingInfo.Result.IdTable()
	lv := s.siblingInfo.Result.LocalVocab()

	var b strings.Builder
	b.WriteString("VALUES (")
	b.WriteString(rdf.JoinVariables(vars, " "))
	b.WriteString(") { ")

	seen := make(map[xxh3.Uint128]struct{}, table.NumRows())
	values := make([]string, len(cols))
rows:
	for r := 0; r < table.NumRows(); r++ {
		for i, c := range cols {
			v, keep, err := valuesTerm(ec, table.At(r, c), lv)
			if err != nil {
				return "", false, err
			}
			if !keep {
				continue rows
			}
			values[i] = v
		}
		row := "(" + strings.Join(values, " ") + ")"
		h := xxh3.HashString128(row)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		b.WriteString(row)
		b.WriteByte(' ')
		if err := engine.CheckCancellation(ctx); err != nil {
			return "", false, err
		}
	}
	b.WriteString("} . ")
	return b.String(), true, nil
}

// valuesTerm renders an Id as a term of a VALUES row. keep is false for
// blank nodes, which never match anything on the remote side, and for words
// that cannot be written as SPARQL terms, such as IRIs containing spaces.
func valuesTerm(ec *engine.ExecutionContext, id engine.Id, lv *vocab.LocalVocab) (term string, keep bool, err error) {
	switch id.Datatype() {
	case engine.Undefined:
		return "UNDEF", true, nil
	case engine.BlankNodeIndex:
		return "", false, nil
	case engine.Int:
		return strconv.FormatInt(id.Int(), 10), true, nil
	case engine.Bool:
		return strconv.FormatBool(id.Bool()), true, nil
	case engine.Double:
		v := id.Double()
		switch {
		case math.IsNaN(v):
			return `"NaN"^^<` + rdf.XSDDouble.IRI + ">", true, nil
		case math.IsInf(v, 1):
			return `"INF"^^<` + rdf.XSDDouble.IRI + ">", true, nil
		case math.IsInf(v, -1):
			return `"-INF"^^<` + rdf.XSDDouble.IRI + ">", true, nil
		}
		return strconv.FormatFloat(v, 'E', -1, 64), true, nil
	}
	word, ok, err := ec.IdToWord(id, lv)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, fmt.Errorf("cannot render %s in a VALUES clause", id)
	}
	return word, validWord(word), nil
}

var languageTag = regexp.MustCompile(`^[a-zA-Z]+(-[a-zA-Z0-9]+)*$`)

// validWord reports whether a vocabulary word is valid SPARQL term syntax.
// Words of remote results carry IRIs and language tags unchecked.
func validWord(word string) bool {
	term, err := wordDecoder.DecodeWord(word)
	if err != nil {
		return false
	}
	switch t := term.(type) {
	case *rdf.NamedNode:
		return validIRIRef(t.IRI)
	case *rdf.Literal:
		if t.Language != "" {
			return languageTag.MatchString(t.Language)
		}
		return t.Datatype == nil || validIRIRef(t.Datatype.IRI)
	}
	return false
}

// validIRIRef checks the characters IRIREF excludes
func validIRIRef(iri string) bool {
	for i := 0; i < len(iri); i++ {
		if c := iri[i]; c <= 0x20 || strings.IndexByte(`<>"{}|^`+"`\\", c) >= 0 {
			return false
		}
	}
	return true
}
