package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/internal/jsonstream"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/tidwall/gjson"
)

// DetailLocalVocabPerColumn counts the decoded values per column that went
// to a local vocabulary.
const DetailLocalVocabPerColumn = "num-local-vocab-per-column"

// Details recorded once the whole response was decoded
const (
	DetailBlankNodes    = "num-blank-nodes"
	DetailResponseBytes = "response-bytes"
)

type decodePhase int

const (
	decodeNotStarted decodePhase = iota
	decodeStreaming
	decodeDone
	decodeFailed
)

// decoder turns a SPARQL JSON results body into chunks. In single mode all
// rows go into one chunk that is yielded at the end of the body; otherwise
// a chunk is yielded per parsed fragment. It implements
// engine.ChunkIterator.
type decoder struct {
	ec       *engine.ExecutionContext
	info     *engine.RuntimeInfo
	endpoint string
	expected []rdf.Variable
	keys     []string
	single   bool

	parser *jsonstream.Parser
	rec    *jsonstream.Recorder
	body   io.Closer

	phase       decodePhase
	varsChecked bool
	table       *engine.IdTable
	vocab       *vocab.LocalVocab
	rowIdx      int
	blankNodes  map[string]engine.Id
	numBlank    int
	perColumn   []int
	cur         engine.Chunk
	err         error
}

func newDecoder(ec *engine.ExecutionContext, info *engine.RuntimeInfo, endpoint string,
	expected []rdf.Variable, body io.ReadCloser, single bool) *decoder {
	rec := jsonstream.NewRecorder(body, contextBytes)
	keys := make([]string, len(expected))
	for i, v := range expected {
		keys[i] = v.Name
	}
	d := &decoder{
		ec:         ec,
		info:       info,
		endpoint:   endpoint,
		expected:   expected,
		keys:       keys,
		single:     single,
		parser:     jsonstream.NewParser(rec, ec.Params.ServiceFragmentRows),
		rec:        rec,
		body:       body,
		blankNodes: make(map[string]engine.Id),
		perColumn:  make([]int, len(expected)),
	}
	d.resetTable()
	return d
}

func (d *decoder) resetTable() {
	d.table = engine.NewIdTable(len(d.expected), d.ec.Allocator)
	d.vocab = vocab.NewLocalVocab()
	d.rowIdx = 0
}

func (d *decoder) Next(ctx context.Context) bool {
	switch d.phase {
	case decodeDone, decodeFailed:
		return false
	case decodeNotStarted:
		d.phase = decodeStreaming
	}

	for d.parser.Next() {
		if err := engine.CheckCancellation(ctx); err != nil {
			return d.fail(err)
		}
		frag := d.parser.Fragment()
		if frag.Head != nil {
			if d.varsChecked {
				return d.fail(d.errorf(nil, "JSON result contains more than one head section"))
			}
			if err := d.verifyVariables(frag.Head); err != nil {
				return d.fail(err)
			}
			d.varsChecked = true
		}
		if err := d.writeBindings(ctx, frag.Bindings); err != nil {
			return d.fail(err)
		}
		if !d.single && d.table.NumRows() > 0 {
			d.yield()
			return true
		}
	}

	if err := d.parser.Err(); err != nil {
		if engine.IsCancellation(err) {
			return d.fail(err)
		}
		return d.fail(d.errorf(err, "Parser failed with error: '%s'", err))
	}
	if err := engine.CheckCancellation(ctx); err != nil {
		return d.fail(err)
	}
	if !d.parser.SawResults() {
		return d.fail(d.errorf(nil, "JSON result does not have the expected structure (results section missing)"))
	}
	if !d.parser.SawBindings() {
		return d.fail(d.errorf(nil, "JSON result does not have the expected structure (bindings array missing)"))
	}
	if !d.parser.SawHead() {
		return d.fail(d.errorf(nil, "JSON result does not have the expected structure (head section missing)"))
	}

	d.phase = decodeDone
	d.body.Close()
	if d.single {
		d.yield()
	}
	d.info.AddDetail(DetailLocalVocabPerColumn, append([]int(nil), d.perColumn...))
	d.info.AddDetail(DetailBlankNodes, d.numBlank)
	d.info.AddDetail(DetailResponseBytes, d.rec.Total())
	return d.single
}

func (d *decoder) yield() {
	d.numBlank += d.vocab.NumBlankNodes()
	d.cur = engine.Chunk{Table: d.table, Vocab: d.vocab}
	d.info.AddRows(d.table.NumRows())
	d.resetTable()
}

func (d *decoder) Chunk() engine.Chunk {
	return d.cur
}

func (d *decoder) Err() error {
	return d.err
}

// Close releases the rows decoded but not yet yielded
func (d *decoder) Close() error {
	if d.phase != decodeDone && d.phase != decodeFailed {
		d.phase = decodeDone
	}
	d.table.Release()
	return d.body.Close()
}

func (d *decoder) fail(err error) bool {
	d.err = d.wrapError(err)
	d.phase = decodeFailed
	d.table.Release()
	d.body.Close()
	return false
}

// errorf builds an *Error quoting the body read so far
func (d *decoder) errorf(cause error, format string, args ...any) error {
	return &Error{
		Endpoint: d.endpoint,
		Msg:      fmt.Sprintf(format, args...),
		First100: d.rec.First(),
		Last100:  d.rec.Last(),
		Err:      cause,
	}
}

// verifyVariables checks that head.vars names exactly the expected
// variables.
func (d *decoder) verifyVariables(head []byte) error {
	vars := gjson.GetBytes(head, "vars")
	malformed := !vars.IsArray()
	var names []string
	vars.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.String {
			malformed = true
			return false
		}
		names = append(names, v.String())
		return true
	})
	if malformed {
		return fmt.Errorf("JSON result does not have the expected structure, as its \"head\" section is not according to the SPARQL standard. The \"head\" section is: '%s'.", head)
	}

	received := make(map[string]struct{}, len(names))
	for _, n := range names {
		received[n] = struct{}{}
	}
	expected := make(map[string]struct{}, len(d.keys))
	for _, k := range d.keys {
		expected[k] = struct{}{}
	}
	equal := len(received) == len(expected)
	for k := range expected {
		if _, ok := received[k]; !ok {
			equal = false
			break
		}
	}
	if equal {
		return nil
	}

	got := ""
	if len(names) > 0 {
		got = "?" + strings.Join(names, " ?")
	}
	return d.errorf(nil, "Header row of JSON result for SERVICE query is \"%s\", but expected \"%s\". "+
		"Probable cause: The remote endpoint sent a JSON response that is not according to the SPARQL Standard",
		got, rdf.JoinVariables(d.expected, " "))
}

func (d *decoder) writeBindings(ctx context.Context, bindings []json.RawMessage) error {
	for _, raw := range bindings {
		binding := gjson.ParseBytes(raw)
		if !binding.IsObject() {
			return fmt.Errorf("binding is not a JSON object: '%s'", raw)
		}
		if err := d.table.EmplaceBack(); err != nil {
			return err
		}
		for col, key := range d.keys {
			b := binding.Get(escapePath(key))
			if !b.Exists() {
				continue
			}
			id, err := d.bindingToId(b)
			if err != nil {
				return err
			}
			d.table.Set(d.rowIdx, col, id)
			if id.Datatype() == engine.LocalVocabIndex {
				d.perColumn[col]++
			}
		}
		d.rowIdx++
		if err := engine.CheckCancellation(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) bindingToId(b gjson.Result) (engine.Id, error) {
	typ, value := b.Get("type"), b.Get("value")
	if !typ.Exists() || !value.Exists() {
		return engine.Id{}, fmt.Errorf("Missing type or value field in binding. The binding is: '%s'", b.Raw)
	}

	var term rdf.Term
	switch typ.String() {
	case "literal":
		if dt := b.Get("datatype"); dt.Exists() {
			term = rdf.NewLiteralWithDatatype(value.String(), rdf.NewNamedNode(dt.String()))
		} else if lang := b.Get("xml:lang"); lang.Exists() {
			term = rdf.NewLiteralWithLanguage(value.String(), lang.String())
		} else {
			term = rdf.NewLiteral(value.String())
		}
	case "uri":
		term = rdf.NewNamedNode(value.String())
	case "bnode":
		label := value.String()
		id, ok := d.blankNodes[label]
		if !ok {
			id = engine.MakeFromBlankNodeIndex(d.vocab.BlankNodeIndex(d.ec.BlankNodes))
			d.blankNodes[label] = id
		}
		return id, nil
	default:
		return engine.Id{}, fmt.Errorf("Type %s is undefined. The binding is: '%s'", typ.String(), b.Raw)
	}
	return d.ec.TermToId(term, d.vocab)
}

// escapePath escapes the characters gjson treats as path syntax
func escapePath(key string) string {
	if !strings.ContainsAny(key, `.*?|#@\!=<>%`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`.*?|#@\!=<>%`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// wrapError turns a failure into an *Error unless it already is one or must
// stay recognisable as cancellation or a resource limit.
func (d *decoder) wrapError(err error) error {
	var svcErr *Error
	if err == nil || engine.IsCancellation(err) || engine.IsResourceLimit(err) || errors.As(err, &svcErr) {
		return err
	}
	return d.errorf(err, "%s", err.Error())
}
