// Package jsonstream splits a SPARQL JSON results document into fragments
// while it is still being read. Each fragment carries the raw JSON of the
// bindings that were complete when it was cut, plus the head object if it
// was completed in that fragment.
package jsonstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Fragment is a piece of a parsed results document
type Fragment struct {
	Head     json.RawMessage
	Bindings []json.RawMessage
}

func (f Fragment) empty() bool {
	return f.Head == nil && len(f.Bindings) == 0
}

type phase int

const (
	phaseStart phase = iota
	phaseTopLevel
	phaseResults
	phaseBindings
	phaseDone
)

// Parser walks the document token by token. A fragment is cut when it holds
// batchSize bindings, when all buffered input has been consumed, or when the
// bindings array ends.
type Parser struct {
	dec       *json.Decoder
	batchSize int

	phase       phase
	cur         Fragment
	out         Fragment
	sawHead     bool
	sawResults  bool
	sawBindings bool
	err         error
}

// NewParser reads from r. batchSize <= 0 means no limit.
func NewParser(r io.Reader, batchSize int) *Parser {
	return &Parser{dec: json.NewDecoder(r), batchSize: batchSize}
}

// Next advances to the next fragment
func (p *Parser) Next() bool {
	if p.err != nil || p.phase == phaseDone {
		return false
	}
	for {
		cut, err := p.step()
		if err != nil {
			p.err = err
			return false
		}
		if cut && !p.cur.empty() {
			p.out, p.cur = p.cur, Fragment{}
			return true
		}
		if p.phase == phaseDone {
			if p.cur.empty() {
				return false
			}
			p.out, p.cur = p.cur, Fragment{}
			return true
		}
	}
}

func (p *Parser) Fragment() Fragment {
	return p.out
}

func (p *Parser) Err() error {
	return p.err
}

// SawHead reports whether a top-level "head" member was read
func (p *Parser) SawHead() bool { return p.sawHead }

// SawResults reports whether a top-level "results" object was read
func (p *Parser) SawResults() bool { return p.sawResults }

// SawBindings reports whether a "bindings" array was found in "results"
func (p *Parser) SawBindings() bool { return p.sawBindings }

// step consumes one syntactic unit and reports whether the current fragment
// should be cut.
func (p *Parser) step() (bool, error) {
	switch p.phase {
	case phaseStart:
		if err := p.expectDelim('{', "the result must be a JSON object"); err != nil {
			return false, err
		}
		p.phase = phaseTopLevel
		return false, nil

	case phaseTopLevel:
		if !p.dec.More() {
			if err := p.expectDelim('}', "unterminated result object"); err != nil {
				return false, err
			}
			if _, err := p.dec.Token(); !errors.Is(err, io.EOF) {
				return false, fmt.Errorf("unexpected data after the result object")
			}
			p.phase = phaseDone
			return true, nil
		}
		key, err := p.key()
		if err != nil {
			return false, err
		}
		switch key {
		case "head":
			var raw json.RawMessage
			if err := p.dec.Decode(&raw); err != nil {
				return false, err
			}
			if p.sawHead {
				return false, fmt.Errorf("duplicate head section")
			}
			p.sawHead = true
			p.cur.Head = raw
			return p.drained(), nil
		case "results":
			if err := p.expectDelim('{', `"results" must be an object`); err != nil {
				return false, err
			}
			p.sawResults = true
			p.phase = phaseResults
			return false, nil
		default:
			return false, p.skipValue()
		}

	case phaseResults:
		if !p.dec.More() {
			if err := p.expectDelim('}', `unterminated "results" object`); err != nil {
				return false, err
			}
			p.phase = phaseTopLevel
			return false, nil
		}
		key, err := p.key()
		if err != nil {
			return false, err
		}
		if key != "bindings" {
			return false, p.skipValue()
		}
		if err := p.expectDelim('[', `"bindings" must be an array`); err != nil {
			return false, err
		}
		p.sawBindings = true
		p.phase = phaseBindings
		return false, nil

	case phaseBindings:
		if !p.dec.More() {
			if err := p.expectDelim(']', `unterminated "bindings" array`); err != nil {
				return false, err
			}
			p.phase = phaseResults
			return true, nil
		}
		var raw json.RawMessage
		if err := p.dec.Decode(&raw); err != nil {
			return false, err
		}
		p.cur.Bindings = append(p.cur.Bindings, raw)
		if p.batchSize > 0 && len(p.cur.Bindings) >= p.batchSize {
			return true, nil
		}
		return p.drained(), nil
	}
	return false, nil
}

// drained reports whether everything read so far has been consumed, so the
// next token needs another read from the underlying reader.
func (p *Parser) drained() bool {
	br, ok := p.dec.Buffered().(*bytes.Reader)
	if !ok {
		return false
	}
	for {
		c, err := br.ReadByte()
		if err != nil {
			return true
		}
		switch c {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
}

func (p *Parser) key() (string, error) {
	tok, err := p.dec.Token()
	if err != nil {
		return "", p.wrapEOF(err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected an object key, got %v", tok)
	}
	return key, nil
}

func (p *Parser) expectDelim(want json.Delim, msg string) error {
	tok, err := p.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: unexpected end of input", msg)
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%s: got %v", msg, tok)
	}
	return nil
}

func (p *Parser) skipValue() error {
	var raw json.RawMessage
	return p.wrapEOF(p.dec.Decode(&raw))
}

func (p *Parser) wrapEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
