package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// Parser parses SERVICE clauses
type Parser struct {
	input  string
	pos    int
	length int

	base     string
	prefixes map[string]string
}

// NewParser creates a new parser
func NewParser(input string) *Parser {
	return &Parser{
		input:    input,
		pos:      0,
		length:   len(input),
		prefixes: make(map[string]string),
	}
}

// ParseService parses an optional prologue followed by a single SERVICE
// clause.
func ParseService(input string) (*ServiceClause, error) {
	return NewParser(input).ParseService()
}

// ParseService parses an optional prologue followed by a single SERVICE
// clause.
func (p *Parser) ParseService() (*ServiceClause, error) {
	prologue, err := p.parsePrologue()
	if err != nil {
		return nil, err
	}

	if !p.matchKeyword("SERVICE") {
		return nil, fmt.Errorf("expected SERVICE at position %d", p.pos)
	}
	clause := &ServiceClause{Prologue: prologue, Prefixes: p.prefixes}
	if p.matchKeyword("SILENT") {
		clause.Silent = true
	}

	p.skipWhitespace()
	switch ch := p.peek(); {
	case ch == '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		clause.Endpoint = p.resolveIRI(iri)
	case ch == '?' || ch == '$':
		return nil, fmt.Errorf("SERVICE with a variable as endpoint is not supported")
	default:
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, fmt.Errorf("expected endpoint IRI after SERVICE: %w", err)
		}
		clause.Endpoint = iri
	}

	p.skipWhitespace()
	pattern, vars, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	clause.GraphPattern = pattern
	clause.Variables = vars

	p.skipWhitespace()
	if p.pos < p.length {
		return nil, fmt.Errorf("unexpected input after SERVICE clause at position %d", p.pos)
	}
	return clause, nil
}

// parsePrologue consumes PREFIX and BASE declarations and returns their text
func (p *Parser) parsePrologue() (string, error) {
	p.skipWhitespace()
	start := p.pos
	end := p.pos
	for {
		if p.matchKeyword("PREFIX") {
			if err := p.parsePrefixDecl(); err != nil {
				return "", err
			}
		} else if p.matchKeyword("BASE") {
			if err := p.parseBaseDecl(); err != nil {
				return "", err
			}
		} else {
			break
		}
		end = p.pos
		p.skipWhitespace()
	}
	return p.input[start:end], nil
}

// parsePrefixDecl parses prefix: <iri>
func (p *Parser) parsePrefixDecl() error {
	p.skipWhitespace()
	prefix := p.readWhile(isNameChar)
	if p.peek() != ':' {
		return fmt.Errorf("expected ':' in PREFIX declaration")
	}
	p.advance()
	p.skipWhitespace()
	iri, err := p.parseIRI()
	if err != nil {
		return fmt.Errorf("invalid PREFIX declaration: %w", err)
	}
	p.prefixes[prefix] = p.resolveIRI(iri)
	return nil
}

// parseBaseDecl parses <iri>
func (p *Parser) parseBaseDecl() error {
	p.skipWhitespace()
	iri, err := p.parseIRI()
	if err != nil {
		return fmt.Errorf("invalid BASE declaration: %w", err)
	}
	p.base = p.resolveIRI(iri)
	return nil
}

// parseGroupGraphPattern reads a balanced { ... } block. Braces inside
// string literals, IRIs and comments are ignored. The variables mentioned
// in the block are collected on the way. Of a nested sub-select only the
// projected variables are visible, unless it is SELECT *.
func (p *Parser) parseGroupGraphPattern() (string, []rdf.Variable, error) {
	if p.peek() != '{' {
		return "", nil, fmt.Errorf("expected '{' to start graph pattern")
	}
	start := p.pos
	depth := 0
	var vars []rdf.Variable
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			vars = append(vars, rdf.NewVariable(name))
		}
	}
	// depth of the group holding a sub-select with an explicit projection,
	// 0 outside of one
	hidden := 0

	for p.pos < p.length {
		ch := p.peek()
		switch {
		case ch == '{':
			depth++
			p.advance()
		case ch == '}':
			depth--
			p.advance()
			if hidden > 0 && depth < hidden {
				hidden = 0
			}
			if depth == 0 {
				return p.input[start:p.pos], vars, nil
			}
		case ch == '"' || ch == '\'':
			if err := p.skipString(); err != nil {
				return "", nil, err
			}
		case ch == '<' && p.looksLikeIRI():
			if _, err := p.parseIRI(); err != nil {
				return "", nil, err
			}
		case ch == '#':
			p.readWhile(func(c byte) bool { return c != '\n' })
		case ch == '?' || ch == '$':
			p.advance()
			name := p.readWhile(isVarNameChar)
			if hidden == 0 {
				add(name)
			}
		case isLetter(ch):
			afterColon := p.pos > 0 && p.input[p.pos-1] == ':'
			word := p.readWhile(isNameChar)
			if hidden > 0 || afterColon || !strings.EqualFold(word, "SELECT") {
				continue
			}
			projected, star, err := p.parseProjection()
			if err != nil {
				return "", nil, err
			}
			if !star {
				for _, name := range projected {
					add(name)
				}
				hidden = depth
			}
		default:
			p.advance()
		}
	}
	return "", nil, fmt.Errorf("unterminated graph pattern")
}

// parseProjection reads the projection of a sub-select up to the '{' of its
// WHERE clause. For (expr AS ?v) only ?v is projected.
func (p *Parser) parseProjection() (vars []string, star bool, err error) {
	parens := 0
	afterAS := false
	for p.pos < p.length {
		ch := p.peek()
		switch {
		case ch == '{':
			return vars, star, nil
		case ch == '*':
			star = star || parens == 0
			p.advance()
		case ch == '(':
			parens++
			p.advance()
		case ch == ')':
			parens--
			p.advance()
		case ch == '"' || ch == '\'':
			if err := p.skipString(); err != nil {
				return nil, false, err
			}
		case ch == '<' && p.looksLikeIRI():
			if _, err := p.parseIRI(); err != nil {
				return nil, false, err
			}
		case ch == '?' || ch == '$':
			p.advance()
			name := p.readWhile(isVarNameChar)
			if name != "" && (parens == 0 || afterAS) {
				vars = append(vars, name)
			}
			afterAS = false
		case isLetter(ch):
			afterAS = strings.EqualFold(p.readWhile(isNameChar), "AS")
		default:
			p.advance()
		}
	}
	return nil, false, fmt.Errorf("unterminated sub-select")
}

// looksLikeIRI tells an IRI reference apart from the less-than operator
func (p *Parser) looksLikeIRI() bool {
	for i := p.pos + 1; i < p.length; i++ {
		switch p.input[i] {
		case '>':
			return true
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}':
			return false
		}
	}
	return false
}

// skipString skips a short or long string literal
func (p *Parser) skipString() error {
	quote := p.peek()
	long := strings.Repeat(string(quote), 3)
	if strings.HasPrefix(p.input[p.pos:], long) {
		end := strings.Index(p.input[p.pos+3:], long)
		if end < 0 {
			return fmt.Errorf("unterminated string literal")
		}
		p.pos += 3 + end + 3
		return nil
	}
	p.advance()
	for p.pos < p.length {
		ch := p.peek()
		switch ch {
		case '\\':
			p.advance()
		case quote:
			p.advance()
			return nil
		case '\n':
			return fmt.Errorf("unterminated string literal")
		}
		p.advance()
	}
	return fmt.Errorf("unterminated string literal")
}

// parseIRI parses an IRI enclosed in < >
func (p *Parser) parseIRI() (string, error) {
	if p.peek() != '<' {
		return "", fmt.Errorf("expected '<' to start IRI")
	}
	p.advance()

	iri := p.readWhile(func(ch byte) bool {
		return ch != '>'
	})

	if p.peek() != '>' {
		return "", fmt.Errorf("expected '>' to end IRI")
	}
	p.advance()

	return iri, nil
}

// parsePrefixedName parses prefix:local and expands it
func (p *Parser) parsePrefixedName() (string, error) {
	prefix := p.readWhile(isNameChar)
	if p.peek() != ':' {
		return "", fmt.Errorf("expected prefixed name")
	}
	p.advance()
	local := p.readWhile(func(ch byte) bool {
		return isNameChar(ch) || ch == '.' || ch == '/' || ch == '#'
	})
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", fmt.Errorf("undefined prefix %q", prefix)
	}
	return ns + local, nil
}

// resolveIRI resolves a relative IRI against the BASE declaration
func (p *Parser) resolveIRI(iri string) string {
	if p.base == "" {
		return iri
	}
	ref, err := url.Parse(iri)
	if err != nil || ref.IsAbs() {
		return iri
	}
	base, err := url.Parse(p.base)
	if err != nil {
		return iri
	}
	return base.ResolveReference(ref).String()
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isVarNameChar matches VARNAME characters, which unlike prefixed names
// exclude '-'
func isVarNameChar(ch byte) bool {
	return isLetter(ch) || (ch >= '0' && ch <= '9') || ch == '_'
}

func isNameChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
}

// Helper methods

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) advance() {
	if p.pos < p.length {
		p.pos++
	}
}

func (p *Parser) skipWhitespace() {
	for p.pos < p.length && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' ||
		p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *Parser) readWhile(predicate func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && predicate(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *Parser) matchKeyword(keyword string) bool {
	p.skipWhitespace()

	// Case-insensitive match
	remaining := p.input[p.pos:]
	pattern := `(?i)^` + regexp.QuoteMeta(keyword) + `\b`
	matched, _ := regexp.MatchString(pattern, remaining)

	if matched {
		p.pos += len(keyword)
		return true
	}
	return false
}
