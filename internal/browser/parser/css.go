// internal/browser/parser/css.go
package parser

import (
	"errors"
	"fmt"
	"strings"
)

// Property is a lower-cased CSS property name.
type Property string

// Value is the raw text of a declaration value.
type Value string

// Declaration is one "property: value" pair.
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// RuleSet applies its declarations to every selector in the group.
type RuleSet struct {
	Selectors    SelectorGroup
	Declarations []Declaration
}

// StyleSheet is the list of well-formed rules in source order.
type StyleSheet struct {
	Rules []RuleSet
}

// RuleResult is the outcome of parsing one rule. Offset is the byte offset
// at which the rule started, for diagnostics.
type RuleResult struct {
	Rule   RuleSet
	Err    error
	Offset int
}

// SelectorGroup is a comma-separated selector list.
type SelectorGroup []ComplexSelector

// ComplexSelector is a chain of compound selectors, left to right.
type ComplexSelector struct {
	Selectors []SimpleSelectorWithCombinator
}

// SimpleSelectorWithCombinator pairs a compound selector with the combinator
// that links it to the one before it.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector is a compound selector such as input#q.search[type=text].
type SimpleSelector struct {
	TagName    string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
}

// AttributeSelector is [name], or [name op value] with op one of
// = ~= |= ^= $= *=.
type AttributeSelector struct {
	Name     string
	Operator string
	Value    string
}

type Combinator int

const (
	CombinatorNone Combinator = iota
	CombinatorDescendant
	CombinatorChild
	CombinatorAdjacentSibling
	CombinatorGeneralSibling
)

var combinators = map[byte]Combinator{
	'>': CombinatorChild,
	'+': CombinatorAdjacentSibling,
	'~': CombinatorGeneralSibling,
}

var (
	errEmptySelector      = errors.New("empty selector")
	errDanglingCombinator = errors.New("selector ends with a combinator")
	errUnterminated       = errors.New("unterminated declaration block")
)

// CalculateSpecificity sums the (id, class, type) counts of every compound
// selector in the chain.
func (cs ComplexSelector) CalculateSpecificity() (a, b, c int) {
	for _, part := range cs.Selectors {
		pa, pb, pc := part.SimpleSelector.CalculateSpecificity()
		a, b, c = a+pa, b+pb, c+pc
	}
	return a, b, c
}

// CalculateSpecificity counts attributes with classes; the universal
// selector counts for nothing.
func (s SimpleSelector) CalculateSpecificity() (a, b, c int) {
	if s.ID != "" {
		a = 1
	}
	b = len(s.Classes) + len(s.Attributes)
	if s.TagName != "" && s.TagName != "*" {
		c = 1
	}
	return a, b, c
}

// IsValid reports whether the selector constrains anything at all.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0
}

// Parser reads rules one at a time from a style sheet.
type Parser struct {
	cursor
}

func NewParser(input string) *Parser {
	return &Parser{cursor{src: input}}
}

// Next parses the next rule. It returns false once the input is exhausted.
// A malformed rule yields a result with Err set; the cursor has already been
// advanced past the rule's closing delimiter, so the caller simply continues.
func (p *Parser) Next() (RuleResult, bool) {
	for p.trivia(); p.at('@'); p.trivia() {
		p.atRule()
	}
	if p.done() {
		return RuleResult{}, false
	}

	start := p.off
	rule, err := p.rule()
	if err != nil {
		p.recoverRule()
		return RuleResult{Err: fmt.Errorf("rule at offset %d: %w", start, err), Offset: start}, true
	}
	return RuleResult{Rule: rule, Offset: start}, true
}

// Rules parses every rule in the input, malformed ones included.
func (p *Parser) Rules() []RuleResult {
	var results []RuleResult
	for r, ok := p.Next(); ok; r, ok = p.Next() {
		results = append(results, r)
	}
	return results
}

// Parse returns the well-formed, non-empty rules of the input.
func (p *Parser) Parse() StyleSheet {
	var sheet StyleSheet
	for _, r := range p.Rules() {
		if r.Err == nil && len(r.Rule.Declarations) > 0 {
			sheet.Rules = append(sheet.Rules, r.Rule)
		}
	}
	return sheet
}

// ParseSelector parses a standalone selector list such as the argument of
// querySelectorAll.
func ParseSelector(input string) (SelectorGroup, error) {
	p := NewParser(input)
	group, err := p.selectorList()
	if err != nil {
		return nil, err
	}
	if p.spaces(); !p.done() {
		return nil, fmt.Errorf("unexpected %q at offset %d in selector", p.peek(), p.off)
	}
	return group, nil
}

// ParseDeclarations parses a style attribute. Malformed declarations are
// skipped.
func ParseDeclarations(input string) []Declaration {
	return NewParser(input).declarations()
}

func (p *Parser) rule() (RuleSet, error) {
	group, err := p.selectorList()
	if err != nil {
		return RuleSet{}, err
	}
	if p.spaces(); !p.accept('{') {
		return RuleSet{}, errors.New("expected '{' after selector")
	}
	decls := p.declarations()
	if !p.accept('}') {
		return RuleSet{}, errUnterminated
	}
	return RuleSet{Selectors: group, Declarations: decls}, nil
}

// recoverRule moves past the rest of a broken rule: its block if one
// follows, or the stray '}' that ends it.
func (p *Parser) recoverRule() {
	p.until("{}")
	if p.next() == '{' {
		p.nested('{', '}')
	}
}

func (p *Parser) selectorList() (SelectorGroup, error) {
	var group SelectorGroup
	for {
		p.spaces()
		sel, err := p.complexSelector()
		if err != nil {
			return nil, err
		}
		if len(sel.Selectors) == 0 {
			return nil, fmt.Errorf("%w at offset %d", errEmptySelector, p.off)
		}
		group = append(group, sel)
		if p.spaces(); !p.accept(',') {
			return group, nil
		}
	}
}

func (p *Parser) selectorEnds() bool {
	return p.done() || p.at('{') || p.at(',')
}

func (p *Parser) complexSelector() (ComplexSelector, error) {
	var out ComplexSelector
	link := CombinatorNone
	for {
		p.spaces()
		if p.selectorEnds() {
			if link != CombinatorNone && link != CombinatorDescendant {
				return ComplexSelector{}, errDanglingCombinator
			}
			return out, nil
		}
		compound, err := p.compoundSelector()
		if err != nil {
			return ComplexSelector{}, err
		}
		out.Selectors = append(out.Selectors, SimpleSelectorWithCombinator{Combinator: link, SimpleSelector: compound})

		p.spaces()
		if p.selectorEnds() {
			return out, nil
		}
		link = CombinatorDescendant
		if c, ok := combinators[p.peek()]; ok {
			p.next()
			link = c
		}
	}
}

func (p *Parser) compoundSelector() (SimpleSelector, error) {
	var sel SimpleSelector
	switch {
	case p.accept('*'):
		sel.TagName = "*"
	case isNameStart(p.peek()):
		sel.TagName = strings.ToLower(p.ident())
	}

	for {
		switch {
		case p.accept('#'):
			if sel.ID = p.ident(); sel.ID == "" {
				return sel, errors.New("empty id selector")
			}
		case p.accept('.'):
			class := p.ident()
			if class == "" {
				return sel, errors.New("empty class selector")
			}
			sel.Classes = append(sel.Classes, class)
		case p.accept('['):
			attr, err := p.attributeSelector()
			if err != nil {
				return sel, err
			}
			sel.Attributes = append(sel.Attributes, attr)
		default:
			if !sel.IsValid() {
				return sel, fmt.Errorf("invalid selector at offset %d", p.off)
			}
			return sel, nil
		}
	}
}

// attributeSelector parses the body of [...] after the opening bracket.
func (p *Parser) attributeSelector() (AttributeSelector, error) {
	p.spaces()
	attr := AttributeSelector{Name: p.ident()}
	p.spaces()
	if p.accept(']') {
		return attr, nil
	}

	start := p.off
	if strings.IndexByte("~|^$*", p.peek()) >= 0 {
		p.next()
	}
	if !p.accept('=') {
		return AttributeSelector{}, fmt.Errorf("bad attribute operator at offset %d", start)
	}
	attr.Operator = p.src[start:p.off]

	p.spaces()
	if q := p.peek(); q == '"' || q == '\'' {
		from := p.off + 1
		p.quoted()
		attr.Value = strings.TrimSuffix(p.src[from:p.off], string(q))
	} else {
		attr.Value = p.ident()
	}
	if p.spaces(); !p.accept(']') {
		return AttributeSelector{}, errors.New("expected ']' to close attribute selector")
	}
	return attr, nil
}

// declarations reads a declaration block body, leaving the closing '}' for
// the caller.
func (p *Parser) declarations() []Declaration {
	var out []Declaration
	for {
		p.trivia()
		switch {
		case p.done() || p.at('}'):
			return out
		case p.accept(';'):
		default:
			if d, ok := p.declaration(); ok {
				out = append(out, d)
			}
		}
	}
}

// declaration parses one "name: value [!important]" and its semicolon. On a
// malformed declaration it skips to the next ';' or '}' and reports false.
func (p *Parser) declaration() (Declaration, bool) {
	var name string
	if isNameStart(p.peek()) {
		name = p.ident()
		p.spaces()
	}
	if name == "" || !p.accept(':') {
		p.until(";}")
		p.accept(';')
		return Declaration{}, false
	}
	p.spaces()

	raw := p.value()
	p.accept(';')
	d := Declaration{Property: Property(strings.ToLower(name))}
	if lower := strings.ToLower(raw); strings.HasSuffix(lower, "!important") {
		d.Important = true
		raw = strings.TrimSpace(raw[:len(raw)-len("!important")])
	}
	d.Value = Value(raw)
	return d, raw != ""
}

// value reads up to an unnested ';' or '}', keeping strings and parentheses
// whole.
func (p *Parser) value() string {
	start := p.off
	for !p.done() && !p.at(';') && !p.at('}') {
		switch p.peek() {
		case '"', '\'':
			p.quoted()
		case '(':
			p.next()
			p.nested('(', ')')
		default:
			p.next()
		}
	}
	return strings.TrimSpace(p.src[start:p.off])
}
