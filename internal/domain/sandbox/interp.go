package sandbox

import (
	"strconv"
	"strings"

	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// The interpreter is deliberately small: a line-oriented parser producing a
// statement tree, and a tree-walking evaluator. There is no way to reach Go
// runtime facilities from evaluated code; every name goes through Env.

type stmt interface{}

type assignStmt struct {
	targets []string // one name, or two for pair unpacking
	value   expr
}

type exprStmt struct {
	value expr
}

type forStmt struct {
	targets []string
	iter    expr
	body    []stmt
}

type expr interface{}

type numberLit struct{ value Value } // int64 or float64
type stringLit struct{ value string }
type nameRef struct{ name string }
type listLit struct{ items []expr }
type unaryOp struct {
	op      string
	operand expr
}
type binaryOp struct {
	op          string
	left, right expr
}
type callExpr struct {
	fn   expr
	args []expr
}
type attrExpr struct {
	target expr
	name   string
}
type indexExpr struct {
	target expr
	index  expr
}

// forbiddenKeywords are rejected up front with a precise reason; everything
// else unknown fails name resolution instead.
var forbiddenKeywords = map[string]bool{
	"import": true, "from": true, "def": true, "class": true,
	"while": true, "lambda": true, "with": true, "try": true,
	"global": true, "exec": true, "eval": true,
}

type srcLine struct {
	indent int
	text   string
	number int
}

func parse(source string) ([]stmt, error) {
	lines := splitLines(source)
	block, rest, err := parseBlock(lines, 0)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, apperrors.Sandboxf("line %d: unexpected indentation", rest[0].number)
	}
	return block, nil
}

func splitLines(source string) []srcLine {
	raw := strings.Split(source, "\n")
	out := make([]srcLine, 0, len(raw))
	for i, line := range raw {
		if idx := strings.IndexByte(line, '#'); idx >= 0 && !inString(line, idx) {
			line = line[:idx]
		}
		trimmed := strings.TrimRight(line, " \t\r")
		body := strings.TrimLeft(trimmed, " \t")
		if body == "" {
			continue
		}
		indent := 0
		for _, r := range trimmed {
			switch r {
			case ' ':
				indent++
			case '\t':
				indent += 4
			default:
				goto done
			}
		}
	done:
		out = append(out, srcLine{indent: indent, text: body, number: i + 1})
	}
	return out
}

// inString reports whether byte offset idx falls inside a quoted literal.
func inString(line string, idx int) bool {
	var quote byte
	for i := 0; i < idx; i++ {
		c := line[i]
		if quote == 0 {
			if c == '\'' || c == '"' {
				quote = c
			}
		} else if c == quote {
			quote = 0
		}
	}
	return quote != 0
}

func parseBlock(lines []srcLine, minIndent int) ([]stmt, []srcLine, error) {
	var block []stmt
	if len(lines) == 0 {
		return block, lines, nil
	}
	indent := lines[0].indent
	if indent < minIndent {
		return block, lines, nil
	}
	for len(lines) > 0 {
		line := lines[0]
		if line.indent < indent {
			break
		}
		if line.indent > indent {
			return nil, nil, apperrors.Sandboxf("line %d: unexpected indentation", line.number)
		}
		s, rest, err := parseStmt(line, lines[1:])
		if err != nil {
			return nil, nil, err
		}
		block = append(block, s)
		lines = rest
	}
	return block, lines, nil
}

func parseStmt(line srcLine, rest []srcLine) (stmt, []srcLine, error) {
	word := firstWord(line.text)
	if forbiddenKeywords[word] {
		return nil, nil, apperrors.Sandboxf("line %d: disallowed operation: %q", line.number, word)
	}

	if word == "for" {
		return parseFor(line, rest)
	}

	p := newExprParser(line.text, line.number)
	if targets, ok := p.tryAssignTargets(); ok {
		value, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		if err := p.expectEnd(); err != nil {
			return nil, nil, err
		}
		return &assignStmt{targets: targets, value: value}, rest, nil
	}

	value, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, nil, err
	}
	return &exprStmt{value: value}, rest, nil
}

func parseFor(line srcLine, rest []srcLine) (stmt, []srcLine, error) {
	text := strings.TrimSpace(strings.TrimPrefix(line.text, "for"))
	inIdx := strings.Index(text, " in ")
	if inIdx < 0 || !strings.HasSuffix(text, ":") {
		return nil, nil, apperrors.Sandboxf("line %d: malformed for statement", line.number)
	}
	targets, err := parseTargets(strings.TrimSpace(text[:inIdx]), line.number)
	if err != nil {
		return nil, nil, err
	}
	p := newExprParser(strings.TrimSuffix(strings.TrimSpace(text[inIdx+4:]), ":"), line.number)
	iter, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, nil, err
	}
	if len(rest) == 0 || rest[0].indent <= line.indent {
		return nil, nil, apperrors.Sandboxf("line %d: for statement requires an indented body", line.number)
	}
	body, remaining, err := parseBlock(rest, line.indent+1)
	if err != nil {
		return nil, nil, err
	}
	return &forStmt{targets: targets, iter: iter, body: body}, remaining, nil
}

func parseTargets(text string, lineNo int) ([]string, error) {
	parts := strings.Split(text, ",")
	targets := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if !isIdent(name) {
			return nil, apperrors.Sandboxf("line %d: invalid loop variable %q", lineNo, name)
		}
		targets = append(targets, name)
	}
	if len(targets) == 0 || len(targets) > 2 {
		return nil, apperrors.Sandboxf("line %d: 1 or 2 loop variables supported", lineNo)
	}
	return targets, nil
}

func firstWord(text string) string {
	for i := 0; i < len(text); i++ {
		if !isIdentByte(text[i]) {
			return text[:i]
		}
	}
	return text
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 0 && c >= '0' && c <= '9' {
			return false
		}
		if !isIdentByte(c) {
			return false
		}
	}
	return true
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// exprParser is a recursive-descent parser over one logical line.
type exprParser struct {
	text   string
	pos    int
	lineNo int
}

func newExprParser(text string, lineNo int) *exprParser {
	return &exprParser{text: text, lineNo: lineNo}
}

func (p *exprParser) errf(format string, args ...any) error {
	return apperrors.Sandboxf("line %d: "+format, append([]any{p.lineNo}, args...)...)
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.text) && (p.text[p.pos] == ' ' || p.text[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.text) {
		return 0
	}
	return p.text[p.pos]
}

func (p *exprParser) consume(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.text[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *exprParser) expectEnd() error {
	p.skipSpace()
	if p.pos < len(p.text) {
		return p.errf("unexpected trailing input %q", p.text[p.pos:])
	}
	return nil
}

// tryAssignTargets recognises "name =" or "a, b =" prefixes without consuming
// on failure.
func (p *exprParser) tryAssignTargets() ([]string, bool) {
	save := p.pos
	var targets []string
	for {
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.text) && isIdentByte(p.text[p.pos]) {
			p.pos++
		}
		name := p.text[start:p.pos]
		if !isIdent(name) {
			p.pos = save
			return nil, false
		}
		targets = append(targets, name)
		if p.consume(",") {
			continue
		}
		break
	}
	p.skipSpace()
	// "=" but not "==".
	if p.pos < len(p.text) && p.text[p.pos] == '=' && (p.pos+1 >= len(p.text) || p.text[p.pos+1] != '=') {
		p.pos++
		if len(targets) <= 2 {
			return targets, true
		}
	}
	p.pos = save
	return nil, false
}

func (p *exprParser) parseExpr() (expr, error) {
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (expr, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"<=", ">=", "==", "!=", "<", ">"} {
		if p.consume(op) {
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			return &binaryOp{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *exprParser) parseAddSub() (expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.consume("+"):
			right, err := p.parseMulDiv()
			if err != nil {
				return nil, err
			}
			left = &binaryOp{op: "+", left: left, right: right}
		case p.consume("-"):
			right, err := p.parseMulDiv()
			if err != nil {
				return nil, err
			}
			left = &binaryOp{op: "-", left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseMulDiv() (expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.consume("*"):
			op = "*"
		case p.consume("//"):
			op = "//"
		case p.consume("/"):
			op = "/"
		case p.consume("%"):
			op = "%"
		default:
			return left, nil
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &binaryOp{op: op, left: left, right: right}
	}
}

func (p *exprParser) parsePower() (expr, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.consume("**") {
		exp, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &binaryOp{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (expr, error) {
	if p.consume("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryOp{op: "-", operand: operand}, nil
	}
	if p.consume("+") {
		return p.parseUnary()
	}
	return p.parsePostfix()
}

func (p *exprParser) parsePostfix() (expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.peek() == '(':
			args, err := p.parseArgs('(', ')')
			if err != nil {
				return nil, err
			}
			base = &callExpr{fn: base, args: args}
		case p.peek() == '.':
			p.pos++
			p.skipSpace()
			start := p.pos
			for p.pos < len(p.text) && isIdentByte(p.text[p.pos]) {
				p.pos++
			}
			name := p.text[start:p.pos]
			if !isIdent(name) {
				return nil, p.errf("invalid attribute")
			}
			if strings.HasPrefix(name, "_") {
				return nil, p.errf("disallowed attribute: %q", name)
			}
			base = &attrExpr{target: base, name: name}
		case p.peek() == '[':
			p.pos++
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if !p.consume("]") {
				return nil, p.errf("expected ]")
			}
			base = &indexExpr{target: base, index: idx}
		default:
			return base, nil
		}
	}
}

func (p *exprParser) parseArgs(open, closeB byte) ([]expr, error) {
	p.skipSpace()
	if p.text[p.pos] != open {
		return nil, p.errf("expected %c", open)
	}
	p.pos++
	var args []expr
	if p.peek() == closeB {
		p.pos++
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.consume(",") {
			continue
		}
		if p.peek() == closeB {
			p.pos++
			return args, nil
		}
		return nil, p.errf("expected , or %c", closeB)
	}
}

func (p *exprParser) parsePrimary() (expr, error) {
	p.skipSpace()
	if p.pos >= len(p.text) {
		return nil, p.errf("unexpected end of expression")
	}
	c := p.text[p.pos]
	switch {
	case c == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.consume(")") {
			return nil, p.errf("expected )")
		}
		return inner, nil
	case c == '[':
		items, err := p.parseArgs('[', ']')
		if err != nil {
			return nil, err
		}
		return &listLit{items: items}, nil
	case c == '\'' || c == '"':
		return p.parseString(c)
	case c >= '0' && c <= '9':
		return p.parseNumber()
	case isIdentByte(c):
		start := p.pos
		for p.pos < len(p.text) && isIdentByte(p.text[p.pos]) {
			p.pos++
		}
		name := p.text[start:p.pos]
		if forbiddenKeywords[name] {
			return nil, p.errf("disallowed operation: %q", name)
		}
		if strings.HasPrefix(name, "__") {
			return nil, p.errf("disallowed name: %q", name)
		}
		switch name {
		case "True":
			return &numberLit{value: int64(1)}, nil
		case "False":
			return &numberLit{value: int64(0)}, nil
		}
		return &nameRef{name: name}, nil
	default:
		return nil, p.errf("unexpected character %q", string(c))
	}
}

func (p *exprParser) parseString(quote byte) (expr, error) {
	p.pos++
	start := p.pos
	for p.pos < len(p.text) && p.text[p.pos] != quote {
		p.pos++
	}
	if p.pos >= len(p.text) {
		return nil, p.errf("unterminated string literal")
	}
	s := p.text[start:p.pos]
	p.pos++
	return &stringLit{value: s}, nil
}

func (p *exprParser) parseNumber() (expr, error) {
	start := p.pos
	seenDot := false
	for p.pos < len(p.text) {
		c := p.text[p.pos]
		if c == '.' && !seenDot {
			seenDot = true
			p.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	text := p.text[start:p.pos]
	if seenDot {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errf("invalid number %q", text)
		}
		return &numberLit{value: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, p.errf("invalid number %q", text)
	}
	return &numberLit{value: n}, nil
}
