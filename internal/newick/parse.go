package newick

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// maxDepth bounds parenthesis nesting so hostile input cannot exhaust the stack.
const maxDepth = 10000

// ParseError reports malformed Newick text. Offset is the byte position in
// the input where the problem was detected.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("newick: %s at offset %d", e.Msg, e.Offset)
}

// ParseFile reads exactly one tree from the file at path.
func ParseFile(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads exactly one tree from r. The terminating ';' may be omitted at
// end of input. Bracketed comments are skipped.
func Parse(r io.Reader) (*Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	return ParseString(string(data))
}

// ParseString parses exactly one tree from s.
func ParseString(s string) (*Node, error) {
	p := &parser{src: s}

	if err := p.skip(); err != nil {
		return nil, err
	}
	if p.eof() || p.peek() == ';' {
		return nil, p.errorf("no tree found")
	}

	root, err := p.subtree(0)
	if err != nil {
		return nil, err
	}

	if err := p.skip(); err != nil {
		return nil, err
	}
	terminated := false
	if !p.eof() && p.peek() == ';' {
		terminated = true
		p.pos++
		if err := p.skip(); err != nil {
			return nil, err
		}
	}
	if !p.eof() {
		switch {
		case terminated:
			return nil, p.errorf("more than one tree in input")
		case p.peek() == ')':
			return nil, p.errorf("unbalanced parentheses: unexpected ')'")
		default:
			return nil, p.errorf("unexpected %q after tree", p.peek())
		}
	}

	return root, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

// skip advances past whitespace and [bracketed comments].
func (p *parser) skip() error {
	for !p.eof() {
		switch c := p.peek(); {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				return p.errorf("unterminated comment")
			}
			p.pos += end + 1
		default:
			return nil
		}
	}
	return nil
}

func (p *parser) subtree(depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, p.errorf("tree nested deeper than %d levels", maxDepth)
	}
	if err := p.skip(); err != nil {
		return nil, err
	}

	n := &Node{}
	if !p.eof() && p.peek() == '(' {
		p.pos++
		for {
			child, err := p.subtree(depth + 1)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)

			if err := p.skip(); err != nil {
				return nil, err
			}
			if p.eof() {
				return nil, p.errorf("unbalanced parentheses: missing ')'")
			}
			c := p.peek()
			if c == ',' {
				p.pos++
				continue
			}
			if c == ')' {
				p.pos++
				break
			}
			return nil, p.errorf("unexpected %q in child list", c)
		}
		if err := p.skip(); err != nil {
			return nil, err
		}
	}

	label, quoted, err := p.label()
	if err != nil {
		return nil, err
	}
	n.Name = label

	if err := p.skip(); err != nil {
		return nil, err
	}
	if !p.eof() && p.peek() == ':' {
		p.pos++
		if err := p.skip(); err != nil {
			return nil, err
		}
		length, err := p.number()
		if err != nil {
			return nil, err
		}
		n.BranchLength = &length
	}

	// IQ-TREE writes support values where internal names would go.
	if !n.IsLeaf() && !quoted && label != "" {
		if v, err := strconv.ParseFloat(label, 64); err == nil {
			n.Confidence = &v
			n.Name = ""
		}
	}

	return n, nil
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '[', ']', '\'', ':', ';', ',', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// label reads an optional quoted or unquoted label. Quoted labels use ''
// for an embedded quote.
func (p *parser) label() (string, bool, error) {
	if p.eof() {
		return "", false, nil
	}

	if p.peek() == '\'' {
		start := p.pos
		p.pos++
		var b strings.Builder
		for {
			if p.eof() {
				p.pos = start
				return "", true, p.errorf("unterminated quoted label")
			}
			c := p.peek()
			p.pos++
			if c != '\'' {
				b.WriteByte(c)
				continue
			}
			if !p.eof() && p.peek() == '\'' {
				b.WriteByte('\'')
				p.pos++
				continue
			}
			return b.String(), true, nil
		}
	}

	start := p.pos
	for !p.eof() && !isDelimiter(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos], false, nil
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}

	text := p.src[start:p.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("invalid branch length %q", text)
	}
	if v < 0 {
		p.pos = start
		return 0, p.errorf("negative branch length %s", text)
	}
	return v, nil
}
