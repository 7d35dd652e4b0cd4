package htmlctx

import (
	"strings"

	"golang.org/x/net/html/atom"
)

// regionKind is one entry type of the lexer's region stack
type regionKind int

const (
	regionText regionKind = iota
	regionComment
	regionTag
	regionAttrName
	regionAttrValue
	regionScript
	regionStyle
	regionRawText // textarea, title and other elements closed only by their end tag
)

// subState is the lexical sub-mode inside <script> and <style>
type subState int

const (
	subText subState = iota
	subSingleQuote
	subDoubleQuote
	subLineComment
	subBlockComment
)

// tagPhase tracks where inside a tag the lexer stands
type tagPhase int

const (
	phaseName tagPhase = iota
	phaseBeforeAttr
	phaseAfterAttrName
	phaseBeforeValue
)

// region is one nested syntactic scope
type region struct {
	kind    regionKind
	sub     subState
	quote   byte // attribute value delimiter, 0 when unquoted
	tag     string
	atom    atom.Atom
	attr    string
	phase   tagPhase
	closing bool // end tag such as </div>
	bogus   bool // <!doctype>, <?xml>, </ 1> style comments closed by a bare '>'
	open    int  // offset where a comment body starts
}

// context maps a region to the classification it exposes
func (r region) context() Context {
	switch r.kind {
	case regionComment:
		return New(KindHTMLComment, "", "")
	case regionTag:
		return New(KindHTMLTag, r.tag, "")
	case regionAttrName:
		return New(KindAttrName, r.tag, r.attr)
	case regionAttrValue:
		switch r.quote {
		case '\'':
			return New(KindAttrSingleQuote, r.tag, r.attr)
		case '"':
			return New(KindAttrDoubleQuote, r.tag, r.attr)
		default:
			return New(KindAttrUnquoted, r.tag, r.attr)
		}
	case regionRawText:
		return New(KindHTMLText, r.tag, "")
	case regionScript:
		switch r.sub {
		case subSingleQuote:
			return New(KindScriptSingleQuote, "", "")
		case subDoubleQuote:
			return New(KindScriptDoubleQuote, "", "")
		case subLineComment:
			return New(KindScriptLineComment, "", "")
		case subBlockComment:
			return New(KindScriptMultiComment, "", "")
		default:
			return New(KindScriptText, "", "")
		}
	case regionStyle:
		switch r.sub {
		case subSingleQuote:
			return New(KindStyleSingleQuote, "", "")
		case subDoubleQuote:
			return New(KindStyleDoubleQuote, "", "")
		case subBlockComment:
			return New(KindStyleComment, "", "")
		default:
			return New(KindStyleText, "", "")
		}
	}
	return New(KindHTMLText, "", "")
}

// transition is one move of the state machine. Zero-width transitions open
// or close implied regions without consuming input.
type transition struct {
	width    int
	pop      int
	setPhase bool
	phase    tagPhase
	hasPush  bool
	push     region
}

func advance(n int) transition { return transition{width: n} }

func pushed(n int, r region) transition { return transition{width: n, hasPush: true, push: r} }

func popped(n, count int) transition { return transition{width: n, pop: count} }

func phased(n int, p tagPhase) transition { return transition{width: n, setPhase: true, phase: p} }

func poppedTo(n int, p tagPhase) transition {
	return transition{width: n, pop: 1, setPhase: true, phase: p}
}

// lexer walks a document left to right over a stack of regions. The bottom
// of the stack is always the document text region.
type lexer struct {
	doc   string
	stack []region
}

func newLexer(doc string) *lexer {
	return &lexer{
		doc:   doc,
		stack: append(make([]region, 0, 8), region{kind: regionText}),
	}
}

func (l *lexer) top() *region { return &l.stack[len(l.stack)-1] }

// snapshot returns the breakout ladder: innermost region first
func (l *lexer) snapshot() []Context {
	out := make([]Context, 0, len(l.stack))
	for i := len(l.stack) - 1; i >= 0; i-- {
		out = append(out, l.stack[i].context())
	}
	return out
}

func (l *lexer) apply(t transition) {
	for i := 0; i < t.pop && len(l.stack) > 1; i++ {
		gone := l.stack[len(l.stack)-1]
		l.stack = l.stack[:len(l.stack)-1]
		if gone.kind == regionAttrName {
			l.top().attr = gone.attr
		}
	}
	if t.setPhase {
		l.top().phase = t.phase
	}
	if t.hasPush {
		l.stack = append(l.stack, t.push)
	}
}

// classify runs the machine and snapshots the stack at each target offset.
// targets must be sorted ascending. A target inside a multi-byte token sees
// the state from before that token.
func (l *lexer) classify(targets []int) [][]Context {
	out := make([][]Context, len(targets))
	next, pos := 0, 0
	for next < len(targets) && pos < len(l.doc) {
		t := l.next(pos)
		if t.width == 0 {
			l.apply(t)
			continue
		}
		end := pos + t.width
		for next < len(targets) && targets[next] < end {
			out[next] = l.snapshot()
			next++
		}
		l.apply(t)
		pos = end
	}
	// end of document: dangling regions stay open
	for ; next < len(targets); next++ {
		out[next] = l.snapshot()
	}
	return out
}

// next computes the transition at pos without mutating the lexer
func (l *lexer) next(pos int) transition {
	top := l.top()
	switch top.kind {
	case regionComment:
		return l.lexComment(pos, top)
	case regionTag:
		return l.lexTag(pos, top)
	case regionAttrName:
		return l.lexAttrName(pos)
	case regionAttrValue:
		return l.lexAttrValue(pos, top)
	case regionScript:
		return l.lexRaw(pos, top, "script")
	case regionStyle:
		return l.lexRaw(pos, top, "style")
	case regionRawText:
		return l.lexRawText(pos, top)
	}
	return l.lexText(pos)
}

func (l *lexer) lexText(pos int) transition {
	d := l.doc
	if d[pos] != '<' || pos+1 >= len(d) {
		return advance(1)
	}
	c := d[pos+1]
	switch {
	case strings.HasPrefix(d[pos:], "<!--"):
		return pushed(4, region{kind: regionComment, open: pos + 4})
	case c == '!' || c == '?':
		return pushed(2, region{kind: regionComment, bogus: true})
	case c == '/':
		if pos+2 >= len(d) {
			return advance(1)
		}
		switch n := d[pos+2]; {
		case isASCIILetter(n):
			name := readTagName(d, pos+2)
			return pushed(2, region{kind: regionTag, tag: name, atom: atom.Lookup([]byte(name)), closing: true})
		case n == '>':
			// "</>" is dropped by browsers
			return advance(3)
		default:
			return pushed(2, region{kind: regionComment, bogus: true})
		}
	case isASCIILetter(c):
		name := readTagName(d, pos+1)
		return pushed(1, region{kind: regionTag, tag: name, atom: atom.Lookup([]byte(name))})
	}
	return advance(1)
}

func (l *lexer) lexComment(pos int, top *region) transition {
	d := l.doc
	if top.bogus {
		if d[pos] == '>' {
			return popped(1, 1)
		}
		return advance(1)
	}
	rest := d[pos:]
	if pos == top.open {
		// <!--> and <!---> close immediately
		if strings.HasPrefix(rest, ">") {
			return popped(1, 1)
		}
		if strings.HasPrefix(rest, "->") {
			return popped(2, 1)
		}
	}
	switch {
	case strings.HasPrefix(rest, "-->"):
		return popped(3, 1)
	case strings.HasPrefix(rest, "--!>"):
		return popped(4, 1)
	}
	return advance(1)
}

func (l *lexer) lexTag(pos int, top *region) transition {
	c := l.doc[pos]
	switch top.phase {
	case phaseName:
		switch {
		case isSpace(c), c == '/':
			return phased(1, phaseBeforeAttr)
		case c == '>':
			return l.closeTag(top)
		}
		return advance(1)
	case phaseBeforeAttr:
		switch {
		case isSpace(c), c == '/':
			return advance(1)
		case c == '>':
			return l.closeTag(top)
		}
		return pushed(0, l.attrName(pos, top))
	case phaseAfterAttrName:
		switch {
		case isSpace(c):
			return advance(1)
		case c == '=':
			return phased(1, phaseBeforeValue)
		case c == '/':
			return phased(1, phaseBeforeAttr)
		case c == '>':
			return l.closeTag(top)
		}
		t := pushed(0, l.attrName(pos, top))
		t.setPhase, t.phase = true, phaseBeforeAttr
		return t
	case phaseBeforeValue:
		switch {
		case isSpace(c):
			return advance(1)
		case c == '"', c == '\'':
			return pushed(1, region{kind: regionAttrValue, quote: c, tag: top.tag, attr: top.attr})
		case c == '>':
			return l.closeTag(top)
		}
		return pushed(0, region{kind: regionAttrValue, tag: top.tag, attr: top.attr})
	}
	return advance(1)
}

func (l *lexer) attrName(pos int, top *region) region {
	return region{kind: regionAttrName, tag: top.tag, attr: readAttrName(l.doc, pos)}
}

// closeTag pops the tag on '>' and enters raw text for <script>, <style>
// and the elements whose content is never parsed as markup
func (l *lexer) closeTag(top *region) transition {
	t := popped(1, 1)
	if top.closing {
		return t
	}
	switch top.atom {
	case atom.Script:
		t.hasPush, t.push = true, region{kind: regionScript}
	case atom.Style:
		t.hasPush, t.push = true, region{kind: regionStyle}
	case atom.Textarea, atom.Title, atom.Xmp, atom.Iframe, atom.Noembed, atom.Noframes, atom.Noscript, atom.Plaintext:
		t.hasPush, t.push = true, region{kind: regionRawText, tag: top.tag, atom: top.atom}
	}
	return t
}

// lexRawText treats everything up to the element's own end tag as text.
// <plaintext> runs to the end of the document.
func (l *lexer) lexRawText(pos int, top *region) transition {
	if top.atom != atom.Plaintext && hasEndTag(l.doc, pos, top.tag) {
		return transition{
			width:   2 + len(top.tag),
			pop:     1,
			hasPush: true,
			push:    region{kind: regionTag, tag: top.tag, atom: top.atom, closing: true, phase: phaseBeforeAttr},
		}
	}
	return advance(1)
}

func (l *lexer) lexAttrName(pos int) transition {
	switch c := l.doc[pos]; {
	case isSpace(c):
		return poppedTo(1, phaseAfterAttrName)
	case c == '=':
		return poppedTo(1, phaseBeforeValue)
	case c == '/':
		return poppedTo(1, phaseBeforeAttr)
	case c == '>':
		return poppedTo(0, phaseBeforeAttr)
	}
	return advance(1)
}

func (l *lexer) lexAttrValue(pos int, top *region) transition {
	c := l.doc[pos]
	if top.quote != 0 {
		if c == top.quote {
			return poppedTo(1, phaseBeforeAttr)
		}
		return advance(1)
	}
	switch {
	case isSpace(c):
		return poppedTo(1, phaseBeforeAttr)
	case c == '>':
		return poppedTo(0, phaseBeforeAttr)
	}
	return advance(1)
}

// lexRaw handles <script> and <style> bodies. The end tag wins over every
// sub-mode, the way browsers end a script even inside a string literal.
// HTML comment delimiters are plain text here.
func (l *lexer) lexRaw(pos int, top *region, name string) transition {
	d := l.doc
	if hasEndTag(d, pos, name) {
		return transition{
			width:   2 + len(name),
			pop:     l.rawDepth(),
			hasPush: true,
			push:    region{kind: regionTag, tag: name, atom: atom.Lookup([]byte(name)), closing: true, phase: phaseBeforeAttr},
		}
	}
	rest := d[pos:]
	switch top.sub {
	case subText:
		switch {
		case rest[0] == '\'':
			return pushed(1, region{kind: top.kind, sub: subSingleQuote})
		case rest[0] == '"':
			return pushed(1, region{kind: top.kind, sub: subDoubleQuote})
		case top.kind == regionScript && strings.HasPrefix(rest, "//"):
			return pushed(2, region{kind: top.kind, sub: subLineComment})
		case strings.HasPrefix(rest, "/*"):
			return pushed(2, region{kind: top.kind, sub: subBlockComment})
		}
	case subSingleQuote, subDoubleQuote:
		quote := byte('\'')
		if top.sub == subDoubleQuote {
			quote = '"'
		}
		switch {
		case rest[0] == '\\' && len(rest) > 1:
			return advance(2)
		case rest[0] == quote:
			return popped(1, 1)
		}
	case subLineComment:
		if rest[0] == '\n' || rest[0] == '\r' ||
			strings.HasPrefix(rest, "\u2028") || strings.HasPrefix(rest, "\u2029") {
			return popped(0, 1)
		}
	case subBlockComment:
		if strings.HasPrefix(rest, "*/") {
			return popped(2, 1)
		}
	}
	return advance(1)
}

// rawDepth counts the script or style regions stacked on top
func (l *lexer) rawDepth() int {
	kind := l.top().kind
	n := 0
	for i := len(l.stack) - 1; i > 0 && l.stack[i].kind == kind; i-- {
		n++
	}
	return n
}

// hasEndTag matches "</name" followed by a tag terminator, case-insensitively
func hasEndTag(d string, pos int, name string) bool {
	end := pos + 2 + len(name)
	if end > len(d) || d[pos] != '<' || d[pos+1] != '/' {
		return false
	}
	if !strings.EqualFold(d[pos+2:end], name) {
		return false
	}
	return end == len(d) || isSpace(d[end]) || d[end] == '/' || d[end] == '>'
}

func readTagName(d string, i int) string {
	start := i
	for i < len(d) && !isSpace(d[i]) && d[i] != '/' && d[i] != '>' {
		i++
	}
	return strings.ToLower(d[start:i])
}

func readAttrName(d string, i int) string {
	start := i
	for i < len(d) && !isSpace(d[i]) && d[i] != '/' && d[i] != '>' && d[i] != '=' {
		i++
	}
	return strings.ToLower(d[start:i])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\r'
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
