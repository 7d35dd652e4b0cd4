package charfilter

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Specials are the characters and sequences that breakout payloads rely on
var Specials = []string{"<", ">", "'", `"`, "/", `\`, "=", "(", ")", ";", "--", "`"}

const backslashEscapable = `'"/\` + "`"

// escapeRe matches one HTML entity or one percent escape
var escapeRe = regexp.MustCompile(`&#?[0-9A-Za-z]+;|%[0-9A-Fa-f]{2}`)

// Report describes what happened to each special the target reflected
type Report struct {
	Survived []string          `json:"survived"`
	Dropped  []string          `json:"dropped"`
	Encoded  map[string]string `json:"encoded,omitempty"`
}

// Probe wraps every special between two copies of marker
func Probe(marker string) string {
	return marker + strings.Join(Specials, "") + marker
}

// Extract returns the text the target reflected between two markers
func Extract(body, marker string) (string, bool) {
	start := strings.Index(body, marker)
	if start < 0 {
		return "", false
	}
	start += len(marker)
	end := strings.Index(body[start:], marker)
	if end < 0 {
		return "", false
	}
	return body[start : start+end], true
}

// span is a run of sent bytes the target removed, with what it put there
type span struct {
	start, end  int
	replacement string
}

// Analyze compares the specials run that was sent with the run that came
// back and classifies every special.
func Analyze(sent, reflected string) Report {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(sent, reflected, false)

	var removed, inserted []span
	pos := 0
	for i, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += len(d.Text)
		case diffmatchpatch.DiffInsert:
			if (i > 0 && diffs[i-1].Type == diffmatchpatch.DiffDelete) ||
				(i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffDelete) {
				continue
			}
			inserted = append(inserted, span{start: pos, end: pos, replacement: d.Text})
		case diffmatchpatch.DiffDelete:
			s := span{start: pos, end: pos + len(d.Text)}
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				s.replacement = diffs[i+1].Text
			} else if i > 0 && diffs[i-1].Type == diffmatchpatch.DiffInsert {
				s.replacement = diffs[i-1].Text
			}
			removed = append(removed, s)
			pos = s.end
		}
	}

	r := Report{Encoded: map[string]string{}}
	for _, tok := range tokenize(sent) {
		s, hit := overlapping(removed, tok.start, tok.start+len(tok.text))
		switch {
		case !hit:
			if esc, ok := escapedBy(inserted, sent, tok); ok {
				r.Encoded[tok.text] = esc
			} else {
				r.Survived = append(r.Survived, tok.text)
			}
		case s.replacement == "":
			r.Dropped = append(r.Dropped, tok.text)
		default:
			r.Encoded[tok.text] = replacementFor(s, sent, tok)
		}
	}
	if len(r.Encoded) == 0 {
		r.Encoded = nil
	}
	return r
}

// Allows reports whether every special in payload survives the filter. A
// nil report allows everything.
func (r *Report) Allows(payload string) bool {
	if r == nil {
		return true
	}
	for _, tok := range tokenize(payload) {
		if !contains(r.Survived, tok.text) {
			return false
		}
	}
	return true
}

type token struct {
	text  string
	start int
}

// tokenize finds the specials in s, preferring "--" over two dashes
func tokenize(s string) []token {
	var out []token
	for i := 0; i < len(s); {
		matched := false
		for _, sp := range Specials {
			if len(sp) > 1 && strings.HasPrefix(s[i:], sp) {
				out = append(out, token{text: sp, start: i})
				i += len(sp)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if strings.IndexByte(`<>'"/\=();`+"`", s[i]) >= 0 {
			out = append(out, token{text: s[i : i+1], start: i})
		}
		i++
	}
	return out
}

// escapedBy finds a backslash inserted in front of tok and returns the
// escaped form. Only quotes, slashes and backslashes lose their meaning
// that way. A backslash added next to a sent backslash doubles it; the diff
// may place that insertion on either side.
func escapedBy(inserted []span, sent string, tok token) (string, bool) {
	if len(tok.text) != 1 || !strings.Contains(backslashEscapable, tok.text) {
		return "", false
	}
	for _, ins := range inserted {
		if !oddBackslashSuffix(ins.replacement) {
			continue
		}
		if tok.text == `\` {
			if ins.start == tok.start || ins.start == tok.start+1 {
				return `\\`, true
			}
			continue
		}
		if ins.start == tok.start && (tok.start == 0 || sent[tok.start-1] != '\\') {
			return `\` + tok.text, true
		}
	}
	return "", false
}

func oddBackslashSuffix(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func overlapping(spans []span, start, end int) (span, bool) {
	for _, s := range spans {
		if start < s.end && s.start < end {
			return s, true
		}
	}
	return span{}, false
}

// replacementFor narrows a run replacement down to one token when the run
// was encoded entity by entity or percent escape by percent escape
func replacementFor(s span, sent string, tok token) string {
	runToks := tokenize(sent[s.start:s.end])
	entities := escapeRe.FindAllString(s.replacement, -1)
	if len(entities) != len(runToks) || strings.Join(entities, "") != s.replacement {
		return s.replacement
	}
	for i, rt := range runToks {
		if s.start+rt.start == tok.start {
			return entities[i]
		}
	}
	return s.replacement
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
