package htmlctx

import (
	"strings"
)

// Kind identifies one syntactic context variant
type Kind int

const (
	KindHTMLText Kind = iota
	KindHTMLComment
	KindHTMLTag
	KindAttrName
	KindAttrUnquoted
	KindAttrSingleQuote
	KindAttrDoubleQuote
	KindScriptText
	KindScriptSingleQuote
	KindScriptDoubleQuote
	KindScriptLineComment
	KindScriptMultiComment
	KindStyleText
	KindStyleSingleQuote
	KindStyleDoubleQuote
	KindStyleComment

	kindCount
)

var kindNames = [kindCount]string{
	KindHTMLText:           "HTML_TEXT",
	KindHTMLComment:        "HTML_COMMENT",
	KindHTMLTag:            "HTML_TAG",
	KindAttrName:           "ATTR_NAME",
	KindAttrUnquoted:       "ATTR_UNQUOTED",
	KindAttrSingleQuote:    "ATTR_SINGLE_QUOTE",
	KindAttrDoubleQuote:    "ATTR_DOUBLE_QUOTE",
	KindScriptText:         "SCRIPT_TEXT",
	KindScriptSingleQuote:  "SCRIPT_SINGLE_QUOTE",
	KindScriptDoubleQuote:  "SCRIPT_DOUBLE_QUOTE",
	KindScriptLineComment:  "SCRIPT_LINE_COMMENT",
	KindScriptMultiComment: "SCRIPT_MULTI_COMMENT",
	KindStyleText:          "STYLE_TEXT",
	KindStyleSingleQuote:   "STYLE_SINGLE_QUOTE",
	KindStyleDoubleQuote:   "STYLE_DOUBLE_QUOTE",
	KindStyleComment:       "STYLE_COMMENT",
}

// String returns the stable context name
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// uriAttributes are attributes whose value the browser may load as a URL,
// so a javascript: URI runs without any escaping.
var uriAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"background": true,
	"data":       true,
	"codebase":   true,
	"cite":       true,
	"poster":     true,
	"lowsrc":     true,
	"dynsrc":     true,
	"longdesc":   true,
	"usemap":     true,
	"ping":       true,
	"manifest":   true,
	"icon":       true,
	"xlink:href": true,
}

// Context is an immutable classification of the region surrounding one
// document position.
type Context struct {
	kind Kind
	tag  string // lower-cased tag name for tag and attribute contexts
	attr string // lower-cased attribute name for attribute contexts
}

// New returns a context of the given kind. tag and attr are only kept for
// the tag and attribute kinds.
func New(kind Kind, tag, attr string) Context {
	c := Context{kind: kind}
	switch kind {
	case KindHTMLText:
		if t := strings.ToLower(tag); rawTextElements[t] {
			c.tag = t
		}
	case KindHTMLTag:
		c.tag = strings.ToLower(tag)
	case KindAttrName, KindAttrUnquoted, KindAttrSingleQuote, KindAttrDoubleQuote:
		c.tag = strings.ToLower(tag)
		c.attr = strings.ToLower(attr)
	}
	return c
}

// Kind returns the variant of the context
func (c Context) Kind() Kind { return c.kind }

// Name returns the stable identifier used by the registry catalogue
func (c Context) Name() string { return c.kind.String() }

// Tag returns the tag the context belongs to, empty outside tags. For
// HTML_TEXT it names the enclosing raw text element such as textarea.
func (c Context) Tag() string { return c.tag }

// Attr returns the attribute the context belongs to, empty outside attributes
func (c Context) Attr() string { return c.attr }

// String implements fmt.Stringer
func (c Context) String() string {
	switch {
	case c.attr != "":
		return c.Name() + "(" + c.tag + "." + c.attr + ")"
	case c.tag != "":
		return c.Name() + "(" + c.tag + ")"
	default:
		return c.Name()
	}
}

// IsExecutable reports whether content placed in this context is run as
// code by the browser without breaking out first.
func (c Context) IsExecutable() bool {
	switch c.kind {
	case KindScriptText, KindScriptSingleQuote, KindScriptDoubleQuote:
		return true
	case KindAttrUnquoted, KindAttrSingleQuote, KindAttrDoubleQuote:
		return isURIAttribute(c.attr) || isEventHandler(c.attr)
	case KindScriptLineComment, KindScriptMultiComment:
		return false
	case KindStyleText, KindStyleSingleQuote, KindStyleDoubleQuote, KindStyleComment:
		return false
	case KindHTMLText, KindHTMLComment, KindHTMLTag, KindAttrName:
		return false
	}
	return false
}

// CanBreak reports whether payload, taken literally, carries the minimal
// token sequence that leaves this context for a less constrained one.
// The check is substring based; the payload is not re-parsed.
func (c Context) CanBreak(payload string) bool {
	switch c.kind {
	case KindHTMLText:
		switch c.tag {
		case "":
			return strings.Contains(payload, "<")
		case "plaintext":
			return false
		}
		return containsEndTag(payload, c.tag)
	case KindHTMLComment:
		return strings.Contains(payload, "-->") || strings.Contains(payload, "--!>")
	case KindHTMLTag:
		return strings.Contains(payload, ">")
	case KindAttrName:
		return strings.ContainsAny(payload, " \t\n\f\r/>")
	case KindAttrUnquoted:
		return strings.ContainsAny(payload, " \t\n\f\r>")
	case KindAttrSingleQuote:
		return strings.Contains(payload, "'")
	case KindAttrDoubleQuote:
		return strings.Contains(payload, `"`)
	case KindScriptText:
		return containsEndTag(payload, "script")
	case KindScriptSingleQuote:
		return containsUnescaped(payload, '\'') || containsEndTag(payload, "script")
	case KindScriptDoubleQuote:
		return containsUnescaped(payload, '"') || containsEndTag(payload, "script")
	case KindScriptLineComment:
		return strings.ContainsAny(payload, "\n\r\u2028\u2029") || containsEndTag(payload, "script")
	case KindScriptMultiComment:
		return strings.Contains(payload, "*/") || containsEndTag(payload, "script")
	case KindStyleText:
		return containsEndTag(payload, "style")
	case KindStyleSingleQuote:
		return containsUnescaped(payload, '\'') || containsEndTag(payload, "style")
	case KindStyleDoubleQuote:
		return containsUnescaped(payload, '"') || containsEndTag(payload, "style")
	case KindStyleComment:
		return strings.Contains(payload, "*/") || containsEndTag(payload, "style")
	}
	return false
}

// InScript reports whether the context lies inside a <script> block
func (c Context) InScript() bool {
	switch c.kind {
	case KindScriptText, KindScriptSingleQuote, KindScriptDoubleQuote, KindScriptLineComment, KindScriptMultiComment:
		return true
	}
	return false
}

// InStyle reports whether the context lies inside a <style> block
func (c Context) InStyle() bool {
	switch c.kind {
	case KindStyleText, KindStyleSingleQuote, KindStyleDoubleQuote, KindStyleComment:
		return true
	}
	return false
}

// InAttribute reports whether the context is an attribute name or value
func (c Context) InAttribute() bool {
	switch c.kind {
	case KindAttrName, KindAttrUnquoted, KindAttrSingleQuote, KindAttrDoubleQuote:
		return true
	}
	return false
}

func isURIAttribute(attr string) bool {
	return uriAttributes[attr]
}

// event handler attributes hold script source
func isEventHandler(attr string) bool {
	return len(attr) > 2 && strings.HasPrefix(attr, "on")
}

// containsEndTag matches "</name" case-insensitively
// rawTextElements hold text that only their own end tag can close. Markup
// inside them is never parsed. plaintext is never closed at all.
var rawTextElements = map[string]bool{
	"textarea":  true,
	"title":     true,
	"xmp":       true,
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
}

func containsEndTag(payload, name string) bool {
	return strings.Contains(strings.ToLower(payload), "</"+name)
}

// containsUnescaped reports a quote not preceded by an odd run of backslashes
func containsUnescaped(payload string, quote byte) bool {
	backslashes := 0
	for i := 0; i < len(payload); i++ {
		switch payload[i] {
		case '\\':
			backslashes++
			continue
		case quote:
			if backslashes%2 == 0 {
				return true
			}
		}
		backslashes = 0
	}
	return false
}
