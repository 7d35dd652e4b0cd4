package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cybertron10/contextscan/internal/htmlctx"
	"github.com/cybertron10/contextscan/internal/scanner"
)

// snippetRadius is how many bytes of document are shown around a match
const snippetRadius = 24

// WriteText writes vulnerabilities in the markdown-like report format.
// Nothing is written when the list is empty.
func WriteText(w io.Writer, vulns []scanner.Vulnerability) error {
	if len(vulns) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("# XSS Vulnerabilities Found\n\n")
	for i, v := range vulns {
		fmt.Fprintf(&b, "## Vulnerability %d\n", i+1)
		fmt.Fprintf(&b, "URL: %s\n", v.ExploitURL)
		fmt.Fprintf(&b, "Parameter: %s\n", v.Parameter)
		fmt.Fprintf(&b, "Method: %s\n", v.Method)
		fmt.Fprintf(&b, "Context: %s\n", v.Context)
		if len(v.Contexts) > 1 {
			fmt.Fprintf(&b, "Breakout Ladder: %s\n", strings.Join(v.Contexts, " > "))
		}
		fmt.Fprintf(&b, "Confidence: %s\n", v.Confidence)
		fmt.Fprintf(&b, "Working Payloads: %s\n", strings.Join(v.WorkingPayloads, ", "))
		fmt.Fprintf(&b, "Directly Exploitable: %t\n", v.IsDirectlyExploitable)
		fmt.Fprintf(&b, "Manual Intervention Required: %t\n", v.ManualInterventionRequired)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes the full scan result as indented JSON
func WriteJSON(w io.Writer, result *scanner.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// WriteOccurrences prints one row per occurrence: byte offset, line:column,
// breakout ladder and a snippet of the surrounding document cut to fit
// width columns.
func WriteOccurrences(w io.Writer, doc string, occs []htmlctx.Occurrence, width int) error {
	if len(occs) == 0 {
		_, err := io.WriteString(w, "no occurrences\n")
		return err
	}

	rows := make([][3]string, 0, len(occs))
	cols := [3]int{len("OFFSET"), len("POS"), len("CONTEXT")}
	for _, o := range occs {
		ladder := make([]string, 0, len(o.Contexts))
		for _, c := range o.Contexts {
			ladder = append(ladder, c.String())
		}
		row := [3]string{
			fmt.Sprint(o.Start),
			fmt.Sprintf("%d:%d", o.Line, o.Column),
			strings.Join(ladder, " > "),
		}
		for i, cell := range row {
			if n := VisibleWidth(cell); n > cols[i] {
				cols[i] = n
			}
		}
		rows = append(rows, row)
	}

	room := width - cols[0] - cols[1] - cols[2] - 6
	if room < 16 {
		room = 16
	}
	line := func(a, b, c, d string) string {
		return PadRight(a, cols[0]) + "  " + PadRight(b, cols[1]) + "  " + PadRight(c, cols[2]) + "  " + d
	}

	var out strings.Builder
	out.WriteString(strings.TrimRight(line("OFFSET", "POS", "CONTEXT", "SNIPPET"), " ") + "\n")
	for i, row := range rows {
		snip := TruncateByWidth(snippet(doc, occs[i].Start, occs[i].End), room, "…")
		out.WriteString(line(row[0], row[1], row[2], snip) + "\n")
	}
	_, err := io.WriteString(w, out.String())
	return err
}

// snippet returns the document around [start, end) on a single line
func snippet(doc string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(doc[from]) {
		from--
	}
	to := end + snippetRadius
	if to > len(doc) {
		to = len(doc)
	}
	for to < len(doc) && !utf8.RuneStart(doc[to]) {
		to++
	}
	s := doc[from:to]
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, s)
}
