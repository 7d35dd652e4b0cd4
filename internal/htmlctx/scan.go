package htmlctx

import (
	"errors"
	"runtime"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrEmptyNeedle is returned when the searched marker is empty
	ErrEmptyNeedle = errors.New("htmlctx: empty needle")
	// ErrOffsetRange is returned for a position outside the document
	ErrOffsetRange = errors.New("htmlctx: offset out of range")
)

// Occurrence is one place the needle appears in the document
type Occurrence struct {
	Start  int // byte offset of the first needle byte
	End    int // byte offset just past the needle
	Line   int // 1-based
	Column int // 1-based, in bytes

	// Contexts is the breakout ladder: the innermost context first, each
	// next entry the one reached by breaking out of the previous.
	Contexts []Context
}

// Primary returns the innermost context of the occurrence
func (o Occurrence) Primary() Context {
	if len(o.Contexts) == 0 {
		return New(KindHTMLText, "", "")
	}
	return o.Contexts[0]
}

// Scan finds every occurrence of needle in document, overlapping ones
// included, and classifies each in a single pass. Results are ordered by
// offset. A document without the needle yields no occurrences.
func Scan(document, needle string) ([]Occurrence, error) {
	if needle == "" {
		return nil, ErrEmptyNeedle
	}
	offsets := findAll(document, needle)
	if len(offsets) == 0 {
		return []Occurrence{}, nil
	}

	ladders := newLexer(document).classify(offsets)
	occs := make([]Occurrence, len(offsets))
	line, lineStart, seen := 1, 0, 0
	for i, off := range offsets {
		for ; seen < off; seen++ {
			if document[seen] == '\n' {
				line++
				lineStart = seen + 1
			}
		}
		occs[i] = Occurrence{
			Start:    off,
			End:      off + len(needle),
			Line:     line,
			Column:   off - lineStart + 1,
			Contexts: ladders[i],
		}
	}
	return occs, nil
}

// ContextsAt returns the breakout ladder at a byte offset. offset may equal
// len(document) to inspect the state left open at the end.
func ContextsAt(document string, offset int) ([]Context, error) {
	if offset < 0 || offset > len(document) {
		return nil, ErrOffsetRange
	}
	return newLexer(document).classify([]int{offset})[0], nil
}

// ScanAll scans one document for several needles concurrently. Duplicate
// needles are scanned once.
func ScanAll(document string, needles []string) (map[string][]Occurrence, error) {
	unique := make([]string, 0, len(needles))
	seen := make(map[string]bool, len(needles))
	for _, n := range needles {
		if n == "" {
			return nil, ErrEmptyNeedle
		}
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(unique) {
		workers = len(unique)
	}

	type result struct {
		needle string
		occs   []Occurrence
	}
	jobs := make(chan string)
	results := make(chan result, len(unique))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				// needle is non-empty so Scan cannot fail here
				occs, _ := Scan(document, n)
				results <- result{needle: n, occs: occs}
			}
		}()
	}
	for _, n := range unique {
		jobs <- n
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[string][]Occurrence, len(unique))
	for r := range results {
		out[r.needle] = r.occs
	}
	return out, nil
}

// Kinds returns the distinct primary context kinds of occs, sorted
func Kinds(occs []Occurrence) []Kind {
	set := map[Kind]bool{}
	for _, o := range occs {
		set[o.Primary().Kind()] = true
	}
	out := make([]Kind, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func findAll(document, needle string) []int {
	var offsets []int
	for i := 0; i <= len(document)-len(needle); {
		j := strings.Index(document[i:], needle)
		if j < 0 {
			break
		}
		offsets = append(offsets, i+j)
		i += j + 1
	}
	return offsets
}
