package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parameter is an injection point discovered in a page
type Parameter struct {
	Name   string `json:"name"`
	Type   string `json:"type"`             // query or form
	Method string `json:"method"`           // GET or POST
	Action string `json:"action,omitempty"` // absolute form target, empty for the page itself
}

// ExtractParameters finds parameter names exposed by forms, standalone
// inputs and same-host links. base resolves relative form actions and links
// and may be nil. Results are deduplicated and keep document order.
func ExtractParameters(body []byte, base *url.URL) ([]Parameter, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var params []Parameter
	seen := make(map[string]bool)
	add := func(p Parameter) {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return
		}
		key := p.Type + "\x00" + p.Action + "\x00" + p.Name
		if seen[key] {
			return
		}
		seen[key] = true
		params = append(params, p)
	}

	doc.Find("form").Each(func(i int, form *goquery.Selection) {
		method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "GET")))
		if method != "POST" {
			method = "GET"
		}
		action := ""
		if raw, ok := form.Attr("action"); ok && strings.TrimSpace(raw) != "" {
			if u := resolve(base, raw); u != nil {
				action = u.String()
				for _, name := range queryNames(u.RawQuery) {
					add(Parameter{Name: name, Type: "query", Method: "GET"})
				}
			}
		}
		typ := "query"
		if method == "POST" {
			typ = "form"
		}
		form.Find("input, select, textarea, button").Each(func(i int, s *goquery.Selection) {
			if name, exists := s.Attr("name"); exists {
				add(Parameter{Name: name, Type: typ, Method: method, Action: action})
			}
		})
	})

	// inputs wired up by script rather than a form usually end up in the query
	doc.Find("input, select, textarea").Each(func(i int, s *goquery.Selection) {
		if s.Closest("form").Length() > 0 {
			return
		}
		if name, exists := s.Attr("name"); exists {
			add(Parameter{Name: name, Type: "query", Method: "GET"})
		}
	})

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u := resolve(base, href)
		if u == nil || (base != nil && u.Host != base.Host) {
			return
		}
		for _, name := range queryNames(u.RawQuery) {
			add(Parameter{Name: name, Type: "query", Method: "GET"})
		}
	})

	return params, nil
}

// ScriptBlocks returns the text of every inline <script> element
func ScriptBlocks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var blocks []string
	doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		blocks = append(blocks, s.Text())
	})
	return blocks, nil
}

func resolve(base *url.URL, ref string) *url.URL {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u
}

// queryNames keeps the order the names appear in the raw query
func queryNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name := part
		if i := strings.Index(part, "="); i >= 0 {
			name = part[:i]
		}
		if n, err := url.QueryUnescape(name); err == nil {
			names = append(names, n)
		}
	}
	return names
}
