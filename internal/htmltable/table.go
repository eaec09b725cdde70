// Package htmltable turns a publisher's HTML listing table into raw
// extractions: the header row names the fields and the first link of a row is
// its permalink.
package htmltable

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// Parse extracts rows from the first table in r that has a header row. base
// resolves relative links and may be nil.
func Parse(r io.Reader, base *url.URL, sourceID int) ([]record.RawExtraction, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	for _, table := range findAll(doc, atom.Table) {
		rows := findRows(table)
		if len(rows) == 0 {
			continue
		}
		header, body := headerOf(rows)
		if len(header) == 0 {
			continue
		}
		return extract(header, body, base, sourceID), nil
	}
	return nil, fmt.Errorf("no table with a header row")
}

func extract(header []string, rows []*html.Node, base *url.URL, sourceID int) []record.RawExtraction {
	var out []record.RawExtraction
	for _, tr := range rows {
		cells := cellsOf(tr)
		fields := make(map[string]any, len(header))
		for i, cell := range cells {
			if i >= len(header) || header[i] == "" {
				break
			}
			if v := text(cell); v != "" {
				fields[header[i]] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, record.RawExtraction{
			SourceID:  sourceID,
			OriginURL: firstLink(tr, base),
			Fields:    fields,
		})
	}
	return out
}

// headerOf returns the column names and the data rows. The header is the first
// row made only of th cells, or failing that the first row of a thead.
func headerOf(rows []*html.Node) ([]string, []*html.Node) {
	for i, tr := range rows {
		cells := cellsOf(tr)
		if len(cells) == 0 {
			continue
		}
		allTH := true
		for _, c := range cells {
			if c.DataAtom != atom.Th {
				allTH = false
				break
			}
		}
		if allTH || (tr.Parent != nil && tr.Parent.DataAtom == atom.Thead) {
			names := make([]string, len(cells))
			for j, c := range cells {
				names[j] = text(c)
			}
			return names, rows[i+1:]
		}
		return nil, nil
	}
	return nil, nil
}

// findRows returns the rows of table, skipping nested tables.
func findRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.DataAtom {
			case atom.Tr:
				rows = append(rows, c)
			case atom.Table:
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func cellsOf(tr *html.Node) []*html.Node {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, c)
		}
	}
	return cells
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// text returns the visible text of n with whitespace collapsed; <br> counts as
// a space.
func text(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			buf.WriteByte(' ')
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// firstLink returns the first http(s) link in n, resolved against base.
func firstLink(n *html.Node, base *url.URL) string {
	for _, a := range findAll(n, atom.A) {
		for _, attr := range a.Attr {
			if attr.Key != "href" {
				continue
			}
			u, err := url.Parse(strings.TrimSpace(attr.Val))
			if err != nil {
				continue
			}
			if base != nil {
				u = base.ResolveReference(u)
			}
			if u.Scheme == "http" || u.Scheme == "https" {
				return u.String()
			}
		}
	}
	return ""
}
