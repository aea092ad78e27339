package extractor

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var (
	ErrAnchorNotFound  = errors.New("anchor not found")
	ErrValueNotFound   = errors.New("value node not found")
	ErrSectionNotFound = errors.New("section not found")
	ErrColumnNotFound  = errors.New("table column not found")
	ErrTabNotFound     = errors.New("tab pane not found")
)

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace runs and trims.
func Normalize(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// nodeText is the normalized text of s with element boundaries read as
// spaces, so sibling nodes never run together.
func nodeText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return Normalize(b.String())
}

// ParseDocument parses an HTML snapshot, converting it to UTF-8 when the
// document declares another charset.
func ParseDocument(r io.Reader, contentType string) (*goquery.Document, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Match selects how anchor text is compared.
type Match int

const (
	MatchExact Match = iota
	MatchContains
	MatchPrefix
)

// Anchor identifies a labelled node by its normalized text.
type Anchor struct {
	Selector string
	Text     string
	Match    Match
}

// Label is the common anchor: a <label> with exactly this text.
func Label(text string) Anchor {
	return Anchor{Selector: "label", Text: text, Match: MatchExact}
}

func (a Anchor) matches(s *goquery.Selection) bool {
	got := strings.ToLower(nodeText(s))
	want := strings.ToLower(Normalize(a.Text))
	got = strings.TrimSuffix(strings.TrimSpace(strings.TrimSuffix(got, ":")), "*")
	got = strings.TrimSpace(got)
	switch a.Match {
	case MatchContains:
		return strings.Contains(got, want)
	case MatchPrefix:
		return strings.HasPrefix(got, want)
	default:
		return got == want
	}
}

// in reports whether s is, or contains, a node this anchor matches.
func (a Anchor) in(s *goquery.Selection) bool {
	if s.Is(a.Selector) && a.matches(s) {
		return true
	}
	return s.Find(a.Selector).FilterFunction(func(_ int, c *goquery.Selection) bool {
		return a.matches(c)
	}).Length() > 0
}

// Resolver walks from an anchor node to the node holding its value.
type Resolver func(anchor *goquery.Selection) *goquery.Selection

// NextSibling resolves to the first following sibling matching sel.
func NextSibling(sel string) Resolver {
	return func(anchor *goquery.Selection) *goquery.Selection {
		if sel == "" {
			return anchor.Next()
		}
		return anchor.NextAllFiltered(sel).First()
	}
}

// ClosestNext climbs to the nearest ancestor matching ancestor, steps to its
// next sibling and, when value is set, descends to the first match of value.
func ClosestNext(ancestor, value string) Resolver {
	return func(anchor *goquery.Selection) *goquery.Selection {
		next := anchor.Closest(ancestor).Next()
		if value == "" {
			return next
		}
		return next.Find(value).First()
	}
}

// AncestorNext climbs levels parents, steps to the first following sibling
// matching next and descends to the first match of value.
func AncestorNext(levels int, next, value string) Resolver {
	return func(anchor *goquery.Selection) *goquery.Selection {
		up := anchor
		for i := 0; i < levels; i++ {
			up = up.Parent()
		}
		return up.NextAllFiltered(next).First().Find(value).First()
	}
}

// Closest climbs to the nearest ancestor matching ancestor and descends to value.
func Closest(ancestor, value string) Resolver {
	return func(anchor *goquery.Selection) *goquery.Selection {
		return anchor.Closest(ancestor).Find(value).First()
	}
}

// Locator runs anchor lookups inside one scope of a parsed page.
type Locator struct {
	scope *goquery.Selection
}

// NewLocator scopes a locator to the whole document.
func NewLocator(doc *goquery.Document) *Locator {
	return &Locator{scope: doc.Selection}
}

// Scope returns the selection the locator searches.
func (l *Locator) Scope() *goquery.Selection { return l.scope }

// Find returns the first innermost node matching the anchor: a wrapper whose
// text is only the anchor's own text loses to the node inside it.
func (l *Locator) Find(a Anchor) (*goquery.Selection, error) {
	match := func(_ int, s *goquery.Selection) bool { return a.matches(s) }
	node := l.scope.Find(a.Selector).FilterFunction(match).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(a.Selector).FilterFunction(match).Length() == 0
	}).First()
	if node.Length() == 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrAnchorNotFound, a.Selector, a.Text)
	}
	return node, nil
}

// Value returns the normalized value the resolver reaches from the anchor.
// A resolved node holding the anchor itself or any of others is a neighbouring
// field, not this one's value, and is rejected.
func (l *Locator) Value(a Anchor, resolve Resolver, others ...Anchor) (string, error) {
	node, err := l.Find(a)
	if err != nil {
		return "", err
	}
	target := resolve(node)
	if target == nil || target.Length() == 0 {
		return "", fmt.Errorf("%w: %q", ErrValueNotFound, a.Text)
	}
	for _, o := range append([]Anchor{a}, others...) {
		if o.in(target) {
			return "", fmt.Errorf("%w: %q resolves to the label %q", ErrValueNotFound, a.Text, o.Text)
		}
	}
	v := nodeValue(target)
	if v == "" {
		return "", fmt.Errorf("%w: %q is empty", ErrValueNotFound, a.Text)
	}
	return v, nil
}

// nodeValue reads form controls by their value and everything else by text.
func nodeValue(s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "input", "textarea":
		if v, ok := s.Attr("value"); ok {
			return Normalize(v)
		}
	case "select":
		return nodeText(s.Find("option[selected]").First())
	}
	return nodeText(s)
}

// Section returns a locator scoped to the form card whose header contains title.
func (l *Locator) Section(title string) (*Locator, error) {
	want := strings.ToLower(Normalize(title))
	card := l.scope.Find("div.form-card").FilterFunction(func(_ int, s *goquery.Selection) bool {
		header := strings.ToLower(nodeText(s.ChildrenFiltered("div.card-header")))
		return strings.Contains(header, want)
	}).First()
	if card.Length() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSectionNotFound, title)
	}
	return &Locator{scope: card}, nil
}

// Tab returns a locator scoped to the tab pane whose nav link text contains title.
// Panes are read straight from the snapshot, hidden or not.
func (l *Locator) Tab(title string) (*Locator, error) {
	want := strings.ToLower(Normalize(title))
	link := l.scope.Find("[data-bs-toggle='tab'], [data-toggle='tab']").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(nodeText(s)), want)
	}).First()
	if link.Length() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTabNotFound, title)
	}

	target, ok := link.Attr("data-bs-target")
	if !ok {
		target, _ = link.Attr("href")
	}
	id := strings.TrimPrefix(target, "#")
	if id == "" {
		return nil, fmt.Errorf("%w: %q has no target", ErrTabNotFound, title)
	}
	pane := l.scope.Find("div.tab-pane").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
	if pane.Length() == 0 {
		return nil, fmt.Errorf("%w: %q targets missing #%s", ErrTabNotFound, title, id)
	}
	return &Locator{scope: pane}, nil
}

// Table is a parsed HTML table: normalized headers and body rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the index of the header equal to name, else of the first
// header containing it, or -1.
func (t *Table) Column(name string) int {
	want := strings.ToLower(Normalize(name))
	for i, h := range t.Headers {
		if strings.ToLower(h) == want {
			return i
		}
	}
	for i, h := range t.Headers {
		if strings.Contains(strings.ToLower(h), want) {
			return i
		}
	}
	return -1
}

// Values returns the non-empty cells of a column.
func (t *Table) Values(name string) ([]string, error) {
	idx := t.Column(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	var out []string
	for _, row := range t.Rows {
		if idx < len(row) && row[idx] != "" {
			out = append(out, row[idx])
		}
	}
	return out, nil
}

// placeholderRow matches the single-cell rows the site renders for empty tables.
var placeholderRow = regexp.MustCompile(`(?i)^(no (records?|data)( found| available)?\.?|-+)$`)

// Table returns the first table in scope having a header that contains header.
func (l *Locator) Table(header string) (*Table, error) {
	want := strings.ToLower(Normalize(header))
	var found *Table
	l.scope.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		t := parseTable(tbl)
		for _, h := range t.Headers {
			if strings.Contains(strings.ToLower(h), want) {
				found = t
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, header)
	}
	return found, nil
}

// TableColumn returns the non-empty cells under header in the first table that has it.
func (l *Locator) TableColumn(header string) ([]string, error) {
	t, err := l.Table(header)
	if err != nil {
		return nil, err
	}
	return t.Values(header)
}

func parseTable(tbl *goquery.Selection) *Table {
	t := &Table{}
	headerCells := tbl.Find("thead th")
	if headerCells.Length() == 0 {
		headerCells = tbl.Find("tr").First().Find("th")
	}
	headerCells.Each(func(_ int, th *goquery.Selection) {
		t.Headers = append(t.Headers, nodeText(th))
	})

	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}
		row := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, nodeText(td))
		})
		if len(row) == 1 && placeholderRow.MatchString(row[0]) {
			return
		}
		t.Rows = append(t.Rows, row)
	})
	return t
}
