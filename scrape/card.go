package scrape

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/metawatch/loadout"
)

// Selectors locate the parts of the loadout page. They are a structural
// contract with the external site: any markup change there breaks extraction
// until these are updated.
type Selectors struct {
	Container string `yaml:"container"`
	MenuItem  string `yaml:"menu_item"`
	Card      string `yaml:"card"`
	Name      string `yaml:"name"`
	Detail    string `yaml:"detail"`
	Image     string `yaml:"image"`
}

// DefaultSelectors match the wzstats.gg meta pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Container: "app-weapon-loadouts",
		MenuItem:  "a.menu-item",
		Card:      "div.loadout-container",
		Name:      "h3.loadout-content-name",
		Detail:    "div.loadout-detail",
		Image:     "div.weapon-image-rank-container img",
	}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.Container == "" {
		s.Container = d.Container
	}
	if s.MenuItem == "" {
		s.MenuItem = d.MenuItem
	}
	if s.Card == "" {
		s.Card = d.Card
	}
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.Detail == "" {
		s.Detail = d.Detail
	}
	if s.Image == "" {
		s.Image = d.Image
	}
	return s
}

// Card reads parts of one loadout card. Missing elements read as "".
type Card interface {
	Text(selector string) string
	Attr(selector, name string) string
	HTML() string
}

// Scraped is the raw content read from one card.
type Scraped struct {
	loadout.Combination
	PageURL     string
	WeaponName  string
	DetailLines []string
	ImageSrc    string // absolute; "" when the card has no image
	CardHTML    string
}

// ReadCard reads name, detail lines and image reference from c. Each
// missing element degrades to an empty value.
func ReadCard(c Card, sel Selectors, pageURL string) Scraped {
	return Scraped{
		PageURL:     pageURL,
		WeaponName:  strings.TrimSpace(c.Text(sel.Name)),
		DetailLines: loadout.SplitLines(c.Text(sel.Detail)),
		ImageSrc:    resolveURL(pageURL, strings.TrimSpace(c.Attr(sel.Image, "src"))),
		CardHTML:    c.HTML(),
	}
}

// Record normalises the scraped lines into a loadout.Record. ImageURL is
// left empty: rehosting is the caller's job.
func (s Scraped) Record() loadout.Record {
	attachments, updated := loadout.Normalize(s.DetailLines, s.DetailLines)
	return loadout.Record{
		Combination: s.Combination,
		WeaponName:  s.WeaponName,
		Attachments: attachments,
		LastUpdated: updated,
	}
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	return b.ResolveReference(r).String()
}

// ---------------------------------------------------------------------------
// Live card (Rod element)
// ---------------------------------------------------------------------------

type rodCard struct {
	el *rod.Element
}

func (c rodCard) find(selector string) *rod.Element {
	has, el, err := c.el.Has(selector)
	if err != nil || !has {
		return nil
	}
	return el
}

func (c rodCard) Text(selector string) string {
	el := c.find(selector)
	if el == nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}

func (c rodCard) Attr(selector, name string) string {
	el := c.find(selector)
	if el == nil {
		return ""
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (c rodCard) HTML() string {
	h, err := c.el.HTML()
	if err != nil {
		return ""
	}
	return h
}

// ---------------------------------------------------------------------------
// Static card (saved HTML)
// ---------------------------------------------------------------------------

type htmlCard struct {
	sel *goquery.Selection
}

// ParseCardHTML builds a Card from saved HTML. When the document contains
// an element matching cardSelector, reads are scoped to the first one;
// otherwise the whole document is the card.
func ParseCardHTML(raw, cardSelector string) (Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	sel := doc.Selection
	if cardSelector != "" {
		if c := doc.Find(cardSelector).First(); c.Length() > 0 {
			sel = c
		}
	}
	return htmlCard{sel: sel}, nil
}

func (c htmlCard) Text(selector string) string {
	s := c.sel.Find(selector).First()
	if s.Length() == 0 {
		return ""
	}
	return innerText(s)
}

func (c htmlCard) Attr(selector, name string) string {
	v, _ := c.sel.Find(selector).First().Attr(name)
	return v
}

func (c htmlCard) HTML() string {
	h, err := goquery.OuterHtml(c.sel)
	if err != nil {
		return ""
	}
	return h
}

// blockElements break lines in innerText.
var blockElements = map[atom.Atom]bool{
	atom.Div: true, atom.P: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Table: true, atom.Tr: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
}

var spaceRe = regexp.MustCompile(`\s+`)

// innerText approximates the browser's innerText: text nodes with collapsed
// whitespace, line breaks around block elements and at <br>.
func innerText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(spaceRe.ReplaceAllString(n.Data, " "))
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Br:
				sb.WriteByte('\n')
				return
			case atom.Script, atom.Style, atom.Template:
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			sb.WriteByte('\n')
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}

	var lines []string
	for _, l := range strings.Split(sb.String(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
