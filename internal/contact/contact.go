// Package contact classifies a contact-info panel snapshot and pulls the
// phone number out of it.
package contact

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultOfficialSentinel is stored instead of a phone for platform-official accounts.
const DefaultOfficialSentinel = "Официальный аккаунт"

// Selectors are CSS selectors evaluated against the panel snapshot.
type Selectors struct {
	// Official matches the marker shown for platform-official accounts.
	Official string
	// Anchor is the panel element phone candidates must follow in document order.
	// The last match is used.
	Anchor string
	// PhonePrefix is the leading text of a phone-shaped span.
	PhonePrefix string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Official:    "#main span[data-icon*='wa-chat-psa']",
		Anchor:      "div.copyable-area",
		PhonePrefix: "+",
	}
}

type Kind int

const (
	Unknown Kind = iota
	Phone
	Official
)

func (k Kind) String() string {
	switch k {
	case Phone:
		return "phone"
	case Official:
		return "official"
	default:
		return "unknown"
	}
}

type Extractor struct {
	sel      Selectors
	sentinel string
}

func NewExtractor(sel Selectors, officialSentinel string) *Extractor {
	def := DefaultSelectors()
	if sel.Official == "" {
		sel.Official = def.Official
	}
	if sel.Anchor == "" {
		sel.Anchor = def.Anchor
	}
	if sel.PhonePrefix == "" {
		sel.PhonePrefix = def.PhonePrefix
	}
	if officialSentinel == "" {
		officialSentinel = DefaultOfficialSentinel
	}
	return &Extractor{sel: sel, sentinel: officialSentinel}
}

// Extract returns the value to store in the phone column: the official
// sentinel, the phone text verbatim, or "" when nothing usable is shown.
func (e *Extractor) Extract(panelHTML string) string {
	v, _ := e.Classify(panelHTML)
	return v
}

// Classify is Extract plus the classification it was based on.
func (e *Extractor) Classify(panelHTML string) (string, Kind) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(panelHTML))
	if err != nil {
		return "", Unknown
	}
	if doc.Find(e.sel.Official).Length() > 0 {
		return e.sentinel, Official
	}
	anchor := doc.Find(e.sel.Anchor).Last()
	if anchor.Length() == 0 {
		return "", Unknown
	}
	if phone, ok := e.followingPhone(anchor); ok {
		return phone, Phone
	}
	return "", Unknown
}

// followingPhone walks the nodes after anchor in document order (the XPath
// following axis) and returns the full text of the first span whose own text
// starts with the phone prefix.
func (e *Extractor) followingPhone(anchor *goquery.Selection) (string, bool) {
	for cur := anchor; cur.Length() > 0 && !cur.Is("html"); cur = cur.Parent() {
		var phone string
		found := false
		cur.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			phone, found = e.firstPhone(sib)
			return !found
		})
		if found {
			return phone, true
		}
	}
	return "", false
}

func (e *Extractor) firstPhone(s *goquery.Selection) (string, bool) {
	var phone string
	found := false
	candidates := s.Find("span")
	if s.Is("span") {
		candidates = s.AddSelection(candidates)
	}
	candidates.EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if strings.HasPrefix(ownText(span), e.sel.PhonePrefix) {
			phone, found = strings.TrimSpace(span.Text()), true
			return false
		}
		return true
	})
	return phone, found
}

// ownText is the element's direct text, without descendant elements.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
