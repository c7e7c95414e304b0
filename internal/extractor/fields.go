package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/JakeFAU/midcolumbia-catalog/internal/catalog"
)

// ErrNotElement is returned when a candidate cannot be resolved to an element node.
var ErrNotElement = errors.New("candidate is not an element")

// XPath rules, evaluated relative to one content module.
var (
	titleGroupXPath    = xpath.MustCompile(`.//div[@class='nsm-brief-primary-title-group']`)
	titleSpanXPath     = xpath.MustCompile(`.//span`)
	titleLinkXPath     = xpath.MustCompile(`.//a[@href]`)
	pubYearXPath       = xpath.MustCompile(`.//div[contains(@class, 'c-title-detail__pub-year')]`)
	thumbnailXPath     = xpath.MustCompile(`.//img[contains(@class, 'c-title-detail__thumbnail')]`)
	standardGroupXPath = xpath.MustCompile(`.//div[contains(@class, 'nsm-brief-standard-group')]`)
	groupLabelXPath    = xpath.MustCompile(`.//span[contains(@class, 'nsm-brief-label')]`)
	groupItemXPath     = xpath.MustCompile(`.//span[contains(@class, 'nsm-short-item')]`)
	authorGroupXPath   = xpath.MustCompile(`.//div[contains(@class, 'nsm-brief-primary-author-group')]`)
	thirdPartyXPath    = xpath.MustCompile(`.//div[contains(@class, 'c-title-detail__3rd-party-item--novelist-lexile')]`)
	lexileLinkXPath    = xpath.MustCompile(`.//a[contains(@href, 'LexileInfo')]`)
	goodreadsLinkXPath = xpath.MustCompile(`.//a[contains(@href, 'goodreads.com')]`)
	ratingImageXPath   = xpath.MustCompile(`.//img[contains(@src, 'rating') and contains(@src, '.gif')]`)
)

var (
	catalogNumberPattern = regexp.MustCompile(`cn=(\d+)`)
	isbnPattern          = regexp.MustCompile(`isbn=(\d+)`)
	oclcPattern          = regexp.MustCompile(`oclc=(\d+)`)
	ratingPattern        = regexp.MustCompile(`rating(\d+)\.gif`)
)

const maxRating = 10

// Labels that describe availability rather than the title itself.
var excludedLabels = map[string]struct{}{
	"current holds": {},
	"available":     {},
}

// lookup is the outcome of one field rule. A failed lookup resolves to the
// field's fallback so it never affects any other field.
type lookup struct {
	value any
	err   error
}

func found(v any) lookup { return lookup{value: v} }

func failed(err error) lookup { return lookup{err: err} }

func (l lookup) or(fallback any) any {
	if l.err != nil {
		return fallback
	}
	return l.value
}

// ExtractContentModule builds a record from one content-module element. Only a
// candidate that is not an element fails the whole record.
func ExtractContentModule(n *html.Node) (*catalog.Record, error) {
	if n == nil || n.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	rec := catalog.NewRecord()

	titleGroup := htmlquery.QuerySelector(n, titleGroupXPath)
	if title, ok := extractTitle(titleGroup); ok {
		rec.Set(catalog.FieldTitle, title)
	}
	rec.Set(catalog.FieldCatalogNumber, extractCatalogNumber(titleGroup).or(nil))
	rec.Set(catalog.FieldPublishYear, extractPublishYear(n).or(nil))

	cover := extractCoverURL(n)
	rec.Set(catalog.FieldCoverURL, cover.or(""))

	for _, field := range extractLabelFields(n) {
		rec.Set(field.key, field.value)
	}

	rec.Set(catalog.FieldAuthor, extractAuthor(n).or(""))
	coverURL, _ := cover.value.(string)
	rec.Set(catalog.FieldISBN, matchCover(coverURL, isbnPattern).or(""))
	rec.Set(catalog.FieldOCLC, matchCover(coverURL, oclcPattern).or(""))

	thirdParty := htmlquery.QuerySelector(n, thirdPartyXPath)
	rec.Set(catalog.FieldLexile, extractLexile(thirdParty).or(""))
	rec.Set(catalog.FieldStarAverage, extractStarAverage(n).or(nil))
	if count, ok := extractReviewerCount(thirdParty); ok {
		rec.Set(catalog.FieldReviewerCount, count)
	}
	return rec, nil
}

func extractTitle(group *html.Node) (string, bool) {
	if group == nil {
		return "", false
	}
	var parts []string
	for _, span := range htmlquery.QuerySelectorAll(group, titleSpanXPath) {
		parts = append(parts, directText(span)...)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.TrimSpace(strings.Join(parts, " ")), true
}

func extractCatalogNumber(group *html.Node) lookup {
	if group == nil {
		return found(nil)
	}
	link := htmlquery.QuerySelector(group, titleLinkXPath)
	if link == nil {
		return found(nil)
	}
	cn := submatch(catalogNumberPattern, htmlquery.SelectAttr(link, "href"))
	if cn == nil {
		return found(nil)
	}
	return found(*cn)
}

func extractPublishYear(n *html.Node) lookup {
	el := htmlquery.QuerySelector(n, pubYearXPath)
	if el == nil {
		return found(nil)
	}
	text := strings.TrimSpace(leadingText(el))
	if text == "" {
		return found(nil)
	}
	return found(text)
}

func extractCoverURL(n *html.Node) lookup {
	img := htmlquery.QuerySelector(n, thumbnailXPath)
	if img == nil || !htmlquery.ExistsAttr(img, "src") {
		return found(nil)
	}
	return found(htmlquery.SelectAttr(img, "src"))
}

type labelField struct {
	key   string
	value string
}

func extractLabelFields(n *html.Node) []labelField {
	var fields []labelField
	for _, group := range htmlquery.QuerySelectorAll(n, standardGroupXPath) {
		var labels, items []string
		for _, span := range htmlquery.QuerySelectorAll(group, groupLabelXPath) {
			labels = append(labels, directText(span)...)
		}
		for _, span := range htmlquery.QuerySelectorAll(group, groupItemXPath) {
			for _, text := range directText(span) {
				if text = strings.TrimSpace(text); text != "" {
					items = append(items, text)
				}
			}
		}
		if len(labels) == 0 || len(items) == 0 {
			continue
		}
		key, _, _ := strings.Cut(strings.ToLower(labels[0]), ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, skip := excludedLabels[key]; skip {
			continue
		}
		fields = append(fields, labelField{key: key, value: strings.Join(items, "; ")})
	}
	return fields
}

func extractAuthor(n *html.Node) lookup {
	group := htmlquery.QuerySelector(n, authorGroupXPath)
	if group == nil {
		return found("")
	}
	text := strings.TrimSpace(htmlquery.InnerText(group))
	if strings.HasPrefix(strings.ToLower(text), "by ") {
		text = strings.TrimSpace(text[3:])
	}
	return found(text)
}

func matchCover(coverURL string, pattern *regexp.Regexp) lookup {
	if coverURL == "" {
		return found("")
	}
	if id := submatch(pattern, coverURL); id != nil {
		return found(*id)
	}
	return found("")
}

func extractLexile(block *html.Node) lookup {
	if block == nil {
		return found(nil)
	}
	text, ok := firstText(htmlquery.QuerySelectorAll(block, lexileLinkXPath))
	if !ok {
		return found(nil)
	}
	return found(text)
}

func extractStarAverage(n *html.Node) lookup {
	img := htmlquery.QuerySelector(n, ratingImageXPath)
	if img == nil {
		return found(nil)
	}
	digits := submatch(ratingPattern, htmlquery.SelectAttr(img, "src"))
	if digits == nil {
		return found(nil)
	}
	rating, err := strconv.Atoi(*digits)
	if err != nil {
		return failed(fmt.Errorf("parse rating %q: %w", *digits, err))
	}
	if rating > maxRating {
		return failed(fmt.Errorf("rating %d out of range", rating))
	}
	return found(float64(rating) / 2.0)
}

func extractReviewerCount(block *html.Node) (int, bool) {
	if block == nil {
		return 0, false
	}
	text, ok := firstText(htmlquery.QuerySelectorAll(block, goodreadsLinkXPath))
	if !ok {
		return 0, false
	}
	text = strings.TrimSpace(text)
	if !isDigits(text) {
		return 0, false
	}
	count, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return count, true
}

// submatch returns the first capture group of pattern in s, or nil.
func submatch(pattern *regexp.Regexp, s string) *string {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return &m[1]
}

// directText returns the text nodes that are immediate children of n.
func directText(n *html.Node) []string {
	var out []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			out = append(out, c.Data)
		}
	}
	return out
}

// leadingText returns the text that precedes the first child element of n.
func leadingText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil && c.Type == html.TextNode; c = c.NextSibling {
		b.WriteString(c.Data)
	}
	return b.String()
}

func firstText(nodes []*html.Node) (string, bool) {
	for _, n := range nodes {
		if texts := directText(n); len(texts) > 0 {
			return texts[0], true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
