package fetcher

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoResultCount is returned when the result-count markup holds no number.
var ErrNoResultCount = errors.New("no result count found")

var countPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+`)

// PageURL returns the search URL of a zero-based page index.
func PageURL(baseURL string, page int) string {
	return baseURL + strconv.Itoa(page)
}

// ParseResultCount reads the total number of results from the markup of the
// result-count element, e.g. "Results 1 - 100 of 304,857". The largest number
// in the text is the total.
func ParseResultCount(markup string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 0, fmt.Errorf("parse result count markup: %w", err)
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")

	best := -1
	for _, match := range countPattern.FindAllString(text, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w in %q", ErrNoResultCount, text)
	}
	return best, nil
}

// PagesFor returns the number of pages needed to show count results.
func PagesFor(count, perPage int) int {
	if count <= 0 || perPage <= 0 {
		return 0
	}
	return (count + perPage - 1) / perPage
}
