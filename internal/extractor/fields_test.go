package extractor

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/JakeFAU/midcolumbia-catalog/internal/catalog"
)

const duneModule = `<div class="content-module">
  <div class="nsm-brief-primary-title-group">
    <a href="/search/title.aspx?ctx=1.1033.0.0.6&amp;cn=4412">
      <span class="nsm-e135">Dune</span>
    </a>
  </div>
  <div class="nsm-brief-primary-author-group">by Frank Herbert</div>
  <div class="c-title-detail__pub-year">1965<span>, reprint</span></div>
  <img class="c-title-detail__thumbnail" src="https://covers.example.org/img?isbn=9780441013593&amp;oclc=123456&amp;type=sm">
  <div class="nsm-brief-standard-group">
    <span class="nsm-brief-label">Format:</span>
    <span class="nsm-short-item">Book</span>
  </div>
  <div class="nsm-brief-standard-group">
    <span class="nsm-brief-label">Call Number:</span>
    <span class="nsm-short-item"> SF HER </span>
    <span class="nsm-short-item">Adult</span>
  </div>
  <div class="nsm-brief-standard-group">
    <span class="nsm-brief-label">Current Holds:</span>
    <span class="nsm-short-item">3</span>
  </div>
  <div class="c-title-detail__3rd-party-item--novelist-lexile">
    <a href="https://lexile.example.org/LexileInfo?id=1">800L</a>
    <img src="https://images.example.org/stars/rating8.gif">
    <a href="https://www.goodreads.com/book/isbn/9780441013593">1234</a>
  </div>
</div>`

func parseModule(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	node := htmlquery.QuerySelector(doc, candidateXPath)
	require.NotNil(t, node)
	return node
}

func TestExtractContentModuleFullRecord(t *testing.T) {
	t.Parallel()

	rec, err := ExtractContentModule(parseModule(t, duneModule))
	require.NoError(t, err)

	assert.Equal(t, []string{
		catalog.FieldTitle,
		catalog.FieldCatalogNumber,
		catalog.FieldPublishYear,
		catalog.FieldCoverURL,
		"format",
		"call number",
		catalog.FieldAuthor,
		catalog.FieldISBN,
		catalog.FieldOCLC,
		catalog.FieldLexile,
		catalog.FieldStarAverage,
		catalog.FieldReviewerCount,
	}, rec.Keys())

	want := map[string]any{
		catalog.FieldTitle:         "Dune",
		catalog.FieldCatalogNumber: "4412",
		catalog.FieldPublishYear:   "1965",
		catalog.FieldCoverURL:      "https://covers.example.org/img?isbn=9780441013593&oclc=123456&type=sm",
		"format":                   "Book",
		"call number":              "SF HER; Adult",
		catalog.FieldAuthor:        "Frank Herbert",
		catalog.FieldISBN:          "9780441013593",
		catalog.FieldOCLC:          "123456",
		catalog.FieldLexile:        "800L",
		catalog.FieldStarAverage:   4.0,
		catalog.FieldReviewerCount: 1234,
	}
	for key, value := range want {
		got, ok := rec.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, value, got, key)
	}
	_, held := rec.Get("current holds")
	assert.False(t, held)
}

func TestExtractContentModuleFallbacks(t *testing.T) {
	t.Parallel()

	rec, err := ExtractContentModule(parseModule(t, `<div class="content-module"><p>nothing here</p></div>`))
	require.NoError(t, err)

	assert.Equal(t, []string{
		catalog.FieldCatalogNumber,
		catalog.FieldPublishYear,
		catalog.FieldCoverURL,
		catalog.FieldAuthor,
		catalog.FieldISBN,
		catalog.FieldOCLC,
		catalog.FieldLexile,
		catalog.FieldStarAverage,
	}, rec.Keys())
	assert.Empty(t, rec.Title())

	line, err := rec.MarshalLine()
	require.NoError(t, err)
	assert.Equal(t,
		`{"midcolumbia_cn": null, "publish_year": null, "cover_url": null, "author": "", "ISBN": "", "oclc": "", "lexile": null, "goodreads_star_avg": null}`+"\n",
		string(line),
	)
}

func TestExtractContentModuleTitleOnly(t *testing.T) {
	t.Parallel()

	rec, err := ExtractContentModule(parseModule(t,
		`<div class="content-module"><div class="nsm-brief-primary-title-group"><span>Solo</span></div></div>`))
	require.NoError(t, err)
	assert.Equal(t, "Solo", rec.Title())

	line, err := rec.MarshalLine()
	require.NoError(t, err)
	assert.Equal(t,
		`{"title": "Solo", "midcolumbia_cn": null, "publish_year": null, "cover_url": null, "author": "", "ISBN": "", "oclc": "", "lexile": null, "goodreads_star_avg": null}`+"\n",
		string(line),
	)
}

func TestExtractContentModuleRejectsNonElement(t *testing.T) {
	t.Parallel()

	_, err := ExtractContentModule(&html.Node{Type: html.TextNode, Data: "loose"})
	require.ErrorIs(t, err, ErrNotElement)

	_, err = ExtractContentModule(nil)
	require.ErrorIs(t, err, ErrNotElement)
}

func TestExtractStarAverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want any
	}{
		{name: "zero", src: "rating0.gif", want: 0.0},
		{name: "half star steps", src: "rating7.gif", want: 3.5},
		{name: "max", src: "rating10.gif", want: 5.0},
		{name: "out of range", src: "rating12.gif", want: nil},
		{name: "no digits", src: "ratingX.gif", want: nil},
		{name: "overflow", src: "rating99999999999999999999.gif", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			markup := `<div class="content-module"><div class="nsm-brief-primary-title-group"><span>T</span></div>` +
				`<img src="https://img.example.org/` + tt.src + `"></div>`
			rec, err := ExtractContentModule(parseModule(t, markup))
			require.NoError(t, err)
			got, ok := rec.Get(catalog.FieldStarAverage)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "T", rec.Title())
		})
	}
}

func TestExtractReviewerCountRequiresDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   int
		wantOK bool
	}{
		{name: "digits", text: "42", want: 42, wantOK: true},
		{name: "padded", text: "  42 ", want: 42, wantOK: true},
		{name: "grouped", text: "1,234"},
		{name: "words", text: "many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			markup := `<div class="content-module"><div class="c-title-detail__3rd-party-item--novelist-lexile">` +
				`<a href="https://www.goodreads.com/x">` + tt.text + `</a></div></div>`
			rec, err := ExtractContentModule(parseModule(t, markup))
			require.NoError(t, err)
			got, ok := rec.Get(catalog.FieldReviewerCount)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractCoverIdentifiersNeedCover(t *testing.T) {
	t.Parallel()

	markup := `<div class="content-module"><img class="c-title-detail__thumbnail" src="/img?type=sm"></div>`
	rec, err := ExtractContentModule(parseModule(t, markup))
	require.NoError(t, err)

	cover, _ := rec.Get(catalog.FieldCoverURL)
	isbn, _ := rec.Get(catalog.FieldISBN)
	oclc, _ := rec.Get(catalog.FieldOCLC)
	assert.Equal(t, "/img?type=sm", cover)
	assert.Equal(t, "", isbn)
	assert.Equal(t, "", oclc)
}

func TestExtractLabelFieldsSkipsIncompleteGroups(t *testing.T) {
	t.Parallel()

	markup := `<div class="content-module">
  <div class="nsm-brief-standard-group"><span class="nsm-brief-label">Format:</span></div>
  <div class="nsm-brief-standard-group"><span class="nsm-short-item">Orphan</span></div>
  <div class="nsm-brief-standard-group">
    <span class="nsm-brief-label">AVAILABLE:</span><span class="nsm-short-item">yes</span>
  </div>
  <div class="nsm-brief-standard-group">
    <span class="nsm-brief-label">Language</span><span class="nsm-short-item">English</span>
  </div>
</div>`
	fields := extractLabelFields(parseModule(t, markup))
	assert.Equal(t, []labelField{{key: "language", value: "English"}}, fields)
}
