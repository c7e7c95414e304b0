package extractor

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func collectContainers(t *testing.T, input, id string) []string {
	t.Helper()
	out, _ := scanAll(t, NewContainerScanner(strings.NewReader(input), id, nil))
	return out
}

func scanAll(t *testing.T, s *ContainerScanner) ([]string, int) {
	t.Helper()
	var out []string
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, s.Discarded()
		}
		require.NoError(t, err)
		out = append(out, string(chunk))
	}
}

func TestContainerScannerSplitsPages(t *testing.T) {
	t.Parallel()

	input := `<div id="searchResultsDIV"><div class="content-module">one</div></div>` + "\n\n" +
		`<div class="noise">skip</div>` +
		`<div id="searchResultsDIV" class="wide"><div><div>two</div></div></div>` + "\n\n"

	got := collectContainers(t, input, "searchResultsDIV")
	assert.Equal(t, []string{
		`<div id="searchResultsDIV"><div class="content-module">one</div></div>`,
		`<div id="searchResultsDIV" class="wide"><div><div>two</div></div></div>`,
	}, got)
}

func TestContainerScannerKeepsRawMarkup(t *testing.T) {
	t.Parallel()

	input := `<DIV ID="searchResultsDIV"><A HREF="/x?cn=1&amp;y=2">T</A></DIV>`
	got := collectContainers(t, input, "searchResultsDIV")
	require.Len(t, got, 1)
	assert.Equal(t, input, got[0])
}

func TestContainerScannerDropsUnclosedContainer(t *testing.T) {
	t.Parallel()

	input := `<div id="searchResultsDIV"><div>done</div></div><div id="searchResultsDIV"><div>cut off`
	got := collectContainers(t, input, "searchResultsDIV")
	assert.Len(t, got, 1)
}

func TestContainerScannerEmptyInput(t *testing.T) {
	t.Parallel()

	assert.Empty(t, collectContainers(t, "", "searchResultsDIV"))
	assert.Empty(t, collectContainers(t, "<p>no containers</p>", "searchResultsDIV"))
}

func TestContainerScannerCustomID(t *testing.T) {
	t.Parallel()

	input := `<div id="searchResultsDIV">a</div><div id="results">b</div>`
	assert.Equal(t, []string{`<div id="results">b</div>`}, collectContainers(t, input, "results"))
}

func TestContainerScannerRestartsAfterTruncatedContainer(t *testing.T) {
	t.Parallel()

	pageB := `<div id="searchResultsDIV"><div class="content-module"><span>B</span></div></div>`
	pageC := `<div id="searchResultsDIV"><div class="content-module"><span>C</span></div></div>`
	input := `<div id="searchResultsDIV"><div class="content-module"><div>cut` +
		pageB + "\n\n" + pageC + "\n\n"

	core, logs := observer.New(zap.WarnLevel)
	got, discarded := scanAll(t, NewContainerScanner(strings.NewReader(input), "searchResultsDIV", zap.New(core)))

	assert.Equal(t, []string{pageB, pageC}, got)
	assert.Equal(t, 1, discarded)
	entries := logs.FilterMessage("Discarding incomplete results container").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "truncated by the next container", entries[0].ContextMap()["reason"])
	assert.EqualValues(t, len(`<div id="searchResultsDIV"><div class="content-module"><div>cut`), entries[0].ContextMap()["bytes"])
}

func TestContainerScannerLogsUnclosedContainerAtEOF(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	input := `<div id="searchResultsDIV"><div>done</div></div><div id="searchResultsDIV"><div>cut off`
	got, discarded := scanAll(t, NewContainerScanner(strings.NewReader(input), "searchResultsDIV", zap.New(core)))

	assert.Len(t, got, 1)
	assert.Equal(t, 1, discarded)
	entries := logs.FilterMessage("Discarding incomplete results container").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "unclosed at end of input", entries[0].ContextMap()["reason"])
}
