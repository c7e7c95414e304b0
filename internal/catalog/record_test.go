package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	rec := NewRecord()
	rec.Set(FieldTitle, "Dune")
	rec.Set(FieldCatalogNumber, "123")
	rec.Set("format", "Book")
	rec.Set(FieldTitle, "Dune Messiah")

	assert.Equal(t, []string{FieldTitle, FieldCatalogNumber, "format"}, rec.Keys())
	assert.Equal(t, 3, rec.Len())
	assert.Equal(t, "Dune Messiah", rec.Title())
}

func TestRecordMarshalLine(t *testing.T) {
	t.Parallel()

	rec := NewRecord()
	rec.Set(FieldTitle, "Dune <Special> & more")
	rec.Set(FieldCatalogNumber, nil)
	rec.Set(FieldStarAverage, 4.0)
	rec.Set(FieldReviewerCount, 1234)

	line, err := rec.MarshalLine()
	require.NoError(t, err)
	assert.Equal(t,
		`{"title": "Dune <Special> & more", "midcolumbia_cn": null, "goodreads_star_avg": 4.0, "goodreads_number_of_reviewers": 1234}`+"\n",
		string(line),
	)
}

func TestRecordMarshalJSONIsCompactAndValid(t *testing.T) {
	t.Parallel()

	rec := NewRecord()
	rec.Set(FieldTitle, "Dune")
	rec.Set(FieldStarAverage, 3.5)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Dune","goodreads_star_avg":3.5}`, string(out))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "Dune", decoded[FieldTitle])
}

func TestRecordCatalogNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		value  any
		want   string
		wantOK bool
	}{
		{name: "resolved", value: "1234", want: "1234", wantOK: true},
		{name: "null", value: nil},
		{name: "empty", value: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := NewRecord()
			rec.Set(FieldCatalogNumber, tt.value)
			got, ok := rec.CatalogNumber()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
