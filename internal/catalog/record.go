// Package catalog defines the book record extracted from catalog search results.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names of a book record, in the order they are normally emitted.
const (
	FieldTitle         = "title"
	FieldCatalogNumber = "midcolumbia_cn"
	FieldPublishYear   = "publish_year"
	FieldCoverURL      = "cover_url"
	FieldAuthor        = "author"
	FieldISBN          = "ISBN"
	FieldOCLC          = "oclc"
	FieldLexile        = "lexile"
	FieldStarAverage   = "goodreads_star_avg"
	FieldReviewerCount = "goodreads_number_of_reviewers"
)

// Record is an insertion-ordered mapping of field name to value. Values are
// string, float64, int or nil.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Set stores value under key. An existing key keeps its position.
func (r *Record) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len reports the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Title returns the title, or "" when it is missing or not a string.
func (r *Record) Title() string {
	s, _ := r.values[FieldTitle].(string)
	return s
}

// CatalogNumber returns the catalog entry ID when one was resolved.
func (r *Record) CatalogNumber() (string, bool) {
	s, ok := r.values[FieldCatalogNumber].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// MarshalJSON encodes the record as a compact JSON object, keeping field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.encode(",", ":")
}

// MarshalLine encodes the record as a single JSONL line, newline included.
// Separators follow the common `{"k": v, "k2": v2}` layout.
func (r *Record) MarshalLine() ([]byte, error) {
	out, err := r.encode(", ", ": ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func (r *Record) encode(itemSep, keySep string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteString(itemSep)
		}
		k, err := encodeString(key)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteString(keySep)
		v, err := encodeValue(r.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return encodeString(val)
	case int:
		return []byte(strconv.Itoa(val)), nil
	case float64:
		return encodeFloat(val)
	default:
		return json.Marshal(val)
	}
}

// encodeString writes s as a JSON string without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// encodeFloat always keeps a fractional part so 4.0 stays distinguishable from 4.
func encodeFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value %v", f)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}
