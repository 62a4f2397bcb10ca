// Package textcodec parses and emits the pipe-delimited line records used
// by text-format game packets: "key|v1|v2|...\n".
package textcodec

import (
	"strconv"
	"strings"
)

// DefaultDelimiter is the token separator used when none is configured.
const DefaultDelimiter = '|'

// Record is a single key/value-list pair parsed from one line.
type Record struct {
	Key    string
	Values []string
}

// Text is an ordered sequence of records. Keys are not unique.
type Text struct {
	delim   byte
	records []Record
}

// New creates an empty Text using the given delimiter.
func New(delim byte) *Text {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &Text{delim: delim}
}

// Parse splits buf into lines on '\n' (no \r\n normalization here) and
// tokenizes each line on delim. Lines that tokenize to fewer than two
// tokens are discarded. Empty lines are discarded.
func Parse(buf []byte, delim byte) *Text {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	t := &Text{delim: delim}
	for _, line := range strings.Split(string(buf), "\n") {
		if line == "" {
			continue
		}
		tokens := tokenize(line, delim)
		if len(tokens) < 2 {
			continue
		}
		t.records = append(t.records, Record{Key: tokens[0], Values: tokens[1:]})
	}
	return t
}

// tokenize splits s on delim, dropping a single leading empty token
// (produced by a line that itself starts with delim) while preserving
// any other empty tokens.
func tokenize(s string, delim byte) []string {
	parts := strings.Split(s, string(delim))
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	return parts
}

// Emit joins records with '\n' and each record's values with the
// configured delimiter. No trailing newline is appended.
func (t *Text) Emit() []byte {
	lines := make([]string, 0, len(t.records))
	for _, r := range t.records {
		lines = append(lines, r.Key+string(t.delim)+strings.Join(r.Values, string(t.delim)))
	}
	return []byte(strings.Join(lines, "\n"))
}

// Get returns the value at index of the first record matching key, or
// "" if no such record or index exists.
func (t *Text) Get(key string, index int) string {
	for _, r := range t.records {
		if r.Key == key {
			if index < 0 || index >= len(r.Values) {
				return ""
			}
			return r.Values[index]
		}
	}
	return ""
}

// GetInt parses Get(key, index) as base-10, returning fallback on any
// parse failure or missing record.
func (t *Text) GetInt(key string, index int, fallback int) int {
	v := t.Get(key, index)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Set replaces the value list of the first record matching key, or
// appends a new record if none match.
func (t *Text) Set(key string, values ...string) {
	for i := range t.records {
		if t.records[i].Key == key {
			t.records[i].Values = values
			return
		}
	}
	t.records = append(t.records, Record{Key: key, Values: values})
}

// Contains reports whether any record matches key.
func (t *Text) Contains(key string) bool {
	for _, r := range t.records {
		if r.Key == key {
			return true
		}
	}
	return false
}

// Remove deletes all records matching key.
func (t *Text) Remove(key string) {
	out := t.records[:0]
	for _, r := range t.records {
		if r.Key != key {
			out = append(out, r)
		}
	}
	t.records = out
}

// Empty reports whether Text has no records.
func (t *Text) Empty() bool {
	return len(t.records) == 0
}

// Entries returns the ordered (key, values) pairs. The returned slice
// shares no backing array with the receiver's internal state.
func (t *Text) Entries() []Record {
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = Record{Key: r.Key, Values: append([]string(nil), r.Values...)}
	}
	return out
}
