package dump

import (
	"bytes"
	"io"
	"iter"
	"strconv"
)

// FormatQuoted is the name of the quoted codec
const FormatQuoted = "quoted"

// Quoted writes key and value as Go quoted strings separated by a tab.
// Escaping makes any byte sequence round-trip, tabs and newlines included.
type Quoted struct{}

func (Quoted) Name() string {
	return FormatQuoted
}

func (Quoted) Encode(w io.Writer, items iter.Seq2[string, []byte]) (int, error) {
	return encodeLines(w, items, func(buf []byte, key string, value []byte) []byte {
		buf = strconv.AppendQuote(buf, key)
		buf = append(buf, '\t')
		return strconv.AppendQuote(buf, string(value))
	})
}

func (Quoted) Decode(r io.Reader, fn func(Record) error, warn func(Malformed)) (int, error) {
	return decodeLines(r, func(line []byte) (Record, bool) {
		qk, qv, ok := bytes.Cut(line, []byte{'\t'})
		if !ok {
			return Record{}, false
		}
		key, err := strconv.Unquote(string(qk))
		if err != nil {
			return Record{}, false
		}
		value, err := strconv.Unquote(string(qv))
		if err != nil {
			return Record{}, false
		}
		return Record{Key: key, Value: []byte(value)}, true
	}, fn, warn)
}
