package dump

import (
	"bytes"
	"io"
	"iter"
)

// FormatRaw is the name of the raw codec
const FormatRaw = "raw"

// Raw is the default dump format: key, a tab, the value and a newline, without
// any escaping. Keys containing a tab or newline and values containing a
// newline do not survive a round trip; use Quoted for such data.
type Raw struct{}

func (Raw) Name() string {
	return FormatRaw
}

func (Raw) Encode(w io.Writer, items iter.Seq2[string, []byte]) (int, error) {
	return encodeLines(w, items, func(buf []byte, key string, value []byte) []byte {
		buf = append(buf, key...)
		buf = append(buf, '\t')
		return append(buf, value...)
	})
}

// Decode splits every line once at its first tab. A trailing '\r' stays part
// of the value.
func (Raw) Decode(r io.Reader, fn func(Record) error, warn func(Malformed)) (int, error) {
	return decodeLines(r, func(line []byte) (Record, bool) {
		key, value, ok := bytes.Cut(line, []byte{'\t'})
		if !ok {
			return Record{}, false
		}
		return Record{Key: string(key), Value: bytes.Clone(value)}, true
	}, fn, warn)
}
