package dump

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Record is one key-value pair of a dump stream
type Record struct {
	Key   string
	Value []byte
}

// Malformed describes an input line that could not be decoded and was skipped
type Malformed struct {
	Line int    // 1-based line number
	Text string // the line without its newline
}

// ICodec converts between records and a line based dump stream.
type ICodec interface {
	// Name returns the name used to select the codec
	Name() string
	// Encode writes one line per item and returns the number of lines written.
	Encode(w io.Writer, items iter.Seq2[string, []byte]) (n int, err error)
	// Decode calls fn for every well-formed line of r and returns the number of
	// records passed to fn. Malformed lines are reported to warn (if not nil)
	// and skipped; empty lines are skipped silently. An error returned by fn
	// stops decoding.
	Decode(r io.Reader, fn func(Record) error, warn func(Malformed)) (n int, err error)
}

// Formats lists the names of all codecs
var Formats = []string{FormatRaw, FormatQuoted}

// ErrUnknownFormat is returned by New for an unknown codec name
var ErrUnknownFormat = errors.New("unknown dump format")

// New returns the codec with the given name
func New(format string) (ICodec, error) {
	switch strings.ToLower(format) {
	case FormatRaw, "":
		return Raw{}, nil
	case FormatQuoted:
		return Quoted{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (must be one of raw, quoted)", ErrUnknownFormat, format)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// encodeLines writes the line produced by format for every item
func encodeLines(w io.Writer, items iter.Seq2[string, []byte], format func(buf []byte, key string, value []byte) []byte) (int, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	n := 0
	var line []byte
	for k, v := range items {
		line = format(line[:0], k, v)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

// decodeLines calls parse for every non-empty line of r, without its '\n'.
// Lines of any length are supported.
func decodeLines(r io.Reader, parse func(line []byte) (Record, bool), fn func(Record) error, warn func(Malformed)) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	n := 0
	for lineNum := 1; ; lineNum++ {
		line, rerr := br.ReadBytes('\n')
		if rerr != nil && rerr != io.EOF {
			return n, rerr
		}
		line = bytes.TrimSuffix(line, []byte{'\n'})

		if len(line) > 0 {
			rec, ok := parse(line)
			if !ok {
				if warn != nil {
					warn(Malformed{Line: lineNum, Text: string(line)})
				}
			} else {
				if err := fn(rec); err != nil {
					return n, err
				}
				n++
			}
		}

		if rerr == io.EOF {
			return n, nil
		}
	}
}
