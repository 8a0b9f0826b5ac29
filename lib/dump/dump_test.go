package dump

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func sorted(m map[string][]byte) func(yield func(string, []byte) bool) {
	return func(yield func(string, []byte) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

func decodeAll(t require.TestingT, c ICodec, input string) (map[string][]byte, []Malformed) {
	got := map[string][]byte{}
	var bad []Malformed
	n, err := c.Decode(strings.NewReader(input), func(r Record) error {
		got[r.Key] = r.Value
		return nil
	}, func(m Malformed) {
		bad = append(bad, m)
	})
	require.NoError(t, err)
	require.Equal(t, len(got), n)
	return got, bad
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestNew(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	require.Equal(t, FormatRaw, c.Name())

	c, err = New("QUOTED")
	require.NoError(t, err)
	require.Equal(t, FormatQuoted, c.Name())

	_, err = New("json")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRawEncode(t *testing.T) {
	var buf bytes.Buffer
	n, err := Raw{}.Encode(&buf, sorted(map[string][]byte{
		"user:1": []byte("alice"),
		"user:2": []byte("bob"),
	}))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "user:1\talice\nuser:2\tbob\n", buf.String())
}

func TestRawDecode(t *testing.T) {
	input := "a\t1\n" +
		"\n" + // empty, skipped silently
		"no tab here\n" +
		"b\tvalue\twith tab\n" +
		"c\tcrlf\r\n" +
		"\tempty key\n" +
		"last\twithout newline"

	got, bad := decodeAll(t, Raw{}, input)

	require.Equal(t, map[string][]byte{
		"a":    []byte("1"),
		"b":    []byte("value\twith tab"),
		"c":    []byte("crlf\r"),
		"":     []byte("empty key"),
		"last": []byte("without newline"),
	}, got)
	require.Equal(t, []Malformed{{Line: 3, Text: "no tab here"}}, bad)
}

func TestDecodeStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	n, err := Raw{}.Decode(strings.NewReader("a\t1\nb\t2\nc\t3\n"), func(r Record) error {
		if r.Key == "b" {
			return stop
		}
		return nil
	}, nil)
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, n)
}

func TestDecodeLongLines(t *testing.T) {
	value := strings.Repeat("x", 1<<20)
	got, bad := decodeAll(t, Raw{}, "big\t"+value+"\n")
	require.Empty(t, bad)
	require.Len(t, got["big"], 1<<20)
}

func TestQuotedDecodeRejectsBadQuoting(t *testing.T) {
	got, bad := decodeAll(t, Quoted{}, "\"ok\"\t\"1\"\nplain\tvalue\n\"k\"\t\"unterminated\n")
	require.Equal(t, map[string][]byte{"ok": []byte("1")}, got)
	require.Len(t, bad, 2)
	require.Equal(t, 2, bad[0].Line)
	require.Equal(t, 3, bad[1].Line)
}

// --------------------------------------------------------------------------
// Properties
// --------------------------------------------------------------------------

func roundTrip(t *rapid.T, c ICodec, items map[string][]byte) {
	var buf bytes.Buffer
	written, err := c.Encode(&buf, sorted(items))
	if err != nil {
		t.Fatal(err)
	}

	got, bad := decodeAll(t, c, buf.String())
	if len(bad) != 0 {
		t.Fatalf("round trip produced malformed lines: %v", bad)
	}
	if written != len(got) {
		t.Fatalf("wrote %d records, restored %d", written, len(got))
	}
	for k, v := range items {
		if !bytes.Equal(got[k], v) {
			t.Fatalf("key %q: want %q, got %q", k, v, got[k])
		}
	}
}

func TestQuotedRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.MapOf(
			rapid.Custom(func(t *rapid.T) string { return string(rapid.SliceOf(rapid.Byte()).Draw(t, "key")) }),
			rapid.SliceOf(rapid.Byte()),
		).Draw(t, "items")
		roundTrip(t, Quoted{}, items)
	})
}

func TestRawRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.MapOf(
			rapid.StringMatching(`[^\t\n]*`),
			rapid.Custom(func(t *rapid.T) []byte { return []byte(rapid.StringMatching(`[^\n]*`).Draw(t, "value")) }),
		).Draw(t, "items")
		roundTrip(t, Raw{}, items)
	})
}
