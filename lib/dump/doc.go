// Package dump converts the contents of a store to and from a line based text
// stream, one record per line.
//
// Two formats are available:
//
//   - raw (default): "key\tvalue\n" without escaping. Decoding splits each line
//     at its first tab, so values may contain tabs but keys may not, and
//     neither may contain a newline.
//   - quoted: "\"key\"\t\"value\"\n" with both fields written as Go quoted
//     strings. Any byte sequence survives a round trip.
//
// Decoding skips empty lines silently and reports lines it cannot parse to a
// warn callback instead of failing, so a partly damaged dump can still be
// restored.
package dump
