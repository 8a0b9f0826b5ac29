package fstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/ValentinKolb/bdbtool/lib/db"
)

// --------------------------------------------------------------------------
// File Layout
// --------------------------------------------------------------------------

var fileMagic = [8]byte{'B', 'D', 'B', 'T', 'O', 'O', 'L', 0}

const (
	fileVersion uint8 = 1
	headerSize        = int64(len(fileMagic) + 1)

	// crc u32 | type u8 | keyLen u32 | valLen u32
	recordHeaderSize = 4 + 1 + 4 + 4
)

type recordType uint8

const (
	recPut recordType = iota + 1
	recDelete
	recBegin
	recCommit
	recSnapshot
)

func (t recordType) String() string {
	switch t {
	case recPut:
		return "put"
	case recDelete:
		return "delete"
	case recBegin:
		return "begin"
	case recCommit:
		return "commit"
	case recSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

type record struct {
	typ   recordType
	key   string
	value []byte
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	// errTorn marks a record that was cut short, usually by a crash during append
	errTorn = errors.New("torn record")
	// errChecksum marks a record whose checksum does not match its content
	errChecksum = errors.New("checksum mismatch")
	// errNotStore marks a file that is not a store file of a known version
	errNotStore = errors.New("not a bdb-tool database file")
	// errCorruptRecord marks a record with a valid checksum that cannot be applied
	errCorruptRecord = errors.New("corrupt record")
)

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func appendHeader(buf []byte) []byte {
	buf = append(buf, fileMagic[:]...)
	return append(buf, fileVersion)
}

// appendRecord appends the encoded record to buf
func appendRecord(buf []byte, rec record) ([]byte, error) {
	if uint64(len(rec.key)) > math.MaxUint32 || uint64(len(rec.value)) > math.MaxUint32 {
		return buf, fmt.Errorf("%s record too large (key %d bytes, value %d bytes)", rec.typ, len(rec.key), len(rec.value))
	}

	start := len(buf)
	buf = append(buf, 0, 0, 0, 0) // crc placeholder
	buf = append(buf, byte(rec.typ))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.key)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.value)))
	buf = append(buf, rec.key...)
	buf = append(buf, rec.value...)

	crc := crc32.Checksum(buf[start+4:], castagnoli)
	binary.LittleEndian.PutUint32(buf[start:], crc)
	return buf, nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// readHeader checks the file header. A file shorter than the header whose bytes
// are a prefix of a valid header is reported as errTorn.
func readHeader(r io.Reader) error {
	var hdr [headerSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			want := appendHeader(nil)
			if bytes.Equal(hdr[:n], want[:n]) {
				return errTorn
			}
			return errNotStore
		}
		return err
	}
	if !bytes.Equal(hdr[:len(fileMagic)], fileMagic[:]) {
		return errNotStore
	}
	if v := hdr[len(fileMagic)]; v != fileVersion {
		return fmt.Errorf("%w: unsupported file version %d", errNotStore, v)
	}
	return nil
}

// readRecord reads the next record. remaining is the number of bytes left in the
// file and bounds the allocation for corrupted length fields. A clean end of
// the file returns io.EOF.
func readRecord(r *bufio.Reader, remaining int64) (rec record, n int64, err error) {
	var hdr [recordHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return rec, 0, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return rec, 0, errTorn
		}
		return rec, 0, err
	}

	crc := binary.LittleEndian.Uint32(hdr[0:4])
	keyLen := int64(binary.LittleEndian.Uint32(hdr[5:9]))
	valLen := int64(binary.LittleEndian.Uint32(hdr[9:13]))
	n = recordHeaderSize + keyLen + valLen
	if n > remaining {
		return rec, 0, errTorn
	}

	body := make([]byte, keyLen+valLen)
	if _, err = io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return rec, 0, errTorn
		}
		return rec, 0, err
	}

	sum := crc32.Update(crc32.Checksum(hdr[4:], castagnoli), castagnoli, body)
	if sum != crc {
		return rec, 0, errChecksum
	}

	rec.typ = recordType(hdr[4])
	rec.key = string(body[:keyLen])
	rec.value = body[keyLen:]
	return rec, n, nil
}

// --------------------------------------------------------------------------
// Replay
// --------------------------------------------------------------------------

// replayResult describes what replay found in the log
type replayResult struct {
	good    int64 // offset after the last complete unit
	records int   // data records applied
	stopped error // reason replay ended before the end of the file, nil on a clean end
}

// replay applies all complete units of the log to database. r must be positioned
// right after the file header; size is the total file size. Records of a batch
// are applied only once its commit record was read.
//
// A torn record, a checksum mismatch or a batch without commit ends the replay
// with res.stopped set; the bytes after res.good may be dropped. A record that
// passed its checksum but cannot be applied returns an error wrapping
// errCorruptRecord, the file must then be left as it is.
func replay(r *bufio.Reader, size int64, database db.KVDB) (res replayResult, err error) {
	offset := headerSize
	res.good = offset

	var (
		inBatch bool
		batchID string
		pending []record
	)

	for {
		rec, n, rerr := readRecord(r, size-offset)
		if rerr == io.EOF {
			if inBatch {
				res.stopped = fmt.Errorf("transaction %s has no commit record", batchID)
			}
			return res, nil
		}
		if rerr != nil {
			if errors.Is(rerr, errTorn) || errors.Is(rerr, errChecksum) {
				res.stopped = fmt.Errorf("record at offset %d: %w", offset, rerr)
				return res, nil
			}
			return res, rerr
		}
		start := offset
		offset += n

		switch rec.typ {
		case recPut, recDelete, recSnapshot:
			if inBatch {
				pending = append(pending, rec)
				continue
			}
			if err := apply(database, rec); err != nil {
				return res, fmt.Errorf("%w: %s at offset %d: %v", errCorruptRecord, rec.typ, start, err)
			}
			res.records += weight(database, rec)
			res.good = offset

		case recBegin:
			// batches are written with a single write, a begin inside a batch
			// means the earlier one never got its commit
			if inBatch {
				log.Warningf("transaction %s has no commit record, discarding %d records", batchID, len(pending))
			}
			inBatch, batchID, pending = true, rec.key, pending[:0]

		case recCommit:
			if !inBatch || rec.key != batchID {
				return res, fmt.Errorf("%w: commit of unknown transaction %s at offset %d", errCorruptRecord, rec.key, start)
			}
			for _, p := range pending {
				if err := apply(database, p); err != nil {
					return res, fmt.Errorf("%w: transaction %s: %s: %v", errCorruptRecord, batchID, p.typ, err)
				}
				res.records += weight(database, p)
			}
			inBatch, pending = false, pending[:0]
			res.good = offset

		default:
			return res, fmt.Errorf("%w: unknown record type %s at offset %d", errCorruptRecord, rec.typ, start)
		}
	}
}

func apply(database db.KVDB, rec record) error {
	switch rec.typ {
	case recPut:
		database.Set(rec.key, rec.value)
	case recDelete:
		database.Delete(rec.key)
	case recSnapshot:
		return database.Load(bytes.NewReader(rec.value))
	}
	return nil
}

// weight is the number of records a data record stands for in the
// compaction heuristic. A snapshot counts as the entries it holds.
func weight(database db.KVDB, rec record) int {
	if rec.typ == recSnapshot {
		return database.Len()
	}
	return 1
}
