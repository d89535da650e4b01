package engine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// sstable is an immutable on-disk run: a data file of sorted records plus
// a sidecar index file carrying min/max key, bloom bits and per-key
// offsets, per spec.md §3/§4.4.
type sstable struct {
	path      string // data file path
	level     int
	minKey    string
	maxKey    string
	offsets   map[string]int64
	bloom     *bloomFilter // nil if the sidecar's filter was skipped on load
	numKeys   int
}

func indexPath(dataPath string) string { return dataPath + ".index" }

// writeSSTable streams records (already in ascending key order) to a new
// data file and its index sidecar, returning the in-memory handle.
func writeSSTable(path string, level int, records []Record, bloomBitsPerEntry uint64, bloomHashCount uint8) (*sstable, error) {
	if len(records) == 0 {
		return nil, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table := &sstable{
		path:    path,
		level:   level,
		minKey:  records[0].Key(),
		maxKey:  records[len(records)-1].Key(),
		offsets: make(map[string]int64, len(records)),
		bloom:   bloomFilterForEntries(len(records), bloomBitsPerEntry, bloomHashCount),
		numKeys: len(records),
	}

	w := bufio.NewWriter(f)
	var offset int64
	for _, rec := range records {
		table.bloom.add(rec.Key())
		table.offsets[rec.Key()] = offset
		n, err := writeDataRecord(w, rec)
		if err != nil {
			return nil, err
		}
		offset += int64(n)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	if err := writeSSTableIndex(table); err != nil {
		return nil, err
	}
	return table, nil
}

// writeDataRecord writes one record in the layout spec.md §4.4 specifies:
// key len, key, value len, value, timestamp, tombstone flag, then a
// trailing checksum over those fields (the supplement from SPEC_FULL.md
// §3 that leaves the specified field order untouched).
func writeDataRecord(w io.Writer, rec Record) (int, error) {
	keyBytes := []byte(rec.Key())
	valueBytes := []byte(rec.Value())

	size := 4 + len(keyBytes) + 4 + len(valueBytes) + 8 + 1 + 8
	buf := make([]byte, size)
	pos := 0
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(keyBytes)))
	pos += 4
	copy(buf[pos:], keyBytes)
	pos += len(keyBytes)
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(valueBytes)))
	pos += 4
	copy(buf[pos:], valueBytes)
	pos += len(valueBytes)
	binary.LittleEndian.PutUint64(buf[pos:], rec.Timestamp())
	pos += 8
	if rec.Tombstone() {
		buf[pos] = 1
	}
	pos++

	checksum := xxhash.Sum64(buf[:pos])
	binary.LittleEndian.PutUint64(buf[pos:], checksum)

	if _, err := w.Write(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// readDataRecordAt seeks to offset in the data file and decodes exactly
// one record, verifying its checksum and that the stored key matches the
// expected key (the defensive integrity check spec.md §4.4 requires).
func readDataRecordAt(f *os.File, offset int64, expectedKey string) (Record, bool) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return Record{}, false
	}
	r := bufio.NewReader(f)

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Record{}, false
	}
	keyLen := binary.LittleEndian.Uint32(lenBuf[:])
	raw := append([]byte{}, lenBuf[:]...)

	keyBytes := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return Record{}, false
	}
	raw = append(raw, keyBytes...)

	var valLenBuf [4]byte
	if _, err := io.ReadFull(r, valLenBuf[:]); err != nil {
		return Record{}, false
	}
	raw = append(raw, valLenBuf[:]...)
	valLen := binary.LittleEndian.Uint32(valLenBuf[:])

	valueBytes := make([]byte, valLen)
	if _, err := io.ReadFull(r, valueBytes); err != nil {
		return Record{}, false
	}
	raw = append(raw, valueBytes...)

	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return Record{}, false
	}
	raw = append(raw, tsBuf[:]...)
	timestamp := binary.LittleEndian.Uint64(tsBuf[:])

	var tombstoneByte [1]byte
	if _, err := io.ReadFull(r, tombstoneByte[:]); err != nil {
		return Record{}, false
	}
	raw = append(raw, tombstoneByte[:]...)
	tombstone := tombstoneByte[0] != 0

	var checksumBuf [8]byte
	if _, err := io.ReadFull(r, checksumBuf[:]); err != nil {
		return Record{}, false
	}
	want := binary.LittleEndian.Uint64(checksumBuf[:])
	if xxhash.Sum64(raw) != want {
		return Record{}, false
	}

	if string(keyBytes) != expectedKey {
		return Record{}, false
	}

	if tombstone {
		return NewTombstone(string(keyBytes), timestamp), true
	}
	return NewRecord(string(keyBytes), string(valueBytes), timestamp), true
}

// lookup implements the point-lookup contract of spec.md §4.4: consult
// the bloom filter, then the offset map, then the data file, verifying
// the stored key. Never returns a tombstone's value as if it were live —
// the caller decides what a tombstone means.
func (t *sstable) lookup(key string) (Record, bool) {
	if t.bloom != nil && !t.bloom.possiblyContains(key) {
		return Record{}, false
	}
	offset, ok := t.offsets[key]
	if !ok {
		return Record{}, false
	}
	f, err := os.Open(t.path)
	if err != nil {
		return Record{}, false
	}
	defer f.Close()
	return readDataRecordAt(f, offset, key)
}

// covers reports whether key falls within [minKey, maxKey].
func (t *sstable) covers(key string) bool {
	return t.minKey <= key && key <= t.maxKey
}

// --- index sidecar ---

func writeSSTableIndex(t *sstable) error {
	f, err := os.Create(indexPath(t.path))
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(t.numKeys))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if err := writeLenPrefixed(w, t.minKey); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, t.maxKey); err != nil {
		return err
	}

	var bitCount [8]byte
	binary.LittleEndian.PutUint64(bitCount[:], uint64(len(t.bloom.bits)))
	if _, err := w.Write(bitCount[:]); err != nil {
		return err
	}
	if err := w.WriteByte(t.bloom.numHashes); err != nil {
		return err
	}
	for _, bit := range t.bloom.bits {
		b := byte(0)
		if bit {
			b = 1
		}
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(t.offsets))
	for k := range t.offsets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeLenPrefixed(w, k); err != nil {
			return err
		}
		var offBuf [8]byte
		binary.LittleEndian.PutUint64(offBuf[:], uint64(t.offsets[k]))
		if _, err := w.Write(offBuf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeLenPrefixed(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readLenPrefixed(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// loadSSTable reopens a data file found on disk and reads its index
// sidecar. A load failure leaves the data file on disk and reports an
// error so the caller can skip the table (spec.md §6/§7): corruption here
// is non-fatal to the engine as a whole.
func loadSSTable(dataPath string, level int) (*sstable, error) {
	f, err := os.Open(indexPath(dataPath))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}
	numEntries := binary.LittleEndian.Uint64(countBuf[:])

	minKey, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("read min key: %w", err)
	}
	maxKey, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("read max key: %w", err)
	}

	table := &sstable{
		path:    dataPath,
		level:   level,
		minKey:  minKey,
		maxKey:  maxKey,
		offsets: make(map[string]int64, numEntries),
		numKeys: int(numEntries),
	}

	var bitCountBuf [8]byte
	if _, err := io.ReadFull(r, bitCountBuf[:]); err != nil {
		return nil, fmt.Errorf("read bloom bit count: %w", err)
	}
	bitCount := binary.LittleEndian.Uint64(bitCountBuf[:])

	if bitCount > 0 && bitCount < bloomMaxBits {
		numHashes, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read bloom hash count: %w", err)
		}
		bits := make([]bool, bitCount)
		for i := uint64(0); i < bitCount; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("read bloom bits: %w", err)
			}
			bits[i] = b != 0
		}
		table.bloom = &bloomFilter{bits: bits, numHashes: numHashes}
	} else {
		// bitCount outside the sane range: not an error, the filter is
		// skipped (spec.md §4.1). Its hash-count byte and bit bytes are
		// read past so the offset entries after them still line up.
		if _, err := io.CopyN(io.Discard, r, int64(1+bitCount)); err != nil {
			return nil, fmt.Errorf("skip bloom section: %w", err)
		}
	}

	for i := uint64(0); i < numEntries; i++ {
		key, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("read index key %d: %w", i, err)
		}
		var offBuf [8]byte
		if _, err := io.ReadFull(r, offBuf[:]); err != nil {
			return nil, fmt.Errorf("read index offset %d: %w", i, err)
		}
		table.offsets[key] = int64(binary.LittleEndian.Uint64(offBuf[:]))
	}
	return table, nil
}

func (t *sstable) remove() {
	os.Remove(t.path)
	os.Remove(indexPath(t.path))
}

func sstableDir(dbDir string, level int) string {
	return filepath.Join(dbDir, fmt.Sprintf("L%d", level))
}

func sstablePath(dbDir string, level int, id uint64) string {
	return filepath.Join(sstableDir(dbDir, level), fmt.Sprintf("table_%d.sst", id))
}

var errEmptyMerge = errors.New("engine: merge produced no records")
