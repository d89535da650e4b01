package engine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// walOpSet and walOpDel are the WAL op-type tags spec.md §4.2 defines.
const (
	walOpSet byte = 0x01
	walOpDel byte = 0x02
)

// wal is the append-only durability journal. Every write is flushed to the
// OS before the engine acknowledges the mutation (spec.md §4.2); rotation
// is performed atomically with respect to the memtable lock by the caller.
type wal struct {
	mu   sync.Mutex
	path string
	fd   *os.File
}

func newWAL(path string) (*wal, error) {
	return &wal{path: path}, nil
}

// appendSet logs a SET record. Opens the file for append on first write.
func (w *wal) appendSet(key, value string) error {
	return w.append(walOpSet, key, value)
}

// appendDel logs a DEL record.
func (w *wal) appendDel(key string) error {
	return w.append(walOpDel, key, "")
}

func (w *wal) append(op byte, key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fd == nil {
		fd, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		w.fd = fd
	}

	buf := encodeWALRecord(op, key, value)
	if _, err := w.fd.Write(buf); err != nil {
		return err
	}
	return w.fd.Sync()
}

func encodeWALRecord(op byte, key, value string) []byte {
	keyBytes := []byte(key)
	size := 1 + 4 + len(keyBytes)
	if op == walOpSet {
		size += 4 + len(value)
	}
	size += 8 // trailing checksum

	buf := make([]byte, size)
	pos := 0
	buf[pos] = op
	pos++
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(keyBytes)))
	pos += 4
	copy(buf[pos:], keyBytes)
	pos += len(keyBytes)

	if op == walOpSet {
		valueBytes := []byte(value)
		binary.LittleEndian.PutUint32(buf[pos:], uint32(len(valueBytes)))
		pos += 4
		copy(buf[pos:], valueBytes)
		pos += len(valueBytes)
	}

	checksum := xxhash.Sum64(buf[:pos])
	binary.LittleEndian.PutUint64(buf[pos:], checksum)
	return buf
}

// walEntry is a single decoded WAL record, prior to timestamp allocation.
type walEntry struct {
	op    byte
	key   string
	value string
}

// replayAllWAL reads every well-formed record in the WAL file in order. A
// short read or a checksum mismatch at the tail is treated as end-of-log,
// not corruption (spec.md §4.2); a missing file yields a clean, empty
// replay.
func replayAllWAL(path string) ([]walEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var entries []walEntry
	for {
		entry, ok := decodeWALRecord(r)
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeWALRecord(r *bufio.Reader) (walEntry, bool) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return walEntry{}, false
	}
	op := header[0]
	if op != walOpSet && op != walOpDel {
		return walEntry{}, false
	}
	keyLen := binary.LittleEndian.Uint32(header[1:])

	recorded := append([]byte{}, header[:]...)

	keyBytes := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return walEntry{}, false
	}
	recorded = append(recorded, keyBytes...)

	var value []byte
	if op == walOpSet {
		var valLenBuf [4]byte
		if _, err := io.ReadFull(r, valLenBuf[:]); err != nil {
			return walEntry{}, false
		}
		recorded = append(recorded, valLenBuf[:]...)
		valLen := binary.LittleEndian.Uint32(valLenBuf[:])
		value = make([]byte, valLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return walEntry{}, false
		}
		recorded = append(recorded, value...)
	}

	var checksumBuf [8]byte
	if _, err := io.ReadFull(r, checksumBuf[:]); err != nil {
		return walEntry{}, false
	}
	want := binary.LittleEndian.Uint64(checksumBuf[:])
	got := xxhash.Sum64(recorded)
	if want != got {
		return walEntry{}, false
	}

	return walEntry{op: op, key: string(keyBytes), value: string(value)}, true
}

// rotate closes and truncates the WAL, then re-logs survivors (the caller
// holds memtable_mutex and supplies the active memtable's live content),
// preserving durability across the flush boundary per spec.md §4.2.
func (w *wal) rotate(survivors []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fd != nil {
		if err := w.fd.Close(); err != nil {
			return err
		}
		w.fd = nil
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	fd, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.fd = fd

	for _, rec := range survivors {
		op := walOpSet
		if rec.Tombstone() {
			op = walOpDel
		}
		buf := encodeWALRecord(op, rec.Key(), rec.Value())
		if _, err := w.fd.Write(buf); err != nil {
			return err
		}
	}
	return w.fd.Sync()
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd == nil {
		return nil
	}
	err := w.fd.Close()
	w.fd = nil
	return err
}

func walPath(dbDir string) string {
	return filepath.Join(dbDir, "wal.log")
}
