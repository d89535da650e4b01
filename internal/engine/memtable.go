package engine

// memtableMaxBytes is the default byte-size threshold that triggers a
// flush, per spec.md §4.3 (4 MiB). Overridable via config.
const memtableMaxBytes = 4 * 1024 * 1024

const (
	skipListMaxLevel = 18
	skipListP        = 0.5
)

// memtable is the in-memory ordered map of the most recent writes,
// including tombstones. size_bytes tracks exactly the live key+value
// footprint, updated on every Put so it never drifts from the content.
type memtable struct {
	list      *skipList
	sizeBytes int
}

func newMemtable() *memtable {
	return &memtable{list: newSkipList(skipListMaxLevel, skipListP)}
}

// put inserts or replaces entry, adjusting sizeBytes: the old footprint is
// subtracted before the new one is added, per spec.md §3's invariant.
func (m *memtable) put(entry Record) {
	previous, existed := m.list.Put(entry)
	if existed {
		m.sizeBytes -= previous.footprint()
	}
	m.sizeBytes += entry.footprint()
}

func (m *memtable) get(key string) (Record, bool) {
	return m.list.Get(key)
}

func (m *memtable) size() int { return m.list.Len() }

func (m *memtable) empty() bool { return m.list.Len() == 0 }

// all returns every record in ascending key order, used by the flush
// pipeline to stream the memtable out as a sorted SSTable.
func (m *memtable) all() []Record { return m.list.All() }
