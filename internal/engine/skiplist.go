package engine

import (
	"math/rand"
	"time"
)

// skipList is the memtable's backing ordered map, adapted from the
// teacher's generic skip list: same probabilistic level structure, but
// specialized to engine.Record and to the byte accounting spec.md demands
// (key+value length only, not struct overhead).
type skipList struct {
	maxLevel int
	p        float64
	level    int
	rand     *rand.Rand
	size     int
	head     *skipNode
}

type skipNode struct {
	entry Record
	next  []*skipNode
}

func newSkipList(maxLevel int, p float64) *skipList {
	return &skipList{
		maxLevel: maxLevel,
		p:        p,
		level:    1,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		head: &skipNode{
			next: make([]*skipNode, maxLevel),
		},
	}
}

func (s *skipList) Len() int { return s.size }

// Put inserts or replaces entry, returning the previous entry if the key
// already existed so the caller can adjust its byte accounting.
func (s *skipList) Put(entry Record) (previous Record, existed bool) {
	curr := s.head
	update := make([]*skipNode, s.maxLevel)

	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && curr.next[i].entry.Key() < entry.Key() {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	if curr.next[0] != nil && curr.next[0].entry.Key() == entry.Key() {
		previous = curr.next[0].entry
		curr.next[0].entry = entry
		return previous, true
	}

	level := s.randomLevel()
	if level > s.level {
		for i := s.level; i < level; i++ {
			update[i] = s.head
		}
		s.level = level
	}

	node := &skipNode{entry: entry, next: make([]*skipNode, level)}
	for i := range level {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
	}
	s.size++
	return Record{}, false
}

func (s *skipList) Get(key string) (Record, bool) {
	curr := s.head
	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && curr.next[i].entry.Key() < key {
			curr = curr.next[i]
		}
	}
	curr = curr.next[0]
	if curr != nil && curr.entry.Key() == key {
		return curr.entry, true
	}
	return Record{}, false
}

// All returns every entry in ascending key order.
func (s *skipList) All() []Record {
	all := make([]Record, 0, s.size)
	for curr := s.head.next[0]; curr != nil; curr = curr.next[0] {
		all = append(all, curr.entry)
	}
	return all
}

func (s *skipList) randomLevel() int {
	level := 1
	for s.rand.Float64() < s.p && level < s.maxLevel {
		level++
	}
	return level
}
